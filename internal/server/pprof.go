package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// pprof index and expvar live below /debug.
const (
	debugPath = "/debug"
	pprofPath = debugPath + "/pprof/"
)

func withPProf(router chi.Router) {
	router.Mount(debugPath, middleware.Profiler())
}
