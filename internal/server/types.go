package server

import "net/http"

type Config struct {
	// host:port the device listens on
	Bind string
	// expose /debug/pprof
	PProf bool
	// served at /metrics when set
	Metrics http.Handler
}
