package modules

import "net/http"

// Module is an HTTP surface mounted on a device server.
type Module interface {
	Shutdown()
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}
