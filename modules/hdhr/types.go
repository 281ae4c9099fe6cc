package hdhr

import (
	"context"
	"errors"
	"net/http"

	"github.com/tunerproxy/tunerproxy/pkg/backend"
	"github.com/tunerproxy/tunerproxy/pkg/discovery"
	"github.com/tunerproxy/tunerproxy/pkg/station"
)

type Config struct {
	// days of guide data in epg.xml
	Days int
	// channel names carry the city, used by the merged device
	WithCity bool
}

func (c Config) withDefaultValues() Config {
	if c.Days <= 0 {
		c.Days = 1
	}
	return c
}

// Device is one emulated tuner as seen by the HTTP surface. It is either a
// single region instance or the merged multiplex device.
type Device interface {
	Descriptor() discovery.Descriptor
	Lineup(ctx context.Context) (*station.Lineup, error)
	Guide(ctx context.Context, days int) (backend.Guide, error)
	// Rescan drops cached stations and fetches them again.
	Rescan(ctx context.Context) error
	// Watch streams the station to the client, writing any error itself.
	Watch(w http.ResponseWriter, r *http.Request, st station.Station)
}

// StatusError is implemented by device errors that map to a specific
// HTTP status.
type StatusError interface {
	error
	HTTPStatus() int
}

func errorStatus(err error) int {
	var se StatusError
	if errors.As(err, &se) {
		return se.HTTPStatus()
	}

	switch {
	case errors.Is(err, backend.ErrUnavailable),
		errors.Is(err, backend.ErrAuth):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}
