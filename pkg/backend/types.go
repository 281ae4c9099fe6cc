package backend

import (
	"context"
	"errors"
	"time"

	"github.com/tunerproxy/tunerproxy/pkg/station"
)

var (
	// ErrUnavailable covers network failures, timeouts and 5xx responses.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrAuth means the configured credentials were rejected. Not retried.
	ErrAuth = errors.New("backend rejected credentials")
	// ErrInvalidLocation is returned when the backend does not serve a region.
	ErrInvalidLocation = errors.New("invalid location")
)

// Client is the narrow view of the streaming backend used by the tuner.
type Client interface {
	ListStations(ctx context.Context, region station.Region) ([]station.Station, error)
	StreamURL(ctx context.Context, region station.Region, stationID string) (string, error)
	ProgramGuide(ctx context.Context, region station.Region, days int) (Guide, error)
}

// Override selects a region explicitly instead of using IP geolocation.
// At most one of the fields is set.
type Override struct {
	ZipCode   string
	Latitude  float64
	Longitude float64
	HasCoords bool
}

func (o Override) IsZero() bool {
	return o.ZipCode == "" && !o.HasCoords
}

type Resolver interface {
	Resolve(ctx context.Context, override Override) (station.Region, error)
}

type Guide struct {
	Channels []GuideChannel
}

type GuideChannel struct {
	StationID string
	Programs  []Program
}

type Program struct {
	Title       string
	EpisodeName string
	Description string
	Start       time.Time
	Duration    time.Duration
	Genres      []string
	Rating      string
	HD          bool
	New         bool
	Season      int
	Episode     int
	ImageURL    string
}
