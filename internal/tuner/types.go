package tuner

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tunerproxy/tunerproxy/pkg/backend"
	"github.com/tunerproxy/tunerproxy/pkg/station"
)

type State int

const (
	Created State = iota
	ResolvingRegion
	Serving
	Stopping
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case ResolvingRegion:
		return "resolving region"
	case Serving:
		return "serving"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var transitions = map[State][]State{
	Created:         {ResolvingRegion},
	ResolvingRegion: {Serving, Failed},
	Serving:         {Stopping, Failed},
	Stopping:        {Stopped},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition from %s to %s", e.From, e.To)
}

// statusError is an error the HTTP surface reports with its own status.
type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string   { return e.msg }
func (e *statusError) HTTPStatus() int { return e.status }

var (
	ErrNotServing = &statusError{http.StatusServiceUnavailable, "device is not serving"}
	ErrNoTuner    = &statusError{http.StatusServiceUnavailable, "all tuners are in use"}
)

// DeviceInfo holds the identity strings reported to clients.
type DeviceInfo struct {
	Manufacturer    string
	ModelNumber     string
	FirmwareName    string
	FirmwareVersion string
}

func (d DeviceInfo) withDefaultValues() DeviceInfo {
	if d.Manufacturer == "" {
		d.Manufacturer = "tunerproxy"
	}
	if d.ModelNumber == "" {
		d.ModelNumber = "HDHR3-US"
	}
	if d.FirmwareName == "" {
		d.FirmwareName = "hdhomerun3_atsc"
	}
	if d.FirmwareVersion == "" {
		d.FirmwareVersion = "1.2.3456"
	}
	return d
}

type Config struct {
	UID string
	// host clients use to reach the device
	Host       string
	Port       int
	TunerCount int
	Override   backend.Override
	Device     DeviceInfo
}

func (c Config) withDefaultValues() Config {
	if c.TunerCount <= 0 {
		c.TunerCount = 3
	}
	c.Device = c.Device.withDefaultValues()
	return c
}

// LineupSource is the station cache as seen by an instance.
type LineupSource interface {
	Lineup(ctx context.Context, region station.Region) (*station.Lineup, error)
	Invalidate(regionID string)
}

// Streamer serves a stream request for a station.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, st station.Station, url string)
}
