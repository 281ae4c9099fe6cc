package supervisor

import (
	"net/http"

	"github.com/tunerproxy/tunerproxy/internal/tuner"
	"github.com/tunerproxy/tunerproxy/pkg/backend"
)

type Config struct {
	UID string
	// listen address of every device
	Bind string
	// host put into device URLs, derived from Bind when empty
	Host string
	// first port, device i listens on Port+i
	Port       int
	TunerCount int
	// one instance per override, a single IP located one when empty
	Overrides []backend.Override

	Multiplex      bool
	MultiplexDebug bool
	Remap          bool

	SSDP bool
	// decoder binary looked up on PATH, transcoding is disabled without it
	Decoder string
	Direct  bool

	Days   int
	Device tuner.DeviceInfo

	PProf   bool
	Metrics http.Handler
}

func (c Config) withDefaultValues() Config {
	if c.Port == 0 {
		c.Port = 6077
	}
	if c.TunerCount <= 0 {
		c.TunerCount = 3
	}
	if len(c.Overrides) == 0 {
		c.Overrides = []backend.Override{{}}
	}
	if c.Decoder == "" {
		c.Decoder = "ffmpeg"
	}
	if c.Days <= 0 {
		c.Days = 7
	}
	return c
}

// Streamer is the stream proxy shared by all instances.
type Streamer interface {
	tuner.Streamer
	SetDirect(direct bool)
}

type Server interface {
	Handle(h http.Handler)
	Start() error
	Shutdown() error
}

type Announcer interface {
	Start() error
	Shutdown()
}

// DeviceReport is one row of the startup report.
type DeviceReport struct {
	UID       string
	City      string
	ZipCode   string
	Region    string
	Timezone  string
	URL       string
	Listening bool
}
