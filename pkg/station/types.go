package station

import "fmt"

type StreamType int

const (
	TransportStream StreamType = iota
	HLS
)

func (t StreamType) String() string {
	switch t {
	case TransportStream:
		return "ts"
	case HLS:
		return "hls"
	default:
		return fmt.Sprintf("StreamType(%d)", int(t))
	}
}

// Station is a single channel as offered by the backend for one region.
// Values are immutable once fetched.
type Station struct {
	ID            string
	ChannelNumber string
	CallSign      string
	Name          string
	City          string
	LogoURL       string
	// PlaybackURL can be empty, the backend then issues one per stream request.
	PlaybackURL string
	StreamType  StreamType
}

func (s Station) String() string {
	return fmt.Sprintf("%s %s (%s)", s.ChannelNumber, s.CallSign, s.ID)
}

// Region is resolved once at instance start and never changes afterwards.
type Region struct {
	ID        string
	Name      string
	Latitude  float64
	Longitude float64
	ZipCode   string
	Timezone  string
}

func (r Region) String() string {
	if r.ZipCode != "" {
		return fmt.Sprintf("%s (%s, zip %s)", r.Name, r.ID, r.ZipCode)
	}
	return fmt.Sprintf("%s (%s)", r.Name, r.ID)
}
