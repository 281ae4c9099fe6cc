package streamproxy

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Comcast/gots/packet"
)

var ErrDecoderSpawn = errors.New("decoder could not be started")

// StreamMode is resolved once per station.
type StreamMode int

const (
	// PassThrough redirects the client to the backend URL.
	PassThrough StreamMode = iota
	// Transcode pipes the backend stream through the decoder process.
	Transcode
)

func (m StreamMode) String() string {
	if m == Transcode {
		return "transcode"
	}
	return "passthrough"
}

// Process is a running decoder owned by exactly one session.
type Process interface {
	Pid() int
	Stdout() io.Reader
	// Terminate asks the process to exit.
	Terminate() error
	Kill() error
	// Exited is closed once the process has been reaped.
	Exited() <-chan struct{}
	// Close releases the pipes held by the parent.
	Close() error
}

type Launcher interface {
	Spawn(ctx context.Context, url string) (Process, error)
}

// EndReason tells why a session stopped streaming.
type EndReason int

const (
	EndDecoderExit EndReason = iota
	EndClientDisconnect
	EndDecoderError
)

func (r EndReason) String() string {
	switch r {
	case EndClientDisconnect:
		return "client disconnected"
	case EndDecoderError:
		return "decoder error"
	default:
		return "decoder exited"
	}
}

const DefaultBytesPerRead = 1152000

type Config struct {
	// size of a single read from the decoder, rounded down to whole TS packets
	BytesPerRead int
	// time between the terminate signal and the forced kill
	Grace time.Duration
	// redirect every station instead of decoding
	Direct bool
	// content type of transcoded responses
	ContentType string
}

func (c Config) withDefaultValues() Config {
	if c.BytesPerRead <= 0 {
		c.BytesPerRead = DefaultBytesPerRead
	}
	c.BytesPerRead = alignToPackets(c.BytesPerRead)

	if c.Grace <= 0 {
		c.Grace = 5 * time.Second
	}

	if c.ContentType == "" {
		c.ContentType = `video/mpeg; codecs="avc1.4D401E"`
	}

	return c
}

func alignToPackets(n int) int {
	if n < packet.PacketSize {
		return packet.PacketSize
	}
	return n - n%packet.PacketSize
}
