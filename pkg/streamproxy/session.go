package streamproxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunerproxy/tunerproxy/pkg/station"
)

// Session streams one decoder process to one client. It is never shared.
type Session struct {
	logger       zerolog.Logger
	id           string
	station      station.Station
	sourceURL    string
	proc         Process
	bytesPerRead int
	grace        time.Duration
	onClose      func()

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func (s *Session) ID() string { return s.id }

func (s *Session) SourceURL() string { return s.sourceURL }

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Pipe copies decoder output to sink chunk by chunk until the client goes
// away, the decoder stops or ctx is cancelled. The session is closed on
// return.
func (s *Session) Pipe(ctx context.Context, sink io.Writer) (EndReason, int64, error) {
	defer s.Close()

	// cancellation must also unblock a decoder that produces no output
	stop := context.AfterFunc(ctx, func() {
		_ = s.Close()
	})
	defer stop()

	flusher, _ := sink.(http.Flusher)
	buf := make([]byte, s.bytesPerRead)
	stdout := s.proc.Stdout()

	var written int64
	for {
		n, readErr := io.ReadFull(stdout, buf)
		if n > 0 {
			if _, err := sink.Write(buf[:n]); err != nil {
				s.logger.Debug().Err(err).Msg("write to client failed")
				return EndClientDisconnect, written, nil
			}
			if flusher != nil {
				flusher.Flush()
			}

			written += int64(n)
			bytesServed.Add(float64(n))
		}

		if readErr == nil {
			continue
		}

		select {
		case <-s.closed:
			// pipe was closed by a cancellation
			return EndClientDisconnect, written, nil
		default:
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			return EndDecoderExit, written, nil
		}

		return EndDecoderError, written, readErr
	}
}

// Close terminates the decoder, giving it the grace period before it is
// killed, and releases its pipes. Safe to call any number of times.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		// mark closed first so a reader woken by the closed pipe sees it
		close(s.closed)
		s.closeErr = s.terminate()

		if s.onClose != nil {
			s.onClose()
		}
		s.logger.Info().Msg("session closed")
	})
	return s.closeErr
}

func (s *Session) terminate() error {
	select {
	case <-s.proc.Exited():
		return s.proc.Close()
	default:
	}

	if err := s.proc.Terminate(); err != nil {
		s.logger.Debug().Err(err).Msg("terminate signal failed")
	}

	select {
	case <-s.proc.Exited():
	case <-time.After(s.grace):
		s.logger.Warn().Dur("grace", s.grace).Msg("decoder did not exit in time, killing")
		if err := s.proc.Kill(); err != nil {
			s.logger.Err(err).Msg("killing decoder")
		}

		select {
		case <-s.proc.Exited():
		case <-time.After(s.grace):
			s.logger.Error().Int("pid", s.proc.Pid()).Msg("decoder still running after kill")
		}
	}

	return s.proc.Close()
}
