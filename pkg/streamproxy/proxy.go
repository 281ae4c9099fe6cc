package streamproxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tunerproxy/tunerproxy/pkg/station"
)

// ProxyCtx has no limit on concurrent sessions, callers enforce their own.
type ProxyCtx struct {
	logger   zerolog.Logger
	launcher Launcher

	configMu sync.RWMutex
	config   Config

	sessions *xsync.MapOf[string, *Session]
}

func New(launcher Launcher, config Config) *ProxyCtx {
	return &ProxyCtx{
		logger:   log.With().Str("module", "streamproxy").Logger(),
		launcher: launcher,
		config:   config.withDefaultValues(),
		sessions: xsync.NewMapOf[string, *Session](),
	}
}

func (p *ProxyCtx) Config() Config {
	p.configMu.RLock()
	defer p.configMu.RUnlock()
	return p.config
}

// SetDirect switches every station to pass-through, used when no decoder
// binary is available.
func (p *ProxyCtx) SetDirect(direct bool) {
	p.configMu.Lock()
	p.config.Direct = direct
	p.configMu.Unlock()
}

// ModeFor resolves how a station is served. Transport streams are already
// consumable by clients, HLS needs the decoder.
func (p *ProxyCtx) ModeFor(st station.Station) StreamMode {
	if p.Config().Direct || st.StreamType == station.TransportStream {
		return PassThrough
	}
	return Transcode
}

// Start spawns the decoder for url. The returned session must be closed by
// the caller, Pipe does that on return.
func (p *ProxyCtx) Start(ctx context.Context, st station.Station, url string) (*Session, error) {
	config := p.Config()
	id := uuid.NewString()
	logger := p.logger.With().
		Str("session", id).
		Str("channel", st.ChannelNumber).
		Str("callsign", st.CallSign).
		Logger()

	proc, err := p.launcher.Spawn(ctx, url)
	if err != nil {
		spawnFailures.Inc()
		if !errors.Is(err, ErrDecoderSpawn) {
			err = fmt.Errorf("%w: %w", ErrDecoderSpawn, err)
		}
		logger.Warn().Err(err).Msg("decoder could not be started")
		return nil, err
	}

	session := &Session{
		logger:       logger,
		id:           id,
		station:      st,
		sourceURL:    url,
		proc:         proc,
		bytesPerRead: config.BytesPerRead,
		grace:        config.Grace,
		closed:       make(chan struct{}),
	}
	session.onClose = func() {
		p.sessions.Delete(id)
		activeSessions.Dec()
	}

	p.sessions.Store(id, session)
	activeSessions.Inc()

	logger.Info().Int("pid", proc.Pid()).Msg("session started")
	return session, nil
}

// Serve answers a stream request for st: a redirect in pass-through mode,
// otherwise a continuous MPEG-TS body until either side stops.
func (p *ProxyCtx) Serve(w http.ResponseWriter, r *http.Request, st station.Station, url string) {
	if p.ModeFor(st) == PassThrough {
		p.logger.Info().Str("channel", st.ChannelNumber).Msg("redirecting to backend stream")
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	session, err := p.Start(r.Context(), st, url)
	if err != nil {
		http.Error(w, fmt.Sprintf("500 %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", p.Config().ContentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-cache")

	reason, written, err := session.Pipe(r.Context(), w)
	session.logger.Info().
		Err(err).
		Str("reason", reason.String()).
		Int64("bytes", written).
		Msg("stream finished")
}

// Sessions returns the number of open sessions.
func (p *ProxyCtx) Sessions() int {
	return p.sessions.Size()
}

func (p *ProxyCtx) Shutdown() {
	p.sessions.Range(func(id string, s *Session) bool {
		_ = s.Close()
		return true
	})
}
