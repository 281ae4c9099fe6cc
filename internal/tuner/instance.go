package tuner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tunerproxy/tunerproxy/pkg/backend"
	"github.com/tunerproxy/tunerproxy/pkg/discovery"
	"github.com/tunerproxy/tunerproxy/pkg/station"
)

// InstanceCtx is one virtual tuner serving the lineup of a single region.
type InstanceCtx struct {
	logger   zerolog.Logger
	config   Config
	client   backend.Client
	resolver backend.Resolver
	stations LineupSource
	streamer Streamer

	// buffered to TunerCount, one slot per active stream
	tuners chan struct{}

	mu     sync.RWMutex
	state  State
	region station.Region
}

func NewInstance(config Config, client backend.Client, resolver backend.Resolver, stations LineupSource, streamer Streamer) *InstanceCtx {
	config = config.withDefaultValues()

	return &InstanceCtx{
		logger:   log.With().Str("module", "tuner").Str("uid", config.UID).Logger(),
		config:   config,
		client:   client,
		resolver: resolver,
		stations: stations,
		streamer: streamer,
		tuners:   make(chan struct{}, config.TunerCount),
		state:    Created,
	}
}

func (i *InstanceCtx) UID() string {
	return i.config.UID
}

func (i *InstanceCtx) Port() int {
	return i.config.Port
}

func (i *InstanceCtx) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

func (i *InstanceCtx) Region() station.Region {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.region
}

func (i *InstanceCtx) transition(to State) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.transitionLocked(to)
}

func (i *InstanceCtx) transitionLocked(to State) error {
	if !canTransition(i.state, to) {
		return &TransitionError{From: i.state, To: to}
	}

	i.logger.Debug().Str("from", i.state.String()).Str("to", to.String()).Msg("state change")
	i.state = to
	return nil
}

// Resolve determines the region of the instance. The instance keeps the
// ResolvingRegion state until Serve is called.
func (i *InstanceCtx) Resolve(ctx context.Context) error {
	if err := i.transition(ResolvingRegion); err != nil {
		return err
	}

	region, err := i.resolver.Resolve(ctx, i.config.Override)
	if err != nil {
		_ = i.transition(Failed)
		return fmt.Errorf("instance %s: %w", i.config.UID, err)
	}

	i.mu.Lock()
	i.region = region
	i.mu.Unlock()

	i.logger.Info().Str("region", region.String()).Msg("region resolved")
	return nil
}

func (i *InstanceCtx) Serve() error {
	return i.transition(Serving)
}

// Fail marks a serving or resolving instance as failed.
func (i *InstanceCtx) Fail(err error) {
	if terr := i.transition(Failed); terr == nil {
		i.logger.Error().Err(err).Msg("instance failed")
	}
}

// Stop moves a serving instance to Stopped. Other states are left alone.
func (i *InstanceCtx) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != Serving {
		return
	}

	_ = i.transitionLocked(Stopping)
	_ = i.transitionLocked(Stopped)
}

func (i *InstanceCtx) Descriptor() discovery.Descriptor {
	region := i.Region()
	return discovery.Descriptor{
		UID:             i.config.UID,
		FriendlyName:    region.Name,
		BaseURL:         "http://" + i.config.Host + ":" + strconv.Itoa(i.config.Port),
		Manufacturer:    i.config.Device.Manufacturer,
		ModelNumber:     i.config.Device.ModelNumber,
		FirmwareName:    i.config.Device.FirmwareName,
		FirmwareVersion: i.config.Device.FirmwareVersion,
		TunerCount:      i.config.TunerCount,
	}
}

func (i *InstanceCtx) serving() (station.Region, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.state != Serving {
		return station.Region{}, ErrNotServing
	}
	return i.region, nil
}

func (i *InstanceCtx) Lineup(ctx context.Context) (*station.Lineup, error) {
	region, err := i.serving()
	if err != nil {
		return nil, err
	}
	return i.stations.Lineup(ctx, region)
}

func (i *InstanceCtx) Guide(ctx context.Context, days int) (backend.Guide, error) {
	region, err := i.serving()
	if err != nil {
		return backend.Guide{}, err
	}
	return i.client.ProgramGuide(ctx, region, days)
}

func (i *InstanceCtx) Rescan(ctx context.Context) error {
	region, err := i.serving()
	if err != nil {
		return err
	}

	i.stations.Invalidate(region.ID)
	_, err = i.stations.Lineup(ctx, region)
	return err
}

// acquire takes a tuner slot without waiting.
func (i *InstanceCtx) acquire() (func(), error) {
	select {
	case i.tuners <- struct{}{}:
		return func() { <-i.tuners }, nil
	default:
		return nil, ErrNoTuner
	}
}

// InUse returns the number of busy tuners.
func (i *InstanceCtx) InUse() int {
	return len(i.tuners)
}

func (i *InstanceCtx) streamURL(ctx context.Context, region station.Region, st station.Station) (string, error) {
	if st.PlaybackURL != "" {
		return st.PlaybackURL, nil
	}
	return i.client.StreamURL(ctx, region, st.ID)
}

func (i *InstanceCtx) Watch(w http.ResponseWriter, r *http.Request, st station.Station) {
	region, err := i.serving()
	if err != nil {
		http.Error(w, "503 "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	release, err := i.acquire()
	if err != nil {
		i.logger.Warn().Str("channel", st.ChannelNumber).Int("tuners", i.config.TunerCount).Msg("no free tuner")
		http.Error(w, "503 "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer release()

	url, err := i.streamURL(r.Context(), region, st)
	if err != nil {
		status := http.StatusBadGateway
		if !errors.Is(err, backend.ErrUnavailable) && !errors.Is(err, backend.ErrAuth) {
			status = http.StatusInternalServerError
		}
		i.logger.Warn().Err(err).Str("station", st.String()).Msg("could not get stream url")
		http.Error(w, fmt.Sprintf("%d could not get stream url: %v", status, err), status)
		return
	}

	i.logger.Info().
		Str("station", st.String()).
		Str("city", region.Name).
		Msg("watching channel")
	i.streamer.Serve(w, r, st, url)
}
