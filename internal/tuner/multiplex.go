package tuner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tunerproxy/tunerproxy/pkg/backend"
	"github.com/tunerproxy/tunerproxy/pkg/discovery"
	"github.com/tunerproxy/tunerproxy/pkg/multiplexer"
	"github.com/tunerproxy/tunerproxy/pkg/station"
)

type MultiplexConfig struct {
	UID    string
	Host   string
	Port   int
	Remap  bool
	Device DeviceInfo
}

// MultiplexCtx presents several instances as one device. Streams are
// routed to, and counted against, the instance that owns the station.
type MultiplexCtx struct {
	logger    zerolog.Logger
	config    MultiplexConfig
	instances []*InstanceCtx

	merged atomic.Pointer[multiplexer.Merged]

	mu      sync.Mutex
	serving bool
}

func NewMultiplex(config MultiplexConfig, instances []*InstanceCtx) *MultiplexCtx {
	config.Device = config.Device.withDefaultValues()

	return &MultiplexCtx{
		logger:    log.With().Str("module", "multiplex").Str("uid", config.UID).Logger(),
		config:    config,
		instances: instances,
	}
}

func (m *MultiplexCtx) UID() string {
	return m.config.UID
}

func (m *MultiplexCtx) Port() int {
	return m.config.Port
}

func (m *MultiplexCtx) Serve() {
	m.mu.Lock()
	m.serving = true
	m.mu.Unlock()

	if m.config.Remap {
		m.logger.Warn().Msg("will remap duplicate channels")
	}
}

func (m *MultiplexCtx) Stop() {
	m.mu.Lock()
	m.serving = false
	m.mu.Unlock()
}

func (m *MultiplexCtx) isServing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serving
}

func (m *MultiplexCtx) Descriptor() discovery.Descriptor {
	tuners := 0
	for _, i := range m.instances {
		tuners += i.config.TunerCount
	}

	return discovery.Descriptor{
		UID:             m.config.UID,
		FriendlyName:    "Multiplexer",
		BaseURL:         "http://" + m.config.Host + ":" + strconv.Itoa(m.config.Port),
		Manufacturer:    m.config.Device.Manufacturer,
		ModelNumber:     m.config.Device.ModelNumber,
		FirmwareName:    m.config.Device.FirmwareName,
		FirmwareVersion: m.config.Device.FirmwareVersion,
		TunerCount:      tuners,
	}
}

// merge builds the merged lineup from the current lineup of every
// instance. Failing instances are left out unless all of them fail.
func (m *MultiplexCtx) merge(ctx context.Context) (*multiplexer.Merged, error) {
	if !m.isServing() {
		return nil, ErrNotServing
	}

	sources := make([]multiplexer.Source, len(m.instances))
	var errs []error
	for idx, inst := range m.instances {
		sources[idx].Name = inst.UID()

		lineup, err := inst.Lineup(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Str("source", inst.UID()).Msg("source lineup unavailable")
			errs = append(errs, err)
			continue
		}
		sources[idx].Lineup = lineup
	}

	if len(m.instances) > 0 && len(errs) == len(m.instances) {
		return nil, errors.Join(errs...)
	}

	merged := multiplexer.Merge(sources, m.config.Remap)
	m.merged.Store(merged)

	m.logger.Debug().
		Int("stations", merged.Lineup().Len()).
		Int("sources", len(sources)).
		Msg("lineups merged")
	return merged, nil
}

func (m *MultiplexCtx) Lineup(ctx context.Context) (*station.Lineup, error) {
	merged, err := m.merge(ctx)
	if err != nil {
		return nil, err
	}
	return merged.Lineup(), nil
}

// Guide concatenates the guides of every instance. A station id present
// in several regions keeps the first guide.
func (m *MultiplexCtx) Guide(ctx context.Context, days int) (backend.Guide, error) {
	if !m.isServing() {
		return backend.Guide{}, ErrNotServing
	}

	var guide backend.Guide
	seen := map[string]struct{}{}
	var errs []error
	for _, inst := range m.instances {
		g, err := inst.Guide(ctx, days)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, ch := range g.Channels {
			if _, ok := seen[ch.StationID]; ok {
				continue
			}
			seen[ch.StationID] = struct{}{}
			guide.Channels = append(guide.Channels, ch)
		}
	}

	if len(m.instances) > 0 && len(errs) == len(m.instances) {
		return backend.Guide{}, errors.Join(errs...)
	}
	return guide, nil
}

func (m *MultiplexCtx) Rescan(ctx context.Context) error {
	if !m.isServing() {
		return ErrNotServing
	}

	var errs []error
	for _, inst := range m.instances {
		if err := inst.Rescan(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiplexCtx) route(ctx context.Context, st station.Station) (multiplexer.Route, error) {
	merged := m.merged.Load()
	if merged != nil {
		if route, ok := merged.Route(st.ChannelNumber); ok && route.Station.ID == st.ID {
			return route, nil
		}
	}

	merged, err := m.merge(ctx)
	if err != nil {
		return multiplexer.Route{}, err
	}

	route, ok := merged.Route(st.ChannelNumber)
	if !ok {
		return multiplexer.Route{}, fmt.Errorf("channel %s is not in the merged lineup", st.ChannelNumber)
	}
	return route, nil
}

func (m *MultiplexCtx) Watch(w http.ResponseWriter, r *http.Request, st station.Station) {
	if !m.isServing() {
		http.Error(w, "503 "+ErrNotServing.Error(), http.StatusServiceUnavailable)
		return
	}

	route, err := m.route(r.Context(), st)
	if err != nil {
		m.logger.Warn().Err(err).Str("channel", st.ChannelNumber).Msg("no route for channel")
		http.Error(w, "404 "+err.Error(), http.StatusNotFound)
		return
	}

	inst := m.instances[route.Source]
	m.logger.Debug().
		Str("channel", st.ChannelNumber).
		Str("source", inst.UID()).
		Str("original", route.Station.ChannelNumber).
		Msg("routing stream")
	inst.Watch(w, r, route.Station)
}
