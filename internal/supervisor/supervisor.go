package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tunerproxy/tunerproxy/internal/server"
	"github.com/tunerproxy/tunerproxy/internal/tuner"
	"github.com/tunerproxy/tunerproxy/modules"
	"github.com/tunerproxy/tunerproxy/modules/hdhr"
	"github.com/tunerproxy/tunerproxy/pkg/backend"
	"github.com/tunerproxy/tunerproxy/pkg/discovery"
)

type device interface {
	hdhr.Device
	UID() string
	Port() int
}

type listener struct {
	device device
	module modules.Module
	server Server
}

// SupervisorCtx owns every instance, the merged device and their HTTP
// servers. Startup is all or nothing.
type SupervisorCtx struct {
	logger   zerolog.Logger
	config   Config
	client   backend.Client
	resolver backend.Resolver
	stations tuner.LineupSource
	streamer Streamer

	registry  *discovery.Registry
	announcer Announcer

	newServer func(bind string) Server
	lookPath  func(file string) (string, error)

	instances []*tuner.InstanceCtx
	multiplex *tuner.MultiplexCtx
	listeners []listener
}

func New(config *Config, client backend.Client, resolver backend.Resolver, stations tuner.LineupSource, streamer Streamer) *SupervisorCtx {
	c := config.withDefaultValues()
	if c.Host == "" {
		c.Host = advertisedHost(c.Bind)
	}

	registry := discovery.NewRegistry()

	s := &SupervisorCtx{
		logger:   log.With().Str("module", "supervisor").Logger(),
		config:   c,
		client:   client,
		resolver: resolver,
		stations: stations,
		streamer: streamer,
		registry: registry,
		lookPath: exec.LookPath,
	}

	s.newServer = func(bind string) Server {
		return server.New(&server.Config{
			Bind:    bind,
			PProf:   c.PProf,
			Metrics: c.Metrics,
		})
	}

	if c.SSDP {
		s.announcer = discovery.New(registry, discovery.Config{})
	}

	return s
}

func (s *SupervisorCtx) Registry() *discovery.Registry {
	return s.registry
}

func (s *SupervisorCtx) Instances() []*tuner.InstanceCtx {
	return s.instances
}

// instancesListen tells whether region instances get their own port. In
// pure multiplex mode only the merged device is reachable.
func (s *SupervisorCtx) instancesListen() bool {
	return !s.config.Multiplex || s.config.MultiplexDebug
}

func (s *SupervisorCtx) uid(i int) string {
	return s.config.UID + "_" + strconv.Itoa(i)
}

func (s *SupervisorCtx) multiplexPort() int {
	if s.config.MultiplexDebug {
		return s.config.Port + len(s.config.Overrides)
	}
	return s.config.Port
}

func (s *SupervisorCtx) checkDecoder() {
	if s.config.Direct {
		s.logger.Info().Msg("direct streaming, not using decoder")
		s.streamer.SetDirect(true)
		return
	}

	path, err := s.lookPath(s.config.Decoder)
	if err != nil {
		s.logger.Warn().Err(err).Str("decoder", s.config.Decoder).Msg("decoder not found, falling back to direct streaming")
		s.streamer.SetDirect(true)
		return
	}

	s.logger.Info().Str("decoder", path).Msg("using decoder")
}

// Start resolves every region before any listener is opened. Any failure
// leaves nothing running.
func (s *SupervisorCtx) Start(ctx context.Context) error {
	if s.instances != nil {
		return errors.New("has already started")
	}

	s.checkDecoder()

	instances := make([]*tuner.InstanceCtx, len(s.config.Overrides))
	for i, override := range s.config.Overrides {
		instances[i] = tuner.NewInstance(tuner.Config{
			UID:        s.uid(i),
			Host:       s.config.Host,
			Port:       s.config.Port + i,
			TunerCount: s.config.TunerCount,
			Override:   override,
			Device:     s.config.Device,
		}, s.client, s.resolver, s.stations, s.streamer)
	}

	for _, inst := range instances {
		if err := s.validate(ctx, inst); err != nil {
			return err
		}
	}

	for _, inst := range instances {
		if err := inst.Serve(); err != nil {
			return err
		}
	}
	s.instances = instances

	var devices []device
	if s.instancesListen() {
		for _, inst := range instances {
			devices = append(devices, inst)
		}
	}

	if s.config.Multiplex {
		s.multiplex = tuner.NewMultiplex(tuner.MultiplexConfig{
			UID:    s.config.UID + "_MULTI",
			Host:   s.config.Host,
			Port:   s.multiplexPort(),
			Remap:  s.config.Remap,
			Device: s.config.Device,
		}, instances)
		s.multiplex.Serve()
		devices = append(devices, s.multiplex)
	}

	if err := s.listen(devices); err != nil {
		s.stopAll()
		return err
	}

	for _, l := range s.listeners {
		s.registry.Register(l.device.Descriptor())
	}

	if s.announcer != nil {
		if err := s.announcer.Start(); err != nil {
			s.logger.Error().Err(err).Msg("ssdp discovery disabled, devices must be added manually")
			s.announcer = nil
		}
	}

	s.report()
	return nil
}

// validate resolves the region and fetches its stations once. Credentials
// and location problems abort startup, a flaky backend does not.
func (s *SupervisorCtx) validate(ctx context.Context, inst *tuner.InstanceCtx) error {
	if err := inst.Resolve(ctx); err != nil {
		return err
	}

	if _, err := s.stations.Lineup(ctx, inst.Region()); err != nil {
		if errors.Is(err, backend.ErrAuth) || errors.Is(err, backend.ErrInvalidLocation) {
			inst.Fail(err)
			return fmt.Errorf("instance %s: %w", inst.UID(), err)
		}
		s.logger.Warn().Err(err).Str("uid", inst.UID()).Msg("could not prefetch stations")
	}

	return nil
}

func (s *SupervisorCtx) listen(devices []device) error {
	for _, d := range devices {
		module := hdhr.New(d, &hdhr.Config{
			Days:     s.config.Days,
			WithCity: s.config.Multiplex,
		})

		bind := net.JoinHostPort(s.config.Bind, strconv.Itoa(d.Port()))
		srv := s.newServer(bind)
		srv.Handle(module)

		if err := srv.Start(); err != nil {
			return fmt.Errorf("device %s: %w", d.UID(), err)
		}

		s.listeners = append(s.listeners, listener{device: d, module: module, server: srv})
	}
	return nil
}

func (s *SupervisorCtx) stopAll() {
	for _, l := range s.listeners {
		s.registry.Unregister(l.device.UID())
		l.module.Shutdown()
		if err := l.server.Shutdown(); err != nil {
			s.logger.Warn().Err(err).Str("uid", l.device.UID()).Msg("server shutdown")
		}
	}
	s.listeners = nil

	if s.multiplex != nil {
		s.multiplex.Stop()
	}
	for _, inst := range s.instances {
		inst.Stop()
	}
}

func (s *SupervisorCtx) Shutdown() {
	if s.announcer != nil {
		s.announcer.Shutdown()
	}

	s.stopAll()
	s.logger.Info().Msg("all devices stopped")
}

// Report lists the devices. Instances that do not listen have no URL.
func (s *SupervisorCtx) Report() []DeviceReport {
	listening := map[string]bool{}
	for _, l := range s.listeners {
		listening[l.device.UID()] = true
	}

	var out []DeviceReport
	for _, inst := range s.instances {
		region := inst.Region()
		r := DeviceReport{
			UID:       inst.UID(),
			City:      region.Name,
			ZipCode:   region.ZipCode,
			Region:    region.ID,
			Timezone:  region.Timezone,
			Listening: listening[inst.UID()],
		}
		if r.Listening {
			r.URL = inst.Descriptor().BaseURL
		}
		out = append(out, r)
	}

	if s.multiplex != nil {
		out = append(out, DeviceReport{
			UID:       s.multiplex.UID(),
			City:      "Multiplexer",
			URL:       s.multiplex.Descriptor().BaseURL,
			Listening: listening[s.multiplex.UID()],
		})
	}

	return out
}

func (s *SupervisorCtx) report() {
	for _, r := range s.Report() {
		url := r.URL
		if !r.Listening {
			url = "(not listening)"
		}

		s.logger.Info().
			Str("city", r.City).
			Str("zipcode", r.ZipCode).
			Str("region", r.Region).
			Str("uid", r.UID).
			Str("tz", r.Timezone).
			Str("url", url).
			Msg("device")
	}
}

// advertisedHost picks the address put into device URLs. An unspecified
// bind address is replaced by the first non loopback IPv4 address.
func advertisedHost(bind string) string {
	ip := net.ParseIP(bind)
	if bind != "" && (ip == nil || !ip.IsUnspecified()) {
		return bind
	}

	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
				continue
			}
			return ipnet.IP.String()
		}
	}

	return "127.0.0.1"
}
