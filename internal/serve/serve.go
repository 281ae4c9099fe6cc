package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tunerproxy/tunerproxy/internal/config"
	"github.com/tunerproxy/tunerproxy/internal/supervisor"
	"github.com/tunerproxy/tunerproxy/internal/tuner"
	"github.com/tunerproxy/tunerproxy/pkg/backend/restclient"
	"github.com/tunerproxy/tunerproxy/pkg/stationcache"
	"github.com/tunerproxy/tunerproxy/pkg/streamproxy"
)

type Config struct {
	Tuner   config.Tuner
	Stream  config.Stream
	Cache   config.Cache
	Backend config.Backend
	Server  config.Server
}

// Configs lists the sections registered on the serve command.
func (c *Config) Configs() []config.Config {
	return []config.Config{&c.Tuner, &c.Stream, &c.Cache, &c.Backend, &c.Server}
}

func NewCommand() *Main {
	return &Main{
		Config: &Config{},
	}
}

type Main struct {
	Config *Config

	logger     zerolog.Logger
	cache      *stationcache.CacheCtx
	proxy      *streamproxy.ProxyCtx
	supervisor *supervisor.SupervisorCtx
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "main").Logger()
}

func metricsHandler() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registry.MustRegister(stationcache.Collectors()...)
	registry.MustRegister(streamproxy.Collectors()...)
	return registry
}

func (main *Main) start(ctx context.Context) error {
	config := main.Config

	overrides, err := config.Tuner.Overrides()
	if err != nil {
		return err
	}

	client := restclient.New(&restclient.Config{
		BaseURL: config.Backend.URL,
		Token:   config.Backend.Token,
	})

	main.cache = stationcache.New(client, stationcache.Config{
		TTL:          config.Cache.TTL,
		FetchTimeout: config.Cache.Timeout,
		RefreshSpec:  config.Cache.Refresh,
	})

	main.proxy = streamproxy.New(
		streamproxy.NewExecLauncher(config.Stream.FFmpeg, config.Stream.FFmpegArgs),
		streamproxy.Config{
			BytesPerRead: config.Stream.BytesPerRead,
			Grace:        config.Stream.Grace,
			Direct:       config.Stream.Direct,
		},
	)

	supervisorConfig := &supervisor.Config{
		UID:            config.Tuner.UID,
		Bind:           config.Tuner.Bind,
		Port:           config.Tuner.Port,
		TunerCount:     config.Tuner.TunerCount,
		Overrides:      overrides,
		Multiplex:      config.Tuner.Multiplex,
		MultiplexDebug: config.Tuner.MultiplexDebug,
		Remap:          config.Tuner.Remap,
		SSDP:           config.Tuner.SSDP,
		Decoder:        config.Stream.FFmpeg,
		Direct:         config.Stream.Direct,
		Days:           config.Tuner.Days,
		Device: tuner.DeviceInfo{
			ModelNumber:     config.Tuner.Device.Model,
			FirmwareName:    config.Tuner.Device.Firmware,
			FirmwareVersion: config.Tuner.Device.Version,
		},
		PProf: config.Server.PProf,
	}

	if config.Server.Metrics {
		supervisorConfig.Metrics = promhttp.HandlerFor(metricsHandler(), promhttp.HandlerOpts{})
		main.logger.Info().Msg("prometheus metrics enabled at /metrics")
	}

	main.supervisor = supervisor.New(supervisorConfig, client, client, main.cache, main.proxy)
	if err := main.supervisor.Start(ctx); err != nil {
		return err
	}

	if err := main.cache.Start(); err != nil {
		main.supervisor.Shutdown()
		return err
	}

	return nil
}

func (main *Main) shutdown() {
	if main.supervisor != nil {
		main.supervisor.Shutdown()
		main.logger.Info().Msg("supervisor shutdown")
	}

	if main.proxy != nil {
		main.proxy.Shutdown()
		main.logger.Info().Msg("stream proxy shutdown")
	}

	if main.cache != nil {
		main.cache.Shutdown()
		main.logger.Info().Msg("station cache shutdown")
	}
}

func (main *Main) Run(cmd *cobra.Command, args []string) {
	main.logger.Info().Msg("starting main server")
	if err := main.start(cmd.Context()); err != nil {
		main.shutdown()
		main.logger.Fatal().Err(err).Msg("unable to start")
	}
	main.logger.Info().Msg("main ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit

	main.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	main.shutdown()
	main.logger.Info().Msg("shutdown complete")
}

// ConfigReload is called when the config file changes. Listeners and
// regions are fixed for the lifetime of the process.
func (main *Main) ConfigReload() {
	main.logger.Warn().Msg("config file changed, restart to apply it")
}
