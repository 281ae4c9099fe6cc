package discovery

import (
	"errors"
	"sync"
	"time"

	"github.com/koron/go-ssdp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const rootDevice = "upnp:rootdevice"

type Config struct {
	// sent as "SERVER"
	Server string
	// sent as "maxAge" in "CACHE-CONTROL"
	MaxAge int
	// how often NOTIFY alive is repeated
	AliveInterval time.Duration
}

func (c Config) withDefaultValues() Config {
	if c.Server == "" {
		c.Server = "tunerproxy/1.0 UPnP/1.0"
	}
	if c.MaxAge == 0 {
		c.MaxAge = 1800
	}
	if c.AliveInterval == 0 {
		c.AliveInterval = 300 * time.Second
	}
	return c
}

type advertiser interface {
	Alive() error
	Bye() error
	Close() error
}

type advertiseFunc func(st, usn, location, server string, maxAge int) (advertiser, error)

func ssdpAdvertise(st, usn, location, server string, maxAge int) (advertiser, error) {
	a, err := ssdp.Advertise(st, usn, location, server, maxAge)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AnnouncerCtx answers SSDP searches and sends alive notifications for
// every device in the registry.
type AnnouncerCtx struct {
	logger    zerolog.Logger
	config    Config
	registry  *Registry
	advertise advertiseFunc

	mu          sync.Mutex
	running     bool
	advertisers map[string]advertiser
	shutdown    chan struct{}
}

func New(registry *Registry, config Config) *AnnouncerCtx {
	a := &AnnouncerCtx{
		logger:      log.With().Str("module", "discovery").Logger(),
		config:      config.withDefaultValues(),
		registry:    registry,
		advertise:   ssdpAdvertise,
		advertisers: map[string]advertiser{},
	}

	registry.Subscribe(a.refresh)
	return a
}

// Start binds the SSDP sockets. A failure leaves the announcer disabled,
// it never affects the HTTP services.
func (a *AnnouncerCtx) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return errors.New("has already started")
	}

	if err := a.sync(); err != nil {
		a.closeAll()
		return err
	}

	a.running = true
	a.shutdown = make(chan struct{})
	go a.aliveLoop(a.shutdown)

	a.logger.Info().Int("devices", len(a.advertisers)).Msg("ssdp announcer started")
	return nil
}

func (a *AnnouncerCtx) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}

	a.running = false
	close(a.shutdown)
	a.closeAll()
	a.logger.Info().Msg("ssdp announcer stopped")
}

// Advertised returns the USNs currently announced.
func (a *AnnouncerCtx) Advertised() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []string
	for _, d := range a.registry.Descriptors() {
		if _, ok := a.advertisers[d.UID]; ok {
			out = append(out, d.USN())
		}
	}
	return out
}

func (a *AnnouncerCtx) refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}

	if err := a.sync(); err != nil {
		a.logger.Warn().Err(err).Msg("ssdp refresh failed")
	}
}

// sync makes the advertisers match the registry. Lock must be held.
func (a *AnnouncerCtx) sync() error {
	wanted := map[string]Descriptor{}
	for _, d := range a.registry.Descriptors() {
		wanted[d.UID] = d
	}

	for uid, adv := range a.advertisers {
		if _, ok := wanted[uid]; ok {
			continue
		}
		a.bye(uid, adv)
		delete(a.advertisers, uid)
	}

	for uid, d := range wanted {
		if _, ok := a.advertisers[uid]; ok {
			continue
		}

		adv, err := a.advertise(rootDevice, d.USN(), d.Location(), a.config.Server, a.config.MaxAge)
		if err != nil {
			return err
		}

		a.advertisers[uid] = adv
		a.logger.Info().Str("usn", d.USN()).Str("location", d.Location()).Msg("advertising device")
	}

	return nil
}

func (a *AnnouncerCtx) closeAll() {
	for uid, adv := range a.advertisers {
		a.bye(uid, adv)
		delete(a.advertisers, uid)
	}
}

func (a *AnnouncerCtx) bye(uid string, adv advertiser) {
	if err := adv.Bye(); err != nil {
		a.logger.Debug().Err(err).Str("uid", uid).Msg("ssdp bye failed")
	}
	if err := adv.Close(); err != nil {
		a.logger.Debug().Err(err).Str("uid", uid).Msg("ssdp close failed")
	}
}

func (a *AnnouncerCtx) aliveLoop(shutdown chan struct{}) {
	ticker := time.NewTicker(a.config.AliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			a.mu.Lock()
			for uid, adv := range a.advertisers {
				if err := adv.Alive(); err != nil {
					a.logger.Warn().Err(err).Str("uid", uid).Msg("ssdp alive failed")
				}
			}
			a.mu.Unlock()
			a.logger.Debug().Msg("ssdp advertise")
		}
	}
}
