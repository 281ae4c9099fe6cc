package stationcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/tunerproxy/tunerproxy/pkg/backend"
	"github.com/tunerproxy/tunerproxy/pkg/station"
)

type entry struct {
	lineup    *station.Lineup
	fetchedAt time.Time
}

type CacheCtx struct {
	logger  zerolog.Logger
	config  Config
	fetcher Fetcher
	now     func() time.Time

	entries *xsync.MapOf[string, entry]
	flights singleflight.Group

	regionsMu sync.Mutex
	regions   map[string]station.Region
	cron      *cron.Cron
}

func New(fetcher Fetcher, config Config) *CacheCtx {
	return &CacheCtx{
		logger:  log.With().Str("module", "stationcache").Logger(),
		config:  config.withDefaultValues(),
		fetcher: fetcher,
		now:     time.Now,

		entries: xsync.NewMapOf[string, entry](),
		regions: map[string]station.Region{},
	}
}

// Lineup returns the cached lineup of a region, refetching it when stale.
// Concurrent callers for the same region share a single backend fetch.
// When a refetch fails the last good lineup is returned instead.
func (c *CacheCtx) Lineup(ctx context.Context, region station.Region) (*station.Lineup, error) {
	if e, ok := c.entries.Load(region.ID); ok && c.fresh(e) {
		cacheHits.Inc()
		return e.lineup, nil
	}

	c.watch(region)

	ch := c.flights.DoChan(region.ID, func() (interface{}, error) {
		return c.refresh(region, false)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*station.Lineup), nil
	case <-ctx.Done():
		// caller went away, the shared fetch keeps running for the others
		if e, ok := c.entries.Load(region.ID); ok {
			return e.lineup, nil
		}
		return nil, ctx.Err()
	}
}

// Invalidate marks the region as stale while keeping its lineup as fallback.
func (c *CacheCtx) Invalidate(regionID string) {
	c.entries.Compute(regionID, func(old entry, loaded bool) (entry, bool) {
		if !loaded {
			return old, true
		}
		old.fetchedAt = time.Time{}
		return old, false
	})
	c.logger.Debug().Str("region", regionID).Msg("invalidated")
}

// Refresh fetches the region regardless of freshness, through the same
// single-flight path as Lineup.
func (c *CacheCtx) Refresh(region station.Region) error {
	c.watch(region)

	_, err, _ := c.flights.Do(region.ID, func() (interface{}, error) {
		return c.refresh(region, true)
	})
	return err
}

// Start schedules background refreshes of every region seen so far,
// when a refresh spec is configured.
func (c *CacheCtx) Start() error {
	if c.config.RefreshSpec == "" {
		return nil
	}

	c.cron = cron.New()
	_, err := c.cron.AddFunc(c.config.RefreshSpec, c.refreshAll)
	if err != nil {
		return fmt.Errorf("invalid refresh spec %q: %w", c.config.RefreshSpec, err)
	}

	c.cron.Start()
	c.logger.Info().Str("spec", c.config.RefreshSpec).Msg("background refresh scheduled")
	return nil
}

func (c *CacheCtx) Shutdown() {
	if c.cron != nil {
		<-c.cron.Stop().Done()
	}
}

func (c *CacheCtx) fresh(e entry) bool {
	return c.now().Sub(e.fetchedAt) <= c.config.TTL
}

func (c *CacheCtx) watch(region station.Region) {
	c.regionsMu.Lock()
	c.regions[region.ID] = region
	c.regionsMu.Unlock()
}

func (c *CacheCtx) refreshAll() {
	c.regionsMu.Lock()
	regions := make([]station.Region, 0, len(c.regions))
	for _, r := range c.regions {
		regions = append(regions, r)
	}
	c.regionsMu.Unlock()

	for _, region := range regions {
		if err := c.Refresh(region); err != nil {
			c.logger.Warn().Err(err).Str("region", region.ID).Msg("background refresh failed")
		}
	}
}

func (c *CacheCtx) refresh(region station.Region, force bool) (*station.Lineup, error) {
	prior, hasPrior := c.entries.Load(region.ID)

	// a flight that just finished may already have refreshed it
	if !force && hasPrior && c.fresh(prior) {
		return prior.lineup, nil
	}

	logger := c.logger.With().Str("region", region.ID).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), c.config.FetchTimeout)
	defer cancel()

	start := c.now()
	stations, err := c.fetcher.ListStations(ctx, region)
	if err == nil {
		lineup := station.Build(stations)
		c.entries.Store(region.ID, entry{lineup: lineup, fetchedAt: c.now()})
		fetchesTotal.WithLabelValues("ok").Inc()

		logger.Info().
			Int("stations", lineup.Len()).
			Dur("took", c.now().Sub(start)).
			Msg("lineup fetched")
		return lineup, nil
	}

	fetchesTotal.WithLabelValues("error").Inc()

	if ctx.Err() != nil && !errors.Is(err, backend.ErrUnavailable) {
		err = fmt.Errorf("%w: %w", backend.ErrUnavailable, err)
	}

	if errors.Is(err, backend.ErrAuth) {
		logger.Error().Err(err).Msg("lineup fetch rejected")
		return nil, err
	}

	if hasPrior {
		staleTotal.Inc()
		logger.Warn().Err(err).
			Time("fetched_at", prior.fetchedAt).
			Msg("lineup fetch failed, serving previous lineup")
		return prior.lineup, nil
	}

	if !errors.Is(err, backend.ErrUnavailable) {
		err = fmt.Errorf("%w: %w", backend.ErrUnavailable, err)
	}

	logger.Error().Err(err).Msg("lineup fetch failed")
	return nil, err
}
