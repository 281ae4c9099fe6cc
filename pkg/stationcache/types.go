package stationcache

import (
	"context"
	"time"

	"github.com/tunerproxy/tunerproxy/pkg/station"
)

type Fetcher interface {
	ListStations(ctx context.Context, region station.Region) ([]station.Station, error)
}

type Config struct {
	// how long a fetched lineup is considered fresh
	TTL time.Duration
	// bound for a single backend fetch
	FetchTimeout time.Duration
	// optional cron spec for background refresh, e.g. "@every 30m"
	RefreshSpec string
}

func (c Config) withDefaultValues() Config {
	if c.TTL == 0 {
		c.TTL = time.Hour
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 15 * time.Second
	}
	return c
}
