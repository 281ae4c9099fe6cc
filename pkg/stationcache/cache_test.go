package stationcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunerproxy/tunerproxy/pkg/backend"
	"github.com/tunerproxy/tunerproxy/pkg/station"
)

type fakeFetcher struct {
	calls atomic.Int32

	mu       sync.Mutex
	stations []station.Station
	err      error
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeFetcher) ListStations(ctx context.Context, region station.Region) ([]station.Station, error) {
	f.calls.Add(1)

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stations, f.err
}

func (f *fakeFetcher) set(stations []station.Station, err error) {
	f.mu.Lock()
	f.stations, f.err = stations, err
	f.mu.Unlock()
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var regionR = station.Region{ID: "501", Name: "New York"}

func newTestCache(f *fakeFetcher, config Config) (*CacheCtx, *clock) {
	clk := &clock{now: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(f, config)
	c.now = clk.Now
	return c, clk
}

func TestLineupServedFromCacheWhileFresh(t *testing.T) {
	f := &fakeFetcher{stations: []station.Station{{ChannelNumber: "4.1", CallSign: "ABC"}}}
	c, clk := newTestCache(f, Config{TTL: time.Minute})

	for i := 0; i < 3; i++ {
		lineup, err := c.Lineup(context.Background(), regionR)
		require.NoError(t, err)
		assert.Equal(t, 1, lineup.Len())
		clk.Add(10 * time.Second)
	}

	assert.EqualValues(t, 1, f.calls.Load())

	clk.Add(time.Minute)
	_, err := c.Lineup(context.Background(), regionR)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestLineupSingleFlight(t *testing.T) {
	f := &fakeFetcher{
		stations: []station.Station{{ChannelNumber: "4.1", CallSign: "ABC"}},
		block:    make(chan struct{}),
		started:  make(chan struct{}, 1),
	}
	c, _ := newTestCache(f, Config{TTL: time.Minute, FetchTimeout: 5 * time.Second})

	var wg sync.WaitGroup
	results := make([]*station.Lineup, 2)
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Lineup(context.Background(), regionR)
		}(i)
	}

	<-f.started
	// give the second caller time to join the flight
	time.Sleep(50 * time.Millisecond)
	close(f.block)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.EqualValues(t, 1, f.calls.Load())
	assert.Same(t, results[0], results[1])
}

func TestLineupStaleFallback(t *testing.T) {
	f := &fakeFetcher{stations: []station.Station{
		{ChannelNumber: "4.1", CallSign: "ABC"},
		{ChannelNumber: "9.1", CallSign: "PBS"},
	}}
	c, clk := newTestCache(f, Config{TTL: time.Minute})

	first, err := c.Lineup(context.Background(), regionR)
	require.NoError(t, err)

	f.set([]station.Station{{ChannelNumber: "13.1", CallSign: "FOX"}}, fmt.Errorf("%w: 503", backend.ErrUnavailable))
	clk.Add(2 * time.Minute)

	second, err := c.Lineup(context.Background(), regionR)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, first.Stations(), second.Stations())
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestLineupTimeoutWithoutEntry(t *testing.T) {
	f := &fakeFetcher{block: make(chan struct{})}
	defer close(f.block)

	c, _ := newTestCache(f, Config{TTL: time.Minute, FetchTimeout: 20 * time.Millisecond})

	_, err := c.Lineup(context.Background(), regionR)
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrUnavailable), "got %v", err)
}

func TestLineupUnknownErrorIsUnavailable(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	c, _ := newTestCache(f, Config{})

	_, err := c.Lineup(context.Background(), regionR)
	assert.ErrorIs(t, err, backend.ErrUnavailable)
}

func TestLineupAuthErrorNotAbsorbed(t *testing.T) {
	f := &fakeFetcher{stations: []station.Station{{ChannelNumber: "4.1"}}}
	c, clk := newTestCache(f, Config{TTL: time.Minute})

	_, err := c.Lineup(context.Background(), regionR)
	require.NoError(t, err)

	f.set(nil, backend.ErrAuth)
	clk.Add(2 * time.Minute)

	_, err = c.Lineup(context.Background(), regionR)
	assert.ErrorIs(t, err, backend.ErrAuth)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	f := &fakeFetcher{stations: []station.Station{{ChannelNumber: "4.1"}}}
	c, _ := newTestCache(f, Config{TTL: time.Hour})

	_, err := c.Lineup(context.Background(), regionR)
	require.NoError(t, err)

	c.Invalidate(regionR.ID)
	c.Invalidate("unknown")

	_, err = c.Lineup(context.Background(), regionR)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestRefreshIgnoresFreshness(t *testing.T) {
	f := &fakeFetcher{stations: []station.Station{{ChannelNumber: "4.1"}}}
	c, _ := newTestCache(f, Config{TTL: time.Hour})

	require.NoError(t, c.Refresh(regionR))
	require.NoError(t, c.Refresh(regionR))
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	c, _ := newTestCache(&fakeFetcher{}, Config{RefreshSpec: "not a spec"})
	assert.Error(t, c.Start())

	c, _ = newTestCache(&fakeFetcher{}, Config{RefreshSpec: "@every 1h"})
	require.NoError(t, c.Start())
	c.Shutdown()
}
