package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunerproxy/tunerproxy/internal/tuner"
	"github.com/tunerproxy/tunerproxy/pkg/backend"
	"github.com/tunerproxy/tunerproxy/pkg/station"
)

type fakeResolver struct {
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, o backend.Override) (station.Region, error) {
	if f.err != nil {
		return station.Region{}, f.err
	}
	if o.ZipCode == "00000" {
		return station.Region{}, backend.ErrInvalidLocation
	}
	return station.Region{ID: "dma-" + o.ZipCode, Name: "City " + o.ZipCode, ZipCode: o.ZipCode}, nil
}

type fakeClient struct{}

func (fakeClient) ListStations(ctx context.Context, region station.Region) ([]station.Station, error) {
	return nil, nil
}

func (fakeClient) StreamURL(ctx context.Context, region station.Region, stationID string) (string, error) {
	return "http://backend/" + stationID, nil
}

func (fakeClient) ProgramGuide(ctx context.Context, region station.Region, days int) (backend.Guide, error) {
	return backend.Guide{}, nil
}

type fakeStations struct {
	err error
}

func (f *fakeStations) Lineup(ctx context.Context, region station.Region) (*station.Lineup, error) {
	if f.err != nil {
		return nil, f.err
	}
	return station.Build([]station.Station{
		{ID: region.ID + "-1", ChannelNumber: "4.1", CallSign: "ABC-" + region.ZipCode},
	}), nil
}

func (f *fakeStations) Invalidate(regionID string) {}

type fakeStreamer struct {
	direct bool
}

func (f *fakeStreamer) Serve(w http.ResponseWriter, r *http.Request, st station.Station, url string) {
	http.Redirect(w, r, url, http.StatusFound)
}

func (f *fakeStreamer) SetDirect(direct bool) {
	f.direct = direct
}

type fakeServer struct {
	bind     string
	handler  http.Handler
	failBind bool
	started  bool
	stopped  bool
}

func (f *fakeServer) Handle(h http.Handler) { f.handler = h }

func (f *fakeServer) Start() error {
	if f.failBind {
		return errors.New("address already in use")
	}
	f.started = true
	return nil
}

func (f *fakeServer) Shutdown() error {
	f.stopped = true
	return nil
}

type fakeAnnouncer struct {
	err     error
	started bool
	stopped bool
}

func (f *fakeAnnouncer) Start() error {
	f.started = true
	return f.err
}

func (f *fakeAnnouncer) Shutdown() { f.stopped = true }

type harness struct {
	sup       *SupervisorCtx
	resolver  *fakeResolver
	stations  *fakeStations
	streamer  *fakeStreamer
	announcer *fakeAnnouncer

	mu       sync.Mutex
	servers  []*fakeServer
	failBind map[string]bool
}

func newHarness(config Config) *harness {
	h := &harness{
		resolver:  &fakeResolver{},
		stations:  &fakeStations{},
		streamer:  &fakeStreamer{},
		announcer: &fakeAnnouncer{},
		failBind:  map[string]bool{},
	}

	if config.UID == "" {
		config.UID = "abc"
	}
	config.Bind = "127.0.0.1"

	h.sup = New(&config, fakeClient{}, h.resolver, h.stations, h.streamer)
	h.sup.announcer = h.announcer
	h.sup.lookPath = func(file string) (string, error) { return "/usr/bin/" + file, nil }
	h.sup.newServer = func(bind string) Server {
		h.mu.Lock()
		defer h.mu.Unlock()
		s := &fakeServer{bind: bind, failBind: h.failBind[bind]}
		h.servers = append(h.servers, s)
		return s
	}
	return h
}

func (h *harness) binds() []string {
	var out []string
	for _, s := range h.servers {
		if s.started {
			out = append(out, s.bind)
		}
	}
	return out
}

func zips(z ...string) []backend.Override {
	var out []backend.Override
	for _, zip := range z {
		out = append(out, backend.Override{ZipCode: zip})
	}
	return out
}

func TestStartSeparateInstances(t *testing.T) {
	h := newHarness(Config{Port: 6077, Overrides: zips("10001", "90001")})

	require.NoError(t, h.sup.Start(context.Background()))
	defer h.sup.Shutdown()

	assert.Equal(t, []string{"127.0.0.1:6077", "127.0.0.1:6078"}, h.binds())

	var uids []string
	for _, d := range h.sup.Registry().Descriptors() {
		uids = append(uids, d.UID)
	}
	assert.Equal(t, []string{"abc_0", "abc_1"}, uids)

	for _, inst := range h.sup.Instances() {
		assert.Equal(t, tuner.Serving, inst.State())
	}
	assert.True(t, h.announcer.started)
	assert.False(t, h.streamer.direct)

	// the mounted module answers the tuner protocol
	rec := httptest.NewRecorder()
	h.servers[1].handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lineup.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http://127.0.0.1:6078/auto/v4.1")
}

func TestStartPureMultiplex(t *testing.T) {
	h := newHarness(Config{Port: 6077, Overrides: zips("10001", "90001"), Multiplex: true})

	require.NoError(t, h.sup.Start(context.Background()))
	defer h.sup.Shutdown()

	assert.Equal(t, []string{"127.0.0.1:6077"}, h.binds())

	descriptors := h.sup.Registry().Descriptors()
	require.Len(t, descriptors, 1)
	assert.Equal(t, "abc_MULTI", descriptors[0].UID)

	report := h.sup.Report()
	require.Len(t, report, 3)
	assert.False(t, report[0].Listening)
	assert.Empty(t, report[0].URL)
	assert.Equal(t, "City 10001", report[0].City)
	assert.Equal(t, "abc_MULTI", report[2].UID)
	assert.Equal(t, "http://127.0.0.1:6077", report[2].URL)

	rec := httptest.NewRecorder()
	h.servers[0].handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lineup.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ABC-10001")
}

func TestStartMultiplexDebug(t *testing.T) {
	h := newHarness(Config{Port: 6077, Overrides: zips("10001", "90001"), Multiplex: true, MultiplexDebug: true})

	require.NoError(t, h.sup.Start(context.Background()))
	defer h.sup.Shutdown()

	assert.Equal(t, []string{"127.0.0.1:6077", "127.0.0.1:6078", "127.0.0.1:6079"}, h.binds())
	assert.Len(t, h.sup.Registry().Descriptors(), 3)
}

func TestStartAllOrNothing(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *harness)
		target error
	}{
		{
			name:   "invalid location",
			setup:  func(h *harness) { h.sup.config.Overrides = zips("10001", "00000") },
			target: backend.ErrInvalidLocation,
		},
		{
			name:   "resolver auth",
			setup:  func(h *harness) { h.resolver.err = backend.ErrAuth },
			target: backend.ErrAuth,
		},
		{
			name:   "stations auth",
			setup:  func(h *harness) { h.stations.err = fmt.Errorf("%w: 401", backend.ErrAuth) },
			target: backend.ErrAuth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(Config{Port: 6077, Overrides: zips("10001", "90001")})
			tt.setup(h)

			err := h.sup.Start(context.Background())
			assert.ErrorIs(t, err, tt.target)
			assert.Empty(t, h.servers, "no server may be created")
			assert.Empty(t, h.sup.Registry().Descriptors())
			assert.False(t, h.announcer.started)
		})
	}
}

func TestStartBackendDownIsNotFatal(t *testing.T) {
	h := newHarness(Config{Overrides: zips("10001")})
	h.stations.err = backend.ErrUnavailable

	require.NoError(t, h.sup.Start(context.Background()))
	h.sup.Shutdown()
}

func TestStartBindFailureStopsEverything(t *testing.T) {
	h := newHarness(Config{Port: 6077, Overrides: zips("10001", "90001")})
	h.failBind["127.0.0.1:6078"] = true

	err := h.sup.Start(context.Background())
	assert.ErrorContains(t, err, "abc_1")

	require.Len(t, h.servers, 2)
	assert.True(t, h.servers[0].stopped)
	assert.Empty(t, h.sup.Registry().Descriptors())
	for _, inst := range h.sup.Instances() {
		assert.Equal(t, tuner.Stopped, inst.State())
	}
}

func TestSSDPFailureIsNotFatal(t *testing.T) {
	h := newHarness(Config{Overrides: zips("10001")})
	h.announcer.err = errors.New("address already in use")

	require.NoError(t, h.sup.Start(context.Background()))
	assert.Len(t, h.binds(), 1)

	h.sup.Shutdown()
	assert.False(t, h.announcer.stopped)
}

func TestDecoderFallback(t *testing.T) {
	h := newHarness(Config{Overrides: zips("10001")})
	h.sup.lookPath = func(file string) (string, error) { return "", errors.New("not found") }

	require.NoError(t, h.sup.Start(context.Background()))
	defer h.sup.Shutdown()

	assert.True(t, h.streamer.direct)
}

func TestShutdown(t *testing.T) {
	h := newHarness(Config{Overrides: zips("10001"), Multiplex: true, MultiplexDebug: true})

	require.NoError(t, h.sup.Start(context.Background()))
	h.sup.Shutdown()

	for _, s := range h.servers {
		assert.True(t, s.stopped)
	}
	assert.True(t, h.announcer.stopped)
	assert.Empty(t, h.sup.Registry().Descriptors())
	assert.Equal(t, tuner.Stopped, h.sup.Instances()[0].State())
}

func TestAdvertisedHost(t *testing.T) {
	assert.Equal(t, "192.168.1.5", advertisedHost("192.168.1.5"))
	assert.Equal(t, "myhost", advertisedHost("myhost"))
	assert.NotEqual(t, "0.0.0.0", advertisedHost("0.0.0.0"))
	assert.NotEmpty(t, advertisedHost(""))
}
