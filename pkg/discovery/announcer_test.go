package discovery

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdvertiser struct {
	mu     sync.Mutex
	usn    string
	alive  int
	bye    int
	closed int
}

func (f *fakeAdvertiser) Alive() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive++
	return nil
}

func (f *fakeAdvertiser) Bye() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bye++
	return nil
}

func (f *fakeAdvertiser) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeAdvertiser) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive, f.bye, f.closed
}

type fakeNetwork struct {
	mu          sync.Mutex
	fail        error
	advertised  map[string]*fakeAdvertiser
	locations   map[string]string
	advertiseNo int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		advertised: map[string]*fakeAdvertiser{},
		locations:  map[string]string{},
	}
}

func (n *fakeNetwork) advertise(st, usn, location, server string, maxAge int) (advertiser, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.fail != nil {
		return nil, n.fail
	}

	n.advertiseNo++
	a := &fakeAdvertiser{usn: usn}
	n.advertised[usn] = a
	n.locations[usn] = location
	return a, nil
}

func newTestAnnouncer(registry *Registry, network *fakeNetwork, config Config) *AnnouncerCtx {
	a := New(registry, config)
	a.advertise = network.advertise
	return a
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	var changes int
	r.Subscribe(func() { changes++ })

	r.Register(Descriptor{UID: "b"})
	r.Register(Descriptor{UID: "a"})
	r.Unregister("c")
	r.Unregister("b")

	assert.Equal(t, 3, changes)
	assert.Equal(t, []Descriptor{{UID: "a"}}, r.Descriptors())
}

func TestDescriptorIdentity(t *testing.T) {
	d := Descriptor{UID: "abc_0", BaseURL: "http://10.0.0.2:6077"}

	assert.Equal(t, "uuid:abc_0::upnp:rootdevice", d.USN())
	assert.Equal(t, "http://10.0.0.2:6077/device.xml", d.Location())
}

func TestAnnouncerFollowsRegistry(t *testing.T) {
	registry := NewRegistry()
	network := newFakeNetwork()
	a := newTestAnnouncer(registry, network, Config{AliveInterval: time.Hour})

	registry.Register(Descriptor{UID: "one", BaseURL: "http://h:1"})
	assert.Zero(t, network.advertiseNo, "nothing is sent before start")

	require.NoError(t, a.Start())
	assert.Equal(t, []string{"uuid:one::upnp:rootdevice"}, a.Advertised())
	assert.Equal(t, "http://h:1/device.xml", network.locations["uuid:one::upnp:rootdevice"])

	registry.Register(Descriptor{UID: "two", BaseURL: "http://h:2"})
	assert.Equal(t, []string{"uuid:one::upnp:rootdevice", "uuid:two::upnp:rootdevice"}, a.Advertised())

	registry.Unregister("one")
	_, bye, closed := network.advertised["uuid:one::upnp:rootdevice"].counts()
	assert.Equal(t, 1, bye)
	assert.Equal(t, 1, closed)
	assert.Equal(t, []string{"uuid:two::upnp:rootdevice"}, a.Advertised())

	a.Shutdown()
	_, bye, _ = network.advertised["uuid:two::upnp:rootdevice"].counts()
	assert.Equal(t, 1, bye)
	assert.Empty(t, a.Advertised())

	// changes after shutdown are ignored
	registry.Register(Descriptor{UID: "three"})
	assert.Equal(t, 2, network.advertiseNo)
}

func TestAnnouncerBindFailure(t *testing.T) {
	registry := NewRegistry()
	network := newFakeNetwork()
	network.fail = errors.New("address already in use")
	a := newTestAnnouncer(registry, network, Config{})

	registry.Register(Descriptor{UID: "one"})

	err := a.Start()
	assert.EqualError(t, err, "address already in use")
	assert.Empty(t, a.Advertised())

	// a disabled announcer stays quiet
	network.fail = nil
	registry.Register(Descriptor{UID: "two"})
	assert.Zero(t, network.advertiseNo)

	a.Shutdown()
}

func TestAnnouncerSendsAlive(t *testing.T) {
	registry := NewRegistry()
	network := newFakeNetwork()
	a := newTestAnnouncer(registry, network, Config{AliveInterval: 10 * time.Millisecond})

	registry.Register(Descriptor{UID: "one"})
	require.NoError(t, a.Start())
	defer a.Shutdown()

	adv := network.advertised["uuid:one::upnp:rootdevice"]
	assert.Eventually(t, func() bool {
		alive, _, _ := adv.counts()
		return alive >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestAnnouncerDoubleStart(t *testing.T) {
	a := newTestAnnouncer(NewRegistry(), newFakeNetwork(), Config{})

	require.NoError(t, a.Start())
	defer a.Shutdown()

	assert.Error(t, a.Start())
}
