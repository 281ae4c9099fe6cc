package discovery

import (
	"sort"
	"sync"
)

// Descriptor is what a device announces about itself.
type Descriptor struct {
	UID             string
	FriendlyName    string
	BaseURL         string
	Manufacturer    string
	ModelNumber     string
	FirmwareName    string
	FirmwareVersion string
	TunerCount      int
}

func (d Descriptor) USN() string {
	return "uuid:" + d.UID + "::upnp:rootdevice"
}

func (d Descriptor) Location() string {
	return d.BaseURL + "/device.xml"
}

// Registry is the set of currently active devices. It is owned by the
// supervisor and handed to whoever needs to see the devices.
type Registry struct {
	mu          sync.RWMutex
	devices     map[string]Descriptor
	subscribers []func()
}

func NewRegistry() *Registry {
	return &Registry{
		devices: map[string]Descriptor{},
	}
}

func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	r.devices[d.UID] = d
	r.mu.Unlock()

	r.notify()
}

func (r *Registry) Unregister(uid string) {
	r.mu.Lock()
	_, ok := r.devices[uid]
	delete(r.devices, uid)
	r.mu.Unlock()

	if ok {
		r.notify()
	}
}

// Descriptors returns the active devices ordered by UID.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UID < out[j].UID
	})
	return out
}

// Subscribe registers fn to be called after every change.
func (r *Registry) Subscribe(fn func()) {
	r.mu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.mu.Unlock()
}

func (r *Registry) notify() {
	r.mu.RLock()
	subscribers := append([]func(){}, r.subscribers...)
	r.mu.RUnlock()

	for _, fn := range subscribers {
		fn()
	}
}
