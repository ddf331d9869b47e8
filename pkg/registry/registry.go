// Package registry holds the named collection of protocol clients and fans
// get/set operations out across them. Operations on different devices run
// in parallel; one device's fault never aborts the others.
package registry

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"omrongateway/pkg/protocol/g3pw"
	"omrongateway/pkg/transport"
)

// Reading is one device's decoded values plus the two latency timestamps.
type Reading map[string]interface{}

// Snapshot maps device name to its reading for one fan-out.
type Snapshot map[string]Reading

// Registry owns the device map. All mutation goes through Add/Remove; the
// fan-out paths only read it under the lock.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*g3pw.Client
}

func New() *Registry {
	return &Registry{devices: make(map[string]*g3pw.Client)}
}

// AddDevice opens a transport to address, performs the identification
// handshake and registers the client under name. The transport is closed
// again when the handshake fails.
func (r *Registry) AddDevice(name, address string, opts *transport.SerialOptions) (*g3pw.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exist := r.devices[name]; exist {
		return nil, &DeviceExistsError{Name: name}
	}

	tr, err := transport.New(address, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", address)
	}
	client, err := g3pw.Connect(tr, g3pw.DefaultUnitNo)
	if err != nil {
		_ = tr.Close()
		return nil, errors.Wrapf(err, "identify %s", address)
	}

	r.devices[name] = client
	klog.V(2).InfoS("Registered device", "name", name, "address", address, "model", client.Model())
	return client, nil
}

// AddClient registers an already connected client, used by discovery and
// by tests.
func (r *Registry) AddClient(name string, client *g3pw.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exist := r.devices[name]; exist {
		return &DeviceExistsError{Name: name}
	}
	r.devices[name] = client
	return nil
}

// RemoveDevice unregisters each named device and closes its transport.
func (r *Registry) RemoveDevice(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errs := make([]error, 0)
	for _, name := range names {
		client, exist := r.devices[name]
		if !exist {
			errs = append(errs, &DeviceNotFoundError{Name: name})
			continue
		}
		if err := client.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "close %s", name))
		}
		delete(r.devices, name)
		klog.V(2).InfoS("Unregistered device", "name", name)
	}
	return utilerrors.NewAggregate(errs)
}

// Names returns the registered device names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sets.List(sets.KeySet(r.devices))
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// target resolves ids to the clients to fan out over; empty ids means all.
func (r *Registry) target(ids []string) (map[string]*g3pw.Client, []error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(ids) == 0 {
		clients := make(map[string]*g3pw.Client, len(r.devices))
		for name, client := range r.devices {
			clients[name] = client
		}
		return clients, nil
	}

	clients := make(map[string]*g3pw.Client, len(ids))
	errs := make([]error, 0)
	for _, id := range ids {
		if client, exist := r.devices[id]; exist {
			clients[id] = client
		} else {
			errs = append(errs, &DeviceNotFoundError{Name: id})
		}
	}
	return clients, errs
}

// Get reads the named variables from every targeted device concurrently.
// Empty names reads the standard monitor set. Each reading carries the
// request-sent and response-received instants. Partial snapshots are
// returned alongside the aggregated per-device errors.
func (r *Registry) Get(names []string, ids ...string) (Snapshot, error) {
	return r.fanOut(ids, func(client *g3pw.Client) (map[string]interface{}, error) {
		return client.Get(names, false)
	})
}

// Monitors reads the six standard monitor fields from every targeted
// device.
func (r *Registry) Monitors(ids ...string) (Snapshot, error) {
	return r.fanOut(ids, func(client *g3pw.Client) (map[string]interface{}, error) {
		return client.Monitors()
	})
}

func (r *Registry) fanOut(ids []string, op func(*g3pw.Client) (map[string]interface{}, error)) (Snapshot, error) {
	clients, errs := r.target(ids)

	var wg sync.WaitGroup
	var mu sync.Mutex
	snapshot := make(Snapshot, len(clients))
	for name, client := range clients {
		wg.Add(1)
		go func(name string, client *g3pw.Client) {
			defer wg.Done()
			sent := time.Now()
			values, err := op(client)
			received := time.Now()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				klog.V(2).InfoS("Failed to read device", "name", name, "err", err)
				errs = append(errs, errors.Wrapf(err, "device %s", name))
				return
			}
			reading := make(Reading, len(values)+2)
			for k, v := range values {
				reading[k] = v
			}
			reading[RequestSentField] = sent
			reading[ResponseReceivedField] = received
			snapshot[name] = reading
		}(name, client)
	}
	wg.Wait()

	return snapshot, utilerrors.NewAggregate(errs)
}

// Set delivers each device's command map concurrently. Commands for
// unregistered devices fail without affecting the others.
func (r *Registry) Set(commands map[string]map[string]interface{}) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	clients, errs := r.target(names)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, client := range clients {
		wg.Add(1)
		go func(name string, client *g3pw.Client) {
			defer wg.Done()
			if err := client.Set(commands[name]); err != nil {
				mu.Lock()
				errs = append(errs, errors.Wrapf(err, "device %s", name))
				mu.Unlock()
			}
		}(name, client)
	}
	wg.Wait()

	return utilerrors.NewAggregate(errs)
}

// Scan probes each candidate address with the identification handshake and
// returns address to model for the controllers that answered as G3PW
// devices. Ports that answer as something else, or not at all, are closed
// and skipped.
func Scan(addresses []string, opts *transport.SerialOptions) map[string]string {
	found := make(map[string]string)
	for _, address := range addresses {
		tr, err := transport.New(address, opts)
		if err != nil {
			klog.V(4).InfoS("Skipping address", "address", address, "err", err)
			continue
		}
		client, err := g3pw.Connect(tr, g3pw.DefaultUnitNo)
		if err != nil {
			klog.V(4).InfoS("No target device at address", "address", address, "err", err)
			_ = tr.Close()
			continue
		}
		found[address] = client.Model()
		_ = client.Close()
	}
	return found
}
