package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voxlink/pkg/codec"
	"github.com/MrWong99/voxlink/pkg/device"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: driver not registered")

// DeviceFactory builds a device opener for one configured source.
type DeviceFactory func(DeviceSource) (device.Opener, error)

// Registry maps codec and device driver names to their constructors. It is
// safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	codecs  map[string]codec.Factory
	devices map[string]DeviceFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		codecs:  make(map[string]codec.Factory),
		devices: make(map[string]DeviceFactory),
	}
}

// RegisterCodec registers an encoder factory under the codec name servers
// advertise. Subsequent calls with the same name overwrite the previous
// registration.
func (r *Registry) RegisterCodec(name string, factory codec.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[name] = factory
}

// RegisterDevice registers a device driver.
func (r *Registry) RegisterDevice(name string, factory DeviceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[name] = factory
}

// CreateEncoder creates an encoder for cfg.Name. Its signature matches
// [codec.Factory], so the method value can be handed to the capture
// pipeline directly.
func (r *Registry) CreateEncoder(cfg codec.Config) (codec.Encoder, error) {
	r.mu.RLock()
	f, ok := r.codecs[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", ErrNotRegistered, codec.ErrUnknownCodec, cfg.Name)
	}
	return f(cfg)
}

// CreateDevice returns an opener for src using the driver it names.
func (r *Registry) CreateDevice(src DeviceSource) (device.Opener, error) {
	r.mu.RLock()
	f, ok := r.devices[src.Driver]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: device/%q", ErrNotRegistered, src.Driver)
	}
	return f(src)
}

// Codecs returns the registered codec names in sorted order.
func (r *Registry) Codecs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.codecs))
	for n := range r.codecs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
