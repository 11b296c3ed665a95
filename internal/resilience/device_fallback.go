package resilience

import (
	"sync"

	"github.com/MrWong99/voxlink/pkg/device"
)

// DeviceFallback implements [device.Opener] with failover across several
// input device sources. Each source has its own circuit breaker, so a device
// that keeps failing to open is skipped until its breaker half-opens.
type DeviceFallback struct {
	group *FallbackGroup[device.Opener]

	mu     sync.Mutex
	active string
}

var _ device.Opener = (*DeviceFallback)(nil)

// NewDeviceFallback creates a [DeviceFallback] with primary as the preferred
// source.
func NewDeviceFallback(primary device.Opener, primaryName string, cfg FallbackConfig) *DeviceFallback {
	return &DeviceFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional source.
func (f *DeviceFallback) AddFallback(name string, o device.Opener) {
	f.group.AddFallback(name, o)
}

// Open opens the first source that succeeds.
func (f *DeviceFallback) Open(cfg device.Config) (device.InputDevice, error) {
	dev, name, err := Execute(f.group, func(o device.Opener) (device.InputDevice, error) {
		return o.Open(cfg)
	})
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.active = name
	f.mu.Unlock()
	return dev, nil
}

// Active returns the name of the source that last opened successfully, or
// "" if none has.
func (f *DeviceFallback) Active() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// States reports the breaker state of every source.
func (f *DeviceFallback) States() map[string]State {
	return f.group.States()
}

// Reset closes every source's breaker so all sources are tried again on the
// next Open.
func (f *DeviceFallback) Reset() {
	f.group.Reset()
}
