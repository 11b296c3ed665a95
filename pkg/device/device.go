// Package device defines the capture-side audio device abstraction.
//
// An [InputDevice] delivers fixed-size PCM frames. Reads return promptly: a
// device with nothing buffered yet returns (nil, nil) and the caller retries
// after a short pause. Each device carries a post-processing [audio.Chain]
// applied on demand through ProcessFilters, so the capture pipeline can run
// the raw frame through the chain once per output format.
//
// The [Manager] tracks the device currently used for capture. Drivers live in
// sub-packages and are reached through an [Opener].
package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/voxlink/pkg/audio"
)

// ErrClosed is returned by operations on a closed device.
var ErrClosed = errors.New("device: closed")

// Config describes the device a caller wants opened.
type Config struct {
	// Format is the sample rate and channel count of delivered frames.
	Format audio.Format

	// FrameSize is the number of samples per channel in one frame.
	FrameSize int

	// Filters is the initial post-processing chain.
	Filters audio.Chain
}

// FrameLen returns the number of int16 values in one frame.
func (c Config) FrameLen() int {
	return c.FrameSize * max(c.Format.Channels, 1)
}

// InputDevice is an open capture device.
type InputDevice interface {
	// Name identifies the device in logs.
	Name() string

	// Format returns the format of frames returned by Read.
	Format() audio.Format

	// Start begins capturing. Calling Start on a started device is a no-op.
	Start() error

	// Read returns the next frame, or (nil, nil) when no frame is ready yet.
	Read(ctx context.Context) ([]int16, error)

	// ProcessFilters runs samples through the device's filter chain, skipping
	// filters for which skip returns true. A nil skip applies all filters.
	ProcessFilters(samples []int16, skip func(audio.Filter) bool) []int16

	// IsOpen reports whether the device has not been closed.
	IsOpen() bool

	// Close releases the device. Calling Close more than once is safe.
	Close() error
}

// Opener opens input devices.
type Opener interface {
	Open(cfg Config) (InputDevice, error)
}

// OpenerFunc adapts a function to [Opener].
type OpenerFunc func(cfg Config) (InputDevice, error)

// Open implements [Opener].
func (f OpenerFunc) Open(cfg Config) (InputDevice, error) { return f(cfg) }

// FilterChain holds a device's filter chain. Embed it in drivers to provide
// ProcessFilters; the chain can be swapped from any goroutine.
type FilterChain struct {
	chain atomic.Pointer[audio.Chain]
}

// SetFilters replaces the chain.
func (f *FilterChain) SetFilters(c audio.Chain) {
	f.chain.Store(&c)
}

// Filters returns the current chain.
func (f *FilterChain) Filters() audio.Chain {
	if c := f.chain.Load(); c != nil {
		return *c
	}
	return nil
}

// ProcessFilters implements the InputDevice method of the same name.
func (f *FilterChain) ProcessFilters(samples []int16, skip func(audio.Filter) bool) []int16 {
	return f.Filters().Process(samples, skip)
}

// Manager tracks the device currently used for capture.
type Manager struct {
	mu     sync.Mutex
	input  InputDevice
	config Config
}

// NewManager returns a Manager that opens devices with cfg by default.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// Input returns the current input device, or nil.
func (m *Manager) Input() InputDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.input
}

// Set installs dev as the current input device and returns the previous one.
// The caller is responsible for closing the previous device.
func (m *Manager) Set(dev InputDevice) InputDevice {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.input
	m.input = dev
	return prev
}

// Remove clears the current device if it is dev. It reports whether dev was
// current.
func (m *Manager) Remove(dev InputDevice) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.input == nil || m.input != dev {
		return false
	}
	m.input = nil
	return true
}

// Config returns the default device config.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// SetConfig replaces the default device config used for future opens.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
}
