// Package mock provides test doubles for the device package.
//
// Device replays queued frames and records every call. It also tracks how
// many Read calls overlap, so tests can assert that at most one capture
// worker touches a device at a time.
//
//	dev := &mock.Device{FormatValue: audio.Format{SampleRate: 48000, Channels: 1}}
//	dev.Push(frameA, frameB)
//	opener := &mock.Opener{Device: dev}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/device"
)

// ProcessFiltersCall records one ProcessFilters invocation.
type ProcessFiltersCall struct {
	// Samples is a copy of the input frame.
	Samples []int16

	// Skipped holds the names of filters the skip predicate excluded.
	Skipped []string
}

// Device is a mock implementation of [device.InputDevice].
type Device struct {
	mu sync.Mutex

	// NameValue is returned by Name.
	NameValue string

	// FormatValue is returned by Format.
	FormatValue audio.Format

	// Filters is the chain applied by ProcessFilters.
	Filters audio.Chain

	// Repeat, if non-nil, is returned by Read once the queue is empty.
	Repeat []int16

	// ReadDelay makes every Read block for the given duration or until the
	// context is done.
	ReadDelay time.Duration

	// ReadErr, StartErr, and CloseErr are returned by the matching methods.
	ReadErr  error
	StartErr error
	CloseErr error

	// OnRead, if set, is called after each frame is dequeued with the number
	// of frames read so far.
	OnRead func(n int)

	queue  [][]int16
	closed bool

	// --- Call records ---

	StartCallCount int
	ReadCallCount  int
	CloseCallCount int
	FramesRead     int

	ProcessFiltersCalls []ProcessFiltersCall

	inRead             int
	MaxConcurrentReads int
}

var _ device.InputDevice = (*Device)(nil)

// Push appends frames to the read queue. Thread-safe.
func (d *Device) Push(frames ...[]int16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, frames...)
}

// Pending returns the number of queued frames. Thread-safe.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Name implements [device.InputDevice].
func (d *Device) Name() string {
	if d.NameValue == "" {
		return "mock"
	}
	return d.NameValue
}

// Format implements [device.InputDevice].
func (d *Device) Format() audio.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.FormatValue
}

// Start implements [device.InputDevice].
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.StartCallCount++
	return d.StartErr
}

// Read implements [device.InputDevice]. It returns the next queued frame,
// then Repeat, then (nil, nil).
func (d *Device) Read(ctx context.Context) ([]int16, error) {
	d.mu.Lock()
	d.ReadCallCount++
	d.inRead++
	d.MaxConcurrentReads = max(d.MaxConcurrentReads, d.inRead)
	delay := d.ReadDelay
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	d.mu.Lock()
	d.inRead--
	if d.closed {
		d.mu.Unlock()
		return nil, device.ErrClosed
	}
	if d.ReadErr != nil {
		err := d.ReadErr
		d.mu.Unlock()
		return nil, err
	}
	var frame []int16
	switch {
	case len(d.queue) > 0:
		frame = d.queue[0]
		d.queue = d.queue[1:]
	case d.Repeat != nil:
		frame = d.Repeat
	default:
		d.mu.Unlock()
		return nil, nil
	}
	d.FramesRead++
	n := d.FramesRead
	hook := d.OnRead
	d.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return frame, nil
}

// ProcessFilters implements [device.InputDevice].
func (d *Device) ProcessFilters(samples []int16, skip func(audio.Filter) bool) []int16 {
	d.mu.Lock()
	chain := d.Filters
	call := ProcessFiltersCall{Samples: append([]int16(nil), samples...)}
	for _, f := range chain {
		if skip != nil && skip(f) {
			call.Skipped = append(call.Skipped, f.Name())
		}
	}
	d.ProcessFiltersCalls = append(d.ProcessFiltersCalls, call)
	d.mu.Unlock()
	return chain.Process(samples, skip)
}

// IsOpen implements [device.InputDevice].
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Close implements [device.InputDevice].
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCallCount++
	d.closed = true
	return d.CloseErr
}

// Stats returns the call counters. Thread-safe.
func (d *Device) Stats() (starts, reads, closes, maxConcurrent int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.StartCallCount, d.ReadCallCount, d.CloseCallCount, d.MaxConcurrentReads
}

// FilterCalls returns a copy of ProcessFiltersCalls. Thread-safe.
func (d *Device) FilterCalls() []ProcessFiltersCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ProcessFiltersCall(nil), d.ProcessFiltersCalls...)
}

// Opener is a mock implementation of [device.Opener].
type Opener struct {
	mu sync.Mutex

	// Device is returned by Open. If nil, Open returns a new Device with the
	// requested format.
	Device *Device

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// OpenCalls records the Config of every Open call.
	OpenCalls []device.Config
}

var _ device.Opener = (*Opener)(nil)

// Open implements [device.Opener].
func (o *Opener) Open(cfg device.Config) (device.InputDevice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.OpenCalls = append(o.OpenCalls, cfg)
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	if o.Device != nil {
		return o.Device, nil
	}
	return &Device{FormatValue: cfg.Format, Filters: cfg.Filters}, nil
}

// SetOpenErr replaces OpenErr. Thread-safe.
func (o *Opener) SetOpenErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.OpenErr = err
}

// SetDevice replaces Device. Thread-safe.
func (o *Opener) SetDevice(d *Device) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Device = d
}

// Calls returns the number of Open calls. Thread-safe.
func (o *Opener) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.OpenCalls)
}
