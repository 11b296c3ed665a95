package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/voxlink/internal/observe"
	"github.com/MrWong99/voxlink/pkg/activation"
	"github.com/MrWong99/voxlink/pkg/device"
	"github.com/MrWong99/voxlink/pkg/proto"
)

type worker struct {
	cancel   context.CancelFunc
	stopping <-chan struct{}
	done     chan struct{}
}

// Start launches the capture worker. A worker that is still running is
// stopped and waited for first, so at most one worker exists at a time. The
// worker also stops when ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	if old := p.worker.Load(); old != nil {
		old.cancel()
		<-old.done
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &worker{cancel: cancel, stopping: wctx.Done(), done: make(chan struct{})}
	p.worker.Store(w)
	go p.run(wctx, w)
}

// Stop signals the worker to exit. It does not wait; use [Pipeline.Wait].
func (p *Pipeline) Stop() {
	if w := p.worker.Load(); w != nil {
		w.cancel()
	}
}

// Wait blocks until the current worker, if any, has torn down.
func (p *Pipeline) Wait() {
	if w := p.worker.Load(); w != nil {
		<-w.done
	}
}

// IsActive reports whether a worker is running.
func (p *Pipeline) IsActive() bool {
	return p.worker.Load() != nil
}

func (p *Pipeline) run(ctx context.Context, w *worker) {
	p.metrics.ActiveWorkers.Add(ctx, 1)
	slog.Info("capture: worker started")

	defer func() {
		w.cancel()
		p.teardown()
		p.metrics.ActiveWorkers.Add(context.Background(), -1)
		p.worker.CompareAndSwap(w, nil)
		close(w.done)
	}()

	for ctx.Err() == nil {
		pause := p.step(ctx)
		if pause <= 0 {
			continue
		}
		t := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// iteration is the state shared by all activations for one frame.
type iteration struct {
	dev       device.InputDevice
	samples   []int16
	frameSize int
	parent    *activation.Activation
	cache     encodeCache
}

// step runs one loop iteration and returns how long to pause before the
// next one.
func (p *Pipeline) step(ctx context.Context) time.Duration {
	info, ok := p.conn.ServerInfo()
	if !ok {
		return p.idle
	}
	parent := p.activations.Parent()
	if parent == nil {
		return p.idle
	}
	dev := p.ensureDevice(info)
	if dev == nil {
		return p.idle
	}
	if !p.ensureEncoders(info) {
		return p.idle
	}

	if err := dev.Start(); err != nil {
		slog.Error("capture: failed to start input device", "device", dev.Name(), "err", err)
		p.releaseDevice(dev)
		return p.idle
	}
	samples, err := dev.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		slog.Error("capture: failed to read input device", "device", dev.Name(), "err", err)
		p.releaseDevice(dev)
		return p.idle
	}
	if len(samples) == 0 {
		p.metrics.RecordFrame(ctx, observe.FrameEmpty)
		return p.emptyRead
	}
	p.endStale(ctx, parent)

	ev := &Event{Device: dev, Samples: samples}
	p.notify(ev)
	if ev.Cancelled() {
		p.metrics.RecordFrame(ctx, observe.FrameCancelled)
		return 0
	}
	p.metrics.RecordFrame(ctx, observe.FrameCaptured)

	if ev.SendEnd() || p.settings.MicrophoneDisabled() {
		p.endAll(ctx, parent)
		return 0
	}

	it := &iteration{
		dev:       dev,
		samples:   samples,
		frameSize: info.Capture.BufferSize,
		parent:    parent,
	}
	result := parent.Process(samples)
	p.processActivation(ctx, it, parent, result)
	p.activations.Dispatch(parent, result, samples, func(a *activation.Activation, r activation.Result) {
		p.processActivation(ctx, it, a, r)
	})
	return 0
}

// endAll resets every activated activation and sends its voice-end.
func (p *Pipeline) endAll(ctx context.Context, parent *activation.Activation) {
	if parent.IsActivated() {
		parent.Reset()
		p.sendVoiceEnd(ctx, parent, parent)
	}
	for _, a := range p.activations.Activations() {
		if a == parent || !a.IsActivated() {
			continue
		}
		a.Reset()
		p.sendVoiceEnd(ctx, parent, a)
	}
}

// endStale ends the streams of activations that were removed or disabled
// while transmitting.
func (p *Pipeline) endStale(ctx context.Context, parent *activation.Activation) {
	for _, a := range p.activations.Retired() {
		if a != parent && a.IsActivated() {
			a.Reset()
			p.sendVoiceEnd(ctx, parent, a)
		}
	}
	for _, a := range p.activations.Activations() {
		if a != parent && a.Disabled() && a.IsActivated() {
			a.Reset()
			p.sendVoiceEnd(ctx, parent, a)
		}
	}
}

// ensureDevice returns the current open device, opening one in info's format
// when there is none.
func (p *Pipeline) ensureDevice(info *proto.ServerInfo) device.InputDevice {
	dev := p.devices.Input()
	if dev != nil && !dev.IsOpen() {
		p.devices.Remove(dev)
		dev = nil
	}
	if dev != nil {
		return dev
	}
	if p.opener == nil {
		return nil
	}
	dev, err := p.openDevice(info)
	if err != nil {
		slog.Warn("capture: input device unavailable", "err", err)
		return nil
	}
	return dev
}

// ensureEncoders rebuilds encoders released by a previous teardown. It
// reports false when the advertised codec cannot be created.
func (p *Pipeline) ensureEncoders(info *proto.ServerInfo) bool {
	if _, ok := info.Capture.EncoderConfig(false); !ok {
		return true
	}
	if p.MonoEncoder() != nil && p.StereoEncoder() != nil {
		return true
	}
	if err := p.createEncoders(info); err != nil {
		slog.Error("capture: failed to create encoders", "err", err)
		return false
	}
	return true
}

// releaseDevice closes dev and forgets it so the next iteration reopens.
func (p *Pipeline) releaseDevice(dev device.InputDevice) {
	if dev.IsOpen() {
		if err := dev.Close(); err != nil {
			slog.Warn("capture: close input device", "device", dev.Name(), "err", err)
		}
	}
	p.devices.Remove(dev)
}

// teardown runs once when the worker exits.
func (p *Pipeline) teardown() {
	p.seq.Store(0)

	prevMono, prevStereo := p.SetEncoders(nil, nil)
	closeEncoder(prevMono)
	closeEncoder(prevStereo)

	if dev := p.devices.Input(); dev != nil {
		p.releaseDevice(dev)
	}
	// The session is gone; nothing is left to end on the server side.
	for _, a := range p.activations.Retired() {
		a.Reset()
	}
	slog.Info("capture: worker stopped")
}
