// Package capture runs the microphone side of a voice session.
//
// A [Pipeline] owns one background worker that reads frames from the current
// input device, lets [Listener]s veto or end each frame, classifies it through
// the parent activation and the ordered secondary activations, encodes it at
// most once per output format, encrypts it, and hands the result to the
// connection's voice and control channels.
//
// Encoders and the cipher live behind atomic handles so configuration code
// can swap them while the worker runs. Everything else the worker touches
// (the device read loop, the per-iteration encode cache, the sequence
// counter) is owned by the worker alone.
//
// Typical lifecycle:
//
//	p, _ := capture.New(capture.Config{Conn: client, Codecs: opus.New, ...})
//	_ = p.Initialize(ctx, info)
//	p.Start(ctx)
//	...
//	p.Stop()
//	p.Wait()
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxlink/internal/observe"
	"github.com/MrWong99/voxlink/pkg/activation"
	"github.com/MrWong99/voxlink/pkg/codec"
	"github.com/MrWong99/voxlink/pkg/device"
	"github.com/MrWong99/voxlink/pkg/encryption"
	"github.com/MrWong99/voxlink/pkg/proto"
	"github.com/MrWong99/voxlink/pkg/transport"
)

// Default backoffs of the worker loop.
const (
	DefaultIdleBackoff      = time.Second
	DefaultEmptyReadBackoff = 5 * time.Millisecond
)

// Connection is the server session the pipeline transmits through. Each
// accessor reports false while the corresponding part is unavailable.
type Connection interface {
	// ServerInfo returns the negotiated server parameters.
	ServerInfo() (*proto.ServerInfo, bool)

	// VoiceChannel returns the unreliable channel for voice frames.
	VoiceChannel() (transport.VoiceSender, bool)

	// ControlChannel returns the reliable channel for voice-end frames.
	ControlChannel() (transport.EndSender, bool)
}

// Config holds the collaborators of a [Pipeline].
type Config struct {
	// Conn is the server connection. Required.
	Conn Connection

	// Devices tracks the current input device. Default: an empty manager.
	Devices *device.Manager

	// Opener opens input devices on demand. When nil, the pipeline only uses
	// devices installed in Devices by the caller.
	Opener device.Opener

	// Activations holds the parent and secondary activations. Default: an
	// empty manager.
	Activations *activation.Manager

	// Codecs creates encoders for the server-advertised codec. When nil and
	// the server asks for a codec, Initialize fails.
	Codecs codec.Factory

	// Settings carries the user's voice preferences. Default: zero Settings.
	Settings *Settings

	// Metrics records pipeline instruments. Default: [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// IdleBackoff is the pause while the session is not ready.
	// Default: [DefaultIdleBackoff].
	IdleBackoff time.Duration

	// EmptyReadBackoff is the pause after a read that returned no frame.
	// Default: [DefaultEmptyReadBackoff].
	EmptyReadBackoff time.Duration
}

// Pipeline is the capture driver. All exported methods are safe for
// concurrent use.
type Pipeline struct {
	conn        Connection
	devices     *device.Manager
	opener      device.Opener
	activations *activation.Manager
	codecs      codec.Factory
	settings    *Settings
	metrics     *observe.Metrics
	idle        time.Duration
	emptyRead   time.Duration

	mono       atomic.Pointer[codec.Encoder]
	stereo     atomic.Pointer[codec.Encoder]
	encryption atomic.Pointer[encryption.Encryption]

	listenerMu sync.Mutex
	listeners  atomic.Pointer[[]listenerEntry]
	nextID     uint64

	startMu sync.Mutex
	worker  atomic.Pointer[worker]

	// seq is written by the worker only.
	seq atomic.Uint64
}

// New creates a Pipeline. The worker is not started.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Conn == nil {
		return nil, errors.New("capture: connection is required")
	}
	p := &Pipeline{
		conn:        cfg.Conn,
		devices:     cfg.Devices,
		opener:      cfg.Opener,
		activations: cfg.Activations,
		codecs:      cfg.Codecs,
		settings:    cfg.Settings,
		metrics:     cfg.Metrics,
		idle:        cfg.IdleBackoff,
		emptyRead:   cfg.EmptyReadBackoff,
	}
	if p.devices == nil {
		p.devices = device.NewManager(device.Config{})
	}
	if p.activations == nil {
		p.activations = activation.NewManager()
	}
	if p.settings == nil {
		p.settings = &Settings{}
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.idle <= 0 {
		p.idle = DefaultIdleBackoff
	}
	if p.emptyRead <= 0 {
		p.emptyRead = DefaultEmptyReadBackoff
	}
	return p, nil
}

// Settings returns the voice preferences read by the worker.
func (p *Pipeline) Settings() *Settings { return p.settings }

// Devices returns the device manager.
func (p *Pipeline) Devices() *device.Manager { return p.devices }

// Activations returns the activation manager.
func (p *Pipeline) Activations() *activation.Manager { return p.activations }

// MonoEncoder returns the mono encoder, or nil when raw PCM is sent.
func (p *Pipeline) MonoEncoder() codec.Encoder { return load(&p.mono) }

// StereoEncoder returns the stereo encoder, or nil when raw PCM is sent.
func (p *Pipeline) StereoEncoder() codec.Encoder { return load(&p.stereo) }

// Encryption returns the payload cipher, or nil.
func (p *Pipeline) Encryption() encryption.Encryption { return load(&p.encryption) }

// SetEncoders installs new encoders and returns the previous ones. The
// caller owns the returned encoders. Passing nil selects raw PCM for that
// format.
func (p *Pipeline) SetEncoders(mono, stereo codec.Encoder) (prevMono, prevStereo codec.Encoder) {
	return swap(&p.mono, mono), swap(&p.stereo, stereo)
}

// SetEncryption installs the payload cipher. nil disables encryption.
func (p *Pipeline) SetEncryption(e encryption.Encryption) {
	swap(&p.encryption, e)
}

// Sequence returns the sequence number the next packet will carry.
func (p *Pipeline) Sequence() uint64 { return p.seq.Load() }

// Initialize prepares the pipeline for the session described by info. It
// opens an input device in the server's format when none is open, builds
// mono and stereo encoders for the advertised codec, and adopts the
// advertised cipher.
//
// A device that fails to open is logged and retried by the worker. Encoder
// construction failures are returned. When a stopped worker is still tearing
// down, Initialize waits for it first.
func (p *Pipeline) Initialize(ctx context.Context, info *proto.ServerInfo) (err error) {
	ctx, span := observe.StartSpan(ctx, "capture.initialize")
	defer func() { observe.EndSpan(span, err) }()

	if info == nil {
		return errors.New("capture: initialize: missing server info")
	}
	log := observe.Logger(ctx)

	// A stopped worker releases encoders and the device in its teardown.
	// Let it finish so it cannot undo the setup below.
	if w := p.worker.Load(); w != nil {
		select {
		case <-w.stopping:
			<-w.done
		default:
		}
	}

	if dev := p.devices.Input(); dev == nil || !dev.IsOpen() {
		if _, err := p.openDevice(info); err != nil {
			log.Error("capture: failed to open input device", "err", err)
		}
	}

	if err := p.createEncoders(info); err != nil {
		return err
	}

	if info.Encryption != nil {
		p.SetEncryption(info.Encryption)
	}

	codecName := "raw"
	if info.Capture.Codec != nil {
		codecName = info.Capture.Codec.Name
	}
	log.Info("capture: initialized",
		"codec", codecName,
		"sample_rate", info.Capture.SampleRate,
		"buffer_size", info.Capture.BufferSize,
		"encrypted", info.Encryption != nil,
	)
	return nil
}

// createEncoders replaces both encoders with fresh ones for info's codec. It
// does nothing when info advertises no codec.
func (p *Pipeline) createEncoders(info *proto.ServerInfo) error {
	monoCfg, ok := info.Capture.EncoderConfig(false)
	if !ok {
		return nil
	}
	if p.codecs == nil {
		return fmt.Errorf("capture: create encoder %q: %w", monoCfg.Name, codec.ErrUnknownCodec)
	}
	stereoCfg, _ := info.Capture.EncoderConfig(true)

	mono, err := p.codecs(monoCfg)
	if err != nil {
		return fmt.Errorf("capture: create mono encoder: %w", err)
	}
	stereo, err := p.codecs(stereoCfg)
	if err != nil {
		_ = mono.Close()
		return fmt.Errorf("capture: create stereo encoder: %w", err)
	}

	prevMono, prevStereo := p.SetEncoders(mono, stereo)
	closeEncoder(prevMono)
	closeEncoder(prevStereo)
	return nil
}

// openDevice opens an input device in info's capture format and installs it
// as the current device.
func (p *Pipeline) openDevice(info *proto.ServerInfo) (device.InputDevice, error) {
	if p.opener == nil {
		return nil, errors.New("capture: no device opener configured")
	}
	cfg := p.devices.Config()
	cfg.Format = info.Capture.Format(p.settings.StereoCapture())
	cfg.FrameSize = info.Capture.BufferSize
	cfg.Filters = withDownmix(cfg.Filters, cfg.Format.Channels)

	dev, err := p.opener.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("capture: open device: %w", err)
	}
	if prev := p.devices.Set(dev); prev != nil && prev != dev {
		if err := prev.Close(); err != nil {
			slog.Warn("capture: close replaced device", "device", prev.Name(), "err", err)
		}
	}
	slog.Info("capture: input device opened", "device", dev.Name(), "format", dev.Format().String())
	return dev, nil
}

func closeEncoder(enc codec.Encoder) {
	if enc == nil {
		return
	}
	if err := enc.Close(); err != nil {
		slog.Warn("capture: close encoder", "err", err)
	}
}

func load[T any](h *atomic.Pointer[T]) T {
	if v := h.Load(); v != nil {
		return *v
	}
	var zero T
	return zero
}

// swap stores v (nil-able interface value) and returns the previous value.
func swap[T comparable](h *atomic.Pointer[T], v T) T {
	var zero T
	var next *T
	if v != zero {
		next = &v
	}
	if prev := h.Swap(next); prev != nil {
		return *prev
	}
	return zero
}
