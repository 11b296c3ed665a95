// Package app wires the voxlink subsystems into a running client.
//
// The App owns the full lifecycle: New builds the device chain, activations,
// capture pipeline, and server connection from the config; Run keeps the
// connection alive and drives capture sessions; Shutdown tears everything
// down in order. ApplyConfig hot-reloads the parts of the config that can
// change at runtime.
//
// For testing, inject doubles via functional options (WithConnection,
// WithOpener, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxlink/internal/capture"
	"github.com/MrWong99/voxlink/internal/config"
	"github.com/MrWong99/voxlink/internal/observe"
	"github.com/MrWong99/voxlink/internal/resilience"
	"github.com/MrWong99/voxlink/pkg/activation"
	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/codec/opus"
	"github.com/MrWong99/voxlink/pkg/device"
	"github.com/MrWong99/voxlink/pkg/device/opusfile"
	"github.com/MrWong99/voxlink/pkg/transport"
	"github.com/MrWong99/voxlink/pkg/transport/discord"
)

// Connection is a voice server session the app can keep alive and capture
// through.
type Connection interface {
	transport.Connector
	capture.Connection
}

// App owns all subsystem lifetimes.
type App struct {
	registry *config.Registry
	conn     Connection
	opener   device.Opener
	fallback *resilience.DeviceFallback
	logLevel *slog.LevelVar
	metrics  *observe.Metrics

	settings    *capture.Settings
	gate        *audio.NoiseGate
	gain        *audio.Gain
	devices     *device.Manager
	activations *activation.Manager
	pipeline    *capture.Pipeline
	sessions    *SessionManager
	reconnector *transport.Reconnector

	idleBackoff time.Duration

	// mu guards cfg and keys.
	mu   sync.Mutex
	cfg  *config.Config
	keys map[uuid.UUID]*activation.Key

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithConnection injects the server connection instead of creating one from
// the transport config.
func WithConnection(c Connection) Option {
	return func(a *App) { a.conn = c }
}

// WithRegistry injects the codec and device driver registry. Default:
// [NewRegistry].
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithOpener injects the device opener instead of building the fallback
// chain from the device config.
func WithOpener(o device.Opener) Option {
	return func(a *App) { a.opener = o }
}

// WithLogLevel lets ApplyConfig adjust the given level on reload.
func WithLogLevel(l *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = l }
}

// WithMetrics sets the instruments used by the capture pipeline.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithIdleBackoff overrides the capture worker's pause while the session is
// not ready.
func WithIdleBackoff(d time.Duration) Option {
	return func(a *App) { a.idleBackoff = d }
}

// NewRegistry returns a registry with the built-in codecs and device drivers.
func NewRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterCodec("opus", opus.New)
	reg.RegisterDevice(opusfile.Driver, func(src config.DeviceSource) (device.Opener, error) {
		return opusfile.NewOpener(opusfile.Options{Path: src.Path, Loop: src.Loop}), nil
	})
	return reg
}

// New creates an App from cfg. It does not connect; see [App.Run].
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		settings: &capture.Settings{},
		keys:     make(map[uuid.UUID]*activation.Key),
	}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = NewRegistry()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Connection ────────────────────────────────────────────────────
	if a.conn == nil {
		conn, err := newConnection(cfg.Transport)
		if err != nil {
			return nil, fmt.Errorf("app: init transport: %w", err)
		}
		a.conn = conn
	}

	// ── 2. Input device chain ────────────────────────────────────────────
	if a.opener == nil {
		fb, err := newDeviceOpener(a.registry, cfg.Device, a.metrics)
		if err != nil {
			return nil, fmt.Errorf("app: init device: %w", err)
		}
		a.opener = fb
		a.fallback = fb
	}
	a.gate = audio.NewNoiseGate(gateThreshold(cfg.Voice.NoiseGateDB))
	a.gain = audio.NewGain(cfg.Voice.Gain)
	a.devices = device.NewManager(device.Config{Filters: audio.Chain{a.gate, a.gain}})
	a.applyVoice(cfg.Voice)

	// ── 3. Activations ───────────────────────────────────────────────────
	a.activations = activation.NewManager()
	if err := a.rebuildActivations(cfg.Activations, nil); err != nil {
		return nil, fmt.Errorf("app: init activations: %w", err)
	}

	// ── 4. Capture pipeline ──────────────────────────────────────────────
	p, err := capture.New(capture.Config{
		Conn:        a.conn,
		Devices:     a.devices,
		Opener:      a.opener,
		Activations: a.activations,
		Codecs:      a.registry.CreateEncoder,
		Settings:    a.settings,
		Metrics:     a.metrics,
		IdleBackoff: a.idleBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}
	a.pipeline = p

	// ── 5. Session lifecycle ─────────────────────────────────────────────
	a.sessions = NewSessionManager(p, a.conn)
	rc := cfg.Transport.Reconnect
	a.reconnector = transport.NewReconnector(transport.ReconnectorConfig{
		Connector:    a.conn,
		Name:         string(cfg.Transport.Mode),
		MaxRetries:   rc.MaxRetries,
		Backoff:      rc.Backoff,
		MaxBackoff:   rc.MaxBackoff,
		OnConnect:    a.sessions.OnConnect,
		OnDisconnect: a.sessions.OnDisconnect,
	})

	slog.Info("app: initialised",
		"transport", cfg.Transport.Mode,
		"device", cfg.Device.Driver+":"+cfg.Device.Path,
		"activations", len(cfg.Activations),
	)
	return a, nil
}

// Run connects to the voice server and keeps reconnecting until ctx is
// cancelled. Every established session starts a fresh capture worker.
func (a *App) Run(ctx context.Context) error {
	return a.reconnector.Run(ctx)
}

// Shutdown stops capture and disconnects. It respects the context deadline:
// if ctx expires while the worker is still tearing down, the context error
// is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down")
		if err := a.sessions.Stop(ctx); err != nil {
			slog.Warn("app: shutdown deadline exceeded", "err", err)
			shutdownErr = err
		}
		if err := a.conn.Disconnect(); err != nil {
			slog.Warn("app: disconnect error", "err", err)
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

// Pipeline returns the capture pipeline.
func (a *App) Pipeline() *capture.Pipeline { return a.pipeline }

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Connection returns the server connection.
func (a *App) Connection() Connection { return a.conn }

// Activations returns the activation manager.
func (a *App) Activations() *activation.Manager { return a.activations }

// Config returns the config currently in effect.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// key returns the push-to-talk key bound to the activation with id.
func (a *App) key(id uuid.UUID) (*activation.Key, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k, ok := a.keys[id]
	return k, ok
}

// ─── Construction helpers ────────────────────────────────────────────────────

func newConnection(tc config.TransportConfig) (Connection, error) {
	switch tc.Mode {
	case config.TransportUDP, "":
		return transport.NewClient(transport.ControlConfig{
			URL:              tc.ControlURL,
			Token:            tc.Token,
			HandshakeTimeout: tc.HandshakeTimeout,
		}), nil
	case config.TransportDiscord:
		return discord.New(discord.Config{
			Token:     tc.Discord.Token,
			GuildID:   tc.Discord.GuildID,
			ChannelID: tc.Discord.ChannelID,
			Bitrate:   tc.Discord.Bitrate,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transport mode %q", tc.Mode)
	}
}

// newDeviceOpener builds one opener per configured source and chains them
// behind per-source circuit breakers whose transitions are counted in m.
func newDeviceOpener(reg *config.Registry, dc config.DeviceConfig, m *observe.Metrics) (*resilience.DeviceFallback, error) {
	fc := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(source string, _, to resilience.State) {
				m.RecordBreakerTransition(context.Background(), source, to.String())
			},
		},
	}
	var fb *resilience.DeviceFallback
	for i, src := range dc.Sources() {
		op, err := reg.CreateDevice(src)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		name := src.Driver + ":" + src.Path
		if fb == nil {
			fb = resilience.NewDeviceFallback(op, name, fc)
			continue
		}
		fb.AddFallback(name, op)
	}
	return fb, nil
}

// gateThreshold maps the configured gate level to a filter threshold. Zero
// disables the gate.
func gateThreshold(db float64) float64 {
	if db == 0 {
		return math.Inf(-1)
	}
	return db
}

// activationConfig converts one config entry into an activation config.
func activationConfig(ac config.ActivationConfig, key activation.KeyState) (activation.Config, error) {
	id, err := uuid.Parse(ac.ID)
	if err != nil {
		return activation.Config{}, fmt.Errorf("activation %q: %w", ac.Name, err)
	}
	typ, err := activation.ParseType(string(ac.Type))
	if err != nil {
		return activation.Config{}, err
	}
	mode, err := activation.ParseMode(string(ac.Mode))
	if err != nil {
		return activation.Config{}, err
	}
	return activation.Config{
		ID:              id,
		Name:            ac.Name,
		Distance:        int16(ac.Distance),
		Type:            typ,
		Mode:            mode,
		ThresholdDB:     ac.ThresholdDB,
		ReleaseFrames:   ac.ReleaseFrames,
		StereoSupported: ac.Stereo,
		Transitive:      ac.Transitive,
		Disabled:        ac.Disabled,
		Key:             key,
	}, nil
}

// rebuildActivations installs the activations of list. Activations whose id
// is in keep are reused as-is; all others are created fresh. Push-to-talk
// keys survive a rebuild.
func (a *App) rebuildActivations(list []config.ActivationConfig, keep map[uuid.UUID]bool) error {
	var (
		parent *activation.Activation
		out    = make([]*activation.Activation, 0, len(list))
		keys   = make(map[uuid.UUID]*activation.Key, len(list))
	)

	a.mu.Lock()
	oldKeys := a.keys
	a.mu.Unlock()

	for _, ac := range list {
		id, err := uuid.Parse(ac.ID)
		if err != nil {
			return fmt.Errorf("activation %q: %w", ac.Name, err)
		}
		key := oldKeys[id]
		if key == nil {
			key = &activation.Key{}
		}
		keys[id] = key

		var act *activation.Activation
		if keep[id] {
			act, _ = a.activations.Get(id)
		}
		if act == nil {
			cfg, err := activationConfig(ac, key)
			if err != nil {
				return err
			}
			act = activation.New(cfg)
		}
		if ac.Parent {
			parent = act
		}
		out = append(out, act)
	}

	if err := a.activations.Replace(parent, out); err != nil {
		return err
	}
	a.mu.Lock()
	a.keys = keys
	a.mu.Unlock()
	return nil
}
