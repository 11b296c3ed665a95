package config_test

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sethvargo/go-envconfig"

	"github.com/MrWong99/voxlink/internal/config"
	"github.com/MrWong99/voxlink/pkg/codec"
	codecmock "github.com/MrWong99/voxlink/pkg/codec/mock"
	"github.com/MrWong99/voxlink/pkg/device"
	devmock "github.com/MrWong99/voxlink/pkg/device/mock"
)

const validYAML = `
server:
  listen_addr: ":9191"
  log_level: debug

transport:
  mode: udp
  control_url: "ws://voice.example.com/control"
  token: "file-token"
  handshake_timeout: 5s
  reconnect:
    max_retries: 3
    backoff: 500ms
    max_backoff: 4s

device:
  driver: opusfile
  path: "/var/lib/voxlink/mic.opus"
  loop: true
  fallbacks:
    - path: "/var/lib/voxlink/backup.opus"

voice:
  stereo_capture: true
  noise_gate_db: -60
  gain: 1.5

activations:
  - id: "9b2c6f0e-31d4-4a55-8f0c-6b1f2f6a0001"
    name: voice
    type: voice
    mode: voice
    threshold_db: -40
    release_frames: 10
    parent: true
  - id: "9b2c6f0e-31d4-4a55-8f0c-6b1f2f6a0002"
    name: proximity
    distance: 32
    stereo: true
    transitive: true
  - id: "9b2c6f0e-31d4-4a55-8f0c-6b1f2f6a0003"
    name: radio
    type: independent
    mode: push_to_talk
    distance: -1
`

func load(t *testing.T, yaml string, env map[string]string) (*config.Config, error) {
	t.Helper()
	return config.LoadWithLookuper(strings.NewReader(yaml), envconfig.MapLookuper(env))
}

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := load(t, validYAML, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9191" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Transport.HandshakeTimeout != 5*time.Second {
		t.Errorf("handshake_timeout: got %v", cfg.Transport.HandshakeTimeout)
	}
	if cfg.Transport.Reconnect.Backoff != 500*time.Millisecond {
		t.Errorf("reconnect.backoff: got %v", cfg.Transport.Reconnect.Backoff)
	}

	wantSources := []config.DeviceSource{
		{Driver: "opusfile", Path: "/var/lib/voxlink/mic.opus", Loop: true},
		{Driver: "opusfile", Path: "/var/lib/voxlink/backup.opus"},
	}
	if diff := cmp.Diff(wantSources, cfg.Device.Sources()); diff != "" {
		t.Errorf("device sources mismatch (-want +got):\n%s", diff)
	}

	if len(cfg.Activations) != 3 {
		t.Fatalf("activations: got %d, want 3", len(cfg.Activations))
	}
	prox := cfg.Activations[1]
	if prox.Type != config.ActivationInherit || prox.Mode != config.ModeVoice {
		t.Errorf("proximity defaults: got type=%q mode=%q", prox.Type, prox.Mode)
	}
	if !prox.Stereo || !prox.Transitive || prox.Distance != 32 {
		t.Errorf("proximity fields not decoded: %+v", prox)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	yaml := `
transport:
  control_url: "ws://localhost/control"
device:
  path: mic.opus
`
	cfg, err := load(t, yaml, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr default: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level default: got %q", cfg.Server.LogLevel)
	}
	if cfg.Transport.Mode != config.TransportUDP {
		t.Errorf("transport.mode default: got %q", cfg.Transport.Mode)
	}
	if cfg.Transport.Reconnect.MaxRetries != 10 {
		t.Errorf("max_retries default: got %d", cfg.Transport.Reconnect.MaxRetries)
	}
	if cfg.Device.Driver != "opusfile" {
		t.Errorf("device.driver default: got %q", cfg.Device.Driver)
	}
	if cfg.Voice.Gain != 1 {
		t.Errorf("voice.gain default: got %v", cfg.Voice.Gain)
	}
}

func TestLoadFromReader_EnvOverrides(t *testing.T) {
	t.Parallel()
	cfg, err := load(t, validYAML, map[string]string{
		"VOXLINK_TOKEN":             "env-token",
		"VOXLINK_LOG_LEVEL":         "warn",
		"VOXLINK_HANDSHAKE_TIMEOUT": "2s",
		"VOXLINK_STEREO_CAPTURE":    "false",
		"VOXLINK_DEVICE_PATH":       "/dev/shm/live.opus",
		"TOKEN":                     "unprefixed-is-ignored",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Transport.Token != "env-token" {
		t.Errorf("token: got %q, want env-token", cfg.Transport.Token)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log_level: got %q, want warn", cfg.Server.LogLevel)
	}
	if cfg.Transport.HandshakeTimeout != 2*time.Second {
		t.Errorf("handshake_timeout: got %v, want 2s", cfg.Transport.HandshakeTimeout)
	}
	if cfg.Voice.StereoCapture {
		t.Error("stereo_capture: env false did not override yaml true")
	}
	if cfg.Device.Path != "/dev/shm/live.opus" {
		t.Errorf("device.path: got %q", cfg.Device.Path)
	}
	if cfg.Device.Fallbacks[0].Path != "/var/lib/voxlink/backup.opus" {
		t.Errorf("fallback path changed: got %q", cfg.Device.Fallbacks[0].Path)
	}
	// Fields without a variable keep their file value.
	if cfg.Transport.ControlURL != "ws://voice.example.com/control" {
		t.Errorf("control_url: got %q", cfg.Transport.ControlURL)
	}
}

func TestLoadFromReader_EnvSuppliesRequiredField(t *testing.T) {
	t.Parallel()
	yaml := `
device:
  path: mic.opus
`
	cfg, err := load(t, yaml, map[string]string{"VOXLINK_CONTROL_URL": "ws://env/control"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Transport.ControlURL != "ws://env/control" {
		t.Errorf("control_url: got %q", cfg.Transport.ControlURL)
	}
}

func TestLoadFromReader_InvalidEnvValue(t *testing.T) {
	t.Parallel()
	_, err := load(t, validYAML, map[string]string{"VOXLINK_HANDSHAKE_TIMEOUT": "soon"})
	if err == nil {
		t.Fatal("expected error for unparsable duration, got nil")
	}
	if !strings.Contains(err.Error(), "environment") {
		t.Errorf("error should mention environment, got: %v", err)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := load(t, validYAML+"\nnpcs: []\n", nil)
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestRegistry_UnknownCodec(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateEncoder(codec.Config{Name: "speex"})
	if !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
	if !errors.Is(err, codec.ErrUnknownCodec) {
		t.Errorf("expected codec.ErrUnknownCodec, got %v", err)
	}
}

func TestRegistry_RegisteredCodec(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	factory := &codecmock.Factory{}
	reg.RegisterCodec("opus", factory.Create)

	var f codec.Factory = reg.CreateEncoder
	enc, err := f(codec.Config{Name: "opus", SampleRate: 48000, BufferSize: 960})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enc == nil {
		t.Fatal("expected non-nil encoder")
	}
	if got := len(factory.Created()); got != 1 {
		t.Errorf("encoders created: got %d, want 1", got)
	}
	if diff := cmp.Diff([]string{"opus"}, reg.Codecs()); diff != "" {
		t.Errorf("Codecs() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_Device(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	var gotSrc config.DeviceSource
	reg.RegisterDevice("mock", func(src config.DeviceSource) (device.Opener, error) {
		gotSrc = src
		return &devmock.Opener{}, nil
	})

	src := config.DeviceSource{Driver: "mock", Path: "mic"}
	op, err := reg.CreateDevice(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op == nil {
		t.Fatal("expected non-nil opener")
	}
	if gotSrc != src {
		t.Errorf("factory got %+v, want %+v", gotSrc, src)
	}

	_, err = reg.CreateDevice(config.DeviceSource{Driver: "alsa"})
	if !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	wantErr := errors.New("no such file")
	reg.RegisterDevice("broken", func(config.DeviceSource) (device.Opener, error) {
		return nil, wantErr
	})
	_, err := reg.CreateDevice(config.DeviceSource{Driver: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error, got %v", err)
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.in.SlogLevel(); got != tt.want {
			t.Errorf("LogLevel(%q).SlogLevel() = %v, want %v", tt.in, got, tt.want)
		}
	}
}
