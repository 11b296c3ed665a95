// Package config provides the configuration schema, loader, hot-reload
// watcher, and driver registry for the voxlink capture client.
//
// Configuration is read from a YAML file and then overridden by VOXLINK_*
// environment variables (see [EnvPrefix]), so secrets such as tokens never
// need to live in the file.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel converts l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TransportMode selects where captured voice is sent.
type TransportMode string

const (
	// TransportUDP talks to a voice server: websocket control channel plus
	// UDP voice datagrams.
	TransportUDP TransportMode = "udp"

	// TransportDiscord forwards voice into a Discord voice channel.
	TransportDiscord TransportMode = "discord"
)

// IsValid reports whether m is a recognised transport mode.
func (m TransportMode) IsValid() bool {
	return m == TransportUDP || m == TransportDiscord
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Transport   TransportConfig    `yaml:"transport"`
	Device      DeviceConfig       `yaml:"device"`
	Voice       VoiceConfig        `yaml:"voice"`
	Activations []ActivationConfig `yaml:"activations"`
}

// ServerConfig holds the local HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr serves /metrics, health probes, and push-to-talk control.
	// Default: ":9090".
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level" env:"LOG_LEVEL"`
}

// TransportConfig selects and configures the voice server connection.
type TransportConfig struct {
	// Mode is udp or discord. Default: udp.
	Mode TransportMode `yaml:"mode" env:"TRANSPORT_MODE"`

	// ControlURL is the websocket URL of the voice server (udp mode).
	ControlURL string `yaml:"control_url" env:"CONTROL_URL"`

	// Token is sent as a bearer token on the control channel.
	Token string `yaml:"token" env:"TOKEN"`

	// HandshakeTimeout bounds the wait for the server handshake.
	// Default: 10s.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"HANDSHAKE_TIMEOUT"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
	Discord   DiscordConfig   `yaml:"discord"`
}

// ReconnectConfig tunes the reconnect loop.
type ReconnectConfig struct {
	// MaxRetries is the number of consecutive failed attempts before giving
	// up. Default: 10.
	MaxRetries int `yaml:"max_retries"`

	// Backoff is the initial delay between attempts. Default: 1s.
	Backoff time.Duration `yaml:"backoff"`

	// MaxBackoff caps the exponential backoff. Default: 30s.
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// DiscordConfig identifies the Discord voice channel (discord mode).
type DiscordConfig struct {
	Token     string `yaml:"token" env:"DISCORD_TOKEN"`
	GuildID   string `yaml:"guild_id" env:"DISCORD_GUILD_ID"`
	ChannelID string `yaml:"channel_id" env:"DISCORD_CHANNEL_ID"`

	// Bitrate of the Opus stream. Default: 64000.
	Bitrate int `yaml:"bitrate"`
}

// DeviceSource names one input device.
type DeviceSource struct {
	// Driver selects a device driver registered in the [Registry].
	// Default: opusfile.
	Driver string `yaml:"driver"`

	// Path is the driver-specific location of the device.
	Path string `yaml:"path" env:"DEVICE_PATH"`

	// Loop restarts file-backed devices at end of input.
	Loop bool `yaml:"loop"`
}

// DeviceConfig selects the capture device. Fallbacks are tried in order when
// the primary device keeps failing to open.
type DeviceConfig struct {
	DeviceSource `yaml:",inline"`

	Fallbacks []DeviceSource `yaml:"fallbacks"`
}

// Sources returns the primary device followed by the fallbacks.
func (d DeviceConfig) Sources() []DeviceSource {
	return append([]DeviceSource{d.DeviceSource}, d.Fallbacks...)
}

// VoiceConfig holds user voice preferences. All fields hot-reload.
type VoiceConfig struct {
	// StereoCapture sends stereo to activations that support it.
	StereoCapture bool `yaml:"stereo_capture" env:"STEREO_CAPTURE"`

	// MicrophoneDisabled mutes capture and ends active transmissions.
	MicrophoneDisabled bool `yaml:"microphone_disabled" env:"MICROPHONE_DISABLED"`

	// NoiseGateDB silences frames quieter than this level in dBFS. 0 disables
	// the gate.
	NoiseGateDB float64 `yaml:"noise_gate_db"`

	// Gain multiplies samples before encoding. 0 means 1.
	Gain float64 `yaml:"gain"`
}

// ActivationType mirrors the activation types of pkg/activation.
type ActivationType string

const (
	ActivationInherit     ActivationType = "inherit"
	ActivationVoice       ActivationType = "voice"
	ActivationIndependent ActivationType = "independent"
)

// IsValid reports whether t is a recognised activation type.
func (t ActivationType) IsValid() bool {
	switch t {
	case ActivationInherit, ActivationVoice, ActivationIndependent:
		return true
	}
	return false
}

// ActivationMode mirrors the detector modes of pkg/activation.
type ActivationMode string

const (
	ModePushToTalk ActivationMode = "push_to_talk"
	ModeVoice      ActivationMode = "voice"
	ModeAlways     ActivationMode = "always"
)

// IsValid reports whether m is a recognised activation mode.
func (m ActivationMode) IsValid() bool {
	switch m {
	case ModePushToTalk, ModeVoice, ModeAlways:
		return true
	}
	return false
}

// ActivationConfig describes one activation. Order in the list is the
// evaluation order.
type ActivationConfig struct {
	// ID is the wire identifier (UUID). Required.
	ID string `yaml:"id"`

	Name string `yaml:"name"`

	// Distance is sent with every frame. Must fit in int16.
	Distance int `yaml:"distance"`

	// Type defaults to inherit.
	Type ActivationType `yaml:"type"`

	// Mode defaults to voice.
	Mode ActivationMode `yaml:"mode"`

	// ThresholdDB is the voice-mode level in [-127, 0] dBFS.
	ThresholdDB float64 `yaml:"threshold_db"`

	// ReleaseFrames keeps transmitting this many quiet frames after speech.
	ReleaseFrames int `yaml:"release_frames"`

	Stereo     bool `yaml:"stereo"`
	Transitive bool `yaml:"transitive"`
	Disabled   bool `yaml:"disabled"`

	// Parent marks the activation that classifies frames for inherit and
	// voice activations. Exactly one activation must be the parent.
	Parent bool `yaml:"parent"`
}

// ApplyDefaults fills zero values with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":9090"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Transport.Mode == "" {
		cfg.Transport.Mode = TransportUDP
	}
	if cfg.Transport.HandshakeTimeout <= 0 {
		cfg.Transport.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Transport.Reconnect.MaxRetries <= 0 {
		cfg.Transport.Reconnect.MaxRetries = 10
	}
	if cfg.Transport.Reconnect.Backoff <= 0 {
		cfg.Transport.Reconnect.Backoff = time.Second
	}
	if cfg.Transport.Reconnect.MaxBackoff <= 0 {
		cfg.Transport.Reconnect.MaxBackoff = 30 * time.Second
	}
	if cfg.Transport.Discord.Bitrate <= 0 {
		cfg.Transport.Discord.Bitrate = 64000
	}
	if cfg.Device.Driver == "" {
		cfg.Device.Driver = "opusfile"
	}
	for i := range cfg.Device.Fallbacks {
		if cfg.Device.Fallbacks[i].Driver == "" {
			cfg.Device.Fallbacks[i].Driver = cfg.Device.Driver
		}
	}
	if cfg.Voice.Gain == 0 {
		cfg.Voice.Gain = 1
	}
	for i := range cfg.Activations {
		a := &cfg.Activations[i]
		if a.Type == "" {
			a.Type = ActivationInherit
		}
		if a.Mode == "" {
			a.Mode = ModeVoice
		}
	}
}
