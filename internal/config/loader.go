package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to the env tag of every overridable field.
const EnvPrefix = "VOXLINK_"

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadWithEnvFile is [Load] with a dotenv file as a second environment
// source. Variables set in the process environment take precedence over the
// file. A missing env file is not an error.
func LoadWithEnvFile(path, envFile string) (*Config, error) {
	l, err := EnvLookuper(envFile)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadWithLookuper(f, l)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// EnvLookuper returns the process environment backed by the variables of
// envFile. An empty or missing envFile yields the process environment only.
func EnvLookuper(envFile string) (envconfig.Lookuper, error) {
	if envFile == "" {
		return envconfig.OsLookuper(), nil
	}
	vars, err := godotenv.Read(envFile)
	if errors.Is(err, os.ErrNotExist) {
		return envconfig.OsLookuper(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read env file %q: %w", envFile, err)
	}
	return envconfig.MultiLookuper(envconfig.OsLookuper(), envconfig.MapLookuper(vars)), nil
}

// LoadFromReader decodes a YAML config from r, applies overrides from the
// process environment and defaults, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	return LoadWithLookuper(r, envconfig.OsLookuper())
}

// LoadWithLookuper is [LoadFromReader] with an explicit environment source.
// Tests pass [envconfig.MapLookuper].
func LoadWithLookuper(r io.Reader, l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ApplyEnv(context.Background(), cfg, l); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overwrites fields tagged with env from l. Keys are looked up with
// [EnvPrefix]; unset variables leave the YAML value in place.
func ApplyEnv(ctx context.Context, cfg *Config, l envconfig.Lookuper) error {
	if l == nil {
		return nil
	}
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           cfg,
		Lookuper:         envconfig.PrefixLookuper(EnvPrefix, l),
		DefaultOverwrite: true,
	})
	if err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Transport
	switch cfg.Transport.Mode {
	case TransportUDP, "":
		if cfg.Transport.ControlURL == "" {
			errs = append(errs, errors.New("transport.control_url is required in udp mode"))
		}
	case TransportDiscord:
		d := cfg.Transport.Discord
		if d.Token == "" || d.GuildID == "" || d.ChannelID == "" {
			errs = append(errs, errors.New("transport.discord: token, guild_id, and channel_id are required in discord mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.mode %q is invalid; valid values: udp, discord", cfg.Transport.Mode))
	}
	if cfg.Transport.Reconnect.MaxBackoff > 0 && cfg.Transport.Reconnect.Backoff > cfg.Transport.Reconnect.MaxBackoff {
		errs = append(errs, errors.New("transport.reconnect.backoff must not exceed max_backoff"))
	}

	// Device
	for i, src := range cfg.Device.Sources() {
		if src.Path == "" {
			errs = append(errs, fmt.Errorf("device source %d: path is required", i))
		}
	}

	// Voice
	if cfg.Voice.NoiseGateDB > 0 || cfg.Voice.NoiseGateDB < -127 {
		errs = append(errs, fmt.Errorf("voice.noise_gate_db %v is out of range [-127, 0]", cfg.Voice.NoiseGateDB))
	}
	if cfg.Voice.Gain < 0 {
		errs = append(errs, fmt.Errorf("voice.gain %v must not be negative", cfg.Voice.Gain))
	}

	// Activations
	seen := make(map[uuid.UUID]int)
	parents := 0
	for i, a := range cfg.Activations {
		label := a.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		id, err := uuid.Parse(a.ID)
		switch {
		case a.ID == "":
			errs = append(errs, fmt.Errorf("activation %s: id is required", label))
		case err != nil:
			errs = append(errs, fmt.Errorf("activation %s: id %q is not a UUID: %w", label, a.ID, err))
		default:
			if prev, dup := seen[id]; dup {
				errs = append(errs, fmt.Errorf("activation %s: duplicate id %s (also activation #%d)", label, id, prev))
			}
			seen[id] = i
		}
		if a.Distance < math.MinInt16 || a.Distance > math.MaxInt16 {
			errs = append(errs, fmt.Errorf("activation %s: distance %d does not fit in int16", label, a.Distance))
		}
		if a.Type != "" && !a.Type.IsValid() {
			errs = append(errs, fmt.Errorf("activation %s: type %q is invalid; valid values: inherit, voice, independent", label, a.Type))
		}
		if a.Mode != "" && !a.Mode.IsValid() {
			errs = append(errs, fmt.Errorf("activation %s: mode %q is invalid; valid values: push_to_talk, voice, always", label, a.Mode))
		}
		if a.ThresholdDB > 0 || a.ThresholdDB < -127 {
			errs = append(errs, fmt.Errorf("activation %s: threshold_db %v is out of range [-127, 0]", label, a.ThresholdDB))
		}
		if a.ReleaseFrames < 0 {
			errs = append(errs, fmt.Errorf("activation %s: release_frames must not be negative", label))
		}
		if a.Parent {
			parents++
		}
	}
	if len(cfg.Activations) > 0 && parents != 1 {
		errs = append(errs, fmt.Errorf("activations: exactly one parent is required, found %d", parents))
	}
	if len(cfg.Activations) == 0 {
		slog.Warn("config: no activations configured; nothing will be transmitted")
	}

	return errors.Join(errs...)
}
