package app

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/MrWong99/voxlink/internal/config"
)

// ApplyConfig hot-reloads next. Log level, voice settings and activation
// properties take effect immediately; the running capture worker picks up
// activation changes on its next frame; an activation removed or recreated
// while transmitting gets its voice-end then. Device sources whose circuit
// breaker is open are tried again. Changes to sections listed in
// [config.ConfigDiff.RestartRequired] are logged and otherwise ignored.
//
// On error the previous activation set stays in effect.
func (a *App) ApplyConfig(next *config.Config) error {
	a.mu.Lock()
	old := a.cfg
	a.mu.Unlock()

	d := config.Diff(old, next)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.SlogLevel())
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.VoiceChanged {
		a.applyVoice(d.Voice)
		slog.Info("app: voice settings changed",
			"stereo_capture", d.Voice.StereoCapture,
			"microphone_disabled", d.Voice.MicrophoneDisabled,
		)
	}

	if d.ActivationsChanged {
		if err := a.applyActivations(d, next.Activations); err != nil {
			return fmt.Errorf("app: reload activations: %w", err)
		}
	}

	for _, section := range d.RestartRequired {
		slog.Warn("app: config change requires restart", "section", section)
	}

	// An edited config is a fresh chance for sources whose breaker is open.
	if a.fallback != nil {
		a.fallback.Reset()
	}

	// Sections that need a restart keep their running values.
	applied := *next
	applied.Server.ListenAddr = old.Server.ListenAddr
	applied.Transport = old.Transport
	applied.Device = old.Device

	a.mu.Lock()
	a.cfg = &applied
	a.mu.Unlock()
	return nil
}

func (a *App) applyVoice(v config.VoiceConfig) {
	a.settings.SetStereoCapture(v.StereoCapture)
	a.settings.SetMicrophoneDisabled(v.MicrophoneDisabled)
	a.gate.SetThreshold(gateThreshold(v.NoiseGateDB))
	a.gain.SetFactor(v.Gain)
}

// applyActivations updates activations in place where possible and swaps in
// a rebuilt set when any activation was added, removed, reordered, or
// changed a property that is fixed at construction.
func (a *App) applyActivations(d config.ConfigDiff, list []config.ActivationConfig) error {
	byID := make(map[string]config.ActivationConfig, len(list))
	for _, ac := range list {
		byID[ac.ID] = ac
	}

	rebuild := d.ActivationsReordered
	recreate := make(map[uuid.UUID]bool)
	for _, ad := range d.ActivationChanges {
		switch {
		case ad.Added || ad.Removed:
			rebuild = true
			continue
		case ad.Rebuild:
			id, err := uuid.Parse(ad.ID)
			if err != nil {
				return fmt.Errorf("activation %q: %w", ad.Name, err)
			}
			recreate[id] = true
			rebuild = true
			continue
		}

		id, err := uuid.Parse(ad.ID)
		if err != nil {
			return fmt.Errorf("activation %q: %w", ad.Name, err)
		}
		act, ok := a.activations.Get(id)
		if !ok {
			rebuild = true
			continue
		}
		ac := byID[ad.ID]
		if ad.DisabledChanged {
			act.SetDisabled(ac.Disabled)
		}
		if ad.ThresholdChanged {
			act.SetThreshold(ac.ThresholdDB)
		}
		if ad.DistanceChanged {
			act.SetDistance(int16(ac.Distance))
		}
		slog.Info("app: activation updated", "activation", ac.Name)
	}

	if !rebuild {
		return nil
	}

	keep := make(map[uuid.UUID]bool, len(list))
	for _, ac := range list {
		id, err := uuid.Parse(ac.ID)
		if err != nil {
			return fmt.Errorf("activation %q: %w", ac.Name, err)
		}
		if !recreate[id] {
			keep[id] = true
		}
	}
	if err := a.rebuildActivations(list, keep); err != nil {
		return err
	}
	slog.Info("app: activations rebuilt", "count", len(list), "recreated", len(recreate))
	return nil
}
