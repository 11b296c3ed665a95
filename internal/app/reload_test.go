package app_test

import (
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/MrWong99/voxlink/internal/app"
	"github.com/MrWong99/voxlink/internal/config"
)

func TestApplyConfig_LogLevelAndVoice(t *testing.T) {
	t.Parallel()

	level := new(slog.LevelVar)
	a, _, _ := newTestApp(t, testConfig(), app.WithLogLevel(level))

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Voice.MicrophoneDisabled = true
	next.Voice.StereoCapture = true
	if err := a.ApplyConfig(next); err != nil {
		t.Fatalf("ApplyConfig() error: %v", err)
	}

	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}
	s := a.Pipeline().Settings()
	if !s.MicrophoneDisabled() || !s.StereoCapture() {
		t.Errorf("settings not applied: mic_disabled=%v stereo=%v", s.MicrophoneDisabled(), s.StereoCapture())
	}
	if !a.Config().Voice.MicrophoneDisabled {
		t.Error("Config() should reflect the applied voice settings")
	}
}

func TestApplyConfig_InPlaceActivationChanges(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t, testConfig())
	prox, _ := a.Activations().Get(uuid.MustParse(idProx))

	next := testConfig()
	next.Activations[1].Disabled = true
	next.Activations[1].Distance = 64
	next.Activations[1].ThresholdDB = -20
	if err := a.ApplyConfig(next); err != nil {
		t.Fatalf("ApplyConfig() error: %v", err)
	}

	got, _ := a.Activations().Get(uuid.MustParse(idProx))
	if got != prox {
		t.Fatal("in-place change must not replace the activation")
	}
	if !got.Disabled() || got.Distance() != 64 || got.Threshold() != -20 {
		t.Errorf("proximity = disabled:%v distance:%d threshold:%v", got.Disabled(), got.Distance(), got.Threshold())
	}
}

func TestApplyConfig_Rebuild(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t, testConfig())
	acts := a.Activations()
	voice, _ := acts.Get(uuid.MustParse(idVoice))
	prox, _ := acts.Get(uuid.MustParse(idProx))
	radio, _ := acts.Get(uuid.MustParse(idRadio))

	next := testConfig()
	// Mode is fixed at construction: radio is recreated.
	next.Activations[2].Mode = config.ModeAlways
	// Added activation forces a new list.
	next.Activations = append(next.Activations, config.ActivationConfig{
		ID: "9b2c6f0e-31d4-4a55-8f0c-6b1f2f6a0004", Name: "whisper",
		Type: config.ActivationInherit, Mode: config.ModeVoice, Distance: 2,
	})
	if err := a.ApplyConfig(next); err != nil {
		t.Fatalf("ApplyConfig() error: %v", err)
	}

	list := acts.Activations()
	if len(list) != 4 {
		t.Fatalf("activations = %d, want 4", len(list))
	}
	if list[0] != voice || list[1] != prox {
		t.Error("unchanged activations should be reused")
	}
	if list[2] == radio {
		t.Error("radio should be recreated after a mode change")
	}
	if list[2].Mode().String() != "always" {
		t.Errorf("radio mode = %s, want always", list[2].Mode())
	}
	if list[3].Name() != "whisper" {
		t.Errorf("new activation = %s, want whisper", list[3].Name())
	}
	if acts.Parent() != voice {
		t.Error("parent should survive the rebuild")
	}
}

func TestApplyConfig_RemoveAndReorder(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t, testConfig())

	next := testConfig()
	next.Activations = []config.ActivationConfig{next.Activations[2], next.Activations[0]}
	if err := a.ApplyConfig(next); err != nil {
		t.Fatalf("ApplyConfig() error: %v", err)
	}

	list := a.Activations().Activations()
	if len(list) != 2 || list[0].Name() != "radio" || list[1].Name() != "voice" {
		t.Errorf("unexpected activation list: %v", list)
	}
	if _, ok := a.Activations().Get(uuid.MustParse(idProx)); ok {
		t.Error("removed activation is still registered")
	}
}

func TestApplyConfig_KeySurvivesRebuild(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t, testConfig())
	if rec := do(t, a, "PUT", "/activations/"+idRadio+"/key", `{"pressed": true}`); rec.Code != 200 {
		t.Fatalf("press status = %d", rec.Code)
	}

	next := testConfig()
	next.Activations[2].Transitive = true
	if err := a.ApplyConfig(next); err != nil {
		t.Fatalf("ApplyConfig() error: %v", err)
	}
	if got := listActivations(t, a)[2]; !got.KeyPressed {
		t.Error("push-to-talk key state lost on rebuild")
	}
}

func TestApplyConfig_RestartRequiredKeepsRunningValues(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t, testConfig())

	next := testConfig()
	next.Transport.ControlURL = "ws://elsewhere/control"
	next.Server.ListenAddr = ":9999"
	if err := a.ApplyConfig(next); err != nil {
		t.Fatalf("ApplyConfig() error: %v", err)
	}
	cfg := a.Config()
	if cfg.Transport.ControlURL != "ws://localhost/control" {
		t.Errorf("control_url = %q, want the running value", cfg.Transport.ControlURL)
	}
	if cfg.Server.ListenAddr != ":0" {
		t.Errorf("listen_addr = %q, want the running value", cfg.Server.ListenAddr)
	}
}
