package config_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/voxlink/internal/config"
)

const (
	idVoice = "5d1f2a9c-6a7e-4f0b-9c1d-000000000001"
	idProx  = "5d1f2a9c-6a7e-4f0b-9c1d-000000000002"
	idRadio = "5d1f2a9c-6a7e-4f0b-9c1d-000000000003"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":9090", LogLevel: config.LogInfo},
		Transport: config.TransportConfig{Mode: config.TransportUDP, ControlURL: "ws://x"},
		Device:    config.DeviceConfig{DeviceSource: config.DeviceSource{Driver: "opusfile", Path: "mic.opus"}},
		Activations: []config.ActivationConfig{
			{ID: idVoice, Name: "voice", Type: config.ActivationVoice, Mode: config.ModeVoice, ThresholdDB: -40, Parent: true},
			{ID: idProx, Name: "proximity", Type: config.ActivationInherit, Distance: 32, Transitive: true},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, baseConfig())
	if diff := cmp.Diff(config.ConfigDiff{}, d); diff != "" {
		t.Errorf("expected empty diff (-want +got):\n%s", diff)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_VoiceChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Voice.MicrophoneDisabled = true
	new.Voice.NoiseGateDB = -50

	d := config.Diff(old, new)
	if !d.VoiceChanged {
		t.Fatal("expected VoiceChanged=true")
	}
	if diff := cmp.Diff(new.Voice, d.Voice); diff != "" {
		t.Errorf("Voice mismatch (-want +got):\n%s", diff)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("voice changes should hot-reload, got RestartRequired=%v", d.RestartRequired)
	}
}

func TestDiff_ActivationFields(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Activations[1].Distance = 8
	new.Activations[1].Disabled = true
	new.Activations[0].ThresholdDB = -30

	d := config.Diff(old, new)
	want := []config.ActivationDiff{
		{ID: idVoice, Name: "voice", ThresholdChanged: true},
		{ID: idProx, Name: "proximity", DisabledChanged: true, DistanceChanged: true},
	}
	if diff := cmp.Diff(want, d.ActivationChanges); diff != "" {
		t.Errorf("ActivationChanges mismatch (-want +got):\n%s", diff)
	}
	if !d.ActivationsChanged {
		t.Error("expected ActivationsChanged=true")
	}
}

func TestDiff_ActivationRebuild(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Activations[1].Type = config.ActivationIndependent

	d := config.Diff(old, new)
	if len(d.ActivationChanges) != 1 || !d.ActivationChanges[0].Rebuild {
		t.Errorf("expected one rebuild change, got %+v", d.ActivationChanges)
	}
}

func TestDiff_ActivationAddedRemoved(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Activations = []config.ActivationConfig{
		old.Activations[0],
		{ID: idRadio, Name: "radio", Type: config.ActivationIndependent, Mode: config.ModePushToTalk},
	}

	d := config.Diff(old, new)
	want := []config.ActivationDiff{
		{ID: idRadio, Name: "radio", Added: true},
		{ID: idProx, Name: "proximity", Removed: true},
	}
	if diff := cmp.Diff(want, d.ActivationChanges); diff != "" {
		t.Errorf("ActivationChanges mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.ListenAddr = ":9999"
	new.Transport.Token = "rotated"
	new.Device.Fallbacks = []config.DeviceSource{{Driver: "opusfile", Path: "backup.opus"}}

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "transport", "device"}
	if diff := cmp.Diff(want, d.RestartRequired); diff != "" {
		t.Errorf("RestartRequired mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_ActivationsReordered(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Activations[0], new.Activations[1] = new.Activations[1], new.Activations[0]

	d := config.Diff(old, new)
	if !d.ActivationsReordered || !d.ActivationsChanged {
		t.Errorf("reorder not detected: %+v", d)
	}
	if len(d.ActivationChanges) != 0 {
		t.Errorf("reorder should not itemise changes, got %+v", d.ActivationChanges)
	}

	// Insertions alone keep the relative order.
	new = baseConfig()
	new.Activations = append([]config.ActivationConfig{{ID: idRadio, Name: "radio"}}, new.Activations...)
	if d := config.Diff(old, new); d.ActivationsReordered {
		t.Error("insertion reported as reorder")
	}
}
