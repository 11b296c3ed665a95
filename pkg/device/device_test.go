package device_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/device"
	"github.com/MrWong99/voxlink/pkg/device/mock"
)

func TestManager_SetRemove(t *testing.T) {
	t.Parallel()

	m := device.NewManager(device.Config{FrameSize: 960})
	if m.Input() != nil {
		t.Fatal("new manager has an input")
	}

	a := &mock.Device{}
	b := &mock.Device{}
	if prev := m.Set(a); prev != nil {
		t.Errorf("Set returned %v, want nil", prev)
	}
	if m.Remove(b) {
		t.Error("Remove of non-current device returned true")
	}
	if m.Input() != a {
		t.Error("Remove of other device cleared current")
	}
	if prev := m.Set(b); prev != a {
		t.Error("Set did not return previous device")
	}
	if !m.Remove(b) || m.Input() != nil {
		t.Error("Remove of current device failed")
	}
}

func TestFilterChain(t *testing.T) {
	t.Parallel()

	var fc device.FilterChain
	in := []int16{4, 8, 12, 16}
	if diff := cmp.Diff(in, fc.ProcessFilters(in, nil)); diff != "" {
		t.Errorf("empty chain changed frame (-want +got):\n%s", diff)
	}

	fc.SetFilters(audio.Chain{&audio.StereoToMonoFilter{Channels: 2}})
	if diff := cmp.Diff([]int16{6, 14}, fc.ProcessFilters(in, nil)); diff != "" {
		t.Errorf("downmix mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in, fc.ProcessFilters(in, audio.IsDownmix)); diff != "" {
		t.Errorf("skip downmix mismatch (-want +got):\n%s", diff)
	}
}

func TestConfig_FrameLen(t *testing.T) {
	t.Parallel()

	cfg := device.Config{Format: audio.Format{SampleRate: 48000, Channels: 2}, FrameSize: 960}
	if got := cfg.FrameLen(); got != 1920 {
		t.Errorf("FrameLen = %d, want 1920", got)
	}
}
