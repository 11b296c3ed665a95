package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/device"
	devmock "github.com/MrWong99/voxlink/pkg/device/mock"
)

func TestDeviceFallback_Open(t *testing.T) {
	primary := &devmock.Opener{}
	primary.SetOpenErr(errors.New("device busy"))
	backup := &devmock.Opener{}

	f := NewDeviceFallback(primary, "opusfile:mic.opus", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	f.AddFallback("opusfile:backup.opus", backup)

	cfg := device.Config{Format: audio.Format{SampleRate: 48000, Channels: 1}, FrameSize: 960}
	for range 3 {
		dev, err := f.Open(cfg)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if dev == nil {
			t.Fatal("Open returned nil device")
		}
	}

	if primary.Calls() != 1 {
		t.Errorf("primary opens = %d, want 1 before its breaker opened", primary.Calls())
	}
	if backup.Calls() != 3 {
		t.Errorf("backup opens = %d, want 3", backup.Calls())
	}
	if got := f.Active(); got != "opusfile:backup.opus" {
		t.Errorf("Active() = %q, want backup", got)
	}
	if got := f.States()["opusfile:mic.opus"]; got != StateOpen {
		t.Errorf("primary breaker = %v, want open", got)
	}
}

func TestDeviceFallback_AllFail(t *testing.T) {
	wantErr := errors.New("no such file")
	o := &devmock.Opener{}
	o.SetOpenErr(wantErr)

	f := NewDeviceFallback(o, "only", FallbackConfig{})
	_, err := f.Open(device.Config{})
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want ErrAllFailed wrapping the open error", err)
	}
	if f.Active() != "" {
		t.Errorf("Active() = %q, want empty", f.Active())
	}
}

func TestDeviceFallback_Reset(t *testing.T) {
	o := &devmock.Opener{}
	o.SetOpenErr(errors.New("device busy"))

	var transitions []State
	f := NewDeviceFallback(o, "opusfile:mic.opus", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  1,
			ResetTimeout: time.Hour,
			OnStateChange: func(name string, _, to State) {
				if name != "opusfile:mic.opus" {
					t.Errorf("transition reported for %q", name)
				}
				transitions = append(transitions, to)
			},
		},
	})

	_, _ = f.Open(device.Config{})
	if _, err := f.Open(device.Config{}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second Open err = %v, want ErrCircuitOpen", err)
	}

	o.SetOpenErr(nil)
	f.Reset()
	if got := f.States()["opusfile:mic.opus"]; got != StateClosed {
		t.Errorf("breaker after Reset = %v, want closed", got)
	}
	if _, err := f.Open(device.Config{}); err != nil {
		t.Fatalf("Open after Reset: %v", err)
	}
	if o.Calls() != 2 {
		t.Errorf("opens = %d, want 2", o.Calls())
	}
	if len(transitions) != 2 || transitions[0] != StateOpen || transitions[1] != StateClosed {
		t.Errorf("transitions = %v, want [open closed]", transitions)
	}
}
