package activation

import (
	"fmt"
	"sync/atomic"
)

// Type controls how a non-parent activation is evaluated by the [Manager].
type Type int

const (
	// TypeInherit reuses the parent's classification of the frame.
	TypeInherit Type = iota

	// TypeVoice also reuses the parent's classification. It exists as a
	// distinct type so receivers can tell plain voice chat from inherited
	// channels.
	TypeVoice

	// TypeIndependent runs its own detector on every frame.
	TypeIndependent
)

// String returns the configuration name of t.
func (t Type) String() string {
	switch t {
	case TypeInherit:
		return "inherit"
	case TypeVoice:
		return "voice"
	case TypeIndependent:
		return "independent"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// RidesAlong reports whether activations of this type follow the parent's
// decision instead of running their own detector.
func (t Type) RidesAlong() bool {
	return t == TypeInherit || t == TypeVoice
}

// ParseType converts a configuration string into a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "inherit":
		return TypeInherit, nil
	case "voice":
		return TypeVoice, nil
	case "independent":
		return TypeIndependent, nil
	default:
		return 0, fmt.Errorf("activation: unknown type %q", s)
	}
}

// Mode selects the detector an activation runs when it evaluates a frame
// itself.
type Mode int

const (
	// ModePushToTalk is active while the bound [KeyState] is pressed.
	ModePushToTalk Mode = iota

	// ModeVoice is active while the frame level is at or above the threshold,
	// plus ReleaseFrames of hang-over.
	ModeVoice

	// ModeAlways is active on every frame while enabled.
	ModeAlways
)

// String returns the configuration name of m.
func (m Mode) String() string {
	switch m {
	case ModePushToTalk:
		return "push_to_talk"
	case ModeVoice:
		return "voice"
	case ModeAlways:
		return "always"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "push_to_talk":
		return ModePushToTalk, nil
	case "voice":
		return ModeVoice, nil
	case "always":
		return ModeAlways, nil
	default:
		return 0, fmt.Errorf("activation: unknown mode %q", s)
	}
}

// Result is the outcome of evaluating one frame.
type Result int

const (
	// NotActivated means nothing is transmitted for this frame.
	NotActivated Result = iota

	// Activated means the frame is transmitted.
	Activated

	// End is returned once, on the frame where transmission stops. The
	// frame itself is still transmitted, followed by a voice-end.
	End
)

// String returns a lower-case name for r.
func (r Result) String() string {
	switch r {
	case NotActivated:
		return "not_activated"
	case Activated:
		return "activated"
	case End:
		return "end"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Transmits reports whether a frame with this result carries audio.
func (r Result) Transmits() bool {
	return r == Activated || r == End
}

// KeyState reports the state of an external push-to-talk control.
type KeyState interface {
	Pressed() bool
}

// Key is a [KeyState] that can be toggled from any goroutine.
type Key struct {
	down atomic.Bool
}

// Press marks the key as held.
func (k *Key) Press() { k.down.Store(true) }

// Release marks the key as released.
func (k *Key) Release() { k.down.Store(false) }

// Pressed implements [KeyState].
func (k *Key) Pressed() bool { return k.down.Load() }
