// Package activation decides, frame by frame, whether captured audio is
// transmitted and on which logical channel.
//
// An [Activation] is a small state machine. Each frame it is either evaluated
// with its own detector ([Activation.Process]) or told the parent's decision
// ([Activation.RideAlong]); either way it reports [Activated] while voice is
// flowing and [End] exactly once on the frame where it stops.
//
// The [Manager] holds the parent activation plus an ordered list of
// secondary activations and applies the iteration rules: disabled entries are
// skipped, inherit/voice types ride along with the parent, and a
// non-transitive activation stops evaluation of everything after it.
//
// Process, RideAlong, and Reset are called from the capture worker only.
// Settings (disabled, threshold, distance) may be changed from any goroutine.
package activation

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/MrWong99/voxlink/pkg/audio"
)

// Config describes one activation.
type Config struct {
	// ID identifies the activation on the wire. A zero ID is replaced with a
	// random one.
	ID uuid.UUID

	// Name is a display name used in logs.
	Name string

	// Distance is the transmission distance sent with every frame.
	Distance int16

	// Type controls ride-along behaviour.
	Type Type

	// Mode selects the detector for Process.
	Mode Mode

	// ThresholdDB is the ModeVoice level in dBFS at which voice starts.
	ThresholdDB float64

	// ReleaseFrames is how many quiet frames ModeVoice keeps transmitting
	// after the level drops below the threshold.
	ReleaseFrames int

	// StereoSupported allows the stereo output path for this activation.
	StereoSupported bool

	// Transitive lets evaluation continue to the next activation.
	Transitive bool

	// Disabled starts the activation disabled.
	Disabled bool

	// Key is read by ModePushToTalk. Nil means never pressed.
	Key KeyState
}

// Activation is a stateful per-frame classifier.
type Activation struct {
	id         uuid.UUID
	name       string
	typ        Type
	mode       Mode
	stereo     bool
	transitive bool
	release    int
	key        KeyState

	disabled  atomic.Bool
	threshold atomic.Uint64
	distance  atomic.Int32
	activated atomic.Bool

	// hold counts remaining hang-over frames. Worker-owned.
	hold int
}

// New creates an Activation from cfg.
func New(cfg Config) *Activation {
	id := cfg.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	a := &Activation{
		id:         id,
		name:       cfg.Name,
		typ:        cfg.Type,
		mode:       cfg.Mode,
		stereo:     cfg.StereoSupported,
		transitive: cfg.Transitive,
		release:    max(cfg.ReleaseFrames, 0),
		key:        cfg.Key,
	}
	a.disabled.Store(cfg.Disabled)
	a.SetThreshold(cfg.ThresholdDB)
	a.SetDistance(cfg.Distance)
	return a
}

// ID returns the activation id.
func (a *Activation) ID() uuid.UUID { return a.id }

// Name returns the display name.
func (a *Activation) Name() string { return a.name }

// Type returns the activation type.
func (a *Activation) Type() Type { return a.typ }

// Mode returns the detector mode.
func (a *Activation) Mode() Mode { return a.mode }

// StereoSupported reports whether the stereo path may be used.
func (a *Activation) StereoSupported() bool { return a.stereo }

// Transitive reports whether evaluation continues past this activation.
func (a *Activation) Transitive() bool { return a.transitive }

// Disabled reports whether the activation is disabled.
func (a *Activation) Disabled() bool { return a.disabled.Load() }

// SetDisabled enables or disables the activation. A disabled activation that
// is still activated is reset by the capture worker on its next frame, which
// also sends its voice-end.
func (a *Activation) SetDisabled(v bool) { a.disabled.Store(v) }

// Threshold returns the ModeVoice threshold in dBFS.
func (a *Activation) Threshold() float64 {
	return math.Float64frombits(a.threshold.Load())
}

// SetThreshold updates the ModeVoice threshold in dBFS.
func (a *Activation) SetThreshold(db float64) {
	a.threshold.Store(math.Float64bits(db))
}

// Distance returns the transmission distance.
func (a *Activation) Distance() int16 { return int16(a.distance.Load()) }

// SetDistance updates the transmission distance.
func (a *Activation) SetDistance(d int16) { a.distance.Store(int32(d)) }

// IsActivated reports whether the activation is currently transmitting.
func (a *Activation) IsActivated() bool { return a.activated.Load() }

// Process runs the activation's own detector on samples.
func (a *Activation) Process(samples []int16) Result {
	return a.transition(a.detect(samples))
}

// RideAlong advances the state machine from the parent's result instead of
// running the detector.
func (a *Activation) RideAlong(parent Result) Result {
	return a.transition(parent == Activated)
}

// Reset forces the activation to not-activated without producing a result.
func (a *Activation) Reset() {
	a.activated.Store(false)
	a.hold = 0
}

// String returns the name and id for logs.
func (a *Activation) String() string {
	return fmt.Sprintf("%s(%s)", a.name, a.id)
}

func (a *Activation) detect(samples []int16) bool {
	switch a.mode {
	case ModePushToTalk:
		return a.key != nil && a.key.Pressed()
	case ModeVoice:
		if audio.LevelDB(samples) >= a.Threshold() {
			a.hold = a.release
			return true
		}
		if a.activated.Load() && a.hold > 0 {
			a.hold--
			return true
		}
		return false
	case ModeAlways:
		return true
	default:
		return false
	}
}

func (a *Activation) transition(detected bool) Result {
	if detected {
		a.activated.Store(true)
		return Activated
	}
	if a.activated.Swap(false) {
		return End
	}
	return NotActivated
}
