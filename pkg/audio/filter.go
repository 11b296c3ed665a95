package audio

import (
	"math"
	"sync/atomic"
)

// Filter is one post-processing stage applied to captured samples before
// encoding. Implementations must not modify the input slice in place: the
// capture pipeline runs the same raw frame through the chain once per output
// format.
type Filter interface {
	// Name identifies the filter in logs and configuration.
	Name() string

	// Process returns the filtered samples.
	Process(samples []int16) []int16
}

// Chain is an ordered list of filters. The zero value is an empty chain that
// returns its input unchanged.
type Chain []Filter

// Process runs samples through every filter in order. Filters for which skip
// returns true are bypassed; a nil skip applies all filters.
func (c Chain) Process(samples []int16, skip func(Filter) bool) []int16 {
	for _, f := range c {
		if skip != nil && skip(f) {
			continue
		}
		samples = f.Process(samples)
	}
	return samples
}

// StereoToMonoFilter downmixes interleaved stereo input to mono. When the
// source is already mono the frame passes through untouched.
type StereoToMonoFilter struct {
	// Channels is the channel count of the device feeding the chain.
	Channels int
}

// Name implements [Filter].
func (f *StereoToMonoFilter) Name() string { return "stereo_to_mono" }

// Process implements [Filter].
func (f *StereoToMonoFilter) Process(samples []int16) []int16 {
	if f.Channels != 2 {
		return samples
	}
	return StereoToMono(samples)
}

// IsDownmix reports whether f is a [StereoToMonoFilter]. It is the skip
// predicate used when producing the stereo encode path.
func IsDownmix(f Filter) bool {
	_, ok := f.(*StereoToMonoFilter)
	return ok
}

// NoiseGate silences frames whose RMS level is below a threshold. The
// threshold can be changed at any time from another goroutine.
type NoiseGate struct {
	threshold atomic.Uint64
}

// NewNoiseGate returns a gate closed below thresholdDB (dBFS).
func NewNoiseGate(thresholdDB float64) *NoiseGate {
	g := &NoiseGate{}
	g.SetThreshold(thresholdDB)
	return g
}

// SetThreshold updates the gate threshold in dBFS.
func (g *NoiseGate) SetThreshold(db float64) {
	g.threshold.Store(math.Float64bits(db))
}

// Threshold returns the current threshold in dBFS.
func (g *NoiseGate) Threshold() float64 {
	return math.Float64frombits(g.threshold.Load())
}

// Name implements [Filter].
func (g *NoiseGate) Name() string { return "noise_gate" }

// Process implements [Filter].
func (g *NoiseGate) Process(samples []int16) []int16 {
	if LevelDB(samples) >= g.Threshold() {
		return samples
	}
	return make([]int16, len(samples))
}

// Gain scales every sample by a linear factor, clipping at the int16 range.
type Gain struct {
	factor atomic.Uint64
}

// NewGain returns a gain stage with the given linear factor.
func NewGain(factor float64) *Gain {
	g := &Gain{}
	g.SetFactor(factor)
	return g
}

// SetFactor updates the linear gain factor.
func (g *Gain) SetFactor(factor float64) {
	g.factor.Store(math.Float64bits(factor))
}

// Factor returns the current linear gain factor.
func (g *Gain) Factor() float64 {
	return math.Float64frombits(g.factor.Load())
}

// Name implements [Filter].
func (g *Gain) Name() string { return "gain" }

// Process implements [Filter].
func (g *Gain) Process(samples []int16) []int16 {
	factor := g.Factor()
	if factor == 1 {
		return samples
	}
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = clamp16(int32(math.Round(float64(s) * factor)))
	}
	return out
}
