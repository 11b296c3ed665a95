// Package audio holds the PCM helpers shared by capture devices, activations,
// and encoders.
//
// Samples are signed 16-bit values. Stereo frames are interleaved (L, R, L, R,
// …). Byte serialisation is little-endian, two bytes per sample.
package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	// SampleRate in Hz (e.g., 48000 for Opus capture).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int
}

// Stereo reports whether f carries two interleaved channels.
func (f Format) Stereo() bool {
	return f.Channels == 2
}

// FrameSamples returns the number of int16 values (across all channels) that
// make up d worth of audio in this format.
func (f Format) FrameSamples(d time.Duration) int {
	perChannel := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return perChannel * max(f.Channels, 1)
}

// FrameDuration returns the playback length of a frame holding n int16 values.
func (f Format) FrameDuration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	perChannel := n / f.Channels
	return time.Duration(perChannel) * time.Second / time.Duration(f.SampleRate)
}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}
