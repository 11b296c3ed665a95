package capture

import "sync/atomic"

// Settings holds the user's voice preferences. The zero value captures mono
// with the microphone enabled. Values may be changed from any goroutine and
// take effect on the worker's next frame.
type Settings struct {
	stereoCapture      atomic.Bool
	microphoneDisabled atomic.Bool
}

// StereoCapture reports whether stereo output is preferred.
func (s *Settings) StereoCapture() bool { return s.stereoCapture.Load() }

// SetStereoCapture sets the stereo preference. Activations that do not
// support stereo keep sending mono.
func (s *Settings) SetStereoCapture(v bool) { s.stereoCapture.Store(v) }

// MicrophoneDisabled reports whether the microphone is muted.
func (s *Settings) MicrophoneDisabled() bool { return s.microphoneDisabled.Load() }

// SetMicrophoneDisabled mutes or unmutes the microphone. Muting ends every
// active transmission on the next frame.
func (s *Settings) SetMicrophoneDisabled(v bool) { s.microphoneDisabled.Store(v) }
