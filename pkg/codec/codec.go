// Package codec defines the Encoder interface that turns raw PCM frames into
// the payload bytes carried by voice packets.
//
// Encoders are created from a [Config] advertised by the voice server: codec
// name, sample rate, channel layout, frame size, and MTU plus free-form
// codec-specific parameters. One encoder is created per output format (mono
// and stereo) and is reused for every frame of a capture session.
//
// An Encoder carries inter-frame state (prediction history, rate control) and
// must only be driven from a single goroutine. Reset and Close may be called
// from the owning goroutine between frames.
package codec

import (
	"errors"
	"fmt"
)

// ErrUnknownCodec is returned when no encoder factory is registered for the
// requested codec name.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Config describes the encoder a server wants the client to use.
type Config struct {
	// Name is the codec identifier, e.g. "opus". Empty means raw PCM.
	Name string

	// SampleRate of the PCM fed to Encode, in Hz.
	SampleRate int

	// Stereo selects interleaved two-channel input.
	Stereo bool

	// BufferSize is the number of samples per channel in one frame.
	BufferSize int

	// MTU caps the size of a single encoded payload in bytes.
	MTU int

	// Params holds codec-specific options (e.g. "bitrate", "application").
	Params map[string]string
}

// Channels returns 2 for stereo configs and 1 otherwise.
func (c Config) Channels() int {
	if c.Stereo {
		return 2
	}
	return 1
}

// Encoder compresses one PCM frame at a time.
type Encoder interface {
	// Encode compresses samples and returns the payload. The length of samples
	// must equal BufferSize × Channels. Failures are reported as *CodecError.
	Encode(samples []int16) ([]byte, error)

	// Reset discards inter-frame state so the next Encode starts a fresh
	// stream. Used after a voice-end.
	Reset()

	// Close releases the encoder. Encode after Close returns an error. Calling
	// Close more than once is safe.
	Close() error
}

// Factory constructs an Encoder from a Config.
type Factory func(cfg Config) (Encoder, error)

// CodecError wraps a failure raised while configuring or running an encoder.
type CodecError struct {
	// Codec is the codec name.
	Codec string

	// Op is the failing operation ("create", "encode", "param").
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *CodecError) Error() string {
	return fmt.Sprintf("codec: %s %s: %v", e.Codec, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CodecError) Unwrap() error { return e.Err }
