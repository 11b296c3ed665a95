// Package opus provides a [codec.Encoder] backed by libopus through
// layeh.com/gopus.
//
// Recognised Config.Params:
//
//	bitrate      target bitrate in bit/s, or "max"
//	application  "voip" (default), "audio", or "lowdelay"
//	vbr          "true" or "false"
package opus

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"layeh.com/gopus"

	"github.com/MrWong99/voxlink/pkg/codec"
)

// Name is the codec identifier servers advertise for Opus.
const Name = "opus"

// defaultMTU is used when the server does not advertise one.
const defaultMTU = 1024

var errClosed = errors.New("encoder closed")

// Encoder wraps a gopus encoder for one output format.
type Encoder struct {
	mu        sync.Mutex
	enc       *gopus.Encoder
	frameSize int
	channels  int
	maxBytes  int
}

var _ codec.Encoder = (*Encoder)(nil)

// New creates an Opus encoder for cfg. It satisfies [codec.Factory].
func New(cfg codec.Config) (codec.Encoder, error) {
	return NewEncoder(cfg)
}

// NewEncoder creates an Opus encoder for cfg.
func NewEncoder(cfg codec.Config) (*Encoder, error) {
	if cfg.BufferSize <= 0 {
		return nil, &codec.CodecError{Codec: Name, Op: "create", Err: fmt.Errorf("invalid buffer size %d", cfg.BufferSize)}
	}
	app, err := parseApplication(cfg.Params["application"])
	if err != nil {
		return nil, &codec.CodecError{Codec: Name, Op: "param", Err: err}
	}
	enc, err := gopus.NewEncoder(cfg.SampleRate, cfg.Channels(), app)
	if err != nil {
		return nil, &codec.CodecError{Codec: Name, Op: "create", Err: err}
	}
	if v, ok := cfg.Params["bitrate"]; ok {
		if v == "max" {
			enc.SetBitrate(gopus.BitrateMaximum)
		} else {
			br, err := strconv.Atoi(v)
			if err != nil || br <= 0 {
				return nil, &codec.CodecError{Codec: Name, Op: "param", Err: fmt.Errorf("invalid bitrate %q", v)}
			}
			enc.SetBitrate(br)
		}
	}
	if v, ok := cfg.Params["vbr"]; ok {
		vbr, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &codec.CodecError{Codec: Name, Op: "param", Err: fmt.Errorf("invalid vbr %q", v)}
		}
		enc.SetVbr(vbr)
	}

	maxBytes := cfg.MTU
	if maxBytes <= 0 {
		maxBytes = defaultMTU
	}
	return &Encoder{
		enc:       enc,
		frameSize: cfg.BufferSize,
		channels:  cfg.Channels(),
		maxBytes:  maxBytes,
	}, nil
}

// Encode implements [codec.Encoder].
func (e *Encoder) Encode(samples []int16) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc == nil {
		return nil, &codec.CodecError{Codec: Name, Op: "encode", Err: errClosed}
	}
	if want := e.frameSize * e.channels; len(samples) != want {
		return nil, &codec.CodecError{Codec: Name, Op: "encode", Err: fmt.Errorf("frame has %d samples, want %d", len(samples), want)}
	}
	out, err := e.enc.Encode(samples, e.frameSize, e.maxBytes)
	if err != nil {
		return nil, &codec.CodecError{Codec: Name, Op: "encode", Err: err}
	}
	return out, nil
}

// Reset implements [codec.Encoder].
func (e *Encoder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc != nil {
		e.enc.ResetState()
	}
}

// Close implements [codec.Encoder]. The libopus state is released by the
// gopus finalizer once the encoder is unreachable.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enc = nil
	return nil
}

func parseApplication(s string) (gopus.Application, error) {
	switch s {
	case "", "voip":
		return gopus.Voip, nil
	case "audio":
		return gopus.Audio, nil
	case "lowdelay":
		return gopus.RestrictedLowDelay, nil
	default:
		return 0, fmt.Errorf("unknown application %q", s)
	}
}
