// Package mock provides test doubles for the codec package.
//
// Encoder records every frame it is asked to encode and returns either a
// deterministic payload or an injected error. Factory hands out Encoders and
// records the Config each one was created with.
//
//	f := &mock.Factory{}
//	enc, _ := f.Create(codec.Config{Name: "opus", Stereo: true})
//	_, _ = enc.Encode(frame)
//	f.Encoders[0].EncodeCallCount() // 1
package mock

import (
	"sync"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/codec"
)

// Encoder is a mock implementation of [codec.Encoder].
type Encoder struct {
	mu sync.Mutex

	// Cfg is the config the encoder was created with, if created by Factory.
	Cfg codec.Config

	// EncodeFunc, if set, computes the result of Encode.
	EncodeFunc func(samples []int16) ([]byte, error)

	// EncodeErr, if non-nil, is returned by every Encode call.
	EncodeErr error

	// CloseErr is returned by Close.
	CloseErr error

	// EncodeCalls records a copy of every frame passed to Encode.
	EncodeCalls [][]int16

	// ResetCallCount is the number of Reset calls.
	ResetCallCount int

	// CloseCallCount is the number of Close calls.
	CloseCallCount int
}

var _ codec.Encoder = (*Encoder)(nil)

// Encode records the frame. Without EncodeFunc or EncodeErr it returns the
// little-endian bytes of the frame.
func (e *Encoder) Encode(samples []int16) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]int16, len(samples))
	copy(cp, samples)
	e.EncodeCalls = append(e.EncodeCalls, cp)
	if e.EncodeFunc != nil {
		return e.EncodeFunc(samples)
	}
	if e.EncodeErr != nil {
		return nil, e.EncodeErr
	}
	return audio.Int16sToBytes(samples), nil
}

// Reset increments ResetCallCount.
func (e *Encoder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ResetCallCount++
}

// Close increments CloseCallCount and returns CloseErr.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCallCount++
	return e.CloseErr
}

// SetEncodeErr replaces EncodeErr. Thread-safe.
func (e *Encoder) SetEncodeErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.EncodeErr = err
}

// EncodeCallCount returns len(EncodeCalls). Thread-safe.
func (e *Encoder) EncodeCallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.EncodeCalls)
}

// Resets returns ResetCallCount. Thread-safe.
func (e *Encoder) Resets() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ResetCallCount
}

// Closes returns CloseCallCount. Thread-safe.
func (e *Encoder) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.CloseCallCount
}

// Factory hands out mock Encoders.
type Factory struct {
	mu sync.Mutex

	// CreateErr, if non-nil, is returned by Create.
	CreateErr error

	// Configure, if set, is applied to each new Encoder before it is returned.
	Configure func(e *Encoder)

	// Encoders holds every Encoder created, in order.
	Encoders []*Encoder
}

// Create implements [codec.Factory].
func (f *Factory) Create(cfg codec.Config) (codec.Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	e := &Encoder{Cfg: cfg}
	if f.Configure != nil {
		f.Configure(e)
	}
	f.Encoders = append(f.Encoders, e)
	return e, nil
}

// SetCreateErr replaces CreateErr. Thread-safe.
func (f *Factory) SetCreateErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateErr = err
}

// Created returns a snapshot of the created Encoders. Thread-safe.
func (f *Factory) Created() []*Encoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Encoder, len(f.Encoders))
	copy(out, f.Encoders)
	return out
}

// ByFormat returns the most recently created Encoder with the given stereo
// flag, or nil.
func (f *Factory) ByFormat(stereo bool) *Encoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Encoders) - 1; i >= 0; i-- {
		if f.Encoders[i].Cfg.Stereo == stereo {
			return f.Encoders[i]
		}
	}
	return nil
}
