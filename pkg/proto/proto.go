// Package proto defines the messages exchanged with a voice server: the JSON
// handshake received on the control channel, and the binary voice and
// voice-end frames the client emits.
//
// Voice frame (UDP datagram, big-endian):
//
//	0   2  magic "VX"
//	2   1  type (1)
//	3  16  secret
//	19  8  sequence
//	27 16  activation id
//	43  2  distance (signed)
//	45  1  stereo (0 or 1)
//	46  2  payload length
//	48  …  payload
//
// Voice end (control channel binary message, big-endian):
//
//	0 1  type (2)
//	1 8  sequence
//	9 2  distance (signed)
package proto

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/codec"
	"github.com/MrWong99/voxlink/pkg/encryption"
)

// CodecInfo is the encoder a server asks clients to use.
type CodecInfo struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}

// CaptureInfo describes the capture format.
type CaptureInfo struct {
	SampleRate int `json:"sample_rate"`

	// BufferSize is the number of samples per channel in one frame.
	BufferSize int `json:"buffer_size"`

	MTU int `json:"mtu"`

	// Codec is nil when raw PCM is transmitted.
	Codec *CodecInfo `json:"codec,omitempty"`
}

// Format returns the audio format of one output path.
func (c CaptureInfo) Format(stereo bool) audio.Format {
	ch := 1
	if stereo {
		ch = 2
	}
	return audio.Format{SampleRate: c.SampleRate, Channels: ch}
}

// EncoderConfig returns the codec config for one output path. ok is false
// when no codec is advertised.
func (c CaptureInfo) EncoderConfig(stereo bool) (cfg codec.Config, ok bool) {
	if c.Codec == nil || c.Codec.Name == "" {
		return codec.Config{}, false
	}
	return codec.Config{
		Name:       c.Codec.Name,
		SampleRate: c.SampleRate,
		Stereo:     stereo,
		BufferSize: c.BufferSize,
		MTU:        c.MTU,
		Params:     c.Codec.Params,
	}, true
}

// EncryptionInfo selects the payload cipher.
type EncryptionInfo struct {
	Algorithm string `json:"algorithm"`

	// Key is base64 (standard encoding).
	Key string `json:"key"`
}

// ServerHandshake is the first text message a server sends on the control
// channel.
type ServerHandshake struct {
	// VoiceAddr is the host:port of the UDP voice endpoint.
	VoiceAddr string `json:"voice_addr"`

	// Secret authenticates voice datagrams.
	Secret uuid.UUID `json:"secret"`

	Capture    CaptureInfo     `json:"capture"`
	Encryption *EncryptionInfo `json:"encryption,omitempty"`
}

// ServerInfo is the resolved state of a connected server.
type ServerInfo struct {
	VoiceAddr string
	Secret    uuid.UUID
	Capture   CaptureInfo

	// Encryption is nil when payloads are sent in the clear.
	Encryption encryption.Encryption
}

// Resolve validates h and builds the cipher it advertises.
func (h ServerHandshake) Resolve() (*ServerInfo, error) {
	if h.VoiceAddr == "" {
		return nil, fmt.Errorf("proto: handshake: missing voice_addr")
	}
	if h.Capture.SampleRate <= 0 || h.Capture.BufferSize <= 0 {
		return nil, fmt.Errorf("proto: handshake: invalid capture format %d Hz / %d samples",
			h.Capture.SampleRate, h.Capture.BufferSize)
	}
	info := &ServerInfo{
		VoiceAddr: h.VoiceAddr,
		Secret:    h.Secret,
		Capture:   h.Capture,
	}
	if h.Encryption != nil {
		key, err := base64.StdEncoding.DecodeString(h.Encryption.Key)
		if err != nil {
			return nil, fmt.Errorf("proto: handshake: decode key: %w", err)
		}
		enc, err := encryption.New(h.Encryption.Algorithm, key)
		if err != nil {
			return nil, fmt.Errorf("proto: handshake: %w", err)
		}
		info.Encryption = enc
	}
	return info, nil
}
