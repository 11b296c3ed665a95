package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Packet types.
const (
	TypeVoice    byte = 1
	TypeVoiceEnd byte = 2
)

const (
	voiceHeaderLen = 48
	voiceEndLen    = 11
)

// MaxPayload is the largest payload a voice frame can carry.
const MaxPayload = math.MaxUint16

var magic = [2]byte{'V', 'X'}

var (
	// ErrShortFrame is returned when a buffer is too small to hold a frame.
	ErrShortFrame = errors.New("proto: short frame")

	// ErrBadFrame is returned for frames with the wrong magic or type.
	ErrBadFrame = errors.New("proto: malformed frame")
)

// VoiceFrame carries one encoded audio frame for one activation.
type VoiceFrame struct {
	Secret       uuid.UUID
	Sequence     uint64
	ActivationID uuid.UUID
	Distance     int16
	Stereo       bool
	Payload      []byte
}

// MarshalBinary encodes f into the voice datagram layout.
func (f *VoiceFrame) MarshalBinary() ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("proto: payload of %d bytes exceeds %d", len(f.Payload), MaxPayload)
	}
	b := make([]byte, voiceHeaderLen+len(f.Payload))
	copy(b[0:2], magic[:])
	b[2] = TypeVoice
	copy(b[3:19], f.Secret[:])
	binary.BigEndian.PutUint64(b[19:27], f.Sequence)
	copy(b[27:43], f.ActivationID[:])
	binary.BigEndian.PutUint16(b[43:45], uint16(f.Distance))
	if f.Stereo {
		b[45] = 1
	}
	binary.BigEndian.PutUint16(b[46:48], uint16(len(f.Payload)))
	copy(b[voiceHeaderLen:], f.Payload)
	return b, nil
}

// UnmarshalBinary decodes a voice datagram into f.
func (f *VoiceFrame) UnmarshalBinary(b []byte) error {
	if len(b) < voiceHeaderLen {
		return ErrShortFrame
	}
	if b[0] != magic[0] || b[1] != magic[1] || b[2] != TypeVoice {
		return ErrBadFrame
	}
	n := int(binary.BigEndian.Uint16(b[46:48]))
	if len(b) < voiceHeaderLen+n {
		return ErrShortFrame
	}
	copy(f.Secret[:], b[3:19])
	f.Sequence = binary.BigEndian.Uint64(b[19:27])
	copy(f.ActivationID[:], b[27:43])
	f.Distance = int16(binary.BigEndian.Uint16(b[43:45]))
	f.Stereo = b[45] != 0
	f.Payload = append([]byte(nil), b[voiceHeaderLen:voiceHeaderLen+n]...)
	return nil
}

// VoiceEnd tells the server an activation's stream has stopped.
type VoiceEnd struct {
	Sequence uint64
	Distance int16
}

// MarshalBinary encodes e.
func (e *VoiceEnd) MarshalBinary() ([]byte, error) {
	b := make([]byte, voiceEndLen)
	b[0] = TypeVoiceEnd
	binary.BigEndian.PutUint64(b[1:9], e.Sequence)
	binary.BigEndian.PutUint16(b[9:11], uint16(e.Distance))
	return b, nil
}

// UnmarshalBinary decodes b into e.
func (e *VoiceEnd) UnmarshalBinary(b []byte) error {
	if len(b) < voiceEndLen {
		return ErrShortFrame
	}
	if b[0] != TypeVoiceEnd {
		return ErrBadFrame
	}
	e.Sequence = binary.BigEndian.Uint64(b[1:9])
	e.Distance = int16(binary.BigEndian.Uint16(b[9:11]))
	return nil
}
