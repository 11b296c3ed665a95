// Package transport carries capture output to a voice server.
//
// Voice frames travel over an unreliable datagram channel ([UDPClient]);
// voice-end frames and the server handshake travel over a reliable websocket
// control channel ([ControlConn]). [Client] ties both to one server session
// and [Reconnector] keeps it alive.
//
// Sends are best effort: a failed send is reported to the caller and never
// retried here.
package transport

import (
	"context"
	"errors"

	"github.com/MrWong99/voxlink/pkg/proto"
)

// ErrNotConnected is returned when sending without an established session.
var ErrNotConnected = errors.New("transport: not connected")

// VoiceSender transmits voice frames.
type VoiceSender interface {
	SendVoice(f *proto.VoiceFrame) error
}

// EndSender transmits voice-end frames.
type EndSender interface {
	SendVoiceEnd(e *proto.VoiceEnd) error
}

// Connector establishes a session that can drop at any time.
type Connector interface {
	// Connect establishes a new session, replacing any previous one.
	Connect(ctx context.Context) error

	// Done is closed when the current session ends.
	Done() <-chan struct{}

	// Disconnect ends the current session.
	Disconnect() error
}
