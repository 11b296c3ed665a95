package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/MrWong99/voxlink/pkg/proto"
)

// UDPClient sends voice frames as datagrams to the server's voice endpoint.
// It is safe for concurrent use.
type UDPClient struct {
	conn   net.Conn
	secret uuid.UUID
	sent   atomic.Uint64
}

var _ VoiceSender = (*UDPClient)(nil)

// DialUDP connects to addr. Every frame sent is stamped with secret.
func DialUDP(ctx context.Context, addr string, secret uuid.UUID) (*UDPClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial udp %s: %w", addr, err)
	}
	return &UDPClient{conn: conn, secret: secret}, nil
}

// SendVoice implements [VoiceSender].
func (c *UDPClient) SendVoice(f *proto.VoiceFrame) error {
	out := *f
	out.Secret = c.secret
	b, err := out.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(b); err != nil {
		return fmt.Errorf("transport: send voice: %w", err)
	}
	c.sent.Add(1)
	return nil
}

// Sent returns the number of datagrams written.
func (c *UDPClient) Sent() uint64 { return c.sent.Load() }

// LocalAddr returns the local socket address.
func (c *UDPClient) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// Close closes the socket.
func (c *UDPClient) Close() error { return c.conn.Close() }
