package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/voxlink/pkg/proto"
)

// closedChan is returned by Done when no session exists.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Client holds one voice server session: the control channel, the voice
// channel dialed from its handshake, and the resolved server info.
//
// Client implements the capture pipeline's connection view and [Connector].
// It is safe for concurrent use.
type Client struct {
	cfg ControlConfig

	mu      sync.RWMutex
	control *ControlConn
	voice   *UDPClient
}

var _ Connector = (*Client)(nil)

// NewClient returns an unconnected Client.
func NewClient(cfg ControlConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect dials the control channel, waits for the handshake, and dials the
// advertised voice endpoint. A previous session is closed first.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.Disconnect(); err != nil {
		slog.Debug("transport: closing previous session", "err", err)
	}

	control, err := DialControl(ctx, c.cfg)
	if err != nil {
		return err
	}
	info := control.Info()
	voice, err := DialUDP(ctx, info.VoiceAddr, info.Secret)
	if err != nil {
		control.Close()
		return err
	}

	c.mu.Lock()
	c.control = control
	c.voice = voice
	c.mu.Unlock()

	codec := "raw"
	if info.Capture.Codec != nil {
		codec = info.Capture.Codec.Name
	}
	slog.Info("transport: connected",
		"control", c.cfg.URL,
		"voice", info.VoiceAddr,
		"codec", codec,
		"sample_rate", info.Capture.SampleRate,
		"encrypted", info.Encryption != nil,
	)
	return nil
}

// ServerInfo returns the handshake of the current session.
func (c *Client) ServerInfo() (*proto.ServerInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.control == nil {
		return nil, false
	}
	return c.control.Info(), true
}

// VoiceChannel returns the datagram sender of the current session.
func (c *Client) VoiceChannel() (VoiceSender, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.voice == nil {
		return nil, false
	}
	return c.voice, true
}

// ControlChannel returns the control channel of the current session.
func (c *Client) ControlChannel() (EndSender, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.control == nil {
		return nil, false
	}
	return c.control, true
}

// Connected reports whether a session is established and its control channel
// is still open.
func (c *Client) Connected() bool {
	select {
	case <-c.Done():
		return false
	default:
		return true
	}
}

// Done implements [Connector]. Without a session it returns a closed channel.
func (c *Client) Done() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.control == nil {
		return closedChan
	}
	return c.control.Done()
}

// Disconnect implements [Connector].
func (c *Client) Disconnect() error {
	c.mu.Lock()
	control, voice := c.control, c.voice
	c.control, c.voice = nil, nil
	c.mu.Unlock()

	var errs []error
	if voice != nil {
		if err := voice.Close(); err != nil {
			errs = append(errs, fmt.Errorf("transport: close voice: %w", err))
		}
	}
	if control != nil {
		if err := control.Close(); err != nil {
			errs = append(errs, fmt.Errorf("transport: close control: %w", err))
		}
	}
	return errors.Join(errs...)
}
