package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/voxlink/pkg/proto"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 2 * time.Second
)

// ControlConfig configures a control channel connection.
type ControlConfig struct {
	// URL is the websocket endpoint, e.g. "wss://voice.example.com/control".
	URL string

	// Token is sent as a bearer token. May be empty.
	Token string

	// HandshakeTimeout bounds dialing plus receiving the handshake.
	// Default: 10s.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each outbound message. Default: 2s.
	WriteTimeout time.Duration
}

var errClosedByClient = errors.New("transport: closed by client")

// ControlConn is the reliable control channel to a voice server.
type ControlConn struct {
	conn         *websocket.Conn
	info         *proto.ServerInfo
	writeTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

var _ EndSender = (*ControlConn)(nil)

// DialControl opens the control channel and waits for the server handshake.
func DialControl(ctx context.Context, cfg ControlConfig) (*ControlConn, error) {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()

	opts := &websocket.DialOptions{}
	if cfg.Token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + cfg.Token}}
	}
	conn, _, err := websocket.Dial(hctx, cfg.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("transport: dial control %s: %w", cfg.URL, err)
	}

	var hs proto.ServerHandshake
	if err := wsjson.Read(hctx, conn, &hs); err != nil {
		conn.Close(websocket.StatusProtocolError, "handshake expected")
		return nil, fmt.Errorf("transport: read handshake: %w", err)
	}
	info, err := hs.Resolve()
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "invalid handshake")
		return nil, fmt.Errorf("transport: %w", err)
	}

	c := &ControlConn{
		conn:         conn,
		info:         info,
		writeTimeout: cfg.WriteTimeout,
		done:         make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Info returns the resolved server handshake.
func (c *ControlConn) Info() *proto.ServerInfo { return c.info }

// SendVoiceEnd implements [EndSender].
func (c *ControlConn) SendVoiceEnd(e *proto.VoiceEnd) error {
	b, err := e.MarshalBinary()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageBinary, b); err != nil {
		return fmt.Errorf("transport: send voice end: %w", err)
	}
	return nil
}

// Done is closed when the connection ends.
func (c *ControlConn) Done() <-chan struct{} { return c.done }

// Err returns the reason the connection ended, or nil while it is open.
func (c *ControlConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close closes the connection normally. Safe to call more than once.
func (c *ControlConn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "client closing")
	c.finish(errClosedByClient)
	return err
}

// readLoop drains server messages so control frames (ping, close) are
// processed. The server sends nothing the client acts on after the handshake.
func (c *ControlConn) readLoop() {
	for {
		typ, data, err := c.conn.Read(context.Background())
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				slog.Info("transport: control channel closed by server")
			} else {
				slog.Warn("transport: control channel lost", "err", err)
			}
			c.finish(err)
			return
		}
		slog.Debug("transport: ignoring control message", "type", typ, "bytes", len(data))
	}
}

func (c *ControlConn) finish(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		close(c.done)
	})
}
