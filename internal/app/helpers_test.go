package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxlink/internal/app"
	"github.com/MrWong99/voxlink/internal/config"
	devmock "github.com/MrWong99/voxlink/pkg/device/mock"
	"github.com/MrWong99/voxlink/pkg/proto"
	"github.com/MrWong99/voxlink/pkg/transport"
)

const (
	idVoice = "9b2c6f0e-31d4-4a55-8f0c-6b1f2f6a0001"
	idProx  = "9b2c6f0e-31d4-4a55-8f0c-6b1f2f6a0002"
	idRadio = "9b2c6f0e-31d4-4a55-8f0c-6b1f2f6a0003"
)

// fakeConn is an in-memory Connection. Every Connect starts a new session
// that lasts until drop or Disconnect.
type fakeConn struct {
	mu         sync.Mutex
	info       *proto.ServerInfo
	connected  bool
	done       chan struct{}
	connects   int
	disconnect int
	frames     int
	connectErr error
}

var _ app.Connection = (*fakeConn)(nil)

func newFakeConn() *fakeConn {
	done := make(chan struct{})
	close(done)
	return &fakeConn{
		done: done,
		info: &proto.ServerInfo{
			VoiceAddr: "127.0.0.1:50000",
			Capture:   proto.CaptureInfo{SampleRate: 48000, BufferSize: 480, MTU: 1024},
		},
	}
}

func (c *fakeConn) Connect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connected = true
	c.done = make(chan struct{})
	return nil
}

func (c *fakeConn) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnect++
	c.endLocked()
	return nil
}

// drop ends the current session as if the server went away.
func (c *fakeConn) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked()
}

func (c *fakeConn) endLocked() {
	if c.connected {
		c.connected = false
		close(c.done)
	}
}

func (c *fakeConn) ServerInfo() (*proto.ServerInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info, c.connected
}

func (c *fakeConn) VoiceChannel() (transport.VoiceSender, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c, c.connected
}

func (c *fakeConn) ControlChannel() (transport.EndSender, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c, c.connected
}

func (c *fakeConn) SendVoice(*proto.VoiceFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames++
	return nil
}

func (c *fakeConn) SendVoiceEnd(*proto.VoiceEnd) error { return nil }

func (c *fakeConn) counts() (connects, disconnects int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects, c.disconnect
}

// testConfig returns a validated-shape config with a parent voice
// activation, a transitive proximity channel, and a push-to-talk radio.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":0", LogLevel: config.LogInfo},
		Transport: config.TransportConfig{Mode: config.TransportUDP, ControlURL: "ws://localhost/control"},
		Device:    config.DeviceConfig{DeviceSource: config.DeviceSource{Path: "mic.opus"}},
		Activations: []config.ActivationConfig{
			{ID: idVoice, Name: "voice", Type: config.ActivationVoice, Mode: config.ModeVoice, ThresholdDB: -40, Parent: true},
			{ID: idProx, Name: "proximity", Distance: 32, Transitive: true},
			{ID: idRadio, Name: "radio", Type: config.ActivationIndependent, Mode: config.ModePushToTalk, Distance: -1},
		},
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// newTestApp builds an App over a fakeConn and a mock opener.
func newTestApp(t *testing.T, cfg *config.Config, opts ...app.Option) (*app.App, *fakeConn, *devmock.Opener) {
	t.Helper()
	conn := newFakeConn()
	opener := &devmock.Opener{}
	opts = append([]app.Option{
		app.WithConnection(conn),
		app.WithOpener(opener),
		app.WithIdleBackoff(time.Millisecond),
	}, opts...)
	a, err := app.New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return a, conn, opener
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
