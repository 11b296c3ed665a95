package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voxlink/internal/capture"
)

// SessionInfo holds metadata about the active capture session.
type SessionInfo struct {
	// ID uniquely identifies this session. It changes on every reconnect.
	ID uuid.UUID `json:"id"`

	// VoiceAddr is the server's voice endpoint.
	VoiceAddr string `json:"voice_addr"`

	// Codec is the negotiated codec, or "raw" when frames are sent as PCM.
	Codec string `json:"codec"`

	// Encryption is the negotiated cipher, or empty for cleartext.
	Encryption string `json:"encryption,omitempty"`

	// StartedAt is when capture started for this session.
	StartedAt time.Time `json:"started_at"`
}

// SessionManager ties the capture worker to the server session: a new
// worker starts on every established session and the old one is joined when
// the session drops. At most one session is active at a time.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	pipeline *capture.Pipeline
	conn     capture.Connection

	mu     sync.Mutex
	active bool
	info   SessionInfo
}

// NewSessionManager creates a SessionManager driving p over conn.
func NewSessionManager(p *capture.Pipeline, conn capture.Connection) *SessionManager {
	return &SessionManager{pipeline: p, conn: conn}
}

// OnConnect adopts the parameters of the session that was just established
// and starts a fresh capture worker. Any previous worker is joined first.
func (sm *SessionManager) OnConnect(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.pipeline.Stop()
	sm.pipeline.Wait()
	sm.active = false

	info, ok := sm.conn.ServerInfo()
	if !ok {
		slog.Warn("session: connected without server info, capture not started")
		return
	}
	if err := sm.pipeline.Initialize(ctx, info); err != nil {
		slog.Error("session: initialize capture", "err", err)
		return
	}
	sm.pipeline.Start(ctx)

	codecName := "raw"
	if info.Capture.Codec != nil {
		codecName = info.Capture.Codec.Name
	}
	var cipher string
	if info.Encryption != nil {
		cipher = info.Encryption.Name()
	}
	sm.active = true
	sm.info = SessionInfo{
		ID:         uuid.New(),
		VoiceAddr:  info.VoiceAddr,
		Codec:      codecName,
		Encryption: cipher,
		StartedAt:  time.Now(),
	}
	slog.Info("session started",
		"session_id", sm.info.ID,
		"voice_addr", info.VoiceAddr,
		"codec", codecName,
	)
}

// OnDisconnect stops the capture worker and waits for its teardown.
func (sm *SessionManager) OnDisconnect() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.stopLocked()
}

// Stop ends the active session. It returns the context error if ctx expires
// before the worker has torn down; the worker still finishes in the
// background.
func (sm *SessionManager) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		sm.mu.Lock()
		defer sm.mu.Unlock()
		sm.stopLocked()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sm *SessionManager) stopLocked() {
	sm.pipeline.Stop()
	sm.pipeline.Wait()
	if sm.active {
		slog.Info("session stopped", "session_id", sm.info.ID)
	}
	sm.active = false
	sm.info = SessionInfo{}
}

// IsActive reports whether a session is currently capturing.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the active session.
// Returns a zero value if no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}
