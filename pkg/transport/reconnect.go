package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ErrRetriesExhausted is returned by [Reconnector.Run] when every connection
// attempt in a cycle failed.
var ErrRetriesExhausted = errors.New("transport: reconnection failed after max retries")

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Connector establishes sessions.
	Connector Connector

	// Name labels log messages.
	Name string

	// MaxRetries is the number of consecutive failed attempts before Run
	// gives up. Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial delay between attempts. Doubles each attempt up
	// to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the delay. Defaults to 30s if zero.
	MaxBackoff time.Duration

	// OnConnect is called after every successful connection. May be nil.
	OnConnect func(ctx context.Context)

	// OnDisconnect is called when a session ends, before reconnecting.
	// May be nil.
	OnDisconnect func()
}

// Reconnector keeps a [Connector] connected: it connects, waits for the
// session to drop, and reconnects with exponential backoff.
type Reconnector struct {
	connector    Connector
	name         string
	maxRetries   int
	backoff      time.Duration
	maxBackoff   time.Duration
	onConnect    func(context.Context)
	onDisconnect func()
}

// NewReconnector creates a [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Reconnector{
		connector:    cfg.Connector,
		name:         cfg.Name,
		maxRetries:   maxRetries,
		backoff:      backoff,
		maxBackoff:   maxBackoff,
		onConnect:    cfg.OnConnect,
		onDisconnect: cfg.OnDisconnect,
	}
}

// Run connects and keeps reconnecting until ctx is cancelled, in which case
// it disconnects and returns nil. It returns [ErrRetriesExhausted] when a
// full cycle of attempts fails.
func (r *Reconnector) Run(ctx context.Context) error {
	for {
		if err := r.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if r.onConnect != nil {
			r.onConnect(ctx)
		}

		select {
		case <-ctx.Done():
			if r.onDisconnect != nil {
				r.onDisconnect()
			}
			if err := r.connector.Disconnect(); err != nil {
				slog.Warn("transport: disconnect", "name", r.name, "err", err)
			}
			return nil
		case <-r.connector.Done():
			slog.Warn("transport: session ended, reconnecting", "name", r.name)
			if r.onDisconnect != nil {
				r.onDisconnect()
			}
		}
	}
}

// connect tries to establish a session with exponential backoff.
func (r *Reconnector) connect(ctx context.Context) error {
	currentBackoff := r.backoff

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		slog.Info("transport: connecting",
			"name", r.name,
			"attempt", attempt,
			"max_retries", r.maxRetries,
		)

		err := r.connector.Connect(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		slog.Warn("transport: connection attempt failed",
			"name", r.name,
			"attempt", attempt,
			"backoff", currentBackoff,
			"err", err,
		)

		if attempt == r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(currentBackoff):
		}

		currentBackoff = min(currentBackoff*2, r.maxBackoff)
	}

	slog.Error("transport: giving up",
		"name", r.name,
		"max_retries", r.maxRetries,
	)
	return fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}
