package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// DefaultWatchInterval is the polling period of a [Watcher].
const DefaultWatchInterval = 5 * time.Second

// Watcher reloads the config file, and optionally a dotenv file, when either
// changes on disk. A valid new config is handed to the change callback; an
// invalid edit is logged once and the previous config stays current.
type Watcher struct {
	path     string
	envFile  string
	interval time.Duration
	onChange func(old, new *Config) error

	mu      sync.Mutex
	current *Config
	seen    stamp
}

// stamp identifies one on-disk state of the watched files.
type stamp struct {
	mtime    time.Time
	envMtime time.Time
	sum      [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithEnvFile also watches a dotenv file whose variables back the process
// environment, as in [LoadWithEnvFile].
func WithEnvFile(path string) WatcherOption {
	return func(w *Watcher) { w.envFile = path }
}

// NewWatcher loads the config at path and returns a Watcher for it. Polling
// starts with [Watcher.Run]. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config) error, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.seen = st
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is cancelled. It always returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	mtime, envMtime, err := w.modTimes()
	if err != nil {
		slog.Warn("config: watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := mtime.Equal(w.seen.mtime) && envMtime.Equal(w.seen.envMtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, st, err := w.load()
	if err != nil {
		slog.Warn("config: watcher: rejected config change", "path", w.path, "err", err)
		// Remember the file times so a broken edit is reported once.
		w.mu.Lock()
		w.seen.mtime, w.seen.envMtime = mtime, envMtime
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	if st.sum == w.seen.sum {
		w.seen = st
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.seen = st
	w.mu.Unlock()

	slog.Info("config: watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		if err := w.onChange(old, cfg); err != nil {
			slog.Error("config: watcher: apply reloaded config", "err", err)
		}
	}
}

// modTimes stats both files. A missing env file has the zero time.
func (w *Watcher) modTimes() (mtime, envMtime time.Time, err error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if w.envFile != "" {
		if ei, err := os.Stat(w.envFile); err == nil {
			envMtime = ei.ModTime()
		}
	}
	return info.ModTime(), envMtime, nil
}

// load reads, parses and validates both files and returns the config with
// the stamp of the state it was built from.
func (w *Watcher) load() (*Config, stamp, error) {
	mtime, envMtime, err := w.modTimes()
	if err != nil {
		return nil, stamp{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, stamp{}, err
	}

	var envData []byte
	l := envconfig.OsLookuper()
	if w.envFile != "" {
		envData, err = os.ReadFile(w.envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			envData = nil
		case err != nil:
			return nil, stamp{}, err
		default:
			vars, err := godotenv.Parse(bytes.NewReader(envData))
			if err != nil {
				return nil, stamp{}, fmt.Errorf("parse env file %q: %w", w.envFile, err)
			}
			l = envconfig.MultiLookuper(envconfig.OsLookuper(), envconfig.MapLookuper(vars))
		}
	}

	h := sha256.New()
	h.Write(data)
	h.Write([]byte{0})
	h.Write(envData)
	st := stamp{mtime: mtime, envMtime: envMtime}
	copy(st.sum[:], h.Sum(nil))

	cfg, err := LoadWithLookuper(bytes.NewReader(data), l)
	if err != nil {
		return nil, stamp{}, err
	}
	return cfg, st, nil
}
