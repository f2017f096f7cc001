package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// ChangeFunc receives a reloaded config and how it differs from the previous
// one. It is only called when the diff is non-empty.
type ChangeFunc func(cfg *Config, d ConfigDiff)

// Watcher keeps the last valid config read from a file. Edits that fail to
// parse or validate are logged once and otherwise ignored.
type Watcher struct {
	fs       afero.Fs
	path     string
	format   Format
	interval time.Duration

	mu      sync.Mutex
	current *Config
	seen    fileStamp
}

// fileStamp identifies one revision of the watched file.
type fileStamp struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5 s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithFs reads the config through fs instead of the OS filesystem.
func WithFs(fs afero.Fs) WatcherOption {
	return func(w *Watcher) { w.fs = fs }
}

// NewWatcher reads and validates path. The format follows [FormatFor].
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		fs:       afero.NewOsFs(),
		path:     path,
		format:   FormatFor(path),
		interval: 5 * time.Second,
	}
	for _, o := range opts {
		o(w)
	}

	st, err := w.stat()
	if err != nil {
		return nil, err
	}
	cfg, st, err := w.read(st)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, st
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is done and hands every effective change to
// fn. It always returns nil.
func (w *Watcher) Run(ctx context.Context, fn ChangeFunc) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		cfg, d, err := w.Reload()
		switch {
		case err != nil:
			slog.Warn("config: reload rejected, keeping previous config", "path", w.path, "err", err)
		case d.Changed() && fn != nil:
			fn(cfg, d)
		}
	}
}

// Reload re-reads the file if its size, mtime or content changed and returns
// the current config with its diff from the previous one. A revision that
// fails to load is reported once; later calls treat it as unchanged.
func (w *Watcher) Reload() (*Config, ConfigDiff, error) {
	st, err := w.stat()
	if err != nil {
		return nil, ConfigDiff{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if st.mtime.Equal(w.seen.mtime) && st.size == w.seen.size {
		return w.current, ConfigDiff{}, nil
	}

	cfg, st, err := w.read(st)
	if st.sum == ([sha256.Size]byte{}) {
		// Unreadable, try again on the next poll.
		return nil, ConfigDiff{}, err
	}
	if st.sum == w.seen.sum {
		w.seen = st
		return w.current, ConfigDiff{}, nil
	}
	w.seen = st
	if err != nil {
		return nil, ConfigDiff{}, err
	}

	d := Diff(w.current, cfg)
	w.current = cfg
	if d.Changed() {
		slog.Info("config: reloaded", "path", w.path, "log_level_changed", d.LogLevelChanged, "restart_required", d.RestartRequired)
	}
	return cfg, d, nil
}

func (w *Watcher) stat() (fileStamp, error) {
	info, err := w.fs.Stat(w.path)
	if err != nil {
		return fileStamp{}, fmt.Errorf("config: stat %s: %w", w.path, err)
	}
	return fileStamp{mtime: info.ModTime(), size: info.Size()}, nil
}

// read fills in st.sum even when the content does not load.
func (w *Watcher) read(st fileStamp) (*Config, fileStamp, error) {
	data, err := afero.ReadFile(w.fs, w.path)
	if err != nil {
		return nil, st, err
	}
	st.sum = sha256.Sum256(data)
	cfg, err := parse(data, w.format)
	return cfg, st, err
}
