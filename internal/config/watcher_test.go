package config_test

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/hearken/internal/config"
)

const (
	baseYAML = `
server:
  log_level: info
wake:
  phrase: computer
`
	debugYAML = `
server:
  log_level: debug
wake:
  phrase: computer
`
	newPhraseYAML = `
server:
  log_level: info
wake:
  phrase: jarvis
`
	badYAML = `
server:
  log_level: bananas
`
)

func memConfig(t *testing.T, name, content string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, name, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return fs
}

func rewrite(t *testing.T, fs afero.Fs, name, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, name, []byte(content), 0o644); err != nil {
		t.Fatalf("rewrite %s: %v", name, err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	fs := memConfig(t, "hearken.yaml", baseYAML)
	w, err := config.NewWatcher("hearken.yaml", config.WithFs(fs))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("log_level = %q, want info", got)
	}
	if got := w.Current().Listen.QueueSize; got != 8 {
		t.Errorf("defaults not applied: queue_size = %d", got)
	}
}

func TestWatcher_TOML(t *testing.T) {
	t.Parallel()
	fs := memConfig(t, "hearken.toml", "[server]\nlog_level = \"error\"\n")
	w, err := config.NewWatcher("hearken.toml", config.WithFs(fs))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if got := w.Current().Server.LogLevel; got != config.LogError {
		t.Errorf("log_level = %q, want error", got)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("absent.yaml", config.WithFs(afero.NewMemMapFs())); err == nil {
		t.Error("expected error for missing file")
	}
	fs := memConfig(t, "bad.yaml", badYAML)
	if _, err := config.NewWatcher("bad.yaml", config.WithFs(fs)); err == nil {
		t.Error("expected error for invalid file")
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()
	fs := memConfig(t, "hearken.yaml", baseYAML)
	w, err := config.NewWatcher("hearken.yaml", config.WithFs(fs))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	if _, d, err := w.Reload(); err != nil || d.Changed() {
		t.Fatalf("untouched file: diff=%+v err=%v", d, err)
	}

	rewrite(t, fs, "hearken.yaml", debugYAML)
	cfg, d, err := w.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug || len(d.RestartRequired) != 0 {
		t.Errorf("diff = %+v, want log level change only", d)
	}
	if cfg != w.Current() {
		t.Error("Current() does not return the reloaded config")
	}

	rewrite(t, fs, "hearken.yaml", newPhraseYAML)
	_, d, err = w.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !slices.Equal(d.RestartRequired, []string{"wake"}) {
		t.Errorf("restart_required = %v, want [wake]", d.RestartRequired)
	}
}

func TestWatcher_InvalidEditKeepsConfig(t *testing.T) {
	t.Parallel()
	fs := memConfig(t, "hearken.yaml", baseYAML)
	w, err := config.NewWatcher("hearken.yaml", config.WithFs(fs))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	rewrite(t, fs, "hearken.yaml", badYAML)
	if _, _, err := w.Reload(); err == nil {
		t.Fatal("expected invalid edit to be rejected")
	}
	if _, _, err := w.Reload(); err != nil {
		t.Errorf("same invalid revision reported twice: %v", err)
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("log_level = %q, want previous info", got)
	}

	rewrite(t, fs, "hearken.yaml", debugYAML)
	if _, d, err := w.Reload(); err != nil || !d.LogLevelChanged {
		t.Errorf("fixed file: diff=%+v err=%v", d, err)
	}
}

func TestWatcher_RunDeliversChanges(t *testing.T) {
	t.Parallel()
	fs := memConfig(t, "hearken.yaml", baseYAML)
	w, err := config.NewWatcher("hearken.yaml", config.WithFs(fs), config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan config.ConfigDiff, 1)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ *config.Config, d config.ConfigDiff) {
			select {
			case got <- d:
			default:
			}
		})
	}()

	rewrite(t, fs, "hearken.yaml", debugYAML)
	select {
	case d := <-got:
		if d.NewLogLevel != config.LogDebug {
			t.Errorf("diff = %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
