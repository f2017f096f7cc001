package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hearken/internal/app"
	"github.com/MrWong99/hearken/internal/assistant"
	"github.com/MrWong99/hearken/internal/config"
	"github.com/MrWong99/hearken/internal/health"
	"github.com/MrWong99/hearken/internal/observe"
	"github.com/MrWong99/hearken/pkg/audio/capture/mic"
)

// shutdownTimeout bounds the graceful shutdown.
const shutdownTimeout = 15 * time.Second

type listenFlags struct {
	source string
	device string
	file   string
	watch  bool
}

func newListenCmd(g *globals) *cobra.Command {
	f := &listenFlags{}
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run the assistant until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.source != "" {
				g.cfg.Audio.Source = f.source
			}
			if f.device != "" {
				g.cfg.Audio.Device = f.device
			}
			if f.file != "" {
				g.cfg.Audio.Source = "file"
				g.cfg.Audio.File = f.file
			}
			if err := config.Validate(g.cfg); err != nil {
				return err
			}
			return runListen(cmd.Context(), g, f.watch)
		},
	}
	cmd.Flags().StringVar(&f.source, "source", "", "override audio.source (mic, file, discord)")
	cmd.Flags().StringVar(&f.device, "device", "", "override audio.device")
	cmd.Flags().StringVar(&f.file, "file", "", "replay a WAV file instead of capturing live audio")
	cmd.Flags().BoolVar(&f.watch, "watch", true, "reload server.log_level when the config file changes")
	return cmd
}

func runListen(ctx context.Context, g *globals, watch bool) error {
	cfg := g.cfg
	slog.Info("hearken starting",
		"config", g.configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.Setup(ctx, "hearken", observe.WithVersion(version))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Components ────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltins(reg, afero.NewOsFs())

	comps, closers, err := buildComponents(cfg, reg)
	if err != nil {
		_ = closeAll(closers)
		return err
	}
	var opts []app.Option
	for _, c := range closers {
		opts = append(opts, app.WithCloser(c))
	}
	application, err := app.New(cfg, comps, opts...)
	if err != nil {
		_ = closeAll(append(closers, comps.Journal.Close))
		return fmt.Errorf("initialise application: %w", err)
	}

	printStartupSummary(cfg)

	// ── Run ───────────────────────────────────────────────────────────────────
	grp, gctx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gctx)
	defer stopWatch()
	if watch {
		w, err := config.NewWatcher(g.configPath)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			grp.Go(func() error {
				return w.Run(watchCtx, func(_ *config.Config, d config.ConfigDiff) {
					if d.LogLevelChanged {
						g.level.Set(slogLevel(d.NewLogLevel))
						slog.Info("log level changed", "level", d.NewLogLevel)
					}
					if len(d.RestartRequired) > 0 {
						slog.Warn("configuration changed; restart to apply", "sections", d.RestartRequired)
					}
				})
			})
		}
	}
	var srv *http.Server
	if cfg.Server.ListenAddr != "" {
		srv = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           health.NewMux(health.New(application.Checkers()...), observe.DefaultMetrics()),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		grp.Go(func() error {
			slog.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	grp.Go(func() error {
		err := application.Run(gctx)
		stopWatch()
		if srv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if serr := srv.Shutdown(sctx); serr != nil {
				slog.Warn("http server shutdown error", "err", serr)
			}
		}
		return err
	})
	runErr := grp.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// buildComponents instantiates everything cfg names. The returned closers
// must run even when an error is returned.
func buildComponents(cfg *config.Config, reg *config.Registry) (app.Components, []func() error, error) {
	var comps app.Components

	eng, closers, err := buildEngine(cfg, reg)
	if err != nil {
		return comps, closers, err
	}
	comps.Engine = eng

	if comps.LLM, err = buildLLM(cfg, reg); err != nil {
		return comps, closers, err
	}

	store, err := reg.CreateJournal(cfg.Journal)
	if err != nil {
		return comps, closers, fmt.Errorf("create journal %q: %w", cfg.Journal.Backend, err)
	}
	comps.Journal = store
	slog.Info("component created", "kind", "journal", "name", cfg.Journal.Backend)

	// The source is created last since the discord source connects on
	// creation.
	src, err := reg.CreateSource(cfg)
	if err != nil {
		closers = append(closers, store.Close)
		return comps, closers, fmt.Errorf("create source %q: %w", cfg.Audio.Source, err)
	}
	comps.Source = src
	if c, ok := src.(io.Closer); ok {
		closers = append(closers, c.Close)
	}
	slog.Info("component created", "kind", "source", "name", cfg.Audio.Source, "format", src.Format())

	var player assistant.Player
	if cfg.Assistant.PlayBeep {
		player = mic.Player{}
	}
	comps.Responder = assistant.NewConsole(os.Stdout, player, app.Beep(cfg))
	return comps, closers, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         hearken, startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Wake phrase", cfg.Wake.Phrase)
	printRow("Source", cfg.Audio.Source)
	printRow("Recognizer", cfg.Recognizer.Name)
	for _, fb := range cfg.Recognizer.Fallback {
		printRow("  fallback", fb.Name)
	}
	printRow("LLM", cfg.LLM.Name+" / "+cfg.LLM.Model)
	printRow("Journal", cfg.Journal.Backend)
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
