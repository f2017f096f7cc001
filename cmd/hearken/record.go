package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/MrWong99/hearken/internal/config"
	"github.com/MrWong99/hearken/pkg/audio/capture"
)

func newRecordCmd(g *globals) *cobra.Command {
	var (
		duration time.Duration
		out      string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a WAV clip from the configured source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := g.cfg
			fs := afero.NewOsFs()
			reg := config.NewRegistry()
			registerBuiltins(reg, fs)

			src, err := reg.CreateSource(cfg)
			if err != nil {
				return fmt.Errorf("create source %q: %w", cfg.Audio.Source, err)
			}
			if c, ok := src.(io.Closer); ok {
				defer c.Close()
			}

			path := out
			if path == "" {
				name := "recording-" + time.Now().Format("20060102-150405") + ".wav"
				path = filepath.Join(cfg.Audio.RecordingsDir, name)
			}
			slog.Info("recording", "source", cfg.Audio.Source, "duration", duration, "path", path)
			if err := capture.RecordToFile(cmd.Context(), src, fs, path, duration, cfg.Audio.Chunk); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 5*time.Second, "length of the recording")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: <audio.recordings_dir>/recording-<time>.wav)")
	return cmd
}
