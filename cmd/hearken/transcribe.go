package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/MrWong99/hearken/internal/config"
	"github.com/MrWong99/hearken/internal/listen"
	"github.com/MrWong99/hearken/pkg/audio/capture/file"
	"github.com/MrWong99/hearken/pkg/provider/stt"
)

func newTranscribeCmd(g *globals) *cobra.Command {
	var chunk time.Duration
	cmd := &cobra.Command{
		Use:   "transcribe <file.wav>",
		Short: "Transcribe a WAV file with the configured recognizer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			fs := afero.NewOsFs()
			reg := config.NewRegistry()
			registerBuiltins(reg, fs)

			rate := cfg.Audio.SampleRate
			samples, err := file.New(fs, args[0], rate).Load()
			if err != nil {
				return err
			}

			eng, closers, err := buildEngine(cfg, reg)
			defer func() {
				if err := closeAll(closers); err != nil {
					slog.Warn("close recognizer", "err", err)
				}
			}()
			if err != nil {
				return err
			}

			text, err := listen.Transcribe(cmd.Context(), eng, samples, rate, chunk, stt.WithLogger(slog.Default()))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().DurationVar(&chunk, "chunk", 250*time.Millisecond, "audio fed to the recognizer per step")
	return cmd
}
