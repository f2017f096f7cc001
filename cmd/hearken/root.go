package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrWong99/hearken/internal/config"
)

// globals holds the persistent flags and the state they produce.
type globals struct {
	configPath string
	logLevel   string

	cfg   *config.Config
	level slog.LevelVar
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:     "hearken",
		Short:   "Wake-phrase voice assistant",
		Version: version,
		Long: `hearken listens for a spoken wake phrase, records the command that
follows and answers it through an LLM.

Commands:
  listen      run the assistant (default)
  transcribe  transcribe a WAV file
  record      record a WAV clip from the configured source
  devices     list audio input devices
  episodes    show recent listening episodes from the journal`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "devices" {
				return nil
			}
			return g.load(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "hearken.yaml", "path to the YAML or TOML configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override server.log_level (debug, info, warn, error)")

	listenCmd := newListenCmd(g)
	root.RunE = listenCmd.RunE
	root.Flags().AddFlagSet(listenCmd.Flags())
	root.AddCommand(
		listenCmd,
		newTranscribeCmd(g),
		newRecordCmd(g),
		newDevicesCmd(),
		newEpisodesCmd(g),
	)
	return root
}

// load reads the configuration, applies flag overrides and installs the
// default logger.
func (g *globals) load(cmd *cobra.Command) error {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		lvl := config.LogLevel(g.logLevel)
		if !lvl.IsValid() {
			return fmt.Errorf("--log-level %q is invalid; valid values: debug, info, warn, error", g.logLevel)
		}
		cfg.Server.LogLevel = lvl
	}
	g.cfg = cfg
	slog.SetDefault(newLogger(cfg.Server.LogLevel, &g.level))
	slog.Debug("configuration loaded", "path", g.configPath, "command", cmd.Name())
	return nil
}
