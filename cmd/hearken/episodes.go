package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/MrWong99/hearken/internal/config"
	"github.com/MrWong99/hearken/internal/journal"
)

func newEpisodesCmd(g *globals) *cobra.Command {
	var (
		limit int
		id    string
	)
	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "Show recent listening episodes from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := config.NewRegistry()
			registerBuiltins(reg, afero.NewOsFs())
			store, err := reg.CreateJournal(g.cfg.Journal)
			if err != nil {
				return fmt.Errorf("open journal %q: %w", g.cfg.Journal.Backend, err)
			}
			defer store.Close()

			var entries []journal.Entry
			if id != "" {
				e, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				entries = []journal.Entry{e}
			} else if entries, err = store.Recent(cmd.Context(), limit); err != nil {
				return err
			}
			return printEpisodes(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of episodes to show")
	cmd.Flags().StringVar(&id, "id", "", "show a single episode")
	return cmd
}

func printEpisodes(w io.Writer, entries []journal.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tMODE\tOUTCOME\tELAPSED\tDROPPED\tTEXT")
	for _, e := range entries {
		text := e.Text
		if e.WakeRule != "" {
			text += " (" + e.WakeRule + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%q\n",
			e.StartedAt.Local().Format(time.DateTime), e.Mode, e.Outcome,
			e.Elapsed.Round(time.Millisecond), e.Dropped, text)
	}
	return tw.Flush()
}
