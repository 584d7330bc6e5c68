package main

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/obsidianstack/partyield/internal/history"
)

func newHistoryCmd(g *globals) *cobra.Command {
	var (
		dbPath   string
		scenario string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded scenario evaluations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if dbPath == "" {
				dbPath = cfg.Storage.Path
			}
			hs, err := history.Open(dbPath)
			if err != nil {
				return err
			}
			defer hs.Close()

			runs, err := hs.List(cmd.Context(), scenario, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, color.New(color.FgHiBlack).Sprint("No runs recorded"))
				return nil
			}
			d := cfg.Display.Decimals
			for _, r := range runs {
				y := r.Yield.Round(d)
				state := r.State
				if r.Error != "" {
					state += " (" + r.Error + ")"
				}
				fmt.Fprintf(out, "%s  %-16s  %.*f / %.*f / %.*f  %s\n",
					r.RecordedAt.Local().Format("2006-01-02 15:04:05"),
					r.ScenarioID,
					d, y.Suitable, d, y.Incorrigible, d, y.Fixable,
					state,
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database (default: storage.path)")
	cmd.Flags().StringVarP(&scenario, "scenario", "s", "", "only list this scenario")
	cmd.Flags().IntVarP(&limit, "limit", "l", history.DefaultListLimit, "maximum number of runs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print runs as JSON")
	return cmd
}
