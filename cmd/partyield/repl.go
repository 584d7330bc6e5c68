package main

import (
	"github.com/spf13/cobra"

	"github.com/obsidianstack/partyield/internal/repl"
)

func newReplCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Long: `Start an interactive session in which ei, es, nx and o behave like
sliders: change one with 'set <param> <value>' and the yield is recomputed.

Type 'help' in the session for available commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			return repl.New(*cfg, cmd.OutOrStdout()).Run(cmd.Context())
		},
	}
}
