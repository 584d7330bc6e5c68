package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/partyield/internal/compute"
	"github.com/obsidianstack/partyield/internal/repl"
)

func newCalcCmd(g *globals) *cobra.Command {
	var (
		pf       paramFlags
		decimals int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Compute suitable, incorrigible and fixable percentages",
		Example: `  partyield calc
  partyield calc --ei 0.006 --es 0.055 --nx 0.026 --o 0.012 -n 10000
  partyield calc --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			p, n, err := pf.resolve(cmd, cfg)
			if err != nil {
				return err
			}
			a := compute.Analyze(p, n)
			if a.Err != nil {
				return fmt.Errorf("calc: %w", a.Err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(a)
			}
			if !cmd.Flags().Changed("decimals") {
				decimals = cfg.Display.Decimals
			}
			if decimals < 0 {
				return fmt.Errorf("calc: decimals must be >= 0")
			}
			repl.PrintParams(out, a)
			repl.PrintAnalysis(out, a, decimals)
			return nil
		},
	}
	pf.register(cmd)
	cmd.Flags().IntVarP(&decimals, "decimals", "d", 2, "decimal places shown")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw, unrounded analysis as JSON")
	return cmd
}
