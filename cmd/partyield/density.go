package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/partyield/internal/compute"
	"github.com/obsidianstack/partyield/pkg/types"
)

func newDensityCmd(g *globals) *cobra.Command {
	var (
		x, mean, std float64
		useConfig    bool
	)
	cmd := &cobra.Command{
		Use:   "density",
		Short: "Evaluate the normal probability density at x",
		Long: `Evaluate the normal probability density at x. Without --mean and --std the
standard normal (mean 0, std 1) is used; --use-config takes the configured
nx and o instead.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("x") {
				return fmt.Errorf("density: --x is required")
			}
			if useConfig {
				cfg, err := g.loadConfig()
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("mean") {
					mean = cfg.Defaults.NX
				}
				if !cmd.Flags().Changed("std") {
					std = cfg.Defaults.O
				}
			}
			if err := (types.Params{EI: x, ES: x, NX: mean, O: std}).Validate(); err != nil {
				return fmt.Errorf("density: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%g\n", compute.Density(x, mean, std))
			return nil
		},
	}
	cmd.Flags().Float64Var(&x, "x", 0, "point to evaluate")
	cmd.Flags().Float64Var(&mean, "mean", 0, "distribution mean")
	cmd.Flags().Float64Var(&std, "std", 1, "standard deviation")
	cmd.Flags().BoolVar(&useConfig, "use-config", false, "default mean and std to the configured nx and o")
	return cmd
}

func newCurveCmd(g *globals) *cobra.Command {
	var (
		nx, o, width float64
		points       int
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "curve",
		Short: "Sample the density curve across the process envelope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			if !fs.Changed("nx") {
				nx = cfg.Defaults.NX
			}
			if !fs.Changed("o") {
				o = cfg.Defaults.O
			}
			if !fs.Changed("points") {
				points = cfg.Curve.Points
			}
			if !fs.Changed("width") {
				width = cfg.Curve.Width
			}
			if err := (types.Params{NX: nx, O: o}).Validate(); err != nil {
				return fmt.Errorf("curve: %w", err)
			}
			if points < 1 || width <= 0 {
				return fmt.Errorf("curve: points must be >= 1 and width > 0")
			}

			pts := compute.SampleCurve(nx, o, width, points)
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(pts)
			}
			for _, pt := range pts {
				fmt.Fprintf(out, "%g\t%g\n", pt.X, pt.Y)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&nx, "nx", 0, "target dimension (default: configured nx)")
	cmd.Flags().Float64Var(&o, "o", 0, "standard deviation (default: configured o)")
	cmd.Flags().Float64Var(&width, "width", 0, "half-width in standard deviations (default: configured)")
	cmd.Flags().IntVar(&points, "points", 0, "number of samples (default: configured)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of tab-separated x, y")
	return cmd
}

func newRegionsCmd(g *globals) *cobra.Command {
	var (
		pf     paramFlags
		points int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "Print the suitable, incorrigible and fixable intervals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			p, _, err := pf.resolve(cmd, cfg)
			if err != nil {
				return err
			}
			if err := p.Validate(); err != nil {
				return fmt.Errorf("regions: %w", err)
			}
			if points < 1 {
				return fmt.Errorf("regions: points must be >= 1")
			}

			regions := compute.Regions(p, points)
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(regions)
			}
			for _, r := range regions {
				fmt.Fprintf(out, "%-13s [%g, %g]\n", r.Name, r.From, r.To)
			}
			return nil
		},
	}
	pf.register(cmd)
	cmd.Flags().IntVar(&points, "points", 100, "density samples per region")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print regions with their sampled density as JSON")
	return cmd
}
