package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/partyield/internal/config"
	"github.com/obsidianstack/partyield/pkg/types"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "partyield",
		Short: "Tolerance yield calculator",
		Long: `partyield estimates, for a normally distributed process with mean nx and
standard deviation o, the percentage of parts that fall inside the tolerance
limits [ei, es] (suitable), below ei (incorrigible) and above es (fixable).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd.ErrOrStderr(), g.logLevel)
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config file (defaults and environment only when empty)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level: debug | info | warn | error")

	root.AddCommand(
		newCalcCmd(g),
		newDensityCmd(g),
		newCurveCmd(g),
		newRegionsCmd(g),
		newReplCmd(g),
		newServeCmd(g),
		newHistoryCmd(g),
	)
	return root
}

// setupLogging installs a JSON slog handler at the given level as the
// process-wide default.
func setupLogging(w io.Writer, level string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// loadConfig reads the config file named by --config, or the built-in
// defaults with environment overrides when no file is given.
func (g *globals) loadConfig() (*config.Config, error) {
	if g.configPath == "" {
		return config.FromEnv()
	}
	return config.Load(g.configPath)
}

// paramFlags are the tolerance problem flags shared by calc and regions.
// Flags that are not set fall back to the configured defaults.
type paramFlags struct {
	ei, es, nx, o float64
	n             int
}

func (f *paramFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Float64Var(&f.ei, "ei", config.DefaultEI, "lower tolerance limit")
	fs.Float64Var(&f.es, "es", config.DefaultES, "upper tolerance limit")
	fs.Float64Var(&f.nx, "nx", config.DefaultNX, "target dimension (process mean)")
	fs.Float64Var(&f.o, "o", config.DefaultO, "standard deviation")
	fs.IntVarP(&f.n, "resolution", "n", config.DefaultResolution, "integration steps")
}

func (f *paramFlags) resolve(cmd *cobra.Command, cfg *config.Config) (types.Params, int, error) {
	p := cfg.Defaults.Params()
	n := cfg.Defaults.Resolution
	fs := cmd.Flags()
	if fs.Changed("ei") {
		p.EI = f.ei
	}
	if fs.Changed("es") {
		p.ES = f.es
	}
	if fs.Changed("nx") {
		p.NX = f.nx
	}
	if fs.Changed("o") {
		p.O = f.o
	}
	if fs.Changed("resolution") {
		n = f.n
	}
	if limit := cfg.Limits.MaxResolution; limit > 0 && n > limit {
		return p, n, fmt.Errorf("resolution %d exceeds the maximum of %d", n, limit)
	}
	return p, n, nil
}
