// Package repl is the interactive partyield session: the four process
// parameters act like sliders that are adjusted one at a time, and the
// yield is recomputed after every change.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/obsidianstack/partyield/internal/compute"
	"github.com/obsidianstack/partyield/internal/config"
	"github.com/obsidianstack/partyield/pkg/types"
)

// CommandHandler handles one command's arguments.
type CommandHandler func(args []string) error

// Session holds the state of one interactive session.
type Session struct {
	cfg      config.Config
	params   types.Params
	n        int
	out      io.Writer
	commands map[string]CommandHandler
}

// New creates a Session starting from cfg's defaults and writing to out.
func New(cfg config.Config, out io.Writer) *Session {
	s := &Session{
		cfg:      cfg,
		params:   cfg.Defaults.Params(),
		n:        cfg.Defaults.Resolution,
		out:      out,
		commands: make(map[string]CommandHandler),
	}
	s.registerCommands()
	return s
}

// Params returns the current parameters and resolution.
func (s *Session) Params() (types.Params, int) { return s.params, s.n }

// Run reads commands from the terminal until exit, Ctrl+D or ctx is
// cancelled.
func (s *Session) Run(ctx context.Context) error {
	prompt := color.New(color.FgCyan).Sprint("partyield> ")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		AutoComplete:      completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            s.out,
	})
	if err != nil {
		return fmt.Errorf("repl: create readline: %w", err)
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	s.printWelcome()
	s.show()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := s.Exec(line); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			fmt.Fprintf(s.out, "%s %v\n", color.New(color.FgRed).Sprint("Error:"), err)
		}
	}
}

// Exec processes one input line. It returns io.EOF for exit commands.
func (s *Session) Exec(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	handler, ok := s.commands[strings.ToLower(parts[0])]
	if !ok {
		return fmt.Errorf("unknown command %q, type 'help'", parts[0])
	}
	return handler(parts[1:])
}

func (s *Session) registerCommands() {
	s.commands["set"] = s.cmdSet
	s.commands["show"] = s.cmdShow
	s.commands["reset"] = s.cmdReset
	s.commands["n"] = s.cmdResolution
	s.commands["help"] = s.cmdHelp
	s.commands["?"] = s.cmdHelp
	s.commands["exit"] = s.cmdExit
	s.commands["quit"] = s.cmdExit
}

func completer() *readline.PrefixCompleter {
	params := []readline.PrefixCompleterInterface{
		readline.PcItem("ei"), readline.PcItem("es"), readline.PcItem("nx"), readline.PcItem("o"),
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("set", params...),
		readline.PcItem("show"),
		readline.PcItem("reset"),
		readline.PcItem("n"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// cmdSet moves one slider: set <ei|es|nx|o> <value>. Values outside the
// slider range are clamped to it.
func (s *Session) cmdSet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: set <ei|es|nx|o> <value>")
	}
	name := strings.ToLower(args[0])
	rng, ok := s.cfg.Sliders.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown parameter %q, want one of ei, es, nx, o", args[0])
	}
	v, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("%s: not a number: %q", name, args[1])
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s: %w", name, types.ErrNotFinite)
	}

	clamped := rng.Clamp(v)
	if clamped != v {
		fmt.Fprintf(s.out, "%s %s clamped to %g (range %g..%g)\n",
			color.New(color.FgYellow).Sprint("Note:"), name, clamped, rng.Min, rng.Max)
	}

	switch name {
	case "ei":
		s.params.EI = clamped
	case "es":
		s.params.ES = clamped
	case "nx":
		s.params.NX = clamped
	case "o":
		s.params.O = clamped
	}
	s.show()
	return nil
}

func (s *Session) cmdShow(args []string) error {
	s.show()
	return nil
}

func (s *Session) cmdReset(args []string) error {
	s.params = s.cfg.Defaults.Params()
	s.n = s.cfg.Defaults.Resolution
	s.show()
	return nil
}

// cmdResolution sets the integration step count: n <steps>.
func (s *Session) cmdResolution(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: n <steps>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("n: not an integer: %q", args[0])
	}
	if err := compute.ValidateResolution(n); err != nil {
		return err
	}
	if limit := s.cfg.Limits.MaxResolution; limit > 0 && n > limit {
		return fmt.Errorf("n: %d exceeds the maximum of %d", n, limit)
	}
	s.n = n
	s.show()
	return nil
}

func (s *Session) cmdHelp(args []string) error {
	bold := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(s.out, "\n%s\n\n", bold("Commands:"))

	names := []string{"ei", "es", "nx", "o"}
	ranges := make([]string, 0, len(names))
	for _, n := range names {
		r, _ := s.cfg.Sliders.Lookup(n)
		ranges = append(ranges, fmt.Sprintf("%s %g..%g", n, r.Min, r.Max))
	}
	sort.Strings(ranges)

	for _, c := range []struct{ name, desc string }{
		{"set <param> <value>", "move a slider (" + strings.Join(ranges, ", ") + ")"},
		{"show", "print the current parameters and yield"},
		{"reset", "restore the configured defaults"},
		{"n <steps>", "set the integration resolution"},
		{"help, ?", "show this help"},
		{"exit, quit", "leave the session"},
	} {
		fmt.Fprintf(s.out, "  %-22s %s\n", green(c.name), c.desc)
	}
	fmt.Fprintln(s.out)
	return nil
}

func (s *Session) cmdExit(args []string) error {
	fmt.Fprintln(s.out, "Goodbye!")
	return io.EOF
}

func (s *Session) printWelcome() {
	bold := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(s.out, "\n%s\n", bold("partyield: tolerance yield calculator"))
	fmt.Fprintln(s.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(s.out)
}

func (s *Session) show() {
	a := compute.Analyze(s.params, s.n)
	PrintParams(s.out, a)
	PrintAnalysis(s.out, a, s.cfg.Display.Decimals)
}
