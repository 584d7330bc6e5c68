package repl

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/obsidianstack/partyield/internal/compute"
)

// stateColor returns the colour used to print a quality state.
func stateColor(state string) *color.Color {
	switch state {
	case compute.StateCapable:
		return color.New(color.FgGreen, color.Bold)
	case compute.StateMarginal:
		return color.New(color.FgYellow, color.Bold)
	case compute.StateIncapable:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgMagenta)
	}
}

// PrintAnalysis writes a human-readable summary of a with percentages
// rounded to decimals.
func PrintAnalysis(w io.Writer, a compute.Analysis, decimals int) {
	if a.Err != nil {
		fmt.Fprintf(w, "%s %v\n", stateColor(compute.StateUnknown).Sprint("invalid:"), a.Err)
		return
	}
	y := a.Yield.Round(decimals)
	label := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(w, "  %s  %.*f %%\n", label("suitable    "), decimals, y.Suitable)
	fmt.Fprintf(w, "  %s  %.*f %%\n", label("incorrigible"), decimals, y.Incorrigible)
	fmt.Fprintf(w, "  %s  %.*f %%\n", label("fixable     "), decimals, y.Fixable)
	fmt.Fprintf(w, "  %s  %s\n", label("state       "), stateColor(a.State).Sprint(a.State))
}

// PrintParams writes the parameter set, resolution and ±3σ envelope of a.
func PrintParams(w io.Writer, a compute.Analysis) {
	p := a.Params
	fmt.Fprintf(w, "  ei=%g  es=%g  nx=%g  o=%g  n=%d\n", p.EI, p.ES, p.NX, p.O, a.Resolution)
	if a.Err == nil {
		fmt.Fprintf(w, "  envelope [%g, %g]\n", a.EnvelopeLo, a.EnvelopeHi)
	}
}
