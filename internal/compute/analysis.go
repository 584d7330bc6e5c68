package compute

import (
	"fmt"
	"math"

	"github.com/obsidianstack/partyield/pkg/types"
)

// State constants returned by Analyze.
const (
	StateCapable   = "capable"
	StateMarginal  = "marginal"
	StateIncapable = "incapable"
	StateUnknown   = "unknown"
)

// Thresholds on the suitable percentage that map a yield to a state.
// ThresholdCapable is the share of a normal distribution inside ±3σ.
const (
	ThresholdCapable  = 99.73
	ThresholdMarginal = 95.0
)

// Analysis is a classified tolerance problem, ready to be stored, shipped to
// clients or rendered.
type Analysis struct {
	Params     types.Params `json:"params"`
	Resolution int          `json:"resolution"`

	// Yield is the raw, unrounded classifier output.
	Yield types.Yield `json:"yield"`

	// State is derived from Yield.Suitable.
	// One of: "capable", "marginal", "incapable", "unknown".
	State string `json:"state"`

	// EnvelopeLo and EnvelopeHi bound the ±3σ process envelope.
	EnvelopeLo float64 `json:"envelope_lo"`
	EnvelopeHi float64 `json:"envelope_hi"`

	// Err is the validation error for rejected input. Yield is zero when set.
	Err error `json:"-"`
}

// Analyze validates p and n, runs the classifier and derives the quality
// state. Parameters whose z-scores overflow are rejected like invalid ones. Invalid input never reaches the core: the returned Analysis has
// State "unknown" and Err set instead.
func Analyze(p types.Params, n int) Analysis {
	a := Analysis{Params: p, Resolution: n}
	if err := p.Validate(); err != nil {
		a.State = StateUnknown
		a.Err = err
		return a
	}
	if err := ValidateResolution(n); err != nil {
		a.State = StateUnknown
		a.Err = err
		return a
	}

	lo, hi := p.Envelope()
	if !finite(p.Z(p.EI), p.Z(p.ES), lo, hi) {
		a.State = StateUnknown
		a.Err = fmt.Errorf("z-score: %w", types.ErrNotFinite)
		return a
	}

	y := Calculate(p, n)
	if !finite(y.Suitable, y.Incorrigible, y.Fixable) {
		a.State = StateUnknown
		a.Err = fmt.Errorf("yield: %w", types.ErrNotFinite)
		return a
	}
	a.Yield = y
	a.State = StateFromSuitable(y.Suitable)
	a.EnvelopeLo, a.EnvelopeHi = lo, hi
	return a
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// StateFromSuitable maps a suitable percentage to a named state. It never
// returns StateUnknown.
func StateFromSuitable(pct float64) string {
	switch {
	case pct >= ThresholdCapable:
		return StateCapable
	case pct >= ThresholdMarginal:
		return StateMarginal
	default:
		return StateIncapable
	}
}
