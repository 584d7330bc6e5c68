package api

import (
	"fmt"
	"math"
	"sort"

	"github.com/obsidianstack/partyield/internal/compute"
)

// DiagnosticHint is one human-readable insight about a tolerance problem.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// Capability thresholds for the tolerance-width / process-spread ratio.
const (
	minCapability  = 1.0
	goodCapability = 1.33

	// offCenterSigmas is the mean shift from the tolerance midpoint, in
	// standard deviations, above which the set-up is reported as off-center.
	offCenterSigmas = 0.5
)

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeDiagnostics derives hints from an analysis. errMsg is the reason
// the parameters could not be obtained, if any.
// Diagnostics are ordered: critical first, then warnings, then info.
func computeDiagnostics(a compute.Analysis, errMsg string) []DiagnosticHint {
	if errMsg == "" && a.Err != nil {
		errMsg = a.Err.Error()
	}
	if errMsg != "" {
		return []DiagnosticHint{{
			Key:   "invalid_parameters",
			Level: "critical",
			Title: "No valid parameters",
			Detail: fmt.Sprintf(
				"The yield could not be computed: %s. "+
					"Check the scenario's source or the submitted values; "+
					"the standard deviation must be a positive finite number.",
				errMsg,
			),
		}}
	}

	p := a.Params
	var hints []DiagnosticHint

	if p.EI > p.ES {
		return []DiagnosticHint{{
			Key:   "limits_reversed",
			Level: "critical",
			Title: "Limits reversed",
			Detail: fmt.Sprintf(
				"The lower limit ei=%g is above the upper limit es=%g. "+
					"The percentages are computed anyway but have no physical meaning; "+
					"swap the two limits.",
				p.EI, p.ES,
			),
		}}
	}

	// Capability: tolerance width against the ±3σ process spread.
	cp := (p.ES - p.EI) / (2 * 3 * p.O)
	if cp < goodCapability {
		v := cp
		level, title := "warning", "Spread is tight"
		detail := fmt.Sprintf(
			"The tolerance band is only %.2f times the ±3σ process spread. "+
				"Small drifts of the set-up will push parts out of tolerance; "+
				"a ratio of at least %.2f is usually wanted.",
			cp, goodCapability,
		)
		if cp < minCapability {
			level, title = "critical", "Spread too wide"
			detail = fmt.Sprintf(
				"The process spread (6σ = %g) is wider than the tolerance band (%g), "+
					"so defects occur even with a perfectly centred set-up. "+
					"Reduce the standard deviation or widen the tolerance.",
				6*p.O, p.ES-p.EI,
			)
		}
		hints = append(hints, DiagnosticHint{Key: "capability", Level: level, Title: title, Detail: detail, Value: &v})
	}

	// Centring: distance of the set-up from the tolerance midpoint.
	mid := (p.EI + p.ES) / 2
	shift := (p.NX - mid) / p.O
	if math.Abs(shift) >= offCenterSigmas {
		v := shift
		side, outcome := "upper", "repairable oversize parts"
		if shift < 0 {
			side, outcome = "lower", "irreparable undersize parts"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "off_center",
			Level: "warning",
			Title: "Set-up off-center",
			Detail: fmt.Sprintf(
				"The target dimension nx=%g sits %.2fσ toward the %s limit from the "+
					"tolerance midpoint %g, which produces more %s. "+
					"Moving nx to the midpoint balances the two defect types.",
				p.NX, math.Abs(shift), side, mid, outcome,
			),
			Value: &v,
		})
	}

	// Scrap vs rework: irreparable defects cost more than repairable ones.
	y := a.Yield
	if y.Incorrigible > 0.1 && y.Incorrigible > y.Fixable {
		v := y.Incorrigible
		hints = append(hints, DiagnosticHint{
			Key:   "scrap_dominant",
			Level: "info",
			Title: "Scrap exceeds rework",
			Detail: fmt.Sprintf(
				"%.2f%% of parts are irreparable against %.2f%% repairable. "+
					"Shifting nx slightly toward es turns part of the scrap into rework.",
				y.Incorrigible, y.Fixable,
			),
			Value: &v,
		})
	}

	// Limits beyond the envelope: the model only integrates to ±3σ.
	lo, hi := p.Envelope()
	if p.EI < lo || p.ES > hi {
		hints = append(hints, DiagnosticHint{
			Key:   "beyond_envelope",
			Level: "info",
			Title: "Limit beyond ±3σ",
			Detail: fmt.Sprintf(
				"A tolerance limit lies outside the process envelope [%g, %g]. "+
					"Defect shares are measured up to ±3σ only, so the share on that "+
					"side is reported as zero or slightly negative.",
				lo, hi,
			),
		})
	}

	if !hasProblem(hints) {
		v := y.Suitable
		hints = append(hints, DiagnosticHint{
			Key:   "capable",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf(
				"%.2f%% of parts fall inside the tolerance with a centred set-up and "+
					"a tolerance band %.2f times the process spread.",
				y.Suitable, cp,
			),
			Value: &v,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}

func hasProblem(hints []DiagnosticHint) bool {
	for _, h := range hints {
		if h.Level == "critical" || h.Level == "warning" {
			return true
		}
	}
	return false
}
