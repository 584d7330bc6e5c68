package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/obsidianstack/partyield/internal/compute"
)

// evalCondition evaluates a rule condition string against a Result.
//
// Supported expressions (field operator value):
//
//	suitable_pct < 95
//	incorrigible_pct > 1
//	fixable_pct > 2
//	availability_pct < 90
//	suitable_delta < -1
//	state == incapable
//	state != capable
//
// Returns (fires, triggering value, ok). ok is false when the expression
// cannot be parsed, or when a numeric field is read from a result whose
// parameters were rejected; the rule is then neither fired nor resolved.
func evalCondition(cond string, res *compute.Result) (bool, float64, bool) {
	field, op, rhs, err := parseCondition(cond)
	if err != nil {
		return false, 0, false
	}

	if field == "state" {
		switch op {
		case "==":
			return res.State() == rhs, 0, true
		case "!=":
			return res.State() != rhs, 0, true
		}
		return false, 0, false
	}

	v, needsYield := numericField(field, res)
	if needsYield && res.Analysis.Err != nil {
		return false, 0, false
	}
	threshold, _ := strconv.ParseFloat(rhs, 64)
	return compareFloat(v, op, threshold), v, true
}

// CheckCondition reports whether cond is an expression evalCondition
// understands.
func CheckCondition(cond string) error {
	_, _, _, err := parseCondition(cond)
	return err
}

func parseCondition(cond string) (field, op, rhs string, err error) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("alerts: condition %q: want <field> <op> <value>", cond)
	}
	field, op, rhs = parts[0], parts[1], parts[2]

	if field == "state" {
		if op != "==" && op != "!=" {
			return "", "", "", fmt.Errorf("alerts: condition %q: state supports == and != only", cond)
		}
		return field, op, rhs, nil
	}
	if !numericFields[field] {
		return "", "", "", fmt.Errorf("alerts: condition %q: unknown field %q", cond, field)
	}
	switch op {
	case ">", ">=", "<", "<=", "==":
	default:
		return "", "", "", fmt.Errorf("alerts: condition %q: unknown operator %q", cond, op)
	}
	if _, perr := strconv.ParseFloat(rhs, 64); perr != nil {
		return "", "", "", fmt.Errorf("alerts: condition %q: threshold: %w", cond, perr)
	}
	return field, op, rhs, nil
}

var numericFields = map[string]bool{
	"suitable_pct":     true,
	"incorrigible_pct": true,
	"fixable_pct":      true,
	"suitable_delta":   true,
	"availability_pct": true,
}

// numericField maps a field name to its value in the result. The second
// return value is true for fields derived from the yield, which are
// meaningless when the analysis was rejected.
func numericField(field string, res *compute.Result) (float64, bool) {
	switch field {
	case "suitable_pct":
		return res.Analysis.Yield.Suitable, true
	case "incorrigible_pct":
		return res.Analysis.Yield.Incorrigible, true
	case "fixable_pct":
		return res.Analysis.Yield.Fixable, true
	case "suitable_delta":
		return res.SuitableDelta, true
	case "availability_pct":
		return res.AvailabilityPct, false
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
