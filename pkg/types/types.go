package types

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors returned by Params.Validate.
var (
	ErrZeroSigma     = errors.New("standard deviation must not be zero")
	ErrNegativeSigma = errors.New("standard deviation must be positive")
	ErrNotFinite     = errors.New("parameter is not a finite number")
)

// EnvelopeSigmas is the half-width of the process envelope in standard
// deviations: parts are assumed to fall within [nx-3o, nx+3o].
const EnvelopeSigmas = 3.0

// Params describes one tolerance problem.
//
// EI <= ES is a caller contract. Validate does not enforce it: reversed limits
// produce well-defined, if meaningless, percentages.
type Params struct {
	// EI is the lower tolerance limit.
	EI float64 `json:"ei" yaml:"ei"`
	// ES is the upper tolerance limit.
	ES float64 `json:"es" yaml:"es"`
	// NX is the target (set-up) dimension, i.e. the process mean.
	NX float64 `json:"nx" yaml:"nx"`
	// O is the process standard deviation.
	O float64 `json:"o" yaml:"o"`
}

// Validate reports whether p can be handed to the numeric core without
// triggering a fatal numeric fault.
func (p Params) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"ei", p.EI}, {"es", p.ES}, {"nx", p.NX}, {"o", p.O}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s: %w", f.name, ErrNotFinite)
		}
	}
	switch {
	case p.O == 0:
		return fmt.Errorf("o: %w", ErrZeroSigma)
	case p.O < 0:
		return fmt.Errorf("o: %w", ErrNegativeSigma)
	}
	return nil
}

// Z converts a boundary on the part dimension scale to a z-score relative to
// the process mean and spread.
func (p Params) Z(boundary float64) float64 {
	return (boundary - p.NX) / p.O
}

// Envelope returns the ±3σ process envelope [nx-3o, nx+3o].
func (p Params) Envelope() (lo, hi float64) {
	return p.NX - EnvelopeSigmas*p.O, p.NX + EnvelopeSigmas*p.O
}

// Yield holds the three percentages produced by the classifier.
// The values are not required to sum to 100.
type Yield struct {
	Suitable     float64 `json:"suitable_pct"`
	Incorrigible float64 `json:"incorrigible_pct"`
	Fixable      float64 `json:"fixable_pct"`
}

// Round returns y with every percentage rounded to the given number of
// decimal places. Rounding is a presentation concern; the core never calls it.
func (y Yield) Round(decimals int) Yield {
	if decimals < 0 {
		decimals = 0
	}
	scale := math.Pow(10, float64(decimals))
	r := func(v float64) float64 { return math.Round(v*scale) / scale }
	return Yield{
		Suitable:     r(y.Suitable),
		Incorrigible: r(y.Incorrigible),
		Fixable:      r(y.Fixable),
	}
}

// Total is the sum of the three percentages.
func (y Yield) Total() float64 {
	return y.Suitable + y.Incorrigible + y.Fixable
}

// CurvePoint is one sample of the density curve.
type CurvePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Region names used when shading the density curve.
const (
	RegionSuitable     = "suitable"
	RegionIncorrigible = "incorrigible"
	RegionFixable      = "fixable"
)

// Region is one shaded interval under the density curve.
type Region struct {
	Name   string       `json:"name"`
	From   float64      `json:"from"`
	To     float64      `json:"to"`
	Points []CurvePoint `json:"points"`
}
