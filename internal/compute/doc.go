// Package compute is the numeric core of partyield.
//
// density.go evaluates the normal probability density. integrate.go provides
// the signed left-Riemann integral of the standard normal density from 0 to a
// bound. classify.go combines integrals at the z-scores of the tolerance
// limits and the ±3σ envelope into the suitable / incorrigible / fixable
// percentages:
//
//	suitable     = (F(es_z) - F(ei_z)) * 100
//	incorrigible = (F(ei_z) - F(-3))   * 100
//	fixable      = (F(3)    - F(es_z)) * 100
//
// F integrates from 0, not from -Inf. The missing 0.5 cancels in every
// difference, so F must keep that shape for the percentages to stay
// compatible with existing reports.
//
// analysis.go maps a yield to a quality state, curve.go samples the density
// for plotting and engine.go keeps per-scenario state across evaluation
// cycles with an injectable clock.
//
// Density, Integrate and Calculate panic on a zero standard deviation or a
// non-positive resolution. Callers validate with types.Params.Validate and
// ValidateResolution first.
package compute
