package compute

import (
	"math"

	"github.com/obsidianstack/partyield/pkg/types"
)

// ErrZeroSigma is the panic value raised when a density is requested with a
// zero standard deviation.
var ErrZeroSigma = types.ErrZeroSigma

// invSqrt2Pi is 1/√(2π).
var invSqrt2Pi = 1 / math.Sqrt(2*math.Pi)

// Density returns the normal probability density at x for the given mean and
// standard deviation:
//
//	1/(sigma·√(2π)) · exp(-0.5·((x-mu)/sigma)²)
//
// Density panics if sigma is zero.
func Density(x, mu, sigma float64) float64 {
	if sigma == 0 {
		panic(ErrZeroSigma)
	}
	z := (x - mu) / sigma
	return invSqrt2Pi / sigma * math.Exp(-0.5*z*z)
}

// StdDensity is the standard normal density, Density(x, 0, 1).
func StdDensity(x float64) float64 {
	return invSqrt2Pi * math.Exp(-0.5*x*x)
}
