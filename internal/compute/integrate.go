package compute

import (
	"errors"
	"fmt"
)

// DefaultResolution is the number of integration steps used when the caller
// does not choose one.
const DefaultResolution = 10000

// ErrResolution is the panic value raised by Integrate for n <= 0, and the
// error wrapped by ValidateResolution.
var ErrResolution = errors.New("resolution must be positive")

// ValidateResolution reports whether n is usable as an integration step count.
func ValidateResolution(n int) error {
	if n <= 0 {
		return fmt.Errorf("resolution %d: %w", n, ErrResolution)
	}
	return nil
}

// Integrate approximates the signed area under the standard normal density
// between 0 and b with a left Riemann sum of n equal steps.
//
// For b < 0 the step width is negative and so is the result. Integrate(0, n)
// is exactly 0. Integrate panics if n <= 0.
func Integrate(b float64, n int) float64 {
	if n <= 0 {
		panic(ErrResolution)
	}
	dx := b / float64(n)
	var sum float64
	for i := 0; i < n; i++ {
		sum += StdDensity(float64(i)*dx) * dx
	}
	return sum
}
