package compute

import (
	"errors"
	"math"
	"testing"
)

// refF is the exact signed area under the standard normal density from 0 to b,
// i.e. Φ(b) - 0.5.
func refF(b float64) float64 {
	return 0.5 * math.Erf(b/math.Sqrt2)
}

func TestIntegrate_ZeroWidth(t *testing.T) {
	for _, n := range []int{1, 2, 100, DefaultResolution, 1000000} {
		if got := Integrate(0, n); got != 0 {
			t.Errorf("Integrate(0, %d) = %v, want 0", n, got)
		}
	}
}

func TestIntegrate_MonotonicConvergence(t *testing.T) {
	for _, b := range []float64{0.5, 1, 2.4166666666666665, 3} {
		var prevErr = math.Inf(1)
		for _, n := range []int{100, 10000, 1000000} {
			errAbs := math.Abs(Integrate(b, n) - refF(b))
			if errAbs >= prevErr {
				t.Errorf("b=%v n=%d: error %.3e did not decrease (previous %.3e)", b, n, errAbs, prevErr)
			}
			prevErr = errAbs
		}
		if prevErr > 1e-6 {
			t.Errorf("b=%v: error at n=1e6 is %.3e, want < 1e-6", b, prevErr)
		}
	}
}

func TestIntegrate_KnownValue(t *testing.T) {
	// Left Riemann sum over a decreasing integrand overestimates slightly.
	got := Integrate(1, DefaultResolution)
	if !almostEqual(got, 0.34135259444469535, 1e-12) {
		t.Errorf("Integrate(1, 10000) = %.17f, want 0.34135259444469535", got)
	}
	if got <= refF(1) {
		t.Errorf("Integrate(1, 10000) = %v should overestimate %v", got, refF(1))
	}
}

func TestIntegrate_NegativeBoundIsSigned(t *testing.T) {
	for _, b := range []float64{0.3, 1, 1.6666666666666663, 3} {
		pos := Integrate(b, DefaultResolution)
		neg := Integrate(-b, DefaultResolution)
		if neg >= 0 {
			t.Errorf("Integrate(%v) = %v, want negative", -b, neg)
		}
		if neg != -pos {
			t.Errorf("Integrate(-%v) = %v, want exactly %v", b, neg, -pos)
		}
	}
}

func TestIntegrate_Deterministic(t *testing.T) {
	a := Integrate(2.4166666666666665, 12345)
	b := Integrate(2.4166666666666665, 12345)
	if a != b {
		t.Errorf("Integrate not deterministic: %v != %v", a, b)
	}
}

func TestIntegrate_NonPositiveResolutionPanics(t *testing.T) {
	for _, n := range []int{0, -1} {
		func() {
			defer func() {
				r := recover()
				err, ok := r.(error)
				if !ok || !errors.Is(err, ErrResolution) {
					t.Errorf("n=%d: recover() = %v, want ErrResolution", n, r)
				}
			}()
			Integrate(1, n)
		}()
	}
}

func TestValidateResolution(t *testing.T) {
	tests := []struct {
		n       int
		wantErr bool
	}{
		{-5, true}, {0, true}, {1, false}, {DefaultResolution, false},
	}
	for _, tc := range tests {
		err := ValidateResolution(tc.n)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateResolution(%d) error = %v, wantErr %v", tc.n, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, ErrResolution) {
			t.Errorf("ValidateResolution(%d) = %v, want wrapped ErrResolution", tc.n, err)
		}
	}
}
