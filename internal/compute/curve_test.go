package compute

import (
	"testing"

	"github.com/obsidianstack/partyield/pkg/types"
)

func TestSampleCurve_Bounds(t *testing.T) {
	pts := SampleCurve(0.026, 0.012, 3, DefaultCurvePoints)
	if len(pts) != DefaultCurvePoints {
		t.Fatalf("len = %d, want %d", len(pts), DefaultCurvePoints)
	}
	if !almostEqual(pts[0].X, -0.01, 1e-12) {
		t.Errorf("first x = %v, want -0.01", pts[0].X)
	}
	if !almostEqual(pts[len(pts)-1].X, 0.062, 1e-12) {
		t.Errorf("last x = %v, want 0.062", pts[len(pts)-1].X)
	}
	for i := 1; i < len(pts); i++ {
		if pts[i].X <= pts[i-1].X {
			t.Fatalf("x not increasing at %d: %v <= %v", i, pts[i].X, pts[i-1].X)
		}
	}
}

func TestSampleCurve_SymmetricAroundMean(t *testing.T) {
	pts := SampleCurve(0, 1, 3, 101)
	for i := 0; i < len(pts)/2; i++ {
		a, b := pts[i].Y, pts[len(pts)-1-i].Y
		if !almostEqual(a, b, 1e-12) {
			t.Errorf("y[%d]=%v != y[%d]=%v", i, a, len(pts)-1-i, b)
		}
	}
	if !almostEqual(pts[50].Y, Density(0, 0, 1), 1e-12) {
		t.Errorf("middle sample = %v, want peak %v", pts[50].Y, Density(0, 0, 1))
	}
}

func TestSampleCurve_SinglePoint(t *testing.T) {
	pts := SampleCurve(5, 2, 3, 1)
	if len(pts) != 1 || pts[0].X != 5 {
		t.Errorf("SampleCurve(points=1) = %+v, want one sample at the mean", pts)
	}
}

func TestRegions(t *testing.T) {
	regions := Regions(knownScenario, DefaultRegionPoints)
	if len(regions) != 3 {
		t.Fatalf("len = %d, want 3", len(regions))
	}

	want := []struct {
		name     string
		from, to float64
	}{
		{types.RegionIncorrigible, 0.026 - 4*0.012, 0.006},
		{types.RegionSuitable, 0.006, 0.055},
		{types.RegionFixable, 0.055, 0.026 + 4*0.012},
	}
	for i, w := range want {
		r := regions[i]
		if r.Name != w.name {
			t.Errorf("regions[%d].Name = %q, want %q", i, r.Name, w.name)
		}
		if !almostEqual(r.From, w.from, 1e-12) || !almostEqual(r.To, w.to, 1e-12) {
			t.Errorf("%s = [%v, %v], want [%v, %v]", r.Name, r.From, r.To, w.from, w.to)
		}
		if len(r.Points) != DefaultRegionPoints {
			t.Errorf("%s has %d points, want %d", r.Name, len(r.Points), DefaultRegionPoints)
		}
		if r.Points[0].X != r.From || r.Points[len(r.Points)-1].X != r.To {
			t.Errorf("%s samples do not span the interval", r.Name)
		}
	}
}
