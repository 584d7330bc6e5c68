package compute

import "github.com/obsidianstack/partyield/pkg/types"

// Sampling defaults for plotting.
const (
	DefaultCurvePoints  = 1000
	DefaultRegionPoints = 100

	// regionSigmas is how far the defect regions extend past the mean when
	// shading, slightly wider than the ±3σ envelope so the tails stay visible.
	regionSigmas = 4.0
)

// SampleCurve samples Density(x, nx, o) at points evenly spaced x values over
// [nx - width·o, nx + width·o], both ends included.
//
// points < 2 yields a single sample at nx. SampleCurve panics if o is zero.
func SampleCurve(nx, o, width float64, points int) []types.CurvePoint {
	return sample(nx-width*o, nx+width*o, points, nx, o)
}

// Regions returns the three shaded intervals for a tolerance problem:
//
//	incorrigible [nx-4o, ei]
//	suitable     [ei, es]
//	fixable      [es, nx+4o]
//
// each sampled at points x values. Regions panics if p.O is zero.
func Regions(p types.Params, points int) []types.Region {
	lo := p.NX - regionSigmas*p.O
	hi := p.NX + regionSigmas*p.O
	return []types.Region{
		{Name: types.RegionIncorrigible, From: lo, To: p.EI, Points: sample(lo, p.EI, points, p.NX, p.O)},
		{Name: types.RegionSuitable, From: p.EI, To: p.ES, Points: sample(p.EI, p.ES, points, p.NX, p.O)},
		{Name: types.RegionFixable, From: p.ES, To: hi, Points: sample(p.ES, hi, points, p.NX, p.O)},
	}
}

// sample evaluates the density at points evenly spaced x values in [from, to].
func sample(from, to float64, points int, mu, sigma float64) []types.CurvePoint {
	if points < 2 {
		x := (from + to) / 2
		return []types.CurvePoint{{X: x, Y: Density(x, mu, sigma)}}
	}
	out := make([]types.CurvePoint, points)
	step := (to - from) / float64(points-1)
	for i := range out {
		x := from + float64(i)*step
		if i == points-1 {
			x = to
		}
		out[i] = types.CurvePoint{X: x, Y: Density(x, mu, sigma)}
	}
	return out
}
