package compute

import "github.com/obsidianstack/partyield/pkg/types"

// Calculate classifies the output of a process described by p into the
// percentage of suitable parts, irreparable (incorrigible) defects and
// repairable (fixable) defects, integrating with n steps.
//
// The result is raw: no rounding is applied. Calculate panics when p.O is zero
// or n <= 0; it does not check that EI <= ES.
func Calculate(p types.Params, n int) types.Yield {
	if p.O == 0 {
		panic(ErrZeroSigma)
	}
	eiZ := p.Z(p.EI)
	esZ := p.Z(p.ES)

	fEI := Integrate(eiZ, n)
	fES := Integrate(esZ, n)
	fLo := Integrate(-types.EnvelopeSigmas, n)
	fHi := Integrate(types.EnvelopeSigmas, n)

	return types.Yield{
		Suitable:     (fES - fEI) * 100,
		Incorrigible: (fEI - fLo) * 100,
		Fixable:      (fHi - fES) * 100,
	}
}

// CalculateDefault is Calculate with DefaultResolution.
func CalculateDefault(p types.Params) types.Yield {
	return Calculate(p, DefaultResolution)
}
