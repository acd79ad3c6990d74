package ylm

import (
	"fmt"
	"math"
)

// LimbDarkened returns the coefficients of a map with the polynomial limb
// darkening law I(μ) = 1 - u₁(1-μ) - u₂(1-μ)², normalised to unit flux.
// At most two coefficients are supported; the result has Size(len(u))
// entries, and only m = 0 terms are nonzero.
func LimbDarkened(u []float64) ([]float64, error) {
	if len(u) > 2 {
		return nil, fmt.Errorf("limb darkening: %d coefficients, at most 2 supported", len(u))
	}
	var u1, u2 float64
	if len(u) > 0 {
		u1 = u[0]
	}
	if len(u) > 1 {
		u2 = u[1]
	}

	// I(μ) = c0 + c1 μ + c2 μ².
	c0 := 1 - u1 - u2
	c1 := u1 + 2*u2
	c2 := -u2

	// Disk-integrated flux relative to a uniform y₀₀ = 1 disk.
	flux := 2 * math.Pi * (c0/2 + c1/3 + c2/4) * 2 / math.Sqrt(math.Pi)
	if !(flux > 0) {
		return nil, fmt.Errorf("limb darkening: coefficients %v give non-positive flux", u)
	}

	y := make([]float64, Size(len(u)))
	y[Index(0, 0)] = (c0 + c2/3) * 2 * math.Sqrt(math.Pi) / flux
	if len(u) > 0 {
		y[Index(1, 0)] = c1 / math.Sqrt(3/(4*math.Pi)) / flux
	}
	if len(u) > 1 {
		y[Index(2, 0)] = c2 / 3 / math.Sqrt(5/(16*math.Pi)) / flux
	}
	return y, nil
}
