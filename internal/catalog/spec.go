package catalog

import (
	"errors"
	"fmt"
	"math"

	"github.com/star/starflux/internal/kepler"
	"github.com/star/starflux/internal/lightcurve"
	"github.com/star/starflux/internal/units"
	"github.com/star/starflux/internal/ylm"
)

// DefaultLimbDarkening is the quadratic law applied to catalog host stars.
var DefaultLimbDarkening = []float64{0.4, 0.2}

// ErrIncomplete is returned when none of the selected planets has the
// parameters needed to place it on an orbit.
var ErrIncomplete = errors.New("no planet with period, mid-transit time and radius")

const (
	auPerSolarRadius = 215.032
	daysPerYear      = 365.25
)

// SemiMajorAxis returns the semi-major axis in stellar radii from Kepler's
// third law, neglecting the planet mass.
func SemiMajorAxis(p Planet) float64 {
	years := p.OrbPer / daysPerYear
	return math.Cbrt(p.StMass*years*years) * auPerSolarRadius / p.StRad
}

// ToSpec builds a system description for planets of a single host. The star
// has unit radius and luminosity and the given limb darkening. Each complete
// planet becomes a dark secondary whose reference time is its mid-transit
// time, with the mean longitude chosen so that it transits at that time.
// Incomplete planets are skipped.
func ToSpec(planets []Planet, limbDarkening []float64) (lightcurve.Spec, error) {
	y, err := ylm.LimbDarkened(limbDarkening)
	if err != nil {
		return lightcurve.Spec{}, fmt.Errorf("%w: %v", lightcurve.ErrSpec, err)
	}
	spec := lightcurve.Spec{
		Lmax:    len(limbDarkening),
		Nwav:    1,
		Primary: lightcurve.BodySpec{Y: [][]float64{y}},
	}

	for _, p := range planets {
		if p.Incomplete {
			continue
		}
		w := units.Mod2Pi(units.DegToRad(p.OrbLPer))
		spec.Secondaries = append(spec.Secondaries, lightcurve.SecondarySpec{
			Name: p.Name(),
			BodySpec: lightcurve.BodySpec{
				RefTime: lightcurve.Float(p.TranMid),
			},
			Radius:     lightcurve.Float(p.RadJ * rJupToSun / p.StRad),
			Luminosity: lightcurve.Float(0),
			Semi:       lightcurve.Float(SemiMajorAxis(p)),
			OrbPer:     lightcurve.Float(p.OrbPer),
			Inc:        lightcurve.Float(p.Inc),
			Ecc:        lightcurve.Float(p.Ecc),
			VarPi:      lightcurve.Float(p.OrbLPer),
			Lambda0:    lightcurve.Float(units.RadToDeg(transitLongitude(w, p.Ecc))),
		})
	}
	if len(spec.Secondaries) == 0 {
		return lightcurve.Spec{}, ErrIncomplete
	}
	if err := spec.Validate(); err != nil {
		return lightcurve.Spec{}, fmt.Errorf("catalog system: %w", err)
	}
	return spec, nil
}

// transitLongitude returns the mean longitude (radians) at which a body with
// longitude of pericenter w is at mid-transit, where w + f = π/2.
func transitLongitude(w, ecc float64) float64 {
	f := math.Pi/2 - w
	E := kepler.EccentricAnomalyFromTrue(f, ecc)
	return units.Mod2Pi(kepler.MeanAnomaly(E, ecc) + w)
}
