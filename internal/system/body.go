// Package system models a hierarchical system of one primary and any number
// of Keplerian secondaries, each carrying a surface map, and composes orbital
// phase, rotation and the map into per-channel flux.
//
// Public setters take degrees and days; everything stored is in radians and
// seconds. Time arguments of the per-step primitives (Theta, ComputeTotal,
// Occult, OrbitStep) are in seconds.
//
// A body is not safe for concurrent use. Independent bodies share no mutable
// state and may be evaluated in parallel.
package system

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/starflux/internal/units"
	"github.com/star/starflux/internal/ylm"
)

// Map is the surface-brightness map a body evaluates its flux from.
type Map interface {
	Lmax() int
	Nwav() int
	// Flux returns one value per channel at rotation phase theta with an
	// occultor of radius ro centred at (xo, yo), in units of the body radius.
	Flux(theta, xo, yo, ro float64, gradient bool) ([]float64, error)
	// Y exposes the coefficient storage, (lmax+1)² x nwav, read-only.
	Y() *mat.Dense
	SetY(y mat.Matrix) error
	R() []float64
	S() []float64
}

// Rotator computes per-degree rotation blocks about a fixed axis.
type Rotator interface {
	Compute(cosAngle, sinAngle float64) error
	Block(l int) *mat.Dense
}

// MapFactory builds the map owned by a body.
type MapFactory func(lmax, nwav int) (Map, error)

// RotatorFactory builds a rotator about axis for degrees 0..lmax.
type RotatorFactory func(lmax int, axis r3.Vec) Rotator

// Kind tags the closed set of body variants.
type Kind uint8

const (
	KindPrimary Kind = iota + 1
	KindSecondary
)

func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Option configures body construction.
type Option func(*config)

type config struct {
	newMap     MapFactory
	newRotator RotatorFactory
}

// WithMapFactory overrides the map implementation.
func WithMapFactory(f MapFactory) Option {
	return func(c *config) { c.newMap = f }
}

// WithRotatorFactory overrides the rotation-matrix implementation.
func WithRotatorFactory(f RotatorFactory) Option {
	return func(c *config) { c.newRotator = f }
}

// WithResolution sets the grid resolution of the default map.
func WithResolution(res int) Option {
	return func(c *config) {
		c.newMap = func(lmax, nwav int) (Map, error) {
			return ylm.NewMap(lmax, nwav, ylm.WithResolution(res))
		}
	}
}

func newConfig(opts []Option) config {
	c := config{
		newMap: func(lmax, nwav int) (Map, error) {
			return ylm.NewMap(lmax, nwav)
		},
		newRotator: func(lmax int, axis r3.Vec) Rotator {
			return ylm.NewWigner(lmax, axis)
		},
	}
	for _, fn := range opts {
		fn(&c)
	}
	return c
}

// Body is the state shared by primaries and secondaries: photometric and
// rotational parameters, the owned map and the flux buffers.
type Body struct {
	kind Kind
	m    Map

	r    float64 // radius in primary radii
	lum  float64 // luminosity in primary luminosities
	prot float64 // rotation period (s); +Inf when not rotating
	tref float64 // reference time (s)

	theta0    float64 // rotation phase at tref (rad)
	angvelrot float64 // rad/s
	z0        float64 // retarded-time reference point
	delay     float64 // light travel time delay (s), always 0

	fluxCur []float64
	fluxTot []float64
	scratch []float64

	orb *orbit // secondaries only
}

func (b *Body) init(kind Kind, m Map) {
	b.kind = kind
	b.m = m
	b.fluxCur = make([]float64, m.Nwav())
	b.fluxTot = make([]float64, m.Nwav())
	b.scratch = make([]float64, m.Nwav())
	b.prot = math.Inf(1)
}

// Kind reports the body variant.
func (b *Body) Kind() Kind { return b.kind }

// Map returns the user-facing map. After changing its coefficients on a
// secondary, call SyncSkyMap.
func (b *Body) Map() Map { return b.m }

// Radius returns the radius in units of the primary radius.
func (b *Body) Radius() float64 { return b.r }

// Luminosity returns the luminosity in units of the primary luminosity.
func (b *Body) Luminosity() float64 { return b.lum }

// RotPer returns the rotation period in days, or 0 for a non-rotating body.
func (b *Body) RotPer() float64 {
	if math.IsInf(b.prot, 1) {
		return 0
	}
	return units.SecondsToDays(b.prot)
}

// RefTime returns the reference time in days.
func (b *Body) RefTime() float64 { return units.SecondsToDays(b.tref) }

// Theta0 returns the rotation phase at the reference time in radians.
func (b *Body) Theta0() float64 { return b.theta0 }

// Flux returns the current, occultation-adjusted flux per channel.
func (b *Body) Flux() []float64 { return append([]float64(nil), b.fluxCur...) }

// TotalFlux returns the unocculted flux per channel.
func (b *Body) TotalFlux() []float64 { return append([]float64(nil), b.fluxTot...) }

func (b *Body) setRadius(r float64) error {
	if !(r > 0) {
		return invalid("radius", r, "must be positive")
	}
	b.r = r
	return nil
}

func (b *Body) setLuminosity(l float64) error {
	if !(l >= 0) {
		return invalid("luminosity", l, "cannot be negative")
	}
	b.lum = l
	return nil
}

// SetRotPer sets the rotation period in days. Zero means not rotating.
func (b *Body) SetRotPer(days float64) error {
	switch {
	case days > 0:
		b.prot = units.DaysToSeconds(days)
	case days == 0:
		b.prot = math.Inf(1)
	default:
		return invalid("rotation period", days, "must be non-negative")
	}
	b.angvelrot = 2 * math.Pi / b.prot
	b.computeTheta0()
	return nil
}

// SetRefTime sets the reference time in days.
func (b *Body) SetRefTime(days float64) error {
	if math.IsNaN(days) || math.IsInf(days, 0) {
		return invalid("reference time", days, "must be finite")
	}
	b.tref = units.DaysToSeconds(days)
	return nil
}

// Theta returns the rotation phase at time t (seconds).
func (b *Body) Theta(t float64) float64 {
	if math.IsInf(b.prot, 1) {
		return b.theta0
	}
	return units.Mod2Pi(b.theta0 + b.angvelrot*(t-b.tref-b.delay))
}

// ComputeTotal evaluates the unocculted flux at time t (seconds) and resets
// the current flux to it.
func (b *Body) ComputeTotal(t float64) error {
	if b.lum == 0 {
		for i := range b.fluxTot {
			b.fluxTot[i] = 0
		}
		copy(b.fluxCur, b.fluxTot)
		return nil
	}

	f, err := b.getFlux(b.Theta(t), 0, 0, 0)
	if err != nil {
		return err
	}
	floats.ScaleTo(b.fluxTot, b.lum, f)
	copy(b.fluxCur, b.fluxTot)
	return nil
}

// Occult applies one occultor of radius ro centred at (xo, yo), in units of
// this body's radius, at time t (seconds). The current flux changes by the
// difference between the occulted and the unocculted flux, so occultors
// compose additively. ComputeTotal must run first in each step, and each
// occultor must be applied at most once per step.
func (b *Body) Occult(t, xo, yo, ro float64) error {
	if b.lum == 0 {
		return nil
	}

	f, err := b.getFlux(b.Theta(t), xo, yo, ro)
	if err != nil {
		return err
	}
	floats.ScaleTo(b.scratch, b.lum, f)
	floats.Sub(b.scratch, b.fluxTot)
	floats.Add(b.fluxCur, b.scratch)
	return nil
}

// SetMapCoeffs replaces the coefficients of the body's own map. On a
// secondary the sky-frame copy is resynchronised.
func (b *Body) SetMapCoeffs(y mat.Matrix) error {
	if err := b.m.SetY(y); err != nil {
		return err
	}
	if b.kind == KindSecondary {
		return b.syncSkyMap()
	}
	return nil
}

// R returns the full-disk solution vector of the map seen by the observer.
func (b *Body) R() []float64 { return b.visibleMap().R() }

// S returns the solution vector of the most recent flux evaluation.
func (b *Body) S() []float64 { return b.visibleMap().S() }

// visibleMap is the map as seen by the observer: the sky-frame copy for a
// secondary, the body's own map otherwise.
func (b *Body) visibleMap() Map {
	switch b.kind {
	case KindSecondary:
		return b.orb.skyMap
	default:
		return b.m
	}
}

func (b *Body) getFlux(theta, xo, yo, ro float64) ([]float64, error) {
	return b.visibleMap().Flux(theta, xo, yo, ro, false)
}

func (b *Body) computeTheta0() {
	switch b.kind {
	case KindSecondary:
		b.secondaryTheta0()
	default:
		b.theta0 = 0
	}
}
