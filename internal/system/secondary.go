package system

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/star/starflux/internal/kepler"
	"github.com/star/starflux/internal/units"
	"github.com/star/starflux/internal/ylm"
)

// Secondary is a body on a Keplerian orbit about the primary. Its own map is
// defined in the orbital frame; flux is evaluated from a sky-frame copy that
// is kept in sync through RSky.
type Secondary struct {
	Body
}

// orbit holds the elements, their cached derivatives and the state of the
// last OrbitStep.
type orbit struct {
	skyMap Map
	w1     Rotator // about x
	w2     Rotator // about z
	rSky   []*mat.Dense
	skyID  bool

	// elements, radians and seconds
	a       float64
	porb    float64
	inc     float64
	ecc     float64
	w       float64
	omega   float64
	lambda0 float64

	// derived
	m0            float64
	angvelorb     float64
	cosi, sini    float64
	cosO, sinO    float64
	cosOcosi      float64
	sinOcosi      float64
	sqrtOnePlusE  float64
	sqrtOneMinusE float64
	ecc2          float64
	ecw, esw      float64
	vamp, aamp    float64

	// per step
	mean, eccAnom, trueAnom float64
	rorb                    float64
	cwf, swf                float64
	x, y, z                 float64
}

// NewSecondary creates a secondary with degree-lmax, nwav-channel maps and
// the default elements: r = 0.1, L = 0, not rotating, tref = 0, a = 50,
// porb = 1 d, inc = 90°, ecc = 0, w = 90°, Omega = 0°, lambda0 = 90°.
func NewSecondary(lmax, nwav int, opts ...Option) (*Secondary, error) {
	cfg := newConfig(opts)
	m, err := cfg.newMap(lmax, nwav)
	if err != nil {
		return nil, fmt.Errorf("secondary map: %w", err)
	}
	sky, err := cfg.newMap(lmax, nwav)
	if err != nil {
		return nil, fmt.Errorf("secondary sky map: %w", err)
	}

	s := &Secondary{}
	s.init(KindSecondary, m)
	s.r = 0.1
	s.lum = 0

	o := &orbit{
		skyMap:  sky,
		w1:      cfg.newRotator(lmax, ylm.XHat),
		w2:      cfg.newRotator(lmax, ylm.ZHat),
		rSky:    make([]*mat.Dense, lmax+1),
		a:       50,
		porb:    units.DaysToSeconds(1),
		inc:     units.DegToRad(90),
		ecc:     0,
		w:       units.DegToRad(90),
		omega:   0,
		lambda0: units.DegToRad(90),
	}
	for l := range o.rSky {
		o.rSky[l] = mat.NewDense(2*l+1, 2*l+1, nil)
	}
	s.orb = o

	s.update()
	if err := s.SyncSkyMap(); err != nil {
		return nil, err
	}
	if err := s.OrbitStep(s.tref); err != nil {
		return nil, err
	}
	return s, nil
}

// SetRadius sets the radius in units of the primary radius.
func (s *Secondary) SetRadius(r float64) error { return s.setRadius(r) }

// SetLuminosity sets the luminosity in units of the primary luminosity.
func (s *Secondary) SetLuminosity(l float64) error { return s.setLuminosity(l) }

// Semi returns the semi-major axis in primary radii.
func (s *Secondary) Semi() float64 { return s.orb.a }

// SetSemi sets the semi-major axis in primary radii.
func (s *Secondary) SetSemi(a float64) error {
	if !(a > 0) || math.IsInf(a, 1) {
		return invalid("semi-major axis", a, "must be positive")
	}
	s.orb.a = a
	s.update()
	return nil
}

// OrbPer returns the orbital period in days.
func (s *Secondary) OrbPer() float64 { return units.SecondsToDays(s.orb.porb) }

// SetOrbPer sets the orbital period in days.
func (s *Secondary) SetOrbPer(days float64) error {
	if !(days > 0) || math.IsInf(days, 1) {
		return invalid("orbital period", days, "must be positive")
	}
	s.orb.porb = units.DaysToSeconds(days)
	s.update()
	return nil
}

// Inc returns the inclination in degrees.
func (s *Secondary) Inc() float64 { return units.RadToDeg(s.orb.inc) }

// SetInc sets the inclination in degrees, in [0, 180). The sky map is
// resynchronised.
func (s *Secondary) SetInc(deg float64) error {
	if !(deg >= 0 && deg < 180) {
		return invalid("inclination", deg, "must be in [0, 180)")
	}
	rad := units.DegToRad(deg)
	return s.setSkyElement(func(o *orbit) { o.inc = rad })
}

// Ecc returns the eccentricity.
func (s *Secondary) Ecc() float64 { return s.orb.ecc }

// SetEcc sets the eccentricity, in [0, 1).
func (s *Secondary) SetEcc(ecc float64) error {
	if !(ecc >= 0 && ecc < 1) {
		return invalid("eccentricity", ecc, "must be in [0, 1)")
	}
	s.orb.ecc = ecc
	s.update()
	return nil
}

// VarPi returns the longitude of pericenter in degrees, in [0, 360).
func (s *Secondary) VarPi() float64 { return units.RadToDeg(s.orb.w) }

// SetVarPi sets the longitude of pericenter in degrees.
func (s *Secondary) SetVarPi(deg float64) error {
	if err := finiteAngle("longitude of pericenter", deg); err != nil {
		return err
	}
	s.orb.w = units.Mod2Pi(units.DegToRad(deg))
	s.update()
	return nil
}

// Omega returns the longitude of the ascending node in degrees, in [0, 360).
func (s *Secondary) Omega() float64 { return units.RadToDeg(s.orb.omega) }

// SetOmega sets the longitude of the ascending node in degrees. The sky map
// is resynchronised.
func (s *Secondary) SetOmega(deg float64) error {
	if err := finiteAngle("longitude of ascending node", deg); err != nil {
		return err
	}
	rad := units.Mod2Pi(units.DegToRad(deg))
	return s.setSkyElement(func(o *orbit) { o.omega = rad })
}

// setSkyElement changes inc or Omega through set and resynchronises the sky
// map. If that fails the previous elements and sky map are restored.
func (s *Secondary) setSkyElement(set func(o *orbit)) error {
	o := s.orb
	inc, omega := o.inc, o.omega
	set(o)
	s.update()
	err := s.SyncSkyMap()
	if err == nil {
		return nil
	}
	o.inc, o.omega = inc, omega
	s.update()
	if rerr := s.SyncSkyMap(); rerr != nil {
		return errors.Join(err, fmt.Errorf("restoring sky map: %w", rerr))
	}
	return err
}

// Lambda0 returns the mean longitude at the reference time in degrees.
func (s *Secondary) Lambda0() float64 { return units.RadToDeg(s.orb.lambda0) }

// SetLambda0 sets the mean longitude at the reference time in degrees.
func (s *Secondary) SetLambda0(deg float64) error {
	if err := finiteAngle("mean longitude", deg); err != nil {
		return err
	}
	s.orb.lambda0 = units.Mod2Pi(units.DegToRad(deg))
	s.update()
	return nil
}

func finiteAngle(field string, deg float64) error {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return invalid(field, deg, "must be finite")
	}
	return nil
}

// update recomputes every quantity derived from the elements.
func (s *Secondary) update() {
	o := s.orb
	o.angvelorb = 2 * math.Pi / o.porb
	o.m0 = o.lambda0 - o.w
	o.sini, o.cosi = math.Sincos(o.inc)
	o.sinO, o.cosO = math.Sincos(o.omega)
	o.cosOcosi = o.cosO * o.cosi
	o.sinOcosi = o.sinO * o.cosi
	o.sqrtOnePlusE = math.Sqrt(1 + o.ecc)
	o.sqrtOneMinusE = math.Sqrt(1 - o.ecc)
	o.ecc2 = o.ecc * o.ecc
	sinw, cosw := math.Sincos(o.w)
	o.ecw = o.ecc * cosw
	o.esw = o.ecc * sinw
	o.vamp = o.angvelorb * o.a / math.Sqrt(1-o.ecc2)
	o.aamp = o.angvelorb * o.angvelorb * o.a * o.a * o.a
	s.computeTheta0()
}

// secondaryTheta0 phases the rotation so that the map's reference meridian
// faces the primary when the body passes through f = 3π/2 - w.
func (b *Body) secondaryTheta0() {
	if math.IsInf(b.prot, 1) {
		b.theta0 = 0
		return
	}
	o := b.orb
	sinf, cosf := math.Sincos(1.5*math.Pi - o.w)
	E := math.Atan2(math.Sqrt(1-o.ecc2)*sinf, o.ecc+cosf)
	M := E - o.ecc*math.Sin(E)
	b.theta0 = -(o.porb / b.prot) * (M - o.m0)
}

// SyncSkyMap recomputes RSky from (inc, Omega) and rewrites the sky-frame
// map from the orbital-frame coefficients. Call it after changing the
// coefficients of Map() directly.
func (s *Secondary) SyncSkyMap() error { return s.syncSkyMap() }

func (b *Body) syncSkyMap() error {
	o := b.orb
	if o.omega != 0 || o.sini < 1-2*units.Eps[float64]() {
		if err := o.w1.Compute(o.sini, o.cosi); err != nil {
			return fmt.Errorf("sky rotation about x: %w", err)
		}
		if err := o.w2.Compute(o.cosO, o.sinO); err != nil {
			return fmt.Errorf("sky rotation about z: %w", err)
		}
		for l, r := range o.rSky {
			r.Mul(o.w1.Block(l), o.w2.Block(l))
		}
		o.skyID = false
	} else {
		for _, r := range o.rSky {
			n, _ := r.Dims()
			r.Zero()
			for i := 0; i < n; i++ {
				r.Set(i, i, 1)
			}
		}
		o.skyID = true
	}

	y := b.m.Y()
	if o.skyID {
		return o.skyMap.SetY(y)
	}
	rows, cols := y.Dims()
	sky := mat.NewDense(rows, cols, nil)
	for l, r := range o.rSky {
		lo, hi := l*l, (l+1)*(l+1)
		dst := sky.Slice(lo, hi, 0, cols).(*mat.Dense)
		dst.Mul(r, y.Slice(lo, hi, 0, cols))
	}
	return o.skyMap.SetY(sky)
}

// SkyMap returns the sky-frame map.
func (s *Secondary) SkyMap() Map { return s.orb.skyMap }

// SkyRotation returns a copy of RSky[l].
func (s *Secondary) SkyRotation(l int) *mat.Dense { return mat.DenseCopyOf(s.orb.rSky[l]) }

// SkyIdentity reports whether the last sync used the identity rotation.
func (s *Secondary) SkyIdentity() bool { return s.orb.skyID }

// OrbitStep advances the orbital state to time t (seconds).
func (s *Secondary) OrbitStep(t float64) error {
	o := s.orb
	o.mean = units.Mod2Pi(o.m0 + o.angvelorb*(t-s.tref-s.delay))
	if o.ecc == 0 {
		o.eccAnom = o.mean
		o.trueAnom = o.mean
		o.rorb = o.a
	} else {
		E, err := kepler.EccentricAnomaly(o.mean, o.ecc)
		if err != nil {
			return fmt.Errorf("orbit step at t=%g s: %w", t, err)
		}
		o.eccAnom = E
		o.trueAnom = 2 * math.Atan2(o.sqrtOnePlusE*math.Sin(E/2), o.sqrtOneMinusE*math.Cos(E/2))
		o.rorb = o.a * (1 - o.ecc2) / (1 + o.ecc*math.Cos(o.trueAnom))
	}

	o.swf, o.cwf = math.Sincos(o.w + o.trueAnom)
	o.x = -o.rorb * (o.cosO*o.cwf - o.sinOcosi*o.swf)
	o.y = -o.rorb * (o.sinO*o.cwf + o.cosOcosi*o.swf)
	o.z = o.rorb * o.swf * o.sini
	return nil
}

// Position returns the sky position after the last OrbitStep, in primary
// radii. z > 0 is towards the observer.
func (s *Secondary) Position() (x, y, z float64) { return s.orb.x, s.orb.y, s.orb.z }

// MeanAnomaly returns M after the last OrbitStep, in radians.
func (s *Secondary) MeanAnomaly() float64 { return s.orb.mean }

// EccentricAnomaly returns E after the last OrbitStep, in radians.
func (s *Secondary) EccentricAnomaly() float64 { return s.orb.eccAnom }

// TrueAnomaly returns f after the last OrbitStep, in radians.
func (s *Secondary) TrueAnomaly() float64 { return s.orb.trueAnom }

// OrbitalRadius returns the star-body distance after the last OrbitStep.
func (s *Secondary) OrbitalRadius() float64 { return s.orb.rorb }

// MeanAnomalyAtRef returns M0 = lambda0 - w in radians.
func (s *Secondary) MeanAnomalyAtRef() float64 { return s.orb.m0 }

// VZ returns the line-of-sight velocity after the last OrbitStep in primary
// radii per second.
func (s *Secondary) VZ() float64 {
	o := s.orb
	return o.vamp * o.sini * (o.cwf + o.ecw)
}

// AZ returns the line-of-sight acceleration after the last OrbitStep in
// primary radii per second squared.
func (s *Secondary) AZ() float64 {
	o := s.orb
	return -o.aamp * o.z / (o.rorb * o.rorb * o.rorb)
}
