package ylm

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultResolution is the default number of pixels across the disk.
const DefaultResolution = 300

// ErrNoGradient is returned when a gradient is requested from Flux.
var ErrNoGradient = errors.New("map flux gradients are not supported")

// ErrShape is returned when coefficients do not match the map dimensions.
var ErrShape = errors.New("coefficient shape mismatch")

// Map is a spherical-harmonic surface map whose flux is integrated
// numerically over a pixel grid of the visible disk.
// Not safe for concurrent use.
type Map struct {
	lmax int
	nwav int
	y    *mat.Dense
	grid *grid
	rot  *Wigner

	rotY      *mat.Dense
	lastTheta float64
	rotValid  bool

	s []float64
}

// Option configures a Map.
type Option func(*options)

type options struct {
	res int
}

// WithResolution sets the number of grid pixels across the disk diameter.
func WithResolution(res int) Option {
	return func(o *options) { o.res = res }
}

// NewMap creates a map of degree lmax with nwav wavelength channels, initialised
// to a uniform disk (y₀₀ = 1) in every channel.
func NewMap(lmax, nwav int, opts ...Option) (*Map, error) {
	o := options{res: DefaultResolution}
	for _, fn := range opts {
		fn(&o)
	}
	if lmax < 0 {
		return nil, fmt.Errorf("map degree must be non-negative, got %d", lmax)
	}
	if nwav < 1 {
		return nil, fmt.Errorf("map needs at least one wavelength channel, got %d", nwav)
	}
	if o.res < 2 {
		return nil, fmt.Errorf("map resolution must be at least 2, got %d", o.res)
	}

	n := Size(lmax)
	m := &Map{
		lmax: lmax,
		nwav: nwav,
		y:    mat.NewDense(n, nwav, nil),
		grid: sharedGrid(lmax, o.res),
		rot:  NewWigner(lmax, YHat),
		rotY: mat.NewDense(n, nwav, nil),
		s:    make([]float64, n),
	}
	m.Reset()
	return m, nil
}

// Lmax returns the maximum spherical-harmonic degree.
func (m *Map) Lmax() int { return m.lmax }

// Nwav returns the number of wavelength channels.
func (m *Map) Nwav() int { return m.nwav }

// Y returns the coefficient storage. Callers must not modify it; use SetY.
func (m *Map) Y() *mat.Dense { return m.y }

// SetY replaces all coefficients.
func (m *Map) SetY(y mat.Matrix) error {
	r, c := y.Dims()
	if r != Size(m.lmax) || c != m.nwav {
		return fmt.Errorf("set coefficients: %w: got %dx%d, want %dx%d", ErrShape, r, c, Size(m.lmax), m.nwav)
	}
	m.y.Copy(y)
	m.rotValid = false
	return nil
}

// SetCoeff sets the (l, m) coefficient of one channel.
func (m *Map) SetCoeff(l, mm, channel int, v float64) error {
	if l < 0 || l > m.lmax || mm < -l || mm > l {
		return fmt.Errorf("set coefficient: invalid (l, m) = (%d, %d) for lmax %d", l, mm, m.lmax)
	}
	if channel < 0 || channel >= m.nwav {
		return fmt.Errorf("set coefficient: channel %d out of range [0, %d)", channel, m.nwav)
	}
	m.y.Set(Index(l, mm), channel, v)
	m.rotValid = false
	return nil
}

// Coeff returns the (l, m) coefficient of one channel.
func (m *Map) Coeff(l, mm, channel int) float64 {
	return m.y.At(Index(l, mm), channel)
}

// Reset zeroes the map and sets y₀₀ = 1 in every channel.
func (m *Map) Reset() {
	m.y.Zero()
	for c := 0; c < m.nwav; c++ {
		m.y.Set(0, c, 1)
	}
	m.rotValid = false
}

// R returns the full-disk solution vector: the unocculted flux of each basis
// term.
func (m *Map) R() []float64 {
	return append([]float64(nil), m.grid.full...)
}

// S returns the solution vector of the most recent Flux evaluation.
func (m *Map) S() []float64 {
	return append([]float64(nil), m.s...)
}

// Flux returns the disk-integrated flux of each channel after rotating the
// map by theta (radians) about +y, with a circular occultor of radius ro
// centred at (xo, yo) in units of the body radius. ro <= 0 means no occultor.
func (m *Map) Flux(theta, xo, yo, ro float64, gradient bool) ([]float64, error) {
	if gradient {
		return nil, ErrNoGradient
	}
	if err := m.rotate(theta); err != nil {
		return nil, err
	}

	m.grid.solve(m.s, xo, yo, ro)

	out := make([]float64, m.nwav)
	for c := range out {
		out[c] = floats.Dot(m.s, mat.Col(nil, c, m.rotY))
	}
	return out, nil
}

func (m *Map) rotate(theta float64) error {
	if m.rotValid && theta == m.lastTheta {
		return nil
	}
	s, c := math.Sincos(theta)
	if err := m.rot.Compute(c, s); err != nil {
		return fmt.Errorf("rotate map: %w", err)
	}
	for l := 0; l <= m.lmax; l++ {
		lo, hi := l*l, (l+1)*(l+1)
		dst := m.rotY.Slice(lo, hi, 0, m.nwav).(*mat.Dense)
		dst.Mul(m.rot.Block(l), m.y.Slice(lo, hi, 0, m.nwav))
	}
	m.lastTheta = theta
	m.rotValid = true
	return nil
}

// grid holds the basis sampled at the centres of the pixels covering the
// visible disk. Immutable after construction and shared between maps.
type grid struct {
	res   int
	x, y  []float64
	basis *mat.Dense
	norm  float64
	full  []float64
}

type gridKey struct{ lmax, res int }

var (
	gridMu sync.Mutex
	grids  = map[gridKey]*grid{}
)

func sharedGrid(lmax, res int) *grid {
	gridMu.Lock()
	defer gridMu.Unlock()

	key := gridKey{lmax, res}
	if g, ok := grids[key]; ok {
		return g
	}
	g := newGrid(lmax, res)
	grids[key] = g
	return g
}

func newGrid(lmax, res int) *grid {
	g := &grid{res: res}
	step := 2 / float64(res)
	for i := 0; i < res; i++ {
		py := -1 + (float64(i)+0.5)*step
		for j := 0; j < res; j++ {
			px := -1 + (float64(j)+0.5)*step
			if px*px+py*py < 1 {
				g.x = append(g.x, px)
				g.y = append(g.y, py)
			}
		}
	}

	n := Size(lmax)
	g.basis = mat.NewDense(len(g.x), n, nil)
	for k := range g.x {
		z := math.Sqrt(1 - g.x[k]*g.x[k] - g.y[k]*g.y[k])
		Eval(lmax, r3.Vec{X: g.x[k], Y: g.y[k], Z: z}, g.basis.RawRowView(k))
	}

	g.full = make([]float64, n)
	for k := range g.x {
		floats.Add(g.full, g.basis.RawRowView(k))
	}
	g.norm = g.full[0]
	floats.Scale(1/g.norm, g.full)
	// Exact unit flux for a uniform disk.
	g.full[0] = 1
	return g
}

// solve writes the occulted solution vector into s.
func (g *grid) solve(s []float64, xo, yo, ro float64) {
	copy(s, g.full)
	if ro <= 0 || math.Hypot(xo, yo) >= 1+ro {
		return
	}
	ro2 := ro * ro
	for k := range g.x {
		dx, dy := g.x[k]-xo, g.y[k]-yo
		if dx*dx+dy*dy < ro2 {
			floats.AddScaled(s, -1/g.norm, g.basis.RawRowView(k))
		}
	}
}
