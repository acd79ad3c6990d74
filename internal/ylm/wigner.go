package ylm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Wigner computes, for a rotation about a fixed axis, the per-degree blocks
// R[l] that map degree-l coefficients of a map to those of the rotated map.
//
// A rotated map satisfies f'(p) = f(Q⁻¹p). The blocks are recovered by least
// squares: at a fixed set of sample points the basis evaluated at Q⁻¹p is
// expressed in the basis evaluated at p. The fit is exact up to rounding since
// each degree spans a rotation-invariant subspace.
type Wigner struct {
	lmax    int
	axis    r3.Vec
	samples []r3.Vec
	qr      []mat.QR
	R       []*mat.Dense
}

// NewWigner prepares the rotation blocks for degrees 0..lmax about axis.
// The blocks hold the identity until Compute is called.
func NewWigner(lmax int, axis r3.Vec) *Wigner {
	samples := fibonacci(2*Size(lmax) + 16)
	w := &Wigner{
		lmax:    lmax,
		axis:    r3.Unit(axis),
		samples: samples,
		qr:      make([]mat.QR, lmax+1),
		R:       make([]*mat.Dense, lmax+1),
	}

	basis := sampleBasis(lmax, samples)
	for l := 0; l <= lmax; l++ {
		w.qr[l].Factorize(degreeBlock(basis, l))
		w.R[l] = identity(2*l + 1)
	}
	return w
}

// Lmax returns the highest degree covered.
func (w *Wigner) Lmax() int {
	return w.lmax
}

// Block returns the rotation block for degree l.
func (w *Wigner) Block(l int) *mat.Dense {
	return w.R[l]
}

// Compute fills R for the rotation whose angle has the given cosine and sine.
func (w *Wigner) Compute(cosAngle, sinAngle float64) error {
	rotated := make([]r3.Vec, len(w.samples))
	for i, p := range w.samples {
		// Basis at Q⁻¹p: rotate by the negated angle.
		rotated[i] = rotate(p, w.axis, cosAngle, -sinAngle)
	}
	basis := sampleBasis(w.lmax, rotated)

	for l := 0; l <= w.lmax; l++ {
		var sol mat.Dense
		if err := w.qr[l].SolveTo(&sol, false, degreeBlock(basis, l)); err != nil {
			return fmt.Errorf("rotation block l=%d: %w", l, err)
		}
		w.R[l] = &sol
	}
	return nil
}

// sampleBasis evaluates the basis at each point; row i is point i.
func sampleBasis(lmax int, pts []r3.Vec) *mat.Dense {
	n := Size(lmax)
	out := mat.NewDense(len(pts), n, nil)
	for i, p := range pts {
		Eval(lmax, p, out.RawRowView(i))
	}
	return out
}

// degreeBlock returns the columns of degree l.
func degreeBlock(basis *mat.Dense, l int) *mat.Dense {
	rows, _ := basis.Dims()
	return basis.Slice(0, rows, l*l, (l+1)*(l+1)).(*mat.Dense)
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}
