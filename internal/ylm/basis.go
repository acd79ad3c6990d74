// Package ylm implements the surface-map collaborator: a brightness map
// expanded in real spherical harmonics, rotations of its coefficients, and
// disk-integrated flux with an optional circular occultor.
//
// Conventions: the observer looks down the -z axis from +z, x points right and
// y points up. A map rotates about +y. Coefficients are stored in an
// (lmax+1)² x nwav matrix with row n = l² + l + m.
package ylm

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Unit axes.
var (
	XHat = r3.Vec{X: 1}
	YHat = r3.Vec{Y: 1}
	ZHat = r3.Vec{Z: 1}
)

// Index returns the coefficient row of degree l and order m.
func Index(l, m int) int {
	return l*l + l + m
}

// Size returns the number of coefficients up to degree lmax.
func Size(lmax int) int {
	return (lmax + 1) * (lmax + 1)
}

// Eval fills out with the real orthonormal spherical harmonics of degree
// 0..lmax at the unit vector p. The polar axis is +z.
func Eval(lmax int, p r3.Vec, out []float64) {
	z := p.Z
	sinTheta := math.Sqrt(math.Max(0, 1-z*z))
	phi := math.Atan2(p.Y, p.X)

	plm := legendre(lmax, z, sinTheta)
	for l := 0; l <= lmax; l++ {
		out[Index(l, 0)] = norm(l, 0) * plm[l][0]
		for m := 1; m <= l; m++ {
			k := math.Sqrt2 * norm(l, m) * plm[l][m]
			sm, cm := math.Sincos(float64(m) * phi)
			out[Index(l, m)] = k * cm
			out[Index(l, -m)] = k * sm
		}
	}
}

// legendre returns P_l^m(z) for 0 <= m <= l <= lmax without the
// Condon-Shortley phase.
func legendre(lmax int, z, s float64) [][]float64 {
	p := make([][]float64, lmax+1)
	for l := range p {
		p[l] = make([]float64, l+1)
	}
	p[0][0] = 1
	for m := 1; m <= lmax; m++ {
		p[m][m] = p[m-1][m-1] * float64(2*m-1) * s
	}
	for m := 0; m < lmax; m++ {
		p[m+1][m] = z * float64(2*m+1) * p[m][m]
	}
	for m := 0; m <= lmax; m++ {
		for l := m + 2; l <= lmax; l++ {
			p[l][m] = (float64(2*l-1)*z*p[l-1][m] - float64(l+m-1)*p[l-2][m]) / float64(l-m)
		}
	}
	return p
}

// norm is sqrt((2l+1)/4π · (l-m)!/(l+m)!).
func norm(l, m int) float64 {
	ratio := 1.0
	for k := l - m + 1; k <= l+m; k++ {
		ratio /= float64(k)
	}
	return math.Sqrt(float64(2*l+1) / (4 * math.Pi) * ratio)
}

// rotate applies the rotation about unit axis u with the given cosine and sine
// of the angle to p (Rodrigues' formula).
func rotate(p, u r3.Vec, c, s float64) r3.Vec {
	out := r3.Scale(c, p)
	out = r3.Add(out, r3.Scale(s, r3.Cross(u, p)))
	return r3.Add(out, r3.Scale(r3.Dot(u, p)*(1-c), u))
}

// fibonacci returns n nearly uniform points on the unit sphere.
func fibonacci(n int) []r3.Vec {
	golden := math.Pi * (3 - math.Sqrt(5))
	pts := make([]r3.Vec, n)
	for i := range pts {
		z := 1 - (2*float64(i)+1)/float64(n)
		r := math.Sqrt(1 - z*z)
		s, c := math.Sincos(golden * float64(i))
		pts[i] = r3.Vec{X: r * c, Y: r * s, Z: z}
	}
	return pts
}
