package kepler

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrTangentShape is returned when two dual inputs carry tangent vectors of
// different lengths.
var ErrTangentShape = errors.New("dual tangent vectors differ in length")

// Dual is a forward-mode automatic differentiation scalar: a value plus the
// tangent vector of its partial derivatives with respect to the seeded inputs.
// A nil or empty Tangent marks a constant.
type Dual struct {
	Value   float64
	Tangent []float64
}

// Constant returns a Dual with no tangent.
func Constant(v float64) Dual {
	return Dual{Value: v}
}

// Variable returns a Dual seeded as input i of n differentiated inputs.
func Variable(v float64, i, n int) Dual {
	t := make([]float64, n)
	t[i] = 1
	return Dual{Value: v, Tangent: t}
}

// EccentricAnomalyDual solves Kepler's equation for the value of E and then
// propagates tangents with the implicit-function rule
//
//	dE/dM   = 1 / (1 - ecc·cos E)
//	dE/decc = sin E / (1 - ecc·cos E)
//
// Only the inputs that carry a tangent contribute; when neither does the
// result is a constant.
func EccentricAnomalyDual(M, ecc Dual) (Dual, error) {
	hasM, hasEcc := len(M.Tangent) > 0, len(ecc.Tangent) > 0
	if hasM && hasEcc && len(M.Tangent) != len(ecc.Tangent) {
		return Dual{}, fmt.Errorf("eccentric anomaly: %w (%d vs %d)", ErrTangentShape, len(M.Tangent), len(ecc.Tangent))
	}

	E, err := EccentricAnomaly(M.Value, ecc.Value)
	if err != nil {
		return Dual{}, err
	}

	cosE, sinE := math.Cos(E), math.Sin(E)
	norm1 := 1 / (1 - ecc.Value*cosE)
	norm2 := sinE * norm1

	switch {
	case hasM && hasEcc:
		t := make([]float64, len(M.Tangent))
		floats.ScaleTo(t, norm1, M.Tangent)
		floats.AddScaled(t, norm2, ecc.Tangent)
		return Dual{Value: E, Tangent: t}, nil
	case hasM:
		return Dual{Value: E, Tangent: scaled(M.Tangent, norm1)}, nil
	case hasEcc:
		return Dual{Value: E, Tangent: scaled(ecc.Tangent, norm2)}, nil
	default:
		return Dual{Value: E}, nil
	}
}

func scaled(v []float64, s float64) []float64 {
	return floats.ScaleTo(make([]float64, len(v)), s, v)
}
