// Package kepler solves Kepler's equation E - e·sin(E) = M for the eccentric
// anomaly.
//
// Two scalar flavours are supported. EccentricAnomaly is generic over the plain
// real types and iterates Newton-Raphson to a tolerance of ten machine epsilons.
// EccentricAnomalyDual accepts forward-mode dual numbers: it solves for the value
// only and then propagates tangents analytically, without differentiating
// through the iteration.
package kepler

import (
	"errors"
	"fmt"
	"math"

	"github.com/star/starflux/internal/units"
)

// MaxIterations bounds the Newton-Raphson iteration.
const MaxIterations = 100

// ErrConvergence is matched by every ConvergenceError.
var ErrConvergence = errors.New("kepler solver did not converge")

// ConvergenceError reports a Newton iteration that failed to reach tolerance.
type ConvergenceError struct {
	M          float64
	Ecc        float64
	Iterations int
	Residual   float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("kepler solver did not converge after %d iterations (M=%g, ecc=%g, residual=%g)",
		e.Iterations, e.M, e.Ecc, e.Residual)
}

// Is reports ErrConvergence as a match.
func (e *ConvergenceError) Is(target error) bool {
	return target == ErrConvergence
}

// EccentricAnomaly returns E satisfying |E - ecc·sin(E) - M| <= 10·eps(T).
// For ecc == 0 it returns M unchanged without iterating.
func EccentricAnomaly[T units.Float](M, ecc T) (T, error) {
	return eccentricAnomaly(M, ecc, MaxIterations)
}

func eccentricAnomaly[T units.Float](M, ecc T, maxIter int) (T, error) {
	E := M
	if !(ecc > 0) {
		return E, nil
	}

	tol := 10 * float64(units.Eps[T]())
	m, e := float64(M), float64(ecc)
	var residual float64
	for iter := 0; iter <= maxIter; iter++ {
		x := float64(E)
		E = T(x - (x-e*math.Sin(x)-m)/(1-e*math.Cos(x)))
		x = float64(E)
		residual = x - e*math.Sin(x) - m
		if math.Abs(residual) <= tol {
			return E, nil
		}
	}

	return E, &ConvergenceError{M: m, Ecc: e, Iterations: maxIter + 1, Residual: residual}
}

// TrueAnomaly converts an eccentric anomaly to the true anomaly, using the
// half-angle form that stays well conditioned near pericenter and apocenter.
func TrueAnomaly(E, ecc float64) float64 {
	return 2 * math.Atan2(math.Sqrt(1+ecc)*math.Sin(E/2), math.Sqrt(1-ecc)*math.Cos(E/2))
}

// MeanAnomaly is the inverse of the solver: M = E - ecc·sin(E).
func MeanAnomaly(E, ecc float64) float64 {
	return E - ecc*math.Sin(E)
}

// EccentricAnomalyFromTrue maps a true anomaly to its eccentric anomaly.
func EccentricAnomalyFromTrue(f, ecc float64) float64 {
	return math.Atan2(math.Sqrt(1-ecc*ecc)*math.Sin(f), ecc+math.Cos(f))
}
