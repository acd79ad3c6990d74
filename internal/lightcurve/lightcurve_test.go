package lightcurve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/star/starflux/internal/kepler"
	"github.com/star/starflux/internal/system"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// hotJupiter is an edge-on circular planet that transits at t = 0 and is
// eclipsed at t = 0.5 d.
func hotJupiter(lum float64) Spec {
	return Spec{
		Lmax: 1,
		Nwav: 1,
		Secondaries: []SecondarySpec{{
			Name:       "b",
			Radius:     Float(0.1),
			Luminosity: Float(lum),
			Semi:       Float(50),
			OrbPer:     Float(1),
		}},
	}
}

func TestBuildDefaults(t *testing.T) {
	sys, err := Build(Spec{Secondaries: []SecondarySpec{{}}})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if sys.Nwav() != 1 {
		t.Errorf("Nwav = %d, want 1", sys.Nwav())
	}
	if len(sys.Secondaries) != 1 || sys.Names[0] != "secondary 0" {
		t.Fatalf("secondaries = %d, names = %v", len(sys.Secondaries), sys.Names)
	}
	sec := sys.Secondaries[0]
	if sec.Semi() != 50 || sec.Inc() != 90 || sec.Radius() != 0.1 {
		t.Errorf("secondary defaults not applied: a=%g inc=%g r=%g", sec.Semi(), sec.Inc(), sec.Radius())
	}
}

func TestBuildAppliesParameters(t *testing.T) {
	spec := Spec{
		Lmax: 2,
		Nwav: 2,
		Primary: BodySpec{
			RotPer: Float(25),
			Y:      [][]float64{{1, 0, 0.1}},
		},
		Secondaries: []SecondarySpec{{
			Name:     "c",
			BodySpec: BodySpec{RotPer: Float(3), RefTime: Float(10), Y: [][]float64{{1}, {1, 0.2}}},
			Inc:      Float(87),
			Ecc:      Float(0.1),
			VarPi:    Float(200),
			Omega:    Float(15),
			Lambda0:  Float(30),
		}},
	}
	sys, err := Build(spec)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if got := sys.Primary.RotPer(); got != 25 {
		t.Errorf("primary RotPer = %g, want 25", got)
	}
	y := sys.Primary.Map().Y()
	for c := 0; c < 2; c++ {
		if y.At(2, c) != 0.1 {
			t.Errorf("primary y[2] channel %d = %g, want broadcast 0.1", c, y.At(2, c))
		}
	}
	sec := sys.Secondaries[0]
	if sec.RefTime() != 10 || sec.RotPer() != 3 {
		t.Errorf("secondary tref, prot = %g, %g, want 10, 3", sec.RefTime(), sec.RotPer())
	}
	if got := sec.Map().Y().At(1, 1); got != 0.2 {
		t.Errorf("secondary y[1] channel 1 = %g, want 0.2", got)
	}
	if got := sec.Map().Y().At(1, 0); got != 0 {
		t.Errorf("secondary y[1] channel 0 = %g, want 0", got)
	}
	if sec.SkyIdentity() {
		t.Error("inc=87, Omega=15: sky map should be rotated")
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want error
	}{
		{"lmax too high", Spec{Lmax: MaxLmax + 1}, ErrSpec},
		{"negative lmax", Spec{Lmax: -1}, ErrSpec},
		{"too many channels", Spec{Nwav: MaxNwav + 1}, ErrSpec},
		{"channel count", Spec{Nwav: 3, Primary: BodySpec{Y: [][]float64{{1}, {1}}}}, ErrSpec},
		{"too many coefficients", Spec{Lmax: 1, Secondaries: []SecondarySpec{{
			BodySpec: BodySpec{Y: [][]float64{{1, 0, 0, 0, 0}}},
		}}}, ErrSpec},
		{"eccentricity", Spec{Secondaries: []SecondarySpec{{Ecc: Float(1)}}}, system.ErrValidation},
		{"inclination", Spec{Secondaries: []SecondarySpec{{Inc: Float(180)}}}, system.ErrValidation},
		{"radius", Spec{Secondaries: []SecondarySpec{{Radius: Float(0)}}}, system.ErrValidation},
		{"rotation", Spec{Primary: BodySpec{RotPer: Float(-1)}}, system.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.spec)
			if !errors.Is(err, tt.want) {
				t.Errorf("Build error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStepTransit(t *testing.T) {
	sys, err := Build(hotJupiter(0))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	in, err := sys.Step(0)
	if err != nil {
		t.Fatalf("Step(0) error: %v", err)
	}
	if depth := 1 - in.Flux[0]; math.Abs(depth-0.01) > 1e-3 {
		t.Errorf("transit depth = %g, want ~0.01", depth)
	}

	out, err := sys.Step(0.25)
	if err != nil {
		t.Fatalf("Step(0.25) error: %v", err)
	}
	if math.Abs(out.Flux[0]-1) > 1e-12 {
		t.Errorf("out-of-transit flux = %g, want 1", out.Flux[0])
	}
	if len(out.Bodies) != 2 || out.Bodies[1][0] != 0 {
		t.Errorf("per-body flux = %v, want dark secondary", out.Bodies)
	}
}

func TestStepSecondaryEclipse(t *testing.T) {
	sys, err := Build(hotJupiter(0.01))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	quad, err := sys.Step(0.25)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(quad.Flux[0]-1.01) > 1e-9 {
		t.Errorf("quadrature flux = %g, want 1.01", quad.Flux[0])
	}

	ecl, err := sys.Step(0.5)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(ecl.Bodies[1][0]) > 1e-9 {
		t.Errorf("eclipsed secondary flux = %g, want 0", ecl.Bodies[1][0])
	}
	if math.Abs(ecl.Bodies[0][0]-1) > 1e-12 {
		t.Errorf("primary flux during secondary eclipse = %g, want 1", ecl.Bodies[0][0])
	}
}

func TestStepMutualEvent(t *testing.T) {
	// Two planets transiting at the same time: the nearer one also passes
	// in front of the farther, luminous one.
	spec := Spec{
		Secondaries: []SecondarySpec{
			{Name: "near", Radius: Float(0.05), Semi: Float(20), OrbPer: Float(1)},
			{Name: "far", Radius: Float(0.1), Luminosity: Float(0.001), Semi: Float(10), OrbPer: Float(2)},
		},
	}
	sys, err := Build(spec)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	s, err := sys.Step(0)
	if err != nil {
		t.Fatalf("Step error: %v", err)
	}
	far := s.Bodies[2][0]
	if !(far < 0.001) || !(far > 0) {
		t.Errorf("far planet flux = %g, want partially occulted in (0, 0.001)", far)
	}
	want := s.Bodies[0][0] + s.Bodies[1][0] + s.Bodies[2][0]
	if math.Abs(s.Flux[0]-want) > 1e-15 {
		t.Errorf("total = %g, want sum of bodies %g", s.Flux[0], want)
	}
}

func TestEvaluatorMatchesSerial(t *testing.T) {
	spec := hotJupiter(0.002)
	spec.Secondaries[0].Ecc = Float(0.2)
	spec.Secondaries[0].VarPi = Float(60)
	spec.Secondaries[0].RotPer = Float(0.5)
	spec.Secondaries[0].Y = [][]float64{{1, 0, 0.3, 0}}
	times := Linspace(-0.1, 1.1, 101)

	sys, err := Build(spec)
	if err != nil {
		t.Fatal(err)
	}
	want := make([][]float64, len(times))
	for i, tm := range times {
		s, err := sys.Step(tm)
		if err != nil {
			t.Fatal(err)
		}
		want[i] = s.Flux
	}

	for _, workers := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			e := NewEvaluator(workers, testLogger())
			e.chunkSize = 7
			curve, err := e.Compute(context.Background(), spec, times)
			if err != nil {
				t.Fatalf("Compute error: %v", err)
			}
			if !floats.Equal(curve.Time, times) {
				t.Errorf("times reordered")
			}
			for i := range times {
				if !floats.EqualApprox(curve.Flux[i], want[i], 1e-13) {
					t.Errorf("t=%g: flux %v, want %v", times[i], curve.Flux[i], want[i])
				}
			}
		})
	}
}

func TestEvaluatorErrors(t *testing.T) {
	e := NewEvaluator(2, testLogger())

	_, err := e.Compute(context.Background(), Spec{Lmax: -3}, []float64{0})
	if !errors.Is(err, ErrSpec) {
		t.Errorf("bad spec error = %v, want ErrSpec", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Compute(ctx, hotJupiter(0), Linspace(0, 1, 2000))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("canceled error = %v, want context.Canceled", err)
	}

	curve, err := e.Compute(context.Background(), hotJupiter(0), nil)
	if err != nil || len(curve.Flux) != 0 {
		t.Errorf("empty times: curve %v, error %v", curve, err)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", &kepler.ConvergenceError{}), "convergence"},
		{&system.ValidationError{Field: "radius"}, "validation"},
		{fmt.Errorf("%w: lmax", ErrSpec), "validation"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		if got := errorKind(tt.err); got != tt.want {
			t.Errorf("errorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestLinspace(t *testing.T) {
	if got := Linspace(0, 1, 5); !floats.Equal(got, []float64{0, 0.25, 0.5, 0.75, 1}) {
		t.Errorf("Linspace(0, 1, 5) = %v", got)
	}
	if got := Linspace(3, 4, 1); !floats.Equal(got, []float64{3}) {
		t.Errorf("Linspace(3, 4, 1) = %v", got)
	}
	if got := Linspace(3, 4, 0); got != nil {
		t.Errorf("Linspace(3, 4, 0) = %v, want nil", got)
	}
}

func BenchmarkStep(b *testing.B) {
	sys, err := Build(hotJupiter(0.001))
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sys.Step(float64(i) * 1e-3); err != nil {
			b.Fatal(err)
		}
	}
}
