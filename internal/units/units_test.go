package units

import (
	"math"
	"testing"
	"time"
)

func TestEps(t *testing.T) {
	if got, want := Eps[float64](), math.Nextafter(1, 2)-1; got != want {
		t.Errorf("Eps[float64]() = %g, want %g", got, want)
	}
	if got, want := Eps[float32](), math.Nextafter32(1, 2)-1; got != want {
		t.Errorf("Eps[float32]() = %g, want %g", got, want)
	}
}

func TestMod2Pi(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{2 * math.Pi, 0},
		{-math.Pi / 2, 1.5 * math.Pi},
		{5 * math.Pi, math.Pi},
		{-1e-18, 0},
	}
	for _, tt := range tests {
		got := Mod2Pi(tt.in)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Mod2Pi(%g) = %g, want %g", tt.in, got, tt.want)
		}
		if got < 0 || got >= 2*math.Pi {
			t.Errorf("Mod2Pi(%g) = %g, outside [0, 2π)", tt.in, got)
		}
	}
}

func TestConversions(t *testing.T) {
	if got := DaysToSeconds(1.5); got != 129600 {
		t.Errorf("DaysToSeconds(1.5) = %g, want 129600", got)
	}
	if got := SecondsToDays(DaysToSeconds(3.25)); got != 3.25 {
		t.Errorf("round trip days = %g, want 3.25", got)
	}
	if got := RadToDeg(DegToRad(37.5)); math.Abs(got-37.5) > 1e-12 {
		t.Errorf("round trip degrees = %g, want 37.5", got)
	}
	if got := DegToRad(180); got != math.Pi {
		t.Errorf("DegToRad(180) = %g, want π", got)
	}
}

func TestJulianDate(t *testing.T) {
	// J2000.0 epoch.
	j := JulianDate(time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC))
	if math.Abs(j-2451545.0) > 1e-9 {
		t.Errorf("JulianDate(J2000) = %.9f, want 2451545.0", j)
	}

	// Meeus example 7.a: 1957 Oct 4.81 = JD 2436116.31.
	sputnik := time.Date(1957, 10, 4, 19, 26, 24, 0, time.UTC)
	if got := JulianDate(sputnik); math.Abs(got-2436116.31) > 1e-6 {
		t.Errorf("JulianDate(1957-10-04.81) = %.6f, want 2436116.31", got)
	}
}

func TestTimeFromJulianDateRoundTrip(t *testing.T) {
	tests := []time.Time{
		time.Date(2024, 4, 10, 6, 30, 15, 0, time.UTC),
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1957, 10, 4, 19, 26, 24, 500_000_000, time.UTC),
		time.Date(2009, 6, 3, 13, 48, 11, 0, time.FixedZone("HST", -10*3600)),
	}
	for _, want := range tests {
		got := TimeFromJulianDate(JulianDate(want))
		if d := got.Sub(want); d > time.Millisecond || d < -time.Millisecond {
			t.Errorf("TimeFromJulianDate round trip = %v, want %v (diff %v)", got, want, d)
		}
		if got.Location() != time.UTC {
			t.Errorf("TimeFromJulianDate location = %v, want UTC", got.Location())
		}
	}

	if got := TimeFromJulianDate(2451545.0); !got.Equal(time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("TimeFromJulianDate(J2000) = %v", got)
	}
}
