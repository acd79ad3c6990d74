// Package units holds the boundary conversions between the user-facing units
// (degrees, days, calendar time) and the internal ones (radians, seconds).
//
// Every conversion is applied exactly once, at the setter boundary. Internal
// state and internal computations work purely in radians and seconds.
package units

import (
	"math"
	"time"
)

// DayToSeconds is the number of seconds in a day.
const DayToSeconds = 86400.0

// unixEpochJD is the Julian Date of 1970-01-01 00:00:00 UTC.
const unixEpochJD = 2440587.5

// Float is the set of plain real scalar types.
type Float interface {
	~float32 | ~float64
}

// Eps returns the machine epsilon of T: the gap between 1 and the next
// representable value.
func Eps[T Float]() T {
	eps := T(1)
	for T(1)+eps/2 != 1 {
		eps /= 2
	}
	return eps
}

// DaysToSeconds converts a duration or epoch in days to seconds.
func DaysToSeconds(d float64) float64 {
	return d * DayToSeconds
}

// SecondsToDays converts seconds to days.
func SecondsToDays(s float64) float64 {
	return s / DayToSeconds
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// Mod2Pi wraps an angle in radians to [0, 2π).
func Mod2Pi(x float64) float64 {
	y := math.Mod(x, 2*math.Pi)
	if y < 0 {
		y += 2 * math.Pi
	}
	// math.Mod of a tiny negative angle can round back up to exactly 2π.
	if y >= 2*math.Pi {
		y = 0
	}
	return y
}

// JulianDate converts t to a Julian Date, counting days from the Unix
// epoch. Leap seconds are ignored, as they are by time.Time.
func JulianDate(t time.Time) float64 {
	return unixEpochJD + (float64(t.Unix())+float64(t.Nanosecond())/1e9)/DayToSeconds
}

// TimeFromJulianDate converts a Julian Date to UTC time, to the nearest
// microsecond.
func TimeFromJulianDate(jd float64) time.Time {
	us := math.Round((jd - unixEpochJD) * DayToSeconds * 1e6)
	sec := math.Floor(us / 1e6)
	return time.Unix(int64(sec), int64(us-sec*1e6)*1000).UTC()
}
