package catalog

import (
	"strings"
	"time"
)

// Planet is one row of the planet table. Periods and mid-transit times are
// days (BJD), angles degrees, planet radius Jupiter radii, transit depth
// percent, stellar radius and mass solar units.
type Planet struct {
	Host      string  `json:"host" yaml:"host"`
	Letter    string  `json:"letter" yaml:"letter"`
	OrbPer    float64 `json:"orbper" yaml:"orbper"`
	TranMid   float64 `json:"tranmid" yaml:"tranmid"`
	RadJ      float64 `json:"radj" yaml:"radj"`
	Inc       float64 `json:"inc" yaml:"inc"`
	Ecc       float64 `json:"ecc" yaml:"ecc"`
	OrbLPer   float64 `json:"orblper" yaml:"orblper"`
	TranDepth float64 `json:"trandep" yaml:"trandep"`
	StRad     float64 `json:"st_rad" yaml:"st_rad"`
	StMass    float64 `json:"st_mass" yaml:"st_mass"`

	// TranMidUTC is TranMid as a calendar time, zero when TranMid is
	// unknown. The BJD to UTC offset of about a minute is ignored.
	TranMidUTC time.Time `json:"tranmid_utc,omitzero" yaml:"tranmid_utc,omitempty"`

	// Incomplete is set when the period, mid-transit time or radius is
	// missing; such planets are never turned into secondaries.
	Incomplete bool `json:"incomplete,omitempty" yaml:"incomplete,omitempty"`
}

// Name returns the planet designation, e.g. "WASP-12 b".
func (p Planet) Name() string {
	return p.Host + " " + p.Letter
}

// Dataset is a parsed planet table.
type Dataset struct {
	Source    string
	FetchedAt time.Time
	Planets   []Planet
}

// stripName lowercases a name and removes dashes and spaces, so that
// "Kepler-10", "kepler 10" and "KEPLER10" compare equal.
func stripName(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, strings.ToLower(s))
}
