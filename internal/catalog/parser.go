package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/star/starflux/internal/units"
)

// rJupToSun converts Jupiter radii to solar radii.
const rJupToSun = 0.10045

// Parse reads the planet table CSV from r. Lines starting with '#' are
// comments. Missing values are filled with defaults: inclination 90,
// eccentricity 0, longitude of periastron 0, stellar mass 1 and transit
// depth (Rp/R*)². Rows lacking a period, mid-transit time or radius are kept
// and flagged Incomplete. Rows with an unparseable number are skipped with a
// warning.
func Parse(r io.Reader, logger *slog.Logger) ([]Planet, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reading planet table: empty input")
		}
		return nil, fmt.Errorf("reading planet table header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{"pl_hostname", "pl_letter"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("planet table has no %s column", required)
		}
	}

	var planets []Planet
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading planet table: %w", err)
		}

		line, _ := cr.FieldPos(0)
		row := record{rec: rec, col: col}
		p := Planet{
			Host:      row.str("pl_hostname"),
			Letter:    row.str("pl_letter"),
			OrbPer:    row.num("pl_orbper"),
			TranMid:   row.num("pl_tranmid"),
			RadJ:      row.num("pl_radj"),
			Inc:       row.num("pl_orbincl"),
			Ecc:       row.num("pl_eccen"),
			OrbLPer:   row.num("pl_orblper"),
			TranDepth: row.num("pl_trandep"),
			StRad:     row.num("st_rad"),
			StMass:    row.num("st_mass"),
		}
		if row.err != nil {
			logger.Warn("skipping planet row", "line", line, "host", p.Host, "error", row.err)
			continue
		}
		if p.Host == "" {
			logger.Warn("skipping planet row without host name", "line", line)
			continue
		}
		fill(&p)
		planets = append(planets, p)
	}
	return planets, nil
}

// fill replaces missing values with defaults.
func fill(p *Planet) {
	if math.IsNaN(p.Inc) {
		p.Inc = 90
	}
	if math.IsNaN(p.Ecc) {
		p.Ecc = 0
	}
	if math.IsNaN(p.OrbLPer) {
		p.OrbLPer = 0
	}
	if math.IsNaN(p.StMass) {
		p.StMass = 1
	}
	if math.IsNaN(p.TranDepth) {
		k := p.RadJ * rJupToSun / p.StRad
		p.TranDepth = 100 * k * k
	}
	p.Incomplete = math.IsNaN(p.OrbPer) || math.IsNaN(p.TranMid) || math.IsNaN(p.RadJ) ||
		math.IsNaN(p.StRad) || !(p.OrbPer > 0) || !(p.StRad > 0)
	if !math.IsNaN(p.TranMid) {
		p.TranMidUTC = units.TimeFromJulianDate(p.TranMid)
	}
	// JSON has no NaN; the Incomplete flag marks what was missing.
	for _, v := range []*float64{&p.OrbPer, &p.TranMid, &p.RadJ, &p.StRad, &p.TranDepth} {
		if math.IsNaN(*v) {
			*v = 0
		}
	}
}

// record reads named fields of one CSV row and keeps the first error.
type record struct {
	rec []string
	col map[string]int
	err error
}

func (r *record) str(name string) string {
	i, ok := r.col[name]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

// num returns NaN for absent or empty fields.
func (r *record) num(name string) float64 {
	s := r.str(name)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("%s: %w", name, err)
		}
		return math.NaN()
	}
	return v
}
