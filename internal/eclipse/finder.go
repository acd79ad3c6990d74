// Package eclipse finds transits and occultations of secondaries by scanning
// their projected separation from the primary.
package eclipse

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/star/starflux/internal/lightcurve"
	"github.com/star/starflux/internal/metrics"
	"github.com/star/starflux/internal/system"
	"github.com/star/starflux/internal/units"
)

// Event kinds.
const (
	KindTransit     = "transit"
	KindOccultation = "occultation"
)

// DefaultMaxEvents caps the events returned per secondary.
const DefaultMaxEvents = 100

const (
	coarseSteps = 200   // coarse samples per orbit, at most
	fineSteps   = 20000 // fine samples per orbit, at most
	finePerStep = 100   // fine samples per coarse step, at least
)

// ErrWindow is returned for an empty or inverted search window.
var ErrWindow = errors.New("eclipse search window is empty")

// Event is one passage of a secondary across the primary's disk (transit)
// or behind it (occultation). Times are days.
type Event struct {
	Kind          string  `json:"kind"`
	Start         float64 `json:"start"`
	Mid           float64 `json:"mid"`
	End           float64 `json:"end"`
	DurationHours float64 `json:"duration_hours"`
	MinSeparation float64 `json:"min_separation"` // primary radii
}

// BodyEvents holds the events found for one secondary.
type BodyEvents struct {
	Name   string  `json:"name"`
	Events []Event `json:"events"`
	Error  string  `json:"error,omitempty"`
}

// Request holds the parameters of an eclipse search.
type Request struct {
	Spec      lightcurve.Spec
	Start     float64 // days
	Stop      float64 // days
	MaxEvents int
}

// Find searches each secondary of req.Spec for events in [Start, Stop).
// Each secondary is scanned in its own goroutine, bounded by a semaphore.
// A failure while scanning one secondary is reported in its result and
// does not affect the others.
func Find(ctx context.Context, req Request) ([]BodyEvents, error) {
	if !(req.Stop > req.Start) {
		return nil, fmt.Errorf("%w: [%g, %g)", ErrWindow, req.Start, req.Stop)
	}
	if req.MaxEvents <= 0 {
		req.MaxEvents = DefaultMaxEvents
	}
	probe, err := lightcurve.Build(req.Spec)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]BodyEvents, len(probe.Secondaries))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i := range probe.Secondaries {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			name := probe.Names[idx]

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = BodyEvents{Name: name, Error: "cancelled"}
				return
			}

			// Bodies are not safe for concurrent use; each scan gets its own.
			sys, err := lightcurve.Build(req.Spec)
			if err != nil {
				results[idx] = BodyEvents{Name: name, Error: err.Error()}
				return
			}
			events, err := scan(ctx, sys.Secondaries[idx], req)
			results[idx] = BodyEvents{Name: name, Events: events}
			if err != nil {
				results[idx].Error = err.Error()
			}
		}(i)
	}

	wg.Wait()

	var transits, occultations int
	for _, r := range results {
		for _, e := range r.Events {
			if e.Kind == KindTransit {
				transits++
			} else {
				occultations++
			}
		}
	}
	metrics.RecordEclipseSearch(time.Since(start), transits, occultations)
	return results, nil
}

// separation returns the projected distance from the primary's centre and
// the line-of-sight coordinate at t (days).
func separation(sec *system.Secondary, t float64) (sep, z float64, err error) {
	if err := sec.OrbitStep(units.DaysToSeconds(t)); err != nil {
		return 0, 0, err
	}
	x, y, z := sec.Position()
	return math.Hypot(x, y), z, nil
}

// steps returns the coarse and fine scan steps in days. The coarse step is
// the time to cover one contact radius at the fastest sky-plane speed, which
// is pericentre speed n·a·(1+e)/√(1−e²). A central event lasts at least two
// such steps, so at least one coarse sample falls inside it.
func steps(sec *system.Secondary) (coarse, fine float64) {
	porb, ecc := sec.OrbPer(), sec.Ecc()
	vmax := 2 * math.Pi / porb * sec.Semi() * (1 + ecc) / math.Sqrt(1-ecc*ecc)
	coarse = math.Min(porb/coarseSteps, (1+sec.Radius())/vmax)
	fine = math.Min(porb/fineSteps, coarse/finePerStep)
	return coarse, fine
}

// scan finds all events of one secondary.
func scan(ctx context.Context, sec *system.Secondary, req Request) ([]Event, error) {
	coarse, _ := steps(sec)
	contact := 1 + sec.Radius()
	var events []Event

	t := req.Start
	for t < req.Stop && len(events) < req.MaxEvents {
		if ctx.Err() != nil {
			return events, ctx.Err()
		}

		sep, _, err := separation(sec, t)
		if err != nil {
			return events, err
		}
		if sep >= contact {
			t += coarse
			continue
		}

		ev, windowEnd, err := refine(ctx, sec, t, req.Start, req.Stop)
		if err != nil {
			return events, err
		}
		if ev != nil {
			events = append(events, *ev)
		}
		t = windowEnd + coarse
	}
	return events, nil
}

// refine does a fine scan around a coarse hit. It backs up one coarse step
// to find first contact, then scans forward to last contact. Returns the
// event and the time the window ends.
func refine(ctx context.Context, sec *system.Secondary, hit, windowStart, windowEnd float64) (*Event, float64, error) {
	coarse, fine := steps(sec)
	contact := 1 + sec.Radius()

	searchStart := math.Max(hit-coarse, windowStart)

	var (
		startTime, endTime float64
		minSep             = math.Inf(1)
		minTime, zAtMin    float64
		inside, found      bool
		closed             bool
	)

	t := searchStart
	for i := 0; t < windowEnd; i++ {
		if ctx.Err() != nil {
			return nil, t, ctx.Err()
		}
		sep, z, err := separation(sec, t)
		if err != nil {
			return nil, t, err
		}

		now := sep < contact
		if now && !inside && !found {
			startTime = t
			found = true
		}
		if now && found && sep < minSep {
			minSep, minTime, zAtMin = sep, t, z
		}
		if !now && inside {
			endTime = t
			closed = true
			break
		}

		inside = now
		t = searchStart + float64(i+1)*fine
	}

	if !found {
		return nil, t, nil
	}
	if !closed {
		endTime = math.Min(t, windowEnd)
	}

	kind := KindOccultation
	if zAtMin > 0 {
		kind = KindTransit
	}
	return &Event{
		Kind:          kind,
		Start:         startTime,
		Mid:           minTime,
		End:           endTime,
		DurationHours: (endTime - startTime) * 24,
		MinSeparation: minSep,
	}, t, nil
}
