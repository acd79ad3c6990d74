package lightcurve

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/star/starflux/internal/system"
	"github.com/star/starflux/internal/units"
)

// System is a built primary plus secondaries. Not safe for concurrent use;
// build one per goroutine.
type System struct {
	Primary     *system.Primary
	Secondaries []*system.Secondary
	Names       []string

	nwav   int
	bodies []*system.Body
	pos    []position
}

type position struct{ x, y, z, r float64 }

// Sample is the flux of a system at one time.
type Sample struct {
	// Flux is the summed flux per channel.
	Flux []float64
	// Bodies holds per-body flux, primary first.
	Bodies [][]float64
}

// Build constructs fresh bodies from spec. Every call returns independent
// instances.
func Build(spec Spec, opts ...system.Option) (*System, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	s := spec.normalized()
	if s.Resolution > 0 {
		opts = append([]system.Option{system.WithResolution(s.Resolution)}, opts...)
	}

	p, err := system.NewPrimary(s.Lmax, s.Nwav, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Primary.apply(&p.Body, s.Lmax, s.Nwav); err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}

	sys := &System{
		Primary: p,
		nwav:    s.Nwav,
		bodies:  []*system.Body{&p.Body},
	}
	for i, ss := range s.Secondaries {
		sec, err := system.NewSecondary(s.Lmax, s.Nwav, opts...)
		if err != nil {
			return nil, err
		}
		if err := ss.apply(sec, s.Lmax, s.Nwav); err != nil {
			return nil, fmt.Errorf("%s: %w", secondaryLabel(i, ss), err)
		}
		sys.Secondaries = append(sys.Secondaries, sec)
		sys.Names = append(sys.Names, secondaryLabel(i, ss))
		sys.bodies = append(sys.bodies, &sec.Body)
	}
	sys.pos = make([]position, len(sys.bodies))
	return sys, nil
}

// Nwav returns the number of wavelength channels.
func (s *System) Nwav() int { return s.nwav }

// Step evaluates the system at time t (days). Each body's total flux is
// computed, secondaries are moved along their orbits, and every body is
// occulted by each body in front of it whose disk overlaps its own.
func (s *System) Step(t float64) (Sample, error) {
	ts := units.DaysToSeconds(t)

	s.pos[0] = position{r: s.Primary.Radius()}
	for i, sec := range s.Secondaries {
		if err := sec.OrbitStep(ts); err != nil {
			return Sample{}, err
		}
		x, y, z := sec.Position()
		s.pos[i+1] = position{x: x, y: y, z: z, r: sec.Radius()}
	}

	for _, b := range s.bodies {
		if err := b.ComputeTotal(ts); err != nil {
			return Sample{}, err
		}
	}

	for i, b := range s.bodies {
		if b.Luminosity() == 0 {
			continue
		}
		pb := s.pos[i]
		for j := range s.bodies {
			po := s.pos[j]
			if j == i || po.z <= pb.z {
				continue
			}
			dx, dy := po.x-pb.x, po.y-pb.y
			if math.Hypot(dx, dy) >= pb.r+po.r {
				continue
			}
			if err := b.Occult(ts, dx/pb.r, dy/pb.r, po.r/pb.r); err != nil {
				return Sample{}, err
			}
		}
	}

	out := Sample{
		Flux:   make([]float64, s.nwav),
		Bodies: make([][]float64, len(s.bodies)),
	}
	for i, b := range s.bodies {
		out.Bodies[i] = b.Flux()
		floats.Add(out.Flux, out.Bodies[i])
	}
	return out, nil
}
