// Package lightcurve builds systems from a serialisable description and
// evaluates their flux over time, sequencing occultations between bodies.
package lightcurve

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/star/starflux/internal/system"
	"github.com/star/starflux/internal/ylm"
)

// MaxLmax bounds the map degree accepted from a description.
const MaxLmax = 10

// MaxNwav bounds the number of wavelength channels.
const MaxNwav = 64

// ErrSpec is matched by description errors that are not setter validation
// errors (shape and count problems).
var ErrSpec = errors.New("invalid system description")

// Spec describes a system. Unset optional fields keep the body defaults.
type Spec struct {
	Lmax        int             `yaml:"lmax" json:"lmax"`
	Nwav        int             `yaml:"nwav" json:"nwav"`
	Resolution  int             `yaml:"resolution,omitempty" json:"resolution,omitempty"`
	Primary     BodySpec        `yaml:"primary" json:"primary"`
	Secondaries []SecondarySpec `yaml:"secondaries" json:"secondaries"`
}

// BodySpec holds the parameters shared by every body. Y lists coefficient
// vectors, one per channel, in (l, m) order starting at l = 0; a single
// vector is broadcast to every channel and short vectors are zero-padded.
type BodySpec struct {
	RotPer  *float64    `yaml:"prot,omitempty" json:"prot,omitempty"`
	RefTime *float64    `yaml:"tref,omitempty" json:"tref,omitempty"`
	Y       [][]float64 `yaml:"y,omitempty" json:"y,omitempty"`
}

// SecondarySpec describes one orbiting body. Angles are degrees, times days.
type SecondarySpec struct {
	Name       string `yaml:"name,omitempty" json:"name,omitempty"`
	BodySpec   `yaml:",inline"`
	Radius     *float64 `yaml:"r,omitempty" json:"r,omitempty"`
	Luminosity *float64 `yaml:"L,omitempty" json:"L,omitempty"`
	Semi       *float64 `yaml:"a,omitempty" json:"a,omitempty"`
	OrbPer     *float64 `yaml:"porb,omitempty" json:"porb,omitempty"`
	Inc        *float64 `yaml:"inc,omitempty" json:"inc,omitempty"`
	Ecc        *float64 `yaml:"ecc,omitempty" json:"ecc,omitempty"`
	VarPi      *float64 `yaml:"w,omitempty" json:"w,omitempty"`
	Omega      *float64 `yaml:"Omega,omitempty" json:"Omega,omitempty"`
	Lambda0    *float64 `yaml:"lambda0,omitempty" json:"lambda0,omitempty"`
}

// Float returns a pointer to v, for filling optional fields.
func Float(v float64) *float64 { return &v }

func (s *Spec) normalized() Spec {
	out := *s
	if out.Nwav == 0 {
		out.Nwav = 1
	}
	return out
}

// Validate checks counts and coefficient shapes. Parameter ranges are
// checked by the body setters during Build.
func (s *Spec) Validate() error {
	n := s.normalized()
	if n.Lmax < 0 || n.Lmax > MaxLmax {
		return fmt.Errorf("%w: lmax %d outside [0, %d]", ErrSpec, n.Lmax, MaxLmax)
	}
	if n.Nwav < 1 || n.Nwav > MaxNwav {
		return fmt.Errorf("%w: nwav %d outside [1, %d]", ErrSpec, n.Nwav, MaxNwav)
	}
	if n.Resolution < 0 {
		return fmt.Errorf("%w: negative resolution %d", ErrSpec, n.Resolution)
	}
	if err := checkY("primary", n.Primary.Y, n.Lmax, n.Nwav); err != nil {
		return err
	}
	for i, sec := range n.Secondaries {
		if err := checkY(secondaryLabel(i, sec), sec.Y, n.Lmax, n.Nwav); err != nil {
			return err
		}
	}
	return nil
}

func secondaryLabel(i int, s SecondarySpec) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("secondary %d", i)
}

func checkY(label string, y [][]float64, lmax, nwav int) error {
	if len(y) == 0 {
		return nil
	}
	if len(y) != 1 && len(y) != nwav {
		return fmt.Errorf("%w: %s: %d coefficient vectors for %d channels", ErrSpec, label, len(y), nwav)
	}
	for c, v := range y {
		if len(v) > ylm.Size(lmax) {
			return fmt.Errorf("%w: %s: channel %d has %d coefficients, lmax %d allows %d",
				ErrSpec, label, c, len(v), lmax, ylm.Size(lmax))
		}
	}
	return nil
}

// coefficients expands Y to an N x nwav matrix, or nil when Y is empty.
func coefficients(y [][]float64, lmax, nwav int) *mat.Dense {
	if len(y) == 0 {
		return nil
	}
	out := mat.NewDense(ylm.Size(lmax), nwav, nil)
	for c := 0; c < nwav; c++ {
		v := y[0]
		if len(y) > 1 {
			v = y[c]
		}
		for n, coeff := range v {
			out.Set(n, c, coeff)
		}
	}
	return out
}

func (b *BodySpec) apply(body *system.Body, lmax, nwav int) error {
	if b.RotPer != nil {
		if err := body.SetRotPer(*b.RotPer); err != nil {
			return err
		}
	}
	if b.RefTime != nil {
		if err := body.SetRefTime(*b.RefTime); err != nil {
			return err
		}
	}
	if y := coefficients(b.Y, lmax, nwav); y != nil {
		if err := body.SetMapCoeffs(y); err != nil {
			return err
		}
	}
	return nil
}

func (s *SecondarySpec) apply(sec *system.Secondary, lmax, nwav int) error {
	setters := []struct {
		v   *float64
		set func(float64) error
	}{
		{s.Radius, sec.SetRadius},
		{s.Luminosity, sec.SetLuminosity},
		{s.Semi, sec.SetSemi},
		{s.OrbPer, sec.SetOrbPer},
		{s.Inc, sec.SetInc},
		{s.Ecc, sec.SetEcc},
		{s.VarPi, sec.SetVarPi},
		{s.Omega, sec.SetOmega},
		{s.Lambda0, sec.SetLambda0},
	}
	for _, st := range setters {
		if st.v == nil {
			continue
		}
		if err := st.set(*st.v); err != nil {
			return err
		}
	}
	return s.BodySpec.apply(&sec.Body, lmax, nwav)
}
