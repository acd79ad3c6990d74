package system

import "fmt"

// Primary is the central body. It sits at the origin, has unit radius and
// unit luminosity, and does not orbit.
type Primary struct {
	Body
}

// NewPrimary creates a primary whose map has degree lmax and nwav channels.
func NewPrimary(lmax, nwav int, opts ...Option) (*Primary, error) {
	cfg := newConfig(opts)
	m, err := cfg.newMap(lmax, nwav)
	if err != nil {
		return nil, fmt.Errorf("primary map: %w", err)
	}

	p := &Primary{}
	p.init(KindPrimary, m)
	p.r = 1
	p.lum = 1
	p.computeTheta0()
	return p, nil
}
