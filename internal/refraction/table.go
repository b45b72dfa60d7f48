package refraction

import (
	"math"

	"gonum.org/v1/gonum/interp"
)

// TableTolerance is the maximum deviation, in radians, allowed between the
// interpolated tilt map and the closed-form model. The table is an
// optimization, not an alternative model; exceeding this bound is a bug.
const TableTolerance = 1e-3

// maxTableAngle bounds the tabulated apparent tilt. Beyond ~80 degrees the
// pupil ellipse is edge-on and the detector cannot produce it anyway.
const maxTableAngle = 80 * math.Pi / 180

// angleTable is a precomputed interpolation of the apparent-to-true tilt
// map, indexed by visual angle.
type angleTable struct {
	spline interp.AkimaSpline
	max    float64
}

// WithTable precomputes an n-point interpolation table for the tilt map and
// returns the corrector for chaining. Lookups outside the tabulated range
// fall back to the closed form. Panics are avoided: n < 8 is raised to 8.
//
// The installed table honors TableTolerance over its whole range: nodes are
// spaced uniformly in sin(angle)*m so they cluster where the map steepens,
// and the fitted spline is checked against the closed form at construction,
// shrinking the table range to the verified prefix. The closed form covers
// whatever the table does not.
func (c *Corrector) WithTable(n int) *Corrector {
	if n < 8 {
		n = 8
	}
	// Keep the table inside the invertible range of the Snell map.
	max := maxTableAngle
	if limit := math.Asin(1/c.magnification) - 1e-3; limit < max {
		max = limit
	}

	sMax := math.Sin(max) * c.magnification
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		s := sMax * float64(i) / float64(n-1)
		x := math.Asin(s / c.magnification)
		xs[i] = x
		ys[i] = c.trueTilt(x)
	}
	xs[n-1] = max

	t := &angleTable{}
	if err := t.spline.Fit(xs, ys); err != nil {
		// Fit only fails on malformed abscissae, which the loop above
		// cannot produce; keep the closed form if it somehow does.
		return c
	}

	// The map's slope diverges at the Snell saturation limit, where no
	// practical node density keeps a spline within tolerance; truncate the
	// table at the last node interval that verifies.
	valid := 0
	for i := 0; i+1 < n; i++ {
		if !c.intervalWithinTolerance(t, xs[i], xs[i+1]) {
			break
		}
		valid = i + 1
	}
	if valid == 0 {
		return c
	}
	t.max = xs[valid]
	c.table = t
	return c
}

// intervalWithinTolerance checks the spline against the closed form at
// interior points of one node interval. The spline interpolates the nodes
// themselves exactly; the halved threshold leaves margin for the continuum
// between checked points.
func (c *Corrector) intervalWithinTolerance(t *angleTable, lo, hi float64) bool {
	const steps = 16
	for k := 1; k < steps; k++ {
		x := lo + (hi-lo)*float64(k)/float64(steps)
		if math.Abs(t.spline.Predict(x)-c.trueTilt(x)) > TableTolerance/2 {
			return false
		}
	}
	return true
}

// HasTable reports whether lookups use the precomputed table.
func (c *Corrector) HasTable() bool { return c.table != nil }

// lookupTrueTilt evaluates the tilt map through the table when present.
func (c *Corrector) lookupTrueTilt(apparent float64) float64 {
	if c.table == nil || apparent < 0 || apparent > c.table.max {
		return c.trueTilt(apparent)
	}
	return c.table.spline.Predict(apparent)
}
