// Package refraction corrects pupil circles for the bending of light through
// the cornea. The camera never sees the true pupil: the cornea acts as a
// convex lens that magnifies it, pulls its apparent position toward the
// camera, and flattens its apparent tilt. The corrector maps an apparent
// (as-imaged) circle to the true circle, and back.
//
// The model is a deterministic angle-parameterized transform derived from a
// paraxial treatment of a spherical cornea:
//
//   - radius demagnification by m = n*R / (n*R - d*(n-1)), the entrance-pupil
//     magnification of a cornea with radius R, index ratio n and anterior
//     chamber depth d;
//   - tilt steepening by a Snell-type map sin(apparent) = sin(true)/m;
//   - a depth push along the viewing ray by a relative factor keyed to the
//     paraxial apparent-depth shift d*(1 - 1/n) at the nominal eye distance.
//
// Both directions are closed-form and exact inverses of each other.
package refraction

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/gazetrack/internal/geometry"
)

// Physiological defaults, in millimeters where dimensional.
const (
	// DefaultCornealRadius is the anterior corneal radius of curvature.
	DefaultCornealRadius = 7.8
	// DefaultRefractiveIndex is the effective corneal index ratio
	// (keratometric index).
	DefaultRefractiveIndex = 1.3375
	// DefaultAnteriorChamberDepth is the pupil-to-cornea distance.
	DefaultAnteriorChamberDepth = 3.6
	// DefaultNominalEyeDistance is the assumed camera-to-eye distance used
	// to express the depth shift as a relative factor.
	DefaultNominalEyeDistance = 50.0
)

// Params holds the physical constants of the corneal model.
type Params struct {
	CornealRadius        float64
	RefractiveIndex      float64
	AnteriorChamberDepth float64
	NominalEyeDistance   float64
}

// DefaultParams returns the physiological defaults.
func DefaultParams() Params {
	return Params{
		CornealRadius:        DefaultCornealRadius,
		RefractiveIndex:      DefaultRefractiveIndex,
		AnteriorChamberDepth: DefaultAnteriorChamberDepth,
		NominalEyeDistance:   DefaultNominalEyeDistance,
	}
}

// IdentityParams returns parameters that make the correction a no-op
// (index ratio 1: no refraction at all). Useful for tests and for consumers
// that want raw unprojected circles.
func IdentityParams() Params {
	p := DefaultParams()
	p.RefractiveIndex = 1
	return p
}

// Corrector applies the corneal correction to candidate circles. Immutable
// after construction; safe for concurrent readers.
type Corrector struct {
	params Params

	// Derived constants.
	magnification float64 // m, > 1 for physiological parameters
	depthShift    float64 // relative push along the viewing ray at cos=1

	table *angleTable // nil unless WithTable was called
}

// NewCorrector derives the transform constants from the physical parameters.
func NewCorrector(p Params) *Corrector {
	if p.CornealRadius <= 0 {
		p.CornealRadius = DefaultCornealRadius
	}
	if p.RefractiveIndex <= 0 {
		p.RefractiveIndex = DefaultRefractiveIndex
	}
	if p.AnteriorChamberDepth < 0 {
		p.AnteriorChamberDepth = DefaultAnteriorChamberDepth
	}
	if p.NominalEyeDistance <= 0 {
		p.NominalEyeDistance = DefaultNominalEyeDistance
	}

	n, r, d := p.RefractiveIndex, p.CornealRadius, p.AnteriorChamberDepth
	m := n * r / (n*r - d*(n-1))
	shift := d * (1 - 1/n) / p.NominalEyeDistance

	return &Corrector{params: p, magnification: m, depthShift: shift}
}

// Params returns the physical parameters the corrector was built from.
func (c *Corrector) Params() Params { return c.params }

// Magnification returns the entrance-pupil magnification m.
func (c *Corrector) Magnification() float64 { return c.magnification }

// trueTilt maps the apparent tilt angle (between the circle normal and the
// camera direction) to the true tilt. Monotonic on [0, pi/2); saturates at
// the maximum tilt the model can represent.
func (c *Corrector) trueTilt(apparent float64) float64 {
	s := math.Sin(apparent) * c.magnification
	if s >= 1 {
		return math.Pi / 2
	}
	return math.Asin(s)
}

// apparentTilt is the exact inverse of trueTilt.
func (c *Corrector) apparentTilt(truth float64) float64 {
	return math.Asin(math.Sin(truth) / c.magnification)
}

// Correct maps an apparent (refracted) circle to the true circle. Topology
// is preserved: applied to each member of a candidate pair it yields the
// corrected pair.
func (c *Corrector) Correct(circ geometry.Circle) geometry.Circle {
	return c.transform(circ, false)
}

// Uncorrect maps a true circle back to its apparent image. Exact inverse of
// Correct.
func (c *Corrector) Uncorrect(circ geometry.Circle) geometry.Circle {
	return c.transform(circ, true)
}

func (c *Corrector) transform(circ geometry.Circle, inverse bool) geometry.Circle {
	if c.magnification == 1 && c.depthShift == 0 {
		return circ
	}

	dist := circ.Center.Norm()
	if dist == 0 {
		return circ
	}
	toCamera := circ.Center.Mul(-1 / dist) // unit vector circle -> camera

	cosTilt := clamp(circ.Normal.Dot(toCamera), -1, 1)
	tilt := math.Acos(cosTilt)

	var newTilt float64
	if inverse {
		newTilt = c.apparentTilt(tilt)
	} else {
		newTilt = c.lookupTrueTilt(tilt)
	}

	// In-plane unit vector completing the (toCamera, normal) frame.
	lateral := circ.Normal.Sub(toCamera.Mul(cosTilt))
	var normal r3.Vector
	if lateral.Norm() < 1e-12 {
		// Head-on pupil: tilt is zero in both frames.
		normal = circ.Normal
		newTilt = tilt
	} else {
		lateral = lateral.Normalize()
		normal = toCamera.Mul(math.Cos(newTilt)).Add(lateral.Mul(math.Sin(newTilt)))
	}

	// Depth factor is keyed to the apparent tilt in both directions so the
	// round trip cancels exactly.
	apparent := tilt
	if inverse {
		apparent = newTilt
	}
	depth := 1 + c.depthShift*math.Cos(apparent)

	scale := depth
	radial := 1 / c.magnification
	if inverse {
		scale = 1 / depth
		radial = c.magnification
	}

	return geometry.Circle{
		Center: circ.Center.Mul(scale),
		Normal: normal,
		Radius: circ.Radius * radial,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
