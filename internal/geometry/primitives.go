// Package geometry holds the value types and conic/cone math shared by the
// eye-model pipeline: ellipses in image space, 3D circles in camera space,
// the two-fold ellipse unprojection, and the projection of circles back into
// the image plane.
//
// Conventions: the camera sits at the origin of a right-handed frame with x
// right, y down and z along the optical axis into the scene. Image
// coordinates used by this package are relative to the principal point;
// conversion from absolute pixel coordinates is the camera package's job.
package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// Ellipse is a pupil-boundary ellipse in image coordinates (pixels).
// Angle is the rotation of the major axis in radians, counter-clockwise
// from the positive x axis.
type Ellipse struct {
	Center      [2]float64
	MajorRadius float64
	MinorRadius float64
	Angle       float64
}

// Valid reports whether the ellipse has finite parameters and strictly
// positive axes. Degenerate ellipses must never enter the pipeline.
func (e Ellipse) Valid() bool {
	for _, v := range []float64{e.Center[0], e.Center[1], e.MajorRadius, e.MinorRadius, e.Angle} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return e.MajorRadius > 0 && e.MinorRadius > 0 && e.MinorRadius <= e.MajorRadius
}

// Area returns the ellipse area in square pixels.
func (e Ellipse) Area() float64 {
	return math.Pi * e.MajorRadius * e.MinorRadius
}

// Canonical returns the ellipse with MajorRadius >= MinorRadius, rotating
// the angle by 90 degrees if the axes had to be swapped, and the angle
// wrapped into (-pi/2, pi/2].
func (e Ellipse) Canonical() Ellipse {
	out := e
	if out.MinorRadius > out.MajorRadius {
		out.MajorRadius, out.MinorRadius = out.MinorRadius, out.MajorRadius
		out.Angle += math.Pi / 2
	}
	for out.Angle > math.Pi/2 {
		out.Angle -= math.Pi
	}
	for out.Angle <= -math.Pi/2 {
		out.Angle += math.Pi
	}
	return out
}

// Circle is a 3D circle in camera space: center position, unit normal and
// radius. Plain value type, no identity beyond its fields.
type Circle struct {
	Center r3.Vector
	Normal r3.Vector
	Radius float64
}

// Valid reports whether the circle has finite fields, a positive radius and
// a roughly unit-length normal.
func (c Circle) Valid() bool {
	for _, v := range []float64{
		c.Center.X, c.Center.Y, c.Center.Z,
		c.Normal.X, c.Normal.Y, c.Normal.Z,
		c.Radius,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return c.Radius > 0 && math.Abs(c.Normal.Norm()-1) < 1e-6
}

// Sphere is a 3D sphere in camera space.
type Sphere struct {
	Center r3.Vector
	Radius float64
}

// Line is a 3D line through Origin along the unit vector Direction.
type Line struct {
	Origin    r3.Vector
	Direction r3.Vector
}

// Line2D is a 2D line through Origin along the unit vector Direction, in
// principal-point-relative pixel coordinates.
type Line2D struct {
	Origin    [2]float64
	Direction [2]float64
}

// IntersectLineSphere returns the ray parameters where the line enters and
// leaves the sphere, and false if the line misses it. For a line with unit
// direction the parameters are signed distances from the origin.
func IntersectLineSphere(l Line, s Sphere) (near, far float64, ok bool) {
	oc := l.Origin.Sub(s.Center)
	b := l.Direction.Dot(oc)
	c := oc.Dot(oc) - s.Radius*s.Radius
	disc := b*b - c
	if disc < 0 {
		return 0, 0, false
	}
	root := math.Sqrt(disc)
	return -b - root, -b + root, true
}
