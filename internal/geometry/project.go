package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// ProjectCircle computes the exact perspective projection of a 3D circle
// onto the image plane z = focalLength, returning the resulting ellipse in
// principal-point-relative pixels. Inverse of UnprojectEllipse up to the
// two-fold ambiguity.
//
// The cone of rays through the camera origin and the circle is the quadric
//
//	Q(P) = a^2 |P|^2 - 2a (n.P)(c.P) + (|c|^2 - r^2)(n.P)^2,  a = n.c,
//
// whose intersection with the image plane is the projected conic.
func ProjectCircle(c Circle, focalLength float64) (Ellipse, error) {
	if !c.Valid() || c.Center.Z <= 0 || focalLength <= 0 {
		return Ellipse{}, ErrDegenerateConic
	}
	alpha := c.Normal.Dot(c.Center)
	if math.Abs(alpha) < 1e-12 {
		// Circle plane passes through the camera origin; the projection
		// collapses to a line segment.
		return Ellipse{}, ErrDegenerateConic
	}

	k := c.Center.Dot(c.Center) - c.Radius*c.Radius
	m := symQuadric(alpha, c.Normal, c.Center, k)

	f := focalLength
	conic := Conic{
		A: m[0][0],
		B: 2 * m[0][1],
		C: m[1][1],
		D: 2 * f * m[0][2],
		E: 2 * f * m[1][2],
		F: f * f * m[2][2],
	}
	return EllipseFromConic(conic)
}

// symQuadric assembles a^2 I - a (n c^T + c n^T) + k n n^T.
func symQuadric(alpha float64, n, c r3.Vector, k float64) [3][3]float64 {
	nv := [3]float64{n.X, n.Y, n.Z}
	cv := [3]float64{c.X, c.Y, c.Z}
	var m [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = -alpha*(nv[i]*cv[j]+cv[i]*nv[j]) + k*nv[i]*nv[j]
			if i == j {
				m[i][j] += alpha * alpha
			}
		}
	}
	return m
}

// ProjectPoint maps a camera-space point onto the image plane z =
// focalLength, in principal-point-relative pixels.
func ProjectPoint(p r3.Vector, focalLength float64) [2]float64 {
	return [2]float64{focalLength * p.X / p.Z, focalLength * p.Y / p.Z}
}

// ProjectDirection returns the image-plane direction of a 3D direction
// attached at point p: the derivative of ProjectPoint along d. The result is
// not normalized; it vanishes when d is parallel to the viewing ray.
func ProjectDirection(p, d r3.Vector, focalLength float64) [2]float64 {
	z2 := p.Z * p.Z
	return [2]float64{
		focalLength * (d.X*p.Z - p.X*d.Z) / z2,
		focalLength * (d.Y*p.Z - p.Y*d.Z) / z2,
	}
}

// UnprojectPoint lifts a principal-point-relative pixel position into the
// unit direction of its viewing ray.
func UnprojectPoint(px [2]float64, focalLength float64) r3.Vector {
	return r3.Vector{X: px[0], Y: px[1], Z: focalLength}.Normalize()
}
