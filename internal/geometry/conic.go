package geometry

import (
	"errors"
	"math"
)

// ErrDegenerateConic is returned when a conic or cone cannot be interpreted
// as a real ellipse or elliptic cone.
var ErrDegenerateConic = errors.New("degenerate conic")

// Conic holds the implicit coefficients of a 2D conic section
// A x^2 + B x y + C y^2 + D x + E y + F = 0.
type Conic struct {
	A, B, C, D, E, F float64
}

// ConicFromEllipse expands an ellipse into its implicit conic coefficients.
func ConicFromEllipse(e Ellipse) Conic {
	sin, cos := math.Sincos(e.Angle)
	a2 := e.MajorRadius * e.MajorRadius
	b2 := e.MinorRadius * e.MinorRadius
	x0, y0 := e.Center[0], e.Center[1]

	A := b2*cos*cos + a2*sin*sin
	B := 2 * (b2 - a2) * sin * cos
	C := b2*sin*sin + a2*cos*cos
	D := -2*A*x0 - B*y0
	E := -B*x0 - 2*C*y0
	F := A*x0*x0 + B*x0*y0 + C*y0*y0 - a2*b2
	return Conic{A: A, B: B, C: C, D: D, E: E, F: F}
}

// EllipseFromConic recovers the parametric ellipse from implicit conic
// coefficients. Returns ErrDegenerateConic if the conic is not a real
// ellipse.
func EllipseFromConic(c Conic) (Ellipse, error) {
	det := 4*c.A*c.C - c.B*c.B
	if det <= 0 || math.IsNaN(det) {
		return Ellipse{}, ErrDegenerateConic
	}

	x0 := (c.B*c.E - 2*c.C*c.D) / det
	y0 := (c.B*c.D - 2*c.A*c.E) / det

	// Conic value at the center; the gradient vanishes there so the linear
	// terms contribute half their face value.
	f0 := c.F + (c.D*x0+c.E*y0)/2
	if f0 == 0 {
		return Ellipse{}, ErrDegenerateConic
	}

	// Eigenvalues of [[A, B/2], [B/2, C]].
	mean := (c.A + c.C) / 2
	diff := (c.A - c.C) / 2
	root := math.Hypot(diff, c.B/2)
	muMin := mean - root
	muMax := mean + root

	major := -f0 / muMin
	minor := -f0 / muMax
	if major <= 0 || minor <= 0 {
		return Ellipse{}, ErrDegenerateConic
	}

	var angle float64
	switch {
	case c.B != 0:
		// Eigenvector of muMin, the axis with the larger extent.
		angle = math.Atan2(muMin-c.A, c.B/2)
	case c.A > c.C:
		angle = math.Pi / 2
	default:
		angle = 0
	}

	e := Ellipse{
		Center:      [2]float64{x0, y0},
		MajorRadius: math.Sqrt(major),
		MinorRadius: math.Sqrt(minor),
		Angle:       angle,
	}
	return e.Canonical(), nil
}

// coneThroughEllipse builds the symmetric matrix of the quadric cone with
// apex at the camera origin passing through the given conic on the plane
// z = focalLength. A point P lies on the cone iff P^T M P = 0.
func coneThroughEllipse(c Conic, focalLength float64) [3][3]float64 {
	f := focalLength
	return [3][3]float64{
		{c.A, c.B / 2, c.D / (2 * f)},
		{c.B / 2, c.C, c.E / (2 * f)},
		{c.D / (2 * f), c.E / (2 * f), c.F / (f * f)},
	}
}
