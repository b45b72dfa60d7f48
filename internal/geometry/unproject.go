package geometry

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// UnprojectEllipse lifts an image ellipse (principal-point-relative pixels)
// into the two 3D circles of the given radius whose perspective projection
// is that ellipse. The ambiguity is fundamental: the cone through the camera
// origin and the ellipse admits exactly two circular cross-sections of a
// given radius, mirror images of each other about the plane spanned by the
// viewing ray and the cone axis.
//
// Both returned circles sit in front of the camera (positive z) with their
// normals oriented toward it. Returns ErrDegenerateConic if the ellipse does
// not define a real elliptic cone.
//
// The construction follows Safaee-Rad et al., "Three-Dimensional Location
// Estimation of Circular Features for Machine Vision" (1992), via an
// eigendecomposition of the cone matrix.
func UnprojectEllipse(e Ellipse, focalLength, radius float64) ([2]Circle, error) {
	var pair [2]Circle
	if !e.Canonical().Valid() || focalLength <= 0 || radius <= 0 {
		return pair, ErrDegenerateConic
	}

	cone := coneThroughEllipse(ConicFromEllipse(e.Canonical()), focalLength)
	sym := mat.NewSymDense(3, []float64{
		cone[0][0], cone[0][1], cone[0][2],
		cone[1][0], cone[1][1], cone[1][2],
		cone[2][0], cone[2][1], cone[2][2],
	})

	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return pair, ErrDegenerateConic
	}
	vals := eig.Values(nil) // ascending
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// A real elliptic cone has signature (2,1) up to overall sign. Flip so
	// that two eigenvalues are positive and one negative.
	negatives := 0
	for _, v := range vals {
		if v < 0 {
			negatives++
		}
	}
	sign := 1.0
	if negatives == 2 {
		sign = -1.0
	} else if negatives != 1 {
		return pair, ErrDegenerateConic
	}

	// Descending order: l1 >= l2 > 0 > l3.
	l1, l2, l3 := sign*vals[2], sign*vals[1], sign*vals[0]
	if sign < 0 {
		l1, l3 = sign*vals[0], sign*vals[2]
	}
	if !(l1 >= l2 && l2 > 0 && l3 < 0) {
		return pair, ErrDegenerateConic
	}

	col := func(j int) r3.Vector {
		return r3.Vector{X: vecs.At(0, j), Y: vecs.At(1, j), Z: vecs.At(2, j)}
	}
	// Eigenvectors matching l1 and l3 (gonum returns ascending order).
	var e1, e3 r3.Vector
	if sign > 0 {
		e1, e3 = col(2), col(0)
	} else {
		e1, e3 = col(0), col(2)
	}

	g := math.Sqrt((l1 - l2) / (l1 - l3))
	h := math.Sqrt((l2 - l3) / (l1 - l3))
	dist := radius * l2 / math.Sqrt(-l1*l3)

	for k, s := range []float64{1, -1} {
		// Circle center and plane normal in the cone eigenframe; the y
		// component is zero in both.
		cx := s * g * l3 / l2 * dist
		cz := h * l1 / l2 * dist
		center := e1.Mul(cx).Add(e3.Mul(cz))
		normal := e1.Mul(s * g).Add(e3.Mul(h))

		// The cone is double-sided; keep the sheet in front of the camera
		// and orient the normal toward it.
		if center.Z < 0 {
			center = center.Mul(-1)
		}
		if normal.Dot(center) > 0 {
			normal = normal.Mul(-1)
		}
		pair[k] = Circle{Center: center, Normal: normal.Normalize(), Radius: radius}
	}

	if !pair[0].Valid() || !pair[1].Valid() {
		return pair, ErrDegenerateConic
	}
	return pair, nil
}
