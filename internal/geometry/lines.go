package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// MinSolveDeterminant is the smallest normal-matrix determinant accepted by
// the line-intersection solves before they report degeneracy.
const MinSolveDeterminant = 1e-9

// Projector2D is the rank-one-deflated projector (I - d d^T) of a 2D line
// together with its action on the line origin. Summing these over a set of
// weighted lines yields the normal equations of the point minimizing the
// perpendicular distance to all of them. The statistics are linear, so
// contributions can be added and removed incrementally.
type Projector2D struct {
	P  [2][2]float64
	Po [2]float64
}

// NewProjector2D builds the projector statistics for a line, pre-scaled by
// weight.
func NewProjector2D(l Line2D, weight float64) Projector2D {
	d := l.Direction
	n := math.Hypot(d[0], d[1])
	if n == 0 || weight <= 0 {
		return Projector2D{}
	}
	dx, dy := d[0]/n, d[1]/n
	var pr Projector2D
	pr.P[0][0] = weight * (1 - dx*dx)
	pr.P[0][1] = weight * (-dx * dy)
	pr.P[1][0] = pr.P[0][1]
	pr.P[1][1] = weight * (1 - dy*dy)
	pr.Po[0] = pr.P[0][0]*l.Origin[0] + pr.P[0][1]*l.Origin[1]
	pr.Po[1] = pr.P[1][0]*l.Origin[0] + pr.P[1][1]*l.Origin[1]
	return pr
}

// Add accumulates another projector into the receiver.
func (p *Projector2D) Add(q Projector2D) {
	p.P[0][0] += q.P[0][0]
	p.P[0][1] += q.P[0][1]
	p.P[1][0] += q.P[1][0]
	p.P[1][1] += q.P[1][1]
	p.Po[0] += q.Po[0]
	p.Po[1] += q.Po[1]
}

// Sub removes a previously accumulated projector from the receiver.
func (p *Projector2D) Sub(q Projector2D) {
	p.P[0][0] -= q.P[0][0]
	p.P[0][1] -= q.P[0][1]
	p.P[1][0] -= q.P[1][0]
	p.P[1][1] -= q.P[1][1]
	p.Po[0] -= q.Po[0]
	p.Po[1] -= q.Po[1]
}

// Solve returns the point minimizing the weighted perpendicular distance to
// the accumulated lines, or ok=false if the normal matrix is near-singular
// (all lines parallel, or no lines at all).
func (p Projector2D) Solve() (pt [2]float64, ok bool) {
	det := p.P[0][0]*p.P[1][1] - p.P[0][1]*p.P[1][0]
	if math.Abs(det) < MinSolveDeterminant {
		return pt, false
	}
	pt[0] = (p.P[1][1]*p.Po[0] - p.P[0][1]*p.Po[1]) / det
	pt[1] = (p.P[0][0]*p.Po[1] - p.P[1][0]*p.Po[0]) / det
	return pt, true
}

// Projector3D is the 3D analogue of Projector2D: (I - d d^T) of a 3D line
// and its action on the line origin, pre-scaled by weight at construction.
type Projector3D struct {
	P  [3][3]float64
	Po r3.Vector
}

// NewProjector3D builds the projector statistics for a 3D line with the
// given weight.
func NewProjector3D(l Line, weight float64) Projector3D {
	d := l.Direction
	n := d.Norm()
	if n == 0 || weight <= 0 {
		return Projector3D{}
	}
	d = d.Mul(1 / n)
	dv := [3]float64{d.X, d.Y, d.Z}
	var pr Projector3D
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			pr.P[i][j] = -weight * dv[i] * dv[j]
			if i == j {
				pr.P[i][j] += weight
			}
		}
	}
	pr.Po = pr.Apply(l.Origin)
	return pr
}

// Apply multiplies the projector matrix by a vector.
func (p Projector3D) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: p.P[0][0]*v.X + p.P[0][1]*v.Y + p.P[0][2]*v.Z,
		Y: p.P[1][0]*v.X + p.P[1][1]*v.Y + p.P[1][2]*v.Z,
		Z: p.P[2][0]*v.X + p.P[2][1]*v.Y + p.P[2][2]*v.Z,
	}
}

// NearestRayParameter finds the parameter t minimizing the summed weighted
// squared distance of the ray point t*dir to the given projector lines.
// Reports ok=false when the system carries no usable constraint.
func NearestRayParameter(dir r3.Vector, projs []Projector3D) (t float64, ok bool) {
	var num, den float64
	for _, p := range projs {
		num += dir.Dot(p.Po)
		den += dir.Dot(p.Apply(dir))
	}
	if den < MinSolveDeterminant {
		return 0, false
	}
	return num / den, true
}
