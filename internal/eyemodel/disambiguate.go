package eyemodel

import (
	"github.com/golang/geo/r3"

	"github.com/banshee-data/gazetrack/internal/geometry"
)

// disambiguationTolerance is the sphere-surface distance margin, in
// millimeters, below which the two candidates count as equidistant and the
// temporal tie-break applies.
const disambiguationTolerance = 0.5

// disambiguateCirclePair selects the candidate physically consistent with
// the current eyeball estimate: the one whose center, scaled onto its
// viewing ray's closest approach to the sphere, lies nearer the sphere
// surface with its normal pointing outward from the center. Equidistant
// candidates are broken by temporal continuity (larger dot product with the
// previously selected normal), defaulting to the first candidate when no
// estimate or prior normal exists.
func (m *TwoSphereModel) disambiguateCirclePair(pair [2]geometry.Circle) geometry.Circle {
	chosen := pair[0]
	if m.hasEstimate {
		chosen = pair[m.pickCandidate(pair)]
	}
	m.lastNormal = chosen.Normal
	m.hasLastNormal = true
	return chosen
}

func (m *TwoSphereModel) pickCandidate(pair [2]geometry.Circle) int {
	center := m.estimate.Center3D
	radius := m.cfg.EyeballRadius

	var surf [2]float64
	var outward [2]bool
	for i, c := range pair {
		// The candidate scale is fixed by the assumed pupil radius; judge it
		// at the point of its ray closest to the sphere center so the test
		// is insensitive to pupil-size error.
		q := rayClosestPoint(c.Center, center)
		d := q.Sub(center)
		surf[i] = abs(d.Norm() - radius)
		outward[i] = c.Normal.Dot(d) > 0
	}

	// An inward-pointing normal is anatomically impossible for the true
	// pupil; rule such a candidate out when the other qualifies.
	if outward[0] != outward[1] {
		if outward[0] {
			return 0
		}
		return 1
	}

	if abs(surf[0]-surf[1]) > disambiguationTolerance {
		if surf[0] < surf[1] {
			return 0
		}
		return 1
	}

	if m.hasLastNormal {
		if pair[0].Normal.Dot(m.lastNormal) >= pair[1].Normal.Dot(m.lastNormal) {
			return 0
		}
		return 1
	}
	return 0
}

// rayClosestPoint returns the point on the camera ray through p closest to
// the target.
func rayClosestPoint(p, target r3.Vector) r3.Vector {
	n := p.Norm()
	if n == 0 {
		return p
	}
	u := p.Mul(1 / n)
	t := u.Dot(target)
	if t <= 0 {
		return p
	}
	return u.Mul(t)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
