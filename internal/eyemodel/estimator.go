package eyemodel

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/gazetrack/internal/geometry"
	"github.com/banshee-data/gazetrack/internal/refraction"
)

// SphereCenterEstimate is the current best estimate of the eyeball center:
// its projection in absolute image pixels, its camera-space position in
// millimeters, and a confidence in [0, 1].
type SphereCenterEstimate struct {
	Center2D   [2]float64
	Center3D   r3.Vector
	Confidence float64
}

// EstimateSphereCenter2D solves for the image-space eyeball center: the
// point minimizing the confidence-weighted perpendicular distance to the
// projected gaze lines of all stored observations, using the storage's
// cached statistics. Returns the center in absolute image pixels and a
// confidence.
//
// Degenerate inputs never fail hard: with fewer than two usable
// observations the previous (or image-center) anchor is returned flagged
// with ErrInsufficientData; a near-singular system falls back to the
// previous estimate or the unweighted centroid of projected pupil centers
// with ErrNumericDegeneracy.
func (m *TwoSphereModel) EstimateSphereCenter2D() ([2]float64, float64, error) {
	sums, weight := m.storage.Sums()
	count := m.storage.Count()

	if count < 2 || weight <= 0 {
		if m.hasEstimate {
			return m.estimate.Center2D, lowConfidence(m.estimate.Confidence), ErrInsufficientData
		}
		return m.camera.ToAbsolute([2]float64{0, 0}), 0, ErrInsufficientData
	}

	rel, ok := sums.Solve()
	if !ok {
		if m.hasEstimate {
			return m.estimate.Center2D, lowConfidence(m.estimate.Confidence), ErrNumericDegeneracy
		}
		return m.camera.ToAbsolute(m.pupilCentroid2D()), 0, ErrNumericDegeneracy
	}

	conf := math.Min(1, float64(count)/float64(m.cfg.MinObservationsForTracking))
	return m.camera.ToAbsolute(rel), conf, nil
}

// pupilCentroid2D is the unweighted mean of the projected pupil centers, the
// last-resort anchor when the gaze lines carry no intersection information.
func (m *TwoSphereModel) pupilCentroid2D() [2]float64 {
	var c [2]float64
	obs := m.storage.Observations()
	if len(obs) == 0 {
		return c
	}
	for _, o := range obs {
		c[0] += o.Gaze2D.Origin[0]
		c[1] += o.Gaze2D.Origin[1]
	}
	c[0] /= float64(len(obs))
	c[1] /= float64(len(obs))
	return c
}

// EstimateSphereCenter3D solves for the camera-space eyeball center along
// the viewing ray through the 2D anchor (absolute pixels), blended with a
// prior via priorStrength in [0, 1]: 0 ignores the prior entirely, 1 returns
// it unchanged regardless of observations.
//
// Per observation the physically consistent candidate is selected by the
// side of the 2D anchor its projected gaze direction points away from; the
// solve then minimizes the weighted distance of the ray point to the
// selected candidates' 3D gaze lines. The result distance is clamped to the
// configured anatomical range.
func (m *TwoSphereModel) EstimateSphereCenter3D(center2D [2]float64, prior r3.Vector, priorStrength float64) (r3.Vector, error) {
	strength := clamp(priorStrength, 0, 1)
	if strength >= 1 {
		return prior, nil
	}

	rel := m.camera.ToRelative(center2D)
	ray := m.camera.UnprojectPoint(rel)

	obs := m.storage.Observations()
	if len(obs) == 0 {
		return m.blendOrFallback(prior, strength, ray, ErrInsufficientData)
	}

	projs := make([]geometry.Projector3D, 0, len(obs))
	for _, o := range obs {
		away := [2]float64{o.Gaze2D.Origin[0] - rel[0], o.Gaze2D.Origin[1] - rel[1]}
		if o.Gaze2DDir[0][0]*away[0]+o.Gaze2DDir[0][1]*away[1] >= 0 {
			projs = append(projs, o.Aux3D[0])
		} else {
			projs = append(projs, o.Aux3D[1])
		}
	}

	t, ok := geometry.NearestRayParameter(ray, projs)
	if !ok {
		return m.blendOrFallback(prior, strength, ray, ErrNumericDegeneracy)
	}
	t = clamp(t, m.cfg.MinEyeDistance, m.cfg.MaxEyeDistance)

	fresh := ray.Mul(t)
	return prior.Mul(strength).Add(fresh.Mul(1 - strength)), nil
}

// blendOrFallback keeps the prior when one exists, otherwise anchors at the
// nominal eye distance along the ray. The error flags the condition; the
// returned center is always finite and in range.
func (m *TwoSphereModel) blendOrFallback(prior r3.Vector, strength float64, ray r3.Vector, cause error) (r3.Vector, error) {
	if m.hasEstimate || prior.Norm() > 0 {
		return prior, cause
	}
	dist := m.cfg.Refraction.NominalEyeDistance
	if dist <= 0 {
		dist = refraction.DefaultNominalEyeDistance
	}
	return ray.Mul(dist), cause
}

// EstimateSphereCenter runs the per-frame refresh: the 2D anchor solve, a
// count-scheduled prior blend for the 3D solve, and the estimate update.
// Prior strength decays as observations accumulate, trading early stability
// for late responsiveness.
func (m *TwoSphereModel) EstimateSphereCenter() SphereCenterEstimate {
	center2D, conf, err2D := m.EstimateSphereCenter2D()

	var strength float64
	if m.hasEstimate {
		n := float64(m.storage.Count())
		k := float64(m.cfg.MinObservationsForTracking)
		strength = m.cfg.MaxPriorStrength * k / (k + n)
	}

	center3D, err3D := m.EstimateSphereCenter3D(center2D, m.estimate.Center3D, strength)
	if err2D != nil || err3D != nil {
		conf = lowConfidence(conf)
	}

	m.estimate = SphereCenterEstimate{
		Center2D:   center2D,
		Center3D:   center3D,
		Confidence: clamp(conf, 0, 1),
	}
	m.hasEstimate = true
	return m.estimate
}

// lowConfidence degrades a confidence value for flagged estimates while
// keeping it usable for callers that decide to trust it anyway.
func lowConfidence(c float64) float64 {
	return clamp(c*0.5, 0, 1)
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
