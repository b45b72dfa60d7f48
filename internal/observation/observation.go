// Package observation defines the immutable per-frame observation record and
// the bounded storage feeding the sphere-center estimator.
package observation

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/gazetrack/internal/camera"
	"github.com/banshee-data/gazetrack/internal/geometry"
	"github.com/banshee-data/gazetrack/internal/refraction"
)

// ErrInvalidObservation marks a malformed or degenerate detector result.
// Such observations are dropped before they can touch any model state.
var ErrInvalidObservation = errors.New("invalid observation")

// Observation is an immutable per-frame record: the source ellipse, the two
// refraction-corrected circle candidates of the inherent unprojection
// ambiguity, and the precomputed statistics consumed by the sphere-center
// least-squares solves. Created once at ingestion, owned by the storage
// after Add, never mutated.
type Observation struct {
	// Ellipse is the source ellipse in principal-point-relative pixels,
	// canonical axis order.
	Ellipse geometry.Ellipse

	// Confidence is the detector confidence, clamped to [0, 1].
	Confidence float64

	// Timestamp in seconds (monotonic frame clock).
	Timestamp float64

	// CirclePair holds the two refraction-corrected candidates.
	CirclePair [2]geometry.Circle

	// RawPair holds the uncorrected unprojections of the same ellipse.
	RawPair [2]geometry.Circle

	// Gaze2D is the projected gaze line shared by both candidates: the image
	// of the 3D line through the pupil center along its normal. The two-fold
	// ambiguity vanishes under projection, which is what makes the 2D
	// sphere-center solve possible.
	Gaze2D geometry.Line2D

	// Gaze2DDir holds the per-candidate signed image direction of the
	// projected normal. Both are collinear with Gaze2D.Direction; the signs
	// distinguish the candidates for the 3D solve.
	Gaze2DDir [2][2]float64

	// Gaze3DPair holds, per candidate, the 3D line through the corrected
	// circle center along its normal. The eyeball center lies on the correct
	// candidate's line.
	Gaze3DPair [2]geometry.Line

	// Aux2D is the weighted projector of Gaze2D, ready for incremental
	// summation by the storage.
	Aux2D geometry.Projector2D

	// Aux3D holds the weighted projector of each candidate's 3D gaze line.
	Aux3D [2]geometry.Projector3D
}

// New runs the ingestion pipeline for a single detector result: validation,
// unprojection into the candidate pair, refraction correction, and aux
// statistics. The ellipse is in absolute image pixels. pupilRadius fixes the
// radius normalization of the unprojected candidates (the depth scale of the
// whole model). Returns ErrInvalidObservation without side effects on any
// failure.
func New(
	cam *camera.Model,
	corrector *refraction.Corrector,
	ellipse geometry.Ellipse,
	confidence float64,
	timestamp float64,
	pupilRadius float64,
) (*Observation, error) {
	if cam == nil || corrector == nil {
		return nil, fmt.Errorf("nil camera or corrector: %w", ErrInvalidObservation)
	}
	if math.IsNaN(confidence) || math.IsNaN(timestamp) || math.IsInf(timestamp, 0) {
		return nil, fmt.Errorf("non-finite confidence or timestamp: %w", ErrInvalidObservation)
	}
	if !ellipse.Canonical().Valid() {
		return nil, fmt.Errorf("degenerate ellipse: %w", ErrInvalidObservation)
	}
	if !cam.ContainsPoint(ellipse.Center[0], ellipse.Center[1]) {
		return nil, fmt.Errorf("ellipse center outside image region: %w", ErrInvalidObservation)
	}

	rel := cam.NormalizeEllipse(ellipse)
	raw, err := cam.UnprojectEllipse(rel, pupilRadius)
	if err != nil {
		return nil, fmt.Errorf("unprojection failed: %w", ErrInvalidObservation)
	}

	obs := &Observation{
		Ellipse:    rel,
		Confidence: clamp01(confidence),
		Timestamp:  timestamp,
		RawPair:    raw,
	}
	for i, c := range raw {
		obs.CirclePair[i] = corrector.Correct(c)
	}

	obs.buildAux(cam)
	return obs, nil
}

// buildAux precomputes the projected gaze line and the least-squares
// projector statistics.
func (o *Observation) buildAux(cam *camera.Model) {
	w := o.Confidence

	for i, c := range o.CirclePair {
		o.Gaze3DPair[i] = geometry.Line{Origin: c.Center, Direction: c.Normal}
		o.Aux3D[i] = geometry.NewProjector3D(o.Gaze3DPair[i], w)
		o.Gaze2DDir[i] = cam.ProjectDirection(c.Center, c.Normal)
	}

	origin := cam.ProjectPoint(o.CirclePair[0].Center)
	dir := o.Gaze2DDir[0]
	n := math.Hypot(dir[0], dir[1])
	if n > 1e-12 {
		o.Gaze2D = geometry.Line2D{
			Origin:    origin,
			Direction: [2]float64{dir[0] / n, dir[1] / n},
		}
		o.Aux2D = geometry.NewProjector2D(o.Gaze2D, w)
	} else {
		// Pupil faces the camera head-on: the projected gaze line collapses
		// to a point and contributes no 2D constraint.
		o.Gaze2D = geometry.Line2D{Origin: origin}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
