// Package eyemodel implements the two-sphere eyeball model: an online
// estimator fusing 2D pupil-ellipse observations into a temporally stable 3D
// eyeball pose, resolving the two-fold unprojection ambiguity and
// compensating for corneal refraction.
package eyemodel

import (
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/gazetrack/internal/camera"
	"github.com/banshee-data/gazetrack/internal/geometry"
	"github.com/banshee-data/gazetrack/internal/observation"
	"github.com/banshee-data/gazetrack/internal/refraction"
)

// ModelState is the lifecycle state of a TwoSphereModel.
type ModelState string

const (
	// StateUninitialized: no observations yet.
	StateUninitialized ModelState = "uninitialized"
	// StateInitializing: fewer observations than the tracking threshold;
	// estimates exist but are unreliable.
	StateInitializing ModelState = "initializing"
	// StateTracking: enough observations for trusted estimates.
	StateTracking ModelState = "tracking"
)

// TwoSphereModel owns one eye's observation storage and sphere-center
// estimate. One instance per eye per session; not safe for concurrent use
// (single-threaded-per-eye contract). The camera model is read-only and may
// be shared across instances.
type TwoSphereModel struct {
	camera    *camera.Model
	corrector *refraction.Corrector
	cfg       ModelConfig

	storage  *observation.BufferedStorage
	estimate SphereCenterEstimate

	hasEstimate   bool
	lastNormal    r3.Vector
	hasLastNormal bool
}

// New validates the configuration and builds a model. A nil camera, a
// zero-capacity storage, or out-of-range parameters are fatal
// misconfigurations.
func New(cam *camera.Model, cfg ModelConfig) (*TwoSphereModel, error) {
	if cam == nil {
		return nil, fmt.Errorf("nil camera model: %w", ErrMisconfiguration)
	}
	if cfg.PupilRadius <= 0 || cfg.EyeballRadius <= 0 {
		return nil, fmt.Errorf("radii must be positive: %w", ErrMisconfiguration)
	}
	if cfg.MinObservationsForTracking < 1 {
		return nil, fmt.Errorf("tracking threshold must be at least 1: %w", ErrMisconfiguration)
	}
	if cfg.MaxPriorStrength < 0 || cfg.MaxPriorStrength > 1 {
		return nil, fmt.Errorf("max prior strength must be in [0,1]: %w", ErrMisconfiguration)
	}
	if cfg.MinEyeDistance <= 0 || cfg.MaxEyeDistance <= cfg.MinEyeDistance {
		return nil, fmt.Errorf("eye distance range is empty: %w", ErrMisconfiguration)
	}
	if cfg.RefractionTableSize < 0 {
		return nil, fmt.Errorf("refraction table size must not be negative: %w", ErrMisconfiguration)
	}

	storage, err := observation.NewBufferedStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrMisconfiguration)
	}

	corrector := refraction.NewCorrector(cfg.Refraction)
	if cfg.RefractionTableSize > 0 {
		corrector = corrector.WithTable(cfg.RefractionTableSize)
	}

	return &TwoSphereModel{
		camera:    cam,
		corrector: corrector,
		cfg:       cfg,
		storage:   storage,
	}, nil
}

// Camera returns the shared read-only camera model.
func (m *TwoSphereModel) Camera() *camera.Model { return m.camera }

// Config returns the model parameters.
func (m *TwoSphereModel) Config() ModelConfig { return m.cfg }

// NObservations returns the number of retained observations.
func (m *TwoSphereModel) NObservations() int { return m.storage.Count() }

// State derives the lifecycle state from the observation count.
func (m *TwoSphereModel) State() ModelState {
	switch n := m.storage.Count(); {
	case n == 0:
		return StateUninitialized
	case n < m.cfg.MinObservationsForTracking:
		return StateInitializing
	default:
		return StateTracking
	}
}

// SphereCenter returns the current estimate.
func (m *TwoSphereModel) SphereCenter() SphereCenterEstimate { return m.estimate }

// CreateObservation runs the ingestion pipeline (validation, unprojection,
// refraction correction, aux statistics) for one detector result. The
// ellipse is in absolute image pixels, confidence in [0, 1], timestamp in
// seconds. Returns ErrInvalidObservation for degenerate input; no state is
// mutated either way.
func (m *TwoSphereModel) CreateObservation(e geometry.Ellipse, confidence, timestamp float64) (*observation.Observation, error) {
	return observation.New(m.camera, m.corrector, e, confidence, timestamp, m.cfg.PupilRadius)
}

// AddObservation stores an observation and refreshes the sphere-center
// estimate using the previous estimate as prior. Nil observations return
// ErrInvalidObservation without mutating state.
func (m *TwoSphereModel) AddObservation(obs *observation.Observation) error {
	if obs == nil {
		return ErrInvalidObservation
	}
	if !m.storage.Add(obs) {
		return fmt.Errorf("observation rejected by storage: %w", ErrInvalidObservation)
	}
	m.EstimateSphereCenter()
	return nil
}

// Observe is the per-frame convenience path: CreateObservation followed by
// AddObservation. On failure the model state is untouched and the
// observation is dropped.
func (m *TwoSphereModel) Observe(e geometry.Ellipse, confidence, timestamp float64) (*observation.Observation, error) {
	obs, err := m.CreateObservation(e, confidence, timestamp)
	if err != nil {
		return nil, err
	}
	if err := m.AddObservation(obs); err != nil {
		return nil, err
	}
	return obs, nil
}

// SetSphereCenter overrides the current estimate with an externally
// calibrated center; subsequent per-frame refreshes blend from it.
func (m *TwoSphereModel) SetSphereCenter(center r3.Vector) {
	m.estimate = SphereCenterEstimate{
		Center2D:   m.camera.ToAbsolute(m.camera.ProjectPoint(center)),
		Center3D:   center,
		Confidence: m.estimate.Confidence,
	}
	m.hasEstimate = true
}

// PredictPupilCircle returns the disambiguated, refraction-corrected pupil
// circle for an observation together with the combined confidence (the
// product of detector and estimator confidence, monotonic in both). With
// useUnprojection the candidate pair is recomputed from the stored ellipse
// instead of reusing the pair cached at ingestion.
//
// While tracking, the circle is rescaled along its viewing ray onto the
// estimated eyeball surface and its normal snapped radially outward; before
// that, the corrected candidate is returned as-is with a low combined
// confidence.
func (m *TwoSphereModel) PredictPupilCircle(obs *observation.Observation, useUnprojection bool) (geometry.Circle, float64, error) {
	if obs == nil {
		return geometry.Circle{}, 0, ErrInvalidObservation
	}

	pair := obs.CirclePair
	if useUnprojection {
		raw, err := m.camera.UnprojectEllipse(obs.Ellipse, m.cfg.PupilRadius)
		if err != nil {
			return geometry.Circle{}, 0, fmt.Errorf("re-unprojection failed: %w", ErrInvalidObservation)
		}
		for i, c := range raw {
			pair[i] = m.corrector.Correct(c)
		}
	}

	circle := m.disambiguateCirclePair(pair)
	if m.State() == StateTracking {
		circle = m.projectOntoSphere(circle)
	}

	conf := clamp(obs.Confidence*m.estimate.Confidence, 0, 1)
	return circle, conf, nil
}

// projectOntoSphere rescales a candidate circle along its viewing ray onto
// the estimated eyeball surface, keeping the near intersection (the
// camera-facing hemisphere) and snapping the normal radially outward. With
// no intersection the closest ray approach is used instead.
func (m *TwoSphereModel) projectOntoSphere(c geometry.Circle) geometry.Circle {
	dist := c.Center.Norm()
	if dist == 0 {
		return c
	}
	ray := geometry.Line{Origin: r3.Vector{}, Direction: c.Center.Mul(1 / dist)}
	sphere := geometry.Sphere{Center: m.estimate.Center3D, Radius: m.cfg.EyeballRadius}

	t, _, ok := geometry.IntersectLineSphere(ray, sphere)
	if !ok {
		t = ray.Direction.Dot(sphere.Center)
	}
	if t <= 0 {
		return c
	}

	center := ray.Direction.Mul(t)
	normal := center.Sub(sphere.Center)
	if n := normal.Norm(); n > 0 {
		normal = normal.Mul(1 / n)
	} else {
		normal = c.Normal
	}
	return geometry.Circle{
		Center: center,
		Normal: normal,
		Radius: c.Radius * t / dist,
	}
}

// GazeDirection derives the gaze vector from a predicted pupil circle: the
// unit direction from the estimated eyeball center through the pupil center.
// Falls back to the circle normal before an estimate exists.
func (m *TwoSphereModel) GazeDirection(c geometry.Circle) r3.Vector {
	if !m.hasEstimate {
		return c.Normal
	}
	d := c.Center.Sub(m.estimate.Center3D)
	if n := d.Norm(); n > 0 {
		return d.Mul(1 / n)
	}
	return c.Normal
}

// Cleanup releases all observations and resets the estimator to the
// uninitialized state. Idempotent.
func (m *TwoSphereModel) Cleanup() {
	m.storage.Clear()
	m.estimate = SphereCenterEstimate{}
	m.hasEstimate = false
	m.lastNormal = r3.Vector{}
	m.hasLastNormal = false
}
