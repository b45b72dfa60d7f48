package eyemodel

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/gazetrack/internal/camera"
	"github.com/banshee-data/gazetrack/internal/geometry"
	"github.com/banshee-data/gazetrack/internal/refraction"
)

func testCamera(t *testing.T) *camera.Model {
	t.Helper()
	cam, err := camera.New(620, 640, 480)
	if err != nil {
		t.Fatalf("camera setup: %v", err)
	}
	return cam
}

func testModel(t *testing.T, cfg ModelConfig) *TwoSphereModel {
	t.Helper()
	m, err := New(testCamera(t), cfg)
	if err != nil {
		t.Fatalf("model setup: %v", err)
	}
	return m
}

// sceneGenerator produces detector results from a known ground-truth
// eyeball, inverted through the same refraction model the pipeline corrects
// with, so the corrected candidates reproduce the true pupil circles.
type sceneGenerator struct {
	cam       *camera.Model
	corrector *refraction.Corrector
	center    r3.Vector
	radius    float64
	pupil     float64
	noise     float64
	rng       *rand.Rand
}

func newSceneGenerator(t *testing.T, cfg ModelConfig, center r3.Vector) *sceneGenerator {
	t.Helper()
	return &sceneGenerator{
		cam:       testCamera(t),
		corrector: refraction.NewCorrector(cfg.Refraction),
		center:    center,
		radius:    cfg.EyeballRadius,
		pupil:     cfg.PupilRadius,
		rng:       rand.New(rand.NewSource(42)),
	}
}

// ellipseAt renders the pupil at gaze angles (theta from the camera axis,
// phi around it) into an absolute-pixel ellipse.
func (g *sceneGenerator) ellipseAt(t *testing.T, theta, phi float64) geometry.Ellipse {
	t.Helper()
	normal := r3.Vector{
		X: math.Sin(theta) * math.Cos(phi),
		Y: math.Sin(theta) * math.Sin(phi),
		Z: -math.Cos(theta),
	}
	pos := g.center.Add(normal.Mul(g.radius))

	// Choose the true pupil radius so the apparent circle's radius equals
	// the model's assumed pupil radius; the refraction magnification is
	// linear in radius, so one probe fixes the scale.
	probe := g.corrector.Uncorrect(geometry.Circle{Center: pos, Normal: normal, Radius: 1})
	truth := geometry.Circle{Center: pos, Normal: normal, Radius: g.pupil / probe.Radius}
	apparent := g.corrector.Uncorrect(truth)

	e, err := g.cam.ProjectCircle(apparent)
	if err != nil {
		t.Fatalf("scene projection failed (theta=%v phi=%v): %v", theta, phi, err)
	}
	if g.noise > 0 {
		e.Center[0] += g.rng.NormFloat64() * g.noise
		e.Center[1] += g.rng.NormFloat64() * g.noise
	}
	return g.cam.DenormalizeEllipse(e)
}

func TestNewMisconfiguration(t *testing.T) {
	cam := testCamera(t)

	if _, err := New(nil, DefaultModelConfig()); !errors.Is(err, ErrMisconfiguration) {
		t.Errorf("expected ErrMisconfiguration for nil camera, got %v", err)
	}

	cfg := DefaultModelConfig()
	cfg.Storage.Capacity = 0
	if _, err := New(cam, cfg); !errors.Is(err, ErrMisconfiguration) {
		t.Errorf("expected ErrMisconfiguration for zero-capacity storage, got %v", err)
	}

	cfg = DefaultModelConfig()
	cfg.PupilRadius = 0
	if _, err := New(cam, cfg); !errors.Is(err, ErrMisconfiguration) {
		t.Errorf("expected ErrMisconfiguration for zero pupil radius, got %v", err)
	}

	cfg = DefaultModelConfig()
	cfg.MaxPriorStrength = 1.5
	if _, err := New(cam, cfg); !errors.Is(err, ErrMisconfiguration) {
		t.Errorf("expected ErrMisconfiguration for out-of-range prior strength, got %v", err)
	}

	cfg = DefaultModelConfig()
	cfg.RefractionTableSize = -1
	if _, err := New(cam, cfg); !errors.Is(err, ErrMisconfiguration) {
		t.Errorf("expected ErrMisconfiguration for negative table size, got %v", err)
	}
}

func TestRefractionTableSizeControlsCorrector(t *testing.T) {
	cfg := DefaultModelConfig()
	m := testModel(t, cfg)
	if !m.corrector.HasTable() {
		t.Error("expected default config to install a tilt table")
	}

	cfg.RefractionTableSize = 0
	m = testModel(t, cfg)
	if m.corrector.HasTable() {
		t.Error("expected table size 0 to use the closed form only")
	}

	// Tabled and closed-form correctors must agree on the pipeline output.
	gen := newSceneGenerator(t, cfg, r3.Vector{Z: 50})
	e := gen.ellipseAt(t, 0.3, 0.7)

	tabled := testModel(t, DefaultModelConfig())
	a, err := m.CreateObservation(e, 1, 0)
	if err != nil {
		t.Fatalf("create observation: %v", err)
	}
	b, err := tabled.CreateObservation(e, 1, 0)
	if err != nil {
		t.Fatalf("create observation: %v", err)
	}
	for i := range a.CirclePair {
		if a.CirclePair[i].Normal.Sub(b.CirclePair[i].Normal).Norm() > 2e-3 {
			t.Errorf("candidate %d: closed form %v vs tabled %v", i,
				a.CirclePair[i].Normal, b.CirclePair[i].Normal)
		}
	}
}

func TestStateTransitions(t *testing.T) {
	cfg := DefaultModelConfig()
	cfg.MinObservationsForTracking = 3
	m := testModel(t, cfg)
	gen := newSceneGenerator(t, cfg, r3.Vector{Z: 50})

	if m.State() != StateUninitialized {
		t.Fatalf("expected uninitialized, got %v", m.State())
	}

	for i := 0; i < 2; i++ {
		if _, err := m.Observe(gen.ellipseAt(t, 0.3, float64(i)), 1, float64(i)); err != nil {
			t.Fatalf("observe %d: %v", i, err)
		}
	}
	if m.State() != StateInitializing {
		t.Fatalf("expected initializing at 2 observations, got %v", m.State())
	}

	if _, err := m.Observe(gen.ellipseAt(t, 0.25, 2.0), 1, 2); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if m.State() != StateTracking {
		t.Fatalf("expected tracking at 3 observations, got %v", m.State())
	}
	if m.NObservations() != 3 {
		t.Errorf("expected 3 observations, got %d", m.NObservations())
	}
}

func TestCleanupIsIdempotent(t *testing.T) {
	cfg := DefaultModelConfig()
	m := testModel(t, cfg)
	gen := newSceneGenerator(t, cfg, r3.Vector{Z: 50})

	for i := 0; i < 5; i++ {
		if _, err := m.Observe(gen.ellipseAt(t, 0.3, float64(i)), 1, float64(i)); err != nil {
			t.Fatalf("observe %d: %v", i, err)
		}
	}

	m.Cleanup()
	if m.State() != StateUninitialized || m.NObservations() != 0 {
		t.Errorf("expected clean model, got state=%v n=%d", m.State(), m.NObservations())
	}
	if m.SphereCenter() != (SphereCenterEstimate{}) {
		t.Errorf("expected zeroed estimate, got %+v", m.SphereCenter())
	}

	m.Cleanup()
	if m.State() != StateUninitialized {
		t.Error("second cleanup changed state")
	}

	// The model must accept observations again after cleanup.
	if _, err := m.Observe(gen.ellipseAt(t, 0.3, 1.0), 1, 10); err != nil {
		t.Fatalf("observe after cleanup: %v", err)
	}
}

func TestDegenerateObservationLeavesStateUntouched(t *testing.T) {
	cfg := DefaultModelConfig()
	m := testModel(t, cfg)
	gen := newSceneGenerator(t, cfg, r3.Vector{Z: 50})

	for i := 0; i < 4; i++ {
		if _, err := m.Observe(gen.ellipseAt(t, 0.3, float64(i)), 1, float64(i)); err != nil {
			t.Fatalf("observe %d: %v", i, err)
		}
	}
	before := m.SphereCenter()
	count := m.NObservations()

	degenerate := geometry.Ellipse{Center: [2]float64{320, 240}, MajorRadius: 0, MinorRadius: 0}
	_, err := m.Observe(degenerate, 1, 99)
	if !errors.Is(err, ErrInvalidObservation) {
		t.Fatalf("expected ErrInvalidObservation, got %v", err)
	}
	if m.NObservations() != count {
		t.Errorf("observation count changed: %d -> %d", count, m.NObservations())
	}
	if m.SphereCenter() != before {
		t.Errorf("estimate changed on invalid input: %+v -> %+v", before, m.SphereCenter())
	}
}

func TestSphereCenterConvergence(t *testing.T) {
	// Ground-truth eyeball at (0, 0, 50)mm, radius 12mm, 50 noisy frames at
	// full confidence: the 3D estimate must land within 1mm.
	truth := r3.Vector{Z: 50}
	cfg := DefaultModelConfig()
	m := testModel(t, cfg)

	gen := newSceneGenerator(t, cfg, truth)
	gen.noise = 0.2

	for i := 0; i < 50; i++ {
		theta := 0.15 + 0.35*math.Abs(math.Sin(float64(i)*0.7))
		phi := float64(i) * 2.39996 // golden-angle sweep around the axis
		if _, err := m.Observe(gen.ellipseAt(t, theta, phi), 1, float64(i)/120); err != nil {
			t.Fatalf("observe %d: %v", i, err)
		}
	}

	got := m.SphereCenter()
	if dist := got.Center3D.Sub(truth).Norm(); dist > 1.0 {
		t.Errorf("estimate %v is %.3fmm from ground truth %v", got.Center3D, dist, truth)
	}
	if got.Confidence < 0.9 {
		t.Errorf("expected high confidence after 50 clean frames, got %v", got.Confidence)
	}

	// The projected anchor must sit near the image of the true center.
	want2D := m.Camera().ToAbsolute(m.Camera().ProjectPoint(truth))
	if d := math.Hypot(got.Center2D[0]-want2D[0], got.Center2D[1]-want2D[1]); d > 2 {
		t.Errorf("2D anchor %v is %.2fpx from projected truth %v", got.Center2D, d, want2D)
	}
}

func TestSphereCenterConvergenceWithoutRefraction(t *testing.T) {
	// Same scenario with the identity refraction model: pure unprojection
	// geometry, tighter tolerance.
	truth := r3.Vector{X: 3, Y: -2, Z: 55}
	cfg := DefaultModelConfig()
	cfg.Refraction = refraction.IdentityParams()
	m := testModel(t, cfg)

	gen := newSceneGenerator(t, cfg, truth)

	for i := 0; i < 50; i++ {
		theta := 0.1 + 0.3*math.Abs(math.Cos(float64(i)*0.9))
		phi := float64(i) * 2.39996
		if _, err := m.Observe(gen.ellipseAt(t, theta, phi), 1, float64(i)/120); err != nil {
			t.Fatalf("observe %d: %v", i, err)
		}
	}

	got := m.SphereCenter().Center3D
	if dist := got.Sub(truth).Norm(); dist > 0.5 {
		t.Errorf("estimate %v is %.3fmm from ground truth %v", got, dist, truth)
	}
}

func TestPredictPupilCircle(t *testing.T) {
	truth := r3.Vector{Z: 50}
	cfg := DefaultModelConfig()
	m := testModel(t, cfg)
	gen := newSceneGenerator(t, cfg, truth)

	var lastTheta, lastPhi float64
	for i := 0; i < 30; i++ {
		lastTheta = 0.15 + 0.3*math.Abs(math.Sin(float64(i)*0.8))
		lastPhi = float64(i) * 2.39996
		if _, err := m.Observe(gen.ellipseAt(t, lastTheta, lastPhi), 1, float64(i)/120); err != nil {
			t.Fatalf("observe %d: %v", i, err)
		}
	}

	obs, err := m.CreateObservation(gen.ellipseAt(t, lastTheta, lastPhi), 0.9, 1)
	if err != nil {
		t.Fatalf("create observation: %v", err)
	}
	circle, conf, err := m.PredictPupilCircle(obs, false)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	// While tracking, the predicted center lies on the estimated sphere.
	center := m.SphereCenter().Center3D
	if d := math.Abs(circle.Center.Sub(center).Norm() - cfg.EyeballRadius); d > 0.5 {
		t.Errorf("predicted center %.3fmm off the sphere surface", d)
	}
	if circle.Normal.Dot(circle.Center.Sub(center)) <= 0 {
		t.Error("predicted normal does not point outward from the sphere center")
	}
	if conf <= 0 || conf > 0.9 {
		t.Errorf("combined confidence %v outside (0, 0.9]", conf)
	}

	// Gaze direction runs from the sphere center through the pupil.
	gaze := m.GazeDirection(circle)
	if gaze.Dot(circle.Normal) < 0.99 {
		t.Errorf("gaze %v deviates from pupil normal %v", gaze, circle.Normal)
	}

	// The unprojection path must agree with the cached pair.
	circle2, _, err := m.PredictPupilCircle(obs, true)
	if err != nil {
		t.Fatalf("predict with unprojection: %v", err)
	}
	if circle2.Center.Sub(circle.Center).Norm() > 1e-6 {
		t.Errorf("unprojection path diverged: %v vs %v", circle2.Center, circle.Center)
	}

	if _, _, err := m.PredictPupilCircle(nil, false); !errors.Is(err, ErrInvalidObservation) {
		t.Errorf("expected ErrInvalidObservation for nil observation, got %v", err)
	}
}

func TestPredictedConfidenceMonotonicInInputs(t *testing.T) {
	truth := r3.Vector{Z: 50}
	cfg := DefaultModelConfig()
	m := testModel(t, cfg)
	gen := newSceneGenerator(t, cfg, truth)

	for i := 0; i < 20; i++ {
		if _, err := m.Observe(gen.ellipseAt(t, 0.3, float64(i)*2.4), 1, float64(i)/120); err != nil {
			t.Fatalf("observe %d: %v", i, err)
		}
	}

	e := gen.ellipseAt(t, 0.3, 1.1)
	confs := make([]float64, 0, 3)
	for _, detectorConf := range []float64{0.2, 0.5, 1.0} {
		obs, err := m.CreateObservation(e, detectorConf, 1)
		if err != nil {
			t.Fatalf("create observation: %v", err)
		}
		_, conf, err := m.PredictPupilCircle(obs, false)
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		confs = append(confs, conf)
	}
	if !(confs[0] < confs[1] && confs[1] < confs[2]) {
		t.Errorf("combined confidence not monotonic in detector confidence: %v", confs)
	}
}

func TestSetSphereCenterOverridesEstimate(t *testing.T) {
	cfg := DefaultModelConfig()
	m := testModel(t, cfg)

	override := r3.Vector{X: 2, Y: 1, Z: 60}
	m.SetSphereCenter(override)

	got := m.SphereCenter()
	if got.Center3D != override {
		t.Errorf("expected %v, got %v", override, got.Center3D)
	}

	// Subsequent solves blend from the override.
	blended, err := m.EstimateSphereCenter3D(got.Center2D, got.Center3D, 1.0)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if blended != override {
		t.Errorf("prior_strength=1 should keep the override, got %v", blended)
	}
}
