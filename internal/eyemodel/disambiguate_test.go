package eyemodel

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/gazetrack/internal/geometry"
	"github.com/banshee-data/gazetrack/internal/refraction"
)

func TestDisambiguateDefaultsToFirstCandidate(t *testing.T) {
	cfg := DefaultModelConfig()
	m := testModel(t, cfg)
	gen := newSceneGenerator(t, cfg, r3.Vector{Z: 50})

	obs, err := m.CreateObservation(gen.ellipseAt(t, 0.3, 0.7), 1, 0)
	if err != nil {
		t.Fatalf("create observation: %v", err)
	}

	// No estimate yet: the selection convention is the first candidate.
	got := m.disambiguateCirclePair(obs.CirclePair)
	if got != obs.CirclePair[0] {
		t.Errorf("expected first candidate %+v, got %+v", obs.CirclePair[0], got)
	}
}

func TestDisambiguatePicksOutwardNormal(t *testing.T) {
	truth := r3.Vector{Z: 50}
	cfg := DefaultModelConfig()
	cfg.Refraction = refraction.IdentityParams()
	m := testModel(t, cfg)
	gen := newSceneGenerator(t, cfg, truth)
	m.SetSphereCenter(truth)

	for i := 0; i < 12; i++ {
		theta := 0.2 + 0.3*math.Abs(math.Sin(float64(i)*1.3))
		phi := float64(i) * 2.39996
		normal := r3.Vector{
			X: math.Sin(theta) * math.Cos(phi),
			Y: math.Sin(theta) * math.Sin(phi),
			Z: -math.Cos(theta),
		}

		obs, err := m.CreateObservation(gen.ellipseAt(t, theta, phi), 1, 0)
		if err != nil {
			t.Fatalf("create observation %d: %v", i, err)
		}

		got := m.disambiguateCirclePair(obs.CirclePair)
		if got.Normal.Dot(normal) < 0.99 {
			t.Errorf("obs %d: selected normal %v, true normal %v", i, got.Normal, normal)
		}
	}
}

func TestDisambiguateStableUnderSmallCenterPerturbation(t *testing.T) {
	truth := r3.Vector{Z: 50}
	cfg := DefaultModelConfig()
	m := testModel(t, cfg)
	gen := newSceneGenerator(t, cfg, truth)

	obs, err := m.CreateObservation(gen.ellipseAt(t, 0.35, 1.9), 1, 0)
	if err != nil {
		t.Fatalf("create observation: %v", err)
	}

	m.SetSphereCenter(truth)
	first := m.disambiguateCirclePair(obs.CirclePair)

	m.SetSphereCenter(truth.Add(r3.Vector{X: 1e-4, Y: -1e-4, Z: 1e-4}))
	second := m.disambiguateCirclePair(obs.CirclePair)

	if first != second {
		t.Errorf("selection flipped under epsilon center change: %+v vs %+v", first, second)
	}
}

func TestDisambiguateTemporalTieBreak(t *testing.T) {
	center := r3.Vector{Z: 50}
	cfg := DefaultModelConfig()
	m := testModel(t, cfg)
	m.SetSphereCenter(center)

	// Two candidates sharing a viewing ray with both normals outward: the
	// surface-distance test cannot separate them, so continuity with the
	// previously selected normal must decide.
	pos := r3.Vector{X: 3.546, Y: 0, Z: 38.54}
	na := r3.Vector{X: math.Sin(0.3), Y: 0, Z: -math.Cos(0.3)}
	nb := r3.Vector{X: math.Sin(0.45), Y: 0, Z: -math.Cos(0.45)}
	ca := geometry.Circle{Center: pos, Normal: na, Radius: 2}
	cb := geometry.Circle{Center: pos, Normal: nb, Radius: 2}

	// Prime the prior normal with nb.
	if got := m.disambiguateCirclePair([2]geometry.Circle{cb, ca}); got != cb {
		t.Fatalf("priming selection returned %+v", got)
	}

	// With nb as prior, candidate order must not matter.
	if got := m.disambiguateCirclePair([2]geometry.Circle{ca, cb}); got != cb {
		t.Errorf("tie-break ignored temporal continuity: got %+v", got)
	}
	if got := m.disambiguateCirclePair([2]geometry.Circle{cb, ca}); got != cb {
		t.Errorf("tie-break unstable across orderings: got %+v", got)
	}
}

func TestPickCandidateRejectsInwardNormal(t *testing.T) {
	center := r3.Vector{Z: 50}
	cfg := DefaultModelConfig()
	m := testModel(t, cfg)
	m.SetSphereCenter(center)

	pos := r3.Vector{X: 3.546, Y: 0, Z: 38.54}
	outward := geometry.Circle{Center: pos, Normal: r3.Vector{X: math.Sin(0.3), Z: -math.Cos(0.3)}, Radius: 2}
	inward := outward
	inward.Normal = inward.Normal.Mul(-1)

	if got := m.pickCandidate([2]geometry.Circle{outward, inward}); got != 0 {
		t.Errorf("expected outward candidate at index 0, picked %d", got)
	}
	if got := m.pickCandidate([2]geometry.Circle{inward, outward}); got != 1 {
		t.Errorf("expected outward candidate at index 1, picked %d", got)
	}
}
