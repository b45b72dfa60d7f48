package eyemodel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/gazetrack/internal/observation"
	"github.com/banshee-data/gazetrack/internal/refraction"
)

// Model defaults. Millimeters where dimensional.
const (
	// DefaultEyeballRadius is the anatomical eyeball radius.
	DefaultEyeballRadius = 12.0
	// DefaultPupilRadius fixes the radius normalization of unprojected
	// candidates and with it the depth scale of the model.
	DefaultPupilRadius = 2.0
	// DefaultMinObservationsForTracking is the observation count at which
	// the model leaves the Initializing state.
	DefaultMinObservationsForTracking = 10
	// DefaultMaxPriorStrength caps how strongly the previous estimate damps
	// a fresh solve during the per-frame refresh.
	DefaultMaxPriorStrength = 0.9
	// DefaultMinEyeDistance and DefaultMaxEyeDistance bound the estimated
	// sphere center to an anatomically plausible camera distance.
	DefaultMinEyeDistance = 15.0
	DefaultMaxEyeDistance = 150.0
	// DefaultRefractionTableSize is the node count of the precomputed
	// refraction tilt table.
	DefaultRefractionTableSize = 64
)

// ModelConfig holds the tunable parameters of a TwoSphereModel.
type ModelConfig struct {
	Storage observation.StorageConfig

	Refraction refraction.Params

	// EyeballRadius is the sphere radius used by the disambiguator and for
	// pupil-circle prediction.
	EyeballRadius float64

	// PupilRadius is the assumed physical pupil radius; the unprojection is
	// normalized to it.
	PupilRadius float64

	// MinObservationsForTracking gates the Initializing -> Tracking
	// transition and schedules the prior strength of the per-frame refresh.
	MinObservationsForTracking int

	// MaxPriorStrength caps the scheduled prior blending in [0, 1].
	MaxPriorStrength float64

	// MinEyeDistance and MaxEyeDistance clamp the estimated center distance.
	MinEyeDistance float64
	MaxEyeDistance float64

	// RefractionTableSize is the node count of the corrector's precomputed
	// tilt table; 0 disables the table and uses the closed form only.
	RefractionTableSize int
}

// DefaultModelConfig returns the default parameters.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Storage:                    observation.DefaultStorageConfig(),
		Refraction:                 refraction.DefaultParams(),
		EyeballRadius:              DefaultEyeballRadius,
		PupilRadius:                DefaultPupilRadius,
		MinObservationsForTracking: DefaultMinObservationsForTracking,
		MaxPriorStrength:           DefaultMaxPriorStrength,
		MinEyeDistance:             DefaultMinEyeDistance,
		MaxEyeDistance:             DefaultMaxEyeDistance,
		RefractionTableSize:        DefaultRefractionTableSize,
	}
}

// ConfigOverrides mirrors ModelConfig with pointer fields so a partial JSON
// file can override only the parameters it names.
type ConfigOverrides struct {
	StorageCapacity            *int     `json:"storage_capacity,omitempty"`
	ConfidenceThreshold        *float64 `json:"confidence_threshold,omitempty"`
	RecencyHalfLife            *float64 `json:"recency_half_life,omitempty"`
	CornealRadius              *float64 `json:"corneal_radius,omitempty"`
	RefractiveIndex            *float64 `json:"refractive_index,omitempty"`
	AnteriorChamberDepth       *float64 `json:"anterior_chamber_depth,omitempty"`
	NominalEyeDistance         *float64 `json:"nominal_eye_distance,omitempty"`
	EyeballRadius              *float64 `json:"eyeball_radius,omitempty"`
	PupilRadius                *float64 `json:"pupil_radius,omitempty"`
	MinObservationsForTracking *int     `json:"min_observations_for_tracking,omitempty"`
	MaxPriorStrength           *float64 `json:"max_prior_strength,omitempty"`
	MinEyeDistance             *float64 `json:"min_eye_distance,omitempty"`
	MaxEyeDistance             *float64 `json:"max_eye_distance,omitempty"`
	RefractionTableSize        *int     `json:"refraction_table_size,omitempty"`
}

// Apply merges the overrides into a config.
func (o *ConfigOverrides) Apply(cfg *ModelConfig) {
	if o.StorageCapacity != nil {
		cfg.Storage.Capacity = *o.StorageCapacity
	}
	if o.ConfidenceThreshold != nil {
		cfg.Storage.ConfidenceThreshold = *o.ConfidenceThreshold
	}
	if o.RecencyHalfLife != nil {
		cfg.Storage.RecencyHalfLife = *o.RecencyHalfLife
	}
	if o.CornealRadius != nil {
		cfg.Refraction.CornealRadius = *o.CornealRadius
	}
	if o.RefractiveIndex != nil {
		cfg.Refraction.RefractiveIndex = *o.RefractiveIndex
	}
	if o.AnteriorChamberDepth != nil {
		cfg.Refraction.AnteriorChamberDepth = *o.AnteriorChamberDepth
	}
	if o.NominalEyeDistance != nil {
		cfg.Refraction.NominalEyeDistance = *o.NominalEyeDistance
	}
	if o.EyeballRadius != nil {
		cfg.EyeballRadius = *o.EyeballRadius
	}
	if o.PupilRadius != nil {
		cfg.PupilRadius = *o.PupilRadius
	}
	if o.MinObservationsForTracking != nil {
		cfg.MinObservationsForTracking = *o.MinObservationsForTracking
	}
	if o.MaxPriorStrength != nil {
		cfg.MaxPriorStrength = *o.MaxPriorStrength
	}
	if o.MinEyeDistance != nil {
		cfg.MinEyeDistance = *o.MinEyeDistance
	}
	if o.MaxEyeDistance != nil {
		cfg.MaxEyeDistance = *o.MaxEyeDistance
	}
	if o.RefractionTableSize != nil {
		cfg.RefractionTableSize = *o.RefractionTableSize
	}
}

// LoadModelConfig loads defaults and applies overrides from a JSON file.
// Fields omitted from the file keep their defaults, so partial configs are
// safe.
func LoadModelConfig(path string) (ModelConfig, error) {
	cfg := DefaultModelConfig()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	var overrides ConfigOverrides
	if err := json.Unmarshal(data, &overrides); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	overrides.Apply(&cfg)
	return cfg, nil
}
