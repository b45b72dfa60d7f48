package eyemodel

import (
	"errors"

	"github.com/banshee-data/gazetrack/internal/observation"
)

// Error taxonomy of the model. Per-frame recoverable conditions
// (ErrInvalidObservation, ErrInsufficientData, ErrNumericDegeneracy) never
// propagate past the orchestrator as failures of the pipeline: state stays
// valid and callers still receive a well-formed, low-confidence result.
// Only ErrMisconfiguration is fatal, and only at construction time.
var (
	// ErrInvalidObservation marks a malformed or degenerate detector result;
	// the observation is dropped and no state is mutated.
	ErrInvalidObservation = observation.ErrInvalidObservation

	// ErrInsufficientData flags an estimate computed from too few
	// observations to be reliable.
	ErrInsufficientData = errors.New("insufficient observations for a reliable estimate")

	// ErrNumericDegeneracy flags a near-singular solve; the previous or
	// fallback estimate is returned instead of NaN.
	ErrNumericDegeneracy = errors.New("near-singular solve")

	// ErrMisconfiguration marks unusable construction parameters.
	ErrMisconfiguration = errors.New("model misconfiguration")
)
