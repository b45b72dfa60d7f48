package observation

import (
	"errors"
	"math"

	"github.com/banshee-data/gazetrack/internal/geometry"
)

// ErrZeroCapacity signals a storage configured with no room for any
// observation. The model cannot function without one; construction must
// fail fast.
var ErrZeroCapacity = errors.New("observation storage capacity must be at least 1")

// Storage configuration defaults.
const (
	// DefaultCapacity bounds the working set of observations.
	DefaultCapacity = 100
	// DefaultConfidenceThreshold rejects observations at or below this
	// confidence; zero-confidence observations carry no information.
	DefaultConfidenceThreshold = 0.0
	// DefaultRecencyHalfLife is the age, in seconds, at which an
	// observation's eviction priority halves.
	DefaultRecencyHalfLife = 10.0
)

// StorageConfig parameterizes a BufferedStorage.
type StorageConfig struct {
	Capacity            int
	ConfidenceThreshold float64
	RecencyHalfLife     float64
}

// DefaultStorageConfig returns the default storage parameters.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Capacity:            DefaultCapacity,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		RecencyHalfLife:     DefaultRecencyHalfLife,
	}
}

// BufferedStorage is a bounded, insertion-ordered buffer of observations.
// When full it evicts the entry with the lowest confidence-weighted recency
// priority. It maintains the running 2D projector sums used by the
// sphere-center solve incrementally, so per-frame cost stays O(capacity)
// in the worst case and O(1) amortized for the statistics themselves.
//
// Not safe for concurrent use; each model instance owns exactly one storage
// (single-threaded-per-eye contract).
type BufferedStorage struct {
	cfg        StorageConfig
	decay      float64 // per-second priority decay rate, ln2 / half-life
	obs        []*Observation
	sum2D      geometry.Projector2D
	sumWeights float64
	latest     float64
}

// NewBufferedStorage validates the configuration and builds an empty
// storage. Capacity below 1 is a misconfiguration and fails fast.
func NewBufferedStorage(cfg StorageConfig) (*BufferedStorage, error) {
	if cfg.Capacity < 1 {
		return nil, ErrZeroCapacity
	}
	if cfg.RecencyHalfLife <= 0 {
		cfg.RecencyHalfLife = DefaultRecencyHalfLife
	}
	return &BufferedStorage{
		cfg:   cfg,
		decay: math.Ln2 / cfg.RecencyHalfLife,
		obs:   make([]*Observation, 0, cfg.Capacity),
	}, nil
}

// Add inserts an observation in arrival order, evicting the lowest-priority
// entry if the buffer is full. Reports whether the observation was retained.
// Nil and at-or-below-threshold observations are discarded.
func (s *BufferedStorage) Add(o *Observation) bool {
	if o == nil || o.Confidence <= s.cfg.ConfidenceThreshold || o.Confidence <= 0 {
		return false
	}
	if o.Timestamp > s.latest {
		s.latest = o.Timestamp
	}

	if len(s.obs) >= s.cfg.Capacity {
		s.evictLowest()
	}
	s.obs = append(s.obs, o)
	s.sum2D.Add(o.Aux2D)
	s.sumWeights += o.Confidence
	return true
}

// evictLowest removes the entry with the lowest priority. The scan runs in
// insertion order with a strict comparison, so ties evict the oldest entry.
func (s *BufferedStorage) evictLowest() {
	if len(s.obs) == 0 {
		return
	}
	worst := 0
	worstPriority := s.priority(s.obs[0])
	for i := 1; i < len(s.obs); i++ {
		if p := s.priority(s.obs[i]); p < worstPriority {
			worst, worstPriority = i, p
		}
	}
	evicted := s.obs[worst]
	s.obs = append(s.obs[:worst], s.obs[worst+1:]...)
	s.sum2D.Sub(evicted.Aux2D)
	s.sumWeights -= evicted.Confidence
}

// priority is the eviction score: detector confidence decayed by age
// relative to the newest entry. Older and lower-confidence observations go
// first.
func (s *BufferedStorage) priority(o *Observation) float64 {
	age := s.latest - o.Timestamp
	if age < 0 {
		age = 0
	}
	return o.Confidence * math.Exp(-s.decay*age)
}

// Count returns the number of retained observations.
func (s *BufferedStorage) Count() int { return len(s.obs) }

// Capacity returns the configured bound.
func (s *BufferedStorage) Capacity() int { return s.cfg.Capacity }

// Observations returns the retained observations in insertion order. The
// slice is shared; callers must not mutate it.
func (s *BufferedStorage) Observations() []*Observation { return s.obs }

// Sums returns the cached 2D projector statistics and the total confidence
// weight across retained observations.
func (s *BufferedStorage) Sums() (geometry.Projector2D, float64) {
	return s.sum2D, s.sumWeights
}

// Clear drops all observations and resets the cached statistics.
func (s *BufferedStorage) Clear() {
	s.obs = s.obs[:0]
	s.sum2D = geometry.Projector2D{}
	s.sumWeights = 0
	s.latest = 0
}
