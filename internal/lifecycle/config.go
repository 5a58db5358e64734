package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by NewManager for unusable settings
var ErrInvalidConfig = errors.New("invalid lifecycle config")

// Config holds the admission policy of the active prediction set
type Config struct {
	Capacity int `yaml:"capacity"`
	// Candidate confidence must beat the lowest active one by more than this
	// many percentage points to evict it when the set is full
	AdmissionMargin float64 `yaml:"admission_margin"`
	MinAbsScore     float64 `yaml:"min_abs_score"`
	MinConfidence   float64 `yaml:"min_confidence"`

	MinDuration time.Duration `yaml:"min_duration"`
	MaxDuration time.Duration `yaml:"max_duration"`

	// Direction skew guard: reject a candidate that would leave
	// SkewMaxSameDirection or more of its direction against SkewMaxOpposite
	// or fewer of the other, unless its confidence reaches SkewOverrideConfidence
	SkewGuardEnabled       bool    `yaml:"skew_guard_enabled"`
	SkewMaxSameDirection   int     `yaml:"skew_max_same_direction"`
	SkewMaxOpposite        int     `yaml:"skew_max_opposite"`
	SkewOverrideConfidence float64 `yaml:"skew_override_confidence"`

	// Expired predictions whose exit price stays unavailable this many
	// cycles are dropped without an outcome
	MaxUnpricedCycles int `yaml:"max_unpriced_cycles"`
	// Number of recent outcomes kept in memory
	OutcomeHistory int `yaml:"outcome_history"`
}

// DefaultConfig returns the production admission policy
func DefaultConfig() Config {
	return Config{
		Capacity:               10,
		AdmissionMargin:        10,
		MinAbsScore:            1.0,
		MinConfidence:          50,
		MinDuration:            30 * time.Minute,
		MaxDuration:            240 * time.Minute,
		SkewGuardEnabled:       true,
		SkewMaxSameDirection:   7,
		SkewMaxOpposite:        1,
		SkewOverrideConfidence: 85,
		MaxUnpricedCycles:      3,
		OutcomeHistory:         1000,
	}
}

// Validate reports settings that would break the manager's invariants
func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	case c.AdmissionMargin < 0 || c.AdmissionMargin > 100:
		return fmt.Errorf("%w: admission_margin must be in [0,100], got %v", ErrInvalidConfig, c.AdmissionMargin)
	case c.MinAbsScore < 0:
		return fmt.Errorf("%w: min_abs_score must be >= 0, got %v", ErrInvalidConfig, c.MinAbsScore)
	case c.MinConfidence < 0 || c.MinConfidence > 100:
		return fmt.Errorf("%w: min_confidence must be in [0,100], got %v", ErrInvalidConfig, c.MinConfidence)
	case c.MinDuration <= 0 || c.MinDuration > c.MaxDuration:
		return fmt.Errorf("%w: duration band [%s,%s] is inverted", ErrInvalidConfig, c.MinDuration, c.MaxDuration)
	case c.MaxUnpricedCycles < 1:
		return fmt.Errorf("%w: max_unpriced_cycles must be >= 1", ErrInvalidConfig)
	case c.OutcomeHistory < 0:
		return fmt.Errorf("%w: outcome_history must be >= 0", ErrInvalidConfig)
	}
	if c.SkewGuardEnabled {
		if c.SkewMaxSameDirection < 1 || c.SkewMaxOpposite < 0 || c.SkewMaxOpposite >= c.SkewMaxSameDirection {
			return fmt.Errorf("%w: skew guard thresholds %d/%d are inverted",
				ErrInvalidConfig, c.SkewMaxSameDirection, c.SkewMaxOpposite)
		}
		if c.SkewOverrideConfidence < c.MinConfidence || c.SkewOverrideConfidence > 100 {
			return fmt.Errorf("%w: skew_override_confidence must be in [min_confidence,100], got %v",
				ErrInvalidConfig, c.SkewOverrideConfidence)
		}
	}
	return nil
}
