package scoring

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned for scoring or confidence tunables that cannot work
var ErrInvalidConfig = errors.New("invalid scoring config")

// Config holds the scoring engine tunables
type Config struct {
	// Cap on |raw score| as a fraction of the dominant side's total
	BalanceClampRatio float64 `yaml:"balance_clamp_ratio"`
	// Minimum number of directional signals before any score is produced
	MinConfluence int `yaml:"min_confluence"`
	// Bonus per signal beyond two in one (timeframe, direction) group
	CooccurrenceBonus float64 `yaml:"cooccurrence_bonus"`
	CooccurrenceMin   int     `yaml:"cooccurrence_min"`
	// Sentiment prior: +sentiment*SentimentWeight, damped past the bias threshold
	SentimentWeight        float64 `yaml:"sentiment_weight"`
	SentimentPenalty       float64 `yaml:"sentiment_penalty"`
	SentimentBiasThreshold int     `yaml:"sentiment_bias_threshold"`
}

// DefaultConfig returns the production scoring defaults
func DefaultConfig() Config {
	return Config{
		BalanceClampRatio:      0.7,
		MinConfluence:          3,
		CooccurrenceBonus:      0.15,
		CooccurrenceMin:        3,
		SentimentWeight:        0.1,
		SentimentPenalty:       0.05,
		SentimentBiasThreshold: 5,
	}
}

// Validate checks the config for values the engine cannot work with
func (c Config) Validate() error {
	if c.BalanceClampRatio <= 0 || c.BalanceClampRatio > 1 {
		return fmt.Errorf("%w: balance_clamp_ratio must be in (0,1], got %v", ErrInvalidConfig, c.BalanceClampRatio)
	}
	if c.MinConfluence < 1 {
		return fmt.Errorf("%w: min_confluence must be >= 1, got %d", ErrInvalidConfig, c.MinConfluence)
	}
	if c.CooccurrenceMin < 3 {
		return fmt.Errorf("%w: cooccurrence_min must be >= 3, got %d", ErrInvalidConfig, c.CooccurrenceMin)
	}
	if c.CooccurrenceBonus < 0 || c.SentimentWeight < 0 || c.SentimentPenalty < 0 {
		return fmt.Errorf("%w: bonus and sentiment factors must be non-negative", ErrInvalidConfig)
	}
	if c.SentimentPenalty > c.SentimentWeight {
		return fmt.Errorf("%w: sentiment_penalty (%v) larger than sentiment_weight (%v) would flip the prior",
			ErrInvalidConfig, c.SentimentPenalty, c.SentimentWeight)
	}
	if c.SentimentBiasThreshold < 0 {
		return fmt.Errorf("%w: sentiment_bias_threshold must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// ConfidenceConfig holds the confidence and duration estimator tunables
type ConfidenceConfig struct {
	ScoreFactor     float64 `yaml:"score_factor"`
	ScoreCap        float64 `yaml:"score_cap"`
	CountFactor     float64 `yaml:"count_factor"`
	CountCap        float64 `yaml:"count_cap"`
	StrengthFactor  float64 `yaml:"strength_factor"`
	AgreementFactor float64 `yaml:"agreement_factor"`
	Baseline        float64 `yaml:"baseline"`
	// Bonus by number of agreeing higher-timeframe signals: [1], [2], [3+]
	HigherTimeframeTiers [3]float64 `yaml:"higher_timeframe_tiers"`
	HigherTimeframes     []string   `yaml:"higher_timeframes"`
	// Relative importance of each timeframe in the agreement term; unknown ones weigh 1
	TimeframeWeights map[string]float64 `yaml:"timeframe_weights"`

	MinConfidence float64 `yaml:"min_confidence"`
	MaxConfidence float64 `yaml:"max_confidence"`

	BaseDuration            time.Duration `yaml:"base_duration"`
	ScoreDurationFactor     time.Duration `yaml:"score_duration_factor"` // per unit of score
	MaxScoreDuration        time.Duration `yaml:"max_score_duration"`
	HigherTimeframeDuration time.Duration `yaml:"higher_timeframe_duration"`
	MinDuration             time.Duration `yaml:"min_duration"`
	MaxDuration             time.Duration `yaml:"max_duration"`
}

// DefaultConfidenceConfig returns the production estimator defaults
func DefaultConfidenceConfig() ConfidenceConfig {
	return ConfidenceConfig{
		ScoreFactor:          10,
		ScoreCap:             50,
		CountFactor:          1.5,
		CountCap:             12,
		StrengthFactor:       10,
		AgreementFactor:      10,
		Baseline:             5,
		HigherTimeframeTiers: [3]float64{2, 5, 8},
		HigherTimeframes:     []string{"1h", "4h", "1day"},
		TimeframeWeights: map[string]float64{
			"1min":  0.5,
			"5min":  0.75,
			"15min": 1.0,
			"30min": 1.25,
			"1h":    1.5,
			"4h":    2.0,
			"1day":  2.5,
		},
		MinConfidence: 5,
		MaxConfidence: 95,

		BaseDuration:            30 * time.Minute,
		ScoreDurationFactor:     10 * time.Minute,
		MaxScoreDuration:        210 * time.Minute,
		HigherTimeframeDuration: 30 * time.Minute,
		MinDuration:             30 * time.Minute,
		MaxDuration:             240 * time.Minute,
	}
}

// Validate checks the estimator config
func (c ConfidenceConfig) Validate() error {
	if c.MinConfidence < 0 || c.MaxConfidence > 100 || c.MinConfidence >= c.MaxConfidence {
		return fmt.Errorf("%w: confidence band [%v,%v] is invalid", ErrInvalidConfig, c.MinConfidence, c.MaxConfidence)
	}
	if c.MinDuration <= 0 || c.MinDuration >= c.MaxDuration {
		return fmt.Errorf("%w: duration band [%s,%s] is invalid", ErrInvalidConfig, c.MinDuration, c.MaxDuration)
	}
	if c.BaseDuration < c.MinDuration || c.BaseDuration > c.MaxDuration {
		return fmt.Errorf("%w: base_duration %s outside [%s,%s]", ErrInvalidConfig, c.BaseDuration, c.MinDuration, c.MaxDuration)
	}
	for tf, w := range c.TimeframeWeights {
		if w <= 0 {
			return fmt.Errorf("%w: timeframe weight for %s must be positive", ErrInvalidConfig, tf)
		}
	}
	return nil
}
