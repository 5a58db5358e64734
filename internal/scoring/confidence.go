package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/Alias1177/SignalScanner/models"
)

// Estimator derives a confidence percentage and a validity window for a score
type Estimator struct {
	cfg    ConfidenceConfig
	higher map[string]struct{}
}

// NewEstimator validates the config and creates an estimator
func NewEstimator(cfg ConfidenceConfig) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	higher := make(map[string]struct{}, len(cfg.HigherTimeframes))
	for _, tf := range cfg.HigherTimeframes {
		higher[tf] = struct{}{}
	}
	return &Estimator{cfg: cfg, higher: higher}, nil
}

// Config returns the estimator tunables
func (e *Estimator) Config() ConfidenceConfig {
	return e.cfg
}

// Confidence returns a value in [MinConfidence, MaxConfidence] (5..95 by default)
func (e *Estimator) Confidence(score float64, indicatorCount int, signals []models.IndicatorSignal) float64 {
	dominant := models.DirectionFromScore(score)

	magnitude := math.Min(math.Abs(score)*e.cfg.ScoreFactor, e.cfg.ScoreCap)
	countBonus := math.Min(float64(indicatorCount)*e.cfg.CountFactor, e.cfg.CountCap)

	var strengthSum float64
	directional := 0
	byTimeframe := make(map[string][2]int) // agreeing, total
	higherAgreeing := 0
	for _, s := range signals {
		if s.Direction != models.DirectionLong && s.Direction != models.DirectionShort {
			continue
		}
		directional++
		strengthSum += clamp01(s.Strength)

		tf := byTimeframe[s.Timeframe]
		tf[1]++
		if dominant != models.DirectionNeutral && s.Direction == dominant {
			tf[0]++
			if _, ok := e.higher[s.Timeframe]; ok {
				higherAgreeing++
			}
		}
		byTimeframe[s.Timeframe] = tf
	}

	strengthBonus := 0.0
	if directional > 0 {
		strengthBonus = strengthSum / float64(directional) * e.cfg.StrengthFactor
	}

	agreementBonus := 0.0
	if dominant != models.DirectionNeutral {
		agreementBonus = e.timeframeAgreement(byTimeframe) * e.cfg.AgreementFactor
	}

	confidence := magnitude + countBonus + strengthBonus + agreementBonus +
		e.higherTimeframeBonus(higherAgreeing) + e.cfg.Baseline

	if math.IsNaN(confidence) {
		return e.cfg.MinConfidence
	}
	return math.Max(e.cfg.MinConfidence, math.Min(e.cfg.MaxConfidence, confidence))
}

// timeframeAgreement is the weighted mean of per-timeframe agreement fractions
func (e *Estimator) timeframeAgreement(byTimeframe map[string][2]int) float64 {
	timeframes := make([]string, 0, len(byTimeframe))
	for tf := range byTimeframe {
		timeframes = append(timeframes, tf)
	}
	sort.Strings(timeframes)

	var weighted, totalWeight float64
	for _, tf := range timeframes {
		counts := byTimeframe[tf]
		if counts[1] == 0 {
			continue
		}
		w := e.timeframeWeight(tf)
		weighted += w * float64(counts[0]) / float64(counts[1])
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	return weighted / totalWeight
}

func (e *Estimator) timeframeWeight(tf string) float64 {
	if w, ok := e.cfg.TimeframeWeights[tf]; ok {
		return w
	}
	return 1
}

func (e *Estimator) higherTimeframeBonus(agreeing int) float64 {
	switch {
	case agreeing >= 3:
		return e.cfg.HigherTimeframeTiers[2]
	case agreeing == 2:
		return e.cfg.HigherTimeframeTiers[1]
	case agreeing == 1:
		return e.cfg.HigherTimeframeTiers[0]
	}
	return 0
}

// EstimateDuration returns how long a prediction should stay active.
// Callers pass |score|; the result always lies within [MinDuration, MaxDuration].
func (e *Estimator) EstimateDuration(score float64, agreeingTimeframes []string) time.Duration {
	d := e.cfg.BaseDuration

	scoreMinutes := math.Max(score*float64(e.cfg.ScoreDurationFactor), 0)
	if math.IsNaN(scoreMinutes) {
		scoreMinutes = 0
	}
	d += time.Duration(math.Min(scoreMinutes, float64(e.cfg.MaxScoreDuration)))

	seen := make(map[string]struct{}, len(agreeingTimeframes))
	for _, tf := range agreeingTimeframes {
		if _, dup := seen[tf]; dup {
			continue
		}
		seen[tf] = struct{}{}
		if _, ok := e.higher[tf]; ok {
			d += e.cfg.HigherTimeframeDuration
		}
	}

	if d > e.cfg.MaxDuration {
		d = e.cfg.MaxDuration
	}
	return d
}

// InDurationBand reports whether d is an acceptable prediction lifetime.
// Out-of-band estimates are rejected rather than clamped.
func (e *Estimator) InDurationBand(d time.Duration) bool {
	return d >= e.cfg.MinDuration && d <= e.cfg.MaxDuration
}

// AgreeingTimeframes lists the distinct timeframes with at least one
// signal in the given direction, sorted
func AgreeingTimeframes(signals []models.IndicatorSignal, direction models.Direction) []string {
	if direction == models.DirectionNeutral {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, s := range signals {
		if s.Direction != direction {
			continue
		}
		if _, ok := seen[s.Timeframe]; ok {
			continue
		}
		seen[s.Timeframe] = struct{}{}
		out = append(out, s.Timeframe)
	}
	sort.Strings(out)
	return out
}
