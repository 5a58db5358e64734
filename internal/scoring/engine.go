package scoring

import (
	"math"
	"sort"

	"github.com/Alias1177/SignalScanner/models"
)

// Diagnostic breakdown keys
const (
	DiagLongTotal         = "diag_long_total"
	DiagShortTotal        = "diag_short_total"
	DiagRawScore          = "diag_raw_score"
	DiagClampedScore      = "diag_clamped_score"
	DiagCooccurrenceBonus = "diag_cooccurrence_bonus"
	DiagSentiment         = "diag_sentiment"
)

// Engine turns a list of indicator signals into one directional score.
// It holds no state besides its config and is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine validates the config and creates an engine
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine tunables
func (e *Engine) Config() Config {
	return e.cfg
}

type groupKey struct {
	timeframe string
	direction models.Direction
}

// Score aggregates the signals and the symbol's sentiment counter
func (e *Engine) Score(signals []models.IndicatorSignal, sentiment int) models.ScoreResult {
	breakdown := make(map[string]float64, len(signals)+6)
	groups := make(map[groupKey]int)

	var longTotal, shortTotal float64
	count := 0
	for _, s := range signals {
		if s.Direction != models.DirectionLong && s.Direction != models.DirectionShort {
			continue
		}
		contribution := s.Weight * clamp01(s.Strength)
		if s.Direction == models.DirectionLong {
			longTotal += contribution
		} else {
			shortTotal += contribution
		}
		breakdown[s.BreakdownKey()] += contribution
		groups[groupKey{s.Timeframe, s.Direction}]++
		count++
	}

	raw := longTotal - shortTotal
	clamped := raw
	limit := e.cfg.BalanceClampRatio * math.Max(longTotal, shortTotal)
	if math.Abs(clamped) > limit {
		clamped = math.Copysign(limit, raw)
	}

	bonus := e.cooccurrenceBonus(groups)

	prior := e.sentimentPrior(sentiment)

	score := clamped + bonus + prior
	if count < e.cfg.MinConfluence {
		// Not enough evidence, no matter how strong the few signals are
		score = 0
	}

	breakdown[DiagLongTotal] = longTotal
	breakdown[DiagShortTotal] = shortTotal
	breakdown[DiagRawScore] = raw
	breakdown[DiagClampedScore] = clamped
	breakdown[DiagCooccurrenceBonus] = bonus
	breakdown[DiagSentiment] = prior

	return models.ScoreResult{
		Score:          score,
		IndicatorCount: count,
		Breakdown:      breakdown,
	}
}

// cooccurrenceBonus sums in sorted group order so the float result is reproducible
func (e *Engine) cooccurrenceBonus(groups map[groupKey]int) float64 {
	keys := make([]groupKey, 0, len(groups))
	for g, n := range groups {
		if n >= e.cfg.CooccurrenceMin {
			keys = append(keys, g)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].timeframe != keys[j].timeframe {
			return keys[i].timeframe < keys[j].timeframe
		}
		return keys[i].direction < keys[j].direction
	})

	bonus := 0.0
	for _, g := range keys {
		bonus += float64(g.direction.Sign()) * e.cfg.CooccurrenceBonus * float64(groups[g]-2)
	}
	return bonus
}

func (e *Engine) sentimentPrior(sentiment int) float64 {
	s := float64(sentiment)
	prior := s * e.cfg.SentimentWeight
	if abs(sentiment) > e.cfg.SentimentBiasThreshold {
		prior -= math.Copysign(math.Abs(s)*e.cfg.SentimentPenalty, s)
	}
	return prior
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
