package scoring

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/SignalScanner/models"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	return e
}

func sig(name, tf string, dir models.Direction, weight, strength float64) models.IndicatorSignal {
	return models.IndicatorSignal{Name: name, Timeframe: tf, Direction: dir, Weight: weight, Strength: strength}
}

func randomDirection(r *rand.Rand) models.Direction {
	switch r.Intn(3) {
	case 0:
		return models.DirectionLong
	case 1:
		return models.DirectionShort
	}
	return models.DirectionNeutral
}

func TestScoreConfluenceGate(t *testing.T) {
	e := newTestEngine(t)
	r := rand.New(rand.NewSource(42))
	timeframes := []string{"15min", "1h", "4h"}

	for i := 0; i < 500; i++ {
		var signals []models.IndicatorSignal
		directional := r.Intn(e.Config().MinConfluence)
		for j := 0; j < directional; j++ {
			dir := models.DirectionLong
			if r.Intn(2) == 0 {
				dir = models.DirectionShort
			}
			signals = append(signals, sig("RSI", timeframes[r.Intn(3)], dir, 0.1+r.Float64()*1.9, r.Float64()))
		}
		for j := 0; j < r.Intn(5); j++ {
			signals = append(signals, sig("MACD", timeframes[r.Intn(3)], models.DirectionNeutral, 1, r.Float64()))
		}
		sentiment := r.Intn(41) - 20

		res := e.Score(signals, sentiment)
		require.Zero(t, res.Score, "gate must force zero score (iteration %d)", i)
		assert.Equal(t, directional, res.IndicatorCount)
	}
}

func TestScoreBalanceClampBound(t *testing.T) {
	e := newTestEngine(t)
	r := rand.New(rand.NewSource(7))
	timeframes := []string{"5min", "15min", "1h", "4h"}

	for i := 0; i < 1000; i++ {
		n := r.Intn(12)
		signals := make([]models.IndicatorSignal, 0, n)
		for j := 0; j < n; j++ {
			signals = append(signals, sig("EMA", timeframes[r.Intn(len(timeframes))], randomDirection(r), 0.1+r.Float64()*1.9, r.Float64()))
		}

		res := e.Score(signals, 0)
		long := res.Breakdown[DiagLongTotal]
		short := res.Breakdown[DiagShortTotal]
		clamped := res.Breakdown[DiagClampedScore]
		assert.LessOrEqual(t, math.Abs(clamped), 0.7*math.Max(long, short)+1e-12)
		if res.Breakdown[DiagRawScore] != 0 && clamped != 0 {
			assert.Equal(t, math.Signbit(res.Breakdown[DiagRawScore]), math.Signbit(clamped), "clamp must keep sign")
		}
	}
}

func TestScoreBreakdownAndDiagnostics(t *testing.T) {
	e := newTestEngine(t)
	signals := []models.IndicatorSignal{
		sig("RSI", "1h", models.DirectionLong, 1.0, 0.8),
		sig("MACD", "1h", models.DirectionLong, 1.2, 0.5),
		sig("BB", "15min", models.DirectionShort, 1.0, 0.4),
		sig("STOCH", "15min", models.DirectionNeutral, 0.9, 1.0),
	}

	res := e.Score(signals, 0)

	assert.Equal(t, 3, res.IndicatorCount)
	assert.InDelta(t, 0.8, res.Breakdown["RSI_1h_long"], 1e-9)
	assert.InDelta(t, 0.6, res.Breakdown["MACD_1h_long"], 1e-9)
	assert.InDelta(t, 0.4, res.Breakdown["BB_15min_short"], 1e-9)
	assert.NotContains(t, res.Breakdown, "STOCH_15min_neutral")
	assert.InDelta(t, 1.4, res.Breakdown[DiagLongTotal], 1e-9)
	assert.InDelta(t, 0.4, res.Breakdown[DiagShortTotal], 1e-9)
	assert.InDelta(t, 1.0, res.Breakdown[DiagRawScore], 1e-9)
	// raw 1.0 exceeds 0.7 * 1.4
	assert.InDelta(t, 0.98, res.Breakdown[DiagClampedScore], 1e-9)
	assert.InDelta(t, 0.98, res.Score, 1e-9)
}

func TestScoreCooccurrenceBonus(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name      string
		signals   []models.IndicatorSignal
		wantBonus float64
	}{
		{
			name: "two per timeframe gives nothing",
			signals: []models.IndicatorSignal{
				sig("RSI", "1h", models.DirectionLong, 1, 0.5),
				sig("MACD", "1h", models.DirectionLong, 1, 0.5),
				sig("RSI", "4h", models.DirectionLong, 1, 0.5),
			},
			wantBonus: 0,
		},
		{
			name: "four long on one timeframe",
			signals: []models.IndicatorSignal{
				sig("RSI", "1h", models.DirectionLong, 1, 0.5),
				sig("MACD", "1h", models.DirectionLong, 1, 0.5),
				sig("EMA", "1h", models.DirectionLong, 1, 0.5),
				sig("BB", "1h", models.DirectionLong, 1, 0.5),
			},
			wantBonus: 0.30,
		},
		{
			name: "three short on one timeframe",
			signals: []models.IndicatorSignal{
				sig("RSI", "15min", models.DirectionShort, 1, 0.5),
				sig("MACD", "15min", models.DirectionShort, 1, 0.5),
				sig("EMA", "15min", models.DirectionShort, 1, 0.5),
			},
			wantBonus: -0.15,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Score(tt.signals, 0)
			assert.InDelta(t, tt.wantBonus, res.Breakdown[DiagCooccurrenceBonus], 1e-9)
		})
	}
}

func TestScoreSentimentPrior(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		sentiment int
		want      float64
	}{
		{0, 0},
		{3, 0.3},
		{5, 0.5},
		{-5, -0.5},
		// past the bias threshold the prior is damped
		{8, 0.8 - 0.4},
		{-10, -1.0 + 0.5},
	}

	signals := []models.IndicatorSignal{
		sig("RSI", "1h", models.DirectionLong, 1, 0.5),
		sig("MACD", "1h", models.DirectionShort, 1, 0.5),
		sig("EMA", "4h", models.DirectionLong, 1, 0.5),
		sig("BB", "4h", models.DirectionShort, 1, 0.5),
	}
	for _, tt := range tests {
		res := e.Score(signals, tt.sentiment)
		assert.InDelta(t, tt.want, res.Breakdown[DiagSentiment], 1e-9, "sentiment %d", tt.sentiment)
		// balanced signals: score is the prior alone
		assert.InDelta(t, tt.want, res.Score, 1e-9, "sentiment %d", tt.sentiment)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	e := newTestEngine(t)
	signals := []models.IndicatorSignal{
		sig("RSI", "1h", models.DirectionLong, 1.0, 0.3),
		sig("MACD", "1h", models.DirectionLong, 1.2, 0.7),
		sig("EMA", "1h", models.DirectionLong, 0.8, 0.9),
		sig("BB", "15min", models.DirectionShort, 1.0, 0.2),
		sig("STOCH", "15min", models.DirectionShort, 0.9, 0.6),
		sig("ADX", "15min", models.DirectionShort, 1.1, 0.5),
	}

	first := e.Score(signals, 4)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, e.Score(signals, 4))
	}
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero clamp", func(c *Config) { c.BalanceClampRatio = 0 }},
		{"clamp above one", func(c *Config) { c.BalanceClampRatio = 1.5 }},
		{"zero confluence", func(c *Config) { c.MinConfluence = 0 }},
		{"cooccurrence below three", func(c *Config) { c.CooccurrenceMin = 2 }},
		{"penalty above weight", func(c *Config) { c.SentimentPenalty = 0.2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewEngine(cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
