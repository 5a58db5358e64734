package scoring

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/SignalScanner/models"
)

func newTestEstimator(t *testing.T) *Estimator {
	t.Helper()
	e, err := NewEstimator(DefaultConfidenceConfig())
	require.NoError(t, err)
	return e
}

func TestConfidenceAlwaysInBand(t *testing.T) {
	est := newTestEstimator(t)
	r := rand.New(rand.NewSource(11))
	timeframes := []string{"1min", "5min", "15min", "1h", "4h", "1day", "weird"}

	for i := 0; i < 2000; i++ {
		n := r.Intn(30)
		signals := make([]models.IndicatorSignal, 0, n)
		for j := 0; j < n; j++ {
			signals = append(signals, sig("RSI", timeframes[r.Intn(len(timeframes))], randomDirection(r), r.Float64()*2, r.Float64()*1.5))
		}
		score := (r.Float64() - 0.5) * 40
		count := r.Intn(40)

		c := est.Confidence(score, count, signals)
		require.GreaterOrEqual(t, c, 5.0)
		require.LessOrEqual(t, c, 95.0)
	}

	assert.Equal(t, 5.0, est.Confidence(0, 0, nil))
	strong := []models.IndicatorSignal{
		sig("RSI", "1h", models.DirectionLong, 1, 1),
		sig("MACD", "4h", models.DirectionLong, 1, 1),
		sig("EMA", "1day", models.DirectionLong, 1, 1),
	}
	assert.Equal(t, 95.0, est.Confidence(1e9, 1e6, strong))
	assert.Equal(t, 5.0, est.Confidence(math.NaN(), 0, nil))
}

func TestConfidenceComponents(t *testing.T) {
	est := newTestEstimator(t)
	signals := []models.IndicatorSignal{
		sig("RSI", "15min", models.DirectionLong, 1, 0.5),
		sig("MACD", "15min", models.DirectionShort, 1, 0.5),
		sig("EMA", "1h", models.DirectionLong, 1, 0.5),
	}

	// magnitude 10, count 4.5, strength 5, agreement: 15min 1/2 w=1, 1h 1/1 w=1.5
	// -> (0.5+1.5)/2.5 = 0.8 -> 8, one higher timeframe -> 2, baseline 5
	got := est.Confidence(1.0, 3, signals)
	assert.InDelta(t, 10+4.5+5+8+2+5, got, 1e-9)
}

func TestEstimateDurationBand(t *testing.T) {
	est := newTestEstimator(t)
	r := rand.New(rand.NewSource(3))
	all := []string{"1min", "5min", "15min", "1h", "4h", "1day", "1h", "4h"}

	for i := 0; i < 2000; i++ {
		score := r.Float64() * 100
		var tfs []string
		for j := 0; j < r.Intn(len(all)+1); j++ {
			tfs = append(tfs, all[r.Intn(len(all))])
		}
		d := est.EstimateDuration(score, tfs)
		require.GreaterOrEqual(t, d, 30*time.Minute)
		require.LessOrEqual(t, d, 240*time.Minute)
		require.True(t, est.InDurationBand(d))
		require.GreaterOrEqual(t, int64(d/time.Millisecond), int64(1_800_000))
		require.LessOrEqual(t, int64(d/time.Millisecond), int64(14_400_000))
	}
}

func TestEstimateDuration(t *testing.T) {
	est := newTestEstimator(t)

	tests := []struct {
		name  string
		score float64
		tfs   []string
		want  time.Duration
	}{
		{"zero score", 0, nil, 30 * time.Minute},
		{"negative score counts as zero", -3, nil, 30 * time.Minute},
		{"score adds ten minutes per unit", 2.5, []string{"15min"}, 55 * time.Minute},
		{"higher timeframes add thirty minutes each", 1, []string{"1h", "4h", "15min"}, 100 * time.Minute},
		{"duplicate timeframes count once", 1, []string{"1h", "1h"}, 70 * time.Minute},
		{"capped", 50, []string{"1h", "4h", "1day"}, 240 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, est.EstimateDuration(tt.score, tt.tfs))
		})
	}
}

func TestInDurationBand(t *testing.T) {
	est := newTestEstimator(t)
	assert.False(t, est.InDurationBand(29*time.Minute))
	assert.True(t, est.InDurationBand(30*time.Minute))
	assert.True(t, est.InDurationBand(240*time.Minute))
	assert.False(t, est.InDurationBand(241*time.Minute))
}

func TestFiveLongSignalsScenario(t *testing.T) {
	engine := newTestEngine(t)
	est := newTestEstimator(t)

	signals := []models.IndicatorSignal{
		sig("RSI", "15min", models.DirectionLong, 1, 0.6),
		sig("MACD", "15min", models.DirectionLong, 1, 0.6),
		sig("EMA", "1h", models.DirectionLong, 1, 0.6),
		sig("BB", "1h", models.DirectionLong, 1, 0.6),
		sig("ADX", "4h", models.DirectionLong, 1, 0.6),
	}

	res := engine.Score(signals, 5)
	require.InDelta(t, 3.0, res.Breakdown[DiagRawScore], 1e-9)
	assert.Greater(t, res.Score, 0.0)
	assert.Equal(t, 5, res.IndicatorCount)

	conf := est.Confidence(res.Score, res.IndicatorCount, signals)
	assert.GreaterOrEqual(t, conf, 50.0)

	d := est.EstimateDuration(math.Abs(res.Score), AgreeingTimeframes(signals, models.DirectionLong))
	assert.GreaterOrEqual(t, d, 30*time.Minute)
	assert.LessOrEqual(t, d, 240*time.Minute)
}

func TestAgreeingTimeframes(t *testing.T) {
	signals := []models.IndicatorSignal{
		sig("RSI", "4h", models.DirectionLong, 1, 0.6),
		sig("MACD", "15min", models.DirectionShort, 1, 0.6),
		sig("EMA", "1h", models.DirectionLong, 1, 0.6),
		sig("BB", "1h", models.DirectionLong, 1, 0.6),
	}
	assert.Equal(t, []string{"1h", "4h"}, AgreeingTimeframes(signals, models.DirectionLong))
	assert.Equal(t, []string{"15min"}, AgreeingTimeframes(signals, models.DirectionShort))
	assert.Nil(t, AgreeingTimeframes(signals, models.DirectionNeutral))
}

func TestNewEstimatorRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfidenceConfig()
	cfg.MinDuration = 5 * time.Hour
	_, err := NewEstimator(cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfidenceConfig()
	cfg.MinConfidence = 96
	_, err = NewEstimator(cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
