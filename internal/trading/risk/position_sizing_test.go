package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/SignalScanner/models"
)

func newCalculator(t *testing.T) *Calculator {
	t.Helper()
	c, err := NewCalculator(DefaultConfig())
	require.NoError(t, err)
	return c
}

func TestSize(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		riskReward float64
		volatility float64
		winRate    float64
		want       models.PositionSizing
	}{
		{
			// p=0.7 q=0.3 f=(1.4-0.3)/2=0.55; 0.55*0.9*0.25=0.12375 -> capped 0.10; risk min(0.05,0.02)
			name: "capped", confidence: 70, riskReward: 2, volatility: 0.1,
			want: models.PositionSizing{SuggestedSize: 0.10, MaxRisk: 0.02, KellyFraction: 0.55},
		},
		{
			// p=0.55 q=0.45 f=(0.55-0.45)/1=0.1; 0.1*0.5*0.25=0.0125; risk 0.0125
			name: "high volatility floor", confidence: 55, riskReward: 1, volatility: 0.9,
			want: models.PositionSizing{SuggestedSize: 0.0125, MaxRisk: 0.0125, KellyFraction: 0.1},
		},
		{
			name: "negative edge", confidence: 40, riskReward: 1, volatility: 0,
			want: models.PositionSizing{},
		},
		{
			name: "zero payoff", confidence: 90, riskReward: 0, volatility: 0,
			want: models.PositionSizing{},
		},
		{
			name: "negative payoff", confidence: 90, riskReward: -1, volatility: 0,
			want: models.PositionSizing{},
		},
		{
			// winRate 0.6 fallback: f=(0.6*1.5-0.4)/1.5=1/3; 1/3*1*0.25
			name: "win rate fallback", confidence: 0, riskReward: 1.5, volatility: 0, winRate: 0.6,
			want: models.PositionSizing{SuggestedSize: 0.25 / 3, MaxRisk: 0.02, KellyFraction: 1.0 / 3},
		},
		{
			// p capped at 0.95: f=(0.95*1-0.05)/1=0.9; 0.9*0.25 capped to 0.1
			name: "probability cap", confidence: 100, riskReward: 1, volatility: 0,
			want: models.PositionSizing{SuggestedSize: 0.10, MaxRisk: 0.02, KellyFraction: 0.9},
		},
	}

	c := newCalculator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Size(tt.confidence, tt.riskReward, tt.volatility, tt.winRate)
			assert.InDelta(t, tt.want.SuggestedSize, got.SuggestedSize, 1e-12)
			assert.InDelta(t, tt.want.MaxRisk, got.MaxRisk, 1e-12)
			assert.InDelta(t, tt.want.KellyFraction, got.KellyFraction, 1e-12)
		})
	}
}

func TestSizeBounds(t *testing.T) {
	c := newCalculator(t)
	for conf := 0.0; conf <= 100; conf += 2.5 {
		for _, b := range []float64{0.5, 1, 2, 3, 5} {
			for _, vol := range []float64{0, 0.05, 0.5, 2, math.NaN()} {
				got := c.Size(conf, b, vol, 0)
				require.GreaterOrEqual(t, got.SuggestedSize, 0.0)
				require.LessOrEqual(t, got.SuggestedSize, 0.10)
				require.GreaterOrEqual(t, got.MaxRisk, 0.0)
				require.LessOrEqual(t, got.MaxRisk, 0.02)
			}
		}
	}
}

func TestVolatilityFromCandles(t *testing.T) {
	candles := make([]models.Candle, 30)
	for i := range candles {
		candles[i] = models.Candle{High: 101, Low: 99, Close: 100}
	}
	assert.InDelta(t, 0.02, VolatilityFromCandles(candles, 14), 1e-12)
	assert.Zero(t, VolatilityFromCandles(nil, 14))

	c := newCalculator(t)
	assert.InDelta(t, 0.02, c.Volatility(candles), 1e-12)
}

func TestLevels(t *testing.T) {
	c := newCalculator(t)

	long := c.Levels(100, 2, models.DirectionLong)
	assert.Equal(t, 97.0, long.StopLoss)
	assert.Equal(t, 106.0, long.TakeProfit)
	assert.Equal(t, 2.0, long.RiskRewardRatio)

	short := c.Levels(100, 2, models.DirectionShort)
	assert.Equal(t, 103.0, short.StopLoss)
	assert.Equal(t, 94.0, short.TakeProfit)

	assert.Equal(t, Levels{}, c.Levels(100, 2, models.DirectionNeutral))
}

func TestNewCalculatorInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRiskPerTrade = 0.5
	_, err := NewCalculator(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.KellyMultiplier = 0
	_, err = NewCalculator(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
