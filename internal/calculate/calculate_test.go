package calculate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/SignalScanner/models"
)

func trend(n int, start, step float64) []models.Candle {
	candles := make([]models.Candle, n)
	for i := range candles {
		c := start + float64(i)*step
		candles[i] = models.Candle{Open: c - step/2, High: c + 1, Low: c - 1, Close: c, Volume: 100}
	}
	return candles
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name    string
		candles []models.Candle
		check   func(t *testing.T, v float64)
	}{
		{"not enough data", trend(5, 100, 1), func(t *testing.T, v float64) { assert.Equal(t, 50.0, v) }},
		{"only gains", trend(30, 100, 1), func(t *testing.T, v float64) { assert.Equal(t, 100.0, v) }},
		{"only losses", trend(30, 100, -1), func(t *testing.T, v float64) { assert.Equal(t, 0.0, v) }},
		{"flat", trend(30, 100, 0), func(t *testing.T, v float64) { assert.Equal(t, 50.0, v) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, RSI(tt.candles, 14))
		})
	}
}

func TestEMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	assert.Equal(t, 5.0, EMA(values, 10), "short input returns last value")
	assert.Equal(t, 2.0, EMA(values[:3], 3))
	// seed 2, then (4-2)*0.5+2 = 3, (5-3)*0.5+3 = 4
	assert.InDelta(t, 4.0, EMA(values, 3), 1e-12)
	assert.Len(t, EMASeries(values, 3), 3)
	assert.Equal(t, 4.5, SMA(values, 2))
}

func TestMACDDirection(t *testing.T) {
	up := trend(80, 100, 0.5)
	macd, _, _ := MACD(up, 12, 26, 9)
	assert.Greater(t, macd, 0.0)

	down := trend(80, 200, -0.5)
	macd, _, _ = MACD(down, 12, 26, 9)
	assert.Less(t, macd, 0.0)

	macd, signal, hist := MACD(trend(20, 100, 1), 12, 26, 9)
	assert.Zero(t, macd)
	assert.Zero(t, signal)
	assert.Zero(t, hist)
}

func TestBollingerBands(t *testing.T) {
	flat := trend(30, 100, 0)
	upper, middle, lower := BollingerBands(flat, 20, 2)
	assert.Equal(t, 100.0, upper)
	assert.Equal(t, 100.0, middle)
	assert.Equal(t, 100.0, lower)

	upper, middle, lower = BollingerBands(trend(30, 100, 1), 20, 2)
	assert.Greater(t, upper, middle)
	assert.Less(t, lower, middle)
	assert.InDelta(t, upper-middle, middle-lower, 1e-9)
}

func TestStochasticBounds(t *testing.T) {
	k, d := Stochastic(trend(40, 100, 1), 14, 3)
	assert.InDelta(t, 100*14.0/15.0, k, 1e-9)
	assert.GreaterOrEqual(t, d, 0.0)
	assert.LessOrEqual(t, d, 100.0)

	k, d = Stochastic(trend(5, 100, 1), 14, 3)
	assert.Equal(t, 50.0, k)
	assert.Equal(t, 50.0, d)
}

func TestATRAndADX(t *testing.T) {
	candles := trend(60, 100, 1)
	// every true range is max(2, |101-prev close|=2, |99-prev|=0) = 2
	assert.InDelta(t, 2.0, ATR(candles, 14), 1e-12)

	adx, plusDI, minusDI := ADX(candles, 14)
	assert.Greater(t, plusDI, minusDI)
	assert.Greater(t, adx, 50.0)

	adx, _, _ = ADX(trend(10, 100, 1), 14)
	assert.Zero(t, adx)
}

func TestVolume(t *testing.T) {
	candles := trend(25, 100, 1)
	assert.Equal(t, 2500.0, OBV(candles))
	assert.InDelta(t, 1.0, VolumeRatio(candles, 20), 1e-12)

	candles[len(candles)-1].Volume = 300
	assert.InDelta(t, 3.0, VolumeRatio(candles, 20), 1e-12)

	candles[len(candles)-1].Volume = 0
	assert.Zero(t, OBV(candles))
	assert.Zero(t, VolumeRatio(candles, 20))
}

func TestCompute(t *testing.T) {
	assert.Nil(t, Compute(trend(4, 100, 1), DefaultParams()))

	r := Compute(trend(100, 100, 1), DefaultParams())
	require.NotNil(t, r)
	assert.Equal(t, 199.0, r.Close)
	assert.Equal(t, 100.0, r.RSI)
	assert.Greater(t, r.MACD, 0.0)
	assert.Greater(t, r.Close, r.EMA)
	assert.Greater(t, r.EMA, r.SMA)
	assert.InDelta(t, 4.0/195.0*100, r.PriceChange, 1e-9)
	assert.InDelta(t, 1.0, r.VolatilityRatio, 1e-12)
	assert.False(t, math.IsNaN(r.ADX))
}

func TestAdapt(t *testing.T) {
	p := DefaultParams()

	calm := trend(60, 100, 1)
	assert.Equal(t, p, Adapt(calm, p))

	wild := trend(60, 100, 1)
	for i := 55; i < 60; i++ {
		wild[i].High += 10
		wild[i].Low -= 10
	}
	adapted := Adapt(wild, p)
	assert.Equal(t, p.RSIPeriod-2, adapted.RSIPeriod)
	assert.Equal(t, p.EMAPeriod-2, adapted.EMAPeriod)
	assert.InDelta(t, p.BBStdDev+0.3, adapted.BBStdDev, 1e-12)
}

func candle(open, high, low, close float64) models.Candle {
	return models.Candle{Open: open, High: high, Low: low, Close: close}
}

func patternNames(t *testing.T, patterns []Pattern) map[string]models.Direction {
	t.Helper()
	out := map[string]models.Direction{}
	for _, p := range patterns {
		out[p.Name] = p.Direction
		assert.True(t, p.Strength >= 0 && p.Strength <= 1, p.Name)
	}
	return out
}

func TestCandlePatterns(t *testing.T) {
	lead := []models.Candle{
		candle(100, 101, 99, 100.5),
		candle(100.5, 101.5, 99.5, 100),
	}

	tests := []struct {
		name    string
		candles []models.Candle
		want    string
		dir     models.Direction
	}{
		{
			name: "bullish engulfing",
			candles: append(append([]models.Candle{}, lead...),
				candle(100, 100.5, 99, 99.5),
				candle(100, 100.2, 98.8, 99),
				candle(98.8, 101, 98.7, 100.5)),
			want: "BULLISH_ENGULFING",
			dir:  models.DirectionLong,
		},
		{
			name: "hammer",
			candles: append(append([]models.Candle{}, lead...),
				candle(100, 100.5, 99.5, 100.2),
				candle(100.2, 100.6, 99.8, 100),
				candle(100, 100.25, 97, 100.2)),
			want: "HAMMER",
			dir:  models.DirectionLong,
		},
		{
			name: "three black crows",
			candles: append(append([]models.Candle{}, lead...),
				candle(100, 100.1, 98.9, 99),
				candle(99, 99.1, 97.9, 98),
				candle(98, 98.1, 96.9, 97)),
			want: "THREE_BLACK_CROWS",
			dir:  models.DirectionShort,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := patternNames(t, CandlePatterns(tt.candles))
			require.Contains(t, got, tt.want)
			assert.Equal(t, tt.dir, got[tt.want])
		})
	}

	assert.Nil(t, CandlePatterns(lead))
}

func TestNetPattern(t *testing.T) {
	dir, strength := NetPattern([]Pattern{
		{Direction: models.DirectionShort, Strength: 0.9},
		{Direction: models.DirectionShort, Strength: 0.8},
		{Direction: models.DirectionLong, Strength: 0.2},
	})
	assert.Equal(t, models.DirectionShort, dir)
	assert.Equal(t, 1.0, strength)

	dir, strength = NetPattern(nil)
	assert.Equal(t, models.DirectionNeutral, dir)
	assert.Zero(t, strength)
}
