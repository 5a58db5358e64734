package signals

import (
	"math"

	"github.com/Alias1177/SignalScanner/internal/calculate"
	"github.com/Alias1177/SignalScanner/models"
)

// Thresholds decide when a reading turns into a directional signal
type Thresholds struct {
	RSIOversold      float64 `yaml:"rsi_oversold"`
	RSIOverbought    float64 `yaml:"rsi_overbought"`
	StochOversold    float64 `yaml:"stoch_oversold"`
	StochOverbought  float64 `yaml:"stoch_overbought"`
	BBLowerZone      float64 `yaml:"bb_lower_zone"` // %B below this is a long
	BBUpperZone      float64 `yaml:"bb_upper_zone"` // %B above this is a short
	ADXTrend         float64 `yaml:"adx_trend"`
	VolumeSpikeRatio float64 `yaml:"volume_spike_ratio"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		RSIOversold:      30,
		RSIOverbought:    70,
		StochOversold:    20,
		StochOverbought:  80,
		BBLowerZone:      0.2,
		BBUpperZone:      0.8,
		ADXTrend:         25,
		VolumeSpikeRatio: 1.5,
	}
}

// Evaluate turns one timeframe's readings into indicator signals. Indicators
// without a directional reading are left out.
func Evaluate(r *calculate.Readings, timeframe string, weights Weights, th Thresholds) []models.IndicatorSignal {
	if r == nil {
		return nil
	}

	var out []models.IndicatorSignal
	emit := func(name string, dir models.Direction, strength float64) {
		strength = clamp01(strength)
		if dir == models.DirectionNeutral || strength == 0 {
			return
		}
		out = append(out, models.IndicatorSignal{
			Name:      name,
			Timeframe: timeframe,
			Direction: dir,
			Weight:    weights.get(name),
			Strength:  strength,
		})
	}

	switch {
	case r.RSI < th.RSIOversold:
		emit(RSI, models.DirectionLong, (th.RSIOversold-r.RSI)/th.RSIOversold)
	case r.RSI > th.RSIOverbought:
		emit(RSI, models.DirectionShort, (r.RSI-th.RSIOverbought)/(100-th.RSIOverbought))
	}

	if r.MACDHist != 0 {
		emit(MACD, models.DirectionFromScore(r.MACDHist), relative(r.MACDHist, r.ATR))
	}

	emit(EMA, models.DirectionFromScore(r.Close-r.EMA), relative(r.Close-r.EMA, r.ATR))
	emit(SMA, models.DirectionFromScore(r.Close-r.SMA), relative(r.Close-r.SMA, r.ATR))

	if width := r.BBUpper - r.BBLower; width > 0 {
		pctB := (r.Close - r.BBLower) / width
		switch {
		case pctB < th.BBLowerZone:
			emit(BB, models.DirectionLong, (th.BBLowerZone-pctB)/th.BBLowerZone)
		case pctB > th.BBUpperZone:
			emit(BB, models.DirectionShort, (pctB-th.BBUpperZone)/(1-th.BBUpperZone))
		}
	}

	switch {
	case r.StochK < th.StochOversold && r.StochK > r.StochD:
		emit(STOCH, models.DirectionLong, (th.StochOversold-r.StochK)/th.StochOversold)
	case r.StochK > th.StochOverbought && r.StochK < r.StochD:
		emit(STOCH, models.DirectionShort, (r.StochK-th.StochOverbought)/(100-th.StochOverbought))
	}

	if r.ADX >= th.ADXTrend {
		emit(ADX, models.DirectionFromScore(r.PlusDI-r.MinusDI), r.ADX/50)
	}

	if r.VolumeRatio >= th.VolumeSpikeRatio {
		emit(VOLUME, models.DirectionFromScore(r.PriceChange), (r.VolumeRatio-1)/2)
	}

	dir, strength := calculate.NetPattern(r.Patterns)
	emit(PATTERN, dir, strength)

	return out
}

// relative scales a price distance by ATR; without ATR a half-strength signal is used
func relative(distance, atr float64) float64 {
	if atr <= 0 {
		return 0.5
	}
	return math.Abs(distance) / atr
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
