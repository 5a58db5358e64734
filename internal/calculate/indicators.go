package calculate

import "github.com/Alias1177/SignalScanner/models"

// Params are the indicator periods used by Compute
type Params struct {
	RSIPeriod        int     `yaml:"rsi_period"`
	MACDFastPeriod   int     `yaml:"macd_fast_period"`
	MACDSlowPeriod   int     `yaml:"macd_slow_period"`
	MACDSignalPeriod int     `yaml:"macd_signal_period"`
	EMAPeriod        int     `yaml:"ema_period"`
	SMAPeriod        int     `yaml:"sma_period"`
	BBPeriod         int     `yaml:"bb_period"`
	BBStdDev         float64 `yaml:"bb_std_dev"`
	StochKPeriod     int     `yaml:"stoch_k_period"`
	StochDPeriod     int     `yaml:"stoch_d_period"`
	ADXPeriod        int     `yaml:"adx_period"`
	ATRPeriod        int     `yaml:"atr_period"`
	VolumePeriod     int     `yaml:"volume_period"`
	// Adaptive shortens or lengthens periods with the short/long ATR ratio
	Adaptive bool `yaml:"adaptive"`
}

func DefaultParams() Params {
	return Params{
		RSIPeriod:        14,
		MACDFastPeriod:   12,
		MACDSlowPeriod:   26,
		MACDSignalPeriod: 9,
		EMAPeriod:        20,
		SMAPeriod:        50,
		BBPeriod:         20,
		BBStdDev:         2.0,
		StochKPeriod:     14,
		StochDPeriod:     3,
		ADXPeriod:        14,
		ATRPeriod:        14,
		VolumePeriod:     20,
		Adaptive:         true,
	}
}

// Readings is one snapshot of indicator values at the last candle
type Readings struct {
	Close float64

	RSI        float64
	MACD       float64
	MACDSignal float64
	MACDHist   float64
	EMA        float64
	SMA        float64
	BBUpper    float64
	BBMiddle   float64
	BBLower    float64
	StochK     float64
	StochD     float64
	ADX        float64
	PlusDI     float64
	MinusDI    float64
	ATR        float64
	OBV        float64
	// last volume over its recent average, 0 without volume data
	VolumeRatio float64
	// close change over the last 5 candles, in percent
	PriceChange float64
	// ATR(5) / ATR(20)
	VolatilityRatio float64

	Patterns []Pattern
}

// Compute calculates all indicators for candles ordered oldest first.
// Returns nil with fewer than 5 candles.
func Compute(candles []models.Candle, p Params) *Readings {
	if len(candles) < 5 {
		return nil
	}
	if p.Adaptive {
		p = Adapt(candles, p)
	}

	closes := Closes(candles)
	r := &Readings{Close: closes[len(closes)-1]}

	r.RSI = RSI(candles, p.RSIPeriod)
	r.MACD, r.MACDSignal, r.MACDHist = MACD(candles, p.MACDFastPeriod, p.MACDSlowPeriod, p.MACDSignalPeriod)
	r.EMA = EMA(closes, p.EMAPeriod)
	r.SMA = SMA(closes, p.SMAPeriod)
	r.BBUpper, r.BBMiddle, r.BBLower = BollingerBands(candles, p.BBPeriod, p.BBStdDev)
	r.StochK, r.StochD = Stochastic(candles, p.StochKPeriod, p.StochDPeriod)
	r.ADX, r.PlusDI, r.MinusDI = ADX(candles, p.ADXPeriod)
	r.ATR = ATR(candles, p.ATRPeriod)
	r.OBV = OBV(candles)
	r.VolumeRatio = VolumeRatio(candles, p.VolumePeriod)
	r.Patterns = CandlePatterns(candles)

	first := closes[len(closes)-5]
	if first != 0 {
		r.PriceChange = (r.Close - first) / first * 100
	}
	if atr20 := ATR(candles, 20); atr20 > 0 {
		r.VolatilityRatio = ATR(candles, 5) / atr20
	}
	return r
}

// Adapt tunes the periods to current volatility: faster RSI and EMA when
// short-term ATR runs well above the long-term one, slower when it is quiet.
func Adapt(candles []models.Candle, p Params) Params {
	if len(candles) < 30 {
		return p
	}
	atr20 := ATR(candles, 20)
	if atr20 == 0 {
		return p
	}
	ratio := ATR(candles, 5) / atr20

	switch {
	case ratio > 1.5:
		p.RSIPeriod = max(5, p.RSIPeriod-2)
		p.EMAPeriod = max(8, p.EMAPeriod-2)
		p.BBStdDev = min(3.0, p.BBStdDev+0.3)
	case ratio < 0.7:
		p.RSIPeriod = min(21, p.RSIPeriod+2)
		p.EMAPeriod = min(30, p.EMAPeriod+2)
		p.BBStdDev = max(1.8, p.BBStdDev-0.3)
	}
	return p
}
