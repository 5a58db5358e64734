package calculate

import (
	"math"

	"github.com/Alias1177/SignalScanner/models"
)

// BollingerBands returns the upper, middle and lower band
func BollingerBands(candles []models.Candle, period int, stdDev float64) (float64, float64, float64) {
	if len(candles) == 0 {
		return 0, 0, 0
	}
	if period <= 0 || len(candles) < period {
		last := candles[len(candles)-1].Close
		return last, last, last
	}

	window := Closes(candles[len(candles)-period:])
	middle := Average(window)

	var variance float64
	for _, c := range window {
		variance += (c - middle) * (c - middle)
	}
	sd := math.Sqrt(variance / float64(period))

	return middle + sd*stdDev, middle, middle - sd*stdDev
}

func trueRange(cur, prev models.Candle) float64 {
	return math.Max(cur.High-cur.Low,
		math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}

// ATR is the average true range over the last period candles
func ATR(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < 2 {
		return 0
	}

	ranges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		ranges = append(ranges, trueRange(candles[i], candles[i-1]))
	}
	return SMA(ranges, period)
}

// ADX returns the average directional index with +DI and -DI
func ADX(candles []models.Candle, period int) (float64, float64, float64) {
	if period <= 0 || len(candles) < period*2 {
		return 0, 0, 0
	}

	n := len(candles) - 1
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)

	for i := 1; i < len(candles); i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i-1] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i-1] = downMove
		}
		tr[i-1] = trueRange(candles[i], candles[i-1])
	}

	var smPlus, smMinus, smTR float64
	for i := 0; i < period; i++ {
		smPlus += plusDM[i]
		smMinus += minusDM[i]
		smTR += tr[i]
	}

	plusDI, minusDI, adx := directional(smPlus, smMinus, smTR)
	for i := period; i < n; i++ {
		smPlus = smPlus - smPlus/float64(period) + plusDM[i]
		smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		smTR = smTR - smTR/float64(period) + tr[i]

		var dx float64
		plusDI, minusDI, dx = directional(smPlus, smMinus, smTR)
		adx = (float64(period-1)*adx + dx) / float64(period)
	}
	return adx, plusDI, minusDI
}

func directional(plusDM, minusDM, tr float64) (plusDI, minusDI, dx float64) {
	if tr == 0 {
		return 0, 0, 0
	}
	plusDI = plusDM / tr * 100
	minusDI = minusDM / tr * 100
	if plusDI+minusDI == 0 {
		return plusDI, minusDI, 0
	}
	return plusDI, minusDI, math.Abs(plusDI-minusDI) / (plusDI + minusDI) * 100
}
