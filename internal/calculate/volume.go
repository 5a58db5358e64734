package calculate

import "github.com/Alias1177/SignalScanner/models"

// OBV is the on-balance volume; 0 when the feed carries no volume
func OBV(candles []models.Candle) float64 {
	if len(candles) < 2 || candles[len(candles)-1].Volume == 0 {
		return 0
	}

	obv := float64(candles[0].Volume)
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			obv += float64(candles[i].Volume)
		case candles[i].Close < candles[i-1].Close:
			obv -= float64(candles[i].Volume)
		}
	}
	return obv
}

// VolumeRatio compares the last candle's volume with the average of the
// previous period candles. Returns 0 without volume data.
func VolumeRatio(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	last := candles[len(candles)-1].Volume
	if last == 0 {
		return 0
	}

	var sum float64
	for _, c := range candles[len(candles)-1-period : len(candles)-1] {
		sum += float64(c.Volume)
	}
	if sum == 0 {
		return 0
	}
	return float64(last) / (sum / float64(period))
}
