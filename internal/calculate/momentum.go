package calculate

import "github.com/Alias1177/SignalScanner/models"

// RSI is the Wilder relative strength index of the closes. Returns 50 when
// there is not enough data.
func RSI(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 50.0
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// MACD returns the MACD line, its signal line and the histogram
func MACD(candles []models.Candle, fastPeriod, slowPeriod, signalPeriod int) (float64, float64, float64) {
	closes := Closes(candles)
	if fastPeriod <= 0 || slowPeriod <= fastPeriod || signalPeriod <= 0 ||
		len(closes) < slowPeriod+signalPeriod {
		return 0, 0, 0
	}

	fast := EMASeries(closes, fastPeriod)
	slow := EMASeries(closes, slowPeriod)

	// both series are aligned to the end of closes
	offset := len(fast) - len(slow)
	history := make([]float64, len(slow))
	for i := range slow {
		history[i] = fast[i+offset] - slow[i]
	}

	macdLine := history[len(history)-1]
	signalLine := 0.0
	if len(history) >= signalPeriod {
		signalLine = EMA(history, signalPeriod)
	}
	return macdLine, signalLine, macdLine - signalLine
}

// Stochastic returns %K and %D (SMA of the last dPeriod %K values)
func Stochastic(candles []models.Candle, kPeriod, dPeriod int) (float64, float64) {
	if kPeriod <= 0 || dPeriod <= 0 || len(candles) < kPeriod {
		return 50.0, 50.0
	}

	k := stochasticK(candles, len(candles)-1, kPeriod)

	count := min(dPeriod, len(candles)-kPeriod+1)
	var sum float64
	for i := 0; i < count; i++ {
		sum += stochasticK(candles, len(candles)-1-i, kPeriod)
	}
	return k, sum / float64(count)
}

func stochasticK(candles []models.Candle, end, period int) float64 {
	highest, lowest := candles[end].High, candles[end].Low
	for i := end - period + 1; i <= end; i++ {
		highest = max(highest, candles[i].High)
		lowest = min(lowest, candles[i].Low)
	}
	if highest-lowest <= 0 {
		return 50.0
	}
	return (candles[end].Close - lowest) / (highest - lowest) * 100
}
