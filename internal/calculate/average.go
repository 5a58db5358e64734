package calculate

import "github.com/Alias1177/SignalScanner/models"

// Closes extracts the close prices
func Closes(candles []models.Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

// Average is the arithmetic mean, 0 for an empty slice
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SMA is the simple moving average of the last period values
func SMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period <= 0 || period > len(values) {
		period = len(values)
	}
	return Average(values[len(values)-period:])
}

// EMA returns the latest exponential moving average seeded with the SMA of
// the first period values. With fewer values than period it returns the last one.
func EMA(values []float64, period int) float64 {
	series := EMASeries(values, period)
	if len(series) == 0 {
		if len(values) == 0 {
			return 0
		}
		return values[len(values)-1]
	}
	return series[len(series)-1]
}

// EMASeries returns the EMA for every index from period-1 to the end
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	sma := Average(values[:period])
	multiplier := 2.0 / float64(period+1)

	out := make([]float64, 0, len(values)-period+1)
	ema := sma
	out = append(out, ema)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out = append(out, ema)
	}
	return out
}
