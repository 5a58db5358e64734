package models

import "time"

// TimeframeDuration returns the length of one candle for a Twelve Data interval
func TimeframeDuration(interval string) time.Duration {
	switch interval {
	case "1min":
		return time.Minute
	case "5min":
		return 5 * time.Minute
	case "15min":
		return 15 * time.Minute
	case "30min":
		return 30 * time.Minute
	case "45min":
		return 45 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "8h":
		return 8 * time.Hour
	case "1day":
		return 24 * time.Hour
	case "1week":
		return 7 * 24 * time.Hour
	}
	return 0
}

// CandlesForTimeframe picks how many candles to request so that slower
// indicators (MACD, ADX) have enough history on every interval.
func CandlesForTimeframe(interval string, minimum int) int {
	count := minimum
	switch interval {
	case "1min", "5min":
		// Intraday noise, take a longer window
		count = minimum * 2
	case "1day", "1week":
		count = minimum + 10
	}
	if count < 40 {
		count = 40
	}
	return count
}
