package calculate

import (
	"math"

	"github.com/Alias1177/SignalScanner/models"
)

// Pattern is a candle formation completed by the last candle
type Pattern struct {
	Name      string
	Direction models.Direction
	Strength  float64 // 0-1
}

type candleShape struct {
	body, upper, lower float64
	bullish            bool
}

func shape(c models.Candle) candleShape {
	return candleShape{
		body:    math.Abs(c.Close - c.Open),
		upper:   c.High - math.Max(c.Open, c.Close),
		lower:   math.Min(c.Open, c.Close) - c.Low,
		bullish: c.Close > c.Open,
	}
}

// CandlePatterns finds reversal and continuation formations at the end of
// candles ordered oldest first. Neutral formations such as the doji are not
// reported.
func CandlePatterns(candles []models.Candle) []Pattern {
	if len(candles) < 5 {
		return nil
	}
	n := len(candles)
	c3, c4, c5 := candles[n-3], candles[n-2], candles[n-1]
	s3, s4, s5 := shape(c3), shape(c4), shape(c5)

	var avgBody float64
	for _, c := range candles[n-5:] {
		avgBody += shape(c).body
	}
	avgBody /= 5
	if avgBody == 0 {
		return nil
	}

	var out []Pattern
	add := func(name string, dir models.Direction, strength float64) {
		out = append(out, Pattern{Name: name, Direction: dir, Strength: unit(strength)})
	}

	// Engulfing: the last body swallows a smaller opposite one
	if s4.body > 0 && s5.body > s4.body*1.2 {
		switch {
		case s5.bullish && !s4.bullish && c5.Open < c4.Close && c5.Close > c4.Open:
			add("BULLISH_ENGULFING", models.DirectionLong, s5.body/s4.body-1)
		case !s5.bullish && s4.bullish && c5.Open > c4.Close && c5.Close < c4.Open:
			add("BEARISH_ENGULFING", models.DirectionShort, s5.body/s4.body-1)
		}
	}

	if s5.body > 0 {
		if s5.lower > s5.body*2 && s5.upper < s5.body*0.5 {
			add("HAMMER", models.DirectionLong, s5.lower/s5.body/4)
		}
		if s5.upper > s5.body*2 && s5.lower < s5.body*0.5 {
			add("SHOOTING_STAR", models.DirectionShort, s5.upper/s5.body/4)
		}
	}

	if s3.body > 0 && s4.body > 0 && s5.body > 0 && s3.bullish == s4.bullish && s4.bullish == s5.bullish {
		avg := (s3.body + s4.body + s5.body) / 3
		spread := math.Abs(s3.body-avg) + math.Abs(s4.body-avg) + math.Abs(s5.body-avg)
		consistency := 1 - spread/(avg*3)
		if s5.bullish {
			add("THREE_WHITE_SOLDIERS", models.DirectionLong, consistency)
		} else {
			add("THREE_BLACK_CROWS", models.DirectionShort, consistency)
		}
	}

	// Stars: big body, small indecisive body, big opposite body closing past the first one's midpoint
	if n >= 7 && s3.body > avgBody && s4.body < avgBody*0.3 && s5.body > avgBody {
		mid := c3.Open + (c3.Close-c3.Open)/2
		strength := 1 - s4.body/((s3.body+s5.body)/2)
		switch {
		case s3.bullish && !s5.bullish && c4.Open > c3.Close && c5.Close < mid:
			add("EVENING_STAR", models.DirectionShort, strength)
		case !s3.bullish && s5.bullish && c4.Open < c3.Close && c5.Close > mid:
			add("MORNING_STAR", models.DirectionLong, strength)
		}
	}

	out = append(out, doubleTopBottom(candles, avgBody)...)
	return out
}

// doubleTopBottom looks for two similar swing highs (lows) with the last
// close breaking the valley (peak) between them
func doubleTopBottom(candles []models.Candle, avgBody float64) []Pattern {
	if len(candles) < 10 {
		return nil
	}
	last := candles[len(candles)-1].Close

	high := func(i int) float64 { return candles[i].High }
	low := func(i int) float64 { return -candles[i].Low }

	var out []Pattern
	if a, b, ok := lastTwoSwings(candles, high); ok && math.Abs(high(a)-high(b)) < avgBody*0.5 {
		valley := math.Inf(1)
		for i := a + 1; i < b; i++ {
			valley = math.Min(valley, candles[i].Low)
		}
		if last < valley {
			out = append(out, Pattern{Name: "DOUBLE_TOP", Direction: models.DirectionShort, Strength: 0.5})
		}
	}
	if a, b, ok := lastTwoSwings(candles, low); ok && math.Abs(low(a)-low(b)) < avgBody*0.5 {
		peak := math.Inf(-1)
		for i := a + 1; i < b; i++ {
			peak = math.Max(peak, candles[i].High)
		}
		if last > peak {
			out = append(out, Pattern{Name: "DOUBLE_BOTTOM", Direction: models.DirectionLong, Strength: 0.5})
		}
	}
	return out
}

// lastTwoSwings returns the indexes of the last two local maxima of value
// that are at least three candles apart
func lastTwoSwings(candles []models.Candle, value func(int) float64) (int, int, bool) {
	var swings []int
	for i := 2; i < len(candles)-2; i++ {
		v := value(i)
		if v > value(i-1) && v > value(i-2) && v > value(i+1) && v > value(i+2) {
			swings = append(swings, i)
		}
	}
	if len(swings) < 2 {
		return 0, 0, false
	}
	a, b := swings[len(swings)-2], swings[len(swings)-1]
	return a, b, b-a >= 3
}

// NetPattern folds patterns into one direction and strength
func NetPattern(patterns []Pattern) (models.Direction, float64) {
	var net float64
	for _, p := range patterns {
		net += float64(p.Direction.Sign()) * p.Strength
	}
	return models.DirectionFromScore(net), unit(math.Abs(net))
}

func unit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}
