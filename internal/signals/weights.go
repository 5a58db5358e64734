package signals

import (
	"errors"
	"fmt"
	"sort"
)

var ErrInvalidWeights = errors.New("invalid indicator weights")

const (
	RSI    = "RSI"
	MACD   = "MACD"
	EMA    = "EMA"
	SMA    = "SMA"
	BB     = "BB"
	STOCH  = "STOCH"
	ADX    = "ADX"
	VOLUME = "VOLUME"

	// net of the candle patterns completed by the last candle
	PATTERN = "PATTERN"

	MinWeight = 0.1
	MaxWeight = 2.0
)

// Indicators lists every indicator the source can emit
var Indicators = []string{RSI, MACD, EMA, SMA, BB, STOCH, ADX, VOLUME, PATTERN}

// Weights maps an indicator name to the weight its signals carry
type Weights map[string]float64

func DefaultWeights() Weights {
	return Weights{
		RSI:     1.0,
		MACD:    1.2,
		EMA:     0.8,
		SMA:     0.6,
		BB:      1.0,
		STOCH:   0.9,
		ADX:     1.1,
		VOLUME:  0.7,
		PATTERN: 0.8,
	}
}

// Validate rejects unknown indicators and weights outside [MinWeight, MaxWeight]
func (w Weights) Validate() error {
	known := make(map[string]bool, len(Indicators))
	for _, name := range Indicators {
		known[name] = true
	}

	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !known[name] {
			return fmt.Errorf("%w: unknown indicator %q", ErrInvalidWeights, name)
		}
		if v := w[name]; !(v >= MinWeight && v <= MaxWeight) {
			return fmt.Errorf("%w: %s weight %v outside [%v, %v]", ErrInvalidWeights, name, v, MinWeight, MaxWeight)
		}
	}
	return nil
}

// Merge returns a copy of w with the entries of override applied
func (w Weights) Merge(override Weights) Weights {
	out := make(Weights, len(w)+len(override))
	for k, v := range w {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func (w Weights) get(name string) float64 {
	if v, ok := w[name]; ok {
		return v
	}
	return 1.0
}
