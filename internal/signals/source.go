package signals

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/SignalScanner/internal/calculate"
	"github.com/Alias1177/SignalScanner/models"
)

// CandleSource fetches candles ordered oldest first
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, interval string, count int) ([]models.Candle, error)
}

// Config controls how candles become indicator signals
type Config struct {
	// minimum number of candles requested per timeframe
	CandleCount int `yaml:"candle_count"`
	// timeframe used for volatility and price fallback
	BaseTimeframe string           `yaml:"base_timeframe"`
	Params        calculate.Params `yaml:"params"`
	Thresholds    Thresholds       `yaml:"thresholds"`
	Weights       Weights          `yaml:"weights"`
}

func DefaultConfig() Config {
	return Config{
		CandleCount:   100,
		BaseTimeframe: "15min",
		Params:        calculate.DefaultParams(),
		Thresholds:    DefaultThresholds(),
		Weights:       DefaultWeights(),
	}
}

// Source computes indicator signals from market candles. It also serves
// prices and volatility for the scanner.
type Source struct {
	candles CandleSource
	prices  models.PriceSource
	cfg     Config

	mu      sync.RWMutex
	weights Weights

	logger zerolog.Logger
}

// NewSource creates a signal source over candles. If candles also implements
// models.PriceSource it is used for GetPrice, otherwise the last close of the
// base timeframe is.
func NewSource(candles CandleSource, cfg Config) (*Source, error) {
	if candles == nil {
		return nil, errors.New("signals: nil candle source")
	}
	if cfg.CandleCount <= 0 || cfg.BaseTimeframe == "" {
		return nil, fmt.Errorf("signals: candle_count and base_timeframe are required")
	}
	weights := DefaultWeights().Merge(cfg.Weights)
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	s := &Source{
		candles: candles,
		cfg:     cfg,
		weights: weights,
		logger:  log.With().Str("component", "signal_source").Logger(),
	}
	if p, ok := candles.(models.PriceSource); ok {
		s.prices = p
	}
	return s, nil
}

// Weights returns a copy of the current indicator weights
func (s *Source) Weights() Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights.Merge(nil)
}

// SetWeights merges w into the current weights after validating the result
func (s *Source) SetWeights(w Weights) (Weights, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := s.weights.Merge(w)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	s.weights = merged
	s.logger.Info().Interface("weights", merged).Msg("Updated indicator weights")
	return merged.Merge(nil), nil
}

// GetSignals evaluates every timeframe. Timeframes without data are skipped;
// any other fetch error fails the call.
func (s *Source) GetSignals(ctx context.Context, symbol string, timeframes []string) ([]models.IndicatorSignal, error) {
	weights := s.Weights()

	var out []models.IndicatorSignal
	for _, tf := range timeframes {
		candles, err := s.fetch(ctx, symbol, tf)
		if errors.Is(err, models.ErrDataUnavailable) {
			s.logger.Debug().Str("symbol", symbol).Str("timeframe", tf).Msg("No data for timeframe")
			continue
		}
		if err != nil {
			return nil, err
		}

		readings := calculate.Compute(candles, s.cfg.Params)
		if readings == nil {
			continue
		}
		out = append(out, Evaluate(readings, tf, weights, s.cfg.Thresholds)...)
	}

	s.logger.Debug().Str("symbol", symbol).Int("signals", len(out)).Msg("Evaluated indicators")
	return out, nil
}

// GetPrice returns the latest price for symbol
func (s *Source) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if s.prices != nil {
		return s.prices.GetPrice(ctx, symbol)
	}
	candles, err := s.fetch(ctx, symbol, s.cfg.BaseTimeframe)
	if err != nil {
		return 0, err
	}
	return candles[len(candles)-1].Close, nil
}

// GetVolatility returns ATR / price on the base timeframe
func (s *Source) GetVolatility(ctx context.Context, symbol string) (float64, error) {
	candles, err := s.fetch(ctx, symbol, s.cfg.BaseTimeframe)
	if err != nil {
		return 0, err
	}
	last := candles[len(candles)-1].Close
	if last <= 0 {
		return 0, fmt.Errorf("%w: non-positive close for %s", models.ErrDataUnavailable, symbol)
	}
	return calculate.ATR(candles, s.cfg.Params.ATRPeriod) / last, nil
}

// Readings returns the raw indicator readings for one timeframe
func (s *Source) Readings(ctx context.Context, symbol, timeframe string) (*calculate.Readings, error) {
	candles, err := s.fetch(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}
	r := calculate.Compute(candles, s.cfg.Params)
	if r == nil {
		return nil, fmt.Errorf("%w: only %d candles for %s %s", models.ErrDataUnavailable, len(candles), symbol, timeframe)
	}
	return r, nil
}

func (s *Source) fetch(ctx context.Context, symbol, timeframe string) ([]models.Candle, error) {
	candles, err := s.candles.GetCandles(ctx, symbol, timeframe, models.CandlesForTimeframe(timeframe, s.cfg.CandleCount))
	if err != nil {
		return nil, fmt.Errorf("fetching %s %s candles: %w", symbol, timeframe, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles for %s %s", models.ErrDataUnavailable, symbol, timeframe)
	}
	return candles, nil
}
