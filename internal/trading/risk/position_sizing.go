package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/Alias1177/SignalScanner/internal/calculate"
	"github.com/Alias1177/SignalScanner/models"
)

var ErrInvalidConfig = errors.New("invalid risk config")

// Config holds the Kelly sizing limits
type Config struct {
	// fraction of full Kelly actually suggested
	KellyMultiplier float64 `yaml:"kelly_multiplier"`
	MaxPositionSize float64 `yaml:"max_position_size"`
	MaxRiskPerTrade float64 `yaml:"max_risk_per_trade"`
	// win probability used when the caller has no confidence
	DefaultWinRate float64 `yaml:"default_win_rate"`
	// cap on the win probability derived from confidence
	MaxWinProbability float64 `yaml:"max_win_probability"`
	// volatility dampening never shrinks the size below this factor
	MinVolatilityFactor float64 `yaml:"min_volatility_factor"`
	DefaultRiskReward   float64 `yaml:"default_risk_reward"`
	ATRPeriod           int     `yaml:"atr_period"`
	StopATRMultiplier   float64 `yaml:"stop_atr_multiplier"`
}

func DefaultConfig() Config {
	return Config{
		KellyMultiplier:     0.25,
		MaxPositionSize:     0.10,
		MaxRiskPerTrade:     0.02,
		DefaultWinRate:      0.6,
		MaxWinProbability:   0.95,
		MinVolatilityFactor: 0.5,
		DefaultRiskReward:   2.0,
		ATRPeriod:           14,
		StopATRMultiplier:   1.5,
	}
}

func (c Config) Validate() error {
	switch {
	case c.KellyMultiplier <= 0 || c.KellyMultiplier > 1:
		return fmt.Errorf("%w: kelly_multiplier must be in (0,1], got %v", ErrInvalidConfig, c.KellyMultiplier)
	case c.MaxPositionSize <= 0 || c.MaxPositionSize > 1:
		return fmt.Errorf("%w: max_position_size must be in (0,1], got %v", ErrInvalidConfig, c.MaxPositionSize)
	case c.MaxRiskPerTrade <= 0 || c.MaxRiskPerTrade > c.MaxPositionSize:
		return fmt.Errorf("%w: max_risk_per_trade must be in (0,max_position_size], got %v", ErrInvalidConfig, c.MaxRiskPerTrade)
	case c.DefaultWinRate <= 0 || c.DefaultWinRate >= 1:
		return fmt.Errorf("%w: default_win_rate must be in (0,1), got %v", ErrInvalidConfig, c.DefaultWinRate)
	case c.MaxWinProbability <= 0 || c.MaxWinProbability >= 1:
		return fmt.Errorf("%w: max_win_probability must be in (0,1), got %v", ErrInvalidConfig, c.MaxWinProbability)
	case c.MinVolatilityFactor < 0 || c.MinVolatilityFactor > 1:
		return fmt.Errorf("%w: min_volatility_factor must be in [0,1], got %v", ErrInvalidConfig, c.MinVolatilityFactor)
	case c.DefaultRiskReward <= 0:
		return fmt.Errorf("%w: default_risk_reward must be positive", ErrInvalidConfig)
	case c.ATRPeriod <= 0 || c.StopATRMultiplier <= 0:
		return fmt.Errorf("%w: stop settings must be positive", ErrInvalidConfig)
	}
	return nil
}

// Calculator turns confidence into a Kelly-derived allocation
type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{cfg: cfg}, nil
}

func (c *Calculator) Config() Config {
	return c.cfg
}

// Size computes the suggested allocation. confidence is 0-100, riskReward is
// the payoff ratio b, volatility is normalized (ATR / price) and winRate is
// only used when confidence is not positive (0 picks the default).
// A non-positive riskReward yields a zero result.
func (c *Calculator) Size(confidence, riskReward, volatility, winRate float64) models.PositionSizing {
	if riskReward <= 0 || math.IsNaN(riskReward) {
		return models.PositionSizing{}
	}

	p := math.Min(confidence/100, c.cfg.MaxWinProbability)
	if confidence <= 0 || math.IsNaN(confidence) {
		p = winRate
		if p <= 0 || p >= 1 {
			p = c.cfg.DefaultWinRate
		}
	}
	q := 1 - p
	b := riskReward

	kelly := math.Max((b*p-q)/b, 0)

	if math.IsNaN(volatility) || volatility < 0 {
		volatility = 0
	}
	volFactor := math.Max(c.cfg.MinVolatilityFactor, 1-volatility)

	suggested := math.Min(kelly*volFactor*c.cfg.KellyMultiplier, c.cfg.MaxPositionSize)
	maxRisk := math.Min(suggested/b, c.cfg.MaxRiskPerTrade)

	return models.PositionSizing{
		SuggestedSize: suggested,
		MaxRisk:       maxRisk,
		KellyFraction: kelly,
	}
}

// Volatility is ATR / last close over candles ordered oldest first
func (c *Calculator) Volatility(candles []models.Candle) float64 {
	return VolatilityFromCandles(candles, c.cfg.ATRPeriod)
}

func VolatilityFromCandles(candles []models.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	last := candles[len(candles)-1].Close
	if last <= 0 {
		return 0
	}
	return calculate.ATR(candles, period) / last
}

// Levels are ATR-based exit levels for a prediction
type Levels struct {
	StopLoss        float64 `json:"stop_loss"`
	TakeProfit      float64 `json:"take_profit"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
}

// Levels places the stop StopATRMultiplier ATRs away from price and the
// target DefaultRiskReward times further on the other side
func (c *Calculator) Levels(price, atr float64, direction models.Direction) Levels {
	if price <= 0 || atr <= 0 || direction.Sign() == 0 {
		return Levels{}
	}
	stopDistance := atr * c.cfg.StopATRMultiplier
	sign := float64(direction.Sign())

	return Levels{
		StopLoss:        price - sign*stopDistance,
		TakeProfit:      price + sign*stopDistance*c.cfg.DefaultRiskReward,
		RiskRewardRatio: c.cfg.DefaultRiskReward,
	}
}
