package scanner

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidConfig  = errors.New("invalid scanner config")
	ErrScanInProgress = errors.New("scan already in progress")
)

// Config holds the scan loop settings
type Config struct {
	Symbols    []string      `yaml:"symbols"`
	Timeframes []string      `yaml:"timeframes"`
	Interval   time.Duration `yaml:"interval"`
	// per-call timeout for signal, price and volatility sources
	SourceTimeout time.Duration `yaml:"source_timeout"`
	// total attempts per source call, first call included; the only retry
	// layer in front of the market data client
	RetryAttempts        int           `yaml:"retry_attempts"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`
	// timeout for persistence and notification calls
	PersistTimeout time.Duration `yaml:"persist_timeout"`
	// payoff ratio b passed to the position sizer
	RiskReward float64 `yaml:"risk_reward"`
	// historical win rate used when confidence is unavailable
	WinRate float64 `yaml:"win_rate"`
}

func DefaultConfig() Config {
	return Config{
		Symbols:              []string{"BTC/USD", "ETH/USD", "EUR/USD", "GBP/USD", "XAU/USD"},
		Timeframes:           []string{"15min", "1h", "4h"},
		Interval:             30 * time.Second,
		SourceTimeout:        10 * time.Second,
		RetryAttempts:        3,
		RetryInitialInterval: 500 * time.Millisecond,
		PersistTimeout:       5 * time.Second,
		RiskReward:           2.0,
		WinRate:              0.6,
	}
}

func (c Config) Validate() error {
	switch {
	case len(c.Symbols) == 0:
		return fmt.Errorf("%w: no symbols", ErrInvalidConfig)
	case len(c.Timeframes) == 0:
		return fmt.Errorf("%w: no timeframes", ErrInvalidConfig)
	case c.Interval < time.Second:
		return fmt.Errorf("%w: interval must be at least 1s, got %s", ErrInvalidConfig, c.Interval)
	case c.SourceTimeout <= 0 || c.PersistTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.RetryAttempts < 1 || c.RetryInitialInterval <= 0:
		return fmt.Errorf("%w: invalid retry settings", ErrInvalidConfig)
	case c.RiskReward <= 0:
		return fmt.Errorf("%w: risk_reward must be positive", ErrInvalidConfig)
	case c.WinRate <= 0 || c.WinRate >= 1:
		return fmt.Errorf("%w: win_rate must be in (0,1)", ErrInvalidConfig)
	}
	return nil
}
