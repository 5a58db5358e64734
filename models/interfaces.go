package models

import (
	"context"
	"errors"
	"time"
)

// ErrDataUnavailable means a source has nothing usable for the symbol right now.
// It is not a failure: the symbol is skipped for the cycle.
var ErrDataUnavailable = errors.New("data unavailable")

type SignalSource interface {
	GetSignals(ctx context.Context, symbol string, timeframes []string) ([]IndicatorSignal, error)
}

type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// VolatilitySource is optionally implemented by signal sources that can
// report a normalized volatility (ATR / price) for position sizing.
type VolatilitySource interface {
	GetVolatility(ctx context.Context, symbol string) (float64, error)
}

type SentimentStore interface {
	LoadSentiment(ctx context.Context) (map[string]int, error)
	SaveSentiment(ctx context.Context, symbol string, value int) error
}

// PredictionLog is the append-only history of admissions, evictions and outcomes
type PredictionLog interface {
	RecordAdmission(ctx context.Context, p *Prediction) error
	RecordEviction(ctx context.Context, p *Prediction, at time.Time) error
	RecordDrop(ctx context.Context, p *Prediction, at time.Time) error
	RecordOutcome(ctx context.Context, o *Outcome) error
	LoadActive(ctx context.Context) ([]*Prediction, error)
	Outcomes(ctx context.Context, since time.Time) ([]Outcome, error)
}

type Notifier interface {
	Notify(ctx context.Context, event LifecycleEvent) error
}
