package models

import (
	"strings"
	"time"
)

// Direction is the directional bias of a signal or prediction
type Direction string

const (
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
	DirectionNeutral Direction = "neutral"
)

// Sign returns +1 for long, -1 for short and 0 otherwise
func (d Direction) Sign() int {
	switch d {
	case DirectionLong:
		return 1
	case DirectionShort:
		return -1
	}
	return 0
}

// Opposite returns the opposite trading direction
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionLong:
		return DirectionShort
	case DirectionShort:
		return DirectionLong
	}
	return DirectionNeutral
}

// DirectionFromScore maps the sign of a score to a direction
func DirectionFromScore(score float64) Direction {
	switch {
	case score > 0:
		return DirectionLong
	case score < 0:
		return DirectionShort
	}
	return DirectionNeutral
}

// NormalizeSymbol builds the key used for the active prediction set.
// "btc/usdt", "BTC-USDT" and "BTCUSDT" all map to "BTCUSDT".
func NormalizeSymbol(symbol string) string {
	var b strings.Builder
	b.Grow(len(symbol))
	for _, r := range strings.ToUpper(strings.TrimSpace(symbol)) {
		switch r {
		case '/', '-', '_', ':', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IndicatorSignal is a single indicator reading on one timeframe
type IndicatorSignal struct {
	Name      string    `json:"name"`
	Timeframe string    `json:"timeframe"`
	Direction Direction `json:"direction"`
	Weight    float64   `json:"weight"`
	Strength  float64   `json:"strength"` // 0-1
}

// BreakdownKey returns the name_timeframe_direction key used in score breakdowns
func (s IndicatorSignal) BreakdownKey() string {
	return s.Name + "_" + s.Timeframe + "_" + string(s.Direction)
}

// ScoreResult is the aggregate directional score for one symbol
type ScoreResult struct {
	Score          float64            `json:"score"` // positive = long bias
	IndicatorCount int                `json:"indicator_count"`
	Breakdown      map[string]float64 `json:"breakdown"`
}

// PositionSizing holds a Kelly-derived allocation suggestion
type PositionSizing struct {
	SuggestedSize float64 `json:"suggested_size"` // fraction of account
	MaxRisk       float64 `json:"max_risk"`       // fraction of account
	KellyFraction float64 `json:"kelly_fraction"`
}

// Candidate is a scored symbol waiting for an admission decision
type Candidate struct {
	Symbol         string
	Direction      Direction
	Score          float64
	Confidence     float64
	IndicatorCount int
	Breakdown      map[string]float64
	Duration       time.Duration
	EntryPrice     float64
	Sizing         *PositionSizing
}

// Prediction is an admitted, time-boxed directional call on a symbol
type Prediction struct {
	ID                  string             `json:"id"`
	Symbol              string             `json:"symbol"`
	Direction           Direction          `json:"direction"`
	Score               float64            `json:"score"`
	Confidence          float64            `json:"confidence"` // 0-100
	IndicatorCount      int                `json:"indicator_count"`
	Breakdown           map[string]float64 `json:"breakdown"`
	EntryPrice          float64            `json:"entry_price"`
	CreatedAt           time.Time          `json:"created_at"`
	ExpiresAt           time.Time          `json:"expires_at"`
	SentimentAtCreation int                `json:"sentiment_at_creation"`
	Sizing              *PositionSizing    `json:"sizing,omitempty"`
	Outcome             *Outcome           `json:"outcome,omitempty"`
}

// Key is the normalized symbol the prediction is indexed under
func (p *Prediction) Key() string {
	return NormalizeSymbol(p.Symbol)
}

// EstimatedRun is the validity window chosen at admission
func (p *Prediction) EstimatedRun() time.Duration {
	return p.ExpiresAt.Sub(p.CreatedAt)
}

// Clone returns a deep copy safe to hand out of the lifecycle manager
func (p *Prediction) Clone() *Prediction {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Breakdown != nil {
		cp.Breakdown = make(map[string]float64, len(p.Breakdown))
		for k, v := range p.Breakdown {
			cp.Breakdown[k] = v
		}
	}
	if p.Sizing != nil {
		s := *p.Sizing
		cp.Sizing = &s
	}
	if p.Outcome != nil {
		o := *p.Outcome
		cp.Outcome = &o
	}
	return &cp
}

// Outcome is the realized result of a naturally expired prediction
type Outcome struct {
	PredictionID     string    `json:"prediction_id"`
	Symbol           string    `json:"symbol"`
	Direction        Direction `json:"direction"`
	EntryPrice       float64   `json:"entry_price"`
	ExitPrice        float64   `json:"exit_price"`
	PnLPercent       float64   `json:"pnl_percent"`
	ClosedAt         time.Time `json:"closed_at"`
	ActualDurationMs int64     `json:"actual_duration_ms"`
}

// EventType names a prediction lifecycle transition
type EventType string

const (
	EventAdmitted EventType = "admitted"
	EventEvicted  EventType = "evicted"
	EventOutcome  EventType = "outcome"
	EventDropped  EventType = "dropped"
)

// LifecycleEvent is published whenever a prediction changes state
type LifecycleEvent struct {
	Type       EventType   `json:"type"`
	Prediction *Prediction `json:"prediction"`
	Outcome    *Outcome    `json:"outcome,omitempty"`
	At         time.Time   `json:"at"`
}

// ScannerStatus is the health snapshot exposed by the control surface
type ScannerStatus struct {
	IsRunning          bool      `json:"is_running"`
	ScanInProgress     bool      `json:"scan_in_progress"`
	LastScanTime       time.Time `json:"last_scan_time"`
	LastSuccessfulScan time.Time `json:"last_successful_scan"`
	SymbolsScanned     int       `json:"symbols_scanned"`
	ActiveCount        int       `json:"active_count"`
	ErrorCount         int64     `json:"error_count"`
	// source failures since the last successful cycle
	ErrorsSinceSuccess int64     `json:"errors_since_success"`
	StartedAt          time.Time `json:"started_at"`
}

// Candle represents a single price candle
type Candle struct {
	Datetime string  `json:"datetime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   int64   `json:"volume,omitempty"`
}

// TwelveResponse represents the time_series response from Twelve Data
type TwelveResponse struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Interval string `json:"interval"`
	} `json:"meta"`
	Values []struct {
		Datetime string  `json:"datetime"`
		Open     float64 `json:"open,string"`
		High     float64 `json:"high,string"`
		Low      float64 `json:"low,string"`
		Close    float64 `json:"close,string"`
		Volume   int64   `json:"volume,string,omitempty"`
	} `json:"values"`
	Status string `json:"status"`
}

// TwelvePriceResponse represents the /price response from Twelve Data
type TwelvePriceResponse struct {
	Price float64 `json:"price,string"`
}
