package sentiment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/SignalScanner/models"
)

// Ledger keeps the per-symbol card count: +1 for every admitted long
// prediction, -1 for every admitted short one.
type Ledger struct {
	mu           sync.RWMutex
	counts       map[string]int
	store        models.SentimentStore
	storeTimeout time.Duration
	logger       zerolog.Logger
}

// NewLedger creates a ledger writing through to store. A nil store keeps
// the ledger in memory only.
func NewLedger(store models.SentimentStore, storeTimeout time.Duration) *Ledger {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Ledger{
		counts:       make(map[string]int),
		store:        store,
		storeTimeout: storeTimeout,
		logger:       log.With().Str("component", "sentiment_ledger").Logger(),
	}
}

// Load replaces the in-memory counters with the persisted ones
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	persisted, err := l.store.LoadSentiment(ctx)
	if err != nil {
		return fmt.Errorf("loading sentiment: %w", err)
	}

	counts := make(map[string]int, len(persisted))
	for symbol, v := range persisted {
		counts[models.NormalizeSymbol(symbol)] += v
	}

	l.mu.Lock()
	l.counts = counts
	l.mu.Unlock()

	l.logger.Info().Int("symbols", len(counts)).Msg("Loaded sentiment counters")
	return nil
}

// Get returns the current counter for symbol (0 when never seen)
func (l *Ledger) Get(symbol string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counts[models.NormalizeSymbol(symbol)]
}

// Apply moves the counter one step in direction and persists it.
// A failed write is logged; the in-memory value stays authoritative.
func (l *Ledger) Apply(ctx context.Context, symbol string, direction models.Direction) int {
	key := models.NormalizeSymbol(symbol)

	l.mu.Lock()
	l.counts[key] += direction.Sign()
	value := l.counts[key]
	l.mu.Unlock()

	if l.store != nil {
		saveCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
		defer cancel()
		if err := l.store.SaveSentiment(saveCtx, key, value); err != nil {
			l.logger.Error().Err(err).Str("symbol", key).Int("value", value).Msg("Failed to persist sentiment")
		}
	}
	return value
}

// Snapshot returns a copy of all counters
func (l *Ledger) Snapshot() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}
