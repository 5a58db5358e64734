package lifecycle

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Alias1177/SignalScanner/internal/sentiment"
	"github.com/Alias1177/SignalScanner/models"
)

var (
	ErrNotFound     = errors.New("prediction not found")
	ErrInvalidPrice = errors.New("invalid price")
)

// RejectReason explains why a candidate was not admitted
type RejectReason string

const (
	RejectNone              RejectReason = ""
	RejectInvalidCandidate  RejectReason = "invalid_candidate"
	RejectScoreTooLow       RejectReason = "score_too_low"
	RejectDurationOutOfBand RejectReason = "duration_out_of_band"
	RejectConfidenceTooLow  RejectReason = "confidence_too_low"
	RejectDuplicateSymbol   RejectReason = "duplicate_symbol"
	RejectDirectionSkew     RejectReason = "direction_skew"
	RejectBelowMargin       RejectReason = "below_eviction_margin"
)

// Decision is the result of submitting a candidate
type Decision struct {
	Admitted   bool
	Reason     RejectReason
	Prediction *models.Prediction // set when admitted
	Evicted    *models.Prediction // set when admission pushed out the lowest entry
}

// SweepReport lists what a dedup sweep had to repair
type SweepReport struct {
	Duplicates []*models.Prediction
	Overflow   []*models.Prediction
}

// Repaired reports whether the sweep found an invariant violation
func (r SweepReport) Repaired() bool {
	return len(r.Duplicates) > 0 || len(r.Overflow) > 0
}

// Manager owns the bounded set of active predictions. All mutations are
// expected to come from the scan cycle; reads return copies and are safe
// from any goroutine.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	heap     predictionHeap
	byKey    map[string]*entry
	byID     map[string]*entry
	unpriced map[string]int
	outcomes []models.Outcome

	ledger *sentiment.Ledger
	newID  func() string
	logger zerolog.Logger
}

// Option customizes a Manager
type Option func(*Manager)

// WithIDGenerator replaces the uuid generator, mostly for tests
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		m.newID = gen
	}
}

// NewManager validates cfg and creates an empty manager. A nil ledger
// gets an in-memory one.
func NewManager(cfg Config, ledger *sentiment.Ledger, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ledger == nil {
		ledger = sentiment.NewLedger(nil, 0)
	}
	m := &Manager{
		cfg:      cfg,
		byKey:    make(map[string]*entry),
		byID:     make(map[string]*entry),
		unpriced: make(map[string]int),
		ledger:   ledger,
		newID:    uuid.NewString,
		logger:   log.With().Str("component", "lifecycle").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the admission policy
func (m *Manager) Config() Config {
	return m.cfg
}

// Ledger returns the sentiment ledger the manager writes to
func (m *Manager) Ledger() *sentiment.Ledger {
	return m.ledger
}

// Admit runs the admission policy for c. On admission the sentiment ledger
// moves one step in the candidate's direction.
func (m *Manager) Admit(ctx context.Context, c models.Candidate, now time.Time) Decision {
	if reason := m.precheck(c); reason != RejectNone {
		return Decision{Reason: reason}
	}

	key := models.NormalizeSymbol(c.Symbol)

	m.mu.Lock()
	if _, ok := m.byKey[key]; ok {
		m.mu.Unlock()
		return Decision{Reason: RejectDuplicateSymbol}
	}

	var victim *entry
	if len(m.heap) >= m.cfg.Capacity {
		victim = m.heap[0]
	}

	if m.cfg.SkewGuardEnabled && m.skewed(c.Direction, victim) && c.Confidence < m.cfg.SkewOverrideConfidence {
		m.mu.Unlock()
		return Decision{Reason: RejectDirectionSkew}
	}

	if victim != nil && !(c.Confidence > victim.pred.Confidence+m.cfg.AdmissionMargin) {
		m.mu.Unlock()
		return Decision{Reason: RejectBelowMargin}
	}

	var evicted *models.Prediction
	if victim != nil {
		m.removeLocked(victim)
		evicted = victim.pred.Clone()
	}

	p := &models.Prediction{
		ID:                  m.newID(),
		Symbol:              c.Symbol,
		Direction:           c.Direction,
		Score:               c.Score,
		Confidence:          c.Confidence,
		IndicatorCount:      c.IndicatorCount,
		Breakdown:           copyBreakdown(c.Breakdown),
		EntryPrice:          c.EntryPrice,
		CreatedAt:           now,
		ExpiresAt:           now.Add(c.Duration),
		SentimentAtCreation: m.ledger.Get(key),
	}
	if c.Sizing != nil {
		sizing := *c.Sizing
		p.Sizing = &sizing
	}
	m.insertLocked(p)
	admitted := p.Clone()
	m.mu.Unlock()

	m.ledger.Apply(ctx, key, c.Direction)

	if evicted != nil {
		m.logger.Info().
			Str("evicted", evicted.Symbol).
			Float64("evicted_confidence", evicted.Confidence).
			Str("admitted", admitted.Symbol).
			Float64("confidence", admitted.Confidence).
			Msg("Evicted lowest-confidence prediction")
	}
	return Decision{Admitted: true, Prediction: admitted, Evicted: evicted}
}

// Eligible screens a candidate before its entry price is known: thresholds
// and the duplicate check, without reserving anything. A candidate that
// passes can still be rejected by Admit.
func (m *Manager) Eligible(c models.Candidate) RejectReason {
	if reason := m.screen(c); reason != RejectNone {
		return reason
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.byKey[models.NormalizeSymbol(c.Symbol)]; ok {
		return RejectDuplicateSymbol
	}
	return RejectNone
}

// precheck applies the thresholds that do not depend on the active set
func (m *Manager) precheck(c models.Candidate) RejectReason {
	if c.EntryPrice <= 0 || math.IsNaN(c.EntryPrice) {
		return RejectInvalidCandidate
	}
	return m.screen(c)
}

func (m *Manager) screen(c models.Candidate) RejectReason {
	switch {
	case models.NormalizeSymbol(c.Symbol) == "",
		c.Direction != models.DirectionLong && c.Direction != models.DirectionShort:
		return RejectInvalidCandidate
	case math.IsNaN(c.Score) || math.Abs(c.Score) < m.cfg.MinAbsScore:
		return RejectScoreTooLow
	case c.Duration < m.cfg.MinDuration || c.Duration > m.cfg.MaxDuration:
		return RejectDurationOutOfBand
	case math.IsNaN(c.Confidence) || c.Confidence < m.cfg.MinConfidence:
		return RejectConfidenceTooLow
	}
	return RejectNone
}

// skewed reports whether admitting a prediction in direction (after removing
// victim, if any) would pile the portfolio up on one side
func (m *Manager) skewed(direction models.Direction, victim *entry) bool {
	counts := map[models.Direction]int{}
	for _, e := range m.heap {
		counts[e.pred.Direction]++
	}
	if victim != nil {
		counts[victim.pred.Direction]--
	}
	counts[direction]++
	return counts[direction] >= m.cfg.SkewMaxSameDirection &&
		counts[direction.Opposite()] <= m.cfg.SkewMaxOpposite
}

// Due returns the active predictions whose expiry has passed, oldest expiry first
func (m *Manager) Due(now time.Time) []*models.Prediction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []*models.Prediction
	for _, e := range m.heap {
		if !e.pred.ExpiresAt.After(now) {
			due = append(due, e.pred.Clone())
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ExpiresAt.Before(due[j].ExpiresAt)
	})
	return due
}

// Close records the outcome of an expired prediction at exitPrice and
// removes it from the active set
func (m *Manager) Close(id string, exitPrice float64, now time.Time) (*models.Prediction, models.Outcome, error) {
	if exitPrice <= 0 || math.IsNaN(exitPrice) {
		return nil, models.Outcome{}, fmt.Errorf("%w: exit price %v", ErrInvalidPrice, exitPrice)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byID[id]
	if !ok {
		return nil, models.Outcome{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	p := e.pred
	outcome := models.Outcome{
		PredictionID:     p.ID,
		Symbol:           p.Symbol,
		Direction:        p.Direction,
		EntryPrice:       p.EntryPrice,
		ExitPrice:        exitPrice,
		PnLPercent:       PnLPercent(p.Direction, p.EntryPrice, exitPrice),
		ClosedAt:         now,
		ActualDurationMs: now.Sub(p.CreatedAt).Milliseconds(),
	}
	p.Outcome = &outcome
	m.removeLocked(e)

	if m.cfg.OutcomeHistory > 0 {
		m.outcomes = append(m.outcomes, outcome)
		if over := len(m.outcomes) - m.cfg.OutcomeHistory; over > 0 {
			m.outcomes = append([]models.Outcome(nil), m.outcomes[over:]...)
		}
	}
	return p.Clone(), outcome, nil
}

// MarkUnpriced notes that no exit price was available for id this cycle and
// reports whether the prediction has now waited long enough to be dropped
func (m *Manager) MarkUnpriced(id string) (attempts int, exhausted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return 0, false
	}
	m.unpriced[id]++
	attempts = m.unpriced[id]
	return attempts, attempts >= m.cfg.MaxUnpricedCycles
}

// Drop removes an expired prediction without recording an outcome
func (m *Manager) Drop(id string) (*models.Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.removeLocked(e)
	return e.pred.Clone(), nil
}

// Sweep enforces the set invariants: one entry per normalized symbol (the
// highest-confidence one wins) and no more than Capacity entries. Running it
// twice in a row is the same as running it once.
func (m *Manager) Sweep() SweepReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	report := m.sweepLocked()
	for _, p := range report.Duplicates {
		m.logger.Error().Bool("defect", true).Str("symbol", p.Symbol).Str("id", p.ID).
			Float64("confidence", p.Confidence).Msg("Removed duplicate active prediction")
	}
	for _, p := range report.Overflow {
		m.logger.Error().Bool("defect", true).Str("symbol", p.Symbol).Str("id", p.ID).
			Int("capacity", m.cfg.Capacity).Msg("Removed prediction over capacity")
	}
	return report
}

func (m *Manager) sweepLocked() SweepReport {
	var report SweepReport

	best := make(map[string]*entry, len(m.heap))
	for _, e := range m.heap {
		key := e.pred.Key()
		cur, ok := best[key]
		if !ok || better(e.pred, cur.pred) {
			best[key] = e
		}
	}

	if len(best) != len(m.heap) {
		kept := make(predictionHeap, 0, len(best))
		for _, e := range m.heap {
			if best[e.pred.Key()] == e {
				kept = append(kept, e)
			} else {
				report.Duplicates = append(report.Duplicates, e.pred.Clone())
				delete(m.unpriced, e.pred.ID)
			}
		}
		m.heap = kept
		for i, e := range m.heap {
			e.index = i
		}
		heap.Init(&m.heap)
	}

	m.byKey = make(map[string]*entry, len(m.heap))
	m.byID = make(map[string]*entry, len(m.heap))
	for _, e := range m.heap {
		m.byKey[e.pred.Key()] = e
		m.byID[e.pred.ID] = e
	}

	for len(m.heap) > m.cfg.Capacity {
		e := m.heap[0]
		m.removeLocked(e)
		report.Overflow = append(report.Overflow, e.pred.Clone())
	}
	return report
}

// better decides which of two predictions for one symbol survives a sweep
func better(a, b *models.Prediction) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// Restore loads previously persisted active predictions, e.g. after a
// restart, and sweeps the result. The ledger is not touched: restored
// predictions were already counted when first admitted.
func (m *Manager) Restore(preds []*models.Prediction) SweepReport {
	m.mu.Lock()
	for _, p := range preds {
		if p == nil || p.ID == "" {
			continue
		}
		if _, dup := m.byID[p.ID]; dup {
			continue
		}
		e := &entry{pred: p.Clone()}
		heap.Push(&m.heap, e)
		m.byID[p.ID] = e
	}
	m.mu.Unlock()

	return m.Sweep()
}

// Active returns a snapshot of the active set, highest confidence first
func (m *Manager) Active() []*models.Prediction {
	m.mu.RLock()
	out := make([]*models.Prediction, 0, len(m.heap))
	for _, e := range m.heap {
		out = append(out, e.pred.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return better(out[i], out[j])
	})
	return out
}

// Get returns the active prediction for symbol, if any
func (m *Manager) Get(symbol string) (*models.Prediction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byKey[models.NormalizeSymbol(symbol)]
	if !ok {
		return nil, false
	}
	return e.pred.Clone(), true
}

// Lowest returns the next eviction victim
func (m *Manager) Lowest() (*models.Prediction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.heap) == 0 {
		return nil, false
	}
	return m.heap[0].pred.Clone(), true
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.heap)
}

func (m *Manager) Capacity() int {
	return m.cfg.Capacity
}

// Outcomes returns the recent outcomes, oldest first
func (m *Manager) Outcomes() []models.Outcome {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Outcome(nil), m.outcomes...)
}

func (m *Manager) insertLocked(p *models.Prediction) {
	e := &entry{pred: p}
	heap.Push(&m.heap, e)
	m.byKey[p.Key()] = e
	m.byID[p.ID] = e
}

func (m *Manager) removeLocked(e *entry) {
	if e.index >= 0 && e.index < len(m.heap) && m.heap[e.index] == e {
		heap.Remove(&m.heap, e.index)
	}
	if cur, ok := m.byKey[e.pred.Key()]; ok && cur == e {
		delete(m.byKey, e.pred.Key())
	}
	if cur, ok := m.byID[e.pred.ID]; ok && cur == e {
		delete(m.byID, e.pred.ID)
	}
	delete(m.unpriced, e.pred.ID)
}

// PnLPercent is the signed return of a prediction in percent
func PnLPercent(direction models.Direction, entryPrice, exitPrice float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	entry := decimal.NewFromFloat(entryPrice)
	exit := decimal.NewFromFloat(exitPrice)

	diff := exit.Sub(entry)
	if direction == models.DirectionShort {
		diff = entry.Sub(exit)
	}
	pnl, _ := diff.Div(entry).Mul(decimal.NewFromInt(100)).Round(6).Float64()
	return pnl
}

func copyBreakdown(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
