package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/SignalScanner/internal/lifecycle"
	"github.com/Alias1177/SignalScanner/internal/scoring"
	"github.com/Alias1177/SignalScanner/internal/trading/risk"
	"github.com/Alias1177/SignalScanner/models"
)

// Metrics receives scan loop measurements
type Metrics interface {
	ObserveCycle(d time.Duration, symbols int)
	IncSkippedCycle()
	IncSourceError(source string)
	IncDecision(result string)
	IncEvent(t models.EventType)
	SetActive(n int)
	ObserveOutcome(pnlPercent float64)
	AddSweepRepairs(kind string, n int)
}

// Deps are the collaborators of the scanner. Signals, Prices, Engine,
// Estimator and Manager are required.
type Deps struct {
	Signals    models.SignalSource
	Prices     models.PriceSource
	Volatility models.VolatilitySource
	Engine     *scoring.Engine
	Estimator  *scoring.Estimator
	Manager    *lifecycle.Manager
	Sizer      *risk.Calculator
	Log        models.PredictionLog
	Notifier   models.Notifier
	Metrics    Metrics
	Now        func() time.Time
}

// Scanner runs the periodic scan cycle: expire due predictions, score every
// symbol, admit candidates and sweep the active set.
type Scanner struct {
	cfg  Config
	deps Deps

	cron    *cron.Cron
	baseCtx context.Context
	cancel  context.CancelFunc

	// held for the whole cycle; TryLock skips a cycle instead of queueing it
	cycleMu sync.Mutex
	wg      sync.WaitGroup
	// orders the stopping check and wg.Add against Stop
	stopMu sync.Mutex

	running    atomic.Bool
	inProgress atomic.Bool
	stopping   atomic.Bool
	errorCount atomic.Int64

	statusMu           sync.RWMutex
	startedAt          time.Time
	lastScanTime       time.Time
	lastSuccessfulScan time.Time
	symbolsScanned     int
	errorsAtSuccess    int64

	logger zerolog.Logger
}

func New(cfg Config, deps Deps) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Signals == nil || deps.Prices == nil || deps.Engine == nil ||
		deps.Estimator == nil || deps.Manager == nil {
		return nil, fmt.Errorf("%w: missing required dependency", ErrInvalidConfig)
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Scanner{
		cfg:     cfg,
		deps:    deps,
		baseCtx: context.Background(),
		logger:  log.With().Str("component", "scanner").Logger(),
	}, nil
}

// Start loads persisted state and schedules cycles every Interval. The first
// cycle runs immediately. Cancelling ctx does not abort a running cycle; use
// Stop for that.
func (s *Scanner) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("scanner already running")
	}
	s.stopping.Store(false)
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	s.statusMu.Lock()
	s.startedAt = s.deps.Now()
	s.statusMu.Unlock()

	s.restore(ctx)

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.Interval), s.scheduled); err != nil {
		s.running.Store(false)
		s.cancel()
		return fmt.Errorf("scheduling scan: %w", err)
	}
	s.cron.Start()

	s.logger.Info().
		Strs("symbols", s.cfg.Symbols).
		Strs("timeframes", s.cfg.Timeframes).
		Dur("interval", s.cfg.Interval).
		Msg("Scanner started")

	s.ForceRescan()
	return nil
}

// Stop halts scheduling, lets the running cycle finish its current symbol
// and waits for it
func (s *Scanner) Stop() {
	if !s.running.Load() {
		return
	}
	s.stopMu.Lock()
	s.stopping.Store(true)
	s.stopMu.Unlock()
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()
	if s.cancel != nil {
		s.cancel()
	}
	s.running.Store(false)
	s.logger.Info().Msg("Scanner stopped")
}

// begin takes the cycle lock and registers the cycle with wg. It fails once
// Stop has been called or while another cycle runs.
func (s *Scanner) begin() bool {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.stopping.Load() || !s.cycleMu.TryLock() {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Scanner) scheduled() {
	if !s.begin() {
		if !s.stopping.Load() {
			s.deps.Metrics.IncSkippedCycle()
			s.logger.Debug().Msg("Previous cycle still running, skipping")
		}
		return
	}
	defer s.wg.Done()
	defer s.cycleMu.Unlock()
	s.cycle(s.baseCtx)
}

// ForceRescan starts a cycle in the background. It returns false without
// doing anything when a cycle is already running or the scanner is stopping.
func (s *Scanner) ForceRescan() bool {
	if !s.begin() {
		return false
	}
	go func() {
		defer s.wg.Done()
		defer s.cycleMu.Unlock()
		s.cycle(s.baseCtx)
	}()
	return true
}

// RunCycle runs one cycle synchronously
func (s *Scanner) RunCycle(ctx context.Context) error {
	if !s.cycleMu.TryLock() {
		return ErrScanInProgress
	}
	defer s.cycleMu.Unlock()
	s.cycle(ctx)
	return nil
}

func (s *Scanner) halted(ctx context.Context) bool {
	return s.stopping.Load() || ctx.Err() != nil
}

func (s *Scanner) cycle(ctx context.Context) {
	s.inProgress.Store(true)
	defer s.inProgress.Store(false)

	start := time.Now()
	s.expire(ctx)

	scanned, failed := 0, 0
	for _, symbol := range s.cfg.Symbols {
		if s.halted(ctx) {
			s.logger.Info().Int("scanned", scanned).Msg("Cycle interrupted")
			break
		}
		if err := s.scanSymbol(ctx, symbol); err != nil {
			failed++
		}
		scanned++
	}

	s.sweep()

	active := s.deps.Manager.Len()
	s.deps.Metrics.SetActive(active)
	s.deps.Metrics.ObserveCycle(time.Since(start), scanned)

	now := s.deps.Now()
	s.statusMu.Lock()
	s.lastScanTime = now
	s.symbolsScanned = scanned
	if scanned > 0 && failed < scanned {
		s.lastSuccessfulScan = now
		s.errorsAtSuccess = s.errorCount.Load()
	}
	s.statusMu.Unlock()

	s.logger.Info().
		Int("scanned", scanned).
		Int("failed", failed).
		Int("active", active).
		Dur("took", time.Since(start)).
		Msg("Scan cycle complete")
}

// scanSymbol scores one symbol and submits a candidate. A returned error
// means a source failed after retries; missing data is not an error.
func (s *Scanner) scanSymbol(ctx context.Context, symbol string) error {
	logger := s.logger.With().Str("symbol", symbol).Logger()

	var signals []models.IndicatorSignal
	err := s.call(ctx, func(callCtx context.Context) error {
		var err error
		signals, err = s.deps.Signals.GetSignals(callCtx, symbol, s.cfg.Timeframes)
		return err
	})
	if err != nil {
		return s.sourceFailure(logger, "signals", err)
	}
	if len(signals) == 0 {
		logger.Debug().Msg("No signals")
		return nil
	}

	result := s.deps.Engine.Score(signals, s.deps.Manager.Ledger().Get(symbol))
	direction := models.DirectionFromScore(result.Score)
	if direction == models.DirectionNeutral {
		logger.Debug().Int("indicators", result.IndicatorCount).Msg("No confluence")
		return nil
	}

	confidence := s.deps.Estimator.Confidence(result.Score, result.IndicatorCount, signals)
	agreeing := scoring.AgreeingTimeframes(signals, direction)
	candidate := models.Candidate{
		Symbol:         symbol,
		Direction:      direction,
		Score:          result.Score,
		Confidence:     confidence,
		IndicatorCount: result.IndicatorCount,
		Breakdown:      result.Breakdown,
		Duration:       s.deps.Estimator.EstimateDuration(math.Abs(result.Score), agreeing),
	}

	if reason := s.deps.Manager.Eligible(candidate); reason != lifecycle.RejectNone {
		s.deps.Metrics.IncDecision(string(reason))
		logger.Debug().
			Str("reason", string(reason)).
			Float64("score", result.Score).
			Float64("confidence", confidence).
			Msg("Candidate rejected")
		return nil
	}

	err = s.call(ctx, func(callCtx context.Context) error {
		var err error
		candidate.EntryPrice, err = s.deps.Prices.GetPrice(callCtx, symbol)
		return err
	})
	if err != nil {
		return s.sourceFailure(logger, "price", err)
	}

	if s.deps.Sizer != nil {
		sizing := s.deps.Sizer.Size(confidence, s.cfg.RiskReward, s.volatility(ctx, logger, symbol), s.cfg.WinRate)
		candidate.Sizing = &sizing
	}

	decision := s.deps.Manager.Admit(ctx, candidate, s.deps.Now())
	if !decision.Admitted {
		s.deps.Metrics.IncDecision(string(decision.Reason))
		logger.Debug().Str("reason", string(decision.Reason)).Float64("confidence", confidence).Msg("Candidate rejected")
		return nil
	}
	s.deps.Metrics.IncDecision("admitted")

	p := decision.Prediction
	logger.Info().
		Str("id", p.ID).
		Str("direction", string(p.Direction)).
		Float64("score", p.Score).
		Float64("confidence", p.Confidence).
		Dur("duration", p.EstimatedRun()).
		Float64("entry", p.EntryPrice).
		Msg("Prediction admitted")

	if decision.Evicted != nil {
		s.persist(func(c context.Context) error { return s.deps.Log.RecordEviction(c, decision.Evicted, p.CreatedAt) }, "eviction")
		s.emit(models.LifecycleEvent{Type: models.EventEvicted, Prediction: decision.Evicted, At: p.CreatedAt})
	}
	s.persist(func(c context.Context) error { return s.deps.Log.RecordAdmission(c, p) }, "admission")
	s.emit(models.LifecycleEvent{Type: models.EventAdmitted, Prediction: p, At: p.CreatedAt})
	return nil
}

func (s *Scanner) volatility(ctx context.Context, logger zerolog.Logger, symbol string) float64 {
	if s.deps.Volatility == nil {
		return 0
	}
	var vol float64
	err := s.call(ctx, func(callCtx context.Context) error {
		var err error
		vol, err = s.deps.Volatility.GetVolatility(callCtx, symbol)
		return err
	})
	if err != nil {
		logger.Debug().Err(err).Msg("Volatility unavailable, sizing without it")
		return 0
	}
	return vol
}

// expire closes every due prediction at the current price. Predictions whose
// price stays unavailable for MaxUnpricedCycles cycles are dropped.
func (s *Scanner) expire(ctx context.Context) {
	for _, p := range s.deps.Manager.Due(s.deps.Now()) {
		if s.halted(ctx) {
			return
		}
		logger := s.logger.With().Str("symbol", p.Symbol).Str("id", p.ID).Logger()

		var price float64
		err := s.call(ctx, func(callCtx context.Context) error {
			var err error
			price, err = s.deps.Prices.GetPrice(callCtx, p.Symbol)
			return err
		})
		if err != nil {
			if !errors.Is(err, models.ErrDataUnavailable) {
				_ = s.sourceFailure(logger, "price", err)
			}
			s.unpriced(logger, p)
			continue
		}

		closed, outcome, err := s.deps.Manager.Close(p.ID, price, s.deps.Now())
		if err != nil {
			if errors.Is(err, lifecycle.ErrInvalidPrice) {
				s.unpriced(logger, p)
				continue
			}
			logger.Warn().Err(err).Msg("Failed to close prediction")
			continue
		}

		s.deps.Metrics.ObserveOutcome(outcome.PnLPercent)
		logger.Info().
			Float64("entry", outcome.EntryPrice).
			Float64("exit", outcome.ExitPrice).
			Float64("pnl_percent", outcome.PnLPercent).
			Msg("Prediction expired")

		s.persist(func(c context.Context) error { return s.deps.Log.RecordOutcome(c, &outcome) }, "outcome")
		s.emit(models.LifecycleEvent{Type: models.EventOutcome, Prediction: closed, Outcome: &outcome, At: outcome.ClosedAt})
	}
}

func (s *Scanner) unpriced(logger zerolog.Logger, p *models.Prediction) {
	attempts, exhausted := s.deps.Manager.MarkUnpriced(p.ID)
	if !exhausted {
		logger.Warn().Int("attempt", attempts).Msg("No exit price, retrying next cycle")
		return
	}
	dropped, err := s.deps.Manager.Drop(p.ID)
	if err != nil {
		return
	}
	now := s.deps.Now()
	logger.Warn().Int("attempts", attempts).Msg("Dropped prediction without exit price")
	s.persist(func(c context.Context) error { return s.deps.Log.RecordDrop(c, dropped, now) }, "drop")
	s.emit(models.LifecycleEvent{Type: models.EventDropped, Prediction: dropped, At: now})
}

func (s *Scanner) sweep() {
	report := s.deps.Manager.Sweep()
	if !report.Repaired() {
		return
	}
	s.deps.Metrics.AddSweepRepairs("duplicate", len(report.Duplicates))
	s.deps.Metrics.AddSweepRepairs("overflow", len(report.Overflow))

	now := s.deps.Now()
	for _, p := range append(report.Duplicates, report.Overflow...) {
		s.persist(func(c context.Context) error { return s.deps.Log.RecordEviction(c, p, now) }, "sweep eviction")
	}
}

// restore reloads the sentiment ledger and the active predictions
func (s *Scanner) restore(ctx context.Context) {
	if err := s.deps.Manager.Ledger().Load(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to load sentiment, starting from zero")
	}
	if s.deps.Log == nil {
		return
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()
	preds, err := s.deps.Log.LoadActive(loadCtx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load active predictions")
		return
	}

	report := s.deps.Manager.Restore(preds)
	now := s.deps.Now()
	for _, p := range append(report.Duplicates, report.Overflow...) {
		s.persist(func(c context.Context) error { return s.deps.Log.RecordEviction(c, p, now) }, "restore eviction")
	}
	s.logger.Info().Int("restored", s.deps.Manager.Len()).Msg("Restored active predictions")
}

// call runs op at most RetryAttempts times with a per-attempt timeout,
// retrying transient failures
func (s *Scanner) call(ctx context.Context, op func(context.Context) error) error {
	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = s.cfg.RetryInitialInterval
	strategy.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
		defer cancel()
		err := op(callCtx)
		if errors.Is(err, models.ErrDataUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(strategy, uint64(s.cfg.RetryAttempts-1)), ctx))
}

func (s *Scanner) sourceFailure(logger zerolog.Logger, source string, err error) error {
	if errors.Is(err, models.ErrDataUnavailable) {
		logger.Debug().Err(err).Str("source", source).Msg("Data unavailable, skipping")
		return nil
	}
	s.errorCount.Add(1)
	s.deps.Metrics.IncSourceError(source)
	logger.Error().Err(err).Str("source", source).Msg("Source failed after retries")
	return err
}

func (s *Scanner) persist(op func(context.Context) error, what string) {
	if s.deps.Log == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()
	if err := op(ctx); err != nil {
		s.logger.Error().Err(err).Str("record", what).Msg("Failed to persist")
	}
}

func (s *Scanner) emit(event models.LifecycleEvent) {
	s.deps.Metrics.IncEvent(event.Type)
	if s.deps.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()
	if err := s.deps.Notifier.Notify(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event", string(event.Type)).Msg("Failed to notify")
	}
}

// Status returns a health snapshot
func (s *Scanner) Status() models.ScannerStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	errs := s.errorCount.Load()
	return models.ScannerStatus{
		IsRunning:          s.running.Load(),
		ScanInProgress:     s.inProgress.Load(),
		LastScanTime:       s.lastScanTime,
		LastSuccessfulScan: s.lastSuccessfulScan,
		SymbolsScanned:     s.symbolsScanned,
		ActiveCount:        s.deps.Manager.Len(),
		ErrorCount:         errs,
		ErrorsSinceSuccess: errs - s.errorsAtSuccess,
		StartedAt:          s.startedAt,
	}
}

// Active returns the active predictions, highest confidence first
func (s *Scanner) Active() []*models.Prediction {
	return s.deps.Manager.Active()
}

// Sentiment returns the card count of symbol
func (s *Scanner) Sentiment(symbol string) int {
	return s.deps.Manager.Ledger().Get(symbol)
}

// Outcomes returns the recent outcomes kept in memory
func (s *Scanner) Outcomes() []models.Outcome {
	return s.deps.Manager.Outcomes()
}

type nopMetrics struct{}

func (nopMetrics) ObserveCycle(time.Duration, int) {}
func (nopMetrics) IncSkippedCycle() {}
func (nopMetrics) IncSourceError(string) {}
func (nopMetrics) IncDecision(string) {}
func (nopMetrics) IncEvent(models.EventType) {}
func (nopMetrics) SetActive(int) {}
func (nopMetrics) ObserveOutcome(float64) {}
func (nopMetrics) AddSweepRepairs(string, int) {}
