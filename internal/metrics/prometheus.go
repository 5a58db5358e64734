package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Alias1177/SignalScanner/models"
)

// Recorder exposes scanner metrics through Prometheus
type Recorder struct {
	registry *prometheus.Registry

	cycleDuration  prometheus.Histogram
	cyclesSkipped  prometheus.Counter
	symbolsScanned prometheus.Gauge
	sourceErrors   *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	events         *prometheus.CounterVec
	activeCount    prometheus.Gauge
	outcomePnL     prometheus.Histogram
	sweepRepairs   *prometheus.CounterVec
}

// New registers the scanner metrics on reg. A nil reg gets a fresh registry
// with the Go and process collectors.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanner_cycle_duration_seconds",
			Help:    "Duration of scan cycles in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		cyclesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "scanner_cycles_skipped_total",
			Help: "Scheduled cycles skipped because a cycle was still running",
		}),
		symbolsScanned: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_symbols_scanned",
			Help: "Symbols scanned in the last cycle",
		}),
		sourceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_source_errors_total",
			Help: "External source failures after retries",
		}, []string{"source"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_admission_decisions_total",
			Help: "Admission decisions by result",
		}, []string{"result"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_lifecycle_events_total",
			Help: "Prediction lifecycle events",
		}, []string{"type"}),
		activeCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_active_predictions",
			Help: "Number of active predictions",
		}),
		outcomePnL: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanner_outcome_pnl_percent",
			Help:    "Realized PnL of expired predictions in percent",
			Buckets: []float64{-5, -2, -1, -0.5, 0, 0.5, 1, 2, 5},
		}),
		sweepRepairs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_sweep_repairs_total",
			Help: "Active set entries removed by the invariant sweep",
		}, []string{"kind"}),
	}
}

// Registry returns the registry the metrics live in
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveCycle(d time.Duration, symbols int) {
	r.cycleDuration.Observe(d.Seconds())
	r.symbolsScanned.Set(float64(symbols))
}

func (r *Recorder) IncSkippedCycle() {
	r.cyclesSkipped.Inc()
}

func (r *Recorder) IncSourceError(source string) {
	r.sourceErrors.WithLabelValues(source).Inc()
}

// IncDecision counts an admission result: "admitted" or a reject reason
func (r *Recorder) IncDecision(result string) {
	r.decisions.WithLabelValues(result).Inc()
}

func (r *Recorder) IncEvent(t models.EventType) {
	r.events.WithLabelValues(string(t)).Inc()
}

func (r *Recorder) SetActive(n int) {
	r.activeCount.Set(float64(n))
}

func (r *Recorder) ObserveOutcome(pnlPercent float64) {
	r.outcomePnL.Observe(pnlPercent)
}

func (r *Recorder) AddSweepRepairs(kind string, n int) {
	if n > 0 {
		r.sweepRepairs.WithLabelValues(kind).Add(float64(n))
	}
}
