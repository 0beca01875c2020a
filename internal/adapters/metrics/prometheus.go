package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implementa ports.Metrics con Prometheus.
type Recorder struct {
	sourceCalls   *prometheus.CounterVec
	sourceLatency *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	historyRows   prometheus.Counter
	batchCards    prometheus.Gauge
	batchDuration prometheus.Histogram
}

// New registra las métricas en reg. Con reg nil usa el registry por defecto.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		sourceCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buylist_source_calls_total",
				Help: "Quote source calls by outcome (ok, empty, error, timeout)",
			},
			[]string{"source", "outcome"},
		),
		sourceLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buylist_source_duration_seconds",
				Help:    "Quote source call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buylist_cache_lookups_total",
				Help: "Cache lookups by cache and result (hit, miss, stale)",
			},
			[]string{"cache", "result"},
		),
		historyRows: f.NewCounter(
			prometheus.CounterOpts{
				Name: "buylist_history_records_total",
				Help: "Price history records appended",
			},
		),
		batchCards: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "buylist_batch_cards",
				Help: "Cards processed by the last aggregation batch",
			},
		),
		batchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "buylist_batch_duration_seconds",
				Help:    "Aggregation batch duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
	}
}

func (r *Recorder) ObserveSource(source, outcome string, elapsed time.Duration) {
	r.sourceCalls.WithLabelValues(source, outcome).Inc()
	r.sourceLatency.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (r *Recorder) CacheLookup(cache, result string) {
	r.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (r *Recorder) HistoryAppended(n int) {
	r.historyRows.Add(float64(n))
}

func (r *Recorder) BatchCompleted(cards int, elapsed time.Duration) {
	r.batchCards.Set(float64(cards))
	r.batchDuration.Observe(elapsed.Seconds())
}
