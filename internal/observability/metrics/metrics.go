package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "vessel_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	batchRows *prometheus.CounterVec

	pushChunks  *prometheus.CounterVec
	pushDropped *prometheus.CounterVec

	cacheLookups *prometheus.CounterVec

	alarmEvents        *prometheus.CounterVec
	alarmSweepFailures prometheus.Counter
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by result",
			},
			[]string{"result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		batchRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "batch_rows_total",
				Help: "Total batch rows by outcome",
			},
			[]string{"outcome"},
		)

		pushChunks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "push_chunks_total",
				Help: "Total realtime chunks delivered by result",
			},
			[]string{"result"},
		)
		pushDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "push_dropped_total",
				Help: "Total realtime pushes dropped by reason",
			},
			[]string{"reason"},
		)

		cacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "code_cache_lookups_total",
				Help: "Total identifier cache lookups by result",
			},
			[]string{"result"},
		)

		alarmEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Total triggered alarms by severity",
			},
			[]string{"severity"},
		)
		alarmSweepFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_sweep_failures_total",
				Help: "Total per-row failures during batch alarm sweeps",
			},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			batchRows,
			pushChunks,
			pushDropped,
			cacheLookups,
			alarmEvents,
			alarmSweepFailures,
		)

		if db != nil {
			prometheus.MustRegister(prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: metricPrefix + "db_open_connections",
					Help: "Open database connections",
				},
				func() float64 { return float64(db.Stats().OpenConnections) },
			))
		}
	})
}

// ObserveIngest records ingest request duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// AddBatchRows increments batch row counters by outcome.
func AddBatchRows(outcome string, count int) {
	if count <= 0 {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	if batchRows != nil {
		batchRows.WithLabelValues(outcome).Add(float64(count))
	}
}

// IncPushChunk increments delivered chunk counter.
func IncPushChunk(result string) {
	if result == "" {
		result = resultSuccess
	}
	if pushChunks != nil {
		pushChunks.WithLabelValues(result).Inc()
	}
}

// IncPushDropped increments dropped push counter.
func IncPushDropped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if pushDropped != nil {
		pushDropped.WithLabelValues(reason).Inc()
	}
}

// IncCacheLookup increments identifier cache lookup counter.
func IncCacheLookup(result string) {
	if result == "" {
		result = "unknown"
	}
	if cacheLookups != nil {
		cacheLookups.WithLabelValues(result).Inc()
	}
}

// IncAlarmEvent increments triggered alarm counter.
func IncAlarmEvent(severity string) {
	if severity == "" {
		severity = "unknown"
	}
	if alarmEvents != nil {
		alarmEvents.WithLabelValues(severity).Inc()
	}
}

// IncAlarmSweepFailure counts a per-row failure in a batch alarm sweep.
func IncAlarmSweepFailure() {
	if alarmSweepFailures != nil {
		alarmSweepFailures.Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	CacheHit  = "hit"
	CacheMiss = "miss"

	BatchRowSaved  = "saved"
	BatchRowFailed = "failed"
)
