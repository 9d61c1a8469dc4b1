// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	LogsProcessed      *prometheus.CounterVec
	SwapsStored        prometheus.Counter
	TransactionsStored prometheus.Counter
	PoolsDiscovered    prometheus.Counter
	DecodeErrors       *prometheus.CounterVec

	// Detection metrics
	WindowsProcessed   *prometheus.CounterVec
	CandidatesFound    *prometheus.CounterVec
	CandidatesInserted *prometheus.CounterVec
	DetectionCursor    *prometheus.GaugeVec

	// Valuation metrics
	Valuations *prometheus.CounterVec

	// External calls
	ExternalCallLatency *prometheus.HistogramVec
	Retries             *prometheus.CounterVec

	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	ReportsGenerated  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
	LastSuccessfulPipeline  prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sandwich_scan"
	}

	return &Metrics{
		// Ingestion metrics
		LogsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "logs_processed_total",
			Help:      "Total number of warehouse logs processed by event",
		}, []string{"event"}),
		SwapsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "swaps_stored_total",
			Help:      "Total number of new swaps written",
		}),
		TransactionsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "transactions_stored_total",
			Help:      "Total number of new transactions written",
		}),
		PoolsDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "pools_discovered_total",
			Help:      "Total number of new pools found in factory logs",
		}),
		DecodeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "decode_errors_total",
			Help:      "Total number of log rows skipped because they failed to decode",
		}, []string{"event"}),

		// Detection metrics
		WindowsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "windows_processed_total",
			Help:      "Total number of block windows processed by status",
		}, []string{"status"}),
		CandidatesFound: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "candidates_found_total",
			Help:      "Total number of sandwich candidates matched",
		}, []string{"chain"}),
		CandidatesInserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "candidates_inserted_total",
			Help:      "Total number of sandwich attacks newly persisted",
		}, []string{"chain"}),
		DetectionCursor: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "cursor_block",
			Help:      "Last finalized front-run block per pool",
		}, []string{"pool"}),

		// Valuation metrics
		Valuations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "attacks_valued_total",
			Help:      "Total number of attacks valued by outcome",
		}, []string{"outcome"}),

		// External calls
		ExternalCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "call_latency_seconds",
			Help:      "Latency of warehouse and node calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "op"}),
		Retries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "retries_total",
			Help:      "Total number of retried external calls",
		}, []string{"source", "op"}),

		// Pipeline metrics
		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"phase", "status"}),
		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"phase"}),
		ReportsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulIngestion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful ingestion",
		}),
		LastSuccessfulPipeline: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_pipeline_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// Window statuses
const (
	WindowOK      = "ok"
	WindowSkipped = "skipped"
	WindowEmpty   = "empty"
)

// Valuation outcomes
const (
	ValuationPriced          = "priced"
	ValuationPartiallyPriced = "partially_priced"
)

// RecordLogProcessed increments the processed log counter of an event.
func RecordLogProcessed(event string) {
	DefaultMetrics.LogsProcessed.WithLabelValues(event).Inc()
}

// RecordDecodeError counts a log row skipped by the decoder.
func RecordDecodeError(event string) {
	DefaultMetrics.DecodeErrors.WithLabelValues(event).Inc()
}

// RecordStored adds newly written swaps and transactions.
func RecordStored(swaps, txs int) {
	DefaultMetrics.SwapsStored.Add(float64(swaps))
	DefaultMetrics.TransactionsStored.Add(float64(txs))
	DefaultMetrics.LastSuccessfulIngestion.SetToCurrentTime()
}

// RecordPoolsDiscovered adds newly registered pools.
func RecordPoolsDiscovered(n int) {
	DefaultMetrics.PoolsDiscovered.Add(float64(n))
}

// RecordWindow counts one processed detection window.
func RecordWindow(status string) {
	DefaultMetrics.WindowsProcessed.WithLabelValues(status).Inc()
}

// RecordCandidates adds matched and inserted candidates of a chain.
func RecordCandidates(chainID int64, found, inserted int) {
	chain := strconv.FormatInt(chainID, 10)
	DefaultMetrics.CandidatesFound.WithLabelValues(chain).Add(float64(found))
	DefaultMetrics.CandidatesInserted.WithLabelValues(chain).Add(float64(inserted))
}

// UpdateDetectionCursor sets the cursor gauge of a pool.
func UpdateDetectionCursor(poolID, block int64) {
	DefaultMetrics.DetectionCursor.WithLabelValues(strconv.FormatInt(poolID, 10)).Set(float64(block))
}

// RecordValuation counts one valued attack.
func RecordValuation(outcome string) {
	DefaultMetrics.Valuations.WithLabelValues(outcome).Inc()
}

// RecordExternalCall records the latency of a warehouse or node call.
func RecordExternalCall(source, op string, seconds float64) {
	DefaultMetrics.ExternalCallLatency.WithLabelValues(source, op).Observe(seconds)
}

// RecordRetry counts one retried external call.
func RecordRetry(source, op string) {
	DefaultMetrics.Retries.WithLabelValues(source, op).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// Pipeline run statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// PhaseOrchestrator labels a whole scheduled run.
const PhaseOrchestrator = "orchestrator"

// RecordPipelineRun records a pipeline run or one of its phases.
func RecordPipelineRun(phase, status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(phase).Observe(durationSeconds)
	if phase == PhaseOrchestrator && status == StatusSuccess {
		DefaultMetrics.LastSuccessfulPipeline.SetToCurrentTime()
	}
}

// RecordReportGenerated counts one written report.
func RecordReportGenerated() {
	DefaultMetrics.ReportsGenerated.Inc()
}
