package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Interview metrics
	SessionsStarted  prometheus.Counter
	SessionsActive   prometheus.Gauge
	StageTransitions *prometheus.CounterVec
	Redirects        prometheus.Counter

	// Question generation
	GeneratorRequests *prometheus.CounterVec
	GeneratorLatency  prometheus.Histogram

	// Record lifecycle
	RecordOperations *prometheus.CounterVec
	AuditAnomalies   *prometheus.CounterVec
	PurgedRecords    prometheus.Counter

	// WebSocket metrics
	WebSocketConnections prometheus.Gauge
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the process-wide metrics, registering them on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "talentscout_interview_sessions_started_total",
				Help: "Total number of interview sessions started",
			}),
			SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "talentscout_interview_sessions_active",
				Help: "Number of interview sessions held in memory",
			}),
			StageTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "talentscout_interview_stage_transitions_total",
				Help: "Interview stage transitions by target stage",
			}, []string{"stage"}),
			Redirects: promauto.NewCounter(prometheus.CounterOpts{
				Name: "talentscout_interview_redirects_total",
				Help: "Answers redirected as off-topic or empty",
			}),

			GeneratorRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "talentscout_question_generation_total",
				Help: "Question generation outcomes",
			}, []string{"outcome"}), // generated, partial, fallback
			GeneratorLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "talentscout_question_generation_duration_seconds",
				Help:    "Question generation latency in seconds, retries included",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			}),

			RecordOperations: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "talentscout_record_operations_total",
				Help: "Record store operations by operation and result",
			}, []string{"operation", "result"}),
			AuditAnomalies: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "talentscout_audit_anomalies_total",
				Help: "Operations whose data step succeeded but whose audit write failed",
			}, []string{"action"}),
			PurgedRecords: promauto.NewCounter(prometheus.CounterOpts{
				Name: "talentscout_retention_purged_total",
				Help: "Records removed by the retention purge",
			}),

			WebSocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "talentscout_websocket_connections_active",
				Help: "Number of active WebSocket connections",
			}),
		}
	})
	return globalMetrics
}

// RecordOperation counts a record store operation result.
func (m *Metrics) RecordOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.RecordOperations.WithLabelValues(operation, result).Inc()
}
