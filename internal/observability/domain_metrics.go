package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batalla_chat_requests_total",
			Help: "Questions handled, by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)
	sqlRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batalla_sql_rejections_total",
			Help: "Generated statements rejected by the SQL validator.",
		},
		[]string{"reason"},
	)
	entityMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batalla_entity_matches_total",
			Help: "Entities extracted from questions, by entity and match method.",
		},
		[]string{"entity", "method"},
	)
	llmLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batalla_llm_latency_seconds",
			Help:    "Latency of language model calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"operation"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batalla_query_duration_seconds",
			Help:    "Execution time of validated SQL statements.",
			Buckets: prometheus.DefBuckets,
		},
	)
	referenceValues = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batalla_reference_values",
			Help: "Distinct reference values currently cached, by field.",
		},
		[]string{"field"},
	)
	referenceRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batalla_reference_refresh_total",
			Help: "Reference cache reloads, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		chatRequestsTotal,
		sqlRejectionsTotal,
		entityMatchesTotal,
		llmLatencySeconds,
		queryDurationSeconds,
		referenceValues,
		referenceRefreshTotal,
	)
}

func ObserveChatRequest(endpoint, outcome string) {
	chatRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

func IncrementSQLRejection(reason string) {
	sqlRejectionsTotal.WithLabelValues(reason).Inc()
}

func ObserveEntityMatch(entity, method string) {
	entityMatchesTotal.WithLabelValues(entity, method).Inc()
}

func ObserveLLMLatency(operation string, elapsed time.Duration) {
	llmLatencySeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func ObserveQueryDuration(elapsed time.Duration) {
	queryDurationSeconds.Observe(elapsed.Seconds())
}

func SetReferenceCounts(counts map[string]int) {
	for field, count := range counts {
		referenceValues.WithLabelValues(field).Set(float64(count))
	}
}

func ObserveReferenceRefresh(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	referenceRefreshTotal.WithLabelValues(result).Inc()
}
