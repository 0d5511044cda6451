// Package metrics provides Prometheus metrics collection for the eduagent
// platform. It tracks HTTP traffic, extraction pipeline runs, retrieval
// calls, and agent request outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eduagent"

// LatencyBuckets defines histogram buckets for latency metrics (in seconds).
var LatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0,
}

var (
	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestLatency tracks HTTP request latency distribution.
	HTTPRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_latency_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"method", "route"},
	)

	// ExtractionRuns counts extraction pipeline runs by strategy and outcome.
	ExtractionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_runs_total",
			Help:      "Total number of knowledge extraction runs",
		},
		[]string{"strategy", "outcome"},
	)

	// ExtractionKnowledgePoints tracks how many knowledge points each run yields.
	ExtractionKnowledgePoints = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_knowledge_points",
			Help:      "Knowledge points produced per extraction run",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"strategy"},
	)

	// RetrievalCalls counts retrieval calls by strategy and outcome.
	RetrievalCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_calls_total",
			Help:      "Total number of knowledge retrieval calls",
		},
		[]string{"strategy", "outcome"},
	)

	// RetrievalLatency tracks retrieval call latency by strategy.
	RetrievalLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_latency_seconds",
			Help:      "Knowledge retrieval latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"strategy"},
	)

	// AgentRequests counts agent requests by agent id and outcome.
	AgentRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_requests_total",
			Help:      "Total number of agent requests",
		},
		[]string{"agent_id", "outcome"},
	)

	// LLMCalls counts upstream LLM calls by provider, operation, and outcome.
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Total number of upstream LLM calls",
		},
		[]string{"provider", "operation", "outcome"},
	)

	// CacheOps counts cache lookups by cache name and result.
	CacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_ops_total",
			Help:      "Total cache lookups by result",
		},
		[]string{"cache", "result"},
	)
)

// RecordExtraction records one extraction run.
func RecordExtraction(strategy, outcome string, points int) {
	ExtractionRuns.WithLabelValues(strategy, outcome).Inc()
	if outcome == "success" {
		ExtractionKnowledgePoints.WithLabelValues(strategy).Observe(float64(points))
	}
}

// RecordRetrieval records one retrieval call.
func RecordRetrieval(strategy, outcome string, latency time.Duration) {
	RetrievalCalls.WithLabelValues(strategy, outcome).Inc()
	RetrievalLatency.WithLabelValues(strategy).Observe(latency.Seconds())
}

// RecordAgentRequest records one agent request outcome.
func RecordAgentRequest(agentID, outcome string) {
	AgentRequests.WithLabelValues(agentID, outcome).Inc()
}

// RecordLLMCall records one upstream LLM call.
func RecordLLMCall(provider, operation, outcome string) {
	LLMCalls.WithLabelValues(provider, operation, outcome).Inc()
}

// RecordCache records one cache lookup result, "hit" or "miss".
func RecordCache(cache, result string) {
	CacheOps.WithLabelValues(cache, result).Inc()
}
