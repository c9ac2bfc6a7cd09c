package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "support_rag_query_duration_seconds",
			Help:    "Chat query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"stage"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_rag_query_total",
			Help: "Total number of chat queries processed",
		},
		[]string{"status"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "support_rag_confidence_score",
			Help:    "Answer confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	ContextResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "support_rag_context_results_count",
			Help:    "Number of context records retrieved per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_rag_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	EmbeddingFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "support_rag_embedding_failures_total",
			Help: "Total embedding calls that failed after retries",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_rag_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_rag_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	TicketsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_rag_tickets_ingested_total",
			Help: "Tickets processed by the ingestion pipeline",
		},
		[]string{"outcome"},
	)

	FeedbackReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_rag_feedback_total",
			Help: "Feedback submissions by rating",
		},
		[]string{"rating"},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(ContextResultsCount)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(EmbeddingFailures)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(TicketsIngested)
	prometheus.MustRegister(FeedbackReceived)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
