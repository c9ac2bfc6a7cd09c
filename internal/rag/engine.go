package rag

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/support-rag/backend/internal/metrics"
	"github.com/support-rag/backend/internal/storage/models"
	"github.com/support-rag/backend/pkg/logger"
	"github.com/support-rag/backend/pkg/utils"
)

// AnswerCache avoids recomputing answers for repeated queries. Optional; the
// engine works without one.
type AnswerCache interface {
	GetAnswer(ctx context.Context, queryHash string) (*models.AnswerResult, bool, error)
	SetAnswer(ctx context.Context, queryHash string, result *models.AnswerResult) error
}

// Engine is the externally-facing query->answer entry point: retrieve, then
// generate. Both stages absorb their own failure modes, so Answer never
// reports an error for downstream unavailability.
type Engine struct {
	retriever *Retriever
	generator *Generator
	cache     AnswerCache
}

func NewEngine(retriever *Retriever, generator *Generator, cache AnswerCache) *Engine {
	return &Engine{
		retriever: retriever,
		generator: generator,
		cache:     cache,
	}
}

func (e *Engine) Answer(ctx context.Context, query string) *models.AnswerResult {
	start := time.Now()

	if e.cache != nil {
		hash := utils.HashString(query)
		if cached, ok, err := e.cache.GetAnswer(ctx, hash); err != nil {
			logger.Warn("Answer cache lookup failed", zap.Error(err))
		} else if ok {
			metrics.CacheHits.WithLabelValues("answer").Inc()
			return cached
		} else {
			metrics.CacheMisses.WithLabelValues("answer").Inc()
		}
	}

	contexts := e.retriever.RetrieveContext(ctx, query)
	metrics.ContextResultsCount.Observe(float64(len(contexts)))

	result := e.generator.GenerateResponse(ctx, query, contexts)

	metrics.QueryDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	metrics.ConfidenceScore.Observe(result.ConfidenceScore)
	metrics.QueryTotal.WithLabelValues("ok").Inc()

	// Fallback answers are transient; only real answers get cached.
	if e.cache != nil && result.ConfidenceScore > 0 {
		if err := e.cache.SetAnswer(ctx, utils.HashString(query), result); err != nil {
			logger.Warn("Answer cache write failed", zap.Error(err))
		}
	}

	logger.Info("Query answered",
		zap.Int("contexts", len(contexts)),
		zap.Int("sources", len(result.Sources)),
		zap.Float64("confidence", result.ConfidenceScore),
		zap.Duration("latency", time.Since(start)),
	)

	return result
}
