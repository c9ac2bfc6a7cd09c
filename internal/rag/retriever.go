package rag

import (
	"context"

	"go.uber.org/zap"

	"github.com/support-rag/backend/internal/storage/models"
	"github.com/support-rag/backend/pkg/logger"
)

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a hybrid (lexical + vector) query against the index.
type Searcher interface {
	Search(ctx context.Context, queryText string, queryVector []float32, topK int) ([]models.ContextRecord, error)
}

type Retriever struct {
	embedder Embedder
	searcher Searcher
	topK     int
}

func NewRetriever(embedder Embedder, searcher Searcher, topK int) *Retriever {
	if topK < 1 {
		topK = 1
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		topK:     topK,
	}
}

// RetrieveContext returns the top-ranked context records for a query. It
// never fails: an embedding or index error degrades to an empty context so
// the chat turn can still produce an answer.
func (r *Retriever) RetrieveContext(ctx context.Context, query string) []models.ContextRecord {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		logger.Error("Query embedding failed, returning empty context", zap.Error(err))
		return nil
	}

	records, err := r.searcher.Search(ctx, query, embedding, r.topK)
	if err != nil {
		logger.Error("Index search failed, returning empty context", zap.Error(err))
		return nil
	}

	return records
}
