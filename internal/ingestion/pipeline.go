package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/support-rag/backend/internal/index"
	"github.com/support-rag/backend/internal/metrics"
	"github.com/support-rag/backend/internal/storage/models"
	"github.com/support-rag/backend/pkg/apperrors"
	"github.com/support-rag/backend/pkg/config"
	"github.com/support-rag/backend/pkg/logger"
	"github.com/support-rag/backend/pkg/utils"
)

// TicketStore persists validated tickets, first write wins per ticket ID.
type TicketStore interface {
	UpsertTickets(ctx context.Context, tickets []models.Ticket) (int, error)
}

// Embedder converts ticket text to vectors, singly or batched.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer writes documents into the hybrid search index.
type Indexer interface {
	Upsert(ctx context.Context, docs []models.IndexDocument) (int, error)
}

// EmbeddingCache is an optional content-hash keyed cache; re-ingesting the
// same ticket content skips the provider round trip.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32) error
}

type Pipeline struct {
	store       TicketStore
	embedder    Embedder
	indexer     Indexer
	cache       EmbeddingCache
	failFast    bool
	concurrency int
}

func NewPipeline(store TicketStore, embedder Embedder, indexer Indexer, cache EmbeddingCache, cfg config.IngestionConfig) *Pipeline {
	concurrency := cfg.EmbedConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Pipeline{
		store:       store,
		embedder:    embedder,
		indexer:     indexer,
		cache:       cache,
		failFast:    cfg.FailFast,
		concurrency: concurrency,
	}
}

// Ingest validates, normalizes, persists and indexes a batch of raw tickets.
// Validation is all-or-nothing: one missing field rejects the whole batch
// before anything is written. Write failures honor the fail-fast setting;
// best-effort mode logs them and reports what survived.
func (p *Pipeline) Ingest(ctx context.Context, raw []models.RawTicket) (*models.IngestReport, error) {
	report := &models.IngestReport{}

	tickets, err := validateBatch(raw)
	if err != nil {
		metrics.TicketsIngested.WithLabelValues("rejected").Add(float64(len(raw)))
		return report, err
	}
	report.Validated = len(tickets)

	for i := range tickets {
		tickets[i].Question = normalizeField(tickets[i].Question)
		tickets[i].Resolution = normalizeField(tickets[i].Resolution)
	}

	persisted, err := p.store.UpsertTickets(ctx, tickets)
	if err != nil {
		perr := apperrors.NewPersistenceError("relational", err)
		if p.failFast {
			return report, perr
		}
		logger.Error("Ticket persistence failed, continuing with indexing", zap.Error(perr))
	}
	report.Persisted = persisted
	metrics.TicketsIngested.WithLabelValues("persisted").Add(float64(persisted))

	docs, skipped := p.embedTickets(ctx, tickets)
	report.SkippedEmbeddings = skipped
	metrics.TicketsIngested.WithLabelValues("embedding_skipped").Add(float64(skipped))

	if len(docs) > 0 {
		indexed, err := p.indexer.Upsert(ctx, docs)
		if err != nil {
			perr := apperrors.NewPersistenceError("index", err)
			if p.failFast {
				return report, perr
			}
			logger.Error("Index upsert failed", zap.Error(perr))
		}
		report.Indexed = indexed
		metrics.TicketsIngested.WithLabelValues("indexed").Add(float64(indexed))
	}

	logger.Info("Ingestion batch completed",
		zap.Int("validated", report.Validated),
		zap.Int("persisted", report.Persisted),
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped_embeddings", report.SkippedEmbeddings),
	)

	return report, nil
}

var requiredFields = []struct {
	name  string
	value func(*models.RawTicket) string
}{
	{"ticket_id", func(r *models.RawTicket) string { return r.TicketID }},
	{"customer_name", func(r *models.RawTicket) string { return r.CustomerName }},
	{"timestamp", func(r *models.RawTicket) string { return r.Timestamp }},
	{"category", func(r *models.RawTicket) string { return r.Category }},
	{"question", func(r *models.RawTicket) string { return r.Question }},
	{"resolution", func(r *models.RawTicket) string { return r.Resolution }},
}

func validateBatch(raw []models.RawTicket) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0, len(raw))

	for i := range raw {
		for _, field := range requiredFields {
			if field.value(&raw[i]) == "" {
				return nil, apperrors.NewValidationError(field.name)
			}
		}

		ts, err := time.Parse(time.RFC3339, raw[i].Timestamp)
		if err != nil {
			return nil, &apperrors.ValidationError{
				Field:   "timestamp",
				Message: fmt.Sprintf("Invalid timestamp for ticket %s: must be RFC3339", raw[i].TicketID),
			}
		}

		tickets = append(tickets, models.Ticket{
			TicketID:     raw[i].TicketID,
			CustomerName: raw[i].CustomerName,
			Timestamp:    ts,
			Category:     raw[i].Category,
			Question:     raw[i].Question,
			Resolution:   raw[i].Resolution,
		})
	}

	return tickets, nil
}

// embedTickets computes one embedding per ticket over the combined content.
// Cache misses go through a single batched provider call; when the batch
// fails, tickets are retried individually with bounded concurrency so one
// bad ticket only skips itself. Tickets whose embedding still fails (after
// the client's single retry) are skipped and counted.
func (p *Pipeline) embedTickets(ctx context.Context, tickets []models.Ticket) ([]models.IndexDocument, int) {
	texts := make([]string, len(tickets))
	hashes := make([]string, len(tickets))
	vectors := make([][]float32, len(tickets))

	var misses []int
	for i, ticket := range tickets {
		texts[i] = fmt.Sprintf("%s %s %s", ticket.Category, ticket.Question, ticket.Resolution)
		hashes[i] = utils.HashString(texts[i])

		if vector, ok := p.cachedEmbedding(ctx, hashes[i]); ok {
			vectors[i] = vector
			continue
		}
		misses = append(misses, i)
	}

	if len(misses) > 0 {
		missTexts := make([]string, len(misses))
		for j, i := range misses {
			missTexts[j] = texts[i]
		}

		batched, err := p.embedder.EmbedBatch(ctx, missTexts)
		if err == nil && len(batched) == len(misses) {
			for j, i := range misses {
				vectors[i] = batched[j]
				p.cacheEmbedding(ctx, hashes[i], batched[j])
			}
		} else {
			logger.Warn("Batch embedding failed, retrying tickets individually",
				zap.Int("tickets", len(misses)),
				zap.Error(err),
			)
			p.embedIndividually(ctx, tickets, texts, hashes, vectors, misses)
		}
	}

	docs := make([]models.IndexDocument, 0, len(tickets))
	skipped := 0

	for i, ticket := range tickets {
		if vectors[i] == nil {
			skipped++
			continue
		}

		docs = append(docs, models.IndexDocument{
			ID:            index.DocumentID(ticket.TicketID),
			TicketID:      ticket.TicketID,
			Category:      ticket.Category,
			Question:      ticket.Question,
			Resolution:    ticket.Resolution,
			ContentVector: vectors[i],
		})
	}

	return docs, skipped
}

func (p *Pipeline) embedIndividually(ctx context.Context, tickets []models.Ticket, texts, hashes []string, vectors [][]float32, misses []int) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.concurrency)

	for _, i := range misses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			vector, err := p.embedder.Embed(ctx, texts[i])
			if err != nil {
				logger.Warn("Embedding failed, skipping ticket",
					zap.String("ticket_id", tickets[i].TicketID),
					zap.Error(err),
				)
				return
			}
			vectors[i] = vector
			p.cacheEmbedding(ctx, hashes[i], vector)
		}(i)
	}
	wg.Wait()
}

func (p *Pipeline) cachedEmbedding(ctx context.Context, hash string) ([]float32, bool) {
	if p.cache == nil {
		return nil, false
	}

	vector, ok, err := p.cache.GetEmbedding(ctx, hash)
	if err != nil {
		logger.Warn("Embedding cache lookup failed", zap.Error(err))
		return nil, false
	}
	if ok {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return vector, true
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()
	return nil, false
}

func (p *Pipeline) cacheEmbedding(ctx context.Context, hash string, vector []float32) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetEmbedding(ctx, hash, vector); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
}
