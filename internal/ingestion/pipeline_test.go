package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/support-rag/backend/internal/storage/models"
	"github.com/support-rag/backend/pkg/apperrors"
	"github.com/support-rag/backend/pkg/config"
)

type fakeStore struct {
	mu      sync.Mutex
	rows    map[string]models.Ticket
	err     error
	batches int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]models.Ticket)}
}

func (f *fakeStore) UpsertTickets(_ context.Context, tickets []models.Ticket) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	if f.err != nil {
		return 0, f.err
	}
	inserted := 0
	for _, t := range tickets {
		if _, exists := f.rows[t.TicketID]; exists {
			continue
		}
		f.rows[t.TicketID] = t
		inserted++
	}
	return inserted, nil
}

type fakeEmbedder struct {
	mu         sync.Mutex
	failOn     map[string]bool
	batchErr   error
	calls      int
	batchCalls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for substr := range f.failOn {
		if strings.Contains(text, substr) {
			return nil, errors.New("provider unavailable")
		}
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// EmbedBatch is all-or-nothing like the real provider call: any bad text
// fails the whole batch.
func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		for substr := range f.failOn {
			if strings.Contains(text, substr) {
				return nil, errors.New("provider unavailable")
			}
		}
		vectors = append(vectors, []float32{0.1, 0.2, 0.3})
	}
	return vectors, nil
}

type fakeIndexer struct {
	mu   sync.Mutex
	docs []models.IndexDocument
	err  error
}

func (f *fakeIndexer) Upsert(_ context.Context, docs []models.IndexDocument) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.docs = append(f.docs, docs...)
	return len(docs), nil
}

func rawTicket(id string) models.RawTicket {
	return models.RawTicket{
		TicketID:     id,
		CustomerName: "Bob Jones",
		Timestamp:    "2023-10-01T10:00:00Z",
		Category:     "login",
		Question:     "Can't log in!",
		Resolution:   "Use the 'Forgot Password' link.",
	}
}

func newPipeline(store *fakeStore, embedder *fakeEmbedder, indexer *fakeIndexer, failFast bool) *Pipeline {
	return NewPipeline(store, embedder, indexer, nil, config.IngestionConfig{
		FailFast:         failFast,
		EmbedConcurrency: 2,
	})
}

func TestIngestHappyPath(t *testing.T) {
	store := newFakeStore()
	indexer := &fakeIndexer{}
	p := newPipeline(store, &fakeEmbedder{}, indexer, false)

	report, err := p.Ingest(context.Background(), []models.RawTicket{rawTicket("TKT-1"), rawTicket("TKT-2")})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if report.Validated != 2 || report.Persisted != 2 || report.Indexed != 2 || report.SkippedEmbeddings != 0 {
		t.Errorf("report = %+v, want 2/2/2/0", report)
	}
	if len(indexer.docs) != 2 {
		t.Fatalf("indexed docs = %d, want 2", len(indexer.docs))
	}
	if indexer.docs[0].ID != "TKT_1" && indexer.docs[1].ID != "TKT_1" {
		t.Errorf("doc IDs = %v/%v, want hyphens replaced", indexer.docs[0].ID, indexer.docs[1].ID)
	}
}

func TestIngestValidationRejectsWholeBatch(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(store, &fakeEmbedder{}, &fakeIndexer{}, false)

	bad := rawTicket("TKT-2")
	bad.Resolution = ""

	_, err := p.Ingest(context.Background(), []models.RawTicket{rawTicket("TKT-1"), bad})

	var verr *apperrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Ingest() error = %v, want ValidationError", err)
	}
	if verr.Field != "resolution" {
		t.Errorf("ValidationError.Field = %q, want %q", verr.Field, "resolution")
	}
	if store.batches != 0 {
		t.Errorf("store batches = %d, want 0 rows persisted on validation failure", store.batches)
	}
}

func TestIngestValidationNamesFirstMissingField(t *testing.T) {
	fields := []struct {
		name   string
		mutate func(*models.RawTicket)
	}{
		{"ticket_id", func(r *models.RawTicket) { r.TicketID = "" }},
		{"customer_name", func(r *models.RawTicket) { r.CustomerName = "" }},
		{"timestamp", func(r *models.RawTicket) { r.Timestamp = "" }},
		{"category", func(r *models.RawTicket) { r.Category = "" }},
		{"question", func(r *models.RawTicket) { r.Question = "" }},
		{"resolution", func(r *models.RawTicket) { r.Resolution = "" }},
	}

	for _, tt := range fields {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(newFakeStore(), &fakeEmbedder{}, &fakeIndexer{}, false)
			bad := rawTicket("TKT-1")
			tt.mutate(&bad)

			_, err := p.Ingest(context.Background(), []models.RawTicket{bad})

			var verr *apperrors.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if verr.Field != tt.name {
				t.Errorf("Field = %q, want %q", verr.Field, tt.name)
			}
		})
	}
}

func TestIngestMalformedTimestamp(t *testing.T) {
	p := newPipeline(newFakeStore(), &fakeEmbedder{}, &fakeIndexer{}, false)
	bad := rawTicket("TKT-1")
	bad.Timestamp = "yesterday"

	_, err := p.Ingest(context.Background(), []models.RawTicket{bad})

	var verr *apperrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if verr.Field != "timestamp" {
		t.Errorf("Field = %q, want %q", verr.Field, "timestamp")
	}
}

func TestIngestNormalizesBeforePersistAndEmbed(t *testing.T) {
	store := newFakeStore()
	indexer := &fakeIndexer{}
	p := newPipeline(store, &fakeEmbedder{}, indexer, false)

	if _, err := p.Ingest(context.Background(), []models.RawTicket{rawTicket("TKT-1")}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	persisted := store.rows["TKT-1"]
	if persisted.Question != "cant log in" {
		t.Errorf("persisted question = %q, want normalized", persisted.Question)
	}
	if persisted.Resolution != "use the forgot password link" {
		t.Errorf("persisted resolution = %q, want normalized", persisted.Resolution)
	}
	if indexer.docs[0].Question != persisted.Question {
		t.Errorf("indexed question %q differs from persisted %q", indexer.docs[0].Question, persisted.Question)
	}
}

func TestIngestStripsMarkup(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(store, &fakeEmbedder{}, &fakeIndexer{}, false)

	raw := rawTicket("TKT-1")
	raw.Question = "<p>Can't <b>log in</b></p>"

	if _, err := p.Ingest(context.Background(), []models.RawTicket{raw}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if got := store.rows["TKT-1"].Question; got != "cant log in" {
		t.Errorf("question = %q, want markup stripped then cleaned", got)
	}
}

func TestIngestEmbedsCacheMissesInOneBatch(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	p := newPipeline(store, embedder, &fakeIndexer{}, false)

	batch := []models.RawTicket{rawTicket("TKT-1"), rawTicket("TKT-2"), rawTicket("TKT-3")}

	report, err := p.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if report.Indexed != 3 {
		t.Errorf("Indexed = %d, want 3", report.Indexed)
	}
	if embedder.batchCalls != 1 {
		t.Errorf("batch calls = %d, want 1", embedder.batchCalls)
	}
	if embedder.calls != 0 {
		t.Errorf("single-embed calls = %d, want 0 when the batch succeeds", embedder.calls)
	}
}

func TestIngestSkipsFailedEmbeddings(t *testing.T) {
	store := newFakeStore()
	indexer := &fakeIndexer{}
	embedder := &fakeEmbedder{failOn: map[string]bool{"broken widget": true}}
	p := newPipeline(store, embedder, indexer, false)

	bad := rawTicket("TKT-2")
	bad.Question = "My broken widget query"

	report, err := p.Ingest(context.Background(), []models.RawTicket{rawTicket("TKT-1"), bad})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if report.SkippedEmbeddings != 1 {
		t.Errorf("SkippedEmbeddings = %d, want 1", report.SkippedEmbeddings)
	}
	if report.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1", report.Indexed)
	}
	if report.Persisted != 2 {
		t.Errorf("Persisted = %d, want 2 (embedding failure does not block persistence)", report.Persisted)
	}
}

func TestIngestPersistenceFailureFailFast(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("disk full")
	indexer := &fakeIndexer{}
	p := newPipeline(store, &fakeEmbedder{}, indexer, true)

	_, err := p.Ingest(context.Background(), []models.RawTicket{rawTicket("TKT-1")})

	var perr *apperrors.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want PersistenceError in fail-fast mode", err)
	}
	if len(indexer.docs) != 0 {
		t.Errorf("indexed docs = %d, want 0 after fail-fast persistence error", len(indexer.docs))
	}
}

func TestIngestPersistenceFailureBestEffort(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("disk full")
	indexer := &fakeIndexer{}
	p := newPipeline(store, &fakeEmbedder{}, indexer, false)

	report, err := p.Ingest(context.Background(), []models.RawTicket{rawTicket("TKT-1")})
	if err != nil {
		t.Fatalf("Ingest() error = %v, want nil in best-effort mode", err)
	}
	if report.Persisted != 0 {
		t.Errorf("Persisted = %d, want 0", report.Persisted)
	}
	if report.Indexed != 1 {
		t.Errorf("Indexed = %d, want indexing to proceed best-effort", report.Indexed)
	}
}

type fakeEmbedCache struct {
	mu      sync.Mutex
	entries map[string][]float32
}

func newFakeEmbedCache() *fakeEmbedCache {
	return &fakeEmbedCache{entries: make(map[string][]float32)}
}

func (f *fakeEmbedCache) GetEmbedding(_ context.Context, hash string) ([]float32, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.entries[hash]
	return v, ok, nil
}

func (f *fakeEmbedCache) SetEmbedding(_ context.Context, hash string, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[hash] = vector
	return nil
}

func TestIngestEmbeddingCacheSkipsProvider(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	p := NewPipeline(store, embedder, &fakeIndexer{}, newFakeEmbedCache(), config.IngestionConfig{EmbedConcurrency: 2})

	batch := []models.RawTicket{rawTicket("TKT-1"), rawTicket("TKT-2")}

	if _, err := p.Ingest(context.Background(), batch); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	report, err := p.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}

	if report.Indexed != 2 {
		t.Errorf("second Indexed = %d, want 2 from cached embeddings", report.Indexed)
	}
	if embedder.batchCalls != 1 {
		t.Errorf("batch calls = %d, want 1 (second run served from cache)", embedder.batchCalls)
	}
}

func TestIngestIdempotentReRun(t *testing.T) {
	store := newFakeStore()
	indexer := &fakeIndexer{}
	p := newPipeline(store, &fakeEmbedder{}, indexer, false)

	batch := []models.RawTicket{rawTicket("TKT-1"), rawTicket("TKT-2")}

	first, err := p.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	second, err := p.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}

	if first.Persisted != 2 || second.Persisted != 0 {
		t.Errorf("Persisted = %d then %d, want 2 then 0", first.Persisted, second.Persisted)
	}
	if second.Indexed != 2 {
		t.Errorf("second Indexed = %d, want 2 (index overwrites by deterministic id)", second.Indexed)
	}
	if len(store.rows) != 2 {
		t.Errorf("rows = %d, want 2 after re-run", len(store.rows))
	}
}

func TestIngestLargeBatchBoundedConcurrency(t *testing.T) {
	store := newFakeStore()
	indexer := &fakeIndexer{}
	embedder := &fakeEmbedder{batchErr: errors.New("payload too large")}
	p := newPipeline(store, embedder, indexer, false)

	var batch []models.RawTicket
	for i := 0; i < 25; i++ {
		batch = append(batch, rawTicket(fmt.Sprintf("TKT-%03d", i)))
	}

	report, err := p.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if report.Indexed != 25 {
		t.Errorf("Indexed = %d, want 25", report.Indexed)
	}
	if embedder.calls != 25 {
		t.Errorf("embedder calls = %d, want 25", embedder.calls)
	}
}
