package rag

import (
	"context"
	"testing"

	"github.com/support-rag/backend/internal/storage/models"
)

type fakeCache struct {
	store map[string]*models.AnswerResult
	sets  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string]*models.AnswerResult)}
}

func (f *fakeCache) GetAnswer(_ context.Context, hash string) (*models.AnswerResult, bool, error) {
	r, ok := f.store[hash]
	return r, ok, nil
}

func (f *fakeCache) SetAnswer(_ context.Context, hash string, result *models.AnswerResult) error {
	f.sets++
	f.store[hash] = result
	return nil
}

func newTestEngine(searcher *fakeSearcher, completer *fakeCompleter, cache AnswerCache) *Engine {
	retriever := NewRetriever(&fakeEmbedder{vector: []float32{0.1}}, searcher, 5)
	return NewEngine(retriever, NewGenerator(completer), cache)
}

func TestAnswerComposesRetrievalAndGeneration(t *testing.T) {
	searcher := &fakeSearcher{records: []models.ContextRecord{{TicketID: "T-9", Category: "login"}}}
	completer := &fakeCompleter{content: "Reset via the portal, per ticket T-9."}
	engine := newTestEngine(searcher, completer, nil)

	result := engine.Answer(context.Background(), "how to reset password")

	if len(result.Sources) != 1 || result.Sources[0] != "T-9" {
		t.Errorf("Sources = %v, want [T-9]", result.Sources)
	}
	if result.ConfidenceScore != 0.95 {
		t.Errorf("ConfidenceScore = %v, want 0.95", result.ConfidenceScore)
	}
	if searcher.calls != 1 {
		t.Errorf("searcher calls = %d, want 1", searcher.calls)
	}
}

func TestAnswerEmptyIndexStillAnswers(t *testing.T) {
	searcher := &fakeSearcher{}
	completer := &fakeCompleter{content: "I don't know, please contact human support."}
	engine := newTestEngine(searcher, completer, nil)

	result := engine.Answer(context.Background(), "anything")

	if result.Answer == "" {
		t.Error("Answer empty, want non-empty answer with zero contexts")
	}
	if len(result.Sources) != 0 {
		t.Errorf("Sources = %v, want empty", result.Sources)
	}
}

func TestAnswerUsesCache(t *testing.T) {
	searcher := &fakeSearcher{records: []models.ContextRecord{{TicketID: "T-1"}}}
	completer := &fakeCompleter{content: "Answer citing T-1."}
	cache := newFakeCache()
	engine := newTestEngine(searcher, completer, cache)

	first := engine.Answer(context.Background(), "repeated question")
	second := engine.Answer(context.Background(), "repeated question")

	if completer.calls != 1 {
		t.Errorf("completer calls = %d, want 1 (second answer served from cache)", completer.calls)
	}
	if first.Answer != second.Answer {
		t.Errorf("cached answer %q differs from original %q", second.Answer, first.Answer)
	}
}

func TestAnswerDoesNotCacheFallback(t *testing.T) {
	searcher := &fakeSearcher{records: []models.ContextRecord{{TicketID: "T-1"}}}
	completer := &fakeCompleter{err: context.DeadlineExceeded}
	cache := newFakeCache()
	engine := newTestEngine(searcher, completer, cache)

	result := engine.Answer(context.Background(), "question")

	if result.ConfidenceScore != 0 {
		t.Fatalf("ConfidenceScore = %v, want 0 fallback", result.ConfidenceScore)
	}
	if cache.sets != 0 {
		t.Errorf("cache writes = %d, want 0 for fallback answers", cache.sets)
	}
}
