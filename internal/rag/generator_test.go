package rag

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/support-rag/backend/internal/llm"
	"github.com/support-rag/backend/internal/storage/models"
)

type fakeCompleter struct {
	content string
	err     error
	lastReq llm.CompletionRequest
	calls   int
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

func billingContexts() []models.ContextRecord {
	return []models.ContextRecord{
		{TicketID: "T-1", Category: "billing", Question: "how do i get a refund", Resolution: "refunds are issued within 5 days"},
		{TicketID: "T-2", Category: "billing", Question: "card declined", Resolution: "retry with another card"},
	}
}

func TestGenerateResponseCitedSources(t *testing.T) {
	completer := &fakeCompleter{content: "Refunds take 5 days (see T-1). Also relevant: T-2."}
	gen := NewGenerator(completer)

	result := gen.GenerateResponse(context.Background(), "refund?", billingContexts())

	if want := []string{"T-1", "T-2"}; !reflect.DeepEqual(result.Sources, want) {
		t.Errorf("Sources = %v, want %v", result.Sources, want)
	}
	if result.ConfidenceScore != 0.95 {
		t.Errorf("ConfidenceScore = %v, want exactly 0.95", result.ConfidenceScore)
	}
}

func TestGenerateResponseUncitedSourcesDropped(t *testing.T) {
	completer := &fakeCompleter{content: "Based on ticket T-2, retry with another card."}
	gen := NewGenerator(completer)

	result := gen.GenerateResponse(context.Background(), "card declined", billingContexts())

	if want := []string{"T-2"}; !reflect.DeepEqual(result.Sources, want) {
		t.Errorf("Sources = %v, want %v", result.Sources, want)
	}
}

func TestGenerateResponseNoCitations(t *testing.T) {
	completer := &fakeCompleter{content: "I don't know, please contact human support."}
	gen := NewGenerator(completer)

	result := gen.GenerateResponse(context.Background(), "unrelated question", billingContexts())

	if len(result.Sources) != 0 {
		t.Errorf("Sources = %v, want empty", result.Sources)
	}
	if result.ConfidenceScore != 0.5 {
		t.Errorf("ConfidenceScore = %v, want exactly 0.5", result.ConfidenceScore)
	}
}

func TestGenerateResponseCaseSensitiveMatch(t *testing.T) {
	// t-1 lowercased must not count as a citation of T-1.
	completer := &fakeCompleter{content: "see ticket t-1 for details"}
	gen := NewGenerator(completer)

	result := gen.GenerateResponse(context.Background(), "refund?", billingContexts())

	if len(result.Sources) != 0 {
		t.Errorf("Sources = %v, want empty for case mismatch", result.Sources)
	}
}

func TestGenerateResponseEmptyContexts(t *testing.T) {
	completer := &fakeCompleter{content: "I don't have any matching tickets, escalating to human support."}
	gen := NewGenerator(completer)

	result := gen.GenerateResponse(context.Background(), "anything", nil)

	if result.Answer == "" {
		t.Error("Answer is empty, want non-empty fallback-style answer")
	}
	if len(result.Sources) != 0 {
		t.Errorf("Sources = %v, want empty for empty contexts", result.Sources)
	}
	if result.ConfidenceScore != 0.5 {
		t.Errorf("ConfidenceScore = %v, want 0.5", result.ConfidenceScore)
	}
}

func TestGenerateResponseModelFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("connection refused")}
	gen := NewGenerator(completer)

	result := gen.GenerateResponse(context.Background(), "refund?", billingContexts())

	if result.Answer == "" {
		t.Error("Answer is empty, want apologetic fallback")
	}
	if len(result.Sources) != 0 {
		t.Errorf("Sources = %v, want empty on failure", result.Sources)
	}
	if result.ConfidenceScore != 0 {
		t.Errorf("ConfidenceScore = %v, want 0 on failure", result.ConfidenceScore)
	}
}

func TestGenerateResponsePromptAssembly(t *testing.T) {
	completer := &fakeCompleter{content: "ok"}
	gen := NewGenerator(completer)

	gen.GenerateResponse(context.Background(), "how do refunds work", billingContexts())

	wantBlock := "Ticket: T-1\nCategory: billing\nQuestion: how do i get a refund\nResolution: refunds are issued within 5 days\n\n" +
		"Ticket: T-2\nCategory: billing\nQuestion: card declined\nResolution: retry with another card"
	if !strings.Contains(completer.lastReq.UserPrompt, wantBlock) {
		t.Errorf("UserPrompt missing grounding block:\n%s", completer.lastReq.UserPrompt)
	}
	if !strings.Contains(completer.lastReq.UserPrompt, "Question: how do refunds work") {
		t.Errorf("UserPrompt missing query: %s", completer.lastReq.UserPrompt)
	}
	if completer.lastReq.Temperature == nil || *completer.lastReq.Temperature != 0.2 {
		t.Errorf("Temperature = %v, want explicit 0.2", completer.lastReq.Temperature)
	}
	if !strings.Contains(completer.lastReq.SystemPrompt, "support assistant") {
		t.Errorf("SystemPrompt = %q, want support-assistant persona", completer.lastReq.SystemPrompt)
	}
}

func TestBuildGroundingBlockEmpty(t *testing.T) {
	if got := buildGroundingBlock(nil); got != "" {
		t.Errorf("buildGroundingBlock(nil) = %q, want empty", got)
	}
}
