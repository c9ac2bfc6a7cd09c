package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/support-rag/backend/internal/llm"
	"github.com/support-rag/backend/internal/storage/models"
	"github.com/support-rag/backend/pkg/logger"
)

const systemPrompt = "You are a professional AI customer support assistant. " +
	"Use the provided context from previous support tickets to answer the user's question. " +
	"If the answer isn't in the context, state that you don't know and suggest human support. " +
	"Always include the Ticket IDs used in your response as sources."

const fallbackAnswer = "I'm having trouble connecting to my knowledge base right now. " +
	"Please try again in a moment or reach out to human support."

// generationTemperature keeps sampling deterministic-leaning so answers stay
// grounded in the supplied tickets.
var generationTemperature float32 = 0.2

// Completer invokes the chat-completion model.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

type Generator struct {
	completer Completer
}

func NewGenerator(completer Completer) *Generator {
	return &Generator{completer: completer}
}

// GenerateResponse produces a cited answer from the supplied contexts. Model
// failure degrades to a fixed fallback answer instead of an error: a chat
// turn reports degraded service, never an outage.
func (g *Generator) GenerateResponse(ctx context.Context, query string, contexts []models.ContextRecord) *models.AnswerResult {
	groundingBlock := buildGroundingBlock(contexts)

	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", groundingBlock, query)

	resp, err := g.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  &generationTemperature,
	})
	if err != nil {
		logger.Error("Generation failed, returning fallback answer", zap.Error(err))
		return &models.AnswerResult{
			Answer:          fallbackAnswer,
			Sources:         []string{},
			ConfidenceScore: 0,
		}
	}

	sources := validateCitations(resp.Content, contexts)

	confidence := 0.5
	if len(sources) > 0 {
		confidence = 0.95
	}

	return &models.AnswerResult{
		Answer:          resp.Content,
		Sources:         sources,
		ConfidenceScore: confidence,
	}
}

// buildGroundingBlock concatenates one block per context record, in input
// order, separated by blank lines.
func buildGroundingBlock(contexts []models.ContextRecord) string {
	blocks := make([]string, 0, len(contexts))
	for _, c := range contexts {
		blocks = append(blocks, fmt.Sprintf("Ticket: %s\nCategory: %s\nQuestion: %s\nResolution: %s",
			c.TicketID, c.Category, c.Question, c.Resolution))
	}
	return strings.Join(blocks, "\n\n")
}

// validateCitations keeps the ticket IDs whose literal string appears in the
// answer text, preserving context order. This is a substring heuristic, not
// semantic attribution; matching is case-sensitive and exact.
func validateCitations(answer string, contexts []models.ContextRecord) []string {
	sources := make([]string, 0, len(contexts))
	if len(contexts) == 0 {
		return sources
	}

	for _, c := range contexts {
		if strings.Contains(answer, c.TicketID) {
			sources = append(sources, c.TicketID)
		}
	}

	return sources
}
