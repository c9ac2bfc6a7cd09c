package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/support-rag/backend/internal/storage/models"
	"github.com/support-rag/backend/pkg/logger"
)

// Answerer is the chat entry point of the RAG engine.
type Answerer interface {
	Answer(ctx context.Context, query string) *models.AnswerResult
}

type ChatHandler struct {
	engine Answerer
}

func NewChatHandler(engine Answerer) *ChatHandler {
	return &ChatHandler{engine: engine}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req struct {
		Message        string `json:"message"`
		ConversationID string `json:"conversation_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse chat request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	result := h.engine.Answer(c.Context(), req.Message)

	return c.JSON(fiber.Map{
		"answer":           result.Answer,
		"sources":          result.Sources,
		"conversation_id":  conversationID,
		"confidence_score": result.ConfidenceScore,
	})
}
