package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/support-rag/backend/internal/conversation"
	"github.com/support-rag/backend/pkg/logger"
)

type ConversationHandler struct {
	store conversation.Store
}

func NewConversationHandler(store conversation.Store) *ConversationHandler {
	return &ConversationHandler{store: store}
}

func (h *ConversationHandler) HandleHistory(c *fiber.Ctx) error {
	conversationID := c.Params("id")
	if conversationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Conversation id is required",
		})
	}

	history, err := h.store.History(c.Context(), conversationID)
	if err != nil {
		logger.Error("Failed to load conversation history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load conversation history",
		})
	}

	return c.JSON(fiber.Map{
		"conversation_id": conversationID,
		"messages":        history,
	})
}
