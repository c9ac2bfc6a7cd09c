package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/support-rag/backend/internal/metrics"
	"github.com/support-rag/backend/pkg/logger"
)

type FeedbackHandler struct{}

func NewFeedbackHandler() *FeedbackHandler {
	return &FeedbackHandler{}
}

// HandleFeedback records a thumbs up/down for an answer. Feedback is logged
// and counted only; durable storage is a collaborator's concern.
func (h *FeedbackHandler) HandleFeedback(c *fiber.Ctx) error {
	var req struct {
		MessageID string `json:"message_id"`
		Rating    int    `json:"rating"`
		Comment   string `json:"comment"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse feedback request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Rating != 1 && req.Rating != -1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Rating must be 1 or -1",
		})
	}

	metrics.FeedbackReceived.WithLabelValues(strconv.Itoa(req.Rating)).Inc()

	logger.Info("Feedback received",
		zap.String("message_id", req.MessageID),
		zap.Int("rating", req.Rating),
		zap.String("comment", req.Comment),
	)

	return c.JSON(fiber.Map{
		"status": "feedback recorded",
	})
}
