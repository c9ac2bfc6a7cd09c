package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/support-rag/backend/internal/storage/models"
	"github.com/support-rag/backend/pkg/apperrors"
	"github.com/support-rag/backend/pkg/logger"
)

// Ingestor runs the ticket ETL pipeline over one batch.
type Ingestor interface {
	Ingest(ctx context.Context, raw []models.RawTicket) (*models.IngestReport, error)
}

type IngestHandler struct {
	pipeline Ingestor
}

func NewIngestHandler(pipeline Ingestor) *IngestHandler {
	return &IngestHandler{pipeline: pipeline}
}

func (h *IngestHandler) HandleIngest(c *fiber.Ctx) error {
	var tickets []models.RawTicket

	if err := c.BodyParser(&tickets); err != nil {
		logger.Error("Failed to parse ingestion payload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Payload must be a list of tickets",
		})
	}

	if len(tickets) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Payload must be a non-empty list of tickets",
		})
	}

	report, err := h.pipeline.Ingest(c.Context(), tickets)
	if err != nil {
		return ingestErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"report": report,
	})
}

func ingestErrorResponse(c *fiber.Ctx, err error) error {
	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": verr.Error(),
		})
	}

	var rerr *apperrors.RateLimitError
	if errors.As(err, &rerr) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Rate limit exceeded",
		})
	}

	var uerr *apperrors.UpstreamServiceError
	if errors.As(err, &uerr) {
		logger.Error("Upstream failure during ingestion", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Upstream service failure",
		})
	}

	logger.Error("Ingestion failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to ingest tickets",
	})
}
