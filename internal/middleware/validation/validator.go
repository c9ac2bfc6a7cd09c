package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxMessageLength    int
	MaxIngestBodySize   int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects malformed chat and ticket payloads before they reach
// the handlers: wrong content type, oversized bodies, and messages that look
// like injection attempts.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxMessageLength == 0 {
		cfg.MaxMessageLength = 5000
	}
	if cfg.MaxIngestBodySize == 0 {
		cfg.MaxIngestBodySize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == "POST" || c.Method() == "PUT" {
			contentType := c.Get("Content-Type")
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		path := c.Path()

		if strings.Contains(path, "/api/v1/chat") && c.Method() == "POST" {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			message, ok := req["message"].(string)
			if ok && len(message) > cfg.MaxMessageLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Message exceeds maximum length",
				})
			}

			if ok && containsXSS(message) {
				cfg.Logger.Warn("Potential XSS attempt in chat message",
					zap.String("ip", c.IP()),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid message content",
				})
			}
		}

		if strings.Contains(path, "/api/v1/tickets") && c.Method() == "POST" {
			if len(c.Body()) > cfg.MaxIngestBodySize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Ticket payload exceeds maximum size",
				})
			}
		}

		return c.Next()
	}
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}
