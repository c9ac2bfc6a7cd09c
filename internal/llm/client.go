package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/support-rag/backend/internal/metrics"
	"github.com/support-rag/backend/pkg/apperrors"
	"github.com/support-rag/backend/pkg/circuitbreaker"
	"github.com/support-rag/backend/pkg/config"
	"github.com/support-rag/backend/pkg/logger"
	"github.com/support-rag/backend/pkg/retry"
)

const embedBatchSize = 100

type Client struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// CompletionRequest carries one chat turn. Temperature is a pointer so an
// explicit 0.0 is distinguishable from "use the configured default".
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// NewClient builds a chat-completion + embedding client. A non-empty
// endpoint selects Azure OpenAI; otherwise the public OpenAI API is used.
func NewClient(cfg config.LLMConfig) *Client {
	var client *openai.Client
	if cfg.Endpoint != "" {
		client = openai.NewClientWithConfig(openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint))
	} else {
		client = openai.NewClient(cfg.APIKey)
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	// Embedding calls are retried once then surfaced; ingestion skips the
	// ticket, retrieval degrades to an empty context.
	retryConfig := retry.Config{
		MaxAttempts:    2,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		RetryIf:        isTransient,
		Logger:         logger.GetLogger(),
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger.Info("LLM client initialized",
		zap.String("chat_model", cfg.ChatModel),
		zap.String("embedding_model", cfg.EmbeddingModel),
		zap.Bool("azure", cfg.Endpoint != ""),
	)

	return &Client{
		client:         client,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		timeout:        timeout,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := c.effectiveTemperature(req)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.chatModel,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)
			if err != nil {
				return err
			}

			metrics.LLMTokensUsed.WithLabelValues(c.chatModel, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.chatModel, "completion").Add(float64(resp.Usage.CompletionTokens))

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})
	if err != nil {
		return nil, classifyErr("completion", err)
	}

	return result, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)
			if err != nil {
				return err
			}

			embedding = make([]float32, len(resp.Data[0].Embedding))
			copy(embedding, resp.Data[0].Embedding)

			return nil
		})
	})
	if err != nil {
		metrics.EmbeddingFailures.Inc()
		return nil, classifyErr("embedding", err)
	}

	return embedding, nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	embeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]

		err := c.cb.Execute(ctx, func() error {
			return retry.Do(ctx, c.retryConfig, func() error {
				resp, err := c.client.CreateEmbeddings(
					ctx,
					openai.EmbeddingRequest{
						Input: batch,
						Model: openai.EmbeddingModel(c.embeddingModel),
					},
				)
				if err != nil {
					return err
				}

				for _, data := range resp.Data {
					embedding := make([]float32, len(data.Embedding))
					copy(embedding, data.Embedding)
					embeddings = append(embeddings, embedding)
				}

				return nil
			})
		})
		if err != nil {
			metrics.EmbeddingFailures.Inc()
			return nil, classifyErr("embedding", err)
		}
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}

func (c *Client) effectiveTemperature(req CompletionRequest) float32 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return c.temperature
}

// isTransient reports whether a provider failure may clear on its own.
// Client-side API errors other than rate limits never will, so retrying
// them only burns the attempt budget.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	return true
}

func classifyErr(provider string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &apperrors.RateLimitError{Provider: provider}
	}
	return apperrors.NewUpstreamServiceError(provider, fmt.Errorf("request failed: %w", err))
}
