package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/support-rag/backend/internal/api/handlers"
	"github.com/support-rag/backend/internal/cache/redis"
	"github.com/support-rag/backend/internal/conversation"
	"github.com/support-rag/backend/internal/index"
	"github.com/support-rag/backend/internal/ingestion"
	"github.com/support-rag/backend/internal/llm"
	"github.com/support-rag/backend/internal/metrics"
	"github.com/support-rag/backend/internal/middleware/ratelimit"
	"github.com/support-rag/backend/internal/middleware/security"
	"github.com/support-rag/backend/internal/middleware/validation"
	"github.com/support-rag/backend/internal/rag"
	"github.com/support-rag/backend/internal/storage/sqlite"
	"github.com/support-rag/backend/pkg/config"
	appLogger "github.com/support-rag/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Support RAG API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	indexClient, err := index.NewClient(cfg.Index)
	if err != nil {
		appLogger.Fatal("Failed to create index client", zap.Error(err))
	}
	defer indexClient.Close()

	err = indexClient.EnsureCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to ensure index collection", zap.Error(err))
	}

	llmClient := llm.NewClient(cfg.LLM)

	var answerCache rag.AnswerCache
	var embeddingCache ingestion.EmbeddingCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
		} else {
			defer redisClient.Close()
			answerCache = redisClient
			embeddingCache = redisClient
		}
	}

	retriever := rag.NewRetriever(llmClient, indexClient, cfg.RAG.TopK)
	generator := rag.NewGenerator(llmClient)
	engine := rag.NewEngine(retriever, generator, answerCache)

	pipeline := ingestion.NewPipeline(sqliteClient, llmClient, indexClient, embeddingCache, cfg.Ingestion)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		MaxIngestBodySize: cfg.Server.BodyLimit,
		Logger:            appLogger.GetLogger(),
	}))

	chatHandler := handlers.NewChatHandler(engine)
	conversationHandler := handlers.NewConversationHandler(conversation.NewMockStore())
	feedbackHandler := handlers.NewFeedbackHandler()
	ingestHandler := handlers.NewIngestHandler(pipeline)

	api := app.Group("/api/v1")

	api.Post("/chat", chatHandler.HandleChat)
	api.Get("/conversations/:id/history", conversationHandler.HandleHistory)
	api.Post("/feedback", feedbackHandler.HandleFeedback)
	api.Post("/tickets", ingestHandler.HandleIngest)

	api.Get("/health", func(c *fiber.Ctx) error {
		status := "healthy"
		code := fiber.StatusOK
		if err := sqliteClient.Ping(c.Context()); err != nil {
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
