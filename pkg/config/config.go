package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Index     IndexConfig
	Redis     RedisConfig
	LLM       LLMConfig
	RAG       RAGConfig
	Ingestion IngestionConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type IndexConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
	BlevePath      string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type LLMConfig struct {
	APIKey         string
	Endpoint       string
	ChatModel      string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
}

type RAGConfig struct {
	TopK int
}

type IngestionConfig struct {
	FailFast         bool
	EmbedConcurrency int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/support-rag")

	viper.SetEnvPrefix("SUPPORT_RAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations that cannot serve requests. Missing
// credentials are a startup failure, never a per-request one.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.apiKey is required")
	}
	if c.LLM.ChatModel == "" {
		return fmt.Errorf("llm.chatModel is required")
	}
	if c.LLM.EmbeddingModel == "" {
		return fmt.Errorf("llm.embeddingModel is required")
	}
	if c.Index.Endpoint == "" {
		return fmt.Errorf("index.endpoint is required")
	}
	if c.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is required")
	}
	if c.Index.VectorDim <= 0 {
		return fmt.Errorf("index.vectorDim must be positive")
	}

	if c.RAG.TopK < 1 {
		c.RAG.TopK = 1
	}
	if c.Ingestion.EmbedConcurrency < 1 {
		c.Ingestion.EmbedConcurrency = 1
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/tickets.db")

	viper.SetDefault("index.collectionName", "support_tickets")
	viper.SetDefault("index.vectorDim", 1536)
	viper.SetDefault("index.blevePath", "")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 3600)

	viper.SetDefault("llm.chatModel", "gpt-4o")
	viper.SetDefault("llm.embeddingModel", "text-embedding-ada-002")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 30)

	viper.SetDefault("rag.topK", 5)

	viper.SetDefault("ingestion.failFast", false)
	viper.SetDefault("ingestion.embedConcurrency", 4)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
