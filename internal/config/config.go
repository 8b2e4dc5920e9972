// ytreport/internal/config/config.go
package config

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig configures the relational store holding Report, Task,
// Video, Channel, Comment, Idea and TrendKeyword rows.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxConns     int32  `yaml:"max_conns"`
	MinConns     int32  `yaml:"min_conns"`
}

// VectorConfig configures the ContentChunk vector store. Backend is one of
// "postgres" (pgvector extension on DatabaseConfig.DSN) or "qdrant".
type VectorConfig struct {
	Backend    string `yaml:"backend"`
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"` // cosine|l2|ip
}

// CacheConfig configures the Redis-backed existence cache in front of the
// vector store's idempotency gate.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Password string `yaml:"password"`
	DB      int    `yaml:"db"`
	TTLSeconds int `yaml:"ttl_seconds"`
}

// KafkaConfig configures the message bus (C8): broker list, consumer group,
// publish retry budget, and offset auto-commit interval.
type KafkaConfig struct {
	Brokers          string `yaml:"brokers"`
	GroupID          string `yaml:"group_id"`
	PublishRetries   int    `yaml:"publish_retries"`
	AutoCommitSecs   int    `yaml:"auto_commit_seconds"`
}

// OpenAIConfig configures the OpenAI-backed LLM + embedding clients.
type OpenAIConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	ChatModel      string  `yaml:"chat_model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	Temperature    float64 `yaml:"temperature"`
}

// EmbeddingConfig configures the HTTP embedding endpoint used by C2 and the
// metrics analyzer's consistency score. Defaults to the OpenAI embeddings
// endpoint but may point at any OpenAI-compatible server.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	Path      string `yaml:"path"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	APIHeader string `yaml:"api_header"`
	Timeout   int    `yaml:"timeout_seconds"`
}

// AnthropicConfig configures the Anthropic-backed LLM client.
type AnthropicConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int64   `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// LLMConfig selects and configures the provider used by the RAG executor,
// metrics analyzer and comment pipeline.
type LLMConfig struct {
	Provider   string          `yaml:"provider"` // "openai" | "anthropic"
	OpenAI     OpenAIConfig    `yaml:"openai"`
	Anthropic  AnthropicConfig `yaml:"anthropic"`
}

// RetryConfig holds retry budgets. The analytics RPC reads
// AnalyticsMaxAttempts and its fixed AnalyticsBackoffSecs schedule;
// MeaningChunkMaxAttempts becomes steps.Deps.ParseRetryBudget. The bus
// producer does not read PublishMaxAttempts: it uses KafkaConfig.PublishRetries.
type RetryConfig struct {
	AnalyticsMaxAttempts int   `yaml:"analytics_max_attempts"`
	AnalyticsBackoffSecs []int `yaml:"analytics_backoff_seconds"`
	MeaningChunkMaxAttempts int `yaml:"meaning_chunk_max_attempts"`
	PublishMaxAttempts   int   `yaml:"publish_max_attempts"`
}

// CommentSamplingConfig parameterizes the comment-sampling + stratified
// extrapolation algorithm (C6).
type CommentSamplingConfig struct {
	Threshold int     `yaml:"threshold"`
	Rate      float64 `yaml:"rate"`
	MaxFetch  int     `yaml:"max_fetch"`
}

// PipelineConfig records the two documented Open Question decisions.
type PipelineConfig struct {
	V2RunsIdeaStep bool `yaml:"v2_runs_idea_step"`
	PersistRetentionPlaceholderOnExhaustion bool `yaml:"persist_retention_placeholder_on_exhaustion"`
}

// ExternalConfig configures the YouTube/trend/transcript RPC adapters (C4).
type ExternalConfig struct {
	TranscriptBaseURL string `yaml:"transcript_base_url"`
	YouTubeDataBaseURL string `yaml:"youtube_data_base_url"`
	YouTubeAnalyticsBaseURL string `yaml:"youtube_analytics_base_url"`
	TrendFeedBaseURL  string `yaml:"trend_feed_base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

// TelemetryConfig controls OpenTelemetry tracing for step handlers.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Config is the process-wide configuration record. It is constructed once
// at startup and threaded explicitly through constructors; nothing reaches
// into a package-level singleton for it.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`

	Database  DatabaseConfig        `yaml:"database"`
	Vector    VectorConfig          `yaml:"vector"`
	Cache     CacheConfig           `yaml:"cache"`
	Kafka     KafkaConfig           `yaml:"kafka"`
	LLM       LLMConfig             `yaml:"llm"`
	Embedding EmbeddingConfig       `yaml:"embedding"`
	Retry     RetryConfig           `yaml:"retry"`
	Sampling  CommentSamplingConfig `yaml:"sampling"`
	Pipeline  PipelineConfig        `yaml:"pipeline"`
	External  ExternalConfig        `yaml:"external"`
	OTel      TelemetryConfig       `yaml:"otel"`
}

// LoadConfig reads the configuration from a YAML file and applies defaults
// for anything the file leaves unset.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		pterm.Error.Printf("Error reading config file: %v\n", err)
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		pterm.Error.Printf("Error unmarshaling config: %v\n", err)
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)

	pterm.Success.Println("Configuration loaded successfully.")
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 1
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "postgres"
	}
	if cfg.Vector.Dimensions == 0 {
		cfg.Vector.Dimensions = 1536
		pterm.Info.Println("No vector dimensions specified, defaulting to 1536.")
	}
	if cfg.Vector.Metric == "" {
		cfg.Vector.Metric = "cosine"
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "content_chunks"
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 3600
	}
	if cfg.Kafka.Brokers == "" {
		cfg.Kafka.Brokers = "localhost:9092"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "ytreport-worker"
	}
	if cfg.Kafka.PublishRetries <= 0 {
		cfg.Kafka.PublishRetries = 5
		pterm.Info.Println("No publish_retries specified, defaulting to 5.")
	}
	if cfg.Kafka.AutoCommitSecs <= 0 {
		cfg.Kafka.AutoCommitSecs = 5
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.OpenAI.ChatModel == "" {
		cfg.LLM.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.LLM.OpenAI.EmbeddingModel == "" {
		cfg.LLM.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.LLM.Anthropic.Model == "" {
		cfg.LLM.Anthropic.Model = "claude-3-7-sonnet-latest"
	}
	if cfg.LLM.Anthropic.MaxTokens == 0 {
		cfg.LLM.Anthropic.MaxTokens = 2048
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = cfg.LLM.OpenAI.BaseURL
		if cfg.Embedding.BaseURL == "" {
			cfg.Embedding.BaseURL = "https://api.openai.com/v1"
		}
	}
	if cfg.Embedding.Path == "" {
		cfg.Embedding.Path = "/embeddings"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = cfg.LLM.OpenAI.EmbeddingModel
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.OpenAI.APIKey
	}
	if cfg.Embedding.APIHeader == "" {
		cfg.Embedding.APIHeader = "Authorization"
	}
	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = 30
	}
	if cfg.Retry.AnalyticsMaxAttempts <= 0 {
		cfg.Retry.AnalyticsMaxAttempts = 3
	}
	if len(cfg.Retry.AnalyticsBackoffSecs) == 0 {
		cfg.Retry.AnalyticsBackoffSecs = []int{5, 10, 15}
	}
	if cfg.Retry.MeaningChunkMaxAttempts <= 0 {
		cfg.Retry.MeaningChunkMaxAttempts = 4
	}
	if cfg.Retry.PublishMaxAttempts <= 0 {
		cfg.Retry.PublishMaxAttempts = 5
	}
	if cfg.Sampling.Threshold <= 0 {
		cfg.Sampling.Threshold = 200
		pterm.Info.Println("No comment sampling threshold specified, defaulting to 200.")
	}
	if cfg.Sampling.Rate <= 0 {
		cfg.Sampling.Rate = 0.1
	}
	if cfg.Sampling.MaxFetch <= 0 {
		cfg.Sampling.MaxFetch = 1000
	}
	if cfg.External.TimeoutSeconds <= 0 {
		cfg.External.TimeoutSeconds = 30
	}
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = "ytreport"
	}
}
