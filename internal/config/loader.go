package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load builds a Config from environment variables (optionally via a .env
// file), falling back to LoadConfig(path) for anything present in a YAML
// file named by CONFIG_PATH. Environment variables take precedence so
// deployments can override a shared config.yaml per-instance.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = *loaded
	} else {
		applyDefaults(&cfg)
	}

	if v := strings.TrimSpace(os.Getenv("DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("VECTOR_BACKEND")); v != "" {
		cfg.Vector.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("VECTOR_DSN")); v != "" {
		cfg.Vector.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("VECTOR_DIMENSIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vector.Dimensions = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("VECTOR_METRIC")); v != "" {
		cfg.Vector.Metric = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Cache.Enabled = true
		cfg.Cache.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.Kafka.Brokers = v
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_GROUP_ID")); v != "" {
		cfg.Kafka.GroupID = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_PROVIDER")); v != "" {
		cfg.LLM.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.LLM.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); v != "" {
		cfg.LLM.OpenAI.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.LLM.Anthropic.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL")); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_MODEL")); v != "" {
		cfg.Embedding.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("YOUTUBE_DATA_BASE_URL")); v != "" {
		cfg.External.YouTubeDataBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("YOUTUBE_ANALYTICS_BASE_URL")); v != "" {
		cfg.External.YouTubeAnalyticsBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TRANSCRIPT_BASE_URL")); v != "" {
		cfg.External.TranscriptBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TREND_FEED_BASE_URL")); v != "" {
		cfg.External.TrendFeedBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.OTel.Enabled = true
		cfg.OTel.Endpoint = v
	}

	applyDefaults(&cfg)

	if cfg.Database.DSN == "" {
		return Config{}, fmt.Errorf("DATABASE_DSN is required")
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required when llm.provider=openai")
	}
	if cfg.LLM.Provider == "anthropic" && cfg.LLM.Anthropic.APIKey == "" {
		return Config{}, fmt.Errorf("ANTHROPIC_API_KEY is required when llm.provider=anthropic")
	}
	return cfg, nil
}
