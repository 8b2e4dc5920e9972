// Package bootstrap wires every collaborator package into the two
// process-level dependency bundles (cmd/apiserver, cmd/worker) a config.Config
// describes. It exists so neither cmd binary repeats the construction order
// its sibling already got right.
package bootstrap

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ytreport/internal/bus"
	"ytreport/internal/cache"
	"ytreport/internal/chunking"
	"ytreport/internal/comments"
	"ytreport/internal/config"
	"ytreport/internal/embedding"
	"ytreport/internal/external"
	"ytreport/internal/llm/providers"
	"ytreport/internal/metrics"
	"ytreport/internal/rag"
	"ytreport/internal/repository"
	"ytreport/internal/steps"
	"ytreport/internal/telemetry"
	"ytreport/internal/vectorstore"
)

// Resources bundles every long-lived collaborator built from a
// config.Config, plus the cleanup funcs the owning cmd's main() must defer.
type Resources struct {
	Config config.Config

	Pool  *pgxpool.Pool
	Store vectorstore.Store

	Deps      steps.Deps
	Producer  *bus.Producer
	Brokers   []string
	Existence *cache.ExistenceCache // nil when caching is disabled

	closers []func() error
}

// Close releases every resource Build opened, in reverse acquisition order,
// returning the first error encountered (if any) after attempting all of
// them.
func (r *Resources) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build constructs every collaborator a worker or control-plane process
// needs from cfg: the Postgres pool, the selected vector store backend, the
// LLM provider, the embedding client, the Kafka producer, and the steps.Deps
// bundle the step-handler registry is built from.
func Build(ctx context.Context, cfg config.Config) (*Resources, error) {
	r := &Resources{Config: cfg}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	r.Pool = pool
	r.closers = append(r.closers, func() error { pool.Close(); return nil })

	httpClient := telemetry.NewHTTPClient(&http.Client{Timeout: time.Duration(cfg.External.TimeoutSeconds) * time.Second})

	provider, err := providers.Build(cfg.LLM, httpClient)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("build llm provider: %w", err)
	}

	embedder := embedding.NewClient(cfg.Embedding, cfg.Vector.Dimensions)

	store, err := buildVectorStore(ctx, cfg, pool, embedder)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("build vector store: %w", err)
	}
	r.Store = store
	chunkerStore := store

	if cfg.Cache.Enabled {
		existence, err := cache.NewExistenceCache(cfg.Cache, store)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("build existence cache: %w", err)
		}
		r.Existence = existence
		r.closers = append(r.closers, existence.Close)
		chunkerStore = cache.WrapStore(store, existence)
	}

	brokers := splitBrokers(cfg.Kafka.Brokers)
	if len(brokers) == 0 {
		r.Close()
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	r.Brokers = brokers
	producer := bus.NewProducer(cfg.Kafka, brokers)
	r.Producer = producer
	r.closers = append(r.closers, producer.Close)

	chatModel := chatModelFor(cfg.LLM)

	deps := steps.Deps{
		Reports:  repository.NewReportRepository(pool),
		Tasks:    repository.NewTaskRepository(pool),
		Videos:   repository.NewVideoRepository(pool),
		Channels: repository.NewChannelRepository(pool),
		Comments: repository.NewCommentRepository(pool),
		Trends:   repository.NewTrendKeywordRepository(pool),
		Ideas:    repository.NewIdeaRepository(pool),

		Transcript:  external.NewTranscriptClient(cfg.External, httpClient),
		YouTubeData: external.NewYouTubeDataClient(cfg.External, httpClient),
		Analytics:   external.NewAnalyticsClient(cfg.External, cfg.Retry, httpClient),
		Trend:       external.NewTrendClient(cfg.External, httpClient),

		Store:         chunkerStore,
		Embedder:      embedder,
		Chunker:       chunking.New(chunkerStore, provider, chatModel),
		RAG:           rag.New(store, provider, chatModel),
		Metrics:       metrics.New(embedder),
		CommentEngine: comments.New(provider, chatModel, cfg.Sampling, rand.New(rand.NewSource(time.Now().UnixNano()))),
		Provider:      provider,
		ChatModel:     chatModel,

		SamplingMaxFetch: cfg.Sampling.MaxFetch,
		ParseRetryBudget: cfg.Retry.MeaningChunkMaxAttempts,

		ExistenceCache: r.Existence,

		RunIdeaStepOnV2:                          cfg.Pipeline.V2RunsIdeaStep,
		PersistRetentionPlaceholderOnExhaustion: cfg.Pipeline.PersistRetentionPlaceholderOnExhaustion,
	}
	r.Deps = deps

	return r, nil
}

func buildVectorStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, embedder embedding.Embedder) (vectorstore.Store, error) {
	switch cfg.Vector.Backend {
	case "", "postgres":
		return vectorstore.NewPostgres(ctx, pool, embedder, cfg.Vector.Dimensions, cfg.Vector.Metric)
	case "qdrant":
		return vectorstore.NewQdrant(ctx, cfg.Vector.DSN, cfg.Vector.Collection, cfg.Vector.Dimensions, cfg.Vector.Metric, embedder)
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", cfg.Vector.Backend)
	}
}

func chatModelFor(cfg config.LLMConfig) string {
	switch cfg.Provider {
	case "anthropic":
		return cfg.Anthropic.Model
	default:
		return cfg.OpenAI.ChatModel
	}
}

func splitBrokers(csv string) []string {
	var out []string
	for _, b := range strings.Split(csv, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}
