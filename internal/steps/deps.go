// Package steps implements the three step handlers (C7): overview,
// analysis and idea. Each shares the same preamble (resolve report+video,
// silently drop stale messages) and the same terminal-status contract
// (flip the matching task axis to COMPLETED or FAILED), differing only in
// their internal sub-phase sequence.
package steps

import (
	"context"
	"errors"

	"ytreport/internal/bus"
	"ytreport/internal/cache"
	"ytreport/internal/chunking"
	"ytreport/internal/comments"
	"ytreport/internal/embedding"
	"ytreport/internal/external"
	"ytreport/internal/llm"
	"ytreport/internal/logging"
	"ytreport/internal/metrics"
	"ytreport/internal/model"
	"ytreport/internal/rag"
	"ytreport/internal/repository"
	"ytreport/internal/vectorstore"
)

// Deps bundles every collaborator a step handler needs. It is built once at
// startup and passed by value into each handler constructor; nothing here
// is a package-level singleton.
type Deps struct {
	Reports  repository.ReportRepository
	Tasks    repository.TaskRepository
	Videos   repository.VideoRepository
	Channels repository.ChannelRepository
	Comments repository.CommentRepository
	Trends   repository.TrendKeywordRepository
	Ideas    repository.IdeaRepository

	Transcript  TranscriptFetcher
	YouTubeData YouTubeDataFetcher
	Analytics   AnalyticsFetcher
	Trend       TrendFetcher

	Store         vectorstore.Store
	Embedder      embedding.Embedder
	Chunker       *chunking.Engine
	RAG           *rag.Executor
	Metrics       *metrics.Analyzer
	CommentEngine *comments.Pipeline
	Provider      llm.Provider
	ChatModel     string

	SamplingMaxFetch int
	ParseRetryBudget int

	ExistenceCache *cache.ExistenceCache

	// RunIdeaStepOnV2 resolves the documented Open Question: whether the
	// idea step executes at all for v2 messages. When false, IdeaHandler
	// marks the axis COMPLETED without running the workflow.
	RunIdeaStepOnV2 bool
	// PersistRetentionPlaceholderOnExhaustion resolves the other Open
	// Question: whether the analysis handler writes the Korean timeout
	// placeholder string to leave_analyze on retry exhaustion, or leaves
	// the field untouched.
	PersistRetentionPlaceholderOnExhaustion bool
}

// TranscriptFetcher is the subset of external.TranscriptClient the step
// handlers call; narrowed to an interface so tests can substitute a fake
// instead of hitting a real transcript service.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, youtubeVideoID string) ([]model.TranscriptSegment, error)
}

// YouTubeDataFetcher is the subset of external.YouTubeDataClient the step
// handlers call.
type YouTubeDataFetcher interface {
	CommentThreadsPage(ctx context.Context, youtubeVideoID, pageToken string) ([]model.Comment, string, error)
}

// AnalyticsFetcher is the subset of external.AnalyticsClient the step
// handlers call.
type AnalyticsFetcher interface {
	Retention(ctx context.Context, youtubeVideoID string) ([]model.RetentionRow, error)
	FetchVideoMetrics(ctx context.Context, youtubeVideoID string) (external.VideoMetrics, error)
}

// TrendFetcher is the subset of external.TrendClient the step handlers call.
type TrendFetcher interface {
	Trending(ctx context.Context, category string) ([]external.TrendEntry, error)
}

// resolved holds the report+video pair every handler's preamble produces.
type resolved struct {
	Report model.Report
	Video  model.Video
}

// preamble resolves (report, video) by id. A missing report or video is
// logged and treated as a stale message: the caller must return nil
// without touching the task axis.
func (d Deps) preamble(ctx context.Context, msg bus.StepMessage, log func(string, ...any)) (resolved, bool, error) {
	report, err := d.Reports.Get(ctx, msg.ReportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log("report not found, dropping stale message")
			return resolved{}, false, nil
		}
		return resolved{}, false, err
	}
	video, err := d.Videos.Get(ctx, report.VideoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log("video not found, dropping stale message")
			return resolved{}, false, nil
		}
		return resolved{}, false, err
	}
	return resolved{Report: report, Video: video}, true, nil
}

// entryLogger builds a per-step, per-message structured logger.
func entryLogger(step string, msg bus.StepMessage) func(string, ...any) {
	entry := logging.ForStep(step, msg.TaskID, msg.ReportID)
	return func(format string, args ...any) {
		entry.Infof(format, args...)
	}
}
