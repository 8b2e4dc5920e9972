package steps

import (
	"context"
	"fmt"

	"ytreport/internal/bus"
	"ytreport/internal/chunking"
	"ytreport/internal/model"
	"ytreport/internal/repository"
	"ytreport/internal/vectorstore"
)

const retentionFailurePlaceholder = "시청자 이탈 분석 실패 (네트워크 타임아웃)"

const optimizationSimilarLimit = 3

const analysisSystemPrompt = `You are a YouTube analytics assistant diagnosing why viewers leave a video and how to improve its editing and structure.`

const optimizationSystemPrompt = `You are a YouTube analytics assistant recommending algorithm-optimization changes grounded in similar prior videos.`

var retentionQuestions = []string{"cause", "improvement", "editing_flow"}

// AnalysisHandler runs the analysis step's two sub-phases: viewer-retention
// analysis and algorithm optimization.
type AnalysisHandler struct {
	deps Deps
}

// NewAnalysisHandler constructs an AnalysisHandler.
func NewAnalysisHandler(deps Deps) *AnalysisHandler {
	return &AnalysisHandler{deps: deps}
}

// Handle implements bus.Handler.
func (h *AnalysisHandler) Handle(ctx context.Context, msg bus.StepMessage) error {
	log := entryLogger("analysis", msg)
	res, ok, err := h.deps.preamble(ctx, msg, log)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	report, video := res.Report, res.Video

	if err := h.retentionAnalysis(ctx, msg, report, video); err != nil {
		log("retention analysis sub-phase failed: %v", err)
		return h.deps.Tasks.SetAnalysisStatus(ctx, report.ID, model.TaskFailed)
	}
	if err := h.algorithmOptimization(ctx, msg, report, video); err != nil {
		log("algorithm optimization sub-phase failed: %v", err)
		return h.deps.Tasks.SetAnalysisStatus(ctx, report.ID, model.TaskFailed)
	}
	return h.deps.Tasks.SetAnalysisStatus(ctx, report.ID, model.TaskCompleted)
}

// retentionAnalysis fetches the retention curve, chunks the transcript
// focus window, retrieves grounding chunks for each of the three diagnostic
// questions, and persists a single composed diagnosis. Retention-fetch
// failure does not fail the sub-phase: it persists a placeholder when
// Deps.PersistRetentionPlaceholderOnExhaustion is set, and returns nil either
// way so the caller proceeds to algorithm optimization.
func (h *AnalysisHandler) retentionAnalysis(ctx context.Context, msg bus.StepMessage, report model.Report, video model.Video) error {
	retention, err := h.deps.Analytics.Retention(ctx, video.YouTubeVideoID)
	if err != nil {
		if h.deps.PersistRetentionPlaceholderOnExhaustion {
			placeholder := retentionFailurePlaceholder
			if uerr := h.deps.Reports.Update(ctx, report.ID, repository.ReportFields{LeaveAnalyze: &placeholder}); uerr != nil {
				return fmt.Errorf("persist retention placeholder: %w", uerr)
			}
		}
		return nil
	}

	transcript, err := h.deps.Transcript.Fetch(ctx, video.YouTubeVideoID)
	if err != nil {
		return fmt.Errorf("fetch transcript: %w", err)
	}

	params := chunking.DeriveParams(float64(video.DurationSeconds), retention)
	raws, err := h.deps.Chunker.IngestTimeUniform(ctx, video.ID, transcript, retention, params)
	if err != nil {
		return fmt.Errorf("time-uniform chunking: %w", err)
	}
	focus := chunking.FocusRaws(raws)
	if len(focus) > 0 {
		if err := h.deps.Chunker.IngestMeaning(ctx, video.ID, focus); err != nil {
			return fmt.Errorf("meaning chunking: %w", err)
		}
	}

	var grounding []vectorstore.Result
	for _, q := range retentionQuestions {
		results, err := h.deps.RAG.RetrieveTopK(ctx, q, model.SourceVideoSummary, video.ID, nil, 3)
		if err != nil {
			return fmt.Errorf("retrieve grounding for %q: %w", q, err)
		}
		grounding = append(grounding, results...)
	}

	instruction := fmt.Sprintf(
		"Diagnose why viewers leave this video and how editing could improve retention.\nVideo: %s\nChannel concept: %s",
		video.Title, video.VideoCategory,
	)
	diagnosis, err := h.deps.RAG.Generate(ctx, analysisSystemPrompt, "Retrieved transcript context", grounding, instruction, 0.4)
	if err != nil {
		return fmt.Errorf("generate retention diagnosis: %w", err)
	}

	if !msg.SkipVectorSave {
		if err := h.deps.Store.SaveContext(ctx, model.SourceViewerEscapeAnalysis, report.ID, diagnosis, nil); err != nil {
			return fmt.Errorf("save retention diagnosis chunk: %w", err)
		}
	}

	return h.deps.Reports.Update(ctx, report.ID, repository.ReportFields{LeaveAnalyze: &diagnosis})
}

// algorithmOptimization retrieves similar prior ALGORITHM_OPTIMIZATION
// chunks across all videos by embedding of the title+description prefix,
// generates an optimization recommendation, and persists it.
func (h *AnalysisHandler) algorithmOptimization(ctx context.Context, msg bus.StepMessage, report model.Report, video model.Video) error {
	channel, err := h.deps.Channels.Get(ctx, video.ChannelID)
	if err != nil {
		return fmt.Errorf("fetch channel: %w", err)
	}

	queryText := conceptQueryText(video)
	vecs, err := h.deps.Embedder.EmbedBatch(ctx, []string{queryText})
	if err != nil {
		return fmt.Errorf("embed optimization query: %w", err)
	}
	similar, err := h.deps.Store.SearchSimilarByEmbedding(ctx, model.SourceAlgorithmOptimization, vecs[0], nil, optimizationSimilarLimit)
	if err != nil {
		return fmt.Errorf("search similar optimization chunks: %w", err)
	}

	instruction := fmt.Sprintf(
		"Recommend algorithm-optimization changes for this video.\nVideo: %s\nChannel concept: %s\nChannel target audience: %s",
		video.Title, channel.Concept, channel.Target,
	)
	optimization, err := h.deps.RAG.Generate(ctx, optimizationSystemPrompt, "Similar prior optimization notes", similar, instruction, 0.4)
	if err != nil {
		return fmt.Errorf("generate optimization: %w", err)
	}

	if !msg.SkipVectorSave {
		if err := h.deps.Store.SaveContext(ctx, model.SourceAlgorithmOptimization, report.ID, optimization, nil); err != nil {
			return fmt.Errorf("save optimization chunk: %w", err)
		}
	}

	return h.deps.Reports.Update(ctx, report.ID, repository.ReportFields{Optimization: &optimization})
}

func conceptQueryText(v model.Video) string {
	desc := v.Description
	if len(desc) > 200 {
		desc = desc[:200]
	}
	return v.Title + " " + desc
}
