package steps

import (
	"context"
	"errors"
	"fmt"

	"ytreport/internal/bus"
	"ytreport/internal/errs"
	"ytreport/internal/metrics"
	"ytreport/internal/model"
	"ytreport/internal/repository"
)

const siblingLimit = 20

const summaryInstruction = `Summarize this YouTube video for a channel performance report.
Write a concise, multi-paragraph overview of what the video covers.`

const summarySystemPrompt = `You are a YouTube analytics assistant producing the "summary" section of a channel report.`

// OverviewHandler runs the overview step's three sub-phases: summary,
// comments, metrics.
type OverviewHandler struct {
	deps Deps
}

// NewOverviewHandler constructs an OverviewHandler.
func NewOverviewHandler(deps Deps) *OverviewHandler {
	return &OverviewHandler{deps: deps}
}

// Handle implements bus.Handler.
func (h *OverviewHandler) Handle(ctx context.Context, msg bus.StepMessage) error {
	log := entryLogger("overview", msg)
	res, ok, err := h.deps.preamble(ctx, msg, log)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	report, video := res.Report, res.Video

	if err := h.summary(ctx, msg, report, video); err != nil {
		log("summary sub-phase failed: %v", err)
		return h.deps.Tasks.SetOverviewStatus(ctx, report.ID, model.TaskFailed)
	}
	if err := h.commentsPhase(ctx, report, video); err != nil {
		log("comments sub-phase failed: %v", err)
		return h.deps.Tasks.SetOverviewStatus(ctx, report.ID, model.TaskFailed)
	}
	if err := h.metricsPhase(ctx, report, video); err != nil {
		log("metrics sub-phase failed: %v", err)
		return h.deps.Tasks.SetOverviewStatus(ctx, report.ID, model.TaskFailed)
	}
	return h.deps.Tasks.SetOverviewStatus(ctx, report.ID, model.TaskCompleted)
}

func (h *OverviewHandler) summary(ctx context.Context, msg bus.StepMessage, report model.Report, video model.Video) error {
	transcript, err := h.deps.Transcript.Fetch(ctx, video.YouTubeVideoID)
	if err != nil {
		return fmt.Errorf("fetch transcript: %w", err)
	}

	instruction := fmt.Sprintf("%s\n\nTranscript:\n%s", summaryInstruction, joinTranscript(transcript))
	summaryText, err := h.deps.RAG.Generate(ctx, summarySystemPrompt, "Video transcript", nil, instruction, 0.4)
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}

	if !msg.SkipVectorSave {
		if err := h.deps.Store.SaveContext(ctx, model.SourceVideoSummary, report.ID, summaryText, nil); err != nil {
			return fmt.Errorf("save summary chunk: %w", err)
		}
	}

	title := video.Title
	return h.deps.Reports.Update(ctx, report.ID, repository.ReportFields{Title: &title, Summary: &summaryText})
}

func (h *OverviewHandler) commentsPhase(ctx context.Context, report model.Report, video model.Video) error {
	raw, err := h.fetchComments(ctx, video.YouTubeVideoID)
	if err != nil {
		return fmt.Errorf("fetch comments: %w", err)
	}

	sampled, unsampled := h.deps.CommentEngine.Sample(raw)
	classified, err := h.deps.CommentEngine.Classify(ctx, sampled)
	if err != nil {
		return fmt.Errorf("classify comments: %w", err)
	}
	counts := h.deps.CommentEngine.Extrapolate(classified, len(unsampled))

	rows, err := h.deps.CommentEngine.Summarize(ctx, classified, report.ID)
	if err != nil {
		return fmt.Errorf("summarize comments: %w", err)
	}
	if err := h.deps.Comments.BulkInsert(ctx, rows); err != nil {
		return fmt.Errorf("persist comment summaries: %w", err)
	}

	positive, negative, neutral, advice := counts.Positive, counts.Negative, counts.Neutral, counts.Advice
	return h.deps.Reports.Update(ctx, report.ID, repository.ReportFields{
		PositiveComments: &positive,
		NegativeComments: &negative,
		NeutralComments:  &neutral,
		AdviceComments:   &advice,
	})
}

func (h *OverviewHandler) metricsPhase(ctx context.Context, report model.Report, video model.Video) error {
	vm, err := h.deps.Analytics.FetchVideoMetrics(ctx, video.YouTubeVideoID)
	if err != nil {
		return fmt.Errorf("fetch video metrics: %w", err)
	}
	va := metrics.VideoAnalytics{
		Views:                vm.Views,
		AverageViewDuration:  vm.AverageViewDuration,
		Likes:                vm.Likes,
		Shares:               vm.Shares,
		SubscribersGained:    vm.SubscribersGained,
		TotalDurationSeconds: float64(video.DurationSeconds),
	}
	seo := metrics.SEO(va)
	revisit := metrics.Revisit(va)

	channelPeers, err := h.deps.Videos.SiblingsByChannel(ctx, video.ChannelID, video.ID, siblingLimit)
	if err != nil {
		return fmt.Errorf("fetch channel siblings: %w", err)
	}
	topicPeers, err := h.deps.Videos.SiblingsByCategory(ctx, video.VideoCategory, video.ID, siblingLimit)
	if err != nil {
		return fmt.Errorf("fetch topic siblings: %w", err)
	}
	consistency, err := h.deps.Metrics.Consistency(ctx, video, channelPeers)
	if err != nil {
		return fmt.Errorf("compute consistency: %w", err)
	}
	averages := metrics.ChannelTopicAverages(video, channelPeers, topicPeers)

	return h.deps.Reports.Update(ctx, report.ID, repository.ReportFields{
		Concept:             &consistency,
		SEO:                 &seo,
		Revisit:             &revisit,
		ChannelViewDelta:    &averages.ChannelViewDelta,
		ChannelLikeDelta:    &averages.ChannelLikeDelta,
		ChannelCommentDelta: &averages.ChannelCommentDelta,
		TopicViewDelta:      &averages.TopicViewDelta,
		TopicLikeDelta:      &averages.TopicLikeDelta,
		TopicCommentDelta:   &averages.TopicCommentDelta,
	})
}

const maxCommentsPerVideo = 1000

// fetchComments paginates through comment threads up to maxCommentsPerVideo.
// A commentsDisabled error is not propagated: it yields an empty result so
// the overview step proceeds with all-zero emotion counts.
func (h *OverviewHandler) fetchComments(ctx context.Context, youtubeVideoID string) ([]model.Comment, error) {
	var out []model.Comment
	pageToken := ""
	for len(out) < maxCommentsPerVideo {
		page, next, err := h.deps.YouTubeData.CommentThreadsPage(ctx, youtubeVideoID, pageToken)
		if err != nil {
			if errors.Is(err, errs.ErrCommentsDisabled) {
				return nil, nil
			}
			return nil, err
		}
		out = append(out, page...)
		if next == "" {
			break
		}
		pageToken = next
	}
	if len(out) > maxCommentsPerVideo {
		out = out[:maxCommentsPerVideo]
	}
	return out, nil
}

func joinTranscript(segments []model.TranscriptSegment) string {
	var out string
	for _, s := range segments {
		if out != "" {
			out += " "
		}
		out += s.Text
	}
	return out
}
