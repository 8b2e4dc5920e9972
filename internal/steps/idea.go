package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ytreport/internal/bus"
	"ytreport/internal/model"
)

const (
	popularVideoLimit  = 3
	ideaRetrievalLimit = 5
)

const channelTrendSystemPrompt = `You derive channel-tailored trending keywords for a YouTube channel given its
concept and target audience. Respond with a strict JSON array of {"keyword": string, "score": number 0-100}.`

const ideaSystemPrompt = `You generate new YouTube video ideas for a channel, grounded in its own prior
content and in what is currently popular in its category. Respond with a strict JSON array of
{"title": string, "description": string, "tags": [string]} objects, no prose.`

type keywordScoreDTO struct {
	Keyword string  `json:"keyword"`
	Score   float64 `json:"score"`
}

type ideaDTO struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// IdeaHandler runs the idea step's two sub-phases: trend extraction and
// idea generation.
type IdeaHandler struct {
	deps Deps
}

// NewIdeaHandler constructs an IdeaHandler.
func NewIdeaHandler(deps Deps) *IdeaHandler {
	return &IdeaHandler{deps: deps}
}

// Handle implements bus.Handler. A message with SkipVectorSave set (as every
// v2 message is) skips the workflow entirely when RunIdeaStepOnV2 is false and
// marks the axis COMPLETED, matching the control plane's pre-marking of v2
// reports.
func (h *IdeaHandler) Handle(ctx context.Context, msg bus.StepMessage) error {
	log := entryLogger("idea", msg)
	res, ok, err := h.deps.preamble(ctx, msg, log)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	report, video := res.Report, res.Video

	if msg.SkipVectorSave && !h.deps.RunIdeaStepOnV2 {
		return h.deps.Tasks.SetIdeaStatus(ctx, report.ID, model.TaskCompleted)
	}

	if err := h.trendExtraction(ctx, msg, report, video); err != nil {
		log("trend extraction sub-phase failed: %v", err)
		return h.deps.Tasks.SetIdeaStatus(ctx, report.ID, model.TaskFailed)
	}
	if err := h.ideaGeneration(ctx, msg, report, video); err != nil {
		log("idea generation sub-phase failed: %v", err)
		return h.deps.Tasks.SetIdeaStatus(ctx, report.ID, model.TaskFailed)
	}
	return h.deps.Tasks.SetIdeaStatus(ctx, report.ID, model.TaskCompleted)
}

func (h *IdeaHandler) trendExtraction(ctx context.Context, msg bus.StepMessage, report model.Report, video model.Video) error {
	channel, err := h.deps.Channels.Get(ctx, video.ChannelID)
	if err != nil {
		return fmt.Errorf("fetch channel: %w", err)
	}

	realTime, err := h.deps.Trend.Trending(ctx, video.VideoCategory)
	if err != nil {
		return fmt.Errorf("fetch trend feed: %w", err)
	}
	realTimeKeywords := make([]model.TrendKeyword, len(realTime))
	for i, e := range realTime {
		realTimeKeywords[i] = model.TrendKeyword{
			ReportID:    report.ID,
			KeywordType: model.KeywordRealTime,
			Keyword:     e.Keyword,
			Score:       clipScore(e.IncreasePercentage),
		}
	}

	instruction := fmt.Sprintf("Channel concept: %s\nChannel target audience: %s", channel.Concept, channel.Target)
	var channelDTOs []keywordScoreDTO
	if err := h.deps.RAG.GenerateJSON(ctx, h.deps.ParseRetryBudget, channelTrendSystemPrompt, "Channel profile", nil, instruction, 0.5, &channelDTOs); err != nil {
		channelDTOs = nil
	}
	channelKeywords := make([]model.TrendKeyword, len(channelDTOs))
	for i, d := range channelDTOs {
		channelKeywords[i] = model.TrendKeyword{
			ReportID:    report.ID,
			KeywordType: model.KeywordChannel,
			Keyword:     d.Keyword,
			Score:       clipScore(d.Score),
		}
	}

	all := append(append([]model.TrendKeyword{}, realTimeKeywords...), channelKeywords...)
	if err := h.deps.Trends.BulkInsert(ctx, all); err != nil {
		return fmt.Errorf("persist trend keywords: %w", err)
	}

	if !msg.SkipVectorSave && len(channelKeywords) > 0 {
		text := joinKeywords(channelKeywords)
		if err := h.deps.Store.SaveContext(ctx, model.SourcePersonalizedKeywords, report.ID, text, nil); err != nil {
			return fmt.Errorf("save personalized keywords chunk: %w", err)
		}
	}
	return nil
}

func (h *IdeaHandler) ideaGeneration(ctx context.Context, msg bus.StepMessage, report model.Report, video model.Video) error {
	popular, err := h.deps.Videos.PopularByCategory(ctx, video.VideoCategory, popularVideoLimit)
	if err != nil {
		return fmt.Errorf("fetch category-popular videos: %w", err)
	}

	if !msg.SkipVectorSave {
		for _, p := range popular {
			content := p.Title + "\n" + p.Description
			if err := h.deps.Store.SaveChunk(ctx, model.ContentChunk{
				SourceType: model.SourceIdeaRecommendation,
				SourceID:   p.ID,
				Content:    content,
				ChunkIndex: 0,
			}); err != nil {
				return fmt.Errorf("save idea-recommendation chunk for video %d: %w", p.ID, err)
			}
		}
	}

	queryText := conceptQueryText(video) + " " + video.VideoCategory
	queryVecs, err := h.deps.Embedder.EmbedBatch(ctx, []string{queryText})
	if err != nil {
		return fmt.Errorf("embed idea query: %w", err)
	}
	similar, err := h.deps.Store.SearchSimilarByEmbedding(ctx, model.SourceIdeaRecommendation, queryVecs[0], nil, ideaRetrievalLimit)
	if err != nil {
		return fmt.Errorf("retrieve similar idea chunks: %w", err)
	}

	instruction := fmt.Sprintf(
		"Origin video: %s\n%s\n\nGenerate fresh video ideas building on this channel's own content and what is popular in %q right now.",
		video.Title, video.Description, video.VideoCategory,
	)
	var dtos []ideaDTO
	if err := h.deps.RAG.GenerateJSON(ctx, h.deps.ParseRetryBudget, ideaSystemPrompt, "Popular videos in this category", similar, instruction, 0.6, &dtos); err != nil {
		dtos = nil
	}

	ideas := make([]model.Idea, len(dtos))
	for i, d := range dtos {
		tags, _ := json.Marshal(d.Tags)
		ideas[i] = model.Idea{
			ChannelOrVideoID: video.ChannelID,
			Title:            d.Title,
			Content:          d.Description,
			HashTag:          string(tags),
			IsBookMarked:     false,
		}
	}
	if err := h.deps.Ideas.BulkInsert(ctx, ideas); err != nil {
		return fmt.Errorf("persist ideas: %w", err)
	}
	return nil
}

func clipScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func joinKeywords(keywords []model.TrendKeyword) string {
	parts := make([]string, len(keywords))
	for i, k := range keywords {
		parts[i] = k.Keyword
	}
	return strings.Join(parts, ", ")
}
