package external

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ytreport/internal/config"
	"ytreport/internal/errs"
	"ytreport/internal/model"
)

// YouTubeDataClient wraps the YouTube Data v3 shapes the pipeline consumes:
// video details, channel stats, paginated comment threads, and
// category-popular video listings.
type YouTubeDataClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewYouTubeDataClient constructs a YouTubeDataClient from ExternalConfig.
func NewYouTubeDataClient(cfg config.ExternalConfig, httpClient *http.Client) *YouTubeDataClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &YouTubeDataClient{baseURL: cfg.YouTubeDataBaseURL, http: httpClient, timeout: timeoutOrDefault(cfg.TimeoutSeconds)}
}

type videoDTO struct {
	ID              string `json:"id"`
	ChannelID       string `json:"channel_id"`
	Category        string `json:"category"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	ViewCount       int64  `json:"view_count"`
	LikeCount       int64  `json:"like_count"`
	CommentCount    int64  `json:"comment_count"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// VideoDetails fetches metadata for a single video by its YouTube ID.
func (c *YouTubeDataClient) VideoDetails(ctx context.Context, youtubeVideoID string) (model.Video, error) {
	u := fmt.Sprintf("%s/videos/%s", c.baseURL, url.PathEscape(youtubeVideoID))
	var dto videoDTO
	if err := getJSON(ctx, c.http, u, c.timeout, &dto); err != nil {
		return model.Video{}, fmt.Errorf("fetch video details: %w", err)
	}
	return model.Video{
		YouTubeVideoID:  dto.ID,
		VideoCategory:   dto.Category,
		Title:           dto.Title,
		Description:     dto.Description,
		ViewCount:       dto.ViewCount,
		LikeCount:       dto.LikeCount,
		CommentCount:    dto.CommentCount,
		DurationSeconds: dto.DurationSeconds,
	}, nil
}

type channelDTO struct {
	ID             string `json:"id"`
	Concept        string `json:"concept"`
	Target         string `json:"target"`
	ChannelHashTag string `json:"channel_hash_tag"`
}

// ChannelStats fetches a channel's descriptive metadata.
func (c *YouTubeDataClient) ChannelStats(ctx context.Context, youtubeChannelID string) (model.Channel, error) {
	u := fmt.Sprintf("%s/channels/%s", c.baseURL, url.PathEscape(youtubeChannelID))
	var dto channelDTO
	if err := getJSON(ctx, c.http, u, c.timeout, &dto); err != nil {
		return model.Channel{}, fmt.Errorf("fetch channel stats: %w", err)
	}
	return model.Channel{Concept: dto.Concept, Target: dto.Target, ChannelHashTag: dto.ChannelHashTag}, nil
}

type commentThreadDTO struct {
	Comments      []commentDTO `json:"comments"`
	NextPageToken string       `json:"next_page_token"`
}

type commentDTO struct {
	Content   string `json:"content"`
	LikeCount int64  `json:"like_count"`
}

// CommentThreadsPage fetches one page of top-level comments for a video.
// pageToken is empty for the first page. An empty result with a nil error
// and empty nextPageToken signals the stream is exhausted.
func (c *YouTubeDataClient) CommentThreadsPage(ctx context.Context, youtubeVideoID, pageToken string) ([]model.Comment, string, error) {
	u := fmt.Sprintf("%s/videos/%s/comments", c.baseURL, url.PathEscape(youtubeVideoID))
	if pageToken != "" {
		u += "?pageToken=" + url.QueryEscape(pageToken)
	}
	var dto commentThreadDTO
	if err := getJSON(ctx, c.http, u, c.timeout, &dto); err != nil {
		if errs.Is(err, errs.KindPermanentExternal) {
			return nil, "", errs.ErrCommentsDisabled
		}
		return nil, "", fmt.Errorf("fetch comment threads: %w", err)
	}
	out := make([]model.Comment, len(dto.Comments))
	for i, cm := range dto.Comments {
		out[i] = model.Comment{Content: cm.Content, LikeCount: cm.LikeCount}
	}
	return out, dto.NextPageToken, nil
}

// CategoryPopular fetches the top N videos for a category. The idea step
// does not call it; it reads popular videos from the repository instead.
func (c *YouTubeDataClient) CategoryPopular(ctx context.Context, category string, n int) ([]model.Video, error) {
	u := fmt.Sprintf("%s/categories/%s/popular?limit=%d", c.baseURL, url.PathEscape(category), n)
	var dtos []videoDTO
	if err := getJSON(ctx, c.http, u, c.timeout, &dtos); err != nil {
		return nil, fmt.Errorf("fetch category popular: %w", err)
	}
	out := make([]model.Video, len(dtos))
	for i, d := range dtos {
		out[i] = model.Video{
			YouTubeVideoID: d.ID,
			VideoCategory:  d.Category,
			Title:          d.Title,
			Description:    d.Description,
			ViewCount:      d.ViewCount,
			LikeCount:      d.LikeCount,
			CommentCount:   d.CommentCount,
		}
	}
	return out, nil
}
