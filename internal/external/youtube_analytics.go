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
	"ytreport/internal/retry"
)

// AnalyticsClient wraps the YouTube Analytics v2 retention time-series
// endpoint, applying the component's own fixed 5/10/15s retry schedule on
// top of the shared retry combinator.
type AnalyticsClient struct {
	baseURL      string
	http         *http.Client
	timeout      time.Duration
	maxAttempts  int
	backoffSecs  []int
}

// NewAnalyticsClient constructs an AnalyticsClient from ExternalConfig and
// RetryConfig.
func NewAnalyticsClient(cfg config.ExternalConfig, retryCfg config.RetryConfig, httpClient *http.Client) *AnalyticsClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AnalyticsClient{
		baseURL:     cfg.YouTubeAnalyticsBaseURL,
		http:        httpClient,
		timeout:     timeoutOrDefault(cfg.TimeoutSeconds),
		maxAttempts: retryCfg.AnalyticsMaxAttempts,
		backoffSecs: retryCfg.AnalyticsBackoffSecs,
	}
}

type retentionRowDTO struct {
	ElapsedRatio                 float64 `json:"elapsed_ratio"`
	AudienceWatchRatio           float64 `json:"audienceWatchRatio"`
	RelativeRetentionPerformance float64 `json:"relativeRetentionPerformance"`
}

type retentionResponseDTO struct {
	Rows []retentionRowDTO `json:"rows"`
}

// Retention fetches the audience-retention time-series for a video,
// retrying transient failures per the configured fixed schedule.
func (c *AnalyticsClient) Retention(ctx context.Context, youtubeVideoID string) ([]model.RetentionRow, error) {
	schedule := retry.Fixed(secondsToDurations(c.backoffSecs)...)

	var dto retentionResponseDTO
	op := func(ctx context.Context) error {
		u := fmt.Sprintf("%s/analytics/%s/retention", c.baseURL, url.PathEscape(youtubeVideoID))
		return getJSON(ctx, c.http, u, c.timeout, &dto)
	}
	if err := retry.Do(ctx, c.maxAttempts, schedule, errs.Classify, op); err != nil {
		return nil, fmt.Errorf("fetch retention: %w", err)
	}

	out := make([]model.RetentionRow, len(dto.Rows))
	for i, r := range dto.Rows {
		out[i] = model.RetentionRow{
			ElapsedRatio:                 r.ElapsedRatio,
			AudienceWatchRatio:           r.AudienceWatchRatio,
			RelativeRetentionPerformance: r.RelativeRetentionPerformance,
		}
	}
	return out, nil
}

// VideoMetrics holds the per-video analytics fields the metrics analyzer's
// SEO and revisit formulas require.
type VideoMetrics struct {
	Views               int64   `json:"views"`
	AverageViewDuration float64 `json:"averageViewDuration"`
	Likes               int64   `json:"likes"`
	Shares              int64   `json:"shares"`
	SubscribersGained   int64   `json:"subscribersGained"`
}

// FetchVideoMetrics fetches the per-video analytics fields (views,
// averageViewDuration, likes, shares, subscribersGained) the metrics
// analyzer's SEO and revisit formulas require, retrying on the same fixed
// schedule as Retention.
func (c *AnalyticsClient) FetchVideoMetrics(ctx context.Context, youtubeVideoID string) (VideoMetrics, error) {
	schedule := retry.Fixed(secondsToDurations(c.backoffSecs)...)

	var dto VideoMetrics
	op := func(ctx context.Context) error {
		u := fmt.Sprintf("%s/analytics/%s/metrics", c.baseURL, url.PathEscape(youtubeVideoID))
		return getJSON(ctx, c.http, u, c.timeout, &dto)
	}
	if err := retry.Do(ctx, c.maxAttempts, schedule, errs.Classify, op); err != nil {
		return VideoMetrics{}, fmt.Errorf("fetch video metrics: %w", err)
	}
	return dto, nil
}

func secondsToDurations(secs []int) []time.Duration {
	if len(secs) == 0 {
		return []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}
	}
	out := make([]time.Duration, len(secs))
	for i, s := range secs {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}
