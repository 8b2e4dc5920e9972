package external

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ytreport/internal/config"
)

// TrendClient fetches real-time trending keywords.
type TrendClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// TrendEntry is one row from the trend feed.
type TrendEntry struct {
	Keyword            string   `json:"keyword"`
	SearchVolume        int64    `json:"search_volume"`
	IncreasePercentage float64  `json:"increase_percentage"`
	Categories         []string `json:"categories"`
	TrendBreakdown     []string `json:"trend_breakdown"`
}

// NewTrendClient constructs a TrendClient from ExternalConfig.
func NewTrendClient(cfg config.ExternalConfig, httpClient *http.Client) *TrendClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TrendClient{baseURL: cfg.TrendFeedBaseURL, http: httpClient, timeout: timeoutOrDefault(cfg.TimeoutSeconds)}
}

// Trending fetches the current trend feed, optionally scoped to category.
func (c *TrendClient) Trending(ctx context.Context, category string) ([]TrendEntry, error) {
	u := c.baseURL + "/trends"
	if category != "" {
		u += "?category=" + url.QueryEscape(category)
	}
	var entries []TrendEntry
	if err := getJSON(ctx, c.http, u, c.timeout, &entries); err != nil {
		return nil, fmt.Errorf("fetch trend feed: %w", err)
	}
	return entries, nil
}
