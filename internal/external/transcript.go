// Package external implements the RPC adapters (C4) for services the
// pipeline consumes but does not own: transcript fetch, YouTube Data v3
// (video/channel/comment-thread/category-popular), YouTube Analytics v2
// (retention time-series), and the real-time trend feed.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ytreport/internal/config"
	"ytreport/internal/errs"
	"ytreport/internal/model"
)

// TranscriptClient fetches a video's structured transcript.
type TranscriptClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewTranscriptClient constructs a TranscriptClient from ExternalConfig,
// using httpClient (typically otelhttp-instrumented) for the underlying
// transport.
func NewTranscriptClient(cfg config.ExternalConfig, httpClient *http.Client) *TranscriptClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TranscriptClient{baseURL: cfg.TranscriptBaseURL, http: httpClient, timeout: timeoutOrDefault(cfg.TimeoutSeconds)}
}

type transcriptSegmentDTO struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Fetch returns the transcript for youtubeVideoID, in playback order.
func (c *TranscriptClient) Fetch(ctx context.Context, youtubeVideoID string) ([]model.TranscriptSegment, error) {
	u := fmt.Sprintf("%s/transcripts/%s", c.baseURL, url.PathEscape(youtubeVideoID))
	var dtos []transcriptSegmentDTO
	if err := getJSON(ctx, c.http, u, c.timeout, &dtos); err != nil {
		return nil, fmt.Errorf("fetch transcript: %w", err)
	}
	out := make([]model.TranscriptSegment, len(dtos))
	for i, d := range dtos {
		out[i] = model.TranscriptSegment{Text: d.Text, StartTime: d.StartTime, EndTime: d.EndTime}
	}
	return out, nil
}

func timeoutOrDefault(seconds int) time.Duration {
	if seconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// getJSON issues a GET request and decodes a JSON response into out,
// classifying non-200 statuses per spec.md §7: 429/5xx as transient, 401/403
// as permanent, 404 as a missing entity, everything else as an invariant
// violation.
func getJSON(ctx context.Context, client *http.Client, rawURL string, timeout time.Duration, out any) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return errs.New(errs.KindTransientExternal, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errs.New(errs.KindInvariantViolation, fmt.Errorf("decode response from %s: %w", rawURL, err))
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errs.New(errs.KindTransientExternal, fmt.Errorf("%s: status %d", rawURL, resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errs.New(errs.KindPermanentExternal, fmt.Errorf("%s: status %d", rawURL, resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return errs.New(errs.KindMissingEntity, fmt.Errorf("%s: status %d", rawURL, resp.StatusCode))
	default:
		return errs.New(errs.KindInvariantViolation, fmt.Errorf("%s: status %d", rawURL, resp.StatusCode))
	}
}
