package external

import (
	"context"
	"errors"

	"ytreport/internal/errs"
	"ytreport/internal/model"
)

// FetchAllComments paginates CommentThreadsPage until nextPageToken is
// exhausted or maxFetch comments have been collected. A commentsDisabled
// response yields an empty slice with no error, per spec.md §4.4.
func (c *YouTubeDataClient) FetchAllComments(ctx context.Context, youtubeVideoID string, maxFetch int) ([]model.Comment, error) {
	var out []model.Comment
	pageToken := ""
	for {
		page, next, err := c.CommentThreadsPage(ctx, youtubeVideoID, pageToken)
		if err != nil {
			if errors.Is(err, errs.ErrCommentsDisabled) {
				return nil, nil
			}
			return nil, err
		}
		out = append(out, page...)
		if len(out) >= maxFetch || next == "" {
			if len(out) > maxFetch {
				out = out[:maxFetch]
			}
			return out, nil
		}
		pageToken = next
	}
}
