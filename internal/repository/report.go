// Package repository implements the Report and Task repositories (C9)
// behind the partial-upsert contract: creating a Report inserts a row with
// only video_id set; every subsequent handler write updates only the
// columns it supplies, via a dedicated Update method rather than a single
// method that dispatches on whether id is present.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ytreport/internal/model"
)

// ReportFields is a partial set of Report columns to write. Fields left nil
// are left untouched by Update.
type ReportFields struct {
	Title        *string
	ViewCount    *int64
	LikeCount    *int64
	CommentCount *int64

	ChannelViewDelta    *float64
	ChannelLikeDelta    *float64
	ChannelCommentDelta *float64
	TopicViewDelta      *float64
	TopicLikeDelta      *float64
	TopicCommentDelta   *float64

	Concept *float64
	SEO     *float64
	Revisit *float64

	Summary *string

	PositiveComments *int64
	NegativeComments *int64
	NeutralComments  *int64
	AdviceComments   *int64

	LeaveAnalyze *string
	Optimization *string
}

// ReportRepository is the Report persistence contract: Create inserts a new
// row with only VideoID set; Update issues a partial UPDATE over only the
// supplied fields, keyed by id.
type ReportRepository interface {
	Create(ctx context.Context, videoID int64) (model.Report, error)
	Get(ctx context.Context, id int64) (model.Report, error)
	Update(ctx context.Context, id int64, fields ReportFields) error
}

type pgReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository constructs a Postgres-backed ReportRepository.
func NewReportRepository(pool *pgxpool.Pool) ReportRepository {
	return &pgReportRepository{pool: pool}
}

func (r *pgReportRepository) Create(ctx context.Context, videoID int64) (model.Report, error) {
	var rep model.Report
	err := r.pool.QueryRow(ctx, `
		INSERT INTO reports (video_id, created_at, updated_at)
		VALUES ($1, now(), now())
		RETURNING id, video_id, created_at, updated_at
	`, videoID).Scan(&rep.ID, &rep.VideoID, &rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		return model.Report{}, fmt.Errorf("create report: %w", err)
	}
	return rep, nil
}

func (r *pgReportRepository) Get(ctx context.Context, id int64) (model.Report, error) {
	var rep model.Report
	err := r.pool.QueryRow(ctx, `
		SELECT id, video_id, title, view_count, like_count, comment_count,
			channel_view_delta, channel_like_delta, channel_comment_delta,
			topic_view_delta, topic_like_delta, topic_comment_delta,
			concept, seo, revisit, summary,
			positive_comments, negative_comments, neutral_comments, advice_comments,
			leave_analyze, optimization, created_at, updated_at
		FROM reports WHERE id = $1
	`, id).Scan(&rep.ID, &rep.VideoID, &rep.Title, &rep.ViewCount, &rep.LikeCount, &rep.CommentCount,
		&rep.ChannelViewDelta, &rep.ChannelLikeDelta, &rep.ChannelCommentDelta,
		&rep.TopicViewDelta, &rep.TopicLikeDelta, &rep.TopicCommentDelta,
		&rep.Concept, &rep.SEO, &rep.Revisit, &rep.Summary,
		&rep.PositiveComments, &rep.NegativeComments, &rep.NeutralComments, &rep.AdviceComments,
		&rep.LeaveAnalyze, &rep.Optimization, &rep.CreatedAt, &rep.UpdatedAt)
	if err == pgx.ErrNoRows {
		return model.Report{}, fmt.Errorf("report %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Report{}, fmt.Errorf("get report %d: %w", id, err)
	}
	return rep, nil
}

// Update issues an UPDATE containing only the columns whose fields are
// non-nil, so concurrent handlers writing disjoint field subsets never
// clobber each other.
func (r *pgReportRepository) Update(ctx context.Context, id int64, fields ReportFields) error {
	cols, args := reportSetClause(fields)
	if len(cols) == 0 {
		return nil
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE reports SET %s, updated_at = now() WHERE id = $%d`, joinAssignments(cols), len(args))
	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update report %d: %w", id, err)
	}
	return nil
}

func reportSetClause(f ReportFields) ([]string, []any) {
	var cols []string
	var args []any
	add := func(col string, val any) {
		cols = append(cols, col)
		args = append(args, val)
	}
	if f.Title != nil {
		add("title", *f.Title)
	}
	if f.ViewCount != nil {
		add("view_count", *f.ViewCount)
	}
	if f.LikeCount != nil {
		add("like_count", *f.LikeCount)
	}
	if f.CommentCount != nil {
		add("comment_count", *f.CommentCount)
	}
	if f.ChannelViewDelta != nil {
		add("channel_view_delta", *f.ChannelViewDelta)
	}
	if f.ChannelLikeDelta != nil {
		add("channel_like_delta", *f.ChannelLikeDelta)
	}
	if f.ChannelCommentDelta != nil {
		add("channel_comment_delta", *f.ChannelCommentDelta)
	}
	if f.TopicViewDelta != nil {
		add("topic_view_delta", *f.TopicViewDelta)
	}
	if f.TopicLikeDelta != nil {
		add("topic_like_delta", *f.TopicLikeDelta)
	}
	if f.TopicCommentDelta != nil {
		add("topic_comment_delta", *f.TopicCommentDelta)
	}
	if f.Concept != nil {
		add("concept", *f.Concept)
	}
	if f.SEO != nil {
		add("seo", *f.SEO)
	}
	if f.Revisit != nil {
		add("revisit", *f.Revisit)
	}
	if f.Summary != nil {
		add("summary", *f.Summary)
	}
	if f.PositiveComments != nil {
		add("positive_comments", *f.PositiveComments)
	}
	if f.NegativeComments != nil {
		add("negative_comments", *f.NegativeComments)
	}
	if f.NeutralComments != nil {
		add("neutral_comments", *f.NeutralComments)
	}
	if f.AdviceComments != nil {
		add("advice_comments", *f.AdviceComments)
	}
	if f.LeaveAnalyze != nil {
		add("leave_analyze", *f.LeaveAnalyze)
	}
	if f.Optimization != nil {
		add("optimization", *f.Optimization)
	}
	return cols, args
}

// joinAssignments renders "col1 = $1, col2 = $2, ..." for the given column
// list, positionally matching the args slice built alongside it.
func joinAssignments(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s = $%d", c, i+1)
	}
	return out
}
