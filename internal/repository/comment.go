package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ytreport/internal/model"
)

// CommentRepository persists the per-emotion summary rows the comment
// pipeline produces. Only sampled, LLM-summarized comments are ever
// inserted; extrapolated bucket counts live on Report, not as rows here.
type CommentRepository interface {
	BulkInsert(ctx context.Context, comments []model.Comment) error
}

type pgCommentRepository struct {
	pool *pgxpool.Pool
}

// NewCommentRepository constructs a Postgres-backed CommentRepository.
func NewCommentRepository(pool *pgxpool.Pool) CommentRepository {
	return &pgCommentRepository{pool: pool}
}

func (r *pgCommentRepository) BulkInsert(ctx context.Context, comments []model.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	batch := make([][]any, len(comments))
	for i, c := range comments {
		batch[i] = []any{c.ReportID, c.Content, string(c.CommentType), c.LikeCount}
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"comments"},
		[]string{"report_id", "content", "comment_type", "like_count"},
		pgx.CopyFromRows(batch),
	)
	if err != nil {
		return fmt.Errorf("bulk insert comments: %w", err)
	}
	return nil
}
