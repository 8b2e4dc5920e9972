package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ytreport/internal/model"
)

// TrendKeywordRepository bulk-persists the real-time and channel-tailored
// keyword sets produced by the idea step's trend-extraction sub-phase.
// Rows are never updated once written.
type TrendKeywordRepository interface {
	BulkInsert(ctx context.Context, keywords []model.TrendKeyword) error
}

type pgTrendKeywordRepository struct {
	pool *pgxpool.Pool
}

// NewTrendKeywordRepository constructs a Postgres-backed TrendKeywordRepository.
func NewTrendKeywordRepository(pool *pgxpool.Pool) TrendKeywordRepository {
	return &pgTrendKeywordRepository{pool: pool}
}

func (r *pgTrendKeywordRepository) BulkInsert(ctx context.Context, keywords []model.TrendKeyword) error {
	if len(keywords) == 0 {
		return nil
	}
	batch := make([][]any, len(keywords))
	for i, k := range keywords {
		batch[i] = []any{k.ReportID, string(k.KeywordType), k.Keyword, k.Score}
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"trend_keywords"},
		[]string{"report_id", "keyword_type", "keyword", "score"},
		pgx.CopyFromRows(batch),
	)
	if err != nil {
		return fmt.Errorf("bulk insert trend keywords: %w", err)
	}
	return nil
}

// IdeaRepository bulk-inserts the content ideas produced by the idea step's
// generation sub-phase.
type IdeaRepository interface {
	BulkInsert(ctx context.Context, ideas []model.Idea) error
}

type pgIdeaRepository struct {
	pool *pgxpool.Pool
}

// NewIdeaRepository constructs a Postgres-backed IdeaRepository.
func NewIdeaRepository(pool *pgxpool.Pool) IdeaRepository {
	return &pgIdeaRepository{pool: pool}
}

func (r *pgIdeaRepository) BulkInsert(ctx context.Context, ideas []model.Idea) error {
	if len(ideas) == 0 {
		return nil
	}
	batch := make([][]any, len(ideas))
	for i, idea := range ideas {
		batch[i] = []any{idea.ChannelOrVideoID, idea.Title, idea.Content, idea.HashTag, idea.IsBookMarked}
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"ideas"},
		[]string{"channel_or_video_id", "title", "content", "hash_tag", "is_book_marked"},
		pgx.CopyFromRows(batch),
	)
	if err != nil {
		return fmt.Errorf("bulk insert ideas: %w", err)
	}
	return nil
}
