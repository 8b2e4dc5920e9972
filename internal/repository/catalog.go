package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ytreport/internal/model"
)

// VideoRepository is the read-only catalog contract for Video rows, owned
// by an external ingestion system the pipeline never writes to.
type VideoRepository interface {
	Get(ctx context.Context, id int64) (model.Video, error)
	SiblingsByChannel(ctx context.Context, channelID, excludeVideoID int64, limit int) ([]model.Video, error)
	SiblingsByCategory(ctx context.Context, category string, excludeVideoID int64, limit int) ([]model.Video, error)
	PopularByCategory(ctx context.Context, category string, limit int) ([]model.Video, error)
}

type pgVideoRepository struct {
	pool *pgxpool.Pool
}

// NewVideoRepository constructs a Postgres-backed VideoRepository.
func NewVideoRepository(pool *pgxpool.Pool) VideoRepository {
	return &pgVideoRepository{pool: pool}
}

const videoColumns = `id, youtube_video_id, channel_id, video_category, title, description, view_count, like_count, comment_count, duration_seconds`

func scanVideo(row pgx.Row) (model.Video, error) {
	var v model.Video
	err := row.Scan(&v.ID, &v.YouTubeVideoID, &v.ChannelID, &v.VideoCategory, &v.Title, &v.Description,
		&v.ViewCount, &v.LikeCount, &v.CommentCount, &v.DurationSeconds)
	return v, err
}

func (r *pgVideoRepository) Get(ctx context.Context, id int64) (model.Video, error) {
	v, err := scanVideo(r.pool.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return model.Video{}, fmt.Errorf("video %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Video{}, fmt.Errorf("get video %d: %w", id, err)
	}
	return v, nil
}

func (r *pgVideoRepository) SiblingsByChannel(ctx context.Context, channelID, excludeVideoID int64, limit int) ([]model.Video, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+videoColumns+` FROM videos WHERE channel_id = $1 AND id != $2 LIMIT $3`, channelID, excludeVideoID, limit)
	if err != nil {
		return nil, fmt.Errorf("query channel siblings: %w", err)
	}
	defer rows.Close()
	return scanVideos(rows)
}

func (r *pgVideoRepository) SiblingsByCategory(ctx context.Context, category string, excludeVideoID int64, limit int) ([]model.Video, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+videoColumns+` FROM videos WHERE video_category = $1 AND id != $2 LIMIT $3`, category, excludeVideoID, limit)
	if err != nil {
		return nil, fmt.Errorf("query topic siblings: %w", err)
	}
	defer rows.Close()
	return scanVideos(rows)
}

func (r *pgVideoRepository) PopularByCategory(ctx context.Context, category string, limit int) ([]model.Video, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+videoColumns+` FROM videos WHERE video_category = $1 ORDER BY view_count DESC LIMIT $2`, category, limit)
	if err != nil {
		return nil, fmt.Errorf("query popular videos: %w", err)
	}
	defer rows.Close()
	return scanVideos(rows)
}

func scanVideos(rows pgx.Rows) ([]model.Video, error) {
	var out []model.Video
	for rows.Next() {
		var v model.Video
		if err := rows.Scan(&v.ID, &v.YouTubeVideoID, &v.ChannelID, &v.VideoCategory, &v.Title, &v.Description,
			&v.ViewCount, &v.LikeCount, &v.CommentCount, &v.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scan video row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ChannelRepository is the read-only catalog contract for Channel rows.
type ChannelRepository interface {
	Get(ctx context.Context, id int64) (model.Channel, error)
}

type pgChannelRepository struct {
	pool *pgxpool.Pool
}

// NewChannelRepository constructs a Postgres-backed ChannelRepository.
func NewChannelRepository(pool *pgxpool.Pool) ChannelRepository {
	return &pgChannelRepository{pool: pool}
}

func (r *pgChannelRepository) Get(ctx context.Context, id int64) (model.Channel, error) {
	var c model.Channel
	err := r.pool.QueryRow(ctx, `SELECT id, concept, target, channel_hash_tag FROM channels WHERE id = $1`, id).
		Scan(&c.ID, &c.Concept, &c.Target, &c.ChannelHashTag)
	if err == pgx.ErrNoRows {
		return model.Channel{}, fmt.Errorf("channel %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Channel{}, fmt.Errorf("get channel %d: %w", id, err)
	}
	return c, nil
}
