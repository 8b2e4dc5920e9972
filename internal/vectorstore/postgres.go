package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ytreport/internal/embedding"
	"ytreport/internal/model"
)

// postgresStore persists ContentChunk rows in a pgvector-backed table.
type postgresStore struct {
	pool       *pgxpool.Pool
	embedder   embedding.Embedder
	dimensions int
	metric     string // cosine|l2|ip
}

// NewPostgres constructs a Store backed by a pgvector-extended Postgres
// table, creating the extension and table if they do not already exist.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, embedder embedding.Embedder, dimensions int, metric string) (Store, error) {
	if metric == "" {
		metric = "cosine"
	}
	s := &postgresStore{pool: pool, embedder: embedder, dimensions: dimensions, metric: metric}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *postgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS content_chunks (
		id TEXT PRIMARY KEY,
		source_type TEXT NOT NULL,
		source_id BIGINT NOT NULL,
		content TEXT NOT NULL,
		chunk_index INT NOT NULL,
		embedding vector(%d) NOT NULL,
		meta JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (source_type, source_id, chunk_index)
	)`, s.dimensions)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create content_chunks table: %w", err)
	}
	return nil
}

func (s *postgresStore) SaveContext(ctx context.Context, sourceType model.SourceType, sourceID int64, text string, meta map[string]any) error {
	windows := splitWindows(text, defaultWindow)
	if len(windows) == 0 {
		return nil
	}
	vectors, err := s.embedder.EmbedBatch(ctx, windows)
	if err != nil {
		return fmt.Errorf("embed windows: %w", err)
	}
	for i, w := range windows {
		chunk := model.ContentChunk{
			ID:         uuid.NewString(),
			SourceType: sourceType,
			SourceID:   sourceID,
			Content:    w,
			ChunkIndex: i,
			Embedding:  vectors[i],
			Meta:       meta,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.SaveChunk(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveChunk(ctx context.Context, chunk model.ContentChunk) error {
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	metaJSON, err := json.Marshal(chunk.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO content_chunks (id, source_type, source_id, content, chunk_index, embedding, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::vector, $7, $8)
		ON CONFLICT (source_type, source_id, chunk_index) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			meta = EXCLUDED.meta
	`, chunk.ID, string(chunk.SourceType), chunk.SourceID, chunk.Content, chunk.ChunkIndex,
		toVectorLiteral(chunk.Embedding), metaJSON, chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert content_chunk: %w", err)
	}
	return nil
}

func (s *postgresStore) SearchSimilarByEmbedding(ctx context.Context, sourceType model.SourceType, queryEmbedding []float32, filterSourceID *int64, limit int) ([]Result, error) {
	scoreExpr, orderExpr, err := s.metricExprs()
	if err != nil {
		return nil, err
	}

	args := []any{string(sourceType), toVectorLiteral(queryEmbedding)}
	where := "source_type = $1"
	if filterSourceID != nil {
		args = append(args, *filterSourceID)
		where += fmt.Sprintf(" AND source_id = $%d", len(args))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, source_type, source_id, content, chunk_index, meta, created_at, %s AS similarity
		FROM content_chunks
		WHERE %s
		ORDER BY %s
		LIMIT $%d
	`, scoreExpr, where, orderExpr, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func (s *postgresStore) SearchSimilarK(ctx context.Context, queryText string, sourceType model.SourceType, sourceID int64, metaFilters map[string]string, limit int) ([]Result, error) {
	vecs, err := s.embedder.EmbedBatch(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	scoreExpr, orderExpr, err := s.metricExprs()
	if err != nil {
		return nil, err
	}

	args := []any{string(sourceType), toVectorLiteral(vecs[0]), sourceID}
	where := "source_type = $1 AND source_id = $3"
	keys := sortedKeys(metaFilters)
	for _, k := range keys {
		args = append(args, k)
		keyParam := len(args)
		args = append(args, metaFilters[k])
		where += fmt.Sprintf(" AND meta->>$%d = $%d", keyParam, len(args))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, source_type, source_id, content, chunk_index, meta, created_at, %s AS similarity
		FROM content_chunks
		WHERE %s
		ORDER BY %s
		LIMIT $%d
	`, scoreExpr, where, orderExpr, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func (s *postgresStore) ExistsByChunkTypeAndID(ctx context.Context, chunkType model.ChunkType, sourceID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM content_chunks WHERE source_id = $1 AND meta->>'chunk_type' = $2)
	`, sourceID, string(chunkType)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists check: %w", err)
	}
	return exists, nil
}

// metricExprs returns the SQL similarity and ORDER BY expressions for the
// configured distance metric. similarity = 1 - distance for cosine/L2,
// assuming embeddings are unit-normalized on write for L2 and inner-product
// metrics; dot product is used directly as a similarity proxy.
func (s *postgresStore) metricExprs() (score, order string, err error) {
	switch s.metric {
	case "cosine":
		return "1 - (embedding <=> $2::vector)", "embedding <=> $2::vector", nil
	case "l2":
		return "1 - (embedding <-> $2::vector)", "embedding <-> $2::vector", nil
	case "ip":
		return "(embedding <#> $2::vector) * -1", "embedding <#> $2::vector", nil
	default:
		return "", "", fmt.Errorf("unsupported distance metric: %s", s.metric)
	}
}

func scanResults(rows pgx.Rows) ([]Result, error) {
	var out []Result
	for rows.Next() {
		var (
			r         Result
			metaBytes []byte
			sourceTyp string
		)
		if err := rows.Scan(&r.ID, &sourceTyp, &r.SourceID, &r.Content, &r.ChunkIndex, &metaBytes, &r.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.SourceType = model.SourceType(sourceTyp)
		if len(metaBytes) > 0 {
			if err := json.Unmarshal(metaBytes, &r.Meta); err != nil {
				return nil, fmt.Errorf("unmarshal meta: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func toVectorLiteral(vec []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
