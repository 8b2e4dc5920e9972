// Package vectorstore implements the embedding + vector store adapter
// (C2): chunking text into overlapping windows, embedding and persisting
// them as ContentChunk rows, and k-NN retrieval by cosine distance.
package vectorstore

import (
	"context"
	"time"

	"ytreport/internal/model"
)

// Result is one row returned by a similarity search, augmented with the
// derived similarity score.
type Result struct {
	ID         string
	SourceType model.SourceType
	SourceID   int64
	Content    string
	ChunkIndex int
	Meta       map[string]any
	CreatedAt  time.Time
	Similarity float64
}

// Store is the vector-capable persistence contract used by the chunking
// engine, the RAG executor, and the step handlers.
type Store interface {
	// SaveContext splits text into overlapping windows, embeds each, and
	// inserts one ContentChunk row per window.
	SaveContext(ctx context.Context, sourceType model.SourceType, sourceID int64, text string, meta map[string]any) error

	// SaveChunk inserts a single pre-formed chunk (used by callers that
	// already hold a window/segment boundary, e.g. the chunking engine's
	// time-uniform and meaning passes).
	SaveChunk(ctx context.Context, chunk model.ContentChunk) error

	// SearchSimilarByEmbedding performs SQL-level cosine-distance ordering
	// against an already-computed query embedding. filterSourceID, when
	// non-nil, restricts to that SourceID.
	SearchSimilarByEmbedding(ctx context.Context, sourceType model.SourceType, queryEmbedding []float32, filterSourceID *int64, limit int) ([]Result, error)

	// SearchSimilarK embeds queryText then performs the same search as
	// SearchSimilarByEmbedding, additionally filtering by sourceID and by
	// each meta key/value pair in metaFilters.
	SearchSimilarK(ctx context.Context, queryText string, sourceType model.SourceType, sourceID int64, metaFilters map[string]string, limit int) ([]Result, error)

	// ExistsByChunkTypeAndID reports whether any chunk exists tagged with
	// the given meta.chunk_type for sourceID, gating re-runs of the
	// chunking engine's idempotent passes.
	ExistsByChunkTypeAndID(ctx context.Context, chunkType model.ChunkType, sourceID int64) (bool, error)
}

// windowConfig controls SaveContext's text-splitting behavior.
type windowConfig struct {
	size    int
	overlap int
}

var defaultWindow = windowConfig{size: 150, overlap: 15}

// splitWindows breaks text into overlapping fixed-size windows, dropping
// whitespace-only windows. This is the generic splitter SaveContext uses for
// free-form prose (summaries, analyses); the chunking engine's time-uniform
// and meaning passes bypass it and call SaveChunk directly since they need
// transcript-aligned boundaries, not fixed windows.
func splitWindows(text string, cfg windowConfig) []string {
	if cfg.size <= 0 {
		cfg.size = defaultWindow.size
	}
	if cfg.overlap < 0 || cfg.overlap >= cfg.size {
		cfg.overlap = defaultWindow.overlap
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var out []string
	step := cfg.size - cfg.overlap
	for start := 0; start < len(runes); start += step {
		end := start + cfg.size
		if end > len(runes) {
			end = len(runes)
		}
		window := string(runes[start:end])
		if hasNonSpace(window) {
			out = append(out, window)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

func hasNonSpace(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	return false
}
