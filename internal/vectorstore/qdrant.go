package vectorstore

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"

	"ytreport/internal/embedding"
	"ytreport/internal/model"
)

// payloadIDField stores the caller-supplied ContentChunk.ID in the point
// payload, since Qdrant only accepts UUIDs or positive integers as point
// IDs.
const payloadIDField = "_original_id"

type qdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
	embedder   embedding.Embedder
}

// NewQdrant constructs a Store backed by a Qdrant collection, parsed from a
// dsn of the form "host:port?api_key=...&tls=true".
func NewQdrant(ctx context.Context, dsn, collection string, dimension int, metric string, embedder embedding.Embedder) (Store, error) {
	host, port, apiKey, useTLS, err := parseQdrantDSN(dsn)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		UseTLS: useTLS,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("new qdrant client: %w", err)
	}

	s := &qdrantStore{client: client, collection: collection, dimension: dimension, metric: metric, embedder: embedder}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func parseQdrantDSN(dsn string) (host string, port int, apiKey string, useTLS bool, err error) {
	if !strings.Contains(dsn, "://") {
		dsn = "qdrant://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", 0, "", false, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host = u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port = 6334
	if p := u.Port(); p != "" {
		if n, perr := strconv.Atoi(p); perr == nil {
			port = n
		}
	}
	apiKey = u.Query().Get("api_key")
	useTLS = u.Query().Get("tls") == "true"
	return host, port, apiKey, useTLS, nil
}

func (s *qdrantStore) distance() qdrant.Distance {
	switch s.metric {
	case "l2":
		return qdrant.Distance_Euclid
	case "ip":
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func (s *qdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	dist := s.distance()
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: dist,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// pointID derives a deterministic UUID from a ContentChunk's logical
// identity so repeated SaveChunk calls for the same (sourceType, sourceID,
// chunkIndex) overwrite the same point rather than accumulating duplicates.
func pointID(sourceType model.SourceType, sourceID int64, chunkIndex int) string {
	h := sha1.Sum([]byte(fmt.Sprintf("%s:%d:%d", sourceType, sourceID, chunkIndex)))
	return uuid.NewSHA1(uuid.NameSpaceOID, h[:]).String()
}

func (s *qdrantStore) SaveContext(ctx context.Context, sourceType model.SourceType, sourceID int64, text string, meta map[string]any) error {
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
			SourceType: sourceType,
			SourceID:   sourceID,
			Content:    w,
			ChunkIndex: i,
			Embedding:  vectors[i],
			Meta:       meta,
		}
		if err := s.SaveChunk(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *qdrantStore) SaveChunk(ctx context.Context, chunk model.ContentChunk) error {
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	payload := map[string]any{
		payloadIDField: chunk.ID,
		"source_type":  string(chunk.SourceType),
		"source_id":    chunk.SourceID,
		"source_id_s":  strconv.FormatInt(chunk.SourceID, 10),
		"content":      chunk.Content,
		"chunk_index":  chunk.ChunkIndex,
		"created_at":   chunk.CreatedAt.Unix(),
	}
	for k, v := range chunk.Meta {
		payload["meta_"+k] = v
	}

	id := pointID(chunk.SourceType, chunk.SourceID, chunk.ChunkIndex)
	vec := make([]float32, len(chunk.Embedding))
	copy(vec, chunk.Embedding)
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(id),
				Vectors: qdrant.NewVectorsDense(vec),
				Payload: qdrant.NewValueMap(payload),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}
	return nil
}

func (s *qdrantStore) SearchSimilarByEmbedding(ctx context.Context, sourceType model.SourceType, queryEmbedding []float32, filterSourceID *int64, limit int) ([]Result, error) {
	must := []*qdrant.Condition{
		qdrant.NewMatch("source_type", string(sourceType)),
	}
	if filterSourceID != nil {
		must = append(must, qdrant.NewMatch("source_id_s", strconv.FormatInt(*filterSourceID, 10)))
	}

	vec := make([]float32, len(queryEmbedding))
	copy(vec, queryEmbedding)
	limU := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vec),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          &limU,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	return resultsFromPoints(points), nil
}

func (s *qdrantStore) SearchSimilarK(ctx context.Context, queryText string, sourceType model.SourceType, sourceID int64, metaFilters map[string]string, limit int) ([]Result, error) {
	vecs, err := s.embedder.EmbedBatch(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	must := []*qdrant.Condition{
		qdrant.NewMatch("source_type", string(sourceType)),
		qdrant.NewMatch("source_id_s", strconv.FormatInt(sourceID, 10)),
	}
	for k, v := range metaFilters {
		must = append(must, qdrant.NewMatch("meta_"+k, v))
	}

	vec := make([]float32, len(vecs[0]))
	copy(vec, vecs[0])
	limU := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vec),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          &limU,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	return resultsFromPoints(points), nil
}

// ExistsByChunkTypeAndID uses a plain Query (rather than a count endpoint) so
// the only Qdrant calls this store makes are the Upsert/Query/CollectionExists
// shapes already exercised elsewhere in this file.
func (s *qdrantStore) ExistsByChunkTypeAndID(ctx context.Context, chunkType model.ChunkType, sourceID int64) (bool, error) {
	probe := make([]float32, s.dimension)
	one := uint64(1)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(probe),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("source_id_s", strconv.FormatInt(sourceID, 10)),
				qdrant.NewMatch("meta_chunk_type", string(chunkType)),
			},
		},
		Limit:       &one,
		WithPayload: qdrant.NewWithPayload(false),
	})
	if err != nil {
		return false, fmt.Errorf("probe query: %w", err)
	}
	return len(points) > 0, nil
}

func resultsFromPoints(points []*qdrant.ScoredPoint) []Result {
	out := make([]Result, 0, len(points))
	for _, p := range points {
		fields := p.Payload
		r := Result{
			Similarity: float64(p.Score),
		}
		if v, ok := fields[payloadIDField]; ok {
			r.ID = v.GetStringValue()
		}
		if v, ok := fields["source_type"]; ok {
			r.SourceType = model.SourceType(v.GetStringValue())
		}
		if v, ok := fields["source_id"]; ok {
			r.SourceID = v.GetIntegerValue()
		}
		if v, ok := fields["content"]; ok {
			r.Content = v.GetStringValue()
		}
		if v, ok := fields["chunk_index"]; ok {
			r.ChunkIndex = int(v.GetIntegerValue())
		}
		meta := map[string]any{}
		for k, v := range fields {
			if strings.HasPrefix(k, "meta_") {
				meta[strings.TrimPrefix(k, "meta_")] = qdrantValueToAny(v)
			}
		}
		r.Meta = meta
		out = append(out, r)
	}
	return out
}

func qdrantValueToAny(v *qdrant.Value) any {
	switch {
	case v.GetStringValue() != "":
		return v.GetStringValue()
	case v.GetIntegerValue() != 0:
		return v.GetIntegerValue()
	case v.GetDoubleValue() != 0:
		return v.GetDoubleValue()
	case v.GetBoolValue():
		return true
	default:
		return nil
	}
}
