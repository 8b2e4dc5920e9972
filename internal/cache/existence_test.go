package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ytreport/internal/model"
)

func TestCacheKey_IsStableAndDistinctPerChunkTypeAndID(t *testing.T) {
	a := cacheKey(model.ChunkTime, 42)
	b := cacheKey(model.ChunkMean, 42)
	c := cacheKey(model.ChunkTime, 43)
	require.Equal(t, a, cacheKey(model.ChunkTime, 42))
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
}
