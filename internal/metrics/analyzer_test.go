package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ytreport/internal/embedding"
	"ytreport/internal/model"
)

func TestSEO_HappyPath(t *testing.T) {
	a := VideoAnalytics{
		Views:                10000,
		AverageViewDuration:  120,
		TotalDurationSeconds: 300,
		Likes:                300,
		Shares:               50,
		SubscribersGained:    50,
	}
	require.Equal(t, 70.0, SEO(a))
}

func TestSEO_ZeroViewsIsZero(t *testing.T) {
	require.Equal(t, 0.0, SEO(VideoAnalytics{Views: 0}))
}

func TestSEO_SubScoresClipAtOne(t *testing.T) {
	a := VideoAnalytics{
		Views:                100,
		AverageViewDuration:  1000,
		TotalDurationSeconds: 10,
		Likes:                10000,
		Shares:               10000,
		SubscribersGained:    10000,
	}
	require.Equal(t, 100.0, SEO(a))
}

func TestRevisit_HappyPath(t *testing.T) {
	a := VideoAnalytics{Views: 10000, Likes: 300, Shares: 50, SubscribersGained: 50}
	require.Equal(t, 4.00, Revisit(a))
}

func TestRevisit_ZeroViewsIsZero(t *testing.T) {
	require.Equal(t, 0.0, Revisit(VideoAnalytics{Views: 0}))
}

func TestChannelTopicAverages_NoPeersReturnsAllZeros(t *testing.T) {
	target := model.Video{ViewCount: 100, LikeCount: 10, CommentCount: 1}
	got := ChannelTopicAverages(target, nil, nil)
	require.Equal(t, Averages{}, got)
}

func TestChannelTopicAverages_ComputesTruncatedDeltaPercent(t *testing.T) {
	target := model.Video{ViewCount: 150, LikeCount: 20, CommentCount: 5}
	peers := []model.Video{
		{ViewCount: 100, LikeCount: 10, CommentCount: 5},
		{ViewCount: 100, LikeCount: 10, CommentCount: 5},
	}
	got := ChannelTopicAverages(target, peers, peers)
	require.Equal(t, 50.0, got.ChannelViewDelta) // (150-100)/100*100=50
	require.Equal(t, got.ChannelViewDelta, got.TopicViewDelta)
}

func TestConsistency_NoSiblingsReturns100(t *testing.T) {
	a := New(embedding.NewDeterministic(16, true, 1))
	got, err := a.Consistency(context.Background(), model.Video{Title: "x"}, nil)
	require.NoError(t, err)
	require.Equal(t, 100.0, got)
}

func TestConsistency_IdenticalSiblingYieldsHighScore(t *testing.T) {
	a := New(embedding.NewDeterministic(32, true, 7))
	target := model.Video{Title: "Same Title", Description: "Same Description"}
	sibling := model.Video{Title: "Same Title", Description: "Same Description"}
	got, err := a.Consistency(context.Background(), target, []model.Video{sibling})
	require.NoError(t, err)
	require.InDelta(t, 100.0, got, 0.01)
}
