package comments

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"ytreport/internal/config"
	"ytreport/internal/llm"
	"ytreport/internal/model"
)

func samplingCfg() config.CommentSamplingConfig {
	return config.CommentSamplingConfig{Threshold: 200, Rate: 0.1, MaxFetch: 1000}
}

func TestSample_BelowThresholdUsesEverything(t *testing.T) {
	p := New(nil, "model", samplingCfg(), rand.New(rand.NewSource(1)))
	raw := make([]model.Comment, 50)
	sampled, unsampled := p.Sample(raw)
	require.Len(t, sampled, 50)
	require.Empty(t, unsampled)
}

func TestSample_AboveThresholdUsesRateWithFloor(t *testing.T) {
	p := New(nil, "model", samplingCfg(), rand.New(rand.NewSource(1)))
	raw := make([]model.Comment, 1000)
	sampled, unsampled := p.Sample(raw)
	require.Len(t, sampled, 100) // floor(1000*0.1)=100, >= 20
	require.Len(t, unsampled, 900)
}

func TestSample_FloorsAtTwenty(t *testing.T) {
	p := New(nil, "model", samplingCfg(), rand.New(rand.NewSource(1)))
	raw := make([]model.Comment, 201)
	sampled, _ := p.Sample(raw)
	require.Len(t, sampled, 20) // floor(201*0.1)=20
}

func TestExtrapolate_NoUnsampledReturnsSampledCountsOnly(t *testing.T) {
	p := New(nil, "model", samplingCfg(), rand.New(rand.NewSource(1)))
	classified := []model.Comment{
		{CommentType: model.CommentPositive},
		{CommentType: model.CommentNegative},
	}
	got := p.Extrapolate(classified, 0)
	require.Equal(t, BucketCounts{Positive: 1, Negative: 1}, got)
}

func TestExtrapolate_DistributesUnsampledAccordingToSampleDistribution(t *testing.T) {
	p := New(nil, "model", samplingCfg(), rand.New(rand.NewSource(42)))
	classified := make([]model.Comment, 100)
	for i := range classified {
		classified[i].CommentType = model.CommentPositive
	}
	got := p.Extrapolate(classified, 500)
	// Every sampled comment is positive, so every extrapolated assignment
	// must also land in positive.
	require.Equal(t, int64(600), got.Positive)
	require.Equal(t, int64(0), got.Negative)
}

type stubProvider struct {
	reply string
}

func (s stubProvider) Chat(_ context.Context, _ []llm.Message, _ string, _ float64) (llm.Message, error) {
	return llm.Message{Role: "assistant", Content: s.reply}, nil
}

func TestClassify_MapsEmotionCodeToCommentType(t *testing.T) {
	p := New(stubProvider{reply: "2"}, "model", samplingCfg(), rand.New(rand.NewSource(1)))
	out, err := p.Classify(context.Background(), []model.Comment{{Content: "bad video"}})
	require.NoError(t, err)
	require.Equal(t, model.CommentNegative, out[0].CommentType)
}

func TestSummarize_EmptyBucketsProduceNoRows(t *testing.T) {
	p := New(stubProvider{reply: `["great content"]`}, "model", samplingCfg(), rand.New(rand.NewSource(1)))
	classified := []model.Comment{{Content: "love it", CommentType: model.CommentPositive}}
	out, err := p.Summarize(context.Background(), classified, 7)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(7), out[0].ReportID)
	require.Equal(t, model.CommentPositive, out[0].CommentType)
}
