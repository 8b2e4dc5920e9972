package chunking

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ytreport/internal/errs"
	"ytreport/internal/model"
)

func TestDeriveParams_ShortVideo(t *testing.T) {
	p := DeriveParams(200, nil)
	require.Equal(t, 7.0, p.BaseChunk)     // max(7, floor(0.02*200)=4)
	require.Equal(t, 5.0, p.FocusChunk)    // max(5, min(floor(0.006*200)=1,60))
	require.Equal(t, 10.0, p.FocusWindow)  // max(10, min(floor(0.04*200)=8,300))
}

func TestDeriveParams_LongVideo(t *testing.T) {
	p := DeriveParams(10000, nil)
	require.Equal(t, 200.0, p.BaseChunk)  // floor(0.02*10000)
	require.Equal(t, 60.0, p.FocusChunk)  // min(floor(0.006*10000)=60,60)
	require.Equal(t, 300.0, p.FocusWindow) // min(floor(0.04*10000)=400,300)
}

func TestDeriveParams_FocusWindowClampsToVideoBounds(t *testing.T) {
	p := DeriveParams(50, []model.RetentionRow{
		{ElapsedRatio: 0, AudienceWatchRatio: 1.0},
		{ElapsedRatio: 0.05, AudienceWatchRatio: 0.2},
	})
	require.GreaterOrEqual(t, p.FocusStart, 0.0)
	require.LessOrEqual(t, p.FocusEnd, p.Length)
}

func TestWorstDropRatio_IgnoresTailAfter95Percent(t *testing.T) {
	rows := []model.RetentionRow{
		{ElapsedRatio: 0.0, AudienceWatchRatio: 1.0},
		{ElapsedRatio: 0.5, AudienceWatchRatio: 0.9},
		{ElapsedRatio: 0.96, AudienceWatchRatio: 0.01}, // steep drop but excluded
	}
	require.Equal(t, 0.5, worstDropRatio(rows))
}

func TestWorstDropRatio_EmptyOrSingleRow(t *testing.T) {
	require.Equal(t, 0.0, worstDropRatio(nil))
	require.Equal(t, 0.3, worstDropRatio([]model.RetentionRow{{ElapsedRatio: 0.3}}))
}

func TestCollectSnippets_BinarySearchLocatesOverlappingWindow(t *testing.T) {
	transcript := []model.TranscriptSegment{
		{Text: "a", StartTime: 0, EndTime: 5},
		{Text: "b", StartTime: 5, EndTime: 10},
		{Text: "c", StartTime: 10, EndTime: 15},
		{Text: "d", StartTime: 15, EndTime: 20},
	}
	starts := []float64{0, 5, 10, 15}
	got := collectSnippets(transcript, starts, 7, 16)
	require.Equal(t, "b c d", got)
}

func TestAverageRetention_NoMatchingRowsReturnsZeroValue(t *testing.T) {
	got := averageRetention(nil, 0, 1)
	require.Equal(t, model.RetentionRow{}, got)
}

func TestAverageRetention_AveragesWithinRange(t *testing.T) {
	rows := []model.RetentionRow{
		{ElapsedRatio: 0.1, AudienceWatchRatio: 0.8, RelativeRetentionPerformance: 1.0},
		{ElapsedRatio: 0.2, AudienceWatchRatio: 0.6, RelativeRetentionPerformance: 0.5},
		{ElapsedRatio: 0.9, AudienceWatchRatio: 0.1, RelativeRetentionPerformance: 0.1},
	}
	got := averageRetention(rows, 0.0, 0.3)
	require.InDelta(t, 0.7, got.AudienceWatchRatio, 1e-9)
	require.InDelta(t, 0.75, got.RelativeRetentionPerformance, 1e-9)
}

func TestParseMeaningTriplets_StripsCodeFenceAndParsesTriplets(t *testing.T) {
	content := "```json\n[[\"hello\", 0, 5], [\"world\", 5, 12.5]]\n```"
	triplets, err := parseMeaningTriplets(content)
	require.NoError(t, err)
	require.Len(t, triplets, 2)
	require.Equal(t, "hello", triplets[0].Text)
	require.Equal(t, 5.0, triplets[0].EndSec)
	require.Equal(t, 12.5, triplets[1].EndSec)
}

func TestParseMeaningTriplets_InvalidJSONIsParseFailure(t *testing.T) {
	_, err := parseMeaningTriplets("not json")
	require.Error(t, err)
	require.Equal(t, errs.KindParseFailure, errs.Classify(err))
}

func TestFocusRaws_FiltersToFocusZone(t *testing.T) {
	raws := []rawChunk{{IsFocus: false}, {IsFocus: true}, {IsFocus: true}}
	got := FocusRaws(raws)
	require.Len(t, got, 2)
}
