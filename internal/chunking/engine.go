// Package chunking implements the retention-aware chunking engine (C1):
// time-uniform chunking of a transcript into base/focus-sized windows
// around the sharpest retention drop, followed by an LLM-driven
// meaning-based re-chunking pass restricted to that focus window.
package chunking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"ytreport/internal/errs"
	"ytreport/internal/llm"
	"ytreport/internal/model"
	"ytreport/internal/retry"
	"ytreport/internal/vectorstore"
)

const meaningChunkRetryBudget = 4

// Engine produces time-uniform and meaning-based chunks for a video's
// transcript, gated by the vector store's existence check so repeated
// invocations for the same video are a no-op.
type Engine struct {
	store    vectorstore.Store
	provider llm.Provider
	model    string
}

// New constructs a chunking Engine. model is the LLM model name used for the
// meaning-based-chunk prompt.
func New(store vectorstore.Store, provider llm.Provider, model string) *Engine {
	return &Engine{store: store, provider: provider, model: model}
}

// Params holds the base_chunk/focus_chunk/focus_window sizes derived from a
// video's length and its sharpest retention drop.
type Params struct {
	Length      float64 // video length in seconds
	BaseChunk   float64
	FocusChunk  float64
	FocusWindow float64
	FocusStart  float64
	FocusEnd    float64
}

// DeriveParams computes chunking parameters from video length and the
// retention curve. worstRatio is the elapsed-ratio of the steepest
// audienceWatchRatio drop restricted to elapsed_ratio < 0.95.
func DeriveParams(lengthSeconds float64, rows []model.RetentionRow) Params {
	worst := worstDropRatio(rows)
	base := math.Max(7, math.Floor(0.02*lengthSeconds))
	focus := math.Max(5, math.Min(math.Floor(0.006*lengthSeconds), 60))
	window := math.Max(10, math.Min(math.Floor(0.04*lengthSeconds), 300))
	center := worst * lengthSeconds
	start := center - window/2
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > lengthSeconds {
		end = lengthSeconds
		start = math.Max(0, end-window)
	}
	return Params{
		Length:      lengthSeconds,
		BaseChunk:   base,
		FocusChunk:  focus,
		FocusWindow: window,
		FocusStart:  start,
		FocusEnd:    end,
	}
}

// worstDropRatio returns the elapsed-ratio at which audienceWatchRatio drops
// the most between consecutive samples, excluding the tail after ratio 0.95
// where viewers are simply finishing the video.
func worstDropRatio(rows []model.RetentionRow) float64 {
	if len(rows) == 0 {
		return 0
	}
	sorted := make([]model.RetentionRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ElapsedRatio < sorted[j].ElapsedRatio })

	worstDrop := 0.0
	worstRatio := sorted[0].ElapsedRatio
	for i := 1; i < len(sorted); i++ {
		if sorted[i].ElapsedRatio >= 0.95 {
			break
		}
		drop := sorted[i-1].AudienceWatchRatio - sorted[i].AudienceWatchRatio
		if drop > worstDrop {
			worstDrop = drop
			worstRatio = sorted[i].ElapsedRatio
		}
	}
	return worstRatio
}

// rawChunk is one time-uniform window before it is persisted.
type rawChunk struct {
	Text      string
	StartSec  float64
	EndSec    float64
	IsFocus   bool
	Retention model.RetentionRow
}

// IngestTimeUniform sweeps the transcript from 0 to video length, sizing
// each window by FocusChunk inside the focus window and BaseChunk outside
// it, and persists one chunk per window with meta.chunk_type="time". It is
// a no-op if a time chunk already exists for videoID.
func (e *Engine) IngestTimeUniform(ctx context.Context, videoID int64, transcript []model.TranscriptSegment, retention []model.RetentionRow, p Params) ([]rawChunk, error) {
	exists, err := e.store.ExistsByChunkTypeAndID(ctx, model.ChunkTime, videoID)
	if err != nil {
		return nil, fmt.Errorf("check time chunk existence: %w", err)
	}
	if exists {
		return nil, nil
	}

	starts := make([]float64, len(transcript))
	for i, seg := range transcript {
		starts[i] = seg.StartTime
	}

	var raws []rawChunk
	idx := 0
	for current := 0.0; current < p.Length; {
		inFocus := current >= p.FocusStart && current < p.FocusEnd
		size := p.BaseChunk
		if inFocus {
			size = p.FocusChunk
		}
		end := current + size
		if end > p.Length {
			end = p.Length
		}

		text := collectSnippets(transcript, starts, current, end)
		avgRetention := averageRetention(retention, current/p.Length, end/p.Length)

		raw := rawChunk{Text: text, StartSec: current, EndSec: end, IsFocus: inFocus, Retention: avgRetention}
		raws = append(raws, raw)

		chunk := model.ContentChunk{
			SourceType: model.SourceVideoSummary,
			SourceID:   videoID,
			Content:    text,
			ChunkIndex: idx,
			Meta: map[string]any{
				"chunk_type":                     string(model.ChunkTime),
				"is_focus_zone":                  inFocus,
				"start_sec":                      current,
				"end_sec":                        end,
				"audience_watch_ratio":           avgRetention.AudienceWatchRatio,
				"relative_retention_performance": avgRetention.RelativeRetentionPerformance,
			},
		}
		if err := e.store.SaveChunk(ctx, chunk); err != nil {
			return nil, fmt.Errorf("save time chunk %d: %w", idx, err)
		}
		idx++
		current = end
	}
	return raws, nil
}

// collectSnippets locates the starting transcript index by binary search
// (largest index with start_time <= from) and concatenates every snippet
// whose interval overlaps [from, to).
func collectSnippets(transcript []model.TranscriptSegment, starts []float64, from, to float64) string {
	start := sort.Search(len(starts), func(i int) bool { return starts[i] > from })
	start--
	if start < 0 {
		start = 0
	}
	var sb strings.Builder
	for i := start; i < len(transcript); i++ {
		seg := transcript[i]
		if seg.StartTime >= to {
			break
		}
		if seg.EndTime <= from {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(seg.Text)
	}
	return sb.String()
}

// averageRetention averages every retention row whose elapsed ratio falls
// in [fromRatio, toRatio).
func averageRetention(rows []model.RetentionRow, fromRatio, toRatio float64) model.RetentionRow {
	var sumWatch, sumPerf float64
	var n int
	for _, r := range rows {
		if r.ElapsedRatio >= fromRatio && r.ElapsedRatio < toRatio {
			sumWatch += r.AudienceWatchRatio
			sumPerf += r.RelativeRetentionPerformance
			n++
		}
	}
	if n == 0 {
		return model.RetentionRow{}
	}
	return model.RetentionRow{
		AudienceWatchRatio:           sumWatch / float64(n),
		RelativeRetentionPerformance: sumPerf / float64(n),
	}
}

type meaningTriplet struct {
	Text     string
	StartSec float64
	EndSec   float64
}

const meaningChunkSystemPrompt = `You split a video transcript segment into meaning-coherent sub-chunks.
Given a JSON array of raw time-aligned sub-windows (each {"text","start_sec","end_sec"}),
return a JSON array of triplets [text, start_sec, end_sec] that regroups the text by topic
boundaries rather than fixed time boundaries. Respond with only the JSON array, no prose.`

// IngestMeaning re-chunks the focus-window raw sub-windows by topic using an
// LLM prompt, retrying up to meaningChunkRetryBudget times on JSON parse
// failure, and persists each triplet with meta.chunk_type="mean".
func (e *Engine) IngestMeaning(ctx context.Context, videoID int64, focusRaws []rawChunk) error {
	if len(focusRaws) == 0 {
		return nil
	}

	type rawForPrompt struct {
		Text     string  `json:"text"`
		StartSec float64 `json:"start_sec"`
		EndSec   float64 `json:"end_sec"`
	}
	payload := make([]rawForPrompt, len(focusRaws))
	for i, r := range focusRaws {
		payload[i] = rawForPrompt{Text: r.Text, StartSec: r.StartSec, EndSec: r.EndSec}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal focus raws: %w", err)
	}

	var triplets []meaningTriplet
	op := func(ctx context.Context) error {
		reply, err := e.provider.Chat(ctx, []llm.Message{
			{Role: "system", Content: meaningChunkSystemPrompt},
			{Role: "user", Content: string(body)},
		}, e.model, 0.2)
		if err != nil {
			return err
		}
		parsed, perr := parseMeaningTriplets(reply.Content)
		if perr != nil {
			return perr
		}
		triplets = parsed
		return nil
	}
	if err := retry.DoParseRetry(ctx, meaningChunkRetryBudget, op); err != nil {
		// Parse-failure budget exhausted: persist nothing and continue,
		// matching the other LLM-driven sub-phases' fallback behavior.
		return nil
	}

	for i, t := range triplets {
		avg := averageOverlapping(focusRaws, t.StartSec, t.EndSec)
		chunk := model.ContentChunk{
			SourceType: model.SourceVideoSummary,
			SourceID:   videoID,
			Content:    t.Text,
			ChunkIndex: i,
			Meta: map[string]any{
				"chunk_type":                     string(model.ChunkMean),
				"start_sec":                       t.StartSec,
				"end_sec":                         t.EndSec,
				"audience_watch_ratio":            avg.AudienceWatchRatio,
				"relative_retention_performance":  avg.RelativeRetentionPerformance,
			},
		}
		if err := e.store.SaveChunk(ctx, chunk); err != nil {
			return fmt.Errorf("save meaning chunk %d: %w", i, err)
		}
	}
	return nil
}

func averageOverlapping(raws []rawChunk, from, to float64) model.RetentionRow {
	var sumWatch, sumPerf float64
	var n int
	for _, r := range raws {
		if r.StartSec < to && r.EndSec > from {
			sumWatch += r.Retention.AudienceWatchRatio
			sumPerf += r.Retention.RelativeRetentionPerformance
			n++
		}
	}
	if n == 0 {
		return model.RetentionRow{}
	}
	return model.RetentionRow{
		AudienceWatchRatio:           sumWatch / float64(n),
		RelativeRetentionPerformance: sumPerf / float64(n),
	}
}

func parseMeaningTriplets(content string) ([]meaningTriplet, error) {
	content = stripCodeFence(content)
	var raw [][]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, errs.New(errs.KindParseFailure, fmt.Errorf("parse meaning-chunk JSON: %w", err))
	}
	out := make([]meaningTriplet, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 3 {
			return nil, errs.New(errs.KindParseFailure, fmt.Errorf("meaning-chunk triplet has %d elements, want 3", len(entry)))
		}
		text, ok := entry[0].(string)
		if !ok {
			return nil, errs.New(errs.KindParseFailure, fmt.Errorf("meaning-chunk triplet[0] not a string"))
		}
		start, ok1 := toFloat(entry[1])
		end, ok2 := toFloat(entry[2])
		if !ok1 || !ok2 {
			return nil, errs.New(errs.KindParseFailure, fmt.Errorf("meaning-chunk triplet start/end not numeric"))
		}
		out = append(out, meaningTriplet{Text: text, StartSec: start, EndSec: end})
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// FocusRaws filters raws to those flagged IsFocus (windows whose start lies
// inside the focus window), for use as IngestMeaning's input.
func FocusRaws(raws []rawChunk) []rawChunk {
	var out []rawChunk
	for _, r := range raws {
		if r.IsFocus {
			out = append(out, r)
		}
	}
	return out
}
