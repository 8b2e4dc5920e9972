// Package comments implements the comment pipeline (C6): ingest, sampling
// decision, per-sample LLM classification, stratified extrapolation over
// the unsampled remainder, and per-emotion LLM summarization.
package comments

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"ytreport/internal/config"
	"ytreport/internal/llm"
	"ytreport/internal/model"
)

const classifyConcurrency = 8

// Pipeline runs the sample -> classify -> extrapolate -> summarize chain
// over a video's raw comments.
type Pipeline struct {
	provider llm.Provider
	model    string
	cfg      config.CommentSamplingConfig
	rand     *rand.Rand
}

// New constructs a Pipeline. rng may be nil, in which case a source seeded
// with 1 is used; tests inject a seeded *rand.Rand for determinism.
func New(provider llm.Provider, model string, cfg config.CommentSamplingConfig, rng *rand.Rand) *Pipeline {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Pipeline{provider: provider, model: model, cfg: cfg, rand: rng}
}

// Sample decides how many of raw comments to classify directly. If
// N < Threshold every comment is sampled; otherwise max(20, floor(N*Rate))
// comments are chosen uniformly without replacement.
func (p *Pipeline) Sample(raw []model.Comment) (sampled, unsampled []model.Comment) {
	n := len(raw)
	if n < p.cfg.Threshold {
		return raw, nil
	}
	k := int(float64(n) * p.cfg.Rate)
	if k < 20 {
		k = 20
	}
	if k > n {
		k = n
	}

	idx := p.rand.Perm(n)
	chosen := make(map[int]bool, k)
	for _, i := range idx[:k] {
		chosen[i] = true
	}
	sampled = make([]model.Comment, 0, k)
	unsampled = make([]model.Comment, 0, n-k)
	for i, c := range raw {
		if chosen[i] {
			sampled = append(sampled, c)
		} else {
			unsampled = append(unsampled, c)
		}
	}
	return sampled, unsampled
}

const classifyPrompt = `Classify the emotional tone of this YouTube comment.
Respond with exactly one digit: 1 for positive, 2 for negative, 3 for neutral, 4 for advice or opinion.
Comment: %s`

// Classify assigns a CommentType to each sampled comment, running up to
// classifyConcurrency LLM calls concurrently. A parse failure on any single
// comment falls back to NEUTRAL rather than failing the whole batch.
func (p *Pipeline) Classify(ctx context.Context, sampled []model.Comment) ([]model.Comment, error) {
	out := make([]model.Comment, len(sampled))
	copy(out, sampled)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(classifyConcurrency)
	var mu sync.Mutex
	for i := range out {
		i := i
		g.Go(func() error {
			reply, err := p.provider.Chat(gctx, []llm.Message{
				{Role: "user", Content: fmt.Sprintf(classifyPrompt, out[i].Content)},
			}, p.model, 0)
			if err != nil {
				return err
			}
			mu.Lock()
			out[i].CommentType = emotionCodeToType(reply.Content)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("classify comments: %w", err)
	}
	return out, nil
}

func emotionCodeToType(reply string) model.CommentType {
	reply = strings.TrimSpace(reply)
	switch {
	case strings.Contains(reply, "1"):
		return model.CommentPositive
	case strings.Contains(reply, "2"):
		return model.CommentNegative
	case strings.Contains(reply, "4"):
		return model.CommentAdvice
	case strings.Contains(reply, "3"):
		return model.CommentNeutral
	default:
		return model.CommentNeutral
	}
}

// BucketCounts holds the final per-emotion counts across sampled +
// extrapolated comments, the figures persisted as the report's "full-video"
// sentiment composition.
type BucketCounts struct {
	Positive int64
	Negative int64
	Neutral  int64
	Advice   int64
}

// Extrapolate assigns each unsampled comment an emotion by weighted random
// choice from the sampled distribution, then returns the combined
// sampled+extrapolated bucket counts. The extrapolated assignments
// themselves are never used for summarization since they carry no verified
// content->label linkage.
func (p *Pipeline) Extrapolate(classified []model.Comment, unsampledCount int) BucketCounts {
	counts := bucketize(classified)
	total := len(classified)
	if total == 0 || unsampledCount == 0 {
		return counts
	}

	probs := []struct {
		t model.CommentType
		p float64
	}{
		{model.CommentPositive, float64(counts.Positive) / float64(total)},
		{model.CommentNegative, float64(counts.Negative) / float64(total)},
		{model.CommentNeutral, float64(counts.Neutral) / float64(total)},
		{model.CommentAdvice, float64(counts.Advice) / float64(total)},
	}
	for i := 0; i < unsampledCount; i++ {
		r := p.rand.Float64()
		var cum float64
		chosen := probs[len(probs)-1].t
		for _, pr := range probs {
			cum += pr.p
			if r < cum {
				chosen = pr.t
				break
			}
		}
		addBucket(&counts, chosen)
	}
	return counts
}

func bucketize(comments []model.Comment) BucketCounts {
	var c BucketCounts
	for _, cm := range comments {
		addBucket(&c, cm.CommentType)
	}
	return c
}

func addBucket(c *BucketCounts, t model.CommentType) {
	switch t {
	case model.CommentPositive:
		c.Positive++
	case model.CommentNegative:
		c.Negative++
	case model.CommentNeutral:
		c.Neutral++
	case model.CommentAdvice:
		c.Advice++
	}
}

const summarizePrompt = `Summarize the following %s YouTube comments into a short strict JSON array of
one or more concise summary strings capturing the recurring themes. Respond with only the JSON array.
Comments:
%s`

// Summarize concatenates each non-empty bucket's raw comment contents and
// calls the LLM summarization prompt, parsing a strict JSON list of
// summary strings per bucket. Empty buckets produce no rows.
func (p *Pipeline) Summarize(ctx context.Context, classified []model.Comment, reportID int64) ([]model.Comment, error) {
	buckets := map[model.CommentType][]string{}
	for _, c := range classified {
		buckets[c.CommentType] = append(buckets[c.CommentType], c.Content)
	}

	var out []model.Comment
	for _, t := range []model.CommentType{model.CommentPositive, model.CommentNegative, model.CommentNeutral, model.CommentAdvice} {
		contents := buckets[t]
		if len(contents) == 0 {
			continue
		}
		reply, err := p.provider.Chat(ctx, []llm.Message{
			{Role: "user", Content: fmt.Sprintf(summarizePrompt, t, strings.Join(contents, "\n"))},
		}, p.model, 0.3)
		if err != nil {
			return nil, fmt.Errorf("summarize %s bucket: %w", t, err)
		}
		var summaries []string
		if err := json.Unmarshal([]byte(stripCodeFence(reply.Content)), &summaries); err != nil {
			return nil, fmt.Errorf("parse %s summary JSON: %w", t, err)
		}
		for _, s := range summaries {
			out = append(out, model.Comment{ReportID: reportID, Content: s, CommentType: t})
		}
	}
	return out, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
