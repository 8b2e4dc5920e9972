// Package metrics implements the metrics analyzer (C5): the consistency
// score (embedding cosine similarity against sibling videos), the SEO
// score, the revisit rate, and the channel/topic average-delta fields.
package metrics

import (
	"context"
	"fmt"
	"math"

	"ytreport/internal/embedding"
	"ytreport/internal/model"
)

// Analyzer computes Report's numeric metric fields.
type Analyzer struct {
	embedder embedding.Embedder
}

// New constructs an Analyzer backed by embedder for the consistency score.
func New(embedder embedding.Embedder) *Analyzer {
	return &Analyzer{embedder: embedder}
}

// VideoAnalytics holds the per-video analytics fields the SEO and revisit
// formulas require, beyond what model.Video already carries.
type VideoAnalytics struct {
	Views               int64
	AverageViewDuration  float64
	Likes                int64
	Shares               int64
	SubscribersGained    int64
	TotalDurationSeconds float64
}

// Consistency returns 100*mean(cos(E(target), E(sibling))) over every
// sibling video in the same channel, or 100 if target has no siblings.
// E(v) is the embedding of v.Title + " " + v.Description.
func (a *Analyzer) Consistency(ctx context.Context, target model.Video, siblings []model.Video) (float64, error) {
	if len(siblings) == 0 {
		return 100, nil
	}
	texts := make([]string, 0, len(siblings)+1)
	texts = append(texts, conceptText(target))
	for _, s := range siblings {
		texts = append(texts, conceptText(s))
	}
	vecs, err := a.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed consistency texts: %w", err)
	}
	targetVec := vecs[0]
	var sum float64
	for _, v := range vecs[1:] {
		sum += cosineSimilarity(targetVec, v)
	}
	return 100 * sum / float64(len(siblings)), nil
}

func conceptText(v model.Video) string {
	return v.Title + " " + v.Description
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// SEO computes the weighted sub-score sum, rounded to one decimal. Returns
// 0 if Views is 0.
func SEO(a VideoAnalytics) float64 {
	if a.Views == 0 {
		return 0
	}
	views := float64(a.Views)
	duration := clip01(a.AverageViewDuration / a.TotalDurationSeconds)
	likesRate := clip01((float64(a.Likes) / views * 1000) / 30)
	sharesRate := clip01((float64(a.Shares) / views * 1000) / 5)
	subsRate := clip01((float64(a.SubscribersGained) / views * 1000) / 5)

	score := 50*duration + 15*likesRate + 15*sharesRate + 20*subsRate
	return roundTo(score, 1)
}

// Revisit computes 100*(likes+shares+subsGained)/views, rounded to two
// decimals. Returns 0 if views is 0.
func Revisit(a VideoAnalytics) float64 {
	if a.Views == 0 {
		return 0
	}
	v := 100 * float64(a.Likes+a.Shares+a.SubscribersGained) / float64(a.Views)
	return roundTo(v, 2)
}

// Averages holds the six channel/topic percent-delta fields.
type Averages struct {
	ChannelViewDelta    float64
	ChannelLikeDelta    float64
	ChannelCommentDelta float64
	TopicViewDelta      float64
	TopicLikeDelta      float64
	TopicCommentDelta   float64
}

// ChannelTopicAverages computes the six delta-percent fields against the
// channel peer set and the same-category topic peer set. Each set excludes
// target. Returns all zeros if a peer set is empty.
func ChannelTopicAverages(target model.Video, channelPeers, topicPeers []model.Video) Averages {
	cv, cl, cc := peerDeltas(target, channelPeers)
	tv, tl, tc := peerDeltas(target, topicPeers)
	return Averages{
		ChannelViewDelta:    cv,
		ChannelLikeDelta:    cl,
		ChannelCommentDelta: cc,
		TopicViewDelta:      tv,
		TopicLikeDelta:      tl,
		TopicCommentDelta:   tc,
	}
}

func peerDeltas(target model.Video, peers []model.Video) (viewDelta, likeDelta, commentDelta float64) {
	if len(peers) == 0 {
		return 0, 0, 0
	}
	var sumView, sumLike, sumComment float64
	for _, p := range peers {
		sumView += float64(p.ViewCount)
		sumLike += float64(p.LikeCount)
		sumComment += float64(p.CommentCount)
	}
	n := float64(len(peers))
	viewDelta = deltaPercent(float64(target.ViewCount), sumView/n)
	likeDelta = deltaPercent(float64(target.LikeCount), sumLike/n)
	commentDelta = deltaPercent(float64(target.CommentCount), sumComment/n)
	return
}

func deltaPercent(target, meanPeer float64) float64 {
	if meanPeer == 0 {
		return 0
	}
	return truncTo((target-meanPeer)/meanPeer*100, 2)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// truncTo truncates (rather than rounds) v to the given number of decimals,
// per spec.md §4.6's "truncated (not rounded)" requirement for average
// deltas.
func truncTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Trunc(v*p) / p
}
