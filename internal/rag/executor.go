// Package rag implements the RAG executor (C3): composing a prompt from
// retrieved chunks, a prompt template, and caller-supplied metadata, then
// invoking an LLM provider and returning either prose or a parsed JSON
// value. Neither the retrieval step nor the invocation step performs
// map-reduce; every call here is a single composed prompt against a single
// LLM turn.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ytreport/internal/errs"
	"ytreport/internal/llm"
	"ytreport/internal/model"
	"ytreport/internal/retry"
	"ytreport/internal/vectorstore"
)

// Executor grounds LLM calls in top-K similarity search results.
type Executor struct {
	store    vectorstore.Store
	provider llm.Provider
	model    string
}

// New constructs a RAG Executor backed by store for retrieval and provider
// for generation.
func New(store vectorstore.Store, provider llm.Provider, model string) *Executor {
	return &Executor{store: store, provider: provider, model: model}
}

// RetrieveTopK embeds queryText and returns the top limit chunks matching
// sourceType/sourceID/metaFilters, ordered by similarity descending.
func (e *Executor) RetrieveTopK(ctx context.Context, queryText string, sourceType model.SourceType, sourceID int64, metaFilters map[string]string, limit int) ([]vectorstore.Result, error) {
	results, err := e.store.SearchSimilarK(ctx, queryText, sourceType, sourceID, metaFilters, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieve top %d for %s/%d: %w", limit, sourceType, sourceID, err)
	}
	return results, nil
}

// ComposePrompt joins retrieved chunk contents under a heading and appends
// the caller's instruction, in the shape every grounded prompt in this
// pipeline shares: context first, instruction last.
func ComposePrompt(contextLabel string, chunks []vectorstore.Result, instruction string) string {
	var sb strings.Builder
	sb.WriteString(contextLabel)
	sb.WriteString(":\n")
	for i, c := range chunks {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, c.Content)
	}
	sb.WriteString("\n")
	sb.WriteString(instruction)
	return sb.String()
}

// Generate composes systemPrompt + the retrieved-chunk context + instruction
// into a single user turn and returns the assistant's prose reply.
func (e *Executor) Generate(ctx context.Context, systemPrompt, contextLabel string, chunks []vectorstore.Result, instruction string, temperature float64) (string, error) {
	prompt := ComposePrompt(contextLabel, chunks, instruction)
	reply, err := e.provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}, e.model, temperature)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return reply.Content, nil
}

// GenerateJSON behaves like Generate but retries up to budget times on JSON
// parse failure and unmarshals the (code-fence-stripped) reply into out.
func (e *Executor) GenerateJSON(ctx context.Context, budget int, systemPrompt, contextLabel string, chunks []vectorstore.Result, instruction string, temperature float64, out any) error {
	prompt := ComposePrompt(contextLabel, chunks, instruction)
	op := func(ctx context.Context) error {
		reply, err := e.provider.Chat(ctx, []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		}, e.model, temperature)
		if err != nil {
			return err
		}
		body := stripCodeFence(reply.Content)
		if jerr := json.Unmarshal([]byte(body), out); jerr != nil {
			return errs.New(errs.KindParseFailure, fmt.Errorf("unmarshal generated JSON: %w", jerr))
		}
		return nil
	}
	return retry.DoParseRetry(ctx, budget, op)
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
