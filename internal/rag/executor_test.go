package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ytreport/internal/llm"
	"ytreport/internal/vectorstore"
)

func TestComposePrompt_NumbersChunksAndAppendsInstruction(t *testing.T) {
	chunks := []vectorstore.Result{{Content: "first"}, {Content: "second"}}
	got := ComposePrompt("Context", chunks, "Answer the question.")
	require.Contains(t, got, "[1] first")
	require.Contains(t, got, "[2] second")
	require.Contains(t, got, "Answer the question.")
}

func TestStripCodeFence_RemovesJSONFence(t *testing.T) {
	require.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}

type fakeProvider struct {
	replies []string
	calls   int
}

func (f *fakeProvider) Chat(_ context.Context, _ []llm.Message, _ string, _ float64) (llm.Message, error) {
	r := f.replies[f.calls]
	f.calls++
	return llm.Message{Role: "assistant", Content: r}, nil
}

func TestGenerateJSON_RetriesOnParseFailureThenSucceeds(t *testing.T) {
	provider := &fakeProvider{replies: []string{"not json", `{"title":"x"}`}}
	e := New(nil, provider, "model")

	var out struct {
		Title string `json:"title"`
	}
	err := e.GenerateJSON(context.Background(), 4, "sys", "Context", nil, "go", 0.2, &out)
	require.NoError(t, err)
	require.Equal(t, "x", out.Title)
	require.Equal(t, 2, provider.calls)
}
