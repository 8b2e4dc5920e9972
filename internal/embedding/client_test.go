package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"ytreport/internal/config"
)

func TestEmbedText_SendsConfiguredAuthHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Token abc", r.Header.Get("X-Api-Key"))
		resp := embedResp{Data: []struct {
			Embedding []float32 `json:"embedding"`
		}{{Embedding: []float32{0.1, 0.2}}}}
		b, _ := json.Marshal(resp)
		w.Write(b)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m", APIKey: "Token abc", APIHeader: "X-Api-Key"}
	out, err := EmbedText(context.Background(), cfg, []string{"x"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, []float32{0.1, 0.2}, out[0])
}

func TestEmbedText_MismatchedCountIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m"}
	_, err := EmbedText(context.Background(), cfg, []string{"x", "y"})
	require.Error(t, err)
}

func TestEmbedText_NonOKStatusIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{BaseURL: ts.URL, Path: "/", Model: "m"}
	_, err := EmbedText(context.Background(), cfg, []string{"x"})
	require.Error(t, err)
}
