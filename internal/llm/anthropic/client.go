// Package anthropic adapts the Anthropic Messages API to the llm.Provider
// interface.
package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ytreport/internal/config"
	"ytreport/internal/llm"
	"ytreport/internal/logging"
)

// Client wraps an Anthropic SDK client configured from config.AnthropicConfig.
type Client struct {
	sdk          anthropic.Client
	defaultModel string
	maxTokens    int64
}

// New constructs a Client. httpClient may be nil, in which case
// http.DefaultClient is used.
func New(cfg config.AnthropicConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &Client{
		sdk:          anthropic.NewClient(opts...),
		defaultModel: model,
		maxTokens:    maxTokens,
	}
}

// Chat sends msgs to the Messages endpoint and returns the assistant reply.
// temperature is accepted to satisfy llm.Provider but is not forwarded: the Anthropic SDK used here does not expose a temperature knob
// on MessageNewParams without also wiring thinking-mode tradeoffs the pipeline
// does not need.
func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string, temperature float64) (llm.Message, error) {
	system, converted := adaptMessages(msgs)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(firstNonEmpty(model, c.defaultModel)),
		Messages:  converted,
		System:    system,
		MaxTokens: c.maxTokens,
	}

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		logging.Log.WithFields(map[string]any{
			"model":    string(params.Model),
			"duration": dur.String(),
		}).WithError(err).Error("anthropic chat failed")
		return llm.Message{}, err
	}

	logging.Log.WithFields(map[string]any{
		"model":          string(params.Model),
		"duration":       dur.String(),
		"input_tokens":   resp.Usage.InputTokens,
		"output_tokens":  resp.Usage.OutputTokens,
	}).Debug("anthropic chat ok")

	return messageFromResponse(resp), nil
}

func adaptMessages(msgs []llm.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(msgs))

	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, out
}

func messageFromResponse(resp *anthropic.Message) llm.Message {
	if resp == nil {
		return llm.Message{}
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return llm.Message{Role: "assistant", Content: sb.String()}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
