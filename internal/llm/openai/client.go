// Package openai adapts the OpenAI chat-completions API to the llm.Provider
// interface.
package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"ytreport/internal/config"
	"ytreport/internal/llm"
	"ytreport/internal/logging"
)

// Client wraps an OpenAI SDK client configured from config.OpenAIConfig.
type Client struct {
	sdk          sdk.Client
	defaultModel string
}

// New constructs a Client. httpClient may be nil, in which case
// http.DefaultClient is used.
func New(c config.OpenAIConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	opts := []option.RequestOption{option.WithAPIKey(c.APIKey)}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	opts = append(opts, option.WithHTTPClient(httpClient))

	return &Client{
		sdk:          sdk.NewClient(opts...),
		defaultModel: c.ChatModel,
	}
}

// Chat sends msgs to the completions endpoint and returns the assistant
// reply.
func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string, temperature float64) (llm.Message, error) {
	effectiveModel := firstNonEmpty(model, c.defaultModel)

	params := sdk.ChatCompletionNewParams{
		Model:       sdk.ChatModel(effectiveModel),
		Messages:    adaptMessages(msgs),
		Temperature: param.NewOpt(temperature),
	}

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		logging.Log.WithFields(map[string]any{
			"model":    effectiveModel,
			"duration": dur.String(),
		}).WithError(err).Error("openai chat completion failed")
		return llm.Message{}, err
	}

	logging.Log.WithFields(map[string]any{
		"model":             effectiveModel,
		"duration":          dur.String(),
		"prompt_tokens":     comp.Usage.PromptTokens,
		"completion_tokens": comp.Usage.CompletionTokens,
	}).Debug("openai chat completion ok")

	if len(comp.Choices) == 0 {
		return llm.Message{}, nil
	}
	return llm.Message{Role: "assistant", Content: comp.Choices[0].Message.Content}, nil
}

func adaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
