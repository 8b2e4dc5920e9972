// Package providers selects and constructs an llm.Provider from
// configuration.
package providers

import (
	"fmt"
	"net/http"

	"ytreport/internal/config"
	"ytreport/internal/llm"
	"ytreport/internal/llm/anthropic"
	openaillm "ytreport/internal/llm/openai"
)

// Build constructs an llm.Provider based on cfg.Provider.
func Build(cfg config.LLMConfig, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return openaillm.New(cfg.OpenAI, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.Anthropic, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
