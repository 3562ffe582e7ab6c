package llm

import (
	"context"
	"strings"
)

const (
	defaultOllamaURL   = "http://localhost:11434/v1"
	defaultOllamaModel = "llama3.1"
)

// OllamaProvider talks to Ollama's OpenAI-compatible endpoint. Ollama ignores
// tool_choice, so a forced final answer is requested by not declaring tools.
type OllamaProvider struct {
	openai *OpenAIProvider
}

func NewOllamaProvider(cfg Config) *OllamaProvider {
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = defaultOllamaURL
	}
	if strings.TrimSpace(cfg.Model) == "" || strings.HasPrefix(cfg.Model, "claude-") {
		cfg.Model = defaultOllamaModel
	}
	// Ollama does not authenticate; never forward a hosted provider key.
	cfg.APIKey = ""
	return &OllamaProvider{openai: NewOpenAIProvider(cfg)}
}

func (p *OllamaProvider) Complete(ctx context.Context, messages []Message, tools []Tool) (Stream, error) {
	if toolUseDisabled(ctx) {
		tools = nil
	}
	return p.openai.Complete(ctx, messages, tools)
}
