package engine

import (
	"context"
	"fmt"

	lgrag "github.com/smallnest/langgraphgo/rag"
	"github.com/tmc/langchaingo/llms"

	"github.com/liquidgraph/kgraph/internal/domain"
)

// Compile-time check: LangchainLLM implements the engine's LLM contract.
var _ lgrag.LLMInterface = (*LangchainLLM)(nil)

// LangchainLLM adapts a langchaingo model to the RAG engine's LLM
// interface. Provider failures are wrapped with domain.ErrProviderError
// so the transport layer can map them to 502.
type LangchainLLM struct {
	model llms.Model
}

// NewLangchainLLM creates the adapter.
func NewLangchainLLM(model llms.Model) *LangchainLLM {
	return &LangchainLLM{model: model}
}

// Generate produces a completion for a single prompt.
func (l *LangchainLLM) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, l.model, prompt)
	if err != nil {
		return "", fmt.Errorf("generate: %v: %w", err, domain.ErrProviderError)
	}
	return out, nil
}

// GenerateWithConfig produces a completion with generation parameters.
// Recognized keys: temperature (float64), max_tokens (int or float64),
// json_mode (bool).
func (l *LangchainLLM) GenerateWithConfig(ctx context.Context, prompt string, config map[string]any) (string, error) {
	var opts []llms.CallOption
	if v, ok := config["temperature"].(float64); ok {
		opts = append(opts, llms.WithTemperature(v))
	}
	switch v := config["max_tokens"].(type) {
	case int:
		opts = append(opts, llms.WithMaxTokens(v))
	case float64:
		opts = append(opts, llms.WithMaxTokens(int(v)))
	}
	if v, ok := config["json_mode"].(bool); ok && v {
		opts = append(opts, llms.WithJSONMode())
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, l.model, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %v: %w", err, domain.ErrProviderError)
	}
	return out, nil
}

// GenerateWithSystem produces a completion with a system instruction.
func (l *LangchainLLM) GenerateWithSystem(ctx context.Context, system, prompt string) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	resp, err := l.model.GenerateContent(ctx, content)
	if err != nil {
		return "", fmt.Errorf("generate with system: %v: %w", err, domain.ErrProviderError)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices: %w", domain.ErrProviderError)
	}
	return resp.Choices[0].Content, nil
}
