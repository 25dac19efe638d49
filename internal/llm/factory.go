package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abhisek/vidtutor/internal/store"
)

// NewProvider creates a Provider from configuration, wrapped with event
// logging. Retry policy is applied by each consumer (feedback composition,
// vision OCR) because their tolerance for invalid output differs.
func NewProvider(ctx context.Context, cfg Config, eventRepo store.EventRepo) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	if eventRepo == nil {
		return base, nil
	}
	return WithLogging(base, eventRepo, slog.Default()), nil
}

// NewProviderFromEnv builds a provider from VIDTUTOR_* variables, falling
// back to well-known vendor key variables.
func NewProviderFromEnv(ctx context.Context, eventRepo store.EventRepo) (Provider, Config, error) {
	cfg := ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		discovered, ok := DiscoverConfig()
		if !ok {
			return nil, cfg, err
		}
		cfg = discovered
	}
	p, err := NewProvider(ctx, cfg, eventRepo)
	return p, cfg, err
}
