package analysis

import (
	"fmt"
	"net/http"

	"github.com/hyperjump/buildcost/internal/config"
)

// New builds the provider selected by cfg. With no provider selected it returns Unconfigured
// and a nil error; an unknown provider or a named provider without a key is an error.
func New(cfg config.AnalysisConfig, opts ...Option) (Provider, error) {
	p, err := cfg.ResolveProvider()
	if err != nil {
		return nil, err
	}

	base := []Option{WithModel(cfg.Model), WithBaseURL(cfg.BaseURL), WithMaxTokens(cfg.MaxTokens)}
	if cfg.Timeout > 0 {
		base = append(base, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	opts = append(base, opts...)

	switch p {
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIKey, opts...), nil
	case config.ProviderAnthropic:
		return NewAnthropic(cfg.AnthropicKey, opts...), nil
	case config.ProviderGoogle:
		return NewGemini(cfg.GoogleKey, opts...), nil
	case config.ProviderNone:
		return Unconfigured{}, nil
	default:
		return nil, fmt.Errorf("unsupported analysis provider %q", p)
	}
}
