package config

import (
	"fmt"
	"strings"
)

// Provider names an analysis backend.
type Provider string

const (
	ProviderNone      Provider = "none"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// providerOrder is the order in which keys are probed when no provider is named.
var providerOrder = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGoogle}

// ParseProvider normalizes a provider name. "gemini" is accepted for google; empty means auto.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case "", "auto":
		return "", nil
	case "gemini":
		return ProviderGoogle, nil
	case ProviderNone, ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
		return p, nil
	default:
		return "", fmt.Errorf("unknown analysis provider %q", s)
	}
}

// Key returns the API key configured for p.
func (a *AnalysisConfig) Key(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return a.OpenAIKey
	case ProviderAnthropic:
		return a.AnthropicKey
	case ProviderGoogle:
		return a.GoogleKey
	}
	return ""
}

// ResolveProvider picks the analysis provider. Precedence: an explicitly named provider, which
// must have its key; an explicit "none"; the first of openai, anthropic, google with a key;
// otherwise none. Having no keys at all is a valid configuration.
func (a *AnalysisConfig) ResolveProvider() (Provider, error) {
	p, err := ParseProvider(a.Provider)
	if err != nil {
		return "", err
	}
	switch p {
	case ProviderNone:
		return ProviderNone, nil
	case "":
		for _, candidate := range providerOrder {
			if a.Key(candidate) != "" {
				return candidate, nil
			}
		}
		return ProviderNone, nil
	default:
		if a.Key(p) == "" {
			return "", fmt.Errorf("analysis provider %s selected but no API key configured", p)
		}
		return p, nil
	}
}
