package llm

import (
	"time"
)

// Config is the provider-construction subset of an agent configuration's
// LLM fields (spec.md §6): enough to build a Provider without depending on
// the agentconfig package (which depends on this one for validation, not
// the reverse).
type Config struct {
	Type       string // "openai", "anthropic", "ollama", or an OpenAI-compatible alias
	APIBase    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// New constructs a Provider for the given config. Unknown types are treated
// as OpenAI-compatible, matching the teacher's practice of pointing the
// OpenAI provider at third-party compatible endpoints (e.g. local
// inference servers) via APIBase alone.
func New(cfg Config) (Provider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	switch cfg.Type {
	case "", "openai":
		return NewOpenAIProvider(cfg.APIBase, cfg.APIKey, timeout, cfg.MaxRetries), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIBase, cfg.APIKey, timeout, cfg.MaxRetries), nil
	case "ollama":
		return NewOllamaProvider(cfg.APIBase, timeout), nil
	default:
		return NewOpenAIProvider(cfg.APIBase, cfg.APIKey, timeout, cfg.MaxRetries), nil
	}
}

// MustName is a small helper for diagnostics that want a provider's name
// without holding onto the provider itself failing gracefully if nil.
func MustName(p Provider) string {
	if p == nil {
		return "<nil>"
	}
	return p.Name()
}
