package tutor

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FactoryConfig selects and configures the provider once at startup.
type FactoryConfig struct {
	Provider string

	OpenAI OpenAIConfig
	Ollama OllamaConfig
}

// NewGateway builds the configured provider. Mode "auto" prefers the hosted
// API when a key is set, then a reachable local server, then the mock.
func NewGateway(cfg FactoryConfig) (Gateway, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "openai":
		g, err := NewOpenAIGateway(cfg.OpenAI)
		if err != nil {
			return nil, "", err
		}
		return g, "openai", nil
	case "ollama":
		g, err := NewOllamaGateway(cfg.Ollama)
		if err != nil {
			return nil, "", err
		}
		return g, "ollama", nil
	case "mock":
		return NewMockGateway(), "mock", nil
	case "auto":
		if strings.TrimSpace(cfg.OpenAI.APIKey) != "" {
			if g, err := NewOpenAIGateway(cfg.OpenAI); err == nil {
				return g, "openai", nil
			}
		}
		if g, err := NewOllamaGateway(cfg.Ollama); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if g.Ping(ctx) == nil {
				return g, "ollama", nil
			}
		}
		return NewMockGateway(), "mock", nil
	default:
		return nil, "", fmt.Errorf("unsupported tutor provider %q (expected auto|openai|ollama|mock)", cfg.Provider)
	}
}
