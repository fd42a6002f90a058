package speech

import (
	"fmt"
	"strings"
	"time"
)

// FactoryConfig selects and configures the provider once at startup. Offline
// mode forces the local engines regardless of the provider mode.
type FactoryConfig struct {
	Provider string
	Offline  bool

	Google GoogleConfig
	Local  LocalConfig

	Timeout time.Duration
}

// NewGateway builds the configured provider. Mode "auto" prefers the cloud
// provider when a key is set, then the local engines, then the mock.
func NewGateway(cfg FactoryConfig) (Gateway, string, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if mode == "" {
		mode = "auto"
	}
	if cfg.Offline && mode != "mock" {
		mode = "local"
	}

	switch mode {
	case "cloud":
		g, err := NewGoogleProvider(cfg.Google)
		if err != nil {
			return nil, "", err
		}
		return g, "cloud", nil
	case "local":
		g, err := NewLocalProvider(cfg.Local)
		if err != nil {
			return nil, "", err
		}
		return g, "local", nil
	case "mock":
		return NewMockGateway(), "mock", nil
	case "auto":
		if strings.TrimSpace(cfg.Google.APIKey) != "" {
			if g, err := NewGoogleProvider(cfg.Google); err == nil {
				return g, "cloud", nil
			}
		}
		if g, err := NewLocalProvider(cfg.Local); err == nil {
			return g, "local", nil
		}
		return NewMockGateway(), "mock", nil
	default:
		return nil, "", fmt.Errorf("unsupported speech provider %q (expected auto|cloud|local|mock)", cfg.Provider)
	}
}
