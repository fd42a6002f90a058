package tutor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ecolucci/parlo/internal/reliability"
	"github.com/ecolucci/parlo/internal/transcript"
)

// OllamaConfig configures the local model-server provider.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

type OllamaGateway struct {
	cfg    OllamaConfig
	client *http.Client
}

func NewOllamaGateway(cfg OllamaConfig) (*OllamaGateway, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ollama base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OllamaGateway{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Ping verifies the server is reachable. Used by provider auto-selection.
func (g *OllamaGateway) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	res, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama status %d", res.StatusCode)
	}
	return nil
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (g *OllamaGateway) Reply(ctx context.Context, history []transcript.Turn, topic string) (string, error) {
	return g.chat(ctx, ollamaChatRequest{
		Model:    g.cfg.Model,
		Messages: buildMessages(history, topic),
		Stream:   false,
		Options:  ollamaOptions{Temperature: 0.9, TopP: 0.9},
	})
}

// FreshReply retries a repetitive reply with an explicit instruction and a
// hotter sampling temperature.
func (g *OllamaGateway) FreshReply(ctx context.Context, history []transcript.Turn, topic string) (string, error) {
	msgs := append(buildMessages(history, topic), message{Role: "system", Content: freshInstruction})
	return g.chat(ctx, ollamaChatRequest{
		Model:    g.cfg.Model,
		Messages: msgs,
		Stream:   false,
		Options:  ollamaOptions{Temperature: 1.0, TopP: 0.9},
	})
}

func (g *OllamaGateway) chat(ctx context.Context, reqBody ollamaChatRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", newErr(KindUnavailable, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return "", newErr(KindUnavailable, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(req)
	if err != nil {
		return "", classifyCtx(ctx, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		kind := KindProtocol
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			kind = KindUnavailable
		}
		return "", newErr(kind, fmt.Errorf("status %d: %s", res.StatusCode, string(body)))
	}

	var resp ollamaChatResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", newErr(KindProtocol, fmt.Errorf("decode response: %w", err))
	}
	reply := strings.TrimSpace(resp.Message.Content)
	// Some models echo the role label from plain-prompt fine-tuning.
	reply = strings.TrimSpace(strings.TrimPrefix(reply, "Tutor:"))
	if reply == "" {
		return "", newErr(KindProtocol, fmt.Errorf("response has empty content"))
	}
	return reply, nil
}
