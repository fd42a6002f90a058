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

// OpenAIConfig configures the hosted chat-completions provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type OpenAIGateway struct {
	cfg    OpenAIConfig
	client *http.Client
}

func NewOpenAIGateway(cfg OpenAIConfig) (*OpenAIGateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &OpenAIGateway{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

type chatRequest struct {
	Model            string    `json:"model"`
	Messages         []message `json:"messages"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (g *OpenAIGateway) Reply(ctx context.Context, history []transcript.Turn, topic string) (string, error) {
	return g.chat(ctx, chatRequest{
		Model:    g.cfg.Model,
		Messages: buildMessages(history, topic),
		// Tuned for conversational variety over precision.
		MaxTokens:        150,
		Temperature:      0.9,
		FrequencyPenalty: 0.8,
		PresencePenalty:  0.6,
	})
}

// FreshReply retries a repetitive reply with an explicit instruction and the
// creativity settings pushed higher.
func (g *OpenAIGateway) FreshReply(ctx context.Context, history []transcript.Turn, topic string) (string, error) {
	msgs := append(buildMessages(history, topic), message{Role: "system", Content: freshInstruction})
	return g.chat(ctx, chatRequest{
		Model:            g.cfg.Model,
		Messages:         msgs,
		MaxTokens:        150,
		Temperature:      1.0,
		FrequencyPenalty: 1.0,
		PresencePenalty:  0.8,
	})
}

func (g *OpenAIGateway) chat(ctx context.Context, reqBody chatRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", newErr(KindUnavailable, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", newErr(KindUnavailable, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

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

	var resp chatResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", newErr(KindProtocol, fmt.Errorf("decode response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", newErr(KindProtocol, fmt.Errorf("response has no choices"))
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", newErr(KindProtocol, fmt.Errorf("response has empty content"))
	}
	return reply, nil
}
