package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ecolucci/parlo/internal/reliability"
	"github.com/ecolucci/parlo/internal/transcript"
)

func testOpenAIGateway(t *testing.T, handler http.Handler) *OpenAIGateway {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	g, err := NewOpenAIGateway(OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: ts.URL,
		Model:   "gpt-4o-mini",
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewOpenAIGateway() error = %v", err)
	}
	return g
}

func TestOpenAIReply(t *testing.T) {
	var gotBody chatRequest
	var gotAuth string
	g := testOpenAIGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "  That sounds exciting!  "}},
			},
		})
	}))

	history := []transcript.Turn{{Speaker: transcript.SpeakerUser, Text: "I booked a trip to Rome."}}
	reply, err := g.Reply(context.Background(), history, "")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if reply != "That sounds exciting!" {
		t.Fatalf("reply = %q", reply)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotBody.Model != "gpt-4o-mini" {
		t.Fatalf("model = %q", gotBody.Model)
	}
	if gotBody.MaxTokens != 150 || gotBody.Temperature != 0.9 {
		t.Fatalf("sampling params = %+v", gotBody)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[1].Content != "I booked a trip to Rome." {
		t.Fatalf("messages = %+v", gotBody.Messages)
	}
}

func TestOpenAIReplyServerError(t *testing.T) {
	g := testOpenAIGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))

	_, err := g.Reply(context.Background(), nil, "")
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if te.Kind != KindUnavailable {
		t.Fatalf("kind = %q, want %q", te.Kind, KindUnavailable)
	}
	if !te.Transient() {
		t.Fatalf("unavailable should be transient")
	}
}

func TestOpenAIReplyClientErrorIsTerminal(t *testing.T) {
	g := testOpenAIGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))

	_, err := g.Reply(context.Background(), nil, "")
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if te.Kind != KindProtocol {
		t.Fatalf("kind = %q, want %q", te.Kind, KindProtocol)
	}
	if reliability.Retryable(err) {
		t.Fatalf("a rejected request must not be retried")
	}
}

func TestOpenAIReplyRateLimitIsTransient(t *testing.T) {
	g := testOpenAIGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))

	_, err := g.Reply(context.Background(), nil, "")
	var te *Error
	if !errors.As(err, &te) || te.Kind != KindUnavailable {
		t.Fatalf("error = %v, want %q", err, KindUnavailable)
	}
	if !reliability.Retryable(err) {
		t.Fatalf("rate limiting should be retryable")
	}
}

func TestOpenAIFreshReply(t *testing.T) {
	var gotBody chatRequest
	g := testOpenAIGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "Here is something new."}},
			},
		})
	}))

	reply, err := g.FreshReply(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("FreshReply() error = %v", err)
	}
	if reply != "Here is something new." {
		t.Fatalf("reply = %q", reply)
	}
	if gotBody.Temperature != 1.0 || gotBody.FrequencyPenalty != 1.0 {
		t.Fatalf("sampling params = %+v, want hotter settings", gotBody)
	}
	last := gotBody.Messages[len(gotBody.Messages)-1]
	if last.Role != "system" || last.Content != freshInstruction {
		t.Fatalf("last message = %+v, want the regeneration instruction", last)
	}
}

func TestOpenAIReplyProtocolErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no choices", `{"choices":[]}`},
		{"empty content", `{"choices":[{"message":{"content":"   "}}]}`},
		{"not json", `<html>oops</html>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := testOpenAIGateway(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			_, err := g.Reply(context.Background(), nil, "")
			var te *Error
			if !errors.As(err, &te) {
				t.Fatalf("error type = %T, want *Error", err)
			}
			if te.Kind != KindProtocol {
				t.Fatalf("kind = %q, want %q", te.Kind, KindProtocol)
			}
			if te.Transient() {
				t.Fatalf("protocol errors should not be transient")
			}
		})
	}
}

func TestOpenAIRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIGateway(OpenAIConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatalf("NewOpenAIGateway() without key should fail")
	}
}
