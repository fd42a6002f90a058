package reliability

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

type kindErr struct {
	transient bool
}

func (e *kindErr) Error() string   { return "kind error" }
func (e *kindErr) Transient() bool { return e.transient }

func TestRetryable(t *testing.T) {
	if !Retryable(&kindErr{transient: true}) {
		t.Fatalf("transient error should be retryable")
	}
	if Retryable(&kindErr{transient: false}) {
		t.Fatalf("non-transient error should not be retryable")
	}
	if Retryable(errors.New("plain")) {
		t.Fatalf("plain error should not be retryable")
	}
	if Retryable(nil) {
		t.Fatalf("nil should not be retryable")
	}
}

func TestRetryableUnwrapsChains(t *testing.T) {
	wrapped := fmt.Errorf("turn failed: %w", &kindErr{transient: true})
	if !Retryable(wrapped) {
		t.Fatalf("wrapped transient error should be retryable")
	}
	wrapped = fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", &kindErr{transient: false}))
	if Retryable(wrapped) {
		t.Fatalf("wrapped non-transient error should not be retryable")
	}
}

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{200, 201, 400, 401, 404, 409, 422} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("status %d should not be retryable", code)
		}
	}
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	cap := time.Second

	if got := Backoff(0, base, cap); got != base {
		t.Fatalf("Backoff(0) = %v, want %v", got, base)
	}
	if got := Backoff(1, base, cap); got != 200*time.Millisecond {
		t.Fatalf("Backoff(1) = %v, want 200ms", got)
	}
	if got := Backoff(2, base, cap); got != 400*time.Millisecond {
		t.Fatalf("Backoff(2) = %v, want 400ms", got)
	}
	if got := Backoff(10, base, cap); got != cap {
		t.Fatalf("Backoff(10) = %v, want cap %v", got, cap)
	}
}
