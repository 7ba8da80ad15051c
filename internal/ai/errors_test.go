package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func httpResponse(status int, headers map[string]string) *http.Response {
	resp := &http.Response{StatusCode: status, Header: http.Header{}}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

func anthropicError(status int, headers map[string]string) error {
	return &anthropic.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
		Response:   httpResponse(status, headers),
	}
}

func openaiError(status int, headers map[string]string) error {
	return &openai.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil),
		Response:   httpResponse(status, headers),
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		wantWait  time.Duration
		retryable bool
	}{
		{"anthropic 429 with Retry-After", anthropicError(429, map[string]string{"Retry-After": "2"}), ErrorRateLimited, 2 * time.Second, true},
		{"anthropic 429 without hint", anthropicError(429, nil), ErrorRateLimited, 0, true},
		{"openai 429 retry-after-ms", openaiError(429, map[string]string{"Retry-After-Ms": "1500"}), ErrorRateLimited, 1500 * time.Millisecond, true},
		{"anthropic 401", anthropicError(401, nil), ErrorAuth, 0, false},
		{"openai 403", openaiError(403, nil), ErrorAuth, 0, false},
		{"anthropic 400", anthropicError(400, nil), ErrorFatal, 0, false},
		{"openai 404", openaiError(404, nil), ErrorFatal, 0, false},
		{"anthropic 408", anthropicError(408, nil), ErrorTransient, 0, true},
		{"anthropic 500", anthropicError(500, nil), ErrorTransient, 0, true},
		{"anthropic 529 overloaded", anthropicError(529, nil), ErrorTransient, 0, true},
		{"openai 503", openaiError(503, nil), ErrorTransient, 0, true},
		{"wrapped sdk error", fmt.Errorf("call failed: %w", anthropicError(502, nil)), ErrorTransient, 0, true},
		{"deadline", context.DeadlineExceeded, ErrorTimeout, 0, true},
		{"net timeout", timeoutError{}, ErrorTimeout, 0, true},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorTransient, 0, true},
		{"malformed response", fmt.Errorf("%w: garbage", ErrMalformedResponse), ErrorTransient, 0, true},
		{"unknown", errors.New("something odd"), ErrorFatal, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capErr := Classify(tt.err)
			require.NotNil(t, capErr)
			assert.Equal(t, tt.wantType, capErr.Type, "got %s", capErr.Type)
			assert.Equal(t, tt.wantWait, capErr.RetryAfter)
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.ErrorIs(t, capErr, tt.err)
		})
	}
}

func TestClassifyKeepsCapabilityErrors(t *testing.T) {
	original := RateLimited(3*time.Second, errors.New("busy"))
	wrapped := fmt.Errorf("tier cheap: %w", original)

	assert.Same(t, original, Classify(wrapped))
	assert.Equal(t, 3*time.Second, RetryAfterOf(wrapped))
	assert.Equal(t, time.Duration(0), RetryAfterOf(errors.New("plain")))
	assert.Nil(t, Classify(nil))
	assert.False(t, IsRetryable(nil))
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		min     time.Duration
		max     time.Duration
	}{
		{"seconds", map[string]string{"Retry-After": "720"}, 720 * time.Second, 720 * time.Second},
		{"fractional seconds", map[string]string{"Retry-After": "0.5"}, 500 * time.Millisecond, 500 * time.Millisecond},
		{"http date", map[string]string{"Retry-After": time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)}, 55 * time.Second, 61 * time.Second},
		{"rate limit reset", map[string]string{"X-RateLimit-Reset": fmt.Sprintf("%d", time.Now().Add(10*time.Minute).Unix())}, 9 * time.Minute, 11 * time.Minute},
		{"reset in the past", map[string]string{"X-RateLimit-Reset": "1"}, 0, 0},
		{"no headers", nil, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wait := parseRetryAfter(httpResponse(429, tt.headers))
			assert.GreaterOrEqual(t, wait, tt.min)
			assert.LessOrEqual(t, wait, tt.max)
		})
	}
	assert.Equal(t, time.Duration(0), parseRetryAfter(nil))
}

func TestCapabilityErrorMessage(t *testing.T) {
	err := &CapabilityError{Type: ErrorRateLimited, Provider: "anthropic", RetryAfter: 2 * time.Second, Err: errors.New("busy")}
	assert.Equal(t, "anthropic: rate_limited (retry after 2s): busy", err.Error())
	assert.True(t, err.Retryable())
	assert.False(t, NewError(ErrorAuth, errors.New("bad key")).Retryable())
}
