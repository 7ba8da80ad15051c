package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// ErrorType classifies a capability failure
type ErrorType int

const (
	ErrorTransient   ErrorType = iota // Server error, network failure, malformed response
	ErrorRateLimited                  // 429; carries a retry-after hint when the provider sent one
	ErrorTimeout                      // Per-call deadline exceeded
	ErrorAuth                         // 401/403, retrying cannot help
	ErrorFatal                        // Bad request or unsupported input
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTransient:
		return "transient"
	case ErrorRateLimited:
		return "rate_limited"
	case ErrorTimeout:
		return "timeout"
	case ErrorAuth:
		return "auth_failure"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Retryable reports whether an error of this type may succeed on retry
func (t ErrorType) Retryable() bool {
	return t != ErrorAuth && t != ErrorFatal
}

var (
	// ErrMalformedResponse is returned when the model's answer cannot be parsed
	ErrMalformedResponse = errors.New("malformed analysis response")

	// ErrNoCapability is returned when no provider is registered for a tier
	ErrNoCapability = errors.New("no capability registered for provider")
)

// CapabilityError is the error returned by every Capability
type CapabilityError struct {
	Type       ErrorType
	Provider   string
	RetryAfter time.Duration // minimum wait requested by the provider, 0 if none
	Cost       float64       // spend already incurred, e.g. tokens billed for an unparseable answer
	Err        error
}

func (e *CapabilityError) Error() string {
	msg := e.Type.String()
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %v)", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failed call may be retried
func (e *CapabilityError) Retryable() bool {
	return e.Type.Retryable()
}

// NewError wraps err with a classification
func NewError(t ErrorType, err error) *CapabilityError {
	return &CapabilityError{Type: t, Err: err}
}

// RateLimited returns a rate limit error carrying a retry-after hint
func RateLimited(retryAfter time.Duration, err error) *CapabilityError {
	return &CapabilityError{Type: ErrorRateLimited, RetryAfter: retryAfter, Err: err}
}

// IsRetryable reports whether err, once classified, may succeed on retry
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable()
}

// RetryAfterOf returns the provider's retry-after hint carried by err, or 0
func RetryAfterOf(err error) time.Duration {
	var capErr *CapabilityError
	if errors.As(err, &capErr) {
		return capErr.RetryAfter
	}
	return 0
}

// Classify converts any error from a provider call into a CapabilityError.
// Errors that are already classified are returned unchanged.
func Classify(err error) *CapabilityError {
	if err == nil {
		return nil
	}

	var capErr *CapabilityError
	if errors.As(err, &capErr) {
		return capErr
	}

	errorType, retryAfter := classifyError(err)
	return &CapabilityError{Type: errorType, RetryAfter: retryAfter, Err: err}
}

// classifyError maps provider SDK errors onto an ErrorType by HTTP status
func classifyError(err error) (ErrorType, time.Duration) {
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return classifyStatus(anthropicErr.StatusCode, anthropicErr.Response)
	}

	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return classifyStatus(openaiErr.StatusCode, openaiErr.Response)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout, 0
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTimeout, 0
		}
		return ErrorTransient, 0
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrMalformedResponse) {
		return ErrorTransient, 0
	}

	// Connection failures sometimes arrive as plain errors from the transport
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "temporary failure") {
		return ErrorTransient, 0
	}

	// Default to not retrying unknown errors
	return ErrorFatal, 0
}

func classifyStatus(status int, resp *http.Response) (ErrorType, time.Duration) {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorRateLimited, parseRetryAfter(resp)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorAuth, 0
	case status == http.StatusRequestTimeout:
		return ErrorTransient, 0
	case status >= 500:
		// Anthropic's 529 overloaded may also carry retry-after
		return ErrorTransient, parseRetryAfter(resp)
	case status >= 400:
		return ErrorFatal, 0
	default:
		return ErrorTransient, 0
	}
}

// parseRetryAfter reads the wait hint from a rate limited response.
// Supports Retry-After (seconds or HTTP date), retry-after-ms and
// X-RateLimit-Reset (unix seconds). Returns 0 when no header is usable.
func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	if v := resp.Header.Get("Retry-After-Ms"); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil && ms > 0 {
			return time.Duration(ms * float64(time.Millisecond))
		}
	}

	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		if at, err := http.ParseTime(v); err == nil {
			if wait := time.Until(at); wait > 0 {
				return wait
			}
		}
	}

	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if wait := time.Until(time.Unix(unix, 0)); wait > 0 {
				return wait
			}
		}
	}

	return 0
}
