// Package retry runs remote calls with exponential backoff.
package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/audiovideoron/distillyzer/internal/logger"
)

// Config controls retry behaviour.
type Config struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig is suitable for the embedding, LLM and transcription APIs.
var DefaultConfig = Config{
	MaxAttempts: 4,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Multiplier:  2.0,
}

// StatusError is an HTTP response with a non-2xx status.
type StatusError struct {
	StatusCode int

	// Body is a truncated copy of the response body.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 2048

// CheckResponse returns *StatusError for a non-2xx response and nil otherwise.
// The error body is read; when it is a JSON API error its message is kept.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: errorMessage(raw)}
}

// errorMessage extracts {"error":{"message":...}} or {"error":"..."} bodies.
func errorMessage(raw []byte) string {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &env) == nil && len(env.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(env.Error, &flat) == nil && flat != "" {
			return flat
		}
	}
	return strings.TrimSpace(string(raw))
}

// Exhausted is returned when every attempt failed with a transient error.
type Exhausted struct {
	Attempts int
	Err      error
}

func (e *Exhausted) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Exhausted) Unwrap() error {
	return e.Err
}

// Do calls fn until it succeeds, returns a non-transient error, the context
// ends, or MaxAttempts is reached. The last case yields *Exhausted.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 2
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return zero, err
		}

		if attempt < attempts-1 {
			wait := time.Duration(float64(cfg.InitialWait) * math.Pow(mult, float64(attempt)))
			if cfg.MaxWait > 0 && wait > cfg.MaxWait {
				wait = cfg.MaxWait
			}
			logger.Debug("retrying after %s (attempt %d/%d): %v", wait, attempt+1, attempts, err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}
	return zero, &Exhausted{Attempts: attempts, Err: lastErr}
}

// IsTransient returns true for errors worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return transientStatus(statusErr.StatusCode)
	}

	// Connection errors (dial failures, connection refused, etc.)
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	// net.Error includes OpError, so check after OpError
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Attempts returns how many calls err reports, or 1 when it is not *Exhausted.
func Attempts(err error) int {
	var ex *Exhausted
	if errors.As(err, &ex) {
		return ex.Attempts
	}
	return 1
}
