package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"quotes-api/internal/models"
)

// Adapter is one upstream data source. FetchQuotes must not fail for partial
// coverage: symbols the provider cannot resolve are simply absent from the
// returned slice, never present as sentinel rows. An error return is reserved
// for total failures (network unreachable, auth rejected) and is treated by
// the cascade exactly like an empty result.
type Adapter interface {
	Name() string
	FetchQuotes(ctx context.Context, symbols []string, market models.Market) ([]models.Quote, error)
}

// Common error codes.
const (
	ErrorCodeRateLimit    = "RATE_LIMIT_EXCEEDED"
	ErrorCodeUnauthorized = "UNAUTHORIZED"
	ErrorCodeNotFound     = "NOT_FOUND"
	ErrorCodeServerError  = "SERVER_ERROR"
	ErrorCodeTimeout      = "TIMEOUT"
	ErrorCodeNetworkError = "NETWORK_ERROR"
	ErrorCodeParseError   = "PARSE_ERROR"
	ErrorCodeInvalidData  = "INVALID_DATA"
	ErrorCodeNoData       = "NO_DATA"
)

// ProviderError classifies a failure from one upstream.
type ProviderError struct {
	Provider  string    `json:"provider"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Message
}

// NewProviderError creates a classified provider error.
func NewProviderError(provider, code, message string, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now(),
	}
}

// GetJSON issues a GET request and decodes the JSON body into v. Non-2xx
// responses come back as ProviderErrors with a retryability hint.
func GetJSON(ctx context.Context, client *http.Client, provider, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return NewProviderError(provider, ErrorCodeNetworkError, "failed to create request", false)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "quotes-api/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return NewProviderError(provider, ErrorCodeNetworkError, "network error: "+err.Error(), true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewProviderError(provider, ErrorCodeNetworkError, "failed to read response", false)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
		code := ErrorCodeServerError
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			code = ErrorCodeRateLimit
		case http.StatusUnauthorized, http.StatusForbidden:
			code = ErrorCodeUnauthorized
		case http.StatusNotFound:
			code = ErrorCodeNotFound
		}
		return NewProviderError(provider, code, fmt.Sprintf("HTTP %d", resp.StatusCode), retryable)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return NewProviderError(provider, ErrorCodeParseError, "failed to parse response", false)
	}
	return nil
}

// IsTransport reports whether err is a transport-level failure (unreachable
// host, timeout, throttling, rejected credentials) rather than a per-symbol
// data problem. Adapters fail the whole batch only when every request died at
// this level, so the cascade can put the provider on cooldown; a provider
// that answered, even with error rows, is up and merely missing symbols.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.Code {
		case ErrorCodeNetworkError, ErrorCodeTimeout, ErrorCodeRateLimit, ErrorCodeUnauthorized:
			return true
		}
		return pe.Retryable
	}
	return true
}

// Chunk splits symbols into batches of at most size. size <= 0 yields a
// single batch.
func Chunk(symbols []string, size int) [][]string {
	if size <= 0 || len(symbols) <= size {
		return [][]string{symbols}
	}
	var out [][]string
	for i := 0; i < len(symbols); i += size {
		end := i + size
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[i:end])
	}
	return out
}
