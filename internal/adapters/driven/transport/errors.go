// Package transport classifies failures of HTTP calls to model providers.
//
// Anything a later attempt might fix (connection errors, timeouts, 408, 429
// and 5xx responses) wraps domain.ErrProviderUnavailable. Other 4xx
// responses are configuration problems and stay plain errors.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
)

// maxBodyInError bounds how much of a response body ends up in an error message.
const maxBodyInError = 512

// SendError classifies a failure to complete a request.
// Caller cancellation is returned unchanged.
func SendError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrProviderUnavailable, provider, err)
}

// StatusError classifies a non-success HTTP status.
func StatusError(provider string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxBodyInError {
		msg = msg[:maxBodyInError] + "..."
	}
	if Retryable(status) {
		return fmt.Errorf("%w: %s returned status %d: %s", domain.ErrProviderUnavailable, provider, status, msg)
	}
	return fmt.Errorf("%s returned status %d: %s", provider, status, msg)
}

// Retryable reports whether a status is worth retrying.
func Retryable(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}
