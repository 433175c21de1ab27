// Package notify holds the thin per-provider senders used by the
// dispatcher. Each sender exposes the same contract: deliver one message
// and report the provider's message id, or a SendError classifying the
// failure as retryable or terminal.
package notify

import (
	"context"
	"fmt"
	"net/http"
)

// SendError is a typed transport/auth failure from a provider. Temporary
// failures (timeouts, throttling, 5xx) are worth retrying; the rest
// (invalid recipient, auth rejection) are terminal on first occurrence.
type SendError struct {
	Provider  string
	Code      int
	Temporary bool
	Msg       string
}

// Error implements the error interface
func (e *SendError) Error() string {
	kind := "terminal"
	if e.Temporary {
		kind = "retryable"
	}
	return fmt.Sprintf("%s send failed (%s, status %d): %s", e.Provider, kind, e.Code, e.Msg)
}

// Sender delivers one message through a single provider
type Sender interface {
	Name() string
	Channel() string
	Send(ctx context.Context, recipient, body string) (providerMessageID string, err error)
}

// classifyStatus maps an HTTP status to the retryable/terminal split
func classifyStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return true
	default:
		return false
	}
}
