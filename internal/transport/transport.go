// ABOUTME: SMS transport contracts: outbound Sender and inbound telephony messages
// ABOUTME: Concrete senders are Twilio REST, the Redis phone relay, and a logging sender

package transport

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// ErrNotConfigured is returned when a transport is missing required settings.
var ErrNotConfigured = errors.New("transport not configured")

// Sender submits one SMS to one recipient. Calls are independent: a failure
// for one recipient has no effect on any other call.
type Sender interface {
	// Send delivers body (and mediaURL when non-empty) to a canonical phone
	// number and returns the provider's message identifier.
	Send(ctx context.Context, to, body, mediaURL string) (string, error)
	// Name identifies the provider in logs and the broadcast log.
	Name() string
}

// InboundMessage is a text received from the telephony side.
type InboundMessage struct {
	// ID is the provider's message identifier, used for redelivery dedupe.
	ID        string   `json:"id"`
	From      string   `json:"from"`
	Body      string   `json:"body"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

// LogSender only logs messages. It backs the "log" provider for local development.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "transport.log")}
}

// Send logs the message and returns a random ID.
func (s *LogSender) Send(ctx context.Context, to, body, mediaURL string) (string, error) {
	id := "log-" + uuid.NewString()
	s.logger.Info("sms (not sent)", "id", id, "to", to, "body", body, "media_url", mediaURL)
	return id, nil
}

// Name returns "log".
func (s *LogSender) Name() string { return "log" }
