// ABOUTME: Twilio Programmable Messaging client for outbound SMS/MMS
// ABOUTME: Posts form-encoded requests to the Messages resource with basic auth

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTwilioBaseURL is the public Twilio REST API.
const DefaultTwilioBaseURL = "https://api.twilio.com"

// TwilioConfig holds credentials and the sending number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string // overridable for tests
	Timeout    time.Duration
}

// TwilioSender sends messages through the Twilio REST API.
type TwilioSender struct {
	cfg    TwilioConfig
	client *http.Client
}

// TwilioError is the error body Twilio returns for rejected requests.
type TwilioError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (e *TwilioError) Error() string {
	return fmt.Sprintf("twilio error %d: %s", e.Code, e.Message)
}

type twilioMessage struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// NewTwilioSender validates cfg and returns a sender.
func NewTwilioSender(cfg TwilioConfig) (*TwilioSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, fmt.Errorf("%w: twilio requires account_sid, auth_token and from", ErrNotConfigured)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTwilioBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &TwilioSender{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns "twilio".
func (s *TwilioSender) Name() string { return "twilio" }

// Send creates one Message resource. The returned ID is the message SID.
func (s *TwilioSender) Send(ctx context.Context, to, body, mediaURL string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.cfg.From)
	form.Set("Body", body)
	if mediaURL != "" {
		form.Set("MediaUrl", mediaURL)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.cfg.BaseURL, url.PathEscape(s.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building twilio request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending to twilio: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading twilio response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var te TwilioError
		if json.Unmarshal(raw, &te) == nil && te.Message != "" {
			return "", &te
		}
		return "", fmt.Errorf("twilio returned HTTP %d", resp.StatusCode)
	}

	var msg twilioMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", fmt.Errorf("decoding twilio response: %w", err)
	}
	if msg.Status == "failed" || msg.Status == "undelivered" {
		return msg.SID, fmt.Errorf("twilio message %s %s: %s", msg.SID, msg.Status, msg.ErrorMessage)
	}
	return msg.SID, nil
}
