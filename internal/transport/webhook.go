// ABOUTME: Twilio inbound webhook parsing and X-Twilio-Signature verification
// ABOUTME: Turns a form-encoded status callback into an InboundMessage

package transport

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // Twilio signs requests with HMAC-SHA1
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ErrBadSignature is returned when X-Twilio-Signature does not match.
var ErrBadSignature = errors.New("invalid twilio signature")

// SignatureHeader carries Twilio's request signature.
const SignatureHeader = "X-Twilio-Signature"

// MaxMedia is the most attachments Twilio delivers with one message.
const MaxMedia = 10

// EmptyTwiML acknowledges a webhook without replying to the sender.
const EmptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// ParseWebhook reads an inbound message from a Twilio webhook request.
// It calls ParseForm, so r.PostForm is populated afterwards.
func ParseWebhook(r *http.Request) (InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return InboundMessage{}, fmt.Errorf("parsing webhook form: %w", err)
	}
	form := r.PostForm

	msg := InboundMessage{
		ID:   form.Get("MessageSid"),
		From: form.Get("From"),
		Body: form.Get("Body"),
	}
	if msg.From == "" {
		return InboundMessage{}, errors.New("webhook missing From")
	}

	// NumMedia is client-supplied; only Twilio's limit is honored.
	n, _ := strconv.Atoi(form.Get("NumMedia"))
	n = min(max(n, 0), MaxMedia)
	for i := range n {
		if u := form.Get(fmt.Sprintf("MediaUrl%d", i)); u != "" {
			msg.MediaURLs = append(msg.MediaURLs, u)
		}
	}
	return msg, nil
}

// Signature computes the X-Twilio-Signature value for a POST to fullURL.
func Signature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the signature header of a webhook request, parsing
// the form if needed. fullURL must be the public URL Twilio posted to,
// including any query string.
func VerifySignature(authToken, fullURL string, r *http.Request) error {
	got := r.Header.Get(SignatureHeader)
	if got == "" {
		return fmt.Errorf("%w: header missing", ErrBadSignature)
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("parsing webhook form: %w", err)
	}
	want := Signature(authToken, fullURL, r.PostForm)
	if !hmac.Equal([]byte(got), []byte(want)) {
		return ErrBadSignature
	}
	return nil
}
