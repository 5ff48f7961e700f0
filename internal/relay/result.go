// ABOUTME: Tagged result types for relay operations
// ABOUTME: Per-recipient deliveries aggregate into one Status

package relay

import (
	"github.com/2389/smsrelay/internal/chat"
	"github.com/2389/smsrelay/internal/store"
)

// Status is the overall outcome of an outbound operation.
type Status string

const (
	// StatusSent means every attempted send succeeded.
	StatusSent Status = "sent"
	// StatusPartial means at least one send succeeded and at least one failed.
	StatusPartial Status = "partial"
	// StatusFailed means every attempted send failed.
	StatusFailed Status = "failed"
	// StatusNoRecipients means the recipient set was empty and nothing was sent.
	StatusNoRecipients Status = "no_recipients"
	// StatusNotFound means the named group, contact, or thread does not exist.
	StatusNotFound Status = "not_found"
)

// Delivery is the outcome for one recipient.
type Delivery struct {
	Phone             string
	Name              string // contact name, empty for unknown numbers
	ProviderMessageID string
	Err               error
}

// OK reports whether the transport accepted the message.
func (d Delivery) OK() bool { return d.Err == nil }

// Label returns the contact name if known, else the phone number.
func (d Delivery) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Phone
}

// Result is returned by every outbound operation.
type Result struct {
	ID         string
	Status     Status
	Recipients []Delivery
	// Thread is set when a chat thread was created or reused for replies.
	Thread *chat.ThreadRef
}

// Sent counts successful deliveries.
func (r Result) Sent() int {
	n := 0
	for _, d := range r.Recipients {
		if d.OK() {
			n++
		}
	}
	return n
}

// Failed counts failed deliveries.
func (r Result) Failed() int {
	return len(r.Recipients) - r.Sent()
}

// Failures returns the failed deliveries.
func (r Result) Failures() []Delivery {
	var out []Delivery
	for _, d := range r.Recipients {
		if !d.OK() {
			out = append(out, d)
		}
	}
	return out
}

// aggregate derives the overall status from per-recipient outcomes.
func aggregate(ds []Delivery) Status {
	if len(ds) == 0 {
		return StatusNoRecipients
	}
	ok := 0
	for _, d := range ds {
		if d.OK() {
			ok++
		}
	}
	switch ok {
	case len(ds):
		return StatusSent
	case 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

func logStatus(s Status) string {
	switch s {
	case StatusSent:
		return store.BroadcastSent
	case StatusPartial:
		return store.BroadcastPartial
	case StatusFailed:
		return store.BroadcastFailed
	default:
		return store.BroadcastNoRecipients
	}
}
