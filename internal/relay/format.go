// ABOUTME: Text shown in chat for relayed messages and thread titles
// ABOUTME: Output is markdown; the chat adapter renders it

package relay

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const titlePreviewRunes = 40

// threadTitle names a per-contact thread: the contact name when known, else the number.
func threadTitle(name, phoneNumber string) string {
	if name == "" {
		return phoneNumber
	}
	return fmt.Sprintf("%s (%s)", name, phoneNumber)
}

func broadcastTitle(group, body string) string {
	return fmt.Sprintf("📣 %s: %s", group, preview(body))
}

// formatInbound renders a telephony message for posting into a thread.
func formatInbound(name, from, body string, media []string) string {
	var b strings.Builder
	b.WriteString("**")
	if name != "" {
		b.WriteString(name)
	} else {
		b.WriteString(from)
	}
	b.WriteString("**")
	if body != "" {
		b.WriteString(": ")
		b.WriteString(body)
	}
	for _, m := range media {
		b.WriteString("\n")
		b.WriteString(m)
	}
	return b.String()
}

// formatOutbound renders a copy of a direct message for its thread.
func formatOutbound(body, mediaURL string, d Delivery) string {
	var b strings.Builder
	if d.OK() {
		b.WriteString("➡️ ")
	} else {
		b.WriteString("⚠️ not delivered: ")
	}
	b.WriteString(body)
	if mediaURL != "" {
		b.WriteString("\n")
		b.WriteString(mediaURL)
	}
	return b.String()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= titlePreviewRunes {
		return s
	}
	r := []rune(s)
	return string(r[:titlePreviewRunes]) + "…"
}
