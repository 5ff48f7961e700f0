// ABOUTME: Markdown to Matrix HTML rendering for relay posts.
// ABOUTME: Uses goldmark; raw HTML in SMS bodies is escaped, not passed through.

package matrix

import (
	"bytes"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"maunium.net/go/mautrix/event"
)

var md = goldmark.New(goldmark.WithRendererOptions(gmhtml.WithHardWraps()))

// textContent builds an m.text event. The formatted body is omitted when
// markdown adds nothing beyond paragraph wrapping.
func textContent(text string) *event.MessageEventContent {
	content := &event.MessageEventContent{MsgType: event.MsgText, Body: text}

	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return content
	}
	rendered := strings.TrimSpace(buf.String())
	if rendered == "<p>"+html.EscapeString(text)+"</p>" {
		return content
	}
	content.Format = event.FormatHTML
	content.FormattedBody = rendered
	return content
}
