// ABOUTME: Command Router: parses operator chat commands and dispatches them
// ABOUTME: Directory edits go to the store; sends go to the relay engine

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/smsrelay/internal/chat"
	"github.com/2389/smsrelay/internal/relay"
	"github.com/2389/smsrelay/internal/store"
)

// DefaultPrefix marks a chat message as a command.
const DefaultPrefix = "!"

// Outcome tags a command response.
type Outcome string

const (
	OK           Outcome = "ok"
	Usage        Outcome = "usage"
	Invalid      Outcome = "invalid"
	NotFound     Outcome = "not_found"
	Duplicate    Outcome = "duplicate"
	NoRecipients Outcome = "no_recipients"
	Partial      Outcome = "partial"
	Failed       Outcome = "failed"
	Unknown      Outcome = "unknown"
	// Error is a store or engine failure unrelated to the input.
	Error Outcome = "error"
)

// Response is what the router replies with.
type Response struct {
	Outcome Outcome
	Text    string
}

// Success reports whether the command applied.
func (r Response) Success() bool { return r.Outcome == OK }

// Request is one chat message addressed to the router.
type Request struct {
	Text   string
	Sender string
	// Origin is where the command was posted; progress notices and broadcast
	// threads go there.
	Origin    chat.ThreadRef
	MediaURLs []string
}

// Relay is the part of the relay engine the router drives.
type Relay interface {
	Broadcast(ctx context.Context, req relay.BroadcastRequest) (relay.Result, error)
	SendDirect(ctx context.Context, req relay.DirectRequest) (relay.Result, error)
}

// Router parses and executes commands. It holds no per-message state.
type Router struct {
	store   store.Store
	relay   Relay
	surface chat.Surface // optional; used for progress notices
	prefix  string
	logger  *slog.Logger
	byName  map[string]*spec
}

// New creates a Router. An empty prefix uses DefaultPrefix. surface may be nil.
func New(s store.Store, r Relay, surface chat.Surface, prefix string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	rt := &Router{
		store:   s,
		relay:   r,
		surface: surface,
		prefix:  prefix,
		logger:  logger.With("component", "command"),
		byName:  make(map[string]*spec),
	}
	for _, sp := range specs {
		rt.byName[sp.name] = sp
		for _, a := range sp.aliases {
			rt.byName[a] = sp
		}
	}
	return rt
}

// Prefix returns the command marker.
func (rt *Router) Prefix() string { return rt.prefix }

// IsCommand reports whether text starts with the command marker.
func (rt *Router) IsCommand(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, rt.prefix) && len(t) > len(rt.prefix)
}

// Route parses and executes one command. Bad input never mutates anything.
func (rt *Router) Route(ctx context.Context, req Request) Response {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(req.Text), rt.prefix))
	if len(fields) == 0 {
		return rt.unknown()
	}

	name := strings.ToLower(fields[0])
	args := fields[1:]

	sp, ok := rt.byName[name]
	if !ok {
		return rt.unknown()
	}
	if len(args) < sp.minArgs || (sp.maxArgs >= 0 && len(args) > sp.maxArgs) {
		if !(sp.mediaAllowsFewer && len(req.MediaURLs) > 0 && len(args) == sp.minArgs-1) {
			return rt.usage(sp)
		}
	}

	rt.logger.Debug("routing command", "command", sp.name, "sender", req.Sender, "args", len(args))
	return sp.run(ctx, rt, call{req: req, args: args, spec: sp})
}

// Help returns the help text.
func (rt *Router) Help() string {
	var b strings.Builder
	b.WriteString("**SMS relay commands**\n")
	for _, sp := range specs {
		fmt.Fprintf(&b, "`%s%s` %s", rt.prefix, sp.usage, sp.summary)
		if len(sp.aliases) > 0 {
			names := make([]string, len(sp.aliases))
			for i, a := range sp.aliases {
				names[i] = "`" + rt.prefix + a + "`"
			}
			fmt.Fprintf(&b, " (also %s)", strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Phone numbers use international format, for example `+15551234567`.\n")
	return b.String()
}

func (rt *Router) unknown() Response {
	return Response{
		Outcome: Unknown,
		Text:    fmt.Sprintf("Unknown command. Type %shelp to see available commands.", rt.prefix),
	}
}

func (rt *Router) usage(sp *spec) Response {
	return Response{Outcome: Usage, Text: fmt.Sprintf("Usage: `%s%s`", rt.prefix, sp.usage)}
}

// fail logs err and returns a short diagnostic that does not echo it.
func (rt *Router) fail(command string, err error) Response {
	rt.logger.Error("command failed", "command", command, "error", err)
	return Response{Outcome: Error, Text: "Something went wrong. Check the relay logs."}
}

// notify posts a progress notice to the command's origin, best effort.
func (rt *Router) notify(ctx context.Context, origin chat.ThreadRef, text string) {
	if rt.surface == nil || origin.IsZero() {
		return
	}
	if _, err := rt.surface.Post(ctx, origin, text); err != nil {
		rt.logger.Warn("posting progress notice", "error", err)
	}
}

// storeOutcome maps store sentinels to outcomes; ok is false for other errors.
func storeOutcome(err error) (Outcome, bool) {
	switch {
	case errors.Is(err, store.ErrDuplicateContact), errors.Is(err, store.ErrDuplicateGroup):
		return Duplicate, true
	case errors.Is(err, store.ErrNotFound):
		return NotFound, true
	default:
		return "", false
	}
}
