// ABOUTME: Routes inbound events from both streams into the relay with deduplication
// ABOUTME: Chat messages become commands or thread replies; texts go to HandleInbound

package gateway

import (
	"context"
	"errors"

	"github.com/2389/smsrelay/internal/chat"
	"github.com/2389/smsrelay/internal/command"
	"github.com/2389/smsrelay/internal/dedupe"
	"github.com/2389/smsrelay/internal/phone"
	"github.com/2389/smsrelay/internal/relay"
	"github.com/2389/smsrelay/internal/transport"
)

// HandleChatMessage processes one chat-origin message. Commands are routed
// and answered in the same thread; other messages inside a bound thread are
// relayed to the thread's phone numbers; everything else is ordinary chat.
func (g *Gateway) HandleChatMessage(ctx context.Context, msg chat.Message) {
	if msg.ID != "" && g.dedupe.Seen(dedupe.Key("chat", msg.ID)) {
		g.logger.Debug("duplicate chat message ignored", "id", msg.ID)
		return
	}

	if g.router.IsCommand(msg.Body) {
		resp := g.router.Route(ctx, command.Request{
			Text:      msg.Body,
			Sender:    msg.Sender,
			Origin:    msg.Thread(),
			MediaURLs: msg.MediaURLs,
		})
		g.logger.Info("command handled", "sender", msg.Sender, "outcome", resp.Outcome)
		g.reply(ctx, msg.Thread(), resp.Text)
		return
	}

	if msg.ThreadID == "" {
		return
	}
	res, err := g.engine.HandleThreadReply(ctx, msg)
	if err != nil {
		g.logger.Error("relaying thread reply failed", "thread", msg.Thread().String(), "error", err)
		return
	}
	if res.Status != relay.StatusNotFound {
		g.logger.Info("thread reply relayed", "thread", msg.Thread().String(), "status", res.Status, "sent", res.Sent(), "failed", res.Failed())
	}
}

// HandleInboundSMS delivers a telephony message from source ("twilio",
// "relay") into chat. Redelivered provider IDs are dropped. Terminal
// failures (no channel, unusable sender) return nil; other failures forget
// the ID so a redelivery is processed again.
func (g *Gateway) HandleInboundSMS(ctx context.Context, source string, msg transport.InboundMessage) error {
	key := ""
	if msg.ID != "" {
		key = dedupe.Key(source, msg.ID)
	}
	if g.dedupe.Seen(key) {
		g.logger.Debug("duplicate inbound text ignored", "source", source, "id", msg.ID)
		return nil
	}

	ref, err := g.engine.HandleInbound(ctx, msg)
	switch {
	case err == nil:
		g.logger.Info("inbound text relayed", "source", source, "from", phone.Canonicalize(msg.From), "thread", ref.String())
		return nil
	case errors.Is(err, relay.ErrNoChannel):
		return nil
	case errors.Is(err, phone.ErrInvalid):
		g.logger.Warn("dropping inbound text with unusable sender", "source", source, "from", msg.From)
		return nil
	default:
		g.dedupe.Forget(key)
		return err
	}
}

func (g *Gateway) reply(ctx context.Context, to chat.ThreadRef, text string) {
	if g.surface == nil || text == "" {
		return
	}
	if _, err := g.surface.Post(ctx, to, text); err != nil {
		g.logger.Error("posting command reply failed", "to", to.String(), "error", err)
	}
}
