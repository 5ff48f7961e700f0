// ABOUTME: Relay Engine: outbound broadcasts and direct sends, inbound delivery into chat threads
// ABOUTME: Owns discovery policy and per-group serialization; threads come from the Registry

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/smsrelay/internal/chat"
	"github.com/2389/smsrelay/internal/discovery"
	"github.com/2389/smsrelay/internal/phone"
	"github.com/2389/smsrelay/internal/store"
	"github.com/2389/smsrelay/internal/threads"
	"github.com/2389/smsrelay/internal/transport"
)

// ErrNoChannel is returned when discovery finds no text channel for an inbound message.
var ErrNoChannel = errors.New("no chat channel available")

// ErrAmbiguousContact is returned when a contact name matches more than one contact.
var ErrAmbiguousContact = errors.New("contact name is ambiguous")

// Reactions added to a chat reply once it has been relayed.
const (
	ReactionSent   = "✅"
	ReactionFailed = "❌"
)

// Deps are the collaborators an Engine is built from.
type Deps struct {
	Store    store.Store
	Registry *threads.Registry
	Surface  chat.Surface
	Sender   transport.Sender
	Policy   discovery.Policy
}

// Engine routes messages between phone numbers and chat threads.
type Engine struct {
	store    store.Store
	registry *threads.Registry
	surface  chat.Surface
	sender   transport.Sender
	policy   discovery.Policy
	logger   *slog.Logger

	groupMu    sync.Mutex
	groupLocks map[string]*sync.Mutex
}

// New creates an Engine. Surface may be nil when no chat workspace is
// connected; thread creation is then skipped and inbound delivery fails.
func New(deps Deps, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if len(deps.Policy.Reserved) == 0 && len(deps.Policy.Fallback) == 0 {
		deps.Policy = discovery.DefaultPolicy()
	}
	return &Engine{
		store:      deps.Store,
		registry:   deps.Registry,
		surface:    deps.Surface,
		sender:     deps.Sender,
		policy:     deps.Policy,
		logger:     logger.With("component", "relay"),
		groupLocks: make(map[string]*sync.Mutex),
	}
}

// BroadcastRequest addresses every member of a group.
type BroadcastRequest struct {
	Group    string
	Body     string
	MediaURL string
	// Origin is where the request was made. When set, replies are routed to a
	// thread there: Origin's thread if it has one, else a new thread in
	// Origin's channel.
	Origin *chat.ThreadRef
	// OnStart, if set, is called with the recipient count before sending.
	OnStart func(recipients int)
}

// Broadcast sends one message to every member of a group. Broadcasts to the
// same group run one at a time.
func (e *Engine) Broadcast(ctx context.Context, req BroadcastRequest) (Result, error) {
	res := Result{ID: uuid.NewString()}

	group, err := e.store.GetGroupByName(ctx, strings.TrimSpace(req.Group))
	if errors.Is(err, store.ErrNotFound) {
		res.Status = StatusNotFound
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("looking up group: %w", err)
	}

	unlock := e.lockGroup(group.Name)
	defer unlock()

	members, err := e.store.GetGroupMembers(ctx, group.ID)
	if err != nil {
		return res, fmt.Errorf("loading group members: %w", err)
	}

	recipients := make([]recipient, 0, len(members))
	for _, m := range members {
		recipients = append(recipients, recipient{phone: m.PhoneNumber, name: m.Name})
	}

	started := time.Now().UTC()
	if len(recipients) == 0 {
		res.Status = StatusNoRecipients
		e.record(ctx, res, group.Name, req.Body, req.MediaURL, started)
		return res, nil
	}
	if req.OnStart != nil {
		req.OnStart(len(recipients))
	}

	if req.Origin != nil {
		if ref, err := e.broadcastThread(ctx, *req.Origin, group.Name, req.Body); err != nil {
			e.logger.Warn("broadcast thread unavailable, sending without one", "group", group.Name, "error", err)
		} else {
			res.Thread = &ref
		}
	}

	res.Recipients = e.sendAll(ctx, recipients, req.Body, req.MediaURL)
	res.Status = aggregate(res.Recipients)

	if res.Thread != nil {
		for _, r := range recipients {
			if err := e.bindIfChanged(ctx, r.phone, *res.Thread, r.name); err != nil {
				e.logger.Error("binding broadcast thread", "phone", r.phone, "error", err)
			}
		}
	}

	e.record(ctx, res, group.Name, req.Body, req.MediaURL, started)
	e.logger.Info("broadcast complete",
		"id", res.ID, "group", group.Name, "status", res.Status,
		"sent", res.Sent(), "failed", res.Failed())
	return res, nil
}

// DirectRequest addresses one phone number or contact.
type DirectRequest struct {
	// To is a phone number, or a contact name matched ignoring case.
	To       string
	Body     string
	MediaURL string
}

// SendDirect sends one message to one recipient. The recipient's thread is
// reused or created on a best-effort basis; failing to get one never blocks
// the send.
func (e *Engine) SendDirect(ctx context.Context, req DirectRequest) (Result, error) {
	res := Result{ID: uuid.NewString()}

	rcpt, found, err := e.resolveRecipient(ctx, req.To)
	if err != nil {
		return res, err
	}
	if !found {
		res.Status = StatusNotFound
		return res, nil
	}

	started := time.Now().UTC()
	if ref, err := e.directThread(ctx, rcpt); err != nil {
		e.logger.Warn("direct message thread unavailable", "phone", rcpt.phone, "error", err)
	} else if !ref.IsZero() {
		res.Thread = &ref
	}

	res.Recipients = e.sendAll(ctx, []recipient{rcpt}, req.Body, req.MediaURL)
	res.Status = aggregate(res.Recipients)

	if res.Thread != nil && e.surface != nil {
		text := formatOutbound(req.Body, req.MediaURL, res.Recipients[0])
		if _, err := e.surface.Post(ctx, *res.Thread, text); err != nil {
			e.logger.Warn("posting direct message copy", "thread", res.Thread.String(), "error", err)
		}
	}

	e.record(ctx, res, "", req.Body, req.MediaURL, started)
	return res, nil
}

// HandleInbound delivers a telephony message into the sender's thread,
// creating and binding a thread when the sender has none. It returns
// ErrNoChannel when no channel can host a new thread; the message is dropped.
func (e *Engine) HandleInbound(ctx context.Context, msg transport.InboundMessage) (chat.ThreadRef, error) {
	from := phone.Canonicalize(msg.From)
	if from == "+" {
		return chat.ThreadRef{}, fmt.Errorf("%w: %q", phone.ErrInvalid, msg.From)
	}
	if e.surface == nil {
		return chat.ThreadRef{}, ErrNoChannel
	}

	name := e.contactName(ctx, from)
	text := formatInbound(name, from, msg.Body, msg.MediaURLs)

	var delivered chat.ThreadRef
	err := e.registry.WithLock(from, func(k *threads.Key) error {
		ref, ok, err := k.Resolve(ctx)
		if err != nil {
			return err
		}
		if ok {
			if _, err := e.surface.Post(ctx, ref, text); err != nil {
				return fmt.Errorf("posting to %s: %w", ref, err)
			}
			delivered = ref
			return nil
		}

		title := threadTitle(name, from)
		ref, err = e.createThread(ctx, title)
		if err != nil {
			return err
		}
		if _, err := e.surface.Post(ctx, ref, text); err != nil {
			return fmt.Errorf("posting to %s: %w", ref, err)
		}
		if err := k.Bind(ctx, ref, title); err != nil {
			return err
		}
		delivered = ref
		return nil
	})
	if errors.Is(err, ErrNoChannel) {
		e.logger.Error("dropping inbound message: no channel available", "from", from, "id", msg.ID)
		return chat.ThreadRef{}, err
	}
	if err != nil {
		return chat.ThreadRef{}, err
	}

	e.logger.Debug("inbound delivered", "from", from, "thread", delivered.String())
	return delivered, nil
}

// HandleThreadReply sends a chat message posted in a bound thread to every
// phone number whose active binding is that thread, then reacts to the chat
// message with the outcome. It returns StatusNotFound for unbound threads.
func (e *Engine) HandleThreadReply(ctx context.Context, msg chat.Message) (Result, error) {
	res := Result{ID: uuid.NewString()}
	if msg.ThreadID == "" {
		res.Status = StatusNotFound
		return res, nil
	}

	phones, err := e.registry.PhonesForThread(ctx, msg.Thread())
	if err != nil {
		return res, fmt.Errorf("finding thread recipients: %w", err)
	}
	if len(phones) == 0 {
		res.Status = StatusNotFound
		return res, nil
	}

	recipients := make([]recipient, 0, len(phones))
	for _, p := range phones {
		recipients = append(recipients, recipient{phone: p, name: e.contactName(ctx, p)})
	}

	var media string
	if len(msg.MediaURLs) > 0 {
		media = msg.MediaURLs[0]
	}

	started := time.Now().UTC()
	res.Thread = &chat.ThreadRef{ChannelID: msg.ChannelID, ThreadID: msg.ThreadID}
	res.Recipients = e.sendAll(ctx, recipients, msg.Body, media)
	res.Status = aggregate(res.Recipients)

	if e.surface != nil && msg.ID != "" {
		emoji := ReactionSent
		if res.Status != StatusSent {
			emoji = ReactionFailed
		}
		if err := e.surface.React(ctx, msg.ChannelID, msg.ID, emoji); err != nil {
			e.logger.Warn("reacting to thread reply", "message", msg.ID, "error", err)
		}
	}

	e.record(ctx, res, "", msg.Body, media, started)
	return res, nil
}

type recipient struct {
	phone string
	name  string
}

// sendAll sends to every recipient in order. A failure never stops the loop.
func (e *Engine) sendAll(ctx context.Context, rs []recipient, body, mediaURL string) []Delivery {
	out := make([]Delivery, 0, len(rs))
	for _, r := range rs {
		id, err := e.sender.Send(ctx, r.phone, body, mediaURL)
		d := Delivery{Phone: r.phone, Name: r.name, ProviderMessageID: id, Err: err}
		if err != nil {
			e.logger.Warn("send failed", "to", r.phone, "provider", e.sender.Name(), "error", err)
		}
		out = append(out, d)
	}
	return out
}

// resolveRecipient parses to as a phone number, else looks it up as a contact name.
func (e *Engine) resolveRecipient(ctx context.Context, to string) (recipient, bool, error) {
	if p, err := phone.Parse(to); err == nil {
		return recipient{phone: p, name: e.contactName(ctx, p)}, true, nil
	}

	matches, err := store.FindContactsByName(ctx, e.store, to)
	if err != nil {
		return recipient{}, false, fmt.Errorf("looking up contact: %w", err)
	}
	switch len(matches) {
	case 0:
		return recipient{}, false, nil
	case 1:
		return recipient{phone: matches[0].PhoneNumber, name: matches[0].Name}, true, nil
	default:
		return recipient{}, false, fmt.Errorf("%w: %q matches %d contacts", ErrAmbiguousContact, to, len(matches))
	}
}

// contactName returns the contact's name, or "" for unknown numbers.
func (e *Engine) contactName(ctx context.Context, p string) string {
	c, err := e.store.GetContactByPhone(ctx, p)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.Warn("contact lookup failed", "phone", p, "error", err)
		}
		return ""
	}
	return c.Name
}

// createThread runs discovery and creates a thread in the chosen channel.
func (e *Engine) createThread(ctx context.Context, title string) (chat.ThreadRef, error) {
	snap, err := e.surface.Snapshot(ctx)
	if err != nil {
		return chat.ThreadRef{}, fmt.Errorf("listing channels: %w", err)
	}
	ch, tier := discovery.SelectChannel(snap, e.policy)
	if tier == discovery.TierNone {
		return chat.ThreadRef{}, ErrNoChannel
	}
	ref, err := e.surface.CreateThread(ctx, ch.ID, title)
	if err != nil {
		return chat.ThreadRef{}, fmt.Errorf("creating thread in %s: %w", ch.Name, err)
	}
	e.logger.Info("created thread", "channel", ch.Name, "tier", tier.String(), "title", title)
	return ref, nil
}

// broadcastThread reuses origin's thread, or opens one in origin's channel.
func (e *Engine) broadcastThread(ctx context.Context, origin chat.ThreadRef, group, body string) (chat.ThreadRef, error) {
	if e.surface == nil {
		return chat.ThreadRef{}, errors.New("no chat surface")
	}
	if origin.ThreadID != "" {
		return origin, nil
	}
	return e.surface.CreateThread(ctx, origin.ChannelID, broadcastTitle(group, body))
}

// directThread reuses the recipient's bound thread, or creates and binds one.
func (e *Engine) directThread(ctx context.Context, r recipient) (chat.ThreadRef, error) {
	if e.surface == nil {
		return chat.ThreadRef{}, nil
	}
	var ref chat.ThreadRef
	err := e.registry.WithLock(r.phone, func(k *threads.Key) error {
		existing, ok, err := k.Resolve(ctx)
		if err != nil {
			return err
		}
		if ok {
			ref = existing
			return nil
		}
		title := threadTitle(r.name, r.phone)
		created, err := e.createThread(ctx, title)
		if err != nil {
			return err
		}
		if err := k.Bind(ctx, created, title); err != nil {
			return err
		}
		ref = created
		return nil
	})
	return ref, err
}

// bindIfChanged binds ref unless it is already the phone's active thread.
func (e *Engine) bindIfChanged(ctx context.Context, p string, ref chat.ThreadRef, name string) error {
	return e.registry.WithLock(p, func(k *threads.Key) error {
		cur, ok, err := k.Resolve(ctx)
		if err != nil {
			return err
		}
		if ok && cur == ref {
			return nil
		}
		return k.Bind(ctx, ref, threadTitle(name, p))
	})
}

// record writes the broadcast log. Failures are logged, not returned.
func (e *Engine) record(ctx context.Context, res Result, group, body, mediaURL string, started time.Time) {
	b := &store.Broadcast{
		ID:         res.ID,
		GroupName:  group,
		Body:       body,
		MediaURL:   mediaURL,
		Status:     logStatus(res.Status),
		Sent:       res.Sent(),
		Failed:     res.Failed(),
		CreatedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
	for _, d := range res.Recipients {
		sd := store.Delivery{PhoneNumber: d.Phone, ProviderMessageID: d.ProviderMessageID}
		if d.Err != nil {
			sd.Error = d.Err.Error()
		}
		b.Deliveries = append(b.Deliveries, sd)
	}
	if err := e.store.RecordBroadcast(ctx, b); err != nil {
		e.logger.Error("recording broadcast", "id", res.ID, "error", err)
	}
}

func (e *Engine) lockGroup(name string) func() {
	key := store.FoldName(name)
	e.groupMu.Lock()
	l, ok := e.groupLocks[key]
	if !ok {
		l = &sync.Mutex{}
		e.groupLocks[key] = l
	}
	e.groupMu.Unlock()

	l.Lock()
	return l.Unlock
}
