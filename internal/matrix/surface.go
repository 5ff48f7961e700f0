// ABOUTME: Matrix implementation of the chat surface and chat-origin event source.
// ABOUTME: Joined rooms are channels; threads are m.thread relations on a root event.

package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/smsrelay/internal/chat"
)

// Config holds the connection and filtering settings.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// AllowedRooms limits both discovery and event intake. Empty allows all joined rooms.
	AllowedRooms []string
	// AllowedUsers limits who may issue commands or reply in threads. Empty allows everyone.
	AllowedUsers []string
}

// Surface talks to a Matrix homeserver on behalf of the relay.
type Surface struct {
	cfg     Config
	api     api
	logger  *slog.Logger
	started time.Time
}

// New connects a mautrix client. No network traffic happens until the
// first call.
func New(cfg Config, logger *slog.Logger) (*Surface, error) {
	a, err := newMautrixAPI(cfg.Homeserver, cfg.UserID, cfg.AccessToken)
	if err != nil {
		return nil, err
	}
	return newSurface(cfg, a, logger), nil
}

func newSurface(cfg Config, a api, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{
		cfg:     cfg,
		api:     a,
		logger:  logger.With("component", "matrix"),
		started: time.Now(),
	}
}

// Snapshot lists joined rooms as a single workspace named after the
// homeserver. Named rooms come first, ordered by name then ID, followed by
// unnamed rooms (usually DMs) by ID, so discovery is stable and prefers
// real channels.
func (s *Surface) Snapshot(ctx context.Context) (chat.Snapshot, error) {
	rooms, err := s.api.JoinedRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing joined rooms: %w", err)
	}

	channels := make([]chat.Channel, 0, len(rooms))
	for _, room := range rooms {
		if !s.roomAllowed(room.String()) {
			continue
		}
		name, err := s.api.RoomName(ctx, room)
		if err != nil {
			// Unnamed rooms have no m.room.name state.
			s.logger.Debug("room has no name", "room", room, "error", err)
		}
		space, err := s.api.IsSpace(ctx, room)
		if err != nil {
			s.logger.Debug("reading room type failed", "room", room, "error", err)
		}
		channels = append(channels, chat.Channel{
			ID:          room.String(),
			Name:        name,
			TextCapable: !space,
		})
	}
	sort.SliceStable(channels, func(i, j int) bool {
		if (channels[i].Name == "") != (channels[j].Name == "") {
			return channels[j].Name == ""
		}
		if channels[i].Name != channels[j].Name {
			return channels[i].Name < channels[j].Name
		}
		return channels[i].ID < channels[j].ID
	})

	return chat.Snapshot{{
		ID:       s.cfg.Homeserver,
		Name:     serverName(s.cfg.UserID),
		Channels: channels,
	}}, nil
}

// CreateThread posts title as a root event in the room; its event ID
// becomes the thread ID.
func (s *Surface) CreateThread(ctx context.Context, channelID, title string) (chat.ThreadRef, error) {
	if !s.roomAllowed(channelID) {
		return chat.ThreadRef{}, fmt.Errorf("%w: %s", chat.ErrUnknownChannel, channelID)
	}
	root, err := s.api.SendMessage(ctx, id.RoomID(channelID), textContent("**"+title+"**"))
	if err != nil {
		return chat.ThreadRef{}, fmt.Errorf("creating thread in %s: %w", channelID, err)
	}
	return chat.ThreadRef{ChannelID: channelID, ThreadID: root.String()}, nil
}

// Post sends markdown text into the thread, or the room timeline when
// the reference has no thread.
func (s *Surface) Post(ctx context.Context, to chat.ThreadRef, text string) (string, error) {
	content := textContent(text)
	if to.ThreadID != "" {
		root := id.EventID(to.ThreadID)
		content.RelatesTo = &event.RelatesTo{
			Type:          event.RelThread,
			EventID:       root,
			IsFallingBack: true,
			InReplyTo:     &event.InReplyTo{EventID: root},
		}
	}
	evtID, err := s.api.SendMessage(ctx, id.RoomID(to.ChannelID), content)
	if err != nil {
		return "", fmt.Errorf("posting to %s: %w", to, err)
	}
	return evtID.String(), nil
}

// React annotates a message with emoji.
func (s *Surface) React(ctx context.Context, channelID, messageID, emoji string) error {
	if err := s.api.SendReaction(ctx, id.RoomID(channelID), id.EventID(messageID), emoji); err != nil {
		return fmt.Errorf("reacting in %s: %w", channelID, err)
	}
	return nil
}

// Listen delivers room messages to handler until ctx is cancelled.
// Events older than the surface itself are skipped so the initial sync
// does not replay history.
func (s *Surface) Listen(ctx context.Context, handler chat.Handler) error {
	if err := s.api.OnMessage(func(ctx context.Context, evt *event.Event) {
		if msg, ok := s.convert(evt); ok {
			handler(ctx, msg)
		}
	}); err != nil {
		return err
	}

	s.logger.Info("matrix sync starting", "homeserver", s.cfg.Homeserver, "user_id", s.cfg.UserID)
	err := s.api.Sync(ctx)
	if ctx.Err() != nil {
		s.logger.Info("matrix sync stopped")
		return nil
	}
	if err == nil {
		err = errors.New("sync returned unexpectedly")
	}
	return fmt.Errorf("matrix sync failed: %w", err)
}

// convert filters and translates an m.room.message event.
func (s *Surface) convert(evt *event.Event) (chat.Message, bool) {
	if evt.Sender.String() == s.cfg.UserID {
		return chat.Message{}, false
	}
	if evt.Timestamp > 0 && time.UnixMilli(evt.Timestamp).Before(s.started) {
		return chat.Message{}, false
	}
	if !s.roomAllowed(evt.RoomID.String()) {
		s.logger.Debug("ignoring message from non-allowed room", "room", evt.RoomID)
		return chat.Message{}, false
	}
	if len(s.cfg.AllowedUsers) > 0 && !slices.Contains(s.cfg.AllowedUsers, evt.Sender.String()) {
		s.logger.Debug("ignoring message from non-allowed user", "sender", evt.Sender)
		return chat.Message{}, false
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return chat.Message{}, false
	}

	msg := chat.Message{
		ID:        evt.ID.String(),
		ChannelID: evt.RoomID.String(),
		Sender:    evt.Sender.String(),
	}
	if rel := content.RelatesTo; rel != nil && rel.Type == event.RelThread {
		msg.ThreadID = rel.EventID.String()
	}

	switch content.MsgType {
	case event.MsgText, event.MsgNotice:
		msg.Body = content.Body
	case event.MsgImage, event.MsgVideo, event.MsgFile, event.MsgAudio:
		if u := DownloadURL(s.cfg.Homeserver, string(content.URL)); u != "" {
			msg.MediaURLs = []string{u}
		}
		// Body is the file name unless a caption was supplied.
		if content.FileName != "" && content.Body != content.FileName {
			msg.Body = content.Body
		}
	default:
		return chat.Message{}, false
	}
	if msg.Body == "" && len(msg.MediaURLs) == 0 {
		return chat.Message{}, false
	}
	return msg, true
}

func (s *Surface) roomAllowed(room string) bool {
	return len(s.cfg.AllowedRooms) == 0 || slices.Contains(s.cfg.AllowedRooms, room)
}

// serverName returns the domain part of a Matrix user ID.
func serverName(userID string) string {
	if _, server, ok := strings.Cut(userID, ":"); ok {
		return server
	}
	return userID
}
