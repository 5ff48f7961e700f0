// ABOUTME: Chat workspace surface contract and the snapshot types discovery runs over
// ABOUTME: Implemented by the Matrix adapter and by Fake in tests

package chat

import (
	"context"
	"errors"
)

// ErrUnknownChannel is returned when a channel ID is not part of the workspace.
var ErrUnknownChannel = errors.New("unknown channel")

// Channel is one conversation space the relay can post into.
type Channel struct {
	ID   string
	Name string
	// TextCapable is false for voice rooms, categories, and spaces.
	TextCapable bool
}

// Workspace groups channels the relay participates in.
type Workspace struct {
	ID       string
	Name     string
	Channels []Channel
}

// Snapshot is a point-in-time listing of every workspace and channel.
// Order is significant: discovery scans it front to back.
type Snapshot []Workspace

// ThreadRef addresses a thread inside a channel. An empty ThreadID addresses
// the channel's main timeline.
type ThreadRef struct {
	ChannelID string
	ThreadID  string
}

// IsZero reports whether the reference is unset.
func (r ThreadRef) IsZero() bool {
	return r.ChannelID == "" && r.ThreadID == ""
}

// String renders the reference as "channel/thread".
func (r ThreadRef) String() string {
	if r.ThreadID == "" {
		return r.ChannelID
	}
	return r.ChannelID + "/" + r.ThreadID
}

// Message is a chat-origin event delivered to the relay.
type Message struct {
	ID        string
	ChannelID string
	ThreadID  string // empty when posted in the main timeline
	Sender    string
	Body      string
	// MediaURLs are fetchable URLs for attachments on the message.
	MediaURLs []string
}

// Thread returns the thread the message was posted in.
func (m Message) Thread() ThreadRef {
	return ThreadRef{ChannelID: m.ChannelID, ThreadID: m.ThreadID}
}

// Surface is what the relay needs from a chat workspace.
type Surface interface {
	// Snapshot enumerates workspaces and channels in a stable order.
	Snapshot(ctx context.Context) (Snapshot, error)
	// CreateThread starts a new thread in channelID titled title.
	CreateThread(ctx context.Context, channelID, title string) (ThreadRef, error)
	// Post sends markdown text to a thread or channel and returns the message ID.
	Post(ctx context.Context, to ThreadRef, text string) (string, error)
	// React adds an emoji reaction to a message.
	React(ctx context.Context, channelID, messageID, emoji string) error
}

// Handler consumes chat-origin messages.
type Handler func(ctx context.Context, msg Message)
