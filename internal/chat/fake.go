// ABOUTME: In-memory chat Surface for tests
// ABOUTME: Records created threads, posts, and reactions; failures are injectable

package chat

import (
	"context"
	"fmt"
	"sync"
)

// Post is one message recorded by Fake.
type Post struct {
	ID   string
	To   ThreadRef
	Text string
}

// Reaction is one reaction recorded by Fake.
type Reaction struct {
	ChannelID string
	MessageID string
	Emoji     string
}

// Fake is an in-memory Surface. The zero value is not usable; call NewFake.
type Fake struct {
	mu        sync.Mutex
	snapshot  Snapshot
	threads   []ThreadRef
	titles    map[ThreadRef]string
	posts     []Post
	reactions []Reaction
	seq       int

	// SnapshotErr, CreateErr, and PostErr make the matching call fail.
	SnapshotErr error
	CreateErr   error
	PostErr     error
}

var _ Surface = (*Fake)(nil)

// NewFake creates a Fake exposing snap.
func NewFake(snap Snapshot) *Fake {
	return &Fake{snapshot: snap, titles: make(map[ThreadRef]string)}
}

// Snapshot returns the configured snapshot.
func (f *Fake) Snapshot(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SnapshotErr != nil {
		return nil, f.SnapshotErr
	}
	return f.snapshot, nil
}

// CreateThread records a new thread with a generated ID.
func (f *Fake) CreateThread(ctx context.Context, channelID, title string) (ThreadRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return ThreadRef{}, f.CreateErr
	}
	if !f.hasChannelLocked(channelID) {
		return ThreadRef{}, fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
	}
	f.seq++
	ref := ThreadRef{ChannelID: channelID, ThreadID: fmt.Sprintf("thread-%d", f.seq)}
	f.threads = append(f.threads, ref)
	f.titles[ref] = title
	return ref, nil
}

// Post records a message.
func (f *Fake) Post(ctx context.Context, to ThreadRef, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PostErr != nil {
		return "", f.PostErr
	}
	f.seq++
	id := fmt.Sprintf("msg-%d", f.seq)
	f.posts = append(f.posts, Post{ID: id, To: to, Text: text})
	return id, nil
}

// React records a reaction.
func (f *Fake) React(ctx context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, Reaction{ChannelID: channelID, MessageID: messageID, Emoji: emoji})
	return nil
}

// Threads returns created threads in creation order.
func (f *Fake) Threads() []ThreadRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ThreadRef(nil), f.threads...)
}

// Title returns the title a thread was created with.
func (f *Fake) Title(ref ThreadRef) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.titles[ref]
}

// Posts returns recorded posts in order.
func (f *Fake) Posts() []Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Post(nil), f.posts...)
}

// PostsTo returns the text of posts sent to ref.
func (f *Fake) PostsTo(ref ThreadRef) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.posts {
		if p.To == ref {
			out = append(out, p.Text)
		}
	}
	return out
}

// Reactions returns recorded reactions in order.
func (f *Fake) Reactions() []Reaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Reaction(nil), f.reactions...)
}

func (f *Fake) hasChannelLocked(id string) bool {
	for _, ws := range f.snapshot {
		for _, ch := range ws.Channels {
			if ch.ID == id {
				return true
			}
		}
	}
	return false
}
