// ABOUTME: Store interfaces and data types for smsrelay persistence
// ABOUTME: Defines contacts, groups, thread bindings, and the broadcast log

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateContact is returned when a contact with the same phone number already exists
var ErrDuplicateContact = errors.New("contact with this phone number already exists")

// ErrDuplicateGroup is returned when a group with the same name already exists
var ErrDuplicateGroup = errors.New("group with this name already exists")

// Contact is a person reachable by SMS. PhoneNumber is always canonical.
type Contact struct {
	ID          int64
	Name        string
	PhoneNumber string
	CreatedAt   time.Time
}

// Group is a named set of contacts used as a broadcast target.
type Group struct {
	ID          int64
	Name        string
	Description string
	MemberCount int // populated by ListGroups only
	CreatedAt   time.Time
}

// ThreadBinding associates a phone number with a chat thread.
// Bindings are append-only; the active binding for a phone number is the one
// with the highest Seq.
type ThreadBinding struct {
	Seq         int64
	PhoneNumber string
	ChannelID   string
	ThreadID    string
	DisplayName string
	CreatedAt   time.Time
}

// Broadcast status values recorded in the broadcast log.
const (
	BroadcastSent         = "sent"
	BroadcastPartial      = "partial"
	BroadcastFailed       = "failed"
	BroadcastNoRecipients = "no_recipients"
)

// Broadcast is one outbound send operation: a group broadcast or a direct message.
type Broadcast struct {
	ID         string
	GroupName  string // empty for direct messages
	Body       string
	MediaURL   string
	Status     string
	Sent       int
	Failed     int
	CreatedAt  time.Time
	FinishedAt time.Time
	Deliveries []Delivery // populated by GetBroadcast only
}

// Delivery is the outcome of sending one broadcast to one phone number.
type Delivery struct {
	PhoneNumber       string
	ProviderMessageID string
	Error             string
	CreatedAt         time.Time
}

// Directory is CRUD access to contacts, groups, and group membership.
type Directory interface {
	// CreateContact inserts c and sets c.ID. Returns ErrDuplicateContact if the
	// phone number is taken.
	CreateContact(ctx context.Context, c *Contact) error
	GetContact(ctx context.Context, id int64) (*Contact, error)
	GetContactByPhone(ctx context.Context, phoneNumber string) (*Contact, error)
	// ListContacts returns all contacts ordered by name.
	ListContacts(ctx context.Context) ([]*Contact, error)
	RenameContact(ctx context.Context, id int64, name string) error
	// DeleteContact removes the contact and all of its group memberships.
	DeleteContact(ctx context.Context, id int64) error

	// CreateGroup inserts g and sets g.ID. Names are unique ignoring ASCII case.
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, id int64) (*Group, error)
	GetGroupByName(ctx context.Context, name string) (*Group, error)
	ListGroups(ctx context.Context) ([]*Group, error)
	// DeleteGroup removes the group and all of its memberships.
	DeleteGroup(ctx context.Context, id int64) error

	// AddGroupMember is idempotent: adding an existing member is not an error.
	AddGroupMember(ctx context.Context, groupID, contactID int64) error
	// RemoveGroupMember returns ErrNotFound if the contact is not a member.
	RemoveGroupMember(ctx context.Context, groupID, contactID int64) error
	// GetGroupMembers returns members ordered by name.
	GetGroupMembers(ctx context.Context, groupID int64) ([]*Contact, error)
}

// BindingStore persists the phone number to thread history.
type BindingStore interface {
	// CreateThreadBinding appends b and sets b.Seq.
	CreateThreadBinding(ctx context.Context, b *ThreadBinding) error
	// GetActiveThreadBinding returns the most recent binding for a phone number.
	GetActiveThreadBinding(ctx context.Context, phoneNumber string) (*ThreadBinding, error)
	// ListActiveThreadBindings returns the most recent binding for every phone number.
	ListActiveThreadBindings(ctx context.Context) ([]*ThreadBinding, error)
	// ListThreadBindings returns the full history for a phone number in creation order.
	ListThreadBindings(ctx context.Context, phoneNumber string) ([]*ThreadBinding, error)
	// ListPhonesForThread returns the phone numbers whose active binding is the given thread.
	ListPhonesForThread(ctx context.Context, channelID, threadID string) ([]string, error)
}

// BroadcastLog records completed outbound sends.
type BroadcastLog interface {
	// RecordBroadcast stores b together with b.Deliveries.
	RecordBroadcast(ctx context.Context, b *Broadcast) error
	GetBroadcast(ctx context.Context, id string) (*Broadcast, error)
	// ListBroadcasts returns the newest broadcasts first, without deliveries.
	ListBroadcasts(ctx context.Context, limit int) ([]*Broadcast, error)
}

// Store is everything the relay service persists.
type Store interface {
	Directory
	BindingStore
	BroadcastLog
	Ping(ctx context.Context) error
	Close() error
}
