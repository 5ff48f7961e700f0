// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows relay, command, and gateway tests to run without SQLite

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
// Setting BindingErr makes CreateThreadBinding fail, which lets callers
// exercise store-failure paths.
type MockStore struct {
	mu          sync.RWMutex
	contacts    map[int64]*Contact
	groups      map[int64]*Group
	members     map[int64]map[int64]bool // group ID -> contact IDs
	bindings    []*ThreadBinding         // append-only, in seq order
	broadcasts  []*Broadcast             // in insertion order
	nextContact int64
	nextGroup   int64

	BindingErr error
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		contacts: make(map[int64]*Contact),
		groups:   make(map[int64]*Group),
		members:  make(map[int64]map[int64]bool),
	}
}

// CreateContact stores a new contact.
func (m *MockStore) CreateContact(ctx context.Context, c *Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.contacts {
		if existing.PhoneNumber == c.PhoneNumber {
			return ErrDuplicateContact
		}
	}

	m.nextContact++
	c.ID = m.nextContact
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := *c
	m.contacts[cp.ID] = &cp
	return nil
}

// GetContact retrieves a contact by ID.
func (m *MockStore) GetContact(ctx context.Context, id int64) (*Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// GetContactByPhone retrieves a contact by phone number.
func (m *MockStore) GetContactByPhone(ctx context.Context, phoneNumber string) (*Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.contacts {
		if c.PhoneNumber == phoneNumber {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListContacts returns all contacts ordered by name.
func (m *MockStore) ListContacts(ctx context.Context) ([]*Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		cp := *c
		out = append(out, &cp)
	}
	sortContacts(out)
	return out, nil
}

// RenameContact changes a contact's name.
func (m *MockStore) RenameContact(ctx context.Context, id int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contacts[id]
	if !ok {
		return ErrNotFound
	}
	c.Name = name
	return nil
}

// DeleteContact removes a contact and its memberships.
func (m *MockStore) DeleteContact(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contacts[id]; !ok {
		return ErrNotFound
	}
	delete(m.contacts, id)
	for _, set := range m.members {
		delete(set, id)
	}
	return nil
}

// CreateGroup stores a new group.
func (m *MockStore) CreateGroup(ctx context.Context, g *Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.groups {
		if foldASCII(existing.Name) == foldASCII(g.Name) {
			return ErrDuplicateGroup
		}
	}

	m.nextGroup++
	g.ID = m.nextGroup
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	cp := *g
	m.groups[cp.ID] = &cp
	m.members[cp.ID] = make(map[int64]bool)
	return nil
}

// GetGroup retrieves a group by ID.
func (m *MockStore) GetGroup(ctx context.Context, id int64) (*Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g
	return &cp, nil
}

// GetGroupByName retrieves a group by name, ignoring case.
func (m *MockStore) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, g := range m.groups {
		if foldASCII(g.Name) == foldASCII(name) {
			cp := *g
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListGroups returns all groups ordered by name, with member counts.
func (m *MockStore) ListGroups(ctx context.Context) ([]*Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Group, 0, len(m.groups))
	for _, g := range m.groups {
		cp := *g
		cp.MemberCount = len(m.members[g.ID])
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := foldASCII(out[i].Name), foldASCII(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteGroup removes a group and its memberships.
func (m *MockStore) DeleteGroup(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[id]; !ok {
		return ErrNotFound
	}
	delete(m.groups, id)
	delete(m.members, id)
	return nil
}

// AddGroupMember adds a contact to a group; repeated adds are no-ops.
func (m *MockStore) AddGroupMember(ctx context.Context, groupID, contactID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.groups[groupID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.contacts[contactID]; !ok {
		return ErrNotFound
	}
	m.members[groupID][contactID] = true
	return nil
}

// RemoveGroupMember removes a contact from a group.
func (m *MockStore) RemoveGroupMember(ctx context.Context, groupID, contactID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.members[groupID]
	if !ok || !set[contactID] {
		return ErrNotFound
	}
	delete(set, contactID)
	return nil
}

// GetGroupMembers returns a group's contacts ordered by name.
func (m *MockStore) GetGroupMembers(ctx context.Context, groupID int64) ([]*Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*Contact{}
	for id := range m.members[groupID] {
		cp := *m.contacts[id]
		out = append(out, &cp)
	}
	sortContacts(out)
	return out, nil
}

// CreateThreadBinding appends a binding.
func (m *MockStore) CreateThreadBinding(ctx context.Context, b *ThreadBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.BindingErr != nil {
		return m.BindingErr
	}

	b.Seq = int64(len(m.bindings) + 1)
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	cp := *b
	m.bindings = append(m.bindings, &cp)
	return nil
}

// GetActiveThreadBinding returns the latest binding for a phone number.
func (m *MockStore) GetActiveThreadBinding(ctx context.Context, phoneNumber string) (*ThreadBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if b := m.activeLocked(phoneNumber); b != nil {
		cp := *b
		return &cp, nil
	}
	return nil, ErrNotFound
}

// ListActiveThreadBindings returns the latest binding per phone number.
func (m *MockStore) ListActiveThreadBindings(ctx context.Context) ([]*ThreadBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[string]*ThreadBinding)
	for _, b := range m.bindings {
		latest[b.PhoneNumber] = b
	}

	out := make([]*ThreadBinding, 0, len(latest))
	for _, b := range latest {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhoneNumber < out[j].PhoneNumber })
	return out, nil
}

// ListThreadBindings returns a phone number's binding history, oldest first.
func (m *MockStore) ListThreadBindings(ctx context.Context, phoneNumber string) ([]*ThreadBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ThreadBinding
	for _, b := range m.bindings {
		if b.PhoneNumber == phoneNumber {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListPhonesForThread returns phone numbers whose active binding is the given thread.
func (m *MockStore) ListPhonesForThread(ctx context.Context, channelID, threadID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, b := range m.bindings {
		if seen[b.PhoneNumber] {
			continue
		}
		seen[b.PhoneNumber] = true
		active := m.activeLocked(b.PhoneNumber)
		if active.ChannelID == channelID && active.ThreadID == threadID {
			out = append(out, b.PhoneNumber)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockStore) activeLocked(phoneNumber string) *ThreadBinding {
	for i := len(m.bindings) - 1; i >= 0; i-- {
		if m.bindings[i].PhoneNumber == phoneNumber {
			return m.bindings[i]
		}
	}
	return nil
}

// RecordBroadcast stores a completed broadcast.
func (m *MockStore) RecordBroadcast(ctx context.Context, b *Broadcast) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *b
	cp.Deliveries = append([]Delivery(nil), b.Deliveries...)
	m.broadcasts = append(m.broadcasts, &cp)
	return nil
}

// GetBroadcast returns a broadcast with deliveries.
func (m *MockStore) GetBroadcast(ctx context.Context, id string) (*Broadcast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.broadcasts {
		if b.ID == id {
			cp := *b
			cp.Deliveries = append([]Delivery(nil), b.Deliveries...)
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListBroadcasts returns the newest broadcasts first, without deliveries.
func (m *MockStore) ListBroadcasts(ctx context.Context, limit int) ([]*Broadcast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = defaultBroadcastLimit
	}
	var out []*Broadcast
	for i := len(m.broadcasts) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *m.broadcasts[i]
		cp.Deliveries = nil
		out = append(out, &cp)
	}
	return out, nil
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

func sortContacts(cs []*Contact) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := foldASCII(cs[i].Name), foldASCII(cs[j].Name)
		if a != b {
			return a < b
		}
		return cs[i].ID < cs[j].ID
	})
}

// foldASCII lowercases A-Z only, matching SQLite's NOCASE collation.
func foldASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}
