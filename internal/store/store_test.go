// ABOUTME: Shared test helpers and cross-implementation tests for the Store interface
// ABOUTME: Runs the same directory and binding scenarios against SQLiteStore and MockStore

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// implementations returns every Store under test.
func implementations(t *testing.T) map[string]Store {
	return map[string]Store{
		"sqlite": setupTestStore(t),
		"mock":   NewMockStore(),
	}
}

func mustContact(t *testing.T, s Store, name, phone string) *Contact {
	t.Helper()
	c := &Contact{Name: name, PhoneNumber: phone}
	require.NoError(t, s.CreateContact(context.Background(), c))
	return c
}

func mustGroup(t *testing.T, s Store, name string) *Group {
	t.Helper()
	g := &Group{Name: name}
	require.NoError(t, s.CreateGroup(context.Background(), g))
	return g
}

func TestStore_DuplicateContactRejected(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mustContact(t, s, "Jane", "+15559876543")

			err := s.CreateContact(ctx, &Contact{Name: "Jane", PhoneNumber: "+15559876543"})
			require.ErrorIs(t, err, ErrDuplicateContact)

			all, err := s.ListContacts(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestStore_DuplicateGroupRejected(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mustGroup(t, s, "Friends")

			err := s.CreateGroup(ctx, &Group{Name: "friends"})
			require.ErrorIs(t, err, ErrDuplicateGroup)
		})
	}
}

func TestStore_GroupNamesFoldASCIIOnly(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mustGroup(t, s, "Été")
			require.NoError(t, s.CreateGroup(ctx, &Group{Name: "ÉTÉ"}))

			g, err := s.GetGroupByName(ctx, "été")
			require.ErrorIs(t, err, ErrNotFound)
			assert.Nil(t, g)

			g, err = s.GetGroupByName(ctx, "ÉTé")
			require.NoError(t, err)
			assert.Equal(t, "Été", g.Name)

			mustGroup(t, s, "Friends")
			g, err = s.GetGroupByName(ctx, "FRIENDS")
			require.NoError(t, err)
			assert.Equal(t, "Friends", g.Name)
		})
	}
}

func TestStore_DeleteContactCascadesMembership(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := mustGroup(t, s, "Family")
			a := mustContact(t, s, "Alice", "+15551111111")
			b := mustContact(t, s, "Bob", "+15552222222")
			require.NoError(t, s.AddGroupMember(ctx, g.ID, a.ID))
			require.NoError(t, s.AddGroupMember(ctx, g.ID, b.ID))

			require.NoError(t, s.DeleteContact(ctx, a.ID))

			members, err := s.GetGroupMembers(ctx, g.ID)
			require.NoError(t, err)
			require.Len(t, members, 1)
			assert.Equal(t, "Bob", members[0].Name)

			_, err = s.GetContact(ctx, a.ID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_DeleteGroupCascadesMembership(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := mustGroup(t, s, "Work")
			c := mustContact(t, s, "Carol", "+15553333333")
			require.NoError(t, s.AddGroupMember(ctx, g.ID, c.ID))

			require.NoError(t, s.DeleteGroup(ctx, g.ID))

			_, err := s.GetGroupByName(ctx, "Work")
			assert.ErrorIs(t, err, ErrNotFound)

			// Recreating the group must start with no members
			g2 := mustGroup(t, s, "Work")
			members, err := s.GetGroupMembers(ctx, g2.ID)
			require.NoError(t, err)
			assert.Empty(t, members)

			// The contact itself survives
			_, err = s.GetContact(ctx, c.ID)
			assert.NoError(t, err)
		})
	}
}

func TestStore_AddGroupMemberIdempotent(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := mustGroup(t, s, "Friends")
			c := mustContact(t, s, "Dan", "+15554444444")

			require.NoError(t, s.AddGroupMember(ctx, g.ID, c.ID))
			require.NoError(t, s.AddGroupMember(ctx, g.ID, c.ID))

			members, err := s.GetGroupMembers(ctx, g.ID)
			require.NoError(t, err)
			assert.Len(t, members, 1)

			groups, err := s.ListGroups(ctx)
			require.NoError(t, err)
			require.Len(t, groups, 1)
			assert.Equal(t, 1, groups[0].MemberCount)
		})
	}
}

func TestStore_MembershipNotFound(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := mustGroup(t, s, "Friends")
			c := mustContact(t, s, "Eve", "+15555555555")

			assert.ErrorIs(t, s.AddGroupMember(ctx, g.ID, 999), ErrNotFound)
			assert.ErrorIs(t, s.AddGroupMember(ctx, 999, c.ID), ErrNotFound)
			assert.ErrorIs(t, s.RemoveGroupMember(ctx, g.ID, c.ID), ErrNotFound)
		})
	}
}

func TestStore_RenameContact(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := mustContact(t, s, "Jon", "+15556666666")

			require.NoError(t, s.RenameContact(ctx, c.ID, "John"))
			got, err := s.GetContactByPhone(ctx, "+15556666666")
			require.NoError(t, err)
			assert.Equal(t, "John", got.Name)

			assert.ErrorIs(t, s.RenameContact(ctx, 999, "Nobody"), ErrNotFound)
		})
	}
}

func TestStore_ListContactsOrderedByName(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			mustContact(t, s, "charlie", "+15550000003")
			mustContact(t, s, "Alice", "+15550000001")
			mustContact(t, s, "bob", "+15550000002")

			all, err := s.ListContacts(context.Background())
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "Alice", all[0].Name)
			assert.Equal(t, "bob", all[1].Name)
			assert.Equal(t, "charlie", all[2].Name)
		})
	}
}

func TestStore_ThreadBindingHistory(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := "+15551111111"

			b1 := &ThreadBinding{PhoneNumber: p, ChannelID: "!room", ThreadID: "$t1"}
			b2 := &ThreadBinding{PhoneNumber: p, ChannelID: "!room", ThreadID: "$t2"}
			require.NoError(t, s.CreateThreadBinding(ctx, b1))
			require.NoError(t, s.CreateThreadBinding(ctx, b2))
			assert.Greater(t, b2.Seq, b1.Seq)

			active, err := s.GetActiveThreadBinding(ctx, p)
			require.NoError(t, err)
			assert.Equal(t, "$t2", active.ThreadID)

			history, err := s.ListThreadBindings(ctx, p)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, "$t1", history[0].ThreadID)
			assert.Equal(t, "$t2", history[1].ThreadID)

			_, err = s.GetActiveThreadBinding(ctx, "+15559999999")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ActiveBindingsProjection(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			binds := []ThreadBinding{
				{PhoneNumber: "+15551111111", ChannelID: "!a", ThreadID: "$1"},
				{PhoneNumber: "+15552222222", ChannelID: "!a", ThreadID: "$2"},
				{PhoneNumber: "+15551111111", ChannelID: "!b", ThreadID: "$3"},
				{PhoneNumber: "+15553333333", ChannelID: "!b", ThreadID: "$3"},
			}
			for i := range binds {
				require.NoError(t, s.CreateThreadBinding(ctx, &binds[i]))
			}

			active, err := s.ListActiveThreadBindings(ctx)
			require.NoError(t, err)
			require.Len(t, active, 3)

			got := map[string]string{}
			for _, b := range active {
				got[b.PhoneNumber] = b.ThreadID
			}
			assert.Equal(t, map[string]string{
				"+15551111111": "$3",
				"+15552222222": "$2",
				"+15553333333": "$3",
			}, got)

			phones, err := s.ListPhonesForThread(ctx, "!b", "$3")
			require.NoError(t, err)
			assert.Equal(t, []string{"+15551111111", "+15553333333"}, phones)

			// +15551111111 moved off $1, so nobody is on it any more
			phones, err = s.ListPhonesForThread(ctx, "!a", "$1")
			require.NoError(t, err)
			assert.Empty(t, phones)
		})
	}
}

func TestStore_BroadcastLog(t *testing.T) {
	for name, s := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := &Broadcast{
				ID:        "b-1",
				GroupName: "Friends",
				Body:      "party at 8",
				Status:    BroadcastPartial,
				Sent:      1,
				Failed:    1,
				Deliveries: []Delivery{
					{PhoneNumber: "+15551111111", ProviderMessageID: "SM1"},
					{PhoneNumber: "+15552222222", Error: "carrier rejected"},
				},
			}
			second := &Broadcast{ID: "b-2", Body: "hi", Status: BroadcastSent, Sent: 1}
			require.NoError(t, s.RecordBroadcast(ctx, first))
			require.NoError(t, s.RecordBroadcast(ctx, second))

			got, err := s.GetBroadcast(ctx, "b-1")
			require.NoError(t, err)
			assert.Equal(t, "Friends", got.GroupName)
			require.Len(t, got.Deliveries, 2)
			assert.Equal(t, "SM1", got.Deliveries[0].ProviderMessageID)
			assert.Equal(t, "carrier rejected", got.Deliveries[1].Error)

			recent, err := s.ListBroadcasts(ctx, 1)
			require.NoError(t, err)
			require.Len(t, recent, 1)
			assert.Equal(t, "b-2", recent[0].ID)
			assert.Empty(t, recent[0].GroupName)

			_, err = s.GetBroadcast(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSearchContacts(t *testing.T) {
	s := NewMockStore()
	mustContact(t, s, "José Núñez", "+15551230000")
	mustContact(t, s, "Jane Doe", "+15559876543")
	mustContact(t, s, "Bob Johnson", "+15555555555")

	ctx := context.Background()

	got, err := SearchContacts(ctx, s, "JOSÉ")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "José Núñez", got[0].Name)

	got, err = SearchContacts(ctx, s, "9876")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Jane Doe", got[0].Name)

	got, err = SearchContacts(ctx, s, "jo")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = SearchContacts(ctx, s, "   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindContactsByName(t *testing.T) {
	s := NewMockStore()
	mustContact(t, s, "Jane", "+15559876543")
	mustContact(t, s, "Janet", "+15559876544")

	got, err := FindContactsByName(context.Background(), s, "jane")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "+15559876543", got[0].PhoneNumber)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Jane Doe", NormalizeName("  Jane   Doe "))
	// "e" + combining acute composes to a single rune
	assert.Equal(t, "Jos\u00e9", NormalizeName("Jose\u0301"))
}
