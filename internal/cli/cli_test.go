// ABOUTME: Tests for the smsrelay-admin command tree
// ABOUTME: Runs commands against an in-memory store and checks text and JSON output

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/smsrelay/internal/auth"
	"github.com/2389/smsrelay/internal/store"
)

type harness struct {
	store  *store.MockStore
	opened []string
}

func newHarness() *harness {
	color.NoColor = true
	return &harness{store: store.NewMockStore()}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{Open: func(path string) (store.Store, error) {
		h.opened = append(h.opened, path)
		return h.store, nil
	}}
	cmd := newRootCommand(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", "test.db"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := h.run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "smsrelay-admin", cmd.Use)
	for _, name := range []string{"contacts", "groups", "bindings", "broadcasts", "seed", "token"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "--format", "yaml", "contacts", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestContacts(t *testing.T) {
	h := newHarness()

	out := h.mustRun(t, "contacts", "add", "  Jane   Doe", "+1 (555) 987-6543")
	assert.Contains(t, out, "Added Jane Doe (+15559876543)")
	assert.Equal(t, []string{"test.db"}, h.opened)

	_, err := h.run(t, "contacts", "add", "Jane", "+15559876543")
	assert.ErrorIs(t, err, store.ErrDuplicateContact)

	_, err = h.run(t, "contacts", "add", "Nobody", "12345")
	assert.Error(t, err)

	h.mustRun(t, "contacts", "add", "Bob Johnson", "+15555555555")

	out = h.mustRun(t, "--format", "json", "contacts", "list", "--search", "JANE")
	var found []ContactView
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	require.Len(t, found, 1)
	assert.Equal(t, "+15559876543", found[0].PhoneNumber)

	out = h.mustRun(t, "contacts", "rename", "jane doe", "Jane Q Doe")
	assert.Contains(t, out, "Renamed Jane Doe to Jane Q Doe")

	out = h.mustRun(t, "contacts", "rm", "+15555555555")
	assert.Contains(t, out, "Removed Bob Johnson")

	_, err = h.run(t, "contacts", "rm", "Bob Johnson")
	assert.ErrorIs(t, err, store.ErrNotFound)

	out = h.mustRun(t, "contacts", "list")
	assert.Contains(t, out, "Jane Q Doe")
	assert.NotContains(t, out, "Bob")
}

func TestResolveContact_Ambiguous(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	require.NoError(t, h.store.CreateContact(ctx, &store.Contact{Name: "Sam", PhoneNumber: "+15550000001"}))
	require.NoError(t, h.store.CreateContact(ctx, &store.Contact{Name: "sam", PhoneNumber: "+15550000002"}))

	_, err := resolveContact(ctx, h.store, "SAM")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "+15550000001")

	c, err := resolveContact(ctx, h.store, "+1 555 000 0002")
	require.NoError(t, err)
	assert.Equal(t, "sam", c.Name)
}

func TestGroups(t *testing.T) {
	h := newHarness()
	h.mustRun(t, "seed")

	_, err := h.run(t, "groups", "create", "two words")
	assert.Error(t, err)
	_, err = h.run(t, "groups", "create", "friends")
	assert.ErrorIs(t, err, store.ErrDuplicateGroup)

	out := h.mustRun(t, "groups", "add", "friends", "Jane Doe", "+15551234567")
	assert.Contains(t, out, "Added Jane Doe, John Smith to Friends")

	out = h.mustRun(t, "groups", "show", "FRIENDS")
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "group_show", []byte(out))

	out = h.mustRun(t, "--format", "json", "groups", "list")
	var groups []GroupView
	require.NoError(t, json.Unmarshal([]byte(out), &groups))
	require.Len(t, groups, 3)
	counts := map[string]int{}
	for _, gv := range groups {
		counts[gv.Name] = gv.MemberCount
	}
	assert.Equal(t, map[string]int{"Family": 0, "Friends": 2, "Work": 0}, counts)

	h.mustRun(t, "groups", "remove", "Friends", "Jane Doe")
	_, err = h.run(t, "groups", "remove", "Friends", "Jane Doe")
	assert.ErrorIs(t, err, store.ErrNotFound)

	h.mustRun(t, "groups", "create", "Hikers", "-d", "weekend trips")
	h.mustRun(t, "groups", "rm", "hikers")
	_, err = h.run(t, "groups", "show", "Hikers")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSeed_Idempotent(t *testing.T) {
	h := newHarness()

	out := h.mustRun(t, "--format", "json", "seed")
	var first SeedResult
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.Equal(t, SeedResult{Contacts: 3, Groups: 3}, first)

	out = h.mustRun(t, "--format", "json", "seed")
	var second SeedResult
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.Equal(t, SeedResult{}, second)
}

func TestBindings(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	require.NoError(t, h.store.CreateThreadBinding(ctx, &store.ThreadBinding{PhoneNumber: "+15551234567", ChannelID: "c1", ThreadID: "t1"}))
	require.NoError(t, h.store.CreateThreadBinding(ctx, &store.ThreadBinding{PhoneNumber: "+15551234567", ChannelID: "c1", ThreadID: "t2", DisplayName: "John"}))
	require.NoError(t, h.store.CreateThreadBinding(ctx, &store.ThreadBinding{PhoneNumber: "+15559876543", ChannelID: "c2", ThreadID: "t3"}))

	out := h.mustRun(t, "--format", "json", "bindings")
	var active []BindingView
	require.NoError(t, json.Unmarshal([]byte(out), &active))
	assert.Len(t, active, 2)

	out = h.mustRun(t, "--format", "json", "bindings", "+1 555 123 4567")
	var history []BindingView
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history, 2)
	assert.Equal(t, "t1", history[0].ThreadID)
	assert.Equal(t, "t2", history[1].ThreadID)

	_, err := h.run(t, "bindings", "not-a-number")
	assert.Error(t, err)
}

func TestBroadcasts(t *testing.T) {
	h := newHarness()
	now := time.Now().UTC()
	require.NoError(t, h.store.RecordBroadcast(context.Background(), &store.Broadcast{
		ID: "b-1", GroupName: "Friends", Body: "party", Status: store.BroadcastPartial,
		Sent: 1, Failed: 1, CreatedAt: now, FinishedAt: now,
		Deliveries: []store.Delivery{
			{PhoneNumber: "+15551234567", ProviderMessageID: "SM1"},
			{PhoneNumber: "+15559876543", Error: "carrier rejected"},
		},
	}))

	out := h.mustRun(t, "broadcasts", "list")
	assert.Contains(t, out, "b-1")
	assert.Contains(t, out, "1/2")

	out = h.mustRun(t, "broadcasts", "show", "b-1")
	assert.Contains(t, out, "SM1")
	assert.Contains(t, out, "error: carrier rejected")

	_, err := h.run(t, "broadcasts", "show", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = h.run(t, "broadcasts", "list", "--limit", "0")
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	const secret = "admin-test-secret-that-is-32-bytes!"
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("auth:\n  jwt_secret: \""+secret+"\"\n"), 0600))

	cmd := newRootCommand(&RootOptions{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "token", "alice", "--ttl", "1h"})
	require.NoError(t, cmd.Execute())

	v, err := auth.NewJWTVerifier([]byte(secret))
	require.NoError(t, err)
	operator, err := v.Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", operator)
}

func TestMintToken(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	view, err := mintToken("admin-test-secret-that-is-32-bytes!", "bob", time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, "bob", view.Operator)
	assert.Equal(t, "2026-01-02T04:04:05Z", view.ExpiresAt)

	view, err = mintToken("admin-test-secret-that-is-32-bytes!", "bob", 0, now)
	require.NoError(t, err)
	assert.Empty(t, view.ExpiresAt)

	_, err = mintToken("", "bob", time.Hour, now)
	assert.Error(t, err)
	_, err = mintToken("short", "bob", time.Hour, now)
	assert.ErrorIs(t, err, auth.ErrWeakSecret)
}
