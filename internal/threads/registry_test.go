// ABOUTME: Tests for the Thread Registry cache, store sequencing, and per-phone locking
// ABOUTME: Uses store.MockStore and a SQLite store for the reload scenario

package threads

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/smsrelay/internal/chat"
	"github.com/2389/smsrelay/internal/store"
)

func ref(thread string) chat.ThreadRef {
	return chat.ThreadRef{ChannelID: "!sms", ThreadID: thread}
}

func TestRegistry_BindThenResolve(t *testing.T) {
	ctx := context.Background()
	r := New(store.NewMockStore(), nil)

	_, ok, err := r.Resolve(ctx, "+15551111111")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Bind(ctx, "+15551111111", ref("t1"), "Alice"))

	got, ok, err := r.Resolve(ctx, "+1 (555) 111-1111")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ref("t1"), got)
}

func TestRegistry_SupersedeKeepsHistory(t *testing.T) {
	ctx := context.Background()
	r := New(store.NewMockStore(), nil)
	p := "+15551111111"

	require.NoError(t, r.Bind(ctx, p, ref("t1"), ""))
	require.NoError(t, r.Bind(ctx, p, ref("t2"), ""))

	got, ok, err := r.Resolve(ctx, p)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ref("t2"), got)

	history, err := r.History(ctx, p)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "t1", history[0].ThreadID)
	assert.Equal(t, "t2", history[1].ThreadID)
}

func TestRegistry_ResolveReadsThroughToStore(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMockStore()
	require.NoError(t, ms.CreateThreadBinding(ctx, &store.ThreadBinding{
		PhoneNumber: "+15552222222", ChannelID: "!sms", ThreadID: "t9",
	}))

	r := New(ms, nil)
	assert.Equal(t, 0, r.Len())

	got, ok, err := r.Resolve(ctx, "+15552222222")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ref("t9"), got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_FailedStoreWriteLeavesCache(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMockStore()
	r := New(ms, nil)
	p := "+15551111111"

	require.NoError(t, r.Bind(ctx, p, ref("t1"), ""))

	ms.BindingErr = errors.New("disk full")
	err := r.Bind(ctx, p, ref("t2"), "")
	require.Error(t, err)

	got, _, err := r.Resolve(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, ref("t1"), got)
}

func TestRegistry_LoadAllMatchesStore(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "relay.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	first := New(s, nil)
	phones := []string{"+15551111111", "+15552222222", "+15553333333"}
	latest := map[string]chat.ThreadRef{}
	for round := range 3 {
		for i, p := range phones {
			if round > 0 && i == round {
				continue
			}
			r := ref(fmt.Sprintf("t-%d-%d", round, i))
			require.NoError(t, first.Bind(ctx, p, r, ""))
			latest[p] = r
		}
	}

	// A fresh registry simulates a process restart
	second := New(s, nil)
	n, err := second.LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(phones), n)

	for _, p := range phones {
		got, ok, err := second.Resolve(ctx, p)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, latest[p], got, "phone %s", p)
	}
}

func TestRegistry_LoadAllDoesNotRegressNewerBind(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMockStore()
	require.NoError(t, ms.CreateThreadBinding(ctx, &store.ThreadBinding{
		PhoneNumber: "+15551111111", ChannelID: "!sms", ThreadID: "old",
	}))

	r := New(ms, nil)
	require.NoError(t, r.Bind(ctx, "+15551111111", ref("new"), ""))

	// Reloading after the bind must not bring back the older binding
	_, err := r.LoadAll(ctx)
	require.NoError(t, err)

	got, _, err := r.Resolve(ctx, "+15551111111")
	require.NoError(t, err)
	assert.Equal(t, ref("new"), got)
}

func TestRegistry_WithLockSerializesSamePhone(t *testing.T) {
	ctx := context.Background()
	r := New(store.NewMockStore(), nil)

	var mu sync.Mutex
	created := 0

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.WithLock("+15551111111", func(k *Key) error {
				_, ok, err := k.Resolve(ctx)
				if err != nil || ok {
					return err
				}
				mu.Lock()
				created++
				n := created
				mu.Unlock()
				return k.Bind(ctx, ref(fmt.Sprintf("t%d", n)), "")
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	got, _, err := r.Resolve(ctx, "+15551111111")
	require.NoError(t, err)
	assert.Equal(t, ref("t1"), got)
}

func TestRegistry_PhonesForThread(t *testing.T) {
	ctx := context.Background()
	r := New(store.NewMockStore(), nil)

	require.NoError(t, r.Bind(ctx, "+15551111111", ref("shared"), ""))
	require.NoError(t, r.Bind(ctx, "+15552222222", ref("shared"), ""))
	require.NoError(t, r.Bind(ctx, "+15553333333", ref("other"), ""))

	phones, err := r.PhonesForThread(ctx, ref("shared"))
	require.NoError(t, err)
	assert.Equal(t, []string{"+15551111111", "+15552222222"}, phones)
}
