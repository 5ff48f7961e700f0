// ABOUTME: Thread Registry: phone number to active chat thread, cached over the binding store
// ABOUTME: Per-phone locks serialize resolve and bind so concurrent paths cannot lose a bind

package threads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/smsrelay/internal/chat"
	"github.com/2389/smsrelay/internal/phone"
	"github.com/2389/smsrelay/internal/store"
)

type entry struct {
	ref chat.ThreadRef
	seq int64
}

// Registry maps canonical phone numbers to their active thread. The cache is
// never evicted; it holds one entry per phone number ever bound.
type Registry struct {
	store  store.BindingStore
	logger *slog.Logger

	mu    sync.Mutex // guards cache and locks
	cache map[string]entry
	locks map[string]*sync.Mutex
}

// New creates a Registry over bs. Call LoadAll before serving traffic.
func New(bs store.BindingStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  bs,
		logger: logger.With("component", "threads"),
		cache:  make(map[string]entry),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Resolve returns the active thread for a phone number. The bool is false
// when the number has never been bound.
func (r *Registry) Resolve(ctx context.Context, phoneNumber string) (chat.ThreadRef, bool, error) {
	var ref chat.ThreadRef
	var ok bool
	err := r.WithLock(phoneNumber, func(k *Key) error {
		var err error
		ref, ok, err = k.Resolve(ctx)
		return err
	})
	return ref, ok, err
}

// Bind records ref as the active thread for a phone number.
func (r *Registry) Bind(ctx context.Context, phoneNumber string, ref chat.ThreadRef, displayName string) error {
	return r.WithLock(phoneNumber, func(k *Key) error {
		return k.Bind(ctx, ref, displayName)
	})
}

// WithLock runs fn while holding the lock for one phone number, so a
// resolve-create-bind sequence is atomic relative to other callers for
// that number. fn must not call Registry methods for the same number.
func (r *Registry) WithLock(phoneNumber string, fn func(k *Key) error) error {
	canonical := phone.Canonicalize(phoneNumber)
	lock := r.keyLock(canonical)
	lock.Lock()
	defer lock.Unlock()
	return fn(&Key{r: r, phone: canonical})
}

// LoadAll fills the cache from the store's active-binding projection. Entries
// already newer in the cache are kept. It returns the number loaded.
func (r *Registry) LoadAll(ctx context.Context) (int, error) {
	bindings, err := r.store.ListActiveThreadBindings(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading thread bindings: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range bindings {
		r.storeLocked(b.PhoneNumber, entry{
			ref: chat.ThreadRef{ChannelID: b.ChannelID, ThreadID: b.ThreadID},
			seq: b.Seq,
		})
	}

	r.logger.Info("thread cache loaded", "bindings", len(bindings))
	return len(bindings), nil
}

// Len returns the number of cached phone numbers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// History returns every binding for a phone number, oldest first.
func (r *Registry) History(ctx context.Context, phoneNumber string) ([]*store.ThreadBinding, error) {
	return r.store.ListThreadBindings(ctx, phone.Canonicalize(phoneNumber))
}

// PhonesForThread returns the phone numbers whose active binding is ref.
func (r *Registry) PhonesForThread(ctx context.Context, ref chat.ThreadRef) ([]string, error) {
	return r.store.ListPhonesForThread(ctx, ref.ChannelID, ref.ThreadID)
}

func (r *Registry) keyLock(p string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[p]
	if !ok {
		l = &sync.Mutex{}
		r.locks[p] = l
	}
	return l
}

func (r *Registry) lookup(p string) (entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache[p]
	return e, ok
}

func (r *Registry) remember(p string, e entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeLocked(p, e)
}

// storeLocked keeps whichever entry has the higher seq.
func (r *Registry) storeLocked(p string, e entry) {
	if cur, ok := r.cache[p]; ok && cur.seq > e.seq {
		return
	}
	r.cache[p] = e
}

// Key is a handle for one phone number while its lock is held.
type Key struct {
	r     *Registry
	phone string
}

// Phone returns the canonical phone number this key is for.
func (k *Key) Phone() string { return k.phone }

// Resolve checks the cache, then the store, caching a store hit.
func (k *Key) Resolve(ctx context.Context) (chat.ThreadRef, bool, error) {
	if e, ok := k.r.lookup(k.phone); ok {
		return e.ref, true, nil
	}

	b, err := k.r.store.GetActiveThreadBinding(ctx, k.phone)
	if errors.Is(err, store.ErrNotFound) {
		return chat.ThreadRef{}, false, nil
	}
	if err != nil {
		return chat.ThreadRef{}, false, fmt.Errorf("resolving thread for %s: %w", k.phone, err)
	}

	e := entry{ref: chat.ThreadRef{ChannelID: b.ChannelID, ThreadID: b.ThreadID}, seq: b.Seq}
	k.r.remember(k.phone, e)
	return e.ref, true, nil
}

// Bind writes the binding to the store and then to the cache. A failed store
// write leaves the cache untouched.
func (k *Key) Bind(ctx context.Context, ref chat.ThreadRef, displayName string) error {
	b := &store.ThreadBinding{
		PhoneNumber: k.phone,
		ChannelID:   ref.ChannelID,
		ThreadID:    ref.ThreadID,
		DisplayName: displayName,
	}
	if err := k.r.store.CreateThreadBinding(ctx, b); err != nil {
		return fmt.Errorf("binding thread for %s: %w", k.phone, err)
	}

	k.r.remember(k.phone, entry{ref: ref, seq: b.Seq})
	k.r.logger.Debug("thread bound", "phone", k.phone, "thread", ref.String())
	return nil
}
