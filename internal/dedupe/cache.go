// ABOUTME: Bounded TTL set of inbound event keys seen by the relay.
// ABOUTME: Webhook retries and Matrix sync replays are dropped before they reach the engine.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Default sizing used when a caller passes zero values to New.
const (
	DefaultTTL     = 10 * time.Minute
	DefaultMaxSize = 10000
)

type entry struct {
	key    string
	seenAt time.Time
}

// Cache remembers event keys for a fixed window. Keys are stored oldest
// first so both expiry and capacity eviction pop from the front.
type Cache struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now. Tests use it to step through expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New returns a cache with the given window and capacity.
// Call Run to start periodic sweeping; without it expired keys are
// still ignored on lookup and evicted when capacity is reached.
func New(ttl time.Duration, maxSize int, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Cache{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key joins an event source and its provider id, e.g. Key("twilio", "SM123").
func Key(source, id string) string {
	return source + ":" + id
}

// Seen reports whether key was recorded within the window and records it
// if not. A true result means the caller should drop the event.
func (c *Cache) Seen(key string) bool {
	if key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.index[key]; ok {
		if now.Sub(el.Value.(*entry).seenAt) < c.ttl {
			return true
		}
		c.removeLocked(el)
	}

	for c.order.Len() >= c.maxSize {
		c.removeLocked(c.order.Front())
	}
	c.index[key] = c.order.PushBack(&entry{key: key, seenAt: now})
	return false
}

// Forget removes key so a redelivery of the event is processed again.
// Callers use it when handling failed in a way the sender should retry.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.removeLocked(el)
	}
}

// Contains reports whether key is live without recording it.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if !ok {
		return false
	}
	return c.now().Sub(el.Value.(*entry).seenAt) < c.ttl
}

// Len returns the number of stored keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Sweep drops expired keys and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if now.Sub(el.Value.(*entry).seenAt) < c.ttl {
			break
		}
		c.removeLocked(el)
		removed++
	}
	return removed
}

// Run sweeps every half window until Close is called or done is closed.
func (c *Cache) Run(done <-chan struct{}) {
	ticker := time.NewTicker(c.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-done:
			return
		case <-c.stop:
			return
		}
	}
}

// Close stops Run. Safe to call more than once.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) removeLocked(el *list.Element) {
	delete(c.index, el.Value.(*entry).key)
	c.order.Remove(el)
}
