// Package threads implements the Thread Registry: the mapping from a phone
// number to the chat thread its messages go to.
//
// The registry is a write-through cache over store.BindingStore. Resolve
// checks the cache and falls back to the store's most recent binding. Bind
// appends a binding to the store first and updates the cache only if that
// write succeeded, so the cache never points at a thread the store does not
// know about.
//
// Every operation for one phone number runs under that number's mutex.
// WithLock exposes the lock so callers can resolve, create a thread, and bind
// without another caller interleaving. Different numbers never contend.
package threads
