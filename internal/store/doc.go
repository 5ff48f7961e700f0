// Package store provides persistent storage for the relay using SQLite.
//
// # Architecture
//
// The store package splits persistence into three narrow interfaces so each
// consumer depends only on what it uses:
//
//   - Directory: contacts, groups, and group membership
//   - BindingStore: the append-only phone number to thread history
//   - BroadcastLog: completed outbound sends with per-recipient outcomes
//
// Store composes all three. SQLiteStore implements Store on modernc.org/sqlite
// (pure Go, no cgo). MockStore is an in-memory implementation for tests.
//
// # Data Models
//
//   - Contact: display name plus a unique canonical phone number
//   - Group: uniquely named set of contacts (names compare ignoring ASCII case)
//   - ThreadBinding: phone number to (channel, thread) association; the row
//     with the highest Seq for a phone number is the active binding
//   - Broadcast / Delivery: one send operation and its per-recipient results
//
// # Errors
//
// Unique constraint violations surface as ErrDuplicateContact and
// ErrDuplicateGroup. Missing rows surface as ErrNotFound. Every other
// failure is wrapped with context and returned as-is.
//
// # Cascades
//
// Deleting a contact or group removes its memberships. The schema declares
// ON DELETE CASCADE and the delete methods also remove memberships inside the
// same transaction.
//
// # Timestamps
//
// Times are stored as fixed-width UTC RFC 3339 text so they sort lexically.
package store
