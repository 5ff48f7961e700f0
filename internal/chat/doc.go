// Package chat defines the chat workspace surface the relay posts into.
//
// A Surface enumerates channels as a Snapshot, creates threads, posts
// markdown text, and reacts to messages. Channel discovery runs over a
// Snapshot so it can be tested without a live connection. Fake is an
// in-memory Surface used by tests across the module.
package chat
