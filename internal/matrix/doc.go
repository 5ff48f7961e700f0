// Package matrix connects the relay to a Matrix homeserver.
//
// Every joined room is a channel of a single workspace. A relay thread is
// an m.thread relation anchored on a root event whose body is the thread
// title, so an SMS conversation appears as one thread per phone number.
// Posts are markdown, rendered to HTML with goldmark.
//
// Listen runs the mautrix sync loop and hands text and media messages to
// a chat.Handler; the gateway decides whether each one is a command or a
// thread reply.
package matrix
