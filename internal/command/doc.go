// Package command implements the operator command language.
//
// A command is a chat message starting with the prefix ("!" by default). The
// first whitespace-separated token names the command, ignoring case; the
// rest are positional arguments, and a trailing free-text argument such as a
// message body takes every remaining token joined by single spaces.
//
// Arguments are validated before anything is written: wrong argument counts
// produce a Usage response, malformed phone numbers an Invalid one. Unknown
// commands produce a fixed reply. Store and engine failures are logged and
// answered with a short diagnostic that never echoes the underlying error.
package command
