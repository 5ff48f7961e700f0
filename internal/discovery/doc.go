// Package discovery picks the chat channel that receives a new thread when a
// phone number has no binding yet.
//
// SelectChannel is a pure function over a chat.Snapshot. It tries reserved
// aliases ("sms", "bot"), then fallback aliases ("general"), then the first
// text-capable channel, scanning workspaces and channels in snapshot order.
package discovery
