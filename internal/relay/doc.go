// Package relay implements the Relay Engine.
//
// Outbound, Broadcast sends to every member of a group and SendDirect sends
// to one number or contact. Each recipient is attempted in turn; failures are
// collected per recipient and never stop the loop. The overall Status is
// Sent, Partial, Failed, NoRecipients (transport never called), or NotFound.
// Every completed send is written to the broadcast log.
//
// Inbound, HandleInbound posts a telephony message into the sender's bound
// thread, or discovers a channel, creates a thread, posts, and binds it, all
// under the sender's registry lock. HandleThreadReply sends a chat reply in
// a bound thread back to the phone numbers bound to it and reacts with the
// outcome.
//
// Broadcasts to the same group are serialized so a repeated command cannot
// interleave with one still in flight.
package relay
