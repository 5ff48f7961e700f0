// Package transport moves SMS between the relay and the telephony side.
//
// Outbound, every provider implements Sender: one call per recipient, each
// returning the provider's message ID or an error. Providers:
//
//   - TwilioSender: Twilio Programmable Messaging REST API
//   - RelayClient: pushes JSON jobs onto a Redis list for a phone to send
//   - LogSender: logs only, for local development
//
// Inbound, Twilio webhooks are parsed with ParseWebhook (and optionally
// verified with VerifySignature), and the phone relay publishes
// InboundMessage JSON on a Redis channel read through RelayClient.Subscribe.
package transport
