// Package gateway wires the relay together and serves its HTTP surface.
//
// # Overview
//
// A Gateway owns the directory store, the thread registry, the relay engine,
// the command router, the chat surface, and the SMS transport. It routes
// traffic between them:
//
//   - Inbound SMS arrives on POST /api/sms/inbound (Twilio webhook) or from
//     the phone relay's Redis channel, is deduplicated by provider message ID
//     and handed to relay.Engine.HandleInbound.
//   - Chat messages arrive from the chat listener. Command-prefixed messages
//     go to the command router and the reply is posted back where the
//     command was typed; replies inside SMS threads are relayed to the bound
//     phone numbers.
//
// # HTTP API
//
// Always available:
//
//   - GET /health - liveness
//   - GET /health/ready - readiness (store ping, loaded thread count)
//   - POST /api/sms/inbound - Twilio webhook, answered with empty TwiML
//
// Mounted only when auth.jwt_secret is configured, behind bearer JWT auth:
//
//   - GET/POST /api/contacts, DELETE /api/contacts/{id}
//   - GET/POST /api/groups, GET/DELETE /api/groups/{id}
//   - POST /api/groups/{id}/members, DELETE /api/groups/{id}/members/{contactID}
//   - POST /api/sms/send
//   - GET/POST /api/broadcasts, GET /api/broadcasts/{id}
//   - GET /api/threads
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil { ... }
//	err = gw.Run(ctx) // blocks until ctx is done, then shuts down
//
// Tests build a Gateway from in-memory parts with Assemble and call Start
// instead of Run.
package gateway
