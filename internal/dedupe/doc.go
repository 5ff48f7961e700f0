// Package dedupe drops repeated inbound events.
//
// Twilio retries webhooks that time out and the Matrix sync loop can replay
// events after a reconnect. Both sources feed their provider ids through a
// Cache before handing the event to the relay engine.
package dedupe
