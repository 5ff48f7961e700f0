// ABOUTME: HTTP routing for health probes, the Twilio inbound webhook, and the REST API
// ABOUTME: REST routes are mounted only when a JWT secret is configured

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/2389/smsrelay/internal/auth"
	"github.com/2389/smsrelay/internal/transport"
)

func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /api/health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	mux.HandleFunc("POST /api/sms/inbound", g.handleInboundWebhook)

	if g.verifier == nil {
		return mux
	}
	protect := auth.Middleware(g.verifier, g.logger)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protect(h))
	}
	handle("GET /api/contacts", g.handleListContacts)
	handle("POST /api/contacts", g.handleCreateContact)
	handle("DELETE /api/contacts/{id}", g.handleDeleteContact)
	handle("GET /api/groups", g.handleListGroups)
	handle("POST /api/groups", g.handleCreateGroup)
	handle("GET /api/groups/{id}", g.handleGetGroup)
	handle("DELETE /api/groups/{id}", g.handleDeleteGroup)
	handle("POST /api/groups/{id}/members", g.handleAddMember)
	handle("DELETE /api/groups/{id}/members/{contactID}", g.handleRemoveMember)
	handle("POST /api/sms/send", g.handleSendSMS)
	handle("POST /api/broadcasts", g.handleBroadcast)
	handle("GET /api/broadcasts", g.handleListBroadcasts)
	handle("GET /api/broadcasts/{id}", g.handleGetBroadcast)
	handle("GET /api/threads", g.handleListThreads)
	return mux
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 once bindings are loaded and the store answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading thread bindings"))
		return
	}
	if err := g.store.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d threads, transport %s)", g.registry.Len(), g.sender.Name())
}

// handleInboundWebhook accepts Twilio's inbound message callback.
func (g *Gateway) handleInboundWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	tw := g.config.Transport.Twilio
	if tw.ValidateSignatures {
		if err := transport.VerifySignature(tw.AuthToken, tw.PublicURL, r); err != nil {
			g.logger.Warn("rejected inbound webhook", "error", err)
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	msg, err := transport.ParseWebhook(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Relaying finishes even if Twilio hangs up.
	if err := g.HandleInboundSMS(context.WithoutCancel(r.Context()), "twilio", msg); err != nil {
		g.logger.Error("inbound webhook failed", "sid", msg.ID, "error", err)
		http.Error(w, "relay failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(transport.EmptyTwiML))
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
