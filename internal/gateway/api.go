// ABOUTME: REST API handlers for contacts, groups, membership, sends, and the broadcast log
// ABOUTME: Requests and responses are JSON; store sentinels map onto HTTP status codes

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/smsrelay/internal/auth"
	"github.com/2389/smsrelay/internal/phone"
	"github.com/2389/smsrelay/internal/relay"
	"github.com/2389/smsrelay/internal/store"
)

// ContactResponse is a contact in API responses.
type ContactResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
}

// GroupResponse is a group in API responses.
type GroupResponse struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	MemberCount int               `json:"member_count"`
	CreatedAt   time.Time         `json:"created_at"`
	Members     []ContactResponse `json:"members,omitempty"`
}

// CreateContactRequest is the body of POST /api/contacts.
type CreateContactRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

// CreateGroupRequest is the body of POST /api/groups.
type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// AddMemberRequest is the body of POST /api/groups/{id}/members. Either
// field identifies the contact.
type AddMemberRequest struct {
	ContactID   int64  `json:"contact_id"`
	PhoneNumber string `json:"phone_number"`
}

// SendSMSRequest is the body of POST /api/sms/send. Numbers is a JSON array
// or a comma-separated string.
type SendSMSRequest struct {
	Numbers  json.RawMessage `json:"numbers"`
	Message  string          `json:"message"`
	MediaURL string          `json:"media_url"`
}

// BroadcastRequest is the body of POST /api/broadcasts. An empty group
// uses relay.default_group.
type BroadcastRequest struct {
	Group    string `json:"group"`
	Message  string `json:"message"`
	MediaURL string `json:"media_url"`
}

// DeliveryResponse is one recipient outcome.
type DeliveryResponse struct {
	Phone             string `json:"phone"`
	Name              string `json:"name,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// ResultResponse reports an outbound operation.
type ResultResponse struct {
	ID         string             `json:"id"`
	Status     relay.Status       `json:"status"`
	Sent       int                `json:"sent"`
	Failed     int                `json:"failed"`
	Recipients []DeliveryResponse `json:"recipients"`
	Thread     string             `json:"thread,omitempty"`
}

// SendSMSResponse aggregates one result per number.
type SendSMSResponse struct {
	Status  relay.Status     `json:"status"`
	Sent    int              `json:"sent"`
	Failed  int              `json:"failed"`
	Results []ResultResponse `json:"results"`
}

// BroadcastLogResponse is an entry of the broadcast log.
type BroadcastLogResponse struct {
	ID         string             `json:"id"`
	Group      string             `json:"group,omitempty"`
	Body       string             `json:"body"`
	MediaURL   string             `json:"media_url,omitempty"`
	Status     string             `json:"status"`
	Sent       int                `json:"sent"`
	Failed     int                `json:"failed"`
	CreatedAt  time.Time          `json:"created_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Deliveries []DeliveryResponse `json:"deliveries,omitempty"`
}

// ThreadResponse is an active phone to thread binding.
type ThreadResponse struct {
	PhoneNumber string    `json:"phone_number"`
	ChannelID   string    `json:"channel_id"`
	ThreadID    string    `json:"thread_id"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toContactResponse(c *store.Contact) ContactResponse {
	return ContactResponse{ID: c.ID, Name: c.Name, PhoneNumber: c.PhoneNumber, CreatedAt: c.CreatedAt}
}

func toResultResponse(res relay.Result) ResultResponse {
	out := ResultResponse{
		ID:         res.ID,
		Status:     res.Status,
		Sent:       res.Sent(),
		Failed:     res.Failed(),
		Recipients: make([]DeliveryResponse, 0, len(res.Recipients)),
	}
	for _, d := range res.Recipients {
		dr := DeliveryResponse{Phone: d.Phone, Name: d.Name, ProviderMessageID: d.ProviderMessageID}
		if d.Err != nil {
			dr.Error = d.Err.Error()
		}
		out.Recipients = append(out.Recipients, dr)
	}
	if res.Thread != nil {
		out.Thread = res.Thread.String()
	}
	return out
}

// storeError maps store sentinels to HTTP statuses. Opaque failures are
// logged and reported as 500.
func (g *Gateway) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrDuplicateContact):
		g.sendJSONError(w, http.StatusConflict, "contact with this phone number already exists")
	case errors.Is(err, store.ErrDuplicateGroup):
		g.sendJSONError(w, http.StatusConflict, "group with this name already exists")
	default:
		g.logger.Error("api store operation failed", "op", op, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func (g *Gateway) handleListContacts(w http.ResponseWriter, r *http.Request) {
	var (
		contacts []*store.Contact
		err      error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		contacts, err = store.SearchContacts(r.Context(), g.store, q)
	} else {
		contacts, err = g.store.ListContacts(r.Context())
	}
	if err != nil {
		g.storeError(w, "list contacts", err)
		return
	}
	out := make([]ContactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, toContactResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req CreateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	name := store.NormalizeName(req.Name)
	if name == "" {
		g.sendJSONError(w, http.StatusBadRequest, "name is required")
		return
	}
	number, err := phone.Parse(req.PhoneNumber)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid phone number")
		return
	}

	c := &store.Contact{Name: name, PhoneNumber: number}
	if err := g.store.CreateContact(r.Context(), c); err != nil {
		g.storeError(w, "create contact", err)
		return
	}
	g.logger.Info("contact created via api", "operator", auth.OperatorFromContext(r.Context()), "phone", number)
	writeJSON(w, http.StatusCreated, toContactResponse(c))
}

func (g *Gateway) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, "invalid contact id")
		return
	}
	if err := g.store.DeleteContact(r.Context(), id); err != nil {
		g.storeError(w, "delete contact", err)
		return
	}
	g.logger.Info("contact deleted via api", "operator", auth.OperatorFromContext(r.Context()), "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := g.store.ListGroups(r.Context())
	if err != nil {
		g.storeError(w, "list groups", err)
		return
	}
	out := make([]GroupResponse, 0, len(groups))
	for _, gr := range groups {
		out = append(out, GroupResponse{
			ID: gr.ID, Name: gr.Name, Description: gr.Description,
			MemberCount: gr.MemberCount, CreatedAt: gr.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || strings.ContainsAny(name, " \t\n") {
		g.sendJSONError(w, http.StatusBadRequest, "name is required and must be a single word")
		return
	}

	gr := &store.Group{Name: name, Description: strings.TrimSpace(req.Description)}
	if err := g.store.CreateGroup(r.Context(), gr); err != nil {
		g.storeError(w, "create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, GroupResponse{ID: gr.ID, Name: gr.Name, Description: gr.Description, CreatedAt: gr.CreatedAt})
}

func (g *Gateway) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	gr, err := g.store.GetGroup(r.Context(), id)
	if err != nil {
		g.storeError(w, "get group", err)
		return
	}
	members, err := g.store.GetGroupMembers(r.Context(), id)
	if err != nil {
		g.storeError(w, "get group members", err)
		return
	}
	out := GroupResponse{
		ID: gr.ID, Name: gr.Name, Description: gr.Description,
		MemberCount: len(members), CreatedAt: gr.CreatedAt,
		Members: make([]ContactResponse, 0, len(members)),
	}
	for _, c := range members {
		out.Members = append(out.Members, toContactResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	if err := g.store.DeleteGroup(r.Context(), id); err != nil {
		g.storeError(w, "delete group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleAddMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(r, "id")
	if !ok {
		g.sendJSONError(w, http.StatusBadRequest, "invalid group id")
		return
	}
	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	contactID := req.ContactID
	if contactID == 0 {
		number, err := phone.Parse(req.PhoneNumber)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "contact_id or a valid phone_number is required")
			return
		}
		c, err := g.store.GetContactByPhone(r.Context(), number)
		if err != nil {
			g.storeError(w, "lookup contact", err)
			return
		}
		contactID = c.ID
	}

	if err := g.store.AddGroupMember(r.Context(), groupID, contactID); err != nil {
		g.storeError(w, "add member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok1 := pathID(r, "id")
	contactID, ok2 := pathID(r, "contactID")
	if !ok1 || !ok2 {
		g.sendJSONError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := g.store.RemoveGroupMember(r.Context(), groupID, contactID); err != nil {
		g.storeError(w, "remove member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseNumbers accepts ["+1555...", ...] or "+1555...,+1555...". Numbers are
// canonicalized and de-duplicated in order.
func parseNumbers(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var joined string
		if err := json.Unmarshal(raw, &joined); err != nil {
			return nil, errors.New("numbers must be an array or a comma-separated string")
		}
		list = strings.Split(joined, ",")
	}

	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, n := range list {
		if strings.TrimSpace(n) == "" {
			continue
		}
		p, err := phone.Parse(n)
		if err != nil {
			return nil, errors.New("invalid phone number: " + strings.TrimSpace(n))
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("numbers is required")
	}
	return out, nil
}

func (g *Gateway) handleSendSMS(w http.ResponseWriter, r *http.Request) {
	var req SendSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" && req.MediaURL == "" {
		g.sendJSONError(w, http.StatusBadRequest, "message or media_url is required")
		return
	}
	numbers, err := parseNumbers(req.Numbers)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.WithoutCancel(r.Context())
	out := SendSMSResponse{Results: make([]ResultResponse, 0, len(numbers))}
	for _, n := range numbers {
		res, err := g.engine.SendDirect(ctx, relay.DirectRequest{To: n, Body: req.Message, MediaURL: req.MediaURL})
		if err != nil {
			g.logger.Error("api send failed", "to", n, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		out.Sent += res.Sent()
		out.Failed += res.Failed()
		out.Results = append(out.Results, toResultResponse(res))
	}
	switch {
	case out.Failed == 0:
		out.Status = relay.StatusSent
	case out.Sent == 0:
		out.Status = relay.StatusFailed
	default:
		out.Status = relay.StatusPartial
	}

	g.logger.Info("sms sent via api", "operator", auth.OperatorFromContext(r.Context()),
		"recipients", len(numbers), "sent", out.Sent, "failed", out.Failed)
	writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	group := strings.TrimSpace(req.Group)
	if group == "" {
		group = g.config.Relay.DefaultGroup
	}
	if group == "" {
		g.sendJSONError(w, http.StatusBadRequest, "group is required")
		return
	}
	if strings.TrimSpace(req.Message) == "" && req.MediaURL == "" {
		g.sendJSONError(w, http.StatusBadRequest, "message or media_url is required")
		return
	}

	res, err := g.engine.Broadcast(context.WithoutCancel(r.Context()), relay.BroadcastRequest{
		Group:    group,
		Body:     req.Message,
		MediaURL: req.MediaURL,
	})
	if err != nil {
		g.logger.Error("api broadcast failed", "group", group, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if res.Status == relay.StatusNotFound {
		g.sendJSONError(w, http.StatusNotFound, "group not found")
		return
	}

	g.logger.Info("broadcast via api", "operator", auth.OperatorFromContext(r.Context()),
		"group", group, "status", res.Status)
	writeJSON(w, http.StatusOK, toResultResponse(res))
}

func toBroadcastLogResponse(b *store.Broadcast) BroadcastLogResponse {
	out := BroadcastLogResponse{
		ID: b.ID, Group: b.GroupName, Body: b.Body, MediaURL: b.MediaURL,
		Status: b.Status, Sent: b.Sent, Failed: b.Failed,
		CreatedAt: b.CreatedAt, FinishedAt: b.FinishedAt,
	}
	for _, d := range b.Deliveries {
		out.Deliveries = append(out.Deliveries, DeliveryResponse{
			Phone: d.PhoneNumber, ProviderMessageID: d.ProviderMessageID, Error: d.Error,
		})
	}
	return out
}

func (g *Gateway) handleListBroadcasts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 500 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	list, err := g.store.ListBroadcasts(r.Context(), limit)
	if err != nil {
		g.storeError(w, "list broadcasts", err)
		return
	}
	out := make([]BroadcastLogResponse, 0, len(list))
	for _, b := range list {
		out = append(out, toBroadcastLogResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (g *Gateway) handleGetBroadcast(w http.ResponseWriter, r *http.Request) {
	b, err := g.store.GetBroadcast(r.Context(), r.PathValue("id"))
	if err != nil {
		g.storeError(w, "get broadcast", err)
		return
	}
	writeJSON(w, http.StatusOK, toBroadcastLogResponse(b))
}

func (g *Gateway) handleListThreads(w http.ResponseWriter, r *http.Request) {
	bindings, err := g.store.ListActiveThreadBindings(r.Context())
	if err != nil {
		g.storeError(w, "list threads", err)
		return
	}
	out := make([]ThreadResponse, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, ThreadResponse{
			PhoneNumber: b.PhoneNumber, ChannelID: b.ChannelID, ThreadID: b.ThreadID,
			DisplayName: b.DisplayName, CreatedAt: b.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
