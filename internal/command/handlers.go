// ABOUTME: Command vocabulary and handlers
// ABOUTME: Each handler validates every argument before touching the store

package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/2389/smsrelay/internal/phone"
	"github.com/2389/smsrelay/internal/relay"
	"github.com/2389/smsrelay/internal/store"
)

const maxHistory = 50

type call struct {
	req  Request
	args []string
	spec *spec
}

// rest joins args from i on with single spaces.
func (c call) rest(i int) string {
	return strings.Join(c.args[i:], " ")
}

type spec struct {
	name    string
	aliases []string
	usage   string
	summary string
	minArgs int
	maxArgs int // -1 for unbounded
	// mediaAllowsFewer lets the final free-text argument be omitted when the
	// message carries an attachment.
	mediaAllowsFewer bool
	run              func(ctx context.Context, rt *Router, c call) Response
}

var specs []*spec

func init() {
	specs = []*spec{
		{name: "broadcast", aliases: []string{"invite"}, usage: "broadcast <group> <message...>",
			summary: "Text every member of a group", minArgs: 2, maxArgs: -1, mediaAllowsFewer: true, run: runBroadcast},
		{name: "dm", aliases: []string{"text"}, usage: "dm <contact-or-phone> <message...>",
			summary: "Text one contact or number", minArgs: 2, maxArgs: -1, mediaAllowsFewer: true, run: runDirect},
		{name: "addcontact", usage: "addcontact <name...> <phone>",
			summary: "Add a contact", minArgs: 2, maxArgs: -1, run: runAddContact},
		{name: "renamecontact", usage: "renamecontact <phone> <name...>",
			summary: "Rename a contact", minArgs: 2, maxArgs: -1, run: runRenameContact},
		{name: "removecontact", usage: "removecontact <phone>",
			summary: "Delete a contact and remove it from every group", minArgs: 1, maxArgs: 1, run: runRemoveContact},
		{name: "contacts", usage: "contacts", summary: "List contacts", maxArgs: 1, run: runContacts},
		{name: "search", usage: "search <query...>",
			summary: "Find contacts by name or number", minArgs: 1, maxArgs: -1, run: runSearch},
		{name: "creategroup", usage: "creategroup <name> [description...]",
			summary: "Create a group", minArgs: 1, maxArgs: -1, run: runCreateGroup},
		{name: "deletegroup", usage: "deletegroup <name>",
			summary: "Delete a group (contacts are kept)", minArgs: 1, maxArgs: 1, run: runDeleteGroup},
		{name: "groups", usage: "groups", summary: "List groups", maxArgs: 1, run: runGroups},
		{name: "group", usage: "group <name>", summary: "Show a group and its members", minArgs: 1, maxArgs: 1, run: runGroup},
		{name: "addtogroup", usage: "addtogroup <group> <phone>",
			summary: "Add a contact to a group", minArgs: 2, maxArgs: 2, run: runAddToGroup},
		{name: "removefromgroup", usage: "removefromgroup <group> <phone>",
			summary: "Remove a contact from a group", minArgs: 2, maxArgs: 2, run: runRemoveFromGroup},
		{name: "history", usage: "history [n]", summary: "Show recent broadcasts", maxArgs: 1, run: runHistory},
		{name: "help", usage: "help", summary: "Show this message", maxArgs: 0, run: runHelp},
	}
}

func invalidPhone(raw string) Response {
	return Response{
		Outcome: Invalid,
		Text:    fmt.Sprintf("%q is not a valid phone number. Use international format, for example +15551234567.", raw),
	}
}

func runBroadcast(ctx context.Context, rt *Router, c call) Response {
	group := c.args[0]
	body := c.rest(1)
	var media string
	if len(c.req.MediaURLs) > 0 {
		media = c.req.MediaURLs[0]
	}

	origin := c.req.Origin
	req := relay.BroadcastRequest{
		Group:    group,
		Body:     body,
		MediaURL: media,
		OnStart: func(n int) {
			rt.notify(ctx, origin, fmt.Sprintf("Sending to %d recipients...", n))
		},
	}
	if !origin.IsZero() {
		req.Origin = &origin
	}

	res, err := rt.relay.Broadcast(ctx, req)
	if err != nil {
		return rt.fail(c.spec.name, err)
	}
	switch res.Status {
	case relay.StatusNotFound:
		return Response{Outcome: NotFound, Text: fmt.Sprintf("Group %q not found.", group)}
	case relay.StatusNoRecipients:
		return Response{Outcome: NoRecipients, Text: fmt.Sprintf("Group %q has no members.", group)}
	}
	return summarize(res)
}

func runDirect(ctx context.Context, rt *Router, c call) Response {
	to := c.args[0]
	if looksNumeric(to) && !phone.Valid(to) {
		return invalidPhone(to)
	}
	var media string
	if len(c.req.MediaURLs) > 0 {
		media = c.req.MediaURLs[0]
	}

	res, err := rt.relay.SendDirect(ctx, relay.DirectRequest{To: to, Body: c.rest(1), MediaURL: media})
	if errors.Is(err, relay.ErrAmbiguousContact) {
		return Response{Outcome: Invalid, Text: fmt.Sprintf("More than one contact is named %q. Use their phone number.", to)}
	}
	if err != nil {
		return rt.fail(c.spec.name, err)
	}
	if res.Status == relay.StatusNotFound {
		return Response{Outcome: NotFound, Text: fmt.Sprintf("No contact named %q.", to)}
	}
	return summarize(res)
}

func runAddContact(ctx context.Context, rt *Router, c call) Response {
	raw := c.args[len(c.args)-1]
	p, err := phone.Parse(raw)
	if err != nil {
		return invalidPhone(raw)
	}
	name := store.NormalizeName(strings.Join(c.args[:len(c.args)-1], " "))

	contact := &store.Contact{Name: name, PhoneNumber: p}
	if err := rt.store.CreateContact(ctx, contact); err != nil {
		if out, ok := storeOutcome(err); ok && out == Duplicate {
			return Response{Outcome: Duplicate, Text: fmt.Sprintf("A contact with number %s already exists.", p)}
		}
		return rt.fail(c.spec.name, err)
	}
	return Response{Outcome: OK, Text: fmt.Sprintf("Added contact %s (%s).", name, p)}
}

func runRenameContact(ctx context.Context, rt *Router, c call) Response {
	p, err := phone.Parse(c.args[0])
	if err != nil {
		return invalidPhone(c.args[0])
	}
	name := store.NormalizeName(c.rest(1))

	contact, err := rt.store.GetContactByPhone(ctx, p)
	if err != nil {
		return rt.contactLookupFailed(c, p, err)
	}
	if err := rt.store.RenameContact(ctx, contact.ID, name); err != nil {
		return rt.fail(c.spec.name, err)
	}
	return Response{Outcome: OK, Text: fmt.Sprintf("Renamed %s to %s.", contact.Name, name)}
}

func runRemoveContact(ctx context.Context, rt *Router, c call) Response {
	p, err := phone.Parse(c.args[0])
	if err != nil {
		return invalidPhone(c.args[0])
	}
	contact, err := rt.store.GetContactByPhone(ctx, p)
	if err != nil {
		return rt.contactLookupFailed(c, p, err)
	}
	if err := rt.store.DeleteContact(ctx, contact.ID); err != nil {
		return rt.fail(c.spec.name, err)
	}
	return Response{Outcome: OK, Text: fmt.Sprintf("Removed contact %s (%s).", contact.Name, p)}
}

func runContacts(ctx context.Context, rt *Router, c call) Response {
	if len(c.args) == 1 && !strings.EqualFold(c.args[0], "list") {
		return rt.usage(c.spec)
	}
	contacts, err := rt.store.ListContacts(ctx)
	if err != nil {
		return rt.fail(c.spec.name, err)
	}
	if len(contacts) == 0 {
		return Response{Outcome: OK, Text: "No contacts yet."}
	}
	return Response{Outcome: OK, Text: fmt.Sprintf("**Contacts (%d)**\n%s", len(contacts), contactLines(contacts))}
}

func runSearch(ctx context.Context, rt *Router, c call) Response {
	query := c.rest(0)
	found, err := store.SearchContacts(ctx, rt.store, query)
	if err != nil {
		return rt.fail(c.spec.name, err)
	}
	if len(found) == 0 {
		return Response{Outcome: NotFound, Text: fmt.Sprintf("No contacts match %q.", query)}
	}
	return Response{Outcome: OK, Text: fmt.Sprintf("**Matches for %q**\n%s", query, contactLines(found))}
}

func runCreateGroup(ctx context.Context, rt *Router, c call) Response {
	g := &store.Group{Name: c.args[0], Description: c.rest(1)}
	if err := rt.store.CreateGroup(ctx, g); err != nil {
		if out, ok := storeOutcome(err); ok && out == Duplicate {
			return Response{Outcome: Duplicate, Text: fmt.Sprintf("Group %q already exists.", g.Name)}
		}
		return rt.fail(c.spec.name, err)
	}
	return Response{Outcome: OK, Text: fmt.Sprintf("Created group %s.", g.Name)}
}

func runDeleteGroup(ctx context.Context, rt *Router, c call) Response {
	g, err := rt.store.GetGroupByName(ctx, c.args[0])
	if err != nil {
		return rt.groupLookupFailed(c, c.args[0], err)
	}
	if err := rt.store.DeleteGroup(ctx, g.ID); err != nil {
		return rt.fail(c.spec.name, err)
	}
	return Response{Outcome: OK, Text: fmt.Sprintf("Deleted group %s.", g.Name)}
}

func runGroups(ctx context.Context, rt *Router, c call) Response {
	if len(c.args) == 1 && !strings.EqualFold(c.args[0], "list") {
		return rt.usage(c.spec)
	}
	groups, err := rt.store.ListGroups(ctx)
	if err != nil {
		return rt.fail(c.spec.name, err)
	}
	if len(groups) == 0 {
		return Response{Outcome: OK, Text: "No groups yet."}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Groups (%d)**", len(groups))
	for _, g := range groups {
		fmt.Fprintf(&b, "\n- %s (%d members)", g.Name, g.MemberCount)
		if g.Description != "" {
			fmt.Fprintf(&b, ": %s", g.Description)
		}
	}
	return Response{Outcome: OK, Text: b.String()}
}

func runGroup(ctx context.Context, rt *Router, c call) Response {
	g, err := rt.store.GetGroupByName(ctx, c.args[0])
	if err != nil {
		return rt.groupLookupFailed(c, c.args[0], err)
	}
	members, err := rt.store.GetGroupMembers(ctx, g.ID)
	if err != nil {
		return rt.fail(c.spec.name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**", g.Name)
	if g.Description != "" {
		fmt.Fprintf(&b, ": %s", g.Description)
	}
	if len(members) == 0 {
		b.WriteString("\nNo members.")
	} else {
		fmt.Fprintf(&b, "\n%s", contactLines(members))
	}
	return Response{Outcome: OK, Text: b.String()}
}

func runAddToGroup(ctx context.Context, rt *Router, c call) Response {
	g, contact, resp, ok := rt.membershipArgs(ctx, c)
	if !ok {
		return resp
	}
	if err := rt.store.AddGroupMember(ctx, g.ID, contact.ID); err != nil {
		return rt.fail(c.spec.name, err)
	}
	return Response{Outcome: OK, Text: fmt.Sprintf("Added %s to %s.", contact.Name, g.Name)}
}

func runRemoveFromGroup(ctx context.Context, rt *Router, c call) Response {
	g, contact, resp, ok := rt.membershipArgs(ctx, c)
	if !ok {
		return resp
	}
	if err := rt.store.RemoveGroupMember(ctx, g.ID, contact.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Response{Outcome: NotFound, Text: fmt.Sprintf("%s is not in %s.", contact.Name, g.Name)}
		}
		return rt.fail(c.spec.name, err)
	}
	return Response{Outcome: OK, Text: fmt.Sprintf("Removed %s from %s.", contact.Name, g.Name)}
}

func runHistory(ctx context.Context, rt *Router, c call) Response {
	n := 5
	if len(c.args) == 1 {
		v, err := strconv.Atoi(c.args[0])
		if err != nil || v < 1 || v > maxHistory {
			return rt.usage(c.spec)
		}
		n = v
	}
	broadcasts, err := rt.store.ListBroadcasts(ctx, n)
	if err != nil {
		return rt.fail(c.spec.name, err)
	}
	if len(broadcasts) == 0 {
		return Response{Outcome: OK, Text: "No broadcasts yet."}
	}

	var b strings.Builder
	b.WriteString("**Recent broadcasts**")
	for _, bc := range broadcasts {
		target := bc.GroupName
		if target == "" {
			target = "direct"
		}
		fmt.Fprintf(&b, "\n- %s %s: %s (%d sent, %d failed) %q",
			bc.CreatedAt.Format("2006-01-02 15:04"), target, bc.Status, bc.Sent, bc.Failed, truncate(bc.Body, 40))
	}
	return Response{Outcome: OK, Text: b.String()}
}

func runHelp(ctx context.Context, rt *Router, c call) Response {
	return Response{Outcome: OK, Text: rt.Help()}
}

// membershipArgs validates <group> <phone> and loads both sides.
func (rt *Router) membershipArgs(ctx context.Context, c call) (*store.Group, *store.Contact, Response, bool) {
	p, err := phone.Parse(c.args[1])
	if err != nil {
		return nil, nil, invalidPhone(c.args[1]), false
	}
	g, err := rt.store.GetGroupByName(ctx, c.args[0])
	if err != nil {
		return nil, nil, rt.groupLookupFailed(c, c.args[0], err), false
	}
	contact, err := rt.store.GetContactByPhone(ctx, p)
	if err != nil {
		return nil, nil, rt.contactLookupFailed(c, p, err), false
	}
	return g, contact, Response{}, true
}

func (rt *Router) contactLookupFailed(c call, p string, err error) Response {
	if errors.Is(err, store.ErrNotFound) {
		return Response{Outcome: NotFound, Text: fmt.Sprintf("No contact with number %s.", p)}
	}
	return rt.fail(c.spec.name, err)
}

func (rt *Router) groupLookupFailed(c call, name string, err error) Response {
	if errors.Is(err, store.ErrNotFound) {
		return Response{Outcome: NotFound, Text: fmt.Sprintf("Group %q not found.", name)}
	}
	return rt.fail(c.spec.name, err)
}

// summarize turns a completed send into a response.
func summarize(res relay.Result) Response {
	total := len(res.Recipients)
	switch res.Status {
	case relay.StatusSent:
		if total == 1 {
			return Response{Outcome: OK, Text: fmt.Sprintf("✅ Sent to %s.", res.Recipients[0].Label())}
		}
		return Response{Outcome: OK, Text: fmt.Sprintf("✅ Sent to %d recipients.", total)}
	case relay.StatusPartial:
		return Response{Outcome: Partial, Text: fmt.Sprintf("⚠️ Sent to %d of %d recipients. Failed: %s.",
			res.Sent(), total, failedLabels(res))}
	default:
		if total == 1 {
			return Response{Outcome: Failed, Text: fmt.Sprintf("❌ Could not send to %s.", res.Recipients[0].Label())}
		}
		return Response{Outcome: Failed, Text: fmt.Sprintf("❌ Could not send to any of %d recipients.", total)}
	}
}

func failedLabels(res relay.Result) string {
	var labels []string
	for _, d := range res.Failures() {
		labels = append(labels, d.Label())
	}
	return strings.Join(labels, ", ")
}

func contactLines(cs []*store.Contact) string {
	lines := make([]string, len(cs))
	for i, c := range cs {
		lines[i] = fmt.Sprintf("- %s: %s", c.Name, c.PhoneNumber)
	}
	return strings.Join(lines, "\n")
}

// looksNumeric reports whether s was meant as a phone number rather than a name.
func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '+', '(':
		return true
	}
	return s[0] >= '0' && s[0] <= '9'
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
