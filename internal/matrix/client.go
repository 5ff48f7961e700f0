// ABOUTME: Narrow view of the mautrix client used by the Matrix surface.
// ABOUTME: Lets the surface be exercised in tests without a homeserver.

package matrix

import (
	"context"
	"fmt"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// api is the subset of homeserver calls the surface makes.
type api interface {
	JoinedRooms(ctx context.Context) ([]id.RoomID, error)
	RoomName(ctx context.Context, room id.RoomID) (string, error)
	IsSpace(ctx context.Context, room id.RoomID) (bool, error)
	SendMessage(ctx context.Context, room id.RoomID, content *event.MessageEventContent) (id.EventID, error)
	SendReaction(ctx context.Context, room id.RoomID, target id.EventID, key string) error
	OnMessage(fn func(ctx context.Context, evt *event.Event)) error
	Sync(ctx context.Context) error
}

// mautrixAPI adapts *mautrix.Client to api.
type mautrixAPI struct {
	c *mautrix.Client
}

func newMautrixAPI(homeserver, userID, accessToken string) (*mautrixAPI, error) {
	c, err := mautrix.NewClient(homeserver, id.UserID(userID), accessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	return &mautrixAPI{c: c}, nil
}

func (a *mautrixAPI) JoinedRooms(ctx context.Context) ([]id.RoomID, error) {
	resp, err := a.c.JoinedRooms(ctx)
	if err != nil {
		return nil, err
	}
	return resp.JoinedRooms, nil
}

func (a *mautrixAPI) RoomName(ctx context.Context, room id.RoomID) (string, error) {
	var content event.RoomNameEventContent
	if err := a.c.StateEvent(ctx, room, event.StateRoomName, "", &content); err != nil {
		return "", err
	}
	return content.Name, nil
}

func (a *mautrixAPI) IsSpace(ctx context.Context, room id.RoomID) (bool, error) {
	var content event.CreateEventContent
	if err := a.c.StateEvent(ctx, room, event.StateCreate, "", &content); err != nil {
		return false, err
	}
	return content.Type == event.RoomTypeSpace, nil
}

func (a *mautrixAPI) SendMessage(ctx context.Context, room id.RoomID, content *event.MessageEventContent) (id.EventID, error) {
	resp, err := a.c.SendMessageEvent(ctx, room, event.EventMessage, content)
	if err != nil {
		return "", err
	}
	return resp.EventID, nil
}

func (a *mautrixAPI) SendReaction(ctx context.Context, room id.RoomID, target id.EventID, key string) error {
	_, err := a.c.SendReaction(ctx, room, target, key)
	return err
}

func (a *mautrixAPI) OnMessage(fn func(ctx context.Context, evt *event.Event)) error {
	syncer, ok := a.c.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", a.c.Syncer)
	}
	syncer.OnEventType(event.EventMessage, fn)
	return nil
}

func (a *mautrixAPI) Sync(ctx context.Context) error {
	return a.c.SyncWithContext(ctx)
}
