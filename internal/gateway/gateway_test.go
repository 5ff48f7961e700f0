// ABOUTME: Tests for gateway assembly, event dispatch, health probes, and the inbound webhook
// ABOUTME: Uses the mock store, the fake chat surface, and miniredis for the phone relay

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/smsrelay/internal/chat"
	"github.com/2389/smsrelay/internal/config"
	"github.com/2389/smsrelay/internal/store"
	"github.com/2389/smsrelay/internal/transport"
)

const testSecret = "gateway-test-secret-at-least-32-bytes"

type fakeSender struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (s *fakeSender) Send(ctx context.Context, to, body, mediaURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, to)
	if s.fail[to] {
		return "", errors.New("carrier rejected")
	}
	return fmt.Sprintf("SM%d", len(s.calls)), nil
}

func (s *fakeSender) Name() string { return "fake" }

func (s *fakeSender) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fixture struct {
	gw      *Gateway
	store   *store.MockStore
	surface *chat.Fake
	sender  *fakeSender
}

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: ":memory:"},
		Auth:     config.AuthConfig{JWTSecret: testSecret},
		Relay: config.RelayConfig{
			CommandPrefix:   "!",
			ReservedAliases: []string{"sms", "bot"},
			FallbackAliases: []string{"general"},
		},
		Transport: config.TransportConfig{Provider: config.ProviderLog},
		Dedupe:    config.DedupeConfig{TTL: time.Minute, MaxSize: 100},
	}
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	ms := store.NewMockStore()
	surface := chat.NewFake(chat.Snapshot{{
		ID:   "ws",
		Name: "Workspace",
		Channels: []chat.Channel{
			{ID: "c-random", Name: "random", TextCapable: true},
			{ID: "c-sms", Name: "sms", TextCapable: true},
		},
	}})
	sender := &fakeSender{fail: map[string]bool{}}

	gw, err := Assemble(cfg, Components{Store: ms, Sender: sender, Surface: surface}, nil)
	require.NoError(t, err)
	gw.Start(context.Background())
	t.Cleanup(func() { gw.dedupe.Close() })

	return &fixture{gw: gw, store: ms, surface: surface, sender: sender}
}

func (f *fixture) contact(t *testing.T, name, number string) *store.Contact {
	t.Helper()
	c := &store.Contact{Name: name, PhoneNumber: number}
	require.NoError(t, f.store.CreateContact(context.Background(), c))
	return c
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.gw.Handler().ServeHTTP(rec, req)
	return rec
}

func webhookRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/sms/inbound", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAssemble_RequiresStoreAndSender(t *testing.T) {
	_, err := Assemble(testConfig(), Components{Store: store.NewMockStore()}, nil)
	assert.Error(t, err)
}

func TestAssemble_RejectsWeakSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "short"
	_, err := Assemble(cfg, Components{Store: store.NewMockStore(), Sender: &fakeSender{}}, nil)
	assert.ErrorContains(t, err, "JWT verifier")
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReady(t *testing.T) {
	ms := store.NewMockStore()
	gw, err := Assemble(testConfig(), Components{Store: ms, Sender: &fakeSender{}}, nil)
	require.NoError(t, err)
	defer gw.dedupe.Close()

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	gw.Start(context.Background())
	rec = httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "transport fake")
}

func TestStart_LoadsBindings(t *testing.T) {
	ms := store.NewMockStore()
	require.NoError(t, ms.CreateThreadBinding(context.Background(), &store.ThreadBinding{
		PhoneNumber: "+15551234567", ChannelID: "c-sms", ThreadID: "t-old",
	}))
	gw, err := Assemble(testConfig(), Components{Store: ms, Sender: &fakeSender{}}, nil)
	require.NoError(t, err)
	defer gw.dedupe.Close()

	gw.Start(context.Background())
	assert.Equal(t, 1, gw.registry.Len())
}

func TestWebhook_InboundCreatesThread(t *testing.T) {
	f := newFixture(t, nil)
	f.contact(t, "Jane Doe", "+15559876543")

	rec := f.do(t, webhookRequest(url.Values{
		"MessageSid": {"SM100"},
		"From":       {"+1 (555) 987-6543"},
		"Body":       {"running late"},
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, transport.EmptyTwiML, rec.Body.String())

	threads := f.surface.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, "c-sms", threads[0].ChannelID)
	assert.Equal(t, []string{"**Jane Doe**: running late"}, f.surface.PostsTo(threads[0]))
}

func TestWebhook_DuplicateSidIgnored(t *testing.T) {
	f := newFixture(t, nil)
	form := url.Values{"MessageSid": {"SM200"}, "From": {"+15551112222"}, "Body": {"hi"}}

	require.Equal(t, http.StatusOK, f.do(t, webhookRequest(form)).Code)
	require.Equal(t, http.StatusOK, f.do(t, webhookRequest(form)).Code)

	assert.Len(t, f.surface.Posts(), 1)
}

func TestWebhook_StoreFailureAllowsRedelivery(t *testing.T) {
	f := newFixture(t, nil)
	form := url.Values{"MessageSid": {"SM300"}, "From": {"+15551112222"}, "Body": {"hi"}}

	f.store.BindingErr = errors.New("disk full")
	assert.Equal(t, http.StatusInternalServerError, f.do(t, webhookRequest(form)).Code)

	f.store.BindingErr = nil
	assert.Equal(t, http.StatusOK, f.do(t, webhookRequest(form)).Code)

	ref, ok, err := f.gw.registry.Resolve(context.Background(), "+15551112222")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c-sms", ref.ChannelID)
}

func TestWebhook_NoChannelIsTerminal(t *testing.T) {
	ms := store.NewMockStore()
	surface := chat.NewFake(chat.Snapshot{{ID: "ws", Channels: []chat.Channel{{ID: "v", Name: "voice", TextCapable: false}}}})
	gw, err := Assemble(testConfig(), Components{Store: ms, Sender: &fakeSender{}, Surface: surface}, nil)
	require.NoError(t, err)
	defer gw.dedupe.Close()

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, webhookRequest(url.Values{"MessageSid": {"SM1"}, "From": {"+15551112222"}, "Body": {"x"}}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, surface.Posts())
}

func TestWebhook_BadForm(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, webhookRequest(url.Values{"Body": {"no sender"}}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_Signature(t *testing.T) {
	cfg := testConfig()
	cfg.Transport.Twilio = config.TwilioConfig{
		AuthToken:          "twilio-token",
		ValidateSignatures: true,
		PublicURL:          "https://relay.example.com/api/sms/inbound",
	}
	f := newFixture(t, cfg)
	form := url.Values{"MessageSid": {"SM400"}, "From": {"+15551112222"}, "Body": {"signed"}}

	rec := f.do(t, webhookRequest(form))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.surface.Posts())

	// Unsigned requests are refused before the message is built.
	rec = f.do(t, webhookRequest(url.Values{"NumMedia": {"2147483647"}}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := webhookRequest(form)
	req.Header.Set(transport.SignatureHeader, transport.Signature("twilio-token", cfg.Transport.Twilio.PublicURL, form))
	rec = f.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.surface.Posts(), 1)
}

func TestHandleChatMessage_Command(t *testing.T) {
	f := newFixture(t, nil)
	origin := chat.ThreadRef{ChannelID: "c-sms"}

	f.gw.HandleChatMessage(context.Background(), chat.Message{
		ID: "$1", ChannelID: "c-sms", Sender: "@op", Body: "!addcontact Jane Doe +15559876543",
	})

	c, err := f.store.GetContactByPhone(context.Background(), "+15559876543")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", c.Name)
	assert.Len(t, f.surface.PostsTo(origin), 1)
}

func TestHandleChatMessage_DuplicateIgnored(t *testing.T) {
	f := newFixture(t, nil)
	msg := chat.Message{ID: "$dup", ChannelID: "c-sms", Sender: "@op", Body: "!groups"}

	f.gw.HandleChatMessage(context.Background(), msg)
	f.gw.HandleChatMessage(context.Background(), msg)

	assert.Len(t, f.surface.Posts(), 1)
}

func TestHandleChatMessage_ThreadReply(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ref := chat.ThreadRef{ChannelID: "c-sms", ThreadID: "thread-9"}
	require.NoError(t, f.gw.registry.Bind(ctx, "+15551112222", ref, ""))

	f.gw.HandleChatMessage(ctx, chat.Message{
		ID: "$reply", ChannelID: "c-sms", ThreadID: "thread-9", Sender: "@op", Body: "on my way",
	})

	assert.Equal(t, []string{"+15551112222"}, f.sender.Calls())
	reactions := f.surface.Reactions()
	require.Len(t, reactions, 1)
	assert.Equal(t, "✅", reactions[0].Emoji)
}

func TestHandleChatMessage_OrdinaryChatIgnored(t *testing.T) {
	f := newFixture(t, nil)

	f.gw.HandleChatMessage(context.Background(), chat.Message{ID: "$2", ChannelID: "c-random", Sender: "@op", Body: "lunch?"})
	f.gw.HandleChatMessage(context.Background(), chat.Message{ID: "$3", ChannelID: "c-sms", ThreadID: "unbound", Sender: "@op", Body: "hello"})

	assert.Empty(t, f.sender.Calls())
	assert.Empty(t, f.surface.Posts())
}

func TestConsumeRelay(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := transport.NewRelayClient(&redis.Options{Addr: mr.Addr()}, transport.RelayConfig{})
	require.NoError(t, err)
	defer client.Close()

	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := client.Subscribe(ctx)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		f.gw.consumeRelay(ctx, sub)
		close(done)
	}()

	payload, err := json.Marshal(transport.InboundMessage{ID: "r1", From: "+15551112222", Body: "from the phone"})
	require.NoError(t, err)
	mr.Publish(transport.DefaultInboundChannel, "not json")
	mr.Publish(transport.DefaultInboundChannel, string(payload))
	mr.Publish(transport.DefaultInboundChannel, string(payload))

	require.Eventually(t, func() bool { return len(f.surface.Posts()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "**+15551112222**: from the phone", f.surface.Posts()[0].Text)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumeRelay did not stop")
	}
	assert.Len(t, f.surface.Posts(), 1, "redelivered relay id is dropped")
}

func TestBuildTransport(t *testing.T) {
	cfg := testConfig()

	s, in, err := buildTransport(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "log", s.Name())
	assert.Nil(t, in)

	cfg.Transport.Provider = config.ProviderTwilio
	cfg.Transport.Twilio = config.TwilioConfig{AccountSID: "AC1", AuthToken: "tok", From: "+15550000000"}
	s, in, err = buildTransport(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "twilio", s.Name())
	assert.Nil(t, in)

	cfg.Transport.Provider = config.ProviderRelay
	cfg.Transport.Relay.RedisAddr = "127.0.0.1:6379"
	s, in, err = buildTransport(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "relay", s.Name())
	assert.NotNil(t, in)
	if c, ok := s.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}
