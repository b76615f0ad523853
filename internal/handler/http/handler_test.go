package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/webitel/im-realtime-service/internal/adapter/cache"
	"github.com/webitel/im-realtime-service/internal/adapter/memory"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
	"github.com/webitel/im-realtime-service/internal/handler/auth"
	"github.com/webitel/im-realtime-service/internal/handler/ws"
	"github.com/webitel/im-realtime-service/internal/service"
)

type testServer struct {
	*httptest.Server
	verifier *auth.Verifier
	dir      *memory.Directory
	hub      *registry.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hub := registry.NewHub(registry.WithShards(4), registry.WithSendTimeout(50*time.Millisecond))
	store := memory.NewStore()
	dir := memory.NewDirectory()
	c := cache.NewMemory(128, time.Minute)

	emit := service.NewEmitter(hub, nil, logger)
	presence := service.NewPresenceTracker(hub, 64, logger)
	hub.Observe(presence)
	staging := service.NewStaging(c, time.Minute, 100*time.Millisecond, logger)
	receipts := service.NewReceipts(store, dir, staging, emit, time.Second, logger)
	router := service.NewRouter(store, dir, staging, service.NewFanoutResolver(dir), receipts, hub, emit,
		service.RouterOptions{StoreTimeout: time.Second}, logger)

	wsh := ws.NewWSHandler(logger, ws.Services{
		Deliverer: service.NewDeliveryService(hub, presence, 64),
		Router:    router,
		Receipts:  receipts,
		Typing:    service.NewTyping(hub),
		Reactions: service.NewReactions(store, dir, staging, hub, time.Second),
		Presence:  presence,
	})
	verifier := auth.NewVerifier("secret", "")
	h := NewHandler(service.NewHistory(store, dir, router, time.Second), hub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go presence.Run(ctx)

	srv := httptest.NewServer(h.Routes(verifier, wsh))
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
		cancel()
	})
	return &testServer{Server: srv, verifier: verifier, dir: dir, hub: hub}
}

func (s *testServer) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	tok, err := s.verifier.Issue(userID, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (s *testServer) dial(t *testing.T, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + s.token(t, userID)
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	readUntil(t, c, "connected")
	readUntil(t, c, "presenceSnapshot")
	return c
}

func (s *testServer) get(t *testing.T, userID uuid.UUID, path string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, s.URL+path, nil)
	req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readUntil(t *testing.T, c *websocket.Conn, name string) frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f frame
		if err := c.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", name, err)
		}
		if f.Event == name {
			return f
		}
	}
}

func send(t *testing.T, c *websocket.Conn, name string, data any) {
	t.Helper()
	raw, _ := json.Marshal(data)
	if err := c.WriteJSON(map[string]any{"event": name, "data": json.RawMessage(raw)}); err != nil {
		t.Fatal(err)
	}
}

func TestWebSocket_DirectConversation(t *testing.T) {
	s := newTestServer(t)
	alice, bob := uuid.New(), uuid.New()
	s.dir.AddUsers(alice, bob)

	a := s.dial(t, alice)
	b := s.dial(t, bob)

	send(t, a, "send", map[string]any{
		"to":                    map[string]any{"id": bob, "type": "user"},
		"content":               "hello",
		"client_correlation_id": "c-1",
	})

	var received model.MessagePayload
	if err := json.Unmarshal(readUntil(t, b, "newMessage").Data, &received); err != nil {
		t.Fatal(err)
	}
	if received.Message.Content != "hello" || received.Message.SenderID != alice {
		t.Fatalf("bob got %+v", received.Message)
	}

	var confirmed model.MessagePayload
	_ = json.Unmarshal(readUntil(t, a, "newMessage").Data, &confirmed)
	if confirmed.CorrelationID != "c-1" || confirmed.Message.ID != received.Message.ID {
		t.Fatalf("confirmation = %+v", confirmed)
	}

	send(t, b, "acknowledgeRead", map[string]any{"message_id": received.Message.ID})
	for {
		var st model.StatusPayload
		_ = json.Unmarshal(readUntil(t, a, "statusUpdate").Data, &st)
		if st.Status == model.StatusRead {
			break
		}
	}

	resp := s.get(t, alice, "/v1/conversations/"+bob.String()+"/messages")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var page pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 1 || page.Messages[0].Status != model.StatusRead {
		t.Fatalf("history = %+v", page.Messages)
	}
}

func TestWebSocket_RejectedRequests(t *testing.T) {
	s := newTestServer(t)
	alice := uuid.New()
	s.dir.AddUsers(alice)
	a := s.dial(t, alice)

	cases := []struct {
		name string
		raw  string
		code string
	}{
		{"malformed frame", `{`, "INVALID_INPUT"},
		{"unknown event", `{"event":"teleport","data":{}}`, "INVALID_INPUT"},
		{"unknown target", `{"event":"send","data":{"to":{"id":"` + uuid.NewString() + `","type":"user"},"content":"x"}}`, "INVALID_TARGET"},
		{"empty message", `{"event":"send","data":{"to":{"id":"` + alice.String() + `","type":"user"},"content":"  "}}`, "INVALID_INPUT"},
		{"ack unknown message", `{"event":"acknowledgeRead","data":{"message_id":"` + uuid.NewString() + `"}}`, "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := a.WriteMessage(websocket.TextMessage, []byte(tc.raw)); err != nil {
				t.Fatal(err)
			}
			var p model.ErrorPayload
			_ = json.Unmarshal(readUntil(t, a, "error").Data, &p)
			if p.Code != tc.code {
				t.Fatalf("code = %s (%s), want %s", p.Code, p.Message, tc.code)
			}
		})
	}
}

func TestHTTP_AccessRules(t *testing.T) {
	s := newTestServer(t)
	member, outsider := uuid.New(), uuid.New()
	group := uuid.New()
	s.dir.AddUsers(outsider)
	s.dir.AddGroup(group, member)

	if resp := s.get(t, outsider, "/v1/groups/"+group.String()+"/messages"); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider group history = %d", resp.StatusCode)
	}
	if resp := s.get(t, member, "/v1/groups/"+group.String()+"/messages"); resp.StatusCode != http.StatusOK {
		t.Fatalf("member group history = %d", resp.StatusCode)
	}
	if resp := s.get(t, member, "/v1/messages/not-a-uuid"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id = %d", resp.StatusCode)
	}
	if resp := s.get(t, member, "/v1/messages/"+uuid.NewString()); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown message = %d", resp.StatusCode)
	}

	resp, err := http.Get(s.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("ws without token = %d", resp.StatusCode)
	}

	s.dial(t, member)
	resp, err = http.Get(s.URL + "/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var stats model.HubStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalUsers != 1 || stats.TotalConnections != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestWebSocket_ServerShutdownSendsDisconnected(t *testing.T) {
	s := newTestServer(t)
	alice := uuid.New()
	s.dir.AddUsers(alice)
	a := s.dial(t, alice)

	s.hub.Shutdown()

	var p model.DisconnectedPayload
	if err := json.Unmarshal(readUntil(t, a, "disconnected").Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Code != "SHUTDOWN" {
		t.Fatalf("payload = %+v", p)
	}
}

// assertNoFrame fails if name arrives within d. The connection is not usable
// for reads afterwards.
func assertNoFrame(t *testing.T, c *websocket.Conn, name string, d time.Duration) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(d))
	for {
		var f frame
		if err := c.ReadJSON(&f); err != nil {
			return
		}
		if f.Event == name {
			t.Fatalf("unexpected %s frame: %s", name, f.Data)
		}
	}
}

func TestWebSocket_NoteToSelfArrivesOnce(t *testing.T) {
	s := newTestServer(t)
	alice := uuid.New()
	s.dir.AddUsers(alice)
	a1 := s.dial(t, alice)
	a2 := s.dial(t, alice)

	send(t, a1, "send", map[string]any{
		"to":                    map[string]any{"id": alice, "type": "user"},
		"content":               "remember the milk",
		"client_correlation_id": "self-1",
	})

	var own model.MessagePayload
	_ = json.Unmarshal(readUntil(t, a1, "newMessage").Data, &own)
	if own.CorrelationID != "self-1" || own.Message.Content != "remember the milk" {
		t.Fatalf("requesting session got %+v", own)
	}
	readUntil(t, a2, "newMessage")

	assertNoFrame(t, a1, "newMessage", 200*time.Millisecond)
}
