package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

// -- Hub --

func TestHub_RegisterUnregister(t *testing.T) {
	hub := newTestHub()
	client := NewClient("review/abc")

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount("review/abc") != 1 {
		t.Fatalf("expected 1 client on review/abc, got %d", hub.TopicCount("review/abc"))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount("review/abc") != 0 {
		t.Fatal("expected client fully removed")
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected send channel closed")
	}

	// second unregister is a no-op
	hub.Unregister(client)
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := newTestHub()
	subscriber := NewClient("review/1")
	other := NewClient("review/2")
	hub.Register(subscriber)
	hub.Register(other)

	hub.Broadcast("review/1", Event{Type: "render", Topic: "review/1", ResourceType: "Review", ResourceID: "1", Timestamp: time.Now()})

	select {
	case msg := <-subscriber.Send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if received.Type != "render" || received.ResourceID != "1" {
			t.Fatalf("unexpected event %+v", received)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}

	select {
	case <-other.Send:
		t.Fatal("non-subscriber should not have received event")
	default:
	}
}

func TestHub_BroadcastDropsOnFullQueue(t *testing.T) {
	hub := newTestHub()
	client := &Client{ID: "slow", Topics: []string{"review/x"}, Send: make(chan []byte, 1)}
	hub.Register(client)

	hub.Broadcast("review/x", Event{Type: "render"})
	hub.Broadcast("review/x", Event{Type: "toast"})

	if hub.Dropped() != 1 {
		t.Errorf("expected 1 dropped delivery, got %d", hub.Dropped())
	}
}

func TestHub_Publish(t *testing.T) {
	hub := newTestHub()
	client := NewClient("review/p")
	hub.Register(client)

	data, _ := json.Marshal(map[string]string{"message": "Data cleared"})
	if err := hub.Publish(context.Background(), Event{Type: "toast", Topic: "review/p", Data: data}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var received Event
	json.Unmarshal(<-client.Send, &received)
	var payload map[string]string
	json.Unmarshal(received.Data, &payload)
	if payload["message"] != "Data cleared" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := newTestHub()
	client := NewClient()
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"review/a", "review/b", "review/a"}})
	if len(client.Topics) != 2 {
		t.Fatalf("expected duplicate topic ignored, got %v", client.Topics)
	}
	if hub.TopicCount("review/a") != 1 || hub.TopicCount("review/b") != 1 {
		t.Fatal("expected both topics subscribed")
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"review/a"}})
	if hub.TopicCount("review/a") != 0 {
		t.Error("expected review/a unsubscribed")
	}
	if len(client.Topics) != 1 || client.Topics[0] != "review/b" {
		t.Errorf("unexpected topics %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "shout"})
	if len(client.Topics) != 1 {
		t.Error("unknown action must not change subscriptions")
	}
}

// -- Handler --

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no list", nil, "http://evil.test", true},
		{"wildcard", []string{"*"}, "http://any.test", true},
		{"listed", []string{"http://ward.test", " http://icu.test"}, "http://icu.test", true},
		{"unlisted", []string{"http://ward.test"}, "http://evil.test", false},
		{"no origin header", []string{"http://ward.test"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(req); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestWebSocketHandler_RequiresUpgrade(t *testing.T) {
	handler := NewWebSocketHandler(newTestHub(), nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := handler.HandleConnect(c); err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Error("expected plain HTTP request to be rejected")
	}
}

func TestWebSocketHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := newTestHub()
	handler := NewWebSocketHandler(hub, nil)

	e := echo.New()
	handler.RegisterRoutes(e.Group(""))
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?review=r1"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	time.Sleep(50 * time.Millisecond)
	if hub.TopicCount("review/r1") != 1 {
		t.Fatalf("expected query subscription to review/r1, got %d", hub.TopicCount("review/r1"))
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{"review/r2"}}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if hub.TopicCount("review/r2") != 1 {
		t.Fatalf("expected 1 subscriber on review/r2, got %d", hub.TopicCount("review/r2"))
	}

	hub.Broadcast("review/r2", Event{Type: "render", Topic: "review/r2", ResourceType: "Review", ResourceID: "r2", Timestamp: time.Now()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.ResourceID != "r2" {
		t.Fatalf("expected ResourceID r2, got %s", received.ResourceID)
	}
}
