package events

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func TestHubStreamsEventsAsJSON(t *testing.T) {
	bus := NewBus()
	server := httptest.NewServer(NewHub(bus, HubOptions{}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("hub never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	bus.Publish(TypeCustomerDetailsUpdated, map[string]string{"email": "ada@example.com"})

	var got struct {
		Type    string            `json:"type"`
		Payload map[string]string `json:"payload"`
	}
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != TypeCustomerDetailsUpdated || got.Payload["email"] != "ada@example.com" {
		t.Fatalf("unexpected message %+v", got)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "")
	deadline = time.Now().Add(2 * time.Second)
	for bus.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected hub to unsubscribe after client close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
