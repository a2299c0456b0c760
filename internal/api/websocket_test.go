package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStatsStream(t *testing.T) {
	router := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/stats"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	// The stream sends an initial snapshot immediately.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg statsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read stats frame: %v", err)
	}
	if msg.Type != "stats" {
		t.Errorf("Expected stats frame, got %q", msg.Type)
	}
	if msg.Payload == nil {
		t.Error("Expected a ledger payload")
	}
}

func TestStatsStreamClientDisconnect(t *testing.T) {
	router := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/stats"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	resp.Body.Close()

	// Closing the client side must not wedge the server; a second client can
	// still connect.
	conn.Close()

	conn2, resp2, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial second websocket: %v", err)
	}
	defer conn2.Close()
	defer resp2.Body.Close()

	conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg statsMessage
	if err := conn2.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read stats frame on second connection: %v", err)
	}
}
