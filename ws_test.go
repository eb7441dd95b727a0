package main

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialWS(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/api/selections/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", wsURL, err)
	}

	return conn
}

func TestWebsocketLifecycle(t *testing.T) {
	app := newTestApp(t)

	srv := httptest.NewServer(app.mux)
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var welcome wsEvent
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("reading welcome: %v", err)
	}
	if welcome.Event != eventConnected {
		t.Fatalf("first event = %q, want %q", welcome.Event, eventConnected)
	}

	var payload struct {
		ClientID string `json:"clientId"`
	}
	if err := json.Unmarshal(welcome.Data, &payload); err != nil || payload.ClientID == "" {
		t.Fatalf("welcome payload %s has no clientId: %v", welcome.Data, err)
	}

	waitFor(t, "socket registration", func() bool {
		return app.registry.Len() == 1
	})

	app.registry.Broadcast(eventSelectionUpdate, timestampPayload())

	var update wsEvent
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("reading update: %v", err)
	}
	if update.Event != eventSelectionUpdate {
		t.Fatalf("broadcast event = %q, want %q", update.Event, eventSelectionUpdate)
	}

	conn.Close()

	waitFor(t, "socket teardown", func() bool {
		return app.registry.Len() == 0
	})
}

func TestWebsocketHeartbeat(t *testing.T) {
	app := newTestApp(t)
	app.cfg.heartbeat = 20 * time.Millisecond

	srv := httptest.NewServer(app.mux)
	defer srv.Close()

	conn := dialWS(t, srv.URL)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var welcome wsEvent
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("reading welcome: %v", err)
	}

	var beat wsEvent
	if err := conn.ReadJSON(&beat); err != nil {
		t.Fatalf("reading heartbeat: %v", err)
	}
	if beat.Event != eventHeartbeat {
		t.Fatalf("second event = %q, want %q", beat.Event, eventHeartbeat)
	}

	var millis int64
	if err := json.Unmarshal(beat.Data, &millis); err != nil || millis == 0 {
		t.Errorf("heartbeat payload %s is not a timestamp: %v", beat.Data, err)
	}
}
