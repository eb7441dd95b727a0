package main

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// sseEvent is one parsed frame from a text/event-stream body.
type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, scanner *bufio.Scanner) sseEvent {
	t.Helper()

	var event sseEvent

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if event.name != "" || event.data != "" {
				return event
			}
		case strings.HasPrefix(line, "event: "):
			event.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			event.data = strings.TrimPrefix(line, "data: ")
		}
	}

	t.Fatalf("stream ended before a complete event: %v", scanner.Err())

	return event
}

func openStream(t *testing.T, url string) (*http.Response, *bufio.Scanner) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("opening stream: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	return resp, bufio.NewScanner(resp.Body)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", what)
}

func TestEventsStreamLifecycle(t *testing.T) {
	app := newTestApp(t)

	srv := httptest.NewServer(app.mux)
	defer srv.Close()

	resp, scanner := openStream(t, srv.URL+"/api/selections/events")
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := resp.Header.Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}

	welcome := readEvent(t, scanner)
	if welcome.name != eventConnected {
		t.Fatalf("first event = %q, want %q", welcome.name, eventConnected)
	}

	var payload struct {
		ClientID string `json:"clientId"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal([]byte(welcome.data), &payload); err != nil {
		t.Fatalf("decoding welcome payload: %v", err)
	}
	if payload.ClientID == "" {
		t.Error("welcome payload has no clientId")
	}
	if payload.Message != "Connected to selection updates" {
		t.Errorf("welcome message = %q", payload.Message)
	}

	waitFor(t, "channel registration", func() bool {
		return app.registry.Len() == 1
	})

	app.registry.Broadcast(eventSelectionUpdate, timestampPayload())

	update := readEvent(t, scanner)
	if update.name != eventSelectionUpdate {
		t.Fatalf("broadcast event = %q, want %q", update.name, eventSelectionUpdate)
	}

	var body struct {
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(update.data), &body); err != nil {
		t.Fatalf("decoding update payload: %v", err)
	}
	if body.Timestamp == 0 {
		t.Error("update payload has no timestamp")
	}

	resp.Body.Close()

	waitFor(t, "channel teardown", func() bool {
		return app.registry.Len() == 0
	})
}

func TestEventsHeartbeat(t *testing.T) {
	app := newTestApp(t)
	app.cfg.heartbeat = 20 * time.Millisecond

	srv := httptest.NewServer(app.mux)
	defer srv.Close()

	resp, scanner := openStream(t, srv.URL+"/api/selections/events")
	defer resp.Body.Close()

	if welcome := readEvent(t, scanner); welcome.name != eventConnected {
		t.Fatalf("first event = %q, want %q", welcome.name, eventConnected)
	}

	beat := readEvent(t, scanner)
	if beat.name != eventHeartbeat {
		t.Fatalf("second event = %q, want %q", beat.name, eventHeartbeat)
	}

	// The payload is a bare millisecond timestamp.
	var millis int64
	if err := json.Unmarshal([]byte(beat.data), &millis); err != nil || millis == 0 {
		t.Errorf("heartbeat payload %q is not a timestamp: %v", beat.data, err)
	}
}

func TestEventsMutationReachesStream(t *testing.T) {
	app := newTestApp(t)

	srv := httptest.NewServer(app.mux)
	defer srv.Close()

	resp, scanner := openStream(t, srv.URL+"/api/selections/events")
	defer resp.Body.Close()

	readEvent(t, scanner)

	waitFor(t, "channel registration", func() bool {
		return app.registry.Len() == 1
	})

	app.addDish(t, "An")

	update := readEvent(t, scanner)
	if update.name != eventSelectionUpdate {
		t.Fatalf("event after add = %q, want %q", update.name, eventSelectionUpdate)
	}
}
