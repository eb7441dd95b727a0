package client

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// pushServer is a minimal event-stream endpoint: it greets each
// connection, then emits whatever events the test broadcasts, until the
// client goes away or the test drops the connection.
type pushServer struct {
	srv *httptest.Server

	mu     sync.Mutex
	conns  map[int]*pushConn
	nextID int

	open atomic.Int32
	fail atomic.Int32
}

type pushConn struct {
	events chan string
	kill   chan struct{}
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()

	s := &pushServer{conns: make(map[int]*pushConn)}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)

	return s
}

func (s *pushServer) handle(w http.ResponseWriter, r *http.Request) {
	if s.fail.Load() > 0 {
		s.fail.Add(-1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)

		return
	}

	flusher := w.(http.Flusher)

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	conn := &pushConn{
		events: make(chan string, 8),
		kill:   make(chan struct{}),
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.conns[id] = conn
	s.mu.Unlock()

	s.open.Add(1)

	defer func() {
		s.open.Add(-1)
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-conn.kill:
			return
		case event := <-conn.events:
			fmt.Fprintf(w, "event: %s\ndata: {}\n\n", event)
			flusher.Flush()
		}
	}
}

func (s *pushServer) broadcast(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conn := range s.conns {
		conn.events <- event
	}
}

// drop severs every open connection from the server side.
func (s *pushServer) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conn := range s.conns {
		close(conn.kill)
	}
}

func fastSettings() *Settings {
	return &Settings{
		BackoffBase: 10 * time.Millisecond,
		BackoffCap:  50 * time.Millisecond,
	}
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

func TestSharedTransportFanIn(t *testing.T) {
	server := newPushServer(t)
	controller := New(server.srv.URL, fastSettings())

	var first, second atomic.Int32

	unsubFirst := controller.Subscribe(func() { first.Add(1) })

	waitFor(t, "initial connect", func() bool {
		return controller.State() == StateConnected
	})

	unsubSecond := controller.Subscribe(func() { second.Add(1) })

	if got := server.open.Load(); got != 1 {
		t.Fatalf("open connections = %d, want 1 shared transport", got)
	}

	server.broadcast("selection-update")

	waitFor(t, "both subscribers notified", func() bool {
		return first.Load() == 1 && second.Load() == 1
	})

	unsubFirst()

	server.broadcast("selection-update")

	waitFor(t, "remaining subscriber notified", func() bool {
		return second.Load() == 2
	})

	if got := first.Load(); got != 1 {
		t.Errorf("unsubscribed callback ran %d times, want 1", got)
	}
	if got := server.open.Load(); got != 1 {
		t.Errorf("open connections = %d, want 1 while a subscriber remains", got)
	}

	unsubSecond()
	unsubSecond() // harmless

	waitFor(t, "transport teardown", func() bool {
		return server.open.Load() == 0 && controller.State() == StateClosed
	})
}

func TestIgnoredEvents(t *testing.T) {
	server := newPushServer(t)
	controller := New(server.srv.URL, fastSettings())

	var calls atomic.Int32

	unsub := controller.Subscribe(func() { calls.Add(1) })
	defer unsub()

	waitFor(t, "connect", func() bool {
		return controller.State() == StateConnected
	})

	server.broadcast("heartbeat")
	server.broadcast("selection-update")

	waitFor(t, "update callback", func() bool {
		return calls.Load() == 1
	})

	// Give a mistakenly fanned-out heartbeat time to land.
	time.Sleep(50 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("callbacks = %d, want 1 (heartbeats must not fan out)", got)
	}
}

func TestReconnectAfterFailure(t *testing.T) {
	server := newPushServer(t)
	server.fail.Store(2)

	controller := New(server.srv.URL, fastSettings())

	unsub := controller.Subscribe(func() {})
	defer unsub()

	waitFor(t, "reconnect after failures", func() bool {
		return controller.State() == StateConnected
	})

	if got := server.open.Load(); got != 1 {
		t.Errorf("open connections = %d, want 1", got)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	controller := New("http://127.0.0.1:0", &Settings{
		BackoffBase: 1 * time.Second,
		BackoffCap:  15 * time.Second,
	})

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1500 * time.Millisecond},
		{2, 2250 * time.Millisecond},
		{20, 15 * time.Second},
	}

	for _, tc := range cases {
		if got := controller.backoff(tc.attempts); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}

func TestHiddenSuspendsReconnect(t *testing.T) {
	server := newPushServer(t)
	controller := New(server.srv.URL, fastSettings())

	unsub := controller.Subscribe(func() {})
	defer unsub()

	waitFor(t, "connect", func() bool {
		return controller.State() == StateConnected
	})

	controller.SetVisible(false)
	server.drop()

	waitFor(t, "disconnect detection", func() bool {
		return controller.State() == StateReconnectWait
	})

	// Well past the backoff delay: still no reconnect while hidden.
	time.Sleep(100 * time.Millisecond)

	if got := server.open.Load(); got != 0 {
		t.Fatalf("open connections = %d while hidden, want 0", got)
	}
	if got := controller.State(); got != StateReconnectWait {
		t.Fatalf("state = %v while hidden, want %v", got, StateReconnectWait)
	}

	controller.SetVisible(true)

	waitFor(t, "reconnect on visibility", func() bool {
		return controller.State() == StateConnected && server.open.Load() == 1
	})
}

func TestUnsubscribeCancelsPendingReconnect(t *testing.T) {
	server := newPushServer(t)
	server.fail.Store(1_000_000)

	controller := New(server.srv.URL, &Settings{
		BackoffBase: 5 * time.Second,
		BackoffCap:  15 * time.Second,
	})

	unsub := controller.Subscribe(func() {})

	waitFor(t, "reconnect wait", func() bool {
		return controller.State() == StateReconnectWait
	})

	unsub()

	if got := controller.State(); got != StateClosed {
		t.Errorf("state after last unsubscribe = %v, want %v", got, StateClosed)
	}
}
