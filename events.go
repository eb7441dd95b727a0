package main

// Server-sent events push endpoint. Each open stream registers one
// channel with the hub; the connection leaves its open state only when
// the client goes away or a write fails, and both paths unregister the
// channel and stop the heartbeat ticker.

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"lunchbox/hub"
)

const (
	eventConnected       = "connected"
	eventHeartbeat       = "heartbeat"
	eventSelectionUpdate = "selection-update"
	eventMenuUpdate      = "menu-update"
)

// timestampPayload is the entire payload of an update event. Clients
// re-fetch canonical state rather than interpreting pushed data.
func timestampPayload() []byte {
	data, _ := json.Marshal(map[string]int64{"timestamp": time.Now().UnixMilli()})

	return data
}

func newConnectionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	return hex.EncodeToString(buf)
}

// sseChannel writes named events in text/event-stream framing. The
// mutex serializes hub broadcasts against the endpoint's own heartbeat
// writes.
type sseChannel struct {
	id      string
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func (c *sseChannel) ID() string {
	return c.id
}

func (c *sseChannel) Send(event string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}

	c.flusher.Flush()

	return nil
}

func serveEvents(cfg *Config, registry *hub.Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		// The stream outlives the server's write timeout.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		channel := &sseChannel{
			id:      newConnectionID(),
			w:       w,
			flusher: flusher,
		}

		registry.Register(channel)
		defer registry.Unregister(channel.id)

		logf(cfg, "PUSH: Channel %s opened by %s", channel.id, realIP(r))

		welcome, _ := json.Marshal(map[string]string{
			"clientId": channel.id,
			"message":  "Connected to selection updates",
		})

		if err := channel.Send(eventConnected, welcome); err != nil {
			logf(cfg, "PUSH: Channel %s failed on connect: %v", channel.id, err)

			return
		}

		ticker := time.NewTicker(cfg.heartbeat)
		defer ticker.Stop()

		ctx := r.Context()

		for {
			select {
			case <-ctx.Done():
				logf(cfg, "PUSH: Channel %s closed by client", channel.id)

				return
			case <-ticker.C:
				beat := []byte(strconv.FormatInt(time.Now().UnixMilli(), 10))
				if err := channel.Send(eventHeartbeat, beat); err != nil {
					logf(cfg, "PUSH: Channel %s failed on heartbeat: %v", channel.id, err)

					return
				}
			}
		}
	}
}
