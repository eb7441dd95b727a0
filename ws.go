package main

// Websocket variant of the push endpoint, for clients that prefer a
// socket over an event stream. Both transports register the same kind
// of hub channel and carry the same named events.

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"lunchbox/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var errChannelStalled = errors.New("push channel stalled")

type wsEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsChannel queues events into a small buffer drained by writePump. A
// full buffer means the reader stopped draining; the send fails fast
// instead of blocking the hub's fan-out sweep.
type wsChannel struct {
	id   string
	conn *websocket.Conn
	send chan wsEvent
	done chan struct{}
}

func (c *wsChannel) ID() string {
	return c.id
}

func (c *wsChannel) Send(event string, data []byte) error {
	select {
	case c.send <- wsEvent{Event: event, Data: json.RawMessage(data)}:
		return nil
	case <-c.done:
		return errChannelStalled
	default:
		return errChannelStalled
	}
}

func (c *wsChannel) writePump() {
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func serveWS(cfg *Config, registry *hub.Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)

			return
		}

		channel := &wsChannel{
			id:   newConnectionID(),
			conn: conn,
			send: make(chan wsEvent, 8),
			done: make(chan struct{}),
		}

		registry.Register(channel)

		defer func() {
			registry.Unregister(channel.id)
			close(channel.done)
			_ = conn.Close()
			logf(cfg, "PUSH: Socket %s closed", channel.id)
		}()

		go channel.writePump()

		logf(cfg, "PUSH: Socket %s opened by %s", channel.id, realIP(r))

		welcome, _ := json.Marshal(map[string]string{
			"clientId": channel.id,
			"message":  "Connected to selection updates",
		})

		if err := channel.Send(eventConnected, welcome); err != nil {
			return
		}

		// Heartbeats on the same cadence as the event stream.
		go func() {
			ticker := time.NewTicker(cfg.heartbeat)
			defer ticker.Stop()

			for {
				select {
				case <-channel.done:
					return
				case <-ticker.C:
					beat := []byte(strconv.FormatInt(time.Now().UnixMilli(), 10))
					if err := channel.Send(eventHeartbeat, beat); err != nil {
						_ = conn.Close()

						return
					}
				}
			}
		}()

		// Drain the socket to detect client disconnect.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
