// Package client maintains one shared push connection to a lunchbox
// server and fans received update events out to any number of
// subscribers.
//
// Subscribers never receive the push payload itself; an event only means
// the shared cart changed and canonical state should be re-fetched. The
// underlying transport lives exactly as long as at least one subscriber
// does: the first subscriber opens it, the last one tears it down.
package client

import (
	"bufio"
	"context"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnectWait
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnectWait:
		return "reconnect-wait"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Settings struct {
	HTTPClient  *http.Client
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

func DefaultSettings() *Settings {
	return &Settings{
		HTTPClient:  http.DefaultClient,
		BackoffBase: 1 * time.Second,
		BackoffCap:  15 * time.Second,
	}
}

// Controller owns the shared transport, the subscriber registry, and
// the reconnect state machine. All mutable state lives behind one
// mutex, so rapid subscribe/unsubscribe cycles are race-free.
type Controller struct {
	url      string
	settings *Settings

	mu          sync.Mutex
	subscribers map[int]func()
	nextID      int
	state       State
	attempts    int
	visible     bool
	generation  int
	cancel      context.CancelFunc
	timer       *time.Timer
}

func New(url string, settings *Settings) *Controller {
	if settings == nil {
		settings = DefaultSettings()
	}
	if settings.HTTPClient == nil {
		settings.HTTPClient = http.DefaultClient
	}
	if settings.BackoffBase <= 0 {
		settings.BackoffBase = 1 * time.Second
	}
	if settings.BackoffCap <= 0 {
		settings.BackoffCap = 15 * time.Second
	}

	return &Controller{
		url:         url,
		settings:    settings,
		subscribers: make(map[int]func()),
		visible:     true,
	}
}

// Subscribe registers a callback invoked on every update event and
// returns its unsubscribe function. The first subscriber opens the
// transport; unsubscribing the last one closes it and cancels any
// pending reconnect timer. Unsubscribing twice is harmless.
func (c *Controller) Subscribe(fn func()) func() {
	c.mu.Lock()

	id := c.nextID
	c.nextID++
	c.subscribers[id] = fn

	if len(c.subscribers) == 1 {
		c.connectLocked()
	}

	c.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			delete(c.subscribers, id)

			if len(c.subscribers) == 0 {
				c.teardownLocked()
			}
		})
	}
}

// SetVisible suspends or resumes reconnection, mirroring page
// visibility. Going hidden cancels a pending reconnect timer; becoming
// visible retries immediately unless the connection is already up.
func (c *Controller) SetVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.visible = visible

	if !visible {
		c.stopTimerLocked()

		return
	}

	if len(c.subscribers) == 0 || c.state == StateConnected {
		return
	}

	c.stopTimerLocked()
	c.connectLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// connectLocked starts a new transport attempt, invalidating any stream
// or timer from an earlier generation. Caller holds c.mu.
func (c *Controller) connectLocked() {
	c.generation++
	gen := c.generation

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateConnecting

	go c.run(ctx, gen)
}

func (c *Controller) teardownLocked() {
	c.generation++

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	c.stopTimerLocked()
	c.state = StateClosed
	c.attempts = 0
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) run(ctx context.Context, gen int) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		c.onDisconnect(gen)

		return
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.settings.HTTPClient.Do(req)
	if err != nil {
		c.onDisconnect(gen)

		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.onDisconnect(gen)

		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()

		return
	}
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	c.readEvents(resp.Body, gen)
	c.onDisconnect(gen)
}

// readEvents consumes the event stream until it ends. Any update event
// (the named selection event or an unnamed message) triggers the
// subscriber callbacks; payloads are never interpreted.
func (c *Controller) readEvents(body io.Reader, gen int) {
	scanner := bufio.NewScanner(body)
	event := ""
	sawData := false

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if sawData && (event == "" || event == "message" || event == "selection-update") {
				c.fanOut(gen)
			}
			event = ""
			sawData = false
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			sawData = true
		}
	}
}

func (c *Controller) fanOut(gen int) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()

		return
	}
	callbacks := make([]func(), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		callbacks = append(callbacks, fn)
	}
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// onDisconnect handles a failed or ended stream for the given
// generation. Stale generations are ignored, so a torn-down or replaced
// transport cannot schedule reconnects.
func (c *Controller) onDisconnect(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if len(c.subscribers) == 0 {
		c.state = StateClosed

		return
	}

	delay := c.backoff(c.attempts)
	c.attempts++
	c.state = StateReconnectWait

	if !c.visible {
		// Resumed by SetVisible(true).
		return
	}

	c.scheduleReconnectLocked(delay)
}

func (c *Controller) scheduleReconnectLocked(delay time.Duration) {
	c.stopTimerLocked()

	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.timer = nil

		if len(c.subscribers) == 0 || c.state != StateReconnectWait || !c.visible {
			return
		}

		c.connectLocked()
	})
}

func (c *Controller) backoff(attempts int) time.Duration {
	delay := time.Duration(float64(c.settings.BackoffBase) * math.Pow(1.5, float64(attempts)))
	if delay > c.settings.BackoffCap {
		delay = c.settings.BackoffCap
	}

	return delay
}
