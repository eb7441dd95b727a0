package hub

import (
	"sync"
	"time"
)

// Notifier coalesces rapid notifications into a single delivery. A
// notification while the quiet window since the last fire is still open
// schedules one trailing fire instead; further notifications reset that
// timer. With a zero quiet window every notification fires immediately.
type Notifier struct {
	mu       sync.Mutex
	quiet    time.Duration
	lastFire time.Time
	pending  *time.Timer
	fire     func()
}

func NewNotifier(quiet time.Duration, fire func()) *Notifier {
	return &Notifier{
		quiet: quiet,
		fire:  fire,
	}
}

func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pending != nil {
		n.pending.Stop()
		n.pending = nil
	}

	if n.quiet > 0 && time.Since(n.lastFire) < n.quiet {
		n.pending = time.AfterFunc(n.quiet, n.fireNow)

		return
	}

	n.lastFire = time.Now()
	n.fire()
}

func (n *Notifier) fireNow() {
	n.mu.Lock()
	n.lastFire = time.Now()
	n.pending = nil
	n.mu.Unlock()

	n.fire()
}

// Stop cancels any pending delivery. Stopping twice is harmless.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.pending != nil {
		n.pending.Stop()
		n.pending = nil
	}
}
