package hub

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNotifierFiresImmediatelyWhenIdle(t *testing.T) {
	var fired atomic.Int32

	n := NewNotifier(50*time.Millisecond, func() {
		fired.Add(1)
	})
	defer n.Stop()

	n.Notify()

	if got := fired.Load(); got != 1 {
		t.Errorf("expected immediate fire, got %d", got)
	}
}

func TestNotifierCoalescesBursts(t *testing.T) {
	var fired atomic.Int32

	n := NewNotifier(50*time.Millisecond, func() {
		fired.Add(1)
	})
	defer n.Stop()

	// First notification is immediate; the burst behind it should
	// collapse into a single trailing fire.
	for i := 0; i < 5; i++ {
		n.Notify()
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.Now().Add(time.Second)
	for fired.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Allow the quiet window to drain fully before counting.
	time.Sleep(100 * time.Millisecond)

	if got := fired.Load(); got != 2 {
		t.Errorf("expected exactly 2 fires (leading + trailing), got %d", got)
	}
}

func TestNotifierStopCancelsPending(t *testing.T) {
	var fired atomic.Int32

	n := NewNotifier(50*time.Millisecond, func() {
		fired.Add(1)
	})

	n.Notify()
	n.Notify() // scheduled trailing fire

	n.Stop()
	n.Stop() // double-stop must be harmless

	time.Sleep(150 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Errorf("expected only the immediate fire after Stop, got %d", got)
	}
}

func TestNotifierZeroWindowAlwaysFires(t *testing.T) {
	var fired atomic.Int32

	n := NewNotifier(0, func() {
		fired.Add(1)
	})
	defer n.Stop()

	n.Notify()
	n.Notify()
	n.Notify()

	if got := fired.Load(); got != 3 {
		t.Errorf("expected every notification to fire with a zero window, got %d", got)
	}
}
