package common

import (
	"sync"
	"time"
)

// ControlTimer is a recurring fixed-interval timer whose lifecycle is owned
// by the component that holds it. The owner launches Run in its own
// goroutine; the callback runs on that goroutine, so two callbacks of the
// same timer never overlap.
type ControlTimer struct {
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewControlTimer returns a stopped-but-armed timer. Nothing fires until Run
// is called.
func NewControlTimer(interval time.Duration) *ControlTimer {
	return &ControlTimer{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Run executes fn on every tick until fn returns false or the timer is
// stopped. It is meant to be launched in its own goroutine.
func (c *ControlTimer) Run(fn func() bool) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// a tick may already be queued when Stop is called
			select {
			case <-c.stopCh:
				return
			default:
			}
			if !fn() {
				return
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop terminates the Run loop. No further ticks fire after Stop returns.
// Stopping an already-stopped timer is a no-op.
func (c *ControlTimer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}
