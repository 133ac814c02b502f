package lifecycle

import (
	"sync"
	"time"
)

// WatchdogTimeout is the inactivity window before a non-sidecar process
// self-terminates.
const WatchdogTimeout = 90 * time.Second

// Watchdog self-terminates the process after WatchdogTimeout of inactivity.
// Disabled entirely in sidecar mode (the caller simply never starts one).
type Watchdog struct {
	mu       sync.Mutex
	lastPing time.Time
	timer    *time.Timer
	onFire   func()
}

// NewWatchdog builds a Watchdog that calls onFire once, after
// WatchdogTimeout with no intervening Ping.
func NewWatchdog(onFire func()) *Watchdog {
	w := &Watchdog{lastPing: time.Now(), onFire: onFire}
	w.timer = time.AfterFunc(WatchdogTimeout, w.fire)
	return w
}

// Ping resets the inactivity window; call on every request.
func (w *Watchdog) Ping() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastPing = time.Now()
	w.timer.Reset(WatchdogTimeout)
}

func (w *Watchdog) fire() {
	w.mu.Lock()
	idle := time.Since(w.lastPing)
	w.mu.Unlock()
	if idle >= WatchdogTimeout && w.onFire != nil {
		w.onFire()
	}
}

// Stop cancels the watchdog's pending timer.
func (w *Watchdog) Stop() {
	w.timer.Stop()
}
