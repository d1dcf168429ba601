// Package dedupe applies a single refractory cooldown window to suppress
// repeat bursts from the same physical impact.
package dedupe

import (
	"time"

	"github.com/banshee-data/impactrange/internal/timeutil"
)

// Window tracks the last accepted-HIT timestamp. It is owned by a single
// actor and must not be shared across goroutines without external
// synchronization, matching the classifier's EMA ownership model.
type Window struct {
	clock      timeutil.Clock
	lastAccept time.Time
	hasAccept  bool
}

// New creates a cooldown window driven by clock.
func New(clock timeutil.Clock) *Window {
	return &Window{clock: clock}
}

// Check reports whether a HIT occurring now should be accepted against the
// given cooldown duration. Mode changes do not reset the timer; accepting
// stamps last_accept unconditionally, including after a cooldown drop.
func (w *Window) Check(cooldown time.Duration) (accept bool, reason string) {
	now := w.clock.Now()
	if w.hasAccept && now.Sub(w.lastAccept) < cooldown {
		return false, "cooldown"
	}
	w.lastAccept = now
	w.hasAccept = true
	return true, ""
}
