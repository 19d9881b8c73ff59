// Package notify counts background notifications for one window surface.
package notify

import (
	"sync/atomic"

	"pkt.systems/shellsync/schema"
)

// Accumulator counts qualifying notifications until the user acknowledges
// them. Tab state traffic never touches it. Safe for concurrent use.
type Accumulator struct {
	count           atomic.Int64
	updateAvailable atomic.Bool
}

// New constructs an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// Increment counts one qualifying event. Events are never coalesced.
func (a *Accumulator) Increment() int {
	return int(a.count.Add(1))
}

// Reset clears the count on explicit acknowledgment. It reports whether
// anything changed; resetting a zero count is a no-op.
func (a *Accumulator) Reset() bool {
	return a.count.Swap(0) != 0
}

// Count returns the current count.
func (a *Accumulator) Count() int {
	return int(a.count.Load())
}

// SetUpdateAvailable records the updater state. It reports whether the flag changed.
func (a *Accumulator) SetUpdateAvailable(available bool) bool {
	return a.updateAvailable.Swap(available) != available
}

// UpdateAvailable reports whether a downloaded update is waiting.
func (a *Accumulator) UpdateAvailable() bool {
	return a.updateAvailable.Load()
}

// Observe folds a notification into the accumulator and reports whether the
// presented state changed.
func (a *Accumulator) Observe(n schema.Notification) bool {
	switch n.Kind {
	case schema.NotificationResolved:
		a.Increment()
		return true
	case schema.NotificationUpdaterState:
		return a.SetUpdateAvailable(n.State == schema.UpdaterDownloaded)
	default:
		return false
	}
}
