package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/shellsync/schema"
)

// DefaultDepth is the per-subscriber buffer used when none is configured.
const DefaultDepth = schema.DefaultChannelDepth

// Subscription is one consumer's ordered delta stream for a window.
// The first value on C is always a replace carrying the window snapshot.
type Subscription struct {
	ID     schema.SubscriptionID
	Window schema.WindowID
	C      <-chan schema.Delta

	ch     chan schema.Delta
	bus    *Bus
	closed bool
}

// Cancel detaches the subscription and closes C. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.cancel(s)
}

// Bus delivers deltas to the subscribers of each window. Publishing never
// blocks: a subscriber whose buffer is full has its queue discarded and
// replaced with a single fresh replace.
type Bus struct {
	mu     sync.Mutex
	subs   map[schema.WindowID]map[schema.SubscriptionID]*Subscription
	nextID schema.SubscriptionID
	log    pslog.Logger
	depth  int
}

// New constructs a Bus.
func New(logger pslog.Logger, depth int) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Bus{
		subs:  make(map[schema.WindowID]map[schema.SubscriptionID]*Subscription),
		log:   logger,
		depth: depth,
	}
}

// Subscribe registers a subscriber for window and queues initial ahead of
// any later publish. Callers that need a gap-free attach must hold their
// writer lock across building initial and calling Subscribe.
func (b *Bus) Subscribe(window schema.WindowID, initial schema.Delta) *Subscription {
	ch := make(chan schema.Delta, b.depth)
	ch <- initial
	b.mu.Lock()
	b.nextID++
	sub := &Subscription{
		ID:     b.nextID,
		Window: window,
		C:      ch,
		ch:     ch,
		bus:    b,
	}
	windowSubs := b.subs[window]
	if windowSubs == nil {
		windowSubs = make(map[schema.SubscriptionID]*Subscription)
		b.subs[window] = windowSubs
	}
	windowSubs[sub.ID] = sub
	count := len(windowSubs)
	b.mu.Unlock()
	b.log.With("window", window, "sub", sub.ID).Debug("eventbus subscribe", "subs", count, "seq", initial.Seq)
	return sub
}

// Publish delivers delta to every subscriber of delta.Window. resync is
// called at most once, only if some subscriber overflowed, and must return
// a replace describing the state after delta. It runs with the bus lock
// held. Publish returns the number of subscribers that were resynced.
func (b *Bus) Publish(delta schema.Delta, resync func() schema.Delta) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	windowSubs := b.subs[delta.Window]
	if len(windowSubs) == 0 {
		return 0
	}
	var (
		replace  schema.Delta
		built    bool
		overflow int
	)
	for _, sub := range windowSubs {
		select {
		case sub.ch <- delta:
			continue
		default:
		}
		overflow++
		if resync == nil {
			b.log.With("window", delta.Window, "sub", sub.ID).Error("eventbus overflow without resync source, detaching")
			b.cancelLocked(sub)
			continue
		}
		if !built {
			replace = resync()
			built = true
		}
		sub.resetLocked(replace)
	}
	if overflow > 0 {
		b.log.With("window", delta.Window).Warn("eventbus subscriber overflow", "count", overflow, "seq", delta.Seq)
	} else {
		b.log.With("window", delta.Window).Trace("eventbus publish", "kind", delta.Kind, "seq", delta.Seq, "subs", len(windowSubs))
	}
	return overflow
}

// Resync discards whatever is queued for one subscriber and queues replace.
// It reports false when the subscriber is gone.
func (b *Bus) Resync(window schema.WindowID, id schema.SubscriptionID, replace schema.Delta) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := b.subs[window][id]
	if sub == nil {
		return false
	}
	sub.resetLocked(replace)
	b.log.With("window", window, "sub", id).Debug("eventbus resync", "seq", replace.Seq)
	return true
}

// CloseWindow detaches every subscriber of window and returns how many there were.
func (b *Bus) CloseWindow(window schema.WindowID) int {
	b.mu.Lock()
	windowSubs := b.subs[window]
	count := len(windowSubs)
	for _, sub := range windowSubs {
		b.cancelLocked(sub)
	}
	delete(b.subs, window)
	b.mu.Unlock()
	if count > 0 {
		b.log.With("window", window).Debug("eventbus window closed", "subs", count)
	}
	return count
}

// Subscribers returns the number of live subscribers for window.
func (b *Bus) Subscribers(window schema.WindowID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[window])
}

func (b *Bus) cancel(sub *Subscription) {
	b.mu.Lock()
	wasOpen := !sub.closed
	b.cancelLocked(sub)
	b.mu.Unlock()
	if wasOpen {
		b.log.With("window", sub.Window, "sub", sub.ID).Debug("eventbus unsubscribe")
	}
}

func (b *Bus) cancelLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	if windowSubs := b.subs[sub.Window]; windowSubs != nil {
		delete(windowSubs, sub.ID)
		if len(windowSubs) == 0 {
			delete(b.subs, sub.Window)
		}
	}
	close(sub.ch)
}

// resetLocked empties the queue and leaves replace as its only entry. Only
// the bus sends on ch, so after draining there is room for one value.
func (s *Subscription) resetLocked(replace schema.Delta) {
	if s.closed {
		return
	}
	for {
		select {
		case <-s.ch:
		default:
			select {
			case s.ch <- replace:
			default:
			}
			return
		}
	}
}
