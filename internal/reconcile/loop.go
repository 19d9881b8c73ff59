package reconcile

import (
	"context"
	"errors"

	"pkt.systems/shellsync/internal/logx"
	"pkt.systems/shellsync/internal/menu"
	"pkt.systems/shellsync/schema"
)

// Drain applies every delta already queued on the subscription and then
// requests a single refresh for the batch. It returns the number of deltas
// taken off the channel and the first protocol violation, if any. When the
// channel has been closed the Reconciler detaches and Drain reports
// schema.ErrDetached.
func (r *Reconciler) Drain(ctx context.Context) (int, error) {
	if r.detached.Load() {
		return 0, schema.ErrDetached
	}
	n, closed, err := r.drainReady(ctx)
	if closed {
		r.detach(ctx, true)
		if err == nil {
			err = schema.ErrDetached
		}
		return n, err
	}
	if n > 0 {
		r.refresh(ctx)
	}
	return n, err
}

// Run consumes the delta stream and the notification feed until the window
// closes or ctx ends. Deltas that are ready together are applied as one
// batch followed by one refresh. Protocol violations are recovered by
// resync and do not stop the loop.
func (r *Reconciler) Run(ctx context.Context) error {
	log := r.logger(ctx)
	ctx = logx.ContextWithSubscription(logx.ContextWithWindowLogger(ctx, log, r.window), r.sub.ID)
	log.Debug("reconcile loop start")
	feed := r.feed
	for {
		select {
		case <-ctx.Done():
			r.detach(ctx, false)
			log.Debug("reconcile loop cancelled")
			return ctx.Err()
		case d, ok := <-r.sub.C:
			if !ok {
				r.detach(ctx, true)
				log.Debug("reconcile loop end, window closed")
				return nil
			}
			err := r.Apply(ctx, d)
			_, closed, drainErr := r.drainReady(ctx)
			if err == nil {
				err = drainErr
			}
			if err != nil {
				// Apply has already asked for a resync.
				log.Debug("reconcile batch violation", "error", err)
			}
			if closed {
				r.detach(ctx, true)
				log.Debug("reconcile loop end, window closed")
				return nil
			}
			r.refresh(ctx)
		case n, ok := <-feed:
			if !ok {
				feed = nil
				continue
			}
			r.Observe(ctx, n)
		}
	}
}

// drainReady applies deltas until the channel is empty or closed.
func (r *Reconciler) drainReady(ctx context.Context) (int, bool, error) {
	var first error
	n := 0
	for {
		select {
		case d, ok := <-r.sub.C:
			if !ok {
				return n, true, first
			}
			n++
			if err := r.Apply(ctx, d); err != nil && first == nil {
				first = err
			}
		default:
			return n, false, first
		}
	}
}

// Detach cancels the subscription. Refreshes still queued on the surface
// and any requested afterwards are discarded.
func (r *Reconciler) Detach(ctx context.Context) {
	r.detach(ctx, false)
}

// detach marks the Reconciler detached. When the window itself went away
// the surface gets the no-windows menu once.
func (r *Reconciler) detach(ctx context.Context, windowClosed bool) {
	if !r.detached.CompareAndSwap(false, true) {
		return
	}
	r.sub.Cancel()
	if d, ok := r.surface.(RefreshDiscarder); ok {
		d.DiscardRefreshes(r.window)
	}
	if windowClosed {
		r.applyMenu(ctx, menu.Options{Scheme: schema.SchemeNone, NoWindows: true, Platform: r.platform})
		r.lastScheme = schema.SchemeNone
	}
	r.logger(ctx).Info("reconcile detached", "window_closed", windowClosed)
}

// IsDetached reports whether err means the stream has ended.
func IsDetached(err error) bool {
	return errors.Is(err, schema.ErrDetached)
}
