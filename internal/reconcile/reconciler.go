// Package reconcile mirrors one window's tab state from its delta stream
// and derives what the window surface presents.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"pkt.systems/pslog"
	"pkt.systems/shellsync/core"
	"pkt.systems/shellsync/internal/eventbus"
	"pkt.systems/shellsync/internal/logx"
	"pkt.systems/shellsync/internal/menu"
	"pkt.systems/shellsync/internal/notify"
	"pkt.systems/shellsync/schema"
)

// Surface is the window chrome a Reconciler drives.
type Surface interface {
	// RequestUIRefresh asks the surface to redraw from view. Best effort;
	// repeated calls are harmless.
	RequestUIRefresh(ctx context.Context, window schema.WindowID, view schema.Presentation)
	// ApplyMenuTemplate installs a rebuilt window menu.
	ApplyMenuTemplate(ctx context.Context, window schema.WindowID, tpl menu.Template)
}

// RefreshDiscarder is implemented by surfaces that queue refreshes. A
// Reconciler calls DiscardRefreshes when it detaches so nothing it asked
// for earlier is drawn afterwards.
type RefreshDiscarder interface {
	DiscardRefreshes(window schema.WindowID)
}

// Resyncer asks the state owner to queue a fresh replace for a subscriber.
type Resyncer interface {
	Resync(ctx context.Context, window schema.WindowID, id schema.SubscriptionID) error
}

// TabOpener creates tabs on the state owner.
type TabOpener interface {
	CreateTab(ctx context.Context, window schema.WindowID, url string, opts core.CreateTabOptions) (schema.TabRecord, error)
}

// Deps wires a Reconciler to its collaborators. Only Subscription is required.
type Deps struct {
	Resyncer      Resyncer
	Tabs          TabOpener
	Surface       Surface
	Accumulator   *notify.Accumulator
	Notifications <-chan schema.Notification
	Platform      string
}

// Stats counts what a Reconciler has done.
type Stats struct {
	Applied      uint64
	Skipped      uint64
	Violations   uint64
	Resyncs      uint64
	MenuRebuilds uint64
	Refreshes    uint64
	Discarded    uint64
}

var errAwaitingReplace = errors.New("awaiting replace")

// Reconciler owns the mirror for one subscription. Apply, Drain and Run
// must be driven from a single goroutine; Presentation, Observe and
// AcknowledgeNotifications may be called from any goroutine.
type Reconciler struct {
	window   schema.WindowID
	sub      *eventbus.Subscription
	resyncer Resyncer
	opener   TabOpener
	surface  Surface
	acc      *notify.Accumulator
	feed     <-chan schema.Notification
	platform string

	tabs        []schema.TabRecord
	fullscreen  bool
	seq         uint64
	synced      bool
	activeIndex int
	scheme      string
	lastScheme  string
	rebuildMenu bool

	view     atomic.Pointer[schema.Presentation]
	detached atomic.Bool

	applied      atomic.Uint64
	skipped      atomic.Uint64
	violations   atomic.Uint64
	resyncs      atomic.Uint64
	menuRebuilds atomic.Uint64
	refreshes    atomic.Uint64
	discarded    atomic.Uint64
}

// New constructs a Reconciler for sub.
func New(sub *eventbus.Subscription, deps Deps) *Reconciler {
	surface := deps.Surface
	if surface == nil {
		surface = nopSurface{}
	}
	acc := deps.Accumulator
	if acc == nil {
		acc = notify.New()
	}
	r := &Reconciler{
		window:      sub.Window,
		sub:         sub,
		resyncer:    deps.Resyncer,
		opener:      deps.Tabs,
		surface:     surface,
		acc:         acc,
		feed:        deps.Notifications,
		platform:    deps.Platform,
		activeIndex: -1,
		scheme:      schema.SchemeNone,
		lastScheme:  schema.SchemeNone,
	}
	r.publish()
	return r
}

// Apply folds one delta into the mirror. A delta that does not fit the
// mirror discards it, requests a resync and returns an error wrapping
// schema.ErrProtocolViolation. Updates that arrive while a resync is
// pending are skipped.
func (r *Reconciler) Apply(ctx context.Context, d schema.Delta) error {
	log := logx.WithWindow(ctx, r.window)
	var err error
	switch {
	case d.Window != r.window:
		err = fmt.Errorf("%w: delta for window %s", schema.ErrProtocolViolation, d.Window)
	case d.Kind == schema.DeltaReplace:
		err = r.applyReplace(d)
	case d.Kind == schema.DeltaUpdate:
		err = r.applyUpdate(d)
	default:
		err = fmt.Errorf("%w: unknown delta kind %q", schema.ErrProtocolViolation, d.Kind)
	}
	if errors.Is(err, errAwaitingReplace) {
		r.skipped.Add(1)
		log.Trace("reconcile update skipped, awaiting replace", "seq", d.Seq)
		return nil
	}
	if err != nil {
		r.violation(ctx, d, err)
		return err
	}
	r.applied.Add(1)
	if r.rebuildMenu {
		r.applyMenu(ctx, menu.Options{Scheme: r.scheme, Platform: r.platform})
		r.rebuildMenu = false
	}
	r.publish()
	log.Trace("reconcile applied", "kind", d.Kind, "seq", d.Seq, "active", r.activeIndex, "scheme", r.scheme)
	return nil
}

func (r *Reconciler) applyReplace(d schema.Delta) error {
	if err := schema.CheckTabs(d.Tabs); err != nil {
		return fmt.Errorf("%w: replace at seq %d: %w", schema.ErrProtocolViolation, d.Seq, err)
	}
	if r.synced && d.Seq < r.seq {
		return fmt.Errorf("%w: replace seq %d behind mirror seq %d", schema.ErrProtocolViolation, d.Seq, r.seq)
	}
	r.tabs = schema.CloneTabs(d.Tabs)
	r.fullscreen = d.IsFullscreen
	r.seq = d.Seq
	r.synced = true
	r.recompute()
	return nil
}

func (r *Reconciler) applyUpdate(d schema.Delta) error {
	if !r.synced {
		return errAwaitingReplace
	}
	if d.Seq != r.seq+1 {
		return fmt.Errorf("%w: %w: got seq %d after %d", schema.ErrProtocolViolation, schema.ErrSequenceGap, d.Seq, r.seq)
	}
	if d.Index < 0 || d.Index >= len(r.tabs) {
		return fmt.Errorf("%w: %w: update index %d on %d tabs", schema.ErrProtocolViolation, schema.ErrTabIndexOutOfRange, d.Index, len(r.tabs))
	}
	wasActive := d.Index == r.activeIndex
	if d.Patch.IsActive != nil && *d.Patch.IsActive && r.activeIndex >= 0 && r.activeIndex != d.Index {
		r.tabs[r.activeIndex].IsActive = false
	}
	r.tabs[d.Index] = d.Patch.Merge(r.tabs[d.Index])
	r.seq = d.Seq
	if d.Patch.IsActive != nil {
		if err := schema.CheckTabs(r.tabs); err != nil {
			return fmt.Errorf("%w: update at seq %d: %w", schema.ErrProtocolViolation, d.Seq, err)
		}
	}
	if wasActive || r.tabs[d.Index].IsActive {
		r.recompute()
	}
	return nil
}

// recompute derives the active tab and scheme from the mirror and arms the
// menu rebuild when the scheme moved.
func (r *Reconciler) recompute() {
	r.activeIndex = schema.ActiveIndex(r.tabs)
	r.scheme = schema.SchemeNone
	if r.activeIndex >= 0 {
		r.scheme = schema.URLScheme(r.tabs[r.activeIndex].URL)
	}
	if r.scheme != r.lastScheme {
		r.rebuildMenu = true
		r.lastScheme = r.scheme
	}
}

func (r *Reconciler) violation(ctx context.Context, d schema.Delta, cause error) {
	log := r.logger(ctx)
	r.violations.Add(1)
	r.tabs = nil
	r.synced = false
	r.rebuildMenu = false
	log.Warn("reconcile protocol violation, discarding mirror", "kind", d.Kind, "seq", d.Seq, "err", cause)
	if r.resyncer == nil || r.detached.Load() {
		return
	}
	if err := r.resyncer.Resync(ctx, r.window, r.sub.ID); err != nil {
		log.Error("reconcile resync request failed", "err", err)
		return
	}
	r.resyncs.Add(1)
}

func (r *Reconciler) applyMenu(ctx context.Context, opts menu.Options) {
	tpl := menu.Build(opts)
	r.surface.ApplyMenuTemplate(ctx, r.window, tpl)
	r.menuRebuilds.Add(1)
	logx.WithWindow(ctx, r.window).Debug("reconcile menu rebuilt", "variant", tpl.Variant, "scheme", opts.Scheme)
}

// logger binds window and subscription fields unless ctx already carries them.
func (r *Reconciler) logger(ctx context.Context) pslog.Logger {
	log := logx.WithWindow(ctx, r.window)
	if logx.SubscriptionFromContext(ctx) != r.sub.ID {
		log = logx.WithSubscription(log, r.sub.ID)
	}
	return log
}

// publish stores an immutable view of the mirror.
func (r *Reconciler) publish() {
	view := &schema.Presentation{
		Window:         r.window,
		Tabs:           schema.CloneTabs(r.tabs),
		IsFullscreen:   r.fullscreen,
		ActiveTabIndex: r.activeIndex,
		URLScheme:      r.scheme,
		Seq:            r.seq,
	}
	r.view.Store(view)
}

// Presentation returns the last consistent view merged with the current
// notification state.
func (r *Reconciler) Presentation() schema.Presentation {
	view := *r.view.Load()
	view.Tabs = schema.CloneTabs(view.Tabs)
	view.NotificationCount = r.acc.Count()
	view.UpdateAvailable = r.acc.UpdateAvailable()
	return view
}

// Synced reports whether the mirror currently holds a valid snapshot.
func (r *Reconciler) Synced() bool {
	return r.synced
}

// Detached reports whether the subscription has ended.
func (r *Reconciler) Detached() bool {
	return r.detached.Load()
}

// Stats returns the counters.
func (r *Reconciler) Stats() Stats {
	return Stats{
		Applied:      r.applied.Load(),
		Skipped:      r.skipped.Load(),
		Violations:   r.violations.Load(),
		Resyncs:      r.resyncs.Load(),
		MenuRebuilds: r.menuRebuilds.Load(),
		Refreshes:    r.refreshes.Load(),
		Discarded:    r.discarded.Load(),
	}
}

// Observe folds a secondary notification into the presentation.
func (r *Reconciler) Observe(ctx context.Context, n schema.Notification) {
	if r.acc.Observe(n) {
		r.refresh(ctx)
	}
}

// AcknowledgeNotifications resets the notification count. Acknowledging
// with nothing pending does nothing.
func (r *Reconciler) AcknowledgeNotifications(ctx context.Context) {
	if r.acc.Reset() {
		r.refresh(ctx)
	}
}

// OpenWatchlist acknowledges pending notifications and opens the watchlist
// page as the active tab. The tab arrives through the delta stream like any
// other store change.
func (r *Reconciler) OpenWatchlist(ctx context.Context) (schema.TabRecord, error) {
	if r.detached.Load() {
		return schema.TabRecord{}, schema.ErrDetached
	}
	if r.opener == nil {
		return schema.TabRecord{}, errors.New("reconcile: no tab opener configured")
	}
	pending := r.acc.Count()
	r.AcknowledgeNotifications(ctx)
	tab, err := r.opener.CreateTab(ctx, r.window, schema.WatchlistURL, core.CreateTabOptions{SetActive: true})
	if err != nil {
		return schema.TabRecord{}, fmt.Errorf("open watchlist: %w", err)
	}
	logx.WithWindowTab(ctx, r.window, tab.Index).Debug("reconcile watchlist opened", "acknowledged", pending)
	return tab, nil
}

func (r *Reconciler) refresh(ctx context.Context) {
	if r.detached.Load() {
		r.discarded.Add(1)
		return
	}
	r.refreshes.Add(1)
	r.surface.RequestUIRefresh(ctx, r.window, r.Presentation())
}

type nopSurface struct{}

func (nopSurface) RequestUIRefresh(context.Context, schema.WindowID, schema.Presentation) {}

func (nopSurface) ApplyMenuTemplate(context.Context, schema.WindowID, menu.Template) {}
