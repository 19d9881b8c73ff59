package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/shellsync/core"
	"pkt.systems/shellsync/internal/menu"
	"pkt.systems/shellsync/internal/reconcile"
	"pkt.systems/shellsync/schema"
)

// Report is the outcome of a scenario run.
type Report struct {
	Name       string       `yaml:"name"`
	Steps      []StepResult `yaml:"steps"`
	Violations []string     `yaml:"violations,omitempty"`
}

// OK reports whether every checked mirror matched the store.
func (r Report) OK() bool {
	return len(r.Violations) == 0
}

// StepResult is what the first consumer of a window presented after a step.
type StepResult struct {
	Step         int                 `yaml:"step"`
	Op           Op                  `yaml:"op"`
	Window       string              `yaml:"window"`
	Presentation schema.Presentation `yaml:"presentation"`
	MenuVariant  menu.Variant        `yaml:"menu_variant,omitempty"`
	MenuRebuilds uint64              `yaml:"menu_rebuilds"`
	Reopened     *bool               `yaml:"reopened,omitempty"`
	Detached     bool                `yaml:"detached,omitempty"`
}

// Options configures a Runner.
type Options struct {
	Platform string
	Logger   pslog.Logger
}

// Runner replays scenarios against a store.
type Runner struct {
	store    core.Store
	platform string
	log      pslog.Logger
	windows  map[string]*windowRun
}

type windowRun struct {
	id        schema.WindowID
	consumers []*consumer
}

type consumer struct {
	rec     *reconcile.Reconciler
	surface *menuRecorder
}

// NewRunner constructs a Runner over store.
func NewRunner(store core.Store, opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Runner{
		store:    store,
		platform: opts.Platform,
		log:      log,
		windows:  make(map[string]*windowRun),
	}
}

// Run executes sc step by step. A store error stops the run and is
// returned; mirror mismatches are collected in the report.
func (r *Runner) Run(ctx context.Context, sc Scenario) (Report, error) {
	if err := sc.Validate(); err != nil {
		return Report{}, err
	}
	platform := r.platform
	if sc.Platform != "" {
		platform = sc.Platform
	}
	log := r.log.With("scenario", sc.Name)
	ctx = pslog.ContextWithLogger(ctx, log)
	report := Report{Name: sc.Name}
	defer r.detachAll(ctx)

	for _, w := range sc.Windows {
		if err := r.openWindow(ctx, w.Name, w.URLs, w.Consumers, platform); err != nil {
			return report, err
		}
	}
	for i, step := range sc.Steps {
		res, err := r.step(ctx, step, platform)
		if err != nil {
			log.Error("scenario step failed", "step", i+1, "op", step.Op, "err", err)
			return report, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
		res.Step = i + 1
		report.Steps = append(report.Steps, res)
		if step.drain() && !res.Detached {
			report.Violations = append(report.Violations, r.check(ctx, step.Window, i+1)...)
		}
	}
	for name := range r.windows {
		if err := r.drainWindow(ctx, name); err != nil {
			return report, err
		}
		report.Violations = append(report.Violations, r.check(ctx, name, len(sc.Steps)+1)...)
	}
	log.Info("scenario finished", "steps", len(report.Steps), "violations", len(report.Violations))
	return report, nil
}

func (r *Runner) openWindow(ctx context.Context, name string, urls []string, consumers int, platform string) error {
	snap, err := r.store.CreateWindow(ctx, urls)
	if err != nil {
		return err
	}
	if consumers <= 0 {
		consumers = 1
	}
	run := &windowRun{id: snap.Window}
	for i := 0; i < consumers; i++ {
		sub, err := r.store.Attach(ctx, snap.Window)
		if err != nil {
			return err
		}
		surface := &menuRecorder{}
		rec := reconcile.New(sub, reconcile.Deps{Resyncer: r.store, Tabs: r.store, Surface: surface, Platform: platform})
		run.consumers = append(run.consumers, &consumer{rec: rec, surface: surface})
	}
	r.windows[name] = run
	return r.drainWindow(ctx, name)
}

func (r *Runner) step(ctx context.Context, step Step, platform string) (StepResult, error) {
	res := StepResult{Op: step.Op, Window: step.Window}
	if step.Op == OpCreateWindow {
		if err := r.openWindow(ctx, step.Window, step.URLs, 0, platform); err != nil {
			return res, err
		}
		return r.observe(res, step.Window), nil
	}
	run := r.windows[step.Window]
	if run == nil {
		return res, fmt.Errorf("window %q is not open", step.Window)
	}
	id := run.id
	var err error
	switch step.Op {
	case OpCloseWindow:
		if err = r.store.CloseWindow(ctx, id); err != nil {
			return res, err
		}
		for _, c := range run.consumers {
			if _, derr := c.rec.Drain(ctx); derr != nil && !reconcile.IsDetached(derr) {
				return res, derr
			}
		}
		res = r.observe(res, step.Window)
		res.Detached = true
		delete(r.windows, step.Window)
		return res, nil
	case OpCreateTab:
		_, err = r.store.CreateTab(ctx, id, step.URL, core.CreateTabOptions{SetActive: step.Active})
	case OpRemoveTab:
		_, err = r.store.RemoveTab(ctx, id, step.Index)
	case OpUpdateTab:
		_, err = r.store.UpdateTab(ctx, id, step.Index, step.Patch)
	case OpActivate:
		_, err = r.store.ActivateTab(ctx, id, step.Index)
	case OpChangeActive:
		_, err = r.store.ChangeActiveBy(ctx, id, step.By)
	case OpFullscreen:
		err = r.store.SetFullscreen(ctx, id, step.Fullscreen)
	case OpReopen:
		var ok bool
		_, ok, err = r.store.ReopenLastRemoved(ctx, id)
		res.Reopened = &ok
	case OpOpenFiles:
		_, err = r.store.OpenFiles(ctx, id, step.Paths)
	case OpResolved:
		r.notify(ctx, run, schema.Notification{Kind: schema.NotificationResolved, Path: step.Path})
	case OpUpdater:
		r.notify(ctx, run, schema.Notification{Kind: schema.NotificationUpdaterState, State: step.State})
	case OpAcknowledge:
		// One watchlist tab per window; every consumer clears its own count.
		_, err = run.consumers[0].rec.OpenWatchlist(ctx)
		for _, c := range run.consumers[1:] {
			c.rec.AcknowledgeNotifications(ctx)
		}
	default:
		err = fmt.Errorf("unknown op %q", step.Op)
	}
	if err != nil {
		return res, err
	}
	if step.drain() {
		if err := r.drainWindow(ctx, step.Window); err != nil {
			return res, err
		}
	}
	return r.observe(res, step.Window), nil
}

func (r *Runner) notify(ctx context.Context, run *windowRun, n schema.Notification) {
	for _, c := range run.consumers {
		c.rec.Observe(ctx, n)
	}
}

// drainWindow lets every consumer catch up. Protocol violations are
// recovered by resync inside the same drain, so only detach matters here.
func (r *Runner) drainWindow(ctx context.Context, name string) error {
	run := r.windows[name]
	if run == nil {
		return nil
	}
	for _, c := range run.consumers {
		for {
			n, err := c.rec.Drain(ctx)
			if err != nil && reconcile.IsDetached(err) {
				return fmt.Errorf("window %q: %w", name, err)
			}
			if n == 0 && c.rec.Synced() {
				break
			}
			if n == 0 {
				return fmt.Errorf("window %q: consumer stuck awaiting replace", name)
			}
		}
	}
	return nil
}

func (r *Runner) observe(res StepResult, name string) StepResult {
	run := r.windows[name]
	if run == nil || len(run.consumers) == 0 {
		return res
	}
	first := run.consumers[0]
	res.Presentation = first.rec.Presentation()
	res.MenuVariant = first.surface.variant()
	res.MenuRebuilds = first.rec.Stats().MenuRebuilds
	return res
}

func (r *Runner) check(ctx context.Context, name string, step int) []string {
	run := r.windows[name]
	if run == nil {
		return nil
	}
	snap, err := r.store.GetState(ctx, run.id)
	if err != nil {
		return []string{fmt.Sprintf("step %d: window %q: %v", step, name, err)}
	}
	var out []string
	for i, c := range run.consumers {
		if err := Compare(c.rec.Presentation(), snap); err != nil {
			out = append(out, fmt.Sprintf("step %d: window %q consumer %d: %v", step, name, i, err))
		}
	}
	return out
}

func (r *Runner) detachAll(ctx context.Context) {
	for _, run := range r.windows {
		for _, c := range run.consumers {
			c.rec.Detach(ctx)
		}
	}
}

// ErrMirrorMismatch reports a consumer view that differs from the store.
var ErrMirrorMismatch = errors.New("mirror does not match store")

// Compare checks that view is a valid, exact mirror of snap.
func Compare(view schema.Presentation, snap schema.WindowSnapshot) error {
	if err := schema.CheckTabs(view.Tabs); err != nil {
		return err
	}
	if len(view.Tabs) != len(snap.Tabs) {
		return fmt.Errorf("%w: %d tabs, store has %d", ErrMirrorMismatch, len(view.Tabs), len(snap.Tabs))
	}
	for i := range snap.Tabs {
		if view.Tabs[i] != snap.Tabs[i] {
			return fmt.Errorf("%w: tab %d", ErrMirrorMismatch, i)
		}
	}
	if view.IsFullscreen != snap.IsFullscreen {
		return fmt.Errorf("%w: fullscreen", ErrMirrorMismatch)
	}
	if view.ActiveTabIndex != snap.ActiveIndex() {
		return fmt.Errorf("%w: active index %d, store %d", ErrMirrorMismatch, view.ActiveTabIndex, snap.ActiveIndex())
	}
	return nil
}

type menuRecorder struct {
	mu   sync.Mutex
	last menu.Variant
}

func (m *menuRecorder) RequestUIRefresh(context.Context, schema.WindowID, schema.Presentation) {}

func (m *menuRecorder) ApplyMenuTemplate(_ context.Context, _ schema.WindowID, tpl menu.Template) {
	m.mu.Lock()
	m.last = tpl.Variant
	m.mu.Unlock()
}

func (m *menuRecorder) variant() menu.Variant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
