package core

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/shellsync/internal/eventbus"
	"pkt.systems/shellsync/internal/logx"
	"pkt.systems/shellsync/schema"
)

// store implements Store. Every mutation and every emission happens under
// mu, so the per-window delta order seen by subscribers is the mutation order.
type store struct {
	cfg     schema.SyncConfig
	bus     *eventbus.Bus
	logger  pslog.Logger
	mu      sync.Mutex
	windows map[schema.WindowID]*windowState
	order   []schema.WindowID
}

// NewStore constructs the state store.
func NewStore(cfg schema.SyncConfig, deps StoreDeps) (Store, error) {
	normalized, err := schema.NormalizeSyncConfig(cfg)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	bus := deps.Bus
	if bus == nil {
		bus = eventbus.New(logger, normalized.ChannelDepth)
	}
	return &store{
		cfg:     normalized,
		bus:     bus,
		logger:  logger,
		windows: make(map[schema.WindowID]*windowState),
	}, nil
}

func (s *store) CreateWindow(ctx context.Context, initialURLs []string) (schema.WindowSnapshot, error) {
	id := schema.WindowID(newID())
	log := logx.WithWindow(ctx, id)
	urls := initialURLs
	if len(urls) == 0 {
		urls = []string{s.cfg.NewTabURL}
	}

	s.mu.Lock()
	w := &windowState{id: id}
	for i, url := range urls {
		w.appendTab(s.tabURL(url), i == 0)
	}
	s.windows[id] = w
	s.order = append(s.order, id)
	snap := w.snapshot()
	s.mu.Unlock()

	log.Info("store window created", "tabs", len(snap.Tabs))
	return snap, nil
}

func (s *store) CloseWindow(ctx context.Context, window schema.WindowID) error {
	log := logx.WithWindow(ctx, window)
	s.mu.Lock()
	if _, err := s.lookupLocked(window); err != nil {
		s.mu.Unlock()
		return s.fail(log, "close window", err)
	}
	delete(s.windows, window)
	s.order = slices.DeleteFunc(s.order, func(id schema.WindowID) bool { return id == window })
	detached := s.bus.CloseWindow(window)
	s.mu.Unlock()
	log.Info("store window closed", "detached", detached)
	return nil
}

func (s *store) Windows() []schema.WindowID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

func (s *store) CreateTab(ctx context.Context, window schema.WindowID, url string, opts CreateTabOptions) (schema.TabRecord, error) {
	log := logx.WithWindow(ctx, window)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookupLocked(window)
	if err != nil {
		return schema.TabRecord{}, s.fail(log, "create tab", err)
	}
	rec := w.appendTab(s.tabURL(url), opts.SetActive)
	s.emitReplaceLocked(w)
	log.Debug("store tab created", "tab", rec.Index, "active", rec.IsActive, "seq", w.seq)
	return rec, nil
}

func (s *store) RemoveTab(ctx context.Context, window schema.WindowID, index int) (schema.TabRecord, error) {
	log := logx.WithWindowTab(ctx, window, index)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookupLocked(window)
	if err != nil {
		return schema.TabRecord{}, s.fail(log, "remove tab", err)
	}
	if err := checkIndex(w, index); err != nil {
		return schema.TabRecord{}, s.fail(log, "remove tab", err)
	}
	removed := w.removeTab(index)
	w.pushClosed(removed.URL, s.cfg.ClosedTabHistory)
	s.emitReplaceLocked(w)
	log.Debug("store tab removed", "was_active", removed.IsActive, "active", w.activeIndex(), "seq", w.seq)
	return removed, nil
}

func (s *store) UpdateTab(ctx context.Context, window schema.WindowID, index int, patch schema.TabPatch) (schema.TabRecord, error) {
	log := logx.WithWindowTab(ctx, window, index)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookupLocked(window)
	if err != nil {
		return schema.TabRecord{}, s.fail(log, "update tab", err)
	}
	if err := checkIndex(w, index); err != nil {
		return schema.TabRecord{}, s.fail(log, "update tab", err)
	}
	if patch.IsActive != nil {
		return schema.TabRecord{}, s.fail(log, "update tab", fmt.Errorf("%w: activation must use ActivateTab", schema.ErrInvalidPatch))
	}
	if patch.Empty() {
		return w.tabs[index], nil
	}
	// Subscribers read the patch later; it must not alias caller memory.
	patch = patch.Clone()
	w.tabs[index] = patch.Merge(w.tabs[index])
	w.seq++
	delta := schema.UpdateState(w.id, w.seq, index, patch)
	s.bus.Publish(delta, w.replace)
	log.Trace("store tab updated", "seq", w.seq)
	return w.tabs[index], nil
}

func (s *store) ActivateTab(ctx context.Context, window schema.WindowID, index int) (schema.TabRecord, error) {
	log := logx.WithWindowTab(ctx, window, index)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookupLocked(window)
	if err != nil {
		return schema.TabRecord{}, s.fail(log, "activate tab", err)
	}
	if err := checkIndex(w, index); err != nil {
		return schema.TabRecord{}, s.fail(log, "activate tab", err)
	}
	if w.activeIndex() != index {
		w.setActive(index)
		s.emitReplaceLocked(w)
		log.Debug("store tab activated", "seq", w.seq)
	}
	return w.tabs[index], nil
}

func (s *store) ChangeActiveBy(ctx context.Context, window schema.WindowID, delta int) (schema.TabRecord, error) {
	log := logx.WithWindow(ctx, window)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookupLocked(window)
	if err != nil {
		return schema.TabRecord{}, s.fail(log, "change active", err)
	}
	count := len(w.tabs)
	if count == 0 {
		return schema.TabRecord{}, s.fail(log, "change active", fmt.Errorf("%w: window %s", schema.ErrNoTabs, window))
	}
	current := w.activeIndex()
	next := ((current+delta)%count + count) % count
	if next != current {
		w.setActive(next)
		s.emitReplaceLocked(w)
		log.Debug("store active moved", "from", current, "to", next, "seq", w.seq)
	}
	return w.tabs[next], nil
}

func (s *store) SetFullscreen(ctx context.Context, window schema.WindowID, fullscreen bool) error {
	log := logx.WithWindow(ctx, window)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookupLocked(window)
	if err != nil {
		return s.fail(log, "set fullscreen", err)
	}
	if w.fullscreen == fullscreen {
		return nil
	}
	w.fullscreen = fullscreen
	s.emitReplaceLocked(w)
	log.Debug("store fullscreen changed", "fullscreen", fullscreen, "seq", w.seq)
	return nil
}

// ReopenLastRemoved reports false without emitting anything when no closed
// tab is left.
func (s *store) ReopenLastRemoved(ctx context.Context, window schema.WindowID) (schema.TabRecord, bool, error) {
	log := logx.WithWindow(ctx, window)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookupLocked(window)
	if err != nil {
		return schema.TabRecord{}, false, s.fail(log, "reopen tab", err)
	}
	url, ok := w.popClosed()
	if !ok {
		log.Trace("store reopen skipped, nothing closed")
		return schema.TabRecord{}, false, nil
	}
	rec := w.appendTab(url, true)
	s.emitReplaceLocked(w)
	log.Debug("store tab reopened", "tab", rec.Index, "seq", w.seq)
	return rec, true, nil
}

func (s *store) OpenFiles(ctx context.Context, window schema.WindowID, paths []string) ([]schema.TabRecord, error) {
	log := logx.WithWindow(ctx, window)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookupLocked(window)
	if err != nil {
		return nil, s.fail(log, "open files", err)
	}
	if len(paths) > s.cfg.MaxDroppedFiles {
		log.Debug("store open files truncated", "requested", len(paths), "max", s.cfg.MaxDroppedFiles)
		paths = paths[:s.cfg.MaxDroppedFiles]
	}
	if len(paths) == 0 {
		return nil, nil
	}
	opened := make([]schema.TabRecord, 0, len(paths))
	for i, path := range paths {
		opened = append(opened, w.appendTab("file://"+path, i == 0))
	}
	s.emitReplaceLocked(w)
	log.Debug("store files opened", "count", len(opened), "seq", w.seq)
	return opened, nil
}

func (s *store) GetState(ctx context.Context, window schema.WindowID) (schema.WindowSnapshot, error) {
	log := logx.WithWindow(ctx, window)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookupLocked(window)
	if err != nil {
		return schema.WindowSnapshot{}, s.fail(log, "get state", err)
	}
	return w.snapshot(), nil
}

// Attach subscribes to window. The snapshot and the subscription are taken
// under the writer lock, so the live tail starts exactly after it.
func (s *store) Attach(ctx context.Context, window schema.WindowID) (*eventbus.Subscription, error) {
	log := logx.WithWindow(ctx, window)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookupLocked(window)
	if err != nil {
		return nil, s.fail(log, "attach", err)
	}
	sub := s.bus.Subscribe(window, w.replace())
	logx.WithSubscription(log, sub.ID).Info("store consumer attached", "seq", w.seq, "tabs", len(w.tabs))
	return sub, nil
}

func (s *store) Resync(ctx context.Context, window schema.WindowID, id schema.SubscriptionID) error {
	log := logx.WithSubscription(logx.WithWindow(ctx, window), id)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.lookupLocked(window)
	if err != nil {
		return s.fail(log, "resync", err)
	}
	if !s.bus.Resync(window, id, w.replace()) {
		return fmt.Errorf("%w: subscription %d on window %s", schema.ErrDetached, id, window)
	}
	log.Info("store consumer resynced", "seq", w.seq)
	return nil
}

func (s *store) emitReplaceLocked(w *windowState) {
	w.seq++
	s.bus.Publish(w.replace(), w.replace)
}

func (s *store) lookupLocked(window schema.WindowID) (*windowState, error) {
	w := s.windows[window]
	if w == nil {
		return nil, fmt.Errorf("%w: %s", schema.ErrWindowNotFound, window)
	}
	return w, nil
}

func (s *store) tabURL(url string) string {
	if url == "" {
		return s.cfg.NewTabURL
	}
	return url
}

// fail logs a store invariant failure and returns it unchanged. Callers
// must propagate the error; a swallowed failure would desync consumers
// without any signal.
func (s *store) fail(log pslog.Logger, op string, err error) error {
	log.Error("store operation failed", "op", op, "err", err)
	return err
}

func checkIndex(w *windowState, index int) error {
	if index < 0 || index >= len(w.tabs) {
		return fmt.Errorf("%w: index %d, window %s has %d tabs", schema.ErrTabIndexOutOfRange, index, w.id, len(w.tabs))
	}
	return nil
}
