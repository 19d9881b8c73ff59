package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pkt.systems/shellsync/core"
	"pkt.systems/shellsync/internal/eventbus"
	"pkt.systems/shellsync/internal/menu"
	"pkt.systems/shellsync/schema"
)

type recordingSurface struct {
	mu        sync.Mutex
	refreshes []schema.Presentation
	menus     []menu.Template
}

func (s *recordingSurface) RequestUIRefresh(_ context.Context, _ schema.WindowID, view schema.Presentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes = append(s.refreshes, view)
}

func (s *recordingSurface) ApplyMenuTemplate(_ context.Context, _ schema.WindowID, tpl menu.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menus = append(s.menus, tpl)
}

func (s *recordingSurface) menuCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.menus)
}

func (s *recordingSurface) lastMenu() menu.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.menus[len(s.menus)-1]
}

func (s *recordingSurface) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refreshes)
}

func (s *recordingSurface) lastRefresh() schema.Presentation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.refreshes) == 0 {
		return schema.Presentation{}
	}
	return s.refreshes[len(s.refreshes)-1]
}

type fakeResyncer struct {
	calls []schema.SubscriptionID
}

func (f *fakeResyncer) Resync(_ context.Context, _ schema.WindowID, id schema.SubscriptionID) error {
	f.calls = append(f.calls, id)
	return nil
}

type fixture struct {
	store   core.Store
	window  schema.WindowID
	sub     *eventbus.Subscription
	rec     *Reconciler
	surface *recordingSurface
}

func newFixture(t *testing.T, urls ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := core.NewStore(schema.SyncConfig{ChannelDepth: 64}, core.StoreDeps{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	snap, err := st.CreateWindow(ctx, urls)
	if err != nil {
		t.Fatalf("create window: %v", err)
	}
	return attachFixture(t, st, snap.Window)
}

func attachFixture(t *testing.T, st core.Store, window schema.WindowID) *fixture {
	t.Helper()
	sub, err := st.Attach(context.Background(), window)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	surface := &recordingSurface{}
	rec := New(sub, Deps{Resyncer: st, Tabs: st, Surface: surface})
	t.Cleanup(func() { rec.Detach(context.Background()) })
	return &fixture{store: st, window: window, sub: sub, rec: rec, surface: surface}
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	if _, err := f.rec.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func (f *fixture) assertMirrorMatchesStore(t *testing.T) {
	t.Helper()
	snap, err := f.store.GetState(context.Background(), f.window)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	view := f.rec.Presentation()
	if len(view.Tabs) != len(snap.Tabs) {
		t.Fatalf("mirror has %d tabs, store has %d", len(view.Tabs), len(snap.Tabs))
	}
	for i := range snap.Tabs {
		if view.Tabs[i] != snap.Tabs[i] {
			t.Fatalf("tab %d differs: mirror %+v store %+v", i, view.Tabs[i], snap.Tabs[i])
		}
	}
	if view.IsFullscreen != snap.IsFullscreen {
		t.Fatalf("fullscreen differs")
	}
	if err := schema.CheckTabs(view.Tabs); err != nil {
		t.Fatalf("mirror breaks invariants: %v", err)
	}
	if view.ActiveTabIndex != snap.ActiveIndex() {
		t.Fatalf("active index %d, store %d", view.ActiveTabIndex, snap.ActiveIndex())
	}
}

func TestInitialReplaceBuildsMirror(t *testing.T) {
	f := newFixture(t, "https://a", "dat://b")
	f.drain(t)
	f.assertMirrorMatchesStore(t)
	view := f.rec.Presentation()
	if view.URLScheme != "https" || view.ActiveTabIndex != 0 {
		t.Fatalf("unexpected facts %+v", view)
	}
	if f.surface.refreshCount() != 1 {
		t.Fatalf("expected one refresh, got %d", f.surface.refreshCount())
	}
	if f.surface.menuCount() != 1 {
		t.Fatalf("expected initial menu build, got %d", f.surface.menuCount())
	}
}

func TestMenuRebuildIsEdgeTriggered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a", "dat://b")
	f.drain(t)
	base := f.surface.menuCount()

	patches := []schema.TabPatch{
		{Title: schema.Ptr("A")},
		{IsLoading: schema.Ptr(true)},
		{URL: schema.Ptr("https://a/next")},
	}
	for _, patch := range patches {
		if _, err := f.store.UpdateTab(ctx, f.window, 0, patch); err != nil {
			t.Fatalf("update: %v", err)
		}
		f.drain(t)
	}
	if got := f.surface.menuCount() - base; got != 0 {
		t.Fatalf("expected no rebuilds while scheme stays https, got %d", got)
	}

	if _, err := f.store.ChangeActiveBy(ctx, f.window, 1); err != nil {
		t.Fatalf("change active: %v", err)
	}
	f.drain(t)
	if got := f.surface.menuCount() - base; got != 1 {
		t.Fatalf("expected exactly one rebuild on switch to dat, got %d", got)
	}
	if v := f.surface.lastMenu().Variant; v != menu.VariantPeerSynced {
		t.Fatalf("expected peer-synced menu, got %s", v)
	}

	if _, err := f.store.UpdateTab(ctx, f.window, 0, schema.TabPatch{URL: schema.Ptr("dat://c")}); err != nil {
		t.Fatalf("update background tab: %v", err)
	}
	f.drain(t)
	if got := f.surface.menuCount() - base; got != 1 {
		t.Fatalf("background tab navigation must not rebuild, got %d", got)
	}
}

func TestMenuStateIsPerWindow(t *testing.T) {
	ctx := context.Background()
	a := newFixture(t, "https://a")
	snap, err := a.store.CreateWindow(ctx, []string{"dat://b"})
	if err != nil {
		t.Fatalf("create window: %v", err)
	}
	b := attachFixture(t, a.store, snap.Window)

	a.drain(t)
	b.drain(t)
	for i := 0; i < 3; i++ {
		if _, err := a.store.UpdateTab(ctx, a.window, 0, schema.TabPatch{PeerCount: schema.Ptr(i)}); err != nil {
			t.Fatalf("update a: %v", err)
		}
		if _, err := b.store.UpdateTab(ctx, b.window, 0, schema.TabPatch{PeerCount: schema.Ptr(i)}); err != nil {
			t.Fatalf("update b: %v", err)
		}
		a.drain(t)
		b.drain(t)
	}
	if a.surface.menuCount() != 1 || b.surface.menuCount() != 1 {
		t.Fatalf("interleaved windows must not retrigger each other: a=%d b=%d", a.surface.menuCount(), b.surface.menuCount())
	}
}

func TestOutOfRangeUpdateRequestsResync(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(nil, 8)
	tabs := []schema.TabRecord{
		{Index: 0, URL: "https://a", IsActive: true},
		{Index: 1, URL: "https://b"},
		{Index: 2, URL: "https://c"},
	}
	sub := bus.Subscribe("w", schema.ReplaceState(schema.WindowSnapshot{Window: "w", Tabs: tabs}, 3))
	resyncer := &fakeResyncer{}
	surface := &recordingSurface{}
	rec := New(sub, Deps{Resyncer: resyncer, Surface: surface})

	if _, err := rec.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	menus := surface.menuCount()

	err := rec.Apply(ctx, schema.UpdateState("w", 4, 7, schema.TabPatch{URL: schema.Ptr("dat://x"), IsActive: schema.Ptr(true)}))
	if !errors.Is(err, schema.ErrProtocolViolation) || !errors.Is(err, schema.ErrTabIndexOutOfRange) {
		t.Fatalf("expected out-of-range protocol violation, got %v", err)
	}
	if len(resyncer.calls) != 1 || resyncer.calls[0] != sub.ID {
		t.Fatalf("expected one resync for sub %d, got %v", sub.ID, resyncer.calls)
	}
	if rec.Synced() {
		t.Fatalf("mirror must be discarded")
	}
	if surface.menuCount() != menus {
		t.Fatalf("violation must not reach the menu policy")
	}
	if view := rec.Presentation(); view.ActiveTabIndex != 0 || view.URLScheme != "https" {
		t.Fatalf("presentation must keep the last consistent facts, got %+v", view)
	}

	if err := rec.Apply(ctx, schema.UpdateState("w", 5, 0, schema.TabPatch{Title: schema.Ptr("late")})); err != nil {
		t.Fatalf("updates while resyncing are skipped, got %v", err)
	}
	if rec.Stats().Skipped != 1 {
		t.Fatalf("expected one skipped update")
	}

	if err := rec.Apply(ctx, schema.ReplaceState(schema.WindowSnapshot{Window: "w", Tabs: tabs}, 5)); err != nil {
		t.Fatalf("resync replace: %v", err)
	}
	if !rec.Synced() {
		t.Fatalf("expected mirror restored")
	}
}

func TestReplaceWithTwoActiveTabsIsRejected(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(nil, 8)
	sub := bus.Subscribe("w", schema.ReplaceState(schema.WindowSnapshot{Window: "w"}, 0))
	resyncer := &fakeResyncer{}
	rec := New(sub, Deps{Resyncer: resyncer})
	if _, err := rec.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	bad := schema.WindowSnapshot{Window: "w", Tabs: []schema.TabRecord{
		{Index: 0, IsActive: true, URL: "https://a"},
		{Index: 1, IsActive: true, URL: "dat://b"},
	}}
	if err := rec.Apply(ctx, schema.ReplaceState(bad, 1)); !errors.Is(err, schema.ErrActiveCount) {
		t.Fatalf("expected active count violation, got %v", err)
	}
	if len(resyncer.calls) != 1 {
		t.Fatalf("expected a resync request")
	}
}

func TestUpdateDeactivatingActiveTabIsRejected(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(nil, 8)
	snap := schema.WindowSnapshot{Window: "w", Tabs: []schema.TabRecord{{Index: 0, IsActive: true, URL: "https://a"}}}
	sub := bus.Subscribe("w", schema.ReplaceState(snap, 0))
	rec := New(sub, Deps{Resyncer: &fakeResyncer{}})
	if _, err := rec.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	err := rec.Apply(ctx, schema.UpdateState("w", 1, 0, schema.TabPatch{IsActive: schema.Ptr(false)}))
	if !errors.Is(err, schema.ErrProtocolViolation) {
		t.Fatalf("expected violation, got %v", err)
	}
}

func TestUpdateActivatingClearsPreviousActive(t *testing.T) {
	ctx := context.Background()
	bus := eventbus.New(nil, 8)
	snap := schema.WindowSnapshot{Window: "w", Tabs: []schema.TabRecord{
		{Index: 0, IsActive: true, URL: "https://a"},
		{Index: 1, URL: "dat://b"},
	}}
	sub := bus.Subscribe("w", schema.ReplaceState(snap, 0))
	surface := &recordingSurface{}
	rec := New(sub, Deps{Surface: surface})
	if _, err := rec.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := rec.Apply(ctx, schema.UpdateState("w", 1, 1, schema.TabPatch{IsActive: schema.Ptr(true)})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	view := rec.Presentation()
	if view.ActiveTabIndex != 1 || view.Tabs[0].IsActive || view.URLScheme != "dat" {
		t.Fatalf("unexpected presentation %+v", view)
	}
	if surface.menuCount() != 2 {
		t.Fatalf("expected rebuild on activation, got %d", surface.menuCount())
	}
}

func TestSequenceGapResyncsFromStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a", "https://b")
	f.drain(t)

	if _, err := f.store.UpdateTab(ctx, f.window, 1, schema.TabPatch{Title: schema.Ptr("lost")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	<-f.sub.C
	if _, err := f.store.UpdateTab(ctx, f.window, 1, schema.TabPatch{IsLoading: schema.Ptr(true)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := f.rec.Drain(ctx); !errors.Is(err, schema.ErrSequenceGap) {
		t.Fatalf("expected sequence gap, got %v", err)
	}
	f.drain(t)
	if !f.rec.Synced() {
		t.Fatalf("expected resync to restore the mirror")
	}
	f.assertMirrorMatchesStore(t)
	if f.rec.Presentation().Tabs[1].Title != "lost" {
		t.Fatalf("resync must carry the lost update")
	}
}

func TestNotificationsIgnoreDeltaTraffic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	f.drain(t)
	for i := 0; i < 5; i++ {
		f.rec.Observe(ctx, schema.Notification{Kind: schema.NotificationResolved})
		if _, err := f.store.CreateTab(ctx, f.window, "https://x", core.CreateTabOptions{SetActive: i%2 == 0}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := f.store.UpdateTab(ctx, f.window, 0, schema.TabPatch{PeerCount: schema.Ptr(i)}); err != nil {
			t.Fatalf("update: %v", err)
		}
		f.drain(t)
	}
	if got := f.rec.Presentation().NotificationCount; got != 5 {
		t.Fatalf("expected 5 notifications, got %d", got)
	}
	if got := f.surface.lastRefresh().NotificationCount; got != 5 {
		t.Fatalf("expected surface to see 5, got %d", got)
	}

	f.rec.AcknowledgeNotifications(ctx)
	if got := f.rec.Presentation().NotificationCount; got != 0 {
		t.Fatalf("expected 0 after acknowledgment, got %d", got)
	}
	before := f.surface.refreshCount()
	f.rec.AcknowledgeNotifications(ctx)
	if f.surface.refreshCount() != before {
		t.Fatalf("acknowledging zero must be a no-op")
	}
}

func TestDrainCoalescesRefreshes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	f.drain(t)
	before := f.surface.refreshCount()
	for i := 0; i < 4; i++ {
		if _, err := f.store.UpdateTab(ctx, f.window, 0, schema.TabPatch{PeerCount: schema.Ptr(i)}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	n, err := f.rec.Drain(ctx)
	if err != nil || n != 4 {
		t.Fatalf("expected 4 deltas applied, got %d err=%v", n, err)
	}
	if got := f.surface.refreshCount() - before; got != 1 {
		t.Fatalf("expected one refresh for the batch, got %d", got)
	}
	if f.rec.Presentation().Tabs[0].PeerCount != 3 {
		t.Fatalf("every delta must be applied")
	}
}

func TestWindowCloseDetachesAndDiscardsRefreshes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	f.drain(t)
	if err := f.store.CloseWindow(ctx, f.window); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := f.rec.Drain(ctx); !IsDetached(err) {
		t.Fatalf("expected detached, got %v", err)
	}
	if v := f.surface.lastMenu().Variant; v != menu.VariantNoWindows {
		t.Fatalf("expected no-windows menu on close, got %s", v)
	}
	before := f.surface.refreshCount()
	f.rec.Observe(ctx, schema.Notification{Kind: schema.NotificationResolved})
	if f.surface.refreshCount() != before {
		t.Fatalf("refresh after detach must be discarded")
	}
	if f.rec.Stats().Discarded != 1 {
		t.Fatalf("expected one discarded refresh, got %d", f.rec.Stats().Discarded)
	}
}

func TestOpenWatchlistAcknowledgesAndActivatesWatchlist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "https://a")
	f.drain(t)
	f.rec.Observe(ctx, schema.Notification{Kind: schema.NotificationResolved, Path: "/sites/a"})
	f.rec.Observe(ctx, schema.Notification{Kind: schema.NotificationResolved, Path: "/sites/b"})
	if got := f.rec.Presentation().NotificationCount; got != 2 {
		t.Fatalf("expected 2 notifications, got %d", got)
	}
	menus := f.surface.menuCount()

	tab, err := f.rec.OpenWatchlist(ctx)
	if err != nil {
		t.Fatalf("open watchlist: %v", err)
	}
	if tab.URL != schema.WatchlistURL || !tab.IsActive {
		t.Fatalf("unexpected watchlist tab %+v", tab)
	}
	f.drain(t)
	view := f.rec.Presentation()
	if view.NotificationCount != 0 {
		t.Fatalf("expected count reset, got %d", view.NotificationCount)
	}
	if view.URLScheme != "beaker" || view.ActiveTabIndex != 1 {
		t.Fatalf("expected active beaker tab at 1, got scheme %q index %d", view.URLScheme, view.ActiveTabIndex)
	}
	if f.surface.menuCount() != menus+1 {
		t.Fatalf("expected one menu rebuild for the scheme change, got %d", f.surface.menuCount()-menus)
	}
	f.assertMirrorMatchesStore(t)
}

func TestOpenWatchlistAfterDetach(t *testing.T) {
	f := newFixture(t, "https://a")
	f.drain(t)
	f.rec.Detach(context.Background())
	if _, err := f.rec.OpenWatchlist(context.Background()); !errors.Is(err, schema.ErrDetached) {
		t.Fatalf("expected ErrDetached, got %v", err)
	}
	if snap, _ := f.store.GetState(context.Background(), f.window); len(snap.Tabs) != 1 {
		t.Fatalf("detached consumer must not open tabs, got %d", len(snap.Tabs))
	}
}
