package core

import (
	"context"

	"pkt.systems/shellsync/internal/eventbus"
	"pkt.systems/shellsync/schema"
)

// CreateTabOptions controls how a new tab is opened.
type CreateTabOptions struct {
	// SetActive moves the active flag to the new tab. The first tab of an
	// empty window is always active.
	SetActive bool
}

// Store is the single authoritative owner of every window's tab state.
// All mutations are serialized, and each emits the deltas that bring
// attached consumers to the new state.
type Store interface {
	CreateWindow(ctx context.Context, initialURLs []string) (schema.WindowSnapshot, error)
	CloseWindow(ctx context.Context, window schema.WindowID) error
	Windows() []schema.WindowID

	CreateTab(ctx context.Context, window schema.WindowID, url string, opts CreateTabOptions) (schema.TabRecord, error)
	RemoveTab(ctx context.Context, window schema.WindowID, index int) (schema.TabRecord, error)
	UpdateTab(ctx context.Context, window schema.WindowID, index int, patch schema.TabPatch) (schema.TabRecord, error)
	ActivateTab(ctx context.Context, window schema.WindowID, index int) (schema.TabRecord, error)
	ChangeActiveBy(ctx context.Context, window schema.WindowID, delta int) (schema.TabRecord, error)
	SetFullscreen(ctx context.Context, window schema.WindowID, fullscreen bool) error
	ReopenLastRemoved(ctx context.Context, window schema.WindowID) (schema.TabRecord, bool, error)
	OpenFiles(ctx context.Context, window schema.WindowID, paths []string) ([]schema.TabRecord, error)

	GetState(ctx context.Context, window schema.WindowID) (schema.WindowSnapshot, error)
	Attach(ctx context.Context, window schema.WindowID) (*eventbus.Subscription, error)
	Resync(ctx context.Context, window schema.WindowID, id schema.SubscriptionID) error
}
