package schema

// DeltaKind tags a Delta.
type DeltaKind string

const (
	// DeltaReplace replaces the consumer's whole window mirror.
	DeltaReplace DeltaKind = "replace"
	// DeltaUpdate merges a patch into one tab of the mirror.
	DeltaUpdate DeltaKind = "update"
)

// Delta is one ordered state message for a window. Seq grows by one for
// every delta the store emits; replaces produced for attach or resync carry
// the current Seq without advancing it.
type Delta struct {
	Kind   DeltaKind
	Window WindowID
	Seq    uint64

	// DeltaReplace payload.
	Tabs         []TabRecord
	IsFullscreen bool

	// DeltaUpdate payload.
	Index int
	Patch TabPatch
}

// ReplaceState builds a replace delta from a snapshot.
func ReplaceState(snap WindowSnapshot, seq uint64) Delta {
	return Delta{
		Kind:         DeltaReplace,
		Window:       snap.Window,
		Seq:          seq,
		Tabs:         CloneTabs(snap.Tabs),
		IsFullscreen: snap.IsFullscreen,
	}
}

// UpdateState builds an update delta.
func UpdateState(window WindowID, seq uint64, index int, patch TabPatch) Delta {
	return Delta{
		Kind:   DeltaUpdate,
		Window: window,
		Seq:    seq,
		Index:  index,
		Patch:  patch,
	}
}

// NotificationKind identifies a secondary event.
type NotificationKind string

const (
	// NotificationResolved is a watched resource resolving.
	NotificationResolved NotificationKind = "resolved"
	// NotificationUpdaterState reports the auto-updater state.
	NotificationUpdaterState NotificationKind = "updater-state-changed"
)

// UpdaterDownloaded is the updater state that marks an update as available.
const UpdaterDownloaded = "downloaded"

// Notification is a message from a secondary event source.
type Notification struct {
	Kind  NotificationKind
	Path  string
	State string
}
