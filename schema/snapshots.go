package schema

import "strings"

// WindowSnapshot is a read-only copy of one window's tab state.
type WindowSnapshot struct {
	Window       WindowID    `json:"window" yaml:"window"`
	Tabs         []TabRecord `json:"tabs" yaml:"tabs"`
	IsFullscreen bool        `json:"is_fullscreen" yaml:"is_fullscreen"`
}

// Clone returns a snapshot that shares no memory with s.
func (s WindowSnapshot) Clone() WindowSnapshot {
	out := s
	out.Tabs = CloneTabs(s.Tabs)
	return out
}

// ActiveIndex returns the index of the active tab, or -1.
func (s WindowSnapshot) ActiveIndex() int {
	return ActiveIndex(s.Tabs)
}

// CloneTabs copies a tab slice.
func CloneTabs(tabs []TabRecord) []TabRecord {
	if tabs == nil {
		return nil
	}
	out := make([]TabRecord, len(tabs))
	copy(out, tabs)
	return out
}

// ActiveIndex returns the position of the first active tab, or -1.
func ActiveIndex(tabs []TabRecord) int {
	for i := range tabs {
		if tabs[i].IsActive {
			return i
		}
	}
	return -1
}

// URLScheme returns the text before the first ':' of url, or SchemeNone for an empty url.
func URLScheme(url string) string {
	if url == "" {
		return SchemeNone
	}
	scheme, _, _ := strings.Cut(url, ":")
	if scheme == "" {
		return SchemeNone
	}
	return scheme
}

// CheckTabs verifies that indices are dense and that exactly one tab is
// active whenever tabs is non-empty.
func CheckTabs(tabs []TabRecord) error {
	active := 0
	for i, tab := range tabs {
		if tab.Index != i {
			return ErrIndexGap
		}
		if tab.IsActive {
			active++
		}
	}
	if len(tabs) == 0 {
		if active != 0 {
			return ErrActiveCount
		}
		return nil
	}
	if active != 1 {
		return ErrActiveCount
	}
	return nil
}

// Presentation is the derived view a Reconciler hands to its UI surface.
type Presentation struct {
	Window            WindowID    `json:"window" yaml:"window"`
	Tabs              []TabRecord `json:"tabs" yaml:"tabs"`
	IsFullscreen      bool        `json:"is_fullscreen" yaml:"is_fullscreen"`
	ActiveTabIndex    int         `json:"active_tab_index" yaml:"active_tab_index"`
	URLScheme         string      `json:"url_scheme" yaml:"url_scheme"`
	NotificationCount int         `json:"notification_count" yaml:"notification_count"`
	UpdateAvailable   bool        `json:"update_available" yaml:"update_available"`
	Seq               uint64      `json:"seq" yaml:"seq"`
}

// ActiveTab returns the active tab record when there is one.
func (p Presentation) ActiveTab() (TabRecord, bool) {
	if p.ActiveTabIndex < 0 || p.ActiveTabIndex >= len(p.Tabs) {
		return TabRecord{}, false
	}
	return p.Tabs[p.ActiveTabIndex], true
}
