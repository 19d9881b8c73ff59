package core

import "pkt.systems/shellsync/schema"

// windowState is the store-owned record for one window.
type windowState struct {
	id         schema.WindowID
	tabs       []schema.TabRecord
	fullscreen bool
	seq        uint64
	closed     []string
}

func (w *windowState) snapshot() schema.WindowSnapshot {
	return schema.WindowSnapshot{
		Window:       w.id,
		Tabs:         schema.CloneTabs(w.tabs),
		IsFullscreen: w.fullscreen,
	}
}

// replace describes the current state at the current seq.
func (w *windowState) replace() schema.Delta {
	return schema.ReplaceState(w.snapshot(), w.seq)
}

func (w *windowState) activeIndex() int {
	return schema.ActiveIndex(w.tabs)
}

func (w *windowState) setActive(index int) {
	for i := range w.tabs {
		w.tabs[i].IsActive = i == index
	}
}

func (w *windowState) appendTab(url string, activate bool) schema.TabRecord {
	rec := schema.TabRecord{Index: len(w.tabs), URL: url}
	w.tabs = append(w.tabs, rec)
	if activate || len(w.tabs) == 1 {
		w.setActive(rec.Index)
	}
	return w.tabs[rec.Index]
}

// removeTab drops the tab at index, re-indexes the tail, and hands the
// active flag to the next tab, or the previous one when the last tab went.
func (w *windowState) removeTab(index int) schema.TabRecord {
	removed := w.tabs[index]
	tabs := make([]schema.TabRecord, 0, len(w.tabs)-1)
	tabs = append(tabs, w.tabs[:index]...)
	tabs = append(tabs, w.tabs[index+1:]...)
	for i := range tabs {
		tabs[i].Index = i
	}
	w.tabs = tabs
	if removed.IsActive && len(w.tabs) > 0 {
		next := index
		if next >= len(w.tabs) {
			next = len(w.tabs) - 1
		}
		w.setActive(next)
	}
	return removed
}

func (w *windowState) pushClosed(url string, limit int) {
	if url == "" {
		return
	}
	w.closed = append(w.closed, url)
	if len(w.closed) > limit {
		w.closed = w.closed[len(w.closed)-limit:]
	}
}

func (w *windowState) popClosed() (string, bool) {
	if len(w.closed) == 0 {
		return "", false
	}
	url := w.closed[len(w.closed)-1]
	w.closed = w.closed[:len(w.closed)-1]
	return url, true
}
