package schema

// WindowID identifies a window surface.
type WindowID string

// SubscriptionID identifies one consumer attached to a window.
type SubscriptionID uint64

// SchemeNone is the URL scheme reported when no tab is active.
const SchemeNone = "none"

// TabRecord is the state of one open page within a window.
type TabRecord struct {
	Index           int     `json:"index" yaml:"index"`
	IsActive        bool    `json:"is_active" yaml:"is_active"`
	URL             string  `json:"url" yaml:"url"`
	Title           string  `json:"title,omitempty" yaml:"title,omitempty"`
	LoadError       string  `json:"load_error,omitempty" yaml:"load_error,omitempty"`
	IsLoading       bool    `json:"is_loading,omitempty" yaml:"is_loading,omitempty"`
	CanGoBack       bool    `json:"can_go_back,omitempty" yaml:"can_go_back,omitempty"`
	CanGoForward    bool    `json:"can_go_forward,omitempty" yaml:"can_go_forward,omitempty"`
	ZoomLevel       float64 `json:"zoom_level,omitempty" yaml:"zoom_level,omitempty"`
	IsBookmarked    bool    `json:"is_bookmarked,omitempty" yaml:"is_bookmarked,omitempty"`
	PeerCount       int     `json:"peer_count,omitempty" yaml:"peer_count,omitempty"`
	IsLiveReloading bool    `json:"is_live_reloading,omitempty" yaml:"is_live_reloading,omitempty"`
}

// TabPatch carries a partial tab update. Nil fields are left untouched.
type TabPatch struct {
	IsActive        *bool    `json:"is_active,omitempty" yaml:"is_active,omitempty"`
	URL             *string  `json:"url,omitempty" yaml:"url,omitempty"`
	Title           *string  `json:"title,omitempty" yaml:"title,omitempty"`
	LoadError       *string  `json:"load_error,omitempty" yaml:"load_error,omitempty"`
	IsLoading       *bool    `json:"is_loading,omitempty" yaml:"is_loading,omitempty"`
	CanGoBack       *bool    `json:"can_go_back,omitempty" yaml:"can_go_back,omitempty"`
	CanGoForward    *bool    `json:"can_go_forward,omitempty" yaml:"can_go_forward,omitempty"`
	ZoomLevel       *float64 `json:"zoom_level,omitempty" yaml:"zoom_level,omitempty"`
	IsBookmarked    *bool    `json:"is_bookmarked,omitempty" yaml:"is_bookmarked,omitempty"`
	PeerCount       *int     `json:"peer_count,omitempty" yaml:"peer_count,omitempty"`
	IsLiveReloading *bool    `json:"is_live_reloading,omitempty" yaml:"is_live_reloading,omitempty"`
}

// Empty reports whether the patch sets no fields.
func (p TabPatch) Empty() bool {
	return p.IsActive == nil &&
		p.URL == nil &&
		p.Title == nil &&
		p.LoadError == nil &&
		p.IsLoading == nil &&
		p.CanGoBack == nil &&
		p.CanGoForward == nil &&
		p.ZoomLevel == nil &&
		p.IsBookmarked == nil &&
		p.PeerCount == nil &&
		p.IsLiveReloading == nil
}

// Merge returns rec with every non-nil patch field applied. Index is never patched.
func (p TabPatch) Merge(rec TabRecord) TabRecord {
	if p.IsActive != nil {
		rec.IsActive = *p.IsActive
	}
	if p.URL != nil {
		rec.URL = *p.URL
	}
	if p.Title != nil {
		rec.Title = *p.Title
	}
	if p.LoadError != nil {
		rec.LoadError = *p.LoadError
	}
	if p.IsLoading != nil {
		rec.IsLoading = *p.IsLoading
	}
	if p.CanGoBack != nil {
		rec.CanGoBack = *p.CanGoBack
	}
	if p.CanGoForward != nil {
		rec.CanGoForward = *p.CanGoForward
	}
	if p.ZoomLevel != nil {
		rec.ZoomLevel = *p.ZoomLevel
	}
	if p.IsBookmarked != nil {
		rec.IsBookmarked = *p.IsBookmarked
	}
	if p.PeerCount != nil {
		rec.PeerCount = *p.PeerCount
	}
	if p.IsLiveReloading != nil {
		rec.IsLiveReloading = *p.IsLiveReloading
	}
	return rec
}

// Clone returns a patch whose fields no longer alias p's.
func (p TabPatch) Clone() TabPatch {
	return TabPatch{
		IsActive:        clonePtr(p.IsActive),
		URL:             clonePtr(p.URL),
		Title:           clonePtr(p.Title),
		LoadError:       clonePtr(p.LoadError),
		IsLoading:       clonePtr(p.IsLoading),
		CanGoBack:       clonePtr(p.CanGoBack),
		CanGoForward:    clonePtr(p.CanGoForward),
		ZoomLevel:       clonePtr(p.ZoomLevel),
		IsBookmarked:    clonePtr(p.IsBookmarked),
		PeerCount:       clonePtr(p.PeerCount),
		IsLiveReloading: clonePtr(p.IsLiveReloading),
	}
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	return Ptr(*v)
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
