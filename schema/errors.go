package schema

import "errors"

var (
	// ErrWindowNotFound indicates an operation referenced an unknown window.
	ErrWindowNotFound = errors.New("window not found")
	// ErrTabIndexOutOfRange indicates a tab index outside the window's tab list.
	ErrTabIndexOutOfRange = errors.New("tab index out of range")
	// ErrNoTabs indicates the window has no tabs.
	ErrNoTabs = errors.New("no tabs")
	// ErrInvalidPatch indicates a patch the store refuses to merge.
	ErrInvalidPatch = errors.New("invalid tab patch")
	// ErrProtocolViolation indicates a delta inconsistent with the consumer mirror.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrIndexGap indicates tab indices are not a dense 0-based sequence.
	ErrIndexGap = errors.New("tab indices not dense")
	// ErrActiveCount indicates a window without exactly one active tab.
	ErrActiveCount = errors.New("window must have exactly one active tab")
	// ErrSequenceGap indicates a delta arrived out of order or after a loss.
	ErrSequenceGap = errors.New("delta sequence gap")
	// ErrDetached indicates the consumer is no longer attached.
	ErrDetached = errors.New("detached")
)
