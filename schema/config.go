package schema

import "errors"

// SyncConfig defines defaults and limits for the store and its channels.
type SyncConfig struct {
	// ChannelDepth is the per-subscriber delta buffer.
	ChannelDepth int
	// ClosedTabHistory caps the reopen stack per window.
	ClosedTabHistory int
	// MaxDroppedFiles caps tabs opened from one drop.
	MaxDroppedFiles int
	// NewTabURL is opened for an empty CreateTab url.
	NewTabURL string
}

const (
	// DefaultChannelDepth is the default subscriber buffer.
	DefaultChannelDepth = 256
	// DefaultClosedTabHistory is the default reopen stack size.
	DefaultClosedTabHistory = 20
	// DefaultMaxDroppedFiles matches the shell's drop limit.
	DefaultMaxDroppedFiles = 10
	// DefaultNewTabURL is the start page.
	DefaultNewTabURL = "beaker://start"
	// WatchlistURL is the page acknowledging notifications opens.
	WatchlistURL = "beaker://watchlist"
)

// NormalizeSyncConfig applies defaults and validates the config.
func NormalizeSyncConfig(cfg SyncConfig) (SyncConfig, error) {
	if cfg.ChannelDepth < 0 {
		return SyncConfig{}, errors.New("channel depth must not be negative")
	}
	if cfg.ChannelDepth == 0 {
		cfg.ChannelDepth = DefaultChannelDepth
	}
	if cfg.ClosedTabHistory <= 0 {
		cfg.ClosedTabHistory = DefaultClosedTabHistory
	}
	if cfg.MaxDroppedFiles <= 0 {
		cfg.MaxDroppedFiles = DefaultMaxDroppedFiles
	}
	if cfg.NewTabURL == "" {
		cfg.NewTabURL = DefaultNewTabURL
	}
	return cfg, nil
}

// DefaultSyncConfig returns the normalized zero config.
func DefaultSyncConfig() SyncConfig {
	cfg, _ := NormalizeSyncConfig(SyncConfig{})
	return cfg
}
