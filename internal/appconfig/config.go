package appconfig

import (
	"os"
	"path/filepath"
	"runtime"

	"pkt.systems/shellsync/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	Channel       ChannelConfig   `mapstructure:"channel" yaml:"channel"`
	Store         StoreConfig     `mapstructure:"store" yaml:"store"`
	Menu          MenuConfig      `mapstructure:"menu" yaml:"menu"`
	Watchlist     WatchlistConfig `mapstructure:"watchlist" yaml:"watchlist"`
	Logging       LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ChannelConfig controls per-subscriber delta buffering.
type ChannelConfig struct {
	BufferDepth int `mapstructure:"buffer_depth" yaml:"buffer_depth"`
}

// StoreConfig controls state store behavior.
type StoreConfig struct {
	ClosedTabHistory int    `mapstructure:"closed_tab_history" yaml:"closed_tab_history"`
	MaxDroppedFiles  int    `mapstructure:"max_dropped_files" yaml:"max_dropped_files"`
	NewTabURL        string `mapstructure:"new_tab_url" yaml:"new_tab_url"`
}

// MenuConfig selects the menu template platform.
type MenuConfig struct {
	Platform string `mapstructure:"platform" yaml:"platform"`
}

// WatchlistConfig lists paths whose changes count as resolved notifications.
type WatchlistConfig struct {
	Paths []string `mapstructure:"paths" yaml:"paths"`
}

// LoggingConfig controls per-delta trace logging.
type LoggingConfig struct {
	TraceDeltas bool `mapstructure:"trace_deltas" yaml:"trace_deltas"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	sync := schema.DefaultSyncConfig()
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Channel: ChannelConfig{
			BufferDepth: sync.ChannelDepth,
		},
		Store: StoreConfig{
			ClosedTabHistory: sync.ClosedTabHistory,
			MaxDroppedFiles:  sync.MaxDroppedFiles,
			NewTabURL:        sync.NewTabURL,
		},
		Menu: MenuConfig{
			Platform: runtime.GOOS,
		},
		Watchlist: WatchlistConfig{
			Paths: []string{},
		},
	}, nil
}

// SyncConfig maps the file settings onto the engine configuration.
func (c Config) SyncConfig() schema.SyncConfig {
	return schema.SyncConfig{
		ChannelDepth:     c.Channel.BufferDepth,
		ClosedTabHistory: c.Store.ClosedTabHistory,
		MaxDroppedFiles:  c.Store.MaxDroppedFiles,
		NewTabURL:        c.Store.NewTabURL,
	}
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".shellsync", "config.yaml"), nil
}
