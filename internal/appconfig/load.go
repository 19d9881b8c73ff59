package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"pkt.systems/shellsync/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SHELLSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("channel.buffer_depth", cfg.Channel.BufferDepth)
	v.SetDefault("store.closed_tab_history", cfg.Store.ClosedTabHistory)
	v.SetDefault("store.max_dropped_files", cfg.Store.MaxDroppedFiles)
	v.SetDefault("store.new_tab_url", cfg.Store.NewTabURL)
	v.SetDefault("menu.platform", cfg.Menu.Platform)
	v.SetDefault("watchlist.paths", cfg.Watchlist.Paths)
	v.SetDefault("logging.trace_deltas", cfg.Logging.TraceDeltas)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Channel.BufferDepth < 1 {
		return fmt.Errorf("channel.buffer_depth must be at least 1, got %d", cfg.Channel.BufferDepth)
	}
	if _, err := schema.NormalizeSyncConfig(cfg.SyncConfig()); err != nil {
		return err
	}
	platform := cfg.Menu.Platform
	if strings.TrimSpace(platform) == "" || strings.ToLower(platform) != platform {
		return fmt.Errorf("menu.platform must be a lowercase GOOS name, got %q", platform)
	}
	for _, p := range cfg.Watchlist.Paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("watchlist.paths must not contain empty entries")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	for i, p := range cfg.Watchlist.Paths {
		cfg.Watchlist.Paths[i] = expandEnv(p)
	}
	cfg.Store.NewTabURL = expandEnv(cfg.Store.NewTabURL)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
