package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/shellsync/schema"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Channel.BufferDepth != schema.DefaultChannelDepth {
		t.Fatalf("expected default depth, got %d", cfg.Channel.BufferDepth)
	}
	if cfg.Store.NewTabURL != schema.DefaultNewTabURL {
		t.Fatalf("expected default new tab url, got %q", cfg.Store.NewTabURL)
	}
}

func TestLoadReadsSettings(t *testing.T) {
	t.Setenv("WATCH_ROOT", "/srv/sites")
	path := writeConfig(t, `
config_version: 1
channel:
  buffer_depth: 8
menu:
  platform: darwin
watchlist:
  paths:
    - $WATCH_ROOT/blog
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Channel.BufferDepth != 8 || cfg.Menu.Platform != "darwin" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.Watchlist.Paths) != 1 || cfg.Watchlist.Paths[0] != "/srv/sites/blog" {
		t.Fatalf("expected expanded watchlist path, got %v", cfg.Watchlist.Paths)
	}
	if got := cfg.SyncConfig(); got.ChannelDepth != 8 || got.MaxDroppedFiles != schema.DefaultMaxDroppedFiles {
		t.Fatalf("unexpected sync config %+v", got)
	}
}

func TestLoadRejectsMissingConfigVersion(t *testing.T) {
	path := writeConfig(t, `
channel:
  buffer_depth: 8
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config_version is required") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 3
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRejectsZeroBufferDepth(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
channel:
  buffer_depth: 0
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "channel.buffer_depth") {
		t.Fatalf("expected buffer depth error, got %v", err)
	}
}

func TestLoadRejectsBadPlatform(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
menu:
  platform: Darwin
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "menu.platform") {
		t.Fatalf("expected platform error, got %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	value := expandEnv("$FOO/$UID/$GID/$MISSING")
	if !strings.HasPrefix(value, "bar/") {
		t.Fatalf("expected env expansion, got %q", value)
	}
	if strings.Contains(value, "$UID") || strings.Contains(value, "$GID") {
		t.Fatalf("expected UID/GID expansion, got %q", value)
	}
	if !strings.HasSuffix(value, "/$MISSING") {
		t.Fatalf("expected missing vars to remain, got %q", value)
	}
}

func TestWriteDefaultRespectsOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("expected path %q, got %q", path, written)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config to exist: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("expected overwrite to succeed: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("written default must load: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
