package schema

import "testing"

func TestNormalizeSyncConfigDefaults(t *testing.T) {
	cfg, err := NormalizeSyncConfig(SyncConfig{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.ChannelDepth != DefaultChannelDepth {
		t.Fatalf("expected depth %d, got %d", DefaultChannelDepth, cfg.ChannelDepth)
	}
	if cfg.MaxDroppedFiles != DefaultMaxDroppedFiles {
		t.Fatalf("expected drop cap %d, got %d", DefaultMaxDroppedFiles, cfg.MaxDroppedFiles)
	}
	if cfg.NewTabURL != DefaultNewTabURL {
		t.Fatalf("expected new tab url %q, got %q", DefaultNewTabURL, cfg.NewTabURL)
	}
}

func TestNormalizeSyncConfigRejectsNegativeDepth(t *testing.T) {
	if _, err := NormalizeSyncConfig(SyncConfig{ChannelDepth: -1}); err == nil {
		t.Fatalf("expected error for negative depth")
	}
}
