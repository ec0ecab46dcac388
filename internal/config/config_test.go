package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigHasSaneValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Cache.MaxEntries <= 0 {
		t.Error("default cache max entries must be positive")
	}
	if cfg.RateLimit.DefaultMax <= 0 {
		t.Error("default rate limit must be positive")
	}
	if cfg.Pack.DefaultMaxSizeBytes < cfg.Pack.MinSizeBytes {
		t.Error("default pack size must be at least the minimum")
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBPath != DefaultConfig().DBPath {
		t.Errorf("expected default db path, got %s", cfg.DBPath)
	}
}

func TestLoadThenSaveRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apex.yaml")
	cfg := DefaultConfig()
	cfg.DBPath = "custom.db"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.DBPath != "custom.db" {
		t.Errorf("expected custom.db, got %s", loaded.DBPath)
	}
}

func TestEnvOverridesApply(t *testing.T) {
	os.Setenv("APEX_DB_PATH", "/tmp/env.db")
	os.Setenv("APEX_CACHE_MAX_SIZE", "42")
	os.Setenv("APEX_ALLOWED_REPO_URLS", "https://a,https://b")
	defer func() {
		os.Unsetenv("APEX_DB_PATH")
		os.Unsetenv("APEX_CACHE_MAX_SIZE")
		os.Unsetenv("APEX_ALLOWED_REPO_URLS")
	}()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Errorf("expected env override for db path, got %s", cfg.DBPath)
	}
	if cfg.Cache.MaxEntries != 42 {
		t.Errorf("expected env override for cache max, got %d", cfg.Cache.MaxEntries)
	}
	if len(cfg.Reflection.AllowedRepoURLs) != 2 {
		t.Errorf("expected 2 allowed repo urls, got %d", len(cfg.Reflection.AllowedRepoURLs))
	}
}
