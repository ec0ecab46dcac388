// Package config loads APEX server configuration from a YAML file with
// environment variable overrides, following the same layered convention
// the teacher repository uses for its own config: sensible defaults,
// overlaid by an optional file, overlaid by a fixed set of recognized
// environment variables (§6 "Environment knobs").
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/benredmond/apex-sub002/internal/logging"
)

// Config holds all APEX server configuration.
type Config struct {
	// DBPath is the path to the single-file SQLite store.
	DBPath string `yaml:"db_path"`

	// Logging controls the categorized logger.
	Logging LoggingConfig `yaml:"logging"`

	// Cache controls the process-wide response cache.
	Cache CacheConfig `yaml:"cache"`

	// RateLimit controls per-tool token buckets.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Reflection controls evidence validation.
	Reflection ReflectionConfig `yaml:"reflection"`

	// Pack controls default pack assembly sizes.
	Pack PackConfig `yaml:"pack"`
}

type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"`
}

type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	WindowSeconds   int            `yaml:"window_seconds"`
	DefaultMax      int            `yaml:"default_max"`
	PerToolMax      map[string]int `yaml:"per_tool_max"`
}

type ReflectionConfig struct {
	// AllowedRepoURLs restricts trust_update/evidence pr.repo references.
	// Empty means no restriction.
	AllowedRepoURLs []string `yaml:"allowed_repo_urls"`
}

type PackConfig struct {
	DefaultMaxSizeBytes int `yaml:"default_max_size_bytes"`
	MinSizeBytes        int `yaml:"min_size_bytes"`
	MaxSizeBytes        int `yaml:"max_size_bytes"`
}

// DefaultConfig returns the baseline configuration, matching the defaults
// enumerated across spec §5–§6.
func DefaultConfig() *Config {
	return &Config{
		DBPath: "apex.db",
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
		Cache: CacheConfig{
			MaxEntries: 10000,
			TTL:        5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			WindowSeconds: 60,
			DefaultMax:    100,
			PerToolMax: map[string]int{
				"apex_patterns_lookup":    100,
				"apex_patterns_overview":  50,
				"apex_patterns_discover":  100,
				"apex_patterns_explain":   100,
			},
		},
		Reflection: ReflectionConfig{
			AllowedRepoURLs: nil,
		},
		Pack: PackConfig{
			DefaultMaxSizeBytes: 8192,
			MinSizeBytes:        1024,
			MaxSizeBytes:        65536,
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults if
// the file doesn't exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	logging.BootDebug("loading config from %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Boot("config loaded: db=%s cache_max=%d rate_default=%d",
		cfg.DBPath, cfg.Cache.MaxEntries, cfg.RateLimit.DefaultMax)
	return cfg, nil
}

// Save writes the configuration back out as YAML.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides applies the environment knobs recognized by §6.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("APEX_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("APEX_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.MaxEntries = n
		}
	}
	if v := os.Getenv("APEX_CACHE_TTL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.TTL = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("APEX_RATE_LIMIT_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.DefaultMax = n
		}
	}
	if v := os.Getenv("APEX_RATE_LIMIT_WINDOW_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.WindowSeconds = n / 1000
		}
	}
	if v := os.Getenv("APEX_ALLOWED_REPO_URLS"); v != "" {
		c.Reflection.AllowedRepoURLs = splitCSV(v)
	}
	if v := os.Getenv("APEX_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
