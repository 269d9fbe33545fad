// Package config resolves the boot configuration: storage mode, remote
// endpoint and key, data directory and logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lndambition2025-ops/fiscops/internal/store"
	"github.com/lndambition2025-ops/fiscops/internal/syncer"
)

// DefaultCenterID is used until an operator picks a center.
const DefaultCenterID = "OWENDO"

// Config is the boot configuration.
type Config struct {
	// RemoteURL locates the relational store. Empty means local mode.
	RemoteURL string `yaml:"remote_url"`
	// RemoteKey is the public API key; it also signs sessions.
	RemoteKey string `yaml:"remote_key"`

	DataDir   string `yaml:"data_dir"`
	ExportDir string `yaml:"export_dir"`
	RedisAddr string `yaml:"redis_addr"`
	CenterID  string `yaml:"center_id"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	dir := defaultDataDir()
	return Config{
		DataDir:   dir,
		ExportDir: ".",
		Logging:   LoggingConfig{Level: "info", File: filepath.Join(dir, "fiscops.log")},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "fiscops")
	}
	return ".fiscops"
}

// Load reads the optional YAML file at path, then applies environment
// overrides. A missing file is not an error when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "fiscops.log")
	}
	return cfg, nil
}

// applyEnv overrides fields from the environment. The SUPABASE_* names are
// accepted for deployments that already export them.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	pick := func(dst *string, names ...string) {
		for _, n := range names {
			if v, ok := lookup(n); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	pick(&c.RemoteURL, "FISCOPS_REMOTE_URL", "SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL")
	pick(&c.RemoteKey, "FISCOPS_REMOTE_KEY", "SUPABASE_ANON_KEY", "NEXT_PUBLIC_SUPABASE_ANON_KEY")
	pick(&c.DataDir, "FISCOPS_DATA_DIR")
	pick(&c.ExportDir, "FISCOPS_EXPORT_DIR")
	pick(&c.RedisAddr, "FISCOPS_REDIS_ADDR")
	pick(&c.CenterID, "FISCOPS_CENTER_ID")
	pick(&c.Logging.Level, "FISCOPS_LOG_LEVEL")
	pick(&c.Logging.File, "FISCOPS_LOG_FILE")
}

// Mode is remote only when both the endpoint and the key are present.
func (c Config) Mode() store.Mode {
	if c.RemoteURL != "" && c.RemoteKey != "" {
		return store.ModeRemote
	}
	return store.ModeLocal
}

// Debounce returns the sync window for the active mode.
func (c Config) Debounce() time.Duration {
	if c.Mode() == store.ModeRemote {
		return syncer.RemoteDebounce
	}
	return syncer.LocalDebounce
}

// Validate checks values the application cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	return nil
}
