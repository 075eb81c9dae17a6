package config

import (
	"path/filepath"
	"time"
)

// TestConfig returns a config suitable for testing. Every path lives under
// dir, normally a t.TempDir().
func TestConfig(dir string) *Config {
	cfg := defaultConfig()
	cfg.Database = DatabaseConfig{
		Path:        filepath.Join(dir, "test.db"),
		Timeout:     1 * time.Second,
		SearchIndex: filepath.Join(dir, "index.bleve"),
	}
	cfg.Feed.HTTPTimeout = 5 * time.Second
	cfg.Feed.UserAgent = "unwatched-test/1.0"
	cfg.Refresh.LockPath = filepath.Join(dir, "refresh.lock")
	cfg.Sync.SettleTimeout = 50 * time.Millisecond
	cfg.SponsorBlock.HTTPTimeout = 5 * time.Second
	cfg.SponsorBlock.RequestsPerSecond = 0
	cfg.Backup.Dir = filepath.Join(dir, "backups")
	cfg.Log.Path = filepath.Join(dir, "unwatched.log")
	return cfg
}
