package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pders01/unwatched/internal/storage"
)

type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Feed         FeedConfig         `mapstructure:"feed"`
	Refresh      RefreshConfig      `mapstructure:"refresh"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Placement    PlacementConfig    `mapstructure:"placement"`
	SponsorBlock SponsorBlockConfig `mapstructure:"sponsorblock"`
	Backup       BackupConfig       `mapstructure:"backup"`
	Log          LogConfig          `mapstructure:"log"`
}

type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SearchIndex string        `mapstructure:"search_index"`
}

type FeedConfig struct {
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	BackfillLimit int           `mapstructure:"backfill_limit"`
	// BaseURL is the feed endpoint channel ids are resolved against.
	BaseURL string `mapstructure:"base_url"`
}

type RefreshConfig struct {
	OnStartup    bool          `mapstructure:"on_startup"`
	AutoInterval time.Duration `mapstructure:"auto_interval"`
	Concurrency  int           `mapstructure:"concurrency"`
	LockPath     string        `mapstructure:"lock_path"`
}

type SyncConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	SettleTimeout time.Duration `mapstructure:"settle_timeout"`
}

type PlacementConfig struct {
	DefaultVideo            string `mapstructure:"default_video"`
	DefaultShorts           string `mapstructure:"default_shorts"`
	HandleShortsDifferently bool   `mapstructure:"handle_shorts_differently"`
}

type SponsorBlockConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	Tolerance         float64       `mapstructure:"tolerance"`
	RecentWindow      time.Duration `mapstructure:"recent_window"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	OnIngest          bool          `mapstructure:"on_ingest"`
}

type BackupConfig struct {
	Automatic bool   `mapstructure:"automatic"`
	Dir       string `mapstructure:"dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

// VideoPlacement returns the configured placement for regular videos.
func (p PlacementConfig) VideoPlacement() storage.Placement {
	return parsePlacement(p.DefaultVideo)
}

// ShortsPlacement returns the placement for shorts, which only differs from
// VideoPlacement when HandleShortsDifferently is set.
func (p PlacementConfig) ShortsPlacement() storage.Placement {
	if !p.HandleShortsDifferently {
		return p.VideoPlacement()
	}
	return parsePlacement(p.DefaultShorts)
}

func parsePlacement(s string) storage.Placement {
	placement, err := storage.ParsePlacement(s)
	if err != nil || placement == storage.PlacementDefault {
		return storage.PlacementInbox
	}
	return placement
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".unwatched")

	return &Config{
		Database: DatabaseConfig{
			Path:        filepath.Join(dataDir, "unwatched.db"),
			Timeout:     1 * time.Second,
			SearchIndex: filepath.Join(dataDir, "index.bleve"),
		},
		Feed: FeedConfig{
			HTTPTimeout:   30 * time.Second,
			UserAgent:     "unwatched/1.0 (https://github.com/pders01/unwatched)",
			BackfillLimit: 5,
			BaseURL:       "https://www.youtube.com/feeds/videos.xml",
		},
		Refresh: RefreshConfig{
			OnStartup:    true,
			AutoInterval: 1 * time.Hour,
			Concurrency:  4,
			LockPath:     filepath.Join(dataDir, "refresh.lock"),
		},
		Sync: SyncConfig{
			Enabled:       false,
			SettleTimeout: 3 * time.Second,
		},
		Placement: PlacementConfig{
			DefaultVideo:  string(storage.PlacementInbox),
			DefaultShorts: string(storage.PlacementInbox),
		},
		SponsorBlock: SponsorBlockConfig{
			BaseURL:           "https://sponsor.ajay.app/api/",
			HTTPTimeout:       15 * time.Second,
			Tolerance:         1.0,
			RecentWindow:      24 * time.Hour,
			StaleAfter:        72 * time.Hour,
			RequestsPerSecond: 2,
		},
		Backup: BackupConfig{
			Automatic: true,
			Dir:       filepath.Join(dataDir, "backups"),
		},
		Log: LogConfig{
			Level: "off",
			Path:  filepath.Join(dataDir, "unwatched.log"),
		},
	}
}

// DefaultPath returns ~/.config/unwatched/config.toml.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "unwatched", "config.toml")
}

// Load reads configuration from configPath, or from the default locations
// when it is empty. A missing config file is not an error. Every key can be
// overridden from the environment, e.g. UNWATCHED_REFRESH_CONCURRENCY=8.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Dir(DefaultPath()))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("UNWATCHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults registers every leaf key so env overrides and partial files
// merge key by key.
func setDefaults(v *viper.Viper, cfg *Config) {
	for key, value := range flatten(cfg) {
		v.SetDefault(key, value)
	}
}

// Validate rejects values the rest of the program cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Feed.BackfillLimit < 0 {
		errs = append(errs, fmt.Errorf("feed.backfill_limit must not be negative, got %d", c.Feed.BackfillLimit))
	}
	if c.Refresh.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("refresh.concurrency must be at least 1, got %d", c.Refresh.Concurrency))
	}
	if c.Refresh.AutoInterval <= 0 {
		errs = append(errs, fmt.Errorf("refresh.auto_interval must be positive, got %s", c.Refresh.AutoInterval))
	}
	if c.SponsorBlock.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("sponsorblock.tolerance must not be negative, got %v", c.SponsorBlock.Tolerance))
	}
	for key, value := range map[string]string{
		"placement.default_video":  c.Placement.DefaultVideo,
		"placement.default_shorts": c.Placement.DefaultShorts,
	} {
		if _, err := storage.ParsePlacement(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Database.SearchIndex = expandPath(cfg.Database.SearchIndex)
	cfg.Refresh.LockPath = expandPath(cfg.Refresh.LockPath)
	cfg.Backup.Dir = expandPath(cfg.Backup.Dir)
	cfg.Log.Path = expandPath(cfg.Log.Path)
}

// flatten maps a config onto dotted viper keys. Durations are written as
// strings for TOML readability.
func flatten(config *Config) map[string]interface{} {
	return map[string]interface{}{
		"database.path":         config.Database.Path,
		"database.timeout":      config.Database.Timeout.String(),
		"database.search_index": config.Database.SearchIndex,

		"feed.http_timeout":   config.Feed.HTTPTimeout.String(),
		"feed.user_agent":     config.Feed.UserAgent,
		"feed.backfill_limit": config.Feed.BackfillLimit,
		"feed.base_url":       config.Feed.BaseURL,

		"refresh.on_startup":    config.Refresh.OnStartup,
		"refresh.auto_interval": config.Refresh.AutoInterval.String(),
		"refresh.concurrency":   config.Refresh.Concurrency,
		"refresh.lock_path":     config.Refresh.LockPath,

		"sync.enabled":        config.Sync.Enabled,
		"sync.settle_timeout": config.Sync.SettleTimeout.String(),

		"placement.default_video":             config.Placement.DefaultVideo,
		"placement.default_shorts":            config.Placement.DefaultShorts,
		"placement.handle_shorts_differently": config.Placement.HandleShortsDifferently,

		"sponsorblock.base_url":            config.SponsorBlock.BaseURL,
		"sponsorblock.http_timeout":        config.SponsorBlock.HTTPTimeout.String(),
		"sponsorblock.tolerance":           config.SponsorBlock.Tolerance,
		"sponsorblock.recent_window":       config.SponsorBlock.RecentWindow.String(),
		"sponsorblock.stale_after":         config.SponsorBlock.StaleAfter.String(),
		"sponsorblock.requests_per_second": config.SponsorBlock.RequestsPerSecond,
		"sponsorblock.on_ingest":           config.SponsorBlock.OnIngest,

		"backup.automatic": config.Backup.Automatic,
		"backup.dir":       config.Backup.Dir,

		"log.level": config.Log.Level,
		"log.path":  config.Log.Path,
	}
}

func Save(config *Config, path string) error {
	v := viper.New()
	for key, value := range flatten(config) {
		v.Set(key, value)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
