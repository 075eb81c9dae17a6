package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/pders01/unwatched/internal/chapters"
	"github.com/pders01/unwatched/internal/config"
	"github.com/pders01/unwatched/internal/debuglog"
	"github.com/pders01/unwatched/internal/feed"
	"github.com/pders01/unwatched/internal/refresh"
	"github.com/pders01/unwatched/internal/search"
	"github.com/pders01/unwatched/internal/sponsorblock"
	"github.com/pders01/unwatched/internal/storage"
	"github.com/pders01/unwatched/internal/validation"
)

type commandContext struct {
	configFlag   *string
	dbFlag       *string
	logLevelFlag *string

	paths *validation.PathHandler

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, dbFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		dbFlag:       dbFlag,
		logLevelFlag: logLevelFlag,
		paths:        validation.NewPermissivePathHandler(),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if path := strings.TrimSpace(*c.dbFlag); path != "" {
			cfg.Database.Path = path
		}
		if cfg.Database.Path, err = c.paths.DBPath(cfg.Database.Path); err != nil {
			c.configErr = fmt.Errorf("database path: %w", err)
			return
		}
		if cfg.Database.SearchIndex, err = c.paths.IndexPath(cfg.Database.SearchIndex); err != nil {
			c.configErr = fmt.Errorf("search index path: %w", err)
			return
		}
		if level := strings.TrimSpace(*c.logLevelFlag); level != "" {
			cfg.Log.Level = level
		}
		if err := debuglog.Setup(debuglog.ParseLogLevel(cfg.Log.Level), cfg.Log.Path); err != nil {
			c.configErr = fmt.Errorf("setting up logging: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// app bundles the components a command works with.
type app struct {
	config       *config.Config
	store        *storage.Store
	manager      *feed.Manager
	chapters     *chapters.Service
	orchestrator *refresh.Orchestrator
	index        *search.BleveEngine
}

// openApp opens the store and wires every component. With withIndex the
// search index is opened too and kept current by the manager; a busy index
// is skipped with a warning.
func (c *commandContext) openApp(withIndex bool) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStoreWithTimeout(cfg.Database.Path, cfg.Database.Timeout)
	if err != nil {
		return nil, err
	}

	a := &app{config: cfg, store: store}

	client := sponsorblock.New(cfg.SponsorBlock.BaseURL,
		sponsorblock.WithHTTPClient(&http.Client{Timeout: cfg.SponsorBlock.HTTPTimeout}),
		sponsorblock.WithRateLimit(cfg.SponsorBlock.RequestsPerSecond),
		sponsorblock.WithUserAgent(cfg.Feed.UserAgent),
	)
	policy := chapters.Policy{
		RecentWindow: cfg.SponsorBlock.RecentWindow,
		StaleAfter:   cfg.SponsorBlock.StaleAfter,
	}
	a.chapters = chapters.NewService(store, client, policy, cfg.SponsorBlock.Tolerance)

	opts := []feed.Option{feed.WithChapterRefresher(a.chapters)}
	if withIndex {
		idx, err := search.NewBleveEngine(store, cfg.Database.SearchIndex)
		switch {
		case errors.Is(err, search.ErrIndexBusy):
			debuglog.Warnf("search index busy, continuing without it")
		case err != nil:
			debuglog.Warnf("search index unavailable: %v", err)
		default:
			a.index = idx
			opts = append(opts, feed.WithIndex(idx))
		}
	}

	a.manager = feed.NewManager(store, cfg, opts...)
	a.orchestrator = refresh.New(store, cfg, a.manager)
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// withApp runs fn with an open app and closes it afterwards.
func (c *commandContext) withApp(withIndex bool, fn func(*app) error) error {
	a, err := c.openApp(withIndex)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			debuglog.Warnf("closing: %v", err)
		}
	}()
	return fn(a)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func newRootCommand() *cobra.Command {
	var configFlag, dbFlag, logLevelFlag string

	ctx := newCommandContext(&configFlag, &dbFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "unwatched",
		Short:         "YouTube subscription inbox and watch queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = debuglog.Close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Path to database file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error, off")

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newSubscribeCommand(ctx))
	rootCmd.AddCommand(newSubscriptionsCommand(ctx))
	rootCmd.AddCommand(newUnsubscribeCommand(ctx))
	rootCmd.AddCommand(newResolversCommand(ctx))
	rootCmd.AddCommand(newRefreshCommand(ctx))
	rootCmd.AddCommand(newStartupCommand(ctx))
	rootCmd.AddCommand(newDaemonCommand(ctx))
	rootCmd.AddCommand(newAddCommand(ctx))
	rootCmd.AddCommand(newQueueCommand(ctx))
	rootCmd.AddCommand(newInboxCommand(ctx))
	rootCmd.AddCommand(newWatchedCommand(ctx))
	rootCmd.AddCommand(newChaptersCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newBackupCommand(ctx))

	return rootCmd
}
