package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pders01/unwatched/internal/debuglog"
	"github.com/pders01/unwatched/internal/refresh"
)

func printRefreshResult(out io.Writer, result *refresh.Result) {
	if result.Skipped {
		fmt.Fprintln(out, "Refresh skipped")
		return
	}
	report := result.Report
	if report == nil {
		return
	}
	fmt.Fprintf(out, "Refreshed %d subscriptions: %d new videos, %d placed\n",
		report.Subscriptions, report.NewVideos, report.Placed)

	ids := make([]string, 0, len(report.Failed))
	for id := range report.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "  %s: %v\n", id, report.Failed[id])
	}
}

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	var subscriptionID string
	var force bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch new videos for every subscription, or one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(true, func(a *app) error {
				a.manager.SetForceRefresh(force)

				var result *refresh.Result
				var err error
				if subscriptionID != "" {
					result, err = a.orchestrator.RefreshOne(cmd.Context(), subscriptionID)
				} else {
					result, err = a.orchestrator.RefreshAll(cmd.Context())
				}
				if result != nil && (err == nil || !result.Skipped) {
					printRefreshResult(cmd.OutOrStdout(), result)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&subscriptionID, "subscription", "s", "", "Only refresh this subscription")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Ignore cached ETag/Last-Modified validators")
	return cmd
}

func newStartupCommand(ctx *commandContext) *cobra.Command {
	var syncWait bool

	cmd := &cobra.Command{
		Use:   "startup",
		Short: "Refresh if the last automatic refresh is older than the interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(true, func(a *app) error {
				var result *refresh.Result
				var err error
				if syncWait {
					// Nothing signals sync completion from the command line, so
					// the settle timeout always applies.
					result, err = a.orchestrator.HandleBecameActive(cmd.Context(), nil)
				} else {
					result, err = a.orchestrator.RefreshOnStartup(cmd.Context())
				}
				if result != nil && (err == nil || !result.Skipped) {
					printRefreshResult(cmd.OutOrStdout(), result)
				}
				if err != nil {
					return err
				}
				if path, err := a.orchestrator.HandleAutoBackup(cmd.Context()); err != nil {
					return err
				} else if path != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", path)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&syncWait, "wait-for-sync", false, "Wait for the sync settle timeout when sync is enabled")
	return cmd
}

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Refresh on startup and then every auto interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := debuglog.ParseLogLevel(cfg.Log.Level)
			if level == debuglog.LevelOff {
				level = debuglog.LevelInfo
			}
			debuglog.SetOutput(level, os.Stderr)

			return ctx.withApp(true, func(a *app) error {
				debuglog.Infof("daemon started, refreshing every %s", cfg.Refresh.AutoInterval)
				err := a.orchestrator.Run(cmd.Context())
				debuglog.Infof("daemon stopped")
				return err
			})
		},
	}
}
