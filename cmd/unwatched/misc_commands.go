package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/unwatched/internal/config"
	"github.com/pders01/unwatched/internal/debuglog"
	"github.com/pders01/unwatched/internal/search"
	"github.com/pders01/unwatched/internal/storage"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headingStyle.Render("unwatched "+Version))
			fmt.Fprintln(out, "YouTube subscription inbox and watch queue")
			fmt.Fprintln(out, "github.com/pders01/unwatched")
		},
	}
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Manage the configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}

	var path string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.DefaultPath()
			}
			if err := config.GenerateDefaultConfig(path); err != nil {
				return fmt.Errorf("generating config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default configuration at: %s\n", path)
			return nil
		},
	}
	generate.Flags().StringVarP(&path, "output", "o", "", "Config file to write (default ~/.config/unwatched/config.toml)")
	cmd.AddCommand(generate)
	return cmd
}

func newChaptersCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "chapters <video-id>",
		Short: "Refresh sponsor segments and show the chapter timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(false, func(a *app) error {
				result, err := a.chapters.RefreshSponsorChapters(cmd.Context(), args[0], force)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !result.Refreshed {
					fmt.Fprintln(out, "Sponsor data is current, showing stored chapters")
				}
				if len(result.Chapters) == 0 {
					fmt.Fprintln(out, "No chapters")
					return nil
				}

				rows := make([][]string, 0, len(result.Chapters))
				for _, c := range result.Chapters {
					end := "-"
					if e, ok := c.End(); ok {
						end = formatDuration(&e)
					}
					start := c.StartTime
					rows = append(rows, []string{formatDuration(&start), end, string(c.Category), c.Title})
				}
				printHeading(out, fmt.Sprintf("Chapters (%d)", len(result.Chapters)))
				fmt.Fprintln(out, renderTable(
					[]string{"Start", "End", "Category", "Title"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Fetch even if the cached data is fresh")
	return cmd
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search subscriptions, titles, descriptions and chapters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return ctx.withApp(false, func(a *app) error {
				var searcher search.Searcher
				idx, err := search.NewBleveEngine(a.store, a.config.Database.SearchIndex)
				switch {
				case err == nil:
					defer idx.Close()
					searcher = idx
				case errors.Is(err, search.ErrIndexBusy):
					debuglog.Infof("search index busy, scanning the store")
					searcher = search.NewEngine(a.store)
				default:
					debuglog.Warnf("search index unavailable, scanning the store: %v", err)
					searcher = search.NewEngine(a.store)
				}

				results, err := searcher.Search(query, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(results) == 0 {
					fmt.Fprintln(out, "No results")
					return nil
				}

				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, resultRow(r))
				}
				printHeading(out, fmt.Sprintf("Results for %q (%d)", query, len(results)))
				fmt.Fprintln(out, renderTable(
					[]string{"Kind", "ID", "Title", "Channel", "Score"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	return cmd
}

func resultRow(r *search.Result) []string {
	score := fmt.Sprintf("%.2f", r.Score)
	if r.IsVideo && r.Video != nil {
		channel := r.Video.FeedTitle
		if r.Subscription != nil {
			channel = r.Subscription.Title
		}
		return []string{"video", r.Video.YoutubeID, r.Video.Title, channel, score}
	}
	if r.Subscription != nil {
		return []string{"channel", r.Subscription.ID, r.Subscription.Title, "", score}
	}
	return []string{"?", "", "", "", score}
}

func newBackupCommand(ctx *commandContext) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a snapshot of the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(false, func(a *app) error {
				target := dir
				if target == "" {
					target = a.config.Backup.Dir
				}
				target, err := ctx.paths.BackupDir(target)
				if err != nil {
					return err
				}
				path, err := a.store.BackupToFile(target, time.Now())
				if err != nil {
					return err
				}

				state, err := a.store.GetRefreshState()
				if err != nil {
					return err
				}
				state.LastAutoBackup = storage.Time(time.Now())
				if err := a.store.SaveRefreshState(state); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", filepath.Clean(path))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory to write into (default backup.dir)")
	return cmd
}
