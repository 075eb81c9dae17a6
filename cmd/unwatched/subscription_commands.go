package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pders01/unwatched/internal/storage"
)

func newSubscribeCommand(ctx *commandContext) *cobra.Command {
	var placementFlag string
	var noRefresh bool

	cmd := &cobra.Command{
		Use:   "subscribe <url>",
		Short: "Subscribe to a YouTube channel, playlist or feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			placement, err := storage.ParsePlacement(placementFlag)
			if err != nil {
				return err
			}
			return ctx.withApp(true, func(a *app) error {
				sub, err := a.manager.Subscribe(cmd.Context(), args[0], placement)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Subscribed to %s (%s)\n", sub.Title, sub.ID)
				if noRefresh {
					return nil
				}
				result, err := a.orchestrator.RefreshOne(cmd.Context(), sub.ID)
				if err != nil {
					return err
				}
				if result.Report != nil {
					fmt.Fprintf(out, "Fetched %d new videos, placed %d\n", result.Report.NewVideos, result.Report.Placed)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&placementFlag, "placement", "", "Where new videos go: inbox, queue or default")
	cmd.Flags().BoolVar(&noRefresh, "no-refresh", false, "Do not fetch videos right away")
	return cmd
}

func newSubscriptionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"subs"},
		Short:   "List subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(false, func(a *app) error {
				subs, err := a.manager.Subscriptions()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(subs) == 0 {
					fmt.Fprintln(out, "No subscriptions")
					return nil
				}
				sort.Slice(subs, func(i, j int) bool { return subs[i].Title < subs[j].Title })

				rows := make([][]string, 0, len(subs))
				for _, sub := range subs {
					rows = append(rows, []string{
						sub.ID,
						sub.Title,
						string(sub.PlaceVideosIn.Resolve(storage.PlacementDefault)),
						fmt.Sprintf("%d", len(sub.VideoIDs)),
						formatDate(sub.MostRecentVideoDate),
					})
				}
				printHeading(out, fmt.Sprintf("Subscriptions (%d)", len(subs)))
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Title", "Placement", "Videos", "Latest"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.AddCommand(newImportCommand(ctx))
	cmd.AddCommand(newExportCommand(ctx))
	return cmd
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.toml>",
		Short: "Subscribe to every entry of a TOML subscription list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ctx.paths.ImportFile(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			return ctx.withApp(true, func(a *app) error {
				report, err := a.manager.ImportSubscriptions(cmd.Context(), f)
				if report == nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Added %d, already subscribed %d, failed %d\n",
					len(report.Added), len(report.Existing), len(report.Failed))
				return err
			})
		},
	}
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write subscriptions as a TOML subscription list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(false, func(a *app) error {
				if outputPath == "" {
					return a.manager.ExportSubscriptions(cmd.OutOrStdout())
				}
				f, err := os.Create(outputPath)
				if err != nil {
					return err
				}
				if err := a.manager.ExportSubscriptions(f); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to file instead of stdout")
	return cmd
}

func newUnsubscribeCommand(ctx *commandContext) *cobra.Command {
	var keepVideos bool

	cmd := &cobra.Command{
		Use:   "unsubscribe <subscription-id>",
		Short: "Remove a subscription and, unless kept, its videos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(true, func(a *app) error {
				if err := a.manager.Unsubscribe(args[0], keepVideos); err != nil {
					if errors.Is(err, storage.ErrSubscriptionNotFound) {
						return fmt.Errorf("no subscription with id %s", args[0])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unsubscribed %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&keepVideos, "keep-videos", false, "Keep the subscription's videos")
	return cmd
}

func newResolversCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolvers",
		Short: "List the URL resolvers subscribe tries, highest priority first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(false, func(a *app) error {
				resolvers := a.manager.Resolvers()
				rows := make([][]string, 0, len(resolvers))
				for _, r := range resolvers {
					rows = append(rows, []string{r.Name(), fmt.Sprint(r.Priority())})
				}
				out := cmd.OutOrStdout()
				printHeading(out, fmt.Sprintf("Resolvers (%d)", len(resolvers)))
				fmt.Fprintln(out, renderTable(
					[]string{"Name", "Priority"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}
