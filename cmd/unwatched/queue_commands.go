package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pders01/unwatched/internal/storage"
)

func printVideos(out io.Writer, title string, videos []*storage.Video) {
	if len(videos) == 0 {
		fmt.Fprintf(out, "%s is empty\n", title)
		return
	}
	printHeading(out, fmt.Sprintf("%s (%d)", title, len(videos)))
	fmt.Fprintln(out, renderTable(videoHeaders, videoRows(videos), videoAligns))
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var toQueue bool
	var at int

	cmd := &cobra.Command{
		Use:   "add <video-url-or-id>",
		Short: "Add a single video to the inbox or queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			placement := storage.PlacementInbox
			if toQueue || cmd.Flags().Changed("at") {
				placement = storage.PlacementQueue
			}
			return ctx.withApp(true, func(a *app) error {
				video, err := a.manager.AddVideo(cmd.Context(), args[0], placement, at)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) to %s\n", video.Title, video.YoutubeID, placement)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&toQueue, "queue", false, "Add to the queue instead of the inbox")
	cmd.Flags().IntVar(&at, "at", 0, "Queue position, 0 is the top")
	return cmd
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	list := func(cmd *cobra.Command, args []string) error {
		return ctx.withApp(false, func(a *app) error {
			videos, err := a.manager.Queue()
			if err != nil {
				return err
			}
			printVideos(cmd.OutOrStdout(), "Queue", videos)
			return nil
		})
	}

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show and edit the watch queue",
		RunE:  list,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued videos in order",
		RunE:  list,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <video-id>",
		Short: "Remove a video from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(false, func(a *app) error {
				removed, err := a.manager.RemoveFromQueue(args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("%s is not queued", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from the queue\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "move <from> <to>",
		Short: "Move the queue entry at position from to position to",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[0])
			}
			to, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[1])
			}
			return ctx.withApp(false, func(a *app) error {
				if err := a.manager.MoveQueueEntry(from, to); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Moved entry %d to %d\n", from, to)
				return nil
			})
		},
	})

	return cmd
}

func newInboxCommand(ctx *commandContext) *cobra.Command {
	list := func(cmd *cobra.Command, args []string) error {
		return ctx.withApp(false, func(a *app) error {
			videos, err := a.manager.Inbox()
			if err != nil {
				return err
			}
			printVideos(cmd.OutOrStdout(), "Inbox", videos)
			return nil
		})
	}

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Show and clear the inbox",
		RunE:  list,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List inbox videos in the order they arrived",
		RunE:  list,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every video from the inbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(false, func(a *app) error {
				n, err := a.manager.ClearInbox()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d videos from the inbox\n", n)
				return nil
			})
		},
	})

	return cmd
}

func newWatchedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watched <video-id>",
		Short: "Mark a video watched and remove it from the inbox and queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(false, func(a *app) error {
				if err := a.manager.MarkWatched(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %s watched\n", args[0])
				return nil
			})
		},
	}
}
