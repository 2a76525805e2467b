package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/berrythewa/clipsync/internal/clipboard"
	"github.com/berrythewa/clipsync/internal/ipc"
	"github.com/berrythewa/clipsync/internal/platform"
	"github.com/berrythewa/clipsync/internal/storage"
	"github.com/berrythewa/clipsync/internal/types"
	"github.com/berrythewa/clipsync/pkg/format"
	"github.com/spf13/cobra"
)

// newHistoryCmd creates the history command with all subcommands
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage clipboard history",
		Long: `Manage clipboard history:
  • List and search entries, newest first
  • Show, star, delete or copy back a single entry
  • Trim old entries and show statistics`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistorySearchCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDeleteCmd())
	cmd.AddCommand(newHistoryStarCmd())
	cmd.AddCommand(newHistoryCopyCmd())
	cmd.AddCommand(newHistoryCleanupCmd())
	cmd.AddCommand(newHistoryStatsCmd())

	return cmd
}

type pageFlags struct {
	page    int
	size    int
	compact bool
}

func (p *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&p.page, "page", "p", 1, "page number, starting at 1")
	cmd.Flags().IntVarP(&p.size, "size", "n", 0, "entries per page (default history.page_size)")
	cmd.Flags().BoolVar(&p.compact, "compact", false, "one line per entry")
}

func (p *pageFlags) pageSize() int {
	if p.size > 0 {
		return p.size
	}
	return cfg.History.PageSize
}

func (p *pageFlags) render(cmd *cobra.Command, page *types.Page) error {
	if useJSON {
		return printJSON(cmd.OutOrStdout(), page)
	}
	opts := formatOptions()
	if p.compact {
		opts.Compact = true
		opts.ShowMetadata = false
	}
	fmt.Fprintln(cmd.OutOrStdout(), format.FormatPage(page, opts))
	return nil
}

func newHistoryListCmd() *cobra.Command {
	var pf pageFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clipboard history",
		Long: `List clipboard history one page at a time, newest first.

Examples:
  clipsync history list               # first page
  clipsync history list -p 3 -n 20    # third page of 20
  clipsync history list --compact     # single-line format`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeRepo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			page, err := repo.GetItems(cmd.Context(), pf.page, pf.pageSize())
			if err != nil {
				return err
			}
			return pf.render(cmd, page)
		},
	}
	pf.register(cmd)
	return cmd
}

func newHistorySearchCmd() *cobra.Command {
	var pf pageFlags

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search text and previews, case-insensitive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeRepo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			page, err := repo.Search(cmd.Context(), args[0], pf.page, pf.pageSize())
			if err != nil {
				return err
			}
			return pf.render(cmd, page)
		},
	}
	pf.register(cmd)
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	var save string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			repo, closeRepo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			item, err := repo.GetItemByID(cmd.Context(), id)
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("item %d not found", id)
			}
			if err != nil {
				return err
			}

			if save != "" {
				data := []byte(item.TextContent)
				if item.IsImage() {
					data = item.ImageData
				}
				if err := os.WriteFile(save, data, 0600); err != nil {
					return fmt.Errorf("failed to save item: %w", err)
				}
			}

			if useJSON {
				return printJSON(cmd.OutOrStdout(), item)
			}
			opts := formatOptions()
			opts.MaxLines = 0
			fmt.Fprintln(cmd.OutOrStdout(), format.FormatItem(item, opts))
			return nil
		},
	}
	cmd.Flags().StringVarP(&save, "output", "o", "", "also write the content (text or PNG) to this file")
	return cmd
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			repo, closeRepo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			deleted, err := repo.DeleteItem(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("item %d not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted #%d\n", id)
			return nil
		},
	}
}

func newHistoryStarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "star <id>",
		Short: "Star or unstar an entry. Starred entries survive cleanup.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			repo, closeRepo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			ok, err := repo.ToggleStar(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("item %d not found", id)
			}
			item, err := repo.GetItemByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			if item.IsStarred {
				fmt.Fprintf(cmd.OutOrStdout(), "Starred #%d\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Unstarred #%d\n", id)
			}
			return nil
		},
	}
}

func newHistoryCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <id>",
		Short: "Put an entry back on the clipboard",
		Long: `Put an entry back on the clipboard.

When the daemon is running the copy goes through it, so the entry is not
captured again. Otherwise the clipboard is written directly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			if ipc.Available(cfg.IPC.SocketPath) {
				resp, err := ipc.SendRequest(cfg.IPC.SocketPath, &ipc.Request{
					Command: ipc.CmdCopy,
					Args:    map[string]any{"id": id},
				})
				if err != nil {
					return err
				}
				if err := resp.Err(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Copied #%d\n", id)
				return nil
			}

			repo, closeRepo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			item, err := repo.GetItemByID(cmd.Context(), id)
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("item %d not found", id)
			}
			if err != nil {
				return err
			}

			w := clipboard.NewWatcher(clipboard.WatcherConfig{
				Clipboard: platform.NewClipboard(logger),
				Store:     repo,
				Logger:    logger,
			})
			if err := w.CopyToClipboard(cmd.Context(), item); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Copied #%d\n", id)
			return nil
		},
	}
}

func newHistoryCleanupCmd() *cobra.Command {
	var maxItems int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete the oldest unstarred entries beyond the retention limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxItems <= 0 {
				maxItems = cfg.History.MaxItems
			}
			repo, closeRepo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			deleted, err := repo.CleanupOldItems(cmd.Context(), maxItems)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries (limit %d unstarred)\n", deleted, maxItems)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxItems, "max", 0, "unstarred entries to keep (default history.max_items)")
	return cmd
}

func newHistoryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show history statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeRepo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			stats, err := repo.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if useJSON {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			fmt.Fprintln(cmd.OutOrStdout(), format.FormatStats(stats, formatOptions()))
			return nil
		},
	}
}
