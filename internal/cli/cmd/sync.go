package cmd

import (
	"fmt"
	"sort"

	"github.com/berrythewa/clipsync/internal/ipc"
	"github.com/berrythewa/clipsync/internal/storage"
	syncpoller "github.com/berrythewa/clipsync/internal/sync"
	"github.com/berrythewa/clipsync/internal/types"
	"github.com/berrythewa/clipsync/pkg/format"
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect and control the cross-device sync poller",
	}
	cmd.AddCommand(newSyncNowCmd())
	cmd.AddCommand(newSyncResetCmd())
	cmd.AddCommand(newSyncStatusCmd())
	return cmd
}

func daemonRequest(command string, out any) error {
	if !ipc.Available(cfg.IPC.SocketPath) {
		return fmt.Errorf("daemon is not running")
	}
	resp, err := ipc.SendRequest(cfg.IPC.SocketPath, &ipc.Request{Command: command})
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func newSyncNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Check for items from other devices immediately",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []*types.ClipboardItem
			if err := daemonRequest(ipc.CmdSyncForce, &items); err != nil {
				return err
			}
			if useJSON {
				return printJSON(cmd.OutOrStdout(), items)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d new items\n", len(items))
			opts := formatOptions()
			opts.Compact = true
			for _, item := range items {
				fmt.Fprintln(cmd.OutOrStdout(), format.FormatItem(item, opts))
			}
			return nil
		},
	}
}

func newSyncResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Zero the sync cursor so all history from other devices is announced again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ipc.Available(cfg.IPC.SocketPath) {
				var status syncpoller.PollerStatus
				if err := daemonRequest(ipc.CmdSyncReset, &status); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Sync cursor reset")
				return nil
			}

			// no daemon: write the persisted cursor for the configured database
			opts := cfg.StorageOptions()
			opts.Logger = logger
			backend, err := storage.Open(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			target := backend.Target()
			backend.Close()

			st, err := openState()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.SaveCursor(target, 0); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sync cursor for %s reset\n", target)
			return nil
		},
	}
}

func newSyncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync cursor and last check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if ipc.Available(cfg.IPC.SocketPath) {
				var status syncpoller.PollerStatus
				if err := daemonRequest(ipc.CmdSyncStatus, &status); err != nil {
					return err
				}
				if useJSON {
					return printJSON(out, status)
				}
				fmt.Fprintf(out, "Running:   %t\n", status.Running)
				fmt.Fprintf(out, "Database:  %s\n", status.CursorKey)
				fmt.Fprintf(out, "Cursor:    %d\n", status.Cursor)
				fmt.Fprintf(out, "Received:  %d\n", status.Received)
				if !status.LastCheck.IsZero() {
					fmt.Fprintf(out, "Checked:   %s (%d items)\n", format.FormatRelativeTime(status.LastCheck), status.LastBatch)
				}
				if status.LastError != "" {
					fmt.Fprintf(out, "Error:     %s\n", status.LastError)
				}
				return nil
			}

			st, err := openState()
			if err != nil {
				return err
			}
			defer st.Close()
			cursors, err := st.Cursors()
			if err != nil {
				return err
			}
			if useJSON {
				return printJSON(out, cursors)
			}
			fmt.Fprintln(out, "Daemon not running; persisted cursors:")
			keys := make([]string, 0, len(cursors))
			for k := range cursors {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %s: %d\n", k, cursors[k])
			}
			return nil
		},
	}
}
