package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/berrythewa/clipsync/internal/ipc"
	"github.com/berrythewa/clipsync/internal/notify"
	"github.com/berrythewa/clipsync/pkg/format"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print daemon events as they happen",
		Long: `Print daemon events as they happen: local captures, items arriving
from other devices and errors. Stops on Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			opts := formatOptions()
			opts.Compact = true

			return ipc.Stream(cmd.Context(), cfg.IPC.SocketPath, &ipc.Request{Command: ipc.CmdWatch}, func(raw json.RawMessage) error {
				if useJSON {
					_, err := fmt.Fprintln(out, string(raw))
					return err
				}
				var e notify.Event
				if err := json.Unmarshal(raw, &e); err != nil {
					return fmt.Errorf("failed to decode event: %w", err)
				}
				_, err := fmt.Fprintln(out, describeEvent(e, opts))
				return err
			})
		},
	}
}

func describeEvent(e notify.Event, opts format.Options) string {
	ts := e.Time.Format("15:04:05")
	switch e.Kind {
	case notify.KindItemAdded:
		return fmt.Sprintf("%s captured %s", ts, format.FormatItem(e.Item, opts))
	case notify.KindNewItems:
		lines := []string{fmt.Sprintf("%s %d from other devices", ts, len(e.Items))}
		for _, item := range e.Items {
			lines = append(lines, "  "+format.FormatItem(item, opts))
		}
		return strings.Join(lines, "\n")
	case notify.KindError:
		return fmt.Sprintf("%s %s error: %s", ts, e.Source, e.Error)
	default:
		return fmt.Sprintf("%s %s", ts, e.Kind)
	}
}
