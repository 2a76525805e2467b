package cmd

import (
	"fmt"

	"github.com/berrythewa/clipsync/pkg/format"
	"github.com/spf13/cobra"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List devices writing to this history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, closeRepo, err := openRepository(cmd.Context())
			if err != nil {
				return err
			}
			defer closeRepo()

			devices, err := repo.ListDevices(cmd.Context())
			if err != nil {
				return err
			}
			if useJSON {
				return printJSON(cmd.OutOrStdout(), devices)
			}
			fmt.Fprintln(cmd.OutOrStdout(), format.FormatDevices(devices, cfg.DeviceID, formatOptions()))
			return nil
		},
	}
}
