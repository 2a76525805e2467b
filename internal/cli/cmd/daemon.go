package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/berrythewa/clipsync/internal/daemon"
	"github.com/berrythewa/clipsync/internal/ipc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newDaemonCmd creates the daemon command
func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the clipsync daemon",
		Long: `Manage the daemon process that records the clipboard and polls for
items from other devices.`,
	}

	cmd.AddCommand(newDaemonRunCmd())
	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())

	return cmd
}

func newDaemonRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Info("Starting clipsync daemon",
				zap.Bool("detached", os.Getenv(daemon.EnvDaemon) == "1"))
			return daemon.New(cfg, daemon.Options{Logger: logger}).Run(cmd.Context())
		},
	}
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			executable, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to get executable path: %w", err)
			}

			childArgs := []string{"daemon", "run"}
			if configFile != "" {
				abs, err := filepath.Abs(configFile)
				if err != nil {
					return err
				}
				childArgs = append(childArgs, "--config", abs)
			}

			logFile := cfg.Log.File
			if logFile == "" {
				logFile = filepath.Join(filepath.Dir(cfg.StatePath), "daemon.log")
			}

			pid, err := daemon.Start(executable, childArgs, logFile, cfg.PIDFile, cfg.IPC.SocketPath, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "clipsync daemon started with PID %d\n", pid)
			return nil
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := daemon.Stop(cfg.PIDFile)
			if errors.Is(err, daemon.ErrNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "clipsync daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "clipsync daemon (PID %d) stopped\n", pid)
			return nil
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			pid, running := daemon.Running(cfg.PIDFile)
			if !running && !ipc.Available(cfg.IPC.SocketPath) {
				fmt.Fprintln(out, "clipsync daemon is not running")
				return nil
			}

			var status daemon.Status
			if err := daemonRequest(ipc.CmdStatus, &status); err != nil {
				fmt.Fprintf(out, "clipsync daemon is running with PID %d but does not answer: %v\n", pid, err)
				return nil
			}
			if useJSON {
				return printJSON(out, status)
			}

			fmt.Fprintf(out, "clipsync daemon is running with PID %d\n", status.PID)
			fmt.Fprintf(out, "  Device:   %s (%s)\n", status.DeviceName, status.DeviceID)
			fmt.Fprintf(out, "  Storage:  %s\n", status.Storage)
			fmt.Fprintf(out, "  Items:    %d\n", status.Items)
			fmt.Fprintf(out, "  Watcher:  running=%t captured=%d errors=%d\n",
				status.Watcher.Running, status.Watcher.Captured, status.Watcher.ErrorCount)
			fmt.Fprintf(out, "  Sync:     running=%t cursor=%d received=%d\n",
				status.Sync.Running, status.Sync.Cursor, status.Sync.Received)
			return nil
		},
	}
}
