package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/berrythewa/clipsync/internal/common"
	"github.com/berrythewa/clipsync/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// commands annotated with skipConfig run without loading the config file
const skipConfig = "skip-config"

// newRootCmd builds the command tree. Flags are bound to the package
// variables in vars.go and reset on every call.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clipsync",
		Short: "Clipboard history shared between devices through one database",
		Long: `clipsync records everything you copy into a searchable history.

Point several machines at the same PostgreSQL database (or a shared SQLite
file) and items copied on one device show up on the others.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/clipsync/config.yaml)")
	flags.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flags.BoolVar(&quiet, "quiet", false, "only log errors")
	flags.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&useJSON, "json", false, "output in JSON format")
	flags.BoolVar(&noColor, "no-color", false, "disable colors and icons")

	root.AddCommand(GetCommands()...)
	return root
}

// Execute runs the root command until it finishes or the process is
// interrupted
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command) error {
	if _, skip := cmd.Annotations[skipConfig]; skip {
		logger = zap.NewNop()
		return nil
	}

	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg = loaded

	level := "warn"
	file := ""
	if isDaemonCmd(cmd) {
		level = cfg.Log.Level
		file = cfg.Log.File
	}
	switch {
	case logLevel != "":
		level = logLevel
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}

	l, err := common.NewLogger(level, cfg.Log.Format, file)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	return nil
}

func isDaemonCmd(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "daemon" {
			return true
		}
	}
	return false
}
