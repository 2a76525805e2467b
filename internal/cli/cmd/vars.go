package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/berrythewa/clipsync/internal/config"
	"github.com/berrythewa/clipsync/internal/repository"
	"github.com/berrythewa/clipsync/internal/state"
	"github.com/berrythewa/clipsync/internal/storage"
	"github.com/berrythewa/clipsync/pkg/format"
	"go.uber.org/zap"
)

// Shared variables across all commands
var (
	cfg    *config.Config
	logger *zap.Logger

	configFile string
	verbose    bool
	quiet      bool
	logLevel   string
	useJSON    bool
	noColor    bool
)

// openRepository opens the configured database for a one-shot command
func openRepository(ctx context.Context) (*repository.Repository, func(), error) {
	opts := cfg.StorageOptions()
	opts.Logger = logger

	backend, err := storage.Open(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	repo := repository.New(repository.Config{
		Backend:   backend,
		OpTimeout: cfg.OpTimeout(),
		Logger:    logger,
	})
	return repo, func() { backend.Close() }, nil
}

// openState opens the local state file. It fails while a daemon holds it.
func openState() (*state.Store, error) {
	st, err := state.Open(state.StoreConfig{Path: cfg.StatePath, Logger: logger})
	if errors.Is(err, state.ErrLocked) {
		return nil, fmt.Errorf("%s is held by the running daemon, stop it first with 'clipsync daemon stop'", cfg.StatePath)
	}
	return st, err
}

func formatOptions() format.Options {
	if noColor {
		return format.PlainOptions()
	}
	return format.DefaultOptions()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", s)
	}
	return id, nil
}
