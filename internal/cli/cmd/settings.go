package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/berrythewa/clipsync/internal/repository"
	"github.com/berrythewa/clipsync/internal/state"
	"github.com/berrythewa/clipsync/internal/storage"
	"github.com/spf13/cobra"
)

// settingsStore is satisfied by the shared repository table and the local
// state file
type settingsStore interface {
	get(ctx context.Context, key string) (string, error)
	set(ctx context.Context, key, value string) error
	del(ctx context.Context, key string) (bool, error)
	list(ctx context.Context) (map[string]string, error)
	close()
}

type localSettings struct{ st *state.Store }

func (l localSettings) get(_ context.Context, key string) (string, error) {
	v, err := l.st.Get(key)
	if errors.Is(err, state.ErrNotFound) {
		return "", storage.ErrNotFound
	}
	return v, err
}

func (l localSettings) set(_ context.Context, key, value string) error {
	return l.st.Set(key, value)
}

func (l localSettings) del(_ context.Context, key string) (bool, error) {
	return l.st.Delete(key)
}

func (l localSettings) list(context.Context) (map[string]string, error) {
	return l.st.List()
}

func (l localSettings) close() {
	l.st.Close()
}

type repoSettings struct {
	repo      *repository.Repository
	closeRepo func()
}

func (r repoSettings) get(ctx context.Context, key string) (string, error) {
	return r.repo.GetSetting(ctx, key)
}

func (r repoSettings) set(ctx context.Context, key, value string) error {
	return r.repo.SetSetting(ctx, key, value)
}

func (r repoSettings) del(ctx context.Context, key string) (bool, error) {
	return r.repo.DeleteSetting(ctx, key)
}

func (r repoSettings) list(ctx context.Context) (map[string]string, error) {
	return r.repo.ListSettings(ctx)
}

func (r repoSettings) close() {
	r.closeRepo()
}

func openSettings(ctx context.Context, local bool) (settingsStore, error) {
	if local {
		st, err := openState()
		if err != nil {
			return nil, err
		}
		return localSettings{st: st}, nil
	}

	repo, closeRepo, err := openRepository(ctx)
	if err != nil {
		return nil, err
	}
	return repoSettings{repo: repo, closeRepo: closeRepo}, nil
}

func newSettingsCmd() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write key/value settings",
		Long: `Read and write key/value settings.

Settings are stored in the history database and shared by every device,
unless --local is given, in which case they stay in this machine's state
file.`,
	}
	cmd.PersistentFlags().BoolVar(&local, "local", false, "use this machine's state file")

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSettings(cmd.Context(), local)
			if err != nil {
				return err
			}
			defer s.close()

			v, err := s.get(cmd.Context(), args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("setting %q not found", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSettings(cmd.Context(), local)
			if err != nil {
				return err
			}
			defer s.close()
			return s.set(cmd.Context(), args[0], args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSettings(cmd.Context(), local)
			if err != nil {
				return err
			}
			defer s.close()

			existed, err := s.del(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !existed {
				return fmt.Errorf("setting %q not found", args[0])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSettings(cmd.Context(), local)
			if err != nil {
				return err
			}
			defer s.close()

			all, err := s.list(cmd.Context())
			if err != nil {
				return err
			}
			if useJSON {
				return printJSON(cmd.OutOrStdout(), all)
			}
			keys := make([]string, 0, len(all))
			for k := range all {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, all[k])
			}
			return nil
		},
	})

	return cmd
}
