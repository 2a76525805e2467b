package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/berrythewa/clipsync/internal/storage"
)

// devicePrefix namespaces device registry rows inside app_meta
const devicePrefix = "device:"

// GetSetting returns the value stored under key in app_meta
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return storage.Read(ctx, r.backend, func(ctx context.Context, q storage.Querier) (string, error) {
		var value sql.NullString
		err := q.QueryRowContext(ctx, r.q(`SELECT value FROM app_meta WHERE key = ?`), key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return value.String, err
	})
}

// SetSetting upserts key in app_meta
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	if err := validateSettingKey(key); err != nil {
		return err
	}
	return r.putMeta(ctx, key, value)
}

// DeleteSetting removes key and reports whether it existed
func (r *Repository) DeleteSetting(ctx context.Context, key string) (bool, error) {
	if err := validateSettingKey(key); err != nil {
		return false, err
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return storage.WithRetry(ctx, r.backend, func(ctx context.Context, q storage.Querier) (bool, error) {
		res, err := q.ExecContext(ctx, r.q(`DELETE FROM app_meta WHERE key = ?`), key)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n > 0, err
	})
}

// ListSettings returns every user setting, excluding the device registry
func (r *Repository) ListSettings(ctx context.Context) (map[string]string, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return storage.Read(ctx, r.backend, func(ctx context.Context, q storage.Querier) (map[string]string, error) {
		rows, err := q.QueryContext(ctx, `SELECT key, value FROM app_meta ORDER BY key`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		out := make(map[string]string)
		for rows.Next() {
			var key string
			var value sql.NullString
			if err := rows.Scan(&key, &value); err != nil {
				return nil, err
			}
			if strings.HasPrefix(key, devicePrefix) {
				continue
			}
			out[key] = value.String
		}
		return out, rows.Err()
	})
}

func (r *Repository) putMeta(ctx context.Context, key, value string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	err := r.backend.ExecuteWithRetry(ctx, func(ctx context.Context, q storage.Querier) error {
		_, err := q.ExecContext(ctx, r.q(`INSERT INTO app_meta (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`), key, value)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func validateSettingKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("setting key must not be empty")
	}
	if strings.HasPrefix(key, devicePrefix) {
		return fmt.Errorf("setting key prefix %q is reserved", devicePrefix)
	}
	return nil
}
