package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/berrythewa/clipsync/internal/storage"
	"github.com/berrythewa/clipsync/internal/types"
	"go.uber.org/zap"
)

type deviceRecord struct {
	Name     string `json:"name"`
	LastSeen int64  `json:"last_seen"`
}

// TouchDevice records that a device is alive and what it is called
func (r *Repository) TouchDevice(ctx context.Context, id, name string) error {
	raw, err := json.Marshal(deviceRecord{Name: name, LastSeen: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	if err := r.putMeta(ctx, devicePrefix+id, string(raw)); err != nil {
		return err
	}
	r.logger.Debug("Device registered", zap.String("device_id", id), zap.String("device_name", name))
	return nil
}

// ListDevices merges the device registry with per-device item counts.
// Devices that wrote items but never registered are included by their
// most recent device_name.
func (r *Repository) ListDevices(ctx context.Context) ([]types.DeviceInfo, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return storage.Read(ctx, r.backend, func(ctx context.Context, q storage.Querier) ([]types.DeviceInfo, error) {
		devices := make(map[string]*types.DeviceInfo)

		rows, err := q.QueryContext(ctx, r.q(`SELECT key, value FROM app_meta WHERE key LIKE ?`), devicePrefix+"%")
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var key string
			var value sql.NullString
			if err := rows.Scan(&key, &value); err != nil {
				rows.Close()
				return nil, err
			}
			var rec deviceRecord
			if err := json.Unmarshal([]byte(value.String), &rec); err != nil {
				r.logger.Warn("Skipping malformed device record", zap.String("key", key), zap.Error(err))
				continue
			}
			id := strings.TrimPrefix(key, devicePrefix)
			devices[id] = &types.DeviceInfo{ID: id, Name: rec.Name, LastSeen: time.UnixMilli(rec.LastSeen)}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}

		rows, err = q.QueryContext(ctx, `SELECT device_id, MAX(device_name), COUNT(*), MAX(created_at)
			FROM clipboard_items GROUP BY device_id`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id     string
				name   sql.NullString
				count  int
				latest int64
			)
			if err := rows.Scan(&id, &name, &count, &latest); err != nil {
				return nil, err
			}
			d, ok := devices[id]
			if !ok {
				d = &types.DeviceInfo{ID: id, Name: name.String, LastSeen: time.UnixMilli(latest)}
				devices[id] = d
			}
			d.Items = count
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

		out := make([]types.DeviceInfo, 0, len(devices))
		for _, d := range devices {
			out = append(out, *d)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
		return out, nil
	})
}
