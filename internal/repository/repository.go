// Package repository is the only place that issues queries against the
// clipboard history. It is written against storage.Backend and never
// branches on the engine in use.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/berrythewa/clipsync/internal/storage"
	"github.com/berrythewa/clipsync/internal/types"
	"go.uber.org/zap"
)

const (
	// NewItemsLimit caps a single GetNewItemsSince batch
	NewItemsLimit = 100

	defaultOpTimeout = 60 * time.Second

	listColumns = `id, content_type, text_content, image_thumbnail, content_hash,
		preview, device_id, device_name, created_at, is_starred`
	fullColumns = `id, content_type, text_content, image_data, image_thumbnail, content_hash,
		preview, device_id, device_name, created_at, is_starred`
)

// ErrInvalidItem is returned by AddItem for items that break the content invariants
var ErrInvalidItem = errors.New("invalid clipboard item")

// Config holds the repository collaborators
type Config struct {
	Backend   storage.Backend
	OpTimeout time.Duration
	Logger    *zap.Logger
}

// Repository implements history CRUD, paging, search, retention and sync queries
type Repository struct {
	backend   storage.Backend
	dialect   storage.Dialect
	opTimeout time.Duration
	logger    *zap.Logger
}

// New creates a Repository over config.Backend
func New(config Config) *Repository {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Repository{
		backend:   config.Backend,
		dialect:   config.Backend.Dialect(),
		opTimeout: timeout,
		logger:    logger.With(zap.String("component", "repository")),
	}
}

// Backend returns the underlying storage backend
func (r *Repository) Backend() storage.Backend {
	return r.backend
}

func (r *Repository) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

func (r *Repository) q(query string) string {
	return r.dialect.Rebind(query)
}

// AddItem inserts item and returns the id assigned by storage.
// A content hash collision returns storage.ErrDuplicate.
func (r *Repository) AddItem(ctx context.Context, item *types.ClipboardItem) (int64, error) {
	if err := validateItem(item); err != nil {
		return 0, err
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	var text any
	if item.ContentType == types.TypeText {
		text = item.TextContent
	}

	id, err := storage.WithRetry(ctx, r.backend, func(ctx context.Context, q storage.Querier) (int64, error) {
		var id int64
		err := q.QueryRowContext(ctx, r.q(`INSERT INTO clipboard_items
			(content_type, text_content, image_data, image_thumbnail, content_hash,
			 preview, device_id, device_name, created_at, is_starred)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			string(item.ContentType), text, nullBytes(item.ImageData), nullBytes(item.ImageThumbnail),
			item.ContentHash, item.Preview, item.DeviceID, item.DeviceName, item.CreatedAt, item.IsStarred,
		).Scan(&id)
		return id, err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add item: %w", err)
	}

	item.ID = id
	r.logger.Debug("Item added",
		zap.Int64("id", id),
		zap.String("type", string(item.ContentType)),
		zap.String("hash", item.ContentHash))
	return id, nil
}

// GetByHash returns the row with the given content hash without image bytes
func (r *Repository) GetByHash(ctx context.Context, hash string) (*types.ClipboardItem, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return storage.Read(ctx, r.backend, func(ctx context.Context, q storage.Querier) (*types.ClipboardItem, error) {
		row := q.QueryRowContext(ctx, r.q(`SELECT `+listColumns+` FROM clipboard_items WHERE content_hash = ?`), hash)
		return scanItem(row, false)
	})
}

// GetItemByID returns the full row including image bytes
func (r *Repository) GetItemByID(ctx context.Context, id int64) (*types.ClipboardItem, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return storage.Read(ctx, r.backend, func(ctx context.Context, q storage.Querier) (*types.ClipboardItem, error) {
		row := q.QueryRowContext(ctx, r.q(`SELECT `+fullColumns+` FROM clipboard_items WHERE id = ?`), id)
		return scanItem(row, true)
	})
}

// GetItems returns one page ordered newest first. Image bytes are omitted.
func (r *Repository) GetItems(ctx context.Context, page, size int) (*types.Page, error) {
	if err := validatePage(page, size); err != nil {
		return nil, err
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return storage.Read(ctx, r.backend, func(ctx context.Context, q storage.Querier) (*types.Page, error) {
		p := &types.Page{Page: page, Size: size}
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM clipboard_items`).Scan(&p.Total); err != nil {
			return nil, err
		}

		rows, err := q.QueryContext(ctx, r.q(`SELECT `+listColumns+` FROM clipboard_items
			ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`), size, page*size)
		if err != nil {
			return nil, err
		}
		p.Items, err = scanItems(rows, false)
		return p, err
	})
}

// Search returns one page of rows whose text or preview contains query
func (r *Repository) Search(ctx context.Context, query string, page, size int) (*types.Page, error) {
	if err := validatePage(page, size); err != nil {
		return nil, err
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	where, args := r.dialect.SearchPredicate(query)

	return storage.Read(ctx, r.backend, func(ctx context.Context, q storage.Querier) (*types.Page, error) {
		p := &types.Page{Page: page, Size: size}
		err := q.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM clipboard_items WHERE `+where), args...).Scan(&p.Total)
		if err != nil {
			return nil, err
		}

		pageArgs := append(append([]any{}, args...), size, page*size)
		rows, err := q.QueryContext(ctx, r.q(`SELECT `+listColumns+` FROM clipboard_items WHERE `+where+`
			ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`), pageArgs...)
		if err != nil {
			return nil, err
		}
		p.Items, err = scanItems(rows, false)
		return p, err
	})
}

// DeleteItem removes a row and reports whether one existed
func (r *Repository) DeleteItem(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	deleted, err := storage.WithRetry(ctx, r.backend, func(ctx context.Context, q storage.Querier) (bool, error) {
		res, err := q.ExecContext(ctx, r.q(`DELETE FROM clipboard_items WHERE id = ?`), id)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n > 0, err
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete item %d: %w", id, err)
	}
	r.logger.Debug("Item deleted", zap.Int64("id", id), zap.Bool("existed", deleted))
	return deleted, nil
}

// ToggleStar flips is_starred and reports whether a row was affected
func (r *Repository) ToggleStar(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	ok, err := storage.WithRetry(ctx, r.backend, func(ctx context.Context, q storage.Querier) (bool, error) {
		res, err := q.ExecContext(ctx, r.q(`UPDATE clipboard_items SET is_starred = NOT is_starred WHERE id = ?`), id)
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n > 0, err
	})
	if err != nil {
		return false, fmt.Errorf("failed to toggle star on item %d: %w", id, err)
	}
	return ok, nil
}

// GetNewItemsSince returns up to NewItemsLimit rows with id > cursor written
// by devices other than excludeDevice, oldest first. Image bytes are omitted.
func (r *Repository) GetNewItemsSince(ctx context.Context, cursor int64, excludeDevice string) ([]*types.ClipboardItem, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return storage.Read(ctx, r.backend, func(ctx context.Context, q storage.Querier) ([]*types.ClipboardItem, error) {
		rows, err := q.QueryContext(ctx, r.q(`SELECT `+listColumns+` FROM clipboard_items
			WHERE id > ? AND device_id != ?
			ORDER BY id ASC LIMIT ?`), cursor, excludeDevice, NewItemsLimit)
		if err != nil {
			return nil, err
		}
		return scanItems(rows, false)
	})
}

// CleanupOldItems deletes the oldest unstarred rows until at most maxItems
// unstarred rows remain. Starred rows are never touched.
func (r *Repository) CleanupOldItems(ctx context.Context, maxItems int) (int, error) {
	if maxItems < 0 {
		return 0, fmt.Errorf("max items must not be negative, got %d", maxItems)
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	deleted, err := storage.WithRetry(ctx, r.backend, func(ctx context.Context, q storage.Querier) (int, error) {
		var unstarred int
		err := q.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM clipboard_items WHERE is_starred = ?`), false).Scan(&unstarred)
		if err != nil {
			return 0, err
		}
		excess := unstarred - maxItems
		if excess <= 0 {
			return 0, nil
		}

		res, err := q.ExecContext(ctx, r.q(`DELETE FROM clipboard_items WHERE id IN (
			SELECT id FROM clipboard_items WHERE is_starred = ?
			ORDER BY created_at ASC, id ASC LIMIT ?)`), false, excess)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		return int(n), err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old items: %w", err)
	}
	if deleted > 0 {
		r.logger.Debug("Old items removed", zap.Int("deleted", deleted), zap.Int("max_items", maxItems))
	}
	return deleted, nil
}

// GetLatestID returns the highest id present, or 0 for an empty table
func (r *Repository) GetLatestID(ctx context.Context) (int64, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return storage.Read(ctx, r.backend, func(ctx context.Context, q storage.Querier) (int64, error) {
		var id int64
		err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM clipboard_items`).Scan(&id)
		return id, err
	})
}

// CountItems returns the total number of rows
func (r *Repository) CountItems(ctx context.Context) (int, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return storage.Read(ctx, r.backend, func(ctx context.Context, q storage.Querier) (int, error) {
		var n int
		err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM clipboard_items`).Scan(&n)
		return n, err
	})
}

// Stats summarizes the history by type, star flag and device
func (r *Repository) Stats(ctx context.Context) (*types.HistoryStats, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	return storage.Read(ctx, r.backend, func(ctx context.Context, q storage.Querier) (*types.HistoryStats, error) {
		s := &types.HistoryStats{Devices: make(map[string]int)}
		err := q.QueryRowContext(ctx, r.q(`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_starred = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN content_type = 'text' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN content_type = 'image' THEN 1 ELSE 0 END), 0)
			FROM clipboard_items`), true).Scan(&s.Total, &s.Starred, &s.Text, &s.Images)
		if err != nil {
			return nil, err
		}

		rows, err := q.QueryContext(ctx, `SELECT device_id, COUNT(*) FROM clipboard_items GROUP BY device_id`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			var n int
			if err := rows.Scan(&id, &n); err != nil {
				return nil, err
			}
			s.Devices[id] = n
		}
		return s, rows.Err()
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner, withImage bool) (*types.ClipboardItem, error) {
	var (
		item        types.ClipboardItem
		contentType string
		text        sql.NullString
		preview     sql.NullString
		deviceName  sql.NullString
	)

	dest := []any{&item.ID, &contentType, &text}
	if withImage {
		dest = append(dest, &item.ImageData)
	}
	dest = append(dest, &item.ImageThumbnail, &item.ContentHash, &preview,
		&item.DeviceID, &deviceName, &item.CreatedAt, &item.IsStarred)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	item.ContentType = types.ContentType(contentType)
	item.TextContent = text.String
	item.Preview = preview.String
	item.DeviceName = deviceName.String
	return &item, nil
}

func scanItems(rows *sql.Rows, withImage bool) ([]*types.ClipboardItem, error) {
	defer rows.Close()

	items := make([]*types.ClipboardItem, 0)
	for rows.Next() {
		item, err := scanItem(rows, withImage)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func validatePage(page, size int) error {
	if page < 0 {
		return fmt.Errorf("page must not be negative, got %d", page)
	}
	if size <= 0 {
		return fmt.Errorf("page size must be positive, got %d", size)
	}
	return nil
}

func validateItem(item *types.ClipboardItem) error {
	if item == nil {
		return fmt.Errorf("%w: nil item", ErrInvalidItem)
	}
	if item.ID != 0 {
		return fmt.Errorf("%w: id is assigned by storage", ErrInvalidItem)
	}
	if item.ContentHash == "" || item.DeviceID == "" {
		return fmt.Errorf("%w: content hash and device id are required", ErrInvalidItem)
	}
	switch item.ContentType {
	case types.TypeText:
		if len(item.ImageData) > 0 || len(item.ImageThumbnail) > 0 {
			return fmt.Errorf("%w: text item carries image data", ErrInvalidItem)
		}
	case types.TypeImage:
		if len(item.ImageData) == 0 {
			return fmt.Errorf("%w: image item without image data", ErrInvalidItem)
		}
		if item.TextContent != "" {
			return fmt.Errorf("%w: image item carries text", ErrInvalidItem)
		}
	default:
		return fmt.Errorf("%w: unknown content type %q", ErrInvalidItem, item.ContentType)
	}
	return nil
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
