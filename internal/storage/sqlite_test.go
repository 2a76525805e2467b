package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T, disableFTS bool) *SQLiteBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "clipboard.db")
	b, err := NewSQLiteBackend(context.Background(), StorageConfig{
		Engine:     EngineSQLite,
		SQLitePath: path,
		DisableFTS: disableFTS,
	})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestNewSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	b := openTestSQLite(t, false)

	require.NoError(t, b.CheckConnection(ctx))
	assert.True(t, b.Dialect().FullText())
	assert.Equal(t, EngineSQLite, b.Dialect().Engine())

	var mode string
	require.NoError(t, b.ExecuteRead(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode)
	}))
	assert.Equal(t, "wal", mode)

	for _, table := range []string{"clipboard_items", "app_meta", "clipboard_search"} {
		var n int
		require.NoError(t, b.ExecuteRead(ctx, func(ctx context.Context, q Querier) error {
			return q.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM sqlite_master WHERE name = ?", table).Scan(&n)
		}))
		assert.Equal(t, 1, n, "table %s", table)
	}
}

func TestNewSQLiteBackendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clipboard.db")

	b, err := NewSQLiteBackend(ctx, StorageConfig{SQLitePath: path})
	require.NoError(t, err)
	require.NoError(t, b.ExecuteWithRetry(ctx, func(ctx context.Context, q Querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO clipboard_items
			(content_type, text_content, content_hash, preview, device_id, device_name, created_at, is_starred)
			VALUES ('text', 'persisted text', 'h1', 'persisted text', 'dev', 'Dev', 1, ?)`, false)
		return err
	}))
	require.NoError(t, b.Close())

	b, err = NewSQLiteBackend(ctx, StorageConfig{SQLitePath: path})
	require.NoError(t, err)
	defer b.Close()

	var n int
	require.NoError(t, b.ExecuteRead(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRowContext(ctx, "SELECT COUNT(*) FROM clipboard_search WHERE clipboard_search MATCH ?",
			ftsPhrase("persisted")).Scan(&n)
	}))
	assert.Equal(t, 1, n)
}

func TestFullTextIndexIsRebuiltForExistingRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clipboard.db")

	b, err := NewSQLiteBackend(ctx, StorageConfig{SQLitePath: path, DisableFTS: true})
	require.NoError(t, err)
	require.NoError(t, b.ExecuteWithRetry(ctx, func(ctx context.Context, q Querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO clipboard_items
			(content_type, text_content, content_hash, preview, device_id, device_name, created_at)
			VALUES ('text', 'written before the index', 'h1', 'written before the index', 'dev', 'Dev', 1)`)
		return err
	}))
	require.NoError(t, b.Close())

	b, err = NewSQLiteBackend(ctx, StorageConfig{SQLitePath: path})
	require.NoError(t, err)
	defer b.Close()

	where, args := b.Dialect().SearchPredicate("before")
	var n int
	require.NoError(t, b.ExecuteRead(ctx, func(ctx context.Context, q Querier) error {
		return q.QueryRowContext(ctx, "SELECT COUNT(*) FROM clipboard_items WHERE "+where, args...).Scan(&n)
	}))
	assert.Equal(t, 1, n)
}

func TestSQLiteDuplicateHash(t *testing.T) {
	ctx := context.Background()
	b := openTestSQLite(t, true)

	insert := func(ctx context.Context, q Querier) error {
		_, err := q.ExecContext(ctx, `INSERT INTO clipboard_items
			(content_type, text_content, content_hash, preview, device_id, device_name, created_at)
			VALUES ('text', 'x', 'same', 'x', 'dev', 'Dev', 1)`)
		return err
	}
	require.NoError(t, b.ExecuteWithRetry(ctx, insert))
	assert.ErrorIs(t, b.ExecuteWithRetry(ctx, insert), ErrDuplicate)
}

func TestSQLiteRequiresPath(t *testing.T) {
	_, err := NewSQLiteBackend(context.Background(), StorageConfig{})
	assert.Error(t, err)
}

func TestOpenRejectsUnknownEngine(t *testing.T) {
	_, err := Open(context.Background(), StorageConfig{Engine: "mysql"})
	assert.ErrorContains(t, err, "unsupported storage engine")
}

func TestIsSQLiteTransient(t *testing.T) {
	assert.True(t, isSQLiteTransient(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, isSQLiteTransient(fmt.Errorf("wrapped: %w", errors.New("database table is locked"))))
	assert.False(t, isSQLiteTransient(errors.New("no such table: clipboard_items")))
	assert.False(t, isSQLiteTransient(errors.New("open /tmp/clipboard.db: device or resource busy")))
	assert.False(t, isSQLiteTransient(errors.New("text file busy")))
	assert.True(t, isSQLiteDuplicate(errors.New("UNIQUE constraint failed: clipboard_items.content_hash")))
	assert.False(t, isSQLiteDuplicate(errors.New("NOT NULL constraint failed")))
}

func TestSQLiteDialect(t *testing.T) {
	d := &sqliteDialect{fts: true}
	assert.Equal(t, "SELECT ?", d.Rebind("SELECT ?"))

	where, args := d.SearchPredicate("hello")
	assert.Contains(t, where, "MATCH")
	assert.Contains(t, where, "LIKE")
	assert.Equal(t, []any{`"hello"`, "%hello%", "%hello%"}, args)

	where, args = d.SearchPredicate("hi")
	assert.Contains(t, where, "LIKE")
	assert.Equal(t, []any{"%hi%", "%hi%"}, args)

	d.fts = false
	where, _ = d.SearchPredicate("hello")
	assert.Contains(t, where, "LIKE")
}

func TestQueryEscaping(t *testing.T) {
	assert.Equal(t, `"say ""hi"""`, ftsPhrase(`say "hi"`))
	assert.Equal(t, `%100\%%`, likePattern("100%"))
	assert.Equal(t, `%a\_b%`, likePattern("a_b"))
	assert.Equal(t, `%c:\\tmp%`, likePattern(`c:\tmp`))
}
