package repository

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/berrythewa/clipsync/internal/storage"
	"github.com/berrythewa/clipsync/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBackend runs units of work directly against sqlmock with
// PostgreSQL-style placeholders.
type mockBackend struct {
	q storage.Querier
}

func (b *mockBackend) ExecuteWithRetry(ctx context.Context, fn storage.UnitOfWork) error {
	return fn(ctx, b.q)
}
func (b *mockBackend) ExecuteRead(ctx context.Context, fn storage.UnitOfWork) error {
	return fn(ctx, b.q)
}
func (b *mockBackend) CheckConnection(context.Context) error { return nil }
func (b *mockBackend) Dialect() storage.Dialect              { return dollarDialect{} }
func (b *mockBackend) Target() string                        { return "mock" }
func (b *mockBackend) Close() error                          { return nil }

type dollarDialect struct{}

func (dollarDialect) Engine() storage.Engine { return storage.EnginePostgres }
func (dollarDialect) FullText() bool         { return false }
func (dollarDialect) Rebind(q string) string {
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
func (dollarDialect) SearchPredicate(q string) (string, []any) {
	return "(text_content ILIKE ? OR preview ILIKE ?)", []any{"%" + q + "%", "%" + q + "%"}
}

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(Config{Backend: &mockBackend{q: db}}), mock
}

var itemColumns = []string{"id", "content_type", "text_content", "image_thumbnail", "content_hash",
	"preview", "device_id", "device_name", "created_at", "is_starred"}

func TestGetNewItemsSinceQuery(t *testing.T) {
	r, mock := newMockRepository(t)

	mock.ExpectQuery(`WHERE id > \$1 AND device_id != \$2\s+ORDER BY id ASC LIMIT \$3`).
		WithArgs(int64(4), "B", NewItemsLimit).
		WillReturnRows(sqlmock.NewRows(itemColumns).
			AddRow(5, "text", "a", nil, "h5", "a", "A", "Laptop", 10, false).
			AddRow(6, "image", nil, []byte("t"), "h6", "[Image 1x1]", "A", nil, 11, true))

	items, err := r.GetNewItemsSince(context.Background(), 4, "B")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, types.TypeImage, items[1].ContentType)
	assert.True(t, items[1].IsStarred)
	assert.Empty(t, items[1].DeviceName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchQueryPlaceholders(t *testing.T) {
	r, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM clipboard_items WHERE \(text_content ILIKE \$1 OR preview ILIKE \$2\)`).
		WithArgs("%foo%", "%foo%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(`ORDER BY created_at DESC, id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("%foo%", "%foo%", 5, 10).
		WillReturnRows(sqlmock.NewRows(itemColumns))

	p, err := r.Search(context.Background(), "foo", 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 11, p.Total)
	assert.Empty(t, p.Items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupQuery(t *testing.T) {
	r, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM clipboard_items WHERE is_starred = \$1`).
		WithArgs(false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectExec(`DELETE FROM clipboard_items WHERE id IN \(`).
		WithArgs(false, 2).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := r.CleanupOldItems(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
