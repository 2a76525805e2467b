package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPostgresRebind(t *testing.T) {
	d := &postgresDialect{}
	assert.Equal(t,
		"SELECT id FROM clipboard_items WHERE id > $1 AND device_id != $2 LIMIT $3",
		d.Rebind("SELECT id FROM clipboard_items WHERE id > ? AND device_id != ? LIMIT ?"))
	assert.Equal(t, "SELECT 1", d.Rebind("SELECT 1"))
}

func TestPostgresSearchPredicate(t *testing.T) {
	where, args := (&postgresDialect{}).SearchPredicate("Foo")
	assert.Contains(t, where, "ILIKE")
	assert.Equal(t, []any{"%Foo%", "%Foo%"}, args)
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "db.local",
		User:     "clip",
		Password: "p@ss word",
		Database: "clipsync",
	}.withDefaults()

	u, err := url.Parse(cfg.DSN(cfg.Database))
	require.NoError(t, err)

	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.local:5432", u.Host)
	assert.Equal(t, "/clipsync", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss word", pw)
	assert.Equal(t, "10", u.Query().Get("connect_timeout"))
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "30000", u.Query().Get("lock_timeout"))
}

func TestPostgresDSNRoundsConnectTimeoutUp(t *testing.T) {
	for in, want := range map[time.Duration]string{
		250 * time.Millisecond:  "1",
		time.Second:             "1",
		1500 * time.Millisecond: "2",
		10 * time.Second:        "10",
	} {
		cfg := PostgresConfig{Host: "h", User: "u", Database: "d", ConnectTimeout: in}.withDefaults()
		u, err := url.Parse(cfg.DSN(cfg.Database))
		require.NoError(t, err)
		assert.Equal(t, want, u.Query().Get("connect_timeout"), "connect timeout %s", in)
	}
}

func TestIsPostgresTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&pgconn.PgError{Code: "40P01"}, true},
		{&pgconn.PgError{Code: "40001"}, true},
		{&pgconn.PgError{Code: "55P03"}, true},
		{&pgconn.PgError{Code: "08006"}, true},
		{fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"}), true},
		{driver.ErrBadConn, true},
		{&pgconn.PgError{Code: "23505"}, false},
		{&pgconn.PgError{Code: "42P01"}, false},
		{errors.New("syntax error"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isPostgresTransient(tt.err), "%v", tt.err)
	}

	assert.True(t, isPostgresDuplicate(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isPostgresDuplicate(&pgconn.PgError{Code: "40P01"}))
}

func TestPostgresBackendRetriesDeadlocks(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	waits := stubSleep(t)

	b := newPostgresBackend(db, PostgresConfig{Host: "h", Database: "d"}.withDefaults(), RetryPolicy{}, zap.NewNop())
	assert.Equal(t, "postgres:h:5432/d", b.Target())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE clipboard_items SET is_starred = NOT is_starred WHERE id = \$1`).
		WillReturnError(&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE clipboard_items SET is_starred = NOT is_starred WHERE id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = b.ExecuteWithRetry(context.Background(), func(ctx context.Context, q Querier) error {
		_, err := q.ExecContext(ctx, b.Dialect().Rebind("UPDATE clipboard_items SET is_starred = NOT is_starred WHERE id = ?"), 1)
		return err
	})
	require.NoError(t, err)
	assert.Len(t, *waits, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDatabaseIfMissing(t *testing.T) {
	ctx := context.Background()

	t.Run("exists", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT 1 FROM pg_database").WithArgs("clipsync").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

		require.NoError(t, createDatabaseIfMissing(ctx, db, "clipsync", zap.NewNop()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("created when absent", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT 1 FROM pg_database").WithArgs("clip sync").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
		mock.ExpectExec(`CREATE DATABASE "clip sync"`).WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, createDatabaseIfMissing(ctx, db, "clip sync", zap.NewNop()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient privilege is a warning", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT 1 FROM pg_database").
			WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
		mock.ExpectExec("CREATE DATABASE").WillReturnError(&pgconn.PgError{Code: "42501"})

		assert.NoError(t, createDatabaseIfMissing(ctx, db, "clipsync", zap.NewNop()))
	})

	t.Run("connection failures are fatal", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT 1 FROM pg_database").WillReturnError(errors.New("dial tcp: connection refused"))

		assert.Error(t, createDatabaseIfMissing(ctx, db, "clipsync", zap.NewNop()))
	})
}

func TestPostgresRequiresHost(t *testing.T) {
	_, err := NewPostgresBackend(context.Background(), StorageConfig{
		Engine:   EnginePostgres,
		Postgres: PostgresConfig{User: "u", Database: "d", ConnectTimeout: time.Second},
	})
	assert.ErrorContains(t, err, "required")
}
