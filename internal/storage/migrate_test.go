package storage

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEmbeddedMigrations(t *testing.T) {
	for _, dir := range []string{"migrations/sqlite", "migrations/postgres"} {
		entries, err := fs.ReadDir(migrations, dir)
		require.NoError(t, err)
		assert.NotEmpty(t, entries, dir)
	}
}

func TestRunMigrationsUsesEngineDirectory(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var dirs []string
	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		dirs = append(dirs, dir)
		return nil
	}
	defer func() { gooseUpContext = orig }()

	require.NoError(t, runMigrations(context.Background(), db, EngineSQLite, zap.NewNop()))
	require.NoError(t, runMigrations(context.Background(), db, EnginePostgres, zap.NewNop()))
	assert.Equal(t, []string{"migrations/sqlite", "migrations/postgres"}, dirs)

	assert.Error(t, runMigrations(context.Background(), db, "mysql", zap.NewNop()))
}

func TestRunMigrationsError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	err = runMigrations(context.Background(), db, EngineSQLite, zap.NewNop())
	assert.ErrorContains(t, err, "boom")
}
