package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	sqliteBusyTimeoutMs = 30000
	// trigram tokens need at least three characters
	minFullTextQuery = 3
)

var fullTextSchema = []string{
	`CREATE VIRTUAL TABLE IF NOT EXISTS clipboard_search USING fts5(
		text_content, preview,
		content='clipboard_items', content_rowid='id',
		tokenize='trigram'
	)`,
	`CREATE TRIGGER IF NOT EXISTS clipboard_items_ai AFTER INSERT ON clipboard_items BEGIN
		INSERT INTO clipboard_search(rowid, text_content, preview)
		VALUES (new.id, new.text_content, new.preview);
	END`,
	`CREATE TRIGGER IF NOT EXISTS clipboard_items_ad AFTER DELETE ON clipboard_items BEGIN
		INSERT INTO clipboard_search(clipboard_search, rowid, text_content, preview)
		VALUES ('delete', old.id, old.text_content, old.preview);
	END`,
	`CREATE TRIGGER IF NOT EXISTS clipboard_items_au AFTER UPDATE OF text_content, preview ON clipboard_items BEGIN
		INSERT INTO clipboard_search(clipboard_search, rowid, text_content, preview)
		VALUES ('delete', old.id, old.text_content, old.preview);
		INSERT INTO clipboard_search(rowid, text_content, preview)
		VALUES (new.id, new.text_content, new.preview);
	END`,
}

// SQLiteBackend stores history in a single local file
type SQLiteBackend struct {
	*executor
	path    string
	dialect *sqliteDialect
}

// NewSQLiteBackend opens (creating if needed) the database file and migrates it
func NewSQLiteBackend(ctx context.Context, config StorageConfig) (*SQLiteBackend, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "storage"), zap.String("engine", string(EngineSQLite)))

	if config.SQLitePath == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(config.SQLitePath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(config.SQLitePath))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", config.SQLitePath, err)
	}

	if err := runMigrations(ctx, db, EngineSQLite, logger); err != nil {
		db.Close()
		return nil, err
	}

	dialect := &sqliteDialect{}
	if !config.DisableFTS {
		if err := setupFullText(ctx, db); err != nil {
			logger.Warn("Full-text index unavailable, search falls back to substring matching", zap.Error(err))
		} else {
			dialect.fts = true
		}
	}

	b := &SQLiteBackend{
		executor: &executor{
			db:        db,
			engine:    EngineSQLite,
			policy:    config.Retry.withDefaults(),
			transient: isSQLiteTransient,
			duplicate: isSQLiteDuplicate,
			logger:    logger,
		},
		path:    config.SQLitePath,
		dialect: dialect,
	}

	logger.Debug("SQLite storage initialized",
		zap.String("db_path", config.SQLitePath),
		zap.Bool("full_text", dialect.fts))

	return b, nil
}

func (b *SQLiteBackend) Dialect() Dialect {
	return b.dialect
}

func (b *SQLiteBackend) Target() string {
	return "sqlite:" + b.path
}

// sqliteDSN tunes every pooled connection for concurrent readers and a single writer
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", sqliteBusyTimeoutMs))
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "cache_size(-64000)")
	q.Add("_pragma", "temp_store(MEMORY)")
	q.Add("_pragma", "foreign_keys(ON)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// setupFullText creates the trigram index and its sync triggers.
// A freshly created index is rebuilt from existing rows.
func setupFullText(ctx context.Context, db *sql.DB) error {
	var existing int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'clipboard_search'`).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range fullTextSchema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create full-text schema: %w", err)
		}
	}
	if existing == 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO clipboard_search(clipboard_search) VALUES ('rebuild')`); err != nil {
			return fmt.Errorf("failed to build full-text index: %w", err)
		}
	}
	return tx.Commit()
}

func isSQLiteTransient(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, m := range []string{"database is locked", "database is busy", "database table is locked"} {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func isSQLiteDuplicate(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type sqliteDialect struct {
	fts bool
}

func (d *sqliteDialect) Engine() Engine { return EngineSQLite }

func (d *sqliteDialect) Rebind(query string) string { return query }

func (d *sqliteDialect) FullText() bool { return d.fts }

// SearchPredicate matches query as a substring of the text or preview. The
// trigram index only narrows the candidates: its case folding covers
// non-ASCII letters while LIKE folds ASCII only, so the LIKE test always
// decides which rows match.
func (d *sqliteDialect) SearchPredicate(query string) (string, []any) {
	pattern := likePattern(query)
	like := `(text_content LIKE ? ESCAPE '\' OR preview LIKE ? ESCAPE '\')`
	if d.fts && utf8.RuneCountInString(query) >= minFullTextQuery {
		return "id IN (SELECT rowid FROM clipboard_search WHERE clipboard_search MATCH ?) AND " + like,
			[]any{ftsPhrase(query), pattern, pattern}
	}
	return like, []any{pattern, pattern}
}

// ftsPhrase quotes query as a single FTS5 phrase so operators in user input are literal
func ftsPhrase(query string) string {
	return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
}

// likePattern wraps query for substring matching with LIKE wildcards escaped
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}
