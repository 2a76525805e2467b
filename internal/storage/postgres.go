package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	defaultPostgresPort     = 5432
	defaultConnectTimeout   = 10 * time.Second
	defaultLockTimeout      = 30 * time.Second
	maintenanceDatabase     = "postgres"
	pgUniqueViolation       = "23505"
	pgInsufficientPrivilege = "42501"
	pgDuplicateDatabase     = "42P04"
)

var trigramIndexes = []string{
	`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
	`CREATE INDEX IF NOT EXISTS idx_clipboard_items_text_trgm ON clipboard_items USING gin (text_content gin_trgm_ops)`,
	`CREATE INDEX IF NOT EXISTS idx_clipboard_items_preview_trgm ON clipboard_items USING gin (preview gin_trgm_ops)`,
}

// PostgresBackend stores history in a shared PostgreSQL database
type PostgresBackend struct {
	*executor
	config  PostgresConfig
	dialect *postgresDialect
}

// NewPostgresBackend ensures the target database exists, connects and migrates it
func NewPostgresBackend(ctx context.Context, config StorageConfig) (*PostgresBackend, error) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "storage"), zap.String("engine", string(EnginePostgres)))

	pg := config.Postgres.withDefaults()
	if pg.Host == "" || pg.User == "" || pg.Database == "" {
		return nil, fmt.Errorf("postgres host, user and database are required")
	}

	if err := ensureDatabase(ctx, pg, logger); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", pg.DSN(pg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres %s:%d/%s: %w", pg.Host, pg.Port, pg.Database, err)
	}

	if err := runMigrations(ctx, db, EnginePostgres, logger); err != nil {
		db.Close()
		return nil, err
	}

	for _, stmt := range trigramIndexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Debug("Trigram index unavailable, search uses sequential ILIKE", zap.Error(err))
			break
		}
	}

	b := newPostgresBackend(db, pg, config.Retry, logger)
	logger.Debug("PostgreSQL storage initialized",
		zap.String("host", pg.Host),
		zap.Int("port", pg.Port),
		zap.String("database", pg.Database))
	return b, nil
}

func newPostgresBackend(db *sql.DB, pg PostgresConfig, policy RetryPolicy, logger *zap.Logger) *PostgresBackend {
	return &PostgresBackend{
		executor: &executor{
			db:        db,
			engine:    EnginePostgres,
			policy:    policy.withDefaults(),
			transient: isPostgresTransient,
			duplicate: isPostgresDuplicate,
			logger:    logger,
		},
		config:  pg,
		dialect: &postgresDialect{},
	}
}

func (b *PostgresBackend) Dialect() Dialect {
	return b.dialect
}

func (b *PostgresBackend) Target() string {
	return fmt.Sprintf("postgres:%s:%d/%s", b.config.Host, b.config.Port, b.config.Database)
}

func (c PostgresConfig) withDefaults() PostgresConfig {
	if c.Port == 0 {
		c.Port = defaultPostgresPort
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = defaultLockTimeout
	}
	return c
}

// DSN builds a pgx connection URL for database
func (c PostgresConfig) DSN(database string) string {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("connect_timeout", strconv.FormatInt(connectTimeoutSeconds(c.ConnectTimeout), 10))
	q.Set("lock_timeout", strconv.FormatInt(c.LockTimeout.Milliseconds(), 10))

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// connectTimeoutSeconds rounds d up to whole seconds. libpq reads 0 as no
// timeout, so anything positive is at least 1.
func connectTimeoutSeconds(d time.Duration) int64 {
	secs := int64((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// ensureDatabase creates the target database through the maintenance database.
// Missing privileges are not fatal; the following connect decides.
func ensureDatabase(ctx context.Context, pg PostgresConfig, logger *zap.Logger) error {
	admin, err := sql.Open("pgx", pg.DSN(maintenanceDatabase))
	if err != nil {
		return fmt.Errorf("failed to open postgres maintenance database: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(ctx, pg.ConnectTimeout)
	defer cancel()
	return createDatabaseIfMissing(ctx, admin, pg.Database, logger)
}

func createDatabaseIfMissing(ctx context.Context, admin *sql.DB, name string, logger *zap.Logger) error {
	var one int
	err := admin.QueryRowContext(ctx, `SELECT 1 FROM pg_database WHERE datname = $1`, name).Scan(&one)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			logger.Warn("Cannot inspect databases, assuming target exists",
				zap.String("database", name), zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to reach postgres server: %w", err)
	}

	_, err = admin.ExecContext(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgDuplicateDatabase:
				return nil
			case pgInsufficientPrivilege:
				logger.Warn("Not allowed to create database", zap.String("database", name), zap.Error(err))
				return nil
			}
		}
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}

	logger.Info("Created database", zap.String("database", name))
	return nil
}

func isPostgresTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40P01", // deadlock_detected
			"40001", // serialization_failure
			"55P03", // lock_not_available
			"57014", // query_canceled (lock/statement timeout)
			"57P01": // admin_shutdown
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

func isPostgresDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

type postgresDialect struct{}

func (d *postgresDialect) Engine() Engine { return EnginePostgres }

func (d *postgresDialect) FullText() bool { return false }

// Rebind rewrites '?' placeholders into $1, $2, ...
func (d *postgresDialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d *postgresDialect) SearchPredicate(query string) (string, []any) {
	pattern := likePattern(query)
	return `(text_content ILIKE ? ESCAPE '\' OR preview ILIKE ? ESCAPE '\')`, []any{pattern, pattern}
}
