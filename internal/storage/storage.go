// Package storage owns the database connection behind the clipboard history.
// Two engines implement Backend: an embedded SQLite file and a networked
// PostgreSQL server. Everything above this package talks to Backend only.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Engine names a storage implementation
type Engine string

const (
	EngineSQLite   Engine = "sqlite"
	EnginePostgres Engine = "postgres"
)

// Querier is the subset of database/sql used by units of work.
// Both *sql.DB and *sql.Tx satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UnitOfWork is a single logical storage operation
type UnitOfWork func(ctx context.Context, q Querier) error

// Dialect hides the SQL differences between engines.
// Queries are written with '?' placeholders and passed through Rebind.
type Dialect interface {
	Engine() Engine
	Rebind(query string) string
	// SearchPredicate returns a WHERE fragment over clipboard_items matching
	// text_content or preview against query, plus its arguments.
	SearchPredicate(query string) (string, []any)
	// FullText reports whether an index backs SearchPredicate
	FullText() bool
}

// Backend is the contract every storage engine implements
type Backend interface {
	// ExecuteWithRetry runs fn inside a transaction, retrying on transient
	// contention with exponential backoff.
	ExecuteWithRetry(ctx context.Context, fn UnitOfWork) error
	// ExecuteRead runs a read-only fn without retry
	ExecuteRead(ctx context.Context, fn UnitOfWork) error
	CheckConnection(ctx context.Context) error
	Dialect() Dialect
	// Target identifies the database this backend points at
	Target() string
	Close() error
}

// WithRetry runs fn through ExecuteWithRetry and returns its result
func WithRetry[T any](ctx context.Context, b Backend, fn func(ctx context.Context, q Querier) (T, error)) (T, error) {
	var out T
	err := b.ExecuteWithRetry(ctx, func(ctx context.Context, q Querier) error {
		v, err := fn(ctx, q)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Read runs fn through ExecuteRead and returns its result
func Read[T any](ctx context.Context, b Backend, fn func(ctx context.Context, q Querier) (T, error)) (T, error) {
	var out T
	err := b.ExecuteRead(ctx, func(ctx context.Context, q Querier) error {
		v, err := fn(ctx, q)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// StorageConfig holds configuration for opening a Backend
type StorageConfig struct {
	Engine Engine

	// SQLite
	SQLitePath string
	DisableFTS bool

	// PostgreSQL
	Postgres PostgresConfig

	Retry  RetryPolicy
	Logger *zap.Logger
}

// PostgresConfig describes how to reach the networked database
type PostgresConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string
	ConnectTimeout time.Duration
	LockTimeout    time.Duration
}

// Open creates the backend selected by config.Engine and initializes its schema
func Open(ctx context.Context, config StorageConfig) (Backend, error) {
	switch config.Engine {
	case EngineSQLite, "":
		return NewSQLiteBackend(ctx, config)
	case EnginePostgres:
		return NewPostgresBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported storage engine %q", config.Engine)
	}
}
