package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/berrythewa/clipsync/internal/metrics"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 100 * time.Millisecond
)

// RetryPolicy bounds execute-with-retry.
// The wait after failed attempt k (0-based) is 2^k*BaseDelay plus up to
// BaseDelay of jitter.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns 5 attempts with a 100ms base delay
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: defaultMaxAttempts, BaseDelay: defaultBaseDelay}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	return p
}

// Backoff returns the wait before the attempt following attempt
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	return p.BaseDelay<<attempt + jitter(p.BaseDelay)
}

// seams for tests
var (
	jitter = func(max time.Duration) time.Duration {
		if max <= 0 {
			return 0
		}
		return time.Duration(rand.Int64N(int64(max)))
	}
	sleep = func(ctx context.Context, d time.Duration) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
)

// executor carries the engine-independent part of a Backend
type executor struct {
	db        *sql.DB
	engine    Engine
	policy    RetryPolicy
	transient func(error) bool
	duplicate func(error) bool
	logger    *zap.Logger
	closed    atomic.Bool
}

func (e *executor) ExecuteWithRetry(ctx context.Context, fn UnitOfWork) error {
	if e.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	err := e.retryLoop(ctx, fn)
	e.observe("write", start, err)
	return err
}

func (e *executor) retryLoop(ctx context.Context, fn UnitOfWork) error {
	var last error
	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		err := e.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !e.transient(err) {
			return e.classify(err)
		}
		last = err
		if attempt == e.policy.MaxAttempts-1 {
			break
		}

		wait := e.policy.Backoff(attempt)
		e.logger.Warn("Transient storage error, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", e.policy.MaxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err))
		metrics.Get().StorageRetries.WithLabelValues(string(e.engine)).Inc()

		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt+1, errors.Join(err, last))
		}
	}

	metrics.Get().RetryExhausted.WithLabelValues(string(e.engine)).Inc()
	e.logger.Error("Storage retries exhausted",
		zap.Int("attempts", e.policy.MaxAttempts),
		zap.Error(last))
	return &RetryExhaustedError{Attempts: e.policy.MaxAttempts, Last: last}
}

func (e *executor) ExecuteRead(ctx context.Context, fn UnitOfWork) error {
	if e.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	err := fn(ctx, e.db)
	if err != nil {
		err = e.classify(err)
	}
	e.observe("read", start, err)
	return err
}

func (e *executor) CheckConnection(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach %s database: %w", e.engine, err)
	}
	return nil
}

func (e *executor) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.db.Close()
}

// runTx begins a transaction, runs fn and commits, rolling back on error or panic
func (e *executor) runTx(ctx context.Context, fn UnitOfWork) (err error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(ctx, tx)
}

func (e *executor) classify(err error) error {
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrNotFound) {
		return err
	}
	if e.duplicate != nil && e.duplicate(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func (e *executor) observe(kind string, start time.Time, err error) {
	result := "ok"
	if err != nil && !errors.Is(err, ErrNotFound) {
		result = "error"
	}
	m := metrics.Get()
	m.StorageOps.WithLabelValues(string(e.engine), kind, result).Inc()
	m.StorageOpDuration.WithLabelValues(string(e.engine), kind).Observe(time.Since(start).Seconds())
}
