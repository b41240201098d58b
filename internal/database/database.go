package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// Config holds pool settings.
type Config struct {
	URL         string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
}

// Pool is the subset of *pgxpool.Pool the repositories use.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// DB wraps a connection pool.
type DB struct {
	pool Pool
}

// New opens a pgx pool and verifies connectivity.
func New(ctx context.Context, cfg Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnTime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnTime
	}
	if cfg.MaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	}
	if cfg.HealthCheck > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheck
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// NewWithPool wraps an existing pool (or a mock of one).
func NewWithPool(pool Pool) *DB {
	return &DB{pool: pool}
}

func (db *DB) Close() { db.pool.Close() }

func (db *DB) Ping(ctx context.Context) error { return db.pool.Ping(ctx) }

func (db *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

func (db *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

// InTransaction runs fn inside a transaction, committing when fn returns nil
// and rolling back otherwise.
func (db *DB) InTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return Classify(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return Classify(err, "failed to commit transaction")
	}
	return nil
}

// Classify maps a driver error to the service taxonomy. Connectivity and
// timeout failures become Unavailable, serialization failures Conflict,
// everything else Internal. Errors already classified pass through.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return errors.Wrap(err, errors.ErrCodeConflict, message)
		case "57P01", "57P03", "53300":
			return errors.Unavailable(err, message)
		}
		return errors.Wrap(err, errors.ErrCodeInternal, message)
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case stderrors.As(err, &connErr),
		stderrors.As(err, &netErr),
		stderrors.Is(err, context.DeadlineExceeded),
		stderrors.Is(err, context.Canceled),
		pgconn.Timeout(err):
		return errors.Unavailable(err, message)
	}
	return errors.Wrap(err, errors.ErrCodeInternal, message)
}
