package repository

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/chils-store/db"
)

const uniqueViolationCode = "23505"

// DB is satisfied by *pgxpool.Pool and pgx.Tx, so every repository works
// both standalone and inside a unit of work.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, db.Schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// NotReadyError is returned while the database cannot serve requests.
type NotReadyError struct {
	Cause error
}

func (e *NotReadyError) Error() string {
	if e.Cause == nil {
		return "database is not ready"
	}
	return "database is not ready: " + e.Cause.Error()
}

func (e *NotReadyError) Unwrap() error {
	return e.Cause
}

// Store owns the pool, tracks its readiness and opens units of work.
type Store struct {
	pool  *pgxpool.Pool
	ready atomic.Bool
	cause atomic.Pointer[error]
}

// NewStore wraps pool. The store reports not ready until the first
// successful Ping.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks connectivity and records the result for Ready.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		err := errors.New("no connection pool")
		s.markNotReady(err)
		return err
	}
	if err := s.pool.Ping(ctx); err != nil {
		s.markNotReady(err)
		return err
	}
	s.ready.Store(true)
	return nil
}

func (s *Store) markNotReady(err error) {
	s.cause.Store(&err)
	s.ready.Store(false)
}

// Ready returns nil when the last Ping succeeded and *NotReadyError
// otherwise. It never touches the network.
func (s *Store) Ready() error {
	if s.ready.Load() {
		return nil
	}
	e := &NotReadyError{}
	if p := s.cause.Load(); p != nil {
		e.Cause = *p
	}
	return e
}

func (s *Store) Products() *ProductRepository { return NewProductRepository(s.pool) }
func (s *Store) Orders() *OrderRepository     { return NewOrderRepository(s.pool) }
func (s *Store) Payments() *PaymentRepository { return NewPaymentRepository(s.pool) }
func (s *Store) Users() *UserRepository       { return NewUserRepository(s.pool) }

// inTx runs fn in a transaction that commits when fn returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if err := s.Ready(); err != nil {
		return err
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, fn)
}

// uniqueViolation reports whether err is a unique violation of constraint.
func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode && pgErr.ConstraintName == constraint
}
