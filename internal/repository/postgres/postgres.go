package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"toolshare-backend/internal/logger"
	"toolshare-backend/internal/repository"

	_ "github.com/lib/pq"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates any missing tables, indexes and constraints.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	logger.DatabaseCall("DDL", "schema.sql")
	_, err := db.ExecContext(ctx, schemaSQL)
	logger.DatabaseResult("DDL", 0, err)
	return err
}

type Store struct {
	db        *sql.DB
	txRetries int
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, txRetries: 2}
}

// WithTxRetries sets how many times a transaction aborted by a
// serialization failure or deadlock is re-run.
func (s *Store) WithTxRetries(n int) *Store {
	if n >= 0 {
		s.txRetries = n
	}
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

func (s *Store) ReadOnly(ctx context.Context, fn repository.TxFunc) error {
	return s.run(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn repository.TxFunc) error {
	for attempt := 0; ; attempt++ {
		err := s.runOnce(ctx, opts, fn)
		if err == nil || !isRetryable(err) || attempt >= s.txRetries {
			return err
		}
		logger.Warn("Retrying aborted transaction", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
}

func (s *Store) runOnce(ctx context.Context, opts *sql.TxOptions, fn repository.TxFunc) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	if err := fn(ctx, reposFor(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func reposFor(q DBTX) repository.Repos {
	return repository.Repos{
		Tools:       NewToolRepository(q),
		Borrows:     NewBorrowRepository(q),
		Commitments: NewCommitmentRepository(q),
		Handovers:   NewHandoverRepository(q),
		Deposits:    NewDepositRepository(q),
		Ratings:     NewRatingRepository(q),
		Ledger:      NewLedgerRepository(q),
	}
}

func (s *Store) Users() repository.UserRepository {
	return NewUserRepository(s.db)
}

func (s *Store) Notifications() repository.NotificationRepository {
	return NewNotificationRepository(s.db)
}

func (s *Store) Ledger() repository.LedgerRepository {
	return NewLedgerRepository(s.db)
}

func (s *Store) Authorizer() *Authorizer {
	return NewAuthorizer(s.db)
}
