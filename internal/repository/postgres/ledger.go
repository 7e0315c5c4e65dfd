package postgres

import (
	"context"
	"database/sql"
	"errors"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

type ledgerRepository struct {
	db DBTX
}

func NewLedgerRepository(db DBTX) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	query := `INSERT INTO ledger_transactions (user_id, amount, type, related_borrow_id, reference, description, created_on)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (reference) DO NOTHING RETURNING id`
	err := r.db.QueryRowContext(ctx, query, tx.UserID, tx.Amount, tx.Type, tx.RelatedBorrowID, tx.Reference, tx.Description, tx.CreatedOn).Scan(&tx.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewError(domain.KindConflict, "ledger reference %q already booked", tx.Reference)
	}
	return err
}

func (r *ledgerRepository) ListByBorrow(ctx context.Context, borrowID int32) ([]domain.LedgerTransaction, error) {
	query := `SELECT id, user_id, amount, type, related_borrow_id, reference, description, created_on
	          FROM ledger_transactions WHERE related_borrow_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, borrowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.LedgerTransaction
	for rows.Next() {
		var tx domain.LedgerTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Type, &tx.RelatedBorrowID, &tx.Reference, &tx.Description, &tx.CreatedOn); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
