package postgres

import (
	"context"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

type depositRepository struct {
	db DBTX
}

func NewDepositRepository(db DBTX) repository.DepositRepository {
	return &depositRepository{db: db}
}

const depositColumns = `id, borrow_id, payer_id, payee_id, amount_cents, status, held_at, settled_at, settled_by, forfeited_cents, forfeit_reason, provider_ref`

func scanDeposit(row rowScanner) (*domain.Deposit, error) {
	d := &domain.Deposit{}
	err := row.Scan(&d.ID, &d.BorrowID, &d.PayerID, &d.PayeeID, &d.AmountCents, &d.Status, &d.HeldAt, &d.SettledAt, &d.SettledBy, &d.ForfeitedCents, &d.ForfeitReason, &d.ProviderRef)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *depositRepository) Insert(ctx context.Context, d *domain.Deposit) error {
	query := `INSERT INTO deposits (borrow_id, payer_id, payee_id, amount_cents, status, held_at, provider_ref)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, d.BorrowID, d.PayerID, d.PayeeID, d.AmountCents, d.Status, d.HeldAt, d.ProviderRef).Scan(&d.ID)
	if pqCode(err) == uniqueViolation {
		return &domain.Error{Kind: domain.KindAlreadyHeld, Message: "deposit already held for this borrow", Err: err}
	}
	return err
}

func (r *depositRepository) GetByBorrow(ctx context.Context, borrowID int32) (*domain.Deposit, error) {
	d, err := scanDeposit(r.db.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE borrow_id = $1`, borrowID))
	if err != nil {
		return nil, notFound(err, "deposit for borrow", borrowID)
	}
	return d, nil
}

func (r *depositRepository) GetByBorrowForUpdate(ctx context.Context, borrowID int32) (*domain.Deposit, error) {
	d, err := scanDeposit(r.db.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE borrow_id = $1 FOR UPDATE`, borrowID))
	if err != nil {
		return nil, notFound(err, "deposit for borrow", borrowID)
	}
	return d, nil
}

func (r *depositRepository) Update(ctx context.Context, d *domain.Deposit) error {
	query := `UPDATE deposits SET status=$1, settled_at=$2, settled_by=$3, forfeited_cents=$4, forfeit_reason=$5, provider_ref=$6 WHERE id=$7`
	_, err := r.db.ExecContext(ctx, query, d.Status, d.SettledAt, d.SettledBy, d.ForfeitedCents, d.ForfeitReason, d.ProviderRef, d.ID)
	return err
}
