package postgres

import (
	"context"
	"fmt"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

type borrowRepository struct {
	db DBTX
}

func NewBorrowRepository(db DBTX) repository.BorrowRepository {
	return &borrowRepository{db: db}
}

const borrowColumns = `id, tool_id, borrower_id, lender_id, status, duration_hours, notes, fee_per_day_cents, deposit_required, deposit_cents, requested_at, approved_at, borrowed_at, due_at, returned_at, closed_at, closed_by, close_reason, updated_at`

func scanBorrow(row rowScanner) (*domain.BorrowRequest, error) {
	b := &domain.BorrowRequest{}
	err := row.Scan(&b.ID, &b.ToolID, &b.BorrowerID, &b.LenderID, &b.Status, &b.DurationHours, &b.Notes,
		&b.FeePerDayCents, &b.DepositRequired, &b.DepositCents,
		&b.RequestedAt, &b.ApprovedAt, &b.BorrowedAt, &b.DueAt, &b.ReturnedAt, &b.ClosedAt, &b.ClosedBy, &b.CloseReason, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *borrowRepository) Create(ctx context.Context, b *domain.BorrowRequest) error {
	query := `INSERT INTO borrow_requests (tool_id, borrower_id, lender_id, status, duration_hours, notes, fee_per_day_cents, deposit_required, deposit_cents, requested_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	return r.db.QueryRowContext(ctx, query, b.ToolID, b.BorrowerID, b.LenderID, b.Status, b.DurationHours, b.Notes,
		b.FeePerDayCents, b.DepositRequired, b.DepositCents, b.RequestedAt, b.UpdatedAt).Scan(&b.ID)
}

func (r *borrowRepository) GetByID(ctx context.Context, id int32) (*domain.BorrowRequest, error) {
	b, err := scanBorrow(r.db.QueryRowContext(ctx, `SELECT `+borrowColumns+` FROM borrow_requests WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "borrow request", id)
	}
	return b, nil
}

func (r *borrowRepository) GetForUpdate(ctx context.Context, id int32) (*domain.BorrowRequest, error) {
	b, err := scanBorrow(r.db.QueryRowContext(ctx, `SELECT `+borrowColumns+` FROM borrow_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "borrow request", id)
	}
	return b, nil
}

func (r *borrowRepository) Update(ctx context.Context, b *domain.BorrowRequest) error {
	query := `UPDATE borrow_requests SET status=$1, duration_hours=$2, approved_at=$3, borrowed_at=$4, due_at=$5, returned_at=$6, closed_at=$7, closed_by=$8, close_reason=$9, updated_at=$10 WHERE id=$11`
	result, err := r.db.ExecContext(ctx, query, b.Status, b.DurationHours, b.ApprovedAt, b.BorrowedAt, b.DueAt, b.ReturnedAt, b.ClosedAt, b.ClosedBy, b.CloseReason, b.UpdatedAt, b.ID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.NewError(domain.KindNotFound, "borrow request %d not found", b.ID)
	}
	return nil
}

func (r *borrowRepository) list(ctx context.Context, column string, userID int32, status string, page, pageSize int32) ([]domain.BorrowRequest, int32, error) {
	offset := (page - 1) * pageSize
	where := fmt.Sprintf(" FROM borrow_requests WHERE %s = $1", column)
	args := []interface{}{userID}
	argIdx := 2
	if status != "" {
		where += " AND status = $2"
		args = append(args, status)
		argIdx++
	}

	var count int32
	if err := r.db.QueryRowContext(ctx, "SELECT count(*)"+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + borrowColumns + where + fmt.Sprintf(" ORDER BY requested_at DESC, id DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, pageSize, offset)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.BorrowRequest
	for rows.Next() {
		b, err := scanBorrow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	return out, count, rows.Err()
}

func (r *borrowRepository) ListByBorrower(ctx context.Context, borrowerID int32, status string, page, pageSize int32) ([]domain.BorrowRequest, int32, error) {
	return r.list(ctx, "borrower_id", borrowerID, status, page, pageSize)
}

func (r *borrowRepository) ListByLender(ctx context.Context, lenderID int32, status string, page, pageSize int32) ([]domain.BorrowRequest, int32, error) {
	return r.list(ctx, "lender_id", lenderID, status, page, pageSize)
}

func (r *borrowRepository) ListOverdue(ctx context.Context, now time.Time) ([]domain.BorrowRequest, error) {
	query := `SELECT ` + borrowColumns + ` FROM borrow_requests WHERE status = $1 AND due_at < $2 ORDER BY due_at`
	rows, err := r.db.QueryContext(ctx, query, domain.BorrowStatusBorrowed, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BorrowRequest
	for rows.Next() {
		b, err := scanBorrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *borrowRepository) AppendHistory(ctx context.Context, c *domain.StatusChange) error {
	query := `INSERT INTO borrow_status_history (borrow_id, from_status, to_status, actor_id, reason, changed_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	return r.db.QueryRowContext(ctx, query, c.BorrowID, c.FromStatus, c.ToStatus, c.ActorID, c.Reason, c.ChangedAt).Scan(&c.ID)
}

func (r *borrowRepository) ListHistory(ctx context.Context, borrowID int32) ([]domain.StatusChange, error) {
	query := `SELECT id, borrow_id, from_status, to_status, actor_id, reason, changed_at FROM borrow_status_history WHERE borrow_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, borrowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StatusChange
	for rows.Next() {
		var c domain.StatusChange
		if err := rows.Scan(&c.ID, &c.BorrowID, &c.FromStatus, &c.ToStatus, &c.ActorID, &c.Reason, &c.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *borrowRepository) AppendExtension(ctx context.Context, e *domain.ExtensionRecord) error {
	query := `INSERT INTO borrow_extensions (borrow_id, extra_hours, reason, approved_by, previous_due_at, new_due_at, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	return r.db.QueryRowContext(ctx, query, e.BorrowID, e.ExtraHours, e.Reason, e.ApprovedBy, e.PreviousDueAt, e.NewDueAt, e.CreatedAt).Scan(&e.ID)
}

func (r *borrowRepository) ListExtensions(ctx context.Context, borrowID int32) ([]domain.ExtensionRecord, error) {
	query := `SELECT id, borrow_id, extra_hours, reason, approved_by, previous_due_at, new_due_at, created_at FROM borrow_extensions WHERE borrow_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, borrowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExtensionRecord
	for rows.Next() {
		var e domain.ExtensionRecord
		if err := rows.Scan(&e.ID, &e.BorrowID, &e.ExtraHours, &e.Reason, &e.ApprovedBy, &e.PreviousDueAt, &e.NewDueAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
