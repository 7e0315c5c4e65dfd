package postgres

import (
	"context"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/logger"
	"toolshare-backend/internal/repository"
)

type handoverRepository struct {
	db DBTX
}

func NewHandoverRepository(db DBTX) repository.HandoverRepository {
	return &handoverRepository{db: db}
}

const handoverColumns = `id, borrow_id, code_type, code_hash, generator_id, generated_at, consumed_at, consumed_by, attempts`

func scanHandover(row rowScanner) (*domain.HandoverCode, error) {
	c := &domain.HandoverCode{}
	if err := row.Scan(&c.ID, &c.BorrowID, &c.Type, &c.CodeHash, &c.GeneratorID, &c.GeneratedAt, &c.ConsumedAt, &c.ConsumedBy, &c.Attempts); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *handoverRepository) Insert(ctx context.Context, c *domain.HandoverCode) error {
	query := `INSERT INTO handover_codes (borrow_id, code_type, code_hash, generator_id, generated_at, attempts)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, c.BorrowID, c.Type, c.CodeHash, c.GeneratorID, c.GeneratedAt, c.Attempts).Scan(&c.ID)
	if pqCode(err) == uniqueViolation {
		return &domain.Error{Kind: domain.KindConflict, Message: "an active code already exists", Err: err}
	}
	return err
}

func (r *handoverRepository) GetActive(ctx context.Context, borrowID int32, typ domain.HandoverType) (*domain.HandoverCode, error) {
	query := `SELECT ` + handoverColumns + ` FROM handover_codes WHERE borrow_id = $1 AND code_type = $2 AND consumed_at IS NULL FOR UPDATE`
	c, err := scanHandover(r.db.QueryRowContext(ctx, query, borrowID, typ))
	if err != nil {
		return nil, notFound(err, string(typ)+" code for borrow", borrowID)
	}
	return c, nil
}

func (r *handoverRepository) GetLatest(ctx context.Context, borrowID int32, typ domain.HandoverType) (*domain.HandoverCode, error) {
	query := `SELECT ` + handoverColumns + ` FROM handover_codes WHERE borrow_id = $1 AND code_type = $2 ORDER BY id DESC LIMIT 1`
	c, err := scanHandover(r.db.QueryRowContext(ctx, query, borrowID, typ))
	if err != nil {
		return nil, notFound(err, string(typ)+" code for borrow", borrowID)
	}
	return c, nil
}

func (r *handoverRepository) DeleteActive(ctx context.Context, borrowID int32, typ domain.HandoverType) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM handover_codes WHERE borrow_id = $1 AND code_type = $2 AND consumed_at IS NULL`, borrowID, typ)
	return err
}

func (r *handoverRepository) MarkConsumed(ctx context.Context, id int64, consumedBy int32, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE handover_codes SET consumed_at = $1, consumed_by = $2 WHERE id = $3`, at, consumedBy, id)
	return err
}

func (r *handoverRepository) IncrementAttempts(ctx context.Context, id int64) (int32, error) {
	var attempts int32
	err := r.db.QueryRowContext(ctx, `UPDATE handover_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`, id).Scan(&attempts)
	if err != nil {
		return 0, notFound(err, "handover code", id)
	}
	return attempts, nil
}

func (r *handoverRepository) DeleteUnconsumedBefore(ctx context.Context, generatedBefore time.Time) (int64, error) {
	logger.DatabaseCall("DELETE", "handover_codes", "generatedBefore", generatedBefore)
	result, err := r.db.ExecContext(ctx, `DELETE FROM handover_codes WHERE consumed_at IS NULL AND generated_at < $1`, generatedBefore)
	if err != nil {
		logger.DatabaseResult("DELETE", 0, err)
		return 0, err
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("DELETE", rows, err)
	return rows, err
}
