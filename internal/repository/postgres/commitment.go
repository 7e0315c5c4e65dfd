package postgres

import (
	"context"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/logger"
	"toolshare-backend/internal/repository"
)

type commitmentRepository struct {
	db DBTX
}

func NewCommitmentRepository(db DBTX) repository.CommitmentRepository {
	return &commitmentRepository{db: db}
}

const commitmentColumns = `id, tool_id, borrow_id, start_at, end_at, finalized, created_at`

func scanCommitment(row rowScanner) (*domain.Commitment, error) {
	c := &domain.Commitment{}
	if err := row.Scan(&c.ID, &c.ToolID, &c.BorrowID, &c.StartAt, &c.EndAt, &c.Finalized, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *commitmentRepository) Insert(ctx context.Context, c *domain.Commitment) error {
	if err := domain.ValidateWindow(c.StartAt, c.EndAt); err != nil {
		return err
	}
	query := `INSERT INTO availability_commitments (tool_id, borrow_id, start_at, end_at, finalized, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	logger.DatabaseCall("INSERT", "availability_commitments", "toolID", c.ToolID, "borrowID", c.BorrowID)
	err := r.db.QueryRowContext(ctx, query, c.ToolID, c.BorrowID, c.StartAt, c.EndAt, c.Finalized, c.CreatedAt).Scan(&c.ID)
	logger.DatabaseResult("INSERT", 1, err, "commitmentID", c.ID)
	return overlapConflict(err)
}

func (r *commitmentRepository) UpdateWindow(ctx context.Context, id int64, start, end time.Time, finalized bool) error {
	if err := domain.ValidateWindow(start, end); err != nil {
		return err
	}
	query := `UPDATE availability_commitments SET start_at = $1, end_at = $2, finalized = $3 WHERE id = $4`
	logger.DatabaseCall("UPDATE", "availability_commitments", "commitmentID", id)
	result, err := r.db.ExecContext(ctx, query, start, end, finalized, id)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "commitmentID", id)
		return overlapConflict(err)
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("UPDATE", rows, err, "commitmentID", id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.NewError(domain.KindNotFound, "commitment %d not found", id)
	}
	return nil
}

func (r *commitmentRepository) GetByID(ctx context.Context, id int64) (*domain.Commitment, error) {
	c, err := scanCommitment(r.db.QueryRowContext(ctx, `SELECT `+commitmentColumns+` FROM availability_commitments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "commitment", id)
	}
	return c, nil
}

func (r *commitmentRepository) GetByBorrow(ctx context.Context, borrowID int32) (*domain.Commitment, error) {
	c, err := scanCommitment(r.db.QueryRowContext(ctx, `SELECT `+commitmentColumns+` FROM availability_commitments WHERE borrow_id = $1`, borrowID))
	if err != nil {
		return nil, notFound(err, "commitment for borrow", borrowID)
	}
	return c, nil
}

func (r *commitmentRepository) ListOverlapping(ctx context.Context, toolID int32, start, end time.Time, excludeBorrowID int32) ([]domain.Commitment, error) {
	query := `SELECT ` + commitmentColumns + ` FROM availability_commitments
	          WHERE tool_id = $1 AND start_at < $3 AND $2 < end_at AND borrow_id <> $4
	          ORDER BY start_at`
	rows, err := r.db.QueryContext(ctx, query, toolID, start, end, excludeBorrowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *commitmentRepository) Delete(ctx context.Context, id int64) (bool, error) {
	logger.DatabaseCall("DELETE", "availability_commitments", "commitmentID", id)
	result, err := r.db.ExecContext(ctx, `DELETE FROM availability_commitments WHERE id = $1`, id)
	if err != nil {
		logger.DatabaseResult("DELETE", 0, err, "commitmentID", id)
		return false, err
	}
	rows, err := result.RowsAffected()
	logger.DatabaseResult("DELETE", rows, err, "commitmentID", id)
	return rows > 0, err
}
