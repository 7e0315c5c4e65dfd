package postgres

import (
	"context"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

type toolRepository struct {
	db DBTX
}

func NewToolRepository(db DBTX) repository.ToolRepository {
	return &toolRepository{db: db}
}

const toolColumns = `id, owner_id, name, fee_per_day_cents, deposit_required, deposit_cents, default_loan_hours, condition_notes, available`

func (r *toolRepository) get(ctx context.Context, query string, id int32) (*domain.Tool, error) {
	t := &domain.Tool{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.OwnerID, &t.Name, &t.FeePerDayCents, &t.DepositRequired, &t.DepositCents, &t.DefaultLoanHours, &t.ConditionNotes, &t.Available)
	if err != nil {
		return nil, notFound(err, "tool", id)
	}
	return t, nil
}

func (r *toolRepository) GetByID(ctx context.Context, id int32) (*domain.Tool, error) {
	return r.get(ctx, `SELECT `+toolColumns+` FROM tools WHERE id = $1`, id)
}

func (r *toolRepository) GetForUpdate(ctx context.Context, id int32) (*domain.Tool, error) {
	return r.get(ctx, `SELECT `+toolColumns+` FROM tools WHERE id = $1 FOR UPDATE`, id)
}
