package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

type userRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	u := &domain.User{}
	var createdOn time.Time
	query := `SELECT id, email, name, is_admin, created_on FROM users WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.Name, &u.IsAdmin, &createdOn)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	u.CreatedOn = createdOn.Format("2006-01-02")
	return u, nil
}

// Authorizer answers participation and admin questions straight from the
// committed tables.
type Authorizer struct {
	db DBTX
}

func NewAuthorizer(db DBTX) *Authorizer {
	return &Authorizer{db: db}
}

func (a *Authorizer) IsParticipant(ctx context.Context, borrowID, actorID int32) (domain.Participation, error) {
	var borrowerID, lenderID int32
	err := a.db.QueryRowContext(ctx, `SELECT borrower_id, lender_id FROM borrow_requests WHERE id = $1`, borrowID).Scan(&borrowerID, &lenderID)
	if err != nil {
		return domain.Participation{}, notFound(err, "borrow request", borrowID)
	}
	return domain.Participation{IsBorrower: actorID == borrowerID, IsLender: actorID == lenderID}, nil
}

func (a *Authorizer) IsAdmin(ctx context.Context, actorID int32) (bool, error) {
	var isAdmin bool
	err := a.db.QueryRowContext(ctx, `SELECT is_admin FROM users WHERE id = $1`, actorID).Scan(&isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return isAdmin, err
}
