package postgres

import (
	"context"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

type ratingRepository struct {
	db DBTX
}

func NewRatingRepository(db DBTX) repository.RatingRepository {
	return &ratingRepository{db: db}
}

func (r *ratingRepository) InsertUserRating(ctx context.Context, ur *domain.UserRating) error {
	query := `INSERT INTO user_ratings (borrow_id, rater_id, target_id, role, score, review, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, ur.BorrowID, ur.RaterID, ur.TargetID, ur.Role, ur.Score, ur.Review, ur.CreatedAt).Scan(&ur.ID)
	if pqCode(err) == uniqueViolation {
		return &domain.Error{Kind: domain.KindAlreadyRated, Message: "participant already rated this borrow", Err: err}
	}
	return err
}

func (r *ratingRepository) InsertToolRating(ctx context.Context, tr *domain.ToolRating) error {
	query := `INSERT INTO tool_ratings (borrow_id, tool_id, rater_id, score, review, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := r.db.QueryRowContext(ctx, query, tr.BorrowID, tr.ToolID, tr.RaterID, tr.Score, tr.Review, tr.CreatedAt).Scan(&tr.ID)
	if pqCode(err) == uniqueViolation {
		return &domain.Error{Kind: domain.KindAlreadyRated, Message: "tool already rated for this borrow", Err: err}
	}
	return err
}

func (r *ratingRepository) HasUserRating(ctx context.Context, borrowID, raterID int32) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM user_ratings WHERE borrow_id = $1 AND rater_id = $2)`, borrowID, raterID).Scan(&exists)
	return exists, err
}

func (r *ratingRepository) HasToolRating(ctx context.Context, borrowID int32) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tool_ratings WHERE borrow_id = $1)`, borrowID).Scan(&exists)
	return exists, err
}

func (r *ratingRepository) ListUserRatings(ctx context.Context, borrowID int32) ([]domain.UserRating, error) {
	query := `SELECT id, borrow_id, rater_id, target_id, role, score, review, created_at FROM user_ratings WHERE borrow_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, borrowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserRating
	for rows.Next() {
		var ur domain.UserRating
		if err := rows.Scan(&ur.ID, &ur.BorrowID, &ur.RaterID, &ur.TargetID, &ur.Role, &ur.Score, &ur.Review, &ur.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ur)
	}
	return out, rows.Err()
}
