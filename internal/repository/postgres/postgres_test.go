package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func toolRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "name", "fee_per_day_cents", "deposit_required", "deposit_cents", "default_loan_hours", "condition_notes", "available"}).
		AddRow(7, 3, "Drill", 500, true, 2000, 24, "good", true)
}

func TestStore_WithinTx(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM tools WHERE id = \\$1 FOR UPDATE").
			WithArgs(int32(7)).
			WillReturnRows(toolRow())
		mock.ExpectCommit()

		err := store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
			tool, err := r.Tools.GetForUpdate(ctx, 7)
			require.NoError(t, err)
			assert.Equal(t, "Drill", tool.Name)
			assert.True(t, tool.DepositRequired)
			return nil
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rollback", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := store.WithinTx(ctx, func(context.Context, repository.Repos) error {
			return domain.ErrInvalidTransition
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RetriesSerializationFailure", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM tools").WillReturnError(&pq.Error{Code: "40001"})
		mock.ExpectRollback()
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM tools").WillReturnRows(toolRow())
		mock.ExpectCommit()

		calls := 0
		err := store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
			calls++
			_, err := r.Tools.GetForUpdate(ctx, 7)
			return err
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("GivesUpAfterRetries", func(t *testing.T) {
		store, mock := newMock(t)
		store.WithTxRetries(0)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM tools").WillReturnError(&pq.Error{Code: "40P01"})
		mock.ExpectRollback()

		err := store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
			_, err := r.Tools.GetForUpdate(ctx, 7)
			return err
		})
		assert.Error(t, err)
		assert.True(t, isRetryable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestToolRepository_NotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("SELECT (.+) FROM tools WHERE id = \\$1").
		WithArgs(int32(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewToolRepository(store.db).GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCommitmentRepository_Insert(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		store, mock := newMock(t)
		c := &domain.Commitment{ToolID: 7, BorrowID: 1, StartAt: t0, EndAt: t0.Add(24 * time.Hour), CreatedAt: t0}
		mock.ExpectQuery("INSERT INTO availability_commitments").
			WithArgs(c.ToolID, c.BorrowID, c.StartAt, c.EndAt, false, c.CreatedAt).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

		require.NoError(t, NewCommitmentRepository(store.db).Insert(ctx, c))
		assert.Equal(t, int64(11), c.ID)
	})

	t.Run("ExclusionViolation", func(t *testing.T) {
		store, mock := newMock(t)
		c := &domain.Commitment{ToolID: 7, BorrowID: 2, StartAt: t0, EndAt: t0.Add(time.Hour), CreatedAt: t0}
		mock.ExpectQuery("INSERT INTO availability_commitments").
			WillReturnError(&pq.Error{Code: "23P01", Constraint: "availability_commitments_no_overlap"})

		err := NewCommitmentRepository(store.db).Insert(ctx, c)
		assert.ErrorIs(t, err, domain.ErrConflict)
		var pqErr *pq.Error
		assert.True(t, errors.As(err, &pqErr))
	})

	t.Run("InvalidWindow", func(t *testing.T) {
		store, _ := newMock(t)
		c := &domain.Commitment{ToolID: 7, BorrowID: 2, StartAt: t0, EndAt: t0}
		assert.ErrorIs(t, NewCommitmentRepository(store.db).Insert(ctx, c), domain.ErrInvalidInput)
	})
}

func TestCommitmentRepository_UpdateWindow(t *testing.T) {
	store, mock := newMock(t)
	repo := NewCommitmentRepository(store.db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE availability_commitments SET start_at = $1, end_at = $2, finalized = $3 WHERE id = $4")).
		WithArgs(t0, t0.Add(time.Hour), true, int64(5)).
		WillReturnError(&pq.Error{Code: "23P01"})
	assert.ErrorIs(t, repo.UpdateWindow(ctx, 5, t0, t0.Add(time.Hour), true), domain.ErrConflict)

	mock.ExpectExec("UPDATE availability_commitments").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.UpdateWindow(ctx, 6, t0, t0.Add(time.Hour), true), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBorrowRepository_ListByBorrower(t *testing.T) {
	store, mock := newMock(t)
	repo := NewBorrowRepository(store.db)

	cols := []string{"id", "tool_id", "borrower_id", "lender_id", "status", "duration_hours", "notes", "fee_per_day_cents", "deposit_required", "deposit_cents",
		"requested_at", "approved_at", "borrowed_at", "due_at", "returned_at", "closed_at", "closed_by", "close_reason", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM borrow_requests WHERE borrower_id = $1 AND status = $2")).
		WithArgs(int32(2), "borrowed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT (.+) FROM borrow_requests WHERE borrower_id = \\$1 AND status = \\$2 ORDER BY requested_at DESC, id DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs(int32(2), "borrowed", int32(10), int32(0)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, 7, 2, 3, "borrowed", 24, "", 500, false, 0, t0, t0, t0, t0.Add(24*time.Hour), nil, nil, nil, "", t0))

	out, total, err := repo.ListByBorrower(context.Background(), 2, "borrowed", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), total)
	require.Len(t, out, 1)
	assert.Equal(t, domain.BorrowStatusBorrowed, out[0].Status)
	require.NotNil(t, out[0].DueAt)
	assert.Nil(t, out[0].ReturnedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingRepository_Duplicate(t *testing.T) {
	store, mock := newMock(t)
	repo := NewRatingRepository(store.db)

	mock.ExpectQuery("INSERT INTO user_ratings").WillReturnError(&pq.Error{Code: "23505"})
	err := repo.InsertUserRating(context.Background(), &domain.UserRating{BorrowID: 1, RaterID: 2, TargetID: 3, Role: domain.RatingRoleLender, Score: 5, CreatedAt: t0})
	assert.ErrorIs(t, err, domain.ErrAlreadyRated)

	mock.ExpectQuery("INSERT INTO tool_ratings").WillReturnError(&pq.Error{Code: "23505"})
	err = repo.InsertToolRating(context.Background(), &domain.ToolRating{BorrowID: 1, ToolID: 7, RaterID: 2, Score: 5, CreatedAt: t0})
	assert.ErrorIs(t, err, domain.ErrAlreadyRated)
}

func TestDepositRepository_Duplicate(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("INSERT INTO deposits").WillReturnError(&pq.Error{Code: "23505"})

	err := NewDepositRepository(store.db).Insert(context.Background(), &domain.Deposit{BorrowID: 1, PayerID: 2, PayeeID: 3, AmountCents: 100, Status: domain.DepositStatusHeld, HeldAt: t0})
	assert.ErrorIs(t, err, domain.ErrAlreadyHeld)
}

func TestHandoverRepository_IncrementAttempts(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE handover_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(3))

	n, err := NewHandoverRepository(store.db).IncrementAttempts(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, int32(3), n)
}

func TestAuthorizer(t *testing.T) {
	store, mock := newMock(t)
	authz := store.Authorizer()
	ctx := context.Background()

	mock.ExpectQuery("SELECT borrower_id, lender_id FROM borrow_requests").
		WithArgs(int32(1)).
		WillReturnRows(sqlmock.NewRows([]string{"borrower_id", "lender_id"}).AddRow(2, 3))
	p, err := authz.IsParticipant(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, p.IsBorrower)
	assert.False(t, p.IsLender)

	mock.ExpectQuery("SELECT is_admin FROM users").
		WithArgs(int32(42)).
		WillReturnRows(sqlmock.NewRows([]string{"is_admin"}))
	admin, err := authz.IsAdmin(ctx, 42)
	require.NoError(t, err)
	assert.False(t, admin)
}
