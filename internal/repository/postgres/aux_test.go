package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"toolshare-backend/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_GetByID(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Users()
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, name, is_admin, created_on FROM users WHERE id = $1")).
		WithArgs(int32(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "is_admin", "created_on"}).
			AddRow(3, "lena@example.com", "Lena", false, t0))
	u, err := repo.GetByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "lena@example.com", u.Email)
	assert.Equal(t, "2026-03-01", u.CreatedOn)

	mock.ExpectQuery("SELECT (.+) FROM users").WithArgs(int32(4)).WillReturnError(sql.ErrNoRows)
	_, err = repo.GetByID(ctx, 4)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Notifications()
	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO notifications").
			WithArgs(int32(3), "New request", "body", false, []byte(`{"type":"BorrowRequested"}`), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		n := &domain.Notification{UserID: 3, Title: "New request", Message: "body", Attributes: map[string]string{"type": "BorrowRequested"}}
		require.NoError(t, repo.Create(ctx, n))
		assert.Equal(t, int32(11), n.ID)
	})

	t.Run("List", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM notifications WHERE user_id = $1")).
			WithArgs(int32(3)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery("SELECT (.+) FROM notifications WHERE user_id = \\$1 ORDER BY").
			WithArgs(int32(3), int32(20), int32(0)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "message", "is_read", "attributes", "created_on"}).
				AddRow(11, 3, "New request", "body", false, []byte(`{"borrow_id":"5"}`), t0))

		notes, total, err := repo.List(ctx, 3, 20, 0)
		require.NoError(t, err)
		assert.Equal(t, int32(1), total)
		require.Len(t, notes, 1)
		assert.Equal(t, "5", notes[0].Attributes["borrow_id"])
	})

	t.Run("MarkAsRead of someone else's row", func(t *testing.T) {
		mock.ExpectExec("UPDATE notifications SET is_read = TRUE").
			WithArgs(int32(11), int32(2)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, repo.MarkAsRead(ctx, 11, 2), domain.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository(t *testing.T) {
	store, mock := newMock(t)
	repo := store.Ledger()
	ctx := context.Background()
	borrowID := int32(5)

	mock.ExpectQuery("INSERT INTO ledger_transactions").
		WithArgs(int32(2), int32(-5000), domain.TransactionTypeDepositHold, &borrowID, "hold-5", "deposit held", t0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	tx := &domain.LedgerTransaction{UserID: 2, Amount: -5000, Type: domain.TransactionTypeDepositHold, RelatedBorrowID: &borrowID, Reference: "hold-5", Description: "deposit held", CreatedOn: t0}
	require.NoError(t, repo.CreateTransaction(ctx, tx))
	assert.Equal(t, int32(1), tx.ID)

	mock.ExpectQuery("INSERT INTO ledger_transactions (.+) ON CONFLICT \\(reference\\) DO NOTHING").
		WithArgs(int32(2), int32(-5000), domain.TransactionTypeDepositHold, &borrowID, "hold-5", "deposit held", t0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	again := &domain.LedgerTransaction{UserID: 2, Amount: -5000, Type: domain.TransactionTypeDepositHold, RelatedBorrowID: &borrowID, Reference: "hold-5", Description: "deposit held", CreatedOn: t0}
	assert.ErrorIs(t, repo.CreateTransaction(ctx, again), domain.ErrConflict)

	mock.ExpectQuery("SELECT (.+) FROM ledger_transactions WHERE related_borrow_id = \\$1").
		WithArgs(int32(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "type", "related_borrow_id", "reference", "description", "created_on"}).
			AddRow(1, 2, -5000, "DEPOSIT_HOLD", 5, "hold-5", "deposit held", t0).
			AddRow(2, 2, 5000, "DEPOSIT_REFUND", 5, "refund-5", "deposit refunded", t0))
	txs, err := repo.ListByBorrow(ctx, 5)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, domain.TransactionTypeDepositRefund, txs[1].Type)
	require.NotNil(t, txs[1].RelatedBorrowID)
	assert.Equal(t, int32(5), *txs[1].RelatedBorrowID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
