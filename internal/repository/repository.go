package repository

import (
	"context"
	"time"

	"toolshare-backend/internal/domain"
)

// Lookups that find nothing return a domain.ErrNotFound error; every other
// failure is returned unchanged for the service layer to classify.

type ToolRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.Tool, error)
	// GetForUpdate locks the tool row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int32) (*domain.Tool, error)
}

type BorrowRepository interface {
	Create(ctx context.Context, b *domain.BorrowRequest) error
	GetByID(ctx context.Context, id int32) (*domain.BorrowRequest, error)
	GetForUpdate(ctx context.Context, id int32) (*domain.BorrowRequest, error)
	Update(ctx context.Context, b *domain.BorrowRequest) error
	ListByBorrower(ctx context.Context, borrowerID int32, status string, page, pageSize int32) ([]domain.BorrowRequest, int32, error)
	ListByLender(ctx context.Context, lenderID int32, status string, page, pageSize int32) ([]domain.BorrowRequest, int32, error)
	ListOverdue(ctx context.Context, now time.Time) ([]domain.BorrowRequest, error)

	AppendHistory(ctx context.Context, c *domain.StatusChange) error
	ListHistory(ctx context.Context, borrowID int32) ([]domain.StatusChange, error)
	AppendExtension(ctx context.Context, e *domain.ExtensionRecord) error
	ListExtensions(ctx context.Context, borrowID int32) ([]domain.ExtensionRecord, error)
}

type CommitmentRepository interface {
	// Insert and UpdateWindow fail with domain.ErrConflict when the window
	// overlaps another commitment on the same tool.
	Insert(ctx context.Context, c *domain.Commitment) error
	UpdateWindow(ctx context.Context, id int64, start, end time.Time, finalized bool) error
	GetByID(ctx context.Context, id int64) (*domain.Commitment, error)
	GetByBorrow(ctx context.Context, borrowID int32) (*domain.Commitment, error)
	// ListOverlapping returns commitments of toolID intersecting [start, end),
	// ignoring the one owned by excludeBorrowID (0 ignores nothing).
	ListOverlapping(ctx context.Context, toolID int32, start, end time.Time, excludeBorrowID int32) ([]domain.Commitment, error)
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, id int64) (bool, error)
}

type HandoverRepository interface {
	Insert(ctx context.Context, c *domain.HandoverCode) error
	// GetActive returns the unconsumed code of the given type.
	GetActive(ctx context.Context, borrowID int32, typ domain.HandoverType) (*domain.HandoverCode, error)
	// GetLatest returns the most recently generated code, consumed or not.
	GetLatest(ctx context.Context, borrowID int32, typ domain.HandoverType) (*domain.HandoverCode, error)
	DeleteActive(ctx context.Context, borrowID int32, typ domain.HandoverType) error
	MarkConsumed(ctx context.Context, id int64, consumedBy int32, at time.Time) error
	IncrementAttempts(ctx context.Context, id int64) (int32, error)
	DeleteUnconsumedBefore(ctx context.Context, generatedBefore time.Time) (int64, error)
}

type DepositRepository interface {
	// Insert fails with domain.ErrAlreadyHeld if the borrow already has a deposit.
	Insert(ctx context.Context, d *domain.Deposit) error
	GetByBorrow(ctx context.Context, borrowID int32) (*domain.Deposit, error)
	GetByBorrowForUpdate(ctx context.Context, borrowID int32) (*domain.Deposit, error)
	Update(ctx context.Context, d *domain.Deposit) error
}

type RatingRepository interface {
	// Both inserts fail with domain.ErrAlreadyRated on a duplicate row.
	InsertUserRating(ctx context.Context, r *domain.UserRating) error
	InsertToolRating(ctx context.Context, r *domain.ToolRating) error
	HasUserRating(ctx context.Context, borrowID, raterID int32) (bool, error)
	HasToolRating(ctx context.Context, borrowID int32) (bool, error)
	ListUserRatings(ctx context.Context, borrowID int32) ([]domain.UserRating, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id int32) (*domain.User, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, id, userID int32) error
}

type LedgerRepository interface {
	// CreateTransaction fails with domain.ErrConflict when the reference
	// has already been booked, leaving the existing row untouched.
	CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error
	ListByBorrow(ctx context.Context, borrowID int32) ([]domain.LedgerTransaction, error)
}

// Repos is one transaction's view of the lifecycle tables.
type Repos struct {
	Tools       ToolRepository
	Borrows     BorrowRepository
	Commitments CommitmentRepository
	Handovers   HandoverRepository
	Deposits    DepositRepository
	Ratings     RatingRepository
	Ledger      LedgerRepository
}

// TxFunc commits when it returns nil and rolls back otherwise.
type TxFunc func(ctx context.Context, r Repos) error

type Transactor interface {
	WithinTx(ctx context.Context, fn TxFunc) error
	ReadOnly(ctx context.Context, fn TxFunc) error
}
