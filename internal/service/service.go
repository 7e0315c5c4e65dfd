package service

import (
	"context"
	"time"

	"toolshare-backend/internal/domain"
)

type AvailabilityTracker interface {
	IsFree(ctx context.Context, toolID int32, start, end time.Time) (bool, error)
	Reserve(ctx context.Context, toolID, borrowID int32, start, end time.Time) (int64, error)
	Release(ctx context.Context, commitmentID int64) error
	Commitments(ctx context.Context, toolID int32, from, to time.Time) ([]domain.Commitment, error)
}

type BorrowLifecycle interface {
	Create(ctx context.Context, toolID, borrowerID, durationHours int32, notes string) (*domain.BorrowRequest, error)
	Approve(ctx context.Context, borrowID, approverID int32) (*domain.BorrowRequest, error)
	Deny(ctx context.Context, borrowID, denierID int32, reason string) (*domain.BorrowRequest, error)
	Cancel(ctx context.Context, borrowID, cancellerID int32, reason string) (*domain.BorrowRequest, error)
	CompletePickup(ctx context.Context, borrowID, actorID int32) (*domain.BorrowRequest, error)
	CompleteReturn(ctx context.Context, borrowID, actorID int32) (*domain.BorrowRequest, error)
	Extend(ctx context.Context, borrowID, extraHours int32, reason string, approvedBy int32) (*domain.BorrowRequest, error)

	Get(ctx context.Context, borrowID, actorID int32) (*domain.BorrowRequest, error)
	History(ctx context.Context, borrowID, actorID int32) ([]domain.StatusChange, []domain.ExtensionRecord, error)
	ListForBorrower(ctx context.Context, borrowerID int32, status string, page, pageSize int32) ([]domain.BorrowRequest, int32, error)
	ListForLender(ctx context.Context, lenderID int32, status string, page, pageSize int32) ([]domain.BorrowRequest, int32, error)
	RemindOverdue(ctx context.Context) (int, error)
}

type HandoverVerifier interface {
	// Generate returns the view of the new code, including its plaintext.
	Generate(ctx context.Context, borrowID int32, typ domain.HandoverType, generatorID int32) (*domain.CodeView, error)
	Verify(ctx context.Context, borrowID int32, typ domain.HandoverType, code string, verifierID int32) error
	Status(ctx context.Context, borrowID int32, typ domain.HandoverType, actorID int32) (*domain.CodeView, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type DepositEscrow interface {
	Hold(ctx context.Context, borrowID, amountCents int32) (*domain.Deposit, error)
	// Release returns a nil deposit when the borrow never required one.
	Release(ctx context.Context, borrowID int32) (*domain.Deposit, error)
	Forfeit(ctx context.Context, borrowID, amountCents int32, reason string, authorizedBy int32) (*domain.Deposit, error)
	Get(ctx context.Context, borrowID, actorID int32) (*domain.Deposit, error)
}

type RatingGate interface {
	Eligibility(ctx context.Context, borrowID, actorID int32) (*domain.RatingEligibility, error)
	RateUser(ctx context.Context, borrowID, raterID, targetID int32, role domain.RatingRole, score int32, review string) (*domain.UserRating, error)
	RateTool(ctx context.Context, borrowID, raterID, score int32, review string) (*domain.ToolRating, error)
}

type NotificationService interface {
	GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, userID, notificationID int32) error
}
