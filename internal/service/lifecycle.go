package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

type LifecycleConfig struct {
	// ConflictRetries is how many times Create re-runs after a Conflict.
	ConflictRetries  int
	MaxDurationHours int32
}

type borrowLifecycle struct {
	tx       repository.Transactor
	authz    AuthorizationPort
	payments PaymentProvider
	notifier NotificationPort
	clock    Clock
	cfg      LifecycleConfig
}

func NewBorrowLifecycle(tx repository.Transactor, authz AuthorizationPort, payments PaymentProvider, notifier NotificationPort, clock Clock, cfg LifecycleConfig) BorrowLifecycle {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if payments == nil {
		payments = noopPayments{}
	}
	if cfg.MaxDurationHours <= 0 {
		cfg.MaxDurationHours = 720
	}
	return &borrowLifecycle{tx: tx, authz: authz, payments: payments, notifier: notifier, clock: clock, cfg: cfg}
}

// save persists b and appends its audit row.
func save(ctx context.Context, r repository.Repos, b *domain.BorrowRequest, from domain.BorrowStatus, actorID int32, reason string) error {
	if err := r.Borrows.Update(ctx, b); err != nil {
		return err
	}
	return r.Borrows.AppendHistory(ctx, &domain.StatusChange{
		BorrowID:   b.ID,
		FromStatus: from,
		ToStatus:   b.Status,
		ActorID:    actorID,
		Reason:     reason,
		ChangedAt:  b.UpdatedAt,
	})
}

func (s *borrowLifecycle) Create(ctx context.Context, toolID, borrowerID, durationHours int32, notes string) (*domain.BorrowRequest, error) {
	const op = "BorrowLifecycle.Create"
	enter(ctx, op, "toolID", toolID, "borrowerID", borrowerID, "durationHours", durationHours)
	if durationHours < 0 || durationHours > s.cfg.MaxDurationHours {
		err := domain.NewError(domain.KindInvalidInput, "duration must be between 1 and %d hours", s.cfg.MaxDurationHours)
		exit(ctx, op, err)
		return nil, err
	}

	var created *domain.BorrowRequest
	var err error
	for attempt := 0; ; attempt++ {
		created, err = s.create(ctx, toolID, borrowerID, durationHours, notes)
		if errors.Is(err, domain.ErrConflict) && attempt < s.cfg.ConflictRetries {
			continue
		}
		break
	}
	exit(ctx, op, err, "toolID", toolID)
	if err != nil {
		return nil, err
	}

	e := borrowEvent(domain.EventBorrowRequested, created, borrowerID, created.RequestedAt, created.LenderID)
	e.Attributes["duration_hours"] = fmt.Sprint(created.DurationHours)
	e.Attributes["estimated_fee_cents"] = fmt.Sprint(created.EstimatedFeeCents())
	publish(ctx, s.notifier, e)
	return created, nil
}

func (s *borrowLifecycle) create(ctx context.Context, toolID, borrowerID, durationHours int32, notes string) (*domain.BorrowRequest, error) {
	var created *domain.BorrowRequest
	err := inTx(ctx, s.tx, "BorrowLifecycle.Create", func(ctx context.Context, r repository.Repos) error {
		tool, err := r.Tools.GetForUpdate(ctx, toolID)
		if err != nil {
			return err
		}
		if tool.OwnerID == borrowerID {
			return domain.NewError(domain.KindSelfBorrowNotAllowed, "you cannot borrow your own tool")
		}
		if !tool.Available {
			return domain.NewError(domain.KindToolUnavailable, "tool %d is not available", toolID)
		}
		hours := durationHours
		if hours == 0 {
			hours = tool.DefaultLoanHours
		}
		if hours <= 0 || hours > s.cfg.MaxDurationHours {
			return domain.NewError(domain.KindInvalidInput, "duration must be between 1 and %d hours", s.cfg.MaxDurationHours)
		}

		now := s.clock.Now()
		b := &domain.BorrowRequest{
			ToolID:          tool.ID,
			BorrowerID:      borrowerID,
			LenderID:        tool.OwnerID,
			Status:          domain.BorrowStatusRequested,
			DurationHours:   hours,
			Notes:           notes,
			FeePerDayCents:  tool.FeePerDayCents,
			DepositRequired: tool.DepositRequired,
			DepositCents:    tool.DepositCents,
			RequestedAt:     now,
			UpdatedAt:       now,
		}
		if err := r.Borrows.Create(ctx, b); err != nil {
			return err
		}
		if _, err := reserveWindow(ctx, r, tool.ID, b.ID, now, now.Add(time.Duration(hours)*time.Hour), false, now); err != nil {
			return err
		}
		if err := r.Borrows.AppendHistory(ctx, &domain.StatusChange{
			BorrowID:  b.ID,
			ToStatus:  b.Status,
			ActorID:   borrowerID,
			ChangedAt: now,
		}); err != nil {
			return err
		}
		created = b
		return nil
	})
	return created, err
}

func (s *borrowLifecycle) Approve(ctx context.Context, borrowID, approverID int32) (*domain.BorrowRequest, error) {
	const op = "BorrowLifecycle.Approve"
	enter(ctx, op, "borrowID", borrowID, "approverID", approverID)
	b, err := s.decide(ctx, borrowID, approverID, domain.BorrowStatusApproved, "")
	exit(ctx, op, err, "borrowID", borrowID)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.notifier, borrowEvent(domain.EventBorrowApproved, b, approverID, b.UpdatedAt, b.BorrowerID))
	return b, nil
}

func (s *borrowLifecycle) Deny(ctx context.Context, borrowID, denierID int32, reason string) (*domain.BorrowRequest, error) {
	const op = "BorrowLifecycle.Deny"
	enter(ctx, op, "borrowID", borrowID, "denierID", denierID)
	reason, err := requireReason(reason)
	var b *domain.BorrowRequest
	if err == nil {
		b, err = s.decide(ctx, borrowID, denierID, domain.BorrowStatusDenied, reason)
	}
	exit(ctx, op, err, "borrowID", borrowID)
	if err != nil {
		return nil, err
	}
	e := borrowEvent(domain.EventBorrowDenied, b, denierID, b.UpdatedAt, b.BorrowerID)
	e.Attributes["reason"] = reason
	publish(ctx, s.notifier, e)
	return b, nil
}

// decide applies the lender's answer to a pending request.
func (s *borrowLifecycle) decide(ctx context.Context, borrowID, lenderID int32, next domain.BorrowStatus, reason string) (*domain.BorrowRequest, error) {
	p, err := participation(ctx, s.authz, borrowID, lenderID)
	if err != nil {
		return nil, err
	}
	if !p.IsLender {
		return nil, notAuthorized("only the tool owner may decide on borrow %d", borrowID)
	}

	var out *domain.BorrowRequest
	err = inTx(ctx, s.tx, "BorrowLifecycle.decide", func(ctx context.Context, r repository.Repos) error {
		b, err := r.Borrows.GetForUpdate(ctx, borrowID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		from := b.Status
		if err := b.TransitionTo(next, now); err != nil {
			return err
		}
		if next == domain.BorrowStatusApproved {
			b.ApprovedAt = &now
		} else {
			b.ClosedAt = &now
			b.ClosedBy = &lenderID
			b.CloseReason = reason
			if err := releaseWindow(ctx, r, b.ID); err != nil {
				return err
			}
		}
		if err := save(ctx, r, b, from, lenderID, reason); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (s *borrowLifecycle) Cancel(ctx context.Context, borrowID, cancellerID int32, reason string) (*domain.BorrowRequest, error) {
	const op = "BorrowLifecycle.Cancel"
	enter(ctx, op, "borrowID", borrowID, "cancellerID", cancellerID)
	b, err := s.cancel(ctx, borrowID, cancellerID, reason)
	exit(ctx, op, err, "borrowID", borrowID)
	if err != nil {
		return nil, err
	}
	e := borrowEvent(domain.EventBorrowCancelled, b, cancellerID, b.UpdatedAt, b.Counterparty(cancellerID))
	e.Attributes["reason"] = b.CloseReason
	publish(ctx, s.notifier, e)
	return b, nil
}

func (s *borrowLifecycle) cancel(ctx context.Context, borrowID, cancellerID int32, reason string) (*domain.BorrowRequest, error) {
	reason, err := requireReason(reason)
	if err != nil {
		return nil, err
	}
	p, err := participation(ctx, s.authz, borrowID, cancellerID)
	if err != nil {
		return nil, err
	}
	if !p.IsParticipant() {
		return nil, notAuthorized("user %d is not part of borrow %d", cancellerID, borrowID)
	}

	var out *domain.BorrowRequest
	err = inTx(ctx, s.tx, "BorrowLifecycle.Cancel", func(ctx context.Context, r repository.Repos) error {
		b, err := r.Borrows.GetForUpdate(ctx, borrowID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		from := b.Status
		if err := b.TransitionTo(domain.BorrowStatusCancelled, now); err != nil {
			return err
		}
		b.ClosedAt = &now
		b.ClosedBy = &cancellerID
		b.CloseReason = reason
		if err := releaseWindow(ctx, r, b.ID); err != nil {
			return err
		}
		if err := r.Handovers.DeleteActive(ctx, b.ID, domain.HandoverPickup); err != nil {
			return err
		}
		if err := save(ctx, r, b, from, cancellerID, reason); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// requireConsumedCode checks that the latest code of typ was verified.
func requireConsumedCode(ctx context.Context, r repository.Repos, borrowID int32, typ domain.HandoverType) error {
	code, err := r.Handovers.GetLatest(ctx, borrowID, typ)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !code.Consumed()) {
		return domain.NewError(domain.KindNoActiveCode, "%s handover for borrow %d has not been verified", typ, borrowID)
	}
	return err
}

func (s *borrowLifecycle) CompletePickup(ctx context.Context, borrowID, actorID int32) (*domain.BorrowRequest, error) {
	const op = "BorrowLifecycle.CompletePickup"
	enter(ctx, op, "borrowID", borrowID, "actorID", actorID)
	b, err := s.completePickup(ctx, borrowID, actorID)
	exit(ctx, op, err, "borrowID", borrowID)
	if err != nil {
		return nil, err
	}
	e := borrowEvent(domain.EventPickupCompleted, b, actorID, *b.BorrowedAt, b.BorrowerID, b.LenderID)
	e.Attributes["due_at"] = b.DueAt.Format(time.RFC3339)
	publish(ctx, s.notifier, e)
	return b, nil
}

func (s *borrowLifecycle) completePickup(ctx context.Context, borrowID, actorID int32) (*domain.BorrowRequest, error) {
	p, err := participation(ctx, s.authz, borrowID, actorID)
	if err != nil {
		return nil, err
	}
	if !p.IsParticipant() {
		return nil, notAuthorized("user %d is not part of borrow %d", actorID, borrowID)
	}

	var out *domain.BorrowRequest
	err = inTx(ctx, s.tx, "BorrowLifecycle.CompletePickup", func(ctx context.Context, r repository.Repos) error {
		b, err := s.lockToolThenBorrow(ctx, r, borrowID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		from := b.Status
		if err := b.TransitionTo(domain.BorrowStatusBorrowed, now); err != nil {
			return err
		}
		if err := requireConsumedCode(ctx, r, b.ID, domain.HandoverPickup); err != nil {
			return err
		}
		due := now.Add(time.Duration(b.DurationHours) * time.Hour)
		b.BorrowedAt = &now
		b.DueAt = &due
		if err := moveWindow(ctx, r, b, now, due, now); err != nil {
			return err
		}
		if b.DepositRequired && b.DepositCents > 0 {
			if _, err := holdDeposit(ctx, r, bindPayments(s.payments, r), b, b.DepositCents, now); err != nil {
				return err
			}
		}
		if err := save(ctx, r, b, from, actorID, ""); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// lockToolThenBorrow takes the tool lock before the borrow lock, the same
// order Create uses.
func (s *borrowLifecycle) lockToolThenBorrow(ctx context.Context, r repository.Repos, borrowID int32) (*domain.BorrowRequest, error) {
	peek, err := r.Borrows.GetByID(ctx, borrowID)
	if err != nil {
		return nil, err
	}
	if _, err := r.Tools.GetForUpdate(ctx, peek.ToolID); err != nil {
		return nil, err
	}
	return r.Borrows.GetForUpdate(ctx, borrowID)
}

func (s *borrowLifecycle) CompleteReturn(ctx context.Context, borrowID, actorID int32) (*domain.BorrowRequest, error) {
	const op = "BorrowLifecycle.CompleteReturn"
	enter(ctx, op, "borrowID", borrowID, "actorID", actorID)
	b, err := s.completeReturn(ctx, borrowID, actorID)
	exit(ctx, op, err, "borrowID", borrowID)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.notifier, borrowEvent(domain.EventReturnCompleted, b, actorID, *b.ReturnedAt, b.BorrowerID, b.LenderID))
	return b, nil
}

func (s *borrowLifecycle) completeReturn(ctx context.Context, borrowID, actorID int32) (*domain.BorrowRequest, error) {
	p, err := participation(ctx, s.authz, borrowID, actorID)
	if err != nil {
		return nil, err
	}
	if !p.IsParticipant() {
		return nil, notAuthorized("user %d is not part of borrow %d", actorID, borrowID)
	}

	var out *domain.BorrowRequest
	err = inTx(ctx, s.tx, "BorrowLifecycle.CompleteReturn", func(ctx context.Context, r repository.Repos) error {
		b, err := r.Borrows.GetForUpdate(ctx, borrowID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		from := b.Status
		if err := b.TransitionTo(domain.BorrowStatusReturned, now); err != nil {
			return err
		}
		if err := requireConsumedCode(ctx, r, b.ID, domain.HandoverReturn); err != nil {
			return err
		}
		b.ReturnedAt = &now
		if err := releaseWindow(ctx, r, b.ID); err != nil {
			return err
		}
		d, err := r.Deposits.GetByBorrowForUpdate(ctx, b.ID)
		switch {
		case err == nil && d.Status == domain.DepositStatusHeld:
			if err := releaseDeposit(ctx, r, bindPayments(s.payments, r), d, 0, now); err != nil {
				return err
			}
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return err
		}
		if err := save(ctx, r, b, from, actorID, ""); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (s *borrowLifecycle) Extend(ctx context.Context, borrowID, extraHours int32, reason string, approvedBy int32) (*domain.BorrowRequest, error) {
	const op = "BorrowLifecycle.Extend"
	enter(ctx, op, "borrowID", borrowID, "extraHours", extraHours, "approvedBy", approvedBy)
	b, err := s.extend(ctx, borrowID, extraHours, reason, approvedBy)
	exit(ctx, op, err, "borrowID", borrowID)
	if err != nil {
		return nil, err
	}
	e := borrowEvent(domain.EventBorrowExtended, b, approvedBy, b.UpdatedAt, b.BorrowerID)
	e.Attributes["due_at"] = b.DueAt.Format(time.RFC3339)
	e.Attributes["extra_hours"] = fmt.Sprint(extraHours)
	publish(ctx, s.notifier, e)
	return b, nil
}

func (s *borrowLifecycle) extend(ctx context.Context, borrowID, extraHours int32, reason string, approvedBy int32) (*domain.BorrowRequest, error) {
	if extraHours <= 0 {
		return nil, domain.NewError(domain.KindInvalidInput, "extra hours must be positive")
	}
	reason, err := requireReason(reason)
	if err != nil {
		return nil, err
	}
	p, err := participation(ctx, s.authz, borrowID, approvedBy)
	if err != nil {
		return nil, err
	}
	if !p.IsLender {
		return nil, notAuthorized("only the tool owner may extend borrow %d", borrowID)
	}

	var out *domain.BorrowRequest
	err = inTx(ctx, s.tx, "BorrowLifecycle.Extend", func(ctx context.Context, r repository.Repos) error {
		b, err := s.lockToolThenBorrow(ctx, r, borrowID)
		if err != nil {
			return err
		}
		if b.Status != domain.BorrowStatusBorrowed || b.DueAt == nil {
			return domain.NewError(domain.KindInvalidTransition, "borrow %d can only be extended while borrowed", borrowID)
		}
		if b.DurationHours+extraHours > s.cfg.MaxDurationHours {
			return domain.NewError(domain.KindInvalidInput, "loan cannot exceed %d hours", s.cfg.MaxDurationHours)
		}
		now := s.clock.Now()
		prevDue := *b.DueAt
		newDue := prevDue.Add(time.Duration(extraHours) * time.Hour)
		if err := moveWindow(ctx, r, b, *b.BorrowedAt, newDue, now); err != nil {
			return err
		}
		b.DueAt = &newDue
		b.DurationHours += extraHours
		b.UpdatedAt = now
		if err := save(ctx, r, b, b.Status, approvedBy, reason); err != nil {
			return err
		}
		if err := r.Borrows.AppendExtension(ctx, &domain.ExtensionRecord{
			BorrowID:      b.ID,
			ExtraHours:    extraHours,
			Reason:        reason,
			ApprovedBy:    approvedBy,
			PreviousDueAt: prevDue,
			NewDueAt:      newDue,
			CreatedAt:     now,
		}); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (s *borrowLifecycle) Get(ctx context.Context, borrowID, actorID int32) (*domain.BorrowRequest, error) {
	if err := requireParticipantOrAdmin(ctx, s.authz, borrowID, actorID); err != nil {
		return nil, err
	}
	var out *domain.BorrowRequest
	err := readTx(ctx, s.tx, "BorrowLifecycle.Get", func(ctx context.Context, r repository.Repos) error {
		var err error
		out, err = r.Borrows.GetByID(ctx, borrowID)
		return err
	})
	return out, err
}

func (s *borrowLifecycle) History(ctx context.Context, borrowID, actorID int32) ([]domain.StatusChange, []domain.ExtensionRecord, error) {
	if err := requireParticipantOrAdmin(ctx, s.authz, borrowID, actorID); err != nil {
		return nil, nil, err
	}
	var changes []domain.StatusChange
	var extensions []domain.ExtensionRecord
	err := readTx(ctx, s.tx, "BorrowLifecycle.History", func(ctx context.Context, r repository.Repos) error {
		var err error
		if changes, err = r.Borrows.ListHistory(ctx, borrowID); err != nil {
			return err
		}
		extensions, err = r.Borrows.ListExtensions(ctx, borrowID)
		return err
	})
	return changes, extensions, err
}

func (s *borrowLifecycle) ListForBorrower(ctx context.Context, borrowerID int32, status string, page, pageSize int32) ([]domain.BorrowRequest, int32, error) {
	return s.list(ctx, "BorrowLifecycle.ListForBorrower", status, page, pageSize, func(ctx context.Context, r repository.Repos, page, pageSize int32) ([]domain.BorrowRequest, int32, error) {
		return r.Borrows.ListByBorrower(ctx, borrowerID, status, page, pageSize)
	})
}

func (s *borrowLifecycle) ListForLender(ctx context.Context, lenderID int32, status string, page, pageSize int32) ([]domain.BorrowRequest, int32, error) {
	return s.list(ctx, "BorrowLifecycle.ListForLender", status, page, pageSize, func(ctx context.Context, r repository.Repos, page, pageSize int32) ([]domain.BorrowRequest, int32, error) {
		return r.Borrows.ListByLender(ctx, lenderID, status, page, pageSize)
	})
}

type listFunc func(ctx context.Context, r repository.Repos, page, pageSize int32) ([]domain.BorrowRequest, int32, error)

func (s *borrowLifecycle) list(ctx context.Context, op, status string, page, pageSize int32, fn listFunc) ([]domain.BorrowRequest, int32, error) {
	if status != "" {
		if _, err := domain.ParseBorrowStatus(status); err != nil {
			return nil, 0, err
		}
	}
	page, pageSize = normalizePage(page, pageSize)
	var out []domain.BorrowRequest
	var total int32
	err := readTx(ctx, s.tx, op, func(ctx context.Context, r repository.Repos) error {
		var err error
		out, total, err = fn(ctx, r, page, pageSize)
		return err
	})
	return out, total, err
}

// RemindOverdue emits a BorrowOverdue event for every running loan past
// its due time and returns how many were found.
func (s *borrowLifecycle) RemindOverdue(ctx context.Context) (int, error) {
	const op = "BorrowLifecycle.RemindOverdue"
	now := s.clock.Now()
	var overdue []domain.BorrowRequest
	err := readTx(ctx, s.tx, op, func(ctx context.Context, r repository.Repos) error {
		var err error
		overdue, err = r.Borrows.ListOverdue(ctx, now)
		return err
	})
	if err != nil {
		exit(ctx, op, err)
		return 0, err
	}
	for i := range overdue {
		b := &overdue[i]
		e := borrowEvent(domain.EventBorrowOverdue, b, 0, now, b.BorrowerID, b.LenderID)
		e.Attributes["due_at"] = b.DueAt.Format(time.RFC3339)
		publish(ctx, s.notifier, e)
	}
	exit(ctx, op, nil, "overdue", len(overdue))
	return len(overdue), nil
}
