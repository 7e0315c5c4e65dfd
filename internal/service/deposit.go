package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

// Movement names in idempotency keys. A deposit moves at most once per name.
const (
	movementHold      = "hold"
	movementRefund    = "refund"
	movementForfeit   = "forfeit"
	movementRemainder = "remainder"
)

func depositKey(borrowID int32, movement string) string {
	return fmt.Sprintf("deposit-%d-%s", borrowID, movement)
}

type depositEscrow struct {
	tx       repository.Transactor
	authz    AuthorizationPort
	payments PaymentProvider
	notifier NotificationPort
	clock    Clock
}

func NewDepositEscrow(tx repository.Transactor, authz AuthorizationPort, payments PaymentProvider, notifier NotificationPort, clock Clock) DepositEscrow {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if payments == nil {
		payments = noopPayments{}
	}
	return &depositEscrow{tx: tx, authz: authz, payments: payments, notifier: notifier, clock: clock}
}

func (s *depositEscrow) Hold(ctx context.Context, borrowID, amountCents int32) (*domain.Deposit, error) {
	const op = "DepositEscrow.Hold"
	enter(ctx, op, "borrowID", borrowID, "amountCents", amountCents)
	if amountCents <= 0 {
		err := domain.NewError(domain.KindInvalidInput, "deposit amount must be positive")
		exit(ctx, op, err)
		return nil, err
	}
	var held *domain.Deposit
	err := inTx(ctx, s.tx, op, func(ctx context.Context, r repository.Repos) error {
		b, err := r.Borrows.GetForUpdate(ctx, borrowID)
		if err != nil {
			return err
		}
		if b.Status != domain.BorrowStatusBorrowed {
			return domain.NewError(domain.KindInvalidTransition, "cannot hold a deposit on a %s borrow", b.Status)
		}
		held, err = holdDeposit(ctx, r, bindPayments(s.payments, r), b, amountCents, s.clock.Now())
		return err
	})
	exit(ctx, op, err, "borrowID", borrowID)
	if err != nil {
		return nil, err
	}
	return held, nil
}

func (s *depositEscrow) Release(ctx context.Context, borrowID int32) (*domain.Deposit, error) {
	const op = "DepositEscrow.Release"
	enter(ctx, op, "borrowID", borrowID)
	var out *domain.Deposit
	err := inTx(ctx, s.tx, op, func(ctx context.Context, r repository.Repos) error {
		b, err := r.Borrows.GetForUpdate(ctx, borrowID)
		if err != nil {
			return err
		}
		if b.Status != domain.BorrowStatusReturned {
			return domain.NewError(domain.KindInvalidTransition, "cannot release the deposit of a %s borrow", b.Status)
		}
		d, err := r.Deposits.GetByBorrowForUpdate(ctx, borrowID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		switch d.Status {
		case domain.DepositStatusReleased:
			out = d
			return nil
		case domain.DepositStatusForfeited:
			return domain.NewError(domain.KindAlreadySettled, "deposit for borrow %d was forfeited", borrowID)
		}
		if err := releaseDeposit(ctx, r, bindPayments(s.payments, r), d, 0, s.clock.Now()); err != nil {
			return err
		}
		out = d
		return nil
	})
	exit(ctx, op, err, "borrowID", borrowID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *depositEscrow) Forfeit(ctx context.Context, borrowID, amountCents int32, reason string, authorizedBy int32) (*domain.Deposit, error) {
	const op = "DepositEscrow.Forfeit"
	enter(ctx, op, "borrowID", borrowID, "amountCents", amountCents, "authorizedBy", authorizedBy)
	d, err := s.forfeit(ctx, borrowID, amountCents, reason, authorizedBy)
	exit(ctx, op, err, "borrowID", borrowID)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.notifier, domain.Event{
		Type:       domain.EventDepositForfeited,
		BorrowID:   borrowID,
		ActorID:    authorizedBy,
		Recipients: []int32{d.PayerID, d.PayeeID},
		Attributes: map[string]string{
			"forfeited_cents": fmt.Sprint(d.ForfeitedCents),
			"reason":          d.ForfeitReason,
		},
		OccurredAt: *d.SettledAt,
	})
	return d, nil
}

func (s *depositEscrow) forfeit(ctx context.Context, borrowID, amountCents int32, reason string, authorizedBy int32) (*domain.Deposit, error) {
	admin, err := isAdmin(ctx, s.authz, authorizedBy)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, notAuthorized("only an administrator may forfeit a deposit")
	}
	reason, err = requireReason(reason)
	if err != nil {
		return nil, err
	}
	if amountCents <= 0 {
		return nil, domain.NewError(domain.KindInvalidInput, "forfeit amount must be positive")
	}

	var out *domain.Deposit
	err = inTx(ctx, s.tx, "DepositEscrow.Forfeit", func(ctx context.Context, r repository.Repos) error {
		d, err := r.Deposits.GetByBorrowForUpdate(ctx, borrowID)
		if err != nil {
			return err
		}
		if d.Settled() {
			return domain.NewError(domain.KindAlreadySettled, "deposit for borrow %d is already %s", borrowID, d.Status)
		}
		if amountCents > d.AmountCents {
			return domain.NewError(domain.KindInvalidInput, "forfeit of %d exceeds held amount %d", amountCents, d.AmountCents)
		}

		// Refund the remainder before forfeiting.
		payments := bindPayments(s.payments, r)
		if rest := d.AmountCents - amountCents; rest > 0 {
			if _, err := payments.RefundDeposit(ctx, DepositPayment{
				IdempotencyKey: depositKey(borrowID, movementRemainder),
				BorrowID:       borrowID,
				PayerID:        d.PayerID,
				PayeeID:        d.PayeeID,
				AmountCents:    rest,
				Reason:         "remainder after forfeit",
			}); err != nil {
				return paymentError("refund", err)
			}
		}
		ref, err := payments.ForfeitDeposit(ctx, DepositPayment{
			IdempotencyKey: depositKey(borrowID, movementForfeit),
			BorrowID:       borrowID,
			PayerID:        d.PayerID,
			PayeeID:        d.PayeeID,
			AmountCents:    amountCents,
			Reason:         reason,
		})
		if err != nil {
			return paymentError("forfeit", err)
		}

		now := s.clock.Now()
		d.Status = domain.DepositStatusForfeited
		d.ForfeitedCents = amountCents
		d.ForfeitReason = reason
		d.SettledAt = &now
		d.SettledBy = &authorizedBy
		d.ProviderRef = ref
		if err := r.Deposits.Update(ctx, d); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

func (s *depositEscrow) Get(ctx context.Context, borrowID, actorID int32) (*domain.Deposit, error) {
	if err := requireParticipantOrAdmin(ctx, s.authz, borrowID, actorID); err != nil {
		return nil, err
	}
	var out *domain.Deposit
	err := readTx(ctx, s.tx, "DepositEscrow.Get", func(ctx context.Context, r repository.Repos) error {
		var err error
		out, err = r.Deposits.GetByBorrow(ctx, borrowID)
		return err
	})
	return out, err
}

func requireParticipantOrAdmin(ctx context.Context, authz AuthorizationPort, borrowID, actorID int32) error {
	p, err := participation(ctx, authz, borrowID, actorID)
	if err != nil {
		return err
	}
	if p.IsParticipant() {
		return nil
	}
	admin, err := isAdmin(ctx, authz, actorID)
	if err != nil {
		return err
	}
	if !admin {
		return notAuthorized("user %d is not part of borrow %d", actorID, borrowID)
	}
	return nil
}

// holdDeposit runs inside the caller's transaction with the borrow locked.
func holdDeposit(ctx context.Context, r repository.Repos, payments PaymentProvider, b *domain.BorrowRequest, amountCents int32, now time.Time) (*domain.Deposit, error) {
	if _, err := r.Deposits.GetByBorrow(ctx, b.ID); err == nil {
		return nil, domain.NewError(domain.KindAlreadyHeld, "borrow %d already has a deposit", b.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	ref, err := payments.HoldDeposit(ctx, DepositPayment{
		IdempotencyKey: depositKey(b.ID, movementHold),
		BorrowID:       b.ID,
		PayerID:        b.BorrowerID,
		PayeeID:        b.LenderID,
		AmountCents:    amountCents,
	})
	if err != nil {
		return nil, paymentError("hold", err)
	}

	d := &domain.Deposit{
		BorrowID:    b.ID,
		PayerID:     b.BorrowerID,
		PayeeID:     b.LenderID,
		AmountCents: amountCents,
		Status:      domain.DepositStatusHeld,
		HeldAt:      now,
		ProviderRef: ref,
	}
	if err := r.Deposits.Insert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// releaseDeposit refunds a held deposit in full. actorID 0 marks an
// automatic release.
func releaseDeposit(ctx context.Context, r repository.Repos, payments PaymentProvider, d *domain.Deposit, actorID int32, now time.Time) error {
	ref, err := payments.RefundDeposit(ctx, DepositPayment{
		IdempotencyKey: depositKey(d.BorrowID, movementRefund),
		BorrowID:       d.BorrowID,
		PayerID:        d.PayerID,
		PayeeID:        d.PayeeID,
		AmountCents:    d.AmountCents,
	})
	if err != nil {
		return paymentError("refund", err)
	}
	d.Status = domain.DepositStatusReleased
	d.SettledAt = &now
	if actorID != 0 {
		d.SettledBy = &actorID
	}
	d.ProviderRef = ref
	return r.Deposits.Update(ctx, d)
}
