package service

import (
	"context"
	"errors"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

type availabilityTracker struct {
	tx    repository.Transactor
	clock Clock
}

func NewAvailabilityTracker(tx repository.Transactor, clock Clock) AvailabilityTracker {
	return &availabilityTracker{tx: tx, clock: clock}
}

func (s *availabilityTracker) IsFree(ctx context.Context, toolID int32, start, end time.Time) (bool, error) {
	if err := domain.ValidateWindow(start, end); err != nil {
		return false, err
	}
	var free bool
	err := readTx(ctx, s.tx, "AvailabilityTracker.IsFree", func(ctx context.Context, r repository.Repos) error {
		overlapping, err := r.Commitments.ListOverlapping(ctx, toolID, start, end, 0)
		if err != nil {
			return err
		}
		free = len(overlapping) == 0
		return nil
	})
	return free, err
}

func (s *availabilityTracker) Reserve(ctx context.Context, toolID, borrowID int32, start, end time.Time) (int64, error) {
	const op = "AvailabilityTracker.Reserve"
	enter(ctx, op, "toolID", toolID, "borrowID", borrowID)
	if err := domain.ValidateWindow(start, end); err != nil {
		exit(ctx, op, err)
		return 0, err
	}
	var id int64
	err := inTx(ctx, s.tx, op, func(ctx context.Context, r repository.Repos) error {
		if _, err := r.Tools.GetForUpdate(ctx, toolID); err != nil {
			return err
		}
		b, err := r.Borrows.GetByID(ctx, borrowID)
		if err != nil {
			return err
		}
		if b.ToolID != toolID {
			return domain.NewError(domain.KindInvalidInput, "borrow %d is for tool %d, not %d", borrowID, b.ToolID, toolID)
		}
		c, err := reserveWindow(ctx, r, toolID, borrowID, start, end, false, s.clock.Now())
		if err != nil {
			return err
		}
		id = c.ID
		return nil
	})
	exit(ctx, op, err, "commitmentID", id)
	return id, err
}

func (s *availabilityTracker) Release(ctx context.Context, commitmentID int64) error {
	const op = "AvailabilityTracker.Release"
	err := inTx(ctx, s.tx, op, func(ctx context.Context, r repository.Repos) error {
		_, err := r.Commitments.Delete(ctx, commitmentID)
		return err
	})
	exit(ctx, op, err, "commitmentID", commitmentID)
	return err
}

func (s *availabilityTracker) Commitments(ctx context.Context, toolID int32, from, to time.Time) ([]domain.Commitment, error) {
	if err := domain.ValidateWindow(from, to); err != nil {
		return nil, err
	}
	var out []domain.Commitment
	err := readTx(ctx, s.tx, "AvailabilityTracker.Commitments", func(ctx context.Context, r repository.Repos) error {
		var err error
		out, err = r.Commitments.ListOverlapping(ctx, toolID, from, to, 0)
		return err
	})
	return out, err
}

// reserveWindow must run with the tool row locked. The explicit overlap
// check gives a clean Conflict; the storage constraint catches anything
// that slips past it.
func reserveWindow(ctx context.Context, r repository.Repos, toolID, borrowID int32, start, end time.Time, finalized bool, now time.Time) (*domain.Commitment, error) {
	overlapping, err := r.Commitments.ListOverlapping(ctx, toolID, start, end, borrowID)
	if err != nil {
		return nil, err
	}
	if len(overlapping) > 0 {
		return nil, domain.NewError(domain.KindConflict, "tool %d is committed to borrow %d in that window", toolID, overlapping[0].BorrowID)
	}
	c := &domain.Commitment{ToolID: toolID, BorrowID: borrowID, StartAt: start, EndAt: end, Finalized: finalized, CreatedAt: now}
	if err := r.Commitments.Insert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// moveWindow re-anchors the borrow's commitment, creating one if it is missing.
func moveWindow(ctx context.Context, r repository.Repos, b *domain.BorrowRequest, start, end time.Time, now time.Time) error {
	c, err := r.Commitments.GetByBorrow(ctx, b.ID)
	if errors.Is(err, domain.ErrNotFound) {
		_, err = reserveWindow(ctx, r, b.ToolID, b.ID, start, end, true, now)
		return err
	}
	if err != nil {
		return err
	}
	overlapping, err := r.Commitments.ListOverlapping(ctx, b.ToolID, start, end, b.ID)
	if err != nil {
		return err
	}
	if len(overlapping) > 0 {
		return domain.NewError(domain.KindConflict, "tool %d is committed to borrow %d in that window", b.ToolID, overlapping[0].BorrowID)
	}
	return r.Commitments.UpdateWindow(ctx, c.ID, start, end, true)
}

// releaseWindow drops the borrow's commitment if it still has one.
func releaseWindow(ctx context.Context, r repository.Repos, borrowID int32) error {
	c, err := r.Commitments.GetByBorrow(ctx, borrowID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = r.Commitments.Delete(ctx, c.ID)
	return err
}
