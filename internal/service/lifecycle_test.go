package service_test

import (
	"sync"
	"testing"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBorrowLifecycle_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := f.ctx

	b, err := f.engine.Borrows.Create(ctx, toolID, borrowerID, 24, "deck repair")
	require.NoError(t, err)
	assert.Equal(t, domain.BorrowStatusRequested, b.Status)
	assert.Equal(t, lenderID, b.LenderID)
	assert.Equal(t, int32(5000), b.DepositCents)

	b, err = f.engine.Borrows.Approve(ctx, b.ID, lenderID)
	require.NoError(t, err)
	assert.Equal(t, domain.BorrowStatusApproved, b.Status)
	require.NotNil(t, b.ApprovedAt)

	f.handover(t, b.ID, domain.HandoverPickup, lenderID, borrowerID)
	f.clock.Advance(time.Minute)
	b, err = f.engine.Borrows.CompletePickup(ctx, b.ID, borrowerID)
	require.NoError(t, err)
	assert.Equal(t, domain.BorrowStatusBorrowed, b.Status)
	require.NotNil(t, b.DueAt)
	assert.Equal(t, t0.Add(time.Minute+24*time.Hour), *b.DueAt)

	d, err := f.engine.Deposits.Get(ctx, b.ID, borrowerID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusHeld, d.Status)
	assert.Equal(t, int32(5000), d.AmountCents)

	commitments, err := f.engine.Availability.Commitments(ctx, toolID, t0, t0.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, commitments, 1)
	assert.True(t, commitments[0].Finalized)
	assert.Equal(t, *b.DueAt, commitments[0].EndAt)

	f.clock.Advance(20 * time.Hour)
	f.handover(t, b.ID, domain.HandoverReturn, borrowerID, lenderID)
	b, err = f.engine.Borrows.CompleteReturn(ctx, b.ID, lenderID)
	require.NoError(t, err)
	assert.Equal(t, domain.BorrowStatusReturned, b.Status)

	d, err = f.engine.Deposits.Get(ctx, b.ID, lenderID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositStatusReleased, d.Status)
	assert.Nil(t, d.SettledBy)

	commitments, err = f.engine.Availability.Commitments(ctx, toolID, t0, t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, commitments)

	changes, extensions, err := f.engine.Borrows.History(ctx, b.ID, borrowerID)
	require.NoError(t, err)
	assert.Empty(t, extensions)
	var path []domain.BorrowStatus
	for _, c := range changes {
		path = append(path, c.ToStatus)
	}
	assert.Equal(t, []domain.BorrowStatus{
		domain.BorrowStatusRequested,
		domain.BorrowStatusApproved,
		domain.BorrowStatusBorrowed,
		domain.BorrowStatusReturned,
	}, path)
	assert.Equal(t, domain.BorrowStatus(""), changes[0].FromStatus)

	requested := f.notes.ofType(domain.EventBorrowRequested)
	require.Len(t, requested, 1)
	assert.Equal(t, []int32{lenderID}, requested[0].Recipients)
	assert.NotEmpty(t, requested[0].ID)
	assert.Len(t, f.notes.ofType(domain.EventPickupCompleted), 1)
	assert.Len(t, f.notes.ofType(domain.EventReturnCompleted), 1)

	f.payments.AssertCalled(t, "HoldDeposit", mock.Anything, mock.MatchedBy(func(p service.DepositPayment) bool {
		return p.AmountCents == 5000 && p.PayerID == borrowerID && p.PayeeID == lenderID
	}))
	f.payments.AssertCalled(t, "RefundDeposit", mock.Anything, mock.Anything)
}

func TestBorrowLifecycle_Create(t *testing.T) {
	t.Run("Own tool", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Borrows.Create(f.ctx, toolID, lenderID, 24, "")
		assert.ErrorIs(t, err, domain.ErrSelfBorrowNotAllowed)
	})

	t.Run("Unknown tool", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Borrows.Create(f.ctx, 404, borrowerID, 24, "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Unavailable tool", func(t *testing.T) {
		f := newFixture(t)
		f.store.PutTool(domain.Tool{ID: 11, OwnerID: lenderID, DefaultLoanHours: 24})
		_, err := f.engine.Borrows.Create(f.ctx, 11, borrowerID, 24, "")
		assert.ErrorIs(t, err, domain.ErrToolUnavailable)
	})

	t.Run("Duration out of range", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Borrows.Create(f.ctx, toolID, borrowerID, -1, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = f.engine.Borrows.Create(f.ctx, toolID, borrowerID, 721, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Zero duration uses tool default", func(t *testing.T) {
		f := newFixture(t)
		b, err := f.engine.Borrows.Create(f.ctx, freeToolID, borrowerID, 0, "")
		require.NoError(t, err)
		assert.Equal(t, int32(48), b.DurationHours)
		assert.False(t, b.DepositRequired)
	})

	t.Run("Overlapping request conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.requested(t, toolID)
		_, err := f.engine.Borrows.Create(f.ctx, toolID, outsiderID, 24, "")
		assert.ErrorIs(t, err, domain.ErrConflict)
	})
}

func TestBorrowLifecycle_ConcurrentCreate(t *testing.T) {
	f := newFixture(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Borrows.Create(f.ctx, toolID, int32(100+i), 24, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)

	commitments, err := f.engine.Availability.Commitments(f.ctx, toolID, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, commitments, 1)
}

func TestBorrowLifecycle_DenyFreesWindow(t *testing.T) {
	f := newFixture(t)
	b := f.requested(t, toolID)

	_, err := f.engine.Borrows.Deny(f.ctx, b.ID, lenderID, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	b, err = f.engine.Borrows.Deny(f.ctx, b.ID, lenderID, "needed it myself")
	require.NoError(t, err)
	assert.Equal(t, domain.BorrowStatusDenied, b.Status)
	assert.Equal(t, "needed it myself", b.CloseReason)
	require.NotNil(t, b.ClosedBy)
	assert.Equal(t, lenderID, *b.ClosedBy)

	free, err := f.engine.Availability.IsFree(f.ctx, toolID, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, free)

	_, err = f.engine.Borrows.Create(f.ctx, toolID, outsiderID, 24, "")
	assert.NoError(t, err)

	denied := f.notes.ofType(domain.EventBorrowDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "needed it myself", denied[0].Attributes["reason"])
}

func TestBorrowLifecycle_Approve(t *testing.T) {
	f := newFixture(t)
	b := f.requested(t, toolID)

	_, err := f.engine.Borrows.Approve(f.ctx, b.ID, borrowerID)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	_, err = f.engine.Borrows.Approve(f.ctx, b.ID, outsiderID)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	_, err = f.engine.Borrows.Approve(f.ctx, 999, lenderID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.engine.Borrows.Approve(f.ctx, b.ID, lenderID)
	require.NoError(t, err)
	_, err = f.engine.Borrows.Approve(f.ctx, b.ID, lenderID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.engine.Borrows.Deny(f.ctx, b.ID, lenderID, "changed my mind")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestBorrowLifecycle_Cancel(t *testing.T) {
	t.Run("Requires a reason", func(t *testing.T) {
		f := newFixture(t)
		b := f.requested(t, toolID)
		_, err := f.engine.Borrows.Cancel(f.ctx, b.ID, borrowerID, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Outsider", func(t *testing.T) {
		f := newFixture(t)
		b := f.requested(t, toolID)
		_, err := f.engine.Borrows.Cancel(f.ctx, b.ID, outsiderID, "no")
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
	})

	t.Run("Approved borrow drops pickup code", func(t *testing.T) {
		f := newFixture(t)
		b := f.approved(t, toolID)
		_, err := f.engine.Handover.Generate(f.ctx, b.ID, domain.HandoverPickup, lenderID)
		require.NoError(t, err)

		b, err = f.engine.Borrows.Cancel(f.ctx, b.ID, lenderID, "tool broke")
		require.NoError(t, err)
		assert.Equal(t, domain.BorrowStatusCancelled, b.Status)

		cancelled := f.notes.ofType(domain.EventBorrowCancelled)
		require.Len(t, cancelled, 1)
		assert.Equal(t, []int32{borrowerID}, cancelled[0].Recipients)

		v, err := f.engine.Handover.Status(f.ctx, b.ID, domain.HandoverPickup, borrowerID)
		assert.ErrorIs(t, err, domain.ErrNoActiveCode)
		assert.Nil(t, v)

		free, err := f.engine.Availability.IsFree(f.ctx, toolID, t0, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, free)
	})

	t.Run("Borrowed cannot be cancelled", func(t *testing.T) {
		f := newFixture(t)
		b := f.borrowed(t, toolID)
		_, err := f.engine.Borrows.Cancel(f.ctx, b.ID, borrowerID, "oops")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestBorrowLifecycle_CompletePickup(t *testing.T) {
	t.Run("Without verified code", func(t *testing.T) {
		f := newFixture(t)
		b := f.approved(t, toolID)
		_, err := f.engine.Borrows.CompletePickup(f.ctx, b.ID, borrowerID)
		assert.ErrorIs(t, err, domain.ErrNoActiveCode)

		_, err = f.engine.Handover.Generate(f.ctx, b.ID, domain.HandoverPickup, lenderID)
		require.NoError(t, err)
		_, err = f.engine.Borrows.CompletePickup(f.ctx, b.ID, borrowerID)
		assert.ErrorIs(t, err, domain.ErrNoActiveCode)

		got, err := f.engine.Borrows.Get(f.ctx, b.ID, borrowerID)
		require.NoError(t, err)
		assert.Equal(t, domain.BorrowStatusApproved, got.Status)
	})

	t.Run("Requested borrow", func(t *testing.T) {
		f := newFixture(t)
		b := f.requested(t, toolID)
		_, err := f.engine.Borrows.CompletePickup(f.ctx, b.ID, borrowerID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("No deposit required", func(t *testing.T) {
		f := newFixture(t)
		b := f.borrowed(t, freeToolID)
		_, err := f.engine.Deposits.Get(f.ctx, b.ID, borrowerID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		f.payments.AssertNotCalled(t, "HoldDeposit", mock.Anything, mock.Anything)
	})

	t.Run("Provider failure rolls back", func(t *testing.T) {
		f := newFixture(t, func(m *MockPayments) {
			m.On("HoldDeposit", mock.Anything, mock.Anything).Return("", errProvider).Once()
		})
		b := f.approved(t, toolID)
		f.handover(t, b.ID, domain.HandoverPickup, lenderID, borrowerID)

		_, err := f.engine.Borrows.CompletePickup(f.ctx, b.ID, borrowerID)
		assert.ErrorIs(t, err, domain.ErrPaymentProvider)
		assert.ErrorIs(t, err, errProvider)

		got, err := f.engine.Borrows.Get(f.ctx, b.ID, borrowerID)
		require.NoError(t, err)
		assert.Equal(t, domain.BorrowStatusApproved, got.Status)
		_, err = f.engine.Deposits.Get(f.ctx, b.ID, borrowerID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		b, err = f.engine.Borrows.CompletePickup(f.ctx, b.ID, borrowerID)
		require.NoError(t, err)
		assert.Equal(t, domain.BorrowStatusBorrowed, b.Status)
	})
}

func TestBorrowLifecycle_CompleteReturn(t *testing.T) {
	f := newFixture(t)
	b := f.borrowed(t, toolID)

	_, err := f.engine.Borrows.CompleteReturn(f.ctx, b.ID, lenderID)
	assert.ErrorIs(t, err, domain.ErrNoActiveCode)
	_, err = f.engine.Borrows.CompleteReturn(f.ctx, b.ID, outsiderID)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	f.handover(t, b.ID, domain.HandoverReturn, borrowerID, lenderID)
	_, err = f.engine.Borrows.CompleteReturn(f.ctx, b.ID, lenderID)
	require.NoError(t, err)
	_, err = f.engine.Borrows.CompleteReturn(f.ctx, b.ID, lenderID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestBorrowLifecycle_Extend(t *testing.T) {
	t.Run("Lender extends", func(t *testing.T) {
		f := newFixture(t)
		b := f.borrowed(t, toolID)
		due := *b.DueAt

		b, err := f.engine.Borrows.Extend(f.ctx, b.ID, 12, "still sanding", lenderID)
		require.NoError(t, err)
		assert.Equal(t, due.Add(12*time.Hour), *b.DueAt)
		assert.Equal(t, int32(36), b.DurationHours)

		changes, extensions, err := f.engine.Borrows.History(f.ctx, b.ID, lenderID)
		require.NoError(t, err)
		require.Len(t, extensions, 1)
		assert.Equal(t, due, extensions[0].PreviousDueAt)
		assert.Equal(t, "still sanding", extensions[0].Reason)

		last := changes[len(changes)-1]
		assert.Equal(t, domain.BorrowStatusBorrowed, last.FromStatus)
		assert.Equal(t, domain.BorrowStatusBorrowed, last.ToStatus)
		assert.Equal(t, lenderID, last.ActorID)
		assert.Equal(t, "still sanding", last.Reason)

		c, err := f.engine.Availability.Commitments(f.ctx, toolID, t0, t0.Add(72*time.Hour))
		require.NoError(t, err)
		require.Len(t, c, 1)
		assert.Equal(t, *b.DueAt, c[0].EndAt)

		extended := f.notes.ofType(domain.EventBorrowExtended)
		require.Len(t, extended, 1)
		assert.Equal(t, "12", extended[0].Attributes["extra_hours"])
	})

	t.Run("Validation", func(t *testing.T) {
		f := newFixture(t)
		b := f.borrowed(t, toolID)

		_, err := f.engine.Borrows.Extend(f.ctx, b.ID, 0, "more", lenderID)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = f.engine.Borrows.Extend(f.ctx, b.ID, 5, "", lenderID)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		_, err = f.engine.Borrows.Extend(f.ctx, b.ID, 5, "more", borrowerID)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
		_, err = f.engine.Borrows.Extend(f.ctx, b.ID, 700, "more", lenderID)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Not borrowed", func(t *testing.T) {
		f := newFixture(t)
		b := f.approved(t, toolID)
		_, err := f.engine.Borrows.Extend(f.ctx, b.ID, 5, "more", lenderID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Later reservation conflicts", func(t *testing.T) {
		f := newFixture(t)
		next := f.detached(t, toolID)
		b := f.borrowed(t, toolID)
		_, err := f.engine.Availability.Reserve(f.ctx, toolID, next.ID, b.DueAt.Add(time.Hour), b.DueAt.Add(10*time.Hour))
		require.NoError(t, err)

		_, err = f.engine.Borrows.Extend(f.ctx, b.ID, 4, "more", lenderID)
		assert.ErrorIs(t, err, domain.ErrConflict)

		changes, extensions, err := f.engine.Borrows.History(f.ctx, b.ID, lenderID)
		require.NoError(t, err)
		assert.Empty(t, extensions)
		assert.Equal(t, domain.BorrowStatusBorrowed, changes[len(changes)-1].ToStatus)
		assert.Equal(t, domain.BorrowStatusApproved, changes[len(changes)-1].FromStatus)

		got, err := f.engine.Borrows.Get(f.ctx, b.ID, lenderID)
		require.NoError(t, err)
		assert.Equal(t, *b.DueAt, *got.DueAt)
	})
}

func TestBorrowLifecycle_ReadAccess(t *testing.T) {
	f := newFixture(t)
	b := f.requested(t, toolID)

	_, err := f.engine.Borrows.Get(f.ctx, b.ID, outsiderID)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	got, err := f.engine.Borrows.Get(f.ctx, b.ID, adminID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, _, err = f.engine.Borrows.History(f.ctx, b.ID, outsiderID)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)
}

func TestBorrowLifecycle_List(t *testing.T) {
	f := newFixture(t)
	f.requested(t, toolID)
	f.borrowed(t, freeToolID)

	all, total, err := f.engine.Borrows.ListForBorrower(f.ctx, borrowerID, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), total)
	assert.Len(t, all, 2)

	borrowed, total, err := f.engine.Borrows.ListForLender(f.ctx, lenderID, "borrowed", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), total)
	require.Len(t, borrowed, 1)
	assert.Equal(t, freeToolID, borrowed[0].ToolID)

	_, _, err = f.engine.Borrows.ListForLender(f.ctx, lenderID, "lost", 1, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	none, total, err := f.engine.Borrows.ListForBorrower(f.ctx, outsiderID, "", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)
}

func TestBorrowLifecycle_RemindOverdue(t *testing.T) {
	f := newFixture(t)
	b := f.borrowed(t, toolID)

	n, err := f.engine.Borrows.RemindOverdue(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(25 * time.Hour)
	n, err = f.engine.Borrows.RemindOverdue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	overdue := f.notes.ofType(domain.EventBorrowOverdue)
	require.Len(t, overdue, 1)
	assert.Equal(t, b.ID, overdue[0].BorrowID)
	assert.ElementsMatch(t, []int32{borrowerID, lenderID}, overdue[0].Recipients)
}

func TestBorrowLifecycle_NotificationFailureIgnored(t *testing.T) {
	f := newFixture(t)
	f.notes.err = errProvider

	b, err := f.engine.Borrows.Create(f.ctx, toolID, borrowerID, 24, "")
	require.NoError(t, err)
	assert.Equal(t, domain.BorrowStatusRequested, b.Status)
	assert.Len(t, f.notes.ofType(domain.EventBorrowRequested), 1)
}

func TestBorrowLifecycle_InfrastructureError(t *testing.T) {
	f := newFixture(t)
	b := f.requested(t, toolID)

	authz := new(MockAuthz)
	authz.On("IsParticipant", mock.Anything, b.ID, lenderID).Return(domain.Participation{}, errProvider)
	lifecycle := service.NewBorrowLifecycle(f.store, authz, nil, nil, f.clock, service.LifecycleConfig{})

	_, err := lifecycle.Approve(f.ctx, b.ID, lenderID)
	require.Error(t, err)
	assert.True(t, domain.IsInfrastructure(err))
	assert.False(t, domain.IsBusiness(err))
	assert.ErrorIs(t, err, errProvider)
	authz.AssertExpectations(t)
}
