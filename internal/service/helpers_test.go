package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository/memory"
	"toolshare-backend/internal/service"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	borrowerID int32 = 2
	lenderID   int32 = 3
	outsiderID int32 = 9
	adminID    int32 = 99
	toolID     int32 = 7
	freeToolID int32 = 8
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqCodes struct {
	mu sync.Mutex
	n  int
}

func (g *seqCodes) NewCode() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("AB%04d", g.n), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, e domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) ofType(t domain.EventType) []domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type MockPayments struct {
	mock.Mock
}

func (m *MockPayments) HoldDeposit(ctx context.Context, p service.DepositPayment) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *MockPayments) RefundDeposit(ctx context.Context, p service.DepositPayment) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *MockPayments) ForfeitDeposit(ctx context.Context, p service.DepositPayment) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

type MockAuthz struct {
	mock.Mock
}

func (m *MockAuthz) IsParticipant(ctx context.Context, borrowID, actorID int32) (domain.Participation, error) {
	args := m.Called(ctx, borrowID, actorID)
	return args.Get(0).(domain.Participation), args.Error(1)
}

func (m *MockAuthz) IsAdmin(ctx context.Context, actorID int32) (bool, error) {
	args := m.Called(ctx, actorID)
	return args.Bool(0), args.Error(1)
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	clock    *fakeClock
	notes    *recordingNotifier
	payments *MockPayments
	engine   *service.Engine
}

var handoverCfg = service.HandoverConfig{
	Policy:      domain.ExpiryPolicy{WarnAfter: 10 * time.Minute, ExpireAfter: 15 * time.Minute},
	MaxAttempts: 5,
	HashCost:    bcrypt.MinCost,
}

// newFixture wires the engine over a fresh memory store. Payments succeed
// unless the caller registers its own expectations first via setup.
func newFixture(t *testing.T, setup ...func(*MockPayments)) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.PutTool(domain.Tool{ID: toolID, OwnerID: lenderID, Name: "Drill", FeePerDayCents: 1000, DepositRequired: true, DepositCents: 5000, DefaultLoanHours: 24, Available: true})
	store.PutTool(domain.Tool{ID: freeToolID, OwnerID: lenderID, Name: "Ladder", DefaultLoanHours: 48, Available: true})
	store.PutUser(domain.User{ID: adminID, Name: "Admin", IsAdmin: true})

	payments := new(MockPayments)
	for _, fn := range setup {
		fn(payments)
	}
	payments.On("HoldDeposit", mock.Anything, mock.Anything).Return("hold-ref", nil).Maybe()
	payments.On("RefundDeposit", mock.Anything, mock.Anything).Return("refund-ref", nil).Maybe()
	payments.On("ForfeitDeposit", mock.Anything, mock.Anything).Return("forfeit-ref", nil).Maybe()

	clock := &fakeClock{now: t0}
	notes := &recordingNotifier{}
	engine := service.NewEngine(service.EngineDeps{
		Tx:       store,
		Authz:    store.Authorizer(),
		Payments: payments,
		Notifier: notes,
		Clock:    clock,
		Codes:    &seqCodes{},
	}, service.LifecycleConfig{ConflictRetries: 1, MaxDurationHours: 720}, handoverCfg)

	return &fixture{ctx: context.Background(), store: store, clock: clock, notes: notes, payments: payments, engine: engine}
}

func (f *fixture) requested(t *testing.T, tool int32) *domain.BorrowRequest {
	t.Helper()
	b, err := f.engine.Borrows.Create(f.ctx, tool, borrowerID, 24, "weekend project")
	require.NoError(t, err)
	return b
}

// detached returns a requested borrow whose window has been released again.
func (f *fixture) detached(t *testing.T, tool int32) *domain.BorrowRequest {
	t.Helper()
	b := f.requested(t, tool)
	now := f.clock.Now()
	list, err := f.engine.Availability.Commitments(f.ctx, tool, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	for _, c := range list {
		if c.BorrowID == b.ID {
			require.NoError(t, f.engine.Availability.Release(f.ctx, c.ID))
			return b
		}
	}
	t.Fatalf("borrow %d holds no commitment", b.ID)
	return nil
}

func (f *fixture) approved(t *testing.T, tool int32) *domain.BorrowRequest {
	t.Helper()
	b := f.requested(t, tool)
	b, err := f.engine.Borrows.Approve(f.ctx, b.ID, lenderID)
	require.NoError(t, err)
	return b
}

func (f *fixture) handover(t *testing.T, borrowID int32, typ domain.HandoverType, generator, verifier int32) {
	t.Helper()
	v, err := f.engine.Handover.Generate(f.ctx, borrowID, typ, generator)
	require.NoError(t, err)
	require.NoError(t, f.engine.Handover.Verify(f.ctx, borrowID, typ, v.Code, verifier))
}

func (f *fixture) borrowed(t *testing.T, tool int32) *domain.BorrowRequest {
	t.Helper()
	b := f.approved(t, tool)
	f.handover(t, b.ID, domain.HandoverPickup, lenderID, borrowerID)
	b, err := f.engine.Borrows.CompletePickup(f.ctx, b.ID, borrowerID)
	require.NoError(t, err)
	return b
}

func (f *fixture) returned(t *testing.T, tool int32) *domain.BorrowRequest {
	t.Helper()
	b := f.borrowed(t, tool)
	f.handover(t, b.ID, domain.HandoverReturn, borrowerID, lenderID)
	b, err := f.engine.Borrows.CompleteReturn(f.ctx, b.ID, lenderID)
	require.NoError(t, err)
	return b
}

var errProvider = errors.New("provider unavailable")
