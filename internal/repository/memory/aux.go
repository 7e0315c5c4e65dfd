package memory

import (
	"context"
	"sort"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

// Users returns the directory backed by this store.
func (s *Store) Users() repository.UserRepository { return &userRepo{s} }

// Notifications returns the inbox backed by this store.
func (s *Store) Notifications() repository.NotificationRepository { return &notificationRepo{s} }

// Ledger returns the committed ledger. Each call is its own transaction,
// so it must not be used from inside WithinTx.
func (s *Store) Ledger() repository.LedgerRepository { return &committedLedger{s} }

type userRepo struct{ s *Store }

func (r *userRepo) GetByID(_ context.Context, id int32) (*domain.User, error) {
	r.s.auxMu.Lock()
	defer r.s.auxMu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return &u, nil
}

type notificationRepo struct{ s *Store }

func (r *notificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.s.auxMu.Lock()
	defer r.s.auxMu.Unlock()
	r.s.auxID++
	n.ID = r.s.auxID
	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

func (r *notificationRepo) List(_ context.Context, userID int32, limit, offset int32) ([]domain.Notification, int32, error) {
	r.s.auxMu.Lock()
	defer r.s.auxMu.Unlock()
	var mine []domain.Notification
	for _, n := range r.s.notifications {
		if n.UserID == userID {
			mine = append(mine, n)
		}
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].ID > mine[j].ID })
	total := int32(len(mine))
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return mine[offset:end], total, nil
}

func (r *notificationRepo) MarkAsRead(_ context.Context, id, userID int32) error {
	r.s.auxMu.Lock()
	defer r.s.auxMu.Unlock()
	for i := range r.s.notifications {
		if r.s.notifications[i].ID == id && r.s.notifications[i].UserID == userID {
			r.s.notifications[i].IsRead = true
			return nil
		}
	}
	return notFound("notification", id)
}

type committedLedger struct{ s *Store }

func (l *committedLedger) CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	return l.s.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
		return r.Ledger.CreateTransaction(ctx, tx)
	})
}

func (l *committedLedger) ListByBorrow(ctx context.Context, borrowID int32) ([]domain.LedgerTransaction, error) {
	var out []domain.LedgerTransaction
	err := l.s.ReadOnly(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		out, err = r.Ledger.ListByBorrow(ctx, borrowID)
		return err
	})
	return out, err
}

type ledgerRepo struct{ st *state }

func (r *ledgerRepo) CreateTransaction(_ context.Context, tx *domain.LedgerTransaction) error {
	for _, booked := range r.st.ledger {
		if booked.Reference == tx.Reference {
			return domain.NewError(domain.KindConflict, "ledger reference %q already booked", tx.Reference)
		}
	}
	tx.ID = int32(r.st.id())
	r.st.ledger = append(r.st.ledger, *tx)
	return nil
}

func (r *ledgerRepo) ListByBorrow(_ context.Context, borrowID int32) ([]domain.LedgerTransaction, error) {
	var out []domain.LedgerTransaction
	for _, tx := range r.st.ledger {
		if tx.RelatedBorrowID != nil && *tx.RelatedBorrowID == borrowID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// Authorizer answers participation from the committed borrow table and
// admin status from the user directory. It must not be called from inside
// a transaction on the same store.
type Authorizer struct {
	s *Store
}

func (s *Store) Authorizer() *Authorizer { return &Authorizer{s: s} }

func (a *Authorizer) IsParticipant(_ context.Context, borrowID, actorID int32) (domain.Participation, error) {
	a.s.mu.Lock()
	b, ok := a.s.state.borrows[borrowID]
	a.s.mu.Unlock()
	if !ok {
		return domain.Participation{}, notFound("borrow request", borrowID)
	}
	return b.Participation(actorID), nil
}

func (a *Authorizer) IsAdmin(_ context.Context, actorID int32) (bool, error) {
	a.s.auxMu.Lock()
	defer a.s.auxMu.Unlock()
	return a.s.users[actorID].IsAdmin, nil
}
