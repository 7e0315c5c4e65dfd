// Package memory is an in-process implementation of the repository
// interfaces. Transactions are serialized by a single mutex and run against
// a private copy of the state that replaces the live state on commit, so a
// failed transaction leaves no trace.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

type state struct {
	tools       map[int32]domain.Tool
	borrows     map[int32]domain.BorrowRequest
	history     []domain.StatusChange
	extensions  []domain.ExtensionRecord
	commitments map[int64]domain.Commitment
	codes       map[int64]domain.HandoverCode
	deposits    map[int32]domain.Deposit
	userRatings []domain.UserRating
	toolRatings map[int32]domain.ToolRating
	ledger      []domain.LedgerTransaction
	nextID      int64
}

func newState() *state {
	return &state{
		tools:       make(map[int32]domain.Tool),
		borrows:     make(map[int32]domain.BorrowRequest),
		commitments: make(map[int64]domain.Commitment),
		codes:       make(map[int64]domain.HandoverCode),
		deposits:    make(map[int32]domain.Deposit),
		toolRatings: make(map[int32]domain.ToolRating),
	}
}

func (s *state) clone() *state {
	c := &state{
		tools:       make(map[int32]domain.Tool, len(s.tools)),
		borrows:     make(map[int32]domain.BorrowRequest, len(s.borrows)),
		history:     append([]domain.StatusChange(nil), s.history...),
		extensions:  append([]domain.ExtensionRecord(nil), s.extensions...),
		commitments: make(map[int64]domain.Commitment, len(s.commitments)),
		codes:       make(map[int64]domain.HandoverCode, len(s.codes)),
		deposits:    make(map[int32]domain.Deposit, len(s.deposits)),
		userRatings: append([]domain.UserRating(nil), s.userRatings...),
		toolRatings: make(map[int32]domain.ToolRating, len(s.toolRatings)),
		ledger:      append([]domain.LedgerTransaction(nil), s.ledger...),
		nextID:      s.nextID,
	}
	for k, v := range s.tools {
		c.tools[k] = v
	}
	for k, v := range s.borrows {
		c.borrows[k] = v
	}
	for k, v := range s.commitments {
		c.commitments[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	for k, v := range s.deposits {
		c.deposits[k] = v
	}
	for k, v := range s.toolRatings {
		c.toolRatings[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store holds the lifecycle state plus the user directory and inbox,
// which are written outside lifecycle transactions.
type Store struct {
	mu    sync.Mutex
	state *state

	auxMu         sync.Mutex
	users         map[int32]domain.User
	notifications []domain.Notification
	auxID         int32
}

func NewStore() *Store {
	return &Store{
		state: newState(),
		users: make(map[int32]domain.User),
	}
}

// PutTool inserts or replaces a tool listing.
func (s *Store) PutTool(t domain.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.tools[t.ID] = t
}

// PutUser inserts or replaces a directory entry.
func (s *Store) PutUser(u domain.User) {
	s.auxMu.Lock()
	defer s.auxMu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, reposFor(work)); err != nil {
		return err
	}
	s.state = work
	return nil
}

// ReadOnly runs fn against a copy that is always discarded.
func (s *Store) ReadOnly(ctx context.Context, fn repository.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, reposFor(s.state.clone()))
}

func reposFor(st *state) repository.Repos {
	return repository.Repos{
		Tools:       &toolRepo{st},
		Borrows:     &borrowRepo{st},
		Commitments: &commitmentRepo{st},
		Handovers:   &handoverRepo{st},
		Deposits:    &depositRepo{st},
		Ratings:     &ratingRepo{st},
		Ledger:      &ledgerRepo{st},
	}
}

func notFound(what string, id interface{}) error {
	return domain.NewError(domain.KindNotFound, "%s %v not found", what, id)
}

type toolRepo struct{ st *state }

func (r *toolRepo) GetByID(_ context.Context, id int32) (*domain.Tool, error) {
	t, ok := r.st.tools[id]
	if !ok {
		return nil, notFound("tool", id)
	}
	return &t, nil
}

func (r *toolRepo) GetForUpdate(ctx context.Context, id int32) (*domain.Tool, error) {
	return r.GetByID(ctx, id)
}

type borrowRepo struct{ st *state }

func (r *borrowRepo) Create(_ context.Context, b *domain.BorrowRequest) error {
	b.ID = int32(r.st.id())
	r.st.borrows[b.ID] = *b
	return nil
}

func (r *borrowRepo) GetByID(_ context.Context, id int32) (*domain.BorrowRequest, error) {
	b, ok := r.st.borrows[id]
	if !ok {
		return nil, notFound("borrow request", id)
	}
	return &b, nil
}

func (r *borrowRepo) GetForUpdate(ctx context.Context, id int32) (*domain.BorrowRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *borrowRepo) Update(_ context.Context, b *domain.BorrowRequest) error {
	if _, ok := r.st.borrows[b.ID]; !ok {
		return notFound("borrow request", b.ID)
	}
	r.st.borrows[b.ID] = *b
	return nil
}

func (r *borrowRepo) list(match func(domain.BorrowRequest) bool, status string, page, pageSize int32) ([]domain.BorrowRequest, int32) {
	var all []domain.BorrowRequest
	for _, b := range r.st.borrows {
		if match(b) && (status == "" || string(b.Status) == status) {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].RequestedAt.Equal(all[j].RequestedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].RequestedAt.After(all[j].RequestedAt)
	})
	total := int32(len(all))
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total
}

func (r *borrowRepo) ListByBorrower(_ context.Context, borrowerID int32, status string, page, pageSize int32) ([]domain.BorrowRequest, int32, error) {
	out, total := r.list(func(b domain.BorrowRequest) bool { return b.BorrowerID == borrowerID }, status, page, pageSize)
	return out, total, nil
}

func (r *borrowRepo) ListByLender(_ context.Context, lenderID int32, status string, page, pageSize int32) ([]domain.BorrowRequest, int32, error) {
	out, total := r.list(func(b domain.BorrowRequest) bool { return b.LenderID == lenderID }, status, page, pageSize)
	return out, total, nil
}

func (r *borrowRepo) ListOverdue(_ context.Context, now time.Time) ([]domain.BorrowRequest, error) {
	var out []domain.BorrowRequest
	for _, b := range r.st.borrows {
		if b.IsOverdue(now) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(*out[j].DueAt) })
	return out, nil
}

func (r *borrowRepo) AppendHistory(_ context.Context, c *domain.StatusChange) error {
	c.ID = r.st.id()
	r.st.history = append(r.st.history, *c)
	return nil
}

func (r *borrowRepo) ListHistory(_ context.Context, borrowID int32) ([]domain.StatusChange, error) {
	var out []domain.StatusChange
	for _, c := range r.st.history {
		if c.BorrowID == borrowID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *borrowRepo) AppendExtension(_ context.Context, e *domain.ExtensionRecord) error {
	e.ID = r.st.id()
	r.st.extensions = append(r.st.extensions, *e)
	return nil
}

func (r *borrowRepo) ListExtensions(_ context.Context, borrowID int32) ([]domain.ExtensionRecord, error) {
	var out []domain.ExtensionRecord
	for _, e := range r.st.extensions {
		if e.BorrowID == borrowID {
			out = append(out, e)
		}
	}
	return out, nil
}

type commitmentRepo struct{ st *state }

// collides mirrors the exclusion constraint of the SQL schema.
func (r *commitmentRepo) collides(toolID int32, start, end time.Time, skipID int64) bool {
	for _, c := range r.st.commitments {
		if c.ID != skipID && c.ToolID == toolID && c.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (r *commitmentRepo) Insert(_ context.Context, c *domain.Commitment) error {
	if err := domain.ValidateWindow(c.StartAt, c.EndAt); err != nil {
		return err
	}
	for _, existing := range r.st.commitments {
		if existing.BorrowID == c.BorrowID {
			return domain.NewError(domain.KindConflict, "borrow %d already holds a commitment", c.BorrowID)
		}
	}
	if r.collides(c.ToolID, c.StartAt, c.EndAt, 0) {
		return domain.NewError(domain.KindConflict, "tool %d is already committed in that window", c.ToolID)
	}
	c.ID = r.st.id()
	r.st.commitments[c.ID] = *c
	return nil
}

func (r *commitmentRepo) UpdateWindow(_ context.Context, id int64, start, end time.Time, finalized bool) error {
	c, ok := r.st.commitments[id]
	if !ok {
		return notFound("commitment", id)
	}
	if err := domain.ValidateWindow(start, end); err != nil {
		return err
	}
	if r.collides(c.ToolID, start, end, id) {
		return domain.NewError(domain.KindConflict, "tool %d is already committed in that window", c.ToolID)
	}
	c.StartAt, c.EndAt, c.Finalized = start, end, finalized
	r.st.commitments[id] = c
	return nil
}

func (r *commitmentRepo) GetByID(_ context.Context, id int64) (*domain.Commitment, error) {
	c, ok := r.st.commitments[id]
	if !ok {
		return nil, notFound("commitment", id)
	}
	return &c, nil
}

func (r *commitmentRepo) GetByBorrow(_ context.Context, borrowID int32) (*domain.Commitment, error) {
	for _, c := range r.st.commitments {
		if c.BorrowID == borrowID {
			return &c, nil
		}
	}
	return nil, notFound("commitment for borrow", borrowID)
}

func (r *commitmentRepo) ListOverlapping(_ context.Context, toolID int32, start, end time.Time, excludeBorrowID int32) ([]domain.Commitment, error) {
	var out []domain.Commitment
	for _, c := range r.st.commitments {
		if c.ToolID != toolID || (excludeBorrowID != 0 && c.BorrowID == excludeBorrowID) {
			continue
		}
		if c.Overlaps(start, end) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (r *commitmentRepo) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := r.st.commitments[id]; !ok {
		return false, nil
	}
	delete(r.st.commitments, id)
	return true, nil
}

type handoverRepo struct{ st *state }

func (r *handoverRepo) Insert(_ context.Context, c *domain.HandoverCode) error {
	for _, existing := range r.st.codes {
		if existing.BorrowID == c.BorrowID && existing.Type == c.Type && !existing.Consumed() {
			return domain.NewError(domain.KindConflict, "an active %s code already exists for borrow %d", c.Type, c.BorrowID)
		}
	}
	c.ID = r.st.id()
	r.st.codes[c.ID] = *c
	return nil
}

func (r *handoverRepo) GetActive(_ context.Context, borrowID int32, typ domain.HandoverType) (*domain.HandoverCode, error) {
	for _, c := range r.st.codes {
		if c.BorrowID == borrowID && c.Type == typ && !c.Consumed() {
			return &c, nil
		}
	}
	return nil, notFound(string(typ)+" code for borrow", borrowID)
}

func (r *handoverRepo) GetLatest(_ context.Context, borrowID int32, typ domain.HandoverType) (*domain.HandoverCode, error) {
	var latest *domain.HandoverCode
	for _, c := range r.st.codes {
		if c.BorrowID != borrowID || c.Type != typ {
			continue
		}
		if latest == nil || c.ID > latest.ID {
			c := c
			latest = &c
		}
	}
	if latest == nil {
		return nil, notFound(string(typ)+" code for borrow", borrowID)
	}
	return latest, nil
}

func (r *handoverRepo) DeleteActive(_ context.Context, borrowID int32, typ domain.HandoverType) error {
	for id, c := range r.st.codes {
		if c.BorrowID == borrowID && c.Type == typ && !c.Consumed() {
			delete(r.st.codes, id)
		}
	}
	return nil
}

func (r *handoverRepo) MarkConsumed(_ context.Context, id int64, consumedBy int32, at time.Time) error {
	c, ok := r.st.codes[id]
	if !ok {
		return notFound("handover code", id)
	}
	c.ConsumedAt = &at
	c.ConsumedBy = &consumedBy
	r.st.codes[id] = c
	return nil
}

func (r *handoverRepo) IncrementAttempts(_ context.Context, id int64) (int32, error) {
	c, ok := r.st.codes[id]
	if !ok {
		return 0, notFound("handover code", id)
	}
	c.Attempts++
	r.st.codes[id] = c
	return c.Attempts, nil
}

func (r *handoverRepo) DeleteUnconsumedBefore(_ context.Context, generatedBefore time.Time) (int64, error) {
	var n int64
	for id, c := range r.st.codes {
		if !c.Consumed() && c.GeneratedAt.Before(generatedBefore) {
			delete(r.st.codes, id)
			n++
		}
	}
	return n, nil
}

type depositRepo struct{ st *state }

func (r *depositRepo) Insert(_ context.Context, d *domain.Deposit) error {
	if _, ok := r.st.deposits[d.BorrowID]; ok {
		return domain.NewError(domain.KindAlreadyHeld, "borrow %d already has a deposit", d.BorrowID)
	}
	d.ID = r.st.id()
	r.st.deposits[d.BorrowID] = *d
	return nil
}

func (r *depositRepo) GetByBorrow(_ context.Context, borrowID int32) (*domain.Deposit, error) {
	d, ok := r.st.deposits[borrowID]
	if !ok {
		return nil, notFound("deposit for borrow", borrowID)
	}
	return &d, nil
}

func (r *depositRepo) GetByBorrowForUpdate(ctx context.Context, borrowID int32) (*domain.Deposit, error) {
	return r.GetByBorrow(ctx, borrowID)
}

func (r *depositRepo) Update(_ context.Context, d *domain.Deposit) error {
	if _, ok := r.st.deposits[d.BorrowID]; !ok {
		return notFound("deposit for borrow", d.BorrowID)
	}
	r.st.deposits[d.BorrowID] = *d
	return nil
}

type ratingRepo struct{ st *state }

func (r *ratingRepo) InsertUserRating(_ context.Context, ur *domain.UserRating) error {
	for _, existing := range r.st.userRatings {
		if existing.BorrowID == ur.BorrowID && existing.RaterID == ur.RaterID {
			return domain.NewError(domain.KindAlreadyRated, "user %d already rated borrow %d", ur.RaterID, ur.BorrowID)
		}
	}
	ur.ID = r.st.id()
	r.st.userRatings = append(r.st.userRatings, *ur)
	return nil
}

func (r *ratingRepo) InsertToolRating(_ context.Context, tr *domain.ToolRating) error {
	if _, ok := r.st.toolRatings[tr.BorrowID]; ok {
		return domain.NewError(domain.KindAlreadyRated, "tool of borrow %d already rated", tr.BorrowID)
	}
	tr.ID = r.st.id()
	r.st.toolRatings[tr.BorrowID] = *tr
	return nil
}

func (r *ratingRepo) HasUserRating(_ context.Context, borrowID, raterID int32) (bool, error) {
	for _, existing := range r.st.userRatings {
		if existing.BorrowID == borrowID && existing.RaterID == raterID {
			return true, nil
		}
	}
	return false, nil
}

func (r *ratingRepo) HasToolRating(_ context.Context, borrowID int32) (bool, error) {
	_, ok := r.st.toolRatings[borrowID]
	return ok, nil
}

func (r *ratingRepo) ListUserRatings(_ context.Context, borrowID int32) ([]domain.UserRating, error) {
	var out []domain.UserRating
	for _, ur := range r.st.userRatings {
		if ur.BorrowID == borrowID {
			out = append(out, ur)
		}
	}
	return out, nil
}
