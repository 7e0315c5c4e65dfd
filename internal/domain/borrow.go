package domain

import "time"

type BorrowStatus string

const (
	BorrowStatusRequested BorrowStatus = "requested"
	BorrowStatusApproved  BorrowStatus = "approved"
	BorrowStatusDenied    BorrowStatus = "denied"
	BorrowStatusCancelled BorrowStatus = "cancelled"
	BorrowStatusBorrowed  BorrowStatus = "borrowed"
	BorrowStatusReturned  BorrowStatus = "returned"
)

// borrowTransitions is the complete edge list of the borrow state machine.
var borrowTransitions = map[BorrowStatus][]BorrowStatus{
	BorrowStatusRequested: {BorrowStatusApproved, BorrowStatusDenied, BorrowStatusCancelled},
	BorrowStatusApproved:  {BorrowStatusBorrowed, BorrowStatusCancelled},
	BorrowStatusBorrowed:  {BorrowStatusReturned},
}

func ParseBorrowStatus(s string) (BorrowStatus, error) {
	st := BorrowStatus(s)
	if !st.Valid() {
		return "", NewError(KindInvalidInput, "unknown borrow status %q", s)
	}
	return st, nil
}

func (s BorrowStatus) Valid() bool {
	switch s {
	case BorrowStatusRequested, BorrowStatusApproved, BorrowStatusDenied,
		BorrowStatusCancelled, BorrowStatusBorrowed, BorrowStatusReturned:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s BorrowStatus) IsTerminal() bool {
	return s.Valid() && len(borrowTransitions[s]) == 0
}

func (s BorrowStatus) CanTransitionTo(next BorrowStatus) bool {
	for _, to := range borrowTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

type BorrowRequest struct {
	ID            int32        `json:"id"`
	ToolID        int32        `json:"tool_id"`
	BorrowerID    int32        `json:"borrower_id"`
	LenderID      int32        `json:"lender_id"`
	Status        BorrowStatus `json:"status"`
	DurationHours int32        `json:"duration_hours"`
	Notes         string       `json:"notes"`
	// Terms snapshot taken from the tool when the request is created.
	// Pickup and settlement use these, never the live listing.
	FeePerDayCents  int32 `json:"fee_per_day_cents"`
	DepositRequired bool  `json:"deposit_required"`
	DepositCents    int32 `json:"deposit_cents"`

	RequestedAt time.Time  `json:"requested_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	BorrowedAt  *time.Time `json:"borrowed_at,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	ClosedBy    *int32     `json:"closed_by,omitempty"`
	CloseReason string     `json:"close_reason,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TransitionTo moves the request to next or returns an InvalidTransition error.
func (b *BorrowRequest) TransitionTo(next BorrowStatus, at time.Time) error {
	if !b.Status.CanTransitionTo(next) {
		return NewError(KindInvalidTransition, "borrow %d cannot move from %s to %s", b.ID, b.Status, next)
	}
	b.Status = next
	b.UpdatedAt = at
	return nil
}

// Participation reports how actorID relates to this borrow.
func (b *BorrowRequest) Participation(actorID int32) Participation {
	return Participation{
		IsBorrower: actorID == b.BorrowerID,
		IsLender:   actorID == b.LenderID,
	}
}

// Counterparty returns the other participant, or 0 if actorID is not one.
func (b *BorrowRequest) Counterparty(actorID int32) int32 {
	switch actorID {
	case b.BorrowerID:
		return b.LenderID
	case b.LenderID:
		return b.BorrowerID
	}
	return 0
}

func (b *BorrowRequest) IsOverdue(now time.Time) bool {
	return b.Status == BorrowStatusBorrowed && b.DueAt != nil && now.After(*b.DueAt)
}

func (b *BorrowRequest) EstimatedFeeCents() int32 {
	return FeeForHours(b.FeePerDayCents, b.DurationHours)
}

// Participation is the answer of an authorization lookup.
type Participation struct {
	IsBorrower bool `json:"is_borrower"`
	IsLender   bool `json:"is_lender"`
}

func (p Participation) IsParticipant() bool {
	return p.IsBorrower || p.IsLender
}

// StatusChange is one row of the borrow audit trail. FromStatus is empty
// for the row written at creation. ActorID 0 marks a system action.
type StatusChange struct {
	ID         int64        `json:"id"`
	BorrowID   int32        `json:"borrow_id"`
	FromStatus BorrowStatus `json:"from_status,omitempty"`
	ToStatus   BorrowStatus `json:"to_status"`
	ActorID    int32        `json:"actor_id"`
	Reason     string       `json:"reason,omitempty"`
	ChangedAt  time.Time    `json:"changed_at"`
}

// ExtensionRecord audits one approved extension of a running loan.
type ExtensionRecord struct {
	ID            int64     `json:"id"`
	BorrowID      int32     `json:"borrow_id"`
	ExtraHours    int32     `json:"extra_hours"`
	Reason        string    `json:"reason"`
	ApprovedBy    int32     `json:"approved_by"`
	PreviousDueAt time.Time `json:"previous_due_at"`
	NewDueAt      time.Time `json:"new_due_at"`
	CreatedAt     time.Time `json:"created_at"`
}
