package domain

import "time"

type HandoverType string

const (
	HandoverPickup HandoverType = "pickup"
	HandoverReturn HandoverType = "return"
)

func ParseHandoverType(s string) (HandoverType, error) {
	switch t := HandoverType(s); t {
	case HandoverPickup, HandoverReturn:
		return t, nil
	}
	return "", NewError(KindInvalidInput, "unknown handover type %q", s)
}

// RequiredStatus is the borrow status in which a code of this type may be issued.
func (t HandoverType) RequiredStatus() BorrowStatus {
	if t == HandoverReturn {
		return BorrowStatusBorrowed
	}
	return BorrowStatusApproved
}

// GeneratorOf returns the participant expected to issue the code: whoever
// currently holds the tool. The lender hands a pickup code to the
// borrower; the borrower hands a return code to the lender.
func (t HandoverType) GeneratorOf(b *BorrowRequest) int32 {
	if t == HandoverReturn {
		return b.BorrowerID
	}
	return b.LenderID
}

type CodeStatus string

const (
	CodeStatusActive       CodeStatus = "ACTIVE"
	CodeStatusExpiringSoon CodeStatus = "EXPIRING SOON"
	CodeStatusExpired      CodeStatus = "EXPIRED"
	CodeStatusConsumed     CodeStatus = "CONSUMED"
)

// HandoverCode stores only a hash of the code; the plaintext is returned
// once, to the generator.
type HandoverCode struct {
	ID          int64        `json:"id"`
	BorrowID    int32        `json:"borrow_id"`
	Type        HandoverType `json:"type"`
	CodeHash    string       `json:"-"`
	GeneratorID int32        `json:"generator_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	ConsumedAt  *time.Time   `json:"consumed_at,omitempty"`
	ConsumedBy  *int32       `json:"consumed_by,omitempty"`
	Attempts    int32        `json:"attempts"`
}

func (c *HandoverCode) Consumed() bool {
	return c.ConsumedAt != nil
}

// ExpiryPolicy holds the configured thresholds, measured from generation.
type ExpiryPolicy struct {
	WarnAfter   time.Duration
	ExpireAfter time.Duration
}

func (p ExpiryPolicy) StatusAt(generatedAt, now time.Time) CodeStatus {
	elapsed := now.Sub(generatedAt)
	switch {
	case elapsed > p.ExpireAfter:
		return CodeStatusExpired
	case elapsed >= p.WarnAfter:
		return CodeStatusExpiringSoon
	default:
		return CodeStatusActive
	}
}

func (p ExpiryPolicy) Expired(generatedAt, now time.Time) bool {
	return p.StatusAt(generatedAt, now) == CodeStatusExpired
}

// Remaining is never negative.
func (p ExpiryPolicy) Remaining(generatedAt, now time.Time) time.Duration {
	left := p.ExpireAfter - now.Sub(generatedAt)
	if left < 0 {
		return 0
	}
	return left
}

func (c *HandoverCode) StatusAt(p ExpiryPolicy, now time.Time) CodeStatus {
	if c.Consumed() {
		return CodeStatusConsumed
	}
	return p.StatusAt(c.GeneratedAt, now)
}

// CodeView is what a participant may see about an issued code.
type CodeView struct {
	BorrowID    int32         `json:"borrow_id"`
	Type        HandoverType  `json:"type"`
	Status      CodeStatus    `json:"status"`
	GeneratorID int32         `json:"generator_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	Remaining   time.Duration `json:"remaining"`
	// Code is set only in the response to the generator's own request.
	Code string `json:"code,omitempty"`
}
