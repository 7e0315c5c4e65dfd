package domain

import "time"

type DepositStatus string

const (
	DepositStatusHeld      DepositStatus = "held"
	DepositStatusReleased  DepositStatus = "released"
	DepositStatusForfeited DepositStatus = "forfeited"
)

type Deposit struct {
	ID             int64         `json:"id"`
	BorrowID       int32         `json:"borrow_id"`
	PayerID        int32         `json:"payer_id"`
	PayeeID        int32         `json:"payee_id"`
	AmountCents    int32         `json:"amount_cents"`
	Status         DepositStatus `json:"status"`
	HeldAt         time.Time     `json:"held_at"`
	SettledAt      *time.Time    `json:"settled_at,omitempty"`
	SettledBy      *int32        `json:"settled_by,omitempty"`
	ForfeitedCents int32         `json:"forfeited_cents"`
	ForfeitReason  string        `json:"forfeit_reason,omitempty"`
	ProviderRef    string        `json:"provider_ref,omitempty"`
}

func (d *Deposit) Settled() bool {
	return d.Status != DepositStatusHeld
}
