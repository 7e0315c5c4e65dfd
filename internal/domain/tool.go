package domain

// Tool is the read-only view of a listing the lifecycle needs. Listing
// fields are owned by the catalog; only Available is consulted here.
type Tool struct {
	ID               int32  `json:"id"`
	OwnerID          int32  `json:"owner_id"`
	Name             string `json:"name"`
	FeePerDayCents   int32  `json:"fee_per_day_cents"`
	DepositRequired  bool   `json:"deposit_required"`
	DepositCents     int32  `json:"deposit_cents"`
	DefaultLoanHours int32  `json:"default_loan_hours"`
	ConditionNotes   string `json:"condition_notes"`
	Available        bool   `json:"available"`
}

// FeeForHours charges whole days, minimum one.
func FeeForHours(feePerDayCents, hours int32) int32 {
	days := (hours + 23) / 24
	if days < 1 {
		days = 1
	}
	return feePerDayCents * days
}
