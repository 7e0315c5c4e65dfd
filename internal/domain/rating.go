package domain

import "time"

const (
	MinRatingScore = 1
	MaxRatingScore = 5
)

// RatingRole is the role the rated participant played in the borrow.
type RatingRole string

const (
	RatingRoleLender   RatingRole = "lender"
	RatingRoleBorrower RatingRole = "borrower"
)

func ParseRatingRole(s string) (RatingRole, error) {
	switch r := RatingRole(s); r {
	case RatingRoleLender, RatingRoleBorrower:
		return r, nil
	}
	return "", NewError(KindInvalidInput, "role must be lender or borrower, got %q", s)
}

func ValidateScore(score int32) error {
	if score < MinRatingScore || score > MaxRatingScore {
		return NewError(KindInvalidInput, "score must be between %d and %d", MinRatingScore, MaxRatingScore)
	}
	return nil
}

type UserRating struct {
	ID        int64      `json:"id"`
	BorrowID  int32      `json:"borrow_id"`
	RaterID   int32      `json:"rater_id"`
	TargetID  int32      `json:"target_id"`
	Role      RatingRole `json:"role"`
	Score     int32      `json:"score"`
	Review    string     `json:"review"`
	CreatedAt time.Time  `json:"created_at"`
}

type ToolRating struct {
	ID        int64     `json:"id"`
	BorrowID  int32     `json:"borrow_id"`
	ToolID    int32     `json:"tool_id"`
	RaterID   int32     `json:"rater_id"`
	Score     int32     `json:"score"`
	Review    string    `json:"review"`
	CreatedAt time.Time `json:"created_at"`
}

type RatingEligibility struct {
	CanRateUser bool `json:"can_rate_user"`
	CanRateTool bool `json:"can_rate_tool"`
}
