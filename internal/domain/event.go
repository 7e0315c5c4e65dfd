package domain

import "time"

type EventType string

const (
	EventBorrowRequested  EventType = "BorrowRequested"
	EventBorrowApproved   EventType = "BorrowApproved"
	EventBorrowDenied     EventType = "BorrowDenied"
	EventBorrowCancelled  EventType = "BorrowCancelled"
	EventPickupCompleted  EventType = "PickupCompleted"
	EventReturnCompleted  EventType = "ReturnCompleted"
	EventBorrowExtended   EventType = "BorrowExtended"
	EventBorrowOverdue    EventType = "BorrowOverdue"
	EventDepositForfeited EventType = "DepositForfeited"
	EventRatingSubmitted  EventType = "RatingSubmitted"
)

// Event is published after the transaction that produced it commits.
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	BorrowID   int32             `json:"borrow_id"`
	ToolID     int32             `json:"tool_id"`
	ActorID    int32             `json:"actor_id"`
	Recipients []int32           `json:"recipients"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
