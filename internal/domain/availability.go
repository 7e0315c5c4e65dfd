package domain

import "time"

// Commitment reserves [StartAt, EndAt) of a tool for one borrow.
type Commitment struct {
	ID        int64     `json:"id"`
	ToolID    int32     `json:"tool_id"`
	BorrowID  int32     `json:"borrow_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Finalized bool      `json:"finalized"`
	CreatedAt time.Time `json:"created_at"`
}

// Overlaps uses half-open intervals: windows that only touch do not overlap.
func (c *Commitment) Overlaps(start, end time.Time) bool {
	return WindowsOverlap(c.StartAt, c.EndAt, start, end)
}

func WindowsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func ValidateWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return NewError(KindInvalidInput, "window bounds are required")
	}
	if !start.Before(end) {
		return NewError(KindInvalidInput, "window start must be before end")
	}
	return nil
}
