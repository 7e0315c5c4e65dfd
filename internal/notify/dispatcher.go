// Package notify delivers lifecycle events to participants.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/logger"
	"toolshare-backend/internal/repository"
	"toolshare-backend/internal/service"
)

// Message is one rendered event addressed to one participant.
type Message struct {
	Event     domain.Event
	Recipient domain.User
	Title     string
	Body      string
}

// Sink is a delivery channel. A failing sink does not stop the others.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// Dispatcher implements service.NotificationPort by fanning each event
// out to every configured sink, once per recipient.
type Dispatcher struct {
	users repository.UserRepository
	sinks []Sink
}

var _ service.NotificationPort = (*Dispatcher)(nil)

func NewDispatcher(users repository.UserRepository, sinks ...Sink) *Dispatcher {
	return &Dispatcher{users: users, sinks: sinks}
}

func (d *Dispatcher) Publish(ctx context.Context, e domain.Event) error {
	log := logger.FromContext(ctx)
	title, body := Render(e)

	var errs []error
	for _, id := range e.Recipients {
		u, err := d.users.GetByID(ctx, id)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				errs = append(errs, fmt.Errorf("lookup user %d: %w", id, err))
				continue
			}
			u = &domain.User{ID: id}
		}
		msg := Message{Event: e, Recipient: *u, Title: title, Body: body}
		for _, s := range d.sinks {
			if err := s.Deliver(ctx, msg); err != nil {
				log.Warn("Notification sink failed", "sink", s.Name(), "event", e.Type, "userID", id, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Render produces the human-readable title and body for an event.
func Render(e domain.Event) (string, string) {
	switch e.Type {
	case domain.EventBorrowRequested:
		return "New borrow request", fmt.Sprintf("Someone asked to borrow your tool (request #%d).", e.BorrowID)
	case domain.EventBorrowApproved:
		return "Borrow request approved", fmt.Sprintf("Your request #%d was approved. Arrange the pickup with the owner.", e.BorrowID)
	case domain.EventBorrowDenied:
		return "Borrow request denied", fmt.Sprintf("Your request #%d was denied: %s", e.BorrowID, e.Attributes["reason"])
	case domain.EventBorrowCancelled:
		return "Borrow cancelled", fmt.Sprintf("Borrow #%d was cancelled: %s", e.BorrowID, e.Attributes["reason"])
	case domain.EventPickupCompleted:
		return "Pickup confirmed", fmt.Sprintf("Borrow #%d is underway. Due back %s.", e.BorrowID, e.Attributes["due_at"])
	case domain.EventReturnCompleted:
		return "Return confirmed", fmt.Sprintf("Borrow #%d is complete. You can now leave a rating.", e.BorrowID)
	case domain.EventBorrowExtended:
		return "Borrow extended", fmt.Sprintf("Borrow #%d now ends %s.", e.BorrowID, e.Attributes["due_at"])
	case domain.EventBorrowOverdue:
		return "Borrow overdue", fmt.Sprintf("Borrow #%d was due %s.", e.BorrowID, e.Attributes["due_at"])
	case domain.EventDepositForfeited:
		return "Deposit forfeited", fmt.Sprintf("%s cents of the deposit for borrow #%d were forfeited: %s",
			e.Attributes["forfeited_cents"], e.BorrowID, e.Attributes["reason"])
	case domain.EventRatingSubmitted:
		return "New rating", fmt.Sprintf("You received a %s-star rating for borrow #%d.", e.Attributes["score"], e.BorrowID)
	}
	return string(e.Type), fmt.Sprintf("Update on borrow #%d.", e.BorrowID)
}

func itoa(n int32) string {
	return strconv.Itoa(int(n))
}
