package notify

import (
	"context"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

// InboxSink stores each message as an in-app notification row.
type InboxSink struct {
	notes repository.NotificationRepository
}

func NewInboxSink(notes repository.NotificationRepository) *InboxSink {
	return &InboxSink{notes: notes}
}

func (s *InboxSink) Name() string { return "inbox" }

func (s *InboxSink) Deliver(ctx context.Context, msg Message) error {
	attrs := map[string]string{
		"event_id": msg.Event.ID,
		"type":     string(msg.Event.Type),
	}
	for k, v := range msg.Event.Attributes {
		attrs[k] = v
	}
	if msg.Event.BorrowID != 0 {
		attrs["borrow_id"] = itoa(msg.Event.BorrowID)
	}
	return s.notes.Create(ctx, &domain.Notification{
		UserID:     msg.Recipient.ID,
		Title:      msg.Title,
		Message:    msg.Body,
		Attributes: attrs,
	})
}
