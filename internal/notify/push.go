package notify

import (
	"context"
	"fmt"

	"toolshare-backend/internal/logger"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushSink publishes each message to the recipient's FCM topic,
// "<prefix>user-<id>". Devices subscribe to their own topic at login.
type PushSink struct {
	client      messenger
	topicPrefix string
}

func NewPushSink(ctx context.Context, credentialsFile, topicPrefix string) (*PushSink, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return &PushSink{client: client, topicPrefix: topicPrefix}, nil
}

func (s *PushSink) Name() string { return "push" }

func (s *PushSink) Topic(userID int32) string {
	return s.topicPrefix + "user-" + itoa(userID)
}

func (s *PushSink) Deliver(ctx context.Context, msg Message) error {
	data := map[string]string{
		"event_id":  msg.Event.ID,
		"type":      string(msg.Event.Type),
		"borrow_id": itoa(msg.Event.BorrowID),
	}
	topic := s.Topic(msg.Recipient.ID)
	logger.ExternalServiceCall("fcm", "Send", "topic", topic, "event", msg.Event.Type)
	id, err := s.client.Send(ctx, &messaging.Message{
		Topic:        topic,
		Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
		Data:         data,
	})
	logger.ExternalServiceResult("fcm", "Send", err, "messageID", id)
	return err
}
