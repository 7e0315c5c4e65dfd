package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/logger"
	"toolshare-backend/internal/repository"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// inTx runs fn in a write transaction and classifies anything that is not
// a business error as an infrastructure failure.
func inTx(ctx context.Context, tx repository.Transactor, op string, fn repository.TxFunc) error {
	return domain.Infrastructure(op, tx.WithinTx(ctx, fn))
}

func readTx(ctx context.Context, tx repository.Transactor, op string, fn repository.TxFunc) error {
	return domain.Infrastructure(op, tx.ReadOnly(ctx, fn))
}

func enter(ctx context.Context, op string, args ...any) {
	logger.FromContext(ctx).Debug("→ Method entered", append([]any{"method", op, "event", "enter"}, args...)...)
}

// exit logs the outcome of op: business rejections at info, infrastructure
// failures at error.
func exit(ctx context.Context, op string, err error, args ...any) {
	log := logger.FromContext(ctx)
	switch {
	case err == nil:
		log.Debug("← Method exited", append([]any{"method", op, "event", "exit"}, args...)...)
	case domain.IsBusiness(err):
		log.Info("Operation rejected", append([]any{"method", op, "error", err}, args...)...)
	default:
		log.Error("← Method exited with error", append([]any{"method", op, "event", "exit", "error", err}, args...)...)
	}
}

func publish(ctx context.Context, n NotificationPort, e domain.Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var recipients []int32
	for _, id := range e.Recipients {
		if id != 0 {
			recipients = append(recipients, id)
		}
	}
	e.Recipients = recipients
	if err := n.Publish(ctx, e); err != nil {
		logger.FromContext(ctx).Warn("Event delivery failed", "event", e.Type, "borrowID", e.BorrowID, "error", err)
	}
}

func borrowEvent(t domain.EventType, b *domain.BorrowRequest, actorID int32, at time.Time, recipients ...int32) domain.Event {
	return domain.Event{
		Type:       t,
		BorrowID:   b.ID,
		ToolID:     b.ToolID,
		ActorID:    actorID,
		Recipients: recipients,
		Attributes: map[string]string{"status": string(b.Status)},
		OccurredAt: at,
	}
}

func requireReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", domain.NewError(domain.KindInvalidInput, "a reason is required")
	}
	return reason, nil
}

func normalizePage(page, pageSize int32) (int32, int32) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func participation(ctx context.Context, authz AuthorizationPort, borrowID, actorID int32) (domain.Participation, error) {
	p, err := authz.IsParticipant(ctx, borrowID, actorID)
	if err != nil {
		return domain.Participation{}, domain.Infrastructure("authorization", err)
	}
	return p, nil
}

func isAdmin(ctx context.Context, authz AuthorizationPort, actorID int32) (bool, error) {
	ok, err := authz.IsAdmin(ctx, actorID)
	if err != nil {
		return false, domain.Infrastructure("authorization", err)
	}
	return ok, nil
}

func notAuthorized(format string, args ...any) error {
	return domain.NewError(domain.KindNotAuthorized, format, args...)
}

// paymentError keeps the provider failure reachable through errors.As.
func paymentError(op string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) && de.Kind == domain.KindPaymentProvider {
		return err
	}
	return &domain.Error{Kind: domain.KindPaymentProvider, Message: fmt.Sprintf("%s failed", op), Err: err}
}
