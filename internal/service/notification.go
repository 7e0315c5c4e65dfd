package service

import (
	"context"

	"toolshare-backend/internal/domain"
	"toolshare-backend/internal/repository"
)

type notificationService struct {
	noteRepo repository.NotificationRepository
}

func NewNotificationService(noteRepo repository.NotificationRepository) NotificationService {
	return &notificationService{noteRepo: noteRepo}
}

func (s *notificationService) GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, int32, error) {
	page, pageSize = normalizePage(page, pageSize)
	offset := (page - 1) * pageSize
	notes, total, err := s.noteRepo.List(ctx, userID, pageSize, offset)
	return notes, total, domain.Infrastructure("NotificationService.GetNotifications", err)
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, notificationID int32) error {
	return domain.Infrastructure("NotificationService.MarkAsRead", s.noteRepo.MarkAsRead(ctx, notificationID, userID))
}
