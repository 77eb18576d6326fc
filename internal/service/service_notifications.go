package service

import (
	"context"
	"fmt"

	"freelance/internal/models"
)

func (s *Service) GetNotifications(ctx context.Context, caller models.User, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	limit, offset, err := clampPage(limit, offset)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetNotifications: %w", err)
	}

	list, err := s.repo.GetNotifications(ctx, caller.Id, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetNotifications: %w", err)
	}
	return list, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, caller models.User, notificationId string) (models.Notification, error) {
	n, err := s.repo.MarkNotificationRead(ctx, notificationId, caller.Id)
	if err != nil {
		return n, fmt.Errorf("service.Service.MarkNotificationRead: %w", err)
	}
	return n, nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, caller models.User) (int64, error) {
	count, err := s.repo.MarkAllNotificationsRead(ctx, caller.Id)
	if err != nil {
		return 0, fmt.Errorf("service.Service.MarkAllNotificationsRead: %w", err)
	}
	return count, nil
}
