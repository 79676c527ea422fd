// Package notification 站内通知：持久化、未读计数与实时推送
package notification

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"careerhub/internal/apperr"
	"careerhub/internal/model"
	"careerhub/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Pusher 向用户的所有在线连接推送消息
type Pusher interface {
	PushNotification(userID uuid.UUID, n *model.Notification)
	PushUnreadCount(userID uuid.UUID, count int64)
}

type Service struct {
	repo   repository.NotificationRepository
	pusher Pusher
	logger *zap.Logger
}

func NewService(repo repository.NotificationRepository, pusher Pusher, logger *zap.Logger) *Service {
	return &Service{repo: repo, pusher: pusher, logger: logger}
}

// Deliver 写入通知并推送给在线连接
func (s *Service) Deliver(ctx context.Context, n *model.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	if s.pusher == nil {
		return nil
	}
	s.pusher.PushNotification(n.UserID, n)
	s.pushCount(ctx, n.UserID)
	return nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	out, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}

// MarkRead 只能标记自己的通知，返回最新未读数
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) (int64, error) {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, apperr.NotFound("notification not found")
		}
		return 0, apperr.Internal(err)
	}
	return s.pushCount(ctx, userID), nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	updated, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	s.pushCount(ctx, userID)
	return updated, nil
}

// pushCount 计数失败只记录日志
func (s *Service) pushCount(ctx context.Context, userID uuid.UUID) int64 {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Warn("Failed to count unread notifications", zap.String("user_id", userID.String()), zap.Error(err))
		return 0
	}
	if s.pusher != nil {
		s.pusher.PushUnreadCount(userID, count)
	}
	return count
}
