package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"careerhub/internal/model"
	"careerhub/pkg/otel"
)

type PGNotificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *PGNotificationRepository {
	return &PGNotificationRepository{db: db, logger: logger}
}

// Create 插入通知记录；id 已存在时返回 ErrDuplicate
func (r *PGNotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	r.logger.Debug("Inserting notification",
		zap.String("user_id", n.UserID.String()),
		zap.String("type", n.Type),
	)

	err := otel.WithDBSpan(ctx, "insert", "notifications", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, `
			INSERT INTO notifications (id, user_id, type, title, message, link, read)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`, n.ID, n.UserID, n.Type, n.Title, n.Message, n.Link, n.Read).Scan(&n.CreatedAt)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		r.logger.Error("Failed to insert notification",
			zap.String("user_id", n.UserID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *PGNotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, type, title, message, link, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]model.Notification, 0)
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Link, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PGNotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// MarkRead 只能标记自己的通知
func (r *PGNotificationRepository) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGNotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}
