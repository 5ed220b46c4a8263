package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) ListActive(ctx context.Context) (out []models.Notification, err error) {
	ctx, finish := startOp(ctx, "notification-repository", "ListActiveNotifications")
	defer func() { finish(err) }()

	query := `SELECT id, title, message, type, priority, is_active, created_at FROM notifications WHERE is_active ORDER BY created_at DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		slog.Error("failed to list notifications", "method", "ListActive", "error", err)
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out = []models.Notification{}
	for rows.Next() {
		var (
			n        models.Notification
			kind     sql.NullString
			priority sql.NullString
		)
		if err = rows.Scan(&n.ID, &n.Title, &n.Message, &kind, &priority, &n.IsActive, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = kind.String
		n.Priority = priority.String
		out = append(out, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	slog.Info("active notifications listed", "method", "ListActive", "count", len(out))
	return out, nil
}
