package repository

import (
	"context"

	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
)

type NotificationRepository interface {
	// ListActive returns the full active set, newest first.
	ListActive(ctx context.Context) ([]models.Notification, error)
}
