package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
)

type AdminRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Admin, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Admin, error)
}
