package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
)

type RedemptionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.RedemptionRequest, error)
	// List returns requests newest first. An empty status lists all of them.
	List(ctx context.Context, status models.RedemptionStatus) ([]models.RedemptionRequest, error)
	// CompareAndSetStatus moves the request from -> to in one conditional
	// write. A request not in from yields *errors.InvalidStateError.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to models.RedemptionStatus, processedAt time.Time) (*models.RedemptionRequest, error)
}
