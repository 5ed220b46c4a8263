package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
)

// BalanceRepository is the single authority for the non-negative balance
// invariant. ApplyDelta re-checks the row in the same write; callers must not
// rely on an earlier GetBalance.
type BalanceRepository interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error)
	ApplyDelta(ctx context.Context, userID uuid.UUID, availableDelta, redeemedDelta int64) (*models.UserBalance, error)
}
