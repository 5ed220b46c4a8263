package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	pkgerrors "github.com/honeynil/RecycleRewardsAdmin/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

type BalanceRepository struct {
	db *sql.DB
}

func NewBalanceRepository(db *sql.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) GetBalance(ctx context.Context, userID uuid.UUID) (b *models.UserBalance, err error) {
	ctx, finish := startOp(ctx, "balance-repository", "GetBalance", attribute.String("user_id", userID.String()))
	defer func() { finish(err) }()

	b, err = r.getBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	slog.Info("balance retrieved", "method", "GetBalance", "user_id", userID, "available", b.AvailablePoints, "redeemed", b.RedeemedPoints)
	return b, nil
}

func (r *BalanceRepository) getBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	var b models.UserBalance
	query := `SELECT user_id, available_points, redeemed_points, total_points, updated_at FROM user_balances WHERE user_id = $1`
	err := conn(ctx, r.db).QueryRowContext(ctx, query, userID).Scan(
		&b.UserID,
		&b.AvailablePoints,
		&b.RedeemedPoints,
		&b.TotalPoints,
		&b.UpdatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrBalanceNotFound
	}
	if err != nil {
		slog.Error("failed to get balance", "method", "GetBalance", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &b, nil
}

// ApplyDelta checks and writes in a single statement, so a concurrent
// decrement can never push available_points below zero.
func (r *BalanceRepository) ApplyDelta(ctx context.Context, userID uuid.UUID, availableDelta, redeemedDelta int64) (b *models.UserBalance, err error) {
	ctx, finish := startOp(ctx, "balance-repository", "ApplyDelta",
		attribute.String("user_id", userID.String()),
		attribute.Int64("available_delta", availableDelta),
		attribute.Int64("redeemed_delta", redeemedDelta),
	)
	defer func() { finish(err) }()

	query := `
		UPDATE user_balances
		SET available_points = available_points + $2,
			redeemed_points = redeemed_points + $3,
			updated_at = NOW()
		WHERE user_id = $1
		AND available_points + $2 >= 0
		AND redeemed_points + $3 >= 0
		AND available_points + $2 + redeemed_points + $3 <= total_points
		RETURNING user_id, available_points, redeemed_points, total_points, updated_at
	`
	var updated models.UserBalance
	err = conn(ctx, r.db).QueryRowContext(ctx, query, userID, availableDelta, redeemedDelta).Scan(
		&updated.UserID,
		&updated.AvailablePoints,
		&updated.RedeemedPoints,
		&updated.TotalPoints,
		&updated.UpdatedAt,
	)
	if err == nil {
		slog.Info("balance updated", "method", "ApplyDelta", "user_id", userID, "available", updated.AvailablePoints, "redeemed", updated.RedeemedPoints)
		return &updated, nil
	}
	if !stderrors.Is(err, sql.ErrNoRows) {
		slog.Error("failed to apply balance delta", "method", "ApplyDelta", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to apply balance delta: %w", err)
	}

	current, err := r.getBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if availableDelta < 0 {
		err = &pkgerrors.InsufficientBalanceError{UserID: userID, Available: current.AvailablePoints, Required: -availableDelta}
	} else {
		err = fmt.Errorf("%w: delta (%d, %d) violates balance bounds", pkgerrors.ErrInvalidInput, availableDelta, redeemedDelta)
	}
	slog.Warn("balance guard rejected delta", "method", "ApplyDelta", "user_id", userID, "available", current.AvailablePoints, "available_delta", availableDelta, "error", err)
	return nil, err
}
