package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	pkgerrors "github.com/honeynil/RecycleRewardsAdmin/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const redemptionColumns = `id, user_id, points_requested, cash_amount, status, created_at, processed_at`

type RedemptionRepository struct {
	db *sql.DB
}

func NewRedemptionRepository(db *sql.DB) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRedemption(row rowScanner) (*models.RedemptionRequest, error) {
	var (
		req         models.RedemptionRequest
		processedAt sql.NullTime
	)
	if err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.PointsRequested,
		&req.CashAmount,
		&req.Status,
		&req.CreatedAt,
		&processedAt,
	); err != nil {
		return nil, err
	}
	if processedAt.Valid {
		t := processedAt.Time
		req.ProcessedAt = &t
	}
	return &req, nil
}

func (r *RedemptionRepository) GetByID(ctx context.Context, id uuid.UUID) (req *models.RedemptionRequest, err error) {
	ctx, finish := startOp(ctx, "redemption-repository", "GetRedemptionByID", attribute.String("redemption_id", id.String()))
	defer func() { finish(err) }()

	query := `SELECT ` + redemptionColumns + ` FROM redemption_requests WHERE id = $1`
	req, err = scanRedemption(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		slog.Warn("redemption request not found", "method", "GetByID", "redemption_id", id)
		return nil, pkgerrors.ErrRequestNotFound
	}
	if err != nil {
		slog.Error("failed to get redemption request", "method", "GetByID", "redemption_id", id, "error", err)
		return nil, fmt.Errorf("failed to get redemption request: %w", err)
	}
	return req, nil
}

func (r *RedemptionRepository) List(ctx context.Context, status models.RedemptionStatus) (out []models.RedemptionRequest, err error) {
	ctx, finish := startOp(ctx, "redemption-repository", "ListRedemptions", attribute.String("status", string(status)))
	defer func() { finish(err) }()

	query := `SELECT ` + redemptionColumns + ` FROM redemption_requests WHERE ($1::text = '' OR status = $1) ORDER BY created_at DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, string(status))
	if err != nil {
		slog.Error("failed to list redemption requests", "method", "List", "status", status, "error", err)
		return nil, fmt.Errorf("failed to list redemption requests: %w", err)
	}
	defer rows.Close()

	out = []models.RedemptionRequest{}
	for rows.Next() {
		req, scanErr := scanRedemption(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan redemption request: %w", scanErr)
			return nil, err
		}
		out = append(out, *req)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate redemption requests: %w", err)
	}

	slog.Info("redemption requests listed", "method", "List", "status", status, "count", len(out))
	return out, nil
}

func (r *RedemptionRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to models.RedemptionStatus, processedAt time.Time) (req *models.RedemptionRequest, err error) {
	ctx, finish := startOp(ctx, "redemption-repository", "CompareAndSetStatus",
		attribute.String("redemption_id", id.String()),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	)
	defer func() { finish(err) }()

	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", pkgerrors.ErrInvalidTarget, to)
	}

	var processed any
	if to.Terminal() {
		processed = processedAt.UTC()
	}

	q := conn(ctx, r.db)
	query := `UPDATE redemption_requests SET status = $3, processed_at = $4 WHERE id = $1 AND status = $2 RETURNING ` + redemptionColumns
	req, err = scanRedemption(q.QueryRowContext(ctx, query, id, string(from), string(to), processed))
	if err == nil {
		slog.Info("redemption status changed", "method", "CompareAndSetStatus", "redemption_id", id, "from", from, "to", to)
		return req, nil
	}
	if !stderrors.Is(err, sql.ErrNoRows) {
		slog.Error("failed to update redemption status", "method", "CompareAndSetStatus", "redemption_id", id, "error", err)
		return nil, fmt.Errorf("failed to update redemption status: %w", err)
	}

	var current models.RedemptionStatus
	err = q.QueryRowContext(ctx, `SELECT status FROM redemption_requests WHERE id = $1`, id).Scan(&current)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read redemption status: %w", err)
	}

	err = &pkgerrors.InvalidStateError{RequestID: id, Current: string(current), Target: string(to)}
	slog.Warn("redemption status precondition failed", "method", "CompareAndSetStatus", "redemption_id", id, "current", current, "expected", from, "to", to)
	return nil, err
}
