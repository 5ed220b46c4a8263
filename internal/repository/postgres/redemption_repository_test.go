package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	pkgerrors "github.com/honeynil/RecycleRewardsAdmin/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var redemptionCols = []string{"id", "user_id", "points_requested", "cash_amount", "status", "created_at", "processed_at"}

func TestRedemptionRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRedemptionRepository(db)
	ctx := context.Background()
	id, userID := uuid.New(), uuid.New()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, points_requested, cash_amount, status, created_at, processed_at FROM redemption_requests WHERE id = $1`)).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(redemptionCols).AddRow(id.String(), userID.String(), int64(500), "5.00", "pending", time.Now(), nil))

		req, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, req.ID)
		assert.Equal(t, models.RedemptionPending, req.Status)
		assert.True(t, decimal.RequireFromString("5").Equal(req.CashAmount))
		assert.Nil(t, req.ProcessedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT id`)).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(redemptionCols))

		req, err := repo.GetByID(ctx, id)
		assert.Nil(t, req)
		assert.ErrorIs(t, err, pkgerrors.ErrRequestNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedemptionRepository_CompareAndSetStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRedemptionRepository(db)
	ctx := context.Background()
	id, userID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE redemption_requests SET status = $3, processed_at = $4 WHERE id = $1 AND status = $2`)).
			WithArgs(id, "pending", "completed", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(redemptionCols).AddRow(id.String(), userID.String(), int64(500), "5.00", "completed", now, now))

		req, err := repo.CompareAndSetStatus(ctx, id, models.RedemptionPending, models.RedemptionCompleted, now)
		require.NoError(t, err)
		assert.Equal(t, models.RedemptionCompleted, req.Status)
		require.NotNil(t, req.ProcessedAt)
		assert.WithinDuration(t, now, *req.ProcessedAt, time.Second)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyTerminal", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE redemption_requests`)).
			WithArgs(id, "pending", "completed", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(redemptionCols))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT status FROM redemption_requests WHERE id = $1`)).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))

		req, err := repo.CompareAndSetStatus(ctx, id, models.RedemptionPending, models.RedemptionCompleted, now)
		assert.Nil(t, req)
		var invalid *pkgerrors.InvalidStateError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "completed", invalid.Current)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE redemption_requests`)).
			WithArgs(id, "pending", "rejected", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(redemptionCols))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT status`)).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"status"}))

		_, err := repo.CompareAndSetStatus(ctx, id, models.RedemptionPending, models.RedemptionRejected, now)
		assert.ErrorIs(t, err, pkgerrors.ErrRequestNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidTarget", func(t *testing.T) {
		_, err := repo.CompareAndSetStatus(ctx, id, models.RedemptionPending, "archived", now)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTarget)
	})
}

func TestRedemptionRepository_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRedemptionRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM redemption_requests WHERE ($1::text = '' OR status = $1) ORDER BY created_at DESC`)).
		WithArgs("pending").
		WillReturnRows(sqlmock.NewRows(redemptionCols).
			AddRow(uuid.NewString(), uuid.NewString(), int64(100), "1.00", "pending", now, nil).
			AddRow(uuid.NewString(), uuid.NewString(), int64(200), "2.00", "pending", now.Add(-time.Hour), nil))

	out, err := repo.List(context.Background(), models.RedemptionPending)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, int64(100), out[0].PointsRequested)
	assert.NoError(t, mock.ExpectationsWereMet())
}
