package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	pkgerrors "github.com/honeynil/RecycleRewardsAdmin/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactor_WithinTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	tx := NewTransactor(db)
	balances := NewBalanceRepository(db)
	redemptions := NewRedemptionRepository(db)
	ctx := context.Background()
	id, userID := uuid.New(), uuid.New()
	now := time.Now()

	t.Run("Commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE redemption_requests`)).
			WithArgs(id, "pending", "completed", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(redemptionCols).AddRow(id.String(), userID.String(), int64(500), "5.00", "completed", now, now))
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE user_balances`)).
			WithArgs(userID, int64(-500), int64(500)).
			WillReturnRows(sqlmock.NewRows(balanceCols).AddRow(userID.String(), int64(500), int64(500), int64(1000), now))
		mock.ExpectCommit()

		err := tx.WithinTx(ctx, func(ctx context.Context) error {
			if _, err := redemptions.CompareAndSetStatus(ctx, id, models.RedemptionPending, models.RedemptionCompleted, now); err != nil {
				return err
			}
			_, err := balances.ApplyDelta(ctx, userID, -500, 500)
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackKeepsCause", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE redemption_requests`)).
			WithArgs(id, "pending", "completed", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(redemptionCols).AddRow(id.String(), userID.String(), int64(500), "5.00", "completed", now, now))
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE user_balances`)).
			WithArgs(userID, int64(-500), int64(500)).
			WillReturnRows(sqlmock.NewRows(balanceCols))
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT user_id`)).
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows(balanceCols).AddRow(userID.String(), int64(100), int64(0), int64(100), now))
		mock.ExpectRollback()

		err := tx.WithinTx(ctx, func(ctx context.Context) error {
			if _, err := redemptions.CompareAndSetStatus(ctx, id, models.RedemptionPending, models.RedemptionCompleted, now); err != nil {
				return err
			}
			_, err := balances.ApplyDelta(ctx, userID, -500, 500)
			return err
		})
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback().WillReturnError(fmt.Errorf("rollback error"))

		cause := errors.New("boom")
		err := tx.WithinTx(ctx, func(ctx context.Context) error { return cause })
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "rollback failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CommitError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(fmt.Errorf("commit error"))

		err := tx.WithinTx(ctx, func(ctx context.Context) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to commit transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NestedJoinsOuter", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err := tx.WithinTx(ctx, func(ctx context.Context) error {
			return tx.WithinTx(ctx, func(ctx context.Context) error {
				calls++
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
