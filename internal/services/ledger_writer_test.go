package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	"github.com/honeynil/RecycleRewardsAdmin/internal/repository"
	"github.com/honeynil/RecycleRewardsAdmin/internal/repository/memory"
	pkgerrors "github.com/honeynil/RecycleRewardsAdmin/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLedgerWriter_UpsertIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	w := NewLedgerWriter(store.Ledger())
	ctx := context.Background()
	ref, user := uuid.New(), uuid.New()

	first, err := w.UpsertByReference(ctx, ref, user, models.LedgerRedeemed, -500, models.LedgerPending, "queued")
	require.NoError(t, err)

	second, err := w.UpsertByReference(ctx, ref, user, models.LedgerRedeemed, -500, models.LedgerCompleted, "Cash redemption of $5.00")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.LedgerCompleted, second.Status)

	// a different type for the same reference is a separate entry
	_, err = w.UpsertByReference(ctx, ref, user, models.LedgerBonus, 50, models.LedgerCompleted, "goodwill")
	require.NoError(t, err)

	entries, err := store.Ledger().ListByReference(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLedgerWriter_ConcurrentInsertIsAmended(t *testing.T) {
	ledger := new(mockLedgerRepository)
	w := NewLedgerWriter(ledger)
	ref, user := uuid.New(), uuid.New()
	winner := &models.LedgerEntry{ID: uuid.New(), ReferenceID: ref, UserID: user, Type: models.LedgerRedeemed, Amount: -500, Status: models.LedgerPending}

	ledger.On("FindByReference", mock.Anything, ref, models.LedgerRedeemed).Return(nil, pkgerrors.ErrLedgerEntryNotFound).Once()
	ledger.On("Create", mock.Anything, mock.Anything).Return(&repository.DuplicateReferenceError{ReferenceID: ref, Type: models.LedgerRedeemed}).Once()
	ledger.On("FindByReference", mock.Anything, ref, models.LedgerRedeemed).Return(winner, nil).Once()
	ledger.On("Update", mock.Anything, winner).Return(nil).Once()

	got, err := w.UpsertByReference(context.Background(), ref, user, models.LedgerRedeemed, -500, models.LedgerCompleted, "Cash redemption of $5.00")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
	assert.Equal(t, models.LedgerCompleted, got.Status)
	ledger.AssertExpectations(t)
}

func TestLedgerWriter_Errors(t *testing.T) {
	ref, user := uuid.New(), uuid.New()

	t.Run("LookupFailure", func(t *testing.T) {
		ledger := new(mockLedgerRepository)
		ledger.On("FindByReference", mock.Anything, ref, models.LedgerRedeemed).Return(nil, errors.New("timeout"))

		_, err := NewLedgerWriter(ledger).UpsertByReference(context.Background(), ref, user, models.LedgerRedeemed, -1, models.LedgerCompleted, "")
		assert.ErrorIs(t, err, pkgerrors.ErrLedgerLookup)
		assert.NotErrorIs(t, err, pkgerrors.ErrLedgerWrite)
		ledger.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("UpdateFailure", func(t *testing.T) {
		ledger := new(mockLedgerRepository)
		existing := &models.LedgerEntry{ID: uuid.New(), ReferenceID: ref, Type: models.LedgerRedeemed, Status: models.LedgerPending}
		ledger.On("FindByReference", mock.Anything, ref, models.LedgerRedeemed).Return(existing, nil)
		ledger.On("Update", mock.Anything, existing).Return(errors.New("deadlock detected"))

		_, err := NewLedgerWriter(ledger).UpsertByReference(context.Background(), ref, user, models.LedgerRedeemed, -1, models.LedgerCompleted, "")
		var writeErr *pkgerrors.LedgerWriteError
		require.ErrorAs(t, err, &writeErr)
		assert.Equal(t, "update", writeErr.Op)
		assert.NotErrorIs(t, err, pkgerrors.ErrLedgerLookup)
	})
}

func TestLedgerWriter_MarkFailedByReference(t *testing.T) {
	store := memory.NewStore()
	w := NewLedgerWriter(store.Ledger())
	ctx := context.Background()
	ref := uuid.New()

	entry, found, err := w.MarkFailedByReference(ctx, ref, models.LedgerRedeemed, "Redemption rejected")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, entry)

	_, err = w.UpsertByReference(ctx, ref, uuid.New(), models.LedgerRedeemed, -300, models.LedgerPending, "queued")
	require.NoError(t, err)

	entry, found, err = w.MarkFailedByReference(ctx, ref, models.LedgerRedeemed, "")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, models.LedgerFailed, entry.Status)
	assert.Equal(t, int64(-300), entry.Amount)
	assert.Equal(t, "queued", entry.Description)
}
