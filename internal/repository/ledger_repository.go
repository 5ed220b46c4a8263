package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
)

type LedgerRepository interface {
	// FindByReference returns errors.ErrLedgerEntryNotFound when no entry exists.
	FindByReference(ctx context.Context, referenceID uuid.UUID, entryType models.LedgerType) (*models.LedgerEntry, error)
	ListByReference(ctx context.Context, referenceID uuid.UUID) ([]models.LedgerEntry, error)
	Create(ctx context.Context, entry *models.LedgerEntry) error
	Update(ctx context.Context, entry *models.LedgerEntry) error
}

// DuplicateReferenceError is returned by Create when a concurrent writer already
// inserted the (reference_id, type) pair.
type DuplicateReferenceError struct {
	ReferenceID uuid.UUID
	Type        models.LedgerType
}

func (e *DuplicateReferenceError) Error() string {
	return "ledger entry already exists for reference " + e.ReferenceID.String() + " type " + string(e.Type)
}
