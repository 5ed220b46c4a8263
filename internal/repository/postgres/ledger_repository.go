package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	"github.com/honeynil/RecycleRewardsAdmin/internal/repository"
	pkgerrors "github.com/honeynil/RecycleRewardsAdmin/pkg/errors"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

const (
	ledgerColumns = `id, user_id, type, amount, status, reference_id, description, created_at, updated_at`

	uniqueViolation = "23505"
)

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func scanLedgerEntry(row rowScanner) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	if err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Type,
		&e.Amount,
		&e.Status,
		&e.ReferenceID,
		&e.Description,
		&e.CreatedAt,
		&e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *LedgerRepository) FindByReference(ctx context.Context, referenceID uuid.UUID, entryType models.LedgerType) (e *models.LedgerEntry, err error) {
	ctx, finish := startOp(ctx, "ledger-repository", "FindLedgerByReference",
		attribute.String("reference_id", referenceID.String()),
		attribute.String("type", string(entryType)),
	)
	defer func() {
		if stderrors.Is(err, pkgerrors.ErrLedgerEntryNotFound) {
			finish(nil)
			return
		}
		finish(err)
	}()

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE reference_id = $1 AND type = $2`
	e, err = scanLedgerEntry(conn(ctx, r.db).QueryRowContext(ctx, query, referenceID, string(entryType)))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrLedgerEntryNotFound
	}
	if err != nil {
		slog.Error("failed to find ledger entry", "method", "FindByReference", "reference_id", referenceID, "type", entryType, "error", err)
		return nil, fmt.Errorf("failed to find ledger entry: %w", err)
	}
	return e, nil
}

func (r *LedgerRepository) ListByReference(ctx context.Context, referenceID uuid.UUID) (out []models.LedgerEntry, err error) {
	ctx, finish := startOp(ctx, "ledger-repository", "ListLedgerByReference", attribute.String("reference_id", referenceID.String()))
	defer func() { finish(err) }()

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE reference_id = $1 ORDER BY created_at`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, referenceID)
	if err != nil {
		slog.Error("failed to list ledger entries", "method", "ListByReference", "reference_id", referenceID, "error", err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	out = []models.LedgerEntry{}
	for rows.Next() {
		e, scanErr := scanLedgerEntry(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan ledger entry: %w", scanErr)
			return nil, err
		}
		out = append(out, *e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return out, nil
}

func validateEntry(entry *models.LedgerEntry) error {
	if entry == nil {
		return pkgerrors.ErrNilLedgerEntry
	}
	if !entry.Type.Valid() {
		return pkgerrors.ErrInvalidLedgerType
	}
	if !entry.Status.Valid() {
		return pkgerrors.ErrInvalidLedgerStatus
	}
	return nil
}

func (r *LedgerRepository) Create(ctx context.Context, entry *models.LedgerEntry) (err error) {
	ctx, finish := startOp(ctx, "ledger-repository", "CreateLedgerEntry")
	defer func() { finish(err) }()

	if err = validateEntry(entry); err != nil {
		slog.Error("invalid ledger entry", "method", "Create", "error", err)
		return err
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `INSERT INTO ledger_entries (id, user_id, type, amount, status, reference_id, description) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at, updated_at`
	err = conn(ctx, r.db).QueryRowContext(ctx, query,
		entry.ID,
		entry.UserID,
		string(entry.Type),
		entry.Amount,
		string(entry.Status),
		entry.ReferenceID,
		entry.Description,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		slog.Warn("ledger entry already exists", "method", "Create", "reference_id", entry.ReferenceID, "type", entry.Type)
		return &repository.DuplicateReferenceError{ReferenceID: entry.ReferenceID, Type: entry.Type}
	}
	if err != nil {
		slog.Error("failed to create ledger entry", "method", "Create", "reference_id", entry.ReferenceID, "type", entry.Type, "error", err)
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}

	slog.Info("ledger entry created", "method", "Create", "id", entry.ID, "reference_id", entry.ReferenceID, "type", entry.Type, "status", entry.Status, "amount", entry.Amount)
	return nil
}

// Update amends amount, status and description in place.
func (r *LedgerRepository) Update(ctx context.Context, entry *models.LedgerEntry) (err error) {
	ctx, finish := startOp(ctx, "ledger-repository", "UpdateLedgerEntry")
	defer func() { finish(err) }()

	if err = validateEntry(entry); err != nil {
		slog.Error("invalid ledger entry", "method", "Update", "error", err)
		return err
	}

	query := `UPDATE ledger_entries SET amount = $2, status = $3, description = $4, updated_at = NOW() WHERE id = $1 RETURNING updated_at`
	err = conn(ctx, r.db).QueryRowContext(ctx, query, entry.ID, entry.Amount, string(entry.Status), entry.Description).Scan(&entry.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return pkgerrors.ErrLedgerEntryNotFound
	}
	if err != nil {
		slog.Error("failed to update ledger entry", "method", "Update", "id", entry.ID, "error", err)
		return fmt.Errorf("failed to update ledger entry: %w", err)
	}

	slog.Info("ledger entry updated", "method", "Update", "id", entry.ID, "reference_id", entry.ReferenceID, "status", entry.Status)
	return nil
}
