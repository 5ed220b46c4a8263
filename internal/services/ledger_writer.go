package service

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	"github.com/honeynil/RecycleRewardsAdmin/internal/repository"
	pkgerrors "github.com/honeynil/RecycleRewardsAdmin/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LedgerWriter keeps at most one entry per (reference, type). Replaying a
// write amends that entry instead of adding a row.
type LedgerWriter struct {
	ledger repository.LedgerRepository
}

func NewLedgerWriter(ledger repository.LedgerRepository) *LedgerWriter {
	return &LedgerWriter{ledger: ledger}
}

func (w *LedgerWriter) UpsertByReference(
	ctx context.Context,
	referenceID, userID uuid.UUID,
	entryType models.LedgerType,
	amount int64,
	status models.LedgerStatus,
	description string,
) (*models.LedgerEntry, error) {
	tracer := otel.Tracer("ledger-writer")
	ctx, span := tracer.Start(ctx, "UpsertByReference", trace.WithAttributes(
		attribute.String("reference_id", referenceID.String()),
		attribute.String("type", string(entryType)),
	))
	defer span.End()

	existing, err := w.lookup(ctx, referenceID, entryType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger lookup failed")
		return nil, err
	}
	if existing != nil {
		return w.amend(ctx, span, existing, amount, status, description)
	}

	entry := &models.LedgerEntry{
		UserID:      userID,
		Type:        entryType,
		Amount:      amount,
		Status:      status,
		ReferenceID: referenceID,
		Description: description,
	}
	err = w.ledger.Create(ctx, entry)

	var dup *repository.DuplicateReferenceError
	if stderrors.As(err, &dup) {
		// a concurrent writer inserted first; amend its row
		slog.Warn("ledger entry inserted concurrently, amending", "reference_id", referenceID, "type", entryType)
		existing, err = w.lookup(ctx, referenceID, entryType)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "ledger lookup failed")
			return nil, err
		}
		if existing == nil {
			err = &pkgerrors.LedgerWriteError{ReferenceID: referenceID, Op: "insert", Err: dup}
			span.RecordError(err)
			span.SetStatus(codes.Error, "ledger insert failed")
			return nil, err
		}
		return w.amend(ctx, span, existing, amount, status, description)
	}
	if err != nil {
		slog.Error("failed to insert ledger entry", "reference_id", referenceID, "type", entryType, "error", err)
		err = &pkgerrors.LedgerWriteError{ReferenceID: referenceID, Op: "insert", Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger insert failed")
		return nil, err
	}

	slog.Info("ledger entry written", "reference_id", referenceID, "type", entryType, "status", status, "amount", amount)
	return entry, nil
}

// MarkFailedByReference flips an existing entry to failed. found is false,
// with no error, when there is nothing to mark. An empty description keeps
// the current one.
func (w *LedgerWriter) MarkFailedByReference(
	ctx context.Context,
	referenceID uuid.UUID,
	entryType models.LedgerType,
	description string,
) (entry *models.LedgerEntry, found bool, err error) {
	tracer := otel.Tracer("ledger-writer")
	ctx, span := tracer.Start(ctx, "MarkFailedByReference", trace.WithAttributes(
		attribute.String("reference_id", referenceID.String()),
		attribute.String("type", string(entryType)),
	))
	defer span.End()

	existing, err := w.lookup(ctx, referenceID, entryType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger lookup failed")
		return nil, false, err
	}
	if existing == nil {
		slog.Info("no ledger entry to mark failed", "reference_id", referenceID, "type", entryType)
		return nil, false, nil
	}

	if description == "" {
		description = existing.Description
	}
	entry, err = w.amend(ctx, span, existing, existing.Amount, models.LedgerFailed, description)
	if err != nil {
		return nil, true, err
	}
	return entry, true, nil
}

func (w *LedgerWriter) lookup(ctx context.Context, referenceID uuid.UUID, entryType models.LedgerType) (*models.LedgerEntry, error) {
	e, err := w.ledger.FindByReference(ctx, referenceID, entryType)
	if stderrors.Is(err, pkgerrors.ErrLedgerEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		slog.Error("failed to look up ledger entry", "reference_id", referenceID, "type", entryType, "error", err)
		return nil, &pkgerrors.LedgerLookupError{ReferenceID: referenceID, Err: err}
	}
	return e, nil
}

func (w *LedgerWriter) amend(ctx context.Context, span trace.Span, e *models.LedgerEntry, amount int64, status models.LedgerStatus, description string) (*models.LedgerEntry, error) {
	e.Amount = amount
	e.Status = status
	e.Description = description
	if err := w.ledger.Update(ctx, e); err != nil {
		slog.Error("failed to update ledger entry", "id", e.ID, "reference_id", e.ReferenceID, "error", err)
		err = &pkgerrors.LedgerWriteError{ReferenceID: e.ReferenceID, Op: "update", Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger update failed")
		return nil, err
	}
	slog.Info("ledger entry amended", "id", e.ID, "reference_id", e.ReferenceID, "status", status, "amount", amount)
	return e, nil
}
