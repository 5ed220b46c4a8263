package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/infrastructure/kafka"
	"github.com/honeynil/RecycleRewardsAdmin/internal/infrastructure/observability"
	"github.com/honeynil/RecycleRewardsAdmin/internal/infrastructure/redis"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	"github.com/honeynil/RecycleRewardsAdmin/internal/repository"
	"github.com/honeynil/RecycleRewardsAdmin/internal/session"
	pkgerrors "github.com/honeynil/RecycleRewardsAdmin/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type RedemptionService interface {
	Transition(ctx context.Context, s *session.Session, requestID uuid.UUID, target models.RedemptionStatus) (*TransitionResult, error)
	Approve(ctx context.Context, s *session.Session, requestID uuid.UUID) (*TransitionResult, error)
	Reject(ctx context.Context, s *session.Session, requestID uuid.UUID) (*TransitionResult, error)
	ReconcileLedger(ctx context.Context, s *session.Session, requestID uuid.UUID) (*models.LedgerEntry, error)
	Get(ctx context.Context, s *session.Session, requestID uuid.UUID) (*models.RedemptionRequest, error)
	List(ctx context.Context, s *session.Session, status models.RedemptionStatus) ([]models.RedemptionRequest, error)
	GetBalance(ctx context.Context, s *session.Session, userID uuid.UUID) (*models.UserBalance, error)
	LedgerForRequest(ctx context.Context, s *session.Session, requestID uuid.UUID) ([]models.LedgerEntry, error)
}

// TransitionResult is returned alongside a PartialCommitError too, so the
// caller can show what was committed. LedgerWritten reports whether the
// ledger step succeeded; LedgerEntry is nil when the step had nothing to
// write.
type TransitionResult struct {
	Request       *models.RedemptionRequest `json:"request"`
	LedgerWritten bool                      `json:"ledger_written"`
	LedgerEntry   *models.LedgerEntry       `json:"ledger_entry,omitempty"`
}

type redemptionService struct {
	tx          repository.Transactor
	redemptions repository.RedemptionRepository
	balances    repository.BalanceRepository
	ledgerRepo  repository.LedgerRepository
	ledger      *LedgerWriter
	authz       session.Authorizer
	redisClient redis.RedisClient
	events      *eventPublisher
	lockTTL     time.Duration
	now         func() time.Time
}

// NewRedemptionService wires the state machine. redisClient and producer may
// be nil: the status guard alone then serialises transitions and no
// reconciliation events are published.
func NewRedemptionService(
	tx repository.Transactor,
	redemptions repository.RedemptionRepository,
	balances repository.BalanceRepository,
	ledgerRepo repository.LedgerRepository,
	authz session.Authorizer,
	redisClient redis.RedisClient,
	producer kafka.KafkaProducer,
	eventsTopic string,
	lockTTL time.Duration,
) *redemptionService {
	return &redemptionService{
		tx:          tx,
		redemptions: redemptions,
		balances:    balances,
		ledgerRepo:  ledgerRepo,
		ledger:      NewLedgerWriter(ledgerRepo),
		authz:       authz,
		redisClient: redisClient,
		events:      newEventPublisher(producer, eventsTopic),
		lockTTL:     lockTTL,
		now:         time.Now,
	}
}

func lockKey(requestID uuid.UUID) string {
	return fmt.Sprintf("redemption:%s:lock", requestID)
}

func ledgerDescription(req *models.RedemptionRequest) string {
	return fmt.Sprintf("Cash redemption of $%s", req.CashAmount.StringFixed(2))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case stderrors.Is(err, pkgerrors.ErrPartialCommit):
		return "partial_commit"
	case stderrors.Is(err, pkgerrors.ErrInvalidState):
		return "invalid_state"
	case stderrors.Is(err, pkgerrors.ErrInsufficientBalance):
		return "insufficient_balance"
	case stderrors.Is(err, pkgerrors.ErrNotAuthorized):
		return "not_authorized"
	case stderrors.Is(err, pkgerrors.ErrRequestLocked):
		return "locked"
	}
	return "error"
}

func failSpan(span trace.Span, err error, msg string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

// Flush waits for queued reconciliation events.
func (s *redemptionService) Flush() {
	s.events.wait()
}

func (s *redemptionService) authorize(ctx context.Context, sess *session.Session, operation string) error {
	ok, err := s.authz.IsCurrentUserAdmin(ctx, sess)
	if err != nil {
		slog.Error("authorization check failed", "operation", operation, "error", err)
		return fmt.Errorf("authorization check failed: %w", err)
	}
	if !ok {
		slog.Warn("operation refused", "operation", operation)
		return &pkgerrors.NotAuthorizedError{Operation: operation}
	}
	return nil
}

// acquireLock takes the per-request Redis lock. Redis being down is not
// fatal: the status compare-and-set still rejects the loser of a race.
func (s *redemptionService) acquireLock(ctx context.Context, requestID uuid.UUID) (func(), error) {
	if s.redisClient == nil {
		return func() {}, nil
	}
	key := lockKey(requestID)
	token := uuid.NewString()
	ok, err := s.redisClient.SetNX(ctx, key, token, s.lockTTL)
	if err != nil {
		slog.Warn("failed to acquire redemption lock, relying on status guard", "request_id", requestID, "error", err)
		return func() {}, nil
	}
	if !ok {
		slog.Warn("redemption is locked", "request_id", requestID)
		return nil, pkgerrors.ErrRequestLocked
	}
	// release only our own lock: after the TTL it may belong to someone else
	return func() {
		released, err := s.redisClient.DelIfEqual(ctx, key, token)
		if err != nil {
			slog.Error("failed to release redemption lock", "request_id", requestID, "error", err)
			return
		}
		if !released {
			slog.Warn("redemption lock expired before release", "request_id", requestID, "ttl", s.lockTTL)
		}
	}, nil
}

func (s *redemptionService) event(kind string, sess *session.Session, req *models.RedemptionRequest, ledgerWritten bool, cause error) ReconciliationEvent {
	ev := ReconciliationEvent{
		EventType:     kind,
		RequestID:     req.ID,
		UserID:        req.UserID,
		Status:        string(req.Status),
		Points:        req.PointsRequested,
		CashAmount:    req.CashAmount,
		LedgerWritten: ledgerWritten,
		OccurredAt:    s.now().UTC(),
	}
	if sess != nil {
		ev.AdminID = sess.AdminID
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	return ev
}

func (s *redemptionService) Approve(ctx context.Context, sess *session.Session, requestID uuid.UUID) (*TransitionResult, error) {
	return s.Transition(ctx, sess, requestID, models.RedemptionCompleted)
}

func (s *redemptionService) Reject(ctx context.Context, sess *session.Session, requestID uuid.UUID) (*TransitionResult, error) {
	return s.Transition(ctx, sess, requestID, models.RedemptionRejected)
}

// Transition moves a pending request to completed or rejected. Once started
// it runs to completion even if ctx is cancelled.
func (s *redemptionService) Transition(ctx context.Context, sess *session.Session, requestID uuid.UUID, target models.RedemptionStatus) (result *TransitionResult, err error) {
	ctx = context.WithoutCancel(ctx)

	tracer := otel.Tracer("redemption-service")
	ctx, span := tracer.Start(ctx, "Transition", trace.WithAttributes(
		attribute.String("request_id", requestID.String()),
		attribute.String("target", string(target)),
	))
	defer span.End()
	defer func() {
		observability.RedemptionTransitions.WithLabelValues(string(target), outcome(err)).Inc()
	}()

	if err = s.authorize(ctx, sess, "transition redemption"); err != nil {
		failSpan(span, err, "not authorized")
		return nil, err
	}
	if target != models.RedemptionCompleted && target != models.RedemptionRejected {
		err = fmt.Errorf("%w: %q", pkgerrors.ErrInvalidTarget, target)
		failSpan(span, err, "invalid target")
		return nil, err
	}

	release, err := s.acquireLock(ctx, requestID)
	if err != nil {
		failSpan(span, err, "request locked")
		return nil, err
	}
	defer release()

	if target == models.RedemptionCompleted {
		result, err = s.complete(ctx, sess, requestID)
	} else {
		result, err = s.reject(ctx, sess, requestID)
	}
	if err != nil {
		failSpan(span, err, outcome(err))
	}
	return result, err
}

// complete runs the status compare-and-set and the balance move in one
// transaction, then writes the ledger entry. A ledger failure after commit is
// reported as a partial commit and never undoes the balance change.
func (s *redemptionService) complete(ctx context.Context, sess *session.Session, requestID uuid.UUID) (*TransitionResult, error) {
	var req *models.RedemptionRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		updated, err := s.redemptions.CompareAndSetStatus(ctx, requestID, models.RedemptionPending, models.RedemptionCompleted, s.now())
		if err != nil {
			return err
		}
		if updated.PointsRequested <= 0 {
			return fmt.Errorf("%w: redemption %s requests %d points", pkgerrors.ErrInvalidInput, requestID, updated.PointsRequested)
		}
		if _, err := s.balances.ApplyDelta(ctx, updated.UserID, -updated.PointsRequested, updated.PointsRequested); err != nil {
			return err
		}
		req = updated
		return nil
	})
	if err != nil {
		logTransitionFailure(ctx, "complete", requestID, err)
		return nil, err
	}

	entry, err := s.ledger.UpsertByReference(ctx, req.ID, req.UserID, models.LedgerRedeemed, -req.PointsRequested, models.LedgerCompleted, ledgerDescription(req))
	if err != nil {
		observability.WithContext(ctx).Error("redemption committed without ledger entry",
			"request_id", req.ID,
			"user_id", req.UserID,
			"points", req.PointsRequested,
			"manual_reconciliation", true,
			"error", err)
		s.events.publishNow(ctx, s.event(EventPartialCommit, sess, req, false, err))
		return &TransitionResult{Request: req, LedgerWritten: false},
			&pkgerrors.PartialCommitError{RequestID: req.ID, UserID: req.UserID, Points: req.PointsRequested, Cause: err}
	}

	slog.Info("redemption completed", "request_id", req.ID, "user_id", req.UserID, "points", req.PointsRequested, "ledger_entry_id", entry.ID)
	s.events.publishAsync(s.event(EventRedemptionCompleted, sess, req, true, nil))
	return &TransitionResult{Request: req, LedgerWritten: true, LedgerEntry: entry}, nil
}

// reject marks any ledger trace failed and terminalises the request in one
// transaction, so a racing approval cannot slip in between.
func (s *redemptionService) reject(ctx context.Context, sess *session.Session, requestID uuid.UUID) (*TransitionResult, error) {
	var (
		req   *models.RedemptionRequest
		entry *models.LedgerEntry
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		marked, _, err := s.ledger.MarkFailedByReference(ctx, requestID, models.LedgerRedeemed, "Redemption rejected")
		if err != nil {
			return err
		}
		updated, err := s.redemptions.CompareAndSetStatus(ctx, requestID, models.RedemptionPending, models.RedemptionRejected, s.now())
		if err != nil {
			return err
		}
		req, entry = updated, marked
		return nil
	})
	if err != nil {
		logTransitionFailure(ctx, "reject", requestID, err)
		return nil, err
	}

	slog.Info("redemption rejected", "request_id", req.ID, "user_id", req.UserID, "ledger_marked_failed", entry != nil)
	s.events.publishAsync(s.event(EventRedemptionRejected, sess, req, true, nil))
	return &TransitionResult{Request: req, LedgerWritten: true, LedgerEntry: entry}, nil
}

func logTransitionFailure(ctx context.Context, op string, requestID uuid.UUID, err error) {
	logger := observability.WithContext(ctx, "op", op, "request_id", requestID)
	switch {
	case stderrors.Is(err, pkgerrors.ErrInvalidState),
		stderrors.Is(err, pkgerrors.ErrInsufficientBalance),
		stderrors.Is(err, pkgerrors.ErrRequestNotFound):
		logger.Warn("redemption transition refused", "error", err)
	default:
		logger.Error("redemption transition failed", "error", err)
	}
}

// ReconcileLedger re-runs the ledger step for a terminal request. It is the
// manual fix-up after a PartialCommitError and is safe to repeat.
func (s *redemptionService) ReconcileLedger(ctx context.Context, sess *session.Session, requestID uuid.UUID) (*models.LedgerEntry, error) {
	ctx = context.WithoutCancel(ctx)

	tracer := otel.Tracer("redemption-service")
	ctx, span := tracer.Start(ctx, "ReconcileLedger", trace.WithAttributes(attribute.String("request_id", requestID.String())))
	defer span.End()

	if err := s.authorize(ctx, sess, "reconcile ledger"); err != nil {
		failSpan(span, err, "not authorized")
		return nil, err
	}

	release, err := s.acquireLock(ctx, requestID)
	if err != nil {
		failSpan(span, err, "request locked")
		return nil, err
	}
	defer release()

	req, err := s.redemptions.GetByID(ctx, requestID)
	if err != nil {
		failSpan(span, err, "request lookup failed")
		return nil, err
	}

	var entry *models.LedgerEntry
	switch req.Status {
	case models.RedemptionCompleted:
		entry, err = s.ledger.UpsertByReference(ctx, req.ID, req.UserID, models.LedgerRedeemed, -req.PointsRequested, models.LedgerCompleted, ledgerDescription(req))
	case models.RedemptionRejected:
		entry, _, err = s.ledger.MarkFailedByReference(ctx, req.ID, models.LedgerRedeemed, "Redemption rejected")
	default:
		err = &pkgerrors.InvalidStateError{RequestID: req.ID, Current: string(req.Status), Target: "reconciled"}
	}
	if err != nil {
		failSpan(span, err, "reconcile failed")
		slog.Error("ledger reconciliation failed", "request_id", requestID, "status", req.Status, "error", err)
		return nil, err
	}

	slog.Info("ledger reconciled", "request_id", requestID, "status", req.Status, "has_entry", entry != nil)
	s.events.publishAsync(s.event(EventLedgerReconciled, sess, req, true, nil))
	return entry, nil
}

func (s *redemptionService) Get(ctx context.Context, sess *session.Session, requestID uuid.UUID) (*models.RedemptionRequest, error) {
	if err := s.authorize(ctx, sess, "view redemption"); err != nil {
		return nil, err
	}
	return s.redemptions.GetByID(ctx, requestID)
}

func (s *redemptionService) List(ctx context.Context, sess *session.Session, status models.RedemptionStatus) ([]models.RedemptionRequest, error) {
	tracer := otel.Tracer("redemption-service")
	ctx, span := tracer.Start(ctx, "List")
	defer span.End()

	if err := s.authorize(ctx, sess, "list redemptions"); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", pkgerrors.ErrInvalidInput, status)
	}
	out, err := s.redemptions.List(ctx, status)
	if err != nil {
		failSpan(span, err, "list failed")
		return nil, err
	}
	slog.Info("redemptions listed", "status", status, "count", len(out))
	return out, nil
}

func (s *redemptionService) GetBalance(ctx context.Context, sess *session.Session, userID uuid.UUID) (*models.UserBalance, error) {
	if err := s.authorize(ctx, sess, "view balance"); err != nil {
		return nil, err
	}
	return s.balances.GetBalance(ctx, userID)
}

func (s *redemptionService) LedgerForRequest(ctx context.Context, sess *session.Session, requestID uuid.UUID) ([]models.LedgerEntry, error) {
	if err := s.authorize(ctx, sess, "view ledger"); err != nil {
		return nil, err
	}
	return s.ledgerRepo.ListByReference(ctx, requestID)
}

var _ RedemptionService = (*redemptionService)(nil)
