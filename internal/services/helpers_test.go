package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/infrastructure/redis/redistest"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	"github.com/honeynil/RecycleRewardsAdmin/internal/repository/memory"
	"github.com/honeynil/RecycleRewardsAdmin/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	topic string
	key   string
	event ReconciliationEvent
}

// recordingProducer fails the first failures sends, then records.
type recordingProducer struct {
	mu       sync.Mutex
	failures int
	attempts int
	sent     []sentMessage
}

func (p *recordingProducer) Send(ctx context.Context, topic, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	var ev ReconciliationEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return err
	}
	p.sent = append(p.sent, sentMessage{topic: topic, key: key, event: ev})
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) events() []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentMessage(nil), p.sent...)
}

type stubAuthorizer struct {
	allow bool
	err   error
	calls atomic.Int32
}

func (a *stubAuthorizer) IsCurrentUserAdmin(ctx context.Context, s *session.Session) (bool, error) {
	a.calls.Add(1)
	return a.allow, a.err
}

type mockLedgerRepository struct {
	mock.Mock
}

func (m *mockLedgerRepository) FindByReference(ctx context.Context, referenceID uuid.UUID, entryType models.LedgerType) (*models.LedgerEntry, error) {
	args := m.Called(ctx, referenceID, entryType)
	e, _ := args.Get(0).(*models.LedgerEntry)
	return e, args.Error(1)
}

func (m *mockLedgerRepository) ListByReference(ctx context.Context, referenceID uuid.UUID) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, referenceID)
	out, _ := args.Get(0).([]models.LedgerEntry)
	return out, args.Error(1)
}

func (m *mockLedgerRepository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockLedgerRepository) Update(ctx context.Context, entry *models.LedgerEntry) error {
	return m.Called(ctx, entry).Error(0)
}

type harness struct {
	store    *memory.Store
	redis    *redistest.Fake
	producer *recordingProducer
	authz    *stubAuthorizer
	svc      *redemptionService
	sess     *session.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    memory.NewStore(),
		redis:    redistest.New(),
		producer: &recordingProducer{},
		authz:    &stubAuthorizer{allow: true},
		sess:     &session.Session{AdminID: uuid.New(), Role: models.RoleAdmin, ExpiresAt: time.Now().Add(time.Hour)},
	}
	h.svc = NewRedemptionService(h.store, h.store.Redemptions(), h.store.Balances(), h.store.Ledger(), h.authz, h.redis, h.producer, "redemptions.reconciliation", 10*time.Second)
	h.svc.events.backoff = time.Millisecond
	return h
}

func (h *harness) seed(t *testing.T, available, redeemed, total, points int64) models.RedemptionRequest {
	t.Helper()
	userID := uuid.New()
	h.store.PutBalance(models.UserBalance{UserID: userID, AvailablePoints: available, RedeemedPoints: redeemed, TotalPoints: total})
	req := models.RedemptionRequest{
		ID:              uuid.New(),
		UserID:          userID,
		PointsRequested: points,
		CashAmount:      decimal.New(points, -2),
		Status:          models.RedemptionPending,
		CreatedAt:       time.Now(),
	}
	h.store.PutRedemption(req)
	return req
}

func (h *harness) balance(t *testing.T, userID uuid.UUID) models.UserBalance {
	t.Helper()
	b, err := h.store.Balances().GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return *b
}

func (h *harness) request(t *testing.T, id uuid.UUID) models.RedemptionRequest {
	t.Helper()
	r, err := h.store.Redemptions().GetByID(context.Background(), id)
	require.NoError(t, err)
	return *r
}

func (h *harness) ledger(t *testing.T, id uuid.UUID) []models.LedgerEntry {
	t.Helper()
	out, err := h.store.Ledger().ListByReference(context.Background(), id)
	require.NoError(t, err)
	return out
}
