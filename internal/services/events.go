package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/infrastructure/kafka"
	"github.com/shopspring/decimal"
)

const (
	EventRedemptionCompleted = "redemption_completed"
	EventRedemptionRejected  = "redemption_rejected"
	EventPartialCommit       = "partial_commit"
	EventLedgerReconciled    = "ledger_reconciled"
)

// ReconciliationEvent is the audit record published for every terminal
// transition, partial commit and manual ledger fix-up.
type ReconciliationEvent struct {
	EventType     string          `json:"event_type"`
	RequestID     uuid.UUID       `json:"request_id"`
	UserID        uuid.UUID       `json:"user_id"`
	AdminID       uuid.UUID       `json:"admin_id"`
	Status        string          `json:"status"`
	Points        int64           `json:"points"`
	CashAmount    decimal.Decimal `json:"cash_amount"`
	LedgerWritten bool            `json:"ledger_written"`
	Error         string          `json:"error,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

type eventPublisher struct {
	producer kafka.KafkaProducer
	topic    string
	retries  int
	backoff  time.Duration
	wg       sync.WaitGroup
}

func newEventPublisher(producer kafka.KafkaProducer, topic string) *eventPublisher {
	return &eventPublisher{producer: producer, topic: topic, retries: 3, backoff: time.Second}
}

func (p *eventPublisher) encode(ev ReconciliationEvent) ([]byte, bool) {
	if p.producer == nil {
		return nil, false
	}
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal kafka event", "event_type", ev.EventType, "request_id", ev.RequestID, "error", err)
		return nil, false
	}
	return b, true
}

// publishAsync sends in the background with linear backoff.
func (p *eventPublisher) publishAsync(ev ReconciliationEvent) {
	b, ok := p.encode(ev)
	if !ok {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sendWithRetries(b, ev, 0)
	}()
}

// publishNow makes one synchronous attempt and falls back to background
// retries. Partial commits go through here so the event is out before the
// caller sees the error, whenever the broker is reachable.
func (p *eventPublisher) publishNow(ctx context.Context, ev ReconciliationEvent) {
	b, ok := p.encode(ev)
	if !ok {
		return
	}
	if err := p.producer.Send(ctx, p.topic, ev.RequestID.String(), b); err == nil {
		slog.Info("reconciliation event sent", "event_type", ev.EventType, "request_id", ev.RequestID)
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sendWithRetries(b, ev, 1)
	}()
}

func (p *eventPublisher) sendWithRetries(b []byte, ev ReconciliationEvent, attempt int) {
	for i := attempt; i < p.retries; i++ {
		if i > 0 {
			time.Sleep(p.backoff * time.Duration(i))
		}
		if err := p.producer.Send(context.Background(), p.topic, ev.RequestID.String(), b); err == nil {
			slog.Info("reconciliation event sent", "event_type", ev.EventType, "request_id", ev.RequestID)
			return
		}
	}
	slog.Error("failed to send reconciliation event after retries",
		"event_type", ev.EventType,
		"request_id", ev.RequestID,
		"manual_reconciliation", ev.EventType == EventPartialCommit)
}

// wait blocks until background sends have finished.
func (p *eventPublisher) wait() {
	p.wg.Wait()
}
