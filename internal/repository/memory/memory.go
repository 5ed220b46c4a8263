// Package memory provides in-memory repository implementations for tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	"github.com/honeynil/RecycleRewardsAdmin/internal/repository"
	pkgerrors "github.com/honeynil/RecycleRewardsAdmin/pkg/errors"
)

type txKey struct{}

// Store holds every table behind one mutex. WithinTx holds the mutex for
// the whole callback, so transactions are serializable.
type Store struct {
	mu            sync.Mutex
	redemptions   map[uuid.UUID]models.RedemptionRequest
	balances      map[uuid.UUID]models.UserBalance
	ledger        map[uuid.UUID]models.LedgerEntry
	notifications map[string]models.Notification
	admins        map[uuid.UUID]models.Admin
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		redemptions:   make(map[uuid.UUID]models.RedemptionRequest),
		balances:      make(map[uuid.UUID]models.UserBalance),
		ledger:        make(map[uuid.UUID]models.LedgerEntry),
		notifications: make(map[string]models.Notification),
		admins:        make(map[uuid.UUID]models.Admin),
		now:           time.Now,
	}
}

func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	redemptions := cloneMap(s.redemptions)
	balances := cloneMap(s.balances)
	ledger := cloneMap(s.ledger)

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.redemptions, s.balances, s.ledger = redemptions, balances, ledger
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Seed helpers for tests.

func (s *Store) PutRedemption(r models.RedemptionRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redemptions[r.ID] = r
}

func (s *Store) PutBalance(b models.UserBalance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[b.UserID] = b
}

func (s *Store) PutNotification(n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = n
}

func (s *Store) PutAdmin(a models.Admin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[a.ID] = a
}

func (s *Store) Redemptions() *Redemptions { return &Redemptions{s: s} }
func (s *Store) Balances() *Balances       { return &Balances{s: s} }
func (s *Store) Ledger() *Ledger           { return &Ledger{s: s} }
func (s *Store) Notifications() *Notifications {
	return &Notifications{s: s}
}
func (s *Store) Admins() *Admins { return &Admins{s: s} }

type Redemptions struct{ s *Store }

func (r *Redemptions) GetByID(ctx context.Context, id uuid.UUID) (*models.RedemptionRequest, error) {
	defer r.s.lock(ctx)()
	req, ok := r.s.redemptions[id]
	if !ok {
		return nil, pkgerrors.ErrRequestNotFound
	}
	return &req, nil
}

func (r *Redemptions) List(ctx context.Context, status models.RedemptionStatus) ([]models.RedemptionRequest, error) {
	defer r.s.lock(ctx)()
	out := []models.RedemptionRequest{}
	for _, req := range r.s.redemptions {
		if status == "" || req.Status == status {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Redemptions) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to models.RedemptionStatus, processedAt time.Time) (*models.RedemptionRequest, error) {
	if !to.Valid() {
		return nil, pkgerrors.ErrInvalidTarget
	}
	defer r.s.lock(ctx)()
	req, ok := r.s.redemptions[id]
	if !ok {
		return nil, pkgerrors.ErrRequestNotFound
	}
	if req.Status != from {
		return nil, &pkgerrors.InvalidStateError{RequestID: id, Current: string(req.Status), Target: string(to)}
	}
	req.Status = to
	req.ProcessedAt = nil
	if to.Terminal() {
		t := processedAt.UTC()
		req.ProcessedAt = &t
	}
	r.s.redemptions[id] = req
	return &req, nil
}

type Balances struct{ s *Store }

func (b *Balances) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	defer b.s.lock(ctx)()
	bal, ok := b.s.balances[userID]
	if !ok {
		return nil, pkgerrors.ErrBalanceNotFound
	}
	return &bal, nil
}

func (b *Balances) ApplyDelta(ctx context.Context, userID uuid.UUID, availableDelta, redeemedDelta int64) (*models.UserBalance, error) {
	defer b.s.lock(ctx)()
	bal, ok := b.s.balances[userID]
	if !ok {
		return nil, pkgerrors.ErrBalanceNotFound
	}
	available := bal.AvailablePoints + availableDelta
	redeemed := bal.RedeemedPoints + redeemedDelta
	if available < 0 || redeemed < 0 || available+redeemed > bal.TotalPoints {
		if availableDelta < 0 {
			return nil, &pkgerrors.InsufficientBalanceError{UserID: userID, Available: bal.AvailablePoints, Required: -availableDelta}
		}
		return nil, pkgerrors.ErrInvalidInput
	}
	bal.AvailablePoints = available
	bal.RedeemedPoints = redeemed
	bal.UpdatedAt = b.s.now()
	b.s.balances[userID] = bal
	return &bal, nil
}

type Ledger struct{ s *Store }

func (l *Ledger) FindByReference(ctx context.Context, referenceID uuid.UUID, entryType models.LedgerType) (*models.LedgerEntry, error) {
	defer l.s.lock(ctx)()
	for _, e := range l.s.ledger {
		if e.ReferenceID == referenceID && e.Type == entryType {
			return &e, nil
		}
	}
	return nil, pkgerrors.ErrLedgerEntryNotFound
}

func (l *Ledger) ListByReference(ctx context.Context, referenceID uuid.UUID) ([]models.LedgerEntry, error) {
	defer l.s.lock(ctx)()
	out := []models.LedgerEntry{}
	for _, e := range l.s.ledger {
		if e.ReferenceID == referenceID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (l *Ledger) Create(ctx context.Context, entry *models.LedgerEntry) error {
	if entry == nil {
		return pkgerrors.ErrNilLedgerEntry
	}
	defer l.s.lock(ctx)()
	for _, e := range l.s.ledger {
		if e.ReferenceID == entry.ReferenceID && e.Type == entry.Type {
			return &repository.DuplicateReferenceError{ReferenceID: entry.ReferenceID, Type: entry.Type}
		}
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := l.s.now()
	entry.CreatedAt, entry.UpdatedAt = now, now
	l.s.ledger[entry.ID] = *entry
	return nil
}

func (l *Ledger) Update(ctx context.Context, entry *models.LedgerEntry) error {
	if entry == nil {
		return pkgerrors.ErrNilLedgerEntry
	}
	defer l.s.lock(ctx)()
	existing, ok := l.s.ledger[entry.ID]
	if !ok {
		return pkgerrors.ErrLedgerEntryNotFound
	}
	existing.Amount = entry.Amount
	existing.Status = entry.Status
	existing.Description = entry.Description
	existing.UpdatedAt = l.s.now()
	l.s.ledger[entry.ID] = existing
	*entry = existing
	return nil
}

type Notifications struct{ s *Store }

func (n *Notifications) ListActive(ctx context.Context) ([]models.Notification, error) {
	defer n.s.lock(ctx)()
	out := []models.Notification{}
	for _, rec := range n.s.notifications {
		if rec.IsActive {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type Admins struct{ s *Store }

func (a *Admins) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	defer a.s.lock(ctx)()
	for _, admin := range a.s.admins {
		if admin.Email == email {
			return &admin, nil
		}
	}
	return nil, pkgerrors.ErrAdminNotFound
}

func (a *Admins) GetByID(ctx context.Context, id uuid.UUID) (*models.Admin, error) {
	defer a.s.lock(ctx)()
	admin, ok := a.s.admins[id]
	if !ok {
		return nil, pkgerrors.ErrAdminNotFound
	}
	return &admin, nil
}

var (
	_ repository.Transactor             = (*Store)(nil)
	_ repository.RedemptionRepository   = (*Redemptions)(nil)
	_ repository.BalanceRepository      = (*Balances)(nil)
	_ repository.LedgerRepository       = (*Ledger)(nil)
	_ repository.NotificationRepository = (*Notifications)(nil)
	_ repository.AdminRepository        = (*Admins)(nil)
)
