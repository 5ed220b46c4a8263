package notifications

import (
	"sync"

	"github.com/honeynil/RecycleRewardsAdmin/internal/infrastructure/observability"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
)

// Merger keeps the local notification feed: unique by id, newest change
// first, with a read flag that only lives here.
type Merger struct {
	mu       sync.RWMutex
	items    []models.NotificationEvent
	watchers map[int]chan []models.NotificationEvent
	nextID   int
}

func NewMerger() *Merger {
	return &Merger{watchers: make(map[int]chan []models.NotificationEvent)}
}

func (m *Merger) indexOf(id string) int {
	for i := range m.items {
		if m.items[i].ID == id {
			return i
		}
	}
	return -1
}

func toEvent(n models.Notification) models.NotificationEvent {
	return models.NotificationEvent{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Severity:  MapSeverity(n),
		CreatedAt: n.CreatedAt,
	}
}

// Apply merges one change event and reports whether the feed changed.
func (m *Merger) Apply(ev ChangeEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	observability.NotificationEvents.WithLabelValues(string(ev.Kind)).Inc()

	var changed bool
	switch ev.Kind {
	case Inserted, Updated:
		if !ev.Record.IsActive {
			// soft delete
			changed = m.removeLocked(ev.ID)
			break
		}
		changed = m.upsertLocked(ev.Record)
	case Deleted:
		changed = m.removeLocked(ev.ID)
	}

	if changed {
		m.notifyLocked()
	}
	return changed
}

// upsertLocked amends a known id in place, keeping read and position, and
// prepends an unknown one.
func (m *Merger) upsertLocked(n models.Notification) bool {
	if i := m.indexOf(n.ID); i >= 0 {
		cur := &m.items[i]
		cur.Title = n.Title
		cur.Message = n.Message
		cur.Severity = MapSeverity(n)
		return true
	}
	m.items = append([]models.NotificationEvent{toEvent(n)}, m.items...)
	return true
}

func (m *Merger) removeLocked(id string) bool {
	i := m.indexOf(id)
	if i < 0 {
		return false
	}
	m.items = append(m.items[:i], m.items[i+1:]...)
	return true
}

// Reset replaces the feed with a full fetch. Read flags survive for ids
// still present.
func (m *Merger) Reset(records []models.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	read := make(map[string]bool, len(m.items))
	for _, it := range m.items {
		if it.Read {
			read[it.ID] = true
		}
	}

	seen := make(map[string]bool, len(records))
	items := make([]models.NotificationEvent, 0, len(records))
	for _, rec := range records {
		if !rec.IsActive || seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		ev := toEvent(rec)
		ev.Read = read[rec.ID]
		items = append(items, ev)
	}
	m.items = items
	m.notifyLocked()
}

func (m *Merger) MarkRead(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 || m.items[i].Read {
		return false
	}
	m.items[i].Read = true
	m.notifyLocked()
	return true
}

func (m *Merger) MarkAllRead() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for i := range m.items {
		if !m.items[i].Read {
			m.items[i].Read = true
			n++
		}
	}
	if n > 0 {
		m.notifyLocked()
	}
	return n
}

func (m *Merger) Snapshot() []models.NotificationEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Merger) snapshotLocked() []models.NotificationEvent {
	out := make([]models.NotificationEvent, len(m.items))
	copy(out, m.items)
	return out
}

func (m *Merger) Get(id string) (models.NotificationEvent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.indexOf(id); i >= 0 {
		return m.items[i], true
	}
	return models.NotificationEvent{}, false
}

func (m *Merger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Merger) UnreadCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, it := range m.items {
		if !it.Read {
			n++
		}
	}
	return n
}

// Watch returns a channel that always holds the latest snapshot after a
// change. Slow readers only miss intermediate states. Call the returned
// func to stop watching.
func (m *Merger) Watch() (<-chan []models.NotificationEvent, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan []models.NotificationEvent, 1)
	m.watchers[id] = ch

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(ch)
		}
	}
}

func (m *Merger) notifyLocked() {
	observability.NotificationFeedSize.Set(float64(len(m.items)))
	if len(m.watchers) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for _, ch := range m.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
