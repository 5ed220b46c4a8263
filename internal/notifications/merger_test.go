package notifications

import (
	"testing"
	"time"

	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id, title string) models.Notification {
	return models.Notification{ID: id, Title: title, Message: title + " body", Priority: "low", IsActive: true, CreatedAt: time.Now()}
}

func ids(events []models.NotificationEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestMerger_InsertUpdateDeleteLeavesEmpty(t *testing.T) {
	m := NewMerger()
	a := record("a", "Bottle drop")

	assert.True(t, m.Apply(ChangeEvent{Kind: Inserted, ID: "a", Record: a}))
	a.Title = "Bottle drop (edited)"
	assert.True(t, m.Apply(ChangeEvent{Kind: Updated, ID: "a", Record: a}))
	assert.True(t, m.Apply(ChangeEvent{Kind: Deleted, ID: "a"}))

	assert.Empty(t, m.Snapshot())
}

func TestMerger_ReadSurvivesUpdate(t *testing.T) {
	m := NewMerger()
	a := record("a", "Payout queued")
	m.Apply(ChangeEvent{Kind: Inserted, ID: "a", Record: a})
	require.True(t, m.MarkRead("a"))

	a.Message = "Payout queued for review"
	a.Priority = "high"
	m.Apply(ChangeEvent{Kind: Updated, ID: "a", Record: a})

	got, ok := m.Get("a")
	require.True(t, ok)
	assert.True(t, got.Read)
	assert.Equal(t, "Payout queued for review", got.Message)
	assert.Equal(t, models.SeverityError, got.Severity)
}

func TestMerger_OrderingAndPosition(t *testing.T) {
	m := NewMerger()
	m.Apply(ChangeEvent{Kind: Inserted, ID: "a", Record: record("a", "A")})
	m.Apply(ChangeEvent{Kind: Inserted, ID: "b", Record: record("b", "B")})
	m.Apply(ChangeEvent{Kind: Inserted, ID: "c", Record: record("c", "C")})
	assert.Equal(t, []string{"c", "b", "a"}, ids(m.Snapshot()))

	// in-place update keeps position
	m.Apply(ChangeEvent{Kind: Updated, ID: "a", Record: record("a", "A2")})
	assert.Equal(t, []string{"c", "b", "a"}, ids(m.Snapshot()))

	// update for a missed insert is treated as insert
	m.Apply(ChangeEvent{Kind: Updated, ID: "d", Record: record("d", "D")})
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(m.Snapshot()))

	// duplicate insert does not duplicate
	m.Apply(ChangeEvent{Kind: Inserted, ID: "b", Record: record("b", "B2")})
	assert.Equal(t, []string{"d", "c", "b", "a"}, ids(m.Snapshot()))
	got, _ := m.Get("b")
	assert.Equal(t, "B2", got.Title)
}

func TestMerger_DeleteAbsentAndSoftDelete(t *testing.T) {
	m := NewMerger()
	assert.False(t, m.Apply(ChangeEvent{Kind: Deleted, ID: "missing"}))

	a := record("a", "A")
	m.Apply(ChangeEvent{Kind: Inserted, ID: "a", Record: a})
	a.IsActive = false
	assert.True(t, m.Apply(ChangeEvent{Kind: Updated, ID: "a", Record: a}))
	assert.Equal(t, 0, m.Len())
}

func TestMerger_ResetKeepsReadFlags(t *testing.T) {
	m := NewMerger()
	m.Apply(ChangeEvent{Kind: Inserted, ID: "a", Record: record("a", "A")})
	m.Apply(ChangeEvent{Kind: Inserted, ID: "b", Record: record("b", "B")})
	m.MarkRead("a")
	m.MarkRead("b")

	inactive := record("x", "X")
	inactive.IsActive = false
	m.Reset([]models.Notification{record("c", "C"), record("a", "A"), inactive, record("a", "A dup")})

	snap := m.Snapshot()
	assert.Equal(t, []string{"c", "a"}, ids(snap))
	assert.False(t, snap[0].Read)
	assert.True(t, snap[1].Read)
	assert.Equal(t, 1, m.UnreadCount())
}

func TestMerger_MarkReadAndWatch(t *testing.T) {
	m := NewMerger()
	ch, stop := m.Watch()
	defer stop()

	m.Apply(ChangeEvent{Kind: Inserted, ID: "a", Record: record("a", "A")})
	m.Apply(ChangeEvent{Kind: Inserted, ID: "b", Record: record("b", "B")})

	// only the latest snapshot is buffered
	snap := <-ch
	assert.Equal(t, []string{"b", "a"}, ids(snap))

	assert.False(t, m.MarkRead("missing"))
	assert.Equal(t, 2, m.MarkAllRead())
	assert.Equal(t, 0, m.MarkAllRead())
	snap = <-ch
	assert.True(t, snap[0].Read && snap[1].Read)
}

func TestMapSeverity(t *testing.T) {
	cases := []struct {
		kind, priority string
		want           models.Severity
	}{
		{"success", "", models.SeveritySuccess},
		{"WARNING", "low", models.SeverityWarning},
		{"", "urgent", models.SeverityError},
		{"", "high", models.SeverityError},
		{"", "medium", models.SeverityWarning},
		{"", "low", models.SeverityInfo},
		{"promo", "", models.SeverityInfo},
	}
	for _, c := range cases {
		got := MapSeverity(models.Notification{Type: c.kind, Priority: c.priority})
		assert.Equal(t, c.want, got, "type=%q priority=%q", c.kind, c.priority)
	}
}
