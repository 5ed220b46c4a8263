package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	"github.com/honeynil/RecycleRewardsAdmin/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanSubscription struct {
	ch     chan notifications.ChangeEvent
	closed atomic.Bool
}

func (s *chanSubscription) Events() <-chan notifications.ChangeEvent { return s.ch }
func (s *chanSubscription) Err() error                               { return nil }
func (s *chanSubscription) Close() error {
	s.closed.Store(true)
	return nil
}

type chanFeed struct {
	subs chan *chanSubscription
}

func (f *chanFeed) Subscribe(ctx context.Context) (notifications.Subscription, error) {
	sub := &chanSubscription{ch: make(chan notifications.ChangeEvent, 4)}
	f.subs <- sub
	return sub, nil
}

// readUntil reads snapshots until cond holds.
func readUntil(t *testing.T, conn *websocket.Conn, cond func(streamMessage) bool) streamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg streamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if cond(msg) {
			return msg
		}
	}
}

func TestNotificationStream(t *testing.T) {
	feed := &chanFeed{subs: make(chan *chanSubscription, 2)}
	env := newTestEnv(t, nil, feed)
	env.store.PutNotification(models.Notification{ID: "n1", Title: "Depot closed", Priority: "high", IsActive: true, CreatedAt: time.Now()})

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/notifications/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	sub := <-feed.subs
	msg := readUntil(t, conn, func(m streamMessage) bool { return len(m.Notifications) == 1 })
	assert.Equal(t, 1, msg.Unread)
	assert.Equal(t, models.SeverityError, msg.Notifications[0].Severity)

	sub.ch <- notifications.ChangeEvent{Kind: notifications.Inserted, ID: "n2", Record: models.Notification{ID: "n2", Title: "New payout window", Type: "info", IsActive: true, CreatedAt: time.Now()}}
	msg = readUntil(t, conn, func(m streamMessage) bool { return len(m.Notifications) == 2 })
	assert.Equal(t, "n2", msg.Notifications[0].ID)
	assert.Equal(t, 2, msg.Unread)

	require.NoError(t, conn.WriteJSON(clientAction{Action: "mark_read", ID: "n1"}))
	msg = readUntil(t, conn, func(m streamMessage) bool { return m.Unread == 1 })
	assert.True(t, msg.Notifications[1].Read)

	// read state survives an update of the same record
	sub.ch <- notifications.ChangeEvent{Kind: notifications.Updated, ID: "n1", Record: models.Notification{ID: "n1", Title: "Depot reopened", Priority: "low", IsActive: true}}
	msg = readUntil(t, conn, func(m streamMessage) bool { return m.Notifications[1].Title == "Depot reopened" })
	assert.True(t, msg.Notifications[1].Read)
	assert.Equal(t, models.SeverityInfo, msg.Notifications[1].Severity)

	require.NoError(t, conn.WriteJSON(clientAction{Action: "mark_all_read"}))
	readUntil(t, conn, func(m streamMessage) bool { return m.Unread == 0 })

	conn.Close()
	assert.Eventually(t, sub.closed.Load, 2*time.Second, 10*time.Millisecond, "subscription must be released when the socket closes")
}

func TestNotificationStream_RequiresAdmin(t *testing.T) {
	feed := &chanFeed{subs: make(chan *chanSubscription, 1)}
	env := newTestEnv(t, nil, feed)
	env.authz.allow = false

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/notifications/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Nil(t, conn)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, feed.subs, "no view may be opened for a refused session")
}
