package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/honeynil/RecycleRewardsAdmin/internal/models"
	"github.com/honeynil/RecycleRewardsAdmin/internal/repository"
)

// Viewer opens notification views over one feed and source.
type Viewer struct {
	feed    Feed
	source  repository.NotificationRepository
	backoff time.Duration
}

func NewViewer(feed Feed, source repository.NotificationRepository, backoff time.Duration) *Viewer {
	return &Viewer{feed: feed, source: source, backoff: backoff}
}

// View is a live merged feed with its own read flags. It holds a feed
// subscription until Close.
type View struct {
	*Merger
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Open starts a view. The caller must Close it.
func (v *Viewer) Open(ctx context.Context) *View {
	ctx, cancel := context.WithCancel(ctx)
	view := &View{
		Merger: NewMerger(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	runner := NewRunner(view.Merger, v.feed, v.source, v.backoff)
	go func() {
		defer close(view.done)
		runner.Run(ctx)
	}()
	return view
}

// Close stops the runner and waits until its subscription is released.
func (v *View) Close() {
	v.once.Do(func() {
		v.cancel()
		<-v.done
	})
}

// Fetch returns the current active set without subscribing.
func (v *Viewer) Fetch(ctx context.Context) ([]models.NotificationEvent, error) {
	records, err := v.source.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	m := NewMerger()
	m.Reset(records)
	return m.Snapshot(), nil
}
