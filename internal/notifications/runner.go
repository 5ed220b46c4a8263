package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/honeynil/RecycleRewardsAdmin/internal/infrastructure/observability"
	"github.com/honeynil/RecycleRewardsAdmin/internal/repository"
)

var ErrSubscriptionClosed = errors.New("notification subscription closed")

// Runner drives a Merger from a Feed. Every (re)subscription is followed by
// a full refetch, because events buffered during a disconnect are not
// replayed.
type Runner struct {
	merger  *Merger
	feed    Feed
	source  repository.NotificationRepository
	backoff time.Duration
}

func NewRunner(merger *Merger, feed Feed, source repository.NotificationRepository, backoff time.Duration) *Runner {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Runner{merger: merger, feed: feed, source: source, backoff: backoff}
}

// Run blocks until ctx is done. The active subscription is closed before
// Run returns.
func (r *Runner) Run(ctx context.Context) {
	first := true
	for {
		if !first {
			observability.NotificationResubscribes.Inc()
		}
		first = false

		err := r.runOnce(ctx)
		if ctx.Err() != nil {
			slog.Info("notification feed stopped")
			return
		}
		slog.Warn("notification feed interrupted, resubscribing", "error", err, "backoff", r.backoff)

		select {
		case <-ctx.Done():
			slog.Info("notification feed stopped")
			return
		case <-time.After(r.backoff):
		}
	}
}

// runOnce subscribes before fetching so that no change between the fetch
// and the subscription is lost; replayed inserts merge as updates.
func (r *Runner) runOnce(ctx context.Context) error {
	sub, err := r.feed.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := sub.Close(); err != nil {
			slog.Error("failed to close notification subscription", "error", err)
		}
	}()

	records, err := r.source.ListActive(ctx)
	if err != nil {
		return err
	}
	r.merger.Reset(records)
	slog.Info("notification feed synchronized", "count", len(records))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return ErrSubscriptionClosed
			}
			r.merger.Apply(ev)
		}
	}
}
