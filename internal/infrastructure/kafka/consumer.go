package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/honeynil/RecycleRewardsAdmin/internal/notifications"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ChangeFeed subscribes to the notifications change topic. Every
// subscription reads all partitions without a consumer group, starting at
// the end offsets observed while subscribing: history is covered by the
// refetch that follows.
type ChangeFeed struct {
	brokers []string
	topic   string

	// endOffsets returns the next offset to be written, per partition.
	endOffsets func(ctx context.Context) (map[int]int64, error)
	newReader  func(partition int, offset int64) (messageReader, error)
}

func NewChangeFeed(brokers []string, topic string) *ChangeFeed {
	f := &ChangeFeed{brokers: brokers, topic: topic}
	f.endOffsets = f.readEndOffsets
	f.newReader = func(partition int, offset int64) (messageReader, error) {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:   f.brokers,
			Topic:     f.topic,
			Partition: partition,
			MinBytes:  1,
			MaxBytes:  10e6,
			MaxWait:   time.Second,
		})
		if err := r.SetOffset(offset); err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to set offset %d on partition %d: %w", offset, partition, err)
		}
		return r, nil
	}
	return f
}

func (f *ChangeFeed) readEndOffsets(ctx context.Context) (map[int]int64, error) {
	var lastErr error
	for _, broker := range f.brokers {
		offsets, err := f.endOffsetsVia(ctx, broker)
		if err == nil {
			return offsets, nil
		}
		slog.Warn("failed to read partition offsets", "broker", broker, "topic", f.topic, "error", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no kafka brokers configured")
	}
	return nil, lastErr
}

func (f *ChangeFeed) endOffsetsVia(ctx context.Context, broker string) (map[int]int64, error) {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(f.topic)
	if err != nil {
		return nil, fmt.Errorf("failed to read partitions: %w", err)
	}

	offsets := make(map[int]int64, len(partitions))
	for _, p := range partitions {
		leader := net.JoinHostPort(p.Leader.Host, strconv.Itoa(p.Leader.Port))
		lc, err := kafka.DialLeader(ctx, "tcp", leader, f.topic, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to dial leader of partition %d: %w", p.ID, err)
		}
		last, err := lc.ReadLastOffset()
		lc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read last offset of partition %d: %w", p.ID, err)
		}
		offsets[p.ID] = last
	}
	return offsets, nil
}

// Subscribe pins every partition's start offset before returning, so a
// fetch made after Subscribe cannot miss a change.
func (f *ChangeFeed) Subscribe(ctx context.Context) (notifications.Subscription, error) {
	offsets, err := f.endOffsets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve change feed offsets: %w", err)
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("topic %s has no partitions", f.topic)
	}

	readers := make([]messageReader, 0, len(offsets))
	for partition, offset := range offsets {
		r, err := f.newReader(partition, offset)
		if err != nil {
			for _, opened := range readers {
				opened.Close()
			}
			return nil, err
		}
		readers = append(readers, r)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &consumer{
		readers: readers,
		topic:   f.topic,
		cancel:  cancel,
		events:  make(chan notifications.ChangeEvent, 64),
		done:    make(chan struct{}),
	}

	var wg sync.WaitGroup
	for _, r := range readers {
		wg.Add(1)
		go func(r messageReader) {
			defer wg.Done()
			sub.consume(ctx, r)
		}(r)
	}
	go func() {
		wg.Wait()
		close(sub.events)
		close(sub.done)
	}()

	slog.Info("subscribed to notification changes", "topic", f.topic, "partitions", len(readers))
	return sub, nil
}

type consumer struct {
	readers []messageReader
	topic   string
	cancel  context.CancelFunc
	events  chan notifications.ChangeEvent
	done    chan struct{}

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
	closeErr  error
}

// consume forwards one partition. The first read error ends the whole
// subscription.
func (c *consumer) consume(ctx context.Context, reader messageReader) {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("failed to read Kafka message", "topic", c.topic, "error", err)
				c.fail(err)
			}
			return
		}

		ev, err := notifications.DecodeChangeEvent(msg.Value)
		if err != nil {
			slog.Warn("skipping malformed change event", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (c *consumer) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.cancel()
}

func (c *consumer) Events() <-chan notifications.ChangeEvent {
	return c.events
}

func (c *consumer) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *consumer) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done
		for _, r := range c.readers {
			if err := r.Close(); err != nil {
				slog.Error("failed to close Kafka reader", "topic", c.topic, "error", err)
				c.closeErr = err
			}
		}
		if c.closeErr == nil {
			slog.Info("notification subscription closed", "topic", c.topic)
		}
	})
	return c.closeErr
}
