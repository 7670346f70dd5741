package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/noodle-search/noodle/pkg/kafka"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// CollectorConfig sizes the event buffer and the Kafka batches.
type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector accepts events without blocking the caller. A single goroutine
// records each event in the Aggregator and flushes them to the Publisher
// when a batch fills up or FlushInterval elapses. Either sink may be nil.
// Track is safe to call concurrently with and after Close.
type Collector struct {
	publisher  Publisher
	aggregator *Aggregator
	cfg        CollectorConfig
	eventCh    chan SearchEvent
	stop       chan struct{}
	done       chan struct{}
	logger     *slog.Logger

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func NewCollector(publisher Publisher, aggregator *Aggregator, cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	return &Collector{
		publisher:  publisher,
		aggregator: aggregator,
		cfg:        cfg,
		eventCh:    make(chan SearchEvent, cfg.BufferSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     slog.Default().With("component", "analytics-collector"),
	}
}

// Start launches the collector loop. It runs until ctx is cancelled or
// Close is called; pending events are flushed either way.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", c.cfg.BufferSize,
		"batch_size", c.cfg.BatchSize,
		"kafka", c.publisher != nil,
	)
}

// Track enqueues event, dropping it when the buffer is full or the
// collector has been closed.
func (c *Collector) Track(event SearchEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.logger.Debug("analytics event dropped (collector closed)", "query", event.Query)
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)", "query", event.Query)
	}
}

// Close stops accepting events and waits for the final flush. The collector
// must have been started. Close may be called more than once.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.stop)
	})
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.cfg.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 || c.publisher == nil {
			batch = batch[:0]
			return
		}
		if err := c.publisher.PublishBatch(ctx, batch); err != nil {
			c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}
	add := func(event SearchEvent) {
		if c.aggregator != nil {
			c.aggregator.Record(event)
		}
		batch = append(batch, kafka.Event{Key: event.Query, Value: event})
	}

	for {
		select {
		case event := <-c.eventCh:
			add(event)
			if len(batch) >= c.cfg.BatchSize {
				flush(ctx)
			}
		case <-c.stop:
			c.drain(add)
			flush(context.Background())
			return
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			c.drain(add)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			flush(shutdownCtx)
			cancel()
			return
		}
	}
}

func (c *Collector) drain(add func(SearchEvent)) {
	for {
		select {
		case event := <-c.eventCh:
			add(event)
		default:
			return
		}
	}
}
