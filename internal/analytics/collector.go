package analytics

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/metrics"
)

// Publisher is the part of the Kafka producer the collector needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type CollectorOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector accepts events without blocking the request path. The
// aggregator sees every event; the publisher sees those that fit in the
// buffer.
type Collector struct {
	publisher  Publisher
	aggregator *Aggregator
	metrics    *metrics.Metrics
	eventCh    chan QueryEvent
	batchSize  int
	interval   time.Duration
	logger     *slog.Logger
	done       chan struct{}
	closeOnce  sync.Once
	started    bool
}

// NewCollector wires the sinks. publisher, aggregator and m may each be nil.
func NewCollector(publisher Publisher, aggregator *Aggregator, m *metrics.Metrics, opts CollectorOptions) *Collector {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	return &Collector{
		publisher:  publisher,
		aggregator: aggregator,
		metrics:    m,
		eventCh:    make(chan QueryEvent, opts.BufferSize),
		batchSize:  opts.BatchSize,
		interval:   opts.FlushInterval,
		logger:     slog.Default().With("component", "analytics-collector"),
		done:       make(chan struct{}),
	}
}

// Start launches the publish loop. Without a publisher there is nothing to
// run.
func (c *Collector) Start(ctx context.Context) {
	if c.publisher == nil {
		close(c.done)
		return
	}
	c.started = true
	go c.run(ctx)
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh), "batch_size", c.batchSize)
}

// Track records event. It never blocks.
func (c *Collector) Track(event QueryEvent) {
	if c.aggregator != nil {
		c.aggregator.Record(event)
	}
	if !c.started {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		if c.metrics != nil {
			c.metrics.AnalyticsDropped.Inc()
		}
		c.logger.Debug("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events, flushes what is buffered and waits for the
// loop to exit. Track must not be called after Close.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		if c.started {
			close(c.eventCh)
		}
	})
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.publisher.PublishBatch(ctx, batch); err != nil {
			c.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
			if c.metrics != nil {
				c.metrics.AnalyticsDropped.Add(float64(len(batch)))
			}
		} else {
			c.logger.Debug("batch flushed", "events", len(batch))
		}
		batch = batch[:0]
	}
	final := func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for event := range c.drain() {
			batch = append(batch, kafka.Event{Key: event.Key(), Value: event})
			if len(batch) >= c.batchSize {
				flush(flushCtx)
			}
		}
		flush(flushCtx)
	}

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				final()
				return
			}
			batch = append(batch, kafka.Event{Key: event.Key(), Value: event})
			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			final()
			return
		}
	}
}

// drain yields whatever is buffered right now without waiting for more.
func (c *Collector) drain() iter.Seq[QueryEvent] {
	return func(yield func(QueryEvent) bool) {
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok || !yield(event) {
					return
				}
			default:
				return
			}
		}
	}
}
