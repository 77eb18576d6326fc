package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freelance/internal/metrics"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Sink delivers one event to the broker.
type Sink interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Dispatcher publishes events in the background. Enqueue never blocks and
// never reports failure to the caller: a saturated pool drops the event and
// publish errors are only logged and counted.
type Dispatcher struct {
	pool    *ants.Pool
	sink    Sink
	timeout time.Duration
	log     *zap.Logger
}

func NewDispatcher(sink Sink, size int, log *zap.Logger) (*Dispatcher, error) {
	if size <= 0 {
		size = 1
	}

	d := &Dispatcher{
		sink:    sink,
		timeout: 5 * time.Second,
		log:     log.Named("events"),
	}

	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			d.log.Error("publish task panicked", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events.NewDispatcher: %w", err)
	}
	d.pool = pool

	return d, nil
}

func (d *Dispatcher) Enqueue(event Event) {
	err := d.pool.Submit(func() { d.publish(event) })
	if err == nil {
		return
	}

	result := "dropped"
	if errors.Is(err, ants.ErrPoolClosed) {
		result = "closed"
	}
	metrics.RecordEvent(event.RoutingKey, result)
	d.log.Warn("event not dispatched",
		zap.String("routing_key", event.RoutingKey),
		zap.String("event_id", event.EventId),
		zap.Error(err),
	)
}

func (d *Dispatcher) publish(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.sink.Publish(ctx, event.RoutingKey, event)
	if err != nil {
		metrics.RecordEvent(event.RoutingKey, "failed")
		d.log.Error("failed to publish event",
			zap.String("routing_key", event.RoutingKey),
			zap.String("event_id", event.EventId),
			zap.Error(err),
		)
		return
	}

	metrics.RecordEvent(event.RoutingKey, "published")
	d.log.Debug("event published",
		zap.String("routing_key", event.RoutingKey),
		zap.String("event_id", event.EventId),
	)
}

// Close waits up to timeout for queued publishes to finish.
func (d *Dispatcher) Close(timeout time.Duration) error {
	return d.pool.ReleaseTimeout(timeout)
}

// LogSink stands in for the broker when events are disabled.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Publish(_ context.Context, routingKey string, payload any) error {
	s.Log.Info("event (broker disabled)", zap.String("routing_key", routingKey), zap.Any("payload", payload))
	return nil
}
