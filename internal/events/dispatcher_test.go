package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"freelance/internal/metrics"
	"freelance/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

type chanSink struct {
	published chan Event
	block     chan struct{}
	err       error
}

func (s *chanSink) Publish(ctx context.Context, routingKey string, payload any) error {
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return s.err
	}
	s.published <- payload.(Event)
	return nil
}

func TestDispatcherPublishes(t *testing.T) {
	sink := &chanSink{published: make(chan Event, 1)}
	d, err := NewDispatcher(sink, 2, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close(time.Second)

	event := NewBidCreated(models.Bid{Id: "b1", ProjectId: "p1"})
	d.Enqueue(event)

	select {
	case got := <-sink.published:
		if got.EventId != event.EventId || got.RoutingKey != BidCreated || got.BidId != "b1" || got.ProjectId != "p1" {
			t.Fatalf("Unexpected published event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Event was not published")
	}
}

func TestDispatcherDropsWhenSaturated(t *testing.T) {
	sink := &chanSink{published: make(chan Event, 2), block: make(chan struct{})}
	d, err := NewDispatcher(sink, 1, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	key := ProjectUpdated
	dropped := testutil.ToFloat64(metrics.EventsTotal.WithLabelValues(key, "dropped"))

	d.Enqueue(NewProjectUpdated("p1", KindBidAccepted, "first"))
	d.Enqueue(NewProjectUpdated("p1", KindBidAccepted, "second"))

	if got := testutil.ToFloat64(metrics.EventsTotal.WithLabelValues(key, "dropped")); got != dropped+1 {
		t.Fatalf("Expected one dropped event, counter moved from %v to %v", dropped, got)
	}

	close(sink.block)
	if err = d.Close(2 * time.Second); err != nil {
		t.Fatal(err)
	}
	if len(sink.published) != 1 {
		t.Fatalf("Expected exactly one published event, got %d", len(sink.published))
	}
}

func TestDispatcherSwallowsPublishErrors(t *testing.T) {
	sink := &chanSink{err: errors.New("broker down")}
	d, err := NewDispatcher(sink, 1, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	key := MilestoneUpdated
	failed := testutil.ToFloat64(metrics.EventsTotal.WithLabelValues(key, "failed"))

	d.Enqueue(NewMilestoneUpdated(models.Milestone{Id: "m1", ProjectId: "p1"}, KindMilestoneDone))
	if err = d.Close(2 * time.Second); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(metrics.EventsTotal.WithLabelValues(key, "failed")); got != failed+1 {
		t.Fatalf("Expected failed counter to grow by one, moved from %v to %v", failed, got)
	}
}

type fakeAck struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAck) Ack(bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = true
	return nil
}

func (a *fakeAck) Nack(_, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = true
	a.requeue = requeue
	return nil
}

func TestConsumerSettlesMessages(t *testing.T) {
	valid := []byte(`{"event_id":"e1","routing_key":"bid.created","project_id":"p1","bid_id":"b1"}`)

	cases := []struct {
		name        string
		body        []byte
		redelivered bool
		handler     Handler
		acked       bool
		requeue     bool
	}{
		{"ok", valid, false, func(context.Context, Event) error { return nil }, true, false},
		{"malformed json", []byte("{"), false, func(context.Context, Event) error { return nil }, false, false},
		{"missing id", []byte(`{"routing_key":"bid.created"}`), false, func(context.Context, Event) error { return nil }, false, false},
		{"first failure", valid, false, func(context.Context, Event) error { return errors.New("db down") }, false, true},
		{"second failure", valid, true, func(context.Context, Event) error { return errors.New("db down") }, false, false},
		{"panic", valid, false, func(context.Context, Event) error { panic("boom") }, false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Consumer{log: zap.NewNop(), handler: tc.handler}
			ack := &fakeAck{}

			c.process(context.Background(), BidCreated, tc.body, tc.redelivered, ack)

			if ack.acked != tc.acked {
				t.Errorf("acked = %v, want %v", ack.acked, tc.acked)
			}
			if !tc.acked && !ack.nacked {
				t.Error("Expected message to be nacked")
			}
			if ack.requeue != tc.requeue {
				t.Errorf("requeue = %v, want %v", ack.requeue, tc.requeue)
			}
		})
	}
}
