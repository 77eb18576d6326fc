// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketplace"

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	BidsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bids_total",
			Help:      "Bid submissions by result",
		},
		[]string{"result"}, // created, invalid, duplicate, closed
	)

	AwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "awards_total",
			Help:      "Bid acceptance attempts by result",
		},
		[]string{"result"}, // accepted, conflict
	)

	ProjectsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projects_completed_total",
			Help:      "Projects moved to COMPLETED by trigger",
		},
		[]string{"trigger"}, // explicit, milestones
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events handed to the broker by result",
		},
		[]string{"routing_key", "result"}, // published, failed, dropped
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications written by the notifier",
		},
		[]string{"type", "result"}, // stored, duplicate, failed
	)

	ConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "consume_latency_seconds",
			Help:      "Time spent handling one queued event",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"routing_key", "result"},
	)
)

func RecordBid(result string) {
	BidsTotal.WithLabelValues(result).Inc()
}

func RecordAward(result string) {
	AwardsTotal.WithLabelValues(result).Inc()
}

func RecordProjectCompleted(trigger string) {
	ProjectsCompleted.WithLabelValues(trigger).Inc()
}

func RecordEvent(routingKey, result string) {
	EventsTotal.WithLabelValues(routingKey, result).Inc()
}

func RecordNotification(kind, result string) {
	NotificationsTotal.WithLabelValues(kind, result).Inc()
}

func RecordConsume(routingKey, result string, d time.Duration) {
	ConsumeLatency.WithLabelValues(routingKey, result).Observe(d.Seconds())
}

// Middleware observes request durations labelled by the matched chi route, so
// ids in paths do not blow up label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); len(pattern) > 0 {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
