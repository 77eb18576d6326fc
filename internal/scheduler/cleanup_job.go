package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type NotificationStore interface {
	DeleteReadNotifications(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob deletes notifications that were read and are older than retain.
type CleanupJob struct {
	store    NotificationStore
	interval time.Duration
	retain   time.Duration
	timeout  time.Duration
	now      func() time.Time
	log      *zap.Logger
}

func NewCleanupJob(store NotificationStore, interval, retain time.Duration, log *zap.Logger) *CleanupJob {
	return &CleanupJob{
		store:    store,
		interval: interval,
		retain:   retain,
		timeout:  time.Minute,
		now:      time.Now,
		log:      log,
	}
}

func (j *CleanupJob) Name() string {
	return "notification_cleanup"
}

func (j *CleanupJob) Interval() time.Duration {
	return j.interval
}

func (j *CleanupJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	cutoff := j.now().Add(-j.retain)
	deleted, err := j.store.DeleteReadNotifications(ctx, cutoff)
	if err != nil {
		j.log.Error("failed to clean up notifications", zap.Time("cutoff", cutoff), zap.Error(err))
		return
	}
	j.log.Info("notification cleanup completed", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
}
