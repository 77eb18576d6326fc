// Package scheduler runs the periodic maintenance jobs of the notifier.
package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Interval() time.Duration
	Execute()
}

type Manager struct {
	scheduler gocron.Scheduler
	log       *zap.Logger
}

func NewManager(log *zap.Logger) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler.NewManager: %w", err)
	}
	return &Manager{scheduler: s, log: log}, nil
}

// Register adds job to the schedule. A run that is still going when the next
// one is due pushes the next one back. Jobs with immediate set also run once
// at Start.
func (m *Manager) Register(job Job, immediate bool) error {
	opts := []gocron.JobOption{
		gocron.WithName(job.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if immediate {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	_, err := m.scheduler.NewJob(
		gocron.DurationJob(job.Interval()),
		gocron.NewTask(job.Execute),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("scheduler.Manager.Register: job %s: %w", job.Name(), err)
	}
	m.log.Info("job registered", zap.String("job", job.Name()), zap.Duration("interval", job.Interval()))
	return nil
}

func (m *Manager) Start() {
	m.scheduler.Start()
	m.log.Info("scheduler started")
}

func (m *Manager) Stop() {
	if err := m.scheduler.Shutdown(); err != nil {
		m.log.Error("failed to shut down scheduler", zap.Error(err))
		return
	}
	m.log.Info("scheduler stopped")
}
