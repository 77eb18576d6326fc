package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeStore struct {
	calls chan time.Time
	err   error
}

func (s *fakeStore) DeleteReadNotifications(_ context.Context, cutoff time.Time) (int64, error) {
	s.calls <- cutoff
	return 3, s.err
}

func TestCleanupJobCutoff(t *testing.T) {
	store := &fakeStore{calls: make(chan time.Time, 1)}
	job := NewCleanupJob(store, time.Hour, 30*24*time.Hour, zap.NewNop())

	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }
	job.Execute()

	cutoff := <-store.calls
	if want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC); !cutoff.Equal(want) {
		t.Fatalf("Expected cutoff %s, got %s", want, cutoff)
	}

	// failures are logged only
	store.err = errors.New("database is down")
	job.Execute()
	<-store.calls
}

func TestManagerRunsJob(t *testing.T) {
	store := &fakeStore{calls: make(chan time.Time, 4)}
	job := NewCleanupJob(store, time.Hour, time.Hour, zap.NewNop())

	m, err := NewManager(zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err = m.Register(job, true); err != nil {
		t.Fatal(err)
	}
	m.Start()
	defer m.Stop()

	select {
	case <-store.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("Job did not run on start")
	}
}
