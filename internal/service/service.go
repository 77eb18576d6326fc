package service

import (
	"context"
	"fmt"
	"time"

	"freelance/internal/cache"
	"freelance/internal/events"
	"freelance/internal/models"

	"go.uber.org/zap"
)

type Repository interface {
	UserByUUID(ctx context.Context, UUID string) (models.User, bool, error)

	GetProjects(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error)
	GetProjectByUUID(ctx context.Context, UUID string) (models.Project, error)
	AddProject(ctx context.Context, p models.Project) (models.Project, error)
	UpdateProject(ctx context.Context, p models.Project) (models.Project, error)
	CancelProject(ctx context.Context, UUID string) (models.Project, error)
	CompleteProject(ctx context.Context, UUID string) (models.Project, error)
	DeleteProject(ctx context.Context, UUID string) error

	AddBid(ctx context.Context, bid models.Bid) (models.Bid, error)
	GetBids(ctx context.Context, filter models.BidFilter) ([]models.Bid, error)
	GetBidByUUID(ctx context.Context, UUID string) (models.Bid, error)
	HasBid(ctx context.Context, projectId, freelancerId string) (bool, error)
	WithdrawBid(ctx context.Context, UUID string) (models.Bid, error)
	AwardBid(ctx context.Context, projectId, bidId string) (models.Project, models.Bid, error)

	GetMilestones(ctx context.Context, projectId string) ([]models.Milestone, error)
	GetMilestoneByUUID(ctx context.Context, UUID string) (models.Milestone, error)
	AddMilestone(ctx context.Context, m models.Milestone) (models.MilestoneChange, error)
	UpdateMilestone(ctx context.Context, m models.Milestone) (models.MilestoneChange, error)
	TransitionMilestone(ctx context.Context, m models.Milestone, status models.MilestoneStatus) (models.MilestoneChange, error)
	DeleteMilestone(ctx context.Context, m models.Milestone) (models.MilestoneChange, error)

	GetNotifications(ctx context.Context, recipientId string, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, UUID, recipientId string) (models.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, recipientId string) (int64, error)
}

// Cache holds project listings per caller and query.
type Cache interface {
	Get(ctx context.Context, userId, query string, dst any) (slot string, hit bool)
	Set(ctx context.Context, slot string, v any)
	Invalidate(ctx context.Context)
}

// Dispatcher hands events to the broker without blocking.
type Dispatcher interface {
	Enqueue(event events.Event)
}

type Service struct {
	repo   Repository
	cache  Cache
	events Dispatcher
	log    *zap.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) { s.events = d }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		cache: cache.Nop{},
		log:   zap.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = discard{}
	}
	s.log = s.log.Named("service")
	return s
}

// Authenticate resolves the user a verified token refers to.
func (s *Service) Authenticate(ctx context.Context, userId string) (models.User, error) {
	user, ok, err := s.repo.UserByUUID(ctx, userId)
	if err != nil {
		return user, fmt.Errorf("service.Service.Authenticate: %w", err)
	}
	if !ok {
		return user, fmt.Errorf("service.Service.Authenticate: %w", models.ErrInvalidUser)
	}
	return user, nil
}

// written runs after every committed write: cached listings are dropped and
// the events are queued for the notifier.
func (s *Service) written(ctx context.Context, evs ...events.Event) {
	s.cache.Invalidate(context.WithoutCancel(ctx))
	for _, e := range evs {
		s.events.Enqueue(e)
	}
}

type discard struct{}

func (discard) Enqueue(events.Event) {}
