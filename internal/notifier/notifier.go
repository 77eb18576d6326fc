// Package notifier turns domain events into per-user notifications and
// best-effort emails.
package notifier

import (
	"context"
	"errors"
	"fmt"

	"freelance/internal/events"
	"freelance/internal/metrics"
	"freelance/internal/models"

	"go.uber.org/zap"
)

type Store interface {
	UserByUUID(ctx context.Context, UUID string) (models.User, bool, error)
	GetProjectByUUID(ctx context.Context, UUID string) (models.Project, error)
	GetBidByUUID(ctx context.Context, UUID string) (models.Bid, error)
	GetMilestoneByUUID(ctx context.Context, UUID string) (models.Milestone, error)
	AddNotification(ctx context.Context, n models.Notification) (models.Notification, bool, error)
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Deduper skips events already handled. AcquireOnce returns false for a
// duplicate, Release forgets an event whose handling failed.
type Deduper interface {
	AcquireOnce(ctx context.Context, key string) bool
	Release(ctx context.Context, key string)
}

type Notifier struct {
	store   Store
	mailer  Mailer
	dedup   Deduper
	siteURL string
	log     *zap.Logger
}

type Option func(*Notifier)

func WithDeduper(d Deduper) Option {
	return func(n *Notifier) { n.dedup = d }
}

func WithLogger(log *zap.Logger) Option {
	return func(n *Notifier) { n.log = log }
}

// WithSiteURL sets the prefix of links in emails.
func WithSiteURL(url string) Option {
	return func(n *Notifier) { n.siteURL = url }
}

func New(store Store, mailer Mailer, opts ...Option) *Notifier {
	n := &Notifier{
		store:  store,
		mailer: mailer,
		dedup:  NopDeduper{},
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// draft is a notification not yet addressed to a recipient.
type draft struct {
	kind       models.NotificationType
	title      string
	message    string
	link       string
	recipients []string
}

// Handle stores one notification per recipient of event and mails the
// recipients who opted in. Events about entities that no longer exist are
// dropped.
func (n *Notifier) Handle(ctx context.Context, event events.Event) error {
	if len(event.EventId) == 0 {
		return fmt.Errorf("notifier.Notifier.Handle: missing event id: %w", events.ErrMalformed)
	}

	key := "notifier:" + event.EventId
	if !n.dedup.AcquireOnce(ctx, key) {
		metrics.RecordNotification(event.RoutingKey, "duplicate")
		return nil
	}

	// the key is released on errors and panics so a redelivery is handled again
	handled := false
	defer func() {
		if !handled {
			n.dedup.Release(ctx, key)
		}
	}()

	if err := n.handle(ctx, event); err != nil {
		return fmt.Errorf("notifier.Notifier.Handle: %w", err)
	}
	handled = true
	return nil
}

func (n *Notifier) handle(ctx context.Context, event events.Event) error {
	d, err := n.resolve(ctx, event)
	switch {
	case errors.Is(err, models.ErrNoProject), errors.Is(err, models.ErrNoBid), errors.Is(err, models.ErrNoMilestone):
		n.log.Info("event target is gone, skipping",
			zap.String("event_id", event.EventId),
			zap.String("routing_key", event.RoutingKey),
			zap.Error(err))
		metrics.RecordNotification(event.RoutingKey, "gone")
		return nil
	case err != nil:
		return err
	}

	for _, recipientId := range d.recipients {
		if err = n.deliver(ctx, event, d, recipientId); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) resolve(ctx context.Context, event events.Event) (draft, error) {
	var d draft

	switch event.RoutingKey {
	case events.BidCreated:
		bid, err := n.store.GetBidByUUID(ctx, event.BidId)
		if err != nil {
			return d, err
		}
		project, err := n.store.GetProjectByUUID(ctx, bid.ProjectId)
		if err != nil {
			return d, err
		}
		bidder := bid.FreelancerId
		if u, ok, err := n.store.UserByUUID(ctx, bid.FreelancerId); err == nil && ok {
			bidder = u.FullName()
		}
		d = draft{
			kind:       models.NotifyBid,
			title:      "New bid on " + project.Title,
			message:    fmt.Sprintf("%s placed a bid of %s", bidder, bid.Amount.StringFixed(2)),
			link:       fmt.Sprintf("/projects/%s/", project.Id),
			recipients: []string{project.ClientId},
		}

	case events.ProjectUpdated:
		project, err := n.store.GetProjectByUUID(ctx, event.ProjectId)
		if err != nil {
			return d, err
		}
		d = draft{
			kind:       models.NotifyProject,
			title:      "Project Update: " + project.Title,
			message:    event.Message,
			link:       fmt.Sprintf("/projects/%s/", project.Id),
			recipients: participants(project),
		}

	case events.MilestoneUpdated:
		m, err := n.store.GetMilestoneByUUID(ctx, event.MilestoneId)
		if err != nil {
			return d, err
		}
		project, err := n.store.GetProjectByUUID(ctx, m.ProjectId)
		if err != nil {
			return d, err
		}
		d = draft{
			kind:       models.NotifyMilestone,
			title:      "Milestone Update: " + m.Title,
			message:    fmt.Sprintf("Milestone %q has been %s", m.Title, event.Kind),
			link:       fmt.Sprintf("/projects/%s/milestones/%s/", project.Id, m.Id),
			recipients: participants(project),
		}

	default:
		return d, fmt.Errorf("unknown routing key %q: %w", event.RoutingKey, events.ErrMalformed)
	}

	return d, nil
}

func participants(p models.Project) []string {
	if len(p.FreelancerId) == 0 || p.FreelancerId == p.ClientId {
		return []string{p.ClientId}
	}
	return []string{p.ClientId, p.FreelancerId}
}

func (n *Notifier) deliver(ctx context.Context, event events.Event, d draft, recipientId string) error {
	user, ok, err := n.store.UserByUUID(ctx, recipientId)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	_, inserted, err := n.store.AddNotification(ctx, models.Notification{
		RecipientId: recipientId,
		EventId:     event.EventId,
		Type:        d.kind,
		Title:       d.title,
		Message:     d.message,
		Link:        d.link,
	})
	if err != nil {
		metrics.RecordNotification(string(d.kind), "failed")
		return err
	}
	if !inserted {
		metrics.RecordNotification(string(d.kind), "duplicate")
		return nil
	}
	metrics.RecordNotification(string(d.kind), "created")

	if !user.EmailNotifications || len(user.Email) == 0 {
		return nil
	}

	body := fmt.Sprintf("%s\n\nClick here to view: %s%s", d.message, n.siteURL, d.link)
	if err = n.mailer.Send(ctx, user.Email, d.title, body); err != nil {
		n.log.Warn("failed to send notification email",
			zap.String("recipient_id", recipientId),
			zap.String("event_id", event.EventId),
			zap.Error(err))
		metrics.RecordNotification(string(d.kind), "mail_failed")
		return nil
	}
	metrics.RecordNotification(string(d.kind), "mailed")
	return nil
}
