// Package events carries domain events from the API to the notifier over a
// RabbitMQ topic exchange.
package events

import (
	"time"

	"freelance/internal/models"

	"github.com/google/uuid"
)

// Routing keys.
const (
	BidCreated       = "bid.created"
	ProjectUpdated   = "project.updated"
	MilestoneUpdated = "milestone.updated"
)

// Kinds of project.updated and milestone.updated events.
const (
	KindBidAccepted        = "bid_accepted"
	KindProjectCompleted   = "completed"
	KindProjectCancelled   = "cancelled"
	KindProjectEdited      = "updated"
	KindMilestoneCreated   = "created"
	KindMilestoneStarted   = "started"
	KindMilestoneDone      = "completed"
	KindMilestoneCancelled = "cancelled"
)

// Event is the message body published for every routing key. Consumers are
// expected to look entities up by id rather than trust copied state.
type Event struct {
	EventId     string    `json:"event_id"`
	RoutingKey  string    `json:"routing_key"`
	ProjectId   string    `json:"project_id"`
	BidId       string    `json:"bid_id,omitempty"`
	MilestoneId string    `json:"milestone_id,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	Message     string    `json:"message,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func newEvent(routingKey, projectId string) Event {
	return Event{
		EventId:    uuid.NewString(),
		RoutingKey: routingKey,
		ProjectId:  projectId,
		OccurredAt: time.Now().UTC(),
	}
}

func NewBidCreated(bid models.Bid) Event {
	e := newEvent(BidCreated, bid.ProjectId)
	e.BidId = bid.Id
	return e
}

func NewProjectUpdated(projectId, kind, message string) Event {
	e := newEvent(ProjectUpdated, projectId)
	e.Kind = kind
	e.Message = message
	return e
}

func NewMilestoneUpdated(m models.Milestone, kind string) Event {
	e := newEvent(MilestoneUpdated, m.ProjectId)
	e.MilestoneId = m.Id
	e.Kind = kind
	return e
}
