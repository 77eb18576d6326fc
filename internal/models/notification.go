package models

import "time"

type NotificationType string

const (
	NotifyBid       NotificationType = "BID"
	NotifyProject   NotificationType = "PROJECT"
	NotifyMilestone NotificationType = "MILESTONE"
	NotifySystem    NotificationType = "SYSTEM"
)

type Notification struct {
	Id          string           `json:"id"`
	RecipientId string           `json:"recipientId"`
	EventId     string           `json:"-"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Link        string           `json:"link,omitempty"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"createdAt"`
}
