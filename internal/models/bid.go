package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BidStatus string

const (
	BidPending   BidStatus = "PENDING"
	BidAccepted  BidStatus = "ACCEPTED"
	BidRejected  BidStatus = "REJECTED"
	BidWithdrawn BidStatus = "WITHDRAWN"
)

func ValidBidStatus(t BidStatus) bool {
	switch t {
	case BidPending, BidAccepted, BidRejected, BidWithdrawn:
		return true
	default:
		return false
	}
}

type Bid struct {
	Id           string          `json:"id"`
	ProjectId    string          `json:"projectId"`
	FreelancerId string          `json:"freelancerId"`
	Amount       decimal.Decimal `json:"amount"`
	Proposal     string          `json:"proposal"`
	DeliveryTime int             `json:"deliveryTime"`
	Status       BidStatus       `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Active bids block further submissions by the same freelancer.
func (b Bid) Active() bool {
	return b.Status != BidWithdrawn
}

// ValidateBid checks a new bid against the project it targets. Status and
// ownership rules are checked separately.
func ValidateBid(project Project, bid Bid) error {
	if !bid.Amount.IsPositive() {
		return NewValidationError("amount", "must be positive")
	}
	if err := ValidateAmount("amount", bid.Amount); err != nil {
		return err
	}
	if !project.BudgetContains(bid.Amount) {
		return NewValidationError("amount", "bid amount must be within the project's budget range")
	}
	if bid.DeliveryTime < 1 {
		return NewValidationError("deliveryTime", "must be at least one day")
	}
	return nil
}

// BidFilter narrows bid listings. ClientId selects bids placed on that
// client's projects.
type BidFilter struct {
	ProjectId    string
	FreelancerId string
	ClientId     string
	Status       BidStatus
	Limit        int
	Offset       int
}
