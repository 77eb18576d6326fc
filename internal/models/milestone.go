package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MilestoneStatus string

const (
	MilestonePending    MilestoneStatus = "PENDING"
	MilestoneInProgress MilestoneStatus = "IN_PROGRESS"
	MilestoneCompleted  MilestoneStatus = "COMPLETED"
	MilestoneCancelled  MilestoneStatus = "CANCELLED"
)

func ValidMilestoneStatus(s MilestoneStatus) bool {
	switch s {
	case MilestonePending, MilestoneInProgress, MilestoneCompleted, MilestoneCancelled:
		return true
	default:
		return false
	}
}

type Milestone struct {
	Id          string          `json:"id"`
	ProjectId   string          `json:"projectId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     time.Time       `json:"dueDate"`
	Status      MilestoneStatus `json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

func (m Milestone) Finalized() bool {
	return m.Status == MilestoneCompleted || m.Status == MilestoneCancelled
}

// NeedsActiveProject reports whether moving a milestone to status requires its
// project to be IN_PROGRESS.
func NeedsActiveProject(status MilestoneStatus) bool {
	return status == MilestoneInProgress || status == MilestoneCompleted
}

// SetStatus moves the milestone to status and keeps CompletedAt set exactly
// when the status is COMPLETED.
func (m *Milestone) SetStatus(status MilestoneStatus, now time.Time) {
	m.Status = status
	if status == MilestoneCompleted {
		if m.CompletedAt == nil {
			t := now
			m.CompletedAt = &t
		}
		return
	}
	m.CompletedAt = nil
}

// MilestonesComplete reports whether a project holding these milestones should
// auto-complete: there is at least one milestone and all of them are COMPLETED.
func MilestonesComplete(milestones []Milestone) bool {
	if len(milestones) == 0 {
		return false
	}
	for _, m := range milestones {
		if m.Status != MilestoneCompleted {
			return false
		}
	}
	return true
}

func ValidateMilestone(m Milestone, now time.Time) error {
	if len(m.Title) == 0 {
		return NewValidationError("title", "is required")
	}
	if !m.Amount.IsPositive() {
		return NewValidationError("amount", "must be positive")
	}
	if err := ValidateAmount("amount", m.Amount); err != nil {
		return err
	}
	if m.DueDate.IsZero() || !m.DueDate.After(now) {
		return NewValidationError("dueDate", "must be in the future")
	}
	return nil
}

// MilestoneChange is the outcome of a milestone mutation.
type MilestoneChange struct {
	Milestone Milestone
	// ProjectCompleted is set when the mutation completed the owning project.
	ProjectCompleted bool
}
