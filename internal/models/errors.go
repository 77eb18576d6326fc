package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidUser = errors.New("provided user either does not exist or is not authenticated")
	ErrForbidden   = errors.New("provided user does not have permission for this operation")

	ErrNoProject      = errors.New("requested project does not exist")
	ErrNoBid          = errors.New("requested bid does not exist")
	ErrNoMilestone    = errors.New("requested milestone does not exist")
	ErrNoNotification = errors.New("requested notification does not exist")

	ErrProjectNotOpen       = errors.New("project is not open for bidding")
	ErrProjectNotInProgress = errors.New("project is not in progress")
	ErrProjectFinalized     = errors.New("project is already completed or cancelled")
	ErrBidProcessed         = errors.New("bid not found or already processed")
	ErrBidNotPending        = errors.New("only pending bids can be withdrawn")
	ErrDuplicateBid         = errors.New("freelancer already has an active bid on this project")
	ErrMilestoneNotPending  = errors.New("only pending milestones can be started")
	ErrMilestoneNotActive   = errors.New("only in-progress milestones can be completed")
	ErrMilestoneFinalized   = errors.New("milestone is already completed or cancelled")
)

// ValidationError reports malformed or out-of-range input for a single field.
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Rule)
}

func NewValidationError(field, rule string) error {
	return &ValidationError{Field: field, Rule: rule}
}

// IsStateConflict reports whether err means the operation is not valid for the
// current status of the entity.
func IsStateConflict(err error) bool {
	for _, target := range []error{
		ErrProjectNotOpen,
		ErrProjectNotInProgress,
		ErrProjectFinalized,
		ErrBidProcessed,
		ErrBidNotPending,
		ErrMilestoneNotPending,
		ErrMilestoneNotActive,
		ErrMilestoneFinalized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
