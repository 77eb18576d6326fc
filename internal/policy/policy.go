// Package policy holds the capability table of the marketplace: for every
// operation it decides whether a caller may perform it on a resource.
package policy

import (
	"fmt"

	"freelance/internal/models"
)

type Action string

const (
	CreateProject     Action = "project:create"
	ViewProject       Action = "project:view"
	UpdateProject     Action = "project:update"
	CancelProject     Action = "project:cancel"
	DeleteProject     Action = "project:delete"
	CompleteProject   Action = "project:complete"
	ListProjectBids   Action = "project:list_bids"
	SubmitBid         Action = "bid:submit"
	AcceptBid         Action = "bid:accept"
	WithdrawBid       Action = "bid:withdraw"
	ViewBid           Action = "bid:view"
	CreateMilestone   Action = "milestone:create"
	ManageMilestone   Action = "milestone:manage"
	ProgressMilestone Action = "milestone:progress"
	ViewMilestone     Action = "milestone:view"
)

// Resource is the object an action targets. Project is required for every
// action except CreateProject; Bid is required for bid-level actions.
type Resource struct {
	Project *models.Project
	Bid     *models.Bid

	// CallerHasBid is set when the caller has a bid on Project. It only widens
	// project visibility.
	CallerHasBid bool
}

type rule func(caller models.User, res Resource) bool

var rules = map[Action]rule{
	CreateProject: func(caller models.User, _ Resource) bool {
		return caller.Role == models.RoleClient
	},
	ViewProject: func(caller models.User, res Resource) bool {
		p := res.Project
		switch {
		case p == nil:
			return false
		case caller.Role == models.RoleAdmin, p.IsParticipant(caller.Id):
			return true
		case caller.Role == models.RoleFreelancer:
			return p.Status == models.ProjectOpen || res.CallerHasBid
		}
		return false
	},
	UpdateProject:   isOwner,
	CancelProject:   isOwner,
	DeleteProject:   either(isOwner, isAdmin),
	CompleteProject: isParticipant,
	ListProjectBids: func(caller models.User, res Resource) bool {
		return isOwner(caller, res) || isAdmin(caller, res) || caller.Role == models.RoleFreelancer
	},
	SubmitBid: func(caller models.User, res Resource) bool {
		return res.Project != nil && caller.Role == models.RoleFreelancer && res.Project.ClientId != caller.Id
	},
	AcceptBid: isOwner,
	WithdrawBid: func(caller models.User, res Resource) bool {
		return res.Bid != nil && res.Bid.FreelancerId == caller.Id
	},
	ViewBid: func(caller models.User, res Resource) bool {
		if res.Bid == nil {
			return false
		}
		return res.Bid.FreelancerId == caller.Id || isOwner(caller, res) || isAdmin(caller, res)
	},
	CreateMilestone:   isOwner,
	ManageMilestone:   isOwner,
	ProgressMilestone: isParticipant,
	ViewMilestone:     either(isParticipant, isAdmin),
}

// Check returns nil when caller may perform action on res and an error
// wrapping models.ErrForbidden otherwise.
func Check(caller models.User, action Action, res Resource) error {
	r, ok := rules[action]
	if !ok {
		return fmt.Errorf("policy.Check: unknown action %q: %w", action, models.ErrForbidden)
	}
	if len(caller.Id) == 0 || !r(caller, res) {
		return fmt.Errorf("policy.Check: %s: %w", action, models.ErrForbidden)
	}
	return nil
}

// Allowed is Check without the error.
func Allowed(caller models.User, action Action, res Resource) bool {
	return Check(caller, action, res) == nil
}

func isOwner(caller models.User, res Resource) bool {
	return res.Project != nil && res.Project.ClientId == caller.Id
}

func isAdmin(caller models.User, _ Resource) bool {
	return caller.Role == models.RoleAdmin
}

func isParticipant(caller models.User, res Resource) bool {
	return res.Project != nil && res.Project.IsParticipant(caller.Id)
}

func either(a, b rule) rule {
	return func(caller models.User, res Resource) bool {
		return a(caller, res) || b(caller, res)
	}
}
