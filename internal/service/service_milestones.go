package service

import (
	"context"
	"fmt"
	"time"

	"freelance/internal/events"
	"freelance/internal/metrics"
	"freelance/internal/models"
	"freelance/internal/policy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MilestoneChanges lists the editable milestone fields. Nil fields stay as
// they are.
type MilestoneChanges struct {
	Title       *string
	Description *string
	Amount      *decimal.Decimal
	DueDate     *time.Time
}

func (s *Service) GetMilestones(ctx context.Context, caller models.User, projectId string) ([]models.Milestone, error) {
	project, err := s.repo.GetProjectByUUID(ctx, projectId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetMilestones: %w", err)
	}

	err = policy.Check(caller, policy.ViewMilestone, policy.Resource{Project: &project})
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetMilestones: %w", hidden(err, models.ErrNoProject))
	}

	milestones, err := s.repo.GetMilestones(ctx, project.Id)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetMilestones: %w", err)
	}
	return milestones, nil
}

func (s *Service) GetMilestone(ctx context.Context, caller models.User, milestoneId string) (models.Milestone, error) {
	m, _, err := s.milestoneFor(ctx, caller, milestoneId, policy.ViewMilestone)
	if err != nil {
		return m, fmt.Errorf("service.Service.GetMilestone: %w", hidden(err, models.ErrNoMilestone))
	}
	return m, nil
}

func (s *Service) AddMilestone(ctx context.Context, caller models.User, projectId string, m models.Milestone) (models.Milestone, error) {
	project, err := s.repo.GetProjectByUUID(ctx, projectId)
	if err != nil {
		return m, fmt.Errorf("service.Service.AddMilestone: %w", err)
	}

	err = policy.Check(caller, policy.CreateMilestone, policy.Resource{Project: &project})
	if err != nil {
		return m, fmt.Errorf("service.Service.AddMilestone: %w", err)
	}
	if project.Finalized() {
		return m, fmt.Errorf("service.Service.AddMilestone: %w", models.ErrProjectFinalized)
	}
	if err = validateTitle(m.Title); err != nil {
		return m, fmt.Errorf("service.Service.AddMilestone: %w", err)
	}
	if err = models.ValidateMilestone(m, s.now()); err != nil {
		return m, fmt.Errorf("service.Service.AddMilestone: %w", err)
	}

	m.ProjectId = project.Id
	change, err := s.repo.AddMilestone(ctx, m)
	if err != nil {
		return m, fmt.Errorf("service.Service.AddMilestone: %w", err)
	}

	s.milestoneWritten(ctx, change, events.KindMilestoneCreated)
	return change.Milestone, nil
}

func (s *Service) EditMilestone(ctx context.Context, caller models.User, milestoneId string, changes MilestoneChanges) (models.Milestone, error) {
	m, _, err := s.milestoneFor(ctx, caller, milestoneId, policy.ManageMilestone)
	if err != nil {
		return m, fmt.Errorf("service.Service.EditMilestone: %w", err)
	}
	if m.Status == models.MilestoneCompleted {
		return m, fmt.Errorf("service.Service.EditMilestone: %w", models.ErrMilestoneFinalized)
	}

	if changes.Title != nil {
		if err = validateTitle(*changes.Title); err != nil {
			return m, fmt.Errorf("service.Service.EditMilestone: %w", err)
		}
		m.Title = *changes.Title
	}
	if changes.Description != nil {
		m.Description = *changes.Description
	}
	if changes.Amount != nil {
		if !changes.Amount.IsPositive() {
			return m, fmt.Errorf("service.Service.EditMilestone: %w", models.NewValidationError("amount", "must be positive"))
		}
		if err = models.ValidateAmount("amount", *changes.Amount); err != nil {
			return m, fmt.Errorf("service.Service.EditMilestone: %w", err)
		}
		m.Amount = *changes.Amount
	}
	if changes.DueDate != nil {
		if !changes.DueDate.After(s.now()) {
			return m, fmt.Errorf("service.Service.EditMilestone: %w", models.NewValidationError("dueDate", "must be in the future"))
		}
		m.DueDate = *changes.DueDate
	}

	change, err := s.repo.UpdateMilestone(ctx, m)
	if err != nil {
		return m, fmt.Errorf("service.Service.EditMilestone: %w", err)
	}

	s.milestoneWritten(ctx, change, "")
	return change.Milestone, nil
}

// StartMilestone moves a PENDING milestone to IN_PROGRESS.
func (s *Service) StartMilestone(ctx context.Context, caller models.User, milestoneId string) (models.Milestone, error) {
	m, err := s.transition(ctx, caller, milestoneId, policy.ProgressMilestone, models.MilestoneInProgress, events.KindMilestoneStarted)
	if err != nil {
		return m, fmt.Errorf("service.Service.StartMilestone: %w", err)
	}
	return m, nil
}

// CompleteMilestone moves an IN_PROGRESS milestone to COMPLETED. The project
// completes with its last milestone.
func (s *Service) CompleteMilestone(ctx context.Context, caller models.User, milestoneId string) (models.Milestone, error) {
	m, err := s.transition(ctx, caller, milestoneId, policy.ProgressMilestone, models.MilestoneCompleted, events.KindMilestoneDone)
	if err != nil {
		return m, fmt.Errorf("service.Service.CompleteMilestone: %w", err)
	}
	return m, nil
}

func (s *Service) CancelMilestone(ctx context.Context, caller models.User, milestoneId string) (models.Milestone, error) {
	m, err := s.transition(ctx, caller, milestoneId, policy.ManageMilestone, models.MilestoneCancelled, events.KindMilestoneCancelled)
	if err != nil {
		return m, fmt.Errorf("service.Service.CancelMilestone: %w", err)
	}
	return m, nil
}

func (s *Service) DeleteMilestone(ctx context.Context, caller models.User, milestoneId string) error {
	m, _, err := s.milestoneFor(ctx, caller, milestoneId, policy.ManageMilestone)
	if err != nil {
		return fmt.Errorf("service.Service.DeleteMilestone: %w", err)
	}
	if m.Status == models.MilestoneCompleted {
		return fmt.Errorf("service.Service.DeleteMilestone: %w", models.ErrMilestoneFinalized)
	}

	change, err := s.repo.DeleteMilestone(ctx, m)
	if err != nil {
		return fmt.Errorf("service.Service.DeleteMilestone: %w", err)
	}

	s.milestoneWritten(ctx, change, "")
	return nil
}

var transitionFrom = map[models.MilestoneStatus]struct {
	ok       func(models.MilestoneStatus) bool
	conflict error
}{
	models.MilestoneInProgress: {
		func(st models.MilestoneStatus) bool { return st == models.MilestonePending },
		models.ErrMilestoneNotPending,
	},
	models.MilestoneCompleted: {
		func(st models.MilestoneStatus) bool { return st == models.MilestoneInProgress },
		models.ErrMilestoneNotActive,
	},
	models.MilestoneCancelled: {
		func(st models.MilestoneStatus) bool {
			return st == models.MilestonePending || st == models.MilestoneInProgress
		},
		models.ErrMilestoneFinalized,
	},
}

func (s *Service) transition(ctx context.Context, caller models.User, milestoneId string, action policy.Action, to models.MilestoneStatus, kind string) (models.Milestone, error) {
	m, project, err := s.milestoneFor(ctx, caller, milestoneId, action)
	if err != nil {
		return m, err
	}
	if models.NeedsActiveProject(to) && project.Status != models.ProjectInProgress {
		return m, models.ErrProjectNotInProgress
	}

	if tr, ok := transitionFrom[to]; ok && !tr.ok(m.Status) {
		return m, tr.conflict
	}

	change, err := s.repo.TransitionMilestone(ctx, m, to)
	if err != nil {
		return m, err
	}

	s.milestoneWritten(ctx, change, kind)
	return change.Milestone, nil
}

// milestoneFor loads a milestone with its project and checks caller may
// perform action on it.
func (s *Service) milestoneFor(ctx context.Context, caller models.User, milestoneId string, action policy.Action) (models.Milestone, models.Project, error) {
	m, err := s.repo.GetMilestoneByUUID(ctx, milestoneId)
	if err != nil {
		return m, models.Project{}, err
	}

	project, err := s.repo.GetProjectByUUID(ctx, m.ProjectId)
	if err != nil {
		return m, project, err
	}

	if err = policy.Check(caller, action, policy.Resource{Project: &project}); err != nil {
		return m, project, err
	}
	return m, project, nil
}

// milestoneWritten publishes the milestone event, if any, and the project
// completion it caused.
func (s *Service) milestoneWritten(ctx context.Context, change models.MilestoneChange, kind string) {
	var evs []events.Event
	if len(kind) > 0 {
		evs = append(evs, events.NewMilestoneUpdated(change.Milestone, kind))
	}
	if change.ProjectCompleted {
		metrics.RecordProjectCompleted("milestones")
		s.log.Info("project completed by milestones", zap.String("project_id", change.Milestone.ProjectId))
		evs = append(evs, events.NewProjectUpdated(change.Milestone.ProjectId, events.KindProjectCompleted, "All milestones completed, project is completed"))
	}
	s.written(ctx, evs...)
}
