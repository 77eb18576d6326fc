package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"freelance/internal/events"
	"freelance/internal/metrics"
	"freelance/internal/models"
	"freelance/internal/policy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxTitleLength = 200
	maxListLimit   = 100
)

// ProjectChanges lists the editable project fields. Nil fields stay as they are.
type ProjectChanges struct {
	Title       *string
	Description *string
	BudgetMin   *decimal.Decimal
	BudgetMax   *decimal.Decimal
	Deadline    *time.Time
	// RequiredSkills replaces the whole skill list when set.
	RequiredSkills *[]string
}

func validateTitle(title string) error {
	if len(title) == 0 {
		return models.NewValidationError("title", "is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return models.NewValidationError("title", "must be at most 200 characters")
	}
	return nil
}

func clampPage(limit, offset int) (int, int, error) {
	if limit < 0 {
		return 0, 0, models.NewValidationError("limit", "must not be negative")
	}
	if offset < 0 {
		return 0, 0, models.NewValidationError("offset", "must not be negative")
	}
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, offset, nil
}

// cacheQuery is the canonical form of the caller supplied part of a filter.
func cacheQuery(f models.ProjectFilter) string {
	v := url.Values{}
	v.Set("status", string(f.Status))
	if f.BudgetMin != nil {
		v.Set("budget_min", f.BudgetMin.String())
	}
	if f.BudgetMax != nil {
		v.Set("budget_max", f.BudgetMax.String())
	}
	v.Set("search", f.Search)
	v.Set("skills", strings.Join(f.Skills, ","))
	v.Set("limit", strconv.Itoa(f.Limit))
	v.Set("offset", strconv.Itoa(f.Offset))
	return v.Encode()
}

// GetProjects lists the projects visible to caller: clients see their own,
// freelancers see open projects plus those they work on or bid on, admins see
// everything.
func (s *Service) GetProjects(ctx context.Context, caller models.User, filter models.ProjectFilter) ([]models.Project, error) {
	var err error

	if len(filter.Status) > 0 && !models.ValidProjectStatus(filter.Status) {
		return nil, fmt.Errorf("service.Service.GetProjects: %w", models.NewValidationError("status", "unknown project status"))
	}
	filter.Limit, filter.Offset, err = clampPage(filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetProjects: %w", err)
	}
	if filter.Skills, err = models.NormalizeSkills("skills", filter.Skills); err != nil {
		return nil, fmt.Errorf("service.Service.GetProjects: %w", err)
	}

	filter.ClientId, filter.FreelancerId = "", ""
	switch caller.Role {
	case models.RoleClient:
		filter.ClientId = caller.Id
	case models.RoleFreelancer:
		filter.FreelancerId = caller.Id
	case models.RoleAdmin:
	default:
		return nil, fmt.Errorf("service.Service.GetProjects: %w", models.ErrForbidden)
	}

	var projects []models.Project
	slot, hit := s.cache.Get(ctx, caller.Id, cacheQuery(filter), &projects)
	if hit {
		return projects, nil
	}

	projects, err = s.repo.GetProjects(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetProjects: %w", err)
	}

	s.cache.Set(ctx, slot, projects)
	return projects, nil
}

func (s *Service) GetProject(ctx context.Context, caller models.User, projectId string) (models.Project, error) {
	project, err := s.viewableProject(ctx, caller, projectId)
	if err != nil {
		return project, fmt.Errorf("service.Service.GetProject: %w", err)
	}
	return project, nil
}

func (s *Service) AddProject(ctx context.Context, caller models.User, project models.Project) (models.Project, error) {
	err := policy.Check(caller, policy.CreateProject, policy.Resource{})
	if err != nil {
		return project, fmt.Errorf("service.Service.AddProject: %w", err)
	}

	if err = validateTitle(project.Title); err != nil {
		return project, fmt.Errorf("service.Service.AddProject: %w", err)
	}
	if err = models.ValidateBudget(project.BudgetMin, project.BudgetMax); err != nil {
		return project, fmt.Errorf("service.Service.AddProject: %w", err)
	}
	if err = models.ValidateDeadline(project.Deadline, s.now()); err != nil {
		return project, fmt.Errorf("service.Service.AddProject: %w", err)
	}
	if project.RequiredSkills, err = models.NormalizeSkills("requiredSkills", project.RequiredSkills); err != nil {
		return project, fmt.Errorf("service.Service.AddProject: %w", err)
	}

	project.ClientId = caller.Id
	project, err = s.repo.AddProject(ctx, project)
	if err != nil {
		return project, fmt.Errorf("service.Service.AddProject: %w", err)
	}

	s.written(ctx)
	return project, nil
}

func (s *Service) EditProject(ctx context.Context, caller models.User, projectId string, changes ProjectChanges) (models.Project, error) {
	project, err := s.repo.GetProjectByUUID(ctx, projectId)
	if err != nil {
		return project, fmt.Errorf("service.Service.EditProject: %w", err)
	}

	err = policy.Check(caller, policy.UpdateProject, policy.Resource{Project: &project})
	if err != nil {
		return project, fmt.Errorf("service.Service.EditProject: %w", err)
	}
	if project.Status != models.ProjectOpen {
		return project, fmt.Errorf("service.Service.EditProject: %w", models.ErrProjectNotOpen)
	}

	if changes.Title != nil {
		if err = validateTitle(*changes.Title); err != nil {
			return project, fmt.Errorf("service.Service.EditProject: %w", err)
		}
		project.Title = *changes.Title
	}
	if changes.Description != nil {
		project.Description = *changes.Description
	}
	if changes.BudgetMin != nil {
		project.BudgetMin = *changes.BudgetMin
	}
	if changes.BudgetMax != nil {
		project.BudgetMax = *changes.BudgetMax
	}
	if err = models.ValidateBudget(project.BudgetMin, project.BudgetMax); err != nil {
		return project, fmt.Errorf("service.Service.EditProject: %w", err)
	}
	if changes.Deadline != nil {
		if err = models.ValidateDeadline(*changes.Deadline, s.now()); err != nil {
			return project, fmt.Errorf("service.Service.EditProject: %w", err)
		}
		project.Deadline = *changes.Deadline
	}
	if changes.RequiredSkills != nil {
		if project.RequiredSkills, err = models.NormalizeSkills("requiredSkills", *changes.RequiredSkills); err != nil {
			return project, fmt.Errorf("service.Service.EditProject: %w", err)
		}
	}

	project, err = s.repo.UpdateProject(ctx, project)
	if err != nil {
		return project, fmt.Errorf("service.Service.EditProject: %w", err)
	}

	s.written(ctx, events.NewProjectUpdated(project.Id, events.KindProjectEdited, "Project details were updated"))
	return project, nil
}

// CancelProject closes an OPEN project; its pending bids are rejected.
func (s *Service) CancelProject(ctx context.Context, caller models.User, projectId string) (models.Project, error) {
	project, err := s.repo.GetProjectByUUID(ctx, projectId)
	if err != nil {
		return project, fmt.Errorf("service.Service.CancelProject: %w", err)
	}

	err = policy.Check(caller, policy.CancelProject, policy.Resource{Project: &project})
	if err != nil {
		return project, fmt.Errorf("service.Service.CancelProject: %w", err)
	}
	if project.Status != models.ProjectOpen {
		return project, fmt.Errorf("service.Service.CancelProject: %w", models.ErrProjectNotOpen)
	}

	project, err = s.repo.CancelProject(ctx, projectId)
	if err != nil {
		return project, fmt.Errorf("service.Service.CancelProject: %w", err)
	}

	s.written(ctx, events.NewProjectUpdated(project.Id, events.KindProjectCancelled, "Project was cancelled by the client"))
	return project, nil
}

func (s *Service) DeleteProject(ctx context.Context, caller models.User, projectId string) error {
	project, err := s.repo.GetProjectByUUID(ctx, projectId)
	if err != nil {
		return fmt.Errorf("service.Service.DeleteProject: %w", err)
	}

	err = policy.Check(caller, policy.DeleteProject, policy.Resource{Project: &project})
	if err != nil {
		return fmt.Errorf("service.Service.DeleteProject: %w", err)
	}

	err = s.repo.DeleteProject(ctx, projectId)
	if err != nil {
		return fmt.Errorf("service.Service.DeleteProject: %w", err)
	}

	s.written(ctx)
	return nil
}

// CompleteProject lets a participant close an IN_PROGRESS project regardless
// of its milestones.
func (s *Service) CompleteProject(ctx context.Context, caller models.User, projectId string) (models.Project, error) {
	project, err := s.repo.GetProjectByUUID(ctx, projectId)
	if err != nil {
		return project, fmt.Errorf("service.Service.CompleteProject: %w", err)
	}

	err = policy.Check(caller, policy.CompleteProject, policy.Resource{Project: &project})
	if err != nil {
		return project, fmt.Errorf("service.Service.CompleteProject: %w", err)
	}
	if project.Status != models.ProjectInProgress {
		return project, fmt.Errorf("service.Service.CompleteProject: %w", models.ErrProjectNotInProgress)
	}

	project, err = s.repo.CompleteProject(ctx, projectId)
	if err != nil {
		return project, fmt.Errorf("service.Service.CompleteProject: %w", err)
	}

	metrics.RecordProjectCompleted("explicit")
	s.log.Info("project completed", zap.String("project_id", project.Id), zap.String("by", caller.Id))
	s.written(ctx, events.NewProjectUpdated(project.Id, events.KindProjectCompleted, "Project was marked as completed"))
	return project, nil
}

// viewableProject loads a project and checks caller may see it. Projects the
// caller may not see are reported as missing.
func (s *Service) viewableProject(ctx context.Context, caller models.User, projectId string) (models.Project, error) {
	project, err := s.repo.GetProjectByUUID(ctx, projectId)
	if err != nil {
		return project, err
	}

	res := policy.Resource{Project: &project}
	if caller.Role == models.RoleFreelancer && project.Status != models.ProjectOpen && !project.IsParticipant(caller.Id) {
		res.CallerHasBid, err = s.repo.HasBid(ctx, project.Id, caller.Id)
		if err != nil {
			return project, err
		}
	}

	if err = policy.Check(caller, policy.ViewProject, res); err != nil {
		return project, hidden(err, models.ErrNoProject)
	}
	return project, nil
}

// hidden reports entities the caller may not see as missing.
func hidden(err, notFound error) error {
	if errors.Is(err, models.ErrForbidden) {
		return fmt.Errorf("%v: %w", err, notFound)
	}
	return err
}
