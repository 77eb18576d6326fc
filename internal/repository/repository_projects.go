package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"freelance/internal/models"

	"github.com/lib/pq"
)

const projectsSelect = `
	SELECT
		p.id,
		p.client_id,
		p.freelancer_id,
		p.title,
		p.description,
		p.status,
		p.budget_min,
		p.budget_max,
		p.deadline,
		p.required_skills,
		(SELECT COUNT(*) FROM bids b WHERE b.project_id = p.id),
		p.created_at,
		p.updated_at
	FROM projects p
	`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (models.Project, error) {
	var p models.Project
	var freelancerId sql.NullString
	err := row.Scan(&p.Id, &p.ClientId, &freelancerId, &p.Title, &p.Description, &p.Status, &p.BudgetMin, &p.BudgetMax, &p.Deadline, pq.Array(&p.RequiredSkills), &p.TotalBids, &p.CreatedAt, &p.UpdatedAt)
	p.FreelancerId = freelancerId.String
	if p.RequiredSkills == nil {
		p.RequiredSkills = []string{}
	}
	return p, err
}

func (repo *Repository) prepProjectsQuery(filter models.ProjectFilter) (query string, queryParams []any) {
	query = projectsSelect + `
	$conditions$
	ORDER BY p.created_at DESC, p.id
	LIMIT $1
	OFFSET $2
	`

	c := newConditions(filter.Limit, filter.Offset)

	if len(filter.Status) > 0 {
		c.add("p.status = $$", filter.Status)
	}
	// budget bounds select projects whose range overlaps the requested one
	if filter.BudgetMin != nil {
		c.add("p.budget_max >= $$", *filter.BudgetMin)
	}
	if filter.BudgetMax != nil {
		c.add("p.budget_min <= $$", *filter.BudgetMax)
	}
	if len(filter.Skills) > 0 {
		c.add("p.required_skills && $$", pq.Array(filter.Skills))
	}
	if len(filter.Search) > 0 {
		c.add("(p.title ILIKE $$ OR p.description ILIKE $$)", likePattern(filter.Search))
	}
	if len(filter.ClientId) > 0 {
		c.add("p.client_id = $$", filter.ClientId)
	}
	if len(filter.FreelancerId) > 0 {
		c.add(`(p.status = 'OPEN' OR p.freelancer_id = $$
		OR EXISTS (SELECT 1 FROM bids b WHERE b.project_id = p.id AND b.freelancer_id = $$))`, filter.FreelancerId)
	}

	return c.apply(query), c.params
}

func (repo *Repository) GetProjects(ctx context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	query, queryParams := repo.prepProjectsQuery(filter)

	rows, err := repo.db.QueryContext(ctx, query, queryParams...)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetProjects: %w", err)
	}
	defer rows.Close()

	result := make([]models.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.GetProjects: row scan failed: %w", err)
		}
		result = append(result, project)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.GetProjects: %w", rows.Err())
	}

	return result, nil
}

func (repo *Repository) GetProjectByUUID(ctx context.Context, UUID string) (models.Project, error) {
	return repo.getProject(ctx, UUID, nil)
}

// getProject loads one project. With a non-nil tx the row is locked until the
// transaction ends.
func (repo *Repository) getProject(ctx context.Context, UUID string, tx *sql.Tx) (models.Project, error) {
	if !validUUID(UUID) {
		return models.Project{}, fmt.Errorf("repository.Repository.GetProjectByUUID: %w", models.ErrNoProject)
	}

	query := projectsSelect + `WHERE p.id = $1`
	if tx != nil {
		query += ` FOR UPDATE OF p`
	}

	project, err := scanProject(repo.q(tx).QueryRowContext(ctx, query, UUID))
	if errors.Is(err, sql.ErrNoRows) {
		return project, fmt.Errorf("repository.Repository.GetProjectByUUID: %w", models.ErrNoProject)
	} else if err != nil {
		return project, fmt.Errorf("repository.Repository.GetProjectByUUID: %w", err)
	}

	return project, nil
}

func (repo *Repository) AddProject(ctx context.Context, p models.Project) (models.Project, error) {
	query := `
	INSERT INTO projects (client_id, title, description, status, budget_min, budget_max, deadline, required_skills)
	VALUES ($1, $2, $3, 'OPEN', $4, $5, $6, $7)
	RETURNING id, status, created_at, updated_at
	`

	if p.RequiredSkills == nil {
		p.RequiredSkills = []string{}
	}
	row := repo.db.QueryRowContext(ctx, query, p.ClientId, p.Title, p.Description, p.BudgetMin, p.BudgetMax, p.Deadline, pq.Array(p.RequiredSkills))
	err := row.Scan(&p.Id, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, fmt.Errorf("repository.Repository.AddProject: %w", err)
	}
	p.FreelancerId = ""
	p.TotalBids = 0

	return p, nil
}

// UpdateProject stores edited fields of a project that is still OPEN.
func (repo *Repository) UpdateProject(ctx context.Context, p models.Project) (models.Project, error) {
	query := `
	UPDATE projects
	SET (title, description, budget_min, budget_max, deadline, required_skills, updated_at) = ($2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)
	WHERE id = $1 AND status = 'OPEN'
	`

	if !validUUID(p.Id) {
		return p, fmt.Errorf("repository.Repository.UpdateProject: %w", models.ErrNoProject)
	}

	if p.RequiredSkills == nil {
		p.RequiredSkills = []string{}
	}
	res, err := repo.db.ExecContext(ctx, query, p.Id, p.Title, p.Description, p.BudgetMin, p.BudgetMax, p.Deadline, pq.Array(p.RequiredSkills))
	if err != nil {
		return p, fmt.Errorf("repository.Repository.UpdateProject: %w", err)
	}
	if err = repo.expectAffected(ctx, res, p.Id, models.ErrProjectNotOpen); err != nil {
		return p, fmt.Errorf("repository.Repository.UpdateProject: %w", err)
	}

	return repo.GetProjectByUUID(ctx, p.Id)
}

// CancelProject closes an OPEN project and rejects its pending bids.
func (repo *Repository) CancelProject(ctx context.Context, UUID string) (models.Project, error) {
	if !validUUID(UUID) {
		return models.Project{}, fmt.Errorf("repository.Repository.CancelProject: %w", models.ErrNoProject)
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Project{}, fmt.Errorf("repository.Repository.CancelProject: failed to start transaction: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
	UPDATE projects
	SET (status, updated_at) = ('CANCELLED', CURRENT_TIMESTAMP)
	WHERE id = $1 AND status = 'OPEN'
	`, UUID)
	if err != nil {
		return models.Project{}, fmt.Errorf("repository.Repository.CancelProject: %w", wrapRollbackErr(tx, err))
	}
	if err = repo.expectAffected(ctx, res, UUID, models.ErrProjectNotOpen); err != nil {
		return models.Project{}, fmt.Errorf("repository.Repository.CancelProject: %w", wrapRollbackErr(tx, err))
	}

	_, err = tx.ExecContext(ctx, `
	UPDATE bids
	SET (status, updated_at) = ('REJECTED', CURRENT_TIMESTAMP)
	WHERE project_id = $1 AND status = 'PENDING'
	`, UUID)
	if err != nil {
		return models.Project{}, fmt.Errorf("repository.Repository.CancelProject: failed to reject bids: %w", wrapRollbackErr(tx, err))
	}

	err = tx.Commit()
	if err != nil {
		return models.Project{}, fmt.Errorf("repository.Repository.CancelProject: failed to commit transaction: %w", err)
	}

	return repo.GetProjectByUUID(ctx, UUID)
}

// CompleteProject marks an IN_PROGRESS project COMPLETED.
func (repo *Repository) CompleteProject(ctx context.Context, UUID string) (models.Project, error) {
	if !validUUID(UUID) {
		return models.Project{}, fmt.Errorf("repository.Repository.CompleteProject: %w", models.ErrNoProject)
	}

	res, err := repo.db.ExecContext(ctx, `
	UPDATE projects
	SET (status, updated_at) = ('COMPLETED', CURRENT_TIMESTAMP)
	WHERE id = $1 AND status = 'IN_PROGRESS'
	`, UUID)
	if err != nil {
		return models.Project{}, fmt.Errorf("repository.Repository.CompleteProject: %w", err)
	}
	if err = repo.expectAffected(ctx, res, UUID, models.ErrProjectNotInProgress); err != nil {
		return models.Project{}, fmt.Errorf("repository.Repository.CompleteProject: %w", err)
	}

	return repo.GetProjectByUUID(ctx, UUID)
}

// DeleteProject removes a project together with its bids and milestones.
func (repo *Repository) DeleteProject(ctx context.Context, UUID string) error {
	if !validUUID(UUID) {
		return fmt.Errorf("repository.Repository.DeleteProject: %w", models.ErrNoProject)
	}

	res, err := repo.db.ExecContext(ctx, "DELETE FROM projects WHERE id = $1", UUID)
	if err != nil {
		return fmt.Errorf("repository.Repository.DeleteProject: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository.Repository.DeleteProject: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repository.Repository.DeleteProject: %w", models.ErrNoProject)
	}
	return nil
}

// expectAffected turns a conditional update that touched no rows into
// ErrNoProject when the project is gone, or into conflict otherwise.
func (repo *Repository) expectAffected(ctx context.Context, res sql.Result, projectId string, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = repo.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)", projectId).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return models.ErrNoProject
	}
	return conflict
}
