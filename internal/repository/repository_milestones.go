package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"freelance/internal/models"

	"github.com/lib/pq"
)

const milestonesSelect = `
	SELECT
		id, project_id, title, description, amount, due_date, status, created_at, completed_at
	FROM milestones
	`

const milestoneReturning = `
	RETURNING id, project_id, title, description, amount, due_date, status, created_at, completed_at
	`

func scanMilestone(row rowScanner) (models.Milestone, error) {
	var m models.Milestone
	var completedAt sql.NullTime
	err := row.Scan(&m.Id, &m.ProjectId, &m.Title, &m.Description, &m.Amount, &m.DueDate, &m.Status, &m.CreatedAt, &completedAt)
	if completedAt.Valid {
		t := completedAt.Time
		m.CompletedAt = &t
	}
	return m, err
}

func (repo *Repository) GetMilestones(ctx context.Context, projectId string) ([]models.Milestone, error) {
	result := make([]models.Milestone, 0)
	if !validUUID(projectId) {
		return result, nil
	}

	rows, err := repo.db.QueryContext(ctx, milestonesSelect+`WHERE project_id = $1 ORDER BY due_date, created_at`, projectId)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetMilestones: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.GetMilestones: rows scan error: %w", err)
		}
		result = append(result, m)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.GetMilestones: %w", rows.Err())
	}

	return result, nil
}

func (repo *Repository) GetMilestoneByUUID(ctx context.Context, UUID string) (models.Milestone, error) {
	if !validUUID(UUID) {
		return models.Milestone{}, fmt.Errorf("repository.Repository.GetMilestoneByUUID: %w", models.ErrNoMilestone)
	}

	m, err := scanMilestone(repo.db.QueryRowContext(ctx, milestonesSelect+`WHERE id = $1`, UUID))
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("repository.Repository.GetMilestoneByUUID: %w", models.ErrNoMilestone)
	} else if err != nil {
		return m, fmt.Errorf("repository.Repository.GetMilestoneByUUID: %w", err)
	}
	return m, nil
}

func (repo *Repository) AddMilestone(ctx context.Context, m models.Milestone) (models.MilestoneChange, error) {
	change, err := repo.mutateMilestone(ctx, m.ProjectId, func(tx *sql.Tx, _ models.Project) (models.Milestone, error) {
		query := `
		INSERT INTO milestones (project_id, title, description, amount, due_date, status)
		VALUES ($1, $2, $3, $4, $5, 'PENDING')
		` + milestoneReturning
		return scanMilestone(tx.QueryRowContext(ctx, query, m.ProjectId, m.Title, m.Description, m.Amount, m.DueDate))
	})
	if err != nil {
		return change, fmt.Errorf("repository.Repository.AddMilestone: %w", err)
	}
	return change, nil
}

// UpdateMilestone stores edited fields of a milestone that is not COMPLETED.
func (repo *Repository) UpdateMilestone(ctx context.Context, m models.Milestone) (models.MilestoneChange, error) {
	change, err := repo.mutateMilestone(ctx, m.ProjectId, func(tx *sql.Tx, _ models.Project) (models.Milestone, error) {
		query := `
		UPDATE milestones
		SET (title, description, amount, due_date) = ($2, $3, $4, $5)
		WHERE id = $1 AND status <> 'COMPLETED'
		` + milestoneReturning
		updated, err := scanMilestone(tx.QueryRowContext(ctx, query, m.Id, m.Title, m.Description, m.Amount, m.DueDate))
		if errors.Is(err, sql.ErrNoRows) {
			return updated, repo.milestoneConflict(ctx, tx, m.Id, models.ErrMilestoneFinalized)
		}
		return updated, err
	})
	if err != nil {
		return change, fmt.Errorf("repository.Repository.UpdateMilestone: %w", err)
	}
	return change, nil
}

var milestoneTransitions = map[models.MilestoneStatus]struct {
	from     []string
	conflict error
}{
	models.MilestoneInProgress: {[]string{string(models.MilestonePending)}, models.ErrMilestoneNotPending},
	models.MilestoneCompleted:  {[]string{string(models.MilestoneInProgress)}, models.ErrMilestoneNotActive},
	models.MilestoneCancelled:  {[]string{string(models.MilestonePending), string(models.MilestoneInProgress)}, models.ErrMilestoneFinalized},
}

// TransitionMilestone moves a milestone to status: PENDING to IN_PROGRESS,
// IN_PROGRESS to COMPLETED, or PENDING/IN_PROGRESS to CANCELLED.
func (repo *Repository) TransitionMilestone(ctx context.Context, m models.Milestone, status models.MilestoneStatus) (models.MilestoneChange, error) {
	tr, ok := milestoneTransitions[status]
	if !ok {
		return models.MilestoneChange{}, fmt.Errorf("repository.Repository.TransitionMilestone: %w", models.NewValidationError("status", "unsupported target status"))
	}

	next := m
	next.SetStatus(status, time.Now())

	change, err := repo.mutateMilestone(ctx, m.ProjectId, func(tx *sql.Tx, project models.Project) (models.Milestone, error) {
		if models.NeedsActiveProject(status) && project.Status != models.ProjectInProgress {
			return m, models.ErrProjectNotInProgress
		}

		query := `
		UPDATE milestones
		SET (status, completed_at) = ($2, $3)
		WHERE id = $1 AND status = ANY($4::milestone_status[])
		` + milestoneReturning
		updated, err := scanMilestone(tx.QueryRowContext(ctx, query, m.Id, next.Status, next.CompletedAt, pq.Array(tr.from)))
		if errors.Is(err, sql.ErrNoRows) {
			return updated, repo.milestoneConflict(ctx, tx, m.Id, tr.conflict)
		}
		return updated, err
	})
	if err != nil {
		return change, fmt.Errorf("repository.Repository.TransitionMilestone: %w", err)
	}
	return change, nil
}

// DeleteMilestone removes a milestone that is not COMPLETED. The returned
// change carries the deleted milestone.
func (repo *Repository) DeleteMilestone(ctx context.Context, m models.Milestone) (models.MilestoneChange, error) {
	change, err := repo.mutateMilestone(ctx, m.ProjectId, func(tx *sql.Tx, _ models.Project) (models.Milestone, error) {
		query := `DELETE FROM milestones WHERE id = $1 AND status <> 'COMPLETED'` + milestoneReturning
		deleted, err := scanMilestone(tx.QueryRowContext(ctx, query, m.Id))
		if errors.Is(err, sql.ErrNoRows) {
			return deleted, repo.milestoneConflict(ctx, tx, m.Id, models.ErrMilestoneFinalized)
		}
		return deleted, err
	})
	if err != nil {
		return change, fmt.Errorf("repository.Repository.DeleteMilestone: %w", err)
	}
	return change, nil
}

// mutateMilestone runs fn with the locked project in a transaction and
// then re-evaluates project completion before committing. Mutations of one
// project's milestones are serialized by the lock.
func (repo *Repository) mutateMilestone(ctx context.Context, projectId string, fn func(tx *sql.Tx, project models.Project) (models.Milestone, error)) (models.MilestoneChange, error) {
	var change models.MilestoneChange

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return change, fmt.Errorf("failed to start transaction: %w", err)
	}

	project, err := repo.getProject(ctx, projectId, tx)
	if err != nil {
		return change, wrapRollbackErr(tx, err)
	}
	if project.Finalized() {
		return change, wrapRollbackErr(tx, models.ErrProjectFinalized)
	}

	change.Milestone, err = fn(tx, project)
	if err != nil {
		return change, wrapRollbackErr(tx, err)
	}

	change.ProjectCompleted, err = repo.syncProjectCompletion(ctx, tx, project)
	if err != nil {
		return change, wrapRollbackErr(tx, err)
	}

	err = tx.Commit()
	if err != nil {
		return change, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return change, nil
}

// syncProjectCompletion completes an IN_PROGRESS project once it has at least
// one milestone and all of its milestones are COMPLETED. It must run inside
// the transaction of every milestone mutation.
func (repo *Repository) syncProjectCompletion(ctx context.Context, tx *sql.Tx, project models.Project) (bool, error) {
	if project.Status != models.ProjectInProgress {
		return false, nil
	}

	rows, err := tx.QueryContext(ctx, "SELECT status FROM milestones WHERE project_id = $1", project.Id)
	if err != nil {
		return false, fmt.Errorf("syncProjectCompletion: %w", err)
	}
	defer rows.Close()

	var milestones []models.Milestone
	for rows.Next() {
		var m models.Milestone
		if err = rows.Scan(&m.Status); err != nil {
			return false, fmt.Errorf("syncProjectCompletion: rows scan error: %w", err)
		}
		milestones = append(milestones, m)
	}
	if rows.Err() != nil {
		return false, fmt.Errorf("syncProjectCompletion: %w", rows.Err())
	}

	if !models.MilestonesComplete(milestones) {
		return false, nil
	}

	res, err := tx.ExecContext(ctx, `
	UPDATE projects
	SET (status, updated_at) = ('COMPLETED', CURRENT_TIMESTAMP)
	WHERE id = $1 AND status = 'IN_PROGRESS'
	`, project.Id)
	if err != nil {
		return false, fmt.Errorf("syncProjectCompletion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("syncProjectCompletion: %w", err)
	}

	return n > 0, nil
}

// milestoneConflict tells a vanished milestone apart from one in the wrong
// state after a conditional statement matched nothing.
func (repo *Repository) milestoneConflict(ctx context.Context, tx *sql.Tx, UUID string, conflict error) error {
	var exists bool
	err := tx.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM milestones WHERE id = $1)", UUID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return models.ErrNoMilestone
	}
	return conflict
}
