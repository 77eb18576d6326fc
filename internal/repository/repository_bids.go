package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"freelance/internal/models"
)

const bidsSelect = `
	SELECT
		b.id, b.project_id, b.freelancer_id, b.amount, b.proposal, b.delivery_time, b.status, b.created_at, b.updated_at
	FROM bids b
	`

func scanBid(row rowScanner) (models.Bid, error) {
	var b models.Bid
	err := row.Scan(&b.Id, &b.ProjectId, &b.FreelancerId, &b.Amount, &b.Proposal, &b.DeliveryTime, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// AddBid stores a PENDING bid. The project row is share-locked so an award
// running at the same time either sees the new bid or makes the insert fail.
func (repo *Repository) AddBid(ctx context.Context, bid models.Bid) (models.Bid, error) {
	if !validUUID(bid.ProjectId) {
		return bid, fmt.Errorf("repository.Repository.AddBid: %w", models.ErrNoProject)
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return bid, fmt.Errorf("repository.Repository.AddBid: failed to start transaction: %w", err)
	}

	var status models.ProjectStatus
	err = tx.QueryRowContext(ctx, "SELECT status FROM projects WHERE id = $1 FOR SHARE", bid.ProjectId).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return bid, fmt.Errorf("repository.Repository.AddBid: %w", wrapRollbackErr(tx, models.ErrNoProject))
	} else if err != nil {
		return bid, fmt.Errorf("repository.Repository.AddBid: %w", wrapRollbackErr(tx, err))
	}
	if status != models.ProjectOpen {
		return bid, fmt.Errorf("repository.Repository.AddBid: %w", wrapRollbackErr(tx, models.ErrProjectNotOpen))
	}

	query := `
	INSERT INTO bids (project_id, freelancer_id, amount, proposal, delivery_time, status)
	VALUES ($1, $2, $3, $4, $5, 'PENDING')
	RETURNING id, status, created_at, updated_at
	`
	row := tx.QueryRowContext(ctx, query, bid.ProjectId, bid.FreelancerId, bid.Amount, bid.Proposal, bid.DeliveryTime)
	err = row.Scan(&bid.Id, &bid.Status, &bid.CreatedAt, &bid.UpdatedAt)
	if isUniqueViolation(err) {
		return bid, fmt.Errorf("repository.Repository.AddBid: %w", wrapRollbackErr(tx, models.ErrDuplicateBid))
	} else if err != nil {
		return bid, fmt.Errorf("repository.Repository.AddBid: scan failed: %w", wrapRollbackErr(tx, err))
	}

	err = tx.Commit()
	if err != nil {
		return bid, fmt.Errorf("repository.Repository.AddBid: failed to commit transaction: %w", err)
	}

	return bid, nil
}

func (repo *Repository) prepBidsQuery(filter models.BidFilter, UUID string) (query string, queryParams []any) {
	query = bidsSelect + `
	$conditions$
	ORDER BY b.created_at DESC, b.id
	LIMIT $1
	OFFSET $2
	`

	c := newConditions(filter.Limit, filter.Offset)

	if len(UUID) > 0 {
		c.add("b.id = $$", UUID)
	}
	if len(filter.ProjectId) > 0 {
		c.add("b.project_id = $$", filter.ProjectId)
	}
	if len(filter.FreelancerId) > 0 {
		c.add("b.freelancer_id = $$", filter.FreelancerId)
	}
	if len(filter.ClientId) > 0 {
		c.add("b.project_id IN (SELECT id FROM projects WHERE client_id = $$)", filter.ClientId)
	}
	if len(filter.Status) > 0 {
		c.add("b.status = $$", filter.Status)
	}

	return c.apply(query), c.params
}

func (repo *Repository) GetBids(ctx context.Context, filter models.BidFilter) ([]models.Bid, error) {
	query, params := repo.prepBidsQuery(filter, "")

	rows, err := repo.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.GetBids: %w", err)
	}
	defer rows.Close()

	result := make([]models.Bid, 0)
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.GetBids: rows scan error: %w", err)
		}
		result = append(result, bid)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.GetBids: %w", rows.Err())
	}

	return result, nil
}

func (repo *Repository) GetBidByUUID(ctx context.Context, UUID string) (models.Bid, error) {
	if !validUUID(UUID) {
		return models.Bid{}, fmt.Errorf("repository.Repository.GetBidByUUID: %w", models.ErrNoBid)
	}

	query, params := repo.prepBidsQuery(models.BidFilter{Limit: 1}, UUID)
	bid, err := scanBid(repo.db.QueryRowContext(ctx, query, params...))
	if errors.Is(err, sql.ErrNoRows) {
		return bid, fmt.Errorf("repository.Repository.GetBidByUUID: %w", models.ErrNoBid)
	} else if err != nil {
		return bid, fmt.Errorf("repository.Repository.GetBidByUUID: %w", err)
	}
	return bid, nil
}

// HasBid reports whether the freelancer ever bid on the project.
func (repo *Repository) HasBid(ctx context.Context, projectId, freelancerId string) (bool, error) {
	if !validUUID(projectId) || !validUUID(freelancerId) {
		return false, nil
	}

	var ok bool
	err := repo.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM bids WHERE project_id = $1 AND freelancer_id = $2)",
		projectId, freelancerId,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("repository.Repository.HasBid: %w", err)
	}
	return ok, nil
}

// WithdrawBid moves a PENDING bid to WITHDRAWN.
func (repo *Repository) WithdrawBid(ctx context.Context, UUID string) (models.Bid, error) {
	if !validUUID(UUID) {
		return models.Bid{}, fmt.Errorf("repository.Repository.WithdrawBid: %w", models.ErrNoBid)
	}

	query := `
	UPDATE bids
	SET (status, updated_at) = ('WITHDRAWN', CURRENT_TIMESTAMP)
	WHERE id = $1 AND status = 'PENDING'
	RETURNING id, project_id, freelancer_id, amount, proposal, delivery_time, status, created_at, updated_at
	`
	bid, err := scanBid(repo.db.QueryRowContext(ctx, query, UUID))
	if errors.Is(err, sql.ErrNoRows) {
		if _, err = repo.GetBidByUUID(ctx, UUID); err != nil {
			return bid, fmt.Errorf("repository.Repository.WithdrawBid: %w", err)
		}
		return bid, fmt.Errorf("repository.Repository.WithdrawBid: %w", models.ErrBidNotPending)
	} else if err != nil {
		return bid, fmt.Errorf("repository.Repository.WithdrawBid: %w", err)
	}
	return bid, nil
}

// AwardBid accepts a PENDING bid of an OPEN project in one transaction: the
// bid becomes ACCEPTED, the project moves to IN_PROGRESS with the bidder
// assigned and every other PENDING bid of the project is REJECTED. The project
// row is locked first and every step is a conditional update, so of two
// concurrent awards on one project only the first succeeds.
func (repo *Repository) AwardBid(ctx context.Context, projectId, bidId string) (models.Project, models.Bid, error) {
	var project models.Project
	var bid models.Bid

	if !validUUID(projectId) {
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: %w", models.ErrNoProject)
	}
	if !validUUID(bidId) {
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: %w", models.ErrBidProcessed)
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: failed to start transaction: %w", err)
	}

	var locked string
	err = tx.QueryRowContext(ctx, "SELECT id FROM projects WHERE id = $1 FOR UPDATE", projectId).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: %w", wrapRollbackErr(tx, models.ErrNoProject))
	} else if err != nil {
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: %w", wrapRollbackErr(tx, err))
	}

	accept := `
	UPDATE bids
	SET (status, updated_at) = ('ACCEPTED', CURRENT_TIMESTAMP)
	WHERE id = $1 AND project_id = $2 AND status = 'PENDING'
	RETURNING id, project_id, freelancer_id, amount, proposal, delivery_time, status, created_at, updated_at
	`
	bid, err = scanBid(tx.QueryRowContext(ctx, accept, bidId, projectId))
	if errors.Is(err, sql.ErrNoRows) {
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: %w", wrapRollbackErr(tx, models.ErrBidProcessed))
	} else if isUniqueViolation(err) {
		// another bid of this project was accepted concurrently
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: %w", wrapRollbackErr(tx, models.ErrProjectNotOpen))
	} else if err != nil {
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: %w", wrapRollbackErr(tx, err))
	}

	assign := `
	UPDATE projects
	SET (status, freelancer_id, updated_at) = ('IN_PROGRESS', $2, CURRENT_TIMESTAMP)
	WHERE id = $1 AND status = 'OPEN' AND freelancer_id IS NULL
	`
	res, err := tx.ExecContext(ctx, assign, projectId, bid.FreelancerId)
	if err != nil {
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: %w", wrapRollbackErr(tx, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: %w", wrapRollbackErr(tx, err))
	}
	if n == 0 {
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: %w", wrapRollbackErr(tx, models.ErrProjectNotOpen))
	}

	reject := `
	UPDATE bids
	SET (status, updated_at) = ('REJECTED', CURRENT_TIMESTAMP)
	WHERE project_id = $1 AND id <> $2 AND status = 'PENDING'
	`
	_, err = tx.ExecContext(ctx, reject, projectId, bidId)
	if err != nil {
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: failed to reject bids: %w", wrapRollbackErr(tx, err))
	}

	project, err = repo.getProject(ctx, projectId, tx)
	if err != nil {
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: %w", wrapRollbackErr(tx, err))
	}

	err = tx.Commit()
	if err != nil {
		return project, bid, fmt.Errorf("repository.Repository.AwardBid: failed to commit transaction: %w", err)
	}

	return project, bid, nil
}
