package service

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"freelance/internal/events"
	"freelance/internal/metrics"
	"freelance/internal/models"
	"freelance/internal/policy"

	"go.uber.org/zap"
)

const maxProposalLength = 5000

// SubmitBid places a PENDING bid of caller on an OPEN project.
func (s *Service) SubmitBid(ctx context.Context, caller models.User, projectId string, bid models.Bid) (models.Bid, error) {
	project, err := s.repo.GetProjectByUUID(ctx, projectId)
	if err != nil {
		return bid, fmt.Errorf("service.Service.SubmitBid: %w", err)
	}

	err = policy.Check(caller, policy.SubmitBid, policy.Resource{Project: &project})
	if err != nil {
		return bid, fmt.Errorf("service.Service.SubmitBid: %w", err)
	}
	if project.Status != models.ProjectOpen {
		metrics.RecordBid("closed")
		return bid, fmt.Errorf("service.Service.SubmitBid: %w", models.ErrProjectNotOpen)
	}

	if err = models.ValidateBid(project, bid); err != nil {
		metrics.RecordBid("invalid")
		return bid, fmt.Errorf("service.Service.SubmitBid: %w", err)
	}
	if utf8.RuneCountInString(bid.Proposal) > maxProposalLength {
		metrics.RecordBid("invalid")
		return bid, fmt.Errorf("service.Service.SubmitBid: %w", models.NewValidationError("proposal", "must be at most 5000 characters"))
	}

	bid.ProjectId = project.Id
	bid.FreelancerId = caller.Id
	bid, err = s.repo.AddBid(ctx, bid)
	switch {
	case errors.Is(err, models.ErrDuplicateBid):
		metrics.RecordBid("duplicate")
		return bid, fmt.Errorf("service.Service.SubmitBid: %w", err)
	case errors.Is(err, models.ErrProjectNotOpen):
		metrics.RecordBid("closed")
		return bid, fmt.Errorf("service.Service.SubmitBid: %w", err)
	case err != nil:
		return bid, fmt.Errorf("service.Service.SubmitBid: %w", err)
	}

	metrics.RecordBid("created")
	s.written(ctx, events.NewBidCreated(bid))
	return bid, nil
}

// AcceptBid awards an OPEN project to the freelancer of one of its PENDING
// bids. All other PENDING bids of the project are rejected.
func (s *Service) AcceptBid(ctx context.Context, caller models.User, projectId, bidId string) (models.Project, error) {
	project, err := s.repo.GetProjectByUUID(ctx, projectId)
	if err != nil {
		return project, fmt.Errorf("service.Service.AcceptBid: %w", err)
	}

	err = policy.Check(caller, policy.AcceptBid, policy.Resource{Project: &project})
	if err != nil {
		return project, fmt.Errorf("service.Service.AcceptBid: %w", err)
	}
	if project.Status != models.ProjectOpen {
		metrics.RecordAward("conflict")
		return project, fmt.Errorf("service.Service.AcceptBid: %w", models.ErrProjectNotOpen)
	}

	project, bid, err := s.repo.AwardBid(ctx, projectId, bidId)
	if err != nil {
		if models.IsStateConflict(err) {
			metrics.RecordAward("conflict")
		}
		return project, fmt.Errorf("service.Service.AcceptBid: %w", err)
	}

	metrics.RecordAward("accepted")
	s.log.Info("bid accepted",
		zap.String("project_id", project.Id),
		zap.String("bid_id", bid.Id),
		zap.String("freelancer_id", bid.FreelancerId),
	)
	s.written(ctx, events.NewProjectUpdated(project.Id, events.KindBidAccepted, "Bid accepted for project"))
	return project, nil
}

// WithdrawBid lets a freelancer retract their own PENDING bid.
func (s *Service) WithdrawBid(ctx context.Context, caller models.User, bidId string) (models.Bid, error) {
	bid, err := s.repo.GetBidByUUID(ctx, bidId)
	if err != nil {
		return bid, fmt.Errorf("service.Service.WithdrawBid: %w", err)
	}

	err = policy.Check(caller, policy.WithdrawBid, policy.Resource{Bid: &bid})
	if err != nil {
		return bid, fmt.Errorf("service.Service.WithdrawBid: %w", err)
	}
	if bid.Status != models.BidPending {
		return bid, fmt.Errorf("service.Service.WithdrawBid: %w", models.ErrBidNotPending)
	}

	bid, err = s.repo.WithdrawBid(ctx, bidId)
	if err != nil {
		return bid, fmt.Errorf("service.Service.WithdrawBid: %w", err)
	}

	s.written(ctx)
	return bid, nil
}

func (s *Service) GetBid(ctx context.Context, caller models.User, bidId string) (models.Bid, error) {
	bid, err := s.repo.GetBidByUUID(ctx, bidId)
	if err != nil {
		return bid, fmt.Errorf("service.Service.GetBid: %w", err)
	}

	project, err := s.repo.GetProjectByUUID(ctx, bid.ProjectId)
	if err != nil {
		return bid, fmt.Errorf("service.Service.GetBid: %w", err)
	}

	err = policy.Check(caller, policy.ViewBid, policy.Resource{Project: &project, Bid: &bid})
	if err != nil {
		return bid, fmt.Errorf("service.Service.GetBid: %w", hidden(err, models.ErrNoBid))
	}
	return bid, nil
}

// GetBids lists the caller's own bids for freelancers, bids on the caller's
// projects for clients and every bid for admins.
func (s *Service) GetBids(ctx context.Context, caller models.User, filter models.BidFilter) ([]models.Bid, error) {
	var err error

	if len(filter.Status) > 0 && !models.ValidBidStatus(filter.Status) {
		return nil, fmt.Errorf("service.Service.GetBids: %w", models.NewValidationError("status", "unknown bid status"))
	}
	filter.Limit, filter.Offset, err = clampPage(filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetBids: %w", err)
	}

	filter.ClientId, filter.FreelancerId = "", ""
	switch caller.Role {
	case models.RoleClient:
		filter.ClientId = caller.Id
	case models.RoleFreelancer:
		filter.FreelancerId = caller.Id
	case models.RoleAdmin:
	default:
		return nil, fmt.Errorf("service.Service.GetBids: %w", models.ErrForbidden)
	}

	bids, err := s.repo.GetBids(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetBids: %w", err)
	}
	return bids, nil
}

// GetProjectBids lists the bids of one project. The owner and admins see all
// of them, a freelancer only their own.
func (s *Service) GetProjectBids(ctx context.Context, caller models.User, projectId string, limit, offset int) ([]models.Bid, error) {
	project, err := s.repo.GetProjectByUUID(ctx, projectId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetProjectBids: %w", err)
	}

	err = policy.Check(caller, policy.ListProjectBids, policy.Resource{Project: &project})
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetProjectBids: %w", err)
	}

	filter := models.BidFilter{ProjectId: project.Id}
	filter.Limit, filter.Offset, err = clampPage(limit, offset)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetProjectBids: %w", err)
	}
	if project.ClientId != caller.Id && caller.Role != models.RoleAdmin {
		filter.FreelancerId = caller.Id
	}

	bids, err := s.repo.GetBids(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service.Service.GetProjectBids: %w", err)
	}
	return bids, nil
}
