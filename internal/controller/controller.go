package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"freelance/internal/auth"
	"freelance/internal/models"
	"freelance/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Service interface {
	GetProjects(ctx context.Context, caller models.User, filter models.ProjectFilter) ([]models.Project, error)
	GetProject(ctx context.Context, caller models.User, projectId string) (models.Project, error)
	AddProject(ctx context.Context, caller models.User, project models.Project) (models.Project, error)
	EditProject(ctx context.Context, caller models.User, projectId string, changes service.ProjectChanges) (models.Project, error)
	CancelProject(ctx context.Context, caller models.User, projectId string) (models.Project, error)
	DeleteProject(ctx context.Context, caller models.User, projectId string) error
	CompleteProject(ctx context.Context, caller models.User, projectId string) (models.Project, error)

	SubmitBid(ctx context.Context, caller models.User, projectId string, bid models.Bid) (models.Bid, error)
	AcceptBid(ctx context.Context, caller models.User, projectId, bidId string) (models.Project, error)
	WithdrawBid(ctx context.Context, caller models.User, bidId string) (models.Bid, error)
	GetBid(ctx context.Context, caller models.User, bidId string) (models.Bid, error)
	GetBids(ctx context.Context, caller models.User, filter models.BidFilter) ([]models.Bid, error)
	GetProjectBids(ctx context.Context, caller models.User, projectId string, limit, offset int) ([]models.Bid, error)

	GetMilestones(ctx context.Context, caller models.User, projectId string) ([]models.Milestone, error)
	GetMilestone(ctx context.Context, caller models.User, milestoneId string) (models.Milestone, error)
	AddMilestone(ctx context.Context, caller models.User, projectId string, m models.Milestone) (models.Milestone, error)
	EditMilestone(ctx context.Context, caller models.User, milestoneId string, changes service.MilestoneChanges) (models.Milestone, error)
	StartMilestone(ctx context.Context, caller models.User, milestoneId string) (models.Milestone, error)
	CompleteMilestone(ctx context.Context, caller models.User, milestoneId string) (models.Milestone, error)
	CancelMilestone(ctx context.Context, caller models.User, milestoneId string) (models.Milestone, error)
	DeleteMilestone(ctx context.Context, caller models.User, milestoneId string) error

	GetNotifications(ctx context.Context, caller models.User, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, caller models.User, notificationId string) (models.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, caller models.User) (int64, error)
}

type Controller struct {
	service Service
	log     *zap.Logger
}

func NewController(service Service, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{service: service, log: log}
}

// GET /api/ping
func (c *Controller) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

//// Projects

// GET /api/projects
func (c *Controller) GetProjects(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := models.ProjectFilter{
		Status: models.ProjectStatus(query.Get("status")),
		Search: query.Get("search"),
		Skills: getQueryList(query, "skills"),
	}

	var err error
	if filter.Limit, filter.Offset, ok = c.page(w, query); !ok {
		return
	}
	if filter.BudgetMin, err = getQueryDecimal(query, "budget_min"); err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'budget_min' query parameter: "+query.Get("budget_min"))
		return
	}
	if filter.BudgetMax, err = getQueryDecimal(query, "budget_max"); err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'budget_max' query parameter: "+query.Get("budget_max"))
		return
	}

	projects, err := c.service.GetProjects(r.Context(), caller, filter)
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, projects)
}

// POST /api/projects
func (c *Controller) NewProject(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseNewProjectReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := c.service.AddProject(r.Context(), caller, models.Project{
		Title:          req.Title,
		Description:    req.Description,
		BudgetMin:      req.BudgetMin,
		BudgetMax:      req.BudgetMax,
		Deadline:       req.Deadline,
		RequiredSkills: req.Skills,
	})
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalStatusResponse(w, http.StatusCreated, project)
}

// GET /api/projects/{id}
func (c *Controller) GetProject(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	project, err := c.service.GetProject(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, project)
}

// PATCH /api/projects/{id}
func (c *Controller) EditProject(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseProjectChangeReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := c.service.EditProject(r.Context(), caller, chi.URLParam(r, "id"), service.ProjectChanges{
		Title:          req.Title,
		Description:    req.Description,
		BudgetMin:      req.BudgetMin,
		BudgetMax:      req.BudgetMax,
		Deadline:       req.Deadline,
		RequiredSkills: req.Skills,
	})
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, project)
}

// DELETE /api/projects/{id}
func (c *Controller) DeleteProject(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	err := c.service.DeleteProject(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /api/projects/{id}/complete_project
func (c *Controller) CompleteProject(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	project, err := c.service.CompleteProject(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, project)
}

// POST /api/projects/{id}/cancel_project
func (c *Controller) CancelProject(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	project, err := c.service.CancelProject(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, project)
}

//// Bids

// POST /api/projects/{id}/submit_bid
func (c *Controller) SubmitBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseNewBidReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	bid, err := c.service.SubmitBid(r.Context(), caller, chi.URLParam(r, "id"), models.Bid{
		Amount:       req.Amount,
		Proposal:     req.Proposal,
		DeliveryTime: req.DeliveryTime,
	})
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalStatusResponse(w, http.StatusCreated, bid)
}

// POST /api/projects/{id}/accept_bid
func (c *Controller) AcceptBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseAcceptBidReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := c.service.AcceptBid(r.Context(), caller, chi.URLParam(r, "id"), req.BidId)
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, project)
}

// GET /api/projects/{id}/bids
func (c *Controller) ProjectBids(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	limit, offset, ok := c.page(w, r.URL.Query())
	if !ok {
		return
	}

	bids, err := c.service.GetProjectBids(r.Context(), caller, chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, bids)
}

// GET /api/bids
func (c *Controller) GetBids(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := models.BidFilter{Status: models.BidStatus(query.Get("status"))}
	if filter.Limit, filter.Offset, ok = c.page(w, query); !ok {
		return
	}

	bids, err := c.service.GetBids(r.Context(), caller, filter)
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, bids)
}

// GET /api/bids/{id}
func (c *Controller) GetBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	bid, err := c.service.GetBid(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, bid)
}

// POST /api/bids/{id}/withdraw_bid
func (c *Controller) WithdrawBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	bid, err := c.service.WithdrawBid(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, bid)
}

//// Milestones

// GET /api/projects/{id}/milestones
func (c *Controller) ProjectMilestones(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	milestones, err := c.service.GetMilestones(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, milestones)
}

// POST /api/projects/{id}/milestones
func (c *Controller) NewMilestone(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseNewMilestoneReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := c.service.AddMilestone(r.Context(), caller, chi.URLParam(r, "id"), models.Milestone{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		DueDate:     req.DueDate,
	})
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalStatusResponse(w, http.StatusCreated, m)
}

// GET /api/milestones/{id}
func (c *Controller) GetMilestone(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	m, err := c.service.GetMilestone(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, m)
}

// PATCH /api/milestones/{id}
func (c *Controller) EditMilestone(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseMilestoneChangeReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := c.service.EditMilestone(r.Context(), caller, chi.URLParam(r, "id"), service.MilestoneChanges{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		DueDate:     req.DueDate,
	})
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, m)
}

// DELETE /api/milestones/{id}
func (c *Controller) DeleteMilestone(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	err := c.service.DeleteMilestone(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /api/milestones/{id}/start_milestone
func (c *Controller) StartMilestone(w http.ResponseWriter, r *http.Request) {
	c.milestoneTransition(w, r, c.service.StartMilestone)
}

// POST /api/milestones/{id}/complete_milestone
func (c *Controller) CompleteMilestone(w http.ResponseWriter, r *http.Request) {
	c.milestoneTransition(w, r, c.service.CompleteMilestone)
}

// POST /api/milestones/{id}/cancel_milestone
func (c *Controller) CancelMilestone(w http.ResponseWriter, r *http.Request) {
	c.milestoneTransition(w, r, c.service.CancelMilestone)
}

func (c *Controller) milestoneTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, models.User, string) (models.Milestone, error)) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	m, err := fn(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, m)
}

//// Notifications

// GET /api/notifications
func (c *Controller) GetNotifications(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	limit, offset, ok := c.page(w, query)
	if !ok {
		return
	}

	unread := false
	if str := query.Get("unread"); len(str) > 0 {
		var err error
		if unread, err = strconv.ParseBool(str); err != nil {
			c.errorResponse(w, http.StatusBadRequest, "invalid value of 'unread' query parameter: "+str)
			return
		}
	}

	notifications, err := c.service.GetNotifications(r.Context(), caller, unread, limit, offset)
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, notifications)
}

// POST /api/notifications/{id}/mark_read
func (c *Controller) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	n, err := c.service.MarkNotificationRead(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, n)
}

// POST /api/notifications/mark_all_read
func (c *Controller) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := c.caller(w, r)
	if !ok {
		return
	}

	count, err := c.service.MarkAllNotificationsRead(r.Context(), caller)
	if err != nil {
		c.serviceErrorResponse(w, r, err)
		return
	}

	c.marshalResponse(w, MarkAllReadResponse{Marked: count})
}

// Service

type ErrorResponse struct {
	Reason string `json:"reason"`
	// Code tells apart failures sharing a status, e.g. validation errors and
	// state conflicts.
	Code string `json:"code,omitempty"`
}

type MarkAllReadResponse struct {
	Marked int64 `json:"marked"`
}

func (c *Controller) caller(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		c.errorResponse(w, http.StatusUnauthorized, "user is not authenticated")
	}
	return user, ok
}

func (c *Controller) page(w http.ResponseWriter, query url.Values) (int, int, bool) {
	limit, err := c.getQueryInt(query, "limit")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'limit' query parameter: "+query.Get("limit"))
		return 0, 0, false
	}

	offset, err := c.getQueryInt(query, "offset")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'offset' query parameter: "+query.Get("offset"))
		return 0, 0, false
	}

	return limit, offset, true
}

func (c *Controller) getQueryInt(query url.Values, key string) (int, error) {
	strs, ok := query[key]
	if ok && len(strs) > 0 {
		return strconv.Atoi(strs[0])
	}
	return 0, nil
}

// getQueryList collects repeated and comma separated values of key.
func getQueryList(query url.Values, key string) []string {
	var values []string
	for _, v := range query[key] {
		values = append(values, strings.Split(v, ",")...)
	}
	return values
}

func getQueryDecimal(query url.Values, key string) (*decimal.Decimal, error) {
	str := query.Get(key)
	if len(str) == 0 {
		return nil, nil
	}
	d, err := decimal.NewFromString(str)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Controller) errorResponse(w http.ResponseWriter, status int, text string) {
	c.errorCodeResponse(w, status, "", text)
}

func (c *Controller) errorCodeResponse(w http.ResponseWriter, status int, code, text string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	data, err := json.Marshal(ErrorResponse{Reason: text, Code: code})
	if err != nil {
		c.log.Error("controller.Controller.errorResponse", zap.Error(err))
		return
	}

	_, err = w.Write(data)
	if err != nil {
		c.log.Error("controller.Controller.errorResponse", zap.Error(err))
		return
	}
}

var serviceErrors = []struct {
	err    error
	status int
	code   string
}{
	{models.ErrInvalidUser, http.StatusUnauthorized, "unauthenticated"},
	{models.ErrNoProject, http.StatusNotFound, "not_found"},
	{models.ErrNoBid, http.StatusNotFound, "not_found"},
	{models.ErrNoMilestone, http.StatusNotFound, "not_found"},
	{models.ErrNoNotification, http.StatusNotFound, "not_found"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden"},
	{models.ErrDuplicateBid, http.StatusBadRequest, "validation_error"},
	{models.ErrProjectNotOpen, http.StatusBadRequest, "state_conflict"},
	{models.ErrProjectNotInProgress, http.StatusBadRequest, "state_conflict"},
	{models.ErrProjectFinalized, http.StatusBadRequest, "state_conflict"},
	{models.ErrBidProcessed, http.StatusBadRequest, "state_conflict"},
	{models.ErrBidNotPending, http.StatusBadRequest, "state_conflict"},
	{models.ErrMilestoneNotPending, http.StatusBadRequest, "state_conflict"},
	{models.ErrMilestoneNotActive, http.StatusBadRequest, "state_conflict"},
	{models.ErrMilestoneFinalized, http.StatusBadRequest, "state_conflict"},
}

func (c *Controller) serviceErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		c.errorCodeResponse(w, http.StatusBadRequest, "validation_error", verr.Error())
		return
	}

	for _, e := range serviceErrors {
		if errors.Is(err, e.err) {
			c.errorCodeResponse(w, e.status, e.code, e.err.Error())
			return
		}
	}

	c.log.Error("controller: unhandled service error",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	c.errorResponse(w, http.StatusInternalServerError, "internal server error")
}

func (c *Controller) marshalResponse(w http.ResponseWriter, data any) {
	c.marshalStatusResponse(w, http.StatusOK, data)
}

func (c *Controller) marshalStatusResponse(w http.ResponseWriter, status int, data any) {
	d, err := json.Marshal(data)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not marshal response data")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(d)
	if err != nil {
		c.log.Warn("could not write response data", zap.Error(err))
	}
}

func (c *Controller) readBody(src io.ReadCloser) ([]byte, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	src.Close()
	return data, nil
}
