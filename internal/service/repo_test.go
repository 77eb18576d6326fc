package service

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"freelance/internal/events"
	"freelance/internal/models"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository with the same conditional-update
// semantics as the postgres one.
type memRepo struct {
	mu            sync.Mutex
	users         map[string]models.User
	projects      map[string]models.Project
	bids          map[string]models.Bid
	milestones    map[string]models.Milestone
	notifications map[string]models.Notification
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:         map[string]models.User{},
		projects:      map[string]models.Project{},
		bids:          map[string]models.Bid{},
		milestones:    map[string]models.Milestone{},
		notifications: map[string]models.Notification{},
	}
}

func (r *memRepo) addUser(role models.Role) models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := models.User{Id: uuid.NewString(), Username: string(role) + "-" + uuid.NewString()[:8], Role: role}
	r.users[u.Id] = u
	return u
}

func (r *memRepo) UserByUUID(_ context.Context, id string) (models.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	return u, ok, nil
}

func (r *memRepo) withTotals(p models.Project) models.Project {
	p.TotalBids = 0
	for _, b := range r.bids {
		if b.ProjectId == p.Id {
			p.TotalBids++
		}
	}
	return p
}

func (r *memRepo) GetProjects(_ context.Context, f models.ProjectFilter) ([]models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]models.Project, 0)
	for _, p := range r.projects {
		if len(f.Status) > 0 && p.Status != f.Status {
			continue
		}
		if len(f.ClientId) > 0 && p.ClientId != f.ClientId {
			continue
		}
		if len(f.Skills) > 0 && !anySkill(p.RequiredSkills, f.Skills) {
			continue
		}
		if len(f.FreelancerId) > 0 && p.Status != models.ProjectOpen && p.FreelancerId != f.FreelancerId && !r.hasBid(p.Id, f.FreelancerId) {
			continue
		}
		result = append(result, r.withTotals(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if f.Offset >= len(result) {
		return []models.Project{}, nil
	}
	result = result[f.Offset:]
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (r *memRepo) GetProjectByUUID(_ context.Context, id string) (models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return p, models.ErrNoProject
	}
	return r.withTotals(p), nil
}

func anySkill(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

func (r *memRepo) AddProject(_ context.Context, p models.Project) (models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.Id = uuid.NewString()
	p.Status = models.ProjectOpen
	p.FreelancerId = ""
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.projects[p.Id] = p
	return p, nil
}

func (r *memRepo) UpdateProject(_ context.Context, p models.Project) (models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.projects[p.Id]
	if !ok {
		return p, models.ErrNoProject
	}
	if cur.Status != models.ProjectOpen {
		return p, models.ErrProjectNotOpen
	}
	cur.Title, cur.Description, cur.BudgetMin, cur.BudgetMax, cur.Deadline, cur.RequiredSkills = p.Title, p.Description, p.BudgetMin, p.BudgetMax, p.Deadline, p.RequiredSkills
	r.projects[p.Id] = cur
	return cur, nil
}

func (r *memRepo) CancelProject(_ context.Context, id string) (models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return p, models.ErrNoProject
	}
	if p.Status != models.ProjectOpen {
		return p, models.ErrProjectNotOpen
	}
	p.Status = models.ProjectCancelled
	r.projects[id] = p
	for bid, b := range r.bids {
		if b.ProjectId == id && b.Status == models.BidPending {
			b.Status = models.BidRejected
			r.bids[bid] = b
		}
	}
	return p, nil
}

func (r *memRepo) CompleteProject(_ context.Context, id string) (models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return p, models.ErrNoProject
	}
	if p.Status != models.ProjectInProgress {
		return p, models.ErrProjectNotInProgress
	}
	p.Status = models.ProjectCompleted
	r.projects[id] = p
	return p, nil
}

func (r *memRepo) DeleteProject(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return models.ErrNoProject
	}
	delete(r.projects, id)
	for bid, b := range r.bids {
		if b.ProjectId == id {
			delete(r.bids, bid)
		}
	}
	for mid, m := range r.milestones {
		if m.ProjectId == id {
			delete(r.milestones, mid)
		}
	}
	return nil
}

func (r *memRepo) AddBid(_ context.Context, bid models.Bid) (models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[bid.ProjectId]
	if !ok {
		return bid, models.ErrNoProject
	}
	if p.Status != models.ProjectOpen {
		return bid, models.ErrProjectNotOpen
	}
	for _, b := range r.bids {
		if b.ProjectId == bid.ProjectId && b.FreelancerId == bid.FreelancerId && b.Active() {
			return bid, models.ErrDuplicateBid
		}
	}
	bid.Id = uuid.NewString()
	bid.Status = models.BidPending
	bid.CreatedAt = time.Now()
	r.bids[bid.Id] = bid
	return bid, nil
}

func (r *memRepo) GetBids(_ context.Context, f models.BidFilter) ([]models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]models.Bid, 0)
	for _, b := range r.bids {
		if len(f.ProjectId) > 0 && b.ProjectId != f.ProjectId {
			continue
		}
		if len(f.FreelancerId) > 0 && b.FreelancerId != f.FreelancerId {
			continue
		}
		if len(f.ClientId) > 0 && r.projects[b.ProjectId].ClientId != f.ClientId {
			continue
		}
		if len(f.Status) > 0 && b.Status != f.Status {
			continue
		}
		result = append(result, b)
	}
	return result, nil
}

func (r *memRepo) GetBidByUUID(_ context.Context, id string) (models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bids[id]
	if !ok {
		return b, models.ErrNoBid
	}
	return b, nil
}

func (r *memRepo) hasBid(projectId, freelancerId string) bool {
	for _, b := range r.bids {
		if b.ProjectId == projectId && b.FreelancerId == freelancerId {
			return true
		}
	}
	return false
}

func (r *memRepo) HasBid(_ context.Context, projectId, freelancerId string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasBid(projectId, freelancerId), nil
}

func (r *memRepo) WithdrawBid(_ context.Context, id string) (models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bids[id]
	if !ok {
		return b, models.ErrNoBid
	}
	if b.Status != models.BidPending {
		return b, models.ErrBidNotPending
	}
	b.Status = models.BidWithdrawn
	r.bids[id] = b
	return b, nil
}

func (r *memRepo) AwardBid(_ context.Context, projectId, bidId string) (models.Project, models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[projectId]
	if !ok {
		return p, models.Bid{}, models.ErrNoProject
	}
	b, ok := r.bids[bidId]
	if !ok || b.ProjectId != projectId || b.Status != models.BidPending {
		return p, b, models.ErrBidProcessed
	}
	if p.Status != models.ProjectOpen || len(p.FreelancerId) > 0 {
		return p, b, models.ErrProjectNotOpen
	}
	b.Status = models.BidAccepted
	r.bids[bidId] = b
	p.Status = models.ProjectInProgress
	p.FreelancerId = b.FreelancerId
	r.projects[projectId] = p
	for id, other := range r.bids {
		if other.ProjectId == projectId && id != bidId && other.Status == models.BidPending {
			other.Status = models.BidRejected
			r.bids[id] = other
		}
	}
	return r.withTotals(p), b, nil
}

func (r *memRepo) GetMilestones(_ context.Context, projectId string) ([]models.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]models.Milestone, 0)
	for _, m := range r.milestones {
		if m.ProjectId == projectId {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *memRepo) GetMilestoneByUUID(_ context.Context, id string) (models.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.milestones[id]
	if !ok {
		return m, models.ErrNoMilestone
	}
	return m, nil
}

// mutate mirrors the repository: it runs fn and then the completion check.
func (r *memRepo) mutate(projectId string, fn func() (models.Milestone, error)) (models.MilestoneChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var change models.MilestoneChange
	p, ok := r.projects[projectId]
	if !ok {
		return change, models.ErrNoProject
	}
	if p.Finalized() {
		return change, models.ErrProjectFinalized
	}
	m, err := fn()
	if err != nil {
		return change, err
	}
	change.Milestone = m

	if p.Status == models.ProjectInProgress {
		var ms []models.Milestone
		for _, m := range r.milestones {
			if m.ProjectId == projectId {
				ms = append(ms, m)
			}
		}
		if models.MilestonesComplete(ms) {
			p.Status = models.ProjectCompleted
			r.projects[projectId] = p
			change.ProjectCompleted = true
		}
	}
	return change, nil
}

func (r *memRepo) AddMilestone(_ context.Context, m models.Milestone) (models.MilestoneChange, error) {
	return r.mutate(m.ProjectId, func() (models.Milestone, error) {
		m.Id = uuid.NewString()
		m.Status = models.MilestonePending
		r.milestones[m.Id] = m
		return m, nil
	})
}

func (r *memRepo) UpdateMilestone(_ context.Context, m models.Milestone) (models.MilestoneChange, error) {
	return r.mutate(m.ProjectId, func() (models.Milestone, error) {
		cur, ok := r.milestones[m.Id]
		if !ok {
			return m, models.ErrNoMilestone
		}
		if cur.Status == models.MilestoneCompleted {
			return m, models.ErrMilestoneFinalized
		}
		cur.Title, cur.Description, cur.Amount, cur.DueDate = m.Title, m.Description, m.Amount, m.DueDate
		r.milestones[m.Id] = cur
		return cur, nil
	})
}

func (r *memRepo) TransitionMilestone(_ context.Context, m models.Milestone, to models.MilestoneStatus) (models.MilestoneChange, error) {
	return r.mutate(m.ProjectId, func() (models.Milestone, error) {
		cur, ok := r.milestones[m.Id]
		if !ok {
			return m, models.ErrNoMilestone
		}
		if models.NeedsActiveProject(to) && r.projects[m.ProjectId].Status != models.ProjectInProgress {
			return m, models.ErrProjectNotInProgress
		}
		if tr := transitionFrom[to]; !tr.ok(cur.Status) {
			return m, tr.conflict
		}
		cur.SetStatus(to, time.Now())
		r.milestones[m.Id] = cur
		return cur, nil
	})
}

func (r *memRepo) DeleteMilestone(_ context.Context, m models.Milestone) (models.MilestoneChange, error) {
	return r.mutate(m.ProjectId, func() (models.Milestone, error) {
		cur, ok := r.milestones[m.Id]
		if !ok {
			return m, models.ErrNoMilestone
		}
		if cur.Status == models.MilestoneCompleted {
			return m, models.ErrMilestoneFinalized
		}
		delete(r.milestones, m.Id)
		return cur, nil
	})
}

func (r *memRepo) GetNotifications(_ context.Context, recipientId string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]models.Notification, 0)
	for _, n := range r.notifications {
		if n.RecipientId == recipientId && (!unreadOnly || !n.Read) {
			result = append(result, n)
		}
	}
	return result, nil
}

func (r *memRepo) MarkNotificationRead(_ context.Context, id, recipientId string) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifications[id]
	if !ok || n.RecipientId != recipientId {
		return n, models.ErrNoNotification
	}
	n.Read = true
	r.notifications[id] = n
	return n, nil
}

func (r *memRepo) MarkAllNotificationsRead(_ context.Context, recipientId string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for id, n := range r.notifications {
		if n.RecipientId == recipientId && !n.Read {
			n.Read = true
			r.notifications[id] = n
			count++
		}
	}
	return count, nil
}

// recorder is a Dispatcher keeping every event.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Enqueue(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.events))
	for _, e := range r.events {
		keys = append(keys, e.RoutingKey+":"+e.Kind)
	}
	return keys
}

// memCache is a Cache backed by a map, with generation invalidation.
type memCache struct {
	mu          sync.Mutex
	gen         int
	entries     map[string][]models.Project
	invalidated int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]models.Project{}}
}

func (c *memCache) Get(_ context.Context, userId, query string, dst any) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot := strconv.Itoa(c.gen) + ":" + userId + ":" + query
	v, ok := c.entries[slot]
	if ok {
		*(dst.(*[]models.Project)) = v
	}
	return slot, ok
}

func (c *memCache) Set(_ context.Context, slot string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[slot] = v.([]models.Project)
}

func (c *memCache) Invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.invalidated++
}
