package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type ProjectStatus string

const (
	ProjectOpen       ProjectStatus = "OPEN"
	ProjectInProgress ProjectStatus = "IN_PROGRESS"
	ProjectCompleted  ProjectStatus = "COMPLETED"
	ProjectCancelled  ProjectStatus = "CANCELLED"
)

func ValidProjectStatus(s ProjectStatus) bool {
	switch s {
	case ProjectOpen, ProjectInProgress, ProjectCompleted, ProjectCancelled:
		return true
	default:
		return false
	}
}

type Project struct {
	Id           string          `json:"id"`
	ClientId     string          `json:"clientId"`
	FreelancerId string          `json:"freelancerId,omitempty"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Status       ProjectStatus   `json:"status"`
	BudgetMin    decimal.Decimal `json:"budgetMin"`
	BudgetMax    decimal.Decimal `json:"budgetMax"`
	Deadline     time.Time       `json:"deadline"`
	// RequiredSkills holds normalized skill names, see NormalizeSkills.
	RequiredSkills []string  `json:"requiredSkills"`
	TotalBids      int       `json:"totalBids"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// IsParticipant reports whether the user is the project's client or its
// assigned freelancer.
func (p Project) IsParticipant(userId string) bool {
	if len(userId) == 0 {
		return false
	}
	return p.ClientId == userId || p.FreelancerId == userId
}

// Finalized projects accept no further transitions.
func (p Project) Finalized() bool {
	return p.Status == ProjectCompleted || p.Status == ProjectCancelled
}

// BudgetContains reports whether amount lies within [BudgetMin, BudgetMax].
func (p Project) BudgetContains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(p.BudgetMin) && amount.LessThanOrEqual(p.BudgetMax)
}

// ValidateBudget checks the budget range of a new or edited project.
// MaxAmount is the largest money value a NUMERIC(12,2) column holds.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// ValidateAmount checks that d fits the stored money precision: at most two
// decimal places and no more than MaxAmount.
func ValidateAmount(field string, d decimal.Decimal) error {
	if !d.Equal(d.Round(2)) {
		return NewValidationError(field, "must have at most 2 decimal places")
	}
	if d.Abs().GreaterThan(MaxAmount) {
		return NewValidationError(field, "must not exceed "+MaxAmount.StringFixed(2))
	}
	return nil
}

func ValidateBudget(min, max decimal.Decimal) error {
	if min.IsNegative() {
		return NewValidationError("budgetMin", "must not be negative")
	}
	if err := ValidateAmount("budgetMin", min); err != nil {
		return err
	}
	if err := ValidateAmount("budgetMax", max); err != nil {
		return err
	}
	if min.GreaterThan(max) {
		return NewValidationError("budget", "minimum budget cannot exceed maximum budget")
	}
	return nil
}

const (
	maxSkills      = 20
	maxSkillLength = 50
)

// NormalizeSkills trims, lowercases, dedupes and sorts skill names. Empty
// names are dropped.
func NormalizeSkills(field string, skills []string) ([]string, error) {
	seen := make(map[string]bool, len(skills))
	result := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if len(s) == 0 || seen[s] {
			continue
		}
		if utf8.RuneCountInString(s) > maxSkillLength {
			return nil, NewValidationError(field, fmt.Sprintf("skill names must be at most %d characters", maxSkillLength))
		}
		seen[s] = true
		result = append(result, s)
	}
	if len(result) > maxSkills {
		return nil, NewValidationError(field, fmt.Sprintf("at most %d skills allowed", maxSkills))
	}
	sort.Strings(result)
	return result, nil
}

// ValidateDeadline rejects deadlines that are not strictly after now.
func ValidateDeadline(deadline, now time.Time) error {
	if deadline.IsZero() {
		return NewValidationError("deadline", "is required")
	}
	if !deadline.After(now) {
		return NewValidationError("deadline", "cannot be in the past")
	}
	return nil
}

// ProjectFilter narrows project listings. Empty fields are ignored.
type ProjectFilter struct {
	Status    ProjectStatus
	BudgetMin *decimal.Decimal
	BudgetMax *decimal.Decimal
	Search    string
	// Skills selects projects requiring any of the listed skills.
	Skills []string
	Limit  int
	Offset int

	// Scoping is derived from the caller, never from the query string.
	// ClientId limits results to one client's projects. FreelancerId limits
	// results to open projects plus those the freelancer works on or bid on.
	ClientId     string
	FreelancerId string
}
