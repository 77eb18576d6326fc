package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBudgetContains(t *testing.T) {
	p := Project{BudgetMin: decimal.NewFromInt(100), BudgetMax: decimal.NewFromInt(500)}

	cases := map[string]bool{
		"50":     false,
		"99.99":  false,
		"100":    true,
		"300":    true,
		"500":    true,
		"500.01": false,
	}
	for amount, want := range cases {
		if got := p.BudgetContains(decimal.RequireFromString(amount)); got != want {
			t.Errorf("BudgetContains(%s) = %v, want %v", amount, got, want)
		}
	}
}

func TestValidateBid(t *testing.T) {
	p := Project{BudgetMin: decimal.NewFromInt(100), BudgetMax: decimal.NewFromInt(500)}

	cases := []struct {
		bid   Bid
		field string
	}{
		{Bid{Amount: decimal.NewFromInt(300), DeliveryTime: 3}, ""},
		{Bid{Amount: decimal.NewFromInt(50), DeliveryTime: 3}, "amount"},
		{Bid{Amount: decimal.NewFromInt(-1), DeliveryTime: 3}, "amount"},
		{Bid{Amount: decimal.NewFromInt(300), DeliveryTime: 0}, "deliveryTime"},
		{Bid{Amount: decimal.RequireFromString("300.555"), DeliveryTime: 3}, "amount"},
	}
	for _, tc := range cases {
		err := ValidateBid(p, tc.bid)
		if len(tc.field) == 0 {
			if err != nil {
				t.Errorf("Unexpected error for %+v: %s", tc.bid, err)
			}
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != tc.field {
			t.Errorf("Expected %s validation error for %+v, got %v", tc.field, tc.bid, err)
		}
	}
}

func TestValidateBudgetAndDeadline(t *testing.T) {
	now := time.Now()

	if err := ValidateBudget(decimal.NewFromInt(5), decimal.NewFromInt(5)); err != nil {
		t.Errorf("Equal bounds must be valid: %s", err)
	}
	if err := ValidateBudget(decimal.NewFromInt(6), decimal.NewFromInt(5)); err == nil {
		t.Error("Expected error for min above max")
	}
	if err := ValidateBudget(decimal.NewFromInt(-1), decimal.NewFromInt(5)); err == nil {
		t.Error("Expected error for negative min")
	}

	if err := ValidateDeadline(now.Add(time.Minute), now); err != nil {
		t.Errorf("Future deadline must be valid: %s", err)
	}
	if err := ValidateDeadline(now, now); err == nil {
		t.Error("Expected error for deadline equal to now")
	}
	if err := ValidateDeadline(time.Time{}, now); err == nil {
		t.Error("Expected error for missing deadline")
	}
}

func TestValidateAmount(t *testing.T) {
	cases := map[string]bool{
		"0":             true,
		"12.5":          true,
		"12.50":         true,
		"0.01":          true,
		"9999999999.99": true,
		"12.345":        false,
		"0.001":         false,
		"10000000000":   false,
		"1e12":          false,
		"-1e12":         false,
	}
	for amount, valid := range cases {
		err := ValidateAmount("amount", decimal.RequireFromString(amount))
		if valid != (err == nil) {
			t.Errorf("ValidateAmount(%s) = %v, valid %v", amount, err, valid)
		}
		var verr *ValidationError
		if err != nil && (!errors.As(err, &verr) || verr.Field != "amount") {
			t.Errorf("Expected amount validation error for %s, got %v", amount, err)
		}
	}

	err := ValidateBudget(decimal.NewFromInt(100), decimal.RequireFromString("1e12"))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "budgetMax" {
		t.Errorf("Expected budgetMax validation error, got %v", err)
	}
	err = ValidateMilestone(Milestone{Title: "x", Amount: decimal.RequireFromString("10.001"), DueDate: time.Now().Add(time.Hour)}, time.Now())
	if !errors.As(err, &verr) || verr.Field != "amount" {
		t.Errorf("Expected milestone amount validation error, got %v", err)
	}
}

func TestNormalizeSkills(t *testing.T) {
	skills, err := NormalizeSkills("requiredSkills", []string{" Go ", "go", "SQL", "", "docker"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(skills, ",") != "docker,go,sql" {
		t.Fatalf("Unexpected normalized skills: %v", skills)
	}

	if skills, err = NormalizeSkills("requiredSkills", nil); err != nil || skills == nil || len(skills) != 0 {
		t.Fatalf("Expected an empty non-nil list, got %v, %v", skills, err)
	}

	var verr *ValidationError
	if _, err = NormalizeSkills("requiredSkills", []string{strings.Repeat("a", 51)}); !errors.As(err, &verr) || verr.Field != "requiredSkills" {
		t.Errorf("Expected validation error for a long skill, got %v", err)
	}
	many := make([]string, 21)
	for i := range many {
		many[i] = fmt.Sprintf("skill%d", i)
	}
	if _, err = NormalizeSkills("skills", many); !errors.As(err, &verr) || verr.Field != "skills" {
		t.Errorf("Expected validation error for too many skills, got %v", err)
	}
}

func TestMilestoneSetStatus(t *testing.T) {
	now := time.Now()
	m := Milestone{Status: MilestonePending}

	m.SetStatus(MilestoneInProgress, now)
	if m.CompletedAt != nil {
		t.Fatal("CompletedAt set on IN_PROGRESS")
	}

	m.SetStatus(MilestoneCompleted, now)
	if m.CompletedAt == nil || !m.CompletedAt.Equal(now) {
		t.Fatalf("Expected CompletedAt %s, got %v", now, m.CompletedAt)
	}

	m.SetStatus(MilestoneCompleted, now.Add(time.Hour))
	if !m.CompletedAt.Equal(now) {
		t.Fatal("Re-completing moved CompletedAt")
	}

	m.SetStatus(MilestoneCancelled, now)
	if m.CompletedAt != nil {
		t.Fatal("CompletedAt kept after leaving COMPLETED")
	}
}

func TestMilestonesComplete(t *testing.T) {
	done := Milestone{Status: MilestoneCompleted}

	cases := []struct {
		milestones []Milestone
		want       bool
	}{
		{nil, false},
		{[]Milestone{done}, true},
		{[]Milestone{done, done}, true},
		{[]Milestone{done, {Status: MilestoneInProgress}}, false},
		{[]Milestone{done, {Status: MilestoneCancelled}}, false},
	}
	for i, tc := range cases {
		if got := MilestonesComplete(tc.milestones); got != tc.want {
			t.Errorf("case %d: got %v, want %v", i, got, tc.want)
		}
	}
}

func TestIsStateConflict(t *testing.T) {
	if !IsStateConflict(fmt.Errorf("wrapped: %w", ErrBidProcessed)) {
		t.Error("Expected wrapped ErrBidProcessed to be a state conflict")
	}
	if IsStateConflict(ErrForbidden) {
		t.Error("ErrForbidden is not a state conflict")
	}
	if IsStateConflict(nil) {
		t.Error("nil is not a state conflict")
	}
}

func TestFullName(t *testing.T) {
	cases := []struct {
		user User
		want string
	}{
		{User{Username: "jdoe", FirstName: "John", LastName: "Doe"}, "John Doe"},
		{User{Username: "jdoe", FirstName: "John"}, "John"},
		{User{Username: "jdoe"}, "jdoe"},
	}
	for _, tc := range cases {
		if got := tc.user.FullName(); got != tc.want {
			t.Errorf("FullName() = %q, want %q", got, tc.want)
		}
	}
}
