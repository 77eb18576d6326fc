package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"freelance/internal/models"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
)

func addTestMilestone(t *testing.T, repo *Repository, projectId string) models.Milestone {
	t.Helper()

	change, err := repo.AddMilestone(context.Background(), models.Milestone{
		ProjectId:   projectId,
		Title:       gofakeit.BuzzWord(),
		Description: gofakeit.Blurb(),
		Amount:      decimal.NewFromInt(100),
		DueDate:     time.Now().Add(7 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to add test milestone: %s", err)
	}
	if change.ProjectCompleted {
		t.Fatal("Adding a milestone must not complete the project")
	}
	return change.Milestone
}

func awardedTestProject(t *testing.T, repo *Repository, users TestUsers) models.Project {
	t.Helper()

	project := AddTestProject(t, repo, users.Client.Id)
	bid := AddTestBid(t, repo, project.Id, users.Freelancers[0].Id, 300)
	project, _, err := repo.AwardBid(context.Background(), project.Id, bid.Id)
	if err != nil {
		t.Fatalf("Failed to award test project: %s", err)
	}
	return project
}

func TestMilestoneCompletion(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	users := InsertTestInitData(t, repo)
	project := awardedTestProject(t, repo, users)

	m1 := addTestMilestone(t, repo, project.Id)
	m2 := addTestMilestone(t, repo, project.Id)

	// PENDING cannot be completed directly
	if _, err := repo.TransitionMilestone(ctx, m1, models.MilestoneCompleted); !errors.Is(err, models.ErrMilestoneNotActive) {
		t.Fatalf("Expected ErrMilestoneNotActive, got %v", err)
	}

	for _, m := range []models.Milestone{m1, m2} {
		change, err := repo.TransitionMilestone(ctx, m, models.MilestoneInProgress)
		if err != nil {
			t.Fatalf("Could not start milestone: %s", err)
		}
		if change.Milestone.Status != models.MilestoneInProgress || change.Milestone.CompletedAt != nil {
			t.Fatalf("Unexpected started milestone: %+v", change.Milestone)
		}
	}

	change, err := repo.TransitionMilestone(ctx, m1, models.MilestoneCompleted)
	if err != nil {
		t.Fatalf("Could not complete milestone: %s", err)
	}
	if change.Milestone.CompletedAt == nil {
		t.Fatal("Expected completed_at to be set")
	}
	if change.ProjectCompleted {
		t.Fatal("Project completed while a milestone is still in progress")
	}

	p, err := repo.GetProjectByUUID(ctx, project.Id)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != models.ProjectInProgress {
		t.Fatalf("Expected IN_PROGRESS, got %s", p.Status)
	}

	change, err = repo.TransitionMilestone(ctx, m2, models.MilestoneCompleted)
	if err != nil {
		t.Fatalf("Could not complete milestone: %s", err)
	}
	if !change.ProjectCompleted {
		t.Fatal("Expected the last milestone to complete the project")
	}

	p, err = repo.GetProjectByUUID(ctx, project.Id)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != models.ProjectCompleted {
		t.Fatalf("Expected COMPLETED, got %s", p.Status)
	}

	// finalized project takes no milestone changes
	if _, err = repo.AddMilestone(ctx, models.Milestone{ProjectId: project.Id, Title: "late", Amount: decimal.NewFromInt(1), DueDate: time.Now().Add(time.Hour)}); !errors.Is(err, models.ErrProjectFinalized) {
		t.Fatalf("Expected ErrProjectFinalized, got %v", err)
	}
}

func TestMilestoneDeleteCompletesProject(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	users := InsertTestInitData(t, repo)
	project := awardedTestProject(t, repo, users)

	done := addTestMilestone(t, repo, project.Id)
	pending := addTestMilestone(t, repo, project.Id)

	if _, err := repo.TransitionMilestone(ctx, done, models.MilestoneInProgress); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.TransitionMilestone(ctx, done, models.MilestoneCompleted); err != nil {
		t.Fatal(err)
	}

	if _, err := repo.DeleteMilestone(ctx, done); !errors.Is(err, models.ErrMilestoneFinalized) {
		t.Fatalf("Expected completed milestone delete to fail, got %v", err)
	}

	change, err := repo.DeleteMilestone(ctx, pending)
	if err != nil {
		t.Fatalf("Could not delete milestone: %s", err)
	}
	if !change.ProjectCompleted {
		t.Fatal("Expected deleting the last open milestone to complete the project")
	}
}

func TestMilestoneProgressOnOpenProject(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	users := InsertTestInitData(t, repo)
	project := AddTestProject(t, repo, users.Client.Id)
	m := addTestMilestone(t, repo, project.Id)

	if _, err := repo.TransitionMilestone(ctx, m, models.MilestoneInProgress); !errors.Is(err, models.ErrProjectNotInProgress) {
		t.Fatalf("Expected ErrProjectNotInProgress, got %v", err)
	}

	// cancelling stays allowed before the award
	change, err := repo.TransitionMilestone(ctx, m, models.MilestoneCancelled)
	if err != nil {
		t.Fatalf("Could not cancel milestone of an open project: %s", err)
	}
	if change.Milestone.Status != models.MilestoneCancelled {
		t.Fatalf("Unexpected cancel result: %+v", change.Milestone)
	}
}

func TestMilestoneUpdateAndCancel(t *testing.T) {
	ctx := context.Background()
	repo := OpenTestRepo(t)
	defer repo.Close()

	users := InsertTestInitData(t, repo)
	project := awardedTestProject(t, repo, users)
	m := addTestMilestone(t, repo, project.Id)

	m.Title = "Design"
	m.Amount = decimal.NewFromInt(250)
	change, err := repo.UpdateMilestone(ctx, m)
	if err != nil {
		t.Fatalf("Could not update milestone: %s", err)
	}
	if change.Milestone.Title != "Design" || !change.Milestone.Amount.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("Update was not stored: %+v", change.Milestone)
	}

	change, err = repo.TransitionMilestone(ctx, m, models.MilestoneCancelled)
	if err != nil {
		t.Fatalf("Could not cancel milestone: %s", err)
	}
	if change.Milestone.Status != models.MilestoneCancelled || change.ProjectCompleted {
		t.Fatalf("Unexpected cancel result: %+v", change)
	}

	if _, err = repo.TransitionMilestone(ctx, m, models.MilestoneInProgress); !errors.Is(err, models.ErrMilestoneNotPending) {
		t.Fatalf("Expected ErrMilestoneNotPending, got %v", err)
	}

	milestones, err := repo.GetMilestones(ctx, project.Id)
	if err != nil {
		t.Fatal(err)
	}
	if len(milestones) != 1 {
		t.Fatalf("Expected 1 milestone, got %d", len(milestones))
	}

	if _, err = repo.GetMilestoneByUUID(ctx, "nope"); !errors.Is(err, models.ErrNoMilestone) {
		t.Fatalf("Expected ErrNoMilestone, got %v", err)
	}
}
