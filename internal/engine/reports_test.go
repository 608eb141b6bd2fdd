package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
	"github.com/Halamis85/lpa-web-v2/internal/engine"
)

func TestCampaignBareMonthPeriod(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateCampaign(env.Ctx, "4", system)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Period != "2026-04" {
		t.Fatalf("period %q, want 2026-04", c.Period)
	}

	var invalid engine.InvalidInputError
	if _, err := env.Engine.CreateCampaign(env.Ctx, "13", system); !errors.As(err, &invalid) {
		t.Fatalf("month 13: want InvalidInput, got %v", err)
	}
}

func TestGenerateCurrentIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "U1", "u1@plant.example", domain.RoleAuditor)
	env.line(t, "A")
	env.category(t, "Q")

	c1, first, err := env.Engine.GenerateCurrent(env.Ctx, system)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first.Assignments) != 1 {
		t.Fatalf("first run created %d assignments", len(first.Assignments))
	}

	c2, second, err := env.Engine.GenerateCurrent(env.Ctx, system)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if c2.ID != c1.ID {
		t.Fatalf("second run campaign %d, want %d", c2.ID, c1.ID)
	}
	if len(second.Assignments) != 1 || second.Assignments[0].ID != first.Assignments[0].ID {
		t.Fatalf("second run must report the existing allocation: %+v", second.Assignments)
	}
	if second.NotifiedCount != 0 {
		t.Fatalf("second run must not notify, got %d", second.NotifiedCount)
	}
}

func TestAllocationOverviewCountsOverdue(t *testing.T) {
	env := newTestEnv(t)
	auditor, a := setupAssignment(t, env)
	c, err := env.Engine.Repo.GetCampaign(env.Ctx, a.CampaignID)
	if err != nil {
		t.Fatal(err)
	}

	ov, err := env.Engine.AllocationOverview(env.Ctx, c.ID, auditor)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.Total != 1 || ov.Pending != 1 || ov.Overdue != 0 {
		t.Fatalf("fresh overview: %+v", ov)
	}

	// Move past the fixed deadline (2026-03-28) without finishing.
	env.Engine.Now = func() time.Time { return time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC) }
	ov, err = env.Engine.AllocationOverview(env.Ctx, c.ID, auditor)
	if err != nil {
		t.Fatalf("overview after deadline: %v", err)
	}
	if ov.Overdue != 1 {
		t.Fatalf("want 1 overdue, got %+v", ov)
	}
}

func TestAllocationMatrix(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.user(t, "U1", "u1@plant.example", domain.RoleAuditor)
	u2 := env.user(t, "U2", "u2@plant.example", domain.RoleAuditor)
	env.line(t, "A")
	env.line(t, "B")
	env.category(t, "Q")
	c := env.campaign(t, "2026-03")
	if _, err := env.Engine.GenerateAssignments(env.Ctx, c.ID, nil, system); err != nil {
		t.Fatalf("generate: %v", err)
	}

	rows, err := env.Engine.AllocationMatrix(env.Ctx, c.ID, u1)
	if err != nil {
		t.Fatalf("matrix: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("want 2 auditors, got %d", len(rows))
	}
	if rows[0].AuditorID != u1.ID || rows[1].AuditorID != u2.ID {
		t.Fatalf("row order: %+v", rows)
	}
	if rows[0].Lines["A"] != "Q" || rows[1].Lines["B"] != "Q" {
		t.Fatalf("cells: %+v %+v", rows[0].Lines, rows[1].Lines)
	}
}

func TestAssignmentReport(t *testing.T) {
	env := newTestEnv(t)
	auditor, ex, q := startedExecution(t, env)
	if _, err := env.Engine.SubmitAnswer(env.Ctx, engine.SubmitAnswerParams{
		ExecutionID: ex.ID, QuestionID: q.ID, Value: "OK",
	}, auditor); err != nil {
		t.Fatalf("submit: %v", err)
	}

	rep, err := env.Engine.AssignmentReport(env.Ctx, ex.AssignmentID, auditor)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if rep.Execution == nil || rep.Execution.ID != ex.ID {
		t.Fatalf("execution: %+v", rep.Execution)
	}
	if len(rep.Rows) != 1 {
		t.Fatalf("want 1 row, got %d", len(rep.Rows))
	}
	if rep.Rows[0].Question.ID != q.ID || rep.Rows[0].Answer == nil || rep.Rows[0].Answer.Value != domain.AnswerOK {
		t.Fatalf("row: %+v", rep.Rows[0])
	}
}

func TestAssignmentReportVisibility(t *testing.T) {
	env := newTestEnv(t)
	_, a := setupAssignment(t, env)
	other := env.user(t, "U2", "u2@plant.example", domain.RoleAuditor)

	if _, err := env.Engine.AssignmentReport(env.Ctx, a.ID, other); err == nil {
		t.Fatal("unrelated auditor must not see the report")
	}
	rep, err := env.Engine.AssignmentReport(env.Ctx, a.ID, system)
	if err != nil {
		t.Fatalf("admin report: %v", err)
	}
	if rep.Execution != nil || len(rep.Rows) != 0 {
		t.Fatalf("unstarted assignment: %+v", rep)
	}
}
