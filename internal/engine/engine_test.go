package engine_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/Halamis85/lpa-web-v2/internal/config"
	"github.com/Halamis85/lpa-web-v2/internal/db"
	"github.com/Halamis85/lpa-web-v2/internal/domain"
	"github.com/Halamis85/lpa-web-v2/internal/engine"
	"github.com/Halamis85/lpa-web-v2/internal/engine/auth"
	"github.com/Halamis85/lpa-web-v2/internal/migrate"
	"github.com/Halamis85/lpa-web-v2/internal/notify"
	"github.com/Halamis85/lpa-web-v2/internal/plan"
)

// system is the synthetic actor used to bootstrap reference data.
var system = domain.User{ID: 0, Name: "system", Roles: []domain.Role{domain.RoleAdmin}}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) }
	eng.Rand = rand.New(rand.NewSource(1))
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) user(t *testing.T, name, email string, roles ...domain.Role) domain.User {
	t.Helper()
	u, err := env.Engine.CreateUser(env.Ctx, domain.User{Name: name, Email: email, Roles: roles}, system)
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func (env testEnv) line(t *testing.T, name string) domain.Line {
	t.Helper()
	l, err := env.Engine.CreateLine(env.Ctx, name, system)
	if err != nil {
		t.Fatalf("create line %s: %v", name, err)
	}
	tpl, err := env.Engine.CreateTemplate(env.Ctx, name+" checklist", l.ID, system)
	if err != nil {
		t.Fatalf("create template for %s: %v", name, err)
	}
	_ = tpl
	return l
}

func (env testEnv) category(t *testing.T, name string) domain.ChecklistCategory {
	t.Helper()
	c, err := env.Engine.CreateCategory(env.Ctx, name, system)
	if err != nil {
		t.Fatalf("create category %s: %v", name, err)
	}
	return c
}

func (env testEnv) campaign(t *testing.T, period string) domain.Campaign {
	t.Helper()
	c, err := env.Engine.CreateCampaign(env.Ctx, period, system)
	if err != nil {
		t.Fatalf("create campaign %s: %v", period, err)
	}
	return c
}

func TestGenerateAssignmentsRoundRobin(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.user(t, "U1", "u1@plant.example", domain.RoleAuditor)
	lineA := env.line(t, "A")
	lineB := env.line(t, "B")
	catQ := env.category(t, "Q")
	catR := env.category(t, "R")
	c := env.campaign(t, "2026-03")

	res, err := env.Engine.GenerateAssignments(env.Ctx, c.ID, nil, system)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Assignments) != 2 {
		t.Fatalf("want one assignment per line, got %d", len(res.Assignments))
	}
	a0, a1 := res.Assignments[0], res.Assignments[1]
	if a0.LineID != lineA.ID || a0.AuditorID != u1.ID || a0.CategoryID != catQ.ID {
		t.Errorf("first slot: %+v", a0)
	}
	if a1.LineID != lineB.ID || a1.AuditorID != u1.ID || a1.CategoryID != catR.ID {
		t.Errorf("second slot: %+v", a1)
	}
	if a0.Deadline != "2026-03-28" {
		t.Errorf("deadline %q, want fixed day 28", a0.Deadline)
	}
	got, err := env.Engine.Repo.GetCampaign(env.Ctx, c.ID)
	if err != nil || got.Status != domain.CampaignGenerated {
		t.Fatalf("campaign status %q (%v), want generated", got.Status, err)
	}
}

func TestGenerateAssignmentsNotIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "U1", "u1@plant.example", domain.RoleAuditor)
	env.line(t, "A")
	env.category(t, "Q")
	c := env.campaign(t, "2026-03")

	first, err := env.Engine.GenerateAssignments(env.Ctx, c.ID, nil, system)
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	_, err = env.Engine.GenerateAssignments(env.Ctx, c.ID, nil, system)
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second generate: want conflict, got %v", err)
	}
	after, err := env.Engine.Repo.ListAssignmentsByCampaign(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(first.Assignments) {
		t.Fatalf("assignment set changed after failed rerun: %d vs %d", len(after), len(first.Assignments))
	}
}

func TestGenerateAssignmentsMissingTemplate(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "U1", "u1@plant.example", domain.RoleAuditor)
	env.line(t, "A")
	// line without a template
	bare, err := env.Engine.CreateLine(env.Ctx, "B", system)
	if err != nil {
		t.Fatal(err)
	}
	env.category(t, "Q")
	c := env.campaign(t, "2026-03")

	_, err = env.Engine.GenerateAssignments(env.Ctx, c.ID, nil, system)
	var missing *plan.MissingTemplateError
	if !errors.As(err, &missing) {
		t.Fatalf("want MissingTemplateError, got %v", err)
	}
	if missing.LineID != bare.ID {
		t.Fatalf("error names line %d, want %d", missing.LineID, bare.ID)
	}
	// nothing committed
	rows, err := env.Engine.Repo.ListAssignmentsByCampaign(env.Ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("partial assignment set committed: %d rows", len(rows))
	}
}

func TestGenerateAssignmentsNotifies(t *testing.T) {
	env := newTestEnv(t)
	rec := &notify.Recorder{}
	env.Engine.Notify = rec
	env.user(t, "U1", "u1@plant.example", domain.RoleAuditor)
	env.line(t, "A")
	env.line(t, "B")
	env.category(t, "Q")
	c := env.campaign(t, "2026-03")

	res, err := env.Engine.GenerateAssignments(env.Ctx, c.ID, nil, system)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.NotifiedCount != 2 || res.NotifyFailedCount != 0 {
		t.Fatalf("notified=%d failed=%d", res.NotifiedCount, res.NotifyFailedCount)
	}
	if len(rec.Sent) != 2 {
		t.Fatalf("recorder saw %d notifications", len(rec.Sent))
	}
}

func TestGenerateAssignmentsNotifyFailureIsSoft(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Notify = &notify.Recorder{Fail: true}
	env.user(t, "U1", "u1@plant.example", domain.RoleAuditor)
	env.line(t, "A")
	env.category(t, "Q")
	c := env.campaign(t, "2026-03")

	res, err := env.Engine.GenerateAssignments(env.Ctx, c.ID, nil, system)
	if err != nil {
		t.Fatalf("delivery failure must not fail the run: %v", err)
	}
	if res.NotifyFailedCount != 1 || res.NotifiedCount != 0 {
		t.Fatalf("notified=%d failed=%d", res.NotifiedCount, res.NotifyFailedCount)
	}
	if len(res.Assignments) != 1 {
		t.Fatalf("assignments must still commit: %d", len(res.Assignments))
	}
}

func setupAssignment(t *testing.T, env testEnv) (domain.User, domain.Assignment) {
	t.Helper()
	auditor := env.user(t, "U1", "u1@plant.example", domain.RoleAuditor)
	env.line(t, "A")
	env.category(t, "Q")
	c := env.campaign(t, "2026-03")
	res, err := env.Engine.GenerateAssignments(env.Ctx, c.ID, nil, system)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return auditor, res.Assignments[0]
}

func TestExecutionRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	auditor, a := setupAssignment(t, env)

	ex, err := env.Engine.StartExecution(env.Ctx, a.ID, auditor)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	mid, err := env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	if err != nil || mid.Status != domain.AssignmentInProgress {
		t.Fatalf("assignment after start: %q (%v)", mid.Status, err)
	}

	if err := env.Engine.FinishExecution(env.Ctx, ex.ID, auditor); err != nil {
		t.Fatalf("finish: %v", err)
	}
	done, err := env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	if err != nil || done.Status != domain.AssignmentDone {
		t.Fatalf("assignment after finish: %q (%v)", done.Status, err)
	}
	if done.CompletionDate == nil || *done.CompletionDate != "2026-03-15" {
		t.Fatalf("completion date: %v", done.CompletionDate)
	}
	exDone, err := env.Engine.Repo.GetExecution(env.Ctx, ex.ID)
	if err != nil || exDone.Status != domain.ExecutionDone {
		t.Fatalf("execution after finish: %q (%v)", exDone.Status, err)
	}
	if exDone.FinishedAt == nil || *exDone.FinishedAt < exDone.StartedAt {
		t.Fatalf("finishedAt %v < startedAt %s", exDone.FinishedAt, exDone.StartedAt)
	}
}

func TestStartNonPendingFailsForEveryone(t *testing.T) {
	env := newTestEnv(t)
	auditor, a := setupAssignment(t, env)
	if _, err := env.Engine.StartExecution(env.Ctx, a.ID, auditor); err != nil {
		t.Fatalf("first start: %v", err)
	}

	var invalid engine.InvalidStateError
	if _, err := env.Engine.StartExecution(env.Ctx, a.ID, auditor); !errors.As(err, &invalid) {
		t.Fatalf("auditor restart: want InvalidState, got %v", err)
	}
	// admins get no bypass on this guard
	if _, err := env.Engine.StartExecution(env.Ctx, a.ID, system); !errors.As(err, &invalid) {
		t.Fatalf("admin restart: want InvalidState, got %v", err)
	}
}

func TestConcurrentStartsSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	auditor, a := setupAssignment(t, env)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.StartExecution(env.Ctx, a.ID, auditor)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		var invalid engine.InvalidStateError
		if !errors.As(err, &invalid) {
			t.Fatalf("loser must see InvalidState, got %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("%d of 2 concurrent starts succeeded, want exactly 1", won)
	}
	execs, err := env.Engine.Repo.ListExecutionsByAssignment(env.Ctx, a.ID)
	if err != nil || len(execs) != 1 {
		t.Fatalf("executions after race: %d (%v), want 1", len(execs), err)
	}
}

func TestStartByOtherAuditorForbidden(t *testing.T) {
	env := newTestEnv(t)
	_, a := setupAssignment(t, env)
	other := env.user(t, "U2", "u2@plant.example", domain.RoleAuditor)

	var forbidden auth.ForbiddenError
	if _, err := env.Engine.StartExecution(env.Ctx, a.ID, other); !errors.As(err, &forbidden) {
		t.Fatalf("want Forbidden, got %v", err)
	}
}

func startedExecution(t *testing.T, env testEnv) (domain.User, domain.Execution, domain.ChecklistQuestion) {
	t.Helper()
	auditor, a := setupAssignment(t, env)
	tpl, err := env.Engine.Repo.GetTemplate(env.Ctx, a.TemplateID)
	if err != nil {
		t.Fatal(err)
	}
	q, err := env.Engine.AddQuestion(env.Ctx, domain.ChecklistQuestion{
		TemplateID: tpl.ID, CategoryID: a.CategoryID, Text: "Is the guard mounted?", Position: 1,
	}, system)
	if err != nil {
		t.Fatalf("add question: %v", err)
	}
	ex, err := env.Engine.StartExecution(env.Ctx, a.ID, auditor)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return auditor, ex, q
}

func TestSubmitAnswerLowercaseNokSpawnsIssue(t *testing.T) {
	env := newTestEnv(t)
	auditor, ex, q := startedExecution(t, env)

	res, err := env.Engine.SubmitAnswer(env.Ctx, engine.SubmitAnswerParams{
		ExecutionID: ex.ID, QuestionID: q.ID, Value: " nok ", Note: "broken guard",
	}, auditor)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Answer.Value != domain.AnswerNOK {
		t.Fatalf("value %q, want NOK", res.Answer.Value)
	}
	if res.Issue == nil {
		t.Fatal("NOK answer must spawn an issue")
	}
	if res.Issue.Status != domain.IssueOpen || res.Issue.Severity != domain.SeverityMedium || res.Issue.Description != "broken guard" {
		t.Fatalf("issue: %+v", res.Issue)
	}
}

func TestResubmitNOKKeepsSingleOpenIssue(t *testing.T) {
	env := newTestEnv(t)
	auditor, ex, q := startedExecution(t, env)

	first, err := env.Engine.SubmitAnswer(env.Ctx, engine.SubmitAnswerParams{
		ExecutionID: ex.ID, QuestionID: q.ID, Value: "NOK", Note: "broken guard",
	}, auditor)
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.SubmitAnswer(env.Ctx, engine.SubmitAnswerParams{
		ExecutionID: ex.ID, QuestionID: q.ID, Value: "NOK", Note: "still broken",
	}, auditor)
	if err != nil {
		t.Fatal(err)
	}
	if second.Issue == nil || second.Issue.ID != first.Issue.ID {
		t.Fatalf("resubmit opened a second issue: %+v vs %+v", first.Issue, second.Issue)
	}
	if second.Issue.Description != "still broken" {
		t.Fatalf("description %q, want it refreshed by the resubmit", second.Issue.Description)
	}
	stored, err := env.Engine.Repo.GetIssue(env.Ctx, first.Issue.ID)
	if err != nil || stored.Description != "still broken" {
		t.Fatalf("stored description %q (%v), want refreshed", stored.Description, err)
	}
	issues, err := env.Engine.Repo.ListIssuesByExecution(env.Ctx, ex.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 1 {
		t.Fatalf("want exactly one issue, got %d", len(issues))
	}
}

func TestResubmitNOKWithoutNoteKeepsDescription(t *testing.T) {
	env := newTestEnv(t)
	auditor, ex, q := startedExecution(t, env)

	if _, err := env.Engine.SubmitAnswer(env.Ctx, engine.SubmitAnswerParams{
		ExecutionID: ex.ID, QuestionID: q.ID, Value: "NOK", Note: "broken guard",
	}, auditor); err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.SubmitAnswer(env.Ctx, engine.SubmitAnswerParams{
		ExecutionID: ex.ID, QuestionID: q.ID, Value: "NOK",
	}, auditor)
	if err != nil {
		t.Fatal(err)
	}
	if second.Issue.Description != "broken guard" {
		t.Fatalf("a bare resubmit must not clear the description, got %q", second.Issue.Description)
	}
}

func TestNOKAfterIssueLeavesOpenSpawnsFresh(t *testing.T) {
	env := newTestEnv(t)
	auditor, ex, q := startedExecution(t, env)
	solver := env.user(t, "S1", "s1@plant.example", domain.RoleSolver)

	first, err := env.Engine.SubmitAnswer(env.Ctx, engine.SubmitAnswerParams{
		ExecutionID: ex.ID, QuestionID: q.ID, Value: "NOK",
	}, auditor)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AssignSolver(env.Ctx, first.Issue.ID, solver.ID, "", "", auditor); err != nil {
		t.Fatalf("assign: %v", err)
	}
	second, err := env.Engine.SubmitAnswer(env.Ctx, engine.SubmitAnswerParams{
		ExecutionID: ex.ID, QuestionID: q.ID, Value: "NOK",
	}, auditor)
	if err != nil {
		t.Fatal(err)
	}
	if second.Issue == nil || second.Issue.ID == first.Issue.ID {
		t.Fatalf("a failure after the previous issue moved on must open a new one")
	}
}

func TestSubmitAnswerBadValue(t *testing.T) {
	env := newTestEnv(t)
	auditor, ex, q := startedExecution(t, env)
	_, err := env.Engine.SubmitAnswer(env.Ctx, engine.SubmitAnswerParams{
		ExecutionID: ex.ID, QuestionID: q.ID, Value: "maybe",
	}, auditor)
	var invalid engine.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Fatalf("want InvalidInput, got %v", err)
	}
}

func TestSummaryEmpty(t *testing.T) {
	env := newTestEnv(t)
	_, ex, _ := startedExecution(t, env)
	s, err := env.Engine.GetSummary(env.Ctx, ex.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 0 || s.OK != 0 || s.NOK != 0 || s.OKPercent != 0 || len(s.NOKList) != 0 {
		t.Fatalf("empty summary: %+v", s)
	}
}

func TestSummaryRoundsPercent(t *testing.T) {
	env := newTestEnv(t)
	auditor, ex, q1 := startedExecution(t, env)
	q2, err := env.Engine.AddQuestion(env.Ctx, domain.ChecklistQuestion{
		TemplateID: q1.TemplateID, CategoryID: q1.CategoryID, Text: "Torque wrench calibrated?", Position: 2,
	}, system)
	if err != nil {
		t.Fatal(err)
	}
	q3, err := env.Engine.AddQuestion(env.Ctx, domain.ChecklistQuestion{
		TemplateID: q1.TemplateID, CategoryID: q1.CategoryID, Text: "Work area clean?", Position: 3,
	}, system)
	if err != nil {
		t.Fatal(err)
	}
	for _, sub := range []struct {
		q int64
		v string
	}{{q1.ID, "OK"}, {q2.ID, "OK"}, {q3.ID, "NOK"}} {
		if _, err := env.Engine.SubmitAnswer(env.Ctx, engine.SubmitAnswerParams{
			ExecutionID: ex.ID, QuestionID: sub.q, Value: sub.v,
		}, auditor); err != nil {
			t.Fatal(err)
		}
	}
	s, err := env.Engine.GetSummary(env.Ctx, ex.ID)
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 3 || s.OK != 2 || s.NOK != 1 {
		t.Fatalf("counts: %+v", s)
	}
	if s.OKPercent != 66.7 {
		t.Fatalf("okPercent %.2f, want 66.7", s.OKPercent)
	}
	if len(s.NOKList) != 1 || s.NOKList[0].QuestionID != q3.ID {
		t.Fatalf("nok list: %+v", s.NOKList)
	}
}

func TestIssueLifecycle(t *testing.T) {
	env := newTestEnv(t)
	auditor, ex, q := startedExecution(t, env)
	solver := env.user(t, "S1", "s1@plant.example", domain.RoleSolver)

	res, err := env.Engine.SubmitAnswer(env.Ctx, engine.SubmitAnswerParams{
		ExecutionID: ex.ID, QuestionID: q.ID, Value: "NOK", Note: "broken guard",
	}, auditor)
	if err != nil {
		t.Fatal(err)
	}
	issueID := res.Issue.ID

	// from open, resolve and close are illegal
	var invalid engine.InvalidStateError
	if _, err := env.Engine.Resolve(env.Ctx, issueID, "", "", system); !errors.As(err, &invalid) {
		t.Fatalf("resolve from open: want InvalidState, got %v", err)
	}
	if _, err := env.Engine.Close(env.Ctx, issueID, auditor); !errors.As(err, &invalid) {
		t.Fatalf("close from open: want InvalidState, got %v", err)
	}

	issue, err := env.Engine.AssignSolver(env.Ctx, issueID, solver.ID, "2026-04-10", "", auditor)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if issue.Status != domain.IssueAssigned || issue.SolverID == nil || *issue.SolverID != solver.ID {
		t.Fatalf("after assign: %+v", issue)
	}
	if issue.Deadline == nil || *issue.Deadline != "2026-04-10" {
		t.Fatalf("deadline: %v", issue.Deadline)
	}

	issue, err = env.Engine.Resolve(env.Ctx, issueID, "replaced guard", "", solver)
	if err != nil {
		t.Fatalf("resolve by assigned solver: %v", err)
	}
	if issue.Status != domain.IssueResolved || issue.ResolvedAt == nil {
		t.Fatalf("after resolve: %+v", issue)
	}

	// solvers cannot close
	var forbidden auth.ForbiddenError
	if _, err := env.Engine.Close(env.Ctx, issueID, solver); !errors.As(err, &forbidden) {
		t.Fatalf("close by solver: want Forbidden, got %v", err)
	}
	issue, err = env.Engine.Close(env.Ctx, issueID, auditor)
	if err != nil {
		t.Fatalf("close by auditor: %v", err)
	}
	if issue.Status != domain.IssueClosed || issue.ClosedAt == nil {
		t.Fatalf("after close: %+v", issue)
	}
	// closed is terminal
	if _, err := env.Engine.TakeOver(env.Ctx, issueID, solver); !errors.As(err, &invalid) {
		t.Fatalf("take over closed issue: want InvalidState, got %v", err)
	}
}

func TestIssueFullSolutionPath(t *testing.T) {
	env := newTestEnv(t)
	auditor, ex, q := startedExecution(t, env)
	solver := env.user(t, "S1", "s1@plant.example", domain.RoleSolver)

	res, err := env.Engine.SubmitAnswer(env.Ctx, engine.SubmitAnswerParams{
		ExecutionID: ex.ID, QuestionID: q.ID, Value: "NOK",
	}, auditor)
	if err != nil {
		t.Fatal(err)
	}
	id := res.Issue.ID

	issue, err := env.Engine.TakeOver(env.Ctx, id, solver)
	if err != nil || issue.Status != domain.IssueInProgress {
		t.Fatalf("take over: %q (%v)", issue.Status, err)
	}
	if issue.SolverID == nil || *issue.SolverID != solver.ID || issue.StartedAt == nil {
		t.Fatalf("take over must self-assign: %+v", issue)
	}
	issue, err = env.Engine.SetKnownSolution(env.Ctx, id, "order new guard", solver)
	if err != nil || issue.Status != domain.IssueKnownSolution {
		t.Fatalf("known solution: %q (%v)", issue.Status, err)
	}
	issue, err = env.Engine.Implement(env.Ctx, id, "guard installed", solver)
	if err != nil || issue.Status != domain.IssueImplemented {
		t.Fatalf("implement: %q (%v)", issue.Status, err)
	}
	issue, err = env.Engine.Resolve(env.Ctx, id, "", "", solver)
	if err != nil || issue.Status != domain.IssueResolved {
		t.Fatalf("resolve: %q (%v)", issue.Status, err)
	}
}

func TestResolveByUnassignedSolverForbidden(t *testing.T) {
	env := newTestEnv(t)
	auditor, ex, q := startedExecution(t, env)
	s1 := env.user(t, "S1", "s1@plant.example", domain.RoleSolver)
	s2 := env.user(t, "S2", "s2@plant.example", domain.RoleSolver)

	res, err := env.Engine.SubmitAnswer(env.Ctx, engine.SubmitAnswerParams{
		ExecutionID: ex.ID, QuestionID: q.ID, Value: "NOK",
	}, auditor)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AssignSolver(env.Ctx, res.Issue.ID, s1.ID, "", "", auditor); err != nil {
		t.Fatal(err)
	}
	var forbidden auth.ForbiddenError
	if _, err := env.Engine.Resolve(env.Ctx, res.Issue.ID, "", "", s2); !errors.As(err, &forbidden) {
		t.Fatalf("want Forbidden for unassigned solver, got %v", err)
	}
}

func TestCampaignDuplicatePeriodConflict(t *testing.T) {
	env := newTestEnv(t)
	env.campaign(t, "2026-03")
	_, err := env.Engine.CreateCampaign(env.Ctx, "2026-03", system)
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("want Conflict, got %v", err)
	}
}

func TestQuestionDuplicatePositionConflict(t *testing.T) {
	env := newTestEnv(t)
	l := env.line(t, "A")
	cat := env.category(t, "Q")
	tpl, err := env.Engine.Repo.TemplateForLine(env.Ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddQuestion(env.Ctx, domain.ChecklistQuestion{
		TemplateID: tpl.ID, CategoryID: cat.ID, Text: "first", Position: 1,
	}, system); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.AddQuestion(env.Ctx, domain.ChecklistQuestion{
		TemplateID: tpl.ID, CategoryID: cat.ID, Text: "second", Position: 1,
	}, system)
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("want Conflict on duplicate position, got %v", err)
	}
}

func TestOverrideAssignmentBackToPending(t *testing.T) {
	env := newTestEnv(t)
	auditor, a := setupAssignment(t, env)
	ex, err := env.Engine.StartExecution(env.Ctx, a.ID, auditor)
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.FinishExecution(env.Ctx, ex.ID, auditor); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.OverrideAssignmentStatus(env.Ctx, a.ID, domain.AssignmentPending, system); err != nil {
		t.Fatalf("override: %v", err)
	}
	got, err := env.Engine.Repo.GetAssignment(env.Ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.AssignmentPending || got.CompletionDate != nil {
		t.Fatalf("override must reset status and clear completion date: %+v", got)
	}
	// non-admins cannot override
	var forbidden auth.ForbiddenError
	if err := env.Engine.OverrideAssignmentStatus(env.Ctx, a.ID, domain.AssignmentDone, auditor); !errors.As(err, &forbidden) {
		t.Fatalf("want Forbidden, got %v", err)
	}
}

func TestVisibleAssignmentsUnfilteredForAdmins(t *testing.T) {
	env := newTestEnv(t)
	auditor, a := setupAssignment(t, env)
	solver := env.user(t, "S1", "s1@plant.example", domain.RoleSolver)

	// Admins and solvers were never allocated anything themselves, but
	// an unfiltered listing must still show them the whole board.
	for _, viewer := range []domain.User{system, solver} {
		rows, err := env.Engine.VisibleAssignments(env.Ctx, 0, "", viewer)
		if err != nil {
			t.Fatalf("list as %s: %v", viewer.Name, err)
		}
		if len(rows) != 1 || rows[0].ID != a.ID {
			t.Fatalf("list as %s: %+v, want the auditor's assignment", viewer.Name, rows)
		}
	}
	rows, err := env.Engine.VisibleAssignments(env.Ctx, 0, "", auditor)
	if err != nil || len(rows) != 1 {
		t.Fatalf("auditor still sees own work: %+v (%v)", rows, err)
	}
}

func TestGenerateCurrentUsesRandomWindow(t *testing.T) {
	env := newTestEnv(t)
	env.user(t, "U1", "u1@plant.example", domain.RoleAuditor)
	env.line(t, "A")
	env.category(t, "Q")

	c, res, err := env.Engine.GenerateCurrent(env.Ctx, system)
	if err != nil {
		t.Fatalf("generate current: %v", err)
	}
	if c.Period != "2026-03" {
		t.Fatalf("period %q", c.Period)
	}
	d, err := time.Parse("2006-01-02", res.Assignments[0].Deadline)
	if err != nil {
		t.Fatal(err)
	}
	today := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	days := int(d.Sub(today).Hours() / 24)
	if days < 7 || days > 20 {
		t.Fatalf("deadline %s is %d days out, want [7,20]", res.Assignments[0].Deadline, days)
	}
}
