package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
	"github.com/Halamis85/lpa-web-v2/internal/engine/auth"
	"github.com/Halamis85/lpa-web-v2/internal/events"
)

func validDeadline(d string) error {
	if d == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", d); err != nil {
		return InvalidInputError{Field: "deadline", Detail: `must look like "2026-04-10"`}
	}
	return nil
}

// transitionIssue tries the conditional status flip from each allowed
// source state in turn. Exactly one concurrent caller can win; losers
// get InvalidState naming the issue's actual state.
func (e Engine) transitionIssue(ctx context.Context, tx *sql.Tx, id int64, from []string, to string, set map[string]any) error {
	for _, f := range from {
		moved, err := e.Repo.TransitionIssue(ctx, tx, id, f, to, set)
		if err != nil {
			return err
		}
		if moved {
			return nil
		}
	}
	current, err := e.Repo.GetIssueTx(ctx, tx, id)
	if err != nil {
		return err
	}
	return InvalidStateError{Entity: "issue", ID: id, Current: current.Status, Attempted: to}
}

func (e Engine) issueOp(ctx context.Context, id int64, from []string, to, evt string, set map[string]any, actor domain.User) (domain.Issue, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Issue{}, err
	}
	defer tx.Rollback()
	if err := e.transitionIssue(ctx, tx, id, from, to, set); err != nil {
		return domain.Issue{}, err
	}
	if err := e.Events.Append(ctx, tx, evt, "issue", id, actor.ID, events.EventPayload{"status": to}); err != nil {
		return domain.Issue{}, err
	}
	issue, err := e.Repo.GetIssueTx(ctx, tx, id)
	if err != nil {
		return domain.Issue{}, err
	}
	return issue, tx.Commit()
}

// AssignSolver hands an issue to a solver. Re-assigning while still in
// assigned overwrites the previous solver.
func (e Engine) AssignSolver(ctx context.Context, issueID, solverID int64, deadline, note string, actor domain.User) (domain.Issue, error) {
	if err := auth.RequireRole(actor, domain.RoleAuditor, domain.RoleAdmin); err != nil {
		return domain.Issue{}, err
	}
	if err := validDeadline(deadline); err != nil {
		return domain.Issue{}, err
	}
	solver, err := e.Repo.GetUser(ctx, solverID)
	if err != nil {
		return domain.Issue{}, err
	}
	if !solver.HasRole(domain.RoleSolver) {
		return domain.Issue{}, InvalidInputError{Field: "solver_id", Detail: "target user does not hold the solver role"}
	}
	if _, err := e.Repo.GetIssue(ctx, issueID); err != nil {
		return domain.Issue{}, err
	}
	set := map[string]any{
		"solver_id":   solverID,
		"assigned_at": e.now().UTC().Format(time.RFC3339),
	}
	if deadline != "" {
		set["deadline"] = deadline
	}
	if note != "" {
		set["note"] = note
	}
	return e.issueOp(ctx, issueID,
		[]string{domain.IssueOpen, domain.IssueAssigned}, domain.IssueAssigned, "issue.assigned", set, actor)
}

// TakeOver self-assigns the acting solver and starts work.
func (e Engine) TakeOver(ctx context.Context, issueID int64, actor domain.User) (domain.Issue, error) {
	if err := auth.RequireRole(actor, domain.RoleSolver, domain.RoleAdmin); err != nil {
		return domain.Issue{}, err
	}
	if _, err := e.Repo.GetIssue(ctx, issueID); err != nil {
		return domain.Issue{}, err
	}
	set := map[string]any{
		"solver_id":  actor.ID,
		"started_at": e.now().UTC().Format(time.RFC3339),
	}
	return e.issueOp(ctx, issueID,
		[]string{domain.IssueOpen, domain.IssueAssigned}, domain.IssueInProgress, "issue.taken_over", set, actor)
}

// SetKnownSolution records that a fix is identified but not yet in place.
func (e Engine) SetKnownSolution(ctx context.Context, issueID int64, note string, actor domain.User) (domain.Issue, error) {
	if err := auth.RequireRole(actor, domain.RoleSolver, domain.RoleAdmin); err != nil {
		return domain.Issue{}, err
	}
	if _, err := e.Repo.GetIssue(ctx, issueID); err != nil {
		return domain.Issue{}, err
	}
	set := map[string]any{}
	if note != "" {
		set["note"] = note
	}
	return e.issueOp(ctx, issueID,
		[]string{domain.IssueInProgress}, domain.IssueKnownSolution, "issue.known_solution", set, actor)
}

// Implement records that the known solution is now in place.
func (e Engine) Implement(ctx context.Context, issueID int64, note string, actor domain.User) (domain.Issue, error) {
	if err := auth.RequireRole(actor, domain.RoleSolver, domain.RoleAdmin); err != nil {
		return domain.Issue{}, err
	}
	if _, err := e.Repo.GetIssue(ctx, issueID); err != nil {
		return domain.Issue{}, err
	}
	set := map[string]any{}
	if note != "" {
		set["note"] = note
	}
	return e.issueOp(ctx, issueID,
		[]string{domain.IssueKnownSolution}, domain.IssueImplemented, "issue.implemented", set, actor)
}

// Resolve marks the issue fixed. Only the assigned solver or an admin
// may resolve.
func (e Engine) Resolve(ctx context.Context, issueID int64, note, deadline string, actor domain.User) (domain.Issue, error) {
	if err := validDeadline(deadline); err != nil {
		return domain.Issue{}, err
	}
	issue, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return domain.Issue{}, err
	}
	if !actor.HasRole(domain.RoleAdmin) {
		if issue.SolverID == nil || *issue.SolverID != actor.ID {
			return domain.Issue{}, auth.ForbiddenError{Need: "assigned solver or admin role"}
		}
	}
	set := map[string]any{
		"resolved_at": e.now().UTC().Format(time.RFC3339),
	}
	if note != "" {
		set["note"] = note
	}
	if deadline != "" {
		set["deadline"] = deadline
	}
	return e.issueOp(ctx, issueID,
		[]string{domain.IssueImplemented, domain.IssueInProgress, domain.IssueAssigned}, domain.IssueResolved, "issue.resolved", set, actor)
}

// Close is terminal. Solvers cannot close their own work; an auditor
// or admin signs off.
func (e Engine) Close(ctx context.Context, issueID int64, actor domain.User) (domain.Issue, error) {
	if err := auth.RequireRole(actor, domain.RoleAuditor, domain.RoleAdmin); err != nil {
		return domain.Issue{}, err
	}
	if _, err := e.Repo.GetIssue(ctx, issueID); err != nil {
		return domain.Issue{}, err
	}
	set := map[string]any{
		"closed_at": e.now().UTC().Format(time.RFC3339),
	}
	return e.issueOp(ctx, issueID,
		[]string{domain.IssueResolved}, domain.IssueClosed, "issue.closed", set, actor)
}

// UpdateIssueSeverity is the administrative severity edit; severity is
// otherwise fixed at creation.
func (e Engine) UpdateIssueSeverity(ctx context.Context, issueID int64, severity string, actor domain.User) (domain.Issue, error) {
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return domain.Issue{}, err
	}
	if !domain.ValidSeverity(severity) {
		return domain.Issue{}, InvalidInputError{Field: "severity", Detail: "must be low, medium or high"}
	}
	if _, err := e.Repo.GetIssue(ctx, issueID); err != nil {
		return domain.Issue{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Issue{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE issues SET severity=? WHERE id=?`, severity, issueID); err != nil {
		return domain.Issue{}, err
	}
	if err := e.Events.Append(ctx, tx, "issue.severity_changed", "issue", issueID, actor.ID,
		events.EventPayload{"severity": severity}); err != nil {
		return domain.Issue{}, err
	}
	issue, err := e.Repo.GetIssueTx(ctx, tx, issueID)
	if err != nil {
		return domain.Issue{}, err
	}
	return issue, tx.Commit()
}
