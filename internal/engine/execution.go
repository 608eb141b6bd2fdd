package engine

import (
	"context"
	"time"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
	"github.com/Halamis85/lpa-web-v2/internal/engine/auth"
	"github.com/Halamis85/lpa-web-v2/internal/events"
)

// StartExecution begins an audit for a pending assignment. The status
// flip uses a conditional update, so of two concurrent starts exactly
// one wins and the other sees InvalidState.
func (e Engine) StartExecution(ctx context.Context, assignmentID int64, actor domain.User) (domain.Execution, error) {
	a, err := e.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return domain.Execution{}, err
	}
	if err := auth.RequireSelfOrAdmin(actor, a.AuditorID, "assigned auditor or admin role"); err != nil {
		return domain.Execution{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Execution{}, err
	}
	defer tx.Rollback()
	moved, err := e.Repo.MarkAssignmentInProgress(ctx, tx, assignmentID)
	if err != nil {
		return domain.Execution{}, err
	}
	if !moved {
		current, err := e.Repo.GetAssignmentTx(ctx, tx, assignmentID)
		if err != nil {
			return domain.Execution{}, err
		}
		return domain.Execution{}, InvalidStateError{Entity: "assignment", ID: assignmentID, Current: current.Status, Attempted: "start"}
	}
	ex := domain.Execution{
		AssignmentID: assignmentID,
		AuditorID:    actor.ID,
		StartedAt:    e.now().UTC().Format(time.RFC3339),
		Status:       domain.ExecutionInProgress,
	}
	ex, err = e.Repo.InsertExecution(ctx, tx, ex)
	if err != nil {
		return domain.Execution{}, err
	}
	if err := e.Events.Append(ctx, tx, "execution.started", "execution", ex.ID, actor.ID,
		events.EventPayload{"assignment_id": assignmentID}); err != nil {
		return domain.Execution{}, err
	}
	return ex, tx.Commit()
}

// FinishExecution completes an execution and cascades the assignment to
// done with a stamped completion date, all in one transaction.
func (e Engine) FinishExecution(ctx context.Context, executionID int64, actor domain.User) error {
	ex, err := e.Repo.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if err := auth.RequireSelfOrAdmin(actor, ex.AuditorID, "executing auditor or admin role"); err != nil {
		return err
	}

	okCount, nokCount, err := e.Repo.AnswerCounts(ctx, executionID)
	if err != nil {
		return err
	}

	now := e.now().UTC()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	moved, err := e.Repo.MarkExecutionDone(ctx, tx, executionID, now.Format(time.RFC3339))
	if err != nil {
		return err
	}
	if !moved {
		current, err := e.Repo.GetExecutionTx(ctx, tx, executionID)
		if err != nil {
			return err
		}
		return InvalidStateError{Entity: "execution", ID: executionID, Current: current.Status, Attempted: "finish"}
	}
	if _, err := e.Repo.MarkAssignmentDone(ctx, tx, ex.AssignmentID, now.Format("2006-01-02")); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "execution.finished", "execution", executionID, actor.ID,
		events.EventPayload{"assignment_id": ex.AssignmentID, "ok": okCount, "nok": nokCount}); err != nil {
		return err
	}
	return tx.Commit()
}

// OverrideAssignmentStatus is the admin escape hatch. Forcing an
// assignment back to pending clears its completion date.
func (e Engine) OverrideAssignmentStatus(ctx context.Context, assignmentID int64, status string, actor domain.User) error {
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return err
	}
	switch status {
	case domain.AssignmentPending, domain.AssignmentInProgress, domain.AssignmentDone:
	default:
		return InvalidInputError{Field: "status", Detail: "must be pending, in_progress or done"}
	}
	a, err := e.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	completion := a.CompletionDate
	if status != domain.AssignmentDone {
		completion = nil
	} else if completion == nil {
		d := e.now().UTC().Format("2006-01-02")
		completion = &d
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetAssignmentStatus(ctx, tx, assignmentID, status, completion); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "assignment.overridden", "assignment", assignmentID, actor.ID,
		events.EventPayload{"from": a.Status, "to": status}); err != nil {
		return err
	}
	return tx.Commit()
}

// VisibleAssignments applies the read-side rule that auditors only see
// their own work. Admins and solvers see everything.
func (e Engine) VisibleAssignments(ctx context.Context, campaignID int64, status string, actor domain.User) ([]domain.Assignment, error) {
	if !auth.IsAdmin(actor) && !actor.HasRole(domain.RoleSolver) {
		return e.Repo.ListAssignmentsByAuditor(ctx, actor.ID, status)
	}
	if campaignID != 0 {
		return e.Repo.ListAssignmentsByCampaign(ctx, campaignID)
	}
	return e.Repo.ListAssignments(ctx, status)
}
