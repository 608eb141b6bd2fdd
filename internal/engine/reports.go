package engine

import (
	"context"
	"sort"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
	"github.com/Halamis85/lpa-web-v2/internal/engine/auth"
)

// Overview aggregates a campaign's allocation progress.
type Overview struct {
	Period     string `json:"period"`
	Total      int    `json:"total"`
	Pending    int    `json:"pending"`
	InProgress int    `json:"in_progress"`
	Done       int    `json:"done"`
	Overdue    int    `json:"overdue"`
}

// AllocationOverview counts assignment states for a campaign. An
// assignment is overdue when its deadline has passed and it is not
// done.
func (e Engine) AllocationOverview(ctx context.Context, campaignID int64, actor domain.User) (Overview, error) {
	if err := auth.RequireRole(actor, domain.RoleAdmin, domain.RoleAuditor, domain.RoleSolver); err != nil {
		return Overview{}, err
	}
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return Overview{}, err
	}
	rows, err := e.Repo.ListAssignmentsByCampaign(ctx, campaignID)
	if err != nil {
		return Overview{}, err
	}
	today := e.now().UTC().Format("2006-01-02")
	ov := Overview{Period: c.Period, Total: len(rows)}
	for _, a := range rows {
		switch a.Status {
		case domain.AssignmentPending:
			ov.Pending++
		case domain.AssignmentInProgress:
			ov.InProgress++
		case domain.AssignmentDone:
			ov.Done++
		}
		if a.Status != domain.AssignmentDone && a.Deadline < today {
			ov.Overdue++
		}
	}
	return ov, nil
}

// MatrixRow is one auditor's row in the allocation matrix: per line,
// the checklist category they were assigned.
type MatrixRow struct {
	AuditorID   int64             `json:"auditor_id"`
	AuditorName string            `json:"auditor_name"`
	Lines       map[string]string `json:"lines"`
}

// AllocationMatrix builds the auditor-by-line category matrix for a
// campaign.
func (e Engine) AllocationMatrix(ctx context.Context, campaignID int64, actor domain.User) ([]MatrixRow, error) {
	if err := auth.RequireRole(actor, domain.RoleAdmin, domain.RoleAuditor, domain.RoleSolver); err != nil {
		return nil, err
	}
	rows, err := e.Repo.ListAssignmentsByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	byAuditor := map[int64]*MatrixRow{}
	lineNames := map[int64]string{}
	catNames := map[int64]string{}
	for _, a := range rows {
		mr, ok := byAuditor[a.AuditorID]
		if !ok {
			u, err := e.Repo.GetUser(ctx, a.AuditorID)
			if err != nil {
				return nil, err
			}
			mr = &MatrixRow{AuditorID: a.AuditorID, AuditorName: u.Name, Lines: map[string]string{}}
			byAuditor[a.AuditorID] = mr
		}
		ln, ok := lineNames[a.LineID]
		if !ok {
			l, err := e.Repo.GetLine(ctx, a.LineID)
			if err != nil {
				return nil, err
			}
			ln = l.Name
			lineNames[a.LineID] = ln
		}
		cn, ok := catNames[a.CategoryID]
		if !ok {
			c, err := e.Repo.GetCategory(ctx, a.CategoryID)
			if err != nil {
				return nil, err
			}
			cn = c.Name
			catNames[a.CategoryID] = cn
		}
		mr.Lines[ln] = cn
	}
	out := make([]MatrixRow, 0, len(byAuditor))
	for _, mr := range byAuditor {
		out = append(out, *mr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuditorID < out[j].AuditorID })
	return out, nil
}

// ReportRow pairs a checklist question with the answer recorded in the
// reported execution, if any.
type ReportRow struct {
	Question domain.ChecklistQuestion `json:"question"`
	Answer   *domain.Answer           `json:"answer,omitempty"`
}

// Report is an assignment's checklist with the answers of its latest
// execution.
type Report struct {
	Assignment domain.Assignment `json:"assignment"`
	Execution  *domain.Execution `json:"execution,omitempty"`
	Rows       []ReportRow       `json:"rows"`
}

// AssignmentReport assembles the questions of the assignment's
// template and category together with the answers of the most recent
// execution. Visible to admins, solvers, and the owning auditor.
func (e Engine) AssignmentReport(ctx context.Context, assignmentID int64, actor domain.User) (Report, error) {
	a, err := e.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return Report{}, err
	}
	if !auth.IsAdmin(actor) && !actor.HasRole(domain.RoleSolver) && actor.ID != a.AuditorID {
		return Report{}, auth.ForbiddenError{Need: "assignment owner"}
	}
	questions, err := e.Repo.ListQuestions(ctx, a.TemplateID)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Assignment: a}
	answers := map[int64]domain.Answer{}
	execs, err := e.Repo.ListExecutionsByAssignment(ctx, assignmentID)
	if err != nil {
		return Report{}, err
	}
	if len(execs) > 0 {
		latest := execs[len(execs)-1]
		rep.Execution = &latest
		list, err := e.Repo.ListAnswers(ctx, latest.ID)
		if err != nil {
			return Report{}, err
		}
		for _, ans := range list {
			answers[ans.QuestionID] = ans
		}
	}
	for _, q := range questions {
		if q.CategoryID != a.CategoryID {
			continue
		}
		row := ReportRow{Question: q}
		if ans, ok := answers[q.ID]; ok {
			a := ans
			row.Answer = &a
		}
		rep.Rows = append(rep.Rows, row)
	}
	return rep, nil
}
