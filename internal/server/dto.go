package server

import (
	"context"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
	"github.com/Halamis85/lpa-web-v2/internal/engine"
)

type userDTO struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	IsActive bool     `json:"is_active"`
}

func toUserDTO(u domain.User) userDTO {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, string(r))
	}
	return userDTO{ID: u.ID, Name: u.Name, Email: u.Email, Roles: roles, IsActive: u.IsActive}
}

// apiKeyDTO carries the raw key exactly once, at creation time.
type apiKeyDTO struct {
	ID        string `json:"id"`
	UserID    int64  `json:"user_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key"`
	CreatedAt string `json:"created_at"`
}

type generateDTO struct {
	Assignments       []domain.Assignment `json:"assignments"`
	NotifiedCount     int                 `json:"notified_count"`
	NotifyFailedCount int                 `json:"notify_failed_count"`
}

func toGenerateDTO(res engine.GenerateResult) generateDTO {
	return generateDTO{
		Assignments:       res.Assignments,
		NotifiedCount:     res.NotifiedCount,
		NotifyFailedCount: res.NotifyFailedCount,
	}
}

// assignmentDTO is an assignment joined with the reference names an
// allocation overview needs.
type assignmentDTO struct {
	domain.Assignment
	LineName     string `json:"line_name"`
	CategoryName string `json:"category_name"`
	AuditorName  string `json:"auditor_name"`
}

func enrichAssignments(ctx context.Context, e engine.Engine, rows []domain.Assignment) ([]assignmentDTO, error) {
	lines := map[int64]string{}
	cats := map[int64]string{}
	users := map[int64]string{}
	out := make([]assignmentDTO, 0, len(rows))
	for _, a := range rows {
		if _, ok := lines[a.LineID]; !ok {
			l, err := e.Repo.GetLine(ctx, a.LineID)
			if err != nil {
				return nil, err
			}
			lines[a.LineID] = l.Name
		}
		if _, ok := cats[a.CategoryID]; !ok {
			c, err := e.Repo.GetCategory(ctx, a.CategoryID)
			if err != nil {
				return nil, err
			}
			cats[a.CategoryID] = c.Name
		}
		if _, ok := users[a.AuditorID]; !ok {
			u, err := e.Repo.GetUser(ctx, a.AuditorID)
			if err != nil {
				return nil, err
			}
			users[a.AuditorID] = u.Name
		}
		out = append(out, assignmentDTO{
			Assignment:   a,
			LineName:     lines[a.LineID],
			CategoryName: cats[a.CategoryID],
			AuditorName:  users[a.AuditorID],
		})
	}
	return out, nil
}

// issueDTO joins an issue with the line and category it was raised on
// and the picture attached to the offending answer, if any.
type issueDTO struct {
	domain.Issue
	LineName     string  `json:"line_name"`
	CategoryName string  `json:"category_name"`
	PictureRef   *string `json:"picture_ref,omitempty"`
}

func enrichIssues(ctx context.Context, e engine.Engine, issues []domain.Issue) ([]issueDTO, error) {
	assignments := map[int64]domain.Assignment{}
	lines := map[int64]string{}
	cats := map[int64]string{}
	out := make([]issueDTO, 0, len(issues))
	for _, i := range issues {
		ex, err := e.Repo.GetExecution(ctx, i.ExecutionID)
		if err != nil {
			return nil, err
		}
		a, ok := assignments[ex.AssignmentID]
		if !ok {
			a, err = e.Repo.GetAssignment(ctx, ex.AssignmentID)
			if err != nil {
				return nil, err
			}
			assignments[ex.AssignmentID] = a
		}
		if _, ok := lines[a.LineID]; !ok {
			l, err := e.Repo.GetLine(ctx, a.LineID)
			if err != nil {
				return nil, err
			}
			lines[a.LineID] = l.Name
		}
		if _, ok := cats[a.CategoryID]; !ok {
			c, err := e.Repo.GetCategory(ctx, a.CategoryID)
			if err != nil {
				return nil, err
			}
			cats[a.CategoryID] = c.Name
		}
		d := issueDTO{Issue: i, LineName: lines[a.LineID], CategoryName: cats[a.CategoryID]}
		if i.AnswerID != nil {
			if ans, err := e.Repo.GetAnswer(ctx, *i.AnswerID); err == nil {
				d.PictureRef = ans.PictureRef
			}
		}
		out = append(out, d)
	}
	return out, nil
}

type answerDTO struct {
	Answer        domain.Answer `json:"answer"`
	Issue         *domain.Issue `json:"issue,omitempty"`
	PictureFailed bool          `json:"picture_failed,omitempty"`
}

func toAnswerDTO(res engine.AnswerResult) answerDTO {
	return answerDTO{Answer: res.Answer, Issue: res.Issue, PictureFailed: res.PictureFailed}
}
