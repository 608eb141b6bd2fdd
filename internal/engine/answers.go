package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
	"github.com/Halamis85/lpa-web-v2/internal/engine/auth"
	"github.com/Halamis85/lpa-web-v2/internal/events"
	"github.com/Halamis85/lpa-web-v2/internal/repo"
)

// SubmitAnswerParams carries one checklist evaluation. PictureBytes is
// optional; when present the picture is stored externally and only the
// resulting reference lands in the answer row.
type SubmitAnswerParams struct {
	ExecutionID  int64
	QuestionID   int64
	Value        string
	HasIssue     bool
	Note         string
	PictureBytes []byte
	PictureName  string
}

// AnswerResult is the committed answer plus the issue it spawned, if
// any. PictureFailed flags a storage collaborator failure; the answer
// itself still committed.
type AnswerResult struct {
	Answer        domain.Answer
	Issue         *domain.Issue
	PictureFailed bool
}

// NormalizeAnswerValue maps user input to OK/NOK, case and whitespace
// insensitive.
func NormalizeAnswerValue(v string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case domain.AnswerOK:
		return domain.AnswerOK, nil
	case domain.AnswerNOK:
		return domain.AnswerNOK, nil
	}
	return "", InvalidInputError{Field: "value", Detail: fmt.Sprintf("%q is not OK or NOK", v)}
}

// SubmitAnswer upserts the answer for (execution, question). A NOK
// value opens an issue in the same transaction, unless the answer
// already has an open one.
func (e Engine) SubmitAnswer(ctx context.Context, p SubmitAnswerParams, actor domain.User) (AnswerResult, error) {
	value, err := NormalizeAnswerValue(p.Value)
	if err != nil {
		return AnswerResult{}, err
	}
	ex, err := e.Repo.GetExecution(ctx, p.ExecutionID)
	if err != nil {
		return AnswerResult{}, err
	}
	if err := auth.RequireSelfOrAdmin(actor, ex.AuditorID, "executing auditor or admin role"); err != nil {
		return AnswerResult{}, err
	}
	if _, err := e.Repo.GetQuestion(ctx, p.QuestionID); err != nil {
		return AnswerResult{}, err
	}

	// Store the picture before the transaction; a storage failure is
	// soft and must not block the answer write.
	var res AnswerResult
	var pictureRef *string
	if len(p.PictureBytes) > 0 {
		ref, err := e.Store.Store(ctx, e.pictureKey(ctx, p), p.PictureBytes)
		if err != nil {
			res.PictureFailed = true
		} else {
			pictureRef = &ref
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return AnswerResult{}, err
	}
	defer tx.Rollback()

	a := domain.Answer{
		ExecutionID: p.ExecutionID,
		QuestionID:  p.QuestionID,
		Value:       value,
		HasIssue:    p.HasIssue || value == domain.AnswerNOK,
		PictureRef:  pictureRef,
	}
	if pictureRef == nil {
		// Never clear a previously stored picture on resubmit.
		prev, err := e.Repo.GetAnswerByKeyTx(ctx, tx, p.ExecutionID, p.QuestionID)
		if err == nil && prev.PictureRef != nil {
			a.PictureRef = prev.PictureRef
		} else if err != nil && err != repo.ErrNotFound {
			return AnswerResult{}, err
		}
	}
	a, _, err = e.Repo.UpsertAnswer(ctx, tx, a)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("upsert answer: %w", err)
	}
	res.Answer = a

	if value == domain.AnswerNOK {
		issue, err := e.spawnIssue(ctx, tx, a, p.Note, actor)
		if err != nil {
			return AnswerResult{}, err
		}
		res.Issue = issue
	}
	if err := e.Events.Append(ctx, tx, "answer.submitted", "answer", a.ID, actor.ID,
		events.EventPayload{"execution_id": p.ExecutionID, "question_id": p.QuestionID, "value": value}); err != nil {
		return AnswerResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return AnswerResult{}, err
	}
	return res, nil
}

// spawnIssue opens a non-conformance for a failing answer. At most one
// open issue exists per answer: resubmitting NOK while the previous
// issue is still open refreshes its description instead of opening a
// duplicate, but once that issue has moved past open, a fresh failure
// opens a new one.
func (e Engine) spawnIssue(ctx context.Context, tx *sql.Tx, a domain.Answer, note string, actor domain.User) (*domain.Issue, error) {
	existing, err := e.Repo.OpenIssueForAnswer(ctx, tx, a.ID)
	if err == nil {
		if note != "" && note != existing.Description {
			if err := e.Repo.UpdateIssueDescription(ctx, tx, existing.ID, note); err != nil {
				return nil, err
			}
			existing.Description = note
		}
		return &existing, nil
	}
	if err != repo.ErrNotFound {
		return nil, err
	}
	description := note
	if description == "" {
		description = "non-conformance recorded during audit"
	}
	issue := domain.Issue{
		ExecutionID: a.ExecutionID,
		AnswerID:    &a.ID,
		Description: description,
		Severity:    domain.SeverityMedium,
		Status:      domain.IssueOpen,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	issue, err = e.Repo.InsertIssue(ctx, tx, issue)
	if err != nil {
		return nil, fmt.Errorf("insert issue: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "issue.opened", "issue", issue.ID, actor.ID,
		events.EventPayload{"execution_id": a.ExecutionID, "answer_id": a.ID}); err != nil {
		return nil, err
	}
	return &issue, nil
}

// Summary aggregates an execution's answers.
type Summary struct {
	Total     int      `json:"total"`
	OK        int      `json:"ok"`
	NOK       int      `json:"nok"`
	OKPercent float64  `json:"ok_percent"`
	NOKList   []NOKRef `json:"nok_list"`
}

// NOKRef points at one failing answer.
type NOKRef struct {
	QuestionID int64   `json:"question_id"`
	AnswerID   int64   `json:"answer_id"`
	PictureRef *string `json:"picture_ref,omitempty"`
}

// GetSummary reports answer counts for an execution. An execution with
// no answers yields zero percent, not a division error.
func (e Engine) GetSummary(ctx context.Context, executionID int64) (Summary, error) {
	if _, err := e.Repo.GetExecution(ctx, executionID); err != nil {
		return Summary{}, err
	}
	answers, err := e.Repo.ListAnswers(ctx, executionID)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Total: len(answers), NOKList: []NOKRef{}}
	for _, a := range answers {
		switch a.Value {
		case domain.AnswerOK:
			s.OK++
		case domain.AnswerNOK:
			s.NOK++
			s.NOKList = append(s.NOKList, NOKRef{QuestionID: a.QuestionID, AnswerID: a.ID, PictureRef: a.PictureRef})
		}
	}
	if s.Total > 0 {
		s.OKPercent = math.Round(float64(s.OK)/float64(s.Total)*1000) / 10
	}
	return s, nil
}

// pictureKey builds the deterministic storage key
// YYYYMMDD_<executionID>_<questionID>_<seq><ext>. The sequence bumps
// past any previously stored picture for the same answer.
func (e Engine) pictureKey(ctx context.Context, p SubmitAnswerParams) string {
	seq := 1
	if answers, err := e.Repo.ListAnswers(ctx, p.ExecutionID); err == nil {
		for _, a := range answers {
			if a.QuestionID == p.QuestionID && a.PictureRef != nil {
				seq = pictureSeq(*a.PictureRef) + 1
			}
		}
	}
	ext := strings.ToLower(filepath.Ext(p.PictureName))
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s_%d_%d_%d%s", e.now().UTC().Format("20060102"), p.ExecutionID, p.QuestionID, seq, ext)
}

func pictureSeq(ref string) int {
	base := strings.TrimSuffix(filepath.Base(ref), filepath.Ext(ref))
	parts := strings.Split(base, "_")
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0
	}
	return n
}
