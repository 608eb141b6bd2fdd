package repo

import (
	"context"
	"database/sql"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
)

func (r Repo) InsertExecution(ctx context.Context, tx *sql.Tx, e domain.Execution) (domain.Execution, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO executions(assignment_id,auditor_id,started_at,finished_at,status) VALUES (?,?,?,?,?)`,
		e.AssignmentID, e.AuditorID, e.StartedAt, nullableStringPtr(e.FinishedAt), e.Status)
	if err != nil {
		return e, err
	}
	e.ID, err = res.LastInsertId()
	return e, err
}

func scanExecution(sc interface{ Scan(...any) error }) (domain.Execution, error) {
	var e domain.Execution
	var finished sql.NullString
	err := sc.Scan(&e.ID, &e.AssignmentID, &e.AuditorID, &e.StartedAt, &finished, &e.Status)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if finished.Valid {
		e.FinishedAt = &finished.String
	}
	return e, err
}

func (r Repo) GetExecution(ctx context.Context, id int64) (domain.Execution, error) {
	return scanExecution(r.DB.QueryRowContext(ctx, `SELECT id,assignment_id,auditor_id,started_at,finished_at,status FROM executions WHERE id=?`, id))
}

func (r Repo) GetExecutionTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Execution, error) {
	return scanExecution(tx.QueryRowContext(ctx, `SELECT id,assignment_id,auditor_id,started_at,finished_at,status FROM executions WHERE id=?`, id))
}

func (r Repo) ListExecutionsByAssignment(ctx context.Context, assignmentID int64) ([]domain.Execution, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,assignment_id,auditor_id,started_at,finished_at,status FROM executions
WHERE assignment_id=? ORDER BY id ASC`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) MarkExecutionDone(ctx context.Context, tx *sql.Tx, id int64, finishedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE executions SET status=?,finished_at=? WHERE id=? AND status=?`,
		domain.ExecutionDone, finishedAt, id, domain.ExecutionInProgress)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- answers ---

// UpsertAnswer inserts or replaces the answer for (execution, question).
// Returns the stored row and whether it replaced a previous one.
func (r Repo) UpsertAnswer(ctx context.Context, tx *sql.Tx, a domain.Answer) (domain.Answer, bool, error) {
	var existingID int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM answers WHERE execution_id=? AND question_id=?`,
		a.ExecutionID, a.QuestionID).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, `INSERT INTO answers(execution_id,question_id,value,has_issue,picture_ref) VALUES (?,?,?,?,?)`,
			a.ExecutionID, a.QuestionID, a.Value, boolToInt(a.HasIssue), nullableStringPtr(a.PictureRef))
		if err != nil {
			return a, false, err
		}
		a.ID, err = res.LastInsertId()
		return a, false, err
	case err != nil:
		return a, false, err
	}
	a.ID = existingID
	_, err = tx.ExecContext(ctx, `UPDATE answers SET value=?,has_issue=?,picture_ref=? WHERE id=?`,
		a.Value, boolToInt(a.HasIssue), nullableStringPtr(a.PictureRef), a.ID)
	return a, true, err
}

func scanAnswer(sc interface{ Scan(...any) error }) (domain.Answer, error) {
	var a domain.Answer
	var hasIssue int
	var pic sql.NullString
	err := sc.Scan(&a.ID, &a.ExecutionID, &a.QuestionID, &a.Value, &hasIssue, &pic)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	a.HasIssue = hasIssue != 0
	if pic.Valid {
		a.PictureRef = &pic.String
	}
	return a, err
}

func (r Repo) GetAnswerByKeyTx(ctx context.Context, tx *sql.Tx, executionID, questionID int64) (domain.Answer, error) {
	return scanAnswer(tx.QueryRowContext(ctx, `SELECT id,execution_id,question_id,value,has_issue,picture_ref FROM answers
WHERE execution_id=? AND question_id=?`, executionID, questionID))
}

func (r Repo) GetAnswer(ctx context.Context, id int64) (domain.Answer, error) {
	return scanAnswer(r.DB.QueryRowContext(ctx, `SELECT id,execution_id,question_id,value,has_issue,picture_ref FROM answers WHERE id=?`, id))
}

func (r Repo) ListAnswers(ctx context.Context, executionID int64) ([]domain.Answer, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,execution_id,question_id,value,has_issue,picture_ref FROM answers
WHERE execution_id=? ORDER BY question_id ASC`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// AnswerCounts tallies OK and NOK answers for an execution in one pass.
func (r Repo) AnswerCounts(ctx context.Context, executionID int64) (ok, nok int, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT
COALESCE(SUM(CASE WHEN value=? THEN 1 ELSE 0 END),0),
COALESCE(SUM(CASE WHEN value=? THEN 1 ELSE 0 END),0)
FROM answers WHERE execution_id=?`, domain.AnswerOK, domain.AnswerNOK, executionID).Scan(&ok, &nok)
	return ok, nok, err
}
