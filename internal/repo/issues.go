package repo

import (
	"context"
	"database/sql"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
)

const issueCols = `id,execution_id,answer_id,description,severity,status,solver_id,deadline,note,created_at,assigned_at,started_at,resolved_at,closed_at`

func (r Repo) InsertIssue(ctx context.Context, tx *sql.Tx, i domain.Issue) (domain.Issue, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO issues(execution_id,answer_id,description,severity,status,solver_id,deadline,note,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		i.ExecutionID, nullableIntPtr(i.AnswerID), i.Description, i.Severity, i.Status,
		nullableIntPtr(i.SolverID), nullableStringPtr(i.Deadline), nullableStringPtr(i.Note), i.CreatedAt)
	if err != nil {
		return i, err
	}
	i.ID, err = res.LastInsertId()
	return i, err
}

func scanIssue(sc interface{ Scan(...any) error }) (domain.Issue, error) {
	var i domain.Issue
	var answerID, solverID sql.NullInt64
	var deadline, note, assignedAt, startedAt, resolvedAt, closedAt sql.NullString
	err := sc.Scan(&i.ID, &i.ExecutionID, &answerID, &i.Description, &i.Severity, &i.Status,
		&solverID, &deadline, &note, &i.CreatedAt, &assignedAt, &startedAt, &resolvedAt, &closedAt)
	if err == sql.ErrNoRows {
		return i, ErrNotFound
	}
	if answerID.Valid {
		i.AnswerID = &answerID.Int64
	}
	if solverID.Valid {
		i.SolverID = &solverID.Int64
	}
	if deadline.Valid {
		i.Deadline = &deadline.String
	}
	if note.Valid {
		i.Note = &note.String
	}
	if assignedAt.Valid {
		i.AssignedAt = &assignedAt.String
	}
	if startedAt.Valid {
		i.StartedAt = &startedAt.String
	}
	if resolvedAt.Valid {
		i.ResolvedAt = &resolvedAt.String
	}
	if closedAt.Valid {
		i.ClosedAt = &closedAt.String
	}
	return i, err
}

func (r Repo) GetIssue(ctx context.Context, id int64) (domain.Issue, error) {
	return scanIssue(r.DB.QueryRowContext(ctx, `SELECT `+issueCols+` FROM issues WHERE id=?`, id))
}

func (r Repo) GetIssueTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Issue, error) {
	return scanIssue(tx.QueryRowContext(ctx, `SELECT `+issueCols+` FROM issues WHERE id=?`, id))
}

func (r Repo) listIssues(ctx context.Context, query string, args ...any) ([]domain.Issue, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, i)
	}
	return res, rows.Err()
}

func (r Repo) ListIssues(ctx context.Context, status string, solverID int64) ([]domain.Issue, error) {
	query := `SELECT ` + issueCols + ` FROM issues`
	var conds []string
	var args []any
	if status != "" {
		conds = append(conds, `status=?`)
		args = append(args, status)
	}
	if solverID != 0 {
		conds = append(conds, `solver_id=?`)
		args = append(args, solverID)
	}
	for i, c := range conds {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}
	query += ` ORDER BY id DESC`
	return r.listIssues(ctx, query, args...)
}

func (r Repo) ListIssuesByExecution(ctx context.Context, executionID int64) ([]domain.Issue, error) {
	return r.listIssues(ctx, `SELECT `+issueCols+` FROM issues WHERE execution_id=? ORDER BY id ASC`, executionID)
}

// OpenIssueForAnswer finds the open issue tied to an answer, if any.
// The ledger keeps at most one open issue per answer.
func (r Repo) OpenIssueForAnswer(ctx context.Context, tx *sql.Tx, answerID int64) (domain.Issue, error) {
	return scanIssue(tx.QueryRowContext(ctx, `SELECT `+issueCols+` FROM issues WHERE answer_id=? AND status=? LIMIT 1`,
		answerID, domain.IssueOpen))
}

// UpdateIssueDescription rewrites the description of an issue in place.
func (r Repo) UpdateIssueDescription(ctx context.Context, tx *sql.Tx, id int64, description string) error {
	_, err := tx.ExecContext(ctx, `UPDATE issues SET description=? WHERE id=?`, description, id)
	return err
}

// TransitionIssue moves an issue from one status to another, applying
// the given column updates atomically. Returns false when the issue was
// not in the expected status.
func (r Repo) TransitionIssue(ctx context.Context, tx *sql.Tx, id int64, from, to string, set map[string]any) (bool, error) {
	query := `UPDATE issues SET status=?`
	args := []any{to}
	for _, col := range []string{"solver_id", "deadline", "note", "assigned_at", "started_at", "resolved_at", "closed_at"} {
		if v, ok := set[col]; ok {
			query += `,` + col + `=?`
			args = append(args, v)
		}
	}
	query += ` WHERE id=? AND status=?`
	args = append(args, id, from)
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
