package repo

import (
	"context"
	"database/sql"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
)

const assignmentCols = `id,campaign_id,auditor_id,line_id,category_id,template_id,deadline,completion_date,status`

func (r Repo) InsertAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) (domain.Assignment, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO assignments(campaign_id,auditor_id,line_id,category_id,template_id,deadline,completion_date,status)
VALUES (?,?,?,?,?,?,?,?)`,
		a.CampaignID, a.AuditorID, a.LineID, a.CategoryID, a.TemplateID, a.Deadline, nullableStringPtr(a.CompletionDate), a.Status)
	if err != nil {
		return a, err
	}
	a.ID, err = res.LastInsertId()
	return a, err
}

func scanAssignment(sc interface{ Scan(...any) error }) (domain.Assignment, error) {
	var a domain.Assignment
	var completion sql.NullString
	err := sc.Scan(&a.ID, &a.CampaignID, &a.AuditorID, &a.LineID, &a.CategoryID, &a.TemplateID, &a.Deadline, &completion, &a.Status)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if completion.Valid {
		a.CompletionDate = &completion.String
	}
	return a, err
}

func (r Repo) GetAssignment(ctx context.Context, id int64) (domain.Assignment, error) {
	return scanAssignment(r.DB.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id=?`, id))
}

func (r Repo) GetAssignmentTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Assignment, error) {
	return scanAssignment(tx.QueryRowContext(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE id=?`, id))
}

func (r Repo) listAssignments(ctx context.Context, query string, args ...any) ([]domain.Assignment, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) ListAssignments(ctx context.Context, status string) ([]domain.Assignment, error) {
	if status != "" {
		return r.listAssignments(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE status=? ORDER BY deadline ASC, id ASC`, status)
	}
	return r.listAssignments(ctx, `SELECT `+assignmentCols+` FROM assignments ORDER BY deadline ASC, id ASC`)
}

func (r Repo) ListAssignmentsByCampaign(ctx context.Context, campaignID int64) ([]domain.Assignment, error) {
	return r.listAssignments(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE campaign_id=? ORDER BY id ASC`, campaignID)
}

func (r Repo) ListAssignmentsByAuditor(ctx context.Context, auditorID int64, status string) ([]domain.Assignment, error) {
	if status != "" {
		return r.listAssignments(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE auditor_id=? AND status=? ORDER BY deadline ASC, id ASC`,
			auditorID, status)
	}
	return r.listAssignments(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE auditor_id=? ORDER BY deadline ASC, id ASC`, auditorID)
}

func (r Repo) CountAssignments(ctx context.Context, tx *sql.Tx, campaignID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM assignments WHERE campaign_id=?`, campaignID).Scan(&n)
	return n, err
}

// MarkAssignmentInProgress flips pending -> in_progress. Returns false
// when the row was not pending, which callers treat as a state error.
func (r Repo) MarkAssignmentInProgress(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE assignments SET status=? WHERE id=? AND status=?`,
		domain.AssignmentInProgress, id, domain.AssignmentPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) MarkAssignmentDone(ctx context.Context, tx *sql.Tx, id int64, completionDate string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE assignments SET status=?,completion_date=? WHERE id=? AND status=?`,
		domain.AssignmentDone, completionDate, id, domain.AssignmentInProgress)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetAssignmentStatus is the unconditional admin override.
func (r Repo) SetAssignmentStatus(ctx context.Context, tx *sql.Tx, id int64, status string, completionDate *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE assignments SET status=?,completion_date=? WHERE id=?`,
		status, nullableStringPtr(completionDate), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
