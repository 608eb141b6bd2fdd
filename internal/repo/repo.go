package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- lines ---

func (r Repo) InsertLine(ctx context.Context, tx *sql.Tx, name string) (domain.Line, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO lines(name) VALUES (?)`, name)
	if err != nil {
		return domain.Line{}, err
	}
	id, err := res.LastInsertId()
	return domain.Line{ID: id, Name: name}, err
}

func (r Repo) GetLine(ctx context.Context, id int64) (domain.Line, error) {
	var l domain.Line
	err := r.DB.QueryRowContext(ctx, `SELECT id,name FROM lines WHERE id=?`, id).Scan(&l.ID, &l.Name)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

func (r Repo) GetLineByName(ctx context.Context, name string) (domain.Line, error) {
	var l domain.Line
	err := r.DB.QueryRowContext(ctx, `SELECT id,name FROM lines WHERE name=?`, name).Scan(&l.ID, &l.Name)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

// ListLines returns all lines in a stable id order. The planner depends
// on this ordering being deterministic.
func (r Repo) ListLines(ctx context.Context) ([]domain.Line, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name FROM lines ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Line
	for rows.Next() {
		var l domain.Line
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// --- checklist categories ---

func (r Repo) InsertCategory(ctx context.Context, tx *sql.Tx, name string) (domain.ChecklistCategory, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO checklist_categories(name) VALUES (?)`, name)
	if err != nil {
		return domain.ChecklistCategory{}, err
	}
	id, err := res.LastInsertId()
	return domain.ChecklistCategory{ID: id, Name: name}, err
}

func (r Repo) GetCategory(ctx context.Context, id int64) (domain.ChecklistCategory, error) {
	var c domain.ChecklistCategory
	err := r.DB.QueryRowContext(ctx, `SELECT id,name FROM checklist_categories WHERE id=?`, id).Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) GetCategoryByName(ctx context.Context, name string) (domain.ChecklistCategory, error) {
	var c domain.ChecklistCategory
	err := r.DB.QueryRowContext(ctx, `SELECT id,name FROM checklist_categories WHERE name=?`, name).Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCategories(ctx context.Context) ([]domain.ChecklistCategory, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name FROM checklist_categories ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistCategory
	for rows.Next() {
		var c domain.ChecklistCategory
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- checklist templates ---

func (r Repo) InsertTemplate(ctx context.Context, tx *sql.Tx, t domain.ChecklistTemplate) (domain.ChecklistTemplate, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO checklist_templates(name,line_id) VALUES (?,?)`, t.Name, t.LineID)
	if err != nil {
		return t, err
	}
	t.ID, err = res.LastInsertId()
	return t, err
}

func (r Repo) GetTemplate(ctx context.Context, id int64) (domain.ChecklistTemplate, error) {
	var t domain.ChecklistTemplate
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,line_id FROM checklist_templates WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &t.LineID)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

// TemplateForLine returns the first template configured for a line.
// Policy is one template per line; if several exist the oldest wins.
func (r Repo) TemplateForLine(ctx context.Context, lineID int64) (domain.ChecklistTemplate, error) {
	var t domain.ChecklistTemplate
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,line_id FROM checklist_templates WHERE line_id=? ORDER BY id ASC LIMIT 1`, lineID).
		Scan(&t.ID, &t.Name, &t.LineID)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListTemplates(ctx context.Context) ([]domain.ChecklistTemplate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,line_id FROM checklist_templates ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistTemplate
	for rows.Next() {
		var t domain.ChecklistTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.LineID); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// --- checklist questions ---

func (r Repo) InsertQuestion(ctx context.Context, tx *sql.Tx, q domain.ChecklistQuestion) (domain.ChecklistQuestion, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO checklist_questions(template_id,category_id,question_text,position) VALUES (?,?,?,?)`,
		q.TemplateID, q.CategoryID, q.Text, q.Position)
	if err != nil {
		return q, err
	}
	q.ID, err = res.LastInsertId()
	return q, err
}

func (r Repo) GetQuestion(ctx context.Context, id int64) (domain.ChecklistQuestion, error) {
	var q domain.ChecklistQuestion
	err := r.DB.QueryRowContext(ctx, `SELECT id,template_id,category_id,question_text,position FROM checklist_questions WHERE id=?`, id).
		Scan(&q.ID, &q.TemplateID, &q.CategoryID, &q.Text, &q.Position)
	if err == sql.ErrNoRows {
		return q, ErrNotFound
	}
	return q, err
}

func (r Repo) QuestionAtPosition(ctx context.Context, templateID, categoryID int64, position int) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM checklist_questions WHERE template_id=? AND category_id=? AND position=? LIMIT 1`,
		templateID, categoryID, position)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) ListQuestions(ctx context.Context, templateID int64) ([]domain.ChecklistQuestion, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,template_id,category_id,question_text,position FROM checklist_questions
WHERE template_id=? ORDER BY category_id ASC, position ASC`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistQuestion
	for rows.Next() {
		var q domain.ChecklistQuestion
		if err := rows.Scan(&q.ID, &q.TemplateID, &q.CategoryID, &q.Text, &q.Position); err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

func (r Repo) UpdateQuestionText(ctx context.Context, tx *sql.Tx, id int64, text string) error {
	res, err := tx.ExecContext(ctx, `UPDATE checklist_questions SET question_text=? WHERE id=?`, text, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteQuestion(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM checklist_questions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- campaigns ---

func (r Repo) InsertCampaign(ctx context.Context, tx *sql.Tx, c domain.Campaign) (domain.Campaign, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO campaigns(period,status,created_by,created_at) VALUES (?,?,?,?)`,
		c.Period, c.Status, nullableID(c.CreatedBy), c.CreatedAt)
	if err != nil {
		return c, err
	}
	c.ID, err = res.LastInsertId()
	return c, err
}

func scanCampaign(row *sql.Row) (domain.Campaign, error) {
	var c domain.Campaign
	var createdBy sql.NullInt64
	err := row.Scan(&c.ID, &c.Period, &c.Status, &createdBy, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if createdBy.Valid {
		c.CreatedBy = createdBy.Int64
	}
	return c, err
}

func (r Repo) GetCampaign(ctx context.Context, id int64) (domain.Campaign, error) {
	return scanCampaign(r.DB.QueryRowContext(ctx, `SELECT id,period,status,created_by,created_at FROM campaigns WHERE id=?`, id))
}

func (r Repo) GetCampaignByPeriod(ctx context.Context, period string) (domain.Campaign, error) {
	return scanCampaign(r.DB.QueryRowContext(ctx, `SELECT id,period,status,created_by,created_at FROM campaigns WHERE period=?`, period))
}

func (r Repo) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,period,status,created_by,created_at FROM campaigns ORDER BY period DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		var createdBy sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Period, &c.Status, &createdBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		if createdBy.Valid {
			c.CreatedBy = createdBy.Int64
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpdateCampaignStatus(ctx context.Context, tx *sql.Tx, id int64, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE campaigns SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, entityKind string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,0),actor_id,payload_json FROM events`
	var args []any
	if entityKind != "" {
		query += ` WHERE entity_kind=?`
		args = append(args, entityKind)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullableID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
