package engine

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/Halamis85/lpa-web-v2/internal/config"
	"github.com/Halamis85/lpa-web-v2/internal/domain"
	"github.com/Halamis85/lpa-web-v2/internal/engine/auth"
	"github.com/Halamis85/lpa-web-v2/internal/events"
	"github.com/Halamis85/lpa-web-v2/internal/notify"
	"github.com/Halamis85/lpa-web-v2/internal/plan"
	"github.com/Halamis85/lpa-web-v2/internal/repo"
	"github.com/Halamis85/lpa-web-v2/internal/storage"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Notify notify.Sender
	Store  storage.Store
	Now    func() time.Time
	Rand   *rand.Rand
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Notify: notify.Noop{},
		Store:  storage.Discard{},
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) rng() *rand.Rand {
	if e.Rand != nil {
		return e.Rand
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

var (
	periodRe    = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
	bareMonthRe = regexp.MustCompile(`^\d{1,2}$`)
)

// normalizePeriod accepts "YYYY-MM" or a bare month number, which is
// resolved against the current year.
func (e Engine) normalizePeriod(period string) (string, error) {
	if bareMonthRe.MatchString(period) {
		month := 0
		fmt.Sscanf(period, "%d", &month)
		if month < 1 || month > 12 {
			return "", InvalidInputError{Field: "period", Detail: "month must be 1-12"}
		}
		period = fmt.Sprintf("%04d-%02d", e.now().UTC().Year(), month)
	}
	if !periodRe.MatchString(period) {
		return "", InvalidInputError{Field: "period", Detail: `must look like "2026-03"`}
	}
	return period, nil
}

// --- reference data ---

func (e Engine) CreateLine(ctx context.Context, name string, actor domain.User) (domain.Line, error) {
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return domain.Line{}, err
	}
	if name == "" {
		return domain.Line{}, InvalidInputError{Field: "name", Detail: "must not be empty"}
	}
	if _, err := e.Repo.GetLineByName(ctx, name); err == nil {
		return domain.Line{}, ConflictError{Entity: "line", Detail: fmt.Sprintf("name %q already exists", name)}
	} else if err != repo.ErrNotFound {
		return domain.Line{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Line{}, err
	}
	defer tx.Rollback()
	l, err := e.Repo.InsertLine(ctx, tx, name)
	if err != nil {
		return domain.Line{}, fmt.Errorf("insert line: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "line.created", "line", l.ID, actor.ID, events.EventPayload{"name": name}); err != nil {
		return domain.Line{}, err
	}
	return l, tx.Commit()
}

func (e Engine) CreateCategory(ctx context.Context, name string, actor domain.User) (domain.ChecklistCategory, error) {
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return domain.ChecklistCategory{}, err
	}
	if name == "" {
		return domain.ChecklistCategory{}, InvalidInputError{Field: "name", Detail: "must not be empty"}
	}
	if _, err := e.Repo.GetCategoryByName(ctx, name); err == nil {
		return domain.ChecklistCategory{}, ConflictError{Entity: "category", Detail: fmt.Sprintf("name %q already exists", name)}
	} else if err != repo.ErrNotFound {
		return domain.ChecklistCategory{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChecklistCategory{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.InsertCategory(ctx, tx, name)
	if err != nil {
		return domain.ChecklistCategory{}, fmt.Errorf("insert category: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "category.created", "category", c.ID, actor.ID, events.EventPayload{"name": name}); err != nil {
		return domain.ChecklistCategory{}, err
	}
	return c, tx.Commit()
}

func (e Engine) CreateTemplate(ctx context.Context, name string, lineID int64, actor domain.User) (domain.ChecklistTemplate, error) {
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return domain.ChecklistTemplate{}, err
	}
	if name == "" {
		return domain.ChecklistTemplate{}, InvalidInputError{Field: "name", Detail: "must not be empty"}
	}
	if _, err := e.Repo.GetLine(ctx, lineID); err != nil {
		return domain.ChecklistTemplate{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChecklistTemplate{}, err
	}
	defer tx.Rollback()
	t, err := e.Repo.InsertTemplate(ctx, tx, domain.ChecklistTemplate{Name: name, LineID: lineID})
	if err != nil {
		return domain.ChecklistTemplate{}, fmt.Errorf("insert template: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "template.created", "template", t.ID, actor.ID, events.EventPayload{"name": name, "line_id": lineID}); err != nil {
		return domain.ChecklistTemplate{}, err
	}
	return t, tx.Commit()
}

func (e Engine) AddQuestion(ctx context.Context, q domain.ChecklistQuestion, actor domain.User) (domain.ChecklistQuestion, error) {
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return domain.ChecklistQuestion{}, err
	}
	if q.Text == "" {
		return domain.ChecklistQuestion{}, InvalidInputError{Field: "text", Detail: "must not be empty"}
	}
	if q.Position < 1 {
		return domain.ChecklistQuestion{}, InvalidInputError{Field: "position", Detail: "must be >= 1"}
	}
	if _, err := e.Repo.GetTemplate(ctx, q.TemplateID); err != nil {
		return domain.ChecklistQuestion{}, err
	}
	if _, err := e.Repo.GetCategory(ctx, q.CategoryID); err != nil {
		return domain.ChecklistQuestion{}, err
	}
	taken, err := e.Repo.QuestionAtPosition(ctx, q.TemplateID, q.CategoryID, q.Position)
	if err != nil {
		return domain.ChecklistQuestion{}, err
	}
	if taken {
		return domain.ChecklistQuestion{}, ConflictError{Entity: "question",
			Detail: fmt.Sprintf("position %d already used in template %d category %d", q.Position, q.TemplateID, q.CategoryID)}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChecklistQuestion{}, err
	}
	defer tx.Rollback()
	q, err = e.Repo.InsertQuestion(ctx, tx, q)
	if err != nil {
		return domain.ChecklistQuestion{}, fmt.Errorf("insert question: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "question.created", "question", q.ID, actor.ID,
		events.EventPayload{"template_id": q.TemplateID, "position": q.Position}); err != nil {
		return domain.ChecklistQuestion{}, err
	}
	return q, tx.Commit()
}

func (e Engine) UpdateQuestionText(ctx context.Context, id int64, text string, actor domain.User) error {
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return err
	}
	if text == "" {
		return InvalidInputError{Field: "text", Detail: "must not be empty"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateQuestionText(ctx, tx, id, text); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "question.updated", "question", id, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) DeleteQuestion(ctx context.Context, id int64, actor domain.User) error {
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteQuestion(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "question.deleted", "question", id, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// --- users ---

func (e Engine) CreateUser(ctx context.Context, u domain.User, actor domain.User) (domain.User, error) {
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return domain.User{}, err
	}
	if u.Name == "" || u.Email == "" {
		return domain.User{}, InvalidInputError{Field: "user", Detail: "name and email are required"}
	}
	if len(u.Roles) == 0 {
		return domain.User{}, InvalidInputError{Field: "roles", Detail: "at least one role is required"}
	}
	for _, r := range u.Roles {
		if !domain.ValidRole(string(r)) {
			return domain.User{}, InvalidInputError{Field: "roles", Detail: fmt.Sprintf("unknown role %q", r)}
		}
	}
	if _, err := e.Repo.GetUserByEmail(ctx, u.Email); err == nil {
		return domain.User{}, ConflictError{Entity: "user", Detail: fmt.Sprintf("email %q already registered", u.Email)}
	} else if err != repo.ErrNotFound {
		return domain.User{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	u.IsActive = true
	u, err = e.Repo.InsertUser(ctx, tx, u)
	if err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "user.created", "user", u.ID, actor.ID, events.EventPayload{"email": u.Email}); err != nil {
		return domain.User{}, err
	}
	return u, tx.Commit()
}

// SetUserActive deactivates or reactivates a user. Deactivated users
// drop out of future allocation runs; existing assignments keep them.
func (e Engine) SetUserActive(ctx context.Context, id int64, active bool, actor domain.User) error {
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return err
	}
	u, err := e.Repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	u.IsActive = active
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
		return err
	}
	evt := "user.deactivated"
	if active {
		evt = "user.activated"
	}
	if err := e.Events.Append(ctx, tx, evt, "user", id, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// --- campaigns ---

func (e Engine) CreateCampaign(ctx context.Context, period string, actor domain.User) (domain.Campaign, error) {
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return domain.Campaign{}, err
	}
	period, perr := e.normalizePeriod(period)
	if perr != nil {
		return domain.Campaign{}, perr
	}
	if _, err := e.Repo.GetCampaignByPeriod(ctx, period); err == nil {
		return domain.Campaign{}, ConflictError{Entity: "campaign", Detail: fmt.Sprintf("period %s already exists", period)}
	} else if err != repo.ErrNotFound {
		return domain.Campaign{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Campaign{}, err
	}
	defer tx.Rollback()
	c := domain.Campaign{
		Period:    period,
		Status:    domain.CampaignDraft,
		CreatedBy: actor.ID,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	c, err = e.Repo.InsertCampaign(ctx, tx, c)
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("insert campaign: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "campaign.created", "campaign", c.ID, actor.ID, events.EventPayload{"period": period}); err != nil {
		return domain.Campaign{}, err
	}
	return c, tx.Commit()
}

func (e Engine) setCampaignStatus(ctx context.Context, id int64, from []string, to, evt string, actor domain.User) error {
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return err
	}
	c, err := e.Repo.GetCampaign(ctx, id)
	if err != nil {
		return err
	}
	allowed := false
	for _, f := range from {
		if c.Status == f {
			allowed = true
		}
	}
	if !allowed {
		return InvalidStateError{Entity: "campaign", ID: id, Current: c.Status, Attempted: to}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateCampaignStatus(ctx, tx, id, to); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evt, "campaign", id, actor.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ActivateCampaign(ctx context.Context, id int64, actor domain.User) error {
	return e.setCampaignStatus(ctx, id, []string{domain.CampaignGenerated}, domain.CampaignActive, "campaign.activated", actor)
}

func (e Engine) CloseCampaign(ctx context.Context, id int64, actor domain.User) error {
	return e.setCampaignStatus(ctx, id, []string{domain.CampaignGenerated, domain.CampaignActive}, domain.CampaignClosed, "campaign.closed", actor)
}

// GenerateResult reports the committed allocation plus best-effort
// notification counts. Notification failures never roll anything back.
type GenerateResult struct {
	Assignments       []domain.Assignment
	NotifiedCount     int
	NotifyFailedCount int
}

// GenerateAssignments runs the allocation planner for a campaign. One
// assignment per line, auditors and categories rotating round-robin.
// Fails with a conflict if the campaign already has any assignment;
// the check runs inside the insert transaction so two concurrent runs
// cannot both commit.
func (e Engine) GenerateAssignments(ctx context.Context, campaignID int64, strategy plan.DeadlineStrategy, actor domain.User) (GenerateResult, error) {
	if err := auth.RequireRole(actor, domain.RoleAdmin); err != nil {
		return GenerateResult{}, err
	}
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return GenerateResult{}, err
	}
	if c.Status == domain.CampaignClosed {
		return GenerateResult{}, InvalidStateError{Entity: "campaign", ID: campaignID, Current: c.Status, Attempted: "generate"}
	}

	lines, err := e.Repo.ListLines(ctx)
	if err != nil {
		return GenerateResult{}, err
	}
	auditors, err := e.Repo.ActiveUsersWithRole(ctx, domain.RoleAuditor)
	if err != nil {
		return GenerateResult{}, err
	}
	categories, err := e.Repo.ListCategories(ctx)
	if err != nil {
		return GenerateResult{}, err
	}
	switch {
	case len(auditors) == 0:
		return GenerateResult{}, InvalidInputError{Field: "auditors", Detail: "no active auditors"}
	case len(lines) == 0:
		return GenerateResult{}, InvalidInputError{Field: "lines", Detail: "no lines configured"}
	case len(categories) == 0:
		return GenerateResult{}, InvalidInputError{Field: "categories", Detail: "no checklist categories configured"}
	}
	templates := make(map[int64]domain.ChecklistTemplate, len(lines))
	for _, line := range lines {
		t, err := e.Repo.TemplateForLine(ctx, line.ID)
		if err == repo.ErrNotFound {
			return GenerateResult{}, &plan.MissingTemplateError{LineID: line.ID, LineName: line.Name}
		}
		if err != nil {
			return GenerateResult{}, err
		}
		templates[line.ID] = t
	}
	if strategy == nil {
		day := 28
		if e.Config != nil && e.Config.Planner.FixedDay > 0 {
			day = e.Config.Planner.FixedDay
		}
		strategy = plan.FixedDay{Period: c.Period, Day: day}
	}
	planned, err := plan.Allocate(lines, auditors, categories, templates, strategy)
	if err != nil {
		return GenerateResult{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return GenerateResult{}, err
	}
	defer tx.Rollback()
	existing, err := e.Repo.CountAssignments(ctx, tx, campaignID)
	if err != nil {
		return GenerateResult{}, err
	}
	if existing > 0 {
		return GenerateResult{}, ConflictError{Entity: "campaign",
			Detail: fmt.Sprintf("campaign %d already has %d assignments", campaignID, existing)}
	}
	res := GenerateResult{Assignments: make([]domain.Assignment, 0, len(planned))}
	for _, p := range planned {
		a := domain.Assignment{
			CampaignID: campaignID,
			AuditorID:  p.AuditorID,
			LineID:     p.LineID,
			CategoryID: p.CategoryID,
			TemplateID: p.TemplateID,
			Deadline:   p.Deadline,
			Status:     domain.AssignmentPending,
		}
		a, err = e.Repo.InsertAssignment(ctx, tx, a)
		if err != nil {
			return GenerateResult{}, fmt.Errorf("insert assignment: %w", err)
		}
		res.Assignments = append(res.Assignments, a)
	}
	if err := e.Repo.UpdateCampaignStatus(ctx, tx, campaignID, domain.CampaignGenerated); err != nil {
		return GenerateResult{}, err
	}
	if err := e.Events.Append(ctx, tx, "campaign.generated", "campaign", campaignID, actor.ID,
		events.EventPayload{"assignments": len(res.Assignments)}); err != nil {
		return GenerateResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return GenerateResult{}, err
	}

	// Notifications run after commit. Failures are counted, not fatal.
	for _, a := range res.Assignments {
		u, err := e.Repo.GetUser(ctx, a.AuditorID)
		if err != nil {
			res.NotifyFailedCount++
			continue
		}
		err = e.Notify.Send(ctx, notify.AssignmentCreated, notify.Data{
			"to":       u.Email,
			"name":     u.Name,
			"period":   c.Period,
			"deadline": a.Deadline,
		})
		if err != nil {
			res.NotifyFailedCount++
		} else {
			res.NotifiedCount++
		}
	}
	return res, nil
}

// GenerateCurrent creates (if needed) the campaign for the current
// month and runs the planner with a randomized deadline window.
func (e Engine) GenerateCurrent(ctx context.Context, actor domain.User) (domain.Campaign, GenerateResult, error) {
	period := e.now().UTC().Format("2006-01")
	c, err := e.Repo.GetCampaignByPeriod(ctx, period)
	if err == repo.ErrNotFound {
		c, err = e.CreateCampaign(ctx, period, actor)
	}
	if err != nil {
		return domain.Campaign{}, GenerateResult{}, err
	}
	res, err := e.GenerateAssignments(ctx, c.ID, e.WindowStrategy(), actor)
	if err != nil {
		// Already generated: report the existing allocation untouched.
		if _, ok := err.(ConflictError); ok {
			existing, lerr := e.Repo.ListAssignmentsByCampaign(ctx, c.ID)
			if lerr != nil {
				return c, GenerateResult{}, lerr
			}
			return c, GenerateResult{Assignments: existing}, nil
		}
		return c, GenerateResult{}, err
	}
	return c, res, nil
}

// WindowStrategy returns the randomized deadline strategy with the
// configured window, anchored on today.
func (e Engine) WindowStrategy() plan.DeadlineStrategy {
	minDays, maxDays := 7, 20
	if e.Config != nil && e.Config.Planner.WindowMinDays > 0 {
		minDays, maxDays = e.Config.Planner.WindowMinDays, e.Config.Planner.WindowMaxDays
	}
	return plan.RandomWindow{Today: e.now().UTC(), MinDays: minDays, MaxDays: maxDays, Rand: e.rng()}
}

// --- api keys ---

// CreateAPIKey mints a raw key for a user and stores only its hash.
// The raw key is returned once and cannot be recovered later.
func (e Engine) CreateAPIKey(ctx context.Context, userID int64, name string, actor domain.User) (string, domain.APIKey, error) {
	if err := auth.RequireSelfOrAdmin(actor, userID, "own account or admin role"); err != nil {
		return "", domain.APIKey{}, err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return "", domain.APIKey{}, err
	}
	raw := uuid.NewString() + uuid.NewString()
	k := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, k); err != nil {
		return "", domain.APIKey{}, fmt.Errorf("insert api key: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", "apikey", 0, actor.ID, events.EventPayload{"user_id": userID}); err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, k, tx.Commit()
}

// ListAPIKeys returns a user's keys; only hashes are stored, so the
// raw secrets are not recoverable here.
func (e Engine) ListAPIKeys(ctx context.Context, userID int64, actor domain.User) ([]domain.APIKey, error) {
	if err := auth.RequireSelfOrAdmin(actor, userID, "key owner or admin role"); err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return e.Repo.ListAPIKeys(ctx, userID)
}

// RevokeAPIKey deletes one of a user's keys. The key id is scoped to
// the user so nobody can revoke across accounts by guessing ids.
func (e Engine) RevokeAPIKey(ctx context.Context, userID int64, keyID string, actor domain.User) error {
	if err := auth.RequireSelfOrAdmin(actor, userID, "key owner or admin role"); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, keyID, userID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "apikey.revoked", "apikey", 0, actor.ID, events.EventPayload{"user_id": userID}); err != nil {
		return err
	}
	return tx.Commit()
}
