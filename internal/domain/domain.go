package domain

import "strings"

// Role is one of the fixed set of roles a user can hold.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAuditor Role = "auditor"
	RoleSolver  Role = "solver"
)

// ValidRole reports whether s names a known role.
func ValidRole(s string) bool {
	switch Role(s) {
	case RoleAdmin, RoleAuditor, RoleSolver:
		return true
	}
	return false
}

// ParseRoles splits a comma-joined roles field into a role set,
// dropping empty elements. Legacy rows store roles this way.
func ParseRoles(joined string) []Role {
	var roles []Role
	for _, part := range strings.Split(joined, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		roles = append(roles, Role(part))
	}
	return roles
}

// JoinRoles renders a role set back to its stored form.
func JoinRoles(roles []Role) string {
	parts := make([]string, 0, len(roles))
	for _, r := range roles {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ",")
}

type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Roles    []Role `json:"roles"`
	IsActive bool   `json:"is_active"`
}

// PrimaryRole is the first role in the set, for callers that still
// expect a single-role user.
func (u User) PrimaryRole() Role {
	if len(u.Roles) == 0 {
		return ""
	}
	return u.Roles[0]
}

func (u User) HasRole(r Role) bool {
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

type Line struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ChecklistCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ChecklistTemplate struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	LineID int64  `json:"line_id"`
}

type ChecklistQuestion struct {
	ID         int64  `json:"id"`
	TemplateID int64  `json:"template_id"`
	CategoryID int64  `json:"category_id"`
	Text       string `json:"text"`
	Position   int    `json:"position"`
}

type Campaign struct {
	ID        int64  `json:"id"`
	Period    string `json:"period"` // "2026-03"
	Status    string `json:"status" enum:"draft,generated,active,closed"`
	CreatedBy int64  `json:"created_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

const (
	CampaignDraft     = "draft"
	CampaignGenerated = "generated"
	CampaignActive    = "active"
	CampaignClosed    = "closed"
)

type Assignment struct {
	ID             int64   `json:"id"`
	CampaignID     int64   `json:"campaign_id"`
	AuditorID      int64   `json:"auditor_id"`
	LineID         int64   `json:"line_id"`
	CategoryID     int64   `json:"category_id"`
	TemplateID     int64   `json:"template_id"`
	Deadline       string  `json:"deadline"` // "2026-03-28"
	CompletionDate *string `json:"completion_date,omitempty"`
	Status         string  `json:"status" enum:"pending,in_progress,done"`
}

const (
	AssignmentPending    = "pending"
	AssignmentInProgress = "in_progress"
	AssignmentDone       = "done"
)

type Execution struct {
	ID           int64   `json:"id"`
	AssignmentID int64   `json:"assignment_id"`
	AuditorID    int64   `json:"auditor_id"`
	StartedAt    string  `json:"started_at" format:"date-time"`
	FinishedAt   *string `json:"finished_at,omitempty" format:"date-time"`
	Status       string  `json:"status" enum:"in_progress,done"`
}

const (
	ExecutionInProgress = "in_progress"
	ExecutionDone       = "done"
)

type Answer struct {
	ID          int64   `json:"id"`
	ExecutionID int64   `json:"execution_id"`
	QuestionID  int64   `json:"question_id"`
	Value       string  `json:"value" enum:"OK,NOK"`
	HasIssue    bool    `json:"has_issue"`
	PictureRef  *string `json:"picture_ref,omitempty"`
}

const (
	AnswerOK  = "OK"
	AnswerNOK = "NOK"
)

type Issue struct {
	ID          int64   `json:"id"`
	ExecutionID int64   `json:"execution_id"`
	AnswerID    *int64  `json:"answer_id,omitempty"`
	Description string  `json:"description"`
	Severity    string  `json:"severity" enum:"low,medium,high"`
	Status      string  `json:"status" enum:"open,assigned,in_progress,known_solution,implemented,resolved,closed"`
	SolverID    *int64  `json:"solver_id,omitempty"`
	Deadline    *string `json:"deadline,omitempty"`
	Note        *string `json:"note,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	AssignedAt  *string `json:"assigned_at,omitempty" format:"date-time"`
	StartedAt   *string `json:"started_at,omitempty" format:"date-time"`
	ResolvedAt  *string `json:"resolved_at,omitempty" format:"date-time"`
	ClosedAt    *string `json:"closed_at,omitempty" format:"date-time"`
}

const (
	IssueOpen          = "open"
	IssueAssigned      = "assigned"
	IssueInProgress    = "in_progress"
	IssueKnownSolution = "known_solution"
	IssueImplemented   = "implemented"
	IssueResolved      = "resolved"
	IssueClosed        = "closed"
)

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// ValidSeverity reports whether s is a known severity level.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   int64  `json:"entity_id,omitempty"`
	ActorID    int64  `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    int64  `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
