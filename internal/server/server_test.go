package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/Halamis85/lpa-web-v2/internal/config"
	"github.com/Halamis85/lpa-web-v2/internal/db"
	"github.com/Halamis85/lpa-web-v2/internal/domain"
	"github.com/Halamis85/lpa-web-v2/internal/engine"
	"github.com/Halamis85/lpa-web-v2/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

var bootstrap = domain.User{ID: 0, Name: "system", Roles: []domain.Role{domain.RoleAdmin}}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) }
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyUserHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

// seedUser creates a user directly through the engine and returns it
// with the headers an authenticated request needs.
func seedUser(t *testing.T, srv *testServer, name, email string, roles ...domain.Role) (domain.User, map[string]string) {
	t.Helper()
	u, err := srv.Engine.CreateUser(context.Background(), domain.User{Name: name, Email: email, Roles: roles}, bootstrap)
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u, map[string]string{"X-User-Id": fmt.Sprintf("%d", u.ID)}
}

func seedPlanned(t *testing.T, srv *testServer) (admin, auditor domain.User, adminHdr, auditorHdr map[string]string, assignmentID int64) {
	t.Helper()
	ctx := context.Background()
	admin, adminHdr = seedUser(t, srv, "Alice Admin", "alice@plant.example", domain.RoleAdmin)
	auditor, auditorHdr = seedUser(t, srv, "Aron Auditor", "aron@plant.example", domain.RoleAuditor)
	l, err := srv.Engine.CreateLine(ctx, "Line 1", admin)
	if err != nil {
		t.Fatal(err)
	}
	tpl, err := srv.Engine.CreateTemplate(ctx, "Line 1 checklist", l.ID, admin)
	if err != nil {
		t.Fatal(err)
	}
	cat, err := srv.Engine.CreateCategory(ctx, "Safety", admin)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := srv.Engine.AddQuestion(ctx, domain.ChecklistQuestion{
		TemplateID: tpl.ID, CategoryID: cat.ID, Text: "Guard mounted?", Position: 1,
	}, admin); err != nil {
		t.Fatal(err)
	}
	c, err := srv.Engine.CreateCampaign(ctx, "2026-03", admin)
	if err != nil {
		t.Fatal(err)
	}
	res, err := srv.Engine.GenerateAssignments(ctx, c.ID, nil, admin)
	if err != nil {
		t.Fatal(err)
	}
	return admin, auditor, adminHdr, auditorHdr, res.Assignments[0].ID
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/lines", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", res.StatusCode)
	}
	// health stays open
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d, want 200", res.StatusCode)
	}
}

func TestBearerTokenAuth(t *testing.T) {
	srv := newTestServer(t)
	u, _ := seedUser(t, srv, "Alice Admin", "alice@plant.example", domain.RoleAdmin)
	token, err := IssueToken("test-secret", u, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var me userDTO
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if me.ID != u.ID || me.Email != "alice@plant.example" {
		t.Fatalf("me: %+v", me)
	}
	// wrong secret is rejected
	bad, err := IssueToken("other-secret", u, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + bad,
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("forged token status %d, want 401", res.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	u, _ := seedUser(t, srv, "Aron Auditor", "aron@plant.example", domain.RoleAuditor)
	raw, _, err := srv.Engine.CreateAPIKey(context.Background(), u.ID, "ci", bootstrap)
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-Api-Key": raw,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-Api-Key": "not-a-key",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad key status %d, want 401", res.StatusCode)
	}
}

func TestAuditFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	_, _, adminHdr, auditorHdr, assignmentID := seedPlanned(t, srv)

	// auditor starts their assignment
	res, data := doJSON(t, srv.Client(), http.MethodPost,
		fmt.Sprintf("%s/v1/assignments/%d/start", srv.URL, assignmentID), nil, auditorHdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start status %d: %s", res.StatusCode, data)
	}
	var ex domain.Execution
	if err := json.Unmarshal(data, &ex); err != nil {
		t.Fatalf("unmarshal execution: %v", err)
	}

	// starting again conflicts
	res, data = doJSON(t, srv.Client(), http.MethodPost,
		fmt.Sprintf("%s/v1/assignments/%d/start", srv.URL, assignmentID), nil, adminHdr)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("restart status %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Code != "invalid_state" {
		t.Fatalf("error code %q, want invalid_state", envelope.Error.Code)
	}

	// submit a failing answer, issue spawns
	questions, err := srv.Engine.Repo.ListQuestions(context.Background(), 1)
	if err != nil || len(questions) == 0 {
		t.Fatalf("list questions: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost,
		fmt.Sprintf("%s/v1/executions/%d/answers", srv.URL, ex.ID), map[string]any{
			"question_id": questions[0].ID,
			"value":       "nok",
			"note":        "guard missing",
		}, auditorHdr)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", res.StatusCode, data)
	}
	var submitted answerDTO
	if err := json.Unmarshal(data, &submitted); err != nil {
		t.Fatalf("unmarshal answer: %v", err)
	}
	if submitted.Answer.Value != domain.AnswerNOK || submitted.Issue == nil {
		t.Fatalf("submitted: %+v", submitted)
	}

	// summary reflects the failure
	res, data = doJSON(t, srv.Client(), http.MethodGet,
		fmt.Sprintf("%s/v1/executions/%d/summary", srv.URL, ex.ID), nil, auditorHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summary status %d: %s", res.StatusCode, data)
	}
	var summary engine.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Total != 1 || summary.NOK != 1 || summary.OKPercent != 0 {
		t.Fatalf("summary: %+v", summary)
	}

	// finish, assignment cascades to done
	res, data = doJSON(t, srv.Client(), http.MethodPost,
		fmt.Sprintf("%s/v1/executions/%d/finish", srv.URL, ex.ID), nil, auditorHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("finish status %d: %s", res.StatusCode, data)
	}
	a, err := srv.Engine.Repo.GetAssignment(context.Background(), assignmentID)
	if err != nil || a.Status != domain.AssignmentDone {
		t.Fatalf("assignment after finish: %+v (%v)", a, err)
	}
}

func TestIssueWorkflowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	_, auditor, _, auditorHdr, assignmentID := seedPlanned(t, srv)
	_, solverHdr := seedUser(t, srv, "Sven Solver", "sven@plant.example", domain.RoleSolver)

	ex, err := srv.Engine.StartExecution(context.Background(), assignmentID, auditor)
	if err != nil {
		t.Fatal(err)
	}
	questions, err := srv.Engine.Repo.ListQuestions(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := srv.Engine.SubmitAnswer(context.Background(), engine.SubmitAnswerParams{
		ExecutionID: ex.ID, QuestionID: questions[0].ID, Value: "NOK", Note: "broken guard",
	}, auditor)
	if err != nil {
		t.Fatal(err)
	}
	issueID := sub.Issue.ID

	// solver takes over and resolves
	res, data := doJSON(t, srv.Client(), http.MethodPost,
		fmt.Sprintf("%s/v1/issues/%d/take", srv.URL, issueID), nil, solverHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("take status %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost,
		fmt.Sprintf("%s/v1/issues/%d/resolve", srv.URL, issueID), map[string]any{
			"note": "guard replaced",
		}, solverHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve status %d: %s", res.StatusCode, data)
	}

	// solver cannot close
	res, data = doJSON(t, srv.Client(), http.MethodPost,
		fmt.Sprintf("%s/v1/issues/%d/close", srv.URL, issueID), nil, solverHdr)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("close by solver status %d: %s", res.StatusCode, data)
	}
	// auditor closes
	res, data = doJSON(t, srv.Client(), http.MethodPost,
		fmt.Sprintf("%s/v1/issues/%d/close", srv.URL, issueID), nil, auditorHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("close status %d: %s", res.StatusCode, data)
	}
	var closed domain.Issue
	if err := json.Unmarshal(data, &closed); err != nil {
		t.Fatal(err)
	}
	if closed.Status != domain.IssueClosed {
		t.Fatalf("status %q, want closed", closed.Status)
	}
}

func TestVisibilityAuditorSeesOwnOnly(t *testing.T) {
	srv := newTestServer(t)
	_, _, _, auditorHdr, _ := seedPlanned(t, srv)
	_, otherHdr := seedUser(t, srv, "Olga Other", "olga@plant.example", domain.RoleAuditor)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/assignments", nil, auditorHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var mine []assignmentDTO
	if err := json.Unmarshal(data, &mine); err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 {
		t.Fatalf("auditor sees %d assignments, want 1", len(mine))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/assignments", nil, otherHdr)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
	var theirs []assignmentDTO
	if err := json.Unmarshal(data, &theirs); err != nil {
		t.Fatal(err)
	}
	if len(theirs) != 0 {
		t.Fatalf("unassigned auditor sees %d assignments, want 0", len(theirs))
	}
}

func TestReferenceAdminRequiresAdminRole(t *testing.T) {
	srv := newTestServer(t)
	_, auditorHdr := seedUser(t, srv, "Aron Auditor", "aron@plant.example", domain.RoleAuditor)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/lines", map[string]any{
		"name": "Line 9",
	}, auditorHdr)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d: %s", res.StatusCode, data)
	}
}
