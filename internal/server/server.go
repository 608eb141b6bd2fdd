package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
	"github.com/Halamis85/lpa-web-v2/internal/engine"
	"github.com/Halamis85/lpa-web-v2/internal/engine/auth"
	"github.com/Halamis85/lpa-web-v2/internal/plan"
	"github.com/Halamis85/lpa-web-v2/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"issue 4: cannot close from state \"open\""`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the LPA API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("LPA API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group, cfg.Engine)
	registerReference(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerCampaigns(group, cfg.Engine)
	registerAssignments(group, cfg.Engine)
	registerExecutions(group, cfg.Engine)
	registerIssues(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if se, ok := err.(huma.StatusError); ok {
		return se
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"need": fe.Need})
	}
	var ise engine.InvalidStateError
	if errors.As(err, &ise) {
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), map[string]any{
			"entity":    ise.Entity,
			"current":   ise.Current,
			"attempted": ise.Attempted,
		})
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{"entity": ce.Entity})
	}
	var iie engine.InvalidInputError
	if errors.As(err, &iie) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": iie.Field})
	}
	var mte *plan.MissingTemplateError
	if errors.As(err, &mte) {
		return newAPIError(http.StatusUnprocessableEntity, "missing_template", err.Error(), map[string]any{
			"line_id":   mte.LineID,
			"line_name": mte.LineName,
		})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// actingUser resolves the authenticated principal to its database row.
// Roles come from the database, not the token.
func actingUser(ctx context.Context, e engine.Engine) (domain.User, huma.StatusError) {
	p, ok := principalFromContext(ctx)
	if !ok || p.UserID == 0 {
		return domain.User{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	}
	u, err := e.Repo.GetUser(ctx, p.UserID)
	if err == repo.ErrNotFound {
		return domain.User{}, newAPIError(http.StatusUnauthorized, "unauthorized", "unknown user", nil)
	}
	if err != nil {
		return domain.User{}, handleError(err)
	}
	if !u.IsActive {
		return domain.User{}, newAPIError(http.StatusForbidden, "forbidden", "user is deactivated", nil)
	}
	return u, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>LPA API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Authenticated user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body userDTO `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body userDTO `json:"body"`
		}{Body: toUserDTO(u)}, nil
	})
}

func registerReference(api huma.API, e engine.Engine) {
	type namedBody struct {
		Body struct {
			Name string `json:"name" minLength:"1"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID:   "create-line",
		Method:        http.MethodPost,
		Path:          "/lines",
		Summary:       "Create production line",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *namedBody) (*struct {
		Body domain.Line `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.CreateLine(ctx, input.Body.Name, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Line `json:"body"`
		}{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-lines",
		Method:      http.MethodGet,
		Path:        "/lines",
		Summary:     "List production lines",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Line `json:"body"`
	}, error) {
		if _, authErr := actingUser(ctx, e); authErr != nil {
			return nil, authErr
		}
		lines, err := e.Repo.ListLines(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Line `json:"body"`
		}{Body: lines}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-category",
		Method:        http.MethodPost,
		Path:          "/categories",
		Summary:       "Create checklist category",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *namedBody) (*struct {
		Body domain.ChecklistCategory `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCategory(ctx, input.Body.Name, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChecklistCategory `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/categories",
		Summary:     "List checklist categories",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ChecklistCategory `json:"body"`
	}, error) {
		if _, authErr := actingUser(ctx, e); authErr != nil {
			return nil, authErr
		}
		cats, err := e.Repo.ListCategories(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ChecklistCategory `json:"body"`
		}{Body: cats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-template",
		Method:        http.MethodPost,
		Path:          "/templates",
		Summary:       "Create checklist template",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			Name   string `json:"name" minLength:"1"`
			LineID int64  `json:"line_id"`
		}
	}) (*struct {
		Body domain.ChecklistTemplate `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTemplate(ctx, input.Body.Name, input.Body.LineID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChecklistTemplate `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List checklist templates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ChecklistTemplate `json:"body"`
	}, error) {
		if _, authErr := actingUser(ctx, e); authErr != nil {
			return nil, authErr
		}
		ts, err := e.Repo.ListTemplates(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ChecklistTemplate `json:"body"`
		}{Body: ts}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-question",
		Method:        http.MethodPost,
		Path:          "/templates/{template_id}/questions",
		Summary:       "Add checklist question",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		TemplateID int64 `path:"template_id"`
		Body       struct {
			CategoryID int64  `json:"category_id"`
			Text       string `json:"text" minLength:"1"`
			Position   int    `json:"position" minimum:"1"`
		}
	}) (*struct {
		Body domain.ChecklistQuestion `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		q, err := e.AddQuestion(ctx, domain.ChecklistQuestion{
			TemplateID: input.TemplateID,
			CategoryID: input.Body.CategoryID,
			Text:       input.Body.Text,
			Position:   input.Body.Position,
		}, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChecklistQuestion `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-questions",
		Method:      http.MethodGet,
		Path:        "/templates/{template_id}/questions",
		Summary:     "List checklist questions",
	}, func(ctx context.Context, input *struct {
		TemplateID int64 `path:"template_id"`
	}) (*struct {
		Body []domain.ChecklistQuestion `json:"body"`
	}, error) {
		if _, authErr := actingUser(ctx, e); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetTemplate(ctx, input.TemplateID); err != nil {
			return nil, handleError(err)
		}
		qs, err := e.Repo.ListQuestions(ctx, input.TemplateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ChecklistQuestion `json:"body"`
		}{Body: qs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-question",
		Method:      http.MethodPatch,
		Path:        "/questions/{question_id}",
		Summary:     "Update question text",
	}, func(ctx context.Context, input *struct {
		QuestionID int64 `path:"question_id"`
		Body       struct {
			Text string `json:"text" minLength:"1"`
		}
	}) (*struct {
		Body domain.ChecklistQuestion `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.UpdateQuestionText(ctx, input.QuestionID, input.Body.Text, u); err != nil {
			return nil, handleError(err)
		}
		q, err := e.Repo.GetQuestion(ctx, input.QuestionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChecklistQuestion `json:"body"`
		}{Body: q}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-question",
		Method:        http.MethodDelete,
		Path:          "/questions/{question_id}",
		Summary:       "Delete checklist question",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		QuestionID int64 `path:"question_id"`
	}) (*struct{}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteQuestion(ctx, input.QuestionID, u); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			Name  string   `json:"name" minLength:"1"`
			Email string   `json:"email" format:"email"`
			Roles []string `json:"roles" minItems:"1"`
		}
	}) (*struct {
		Body userDTO `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		roles := make([]domain.Role, 0, len(input.Body.Roles))
		for _, r := range input.Body.Roles {
			roles = append(roles, domain.Role(r))
		}
		created, err := e.CreateUser(ctx, domain.User{
			Name:  input.Body.Name,
			Email: input.Body.Email,
			Roles: roles,
		}, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body userDTO `json:"body"`
		}{Body: toUserDTO(created)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []userDTO `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.RequireRole(u, domain.RoleAdmin); err != nil {
			return nil, handleError(err)
		}
		users, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]userDTO, 0, len(users))
		for _, x := range users {
			out = append(out, toUserDTO(x))
		}
		return &struct {
			Body []userDTO `json:"body"`
		}{Body: out}, nil
	})

	type userPath struct {
		UserID int64 `path:"user_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "deactivate-user",
		Method:      http.MethodPost,
		Path:        "/users/{user_id}/deactivate",
		Summary:     "Deactivate user",
	}, func(ctx context.Context, input *userPath) (*struct {
		Body userDTO `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetUserActive(ctx, input.UserID, false, u); err != nil {
			return nil, handleError(err)
		}
		got, err := e.Repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body userDTO `json:"body"`
		}{Body: toUserDTO(got)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-user",
		Method:      http.MethodPost,
		Path:        "/users/{user_id}/activate",
		Summary:     "Reactivate user",
	}, func(ctx context.Context, input *userPath) (*struct {
		Body userDTO `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.SetUserActive(ctx, input.UserID, true, u); err != nil {
			return nil, handleError(err)
		}
		got, err := e.Repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body userDTO `json:"body"`
		}{Body: toUserDTO(got)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/users/{user_id}/api-keys",
		Summary:       "Create API key",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		UserID int64 `path:"user_id"`
		Body   struct {
			Name string `json:"name,omitempty"`
		}
	}) (*struct {
		Body apiKeyDTO `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		raw, key, err := e.CreateAPIKey(ctx, input.UserID, input.Body.Name, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body apiKeyDTO `json:"body"`
		}{Body: apiKeyDTO{ID: key.ID, UserID: key.UserID, Name: key.Name, Key: raw, CreatedAt: key.CreatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/api-keys",
		Summary:     "List API keys",
	}, func(ctx context.Context, input *struct {
		UserID int64 `path:"user_id"`
	}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, input.UserID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: keys}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/users/{user_id}/api-keys/{key_id}",
		Summary:       "Revoke API key",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		UserID int64  `path:"user_id"`
		KeyID  string `path:"key_id"`
	}) (*struct{}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeAPIKey(ctx, input.UserID, input.KeyID, u); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerCampaigns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-campaign",
		Method:        http.MethodPost,
		Path:          "/campaigns",
		Summary:       "Create audit campaign",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			Period string `json:"period" pattern:"^\\d{4}-(0[1-9]|1[0-2])$" example:"2026-03"`
		}
	}) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCampaign(ctx, input.Body.Period, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/campaigns",
		Summary:     "List campaigns",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Campaign `json:"body"`
	}, error) {
		if _, authErr := actingUser(ctx, e); authErr != nil {
			return nil, authErr
		}
		cs, err := e.Repo.ListCampaigns(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Campaign `json:"body"`
		}{Body: cs}, nil
	})

	type campaignPath struct {
		CampaignID int64 `path:"campaign_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-campaign",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}",
		Summary:     "Get campaign",
	}, func(ctx context.Context, input *campaignPath) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		if _, authErr := actingUser(ctx, e); authErr != nil {
			return nil, authErr
		}
		c, err := e.Repo.GetCampaign(ctx, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "generate-assignments",
		Method:        http.MethodPost,
		Path:          "/campaigns/{campaign_id}/generate",
		Summary:       "Run allocation planner",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		CampaignID int64 `path:"campaign_id"`
		Body       struct {
			Strategy string `json:"strategy,omitempty" enum:"fixed,window" default:"fixed"`
		}
	}) (*struct {
		Body generateDTO `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		var strategy plan.DeadlineStrategy
		if input.Body.Strategy == "window" {
			strategy = e.WindowStrategy()
		}
		res, err := e.GenerateAssignments(ctx, input.CampaignID, strategy, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body generateDTO `json:"body"`
		}{Body: toGenerateDTO(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "generate-current",
		Method:        http.MethodPost,
		Path:          "/campaigns/generate-current",
		Summary:       "Create and plan the current month's campaign",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Campaign domain.Campaign `json:"campaign"`
			Result   generateDTO     `json:"result"`
		}
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		c, res, err := e.GenerateCurrent(ctx, u)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Campaign domain.Campaign `json:"campaign"`
				Result   generateDTO     `json:"result"`
			}
		}{}
		out.Body.Campaign = c
		out.Body.Result = toGenerateDTO(res)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "activate-campaign",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/activate",
		Summary:     "Activate campaign",
	}, func(ctx context.Context, input *campaignPath) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.ActivateCampaign(ctx, input.CampaignID, u); err != nil {
			return nil, handleError(err)
		}
		c, err := e.Repo.GetCampaign(ctx, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-campaign",
		Method:      http.MethodPost,
		Path:        "/campaigns/{campaign_id}/close",
		Summary:     "Close campaign",
	}, func(ctx context.Context, input *campaignPath) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.CloseCampaign(ctx, input.CampaignID, u); err != nil {
			return nil, handleError(err)
		}
		c, err := e.Repo.GetCampaign(ctx, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "campaign-assignments",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/assignments",
		Summary:     "Allocation overview for a campaign",
	}, func(ctx context.Context, input *campaignPath) (*struct {
		Body []assignmentDTO `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.RequireRole(u, domain.RoleAdmin, domain.RoleSolver); err != nil {
			return nil, handleError(err)
		}
		rows, err := e.Repo.ListAssignmentsByCampaign(ctx, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		out, err := enrichAssignments(ctx, e, rows)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []assignmentDTO `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "campaign-overview",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/overview",
		Summary:     "Completion and overdue stats for a campaign",
	}, func(ctx context.Context, input *campaignPath) (*struct {
		Body engine.Overview `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		ov, err := e.AllocationOverview(ctx, input.CampaignID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Overview `json:"body"`
		}{Body: ov}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "campaign-matrix",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}/matrix",
		Summary:     "Auditor-by-line allocation matrix",
	}, func(ctx context.Context, input *campaignPath) (*struct {
		Body []engine.MatrixRow `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		rows, err := e.AllocationMatrix(ctx, input.CampaignID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.MatrixRow `json:"body"`
		}{Body: rows}, nil
	})
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-assignments",
		Method:      http.MethodGet,
		Path:        "/assignments",
		Summary:     "List visible assignments",
		Description: "Auditors see their own assignments; admins and solvers may filter by campaign.",
	}, func(ctx context.Context, input *struct {
		CampaignID int64  `query:"campaign_id"`
		Status     string `query:"status" enum:"pending,in_progress,done,"`
	}) (*struct {
		Body []assignmentDTO `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		rows, err := e.VisibleAssignments(ctx, input.CampaignID, input.Status, u)
		if err != nil {
			return nil, handleError(err)
		}
		out, err := enrichAssignments(ctx, e, rows)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []assignmentDTO `json:"body"`
		}{Body: out}, nil
	})

	type assignmentPath struct {
		AssignmentID int64 `path:"assignment_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/assignments/{assignment_id}",
		Summary:     "Get assignment",
	}, func(ctx context.Context, input *assignmentPath) (*struct {
		Body domain.Assignment `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetAssignment(ctx, input.AssignmentID)
		if err != nil {
			return nil, handleError(err)
		}
		if !auth.IsAdmin(u) && !u.HasRole(domain.RoleSolver) && a.AuditorID != u.ID {
			return nil, handleError(auth.ForbiddenError{Need: "assigned auditor or admin role"})
		}
		return &struct {
			Body domain.Assignment `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assignment-report",
		Method:      http.MethodGet,
		Path:        "/assignments/{assignment_id}/report",
		Summary:     "Checklist report for the latest execution",
	}, func(ctx context.Context, input *assignmentPath) (*struct {
		Body engine.Report `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.AssignmentReport(ctx, input.AssignmentID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Report `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "start-execution",
		Method:        http.MethodPost,
		Path:          "/assignments/{assignment_id}/start",
		Summary:       "Start executing an assignment",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *assignmentPath) (*struct {
		Body domain.Execution `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		ex, err := e.StartExecution(ctx, input.AssignmentID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Execution `json:"body"`
		}{Body: ex}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "override-assignment-status",
		Method:      http.MethodPost,
		Path:        "/assignments/{assignment_id}/status",
		Summary:     "Administrative status override",
	}, func(ctx context.Context, input *struct {
		AssignmentID int64 `path:"assignment_id"`
		Body         struct {
			Status string `json:"status" enum:"pending,in_progress,done"`
		}
	}) (*struct {
		Body domain.Assignment `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.OverrideAssignmentStatus(ctx, input.AssignmentID, input.Body.Status, u); err != nil {
			return nil, handleError(err)
		}
		a, err := e.Repo.GetAssignment(ctx, input.AssignmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Assignment `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assignment-executions",
		Method:      http.MethodGet,
		Path:        "/assignments/{assignment_id}/executions",
		Summary:     "List executions of an assignment",
	}, func(ctx context.Context, input *assignmentPath) (*struct {
		Body []domain.Execution `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetAssignment(ctx, input.AssignmentID)
		if err != nil {
			return nil, handleError(err)
		}
		if !auth.IsAdmin(u) && !u.HasRole(domain.RoleSolver) && a.AuditorID != u.ID {
			return nil, handleError(auth.ForbiddenError{Need: "assigned auditor or admin role"})
		}
		exs, err := e.Repo.ListExecutionsByAssignment(ctx, input.AssignmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Execution `json:"body"`
		}{Body: exs}, nil
	})
}

func registerExecutions(api huma.API, e engine.Engine) {
	type executionPath struct {
		ExecutionID int64 `path:"execution_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-execution",
		Method:      http.MethodGet,
		Path:        "/executions/{execution_id}",
		Summary:     "Get execution",
	}, func(ctx context.Context, input *executionPath) (*struct {
		Body domain.Execution `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		ex, err := e.Repo.GetExecution(ctx, input.ExecutionID)
		if err != nil {
			return nil, handleError(err)
		}
		if !auth.IsAdmin(u) && !u.HasRole(domain.RoleSolver) && ex.AuditorID != u.ID {
			return nil, handleError(auth.ForbiddenError{Need: "executing auditor or admin role"})
		}
		return &struct {
			Body domain.Execution `json:"body"`
		}{Body: ex}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "finish-execution",
		Method:      http.MethodPost,
		Path:        "/executions/{execution_id}/finish",
		Summary:     "Finish execution",
	}, func(ctx context.Context, input *executionPath) (*struct {
		Body domain.Execution `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.FinishExecution(ctx, input.ExecutionID, u); err != nil {
			return nil, handleError(err)
		}
		ex, err := e.Repo.GetExecution(ctx, input.ExecutionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Execution `json:"body"`
		}{Body: ex}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "submit-answer",
		Method:        http.MethodPost,
		Path:          "/executions/{execution_id}/answers",
		Summary:       "Submit checklist answer",
		Description:   "Upserts the answer for (execution, question). A NOK value opens an issue atomically with the answer write.",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ExecutionID int64 `path:"execution_id"`
		Body        struct {
			QuestionID  int64  `json:"question_id"`
			Value       string `json:"value" example:"NOK"`
			HasIssue    bool   `json:"has_issue,omitempty"`
			Note        string `json:"note,omitempty"`
			Picture     []byte `json:"picture,omitempty"`
			PictureName string `json:"picture_name,omitempty"`
		}
	}) (*struct {
		Body answerDTO `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.SubmitAnswer(ctx, engine.SubmitAnswerParams{
			ExecutionID:  input.ExecutionID,
			QuestionID:   input.Body.QuestionID,
			Value:        input.Body.Value,
			HasIssue:     input.Body.HasIssue,
			Note:         input.Body.Note,
			PictureBytes: input.Body.Picture,
			PictureName:  input.Body.PictureName,
		}, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body answerDTO `json:"body"`
		}{Body: toAnswerDTO(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-answers",
		Method:      http.MethodGet,
		Path:        "/executions/{execution_id}/answers",
		Summary:     "List answers",
	}, func(ctx context.Context, input *executionPath) (*struct {
		Body []domain.Answer `json:"body"`
	}, error) {
		if _, authErr := actingUser(ctx, e); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetExecution(ctx, input.ExecutionID); err != nil {
			return nil, handleError(err)
		}
		answers, err := e.Repo.ListAnswers(ctx, input.ExecutionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Answer `json:"body"`
		}{Body: answers}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execution-summary",
		Method:      http.MethodGet,
		Path:        "/executions/{execution_id}/summary",
		Summary:     "Answer summary",
	}, func(ctx context.Context, input *executionPath) (*struct {
		Body engine.Summary `json:"body"`
	}, error) {
		if _, authErr := actingUser(ctx, e); authErr != nil {
			return nil, authErr
		}
		s, err := e.GetSummary(ctx, input.ExecutionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Summary `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execution-issues",
		Method:      http.MethodGet,
		Path:        "/executions/{execution_id}/issues",
		Summary:     "Issues raised by an execution",
	}, func(ctx context.Context, input *executionPath) (*struct {
		Body []domain.Issue `json:"body"`
	}, error) {
		if _, authErr := actingUser(ctx, e); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetExecution(ctx, input.ExecutionID); err != nil {
			return nil, handleError(err)
		}
		issues, err := e.Repo.ListIssuesByExecution(ctx, input.ExecutionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Issue `json:"body"`
		}{Body: issues}, nil
	})
}

func registerIssues(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-issues",
		Method:      http.MethodGet,
		Path:        "/issues",
		Summary:     "List issues",
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status" enum:"open,assigned,in_progress,known_solution,implemented,resolved,closed,"`
		SolverID int64  `query:"solver_id"`
	}) (*struct {
		Body []issueDTO `json:"body"`
	}, error) {
		if _, authErr := actingUser(ctx, e); authErr != nil {
			return nil, authErr
		}
		issues, err := e.Repo.ListIssues(ctx, input.Status, input.SolverID)
		if err != nil {
			return nil, handleError(err)
		}
		out, err := enrichIssues(ctx, e, issues)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []issueDTO `json:"body"`
		}{Body: out}, nil
	})

	type issuePath struct {
		IssueID int64 `path:"issue_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-issue",
		Method:      http.MethodGet,
		Path:        "/issues/{issue_id}",
		Summary:     "Get issue",
	}, func(ctx context.Context, input *issuePath) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		if _, authErr := actingUser(ctx, e); authErr != nil {
			return nil, authErr
		}
		issue, err := e.Repo.GetIssue(ctx, input.IssueID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	})

	issueResult := func(issue domain.Issue, err error) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Issue `json:"body"`
		}{Body: issue}, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "assign-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{issue_id}/assign",
		Summary:     "Assign a solver",
	}, func(ctx context.Context, input *struct {
		IssueID int64 `path:"issue_id"`
		Body    struct {
			SolverID int64  `json:"solver_id"`
			Deadline string `json:"deadline,omitempty" example:"2026-04-10"`
			Note     string `json:"note,omitempty"`
		}
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		return issueResult(e.AssignSolver(ctx, input.IssueID, input.Body.SolverID, input.Body.Deadline, input.Body.Note, u))
	})

	huma.Register(api, huma.Operation{
		OperationID: "take-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{issue_id}/take",
		Summary:     "Take over an issue",
	}, func(ctx context.Context, input *issuePath) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		return issueResult(e.TakeOver(ctx, input.IssueID, u))
	})

	type noteBody struct {
		IssueID int64 `path:"issue_id"`
		Body    struct {
			Note string `json:"note,omitempty"`
		}
	}
	huma.Register(api, huma.Operation{
		OperationID: "issue-known-solution",
		Method:      http.MethodPost,
		Path:        "/issues/{issue_id}/known-solution",
		Summary:     "Record a known solution",
	}, func(ctx context.Context, input *noteBody) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		return issueResult(e.SetKnownSolution(ctx, input.IssueID, input.Body.Note, u))
	})

	huma.Register(api, huma.Operation{
		OperationID: "issue-implement",
		Method:      http.MethodPost,
		Path:        "/issues/{issue_id}/implement",
		Summary:     "Mark solution implemented",
	}, func(ctx context.Context, input *noteBody) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		return issueResult(e.Implement(ctx, input.IssueID, input.Body.Note, u))
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{issue_id}/resolve",
		Summary:     "Resolve issue",
	}, func(ctx context.Context, input *struct {
		IssueID int64 `path:"issue_id"`
		Body    struct {
			Note     string `json:"note,omitempty"`
			Deadline string `json:"deadline,omitempty"`
		}
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		return issueResult(e.Resolve(ctx, input.IssueID, input.Body.Note, input.Body.Deadline, u))
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{issue_id}/close",
		Summary:     "Close issue",
	}, func(ctx context.Context, input *issuePath) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		return issueResult(e.Close(ctx, input.IssueID, u))
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-issue-severity",
		Method:      http.MethodPatch,
		Path:        "/issues/{issue_id}/severity",
		Summary:     "Administrative severity edit",
	}, func(ctx context.Context, input *struct {
		IssueID int64 `path:"issue_id"`
		Body    struct {
			Severity string `json:"severity" enum:"low,medium,high"`
		}
	}) (*struct {
		Body domain.Issue `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		return issueResult(e.UpdateIssueSeverity(ctx, input.IssueID, input.Body.Severity, u))
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent audit-trail events",
	}, func(ctx context.Context, input *struct {
		EntityKind string `query:"entity_kind"`
		Limit      int    `query:"limit" default:"50" maximum:"500"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		u, authErr := actingUser(ctx, e)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.RequireRole(u, domain.RoleAdmin); err != nil {
			return nil, handleError(err)
		}
		evts, err := e.Repo.LatestEvents(ctx, input.Limit, input.EntityKind)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evts}, nil
	})
}
