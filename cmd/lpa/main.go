package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Halamis85/lpa-web-v2/internal/config"
	"github.com/Halamis85/lpa-web-v2/internal/db"
	"github.com/Halamis85/lpa-web-v2/internal/domain"
	"github.com/Halamis85/lpa-web-v2/internal/engine"
	"github.com/Halamis85/lpa-web-v2/internal/migrate"
	"github.com/Halamis85/lpa-web-v2/internal/notify"
	"github.com/Halamis85/lpa-web-v2/internal/server"
	"github.com/Halamis85/lpa-web-v2/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "lpa",
	Short: "Layered Process Audit CLI",
	Long: `lpa coordinates layered process audits across production lines.
A monthly campaign distributes auditors and checklist categories over
lines; auditors work through checklists question by question; a failing
answer raises a non-conformance issue that a solver drives to closure.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LPA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Int64("user-id", 0, "acting user id (0 acts as the local system admin)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(lineCmd())
	rootCmd.AddCommand(categoryCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(questionCmd())
	rootCmd.AddCommand(campaignCmd())
	rootCmd.AddCommand(assignmentCmd())
	rootCmd.AddCommand(executionCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(apikeyCmd())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// actingUser resolves --user-id against the database. Id 0 is the
// local system admin used for bootstrap; it exists only on this side
// of the CLI, never as a row.
func actingUser(ctx context.Context, e engine.Engine) (domain.User, error) {
	id := viper.GetInt64("user-id")
	if id == 0 {
		return domain.User{ID: 0, Name: "system", Roles: []domain.Role{domain.RoleAdmin}, IsActive: true}, nil
	}
	return e.Repo.GetUser(ctx, id)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	e := engine.New(conn, cfg)
	if cfg.SMTP.Host != "" {
		e.Notify = notify.SMTP{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}
	}
	if cfg.Storage.Dir != "" {
		e.Store = storage.Local{Dir: cfg.Storage.Dir}
	}
	return fn(ctx, e)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printJSONOrTable(v any) error {
	return printJSON(v)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fmt.Printf("workspace initialized; config at %s, database at %s\n", path, db.Path(workspace))
				return nil
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				fmt.Println("database is up to date")
				return nil
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				secret := os.Getenv("LPA_JWT_SECRET")
				if secret == "" && e.Config != nil {
					secret = e.Config.Server.JWTSecret
				}
				if secret == "" {
					return fmt.Errorf("LPA_JWT_SECRET (or server.jwt_secret in lpa.yml) is required for bearer auth")
				}
				if addr == "" && e.Config != nil {
					addr = e.Config.Server.Addr
				}
				allowLegacy := false
				if e.Config != nil {
					allowLegacy = e.Config.Server.AllowLegacyUserHeader
				}
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret:             secret,
						AllowLegacyUserHeader: allowLegacy,
					},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-cmd.Context().Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving LPA API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userActiveCmd("deactivate", false))
	user.AddCommand(userActiveCmd("activate", true))
	return user
}

func userCreateCmd() *cobra.Command {
	var name, email, roles string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || email == "" || roles == "" {
				return fmt.Errorf("--name, --email and --roles required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				u, err := e.CreateUser(ctx, domain.User{
					Name:  name,
					Email: email,
					Roles: domain.ParseRoles(roles),
				}, actor)
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&roles, "roles", "", "comma-joined roles (admin,auditor,solver)")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Roles", "Active"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, domain.JoinRoles(u.Roles), u.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func userActiveCmd(verb string, active bool) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   verb,
		Short: capitalize(verb) + " user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				return e.SetUserActive(ctx, id, active, actor)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "user id")
	return cmd
}

func lineCmd() *cobra.Command {
	line := &cobra.Command{Use: "line", Short: "Manage production lines"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create line",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				l, err := e.CreateLine(ctx, name, actor)
				if err != nil {
					return err
				}
				return printJSON(l)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "line name")
	list := &cobra.Command{
		Use:   "list",
		Short: "List lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				lines, err := e.Repo.ListLines(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(lines)
			})
		},
	}
	line.AddCommand(create, list)
	return line
}

func categoryCmd() *cobra.Command {
	cat := &cobra.Command{Use: "category", Short: "Manage checklist categories"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create category",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				c, err := e.CreateCategory(ctx, name, actor)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "category name")
	list := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cats, err := e.Repo.ListCategories(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(cats)
			})
		},
	}
	cat.AddCommand(create, list)
	return cat
}

func templateCmd() *cobra.Command {
	tpl := &cobra.Command{Use: "template", Short: "Manage checklist templates"}
	var name string
	var lineID int64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create template for a line",
		RunE: func(cmd *cobra.Command, args []string) error {
			if lineID == 0 {
				return fmt.Errorf("--line required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				t, err := e.CreateTemplate(ctx, name, lineID, actor)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "template name")
	create.Flags().Int64Var(&lineID, "line", 0, "line id")
	list := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ts, err := e.Repo.ListTemplates(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(ts)
			})
		},
	}
	tpl.AddCommand(create, list)
	return tpl
}

func questionCmd() *cobra.Command {
	q := &cobra.Command{Use: "question", Short: "Manage checklist questions"}
	var templateID, categoryID, id int64
	var text string
	var position int
	add := &cobra.Command{
		Use:   "add",
		Short: "Add question to a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if templateID == 0 || categoryID == 0 {
				return fmt.Errorf("--template and --category required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				created, err := e.AddQuestion(ctx, domain.ChecklistQuestion{
					TemplateID: templateID,
					CategoryID: categoryID,
					Text:       text,
					Position:   position,
				}, actor)
				if err != nil {
					return err
				}
				return printJSON(created)
			})
		},
	}
	add.Flags().Int64Var(&templateID, "template", 0, "template id")
	add.Flags().Int64Var(&categoryID, "category", 0, "category id")
	add.Flags().StringVar(&text, "text", "", "question text")
	add.Flags().IntVar(&position, "position", 1, "position within (template, category)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List questions of a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if templateID == 0 {
				return fmt.Errorf("--template required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				qs, err := e.Repo.ListQuestions(ctx, templateID)
				if err != nil {
					return err
				}
				return printJSONOrTable(qs)
			})
		},
	}
	list.Flags().Int64Var(&templateID, "template", 0, "template id")

	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete question",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				return e.DeleteQuestion(ctx, id, actor)
			})
		},
	}
	del.Flags().Int64Var(&id, "id", 0, "question id")
	q.AddCommand(add, list, del)
	return q
}

func campaignCmd() *cobra.Command {
	c := &cobra.Command{Use: "campaign", Short: "Manage audit campaigns"}
	c.AddCommand(campaignCreateCmd())
	c.AddCommand(campaignListCmd())
	c.AddCommand(campaignGenerateCmd())
	c.AddCommand(campaignGenerateCurrentCmd())
	c.AddCommand(campaignStatusCmd("activate"))
	c.AddCommand(campaignStatusCmd("close"))
	c.AddCommand(campaignAssignmentsCmd())
	return c
}

func campaignCreateCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				c, err := e.CreateCampaign(ctx, period, actor)
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&period, "period", "", `campaign period, e.g. "2026-03"`)
	return cmd
}

func campaignListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cs, err := e.Repo.ListCampaigns(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Period", "Status", "Created"})
				for _, c := range cs {
					tw.AppendRow(table.Row{c.ID, c.Period, c.Status, c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func campaignGenerateCmd() *cobra.Command {
	var id int64
	var window bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the allocation planner for a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				var strategy = e.WindowStrategy()
				if !window {
					strategy = nil
				}
				res, err := e.GenerateAssignments(ctx, id, strategy, actor)
				if err != nil {
					return err
				}
				fmt.Printf("created %d assignments (notified %d, failed %d)\n",
					len(res.Assignments), res.NotifiedCount, res.NotifyFailedCount)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "campaign id")
	cmd.Flags().BoolVar(&window, "window", false, "randomized deadline window instead of fixed day")
	return cmd
}

func campaignGenerateCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-current",
		Short: "Create and plan the current month's campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				c, res, err := e.GenerateCurrent(ctx, actor)
				if err != nil {
					return err
				}
				fmt.Printf("campaign %s: created %d assignments (notified %d, failed %d)\n",
					c.Period, len(res.Assignments), res.NotifiedCount, res.NotifyFailedCount)
				return nil
			})
		},
	}
}

func campaignStatusCmd(verb string) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   verb,
		Short: capitalize(verb) + " campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				if verb == "activate" {
					return e.ActivateCampaign(ctx, id, actor)
				}
				return e.CloseCampaign(ctx, id, actor)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "campaign id")
	return cmd
}

func campaignAssignmentsCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "assignments",
		Short: "Allocation overview for a campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.Repo.ListAssignmentsByCampaign(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Line", "Auditor", "Category", "Deadline", "Status"})
				for _, a := range rows {
					line, _ := e.Repo.GetLine(ctx, a.LineID)
					auditor, _ := e.Repo.GetUser(ctx, a.AuditorID)
					cat, _ := e.Repo.GetCategory(ctx, a.CategoryID)
					tw.AppendRow(table.Row{a.ID, line.Name, auditor.Name, cat.Name, a.Deadline, a.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "campaign id")
	return cmd
}

func assignmentCmd() *cobra.Command {
	a := &cobra.Command{Use: "assignment", Short: "Work with assignments"}
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the acting user's assignments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				rows, err := e.Repo.ListAssignmentsByAuditor(ctx, actor.ID, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Campaign", "Line", "Deadline", "Status"})
				for _, row := range rows {
					tw.AppendRow(table.Row{row.ID, row.CampaignID, row.LineID, row.Deadline, row.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status")

	var id int64
	start := &cobra.Command{
		Use:   "start",
		Short: "Start executing an assignment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				ex, err := e.StartExecution(ctx, id, actor)
				if err != nil {
					return err
				}
				return printJSON(ex)
			})
		},
	}
	start.Flags().Int64Var(&id, "id", 0, "assignment id")

	var overrideID int64
	var overrideStatus string
	override := &cobra.Command{
		Use:   "set-status",
		Short: "Administrative status override",
		RunE: func(cmd *cobra.Command, args []string) error {
			if overrideID == 0 || overrideStatus == "" {
				return fmt.Errorf("--id and --status required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				return e.OverrideAssignmentStatus(ctx, overrideID, overrideStatus, actor)
			})
		},
	}
	override.Flags().Int64Var(&overrideID, "id", 0, "assignment id")
	override.Flags().StringVar(&overrideStatus, "status", "", "pending, in_progress or done")

	a.AddCommand(list, start, override)
	return a
}

func executionCmd() *cobra.Command {
	ex := &cobra.Command{Use: "execution", Short: "Work with executions"}
	var id, questionID int64
	var value, note, picture string

	answer := &cobra.Command{
		Use:   "answer",
		Short: "Submit a checklist answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 || questionID == 0 {
				return fmt.Errorf("--id and --question required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				params := engine.SubmitAnswerParams{
					ExecutionID: id,
					QuestionID:  questionID,
					Value:       value,
					Note:        note,
				}
				if picture != "" {
					data, err := os.ReadFile(picture)
					if err != nil {
						return err
					}
					params.PictureBytes = data
					params.PictureName = picture
				}
				res, err := e.SubmitAnswer(ctx, params, actor)
				if err != nil {
					return err
				}
				if res.PictureFailed {
					fmt.Fprintln(os.Stderr, "warning: picture could not be stored")
				}
				return printJSON(res)
			})
		},
	}
	answer.Flags().Int64Var(&id, "id", 0, "execution id")
	answer.Flags().Int64Var(&questionID, "question", 0, "question id")
	answer.Flags().StringVar(&value, "value", "", "OK or NOK")
	answer.Flags().StringVar(&note, "note", "", "note; becomes the issue description on NOK")
	answer.Flags().StringVar(&picture, "picture", "", "path to a photo attachment")

	var finishID int64
	finish := &cobra.Command{
		Use:   "finish",
		Short: "Finish an execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			if finishID == 0 {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				return e.FinishExecution(ctx, finishID, actor)
			})
		},
	}
	finish.Flags().Int64Var(&finishID, "id", 0, "execution id")

	var summaryID int64
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Answer summary for an execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			if summaryID == 0 {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetSummary(ctx, summaryID)
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	summary.Flags().Int64Var(&summaryID, "id", 0, "execution id")

	var answerID int64
	var out string
	pictureCmd := &cobra.Command{
		Use:   "picture",
		Short: "Download the photo attached to an answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if answerID == 0 {
				return fmt.Errorf("--answer required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ans, err := e.Repo.GetAnswer(ctx, answerID)
				if err != nil {
					return err
				}
				if ans.PictureRef == nil {
					return fmt.Errorf("answer %d has no picture", answerID)
				}
				local, ok := e.Store.(storage.Local)
				if !ok {
					return fmt.Errorf("no local storage directory configured")
				}
				f, err := local.Open(*ans.PictureRef)
				if err != nil {
					return err
				}
				defer f.Close()
				dst := os.Stdout
				if out != "" && out != "-" {
					dst, err = os.Create(out)
					if err != nil {
						return err
					}
					defer dst.Close()
				}
				_, err = io.Copy(dst, f)
				return err
			})
		},
	}
	pictureCmd.Flags().Int64Var(&answerID, "answer", 0, "answer id")
	pictureCmd.Flags().StringVar(&out, "out", "-", "output file, or - for stdout")

	ex.AddCommand(answer, finish, summary, pictureCmd)
	return ex
}

func issueCmd() *cobra.Command {
	iss := &cobra.Command{Use: "issue", Short: "Work with non-conformance issues"}
	iss.AddCommand(issueListCmd())
	iss.AddCommand(issueAssignCmd())
	iss.AddCommand(issueTransitionCmd("take", "Take over an issue"))
	iss.AddCommand(issueNoteCmd("known-solution", "Record a known solution"))
	iss.AddCommand(issueNoteCmd("implement", "Mark solution implemented"))
	iss.AddCommand(issueResolveCmd())
	iss.AddCommand(issueTransitionCmd("close", "Close an issue"))
	return iss
}

func issueListCmd() *cobra.Command {
	var status string
	var solverID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				issues, err := e.Repo.ListIssues(ctx, status, solverID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(issues)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Execution", "Severity", "Status", "Solver", "Deadline", "Description"})
				for _, i := range issues {
					solver := ""
					if i.SolverID != nil {
						if u, err := e.Repo.GetUser(ctx, *i.SolverID); err == nil {
							solver = u.Name
						}
					}
					deadline := ""
					if i.Deadline != nil {
						deadline = *i.Deadline
					}
					tw.AppendRow(table.Row{i.ID, i.ExecutionID, i.Severity, i.Status, solver, deadline, i.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().Int64Var(&solverID, "solver", 0, "filter by solver id")
	return cmd
}

func issueAssignCmd() *cobra.Command {
	var id, solverID int64
	var deadline, note string
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a solver",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 || solverID == 0 {
				return fmt.Errorf("--id and --solver required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				issue, err := e.AssignSolver(ctx, id, solverID, deadline, note, actor)
				if err != nil {
					return err
				}
				return printJSON(issue)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "issue id")
	cmd.Flags().Int64Var(&solverID, "solver", 0, "solver user id")
	cmd.Flags().StringVar(&deadline, "deadline", "", "resolution deadline (2026-04-10)")
	cmd.Flags().StringVar(&note, "note", "", "note")
	return cmd
}

func issueTransitionCmd(verb, short string) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   verb,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				var issue domain.Issue
				switch verb {
				case "take":
					issue, err = e.TakeOver(ctx, id, actor)
				case "close":
					issue, err = e.Close(ctx, id, actor)
				}
				if err != nil {
					return err
				}
				return printJSON(issue)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "issue id")
	return cmd
}

func issueNoteCmd(verb, short string) *cobra.Command {
	var id int64
	var note string
	cmd := &cobra.Command{
		Use:   verb,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				var issue domain.Issue
				switch verb {
				case "known-solution":
					issue, err = e.SetKnownSolution(ctx, id, note, actor)
				case "implement":
					issue, err = e.Implement(ctx, id, note, actor)
				}
				if err != nil {
					return err
				}
				return printJSON(issue)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "issue id")
	cmd.Flags().StringVar(&note, "note", "", "note")
	return cmd
}

func issueResolveCmd() *cobra.Command {
	var id int64
	var note, deadline string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				issue, err := e.Resolve(ctx, id, note, deadline, actor)
				if err != nil {
					return err
				}
				return printJSON(issue)
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "issue id")
	cmd.Flags().StringVar(&note, "note", "", "note")
	cmd.Flags().StringVar(&deadline, "deadline", "", "updated deadline")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	var limit int
	var kind string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evts, err := e.Repo.LatestEvents(ctx, limit, kind)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "ID", "Actor"})
				for _, evt := range evts {
					tw.AppendRow(table.Row{evt.TS, evt.Type, evt.EntityKind, evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 50, "number of events")
	tail.Flags().StringVar(&kind, "entity-kind", "", "filter by entity kind")
	log.AddCommand(tail)
	return log
}

func tokenCmd() *cobra.Command {
	token := &cobra.Command{Use: "token", Short: "Bearer tokens"}
	var userID int64
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return fmt.Errorf("--user required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				secret := os.Getenv("LPA_JWT_SECRET")
				if secret == "" && e.Config != nil {
					secret = e.Config.Server.JWTSecret
				}
				if secret == "" {
					return fmt.Errorf("LPA_JWT_SECRET (or server.jwt_secret in lpa.yml) is required")
				}
				u, err := e.Repo.GetUser(ctx, userID)
				if err != nil {
					return err
				}
				tok, err := server.IssueToken(secret, u, ttl)
				if err != nil {
					return err
				}
				fmt.Println(tok)
				return nil
			})
		},
	}
	issue.Flags().Int64Var(&userID, "user", 0, "user id")
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	token.AddCommand(issue)
	return token
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "API keys"}
	var userID int64
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return fmt.Errorf("--user required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				raw, _, err := e.CreateAPIKey(ctx, userID, name, actor)
				if err != nil {
					return err
				}
				fmt.Println(raw)
				fmt.Fprintln(os.Stderr, "store this key now; it cannot be recovered later")
				return nil
			})
		},
	}
	create.Flags().Int64Var(&userID, "user", 0, "user id")
	create.Flags().StringVar(&name, "name", "", "key label")

	var listUserID int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listUserID == 0 {
				return fmt.Errorf("--user required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				keys, err := e.ListAPIKeys(ctx, listUserID, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().Int64Var(&listUserID, "user", 0, "user id")

	var revokeUserID int64
	var keyID string
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if revokeUserID == 0 || keyID == "" {
				return fmt.Errorf("--user and --id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := actingUser(ctx, e)
				if err != nil {
					return err
				}
				return e.RevokeAPIKey(ctx, revokeUserID, keyID, actor)
			})
		},
	}
	revoke.Flags().Int64Var(&revokeUserID, "user", 0, "user id")
	revoke.Flags().StringVar(&keyID, "id", "", "key id")

	key.AddCommand(create, list, revoke)
	return key
}
