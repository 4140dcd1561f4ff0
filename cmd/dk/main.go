package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"deskline/internal/app"
	"deskline/internal/db"
	"deskline/internal/engine"
	"deskline/internal/engine/auth"
	"deskline/internal/repo"
	"deskline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "dk",
	Short: "Deskline CLI",
	Long: `Deskline runs a client submission desk: users file submissions, the admin
reviews them, and the two sides talk through per-submission threads.
Core concepts:
- Workspace: the .deskline directory holding the database; deskline.yml beside it configures policy.
- Submission: a titled item (document, todo list, update or message) owned by one user, with a review status of PENDING, REVIEWED or ACKNOWLEDGED.
- Thread: messages between the author and the admin; a user reply to a reviewed submission flips it back to PENDING so it shows up for review again.
- Todos: a checklist the admin writes onto a submission and only the author can tick off.
- Leads: contact-form entries from the public site.
- Event log: diary of changes, view with 'dk log tail'.`,
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
	viper.SetEnvPrefix("DESKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as-user", "", "act as this user id")
	rootCmd.PersistentFlags().Bool("as-admin", false, "act as the admin")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as-user", rootCmd.PersistentFlags().Lookup("as-user"))
	_ = viper.BindPFlag("as-admin", rootCmd.PersistentFlags().Lookup("as-admin"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(submissionCmd())
	rootCmd.AddCommand(leadCmd())
	rootCmd.AddCommand(postCmd())
	rootCmd.AddCommand(adminTokenCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(logCmd())
}

// cliIdentity resolves the acting identity from the persistent flags.
func cliIdentity() (auth.Identity, error) {
	if viper.GetBool("as-admin") {
		return auth.AdminIdentity(), nil
	}
	if userID := viper.GetString("as-user"); userID != "" {
		return auth.UserIdentity(userID), nil
	}
	return auth.Identity{}, fmt.Errorf("specify --as-user or --as-admin")
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	e, closeFn, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, e)
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if e.Config.Auth.JWTSecret == "" {
					return fmt.Errorf("DESKLINE_JWT_SECRET (or auth.jwt_secret) is required for bearer auth")
				}
				if e.Config.Auth.AdminPassword == "" {
					return fmt.Errorf("DESKLINE_ADMIN_PASSWORD (or auth.admin_password) is required for the admin surface")
				}
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret:     e.Config.Auth.JWTSecret,
						AdminPassword: e.Config.Auth.AdminPassword,
						CronSecret:    e.Config.Cron.Secret,
					},
				})
				if err != nil {
					return err
				}
				server.StartWebhookDispatcher(ctx, e)
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Deskline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userRegisterCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userRoleCmd())
	return user
}

func userRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <user-id> <USER|ADMIN>",
		Short: "Set a user's role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.SetUserRole(ctx, args[0], args[1], auth.AdminIdentity())
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
}

func userRegisterCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Register(ctx, name, email, password)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.ListUsers(ctx, auth.AdminIdentity())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Created"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func submissionCmd() *cobra.Command {
	sub := &cobra.Command{Use: "submission", Short: "Manage submissions"}
	sub.AddCommand(submissionCreateCmd())
	sub.AddCommand(submissionListCmd())
	sub.AddCommand(submissionShowCmd())
	sub.AddCommand(submissionStatusCmd())
	sub.AddCommand(submissionThreadCmd())
	sub.AddCommand(submissionReplyCmd())
	sub.AddCommand(submissionMessageCmd())
	sub.AddCommand(submissionMessagesCmd())
	sub.AddCommand(submissionTodoCmd())
	sub.AddCommand(submissionAttachCmd())
	return sub
}

func submissionCreateCmd() *cobra.Command {
	var title, subType, content, file string
	var items []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := cliIdentity()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.SubmissionCreateOptions{
					Title:   title,
					Type:    subType,
					Content: content,
					Items:   items,
				}
				if file != "" {
					data, err := os.ReadFile(file)
					if err != nil {
						return err
					}
					opts.FileName = filepath.Base(file)
					opts.FileData = data
				}
				s, err := e.CreateSubmission(ctx, opts, ident)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "submission title")
	cmd.Flags().StringVar(&subType, "type", "UPDATE", "submission type (DOCUMENT, TODO_LIST, UPDATE, MESSAGE)")
	cmd.Flags().StringVar(&content, "content", "", "submission content")
	cmd.Flags().StringSliceVar(&items, "item", nil, "todo item (repeatable)")
	cmd.Flags().StringVar(&file, "file", "", "file to attach (DOCUMENT)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func submissionListCmd() *cobra.Command {
	var status, author string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := cliIdentity()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListSubmissions(ctx, repo.SubmissionFilters{Status: status, AuthorID: author}, ident)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Type", "Status", "Thread", "Author", "Created"})
				for _, s := range items {
					thread := "open"
					if s.ThreadClosed {
						thread = "closed"
					}
					tw.AppendRow(table.Row{s.ID, s.Title, s.Type, s.Status, thread, s.AuthorID, s.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&author, "author", "", "author filter (admin only)")
	return cmd
}

func submissionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <submission-id>",
		Short: "Show submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := cliIdentity()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetSubmission(ctx, args[0], ident)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func submissionStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <submission-id> <status>",
		Short: "Set submission status (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := cliIdentity()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SetStatus(ctx, args[0], args[1], ident)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func submissionThreadCmd() *cobra.Command {
	var closeThread, openThread bool
	cmd := &cobra.Command{
		Use:   "thread <submission-id>",
		Short: "Close or reopen thread (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if closeThread == openThread {
				return fmt.Errorf("specify exactly one of --close or --open")
			}
			ident, err := cliIdentity()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SetThreadClosed(ctx, args[0], closeThread, ident)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().BoolVar(&closeThread, "close", false, "close the thread")
	cmd.Flags().BoolVar(&openThread, "open", false, "reopen the thread")
	return cmd
}

func submissionReplyCmd() *cobra.Command {
	var reply string
	cmd := &cobra.Command{
		Use:   "reply <submission-id>",
		Short: "Set admin reply (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := cliIdentity()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SetAdminReply(ctx, args[0], reply, ident)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&reply, "message", "", "reply text")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func submissionMessageCmd() *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:   "message <submission-id>",
		Short: "Post thread message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := cliIdentity()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.PostMessage(ctx, args[0], content, ident)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "message text")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func submissionMessagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages <submission-id>",
		Short: "List thread messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := cliIdentity()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				msgs, err := e.ListMessages(ctx, args[0], ident)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(msgs)
				}
				for _, m := range msgs {
					who := "user"
					if m.IsAdmin {
						who = "admin"
					}
					fmt.Printf("[%s] %s: %s\n", m.CreatedAt, who, m.Content)
				}
				return nil
			})
		},
	}
	return cmd
}

func submissionTodoCmd() *cobra.Command {
	todo := &cobra.Command{Use: "todo", Short: "Manage todo checklist"}

	var text string
	add := &cobra.Command{
		Use:   "add <submission-id>",
		Short: "Add todo item (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := cliIdentity()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AddTodoItem(ctx, args[0], text, ident)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	add.Flags().StringVar(&text, "text", "", "item text")
	_ = add.MarkFlagRequired("text")

	var completed bool
	toggle := &cobra.Command{
		Use:   "toggle <submission-id> <todo-id>",
		Short: "Set todo completion (author)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := cliIdentity()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ToggleTodoItem(ctx, args[0], args[1], completed, ident)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	toggle.Flags().BoolVar(&completed, "completed", false, "target completion state")
	_ = toggle.MarkFlagRequired("completed")

	list := &cobra.Command{
		Use:   "list <submission-id>",
		Short: "List todo items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := cliIdentity()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListTodoItems(ctx, args[0], ident)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				for _, t := range items {
					mark := "[ ]"
					if t.Completed {
						mark = "[x]"
					}
					fmt.Printf("%s %s (%s)\n", mark, t.Text, t.ID)
				}
				return nil
			})
		},
	}

	todo.AddCommand(add, toggle, list)
	return todo
}

func submissionAttachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach <submission-id> <file>",
		Short: "Attach a file to a submission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := cliIdentity()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := os.ReadFile(args[1])
				if err != nil {
					return err
				}
				att, err := e.SaveAttachment(ctx, args[0], filepath.Base(args[1]), "", data, ident)
				if err != nil {
					return err
				}
				return printJSONOrTable(att)
			})
		},
	}
	return cmd
}

func leadCmd() *cobra.Command {
	lead := &cobra.Command{Use: "lead", Short: "Manage leads"}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List leads (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListLeads(ctx, status, auth.AdminIdentity())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Status", "Created"})
				for _, l := range items {
					tw.AppendRow(table.Row{l.ID, l.Name, l.Email, l.Status, l.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "status filter")

	setStatus := &cobra.Command{
		Use:   "status <lead-id> <status>",
		Short: "Set lead status (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.SetLeadStatus(ctx, args[0], args[1], auth.AdminIdentity())
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}

	lead.AddCommand(list, setStatus)
	return lead
}

func postCmd() *cobra.Command {
	post := &cobra.Command{Use: "post", Short: "Manage blog posts"}

	var title, slug, body string
	var published bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create post (requires --as-user)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := cliIdentity()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				content := body
				if strings.HasPrefix(body, "@") {
					data, err := os.ReadFile(body[1:])
					if err != nil {
						return err
					}
					content = string(data)
				}
				p, err := e.CreatePost(ctx, engine.PostCreateOptions{
					Title:     title,
					Slug:      slug,
					Body:      content,
					Published: published,
				}, ident)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	create.Flags().StringVar(&title, "title", "", "post title")
	create.Flags().StringVar(&slug, "slug", "", "post slug (derived from title when empty)")
	create.Flags().StringVar(&body, "body", "", "markdown body, or @file to read from disk")
	create.Flags().BoolVar(&published, "published", false, "publish immediately")
	_ = create.MarkFlagRequired("title")

	list := &cobra.Command{
		Use:   "list",
		Short: "List posts (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListAllPosts(ctx, auth.AdminIdentity())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Slug", "Title", "Published", "Updated"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Slug, p.Title, p.Published, p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}

	post.AddCommand(create, list)
	return post
}

func adminTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Print the admin API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				token, err := e.AdminToken()
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	return cmd
}

func cleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CleanupExpired(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Event log"}
	var limit int
	var evtType, entityKind, entityID string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, limit, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	tail.Flags().IntVar(&limit, "limit", 50, "max events")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind filter")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id filter")
	logRoot.AddCommand(tail)
	return logRoot
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
