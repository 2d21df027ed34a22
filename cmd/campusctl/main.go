// Package main provides campusctl, a command-line client for the campus data layer.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/garyellow/campuskit/internal/app"
	"github.com/garyellow/campuskit/internal/config"
	"github.com/garyellow/campuskit/internal/ctxutil"
	domerrors "github.com/garyellow/campuskit/internal/errors"
	"github.com/garyellow/campuskit/internal/filecache"
	"github.com/garyellow/campuskit/internal/labschedule"
	"github.com/garyellow/campuskit/internal/logger"
	"github.com/garyellow/campuskit/internal/schedule"
	"github.com/garyellow/campuskit/internal/scraper"
	"github.com/garyellow/campuskit/internal/service"
	"github.com/garyellow/campuskit/internal/storage"
	"github.com/garyellow/campuskit/migrations"
)

// Environment fallbacks for secrets that should not appear in shell history.
const (
	envAccessToken = "CAMPUS_ACCESS_TOKEN"
	envLabPassword = "LAB_PASSWORD"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, domerrors.UserMessage(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var token string

	root := &cobra.Command{
		Use:           "campusctl",
		Short:         "Query campus services through the local cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&token, "token", "", "campus API access token (default $"+envAccessToken+")")

	root.AddCommand(newPortalCmd())
	root.AddCommand(newScheduleCmd(&token))
	root.AddCommand(newServicesCmd(&token))
	root.AddCommand(newPersonalCmd(&token))
	root.AddCommand(newLabCmd())
	root.AddCommand(newCleanCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

// env holds the wired data layer for one invocation.
type env struct {
	cfg   *config.Config
	db    *storage.DB
	repos *app.Repositories
}

func (e *env) Close() error {
	return e.db.Close()
}

func loadEnv(ctx context.Context, stderr io.Writer) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewWithOptions(cfg.LogLevel, stderr, logger.Options{BetterStackToken: cfg.BetterStackToken})

	db, err := storage.New(ctx, cfg.SQLitePath())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	client, err := scraper.NewClient(app.ScraperOptions(cfg))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("scraper: %w", err)
	}
	repos := app.NewRepositories(cfg, client, filecache.New(cfg.CacheDir()), db, nil, log)
	return &env{cfg: cfg, db: db, repos: repos}, nil
}

// run loads the environment, runs fn with a request-scoped context and closes everything.
func run(cmd *cobra.Command, fn func(ctx context.Context, e *env) error) error {
	ctx := ctxutil.EnsureRequestID(cmd.Context())
	e, err := loadEnv(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()
	return fn(ctx, e)
}

func resolveToken(token string) (string, error) {
	if token = strings.TrimSpace(token); token != "" {
		return token, nil
	}
	if token = strings.TrimSpace(os.Getenv(envAccessToken)); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("--token or $%s is required", envAccessToken)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newPortalCmd() *cobra.Command {
	var category int
	cmd := &cobra.Command{
		Use:   "portal",
		Short: "List portal categories and their news",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, e *env) error {
				if category > 0 {
					items, err := e.repos.Portal.GetInfo(ctx, category)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), items)
				}
				categories, info, err := e.repos.Portal.GetAll(ctx)
				if err != nil {
					return err
				}
				for i, c := range categories {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%d items\n", c.ID, c.Name, len(info[i]))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&category, "category", 0, "show the news of one category")
	return cmd
}

func newScheduleCmd(token *string) *cobra.Command {
	var start, end string
	var refresh bool
	cmd := &cobra.Command{
		Use:   "schedule --start <YYYY-MM-DD> --end <YYYY-MM-DD>",
		Short: "Show the class schedule of a date range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			accessToken, err := resolveToken(*token)
			if err != nil {
				return err
			}
			from, err := time.ParseInLocation(time.DateOnly, start, time.Local)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			to, err := time.ParseInLocation(time.DateOnly, end, time.Local)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			return run(cmd, func(ctx context.Context, e *env) error {
				get := e.repos.Schedule.Get
				if refresh {
					get = e.repos.Schedule.Refresh
				}
				slots, err := get(ctx, accessToken, from, to)
				if err != nil {
					return err
				}
				for i, slot := range slots {
					if slot == nil {
						continue
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tslot %d\t%s\t%s\n",
						slot.StartDate.Format(time.DateTime), i%schedule.SlotsPerDay+1, slot.Title, slot.Address)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", time.Now().Format(time.DateOnly), "first day")
	cmd.Flags().StringVar(&end, "end", time.Now().AddDate(0, 0, 6).Format(time.DateOnly), "last day")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "skip the cache")
	return cmd
}

func newServicesCmd(token *string) *cobra.Command {
	var query string
	var interactive bool
	cmd := &cobra.Command{
		Use:   "services",
		Short: "Search campus services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			accessToken, err := resolveToken(*token)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, e *env) error {
				if !interactive {
					items, err := e.repos.Service.Search(ctx, accessToken, query)
					if err != nil {
						return err
					}
					printServices(cmd.OutOrStdout(), items)
					return nil
				}

				items, err := e.repos.Service.Get(ctx, accessToken)
				if err != nil {
					return err
				}
				queries := make(chan string)
				go func() {
					defer close(queries)
					scanner := bufio.NewScanner(cmd.InOrStdin())
					for scanner.Scan() {
						select {
						case queries <- scanner.Text():
						case <-ctx.Done():
							return
						}
					}
				}()
				for result := range service.Search(ctx, items, queries, config.SearchDebounce) {
					printServices(cmd.OutOrStdout(), result)
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "--")
				}
				return ctx.Err()
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "case-insensitive filter on name and text")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read queries from stdin, one per line")
	return cmd
}

func printServices(w io.Writer, items []service.Item) {
	if len(items) == 0 {
		_, _ = fmt.Fprintln(w, "no services")
		return
	}
	for _, item := range items {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", item.ID, item.Name, item.URL)
	}
}

func newPersonalCmd(token *string) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "personal",
		Short: "Show the signed-in student's profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			accessToken, err := resolveToken(*token)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, e *env) error {
				get := e.repos.Personal.Get
				if refresh {
					get = e.repos.Personal.Refresh
				}
				info, err := get(ctx, accessToken)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), info)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "skip the cache")
	return cmd
}

func newLabCmd() *cobra.Command {
	var username, password string
	var week int
	var refresh bool
	cmd := &cobra.Command{
		Use:   "lab --username <name>",
		Short: "Log in through SSO and show the lab course table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(username) == "" {
				return errors.New("--username is required")
			}
			if password == "" {
				password = os.Getenv(envLabPassword)
			}
			creds := labschedule.Credentials{Username: username, Password: password}
			return run(cmd, func(ctx context.Context, e *env) error {
				ctx = ctxutil.WithAccount(ctx, username)
				get := e.repos.LabSchedule.Get
				if refresh {
					get = e.repos.LabSchedule.Refresh
				}
				weeks, err := get(ctx, creds)
				if err != nil {
					return err
				}
				if week > 0 {
					cells, ok := weeks[week]
					if !ok {
						return fmt.Errorf("week %d not in the course table", week)
					}
					return printJSON(cmd.OutOrStdout(), cells)
				}
				return printJSON(cmd.OutOrStdout(), weeks)
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "SSO username")
	cmd.Flags().StringVar(&password, "password", "", "SSO password (default $"+envLabPassword+")")
	cmd.Flags().IntVar(&week, "week", 0, "show a single week")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "skip the cache")
	return cmd
}

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete every cached record and end the SSO session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, e *env) error {
				if err := e.repos.Clean(ctx); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "cache cleaned")
				return nil
			})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and print the schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(_ context.Context, e *env) error {
				version, err := migrations.Version(e.db.Conn())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, e.cfg.SQLitePath())
				return nil
			})
		},
	}
}
