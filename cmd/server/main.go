package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"birthdays/internal/config"
	"birthdays/internal/db"
	"birthdays/internal/email"
	"birthdays/internal/jobs"
	"birthdays/internal/logger"
	"birthdays/internal/metrics"
	"birthdays/internal/middleware"
	"birthdays/internal/ratelimit"
	"birthdays/internal/server"
	"birthdays/internal/sharing"
	"birthdays/internal/submissions"
)

const (
	limiterSweepInterval = 5 * time.Minute
	shutdownTimeout      = 10 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "server",
		Short:         "Birthday sharing service",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runServe,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server and background jobs",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			RunE:  runMigrate,
		},
		&cobra.Command{
			Use:       "maintenance <job>",
			Short:     "Run one background job immediately",
			Long:      "Run one background job immediately. Jobs: " + strings.Join(jobNames(), ", "),
			Args:      cobra.ExactArgs(1),
			ValidArgs: jobNames(),
			RunE:      runMaintenance,
		},
	)
	return root
}

func jobNames() []string {
	return []string{
		jobs.JobNotificationSweep,
		jobs.JobExpiredLinks,
		jobs.JobOldSubmissions,
		jobs.JobOrphanedData,
		jobs.JobDatabaseMaintenance,
		jobs.JobMetrics,
	}
}

// app holds the wired application components.
type app struct {
	cfg         *config.Config
	log         *zap.Logger
	db          *db.DB
	limiter     *ratelimit.Limiter
	links       *sharing.Service
	security    *middleware.Security
	submissions *submissions.Service
	notifier    *email.Notifier
	scheduler   *jobs.Scheduler
}

func bootstrap(ctx context.Context, migrate bool) (*app, error) {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, !cfg.IsDev())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if migrate {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Info("migrations completed")
	}

	rules, err := config.LoadSecurityRules(cfg.SecurityRulesFile)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("load security rules: %w", err)
	}

	limiter := ratelimit.New(log)
	links := sharing.NewService(database, log)
	notifier := email.NewNotifier(cfg, email.NewTransport(cfg, log), database, log)
	subs := submissions.NewService(database, links, notifier, log)

	a := &app{
		cfg:         cfg,
		log:         log,
		db:          database,
		limiter:     limiter,
		links:       links,
		security:    middleware.NewSecurity(limiter, links, database, rules, log),
		submissions: subs,
		notifier:    notifier,
	}
	a.scheduler = jobs.NewScheduler(jobs.Deps{
		Store:       database,
		Links:       links,
		Submissions: subs,
		Notifier:    notifier,
		Limiter:     limiter,
	}, log)
	return a, nil
}

func (a *app) close() {
	a.db.Close()
	_ = a.log.Sync()
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	metrics.Init(a.db, a.log)
	go a.limiter.Run(ctx, limiterSweepInterval)

	if a.cfg.JobsEnabled {
		a.scheduler.Start(ctx)
		defer a.scheduler.Stop()
	} else {
		a.log.Info("background jobs disabled")
	}

	srv := server.New(a.cfg, a.log)
	srv.RegisterRoutes(server.Services{
		Users:       a.db,
		DB:          a.db,
		Links:       a.links,
		Security:    a.security,
		Submissions: a.submissions,
		Notifier:    a.notifier,
		Scheduler:   a.scheduler,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	// Retry anything still queued before exit
	if n := a.notifier.FlushOutbox(shutdownCtx); n > 0 {
		a.log.Info("flushed queued emails", zap.Int("sent", n))
	}
	a.log.Info("server exited")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context(), true)
	if err != nil {
		return err
	}
	a.close()
	return nil
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.close()

	m, err := a.scheduler.RunMaintenanceJob(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d items, %dms)\n", m.Name, m.Status, m.ItemsProcessed, m.DurationMs)
	if m.Status != "success" {
		return fmt.Errorf("job %s failed: %s", m.Name, m.Error)
	}
	return nil
}
