// Package jobs runs periodic maintenance in the background.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"birthdays/internal/metrics"
	"birthdays/internal/models"
)

// Job names accepted by RunMaintenanceJob.
const (
	JobNotificationSweep   = "notification-sweep"
	JobExpiredLinks        = "expired-links"
	JobOldSubmissions      = "old-submissions"
	JobOrphanedData        = "orphaned-data"
	JobDatabaseMaintenance = "database-maintenance"
	JobMetrics             = "metrics"
)

// Retention windows used by the cleanup jobs.
const (
	RejectedRetentionDays = 30
	OrphanedLinkRetention = 30 * 24 * time.Hour
)

// ErrUnknownJob is returned by RunMaintenanceJob for an unrecognized job name.
var ErrUnknownJob = errors.New("unknown maintenance job")

// Store is the persistence the jobs touch directly.
type Store interface {
	DeleteOrphanedSharingLinks(ctx context.Context, cutoff time.Time) (int64, error)
	Maintain(ctx context.Context) error
	ListPendingSummaries(ctx context.Context) ([]models.PendingSummary, error)
	ListBirthdaysOn(ctx context.Context, month, day int) ([]models.Birthday, error)
	GetSubmissionStats(ctx context.Context, now time.Time) (*models.SubmissionStats, error)
}

// LinkCleaner deactivates expired sharing links.
type LinkCleaner interface {
	CleanupExpiredLinks(ctx context.Context) (int64, error)
}

// SubmissionCleaner removes old rejected submissions.
type SubmissionCleaner interface {
	CleanupOldRejectedSubmissions(ctx context.Context, daysOld int) int64
}

// Notifier sends the scheduled emails and drains the retry outbox.
type Notifier interface {
	FlushOutbox(ctx context.Context) int
	SendSummaryNotification(ctx context.Context, userID uuid.UUID, pending int) (bool, error)
	SendBirthdayReminder(ctx context.Context, userID uuid.UUID, birthdays []models.Birthday) (bool, error)
}

// LimiterStats reports the size of the in-memory rate limiter.
type LimiterStats interface {
	Len() int
}

// Deps groups the collaborators the scheduler drives.
type Deps struct {
	Store       Store
	Links       LinkCleaner
	Submissions SubmissionCleaner
	Notifier    Notifier
	Limiter     LimiterStats
}

// JobMetric records the outcome of a job's most recent run.
type JobMetric struct {
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	LastRun        time.Time `json:"last_run"`
	DurationMs     int64     `json:"duration_ms"`
	ItemsProcessed int64     `json:"items_processed"`
	Error          string    `json:"error,omitempty"`
}

// Status describes the scheduler.
type Status struct {
	Running  bool        `json:"running"`
	JobCount int         `json:"job_count"`
	Metrics  []JobMetric `json:"metrics"`
}

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) (int64, error)
}

// Scheduler runs each job on its own ticker.
type Scheduler struct {
	deps Deps
	log  *zap.Logger
	now  func() time.Time
	jobs []job

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	metrics map[string]JobMetric
}

// NewScheduler creates a scheduler over deps.
func NewScheduler(deps Deps, log *zap.Logger) *Scheduler {
	s := &Scheduler{
		deps:    deps,
		log:     log.Named("jobs"),
		now:     time.Now,
		metrics: make(map[string]JobMetric),
	}
	s.jobs = []job{
		{JobNotificationSweep, 30 * time.Second, s.notificationSweep},
		{JobExpiredLinks, time.Hour, s.expiredLinks},
		{JobOldSubmissions, 6 * time.Hour, s.oldSubmissions},
		{JobOrphanedData, 12 * time.Hour, s.orphanedData},
		{JobDatabaseMaintenance, 24 * time.Hour, s.databaseMaintenance},
		{JobMetrics, time.Hour, s.logMetrics},
	}
	return s
}

// SetClock overrides the time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start launches every job. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Info("scheduler already running")
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop cancels every job, waits for in-flight runs and clears recorded metrics.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.metrics = make(map[string]JobMetric)
	s.mu.Unlock()

	s.log.Info("scheduler stopped")
}

// Status reports whether the scheduler runs and the last result of each job.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.running,
		JobCount: len(s.jobs),
		Metrics:  make([]JobMetric, 0, len(s.metrics)),
	}
	for _, m := range s.metrics {
		st.Metrics = append(st.Metrics, m)
	}
	sort.Slice(st.Metrics, func(i, j int) bool { return st.Metrics[i].Name < st.Metrics[j].Name })
	return st
}

// RunMaintenanceJob runs the named job once and returns its result.
func (s *Scheduler) RunMaintenanceJob(ctx context.Context, name string) (JobMetric, error) {
	for _, j := range s.jobs {
		if j.name == name {
			return s.execute(ctx, j), nil
		}
	}
	return JobMetric{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

// JobNames lists the registered jobs in schedule order.
func (s *Scheduler) JobNames() []string {
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.name
	}
	return names
}

func (s *Scheduler) loop(ctx context.Context, j job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, j)
		}
	}
}

// execute runs j, recovering panics so one job cannot take down the others.
func (s *Scheduler) execute(ctx context.Context, j job) (m JobMetric) {
	start := s.now()
	m = JobMetric{Name: j.name, LastRun: start}

	defer func() {
		if r := recover(); r != nil {
			m.Status = "error"
			m.Error = fmt.Sprint(r)
			s.log.Error("job panicked", zap.String("job", j.name), zap.Any("panic", r))
		}

		elapsed := s.now().Sub(start)
		m.DurationMs = elapsed.Milliseconds()

		metrics.JobRunsTotal.WithLabelValues(j.name, m.Status).Inc()
		metrics.JobDuration.WithLabelValues(j.name).Observe(elapsed.Seconds())

		s.mu.Lock()
		s.metrics[j.name] = m
		s.mu.Unlock()
	}()

	items, err := j.run(ctx)
	m.ItemsProcessed = items
	if err != nil {
		m.Status = "error"
		m.Error = err.Error()
		s.log.Error("job failed", zap.String("job", j.name), zap.Error(err))
		return m
	}

	m.Status = "success"
	if items > 0 {
		s.log.Info("job completed", zap.String("job", j.name), zap.Int64("items", items))
	}
	return m
}

func (s *Scheduler) notificationSweep(ctx context.Context) (int64, error) {
	return int64(s.deps.Notifier.FlushOutbox(ctx)), nil
}

// Cleanup jobs log storage failures and report zero items so the next tick retries.
func (s *Scheduler) expiredLinks(ctx context.Context) (int64, error) {
	n, err := s.deps.Links.CleanupExpiredLinks(ctx)
	if err != nil {
		s.log.Error("failed to clean up expired sharing links", zap.Error(err))
		return 0, nil
	}
	return n, nil
}

func (s *Scheduler) oldSubmissions(ctx context.Context) (int64, error) {
	return s.deps.Submissions.CleanupOldRejectedSubmissions(ctx, RejectedRetentionDays), nil
}

func (s *Scheduler) orphanedData(ctx context.Context) (int64, error) {
	n, err := s.deps.Store.DeleteOrphanedSharingLinks(ctx, s.now().Add(-OrphanedLinkRetention))
	if err != nil {
		s.log.Error("failed to delete orphaned sharing links", zap.Error(err))
		return 0, nil
	}
	return n, nil
}

// databaseMaintenance refreshes planner statistics, then sends the daily digests and
// today's birthday reminders.
func (s *Scheduler) databaseMaintenance(ctx context.Context) (int64, error) {
	var errs []error
	if err := s.deps.Store.Maintain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("maintain: %w", err))
	}

	summaries, err := s.sendSummaries(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	reminders, err := s.sendReminders(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	return summaries + reminders, errors.Join(errs...)
}

func (s *Scheduler) sendSummaries(ctx context.Context) (int64, error) {
	pending, err := s.deps.Store.ListPendingSummaries(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending summaries: %w", err)
	}

	var sent int64
	for _, p := range pending {
		ok, err := s.deps.Notifier.SendSummaryNotification(ctx, p.UserID, p.PendingCount)
		if err != nil {
			s.log.Warn("summary notification failed", zap.Stringer("user_id", p.UserID), zap.Error(err))
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func (s *Scheduler) sendReminders(ctx context.Context) (int64, error) {
	today := s.now()
	birthdays, err := s.deps.Store.ListBirthdaysOn(ctx, int(today.Month()), today.Day())
	if err != nil {
		return 0, fmt.Errorf("list birthdays on %s: %w", today.Format("01-02"), err)
	}

	byOwner := make(map[uuid.UUID][]models.Birthday)
	var owners []uuid.UUID
	for _, b := range birthdays {
		if _, ok := byOwner[b.OwnerID]; !ok {
			owners = append(owners, b.OwnerID)
		}
		byOwner[b.OwnerID] = append(byOwner[b.OwnerID], b)
	}

	var sent int64
	for _, owner := range owners {
		ok, err := s.deps.Notifier.SendBirthdayReminder(ctx, owner, byOwner[owner])
		if err != nil {
			s.log.Warn("birthday reminder failed", zap.Stringer("user_id", owner), zap.Error(err))
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func (s *Scheduler) logMetrics(ctx context.Context) (int64, error) {
	stats, err := s.deps.Store.GetSubmissionStats(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("get submission stats: %w", err)
	}

	rateLimitEntries := 0
	if s.deps.Limiter != nil {
		rateLimitEntries = s.deps.Limiter.Len()
	}

	s.log.Info("system metrics",
		zap.Int64("pending_submissions", stats.Pending),
		zap.Int64("imported_submissions", stats.Imported),
		zap.Int64("rejected_submissions", stats.Rejected),
		zap.Int64("active_sharing_links", stats.ActiveLinks),
		zap.Int("rate_limit_entries", rateLimitEntries),
	)
	return 0, nil
}
