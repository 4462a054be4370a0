package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"birthdays/internal/models"
)

// Event counters. Registered on the default registry at package init.
var (
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "birthdays_submissions_total",
		Help: "Public birthday submissions by outcome",
	}, []string{"outcome"})

	SecurityDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "birthdays_security_denials_total",
		Help: "Requests denied by the security gates",
	}, []string{"gate", "reason"})

	SharingLinksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "birthdays_sharing_links_created_total",
		Help: "Sharing links issued",
	})

	SharingLinksDeactivatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "birthdays_sharing_links_deactivated_total",
		Help: "Sharing links deactivated by cause",
	}, []string{"cause"})

	ModerationActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "birthdays_moderation_actions_total",
		Help: "Moderation actions on submissions",
	}, []string{"action", "outcome"})

	EmailsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "birthdays_emails_total",
		Help: "Notification emails by type and outcome",
	}, []string{"type", "outcome"})

	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "birthdays_job_runs_total",
		Help: "Background job executions by status",
	}, []string{"job", "status"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "birthdays_job_duration_seconds",
		Help:    "Background job execution time",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)

var (
	submissionsByStatusDesc = prometheus.NewDesc(
		"birthdays_submissions",
		"Stored submissions by moderation status",
		[]string{"status"},
		nil,
	)
	activeLinksDesc = prometheus.NewDesc(
		"birthdays_active_sharing_links",
		"Sharing links that are active and unexpired",
		nil,
		nil,
	)
)

// StatsSource provides the aggregate counts exposed on each scrape.
type StatsSource interface {
	GetSubmissionStats(ctx context.Context, now time.Time) (*models.SubmissionStats, error)
}

// StatsCollector is a custom Prometheus collector that reads submission and
// link counts from the database on each scrape.
type StatsCollector struct {
	source StatsSource
	log    *zap.Logger
}

// NewStatsCollector creates a collector over source.
func NewStatsCollector(source StatsSource, log *zap.Logger) *StatsCollector {
	return &StatsCollector{source: source, log: log}
}

// Describe sends the metric descriptors to the channel.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- submissionsByStatusDesc
	ch <- activeLinksDesc
}

// Collect queries the database and emits current gauges.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := c.source.GetSubmissionStats(ctx, time.Now())
	if err != nil {
		c.log.Error("failed to collect submission stats", zap.Error(err))
		return
	}

	for status, n := range map[models.SubmissionStatus]int64{
		models.StatusPending:  stats.Pending,
		models.StatusImported: stats.Imported,
		models.StatusRejected: stats.Rejected,
	} {
		ch <- prometheus.MustNewConstMetric(submissionsByStatusDesc, prometheus.GaugeValue, float64(n), string(status))
	}
	ch <- prometheus.MustNewConstMetric(activeLinksDesc, prometheus.GaugeValue, float64(stats.ActiveLinks))
}

var initOnce sync.Once

// Init registers the stats collector. Must be called once at startup.
func Init(source StatsSource, log *zap.Logger) {
	initOnce.Do(func() {
		prometheus.MustRegister(NewStatsCollector(source, log.Named("metrics")))
	})
}
