package middleware

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"birthdays/internal/config"
	"birthdays/internal/db"
	"birthdays/internal/logger"
	"birthdays/internal/metrics"
	"birthdays/internal/models"
	"birthdays/internal/ratelimit"
	"birthdays/internal/sharing"
	"birthdays/internal/validation"
)

// Severity ranks suspicious activity. Only SeverityHigh blocks a request.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	}
	return "none"
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Heuristic thresholds.
const (
	PersistentHourlyLimit = 20
	PersistentDailyLimit  = 100

	rapidLinkWindow    = 5 * time.Minute
	rapidLinkThreshold = 3
	suspiciousWindow   = time.Hour
	duplicateThreshold = 2 // earlier identical submissions before the current one is high severity
	sameEmailThreshold = 5
)

// Denial reasons shown to callers.
const (
	ReasonIPRateLimit       = "Too many requests from your network. Please try again later."
	ReasonLinkRateLimit     = "This sharing link is receiving too many submissions. Please try again later."
	ReasonHourlyLimit       = "Too many submissions in the last hour. Please try again later."
	ReasonDailyLimit        = "Daily submission limit reached. Please try again tomorrow."
	ReasonSuspiciousLinks   = "Unusual link creation activity detected. Please try again later."
	ReasonLinkDisabled      = "This sharing link has been disabled due to suspicious activity."
	ReasonSecurityCheckFail = "Security check failed. Please try again later."
)

var defaultBotSignatures = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget", "python", "requests",
	"httpclient", "go-http-client", "java/", "okhttp", "headless", "phantomjs", "selenium",
}

var defaultContentPatterns = []string{
	`(?i)<\s*script`,
	`(?i)<\s*/\s*script`,
	`(?i)<\s*iframe`,
	`(?i)javascript\s*:`,
	`(?i)vbscript\s*:`,
	`(?i)data\s*:\s*text/html`,
	`(?i)\bon\w+\s*=`,
	`(?i)eval\s*\(`,
	`(?i)document\.(cookie|write)`,
}

// SuspiciousActivity is the verdict of the abuse heuristics.
type SuspiciousActivity struct {
	Suspicious bool     `json:"suspicious"`
	Severity   Severity `json:"severity"`
	Reasons    []string `json:"reasons,omitempty"`
}

func (a *SuspiciousActivity) flag(sev Severity, reason string) {
	a.Suspicious = true
	a.Reasons = append(a.Reasons, reason)
	if sev > a.Severity {
		a.Severity = sev
	}
}

// SecurityResult is the outcome of a security gate.
type SecurityResult struct {
	Allowed    bool
	Reason     string
	RetryAfter int // seconds, 0 when not applicable
	Quota      *sharing.Quota
	Activity   *SuspiciousActivity
}

func deny(reason string, retryAfter int) *SecurityResult {
	return &SecurityResult{Reason: reason, RetryAfter: retryAfter}
}

// LinkRequest describes an attempt to create a sharing link.
type LinkRequest struct {
	OwnerID   uuid.UUID
	IP        string
	UserAgent string
}

// SubmissionRequest describes a public submission attempt.
type SubmissionRequest struct {
	Token     string
	IP        string
	UserAgent string
	Input     validation.SubmissionInput
}

// LinkGate is the subset of the sharing service the security layer needs.
type LinkGate interface {
	CanCreateSharingLink(ctx context.Context, ownerID uuid.UUID) (*sharing.Quota, error)
	CountRecentLinks(ctx context.Context, ownerID uuid.UUID, window time.Duration) (int, error)
	DeactivateSharingLink(ctx context.Context, id uuid.UUID) error
}

// SecurityStore exposes submission history for persistent limits and heuristics.
type SecurityStore interface {
	GetSharingLinkByToken(ctx context.Context, token string) (*models.SharingLink, error)
	CountSubmissionsFromIPSince(ctx context.Context, ip string, since time.Time) (int, error)
	ListRecentSubmissionsForLink(ctx context.Context, linkID uuid.UUID, since time.Time) ([]models.BirthdaySubmission, error)
}

// Security gates link creation and public submissions.
type Security struct {
	limiter         *ratelimit.Limiter
	links           LinkGate
	store           SecurityStore
	log             *zap.Logger
	now             func() time.Time
	botSignatures   []string
	contentPatterns []*regexp.Regexp
}

// NewSecurity creates the security gates. rules may be nil.
func NewSecurity(limiter *ratelimit.Limiter, links LinkGate, store SecurityStore, rules *config.SecurityRules, log *zap.Logger) *Security {
	s := &Security{
		limiter:       limiter,
		links:         links,
		store:         store,
		log:           log.Named("security"),
		now:           time.Now,
		botSignatures: append([]string(nil), defaultBotSignatures...),
	}

	patterns := append([]string(nil), defaultContentPatterns...)
	if rules != nil {
		for _, sig := range rules.BotSignatures {
			if sig = strings.ToLower(strings.TrimSpace(sig)); sig != "" {
				s.botSignatures = append(s.botSignatures, sig)
			}
		}
		patterns = append(patterns, rules.ContentPatterns...)
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			s.log.Warn("ignoring invalid content pattern", zap.String("pattern", p), zap.Error(err))
			continue
		}
		s.contentPatterns = append(s.contentPatterns, re)
	}
	return s
}

// SetClock replaces the time source.
func (s *Security) SetClock(now func() time.Time) {
	s.now = now
}

// IsBotUserAgent reports whether ua is empty or matches a known automation signature.
func (s *Security) IsBotUserAgent(ua string) bool {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return true
	}
	for _, sig := range s.botSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

// HasSuspiciousContent reports whether text matches a script-injection pattern.
func (s *Security) HasSuspiciousContent(text string) bool {
	for _, re := range s.contentPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// failSecure runs a gate, converting errors and panics into a generic denial.
func (s *Security) failSecure(gate string, fn func() (*SecurityResult, error)) (res *SecurityResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("security check panicked", zap.String("gate", gate), zap.Any("panic", r))
			res = deny(ReasonSecurityCheckFail, 0)
		}
		if res != nil && !res.Allowed {
			metrics.SecurityDenialsTotal.WithLabelValues(gate, res.Reason).Inc()
		}
	}()

	res, err := fn()
	if err != nil {
		s.log.Error("security check failed", zap.String("gate", gate), zap.Error(err))
		return deny(ReasonSecurityCheckFail, 0)
	}
	return res
}

// CheckSharingLinkRateLimit gates sharing link creation.
func (s *Security) CheckSharingLinkRateLimit(ctx context.Context, req LinkRequest) *SecurityResult {
	return s.failSecure("link_creation", func() (*SecurityResult, error) {
		if rl := s.limiter.CheckSubmissionIP(req.IP); !rl.Allowed {
			s.log.Warn("link creation rate limited", zap.String("ip", req.IP), zap.Int("retry_after", rl.RetryAfter))
			return deny(ReasonIPRateLimit, rl.RetryAfter), nil
		}

		quota, err := s.links.CanCreateSharingLink(ctx, req.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("quota check: %w", err)
		}
		if !quota.Allowed {
			return &SecurityResult{Reason: quota.Reason, Quota: quota}, nil
		}

		activity := &SuspiciousActivity{}
		if s.IsBotUserAgent(req.UserAgent) {
			activity.flag(SeverityMedium, "automated user agent")
		}
		recent, err := s.links.CountRecentLinks(ctx, req.OwnerID, rapidLinkWindow)
		if err != nil {
			return nil, fmt.Errorf("recent link count: %w", err)
		}
		if recent >= rapidLinkThreshold {
			activity.flag(SeverityHigh, fmt.Sprintf("%d links created within %s", recent, rapidLinkWindow))
		}

		if activity.Suspicious {
			s.log.Warn("suspicious link creation",
				zap.Stringer("owner_id", req.OwnerID),
				zap.Stringer("severity", activity.Severity),
				zap.Strings("reasons", activity.Reasons),
			)
		}
		if activity.Severity == SeverityHigh {
			return &SecurityResult{Reason: ReasonSuspiciousLinks, Quota: quota, Activity: activity}, nil
		}

		return &SecurityResult{Allowed: true, Quota: quota, Activity: activity}, nil
	})
}

// CheckSubmissionSecurity gates a public submission. A high-severity verdict
// deactivates the sharing link.
func (s *Security) CheckSubmissionSecurity(ctx context.Context, req SubmissionRequest) *SecurityResult {
	return s.failSecure("submission", func() (*SecurityResult, error) {
		if rl := s.limiter.CheckSubmissionIP(req.IP); !rl.Allowed {
			s.log.Warn("submission rate limited by ip", zap.String("ip", req.IP), zap.Int("retry_after", rl.RetryAfter))
			return deny(ReasonIPRateLimit, rl.RetryAfter), nil
		}

		if rl := s.limiter.CheckSubmissionLink(req.Token); !rl.Allowed {
			s.log.Warn("submission rate limited by link", zap.Int("retry_after", rl.RetryAfter))
			return deny(ReasonLinkRateLimit, rl.RetryAfter), nil
		}

		if res, err := s.checkPersistentLimit(ctx, req.IP); err != nil || res != nil {
			return res, err
		}

		activity, link, err := s.detectSuspiciousSubmission(ctx, req)
		if err != nil {
			return nil, err
		}

		if activity.Suspicious {
			s.log.Warn("suspicious submission",
				zap.String("ip", req.IP),
				zap.Stringer("severity", activity.Severity),
				zap.Strings("reasons", activity.Reasons),
				logger.Email("submitter_email", req.Input.SubmitterEmail),
			)
		}

		if activity.Severity == SeverityHigh && link != nil {
			if err := s.links.DeactivateSharingLink(ctx, link.ID); err != nil {
				s.log.Error("failed to deactivate suspicious link", zap.Stringer("link_id", link.ID), zap.Error(err))
			} else {
				metrics.SharingLinksDeactivatedTotal.WithLabelValues("suspicious").Inc()
				s.log.Warn("sharing link deactivated", zap.Stringer("link_id", link.ID))
			}
			return &SecurityResult{Reason: ReasonLinkDisabled, Activity: activity}, nil
		}

		return &SecurityResult{Allowed: true, Activity: activity}, nil
	})
}

// checkPersistentLimit counts stored submissions from ip, so limits survive restarts.
// Returns nil when the request may proceed.
func (s *Security) checkPersistentLimit(ctx context.Context, ip string) (*SecurityResult, error) {
	now := s.now()

	hourly, err := s.store.CountSubmissionsFromIPSince(ctx, ip, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("hourly submission count: %w", err)
	}
	if hourly > PersistentHourlyLimit {
		return deny(ReasonHourlyLimit, int(time.Hour.Seconds())), nil
	}

	daily, err := s.store.CountSubmissionsFromIPSince(ctx, ip, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("daily submission count: %w", err)
	}
	if daily > PersistentDailyLimit {
		return deny(ReasonDailyLimit, int((24 * time.Hour).Seconds())), nil
	}
	return nil, nil
}

// detectSuspiciousSubmission scores a submission. The returned link is nil when the
// token does not resolve, in which case only request-level signals are checked.
func (s *Security) detectSuspiciousSubmission(ctx context.Context, req SubmissionRequest) (*SuspiciousActivity, *models.SharingLink, error) {
	activity := &SuspiciousActivity{}

	if s.IsBotUserAgent(req.UserAgent) {
		activity.flag(SeverityMedium, "automated user agent")
	}
	if s.HasSuspiciousContent(req.Input.Name) {
		activity.flag(SeverityMedium, "suspicious content in name")
	}

	link, err := s.store.GetSharingLinkByToken(ctx, req.Token)
	if errors.Is(err, db.ErrSharingLinkNotFound) {
		// Unknown tokens are rejected by the submission service
		return activity, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get sharing link: %w", err)
	}

	recent, err := s.store.ListRecentSubmissionsForLink(ctx, link.ID, s.now().Add(-suspiciousWindow))
	if err != nil {
		return nil, nil, fmt.Errorf("recent submissions: %w", err)
	}

	name := strings.ToLower(strings.TrimSpace(validation.Sanitize(req.Input.Name)))
	date, dateErr := validation.ValidateDate(req.Input.Date, s.now())
	email := strings.ToLower(strings.TrimSpace(req.Input.SubmitterEmail))

	var duplicates, sameEmail int
	for _, sub := range recent {
		if dateErr == "" && strings.ToLower(sub.Name) == name && sub.Date.SameMonthDay(date) {
			duplicates++
		}
		if email != "" && sub.SubmitterEmail != nil && strings.ToLower(*sub.SubmitterEmail) == email {
			sameEmail++
		}
	}

	if duplicates >= duplicateThreshold {
		activity.flag(SeverityHigh, fmt.Sprintf("%d identical submissions within %s", duplicates, suspiciousWindow))
	}
	if sameEmail >= sameEmailThreshold {
		activity.flag(SeverityHigh, fmt.Sprintf("%d submissions from the same email within %s", sameEmail, suspiciousWindow))
	}

	return activity, link, nil
}
