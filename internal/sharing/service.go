// Package sharing issues, validates and revokes the tokenized links that let
// third parties suggest birthdays to a user.
package sharing

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"birthdays/internal/db"
	"birthdays/internal/metrics"
	"birthdays/internal/models"
	"birthdays/internal/validation"
)

// Link quotas and defaults.
const (
	MaxActiveLinks         = 5
	MaxLinksPerDay         = 3
	DefaultExpirationHours = 168
	MaxExpirationHours     = 720

	tokenBytes      = 32
	maxTokenRetries = 10
)

var (
	ErrActiveLinkLimit = errors.New("maximum number of active sharing links reached")
	ErrDailyLinkLimit  = errors.New("daily sharing link creation limit reached")
	ErrTokenGeneration = errors.New("failed to generate a unique sharing token")
)

// Store is the persistence the sharing service needs.
type Store interface {
	CreateSharingLink(ctx context.Context, link *models.SharingLink) error
	SharingTokenExists(ctx context.Context, token string) (bool, error)
	GetSharingLinkByToken(ctx context.Context, token string) (*models.SharingLink, error)
	ListSharingLinksByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.SharingLink, error)
	CountActiveSharingLinks(ctx context.Context, ownerID uuid.UUID, now time.Time) (int, error)
	CountSharingLinksCreatedSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error)
	DeactivateSharingLink(ctx context.Context, id uuid.UUID) error
	RevokeSharingLink(ctx context.Context, id, ownerID uuid.UUID) (*models.SharingLink, error)
	DeactivateExpiredSharingLinks(ctx context.Context, now time.Time) (int64, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// CreateLinkInput describes a link to create. ExpirationHours <= 0 means the default.
type CreateLinkInput struct {
	OwnerID         uuid.UUID
	Description     *string
	ExpirationHours int
}

// Quota is the result of a link-creation precheck.
type Quota struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason,omitempty"`
	ActiveLinks     int    `json:"active_links"`
	CreatedToday    int    `json:"created_today"`
	RemainingActive int    `json:"remaining_active"`
	RemainingToday  int    `json:"remaining_today"`
	limitErr        error
}

// Err returns the quota sentinel that blocked creation, or nil.
func (q *Quota) Err() error {
	return q.limitErr
}

// Service manages sharing links.
type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
	rand  func([]byte) (int, error)
}

// NewService creates a sharing service.
func NewService(store Store, log *zap.Logger) *Service {
	return &Service{
		store: store,
		log:   log.Named("sharing"),
		now:   time.Now,
		rand:  rand.Read,
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// GenerateToken returns a URL-safe token encoding 32 random bytes.
func (s *Service) GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := s.rand(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CanCreateSharingLink reports whether ownerID may create another link right now.
func (s *Service) CanCreateSharingLink(ctx context.Context, ownerID uuid.UUID) (*Quota, error) {
	now := s.now()

	active, err := s.store.CountActiveSharingLinks(ctx, ownerID, now)
	if err != nil {
		return nil, fmt.Errorf("count active links: %w", err)
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := s.store.CountSharingLinksCreatedSince(ctx, ownerID, midnight)
	if err != nil {
		return nil, fmt.Errorf("count links created today: %w", err)
	}

	q := &Quota{
		Allowed:         true,
		ActiveLinks:     active,
		CreatedToday:    today,
		RemainingActive: max(MaxActiveLinks-active, 0),
		RemainingToday:  max(MaxLinksPerDay-today, 0),
	}
	switch {
	case active >= MaxActiveLinks:
		q.Allowed = false
		q.limitErr = ErrActiveLinkLimit
		q.Reason = fmt.Sprintf("You can have at most %d active sharing links", MaxActiveLinks)
	case today >= MaxLinksPerDay:
		q.Allowed = false
		q.limitErr = ErrDailyLinkLimit
		q.Reason = fmt.Sprintf("You can create at most %d sharing links per day", MaxLinksPerDay)
	}
	return q, nil
}

// CreateSharingLink issues a new link for the owner, enforcing quotas.
func (s *Service) CreateSharingLink(ctx context.Context, in CreateLinkInput) (*models.SharingLink, error) {
	quota, err := s.CanCreateSharingLink(ctx, in.OwnerID)
	if err != nil {
		return nil, err
	}
	if !quota.Allowed {
		return nil, quota.Err()
	}

	hours := in.ExpirationHours
	if hours <= 0 {
		hours = DefaultExpirationHours
	}
	if hours > MaxExpirationHours {
		hours = MaxExpirationHours
	}

	now := s.now()
	link := &models.SharingLink{
		OwnerID:     in.OwnerID,
		Description: in.Description,
		ExpiresAt:   now.Add(time.Duration(hours) * time.Hour),
		CreatedAt:   now,
	}

	for attempt := 0; attempt < maxTokenRetries; attempt++ {
		token, err := s.GenerateToken()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
		}

		exists, err := s.store.SharingTokenExists(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("check token: %w", err)
		}
		if exists {
			continue
		}

		link.Token = token
		err = s.store.CreateSharingLink(ctx, link)
		if errors.Is(err, db.ErrDuplicateToken) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create sharing link: %w", err)
		}

		metrics.SharingLinksCreatedTotal.Inc()
		s.log.Info("sharing link created",
			zap.Stringer("link_id", link.ID),
			zap.Stringer("owner_id", link.OwnerID),
			zap.Time("expires_at", link.ExpiresAt),
		)
		return link, nil
	}

	s.log.Error("token generation exhausted retries", zap.Stringer("owner_id", in.OwnerID))
	return nil, ErrTokenGeneration
}

// ValidateSharingLink returns the usable link for token with its owner loaded, or nil.
// An expired link that is still flagged active is deactivated as a side effect.
func (s *Service) ValidateSharingLink(ctx context.Context, token string) (*models.SharingLink, error) {
	if !validation.ValidateToken(token) {
		return nil, nil
	}

	link, err := s.store.GetSharingLinkByToken(ctx, token)
	if errors.Is(err, db.ErrSharingLinkNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sharing link: %w", err)
	}

	if !link.IsActive {
		return nil, nil
	}

	if link.IsExpired(s.now()) {
		if err := s.store.DeactivateSharingLink(ctx, link.ID); err != nil {
			s.log.Warn("failed to deactivate expired link", zap.Stringer("link_id", link.ID), zap.Error(err))
		}
		return nil, nil
	}

	owner, err := s.store.GetUserByID(ctx, link.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("get link owner: %w", err)
	}
	link.Owner = owner
	return link, nil
}

// RevokeSharingLink deactivates a link owned by ownerID. Returns nil if not found or not owned.
func (s *Service) RevokeSharingLink(ctx context.Context, id, ownerID uuid.UUID) (*models.SharingLink, error) {
	link, err := s.store.RevokeSharingLink(ctx, id, ownerID)
	if errors.Is(err, db.ErrSharingLinkNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("revoke sharing link: %w", err)
	}
	metrics.SharingLinksDeactivatedTotal.WithLabelValues("revoked").Inc()
	s.log.Info("sharing link revoked", zap.Stringer("link_id", id), zap.Stringer("owner_id", ownerID))
	return link, nil
}

// DeactivateSharingLink flips a link inactive, for use by the security layer.
func (s *Service) DeactivateSharingLink(ctx context.Context, id uuid.UUID) error {
	return s.store.DeactivateSharingLink(ctx, id)
}

// CleanupExpiredLinks deactivates every active link past its expiry and returns how many changed.
func (s *Service) CleanupExpiredLinks(ctx context.Context) (int64, error) {
	n, err := s.store.DeactivateExpiredSharingLinks(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("deactivate expired links: %w", err)
	}
	if n > 0 {
		metrics.SharingLinksDeactivatedTotal.WithLabelValues("expired").Add(float64(n))
		s.log.Info("deactivated expired sharing links", zap.Int64("count", n))
	}
	return n, nil
}

// ListSharingLinks returns the owner's links, newest first, with pending counts.
func (s *Service) ListSharingLinks(ctx context.Context, ownerID uuid.UUID) ([]models.SharingLink, error) {
	links, err := s.store.ListSharingLinksByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sharing links: %w", err)
	}
	return links, nil
}

// CountRecentLinks counts links the owner created within window of now.
func (s *Service) CountRecentLinks(ctx context.Context, ownerID uuid.UUID, window time.Duration) (int, error) {
	return s.store.CountSharingLinksCreatedSince(ctx, ownerID, s.now().Add(-window))
}
