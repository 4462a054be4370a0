package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"birthdays/internal/db"
	"birthdays/internal/models"
)

// MemoryStore is an in-memory implementation of the persistence gateway used by service tests.
// It returns the same sentinel errors as the Postgres gateway.
type MemoryStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*models.User
	links       map[uuid.UUID]*models.SharingLink
	submissions map[uuid.UUID]*models.BirthdaySubmission
	birthdays   map[uuid.UUID]*models.Birthday
	prefs       map[uuid.UUID]*models.NotificationPreference

	// Errors forces the named method to fail with the given error.
	Errors map[string]error

	Maintained int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[uuid.UUID]*models.User),
		links:       make(map[uuid.UUID]*models.SharingLink),
		submissions: make(map[uuid.UUID]*models.BirthdaySubmission),
		birthdays:   make(map[uuid.UUID]*models.Birthday),
		prefs:       make(map[uuid.UUID]*models.NotificationPreference),
		Errors:      make(map[string]error),
	}
}

// FailOn makes method return err until cleared with FailOn(method, nil).
func (m *MemoryStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Errors, method)
		return
	}
	m.Errors[method] = err
}

func (m *MemoryStore) fail(method string) error {
	return m.Errors[method]
}

// Users

func (m *MemoryStore) UpsertUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertUser"); err != nil {
		return err
	}
	for _, u := range m.users {
		if u.Sub == user.Sub {
			if user.Email != "" {
				u.Email = user.Email
			}
			if user.Name != "" {
				u.Name = user.Name
			}
			u.UpdatedAt = time.Now()
			*user = *u
			return nil
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

// AddUser stores a user and returns it with an ID assigned.
func (m *MemoryStore) AddUser(email, name string) *models.User {
	user := &models.User{Sub: "sub-" + uuid.NewString(), Email: email, Name: name}
	_ = m.UpsertUser(context.Background(), user)
	return user
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetUserByID"); err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, db.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserBySub(ctx context.Context, sub string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Sub == sub {
			cp := *u
			return &cp, nil
		}
	}
	return nil, db.ErrUserNotFound
}

// Sharing links

func (m *MemoryStore) CreateSharingLink(ctx context.Context, link *models.SharingLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateSharingLink"); err != nil {
		return err
	}
	for _, l := range m.links {
		if l.Token == link.Token {
			return db.ErrDuplicateToken
		}
	}
	link.ID = uuid.New()
	link.IsActive = true
	cp := *link
	cp.Owner = nil
	m.links[link.ID] = &cp
	return nil
}

func (m *MemoryStore) SharingTokenExists(ctx context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("SharingTokenExists"); err != nil {
		return false, err
	}
	for _, l := range m.links {
		if l.Token == token {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) GetSharingLinkByToken(ctx context.Context, token string) (*models.SharingLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetSharingLinkByToken"); err != nil {
		return nil, err
	}
	for _, l := range m.links {
		if l.Token == token {
			cp := *l
			return &cp, nil
		}
	}
	return nil, db.ErrSharingLinkNotFound
}

func (m *MemoryStore) GetSharingLinkByID(ctx context.Context, id uuid.UUID) (*models.SharingLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return nil, db.ErrSharingLinkNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) ListSharingLinksByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.SharingLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListSharingLinksByOwner"); err != nil {
		return nil, err
	}
	var links []models.SharingLink
	for _, l := range m.links {
		if l.OwnerID != ownerID {
			continue
		}
		cp := *l
		for _, s := range m.submissions {
			if s.SharingLinkID == l.ID && s.Status == models.StatusPending {
				cp.PendingCount++
			}
		}
		links = append(links, cp)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].CreatedAt.After(links[j].CreatedAt) })
	return links, nil
}

func (m *MemoryStore) CountActiveSharingLinks(ctx context.Context, ownerID uuid.UUID, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CountActiveSharingLinks"); err != nil {
		return 0, err
	}
	count := 0
	for _, l := range m.links {
		if l.OwnerID == ownerID && l.IsUsable(now) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CountSharingLinksCreatedSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CountSharingLinksCreatedSince"); err != nil {
		return 0, err
	}
	count := 0
	for _, l := range m.links {
		if l.OwnerID == ownerID && !l.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) DeactivateSharingLink(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeactivateSharingLink"); err != nil {
		return err
	}
	l, ok := m.links[id]
	if !ok {
		return db.ErrSharingLinkNotFound
	}
	l.IsActive = false
	return nil
}

func (m *MemoryStore) RevokeSharingLink(ctx context.Context, id, ownerID uuid.UUID) (*models.SharingLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("RevokeSharingLink"); err != nil {
		return nil, err
	}
	l, ok := m.links[id]
	if !ok || l.OwnerID != ownerID {
		return nil, db.ErrSharingLinkNotFound
	}
	l.IsActive = false
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) DeactivateExpiredSharingLinks(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeactivateExpiredSharingLinks"); err != nil {
		return 0, err
	}
	var n int64
	for _, l := range m.links {
		if l.IsActive && !l.ExpiresAt.After(now) {
			l.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteOrphanedSharingLinks(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteOrphanedSharingLinks"); err != nil {
		return 0, err
	}
	var n int64
	for id, l := range m.links {
		if l.IsActive || !l.ExpiresAt.Before(cutoff) || m.hasPendingLocked(id) {
			continue
		}
		delete(m.links, id)
		for sid, s := range m.submissions {
			if s.SharingLinkID == id {
				delete(m.submissions, sid)
			}
		}
		n++
	}
	return n, nil
}

func (m *MemoryStore) hasPendingLocked(linkID uuid.UUID) bool {
	for _, s := range m.submissions {
		if s.SharingLinkID == linkID && s.Status == models.StatusPending {
			return true
		}
	}
	return false
}

// Submissions

func (m *MemoryStore) CreateSubmission(ctx context.Context, s *models.BirthdaySubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateSubmission"); err != nil {
		return err
	}
	if _, ok := m.links[s.SharingLinkID]; !ok {
		return db.ErrSharingLinkNotFound
	}
	s.ID = uuid.New()
	s.Status = models.StatusPending
	cp := *s
	m.submissions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) CountSubmissionsForLinkSince(ctx context.Context, linkID uuid.UUID, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CountSubmissionsForLinkSince"); err != nil {
		return 0, err
	}
	count := 0
	for _, s := range m.submissions {
		if s.SharingLinkID == linkID && !s.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CountSubmissionsFromIPSince(ctx context.Context, ip string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CountSubmissionsFromIPSince"); err != nil {
		return 0, err
	}
	count := 0
	for _, s := range m.submissions {
		if s.SubmitterIP == ip && !s.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) ListRecentSubmissionsForLink(ctx context.Context, linkID uuid.UUID, since time.Time) ([]models.BirthdaySubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListRecentSubmissionsForLink"); err != nil {
		return nil, err
	}
	var subs []models.BirthdaySubmission
	for _, s := range m.submissions {
		if s.SharingLinkID == linkID && !s.CreatedAt.Before(since) {
			subs = append(subs, *s)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	return subs, nil
}

// ownedPendingLocked returns the submission if it is PENDING and its link belongs to ownerID.
func (m *MemoryStore) ownedPendingLocked(id, ownerID uuid.UUID) (*models.BirthdaySubmission, bool) {
	s, ok := m.submissions[id]
	if !ok || s.Status != models.StatusPending {
		return nil, false
	}
	l, ok := m.links[s.SharingLinkID]
	if !ok || l.OwnerID != ownerID {
		return nil, false
	}
	return s, true
}

func (m *MemoryStore) GetPendingSubmission(ctx context.Context, id, ownerID uuid.UUID) (*models.BirthdaySubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetPendingSubmission"); err != nil {
		return nil, err
	}
	s, ok := m.ownedPendingLocked(id, ownerID)
	if !ok {
		return nil, db.ErrSubmissionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) ListPendingSubmissions(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.BirthdaySubmission, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListPendingSubmissions"); err != nil {
		return nil, 0, err
	}
	var all []models.BirthdaySubmission
	for _, s := range m.submissions {
		l, ok := m.links[s.SharingLinkID]
		if !ok || l.OwnerID != ownerID || s.Status != models.StatusPending {
			continue
		}
		cp := *s
		cp.LinkDescription = l.Description
		all = append(all, cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *MemoryStore) ImportSubmission(ctx context.Context, submissionID, ownerID uuid.UUID, birthday *models.Birthday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ImportSubmission"); err != nil {
		return err
	}
	s, ok := m.ownedPendingLocked(submissionID, ownerID)
	if !ok {
		return db.ErrSubmissionNotFound
	}
	s.Status = models.StatusImported
	m.insertBirthdayLocked(birthday)
	return nil
}

func (m *MemoryStore) RejectSubmission(ctx context.Context, submissionID, ownerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("RejectSubmission"); err != nil {
		return err
	}
	s, ok := m.ownedPendingLocked(submissionID, ownerID)
	if !ok {
		return db.ErrSubmissionNotFound
	}
	s.Status = models.StatusRejected
	return nil
}

func (m *MemoryStore) DeleteRejectedSubmissionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeleteRejectedSubmissionsBefore"); err != nil {
		return 0, err
	}
	var n int64
	for id, s := range m.submissions {
		if s.Status == models.StatusRejected && s.CreatedAt.Before(cutoff) {
			delete(m.submissions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) GetSubmissionStats(ctx context.Context, now time.Time) (*models.SubmissionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetSubmissionStats"); err != nil {
		return nil, err
	}
	var stats models.SubmissionStats
	for _, s := range m.submissions {
		switch s.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusImported:
			stats.Imported++
		case models.StatusRejected:
			stats.Rejected++
		}
	}
	for _, l := range m.links {
		if l.IsUsable(now) {
			stats.ActiveLinks++
		}
	}
	return &stats, nil
}

func (m *MemoryStore) ListPendingSummaries(ctx context.Context) ([]models.PendingSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListPendingSummaries"); err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]int)
	for _, s := range m.submissions {
		if s.Status != models.StatusPending {
			continue
		}
		if l, ok := m.links[s.SharingLinkID]; ok {
			counts[l.OwnerID]++
		}
	}
	summaries := make([]models.PendingSummary, 0, len(counts))
	for owner, n := range counts {
		summaries = append(summaries, models.PendingSummary{UserID: owner, PendingCount: n})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UserID.String() < summaries[j].UserID.String()
	})
	return summaries, nil
}

// Submission returns a copy of a stored submission regardless of status.
func (m *MemoryStore) Submission(id uuid.UUID) (*models.BirthdaySubmission, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// Birthdays

func (m *MemoryStore) insertBirthdayLocked(b *models.Birthday) {
	b.ID = uuid.New()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	cp := *b
	m.birthdays[b.ID] = &cp
}

func (m *MemoryStore) CreateBirthday(ctx context.Context, b *models.Birthday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateBirthday"); err != nil {
		return err
	}
	m.insertBirthdayLocked(b)
	return nil
}

func (m *MemoryStore) ListBirthdaysByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Birthday, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListBirthdaysByOwner"); err != nil {
		return nil, err
	}
	var out []models.Birthday
	for _, b := range m.birthdays {
		if b.OwnerID == ownerID {
			out = append(out, *b)
		}
	}
	sortBirthdays(out)
	return out, nil
}

func (m *MemoryStore) ListBirthdaysOn(ctx context.Context, month, day int) ([]models.Birthday, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListBirthdaysOn"); err != nil {
		return nil, err
	}
	var out []models.Birthday
	for _, b := range m.birthdays {
		if b.Date.Month == month && b.Date.Day == day {
			out = append(out, *b)
		}
	}
	sortBirthdays(out)
	return out, nil
}

func sortBirthdays(bs []models.Birthday) {
	sort.Slice(bs, func(i, j int) bool {
		a, b := bs[i], bs[j]
		if a.Date.Month != b.Date.Month {
			return a.Date.Month < b.Date.Month
		}
		if a.Date.Day != b.Date.Day {
			return a.Date.Day < b.Date.Day
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

// Notification preferences

func (m *MemoryStore) GetNotificationPreference(ctx context.Context, userID uuid.UUID) (*models.NotificationPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetNotificationPreference"); err != nil {
		return nil, err
	}
	p, ok := m.prefs[userID]
	if !ok {
		return nil, db.ErrPreferenceNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpsertNotificationPreference(ctx context.Context, p *models.NotificationPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpsertNotificationPreference"); err != nil {
		return err
	}
	cp := *p
	m.prefs[p.UserID] = &cp
	return nil
}

// Maintenance

func (m *MemoryStore) Maintain(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("Maintain"); err != nil {
		return err
	}
	m.Maintained++
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail("Ping")
}
