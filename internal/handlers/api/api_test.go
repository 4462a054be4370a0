package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"birthdays/internal/config"
	"birthdays/internal/email"
	"birthdays/internal/middleware"
	"birthdays/internal/models"
	"birthdays/internal/ratelimit"
	"birthdays/internal/sharing"
	"birthdays/internal/submissions"
	"birthdays/internal/testutil"
)

const browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/126.0 Safari/537.36"

type apiFixture struct {
	app   *fiber.App
	store *testutil.MemoryStore
	links *sharing.Service
	cfg   *config.Config
}

type envelope struct {
	Status     string          `json:"status"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Errors     []string        `json:"errors"`
	RetryAfter int             `json:"retry_after"`
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	cfg := &config.Config{
		BaseURL:           "https://birthdays.example.com",
		SiteTitle:         "Birthdays",
		EmailTransport:    "console",
		UnsubscribeSecret: "test-secret",
		AuthUserHeader:    "X-User-Sub",
		AuthEmailHeader:   "X-User-Email",
		AuthNameHeader:    "X-User-Name",
	}

	store := testutil.NewMemoryStore()
	links := sharing.NewService(store, log)
	security := middleware.NewSecurity(ratelimit.New(log), links, store, nil, log)
	notifier := email.NewNotifier(cfg, email.NewConsoleTransport(log), store, log)
	subs := submissions.NewService(store, links, notifier, log)

	auth := middleware.NewAuthMiddleware(store, cfg.AuthUserHeader, cfg.AuthEmailHeader, cfg.AuthNameHeader, log)
	linkHandler := NewSharingLinkHandler(links, security, cfg, log)
	shareHandler := NewShareHandler(links, security, subs, log)
	moderationHandler := NewModerationHandler(subs, log)
	birthdayHandler := NewBirthdayHandler(subs, log)
	preferenceHandler := NewPreferenceHandler(notifier, log)
	healthHandler := NewHealthHandler(store, nil, log)

	app := fiber.New()
	app.Get("/healthz", healthHandler.Check)
	app.Get("/unsubscribe", preferenceHandler.Unsubscribe)
	app.Get("/jobz", healthHandler.Jobs)
	app.Get("/api/share/:token", auth.OptionalAuth, shareHandler.Status)
	app.Post("/api/share/:token/submissions", shareHandler.Submit)
	app.Get("/api/sharing-links", auth.RequireAuth, linkHandler.List)
	app.Get("/api/sharing-links/quota", auth.RequireAuth, linkHandler.Quota)
	app.Post("/api/sharing-links", auth.RequireAuth, linkHandler.Create)
	app.Delete("/api/sharing-links/:id", auth.RequireAuth, linkHandler.Revoke)
	app.Get("/api/submissions", auth.RequireAuth, moderationHandler.ListPending)
	app.Post("/api/submissions/bulk-import", auth.RequireAuth, moderationHandler.BulkImport)
	app.Post("/api/submissions/bulk-reject", auth.RequireAuth, moderationHandler.BulkReject)
	app.Get("/api/submissions/:id/duplicates", auth.RequireAuth, moderationHandler.Duplicates)
	app.Post("/api/submissions/:id/import", auth.RequireAuth, moderationHandler.Import)
	app.Post("/api/submissions/:id/reject", auth.RequireAuth, moderationHandler.Reject)
	app.Get("/api/birthdays", auth.RequireAuth, birthdayHandler.List)
	app.Post("/api/birthdays", auth.RequireAuth, birthdayHandler.Create)
	app.Get("/api/notification-preferences", auth.RequireAuth, preferenceHandler.Get)
	app.Put("/api/notification-preferences", auth.RequireAuth, preferenceHandler.Update)

	return &apiFixture{app: app, store: store, links: links, cfg: cfg}
}

// do sends a request as sub (anonymous when empty) and decodes the envelope.
func (f *apiFixture) do(t *testing.T, method, path, sub string, body any) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", browserUA)
	if sub != "" {
		req.Header.Set("X-User-Sub", sub)
		req.Header.Set("X-User-Email", sub+"@example.com")
		req.Header.Set("X-User-Name", "User "+sub)
	}

	resp, err := f.app.Test(req)
	require.NoError(t, err)

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (f *apiFixture) createLink(t *testing.T, sub string) sharingLinkResponse {
	t.Helper()
	resp, env := f.do(t, http.MethodPost, "/api/sharing-links", sub, map[string]any{
		"description":      "Family",
		"expiration_hours": 24,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, env.Error)
	return decode[sharingLinkResponse](t, env)
}

func (f *apiFixture) submit(t *testing.T, token, name, date string) (*http.Response, envelope) {
	t.Helper()
	return f.do(t, http.MethodPost, "/api/share/"+token+"/submissions", "", map[string]string{
		"name": name,
		"date": date,
	})
}

func TestRequireAuth(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{"/api/sharing-links", "/api/submissions", "/api/birthdays", "/api/notification-preferences"} {
		resp, env := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, path)
		assert.Equal(t, "error", env.Status)
	}
}

func TestSharingLinks_CreateListRevoke(t *testing.T) {
	f := newAPIFixture(t)

	link := f.createLink(t, "alice")
	assert.Len(t, link.Token, 43)
	assert.Equal(t, "https://birthdays.example.com/share/"+link.Token, link.URL)
	require.NotNil(t, link.Description)
	assert.Equal(t, "Family", *link.Description)
	assert.True(t, link.IsActive)

	resp, env := f.do(t, http.MethodGet, "/api/sharing-links", "alice", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]sharingLinkResponse](t, env), 1)

	// Someone else cannot see or revoke it
	resp, env = f.do(t, http.MethodGet, "/api/sharing-links", "bob", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]sharingLinkResponse](t, env))

	resp, _ = f.do(t, http.MethodDelete, "/api/sharing-links/"+link.ID.String(), "bob", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, env = f.do(t, http.MethodDelete, "/api/sharing-links/"+link.ID.String(), "alice", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.False(t, decode[sharingLinkResponse](t, env).IsActive)

	resp, env = f.do(t, http.MethodGet, "/api/share/"+link.Token, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.False(t, decode[shareStatus](t, env).Valid)
}

func TestSharingLinks_CreateValidation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"too long", map[string]any{"expiration_hours": sharing.MaxExpirationHours + 1}},
		{"negative", map[string]any{"expiration_hours": -1}},
		{"long description", map[string]any{"description": strings.Repeat("x", 201)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := f.do(t, http.MethodPost, "/api/sharing-links", "alice", tt.body)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, env.Errors)
		})
	}
}

func TestSharingLinks_DailyQuota(t *testing.T) {
	f := newAPIFixture(t)

	for i := 0; i < sharing.MaxLinksPerDay; i++ {
		f.createLink(t, "alice")
	}

	resp, env := f.do(t, http.MethodPost, "/api/sharing-links", "alice", map[string]any{})
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, env.Error)

	resp, env = f.do(t, http.MethodGet, "/api/sharing-links/quota", "alice", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	quota := decode[sharing.Quota](t, env)
	assert.False(t, quota.Allowed)
	assert.Equal(t, 0, quota.RemainingToday)
}

func TestShareStatus(t *testing.T) {
	f := newAPIFixture(t)
	link := f.createLink(t, "alice")

	resp, env := f.do(t, http.MethodGet, "/api/share/"+link.Token, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	status := decode[shareStatus](t, env)
	assert.True(t, status.Valid)
	assert.False(t, status.IsOwner)
	assert.Equal(t, "User alice", status.OwnerName)

	_, env = f.do(t, http.MethodGet, "/api/share/"+link.Token, "alice", nil)
	assert.True(t, decode[shareStatus](t, env).IsOwner)

	_, env = f.do(t, http.MethodGet, "/api/share/"+link.Token, "bob", nil)
	assert.False(t, decode[shareStatus](t, env).IsOwner)

	resp, env = f.do(t, http.MethodGet, "/api/share/not-a-real-token", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.False(t, decode[shareStatus](t, env).Valid)
}

func TestSubmitAndModerate(t *testing.T) {
	f := newAPIFixture(t)
	link := f.createLink(t, "alice")

	resp, env := f.submit(t, link.Token, "Avery", "2015-03-02")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, env.Error)
	result := decode[submissions.SubmitResult](t, env)
	require.True(t, result.Success)
	require.NotNil(t, result.SubmissionID)
	id := result.SubmissionID.String()

	resp, env = f.do(t, http.MethodGet, "/api/submissions?page=1&page_size=10", "alice", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	page := decode[submissions.PendingPage](t, env)
	require.Len(t, page.Submissions, 1)
	assert.Equal(t, "Avery", page.Submissions[0].Name)
	assert.Equal(t, models.StatusPending, page.Submissions[0].Status)

	// Not visible to other owners
	resp, _ = f.do(t, http.MethodPost, "/api/submissions/"+id+"/import", "bob", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, env = f.do(t, http.MethodPost, "/api/submissions/"+id+"/import", "alice", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, env.Error)
	birthday := decode[models.Birthday](t, env)
	assert.Equal(t, "Avery", birthday.Name)
	assert.Equal(t, "2015-03-02", birthday.Date.String())
	require.NotNil(t, birthday.ImportSource)
	assert.Equal(t, models.ImportSourceSharing, *birthday.ImportSource)

	resp, env = f.do(t, http.MethodPost, "/api/submissions/"+id+"/import", "alice", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Submission not found or already processed", env.Error)

	resp, env = f.do(t, http.MethodGet, "/api/birthdays", "alice", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.Birthday](t, env), 1)
}

func TestSubmit_Failures(t *testing.T) {
	f := newAPIFixture(t)
	link := f.createLink(t, "alice")

	resp, env := f.submit(t, link.Token, "", "not-a-date")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Len(t, env.Errors, 2)

	resp, env = f.submit(t, "unknown-token-value", "Avery", "2015-03-02")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, submissions.MsgInvalidLink, env.Error)

	req, err := http.NewRequest(http.MethodPost, "/api/share/"+link.Token+"/submissions", strings.NewReader("{"))
	require.NoError(t, err)
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestSubmit_RateLimitedByIP(t *testing.T) {
	f := newAPIFixture(t)

	// Created directly so the link request does not count against the client IP
	owner := f.store.AddUser("owner@example.com", "Owner")
	link, err := f.links.CreateSharingLink(context.Background(), sharing.CreateLinkInput{OwnerID: owner.ID})
	require.NoError(t, err)

	names := []string{"Avery", "Blake", "Casey", "Devon", "Emery", "Finley", "Gray", "Harper", "Indy", "Jules"}
	for _, name := range names {
		resp, env := f.submit(t, link.Token, name, "1990-05-01")
		require.Equal(t, fiber.StatusCreated, resp.StatusCode, env.Error)
	}

	resp, env := f.submit(t, link.Token, "Kai", "1990-05-01")
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, middleware.ReasonIPRateLimit, env.Error)
	assert.Greater(t, env.RetryAfter, 0)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestSubmit_DuplicateFloodDisablesLink(t *testing.T) {
	f := newAPIFixture(t)
	link := f.createLink(t, "alice")

	for i := 0; i < 2; i++ {
		resp, env := f.submit(t, link.Token, "Avery", "2015-03-02")
		require.Equal(t, fiber.StatusCreated, resp.StatusCode, env.Error)
	}

	resp, env := f.submit(t, link.Token, "Avery", "2015-03-02")
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, middleware.ReasonLinkDisabled, env.Error)

	resp, env = f.do(t, http.MethodGet, "/api/share/"+link.Token, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.False(t, decode[shareStatus](t, env).Valid)
}

func TestBulkModeration(t *testing.T) {
	f := newAPIFixture(t)
	link := f.createLink(t, "alice")

	var ids []uuid.UUID
	for _, name := range []string{"Avery", "Blake"} {
		_, env := f.submit(t, link.Token, name, "1990-05-01")
		ids = append(ids, *decode[submissions.SubmitResult](t, env).SubmissionID)
	}
	missing := uuid.New()

	resp, env := f.do(t, http.MethodPost, "/api/submissions/bulk-reject", "alice", map[string]any{
		"ids": []uuid.UUID{ids[0], missing},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	result := decode[submissions.BulkResult](t, env)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, []uuid.UUID{missing}, result.FailedIDs)

	resp, env = f.do(t, http.MethodPost, "/api/submissions/bulk-import", "alice", map[string]any{
		"ids": []uuid.UUID{ids[1]},
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, decode[submissions.BulkResult](t, env).Success)

	resp, _ = f.do(t, http.MethodPost, "/api/submissions/bulk-import", "alice", map[string]any{"ids": []uuid.UUID{}})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestDuplicates(t *testing.T) {
	f := newAPIFixture(t)
	link := f.createLink(t, "alice")

	resp, env := f.do(t, http.MethodPost, "/api/birthdays", "alice", map[string]any{
		"name": "Avery",
		"date": "2015-03-02",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, env.Error)

	_, env = f.submit(t, link.Token, "Avery", "2015-03-02")
	id := decode[submissions.SubmitResult](t, env).SubmissionID.String()

	resp, env = f.do(t, http.MethodGet, "/api/submissions", "alice", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, decode[submissions.PendingPage](t, env).Submissions[0].PossibleDuplicate)

	resp, env = f.do(t, http.MethodGet, "/api/submissions/"+id+"/duplicates", "alice", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	matches := decode[[]submissions.DuplicateMatch](t, env)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Similarity, 0.0001)

	resp, _ = f.do(t, http.MethodGet, "/api/submissions/not-a-uuid/duplicates", "alice", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestBirthdays_CreateValidation(t *testing.T) {
	f := newAPIFixture(t)

	resp, env := f.do(t, http.MethodPost, "/api/birthdays", "alice", map[string]any{
		"name": "<>",
		"date": "1850-01-01",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Len(t, env.Errors, 2)

	resp, env = f.do(t, http.MethodPost, "/api/birthdays", "alice", map[string]any{
		"name":         "Mum",
		"date":         "1960-07-04",
		"year_unknown": true,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.False(t, decode[models.Birthday](t, env).Date.HasYear())
}

func TestPreferencesAndUnsubscribe(t *testing.T) {
	f := newAPIFixture(t)

	resp, env := f.do(t, http.MethodGet, "/api/notification-preferences", "alice", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	pref := decode[models.NotificationPreference](t, env)
	assert.True(t, pref.EmailNotifications)
	assert.False(t, pref.SummaryNotifications)
	assert.False(t, pref.BirthdayReminders)

	resp, env = f.do(t, http.MethodPut, "/api/notification-preferences", "alice", map[string]any{
		"summary_notifications": true,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	pref = decode[models.NotificationPreference](t, env)
	assert.True(t, pref.EmailNotifications)
	assert.True(t, pref.SummaryNotifications)

	link := email.UnsubscribeURL("", f.cfg.UnsubscribeSecret, pref.UserID, models.NotificationSummary)

	resp, _ = f.do(t, http.MethodGet, "/unsubscribe?user="+pref.UserID.String()+"&type=summary&token=bogus", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, env = f.do(t, http.MethodGet, link, "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, env.Error)
	assert.False(t, decode[models.NotificationPreference](t, env).SummaryNotifications)

	stored, err := f.store.GetNotificationPreference(context.Background(), pref.UserID)
	require.NoError(t, err)
	assert.False(t, stored.SummaryNotifications)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	f.store.FailOn("Ping", assert.AnError)
	resp, env := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "database unavailable", env.Error)

	resp, env = f.do(t, http.MethodGet, "/jobz", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, decode[map[string]any](t, env)["job_count"])
}
