package submissions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"birthdays/internal/models"
	"birthdays/internal/sharing"
	"birthdays/internal/testutil"
	"birthdays/internal/validation"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendSubmissionNotification(ctx context.Context, owner *models.User, link *models.SharingLink, sub *models.BirthdaySubmission) error {
	return m.Called(ctx, owner, link, sub).Error(0)
}

type fixture struct {
	svc      *Service
	store    *testutil.MemoryStore
	links    *sharing.Service
	notifier *mockNotifier
	owner    *models.User
	link     *models.SharingLink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	clock := func() time.Time { return testNow }

	store := testutil.NewMemoryStore()
	owner := store.AddUser("owner@example.com", "Owner")

	links := sharing.NewService(store, log)
	links.SetClock(clock)
	link, err := links.CreateSharingLink(context.Background(), sharing.CreateLinkInput{OwnerID: owner.ID, ExpirationHours: 24})
	require.NoError(t, err)

	notifier := &mockNotifier{}
	svc := NewService(store, links, notifier, log)
	svc.SetClock(clock)

	return &fixture{svc: svc, store: store, links: links, notifier: notifier, owner: owner, link: link}
}

func (f *fixture) submit(t *testing.T, name, date string) uuid.UUID {
	t.Helper()
	res := f.svc.ProcessSubmission(context.Background(), f.link.Token, validation.SubmissionInput{Name: name, Date: date}, "203.0.113.7")
	require.True(t, res.Success, "errors: %v", res.Errors)
	return *res.SubmissionID
}

func TestShareSubmitImportScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("SendSubmissionNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	assert.WithinDuration(t, testNow.Add(24*time.Hour), f.link.ExpiresAt, time.Second)

	id := f.submit(t, "Avery", "2015-03-02")

	sub, ok := f.store.Submission(id)
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, sub.Status)
	assert.Equal(t, "203.0.113.7", sub.SubmitterIP)

	birthday, err := f.svc.ImportSubmission(ctx, id, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "Avery", birthday.Name)
	assert.Equal(t, "2015-03-02", birthday.Date.String())
	require.NotNil(t, birthday.ImportSource)
	assert.Equal(t, models.ImportSourceSharing, *birthday.ImportSource)

	sub, _ = f.store.Submission(id)
	assert.Equal(t, models.StatusImported, sub.Status)

	_, err = f.svc.ImportSubmission(ctx, id, f.owner.ID)
	assert.ErrorIs(t, err, ErrNotFoundOrProcessed)

	birthdays, err := f.svc.ListBirthdays(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Len(t, birthdays, 1)

	f.notifier.AssertNumberOfCalls(t, "SendSubmissionNotification", 1)
}

func TestProcessSubmission_InvalidLink(t *testing.T) {
	f := newFixture(t)

	res := f.svc.ProcessSubmission(context.Background(), "unknown-token-abc", validation.SubmissionInput{Name: "Avery", Date: "2015-03-02"}, "203.0.113.7")
	assert.False(t, res.Success)
	assert.Equal(t, FailureInvalidLink, res.Failure)
	assert.Equal(t, []string{MsgInvalidLink}, res.Errors)
}

func TestProcessSubmission_ValidationErrors(t *testing.T) {
	f := newFixture(t)

	res := f.svc.ProcessSubmission(context.Background(), f.link.Token, validation.SubmissionInput{Name: "", Date: "03/02/2015"}, "203.0.113.7")
	assert.False(t, res.Success)
	assert.Equal(t, FailureValidation, res.Failure)
	assert.Len(t, res.Errors, 2)
	assert.Nil(t, res.SubmissionID)
}

func TestProcessSubmission_LinkHourlyLimit(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("SendSubmissionNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	for i := 0; i < MaxSubmissionsPerLinkPerHour; i++ {
		f.submit(t, fmt.Sprintf("Person %c", 'A'+i), "2000-01-01")
	}

	res := f.svc.ProcessSubmission(context.Background(), f.link.Token, validation.SubmissionInput{Name: "One Too Many", Date: "2000-01-01"}, "203.0.113.7")
	assert.False(t, res.Success)
	assert.Equal(t, FailureRateLimited, res.Failure)

	// The window rolls
	f.svc.SetClock(func() time.Time { return testNow.Add(61 * time.Minute) })
	f.links.SetClock(func() time.Time { return testNow.Add(61 * time.Minute) })
	f.submit(t, "Next Hour", "2000-01-01")
}

func TestProcessSubmission_NotificationFailureKeepsSubmission(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("SendSubmissionNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("smtp unavailable"))

	id := f.submit(t, "Avery", "2015-03-02")

	_, ok := f.store.Submission(id)
	assert.True(t, ok)
}

func TestProcessSubmission_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("CreateSubmission", errors.New("disk full"))

	res := f.svc.ProcessSubmission(context.Background(), f.link.Token, validation.SubmissionInput{Name: "Avery", Date: "2015-03-02"}, "203.0.113.7")
	assert.False(t, res.Success)
	assert.Equal(t, FailureInternal, res.Failure)
	assert.Equal(t, []string{MsgSubmitFailed}, res.Errors)
	f.notifier.AssertNotCalled(t, "SendSubmissionNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestModeration_OwnershipIsIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("SendSubmissionNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	id := f.submit(t, "Avery", "2015-03-02")
	stranger := f.store.AddUser("stranger@example.com", "Stranger")

	_, errWrongOwner := f.svc.ImportSubmission(ctx, id, stranger.ID)
	_, errMissing := f.svc.ImportSubmission(ctx, uuid.New(), f.owner.ID)
	assert.ErrorIs(t, errWrongOwner, ErrNotFoundOrProcessed)
	assert.ErrorIs(t, errMissing, ErrNotFoundOrProcessed)
	assert.Equal(t, errWrongOwner.Error(), errMissing.Error())

	assert.ErrorIs(t, f.svc.RejectSubmission(ctx, id, stranger.ID), ErrNotFoundOrProcessed)
	require.NoError(t, f.svc.RejectSubmission(ctx, id, f.owner.ID))
	assert.ErrorIs(t, f.svc.RejectSubmission(ctx, id, f.owner.ID), ErrNotFoundOrProcessed)

	// Rejected submissions cannot be imported
	_, err := f.svc.ImportSubmission(ctx, id, f.owner.ID)
	assert.ErrorIs(t, err, ErrNotFoundOrProcessed)
	birthdays, _ := f.svc.ListBirthdays(ctx, f.owner.ID)
	assert.Empty(t, birthdays)
}

func TestBulkImportSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("SendSubmissionNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	first := f.submit(t, "Alpha", "2000-01-01")
	second := f.submit(t, "Bravo", "2000-02-02")
	require.NoError(t, f.svc.RejectSubmission(ctx, second, f.owner.ID))
	third := f.submit(t, "Charlie", "2000-03-03")
	missing := uuid.New()

	res := f.svc.BulkImportSubmissions(ctx, []uuid.UUID{first, second, missing, third}, f.owner.ID)

	assert.False(t, res.Success)
	assert.Equal(t, 2, res.ProcessedCount)
	assert.Equal(t, []uuid.UUID{second, missing}, res.FailedIDs)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], second.String())

	// Earlier successes are kept
	birthdays, err := f.svc.ListBirthdays(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.Len(t, birthdays, 2)
}

func TestBulkRejectSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("SendSubmissionNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	ids := []uuid.UUID{f.submit(t, "Alpha", "2000-01-01"), f.submit(t, "Bravo", "2000-02-02")}

	res := f.svc.BulkRejectSubmissions(ctx, ids, f.owner.ID)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.ProcessedCount)
	assert.Empty(t, res.FailedIDs)
	assert.Empty(t, res.Errors)
}

func TestPendingSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("SendSubmissionNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.CreateBirthday(ctx, f.owner.ID, BirthdayInput{Name: "Avery", Date: "2014-03-02"})
	require.NoError(t, err)

	f.submit(t, "Avery", "2015-03-02")
	f.svc.SetClock(func() time.Time { return testNow.Add(time.Minute) })
	f.submit(t, "Jordan", "1988-11-20")
	f.svc.SetClock(func() time.Time { return testNow.Add(2 * time.Minute) })
	f.submit(t, "Sam", "1999-07-04")

	page, err := f.svc.PendingSubmissions(ctx, f.owner.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasMore)
	require.Len(t, page.Submissions, 2)
	assert.Equal(t, "Avery", page.Submissions[0].Name)
	assert.True(t, page.Submissions[0].PossibleDuplicate)
	assert.False(t, page.Submissions[1].PossibleDuplicate)

	page, err = f.svc.PendingSubmissions(ctx, f.owner.ID, 2, 2)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
	assert.Len(t, page.Submissions, 1)

	empty, err := f.svc.PendingSubmissions(ctx, uuid.New(), 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty.Submissions)
	assert.Equal(t, DefaultPageSize, empty.PageSize)
}

func TestSubmissionDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("SendSubmissionNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.CreateBirthday(ctx, f.owner.ID, BirthdayInput{Name: "Avery", Date: "2015-03-02", YearUnknown: true})
	require.NoError(t, err)
	_, err = f.svc.CreateBirthday(ctx, f.owner.ID, BirthdayInput{Name: "Someone Else", Date: "1970-12-25"})
	require.NoError(t, err)

	id := f.submit(t, "Avery", "2015-03-02")

	matches, err := f.svc.SubmissionDuplicates(ctx, id, f.owner.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 0.95, matches[0].Similarity, 1e-9)

	_, err = f.svc.SubmissionDuplicates(ctx, id, uuid.New())
	assert.ErrorIs(t, err, ErrNotFoundOrProcessed)
}

func TestCleanupOldRejectedSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("SendSubmissionNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	old := f.submit(t, "Old", "2000-01-01")
	require.NoError(t, f.svc.RejectSubmission(ctx, old, f.owner.ID))

	// 31 days later the rejected one is past the cutoff
	later := testNow.AddDate(0, 0, 31)
	f.svc.SetClock(func() time.Time { return later })
	f.links.SetClock(func() time.Time { return testNow })
	recent := f.submit(t, "Recent", "2000-01-02")
	require.NoError(t, f.svc.RejectSubmission(ctx, recent, f.owner.ID))

	assert.Equal(t, int64(1), f.svc.CleanupOldRejectedSubmissions(ctx, 0))
	assert.Equal(t, int64(0), f.svc.CleanupOldRejectedSubmissions(ctx, 30))

	f.store.FailOn("DeleteRejectedSubmissionsBefore", errors.New("db down"))
	assert.Equal(t, int64(0), f.svc.CleanupOldRejectedSubmissions(ctx, 1))
}

func TestCreateBirthday_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateBirthday(context.Background(), f.owner.ID, BirthdayInput{Name: "123", Date: "1800-01-01"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 2)
}
