package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shiftoffer_backend/internal/cache"
	"shiftoffer_backend/internal/events"
	"shiftoffer_backend/internal/models"
	"shiftoffer_backend/internal/repositories"
	"shiftoffer_backend/internal/services/dto"
	"shiftoffer_backend/pkg/apperrors"
	"shiftoffer_backend/test/helpers"
)

var queueStart = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

type queueFixture struct {
	svc       QueueService
	clock     *helpers.FixedClock
	locks     *cache.LockService
	entries   repositories.QueueEntryRepository
	requests  repositories.OpenShiftRepository
	notifier  *fakeNotifier
	scheduler *fakeScheduler
	publisher *recordingPublisher
	shift     *models.Shift
	users     []*models.User
}

// newQueueFixture: users[0] - автор запроса, остальные попадают в очередь по порядку id
func newQueueFixture(t *testing.T, workers, windowSize int) *queueFixture {
	t.Helper()
	db := helpers.NewTestDB(t)
	_, client := helpers.NewTestRedis(t)
	clock := helpers.NewFixedClock(queueStart)

	f := &queueFixture{
		clock:     clock,
		locks:     cache.NewLockService(client, "test"),
		entries:   repositories.NewQueueEntryRepository(db),
		requests:  repositories.NewOpenShiftRepository(db),
		notifier:  &fakeNotifier{},
		scheduler: newFakeScheduler(),
		publisher: &recordingPublisher{},
		shift:     helpers.CreateShift(t, db, "er", queueStart.Add(48*time.Hour)),
		users:     helpers.CreateUsers(t, db, "er", workers),
	}
	f.svc = NewQueueService(
		f.requests,
		f.entries,
		repositories.NewUserRepository(db),
		repositories.NewGormQueueEngine(db, windowSize, clock.Now),
		f.notifier,
		f.locks,
		f.scheduler,
		f.publisher,
		QueueConfig{
			WindowDuration: 15 * time.Minute,
			MaxQueueSize:   100,
			DefaultExpiry:  24 * time.Hour,
			LockTTL:        30 * time.Second,
		},
		zap.NewNop(),
		clock.Now,
	)
	return f
}

func (f *queueFixture) post(t *testing.T) *dto.PostOpenShiftResult {
	t.Helper()
	res, err := f.svc.PostOpenShift(context.Background(), &dto.PostOpenShiftRequest{
		ShiftID:      f.shift.ID,
		RequestedBy:  f.users[0].ID,
		Reason:       "sick leave",
		UrgencyLevel: 4,
	})
	require.NoError(t, err)
	return res
}

func (f *queueFixture) queue(t *testing.T, openShiftID string) []models.QueueEntry {
	t.Helper()
	entries, err := f.entries.ListByOpenShift(context.Background(), openShiftID)
	require.NoError(t, err)
	return entries
}

func TestPostOpenShift_NotifiesFirstWindowAndSchedules(t *testing.T) {
	f := newQueueFixture(t, 4, 1)

	res := f.post(t)
	assert.Equal(t, 3, res.QueueSize)
	assert.Equal(t, queueStart, res.FirstWindowStart)
	assert.Equal(t, queueStart.Add(24*time.Hour), res.ExpiresAt)

	assert.Equal(t, []string{f.users[1].ID}, f.notifier.recipients(models.NotificationShiftAvailable))

	after, ok := f.scheduler.pending(res.OpenShiftID)
	require.True(t, ok)
	assert.Equal(t, 15*time.Minute, after)

	assert.Equal(t, []events.Type{events.TypeOfferPosted, events.TypeWindowOpened}, f.publisher.types())

	n, err := f.svc.NotifyCurrentWindow(context.Background(), res.OpenShiftID)
	require.NoError(t, err)
	assert.Zero(t, n, "повторное уведомление окна не отправляется")
	assert.Len(t, f.notifier.recipients(models.NotificationShiftAvailable), 1)
}

func TestPostOpenShift_Validation(t *testing.T) {
	f := newQueueFixture(t, 2, 1)
	ctx := context.Background()

	_, err := f.svc.PostOpenShift(ctx, &dto.PostOpenShiftRequest{ShiftID: f.shift.ID, UrgencyLevel: 6})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	_, err = f.svc.PostOpenShift(ctx, &dto.PostOpenShiftRequest{ShiftID: "missing", UrgencyLevel: 3})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	f.post(t)
	_, err = f.svc.PostOpenShift(ctx, &dto.PostOpenShiftRequest{ShiftID: f.shift.ID, UrgencyLevel: 3})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict), "одна открытая заявка на смену")
}

func TestPostOpenShift_EmptyQueueExpiresImmediately(t *testing.T) {
	f := newQueueFixture(t, 1, 1)

	res := f.post(t)
	assert.Zero(t, res.QueueSize)

	req, err := f.requests.FindByID(context.Background(), res.OpenShiftID)
	require.NoError(t, err)
	assert.Equal(t, models.OpenShiftStatusExpired, req.Status)

	closed, ok := f.publisher.last(events.TypeShiftClosed).(events.ShiftClosed)
	require.True(t, ok)
	assert.Equal(t, reasonQueueExhausted, closed.Reason)
}

// Сценарий: первый в очереди принимает в своем окне
func TestRespondToOffer_AcceptFillsShift(t *testing.T) {
	f := newQueueFixture(t, 4, 1)
	ctx := context.Background()
	res := f.post(t)
	entries := f.queue(t, res.OpenShiftID)

	f.clock.Advance(3 * time.Minute)
	out, err := f.svc.RespondToOffer(ctx, entries[0].ID, entries[0].UserID, models.QueueStatusAccepted)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, models.QueueStatusAccepted, out.Response)

	req, err := f.requests.FindByID(ctx, res.OpenShiftID)
	require.NoError(t, err)
	assert.Equal(t, models.OpenShiftStatusFilled, req.Status)

	assert.Equal(t, []string{entries[0].UserID}, f.notifier.recipients(models.NotificationShiftAssigned))
	assert.ElementsMatch(t, []string{entries[1].UserID, entries[2].UserID}, f.notifier.recipients(models.NotificationShiftFilled))

	_, scheduled := f.scheduler.pending(res.OpenShiftID)
	assert.False(t, scheduled, "таймер снят после заполнения")

	closed, ok := f.publisher.last(events.TypeShiftClosed).(events.ShiftClosed)
	require.True(t, ok)
	assert.Equal(t, models.OpenShiftStatusFilled, closed.Status)
	assert.Equal(t, entries[0].UserID, closed.FilledBy)

	_, err = f.svc.RespondToOffer(ctx, entries[0].ID, entries[0].UserID, models.QueueStatusAccepted)
	assert.True(t, errors.Is(err, apperrors.ErrOfferNotActionable), "повторный ответ - конфликт")
}

func TestRespondToOffer_Rejections(t *testing.T) {
	f := newQueueFixture(t, 4, 1)
	ctx := context.Background()
	res := f.post(t)
	entries := f.queue(t, res.OpenShiftID)

	_, err := f.svc.RespondToOffer(ctx, entries[1].ID, entries[1].UserID, models.QueueStatusAccepted)
	assert.True(t, errors.Is(err, apperrors.ErrOfferNotActionable), "окно второго еще не открыто")

	_, err = f.svc.RespondToOffer(ctx, entries[0].ID, entries[1].UserID, models.QueueStatusAccepted)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = f.svc.RespondToOffer(ctx, "missing", entries[0].UserID, models.QueueStatusAccepted)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.svc.RespondToOffer(ctx, entries[0].ID, entries[0].UserID, models.QueueStatusWaiting)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestRespondToOffer_LockContention(t *testing.T) {
	f := newQueueFixture(t, 3, 1)
	ctx := context.Background()
	res := f.post(t)
	entries := f.queue(t, res.OpenShiftID)

	ok, _, err := f.locks.AcquireLock(ctx, lockKey(res.OpenShiftID), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.RespondToOffer(ctx, entries[0].ID, entries[0].UserID, models.QueueStatusAccepted)
	assert.True(t, errors.Is(err, apperrors.ErrLockContention))

	req, err := f.requests.FindByID(ctx, res.OpenShiftID)
	require.NoError(t, err)
	assert.Equal(t, models.OpenShiftStatusOpen, req.Status)
}

// Сценарий: окно истекло без ответа, очередь переходит ко второму
func TestCheckAndProgressWindow_TimeoutMovesToNext(t *testing.T) {
	f := newQueueFixture(t, 4, 1)
	ctx := context.Background()
	res := f.post(t)
	entries := f.queue(t, res.OpenShiftID)

	f.clock.Advance(15 * time.Minute)
	out, err := f.svc.CheckAndProgressWindow(ctx, res.OpenShiftID)
	require.NoError(t, err)
	assert.Equal(t, models.OpenShiftStatusOpen, out.Status)
	assert.Equal(t, int64(1), out.Expired)
	assert.Equal(t, 2, out.Remaining)
	assert.Equal(t, 1, out.Notified)
	assert.True(t, out.Reschedule)

	after, ok := f.scheduler.pending(res.OpenShiftID)
	require.True(t, ok)
	assert.Equal(t, 15*time.Minute, after)

	assert.Equal(t, []string{entries[0].UserID, entries[1].UserID}, f.notifier.recipients(models.NotificationShiftAvailable))

	expired, ok := f.publisher.last(events.TypeWindowExpired).(events.WindowExpired)
	require.True(t, ok)
	assert.Equal(t, []string{entries[0].ID}, expired.EntryIDs)

	updated := f.queue(t, res.OpenShiftID)
	assert.Equal(t, models.QueueStatusExpired, updated[0].ResponseStatus)
	assert.Equal(t, models.QueueStatusWaiting, updated[1].ResponseStatus)
}

// Сценарий: никто не ответил, очередь исчерпана
func TestCheckAndProgressWindow_ExhaustedQueueExpires(t *testing.T) {
	f := newQueueFixture(t, 2, 1)
	ctx := context.Background()
	res := f.post(t)

	f.clock.Advance(16 * time.Minute)
	out, err := f.svc.CheckAndProgressWindow(ctx, res.OpenShiftID)
	require.NoError(t, err)
	assert.Equal(t, models.OpenShiftStatusExpired, out.Status)
	assert.False(t, out.Reschedule)

	_, scheduled := f.scheduler.pending(res.OpenShiftID)
	assert.False(t, scheduled)

	closed, ok := f.publisher.last(events.TypeShiftClosed).(events.ShiftClosed)
	require.True(t, ok)
	assert.Equal(t, reasonQueueExhausted, closed.Reason)
	assert.Equal(t, f.users[0].ID, closed.RequestedBy)

	again, err := f.svc.CheckAndProgressWindow(ctx, res.OpenShiftID)
	require.NoError(t, err)
	assert.False(t, again.Reschedule, "терминальный запрос не перепланируется")
}

func TestCheckAndProgressWindow_RequestElapsed(t *testing.T) {
	f := newQueueFixture(t, 4, 1)
	ctx := context.Background()
	res, err := f.svc.PostOpenShift(ctx, &dto.PostOpenShiftRequest{
		ShiftID: f.shift.ID, RequestedBy: f.users[0].ID, UrgencyLevel: 2, ExpiresInHours: 1,
	})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	out, err := f.svc.CheckAndProgressWindow(ctx, res.OpenShiftID)
	require.NoError(t, err)
	assert.Equal(t, models.OpenShiftStatusExpired, out.Status)

	for _, e := range f.queue(t, res.OpenShiftID) {
		assert.NotEqual(t, models.QueueStatusWaiting, e.ResponseStatus)
	}
	closed, ok := f.publisher.last(events.TypeShiftClosed).(events.ShiftClosed)
	require.True(t, ok)
	assert.Equal(t, reasonElapsed, closed.Reason)
}

// Сценарий: отказ открывает окно следующего сразу
func TestRespondToOffer_DeclineProgressesEarly(t *testing.T) {
	f := newQueueFixture(t, 4, 1)
	ctx := context.Background()
	res := f.post(t)
	entries := f.queue(t, res.OpenShiftID)

	f.clock.Advance(2 * time.Minute)
	out, err := f.svc.RespondToOffer(ctx, entries[0].ID, entries[0].UserID, models.QueueStatusDeclined)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusDeclined, out.Response)

	status, err := f.svc.GetQueueStatus(ctx, res.OpenShiftID)
	require.NoError(t, err)
	require.Len(t, status.ActiveWindow, 1)
	assert.Equal(t, entries[1].ID, status.ActiveWindow[0].ID)
	assert.True(t, status.ActiveWindow[0].WindowStartsAt.Equal(f.clock.Now()), "окно сдвинуто на сейчас")

	assert.Equal(t, []string{entries[0].UserID, entries[1].UserID}, f.notifier.recipients(models.NotificationShiftAvailable))
	assert.Contains(t, f.publisher.types(), events.TypeOfferDeclined)

	// второй принимает; отказавшийся получает SHIFT_FILLED
	_, err = f.svc.RespondToOffer(ctx, entries[1].ID, entries[1].UserID, models.QueueStatusAccepted)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{entries[0].UserID, entries[2].UserID}, f.notifier.recipients(models.NotificationShiftFilled))
}

func TestCancelOpenShift(t *testing.T) {
	f := newQueueFixture(t, 4, 1)
	ctx := context.Background()
	res := f.post(t)
	entries := f.queue(t, res.OpenShiftID)

	require.NoError(t, f.svc.CancelOpenShift(ctx, res.OpenShiftID, f.users[0].ID, "covered internally"))

	req, err := f.requests.FindByID(ctx, res.OpenShiftID)
	require.NoError(t, err)
	assert.Equal(t, models.OpenShiftStatusCancelled, req.Status)
	assert.NotNil(t, req.CancelledAt)

	assert.Equal(t, []string{entries[0].UserID}, f.notifier.recipients(models.NotificationShiftCancelled),
		"отмена приходит только тем, кто уже получил предложение")

	_, scheduled := f.scheduler.pending(res.OpenShiftID)
	assert.False(t, scheduled)

	err = f.svc.CancelOpenShift(ctx, res.OpenShiftID, f.users[0].ID, "")
	assert.True(t, errors.Is(err, apperrors.ErrOpenShiftNotOpen))
}

func TestGetQueueStatus(t *testing.T) {
	f := newQueueFixture(t, 3, 2)
	res := f.post(t)

	status, err := f.svc.GetQueueStatus(context.Background(), res.OpenShiftID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.QueueSize)
	assert.Len(t, status.ActiveWindow, 2, "окно из двух человек")
	assert.Equal(t, 1, status.Queue[0].QueuePosition)
	assert.Equal(t, 2, status.Queue[1].QueuePosition)

	_, err = f.svc.GetQueueStatus(context.Background(), "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestResumeOpenShifts(t *testing.T) {
	f := newQueueFixture(t, 3, 1)
	res := f.post(t)
	f.scheduler.Cancel(res.OpenShiftID)

	f.clock.Advance(5 * time.Minute)
	n, err := f.svc.ResumeOpenShifts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	after, ok := f.scheduler.pending(res.OpenShiftID)
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, after, "до конца текущего окна")
}

func TestHandleWindowTimer_BacksOffOnContention(t *testing.T) {
	f := newQueueFixture(t, 3, 1)
	ctx := context.Background()
	res := f.post(t)

	ok, _, err := f.locks.AcquireLock(ctx, lockKey(res.OpenShiftID), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	f.svc.HandleWindowTimer(ctx, res.OpenShiftID)

	after, scheduled := f.scheduler.pending(res.OpenShiftID)
	require.True(t, scheduled)
	assert.Equal(t, 5*time.Second, after)
}
