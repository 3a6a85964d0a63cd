package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shiftoffer_backend/internal/cache"
	"shiftoffer_backend/internal/events"
	"shiftoffer_backend/internal/models"
	"shiftoffer_backend/internal/repositories"
	"shiftoffer_backend/pkg/apperrors"
	"shiftoffer_backend/test/helpers"
)

func seedQueue(t *testing.T, db *gorm.DB, posted time.Time) *models.OpenShiftRequest {
	t.Helper()
	shift := helpers.CreateShift(t, db, "icu", posted.Add(24*time.Hour))
	users := helpers.CreateUsers(t, db, "icu", 5)

	filledAt := posted.Add(40 * time.Minute)
	filledBy := users[3].ID
	request := &models.OpenShiftRequest{
		ShiftID:      shift.ID,
		RequestedBy:  users[0].ID,
		UrgencyLevel: 3,
		PostedAt:     posted,
		ExpiresAt:    posted.Add(24 * time.Hour),
		FilledAt:     &filledAt,
		FilledBy:     &filledBy,
		Status:       models.OpenShiftStatusFilled,
	}
	require.NoError(t, db.Create(request).Error)

	at := func(min int) *time.Time {
		v := posted.Add(time.Duration(min) * time.Minute)
		return &v
	}
	window := 15 * time.Minute
	entries := []models.QueueEntry{
		{UserID: users[1].ID, QueuePosition: 1, ResponseStatus: models.QueueStatusExpired},
		{UserID: users[2].ID, QueuePosition: 2, ResponseStatus: models.QueueStatusDeclined, RespondedAt: at(20)},
		{UserID: users[3].ID, QueuePosition: 3, ResponseStatus: models.QueueStatusAccepted, RespondedAt: at(40)},
		{UserID: users[4].ID, QueuePosition: 4, ResponseStatus: models.QueueStatusExpired},
	}
	for i := range entries {
		entries[i].OpenShiftID = request.ID
		entries[i].WindowStartsAt = posted.Add(time.Duration(i) * window)
		entries[i].WindowExpiresAt = entries[i].WindowStartsAt.Add(window)
	}
	require.NoError(t, db.Create(&entries).Error)
	return request
}

func TestComputeQueueMetrics(t *testing.T) {
	db := helpers.NewTestDB(t)
	_, client := helpers.NewTestRedis(t)
	posted := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	request := seedQueue(t, db, posted)

	svc := NewAuditService(
		repositories.NewAuditRepository(db),
		repositories.NewOpenShiftRepository(db),
		repositories.NewQueueEntryRepository(db),
		cache.NewJSONCache(client, "test", "metrics", time.Hour),
		zap.NewNop(),
	)

	m, err := svc.ComputeQueueMetrics(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, m.TotalQueued)
	assert.Equal(t, 1, m.Accepted)
	assert.Equal(t, 1, m.Declined)
	assert.Equal(t, 25.0, m.AcceptanceRate)
	require.NotNil(t, m.AvgResponseMinutes)
	// отказ через 5 мин после начала окна, принятие через 10
	assert.Equal(t, 7.5, *m.AvgResponseMinutes)
	require.NotNil(t, m.FillTimeMinutes)
	assert.Equal(t, 40.0, *m.FillTimeMinutes)

	_, err = svc.ComputeQueueMetrics(context.Background(), "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestComputeQueueMetrics_CachedUntilEvent(t *testing.T) {
	db := helpers.NewTestDB(t)
	_, client := helpers.NewTestRedis(t)
	posted := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	request := seedQueue(t, db, posted)
	ctx := context.Background()

	svc := NewAuditService(
		repositories.NewAuditRepository(db),
		repositories.NewOpenShiftRepository(db),
		repositories.NewQueueEntryRepository(db),
		cache.NewJSONCache(client, "test", "metrics", time.Hour),
		zap.NewNop(),
	)

	first, err := svc.ComputeQueueMetrics(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, 4, first.TotalQueued)

	require.NoError(t, db.Where("open_shift_id = ? AND queue_position = 4", request.ID).Delete(&models.QueueEntry{}).Error)

	cached, err := svc.ComputeQueueMetrics(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, cached.TotalQueued, "значение из кэша")

	require.NoError(t, svc.HandleEvent(ctx, events.OfferDeclined{OpenShiftID: request.ID, QueueEntryID: "e", UserID: "u"}))

	fresh, err := svc.ComputeQueueMetrics(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.TotalQueued, "событие сбрасывает кэш")
}

func TestHandleEvent_WritesAuditTrail(t *testing.T) {
	db := helpers.NewTestDB(t)
	ctx := context.Background()
	auditRepo := repositories.NewAuditRepository(db)
	svc := NewAuditService(auditRepo, repositories.NewOpenShiftRepository(db), repositories.NewQueueEntryRepository(db), nil, zap.NewNop())

	evts := []events.Event{
		events.OfferPosted{OpenShiftID: "os-1", RequestedBy: "mgr", QueueSize: 3},
		events.WindowOpened{OpenShiftID: "os-1", EntryIDs: []string{"e1"}, UserIDs: []string{"u1"}},
		events.WindowExpired{OpenShiftID: "os-1", EntryIDs: []string{"e1"}, UserIDs: []string{"u1"}},
		events.ShiftClosed{OpenShiftID: "os-1", Status: models.OpenShiftStatusCancelled, ClosedBy: "mgr"},
	}
	for _, e := range evts {
		require.NoError(t, svc.HandleEvent(ctx, e))
	}

	entries, err := auditRepo.ListByResource(ctx, "os-1")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, models.AuditOpenShiftPosted, entries[0].Action)
	assert.Equal(t, models.AuditWindowOpened, entries[1].Action)
	assert.Equal(t, models.AuditWindowExpired, entries[2].Action)
	assert.Equal(t, models.AuditOpenShiftCancelled, entries[3].Action)
	assert.Equal(t, "mgr", entries[3].UserID)
}

type failingAuditRepo struct {
	repositories.AuditRepository
}

func (failingAuditRepo) Append(context.Context, *models.AuditLog) error {
	return errors.New("disk full")
}

func TestRecordAudit_FailureIsWarning(t *testing.T) {
	svc := NewAuditService(failingAuditRepo{}, nil, nil, nil, zap.NewNop())

	err := svc.RecordAudit(context.Background(), models.AuditOfferAccepted, models.ResourceQueueEntry, "e1", "u1", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuditWrite))
	assert.Equal(t, apperrors.SeverityWarning, apperrors.SeverityOf(err))
}
