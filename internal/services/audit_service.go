package services

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"shiftoffer_backend/internal/algorithms"
	"shiftoffer_backend/internal/events"
	"shiftoffer_backend/internal/models"
	"shiftoffer_backend/internal/repositories"
	"shiftoffer_backend/internal/services/dto"
	"shiftoffer_backend/pkg/apperrors"
)

// AuditService - журнал аудита и метрики очередей
type AuditService interface {
	RecordAudit(ctx context.Context, action, resourceType, resourceID, userID string, data map[string]interface{}) error
	ComputeQueueMetrics(ctx context.Context, openShiftID string) (*dto.QueueMetrics, error)
	HandleEvent(ctx context.Context, evt events.Event) error
}

// MetricsCache - кэш рассчитанных метрик (cache.JSONCache)
type MetricsCache interface {
	Get(ctx context.Context, id string, dst any) (bool, error)
	Set(ctx context.Context, id string, value any) error
	Invalidate(ctx context.Context, id string) error
}

type auditService struct {
	auditRepo     repositories.AuditRepository
	openShiftRepo repositories.OpenShiftRepository
	queueRepo     repositories.QueueEntryRepository
	cache         MetricsCache
	logger        *zap.Logger
	now           func() time.Time
}

func NewAuditService(
	auditRepo repositories.AuditRepository,
	openShiftRepo repositories.OpenShiftRepository,
	queueRepo repositories.QueueEntryRepository,
	cache MetricsCache,
	logger *zap.Logger,
) AuditService {
	return &auditService{
		auditRepo:     auditRepo,
		openShiftRepo: openShiftRepo,
		queueRepo:     queueRepo,
		cache:         cache,
		logger:        logger.Named("audit"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// RecordAudit добавляет запись. Ошибка возвращается как AuditWriteError
// (severity warning); вызывающий ее логирует и продолжает.
func (s *auditService) RecordAudit(ctx context.Context, action, resourceType, resourceID, userID string, data map[string]interface{}) error {
	var raw datatypes.JSON
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return apperrors.AuditWriteError(err)
		}
		raw = datatypes.JSON(b)
	}

	entry := &models.AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		UserID:       userID,
		Data:         raw,
		CreatedAt:    s.now(),
	}
	if err := s.auditRepo.Append(ctx, entry); err != nil {
		return apperrors.AuditWriteError(err)
	}
	return nil
}

func (s *auditService) ComputeQueueMetrics(ctx context.Context, openShiftID string) (*dto.QueueMetrics, error) {
	if s.cache != nil {
		var cached dto.QueueMetrics
		hit, err := s.cache.Get(ctx, openShiftID, &cached)
		if err != nil {
			s.logger.Warn("metrics cache read failed", zap.String("open_shift_id", openShiftID), zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}

	request, err := s.openShiftRepo.FindByID(ctx, openShiftID)
	if err != nil {
		if errors.Is(err, repositories.ErrOpenShiftNotFound) {
			return nil, apperrors.ErrNotFound(err)
		}
		return nil, apperrors.PersistenceError(err, "Failed to load open shift request")
	}
	entries, err := s.queueRepo.ListByOpenShift(ctx, openShiftID)
	if err != nil {
		return nil, apperrors.PersistenceError(err, "Failed to load queue")
	}

	metrics := buildQueueMetrics(request, entries, s.now())

	if s.cache != nil {
		if err := s.cache.Set(ctx, openShiftID, metrics); err != nil {
			s.logger.Warn("metrics cache write failed", zap.String("open_shift_id", openShiftID), zap.Error(err))
		}
	}
	return metrics, nil
}

func buildQueueMetrics(request *models.OpenShiftRequest, entries []models.QueueEntry, now time.Time) *dto.QueueMetrics {
	stats := algorithms.SummarizeResponses(entries)
	m := &dto.QueueMetrics{
		OpenShiftID: request.ID,
		TotalQueued: stats.Total,
		Accepted:    stats.Accepted,
		Declined:    stats.Declined,
		Expired:     stats.Expired,
		Waiting:     stats.Waiting,
		ComputedAt:  now,
	}
	if stats.Total > 0 {
		m.AcceptanceRate = round2(float64(stats.Accepted) / float64(stats.Total) * 100)
	}
	if stats.Accepted+stats.Declined > 0 {
		avg := round2(stats.AvgResponseMin)
		m.AvgResponseMinutes = &avg
	}
	if request.FilledAt != nil {
		fill := round2(request.FilledAt.Sub(request.PostedAt).Minutes())
		m.FillTimeMinutes = &fill
	}
	return m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// HandleEvent переводит события очереди в записи журнала
func (s *auditService) HandleEvent(ctx context.Context, evt events.Event) error {
	var (
		action, resourceType, resourceID, userID string
		data                                     map[string]interface{}
	)

	switch e := evt.(type) {
	case events.OfferPosted:
		action, resourceType, resourceID, userID = models.AuditOpenShiftPosted, models.ResourceOpenShift, e.OpenShiftID, e.RequestedBy
		data = map[string]interface{}{
			"shift_id":      e.ShiftID,
			"urgency_level": e.UrgencyLevel,
			"queue_size":    e.QueueSize,
			"expires_at":    e.ExpiresAt,
		}
	case events.WindowOpened:
		action, resourceType, resourceID = models.AuditWindowOpened, models.ResourceOpenShift, e.OpenShiftID
		data = map[string]interface{}{"entry_ids": e.EntryIDs, "user_ids": e.UserIDs}
	case events.WindowExpired:
		action, resourceType, resourceID = models.AuditWindowExpired, models.ResourceOpenShift, e.OpenShiftID
		data = map[string]interface{}{"entry_ids": e.EntryIDs, "user_ids": e.UserIDs}
	case events.OfferAccepted:
		action, resourceType, resourceID, userID = models.AuditOfferAccepted, models.ResourceQueueEntry, e.QueueEntryID, e.UserID
		data = map[string]interface{}{"open_shift_id": e.OpenShiftID}
	case events.OfferDeclined:
		action, resourceType, resourceID, userID = models.AuditOfferDeclined, models.ResourceQueueEntry, e.QueueEntryID, e.UserID
		data = map[string]interface{}{"open_shift_id": e.OpenShiftID}
	case events.ShiftClosed:
		resourceType, resourceID = models.ResourceOpenShift, e.OpenShiftID
		data = map[string]interface{}{"reason": e.Reason}
		switch e.Status {
		case models.OpenShiftStatusFilled:
			action, userID = models.AuditOpenShiftFilled, e.FilledBy
		case models.OpenShiftStatusCancelled:
			action, userID = models.AuditOpenShiftCancelled, e.ClosedBy
		default:
			action = models.AuditOpenShiftExpired
		}
	default:
		return nil
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, evt.ShiftRef()); err != nil {
			s.logger.Warn("metrics cache invalidation failed", zap.String("open_shift_id", evt.ShiftRef()), zap.Error(err))
		}
	}
	return s.RecordAudit(ctx, action, resourceType, resourceID, userID, data)
}
