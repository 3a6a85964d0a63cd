package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"shiftoffer_backend/internal/models"
)

// QueueEntryRepository - чтение очереди и служебные отметки.
// Переходы статусов делает QueueEngine.
type QueueEntryRepository interface {
	FindByID(ctx context.Context, id string) (*models.QueueEntry, error)
	ListByOpenShift(ctx context.Context, openShiftID string) ([]models.QueueEntry, error)
	ListByStatuses(ctx context.Context, openShiftID string, statuses ...models.QueueResponseStatus) ([]models.QueueEntry, error)
	// FindActiveWindow - ждущие записи, чье окно открыто в момент now
	FindActiveWindow(ctx context.Context, openShiftID string, now time.Time) ([]models.QueueEntry, error)
	// FindElapsed - ждущие записи, чье окно уже закрылось
	FindElapsed(ctx context.Context, openShiftID string, now time.Time) ([]models.QueueEntry, error)
	CountByStatus(ctx context.Context, openShiftID string, status models.QueueResponseStatus) (int64, error)
	// MarkNotified ставит notified_at, если его еще нет. false - уже уведомлен.
	MarkNotified(ctx context.Context, id string, at time.Time) (bool, error)
	// ExpireWaiting переводит все ждущие записи смены в expired и возвращает их
	ExpireWaiting(ctx context.Context, openShiftID string) ([]models.QueueEntry, error)
}

type QueueEntryRepositoryImpl struct {
	db *gorm.DB
}

func NewQueueEntryRepository(db *gorm.DB) QueueEntryRepository {
	return &QueueEntryRepositoryImpl{db: db}
}

func (r *QueueEntryRepositoryImpl) FindByID(ctx context.Context, id string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *QueueEntryRepositoryImpl) ListByOpenShift(ctx context.Context, openShiftID string) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := r.db.WithContext(ctx).
		Where("open_shift_id = ?", openShiftID).
		Order("queue_position ASC").
		Find(&entries).Error
	return entries, err
}

func (r *QueueEntryRepositoryImpl) ListByStatuses(ctx context.Context, openShiftID string, statuses ...models.QueueResponseStatus) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := r.db.WithContext(ctx).
		Where("open_shift_id = ? AND response_status IN ?", openShiftID, statuses).
		Order("queue_position ASC").
		Find(&entries).Error
	return entries, err
}

func (r *QueueEntryRepositoryImpl) FindActiveWindow(ctx context.Context, openShiftID string, now time.Time) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := r.db.WithContext(ctx).
		Where("open_shift_id = ? AND response_status = ?", openShiftID, models.QueueStatusWaiting).
		Where("window_starts_at <= ? AND window_expires_at > ?", now, now).
		Order("queue_position ASC").
		Find(&entries).Error
	return entries, err
}

func (r *QueueEntryRepositoryImpl) FindElapsed(ctx context.Context, openShiftID string, now time.Time) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	err := r.db.WithContext(ctx).
		Where("open_shift_id = ? AND response_status = ? AND window_expires_at <= ?", openShiftID, models.QueueStatusWaiting, now).
		Order("queue_position ASC").
		Find(&entries).Error
	return entries, err
}

func (r *QueueEntryRepositoryImpl) CountByStatus(ctx context.Context, openShiftID string, status models.QueueResponseStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("open_shift_id = ? AND response_status = ?", openShiftID, status).
		Count(&count).Error
	return count, err
}

func (r *QueueEntryRepositoryImpl) MarkNotified(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("id = ? AND notified_at IS NULL", id).
		Update("notified_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *QueueEntryRepositoryImpl) ExpireWaiting(ctx context.Context, openShiftID string) ([]models.QueueEntry, error) {
	var expired []models.QueueEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("open_shift_id = ? AND response_status = ?", openShiftID, models.QueueStatusWaiting).
			Order("queue_position ASC").
			Find(&expired).Error; err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		ids := make([]string, 0, len(expired))
		for _, e := range expired {
			ids = append(ids, e.ID)
		}
		return tx.Model(&models.QueueEntry{}).
			Where("id IN ? AND response_status = ?", ids, models.QueueStatusWaiting).
			Update("response_status", models.QueueStatusExpired).Error
	})
	return expired, err
}
