package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"shiftoffer_backend/internal/models"
)

type NotificationRepository interface {
	Create(ctx context.Context, record *models.NotificationRecord) error
	FindByID(ctx context.Context, id string) (*models.NotificationRecord, error)
	// SaveAttempt записывает результат попытки доставки
	SaveAttempt(ctx context.Context, record *models.NotificationRecord) error
	// FindRetryable - pending/failed с retry_count < maxRetries, старые первыми
	FindRetryable(ctx context.Context, maxRetries, limit int) ([]models.NotificationRecord, error)
	// ClaimRetry увеличивает retry_count, если его никто не увеличил раньше.
	// false - запись уже взята другим проходом.
	ClaimRetry(ctx context.Context, id string, seenRetryCount int, at time.Time) (bool, error)
	// Retire окончательно закрывает запись как failed без новой попытки
	Retire(ctx context.Context, id string, seenRetryCount, maxRetries int, reason string, at time.Time) (bool, error)
	CountByStatus(ctx context.Context) (map[models.NotificationStatus]int64, error)
	CountPermanentlyFailed(ctx context.Context, maxRetries int) (int64, error)
}

type NotificationRepositoryImpl struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &NotificationRepositoryImpl{db: db}
}

func (r *NotificationRepositoryImpl) Create(ctx context.Context, record *models.NotificationRecord) error {
	if err := r.validateNotification(record); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *NotificationRepositoryImpl) FindByID(ctx context.Context, id string) (*models.NotificationRecord, error) {
	var record models.NotificationRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *NotificationRepositoryImpl) SaveAttempt(ctx context.Context, record *models.NotificationRecord) error {
	result := r.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"status":          record.Status,
			"channel_results": record.ChannelResults,
			"last_error":      record.LastError,
			"last_attempt_at": record.LastAttemptAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepositoryImpl) FindRetryable(ctx context.Context, maxRetries, limit int) ([]models.NotificationRecord, error) {
	var records []models.NotificationRecord
	err := r.db.WithContext(ctx).
		Where("status IN ? AND retry_count < ?",
			[]models.NotificationStatus{models.NotificationStatusPending, models.NotificationStatusFailed}, maxRetries).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *NotificationRepositoryImpl) ClaimRetry(ctx context.Context, id string, seenRetryCount int, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("id = ? AND retry_count = ? AND status IN ?", id, seenRetryCount,
			[]models.NotificationStatus{models.NotificationStatusPending, models.NotificationStatusFailed}).
		Updates(map[string]interface{}{
			"retry_count":     gorm.Expr("retry_count + 1"),
			"last_attempt_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *NotificationRepositoryImpl) Retire(ctx context.Context, id string, seenRetryCount, maxRetries int, reason string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("id = ? AND retry_count = ? AND status IN ?", id, seenRetryCount,
			[]models.NotificationStatus{models.NotificationStatusPending, models.NotificationStatusFailed}).
		Updates(map[string]interface{}{
			"status":          models.NotificationStatusFailed,
			"retry_count":     maxRetries,
			"last_error":      reason,
			"last_attempt_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *NotificationRepositoryImpl) CountByStatus(ctx context.Context) (map[models.NotificationStatus]int64, error) {
	var rows []struct {
		Status models.NotificationStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[models.NotificationStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *NotificationRepositoryImpl) CountPermanentlyFailed(ctx context.Context, maxRetries int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("status = ? AND retry_count >= ?", models.NotificationStatusFailed, maxRetries).
		Count(&count).Error
	return count, err
}

func (r *NotificationRepositoryImpl) validateNotification(record *models.NotificationRecord) error {
	if record.UserID == "" || record.Type == "" {
		return ErrInvalidNotification
	}
	if record.Priority < 1 || record.Priority > 5 {
		return ErrInvalidNotification
	}
	return nil
}
