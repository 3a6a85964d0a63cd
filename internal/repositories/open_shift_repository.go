package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"shiftoffer_backend/internal/models"
)

type OpenShiftRepository interface {
	Create(ctx context.Context, req *models.OpenShiftRequest) error
	FindByID(ctx context.Context, id string) (*models.OpenShiftRequest, error)
	ListOpen(ctx context.Context) ([]models.OpenShiftRequest, error)
	// Close переводит open -> терминальный статус. false, если запрос уже не open.
	Close(ctx context.Context, id string, status models.OpenShiftStatus, at time.Time, filledBy string) (bool, error)
}

type OpenShiftRepositoryImpl struct {
	db *gorm.DB
}

func NewOpenShiftRepository(db *gorm.DB) OpenShiftRepository {
	return &OpenShiftRepositoryImpl{db: db}
}

// Create сохраняет запрос, если для смены нет другого открытого.
// В postgres/sqlite дополнительно страхует частичный уникальный индекс.
func (r *OpenShiftRepositoryImpl) Create(ctx context.Context, req *models.OpenShiftRequest) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.OpenShiftRequest{}).
			Where("shift_id = ? AND status = ?", req.ShiftID, models.OpenShiftStatusOpen).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrOpenShiftExists
		}
		if err := tx.Create(req).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrOpenShiftExists
			}
			return err
		}
		return nil
	})
}

func (r *OpenShiftRepositoryImpl) FindByID(ctx context.Context, id string) (*models.OpenShiftRequest, error) {
	var req models.OpenShiftRequest
	err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOpenShiftNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (r *OpenShiftRepositoryImpl) ListOpen(ctx context.Context) ([]models.OpenShiftRequest, error) {
	var list []models.OpenShiftRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", models.OpenShiftStatusOpen).
		Order("posted_at ASC").
		Find(&list).Error
	return list, err
}

func (r *OpenShiftRepositoryImpl) Close(ctx context.Context, id string, status models.OpenShiftStatus, at time.Time, filledBy string) (bool, error) {
	updates := map[string]interface{}{"status": status}
	switch status {
	case models.OpenShiftStatusFilled:
		updates["filled_at"] = at
		updates["filled_by"] = filledBy
	case models.OpenShiftStatusCancelled:
		updates["cancelled_at"] = at
	}

	result := r.db.WithContext(ctx).Model(&models.OpenShiftRequest{}).
		Where("id = ? AND status = ?", id, models.OpenShiftStatusOpen).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
