package repositories

import (
	"context"

	"gorm.io/gorm"

	"shiftoffer_backend/internal/models"
)

// AuditRepository - журнал только на вставку. Методов изменения нет.
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditLog) error
	ListAfter(ctx context.Context, afterID uint64, limit int) ([]models.AuditLog, error)
	ListByResource(ctx context.Context, resourceID string) ([]models.AuditLog, error)
}

type AuditRepositoryImpl struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &AuditRepositoryImpl{db: db}
}

func (r *AuditRepositoryImpl) Append(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *AuditRepositoryImpl) ListAfter(ctx context.Context, afterID uint64, limit int) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *AuditRepositoryImpl) ListByResource(ctx context.Context, resourceID string) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}
