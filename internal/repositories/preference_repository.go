package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shiftoffer_backend/internal/models"
)

type PreferenceRepository interface {
	FindByUser(ctx context.Context, userID string) ([]models.ChannelPreference, error)
	Upsert(ctx context.Context, pref *models.ChannelPreference) error
}

type PreferenceRepositoryImpl struct {
	db *gorm.DB
}

func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &PreferenceRepositoryImpl{db: db}
}

func (r *PreferenceRepositoryImpl) FindByUser(ctx context.Context, userID string) ([]models.ChannelPreference, error) {
	var prefs []models.ChannelPreference
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&prefs).Error
	return prefs, err
}

func (r *PreferenceRepositoryImpl) Upsert(ctx context.Context, pref *models.ChannelPreference) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "channel"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
	}).Create(pref).Error
}
