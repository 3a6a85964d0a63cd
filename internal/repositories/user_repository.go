package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"shiftoffer_backend/internal/models"
)

// UserRepository - чтение сотрудников и смен (проекции из кадровой системы)
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindActiveByDepartment(ctx context.Context, departmentID string) ([]models.User, error)
	FindShiftByID(ctx context.Context, id string) (*models.Shift, error)
	UpdatePushSubscription(ctx context.Context, userID string, subscription []byte) error
}

type UserRepositoryImpl struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &UserRepositoryImpl{db: db}
}

func (r *UserRepositoryImpl) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepositoryImpl) FindActiveByDepartment(ctx context.Context, departmentID string) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("department_id = ? AND is_active = ?", departmentID, true).
		Order("id ASC").
		Find(&users).Error
	return users, err
}

func (r *UserRepositoryImpl) FindShiftByID(ctx context.Context, id string) (*models.Shift, error) {
	var shift models.Shift
	err := r.db.WithContext(ctx).First(&shift, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftNotFound
		}
		return nil, err
	}
	return &shift, nil
}

func (r *UserRepositoryImpl) UpdatePushSubscription(ctx context.Context, userID string, subscription []byte) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("push_subscription", subscription)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
