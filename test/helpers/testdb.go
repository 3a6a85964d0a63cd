package helpers

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shiftoffer_backend/database"
	"shiftoffer_backend/internal/models"
)

// NewTestDB - отдельная in-memory sqlite база на каждый тест
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())

	db, err := database.Open(database.Options{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("Не удалось открыть тестовую БД: %v", err)
	}
	if err := database.Migrate(db, "sqlite", zap.NewNop()); err != nil {
		t.Fatalf("Не удалось выполнить миграции тестовой БД: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewTestRedis - miniredis и клиент к нему
func NewTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// FixedClock - управляемые часы для тестов окон очереди
type FixedClock struct {
	now time.Time
}

func NewFixedClock(start time.Time) *FixedClock {
	return &FixedClock{now: start.UTC()}
}

func (c *FixedClock) Now() time.Time { return c.now }

func (c *FixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// CreateShift создает смену в отделе
func CreateShift(t *testing.T, db *gorm.DB, departmentID string, startsAt time.Time) *models.Shift {
	t.Helper()

	shift := &models.Shift{
		DepartmentID: departmentID,
		Title:        "Night shift",
		Location:     "Ward 3",
		StartsAt:     startsAt,
		EndsAt:       startsAt.Add(8 * time.Hour),
	}
	if err := db.Create(shift).Error; err != nil {
		t.Fatalf("Не удалось создать смену: %v", err)
	}
	return shift
}

// CreateUsers создает n активных сотрудников отдела. ID упорядочены
// по номеру, чтобы порядок очереди был предсказуем.
func CreateUsers(t *testing.T, db *gorm.DB, departmentID string, n int) []*models.User {
	t.Helper()

	users := make([]*models.User, 0, n)
	for i := 1; i <= n; i++ {
		u := &models.User{
			BaseModel:    models.BaseModel{ID: fmt.Sprintf("%s-user-%03d", departmentID, i)},
			Name:         fmt.Sprintf("Worker %d", i),
			Email:        fmt.Sprintf("worker%d@example.com", i),
			Phone:        fmt.Sprintf("+1555000%04d", i),
			DepartmentID: departmentID,
			IsActive:     true,
		}
		if err := db.Create(u).Error; err != nil {
			t.Fatalf("Не удалось создать пользователя %d: %v", i, err)
		}
		users = append(users, u)
	}
	return users
}
