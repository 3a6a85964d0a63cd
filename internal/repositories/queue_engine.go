package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shiftoffer_backend/internal/algorithms"
	"shiftoffer_backend/internal/models"
)

// QueueCreation - результат материализации очереди
type QueueCreation struct {
	QueueSize        int       `json:"queue_size"`
	FirstWindowStart time.Time `json:"first_window_start"`
}

// AcceptResult - результат ответа на предложение
type AcceptResult struct {
	Result       models.QueueResponseStatus `json:"result"`
	OpenShiftID  string                     `json:"open_shift_id"`
	QueueEntryID string                     `json:"queue_entry_id"`
	UserID       string                     `json:"user_id"`
}

// QueueEngine - ранжирование и атомарные переходы очереди.
// Две реализации: на gorm и на хранимых процедурах postgres.
type QueueEngine interface {
	CreateQueue(ctx context.Context, openShiftID string, windowDurationMinutes, maxQueueSize int) (*QueueCreation, error)
	// ProgressQueue открывает следующее окно, если активного нет.
	// Возвращает число еще ждущих записей.
	ProgressQueue(ctx context.Context, openShiftID string) (int, error)
	// AcceptFromQueue - "кто первый принял, тот и получил"
	AcceptFromQueue(ctx context.Context, queueEntryID, userID string, response models.QueueResponseStatus) (*AcceptResult, error)
	// CleanupExpiredEntries переводит ждущие записи с истекшим окном в expired.
	// Без аргументов - по всем сменам.
	CleanupExpiredEntries(ctx context.Context, openShiftIDs ...string) (int64, error)
}

// GormQueueEngine - реализация на gorm, работает на любом драйвере
type GormQueueEngine struct {
	db         *gorm.DB
	windowSize int
	now        func() time.Time
}

func NewGormQueueEngine(db *gorm.DB, windowSize int, now func() time.Time) *GormQueueEngine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if windowSize < 1 {
		windowSize = 1
	}
	return &GormQueueEngine{db: db, windowSize: windowSize, now: now}
}

func (e *GormQueueEngine) CreateQueue(ctx context.Context, openShiftID string, windowDurationMinutes, maxQueueSize int) (*QueueCreation, error) {
	now := e.now()
	window := time.Duration(windowDurationMinutes) * time.Minute
	var created int

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.OpenShiftRequest
		if err := tx.First(&req, "id = ?", openShiftID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOpenShiftNotFound
			}
			return err
		}
		if req.Status != models.OpenShiftStatusOpen {
			return ErrOpenShiftClosed
		}

		var existing int64
		if err := tx.Model(&models.QueueEntry{}).Where("open_shift_id = ?", openShiftID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrQueueAlreadyCreated
		}

		var shift models.Shift
		if err := tx.First(&shift, "id = ?", req.ShiftID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrShiftNotFound
			}
			return err
		}

		var users []models.User
		if err := tx.Where("department_id = ? AND is_active = ?", shift.DepartmentID, true).Find(&users).Error; err != nil {
			return err
		}

		ranked := algorithms.RankCandidates(users, &shift, req.RequestedBy)
		userIDs := make([]string, 0, len(ranked))
		for _, u := range ranked {
			userIDs = append(userIDs, u.ID)
		}

		entries := algorithms.BuildQueue(openShiftID, userIDs, now, window, e.windowSize, maxQueueSize)
		created = len(entries)
		if created == 0 {
			return nil
		}
		return tx.CreateInBatches(&entries, 100).Error
	})
	if err != nil {
		return nil, err
	}
	return &QueueCreation{QueueSize: created, FirstWindowStart: now}, nil
}

func (e *GormQueueEngine) ProgressQueue(ctx context.Context, openShiftID string) (int, error) {
	now := e.now()
	var remaining int64

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.QueueEntry{}).
			Where("open_shift_id = ? AND response_status = ?", openShiftID, models.QueueStatusWaiting).
			Where("window_starts_at <= ? AND window_expires_at > ?", now, now).
			Count(&active).Error; err != nil {
			return err
		}

		if active == 0 {
			var pending []models.QueueEntry
			if err := tx.Where("open_shift_id = ? AND response_status = ? AND window_starts_at > ?",
				openShiftID, models.QueueStatusWaiting, now).
				Order("queue_position ASC").
				Find(&pending).Error; err != nil {
				return err
			}

			// сдвигаем все будущие окна, сохраняя интервалы между ними
			if offset := algorithms.RebaseOffset(pending, now); offset > 0 {
				for _, p := range pending {
					if err := tx.Model(&models.QueueEntry{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
						"window_starts_at":  p.WindowStartsAt.Add(-offset),
						"window_expires_at": p.WindowExpiresAt.Add(-offset),
					}).Error; err != nil {
						return err
					}
				}
			}
		}

		return tx.Model(&models.QueueEntry{}).
			Where("open_shift_id = ? AND response_status = ? AND window_expires_at > ?", openShiftID, models.QueueStatusWaiting, now).
			Count(&remaining).Error
	})
	return int(remaining), err
}

func (e *GormQueueEngine) AcceptFromQueue(ctx context.Context, queueEntryID, userID string, response models.QueueResponseStatus) (*AcceptResult, error) {
	if response != models.QueueStatusAccepted && response != models.QueueStatusDeclined {
		return nil, fmt.Errorf("unsupported response %q", response)
	}
	now := e.now()
	result := &AcceptResult{Result: response, QueueEntryID: queueEntryID, UserID: userID}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.QueueEntry
		if err := tx.First(&entry, "id = ?", queueEntryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQueueEntryNotFound
			}
			return err
		}
		result.OpenShiftID = entry.OpenShiftID

		// сначала блокируем запрос, как и процедура: конкурирующие ответы
		// по одной смене выстраиваются здесь, а не на строках очереди
		var request models.OpenShiftRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND status = ?", entry.OpenShiftID, models.OpenShiftStatusOpen).
			First(&request).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEntryNotActionable
			}
			return err
		}

		// условное обновление: ждет, принадлежит пользователю, окно открыто
		upd := tx.Model(&models.QueueEntry{}).
			Where("id = ? AND user_id = ? AND response_status = ?", queueEntryID, userID, models.QueueStatusWaiting).
			Where("window_starts_at <= ? AND window_expires_at > ?", now, now).
			Updates(map[string]interface{}{
				"response_status": response,
				"responded_at":    now,
			})
		if upd.Error != nil {
			if errors.Is(upd.Error, gorm.ErrDuplicatedKey) {
				return ErrEntryNotActionable
			}
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrEntryNotActionable
		}

		if response == models.QueueStatusDeclined {
			return nil
		}

		fill := tx.Model(&models.OpenShiftRequest{}).
			Where("id = ? AND status = ?", entry.OpenShiftID, models.OpenShiftStatusOpen).
			Updates(map[string]interface{}{
				"status":    models.OpenShiftStatusFilled,
				"filled_at": now,
				"filled_by": userID,
			})
		if fill.Error != nil {
			return fill.Error
		}
		if fill.RowsAffected == 0 {
			return ErrEntryNotActionable
		}

		return tx.Model(&models.QueueEntry{}).
			Where("open_shift_id = ? AND id <> ? AND response_status = ?", entry.OpenShiftID, queueEntryID, models.QueueStatusWaiting).
			Update("response_status", models.QueueStatusExpired).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *GormQueueEngine) CleanupExpiredEntries(ctx context.Context, openShiftIDs ...string) (int64, error) {
	q := e.db.WithContext(ctx).Model(&models.QueueEntry{}).
		Where("response_status = ? AND window_expires_at <= ?", models.QueueStatusWaiting, e.now())
	if len(openShiftIDs) > 0 {
		q = q.Where("open_shift_id IN ?", openShiftIDs)
	}
	res := q.Update("response_status", models.QueueStatusExpired)
	return res.RowsAffected, res.Error
}

// ProcedureQueueEngine вызывает хранимые процедуры postgres
// (database/migrations/000002_queue_procedures.up.sql).
type ProcedureQueueEngine struct {
	db         *gorm.DB
	windowSize int
}

func NewProcedureQueueEngine(db *gorm.DB, windowSize int) *ProcedureQueueEngine {
	if windowSize < 1 {
		windowSize = 1
	}
	return &ProcedureQueueEngine{db: db, windowSize: windowSize}
}

func (e *ProcedureQueueEngine) CreateQueue(ctx context.Context, openShiftID string, windowDurationMinutes, maxQueueSize int) (*QueueCreation, error) {
	var row struct {
		QueueSize        int
		FirstWindowStart time.Time
	}
	err := e.db.WithContext(ctx).
		Raw("SELECT queue_size, first_window_start FROM create_open_shift_queue(?, ?, ?, ?)",
			openShiftID, windowDurationMinutes, maxQueueSize, e.windowSize).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &QueueCreation{QueueSize: row.QueueSize, FirstWindowStart: row.FirstWindowStart}, nil
}

func (e *ProcedureQueueEngine) ProgressQueue(ctx context.Context, openShiftID string) (int, error) {
	var remaining int
	err := e.db.WithContext(ctx).
		Raw("SELECT progress_open_shift_queue(?)", openShiftID).
		Scan(&remaining).Error
	return remaining, err
}

func (e *ProcedureQueueEngine) AcceptFromQueue(ctx context.Context, queueEntryID, userID string, response models.QueueResponseStatus) (*AcceptResult, error) {
	var row struct {
		Success     bool
		Result      string
		OpenShiftID string
	}
	err := e.db.WithContext(ctx).
		Raw("SELECT success, result, open_shift_id FROM accept_from_open_shift_queue(?, ?, ?)",
			queueEntryID, userID, string(response)).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if !row.Success {
		if row.Result == "not_found" {
			return nil, ErrQueueEntryNotFound
		}
		return nil, ErrEntryNotActionable
	}
	return &AcceptResult{
		Result:       models.QueueResponseStatus(row.Result),
		OpenShiftID:  row.OpenShiftID,
		QueueEntryID: queueEntryID,
		UserID:       userID,
	}, nil
}

func (e *ProcedureQueueEngine) CleanupExpiredEntries(ctx context.Context, openShiftIDs ...string) (int64, error) {
	var count int64
	var err error
	if len(openShiftIDs) == 0 {
		err = e.db.WithContext(ctx).Raw("SELECT cleanup_expired_queue_entries(NULL)").Scan(&count).Error
		return count, err
	}
	for _, id := range openShiftIDs {
		var n int64
		if err = e.db.WithContext(ctx).Raw("SELECT cleanup_expired_queue_entries(?)", id).Scan(&n).Error; err != nil {
			return count, err
		}
		count += n
	}
	return count, nil
}
