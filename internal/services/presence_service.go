package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"shiftoffer_backend/internal/cache"
	"shiftoffer_backend/internal/channels"
	"shiftoffer_backend/internal/models"
	"shiftoffer_backend/internal/repositories"
	"shiftoffer_backend/pkg/apperrors"
)

type PresenceService interface {
	UpdatePresence(ctx context.Context, userID string, status models.PresenceStatus) error
	// ChooseStatus - статус, выбранный пользователем; ручной offline переживает heartbeat
	ChooseStatus(ctx context.Context, userID string, status models.PresenceStatus) error
	// Connect/Disconnect учитывают живые соединения; offline только после последнего
	Connect(ctx context.Context, userID string) error
	Disconnect(ctx context.Context, userID string) error
	Heartbeat(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	// ReplayPending забирает отложенные in-app сообщения при подключении
	ReplayPending(ctx context.Context, userID string) ([][]byte, error)
}

// PresencePayload - событие присутствия для группы отдела
type PresencePayload struct {
	Kind      string                `json:"kind"`
	UserID    string                `json:"user_id"`
	Status    models.PresenceStatus `json:"status"`
	UpdatedAt time.Time             `json:"updated_at"`
}

type presenceService struct {
	store    *cache.PresenceStore
	pending  *cache.PendingStore
	realtime channels.Realtime
	userRepo repositories.UserRepository
	logger   *zap.Logger
}

func NewPresenceService(
	store *cache.PresenceStore,
	pending *cache.PendingStore,
	realtime channels.Realtime,
	userRepo repositories.UserRepository,
	logger *zap.Logger,
) PresenceService {
	return &presenceService{
		store:    store,
		pending:  pending,
		realtime: realtime,
		userRepo: userRepo,
		logger:   logger.Named("presence"),
	}
}

func (s *presenceService) UpdatePresence(ctx context.Context, userID string, status models.PresenceStatus) error {
	if err := validPresence(status); err != nil {
		return err
	}
	if err := s.store.Set(ctx, userID, string(status)); err != nil {
		return presenceUnavailable(err)
	}
	s.broadcast(ctx, userID, status)
	return nil
}

func (s *presenceService) ChooseStatus(ctx context.Context, userID string, status models.PresenceStatus) error {
	if err := validPresence(status); err != nil {
		return err
	}
	if err := s.store.SetManualOffline(ctx, userID, status == models.PresenceOffline); err != nil {
		return presenceUnavailable(err)
	}
	return s.UpdatePresence(ctx, userID, status)
}

func (s *presenceService) Connect(ctx context.Context, userID string) error {
	changed, err := s.store.Connect(ctx, userID)
	if err != nil {
		return presenceUnavailable(err)
	}
	s.broadcastChange(ctx, userID, changed)
	return nil
}

func (s *presenceService) Disconnect(ctx context.Context, userID string) error {
	changed, err := s.store.Disconnect(ctx, userID)
	if err != nil {
		return presenceUnavailable(err)
	}
	s.broadcastChange(ctx, userID, changed)
	return nil
}

// Heartbeat от живого соединения продлевает TTL и возвращает online,
// если его перетерла запоздавшая запись offline
func (s *presenceService) Heartbeat(ctx context.Context, userID string) error {
	changed, err := s.store.Touch(ctx, userID)
	if err != nil {
		return err
	}
	s.broadcastChange(ctx, userID, changed)
	return nil
}

func (s *presenceService) broadcastChange(ctx context.Context, userID, changed string) {
	if changed != "" {
		s.broadcast(ctx, userID, models.PresenceStatus(changed))
	}
}

func (s *presenceService) broadcast(ctx context.Context, userID string, status models.PresenceStatus) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repositories.ErrUserNotFound) {
			s.logger.Warn("presence broadcast skipped", zap.String("user_id", userID), zap.Error(err))
		}
		return
	}
	if user.DepartmentID == "" {
		return
	}

	payload, _ := json.Marshal(PresencePayload{
		Kind:      "presence",
		UserID:    userID,
		Status:    status,
		UpdatedAt: time.Now().UTC(),
	})
	if err := s.realtime.PublishToDepartment(ctx, user.DepartmentID, payload); err != nil {
		s.logger.Warn("presence broadcast failed",
			zap.String("user_id", userID), zap.String("department_id", user.DepartmentID), zap.Error(err))
	}
}

func (s *presenceService) IsOnline(ctx context.Context, userID string) (bool, error) {
	status, err := s.store.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return status == string(models.PresenceOnline), nil
}

func (s *presenceService) ReplayPending(ctx context.Context, userID string) ([][]byte, error) {
	items, err := s.pending.Drain(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		s.logger.Debug("replaying pending in-app messages", zap.String("user_id", userID), zap.Int("count", len(items)))
	}
	return items, nil
}

func validPresence(status models.PresenceStatus) error {
	if status != models.PresenceOnline && status != models.PresenceOffline {
		return apperrors.ValidationError(map[string]string{"status": "must be online or offline"})
	}
	return nil
}

func presenceUnavailable(err error) error {
	return apperrors.Wrap(err, apperrors.CodeExternalServiceError, "presence", "Presence store unavailable", http.StatusServiceUnavailable)
}
