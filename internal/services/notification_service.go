package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"shiftoffer_backend/internal/channels"
	"shiftoffer_backend/internal/email"
	"shiftoffer_backend/internal/events"
	"shiftoffer_backend/internal/models"
	"shiftoffer_backend/internal/repositories"
	"shiftoffer_backend/internal/services/dto"
	"shiftoffer_backend/internal/templates"
	"shiftoffer_backend/pkg/apperrors"
)

const defaultNotificationPriority = 3

type NotificationService interface {
	// Рассылка
	SendNotification(ctx context.Context, req *dto.SendNotificationRequest) (*dto.SendNotificationResult, error)

	// Настройки каналов
	GetPreferences(ctx context.Context, userID string) ([]dto.PreferenceView, error)
	SetPreference(ctx context.Context, userID string, req *dto.SetPreferenceRequest) error
	SavePushSubscription(ctx context.Context, userID string, req *dto.PushSubscriptionRequest) error

	// Повторы и статистика
	RetryFailed(ctx context.Context) (*dto.RetryStats, error)
	GetDeliveryStats(ctx context.Context) (*dto.DeliveryStats, error)

	// Подписчик шины событий
	HandleEvent(ctx context.Context, evt events.Event) error
}

// NotificationConfig - параметры повторов
type NotificationConfig struct {
	MaxRetries     int
	RetryBatchSize int
	// RetryInterval - pending-записи моложе этого интервала еще рассылаются первым проходом
	RetryInterval time.Duration
}

type notificationService struct {
	notificationRepo repositories.NotificationRepository
	preferenceRepo   repositories.PreferenceRepository
	userRepo         repositories.UserRepository
	queueRepo        repositories.QueueEntryRepository
	catalog          *templates.Catalog
	senders          map[models.NotificationChannel]channels.Sender
	cfg              NotificationConfig
	logger           *zap.Logger
	now              func() time.Time
}

func NewNotificationService(
	notificationRepo repositories.NotificationRepository,
	preferenceRepo repositories.PreferenceRepository,
	userRepo repositories.UserRepository,
	queueRepo repositories.QueueEntryRepository,
	catalog *templates.Catalog,
	senders []channels.Sender,
	cfg NotificationConfig,
	logger *zap.Logger,
) NotificationService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBatchSize <= 0 {
		cfg.RetryBatchSize = 100
	}
	bySender := make(map[models.NotificationChannel]channels.Sender, len(senders))
	for _, s := range senders {
		bySender[s.Channel()] = s
	}
	return &notificationService{
		notificationRepo: notificationRepo,
		preferenceRepo:   preferenceRepo,
		userRepo:         userRepo,
		queueRepo:        queueRepo,
		catalog:          catalog,
		senders:          bySender,
		cfg:              cfg,
		logger:           logger.Named("notifications"),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// ---------------- Рассылка ----------------

func (s *notificationService) SendNotification(ctx context.Context, req *dto.SendNotificationRequest) (*dto.SendNotificationResult, error) {
	requested, err := normalizeChannels(req.Channels)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrNotFound(err)
		}
		return nil, apperrors.PersistenceError(err, "Failed to load recipient")
	}

	msg, err := s.render(req)
	if err != nil {
		return nil, err
	}

	channelsJSON, _ := json.Marshal(requested)
	dataJSON, err := json.Marshal(req.Data)
	if err != nil {
		return nil, apperrors.ValidationError(map[string]string{"data": "must be a JSON object"})
	}

	record := &models.NotificationRecord{
		UserID:   user.ID,
		Type:     req.Type,
		Channels: datatypes.JSON(channelsJSON),
		Priority: msg.Priority,
		Subject:  msg.Subject,
		Body:     msg.Body,
		Data:     datatypes.JSON(dataJSON),
		Status:   models.NotificationStatusPending,
	}
	if err := s.notificationRepo.Create(ctx, record); err != nil {
		if errors.Is(err, repositories.ErrInvalidNotification) {
			return nil, apperrors.ValidationError(map[string]string{"notification": err.Error()})
		}
		return nil, apperrors.PersistenceError(err, "Failed to create notification record")
	}
	msg.NotificationID = record.ID
	msg.CreatedAt = record.CreatedAt
	msg.Invite = s.inviteFor(ctx, record.Type, req.Data, user)

	results := s.dispatch(ctx, user, msg, requested)
	merged := make(map[models.NotificationChannel]channels.Result, len(results))
	for _, r := range results {
		merged[r.Channel] = r
	}
	s.finishAttempt(ctx, record, merged)

	return &dto.SendNotificationResult{
		NotificationID: record.ID,
		Status:         record.Status,
		Results:        results,
	}, nil
}

// render берет текст из запроса, недостающее - из каталога шаблонов
func (s *notificationService) render(req *dto.SendNotificationRequest) (channels.Message, error) {
	msg := channels.Message{
		Type:                  req.Type,
		Priority:              req.Priority,
		Subject:               req.Subject,
		Body:                  req.Body,
		Data:                  req.Data,
		BroadcastToDepartment: req.BroadcastToDepartment,
	}

	if s.catalog != nil && s.catalog.Has(req.Type) {
		rendered, err := s.catalog.Render(req.Type, req.Data)
		if err != nil {
			return msg, apperrors.InternalError(err)
		}
		if msg.Subject == "" {
			msg.Subject = rendered.Subject
		}
		if msg.Body == "" {
			msg.Body = rendered.Body
			msg.SMSBody = rendered.SMS
		}
		if msg.Priority == 0 {
			msg.Priority = rendered.Priority
		}
		msg.EmailTemplate = rendered.EmailTemplate
	} else if msg.Subject == "" || msg.Body == "" {
		return msg, apperrors.ValidationError(map[string]string{
			"type": "unknown notification type requires subject and body",
		})
	}

	if msg.Priority == 0 {
		msg.Priority = defaultNotificationPriority
	}
	return msg, nil
}

// dispatch опрашивает каналы параллельно; сбой одного не влияет на другие
func (s *notificationService) dispatch(ctx context.Context, user *models.User, msg channels.Message, requested []models.NotificationChannel) []channels.Result {
	prefs := s.resolvePreferences(ctx, user.ID)
	recipient := channels.Recipient{
		UserID:           user.ID,
		Name:             user.Name,
		Email:            user.Email,
		Phone:            user.Phone,
		DepartmentID:     user.DepartmentID,
		PushSubscription: user.PushSubscription,
	}

	results := make([]channels.Result, len(requested))
	var g errgroup.Group
	for i, ch := range requested {
		sender, ok := s.senders[ch]
		if !ok {
			results[i] = channels.Result{Channel: ch, Status: channels.StatusDisabled, AttemptAt: s.now()}
			continue
		}
		if pc, ok := sender.(channels.Prechecker); ok {
			if status, skip := pc.Precheck(msg); skip {
				results[i] = channels.Result{Channel: ch, Status: status, AttemptAt: s.now()}
				continue
			}
		}
		if !prefs[ch] {
			results[i] = channels.Result{Channel: ch, Status: channels.StatusDisabled, AttemptAt: s.now()}
			continue
		}

		i, ch, sender := i, ch, sender
		g.Go(func() error {
			res, err := s.deliverSafely(ctx, sender, recipient, msg)
			if err != nil {
				apperrors.LogAtSeverity(s.logger, "channel delivery failed",
					apperrors.ChannelDeliveryError(string(ch), err),
					zap.String("notification_id", msg.NotificationID),
					zap.String("user_id", user.ID),
					zap.String("channel", string(ch)))
				res.Channel = ch
				res.Status = channels.StatusFailed
				res.Error = err.Error()
			}
			if res.AttemptAt.IsZero() {
				res.AttemptAt = s.now()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *notificationService) deliverSafely(ctx context.Context, sender channels.Sender, r channels.Recipient, m channels.Message) (res channels.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sender panic: %v", p)
		}
	}()
	return sender.Deliver(ctx, r, m)
}

// finishAttempt вычисляет итоговый статус и сохраняет результаты.
// sent - ни один канал не упал; failed - хотя бы один упал и будет повторен.
func (s *notificationService) finishAttempt(ctx context.Context, record *models.NotificationRecord, results map[models.NotificationChannel]channels.Result) {
	var failures []string
	for _, ch := range models.AllChannels {
		if r, ok := results[ch]; ok && r.Status == channels.StatusFailed {
			failures = append(failures, fmt.Sprintf("%s: %s", ch, r.Error))
		}
	}

	record.Status = models.NotificationStatusSent
	record.LastError = ""
	if len(failures) > 0 {
		record.Status = models.NotificationStatusFailed
		record.LastError = strings.Join(failures, "; ")
	}
	raw, _ := json.Marshal(results)
	record.ChannelResults = datatypes.JSON(raw)
	at := s.now()
	record.LastAttemptAt = &at

	if err := s.notificationRepo.SaveAttempt(ctx, record); err != nil {
		// запись останется pending и будет подобрана повтором
		s.logger.Error("failed to save notification attempt",
			zap.String("notification_id", record.ID), zap.Error(err))
	}
}

func (s *notificationService) resolvePreferences(ctx context.Context, userID string) map[models.NotificationChannel]bool {
	prefs := make(map[models.NotificationChannel]bool, len(models.AllChannels))
	for _, ch := range models.AllChannels {
		prefs[ch] = ch.DefaultEnabled()
	}
	stored, err := s.preferenceRepo.FindByUser(ctx, userID)
	if err != nil {
		s.logger.Warn("falling back to default channel preferences",
			zap.String("user_id", userID), zap.Error(err))
		return prefs
	}
	for _, p := range stored {
		prefs[p.Channel] = p.Enabled
	}
	return prefs
}

// inviteFor прикладывает календарное приглашение к назначению смены
func (s *notificationService) inviteFor(ctx context.Context, t models.NotificationType, data map[string]any, user *models.User) *email.ShiftInvite {
	if t != models.NotificationShiftAssigned {
		return nil
	}
	shiftID, _ := data["shift_id"].(string)
	if shiftID == "" {
		return nil
	}
	shift, err := s.userRepo.FindShiftByID(ctx, shiftID)
	if err != nil {
		s.logger.Warn("shift not found for calendar invite", zap.String("shift_id", shiftID), zap.Error(err))
		return nil
	}
	uid := shiftID
	if id, ok := data["open_shift_id"].(string); ok && id != "" {
		uid = id
	}
	return &email.ShiftInvite{
		UID:       uid,
		Summary:   shift.Title,
		Location:  shift.Location,
		StartsAt:  shift.StartsAt,
		EndsAt:    shift.EndsAt,
		Organizer: user.Email,
	}
}

func normalizeChannels(requested []models.NotificationChannel) ([]models.NotificationChannel, error) {
	if len(requested) == 0 {
		return append([]models.NotificationChannel(nil), models.AllChannels...), nil
	}
	seen := make(map[models.NotificationChannel]bool, len(requested))
	out := make([]models.NotificationChannel, 0, len(requested))
	for _, ch := range requested {
		if !ch.IsValid() {
			return nil, apperrors.ValidationError(map[string]string{"channels": "unknown channel " + string(ch)})
		}
		if seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out, nil
}

// ---------------- Настройки каналов ----------------

func (s *notificationService) GetPreferences(ctx context.Context, userID string) ([]dto.PreferenceView, error) {
	if _, err := s.userRepo.FindByID(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrNotFound(err)
		}
		return nil, apperrors.PersistenceError(err, "Failed to load user")
	}

	prefs := s.resolvePreferences(ctx, userID)
	out := make([]dto.PreferenceView, 0, len(models.AllChannels))
	for _, ch := range models.AllChannels {
		out = append(out, dto.PreferenceView{Channel: ch, Enabled: prefs[ch]})
	}
	return out, nil
}

func (s *notificationService) SetPreference(ctx context.Context, userID string, req *dto.SetPreferenceRequest) error {
	if !req.Channel.IsValid() || req.Enabled == nil {
		return apperrors.ValidationError(map[string]string{"channel": "invalid preference"})
	}
	if _, err := s.userRepo.FindByID(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return apperrors.ErrNotFound(err)
		}
		return apperrors.PersistenceError(err, "Failed to load user")
	}
	err := s.preferenceRepo.Upsert(ctx, &models.ChannelPreference{
		UserID:  userID,
		Channel: req.Channel,
		Enabled: *req.Enabled,
	})
	if err != nil {
		return apperrors.PersistenceError(err, "Failed to save preference")
	}
	return nil
}

func (s *notificationService) SavePushSubscription(ctx context.Context, userID string, req *dto.PushSubscriptionRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return apperrors.InternalError(err)
	}
	if err := s.userRepo.UpdatePushSubscription(ctx, userID, raw); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return apperrors.ErrNotFound(err)
		}
		return apperrors.PersistenceError(err, "Failed to save push subscription")
	}
	return nil
}

// ---------------- Повторы ----------------

// RetryFailed - один проход повторной рассылки.
// Запись захватывается условным инкрементом retry_count, поэтому два
// параллельных прохода не отправят ее дважды.
func (s *notificationService) RetryFailed(ctx context.Context) (*dto.RetryStats, error) {
	records, err := s.notificationRepo.FindRetryable(ctx, s.cfg.MaxRetries, s.cfg.RetryBatchSize)
	if err != nil {
		return nil, apperrors.PersistenceError(err, "Failed to load retryable notifications")
	}

	stats := &dto.RetryStats{Scanned: len(records)}
	now := s.now()
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		record := &records[i]
		if record.Status == models.NotificationStatusPending && now.Sub(record.CreatedAt) < s.cfg.RetryInterval {
			continue
		}

		if s.offerWithdrawn(ctx, record, now) {
			retired, err := s.notificationRepo.Retire(ctx, record.ID, record.RetryCount, s.cfg.MaxRetries, offerWithdrawnReason, now)
			if err != nil {
				s.logger.Error("failed to retire notification", zap.String("notification_id", record.ID), zap.Error(err))
				continue
			}
			if retired {
				stats.Withdrawn++
				s.logger.Info("notification retry skipped, offer no longer open",
					zap.String("notification_id", record.ID), zap.String("user_id", record.UserID))
			}
			continue
		}

		claimed, err := s.notificationRepo.ClaimRetry(ctx, record.ID, record.RetryCount, now)
		if err != nil {
			s.logger.Error("failed to claim notification retry", zap.String("notification_id", record.ID), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}
		record.RetryCount++
		stats.Retried++

		if err := s.retryRecord(ctx, record); err != nil {
			s.logger.Error("notification retry aborted", zap.String("notification_id", record.ID), zap.Error(err))
		}

		switch {
		case record.Status == models.NotificationStatusSent:
			stats.Recovered++
		case record.RetryCount >= s.cfg.MaxRetries:
			stats.Exhausted++
			s.logger.Error("notification permanently failed",
				zap.String("notification_id", record.ID),
				zap.String("user_id", record.UserID),
				zap.String("type", string(record.Type)),
				zap.Int("retry_count", record.RetryCount),
				zap.String("last_error", record.LastError))
		}
	}
	return stats, nil
}

const offerWithdrawnReason = "offer no longer open"

// offerWithdrawn - повтор SHIFT_AVAILABLE бессмыслен, если запись очереди
// уже не ждет ответа или ее окно закрылось
func (s *notificationService) offerWithdrawn(ctx context.Context, record *models.NotificationRecord, now time.Time) bool {
	if record.Type != models.NotificationShiftAvailable || s.queueRepo == nil {
		return false
	}
	var data struct {
		QueueEntryID string `json:"queue_entry_id"`
	}
	if err := json.Unmarshal(record.Data, &data); err != nil || data.QueueEntryID == "" {
		return false
	}
	entry, err := s.queueRepo.FindByID(ctx, data.QueueEntryID)
	if err != nil {
		if errors.Is(err, repositories.ErrQueueEntryNotFound) {
			return true
		}
		s.logger.Warn("offer check failed, retrying anyway",
			zap.String("notification_id", record.ID), zap.Error(err))
		return false
	}
	return !entry.InActiveWindow(now)
}

// retryRecord повторяет только упавшие каналы; pending-запись рассылается целиком
func (s *notificationService) retryRecord(ctx context.Context, record *models.NotificationRecord) error {
	user, err := s.userRepo.FindByID(ctx, record.UserID)
	if err != nil {
		record.Status = models.NotificationStatusFailed
		record.LastError = "recipient: " + err.Error()
		s.finishAttempt(ctx, record, previousResults(record))
		return err
	}

	var requested []models.NotificationChannel
	_ = json.Unmarshal(record.Channels, &requested)
	var data map[string]any
	_ = json.Unmarshal(record.Data, &data)

	previous := previousResults(record)
	var targets []models.NotificationChannel
	if record.Status == models.NotificationStatusFailed {
		for _, ch := range requested {
			if r, ok := previous[ch]; ok && r.Status == channels.StatusFailed {
				targets = append(targets, ch)
			}
		}
	}
	if len(targets) == 0 {
		targets = requested
	}

	msg, err := s.render(&dto.SendNotificationRequest{
		UserID:   record.UserID,
		Type:     record.Type,
		Priority: record.Priority,
		Subject:  record.Subject,
		Body:     record.Body,
		Data:     data,
	})
	if err != nil {
		return err
	}
	msg.NotificationID = record.ID
	msg.CreatedAt = record.CreatedAt
	msg.Invite = s.inviteFor(ctx, record.Type, data, user)

	for _, r := range s.dispatch(ctx, user, msg, targets) {
		previous[r.Channel] = r
	}
	s.finishAttempt(ctx, record, previous)
	return nil
}

func previousResults(record *models.NotificationRecord) map[models.NotificationChannel]channels.Result {
	out := make(map[models.NotificationChannel]channels.Result)
	if len(record.ChannelResults) > 0 {
		_ = json.Unmarshal(record.ChannelResults, &out)
	}
	return out
}

func (s *notificationService) GetDeliveryStats(ctx context.Context) (*dto.DeliveryStats, error) {
	counts, err := s.notificationRepo.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.PersistenceError(err, "Failed to count notifications")
	}
	permanent, err := s.notificationRepo.CountPermanentlyFailed(ctx, s.cfg.MaxRetries)
	if err != nil {
		return nil, apperrors.PersistenceError(err, "Failed to count notifications")
	}
	return &dto.DeliveryStats{
		Pending:           counts[models.NotificationStatusPending],
		Sent:              counts[models.NotificationStatusSent],
		Failed:            counts[models.NotificationStatusFailed],
		PermanentlyFailed: permanent,
	}, nil
}

// ---------------- События ----------------

// HandleEvent уведомляет инициатора, если смену так никто и не взял
func (s *notificationService) HandleEvent(ctx context.Context, evt events.Event) error {
	closed, ok := evt.(events.ShiftClosed)
	if !ok || closed.Status != models.OpenShiftStatusExpired || closed.RequestedBy == "" {
		return nil
	}

	vars := map[string]any{
		"open_shift_id": closed.OpenShiftID,
		"shift_id":      closed.ShiftID,
		"reason":        closed.Reason,
	}
	if shift, err := s.userRepo.FindShiftByID(ctx, closed.ShiftID); err == nil {
		for k, v := range ShiftTemplateVars(shift) {
			vars[k] = v
		}
	}

	_, err := s.SendNotification(ctx, &dto.SendNotificationRequest{
		UserID: closed.RequestedBy,
		Type:   models.NotificationOpenShiftUnfilled,
		Data:   vars,
	})
	return err
}

// ShiftTemplateVars - общие переменные шаблонов для смены
func ShiftTemplateVars(shift *models.Shift) map[string]any {
	if shift == nil {
		return map[string]any{}
	}
	return map[string]any{
		"shift_id":    shift.ID,
		"shift_title": shift.Title,
		"location":    shift.Location,
		"starts_at":   shift.StartsAt.UTC().Format("Mon 02 Jan 15:04 MST"),
	}
}
