package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shiftoffer_backend/internal/events"
	"shiftoffer_backend/internal/models"
	"shiftoffer_backend/internal/repositories"
	"shiftoffer_backend/internal/services/dto"
	"shiftoffer_backend/pkg/apperrors"
)

const (
	reasonAccepted       = "accepted"
	reasonQueueExhausted = "queue_exhausted"
	reasonElapsed        = "elapsed"
	reasonCancelled      = "cancelled"

	windowNotifyConcurrency = 8
)

type QueueService interface {
	PostOpenShift(ctx context.Context, req *dto.PostOpenShiftRequest) (*dto.PostOpenShiftResult, error)
	NotifyCurrentWindow(ctx context.Context, openShiftID string) (int, error)
	RespondToOffer(ctx context.Context, queueEntryID, userID string, response models.QueueResponseStatus) (*dto.RespondResult, error)
	CheckAndProgressWindow(ctx context.Context, openShiftID string) (*dto.ProgressResult, error)
	CancelOpenShift(ctx context.Context, openShiftID, cancelledBy, reason string) error
	GetQueueStatus(ctx context.Context, openShiftID string) (*dto.QueueStatus, error)

	// ResumeOpenShifts заново ставит таймеры для открытых запросов после рестарта
	ResumeOpenShifts(ctx context.Context) (int, error)
	// HandleWindowTimer - колбэк планировщика окон
	HandleWindowTimer(ctx context.Context, openShiftID string)
}

// Locker - распределенная блокировка (cache.LockService)
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, string, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
}

// WindowScheduler - отложенная проверка окна, не больше одного таймера на смену
type WindowScheduler interface {
	Schedule(openShiftID string, after time.Duration)
	Cancel(openShiftID string)
}

// QueueConfig - параметры очереди
type QueueConfig struct {
	WindowDuration time.Duration
	MaxQueueSize   int
	DefaultExpiry  time.Duration
	LockTTL        time.Duration
	LockRetries    int
	LockRetryDelay time.Duration
	// ContentionBackoff - через сколько повторить таймер, если блокировка занята
	ContentionBackoff time.Duration
}

type queueService struct {
	openShiftRepo repositories.OpenShiftRepository
	queueRepo     repositories.QueueEntryRepository
	userRepo      repositories.UserRepository
	engine        repositories.QueueEngine
	notifier      NotificationService
	locker        Locker
	scheduler     WindowScheduler
	publisher     events.Publisher
	cfg           QueueConfig
	logger        *zap.Logger
	now           func() time.Time
}

func NewQueueService(
	openShiftRepo repositories.OpenShiftRepository,
	queueRepo repositories.QueueEntryRepository,
	userRepo repositories.UserRepository,
	engine repositories.QueueEngine,
	notifier NotificationService,
	locker Locker,
	scheduler WindowScheduler,
	publisher events.Publisher,
	cfg QueueConfig,
	logger *zap.Logger,
	now func() time.Time,
) QueueService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = 15 * time.Minute
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.DefaultExpiry <= 0 {
		cfg.DefaultExpiry = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.ContentionBackoff <= 0 {
		cfg.ContentionBackoff = 5 * time.Second
	}
	return &queueService{
		openShiftRepo: openShiftRepo,
		queueRepo:     queueRepo,
		userRepo:      userRepo,
		engine:        engine,
		notifier:      notifier,
		locker:        locker,
		scheduler:     scheduler,
		publisher:     publisher,
		cfg:           cfg,
		logger:        logger.Named("queue"),
		now:           now,
	}
}

// ---------------- Публикация ----------------

func (s *queueService) PostOpenShift(ctx context.Context, req *dto.PostOpenShiftRequest) (*dto.PostOpenShiftResult, error) {
	if req.UrgencyLevel < 1 || req.UrgencyLevel > 5 {
		return nil, apperrors.ValidationError(map[string]string{"urgency_level": "must be between 1 and 5"})
	}
	if req.ShiftID == "" {
		return nil, apperrors.ValidationError(map[string]string{"shift_id": "is required"})
	}
	if _, err := s.userRepo.FindShiftByID(ctx, req.ShiftID); err != nil {
		if errors.Is(err, repositories.ErrShiftNotFound) {
			return nil, apperrors.ValidationError(map[string]string{"shift_id": "unknown shift"})
		}
		return nil, apperrors.PersistenceError(err, "Failed to load shift")
	}

	expiresIn := s.cfg.DefaultExpiry
	if req.ExpiresInHours > 0 {
		expiresIn = time.Duration(req.ExpiresInHours) * time.Hour
	}
	now := s.now()

	request := &models.OpenShiftRequest{
		ShiftID:      req.ShiftID,
		RequestedBy:  req.RequestedBy,
		Reason:       req.Reason,
		UrgencyLevel: req.UrgencyLevel,
		PostedAt:     now,
		ExpiresAt:    now.Add(expiresIn),
		Status:       models.OpenShiftStatusOpen,
	}
	if err := s.openShiftRepo.Create(ctx, request); err != nil {
		if errors.Is(err, repositories.ErrOpenShiftExists) {
			return nil, apperrors.ErrConflict(err, "open_shift", "Open shift request already exists for this shift")
		}
		return nil, apperrors.PersistenceError(err, "Failed to create open shift request")
	}

	var creation *repositories.QueueCreation
	err := s.withLock(ctx, request.ID, func() error {
		var err error
		creation, err = s.engine.CreateQueue(ctx, request.ID, int(s.cfg.WindowDuration/time.Minute), s.cfg.MaxQueueSize)
		if err != nil {
			// запрос без очереди никто не обработает
			if _, closeErr := s.openShiftRepo.Close(ctx, request.ID, models.OpenShiftStatusExpired, s.now(), ""); closeErr != nil {
				s.logger.Error("failed to close open shift after queue failure",
					zap.String("open_shift_id", request.ID), zap.Error(closeErr))
			}
			return apperrors.PersistenceError(err, "Failed to materialize queue")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.OfferPosted{
		OpenShiftID:  request.ID,
		ShiftID:      request.ShiftID,
		RequestedBy:  request.RequestedBy,
		UrgencyLevel: request.UrgencyLevel,
		QueueSize:    creation.QueueSize,
		ExpiresAt:    request.ExpiresAt,
		OccurredAt:   now,
	})
	s.logger.Info("open shift posted",
		zap.String("open_shift_id", request.ID),
		zap.String("shift_id", request.ShiftID),
		zap.Int("queue_size", creation.QueueSize))

	result := &dto.PostOpenShiftResult{
		OpenShiftID:      request.ID,
		ShiftID:          request.ShiftID,
		QueueSize:        creation.QueueSize,
		FirstWindowStart: creation.FirstWindowStart,
		ExpiresAt:        request.ExpiresAt,
	}

	if creation.QueueSize == 0 {
		if err := s.closeShift(ctx, request, models.OpenShiftStatusExpired, reasonQueueExhausted, ""); err != nil {
			s.logger.Error("failed to expire open shift with empty queue",
				zap.String("open_shift_id", request.ID), zap.Error(err))
		}
		return result, nil
	}

	if _, err := s.NotifyCurrentWindow(ctx, request.ID); err != nil {
		s.logger.Warn("first window notification failed", zap.String("open_shift_id", request.ID), zap.Error(err))
	}
	s.scheduler.Schedule(request.ID, s.cfg.WindowDuration)
	return result, nil
}

// NotifyCurrentWindow рассылает SHIFT_AVAILABLE всем ждущим в открытом окне.
// Запись помечается до отправки, повторный вызов ее пропускает.
func (s *queueService) NotifyCurrentWindow(ctx context.Context, openShiftID string) (int, error) {
	request, err := s.loadRequest(ctx, openShiftID)
	if err != nil {
		return 0, err
	}
	if request.Status.IsTerminal() {
		return 0, nil
	}

	now := s.now()
	entries, err := s.queueRepo.FindActiveWindow(ctx, openShiftID, now)
	if err != nil {
		return 0, apperrors.PersistenceError(err, "Failed to load active window")
	}

	var marked []models.QueueEntry
	for _, e := range entries {
		ok, err := s.queueRepo.MarkNotified(ctx, e.ID, now)
		if err != nil {
			return 0, apperrors.PersistenceError(err, "Failed to mark entry notified")
		}
		if ok {
			marked = append(marked, e)
		}
	}
	if len(marked) == 0 {
		return 0, nil
	}

	vars := s.shiftVars(ctx, request)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(windowNotifyConcurrency)
	for _, e := range marked {
		e := e
		g.Go(func() error {
			data := copyVars(vars)
			data["queue_entry_id"] = e.ID
			data["queue_position"] = e.QueuePosition
			data["window_expires_at"] = e.WindowExpiresAt.UTC().Format("15:04 MST")
			s.notify(gctx, e.UserID, models.NotificationShiftAvailable, data)
			return nil
		})
	}
	_ = g.Wait()

	evt := events.WindowOpened{OpenShiftID: openShiftID, OccurredAt: now}
	for _, e := range marked {
		evt.EntryIDs = append(evt.EntryIDs, e.ID)
		evt.UserIDs = append(evt.UserIDs, e.UserID)
	}
	s.publisher.Publish(ctx, evt)
	return len(marked), nil
}

// ---------------- Ответ на предложение ----------------

func (s *queueService) RespondToOffer(ctx context.Context, queueEntryID, userID string, response models.QueueResponseStatus) (*dto.RespondResult, error) {
	if response != models.QueueStatusAccepted && response != models.QueueStatusDeclined {
		return nil, apperrors.ValidationError(map[string]string{"response": "must be accepted or declined"})
	}

	entry, err := s.queueRepo.FindByID(ctx, queueEntryID)
	if err != nil {
		if errors.Is(err, repositories.ErrQueueEntryNotFound) {
			return nil, apperrors.ErrNotFound(err)
		}
		return nil, apperrors.PersistenceError(err, "Failed to load queue entry")
	}
	if entry.UserID != userID {
		return nil, apperrors.NewForbiddenError("Queue entry belongs to another user")
	}

	var (
		request  *models.OpenShiftRequest
		siblings []models.QueueEntry
		result   *repositories.AcceptResult
	)
	err = s.withLock(ctx, entry.OpenShiftID, func() error {
		var err error
		request, err = s.loadRequest(ctx, entry.OpenShiftID)
		if err != nil {
			return err
		}

		if response == models.QueueStatusAccepted {
			// получатели SHIFT_FILLED фиксируются до перехода
			all, err := s.queueRepo.ListByStatuses(ctx, entry.OpenShiftID, models.QueueStatusWaiting, models.QueueStatusDeclined)
			if err != nil {
				return apperrors.PersistenceError(err, "Failed to load queue")
			}
			for _, e := range all {
				if e.ID != entry.ID {
					siblings = append(siblings, e)
				}
			}
		}

		result, err = s.engine.AcceptFromQueue(ctx, queueEntryID, userID, response)
		if err != nil {
			switch {
			case errors.Is(err, repositories.ErrEntryNotActionable), errors.Is(err, repositories.ErrOpenShiftClosed):
				return apperrors.ErrConflict(err, "queue", "Offer is no longer actionable")
			case errors.Is(err, repositories.ErrQueueEntryNotFound):
				return apperrors.ErrNotFound(err)
			}
			return apperrors.PersistenceError(err, "Failed to record response")
		}

		now := s.now()
		if response == models.QueueStatusDeclined {
			s.publisher.Publish(ctx, events.OfferDeclined{
				OpenShiftID: entry.OpenShiftID, QueueEntryID: entry.ID, UserID: userID, OccurredAt: now,
			})
			return nil
		}

		s.publisher.Publish(ctx, events.OfferAccepted{
			OpenShiftID: entry.OpenShiftID, QueueEntryID: entry.ID, UserID: userID, OccurredAt: now,
		})
		s.publisher.Publish(ctx, events.ShiftClosed{
			OpenShiftID: request.ID,
			ShiftID:     request.ShiftID,
			RequestedBy: request.RequestedBy,
			Status:      models.OpenShiftStatusFilled,
			FilledBy:    userID,
			Reason:      reasonAccepted,
			OccurredAt:  now,
		})
		s.scheduler.Cancel(entry.OpenShiftID)
		return nil
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeConflict) {
			s.logger.Info("offer response rejected",
				zap.String("queue_entry_id", queueEntryID), zap.String("user_id", userID))
		}
		return nil, err
	}

	if response == models.QueueStatusAccepted {
		s.logger.Info("open shift filled",
			zap.String("open_shift_id", entry.OpenShiftID), zap.String("user_id", userID))
		vars := s.shiftVars(ctx, request)
		s.notify(ctx, userID, models.NotificationShiftAssigned, copyVars(vars))
		for _, sib := range siblings {
			s.notify(ctx, sib.UserID, models.NotificationShiftFilled, copyVars(vars))
		}
	} else {
		s.progressIfWindowDrained(ctx, entry.OpenShiftID)
	}

	return &dto.RespondResult{
		Success:     true,
		Response:    result.Result,
		OpenShiftID: entry.OpenShiftID,
	}, nil
}

// progressIfWindowDrained - после отказа не ждем таймер, если в окне никого не осталось
func (s *queueService) progressIfWindowDrained(ctx context.Context, openShiftID string) {
	active, err := s.queueRepo.FindActiveWindow(ctx, openShiftID, s.now())
	if err != nil {
		s.logger.Warn("failed to check active window", zap.String("open_shift_id", openShiftID), zap.Error(err))
		return
	}
	if len(active) > 0 {
		return
	}
	if _, err := s.CheckAndProgressWindow(ctx, openShiftID); err != nil {
		// таймер окна все еще стоит и повторит проверку
		apperrors.LogAtSeverity(s.logger, "early progression failed", err, zap.String("open_shift_id", openShiftID))
	}
}

// ---------------- Продвижение очереди ----------------

func (s *queueService) CheckAndProgressWindow(ctx context.Context, openShiftID string) (*dto.ProgressResult, error) {
	result := &dto.ProgressResult{OpenShiftID: openShiftID}
	var next time.Duration

	err := s.withLock(ctx, openShiftID, func() error {
		request, err := s.loadRequest(ctx, openShiftID)
		if err != nil {
			return err
		}
		result.Status = request.Status
		if request.Status.IsTerminal() {
			return nil
		}

		now := s.now()
		elapsed, err := s.queueRepo.FindElapsed(ctx, openShiftID, now)
		if err != nil {
			return apperrors.PersistenceError(err, "Failed to load elapsed entries")
		}

		if !now.Before(request.ExpiresAt) {
			expired, err := s.queueRepo.ExpireWaiting(ctx, openShiftID)
			if err != nil {
				return apperrors.PersistenceError(err, "Failed to expire queue")
			}
			s.publishWindowExpired(ctx, openShiftID, expired, now)
			result.Expired = int64(len(expired))
			result.Status = models.OpenShiftStatusExpired
			return s.closeShift(ctx, request, models.OpenShiftStatusExpired, reasonElapsed, "")
		}

		cleaned, err := s.engine.CleanupExpiredEntries(ctx, openShiftID)
		if err != nil {
			return apperrors.PersistenceError(err, "Failed to clean up expired entries")
		}
		result.Expired = cleaned
		s.publishWindowExpired(ctx, openShiftID, elapsed, now)

		remaining, err := s.engine.ProgressQueue(ctx, openShiftID)
		if err != nil {
			return apperrors.PersistenceError(err, "Failed to progress queue")
		}
		result.Remaining = remaining

		if remaining == 0 {
			result.Status = models.OpenShiftStatusExpired
			return s.closeShift(ctx, request, models.OpenShiftStatusExpired, reasonQueueExhausted, "")
		}

		next = s.nextCheckIn(ctx, request, now)
		result.Reschedule = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Reschedule {
		s.scheduler.Cancel(openShiftID)
		return result, nil
	}

	notified, err := s.NotifyCurrentWindow(ctx, openShiftID)
	if err != nil {
		s.logger.Warn("window notification failed", zap.String("open_shift_id", openShiftID), zap.Error(err))
	}
	result.Notified = notified
	s.scheduler.Schedule(openShiftID, next)
	return result, nil
}

// nextCheckIn - до конца текущего окна, но не позже срока запроса
func (s *queueService) nextCheckIn(ctx context.Context, request *models.OpenShiftRequest, now time.Time) time.Duration {
	next := s.cfg.WindowDuration
	active, err := s.queueRepo.FindActiveWindow(ctx, request.ID, now)
	if err == nil && len(active) > 0 {
		earliest := active[0].WindowExpiresAt
		for _, e := range active[1:] {
			if e.WindowExpiresAt.Before(earliest) {
				earliest = e.WindowExpiresAt
			}
		}
		next = earliest.Sub(now)
	}
	if untilExpiry := request.ExpiresAt.Sub(now); untilExpiry < next {
		next = untilExpiry
	}
	if next < 0 {
		next = 0
	}
	return next
}

func (s *queueService) HandleWindowTimer(ctx context.Context, openShiftID string) {
	_, err := s.CheckAndProgressWindow(ctx, openShiftID)
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, apperrors.ErrLockContention):
		s.scheduler.Schedule(openShiftID, s.cfg.ContentionBackoff)
	case apperrors.HasCode(err, apperrors.CodeNotFound):
		s.scheduler.Cancel(openShiftID)
	default:
		s.scheduler.Schedule(openShiftID, s.cfg.WindowDuration)
	}
	apperrors.LogAtSeverity(s.logger, "window timer failed", err, zap.String("open_shift_id", openShiftID))
}

func (s *queueService) ResumeOpenShifts(ctx context.Context) (int, error) {
	open, err := s.openShiftRepo.ListOpen(ctx)
	if err != nil {
		return 0, apperrors.PersistenceError(err, "Failed to list open shifts")
	}
	now := s.now()
	for i := range open {
		s.scheduler.Schedule(open[i].ID, s.nextCheckIn(ctx, &open[i], now))
	}
	if len(open) > 0 {
		s.logger.Info("resumed open shift timers", zap.Int("count", len(open)))
	}
	return len(open), nil
}

// ---------------- Отмена ----------------

func (s *queueService) CancelOpenShift(ctx context.Context, openShiftID, cancelledBy, reason string) error {
	var (
		request  *models.OpenShiftRequest
		notified []models.QueueEntry
	)
	err := s.withLock(ctx, openShiftID, func() error {
		var err error
		request, err = s.loadRequest(ctx, openShiftID)
		if err != nil {
			return err
		}
		if request.Status.IsTerminal() {
			return apperrors.ErrOpenShiftNotOpen
		}

		closed, err := s.openShiftRepo.Close(ctx, openShiftID, models.OpenShiftStatusCancelled, s.now(), "")
		if err != nil {
			return apperrors.PersistenceError(err, "Failed to cancel open shift")
		}
		if !closed {
			return apperrors.ErrOpenShiftNotOpen
		}

		expired, err := s.queueRepo.ExpireWaiting(ctx, openShiftID)
		if err != nil {
			return apperrors.PersistenceError(err, "Failed to expire queue")
		}
		for _, e := range expired {
			if e.NotifiedAt != nil {
				notified = append(notified, e)
			}
		}

		closeReason := reason
		if closeReason == "" {
			closeReason = reasonCancelled
		}
		s.scheduler.Cancel(openShiftID)
		s.publisher.Publish(ctx, events.ShiftClosed{
			OpenShiftID: request.ID,
			ShiftID:     request.ShiftID,
			RequestedBy: request.RequestedBy,
			Status:      models.OpenShiftStatusCancelled,
			Reason:      closeReason,
			ClosedBy:    cancelledBy,
			OccurredAt:  s.now(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	vars := s.shiftVars(ctx, request)
	vars["reason"] = reason
	for _, e := range notified {
		s.notify(ctx, e.UserID, models.NotificationShiftCancelled, copyVars(vars))
	}
	s.logger.Info("open shift cancelled",
		zap.String("open_shift_id", openShiftID),
		zap.String("cancelled_by", cancelledBy),
		zap.Int("notified", len(notified)))
	return nil
}

// ---------------- Чтение ----------------

func (s *queueService) GetQueueStatus(ctx context.Context, openShiftID string) (*dto.QueueStatus, error) {
	request, err := s.loadRequest(ctx, openShiftID)
	if err != nil {
		return nil, err
	}
	entries, err := s.queueRepo.ListByOpenShift(ctx, openShiftID)
	if err != nil {
		return nil, apperrors.PersistenceError(err, "Failed to load queue")
	}

	now := s.now()
	status := &dto.QueueStatus{
		OpenShiftID:  request.ID,
		Status:       request.Status,
		QueueSize:    len(entries),
		ActiveWindow: []dto.QueueEntryView{},
		Queue:        make([]dto.QueueEntryView, 0, len(entries)),
		ExpiresAt:    request.ExpiresAt,
		FilledBy:     request.FilledBy,
	}
	for i := range entries {
		view := dto.NewQueueEntryView(&entries[i])
		status.Queue = append(status.Queue, view)
		if entries[i].InActiveWindow(now) {
			status.ActiveWindow = append(status.ActiveWindow, view)
		}
	}
	return status, nil
}

// ---------------- Вспомогательные ----------------

func lockKey(openShiftID string) string {
	return "open_shift:" + openShiftID
}

// withLock выполняет fn под блокировкой очереди смены.
// Несколько коротких попыток, затем LockContentionError.
func (s *queueService) withLock(ctx context.Context, openShiftID string, fn func() error) error {
	key := lockKey(openShiftID)

	var token string
	for attempt := 0; ; attempt++ {
		ok, tok, err := s.locker.AcquireLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			return apperrors.PersistenceError(err, "Lock service unavailable")
		}
		if ok {
			token = tok
			break
		}
		if attempt >= s.cfg.LockRetries {
			return apperrors.LockContentionError(key, nil)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.LockRetryDelay):
		}
	}

	defer func() {
		released, err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key, token)
		if err != nil || !released {
			s.logger.Warn("lock was not released by owner",
				zap.String("resource", key), zap.Bool("released", released), zap.Error(err))
		}
	}()
	return fn()
}

func (s *queueService) loadRequest(ctx context.Context, openShiftID string) (*models.OpenShiftRequest, error) {
	request, err := s.openShiftRepo.FindByID(ctx, openShiftID)
	if err != nil {
		if errors.Is(err, repositories.ErrOpenShiftNotFound) {
			return nil, apperrors.ErrNotFound(err)
		}
		return nil, apperrors.PersistenceError(err, "Failed to load open shift request")
	}
	return request, nil
}

// closeShift переводит запрос в терминальный статус и публикует ShiftClosed
func (s *queueService) closeShift(ctx context.Context, request *models.OpenShiftRequest, status models.OpenShiftStatus, reason, closedBy string) error {
	now := s.now()
	closed, err := s.openShiftRepo.Close(ctx, request.ID, status, now, "")
	if err != nil {
		return apperrors.PersistenceError(err, "Failed to close open shift request")
	}
	if !closed {
		return nil
	}
	s.publisher.Publish(ctx, events.ShiftClosed{
		OpenShiftID: request.ID,
		ShiftID:     request.ShiftID,
		RequestedBy: request.RequestedBy,
		Status:      status,
		Reason:      reason,
		ClosedBy:    closedBy,
		OccurredAt:  now,
	})
	s.logger.Info("open shift closed",
		zap.String("open_shift_id", request.ID),
		zap.String("status", string(status)),
		zap.String("reason", reason))
	return nil
}

func (s *queueService) publishWindowExpired(ctx context.Context, openShiftID string, entries []models.QueueEntry, at time.Time) {
	if len(entries) == 0 {
		return
	}
	evt := events.WindowExpired{OpenShiftID: openShiftID, OccurredAt: at}
	for _, e := range entries {
		evt.EntryIDs = append(evt.EntryIDs, e.ID)
		evt.UserIDs = append(evt.UserIDs, e.UserID)
	}
	s.publisher.Publish(ctx, evt)
}

func (s *queueService) shiftVars(ctx context.Context, request *models.OpenShiftRequest) map[string]any {
	vars := map[string]any{"shift_id": request.ShiftID}
	if shift, err := s.userRepo.FindShiftByID(ctx, request.ShiftID); err == nil {
		vars = ShiftTemplateVars(shift)
	} else {
		s.logger.Warn("shift lookup failed for notification", zap.String("shift_id", request.ShiftID), zap.Error(err))
	}
	vars["open_shift_id"] = request.ID
	vars["reason"] = request.Reason
	return vars
}

// notify - уведомления не валят бизнес-операцию, ошибка только логируется
func (s *queueService) notify(ctx context.Context, userID string, t models.NotificationType, data map[string]any) {
	_, err := s.notifier.SendNotification(ctx, &dto.SendNotificationRequest{
		UserID: userID,
		Type:   t,
		Data:   data,
	})
	if err != nil {
		apperrors.LogAtSeverity(s.logger, "notification failed", err,
			zap.String("user_id", userID), zap.String("type", string(t)))
	}
}

func copyVars(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars)+3)
	for k, v := range vars {
		out[k] = v
	}
	return out
}
