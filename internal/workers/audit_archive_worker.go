package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"shiftoffer_backend/internal/repositories"
	"shiftoffer_backend/internal/storage"
)

const (
	auditCursorKey    = "audit/_cursor"
	auditArchiveBatch = 500
)

// AuditArchiveWorker выгружает новые записи журнала в хранилище в формате
// JSON Lines. Строки в базе не удаляются.
type AuditArchiveWorker struct {
	repo     repositories.AuditRepository
	store    storage.Storage
	interval time.Duration
	batch    int
	logger   *zap.Logger
	now      func() time.Time
}

func NewAuditArchiveWorker(repo repositories.AuditRepository, store storage.Storage, interval time.Duration, logger *zap.Logger) *AuditArchiveWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &AuditArchiveWorker{
		repo:     repo,
		store:    store,
		interval: interval,
		batch:    auditArchiveBatch,
		logger:   logger.Named("audit_archive_worker"),
		now:      time.Now,
	}
}

func (w *AuditArchiveWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *AuditArchiveWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Audit archive worker stopped")
			return
		case <-ticker.C:
			n, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Error("Error archiving audit log", zap.Error(err), zap.Int("archived", n))
			} else if n > 0 {
				w.logger.Info("Archived audit entries", zap.Int("archived", n))
			}
		}
	}
}

// RunOnce выгружает все записи после курсора. Курсор двигается после
// каждого сохраненного файла, так что сбой посередине не теряет данные.
func (w *AuditArchiveWorker) RunOnce(ctx context.Context) (int, error) {
	cursor, err := w.readCursor(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for {
		entries, err := w.repo.ListAfter(ctx, cursor, w.batch)
		if err != nil {
			return total, fmt.Errorf("list audit entries: %w", err)
		}
		if len(entries) == 0 {
			return total, nil
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for i := range entries {
			if err := enc.Encode(&entries[i]); err != nil {
				return total, fmt.Errorf("encode audit entry %d: %w", entries[i].ID, err)
			}
		}

		first, last := entries[0].ID, entries[len(entries)-1].ID
		key := fmt.Sprintf("audit/%s/%012d-%012d.jsonl", w.now().UTC().Format("2006/01/02"), first, last)
		if err := w.store.Save(ctx, key, &buf, "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("save %s: %w", key, err)
		}
		if err := w.writeCursor(ctx, last); err != nil {
			return total, err
		}

		cursor = last
		total += len(entries)
		if len(entries) < w.batch {
			return total, nil
		}
	}
}

func (w *AuditArchiveWorker) readCursor(ctx context.Context) (uint64, error) {
	rc, err := w.store.Get(ctx, auditCursorKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read archive cursor: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return 0, fmt.Errorf("read archive cursor: %w", err)
	}
	cursor, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse archive cursor: %w", err)
	}
	return cursor, nil
}

func (w *AuditArchiveWorker) writeCursor(ctx context.Context, id uint64) error {
	body := strings.NewReader(strconv.FormatUint(id, 10))
	if err := w.store.Save(ctx, auditCursorKey, body, "text/plain"); err != nil {
		return fmt.Errorf("write archive cursor: %w", err)
	}
	return nil
}
