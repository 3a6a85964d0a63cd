package algorithms

import (
	"sort"
	"time"

	"shiftoffer_backend/internal/models"
)

// RankCandidates отбирает кандидатов на открытую смену: активные сотрудники
// отдела смены, кроме автора запроса. Порядок стабильный, по id,
// так что одинаковых позиций не бывает.
func RankCandidates(users []models.User, shift *models.Shift, requestedBy string) []models.User {
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if !u.IsActive || u.ID == requestedBy {
			continue
		}
		if shift != nil && u.DepartmentID != shift.DepartmentID {
			continue
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WindowIndex - номер окна для позиции (позиции с 1)
func WindowIndex(position, windowSize int) int {
	if windowSize < 1 {
		windowSize = 1
	}
	return (position - 1) / windowSize
}

// BuildQueue раскладывает кандидатов по позициям 1..N и окнам:
// окно w начинается в now + w*window и длится window.
func BuildQueue(openShiftID string, userIDs []string, now time.Time, window time.Duration, windowSize, maxSize int) []models.QueueEntry {
	if maxSize > 0 && len(userIDs) > maxSize {
		userIDs = userIDs[:maxSize]
	}

	entries := make([]models.QueueEntry, 0, len(userIDs))
	for i, userID := range userIDs {
		position := i + 1
		starts := now.Add(time.Duration(WindowIndex(position, windowSize)) * window)
		entries = append(entries, models.QueueEntry{
			OpenShiftID:     openShiftID,
			UserID:          userID,
			QueuePosition:   position,
			WindowStartsAt:  starts,
			WindowExpiresAt: starts.Add(window),
			ResponseStatus:  models.QueueStatusWaiting,
		})
	}
	return entries
}

// RebaseOffset - на сколько сдвинуть будущие окна, чтобы ближайшее
// из них началось в now. Ноль, если сдвигать нечего.
func RebaseOffset(pending []models.QueueEntry, now time.Time) time.Duration {
	if len(pending) == 0 {
		return 0
	}
	earliest := pending[0].WindowStartsAt
	for _, e := range pending[1:] {
		if e.WindowStartsAt.Before(earliest) {
			earliest = e.WindowStartsAt
		}
	}
	if !earliest.After(now) {
		return 0
	}
	return earliest.Sub(now)
}

// ResponseStats - сводка ответов по очереди
type ResponseStats struct {
	Total          int
	Accepted       int
	Declined       int
	Expired        int
	Waiting        int
	AvgResponseMin float64
}

// SummarizeResponses считает статистику ответов по очереди.
// Время ответа - от начала окна до ответа, в минутах.
func SummarizeResponses(entries []models.QueueEntry) ResponseStats {
	stats := ResponseStats{Total: len(entries)}
	var (
		sum       float64
		responded int
	)
	for _, e := range entries {
		switch e.ResponseStatus {
		case models.QueueStatusAccepted:
			stats.Accepted++
		case models.QueueStatusDeclined:
			stats.Declined++
		case models.QueueStatusExpired:
			stats.Expired++
		case models.QueueStatusWaiting:
			stats.Waiting++
		}
		if e.RespondedAt != nil {
			sum += e.RespondedAt.Sub(e.WindowStartsAt).Minutes()
			responded++
		}
	}
	if responded > 0 {
		stats.AvgResponseMin = sum / float64(responded)
	}
	return stats
}
