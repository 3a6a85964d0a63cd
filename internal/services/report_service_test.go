package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"shiftoffer_backend/internal/models"
	"shiftoffer_backend/internal/services/dto"
)

type stubQueueStatus struct {
	QueueService
	status *dto.QueueStatus
}

func (s stubQueueStatus) GetQueueStatus(context.Context, string) (*dto.QueueStatus, error) {
	return s.status, nil
}

type stubMetrics struct {
	AuditService
	metrics *dto.QueueMetrics
}

func (s stubMetrics) ComputeQueueMetrics(context.Context, string) (*dto.QueueMetrics, error) {
	return s.metrics, nil
}

func TestExportQueueReport(t *testing.T) {
	starts := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	responded := starts.Add(4 * time.Minute)
	status := &dto.QueueStatus{
		OpenShiftID: "os-1",
		Status:      models.OpenShiftStatusFilled,
		QueueSize:   2,
		Queue: []dto.QueueEntryView{
			{ID: "e1", UserID: "u1", QueuePosition: 1, WindowStartsAt: starts, WindowExpiresAt: starts.Add(15 * time.Minute),
				ResponseStatus: models.QueueStatusAccepted, RespondedAt: &responded},
			{ID: "e2", UserID: "u2", QueuePosition: 2, WindowStartsAt: starts.Add(15 * time.Minute), WindowExpiresAt: starts.Add(30 * time.Minute),
				ResponseStatus: models.QueueStatusExpired},
		},
	}
	avg := 4.0
	metrics := &dto.QueueMetrics{OpenShiftID: "os-1", TotalQueued: 2, Accepted: 1, AcceptanceRate: 50, AvgResponseMinutes: &avg}

	svc := NewReportService(stubQueueStatus{status: status}, stubMetrics{metrics: metrics}, zap.NewNop())
	buf, filename, err := svc.ExportQueueReport(context.Background(), "os-1")
	require.NoError(t, err)
	assert.Equal(t, "open_shift_os-1.xlsx", filename)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue(queueSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Position", header)

	user, err := f.GetCellValue(queueSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "u1", user)

	response, err := f.GetCellValue(queueSheet, "E3")
	require.NoError(t, err)
	assert.Equal(t, "expired", response)

	rate, err := f.GetCellValue(metricsSheet, "B8")
	require.NoError(t, err)
	assert.Equal(t, "50", rate)

	fill, err := f.GetCellValue(metricsSheet, "B10")
	require.NoError(t, err)
	assert.Equal(t, "-", fill)
}
