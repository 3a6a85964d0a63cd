package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"shiftoffer_backend/pkg/apperrors"
)

const (
	queueSheet   = "Queue"
	metricsSheet = "Metrics"
	reportTime   = "2006-01-02 15:04 MST"
)

// ReportService - выгрузка очереди открытой смены в XLSX
type ReportService interface {
	// ExportQueueReport возвращает содержимое файла и имя файла
	ExportQueueReport(ctx context.Context, openShiftID string) (*bytes.Buffer, string, error)
}

type reportService struct {
	queue  QueueService
	audit  AuditService
	logger *zap.Logger
}

func NewReportService(queue QueueService, audit AuditService, logger *zap.Logger) ReportService {
	return &reportService{queue: queue, audit: audit, logger: logger.Named("report")}
}

func (s *reportService) ExportQueueReport(ctx context.Context, openShiftID string) (*bytes.Buffer, string, error) {
	status, err := s.queue.GetQueueStatus(ctx, openShiftID)
	if err != nil {
		return nil, "", err
	}
	metrics, err := s.audit.ComputeQueueMetrics(ctx, openShiftID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, _ := f.NewSheet(queueSheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")
	f.NewSheet(metricsSheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// Лист очереди
	headers := []string{"Position", "User", "Window starts", "Window expires", "Response", "Responded at", "Notified at"}
	for i, h := range headers {
		f.SetCellValue(queueSheet, cellAt(i+1, 1), h)
	}
	f.SetCellStyle(queueSheet, "A1", cellAt(len(headers), 1), headerStyle)
	f.SetColWidth(queueSheet, "A", "A", 10)
	f.SetColWidth(queueSheet, "B", "B", 38)
	f.SetColWidth(queueSheet, "C", "G", 22)

	for i, e := range status.Queue {
		row := i + 2
		f.SetCellValue(queueSheet, cellAt(1, row), e.QueuePosition)
		f.SetCellValue(queueSheet, cellAt(2, row), e.UserID)
		f.SetCellValue(queueSheet, cellAt(3, row), e.WindowStartsAt.UTC().Format(reportTime))
		f.SetCellValue(queueSheet, cellAt(4, row), e.WindowExpiresAt.UTC().Format(reportTime))
		f.SetCellValue(queueSheet, cellAt(5, row), string(e.ResponseStatus))
		if e.RespondedAt != nil {
			f.SetCellValue(queueSheet, cellAt(6, row), e.RespondedAt.UTC().Format(reportTime))
		}
		if e.NotifiedAt != nil {
			f.SetCellValue(queueSheet, cellAt(7, row), e.NotifiedAt.UTC().Format(reportTime))
		}
	}

	// Лист метрик
	rows := [][2]interface{}{
		{"Open shift", status.OpenShiftID},
		{"Status", string(status.Status)},
		{"Total queued", metrics.TotalQueued},
		{"Accepted", metrics.Accepted},
		{"Declined", metrics.Declined},
		{"Expired", metrics.Expired},
		{"Waiting", metrics.Waiting},
		{"Acceptance rate, %", metrics.AcceptanceRate},
		{"Avg response, min", optionalFloat(metrics.AvgResponseMinutes)},
		{"Fill time, min", optionalFloat(metrics.FillTimeMinutes)},
	}
	f.SetColWidth(metricsSheet, "A", "A", 22)
	f.SetColWidth(metricsSheet, "B", "B", 38)
	for i, r := range rows {
		f.SetCellValue(metricsSheet, cellAt(1, i+1), r[0])
		f.SetCellValue(metricsSheet, cellAt(2, i+1), r[1])
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("failed to write queue report", zap.String("open_shift_id", openShiftID), zap.Error(err))
		return nil, "", apperrors.InternalError(err)
	}
	return buf, fmt.Sprintf("open_shift_%s.xlsx", openShiftID), nil
}

func cellAt(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func optionalFloat(v *float64) interface{} {
	if v == nil {
		return "-"
	}
	return *v
}
