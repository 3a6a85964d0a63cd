package dto

import "time"

// QueueMetrics - агрегаты по одной открытой смене
type QueueMetrics struct {
	OpenShiftID        string    `json:"open_shift_id"`
	TotalQueued        int       `json:"total_queued"`
	Accepted           int       `json:"accepted"`
	Declined           int       `json:"declined"`
	Expired            int       `json:"expired"`
	Waiting            int       `json:"waiting"`
	AcceptanceRate     float64   `json:"acceptance_rate"`
	AvgResponseMinutes *float64  `json:"avg_response_minutes,omitempty"`
	FillTimeMinutes    *float64  `json:"fill_time_minutes,omitempty"`
	ComputedAt         time.Time `json:"computed_at"`
}

type AuditEntryView struct {
	ID           uint64                 `json:"id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	UserID       string                 `json:"user_id,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}
