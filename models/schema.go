package models

import (
	"time"

	"gorm.io/gorm"
)

// RequestLog is one proxied request, persisted asynchronously for the
// request-history view. Conversation bodies are never stored.
type RequestLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	RequestID  string    `gorm:"index" json:"request_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Model      string    `gorm:"index" json:"model"`
	Backend    string    `gorm:"index" json:"backend"`
	Stream     bool      `json:"stream"`
	StatusCode int       `json:"status_code"`
	Duration   int64     `json:"duration_ms"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	ErrorMsg   string    `gorm:"size:512" json:"error_msg,omitempty"`
}

// BackendStats aggregates per-backend outcomes, updated in the same batch
// flush that inserts the logs.
type BackendStats struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	Backend       string  `gorm:"uniqueIndex" json:"backend"`
	Success       int64   `gorm:"default:0" json:"success"`
	Error         int64   `gorm:"default:0" json:"error"`
	TotalLatency  float64 `gorm:"default:0" json:"total_latency"`
	TotalRequests int64   `gorm:"default:0" json:"total_requests"`
}

// AutoMigrate creates or updates the request-log tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&RequestLog{},
		&BackendStats{},
	)
}
