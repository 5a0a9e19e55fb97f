package models

import (
	"time"

	"gorm.io/gorm"
)

// Processing statuses and lead actions recorded on audit rows.
const (
	ProcessingSuccess = "success"
	ProcessingError   = "error"

	LeadActionCreated = "created"
	LeadActionUpdated = "updated"
	LeadActionError   = "error"
)

// WebhookEvent is the append-only audit trail: one row per ingestion attempt,
// written after the transaction settles and never mutated.
type WebhookEvent struct {
	gorm.Model

	RequestID string `gorm:"index" json:"request_id"`
	TenantID  uint   `gorm:"not null;index" json:"tenant_id"`
	Source    string `gorm:"default:'convoso'" json:"source"`
	EventType string `gorm:"default:'lead'" json:"event_type"` // lead, sync_batch

	LeadID         string `gorm:"index" json:"lead_id,omitempty"`
	SignatureValid *bool  `json:"signature_valid,omitempty"` // nil when no secret configured

	ProcessingStatus string `gorm:"not null;index" json:"processing_status"` // success, error
	LeadAction       string `json:"lead_action,omitempty"`                   // created, updated, error
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorMessage     string `gorm:"type:text" json:"error_message,omitempty"`

	PayloadBytes int   `json:"payload_bytes"`
	DurationMs   int64 `json:"duration_ms"`
}

// SyncActivity summarizes one historical sync run.
type SyncActivity struct {
	gorm.Model

	TenantID   uint   `gorm:"not null;index" json:"tenant_id"`
	SyncType   string `gorm:"default:'historical'" json:"sync_type"`
	CampaignID string `json:"campaign_id,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`

	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
	Batches   int `json:"batches"`

	// Whether the run stopped early, and why.
	RateLimited    bool   `json:"rate_limited"`
	RetryExhausted bool   `json:"retry_exhausted"`
	LastError      string `gorm:"type:text" json:"last_error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}
