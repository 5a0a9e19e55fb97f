package models

import (
	"time"

	"gorm.io/gorm"
)

// Onboarding statuses for an integration record.
const (
	OnboardingPending   = "pending"
	OnboardingValidated = "validated"
	OnboardingActive    = "active"
)

// ConvosoIntegration holds one tenant's connection to the Convoso API.
// Credentials are stored as vault envelopes, never as plaintext. Rows are
// soft-deactivated via IsActive and never hard-deleted.
type ConvosoIntegration struct {
	gorm.Model

	TenantID uint   `gorm:"not null;uniqueIndex:idx_integrations_tenant_provider" json:"tenant_id"`
	Provider string `gorm:"not null;default:'convoso';uniqueIndex:idx_integrations_tenant_provider" json:"provider"`

	// Vault envelopes (see utils.CredentialVault)
	EncryptedAPIKey        string `gorm:"type:text" json:"-"`
	EncryptedWebhookSecret string `gorm:"type:text" json:"-"`
	EncryptedAccountID     string `gorm:"type:text" json:"-"`
	KeyVersion             int    `gorm:"default:1" json:"key_version"`

	WebhookURL       string     `json:"webhook_url"`
	OnboardingStatus string     `gorm:"default:'pending'" json:"onboarding_status"` // pending, validated, active
	LastValidationAt *time.Time `json:"last_validation_at,omitempty"`

	// Upstream quota ceilings consumed by the sync rate limiter.
	RateLimitPerMinute int `gorm:"default:60" json:"rate_limit_per_minute"`
	RateLimitPerHour   int `gorm:"default:1000" json:"rate_limit_per_hour"`
	MaxConcurrent      int `gorm:"default:3" json:"max_concurrent"`

	// Scheduled background sync
	AutoSyncEnabled     bool       `gorm:"default:false" json:"auto_sync_enabled"`
	SyncIntervalMinutes int        `gorm:"default:60" json:"sync_interval_minutes"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`

	IsActive bool `gorm:"default:true;index" json:"is_active"`
}
