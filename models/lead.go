package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead priorities and temperatures derived by the normalizer.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"

	TemperatureHot  = "hot"
	TemperatureWarm = "warm"
	TemperatureCold = "cold"
)

// Lead is the canonical record for one ingested contact. (tenant_id, lead_id)
// is the idempotency key: re-delivery of the same lead id updates the row and
// must never reassign the agent or regress status.
type Lead struct {
	gorm.Model

	TenantID uint   `gorm:"not null;uniqueIndex:idx_leads_tenant_lead" json:"tenant_id"`
	LeadID   string `gorm:"not null;uniqueIndex:idx_leads_tenant_lead" json:"lead_id"`

	ExternalID string `json:"external_id,omitempty"`

	// Contact
	PhoneNumber string `gorm:"index" json:"phone_number"`
	Email       string `gorm:"index" json:"email,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	ZipCode     string `json:"zip_code,omitempty"`

	// Classification
	Source          string  `gorm:"index;default:'convoso'" json:"source"`
	CampaignID      string  `gorm:"index" json:"campaign_id,omitempty"`
	CampaignName    string  `json:"campaign_name,omitempty"`
	InsuranceType   string  `json:"insurance_type,omitempty"`
	LeadScore       int     `gorm:"default:0" json:"lead_score"` // 0-100
	Priority        string  `gorm:"default:'normal'" json:"priority"`
	LeadTemperature string  `gorm:"default:'cold'" json:"lead_temperature"`
	Cost            float64 `gorm:"default:0" json:"cost"`

	// Lifecycle. Status starts at "new" and is never overwritten by
	// re-delivery; AgentID is set once at creation and immutable after.
	Status     string    `gorm:"default:'new';index" json:"status"`
	AgentID    *uint     `gorm:"index" json:"agent_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`

	// Source fields that did not map to a canonical column, kept verbatim.
	AdditionalData string `gorm:"type:text" json:"additional_data,omitempty"`

	// Relations
	Agent *User `gorm:"foreignKey:AgentID" json:"agent,omitempty"`
}
