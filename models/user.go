package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a tenant staff account. Agents form the assignment roster.
type User struct {
	gorm.Model

	TenantID uint `gorm:"not null;index" json:"tenant_id"`

	Email        string  `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string  `gorm:"not null" json:"-"`
	Name         *string `json:"name,omitempty"`

	// Role is either "agent" or "admin"; only agents receive leads.
	Role     string `gorm:"default:'agent';index" json:"role"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	// LastLeadAssigned is the round-robin cursor: the roster is ordered
	// ascending by this field (nulls first) and the head is assigned next.
	LastLeadAssigned *time.Time `gorm:"index" json:"last_lead_assigned,omitempty"`

	// Relations
	Leads []Lead `gorm:"foreignKey:AgentID" json:"leads,omitempty"`
}
