package models

import "gorm.io/gorm"

// LeadAnalytics is the daily rollup, keyed by (tenant, date, source,
// campaign). Rows are upserted per ingested lead with single-statement
// atomic increments so concurrent deliveries never lose updates.
type LeadAnalytics struct {
	gorm.Model

	TenantID   uint   `gorm:"not null;uniqueIndex:idx_rollups_tenant_day" json:"tenant_id"`
	Date       string `gorm:"size:10;not null;uniqueIndex:idx_rollups_tenant_day" json:"date"` // YYYY-MM-DD
	Source     string `gorm:"not null;default:'convoso';uniqueIndex:idx_rollups_tenant_day" json:"source"`
	CampaignID string `gorm:"not null;default:'';uniqueIndex:idx_rollups_tenant_day" json:"campaign_id"`

	TotalLeads   int     `gorm:"default:0" json:"total_leads"`
	TotalCost    float64 `gorm:"default:0" json:"total_cost"`
	AvgLeadScore float64 `gorm:"default:0" json:"avg_lead_score"`
}
