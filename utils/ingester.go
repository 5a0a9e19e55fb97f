package utils

import (
	"errors"
	"time"

	"agencyhub/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Columns a re-delivery may touch. status and agent_id are deliberately
// absent: lifecycle never regresses and ownership never changes on update.
var leadUpdateColumns = []string{
	"external_id", "phone_number", "email", "first_name", "last_name",
	"address", "city", "state", "zip_code", "source", "campaign_id",
	"campaign_name", "insurance_type", "lead_score", "priority",
	"lead_temperature", "cost", "received_at", "additional_data", "updated_at",
}

// IngestResult describes the outcome of one lead passing through the shared
// upsert path.
type IngestResult struct {
	Lead   *models.Lead
	Action string // created, updated
}

// LeadIngester is the single path both the webhook receiver and the
// historical sync engine terminate in: normalize, assign-if-new, upsert,
// rollup. Runs inside the transaction supplied by the caller.
type LeadIngester struct {
	Assigner *AgentAssigner
	Logger   *logrus.Entry
}

func NewLeadIngester(assigner *AgentAssigner, logger *logrus.Entry) *LeadIngester {
	return &LeadIngester{Assigner: assigner, Logger: logger}
}

// Ingest normalizes one raw payload and upserts it for the tenant. Agent
// assignment and the rollup bump happen only when this call actually inserted
// the row; a delivery that loses a concurrent first-delivery race degrades to
// a plain update.
func (li *LeadIngester) Ingest(tx *gorm.DB, tenantID uint, payload map[string]interface{}) (*IngestResult, error) {
	lead, err := NormalizeLead(payload, tenantID)
	if err != nil {
		return nil, err
	}

	var existing models.Lead
	err = tx.Where("tenant_id = ? AND lead_id = ?", tenantID, lead.LeadID).First(&existing).Error
	switch {
	case err == nil:
		return li.refresh(tx, lead, &existing)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return li.create(tx, tenantID, lead)
	default:
		return nil, ErrTransaction(err)
	}
}

// create inserts the lead, then assigns an agent and bumps the rollup. The
// existence check in Ingest is not atomic with the insert, so the insert
// itself must settle the race: ON CONFLICT DO NOTHING plus a RowsAffected
// check decides which delivery is the create. The loser re-reads the winner's
// row and becomes an update, so exactly one delivery stamps a roster cursor
// and counts in the rollup.
func (li *LeadIngester) create(tx *gorm.DB, tenantID uint, lead *models.Lead) (*IngestResult, error) {
	lead.Status = "new"
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "lead_id"}},
		DoNothing: true,
	}).Create(lead)
	if res.Error != nil {
		return nil, ErrTransaction(res.Error)
	}
	if res.RowsAffected == 0 {
		var existing models.Lead
		if err := tx.Where("tenant_id = ? AND lead_id = ?", tenantID, lead.LeadID).First(&existing).Error; err != nil {
			return nil, ErrTransaction(err)
		}
		return li.refresh(tx, lead, &existing)
	}

	agentID, err := li.Assigner.Assign(tx, tenantID, lead)
	if err != nil {
		return nil, ErrTransaction(err)
	}
	if agentID != nil {
		if err := tx.Model(lead).Update("agent_id", agentID).Error; err != nil {
			return nil, ErrTransaction(err)
		}
		lead.AgentID = agentID
	}

	if err := li.bumpRollup(tx, lead); err != nil {
		return nil, ErrTransaction(err)
	}
	return &IngestResult{Lead: lead, Action: models.LeadActionCreated}, nil
}

// refresh is the re-delivery path: update the mutable columns, report the
// persisted lifecycle fields back unchanged.
func (li *LeadIngester) refresh(tx *gorm.DB, lead *models.Lead, existing *models.Lead) (*IngestResult, error) {
	lead.ID = existing.ID
	if err := tx.Model(existing).Select(leadUpdateColumns).Updates(lead).Error; err != nil {
		return nil, ErrTransaction(err)
	}
	lead.Status = existing.Status
	lead.AgentID = existing.AgentID
	lead.CreatedAt = existing.CreatedAt
	return &IngestResult{Lead: lead, Action: models.LeadActionUpdated}, nil
}

// bumpRollup upserts the daily analytics row for a newly created lead.
// Increments are expressed in SQL against the pre-update row, so concurrent
// creates for the same key never lose updates.
func (li *LeadIngester) bumpRollup(tx *gorm.DB, lead *models.Lead) error {
	day := lead.ReceivedAt.Format("2006-01-02")
	rollup := models.LeadAnalytics{
		TenantID:     lead.TenantID,
		Date:         day,
		Source:       lead.Source,
		CampaignID:   lead.CampaignID,
		TotalLeads:   1,
		TotalCost:    lead.Cost,
		AvgLeadScore: float64(lead.LeadScore),
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"}, {Name: "date"}, {Name: "source"}, {Name: "campaign_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_leads":    gorm.Expr("total_leads + 1"),
			"total_cost":     gorm.Expr("total_cost + ?", lead.Cost),
			"avg_lead_score": gorm.Expr("(avg_lead_score * total_leads + ?) / (total_leads + 1)", float64(lead.LeadScore)),
			"updated_at":     time.Now(),
		}),
	}).Create(&rollup).Error
}
