package utils

import (
	"errors"
	"time"

	"agencyhub/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AgentAssigner picks the next agent for a new lead. Round robin falls out of
// the roster ordering alone: active agents sorted ascending by
// last_lead_assigned (nulls first), head wins, head gets stamped.
type AgentAssigner struct {
	Logger *logrus.Entry
}

func NewAgentAssigner(logger *logrus.Entry) *AgentAssigner {
	return &AgentAssigner{Logger: logger}
}

// Assign selects an agent within the caller's transaction and stamps their
// round-robin cursor so the next call moves past them. Returns nil when the
// tenant has no active agents; callers treat that as unassigned, not an error.
//
// High-priority leads currently still take the round-robin head. Routing them
// to top performers instead is a product decision that has not been made.
func (aa *AgentAssigner) Assign(tx *gorm.DB, tenantID uint, lead *models.Lead) (*uint, error) {
	var agent models.User
	err := tx.
		Where("tenant_id = ? AND role = ? AND is_active = ?", tenantID, "agent", true).
		Order("last_lead_assigned ASC NULLS FIRST, id ASC").
		First(&agent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		aa.Logger.WithField("tenant_id", tenantID).Warn("no active agents, leaving lead unassigned")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// The stamp must be visible to the next Assign call for round robin to
	// hold.
	if err := tx.Model(&agent).Update("last_lead_assigned", time.Now()).Error; err != nil {
		return nil, err
	}

	aa.Logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"agent_id":  agent.ID,
		"lead_id":   lead.LeadID,
		"priority":  lead.Priority,
	}).Debug("assigned lead to agent")

	return &agent.ID, nil
}
