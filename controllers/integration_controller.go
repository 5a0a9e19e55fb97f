package controller

import (
	"errors"

	"agencyhub/models"
	"agencyhub/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// IntegrationController exposes read/admin access to integration records and
// the pipeline's analytics rollups.
type IntegrationController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewIntegrationController(db *gorm.DB, logger *logrus.Entry) *IntegrationController {
	return &IntegrationController{DB: db, Logger: logger}
}

// GetIntegration is GET /api/v1/integrations/:tenantID. Encrypted envelopes
// stay out of the response.
func (ic *IntegrationController) GetIntegration(c *fiber.Ctx) error {
	tenantID := utils.ParseUint(c.Params("tenantID"))

	var integration models.ConvosoIntegration
	err := ic.DB.Where("tenant_id = ?", tenantID).First(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, utils.ErrIntegrationNotFound(tenantID))
	}
	if err != nil {
		return utils.ErrorResponse(c, utils.ErrTransaction(err))
	}

	return c.JSON(integration)
}

// DeactivateIntegration is DELETE /api/v1/integrations/:tenantID. Rows are
// soft-deactivated, never hard-deleted: audit history stays attached.
func (ic *IntegrationController) DeactivateIntegration(c *fiber.Ctx) error {
	tenantID := utils.ParseUint(c.Params("tenantID"))

	result := ic.DB.Model(&models.ConvosoIntegration{}).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Update("is_active", false)
	if result.Error != nil {
		return utils.ErrorResponse(c, utils.ErrTransaction(result.Error))
	}
	if result.RowsAffected == 0 {
		return utils.ErrorResponse(c, utils.ErrIntegrationNotFound(tenantID))
	}

	ic.Logger.WithField("tenant_id", tenantID).Info("integration deactivated")
	return c.JSON(fiber.Map{"deactivated": true})
}

// GetLeadAnalytics is GET /api/v1/analytics/leads?tenantId=&from=&to=.
func (ic *IntegrationController) GetLeadAnalytics(c *fiber.Ctx) error {
	tenantID := utils.ParseUint(c.Query("tenantId"))
	if tenantID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_request",
			"message": "tenantId is required",
		})
	}

	query := ic.DB.Where("tenant_id = ?", tenantID)
	if from := c.Query("from"); from != "" {
		query = query.Where("date >= ?", from)
	}
	if to := c.Query("to"); to != "" {
		query = query.Where("date <= ?", to)
	}

	var rollups []models.LeadAnalytics
	if err := query.Order("date DESC").Find(&rollups).Error; err != nil {
		return utils.ErrorResponse(c, utils.ErrTransaction(err))
	}

	return c.JSON(fiber.Map{
		"tenantId": tenantID,
		"rollups":  rollups,
	})
}
