package controller

import (
	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"agencyhub/utils"
)

// SyncController triggers historical sync runs against the provider API.
type SyncController struct {
	DB     *gorm.DB
	Engine *utils.SyncEngine
	Logger *logrus.Entry
}

func NewSyncController(db *gorm.DB, engine *utils.SyncEngine, logger *logrus.Entry) *SyncController {
	return &SyncController{DB: db, Engine: engine, Logger: logger}
}

type syncRequest struct {
	TenantID   uint   `json:"tenantId" validate:"required"`
	SyncType   string `json:"syncType" validate:"required,oneof=historical incremental"`
	StartDate  string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate    string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	CampaignID string `json:"campaignId"`
	BatchSize  int    `json:"batchSize" validate:"omitempty,min=1,max=500"`
}

// HandleSync is POST /api/v1/sync. The run executes synchronously and always
// answers with whatever progress was made; only a denial before the first
// batch maps to a bare 429.
func (sc *SyncController) HandleSync(c *fiber.Ctx) error {
	var req syncRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_request",
			"message": "invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_request",
			"message": err.Error(),
		})
	}

	summary, pe := sc.Engine.Run(req.TenantID, utils.SyncOptions{
		SyncType:   req.SyncType,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		CampaignID: req.CampaignID,
		BatchSize:  req.BatchSize,
	})
	if pe != nil {
		if pe.Status >= fiber.StatusInternalServerError {
			sentry.CaptureException(pe)
		}
		sc.Logger.WithFields(logrus.Fields{
			"tenant_id":  req.TenantID,
			"error_code": pe.Code,
		}).Warn("sync run rejected")
		return utils.ErrorResponse(c, pe)
	}

	return c.JSON(summary)
}
