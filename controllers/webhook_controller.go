package controller

import (
	"encoding/json"
	"errors"
	"time"

	"agencyhub/models"
	"agencyhub/utils"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WebhookController receives real-time lead events from the provider. Each
// event is processed inside one transaction; the audit row is written after
// the transaction settles, success or failure.
type WebhookController struct {
	DB       *gorm.DB
	Vault    *utils.CredentialVault
	Ingester *utils.LeadIngester
	Logger   *logrus.Entry
}

func NewWebhookController(db *gorm.DB, vault *utils.CredentialVault, ingester *utils.LeadIngester, logger *logrus.Entry) *WebhookController {
	return &WebhookController{DB: db, Vault: vault, Ingester: ingester, Logger: logger}
}

// HandleLeadWebhook is POST /webhook/:tenantID.
func (wc *WebhookController) HandleLeadWebhook(c *fiber.Ctx) error {
	started := time.Now()
	requestID := uuid.NewString()
	body := c.Body()

	tenantID := utils.ParseUint(c.Params("tenantID"))
	if tenantID == 0 {
		return utils.ErrorResponse(c, utils.ErrMissingRequiredFields("invalid tenant id"))
	}

	audit := &models.WebhookEvent{
		RequestID:    requestID,
		TenantID:     tenantID,
		EventType:    "lead",
		PayloadBytes: len(body),
	}

	var integration models.ConvosoIntegration
	err := wc.DB.Where("tenant_id = ? AND is_active = ?", tenantID, true).First(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wc.fail(c, audit, started, utils.ErrIntegrationNotFound(tenantID))
	}
	if err != nil {
		return wc.fail(c, audit, started, utils.ErrTransaction(err))
	}

	// No configured secret means verification is skipped, not failed: the
	// integration has not finished onboarding yet (trust on first use).
	if integration.EncryptedWebhookSecret != "" {
		secret, err := wc.Vault.Decrypt(integration.EncryptedWebhookSecret, tenantID)
		if err != nil {
			return wc.fail(c, audit, started, utils.AsPipelineError(err))
		}
		valid := utils.VerifySignature(secret, body, c.Get("X-Signature"))
		audit.SignatureValid = utils.Pointer(valid)
		if !valid {
			return wc.fail(c, audit, started, utils.ErrInvalidSignature())
		}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return wc.fail(c, audit, started, utils.ErrMissingRequiredFields("request body is not valid JSON"))
	}

	var result *utils.IngestResult
	txErr := wc.DB.Transaction(func(tx *gorm.DB) error {
		var ingestErr error
		result, ingestErr = wc.Ingester.Ingest(tx, tenantID, payload)
		return ingestErr
	})
	if txErr != nil {
		return wc.fail(c, audit, started, utils.AsPipelineError(txErr))
	}

	audit.LeadID = result.Lead.LeadID
	audit.ProcessingStatus = models.ProcessingSuccess
	audit.LeadAction = result.Action
	wc.writeAudit(audit, started)

	// First successfully processed delivery completes onboarding.
	if integration.OnboardingStatus != models.OnboardingActive {
		if err := wc.DB.Model(&integration).
			Update("onboarding_status", models.OnboardingActive).Error; err != nil {
			wc.Logger.WithError(err).Warn("failed to advance onboarding status")
		}
	}

	wc.Logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"tenant_id":  tenantID,
		"lead_id":    result.Lead.LeadID,
		"action":     result.Action,
	}).Info("webhook processed")

	return c.JSON(fiber.Map{
		"leadId":           result.Lead.LeadID,
		"action":           result.Action,
		"agentAssigned":    result.Lead.AgentID,
		"processingTimeMs": time.Since(started).Milliseconds(),
	})
}

// fail records the attempt on the audit trail and maps the error onto the
// wire. The primary transaction is already rolled back by this point.
func (wc *WebhookController) fail(c *fiber.Ctx, audit *models.WebhookEvent, started time.Time, pe *utils.PipelineError) error {
	audit.ProcessingStatus = models.ProcessingError
	audit.LeadAction = models.LeadActionError
	audit.ErrorCode = pe.Code
	audit.ErrorMessage = pe.Message
	wc.writeAudit(audit, started)

	if pe.Status >= fiber.StatusInternalServerError {
		sentry.CaptureException(pe)
	}

	wc.Logger.WithFields(logrus.Fields{
		"request_id": audit.RequestID,
		"tenant_id":  audit.TenantID,
		"error_code": pe.Code,
	}).Warn("webhook rejected")

	return utils.ErrorResponse(c, pe)
}

// writeAudit must never take down the request: observability is not allowed
// to become a point of failure.
func (wc *WebhookController) writeAudit(audit *models.WebhookEvent, started time.Time) {
	audit.DurationMs = time.Since(started).Milliseconds()
	if err := wc.DB.Create(audit).Error; err != nil {
		wc.Logger.WithError(err).Error("failed to write webhook audit entry")
	}
}
