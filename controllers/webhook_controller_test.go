package controller

import (
	"testing"

	"agencyhub/models"
	"agencyhub/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newWebhookApp(t *testing.T, db *gorm.DB, vault *utils.CredentialVault) *fiber.App {
	t.Helper()

	ingester := utils.NewLeadIngester(utils.NewAgentAssigner(newTestLogger()), newTestLogger())
	wc := NewWebhookController(db, vault, ingester, newTestLogger())

	app := fiber.New()
	app.Post("/webhook/:tenantID", wc.HandleLeadWebhook)
	return app
}

func TestWebhookCreatesThenUpdatesLead(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault()
	app := newWebhookApp(t, db, vault)
	seedIntegration(t, db, vault, 1, "api-key", "")
	agentID := seedAgent(t, db, 1, "agent@agency.test")

	resp, body := postJSON(t, app, "/webhook/1",
		[]byte(`{"lead_id":"L1","phone_number":"555-0100","lead_score":85}`), nil)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "L1", body["leadId"])
	assert.Equal(t, models.LeadActionCreated, body["action"])
	assert.EqualValues(t, agentID, body["agentAssigned"])

	resp, body = postJSON(t, app, "/webhook/1",
		[]byte(`{"lead_id":"L1","phone_number":"555-0111","lead_score":40}`), nil)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, models.LeadActionUpdated, body["action"])

	var count int64
	require.NoError(t, db.Model(&models.Lead{}).Where("tenant_id = ?", 1).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var audits []models.WebhookEvent
	require.NoError(t, db.Where("tenant_id = ?", 1).Order("id ASC").Find(&audits).Error)
	require.Len(t, audits, 2)
	assert.Equal(t, models.ProcessingSuccess, audits[0].ProcessingStatus)
	assert.Equal(t, models.LeadActionCreated, audits[0].LeadAction)
	assert.Equal(t, models.LeadActionUpdated, audits[1].LeadAction)
	assert.NotEmpty(t, audits[0].RequestID)
}

func TestWebhookRoundRobinAcrossEvents(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault()
	app := newWebhookApp(t, db, vault)
	seedIntegration(t, db, vault, 1, "api-key", "")
	a := seedAgent(t, db, 1, "a@agency.test")
	b := seedAgent(t, db, 1, "b@agency.test")

	_, first := postJSON(t, app, "/webhook/1", []byte(`{"lead_id":"L1","phone":"555-0100"}`), nil)
	_, second := postJSON(t, app, "/webhook/1", []byte(`{"lead_id":"L2","phone":"555-0101"}`), nil)

	assert.EqualValues(t, a, first["agentAssigned"])
	assert.EqualValues(t, b, second["agentAssigned"])
}

func TestWebhookActivatesOnboarding(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault()
	app := newWebhookApp(t, db, vault)
	seedIntegration(t, db, vault, 1, "api-key", "")
	require.NoError(t, db.Model(&models.ConvosoIntegration{}).
		Where("tenant_id = ?", 1).
		Update("onboarding_status", models.OnboardingValidated).Error)

	resp, _ := postJSON(t, app, "/webhook/1",
		[]byte(`{"lead_id":"L1","phone_number":"555-0100"}`), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var integration models.ConvosoIntegration
	require.NoError(t, db.Where("tenant_id = ?", 1).First(&integration).Error)
	assert.Equal(t, models.OnboardingActive, integration.OnboardingStatus,
		"first processed delivery completes onboarding")
}

func TestWebhookVerifiesSignature(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault()
	app := newWebhookApp(t, db, vault)
	seedIntegration(t, db, vault, 1, "api-key", "hook-secret")

	payload := []byte(`{"lead_id":"L1","phone_number":"555-0100"}`)

	resp, body := postJSON(t, app, "/webhook/1", payload, map[string]string{
		"X-Signature": utils.SignPayload("hook-secret", payload),
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, models.LeadActionCreated, body["action"])

	// A signature computed over different bytes is rejected before any write.
	resp, body = postJSON(t, app, "/webhook/1",
		[]byte(`{"lead_id":"L2","phone_number":"555-0100"}`), map[string]string{
			"X-Signature": utils.SignPayload("hook-secret", payload),
		})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, utils.CodeInvalidSignature, body["error"])

	var count int64
	require.NoError(t, db.Model(&models.Lead{}).Where("lead_id = ?", "L2").Count(&count).Error)
	assert.Equal(t, int64(0), count)

	var audit models.WebhookEvent
	require.NoError(t, db.Where("processing_status = ?", models.ProcessingError).First(&audit).Error)
	assert.Equal(t, utils.CodeInvalidSignature, audit.ErrorCode)
	require.NotNil(t, audit.SignatureValid)
	assert.False(t, *audit.SignatureValid)
}

func TestWebhookMissingSignatureHeader(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault()
	app := newWebhookApp(t, db, vault)
	seedIntegration(t, db, vault, 1, "api-key", "hook-secret")

	resp, body := postJSON(t, app, "/webhook/1",
		[]byte(`{"lead_id":"L1","phone_number":"555-0100"}`), nil)

	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, utils.CodeInvalidSignature, body["error"])
}

func TestWebhookUnknownTenant(t *testing.T) {
	db := newTestDB(t)
	app := newWebhookApp(t, db, newTestVault())

	resp, body := postJSON(t, app, "/webhook/42",
		[]byte(`{"lead_id":"L1","phone_number":"555-0100"}`), nil)

	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, utils.CodeIntegrationNotFound, body["error"])

	var audit models.WebhookEvent
	require.NoError(t, db.Where("tenant_id = ?", 42).First(&audit).Error)
	assert.Equal(t, models.ProcessingError, audit.ProcessingStatus)
}

func TestWebhookInactiveIntegrationIsInvisible(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault()
	app := newWebhookApp(t, db, vault)
	seedIntegration(t, db, vault, 1, "api-key", "")
	require.NoError(t, db.Model(&models.ConvosoIntegration{}).
		Where("tenant_id = ?", 1).Update("is_active", false).Error)

	resp, body := postJSON(t, app, "/webhook/1",
		[]byte(`{"lead_id":"L1","phone_number":"555-0100"}`), nil)

	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, utils.CodeIntegrationNotFound, body["error"])
}

func TestWebhookMalformedJSON(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault()
	app := newWebhookApp(t, db, vault)
	seedIntegration(t, db, vault, 1, "api-key", "")

	resp, body := postJSON(t, app, "/webhook/1", []byte(`{"lead_id":`), nil)

	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, utils.CodeMissingRequiredFields, body["error"])
}

func TestWebhookMissingIdentifiers(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault()
	app := newWebhookApp(t, db, vault)
	seedIntegration(t, db, vault, 1, "api-key", "")

	resp, body := postJSON(t, app, "/webhook/1",
		[]byte(`{"first_name":"Ann","lead_score":90}`), nil)

	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, utils.CodeMissingRequiredFields, body["error"])

	var audit models.WebhookEvent
	require.NoError(t, db.Where("tenant_id = ?", 1).First(&audit).Error)
	assert.Equal(t, models.LeadActionError, audit.LeadAction)
	assert.Equal(t, utils.CodeMissingRequiredFields, audit.ErrorCode)
}

func TestWebhookInvalidTenantParam(t *testing.T) {
	db := newTestDB(t)
	app := newWebhookApp(t, db, newTestVault())

	resp, body := postJSON(t, app, "/webhook/not-a-number",
		[]byte(`{"lead_id":"L1","phone_number":"555-0100"}`), nil)

	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, utils.CodeMissingRequiredFields, body["error"])
}
