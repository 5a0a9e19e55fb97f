package controller

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"agencyhub/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newIntegrationApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	ic := NewIntegrationController(db, newTestLogger())
	app := fiber.New()
	app.Get("/integrations/:tenantID", ic.GetIntegration)
	app.Delete("/integrations/:tenantID", ic.DeactivateIntegration)
	app.Get("/analytics/leads", ic.GetLeadAnalytics)
	return app
}

func getJSON(t *testing.T, app *fiber.App, method, path string) (*http.Response, string) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, string(raw)
}

func TestGetIntegration(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault()
	app := newIntegrationApp(t, db)
	seedIntegration(t, db, vault, 1, "api-key", "hook")

	resp, body := getJSON(t, app, fiber.MethodGet, "/integrations/1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"provider":"convoso"`)
	assert.NotContains(t, body, "api-key", "plaintext never leaves the vault")

	resp, _ = getJSON(t, app, fiber.MethodGet, "/integrations/9")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestDeactivateIntegration(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault()
	app := newIntegrationApp(t, db)
	seedIntegration(t, db, vault, 1, "api-key", "")

	resp, _ := getJSON(t, app, fiber.MethodDelete, "/integrations/1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var integration models.ConvosoIntegration
	require.NoError(t, db.Where("tenant_id = ?", 1).First(&integration).Error)
	assert.False(t, integration.IsActive, "soft deactivation keeps the row")

	// Deactivating twice is a 404: the active row is gone.
	resp, _ = getJSON(t, app, fiber.MethodDelete, "/integrations/1")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetLeadAnalytics(t *testing.T) {
	db := newTestDB(t)
	app := newIntegrationApp(t, db)

	for _, rollup := range []models.LeadAnalytics{
		{TenantID: 1, Date: "2026-08-29", Source: "convoso", CampaignID: "C1", TotalLeads: 4, TotalCost: 8, AvgLeadScore: 70},
		{TenantID: 1, Date: "2026-08-30", Source: "convoso", CampaignID: "C1", TotalLeads: 2, TotalCost: 3, AvgLeadScore: 55},
		{TenantID: 2, Date: "2026-08-30", Source: "convoso", CampaignID: "C9", TotalLeads: 9},
	} {
		require.NoError(t, db.Create(&rollup).Error)
	}

	resp, body := getJSON(t, app, fiber.MethodGet, "/analytics/leads?tenantId=1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "2026-08-29")
	assert.Contains(t, body, "2026-08-30")
	assert.NotContains(t, body, "C9", "other tenants stay invisible")

	resp, body = getJSON(t, app, fiber.MethodGet, "/analytics/leads?tenantId=1&from=2026-08-30")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "2026-08-29")
	assert.Contains(t, body, "2026-08-30")

	resp, _ = getJSON(t, app, fiber.MethodGet, "/analytics/leads")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
