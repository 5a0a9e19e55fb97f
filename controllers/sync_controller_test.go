package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"agencyhub/models"
	"agencyhub/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeLeadSource pages through the given leads the way the provider does.
func fakeLeadSource(t *testing.T, leads []map[string]interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		end := offset + limit
		if end > len(leads) {
			end = len(leads)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"entries": leads[offset:end],
				"offset":  offset,
				"total":   len(leads),
			},
			"hasMore": end < len(leads),
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func newSyncApp(t *testing.T, db *gorm.DB, vault *utils.CredentialVault, providerURL string) (*fiber.App, *utils.MemoryRateLimiter) {
	t.Helper()

	limiter := utils.NewMemoryRateLimiter()
	client := utils.NewConvosoClient(providerURL, 5*time.Second, newTestLogger())
	ingester := utils.NewLeadIngester(utils.NewAgentAssigner(newTestLogger()), newTestLogger())
	engine := utils.NewSyncEngine(db, vault, limiter, client, ingester, newTestLogger(), 3)
	engine.Sleep = func(time.Duration) {}

	sc := NewSyncController(db, engine, newTestLogger())
	app := fiber.New()
	app.Post("/sync", sc.HandleSync)
	return app, limiter
}

func TestHandleSyncRunsToCompletion(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault()
	provider := fakeLeadSource(t, []map[string]interface{}{
		{"lead_id": "S1", "phone_number": "555-0100"},
		{"lead_id": "S2", "phone_number": "555-0101"},
		{"lead_id": "S3", "phone_number": "555-0102"},
	})
	app, _ := newSyncApp(t, db, vault, provider.URL)
	seedIntegration(t, db, vault, 1, "api-key", "")

	resp, body := postJSON(t, app, "/sync", []byte(
		`{"tenantId":1,"syncType":"historical","batchSize":2}`,
	), nil)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["processed"])
	assert.EqualValues(t, 3, body["inserted"])
	assert.EqualValues(t, 2, body["batches"])
	assert.Equal(t, false, body["rateLimited"])

	var count int64
	require.NoError(t, db.Model(&models.Lead{}).Where("tenant_id = ?", 1).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestHandleSyncValidation(t *testing.T) {
	db := newTestDB(t)
	provider := fakeLeadSource(t, nil)
	app, _ := newSyncApp(t, db, newTestVault(), provider.URL)

	cases := []struct {
		name string
		body string
	}{
		{"missing tenant", `{"syncType":"historical"}`},
		{"bad sync type", `{"tenantId":1,"syncType":"full"}`},
		{"bad date", `{"tenantId":1,"syncType":"historical","startDate":"01/02/2026"}`},
		{"batch too large", `{"tenantId":1,"syncType":"historical","batchSize":9999}`},
		{"not json", `{"tenantId":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := postJSON(t, app, "/sync", []byte(tc.body), nil)
			require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "invalid_request", body["error"])
		})
	}
}

func TestHandleSyncUnknownTenant(t *testing.T) {
	db := newTestDB(t)
	provider := fakeLeadSource(t, nil)
	app, _ := newSyncApp(t, db, newTestVault(), provider.URL)

	resp, body := postJSON(t, app, "/sync", []byte(
		`{"tenantId":5,"syncType":"historical"}`,
	), nil)

	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, utils.CodeIntegrationNotFound, body["error"])
}

func TestHandleSyncRateLimitedUpFront(t *testing.T) {
	db := newTestDB(t)
	vault := newTestVault()
	provider := fakeLeadSource(t, nil)
	app, limiter := newSyncApp(t, db, vault, provider.URL)
	seedIntegration(t, db, vault, 1, "api-key", "")

	require.NoError(t, db.Model(&models.ConvosoIntegration{}).
		Where("tenant_id = ?", 1).
		Update("rate_limit_per_minute", 1).Error)
	limiter.Acquire("sync:1", utils.RateLimits{PerMinute: 1, PerHour: 1000, MaxConcurrent: 3})

	resp, body := postJSON(t, app, "/sync", []byte(
		`{"tenantId":1,"syncType":"historical"}`,
	), nil)

	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, utils.CodeRateLimited, body["error"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
