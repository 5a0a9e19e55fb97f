package controller

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"agencyhub/config"
	"agencyhub/models"
	"agencyhub/utils"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))
	return db
}

func newTestLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l.WithField("component", "test")
}

func newTestVault() *utils.CredentialVault {
	return utils.NewCredentialVault("controller-test-master", "salt")
}

// seedIntegration stores an active integration; secret may be empty to skip
// signature verification.
func seedIntegration(t *testing.T, db *gorm.DB, vault *utils.CredentialVault, tenantID uint, apiKey, webhookSecret string) {
	t.Helper()

	encryptedKey, err := vault.Encrypt(apiKey, tenantID, 1)
	require.NoError(t, err)
	encryptedSecret, err := vault.Encrypt(webhookSecret, tenantID, 1)
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.ConvosoIntegration{
		TenantID:               tenantID,
		Provider:               "convoso",
		EncryptedAPIKey:        encryptedKey,
		EncryptedWebhookSecret: encryptedSecret,
		KeyVersion:             1,
		OnboardingStatus:       models.OnboardingActive,
		RateLimitPerMinute:     60,
		RateLimitPerHour:       1000,
		MaxConcurrent:          3,
		IsActive:               true,
	}).Error)
}

func seedAgent(t *testing.T, db *gorm.DB, tenantID uint, email string) uint {
	t.Helper()
	agent := models.User{
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: "x",
		Role:         "agent",
		IsActive:     true,
	}
	require.NoError(t, db.Create(&agent).Error)
	return agent.ID
}

// postJSON drives the app with a raw body so signature headers cover the exact
// bytes sent.
func postJSON(t *testing.T, app *fiber.App, path string, body []byte, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var parsed map[string]interface{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &parsed), "body: %s", raw)
	}
	return resp, parsed
}
