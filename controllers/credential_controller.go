package controller

import (
	"errors"
	"fmt"
	"time"

	"agencyhub/config"
	"agencyhub/models"
	"agencyhub/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CredentialController validates, stores and rotates per-tenant provider
// credentials. Plaintext secrets only ever exist in request scope; storage
// always goes through the vault.
type CredentialController struct {
	DB     *gorm.DB
	Vault  *utils.CredentialVault
	Client *utils.ConvosoClient
	Logger *logrus.Entry
}

func NewCredentialController(db *gorm.DB, vault *utils.CredentialVault, client *utils.ConvosoClient, logger *logrus.Entry) *CredentialController {
	return &CredentialController{DB: db, Vault: vault, Client: client, Logger: logger}
}

type credentialsPayload struct {
	APIKey        string `json:"apiKey" validate:"required"`
	WebhookSecret string `json:"webhookSecret"`
	AccountID     string `json:"accountId"`
}

type validateRequest struct {
	TenantID    uint               `json:"tenantId" validate:"required"`
	Credentials credentialsPayload `json:"credentials" validate:"required"`
	TestMode    bool               `json:"testMode"`
}

// ValidateCredentials is POST /credentials/validate. The API key is proven
// against the provider first; with testMode=false the encrypted credentials
// are persisted and the tenant's webhook URL is returned for configuration at
// the provider.
func (cc *CredentialController) ValidateCredentials(c *fiber.Ctx) error {
	var req validateRequest
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

	if err := cc.Client.ValidateCredentials(req.Credentials.APIKey); err != nil {
		pe := utils.AsPipelineError(err)
		pe.Status = fiber.StatusUnprocessableEntity
		cc.Logger.WithField("tenant_id", req.TenantID).Warn("credential validation failed")
		return utils.ErrorResponse(c, pe)
	}

	webhookURL := fmt.Sprintf("%s/webhook/%d", config.AppConfig.PublicBaseURL, req.TenantID)

	if req.TestMode {
		return c.JSON(fiber.Map{
			"valid":      true,
			"persisted":  false,
			"webhookUrl": webhookURL,
		})
	}

	const keyVersion = 1
	encryptedKey, err := cc.Vault.Encrypt(req.Credentials.APIKey, req.TenantID, keyVersion)
	if err != nil {
		return utils.ErrorResponse(c, utils.ErrTransaction(err))
	}
	encryptedSecret, err := cc.Vault.Encrypt(req.Credentials.WebhookSecret, req.TenantID, keyVersion)
	if err != nil {
		return utils.ErrorResponse(c, utils.ErrTransaction(err))
	}
	encryptedAccount, err := cc.Vault.Encrypt(req.Credentials.AccountID, req.TenantID, keyVersion)
	if err != nil {
		return utils.ErrorResponse(c, utils.ErrTransaction(err))
	}

	integration := models.ConvosoIntegration{
		TenantID:               req.TenantID,
		Provider:               "convoso",
		EncryptedAPIKey:        encryptedKey,
		EncryptedWebhookSecret: encryptedSecret,
		EncryptedAccountID:     encryptedAccount,
		KeyVersion:             keyVersion,
		WebhookURL:             webhookURL,
		OnboardingStatus:       models.OnboardingValidated,
		LastValidationAt:       utils.Pointer(time.Now()),
		IsActive:               true,
	}

	err = cc.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"encrypted_api_key", "encrypted_webhook_secret", "encrypted_account_id",
			"key_version", "webhook_url", "onboarding_status", "last_validation_at",
			"is_active", "updated_at",
		}),
	}).Create(&integration).Error
	if err != nil {
		return utils.ErrorResponse(c, utils.ErrTransaction(err))
	}

	cc.Logger.WithField("tenant_id", req.TenantID).Info("credentials validated and stored")

	return c.JSON(fiber.Map{
		"valid":            true,
		"persisted":        true,
		"webhookUrl":       webhookURL,
		"onboardingStatus": integration.OnboardingStatus,
	})
}

type rotateRequest struct {
	TenantID   uint `json:"tenantId" validate:"required"`
	OldVersion int  `json:"oldVersion" validate:"required,min=1"`
	NewVersion int  `json:"newVersion" validate:"required,min=2"`
}

// RotateCredentials is POST /api/v1/credentials/rotate: re-encrypts all of an
// integration's envelopes under a new key version in one transaction.
func (cc *CredentialController) RotateCredentials(c *fiber.Ctx) error {
	var req rotateRequest
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
	if req.NewVersion <= req.OldVersion {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_request",
			"message": "newVersion must be greater than oldVersion",
		})
	}

	txErr := cc.DB.Transaction(func(tx *gorm.DB) error {
		var integration models.ConvosoIntegration
		err := tx.Where("tenant_id = ? AND is_active = ?", req.TenantID, true).First(&integration).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrIntegrationNotFound(req.TenantID)
		}
		if err != nil {
			return err
		}

		rotate := func(envelope string) (string, error) {
			return cc.Vault.RotateKey(req.TenantID, req.OldVersion, req.NewVersion, envelope)
		}
		if integration.EncryptedAPIKey, err = rotate(integration.EncryptedAPIKey); err != nil {
			return err
		}
		if integration.EncryptedWebhookSecret, err = rotate(integration.EncryptedWebhookSecret); err != nil {
			return err
		}
		if integration.EncryptedAccountID, err = rotate(integration.EncryptedAccountID); err != nil {
			return err
		}
		integration.KeyVersion = req.NewVersion

		return tx.Save(&integration).Error
	})
	if txErr != nil {
		return utils.ErrorResponse(c, utils.AsPipelineError(txErr))
	}

	cc.Logger.WithFields(logrus.Fields{
		"tenant_id":   req.TenantID,
		"key_version": req.NewVersion,
	}).Info("credentials rotated")

	return c.JSON(fiber.Map{
		"rotated":    true,
		"keyVersion": req.NewVersion,
	})
}
