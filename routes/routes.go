package routes

import (
	"os"

	"agencyhub/config"
	controller "agencyhub/controllers"
	"agencyhub/middleware"
	"agencyhub/utils"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.JSONFormatter{})
	if config.AppConfig.Environment == "development" {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

func newRateLimiter(log *logrus.Logger) utils.RateLimiter {
	if config.AppConfig.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		})
		return utils.NewRedisRateLimiter(client, log.WithField("component", "ratelimit"))
	}
	return utils.NewMemoryRateLimiter()
}

// SetupRoutes wires the ingestion pipeline onto the app and returns the sync
// engine so background workers can reuse it.
func SetupRoutes(app *fiber.App, db *gorm.DB) *utils.SyncEngine {
	log := newLogger()

	vault := utils.NewCredentialVault(config.AppConfig.EncryptionKey, config.AppConfig.VaultSalt)
	client := utils.NewConvosoClient(
		config.AppConfig.ConvosoBaseURL,
		config.AppConfig.SyncRequestTimeout,
		log.WithField("component", "convoso"),
	)
	assigner := utils.NewAgentAssigner(log.WithField("component", "assigner"))
	ingester := utils.NewLeadIngester(assigner, log.WithField("component", "ingester"))

	hub := controller.NewSyncProgressHub(log.WithField("component", "sync_ws"))
	engine := utils.NewSyncEngine(
		db, vault, newRateLimiter(log), client, ingester,
		log.WithField("component", "sync"),
		config.AppConfig.SyncMaxRetries,
	)
	engine.Progress = hub

	webhookController := controller.NewWebhookController(db, vault, ingester, log.WithField("component", "webhook"))
	syncController := controller.NewSyncController(db, engine, log.WithField("component", "sync_api"))
	credentialController := controller.NewCredentialController(db, vault, client, log.WithField("component", "credentials"))
	integrationController := controller.NewIntegrationController(db, log.WithField("component", "integrations"))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Provider-facing webhook: HMAC-authenticated, flood-limited, no JWT.
	app.Post("/webhook/:tenantID",
		middleware.WebhookRateLimiter(),
		logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}),
		webhookController.HandleLeadWebhook,
	)

	// Onboarding endpoint used by operator tooling.
	app.Post("/credentials/validate", middleware.Protected(), credentialController.ValidateCredentials)

	// Operator API
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	api.Post("/sync", syncController.HandleSync)
	api.Post("/credentials/rotate", credentialController.RotateCredentials)
	api.Get("/integrations/:tenantID", integrationController.GetIntegration)
	api.Delete("/integrations/:tenantID", integrationController.DeactivateIntegration)
	api.Get("/analytics/leads", integrationController.GetLeadAnalytics)

	// Live sync progress feed
	app.Get("/api/v1/sync/progress", websocket.New(hub.HandleProgressWS))

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": "The requested resource was not found",
		})
	})

	log.Info("routes initialized successfully")
	return engine
}
