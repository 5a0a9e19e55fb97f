package worker

import (
	"context"
	"fmt"
	"time"

	"agencyhub/models"
	"agencyhub/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SyncWorker periodically runs incremental syncs for integrations that opted
// into background syncing. Runs are sequential per tick; the engine's rate
// limiter keeps each tenant inside its upstream quota.
type SyncWorker struct {
	db     *gorm.DB
	engine *utils.SyncEngine
	logger *logrus.Entry
}

func NewSyncWorker(db *gorm.DB, engine *utils.SyncEngine, logger *logrus.Entry) *SyncWorker {
	return &SyncWorker{
		db:     db,
		engine: engine,
		logger: logger,
	}
}

func (sw *SyncWorker) Start(ctx context.Context) {
	sw.logger.Info("starting sync worker")
	ticker := time.NewTicker(1 * time.Minute)

	for {
		select {
		case <-ticker.C:
			sw.runDueSyncs()
		case <-ctx.Done():
			sw.logger.Info("stopping sync worker")
			ticker.Stop()
			return
		}
	}
}

func (sw *SyncWorker) runDueSyncs() {
	var integrations []models.ConvosoIntegration
	err := sw.db.
		Where("is_active = ? AND auto_sync_enabled = ?", true, true).
		Find(&integrations).Error
	if err != nil {
		sw.logger.WithError(err).Error("failed to list auto-sync integrations")
		return
	}

	now := time.Now()
	for _, integration := range integrations {
		interval := time.Duration(integration.SyncIntervalMinutes) * time.Minute
		if integration.LastSyncAt != nil && now.Sub(*integration.LastSyncAt) < interval {
			continue
		}

		// Pull the last two days so late-arriving edits are still picked up;
		// the upsert path makes re-processing idempotent.
		summary, pe := sw.engine.Run(integration.TenantID, utils.SyncOptions{
			SyncType:  "incremental",
			StartDate: now.AddDate(0, 0, -2).Format("2006-01-02"),
			EndDate:   now.Format("2006-01-02"),
		})
		if pe != nil {
			sw.logger.WithFields(logrus.Fields{
				"tenant_id":  integration.TenantID,
				"error_code": pe.Code,
			}).Warn("scheduled sync failed")
			continue
		}

		sw.logger.WithFields(logrus.Fields{
			"tenant_id": integration.TenantID,
			"summary":   fmt.Sprintf("%+v", summary),
		}).Info("scheduled sync completed")
	}
}
