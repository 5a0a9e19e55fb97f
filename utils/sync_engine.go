package utils

import (
	"errors"
	"fmt"
	"time"

	"agencyhub/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SyncOptions parametrize one historical sync run.
type SyncOptions struct {
	SyncType   string
	StartDate  string // YYYY-MM-DD
	EndDate    string // YYYY-MM-DD
	CampaignID string
	BatchSize  int
}

// SyncSummary is the best-effort result of a run: partial progress is always
// reported, never discarded.
type SyncSummary struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
	Batches   int `json:"batches"`

	RateLimited    bool   `json:"rateLimited"`
	RetryAfter     int    `json:"retryAfter,omitempty"` // seconds
	RetryExhausted bool   `json:"retryExhausted"`
	LastError      string `json:"lastError,omitempty"`

	DurationMs int64 `json:"durationMs"`
}

// SyncProgress is a snapshot pushed to live observers between batches.
type SyncProgress struct {
	TenantID  uint   `json:"tenantId"`
	Batches   int    `json:"batches"`
	Processed int    `json:"processed"`
	Errors    int    `json:"errors"`
	Status    string `json:"status"` // running, completed, aborted
}

// ProgressPublisher receives progress snapshots. Implemented by the sync
// WebSocket hub; nil disables publishing.
type ProgressPublisher interface {
	Publish(progress SyncProgress)
}

// SyncEngine pages through the provider API for one tenant under rate limits,
// funneling every lead through the same ingestion path as the webhook
// receiver. Pages are fetched sequentially per tenant; multiple tenants may
// sync concurrently.
type SyncEngine struct {
	DB         *gorm.DB
	Vault      *CredentialVault
	Limiter    RateLimiter
	Client     *ConvosoClient
	Ingester   *LeadIngester
	Logger     *logrus.Entry
	Progress   ProgressPublisher
	MaxRetries int

	// Sleep is swappable so retry tests do not wait out real backoff.
	Sleep func(time.Duration)
}

func NewSyncEngine(db *gorm.DB, vault *CredentialVault, limiter RateLimiter, client *ConvosoClient, ingester *LeadIngester, logger *logrus.Entry, maxRetries int) *SyncEngine {
	return &SyncEngine{
		DB:         db,
		Vault:      vault,
		Limiter:    limiter,
		Client:     client,
		Ingester:   ingester,
		Logger:     logger,
		MaxRetries: maxRetries,
		Sleep:      time.Sleep,
	}
}

// Run executes one sync. Returns a PipelineError only when nothing could be
// processed at all (no integration, bad credentials, rate-limited before the
// first batch); any later failure ends the run early and is reported in the
// summary instead.
func (se *SyncEngine) Run(tenantID uint, opts SyncOptions) (*SyncSummary, *PipelineError) {
	started := time.Now()
	summary := &SyncSummary{}

	var integration models.ConvosoIntegration
	err := se.DB.Where("tenant_id = ? AND is_active = ?", tenantID, true).First(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIntegrationNotFound(tenantID)
	}
	if err != nil {
		return nil, ErrTransaction(err)
	}

	apiKey, err := se.Vault.Decrypt(integration.EncryptedAPIKey, tenantID)
	if err != nil {
		return nil, AsPipelineError(err)
	}
	if apiKey == "" {
		return nil, ErrDecryption(errors.New("integration has no API key on file"))
	}

	limits := RateLimits{
		PerMinute:     integration.RateLimitPerMinute,
		PerHour:       integration.RateLimitPerHour,
		MaxConcurrent: integration.MaxConcurrent,
	}
	if limits.PerMinute <= 0 {
		limits.PerMinute = 60
	}
	if limits.PerHour <= 0 {
		limits.PerHour = 1000
	}
	if limits.MaxConcurrent <= 0 {
		limits.MaxConcurrent = 3
	}
	limiterKey := fmt.Sprintf("sync:%d", tenantID)

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	offset := 0
	for {
		reservation := se.Limiter.Acquire(limiterKey, limits)
		if !reservation.Allowed {
			if summary.Batches == 0 {
				// Nothing processed yet: the caller gets a plain 429.
				return nil, ErrRateLimited(reservation.RetryAfter)
			}
			summary.RateLimited = true
			summary.RetryAfter = int(reservation.RetryAfter.Seconds()) + 1
			break
		}

		page, fetchErr := se.fetchPageWithRetries(apiKey, LeadSearchParams{
			StartDate:  opts.StartDate,
			EndDate:    opts.EndDate,
			CampaignID: opts.CampaignID,
			Offset:     offset,
			Limit:      batchSize,
		})
		if fetchErr != nil {
			// Retry budget exhausted: abandon the run, keep partial results.
			se.Limiter.Release(limiterKey)
			summary.RetryExhausted = true
			summary.LastError = fetchErr.Error()
			break
		}

		inserted, updated, errored := se.processPage(tenantID, page)
		se.Limiter.Release(limiterKey)

		summary.Batches++
		summary.Processed += len(page.Entries)
		summary.Inserted += inserted
		summary.Updated += updated
		summary.Errors += errored

		se.publish(SyncProgress{
			TenantID:  tenantID,
			Batches:   summary.Batches,
			Processed: summary.Processed,
			Errors:    summary.Errors,
			Status:    "running",
		})

		if !page.HasMore || len(page.Entries) == 0 {
			break
		}
		offset = page.Offset + len(page.Entries)
	}

	summary.DurationMs = time.Since(started).Milliseconds()

	status := "completed"
	if summary.RateLimited || summary.RetryExhausted {
		status = "aborted"
	}
	se.publish(SyncProgress{
		TenantID:  tenantID,
		Batches:   summary.Batches,
		Processed: summary.Processed,
		Errors:    summary.Errors,
		Status:    status,
	})

	se.writeActivity(tenantID, opts, summary, started)

	if err := se.DB.Model(&integration).Update("last_sync_at", time.Now()).Error; err != nil {
		se.Logger.WithError(err).Warn("failed to stamp last_sync_at")
	}

	se.Logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"processed": summary.Processed,
		"inserted":  summary.Inserted,
		"updated":   summary.Updated,
		"errors":    summary.Errors,
		"batches":   summary.Batches,
		"status":    status,
	}).Info("sync run finished")

	return summary, nil
}

// fetchPageWithRetries retries transient upstream failures with bounded
// exponential backoff before giving up on the run.
func (se *SyncEngine) fetchPageWithRetries(apiKey string, params LeadSearchParams) (*LeadPage, error) {
	var lastErr error
	for attempt := 0; attempt <= se.MaxRetries; attempt++ {
		if attempt > 0 {
			se.Sleep(ComputeBackoff(attempt - 1))
		}

		page, err := se.Client.FetchLeads(apiKey, params)
		if err == nil {
			return page, nil
		}
		lastErr = err

		pe := AsPipelineError(err)
		if !pe.Retryable() {
			break
		}
		se.Logger.WithError(err).WithField("attempt", attempt+1).Warn("page fetch failed, backing off")
	}
	return nil, lastErr
}

// processPage funnels each entry through the shared ingestion path, one
// transaction per lead so a bad record does not poison the batch.
func (se *SyncEngine) processPage(tenantID uint, page *LeadPage) (inserted, updated, errored int) {
	for _, entry := range page.Entries {
		var result *IngestResult
		err := se.DB.Transaction(func(tx *gorm.DB) error {
			var ingestErr error
			result, ingestErr = se.Ingester.Ingest(tx, tenantID, entry)
			return ingestErr
		})
		if err != nil {
			errored++
			se.Logger.WithError(err).WithField("tenant_id", tenantID).Warn("lead ingest failed during sync")
			continue
		}
		switch result.Action {
		case models.LeadActionCreated:
			inserted++
		case models.LeadActionUpdated:
			updated++
		}
	}
	return
}

// writeActivity records the run's audit row. A failed audit write is logged,
// never fatal.
func (se *SyncEngine) writeActivity(tenantID uint, opts SyncOptions, summary *SyncSummary, started time.Time) {
	activity := models.SyncActivity{
		TenantID:       tenantID,
		SyncType:       opts.SyncType,
		CampaignID:     opts.CampaignID,
		StartDate:      opts.StartDate,
		EndDate:        opts.EndDate,
		Processed:      summary.Processed,
		Inserted:       summary.Inserted,
		Updated:        summary.Updated,
		Errors:         summary.Errors,
		Batches:        summary.Batches,
		RateLimited:    summary.RateLimited,
		RetryExhausted: summary.RetryExhausted,
		LastError:      summary.LastError,
		StartedAt:      started,
		DurationMs:     summary.DurationMs,
	}
	if err := se.DB.Create(&activity).Error; err != nil {
		se.Logger.WithError(err).Error("failed to write sync activity audit entry")
	}
}

func (se *SyncEngine) publish(progress SyncProgress) {
	if se.Progress != nil {
		se.Progress.Publish(progress)
	}
}
