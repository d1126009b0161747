// Package integration runs connection tests and data syncs for stored AWS
// integrations.
package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/cache"
	"github.com/contractlens/backend/internal/logging"
	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/provider"
	"github.com/contractlens/backend/internal/repository"
)

// usageMonths is how many calendar months of Cost Explorer data a usage
// sync pulls, counting the current month.
const usageMonths = 3

// ErrSyncNotPermitted is returned when the integration lacks the permission
// needed for the requested data type.
var ErrSyncNotPermitted = errors.New("integration: sync not permitted for this integration")

// ProviderSource resolves and evicts integration providers.
type ProviderSource interface {
	For(integ *model.AWSIntegration) (provider.MarketplaceProvider, error)
	Evict(integrationID uuid.UUID)
}

// SearchInvalidator drops cached searches after a sync.
type SearchInvalidator interface {
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// Notifier reports failed syncs.
type Notifier interface {
	SendSyncFailed(ctx context.Context, accountName, dataType, reason string) error
}

// Service tests and syncs integrations.
type Service struct {
	integrations repository.IntegrationRepository
	products     repository.ProductRepository
	usage        repository.UsageRepository
	syncLogs     repository.SyncLogRepository
	providers    ProviderSource
	searches     SearchInvalidator
	notifier     Notifier
	logger       *slog.Logger
	now          func() time.Time
}

// Deps groups the collaborators of a Service. Searches and Notifier may be nil.
type Deps struct {
	Integrations repository.IntegrationRepository
	Products     repository.ProductRepository
	Usage        repository.UsageRepository
	SyncLogs     repository.SyncLogRepository
	Providers    ProviderSource
	Searches     SearchInvalidator
	Notifier     Notifier
}

// NewService creates a Service.
func NewService(d Deps, logger *slog.Logger) *Service {
	return &Service{
		integrations: d.Integrations,
		products:     d.Products,
		usage:        d.Usage,
		syncLogs:     d.SyncLogs,
		providers:    d.Providers,
		searches:     d.Searches,
		notifier:     d.Notifier,
		logger:       logger,
		now:          time.Now,
	}
}

// TestConnection checks the integration's credentials and records the
// resulting connection status.
func (s *Service) TestConnection(ctx context.Context, integ *model.AWSIntegration) (provider.HealthStatus, error) {
	testedAt := s.now().UTC()

	p, err := s.providers.For(integ)
	if err != nil {
		status := provider.HealthStatus{Healthy: false, Message: err.Error(), LastChecked: testedAt}
		if uerr := s.integrations.UpdateStatus(ctx, integ.ID, model.ConnectionStatusError, err.Error(), testedAt); uerr != nil {
			return status, fmt.Errorf("integration: failed to record status: %w", uerr)
		}
		integ.ConnectionStatus = model.ConnectionStatusError
		integ.StatusMessage = err.Error()
		integ.LastConnectionTest = &testedAt
		return status, nil
	}

	health := p.Health(ctx)
	status, message := model.ConnectionStatusConnected, "connection verified"
	if !health.Healthy {
		status, message = model.ConnectionStatusError, health.Message
		// Credentials may have rotated; rebuild on next use.
		s.providers.Evict(integ.ID)
	}
	if err := s.integrations.UpdateStatus(ctx, integ.ID, status, message, testedAt); err != nil {
		return health, fmt.Errorf("integration: failed to record status: %w", err)
	}
	integ.ConnectionStatus = status
	integ.StatusMessage = message
	integ.LastConnectionTest = &testedAt
	return health, nil
}

// Sync pulls one data type for the integration and records a sync log. The
// returned log reflects the final state even when the sync failed.
func (s *Service) Sync(ctx context.Context, integ *model.AWSIntegration, dataType model.SyncDataType) (*model.SyncLog, error) {
	if !dataType.Valid() {
		return nil, fmt.Errorf("integration: unsupported data type %q", dataType)
	}
	if !permitted(integ, dataType) {
		return nil, ErrSyncNotPermitted
	}

	logger := logging.FromContext(ctx, s.logger).With("integration_id", integ.ID, "data_type", dataType)

	entry := &model.SyncLog{
		IntegrationID: integ.ID,
		UserID:        integ.UserID,
		DataType:      dataType,
		StartedAt:     s.now().UTC(),
	}
	if err := s.syncLogs.Start(ctx, entry); err != nil {
		return nil, fmt.Errorf("integration: failed to start sync log: %w", err)
	}

	result, err := s.run(ctx, integ, dataType)
	completed := s.now().UTC()
	entry.RecordsSynced, entry.RecordsFailed = result.Synced, result.Failed
	entry.CompletedAt = &completed

	if err != nil {
		logger.Error("sync failed", "error", err)
		entry.Status = model.SyncStatusFailed
		entry.ErrorMessage = err.Error()
		if ferr := s.syncLogs.Fail(ctx, entry.ID, result, err.Error()); ferr != nil {
			logger.Error("failed to record sync failure", "error", ferr)
		}
		if s.notifier != nil {
			if nerr := s.notifier.SendSyncFailed(ctx, integ.AccountName, string(dataType), err.Error()); nerr != nil {
				logger.Warn("failed to send sync failure notification", "error", nerr)
			}
		}
		return entry, err
	}

	entry.Status = model.SyncStatusCompleted
	if err := s.syncLogs.Complete(ctx, entry.ID, result); err != nil {
		return entry, fmt.Errorf("integration: failed to complete sync log: %w", err)
	}
	if err := s.integrations.UpdateLastSync(ctx, integ.ID, completed); err != nil {
		logger.Warn("failed to update last sync", "error", err)
	}
	if dataType == model.SyncMarketplaceProducts && s.searches != nil {
		if err := s.searches.InvalidatePrefix(ctx, cache.SearchPrefix(integ.ID.String())); err != nil {
			logger.Warn("failed to invalidate cached searches", "error", err)
		}
	}

	logger.Info("sync completed", "synced", result.Synced, "failed", result.Failed)
	return entry, nil
}

// SyncAll syncs dataType for every connected integration that permits it.
// A failing integration is logged and skipped.
func (s *Service) SyncAll(ctx context.Context, dataType model.SyncDataType) error {
	integrations, err := s.integrations.ListConnected(ctx)
	if err != nil {
		return fmt.Errorf("integration: failed to list connected integrations: %w", err)
	}
	if len(integrations) == 0 {
		s.logger.Info("no connected integrations, skipping sync", "data_type", dataType)
		return nil
	}

	for _, integ := range integrations {
		if !permitted(integ, dataType) {
			continue
		}
		// Sync records and logs its own failures.
		_, _ = s.Sync(ctx, integ, dataType)
	}
	return nil
}

// Forget evicts the integration's cached provider.
func (s *Service) Forget(integrationID uuid.UUID) {
	s.providers.Evict(integrationID)
}

func (s *Service) run(ctx context.Context, integ *model.AWSIntegration, dataType model.SyncDataType) (model.SyncResult, error) {
	p, err := s.providers.For(integ)
	if err != nil {
		return model.SyncResult{}, err
	}

	switch dataType {
	case model.SyncMarketplaceProducts:
		out, err := p.SyncProducts(ctx)
		if err != nil {
			var failed int
			if out != nil {
				failed = out.Failed
			}
			return model.SyncResult{Failed: failed}, err
		}
		n, err := s.products.Upsert(ctx, out.Products)
		if err != nil {
			return model.SyncResult{Failed: out.Failed + len(out.Products)}, fmt.Errorf("store products: %w", err)
		}
		return model.SyncResult{Synced: n, Failed: out.Failed}, nil

	default:
		end := model.DateOnly(s.now().UTC())
		start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(usageMonths - 1), 0)
		if !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		rows, err := p.ServiceUsage(ctx, start, end)
		if err != nil {
			return model.SyncResult{}, err
		}
		for i := range rows {
			rows[i].UserID = integ.UserID
		}
		n, err := s.usage.Upsert(ctx, rows)
		if err != nil {
			return model.SyncResult{Failed: len(rows)}, fmt.Errorf("store usage: %w", err)
		}
		return model.SyncResult{Synced: n}, nil
	}
}

func permitted(integ *model.AWSIntegration, dataType model.SyncDataType) bool {
	switch dataType {
	case model.SyncMarketplaceProducts:
		return integ.PermissionsMarketplace
	case model.SyncServiceUsage:
		return integ.PermissionsUsage
	}
	return false
}
