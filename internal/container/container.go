// Package container provides dependency injection.
package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/contractlens/backend/internal/cache"
	"github.com/contractlens/backend/internal/config"
	"github.com/contractlens/backend/internal/integration"
	"github.com/contractlens/backend/internal/jobs"
	"github.com/contractlens/backend/internal/migrations"
	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/notification"
	"github.com/contractlens/backend/internal/optimization"
	"github.com/contractlens/backend/internal/provider"
	"github.com/contractlens/backend/internal/repository"
	"github.com/contractlens/backend/internal/storage"
)

// Job names.
const (
	JobMarketplaceSync = "marketplace-sync"
	JobUsageSync       = "usage-sync"
	JobRenewalAlerts   = "renewal-alerts"
)

// Container holds all application dependencies.
type Container struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sql.DB
	cache     *cache.Cache
	store     *storage.Store
	registry  *provider.Registry
	providers *provider.Pool
	scheduler *jobs.Scheduler

	// Repositories
	contractRepo    repository.ContractRepository
	invoiceRepo     repository.InvoiceRepository
	documentRepo    repository.DocumentRepository
	alertRepo       repository.AlertRepository
	integrationRepo repository.IntegrationRepository
	productRepo     repository.ProductRepository
	syncLogRepo     repository.SyncLogRepository
	usageRepo       repository.UsageRepository
	noticeRepo      repository.NoticeRepository

	// Services
	notifService   *notification.Service
	optimizer      *optimization.Service
	integrationSvc *integration.Service
	renewalAlerts  *jobs.RenewalAlerts
}

// New creates a new dependency container.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	c := &Container{
		cfg:    cfg,
		logger: logger,
	}

	// Initialize database
	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	c.db = db
	logger.Info("database connected", "host", cfg.Database.Host, "database", cfg.Database.Name)

	if cfg.Database.RunMigrations {
		if err := migrations.Run(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if v, dirty, err := migrations.Version(db); err == nil {
			logger.Info("database migrated", "version", v, "dirty", dirty)
		}
	}

	// Initialize repositories
	c.contractRepo = repository.NewPostgresContractRepository(db)
	c.invoiceRepo = repository.NewPostgresInvoiceRepository(db)
	c.documentRepo = repository.NewPostgresDocumentRepository(db)
	c.alertRepo = repository.NewPostgresAlertRepository(db)
	c.integrationRepo = repository.NewPostgresIntegrationRepository(db)
	c.productRepo = repository.NewPostgresProductRepository(db)
	c.syncLogRepo = repository.NewPostgresSyncLogRepository(db)
	c.usageRepo = repository.NewPostgresUsageRepository(db)
	c.noticeRepo = repository.NewPostgresNoticeRepository(db)

	// Search cache is optional; searches go straight to AWS without it.
	if cfg.Redis.Enabled {
		rc, err := cache.InitServer(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, search caching disabled", "addr", cfg.Redis.Addr(), "error", err)
		} else {
			c.cache = rc
			logger.Info("redis connected", "addr", cfg.Redis.Addr())
		}
	}

	if cfg.Storage.Enabled {
		store, err := storage.New(ctx, cfg.Storage, cfg.AWS)
		if err != nil {
			logger.Warn("document storage unavailable", "bucket", cfg.Storage.Bucket, "error", err)
		} else {
			c.store = store
			logger.Info("document storage initialized", "bucket", cfg.Storage.Bucket)
		}
	}

	c.notifService = notification.NewService(notification.Config{
		SlackWebhookURL: cfg.Notification.SlackWebhookURL,
		EmailSMTPHost:   cfg.Notification.EmailSMTPHost,
		EmailSMTPPort:   cfg.Notification.EmailSMTPPort,
		EmailFrom:       cfg.Notification.EmailFrom,
		EmailPassword:   cfg.Notification.EmailPassword,
		WebhookURLs:     cfg.Notification.WebhookList(),
	}, logger)
	logger.Info("notification service initialized")

	// One provider per integration, built lazily from stored credentials.
	c.registry = provider.NewRegistry()
	factory := provider.NewFactory(cfg.EncryptionKey, cfg.AWS, provider.Limits{
		RPS:        cfg.Marketplace.RateLimitRPS,
		Burst:      cfg.Marketplace.RateLimitBurst,
		MaxResults: cfg.Marketplace.SearchMaxResults,
	}, logger)
	c.providers = provider.NewPool(c.registry, factory)

	// A nil *cache.Cache must not reach the services as a non-nil interface.
	var searchCache optimization.SearchCache
	var invalidator integration.SearchInvalidator
	if c.cache != nil {
		searchCache = c.cache
		invalidator = c.cache
	}

	c.optimizer = optimization.NewService(
		c.contractRepo,
		c.productRepo,
		c.integrationRepo,
		c.providers,
		searchCache,
		c.notifService,
		c.noticeRepo,
		cfg.Marketplace,
		logger,
	)
	c.integrationSvc = integration.NewService(integration.Deps{
		Integrations: c.integrationRepo,
		Products:     c.productRepo,
		Usage:        c.usageRepo,
		SyncLogs:     c.syncLogRepo,
		Providers:    c.providers,
		Searches:     invalidator,
		Notifier:     c.notifService,
	}, logger)
	c.renewalAlerts = jobs.NewRenewalAlerts(c.contractRepo, c.alertRepo, c.notifService, logger)

	c.scheduler = jobs.NewScheduler(logger)

	return c, nil
}

// Start registers and starts background jobs.
func (c *Container) Start(ctx context.Context) error {
	if !c.cfg.Jobs.Enabled {
		c.logger.Info("background jobs disabled")
		return nil
	}

	err := errors.Join(
		c.scheduler.Register(JobMarketplaceSync, c.cfg.Jobs.MarketplaceSyncSchedule, c.marketplaceSyncJob),
		c.scheduler.Register(JobUsageSync, c.cfg.Jobs.UsageSyncSchedule, c.usageSyncJob),
		c.scheduler.Register(JobRenewalAlerts, c.cfg.Jobs.RenewalAlertSchedule, c.renewalAlerts.Run),
	)
	if err != nil {
		return fmt.Errorf("failed to register jobs: %w", err)
	}
	return c.scheduler.Start()
}

// Stop gracefully stops all components.
func (c *Container) Stop(ctx context.Context) error {
	c.logger.Info("stopping container components")

	if c.scheduler != nil {
		c.scheduler.Stop()
	}

	var errs []error
	if c.registry != nil {
		errs = append(errs, c.registry.Close())
	}
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}

// Ping checks database connectivity.
func (c *Container) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Accessors

func (c *Container) Config() *config.Config                                  { return c.cfg }
func (c *Container) Logger() *slog.Logger                                    { return c.logger }
func (c *Container) DB() *sql.DB                                             { return c.db }
func (c *Container) Cache() *cache.Cache                                     { return c.cache }
func (c *Container) ProviderRegistry() *provider.Registry                    { return c.registry }
func (c *Container) Providers() *provider.Pool                               { return c.providers }
func (c *Container) Scheduler() *jobs.Scheduler                              { return c.scheduler }
func (c *Container) ContractRepository() repository.ContractRepository       { return c.contractRepo }
func (c *Container) InvoiceRepository() repository.InvoiceRepository         { return c.invoiceRepo }
func (c *Container) DocumentRepository() repository.DocumentRepository       { return c.documentRepo }
func (c *Container) AlertRepository() repository.AlertRepository             { return c.alertRepo }
func (c *Container) IntegrationRepository() repository.IntegrationRepository { return c.integrationRepo }
func (c *Container) ProductRepository() repository.ProductRepository         { return c.productRepo }
func (c *Container) SyncLogRepository() repository.SyncLogRepository         { return c.syncLogRepo }
func (c *Container) UsageRepository() repository.UsageRepository             { return c.usageRepo }
func (c *Container) NotificationService() *notification.Service              { return c.notifService }
func (c *Container) Optimizer() *optimization.Service                        { return c.optimizer }
func (c *Container) IntegrationService() *integration.Service                { return c.integrationSvc }

// DocumentStore returns the object store, or nil when storage is disabled.
func (c *Container) DocumentStore() *storage.Store { return c.store }

// Background job implementations

// marketplaceSyncJob refreshes synced products and then announces the
// opportunities each affected user now has.
func (c *Container) marketplaceSyncJob(ctx context.Context) error {
	c.logger.Info("running marketplace sync job")

	if err := c.integrationSvc.SyncAll(ctx, model.SyncMarketplaceProducts); err != nil {
		c.logger.Error("marketplace sync failed", "error", err)
		return err
	}

	integrations, err := c.integrationRepo.ListConnected(ctx)
	if err != nil {
		c.logger.Error("failed to list connected integrations", "error", err)
		return err
	}

	seen := make(map[uuid.UUID]bool)
	for _, integ := range integrations {
		if seen[integ.UserID] || !integ.CanSearchMarketplace() {
			continue
		}
		seen[integ.UserID] = true

		report, err := c.optimizer.Report(ctx, integ.UserID)
		if err != nil {
			c.logger.Error("failed to build optimization report", "user_id", integ.UserID, "error", err)
			continue
		}
		sent := c.optimizer.Notify(ctx, report)
		c.logger.Info("optimization report built",
			"user_id", integ.UserID,
			"opportunities", len(report.Opportunities),
			"notified", sent,
			"annual_savings", report.TotalAnnualSavings.StringFixed(2),
		)
	}
	return nil
}

func (c *Container) usageSyncJob(ctx context.Context) error {
	c.logger.Info("running usage sync job")
	return c.integrationSvc.SyncAll(ctx, model.SyncServiceUsage)
}
