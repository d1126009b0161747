// Package repository defines data access interfaces.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/model"
)

// ErrNotFound is returned when a row does not exist or belongs to another user.
var ErrNotFound = errors.New("repository: not found")

// ContractRepository defines contract data access methods. Reads and writes
// are scoped to the owning user.
type ContractRepository interface {
	Create(ctx context.Context, c *model.Contract) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*model.Contract, error)
	List(ctx context.Context, filter model.ContractFilter) ([]*model.Contract, error)
	ListActiveEndingBy(ctx context.Context, by time.Time) ([]*model.Contract, error)
	Update(ctx context.Context, c *model.Contract) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// InvoiceRepository defines invoice data access methods.
type InvoiceRepository interface {
	Create(ctx context.Context, inv *model.Invoice) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*model.Invoice, error)
	ListByContract(ctx context.Context, userID, contractID uuid.UUID) ([]*model.Invoice, error)
	NumberExists(ctx context.Context, contractID uuid.UUID, number string, excludeID uuid.UUID) (bool, error)
	Update(ctx context.Context, inv *model.Invoice) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// DocumentRepository defines contract document metadata access methods.
type DocumentRepository interface {
	Create(ctx context.Context, d *model.ContractDocument) error
	ListByContract(ctx context.Context, userID, contractID uuid.UUID) ([]*model.ContractDocument, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*model.ContractDocument, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// AlertRepository manages renewal alert configurations and their history.
type AlertRepository interface {
	ReplaceConfigurations(ctx context.Context, userID, contractID uuid.UUID, email string, days []int) ([]*model.AlertConfiguration, error)
	ListConfigurations(ctx context.Context, userID, contractID uuid.UUID) ([]*model.AlertConfiguration, error)
	ListAllConfigurations(ctx context.Context) ([]*model.AlertConfiguration, error)
	AddHistory(ctx context.Context, h *model.AlertHistory) error
	ListHistory(ctx context.Context, userID, contractID uuid.UUID) ([]*model.AlertHistory, error)
	HistoryExistsSince(ctx context.Context, contractID uuid.UUID, email, alertType string, since time.Time) (bool, error)
}

// NoticeRepository remembers which optimization opportunities were announced.
type NoticeRepository interface {
	NoticeSent(ctx context.Context, n *model.OptimizationNotice) (bool, error)
	RecordNotice(ctx context.Context, n *model.OptimizationNotice) error
}

// IntegrationRepository manages stored AWS integrations.
type IntegrationRepository interface {
	Create(ctx context.Context, i *model.AWSIntegration) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*model.AWSIntegration, error)
	List(ctx context.Context, userID uuid.UUID) ([]*model.AWSIntegration, error)
	ListConnected(ctx context.Context) ([]*model.AWSIntegration, error)
	Update(ctx context.Context, i *model.AWSIntegration) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ConnectionStatus, message string, testedAt time.Time) error
	UpdateLastSync(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// ProductRepository stores synced marketplace products. Identity is
// (integration_id, product_id); writes upsert on it.
type ProductRepository interface {
	Upsert(ctx context.Context, products []model.ExternalProduct) (int, error)
	List(ctx context.Context, filter model.ProductFilter) ([]model.ExternalProduct, error)
}

// SyncLogRepository records integration sync runs.
type SyncLogRepository interface {
	Start(ctx context.Context, log *model.SyncLog) error
	Complete(ctx context.Context, id uuid.UUID, result model.SyncResult) error
	Fail(ctx context.Context, id uuid.UUID, result model.SyncResult, message string) error
	ListByIntegration(ctx context.Context, userID, integrationID uuid.UUID, limit int) ([]*model.SyncLog, error)
}

// UsageRepository stores per-service cost rows pulled from Cost Explorer.
type UsageRepository interface {
	Upsert(ctx context.Context, rows []model.ServiceUsage) (int, error)
	ListByIntegration(ctx context.Context, userID, integrationID uuid.UUID) ([]model.ServiceUsage, error)
}
