package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/model"
)

// PostgresNoticeRepository implements NoticeRepository for PostgreSQL.
type PostgresNoticeRepository struct {
	db *sql.DB
}

// NewPostgresNoticeRepository creates a new PostgresNoticeRepository.
func NewPostgresNoticeRepository(db *sql.DB) *PostgresNoticeRepository {
	return &PostgresNoticeRepository{db: db}
}

// NoticeSent reports whether the same opportunity was already announced with
// the same monthly savings.
func (r *PostgresNoticeRepository) NoticeSent(ctx context.Context, n *model.OptimizationNotice) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM optimization_notices
			WHERE contract_id = $1 AND integration_id = $2 AND product_id = $3 AND monthly_savings = $4)
	`, n.ContractID, n.IntegrationID, n.ProductID, n.MonthlySavings).Scan(&exists)
	return exists, err
}

// RecordNotice stores the latest announcement for a contract and product.
func (r *PostgresNoticeRepository) RecordNotice(ctx context.Context, n *model.OptimizationNotice) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO optimization_notices (id, user_id, contract_id, integration_id, product_id, monthly_savings, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (contract_id, integration_id, product_id) DO UPDATE SET
			monthly_savings = EXCLUDED.monthly_savings,
			sent_at = EXCLUDED.sent_at
	`, n.ID, n.UserID, n.ContractID, n.IntegrationID, n.ProductID, n.MonthlySavings, n.SentAt)
	return err
}
