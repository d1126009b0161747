package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/model"
)

// PostgresSyncLogRepository implements SyncLogRepository for PostgreSQL.
type PostgresSyncLogRepository struct {
	db *sql.DB
}

// NewPostgresSyncLogRepository creates a new PostgresSyncLogRepository.
func NewPostgresSyncLogRepository(db *sql.DB) *PostgresSyncLogRepository {
	return &PostgresSyncLogRepository{db: db}
}

// Start inserts an in_progress row.
func (r *PostgresSyncLogRepository) Start(ctx context.Context, l *model.SyncLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.StartedAt.IsZero() {
		l.StartedAt = time.Now().UTC()
	}
	l.Status = model.SyncStatusInProgress
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_logs (id, integration_id, user_id, data_type, sync_status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, l.ID, l.IntegrationID, l.UserID, l.DataType, l.Status, l.StartedAt)
	return err
}

func (r *PostgresSyncLogRepository) Complete(ctx context.Context, id uuid.UUID, result model.SyncResult) error {
	return r.finish(ctx, id, model.SyncStatusCompleted, result, "")
}

func (r *PostgresSyncLogRepository) Fail(ctx context.Context, id uuid.UUID, result model.SyncResult, message string) error {
	return r.finish(ctx, id, model.SyncStatusFailed, result, message)
}

func (r *PostgresSyncLogRepository) finish(ctx context.Context, id uuid.UUID, status model.SyncStatus, result model.SyncResult, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_logs SET sync_status = $2, records_synced = $3, records_failed = $4, error_message = $5, completed_at = $6
		WHERE id = $1
	`, id, status, result.Synced, result.Failed, message, time.Now().UTC())
	return affectedOne(res, err)
}

func (r *PostgresSyncLogRepository) ListByIntegration(ctx context.Context, userID, integrationID uuid.UUID, limit int) ([]*model.SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, integration_id, user_id, data_type, sync_status, records_synced, records_failed,
			error_message, started_at, completed_at
		FROM sync_logs WHERE integration_id = $1 AND user_id = $2
		ORDER BY started_at DESC LIMIT $3
	`, integrationID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*model.SyncLog
	for rows.Next() {
		var l model.SyncLog
		if err := rows.Scan(&l.ID, &l.IntegrationID, &l.UserID, &l.DataType, &l.Status, &l.RecordsSynced,
			&l.RecordsFailed, &l.ErrorMessage, &l.StartedAt, &l.CompletedAt); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// PostgresUsageRepository implements UsageRepository for PostgreSQL.
type PostgresUsageRepository struct {
	db *sql.DB
}

// NewPostgresUsageRepository creates a new PostgresUsageRepository.
func NewPostgresUsageRepository(db *sql.DB) *PostgresUsageRepository {
	return &PostgresUsageRepository{db: db}
}

func (r *PostgresUsageRepository) Upsert(ctx context.Context, usage []model.ServiceUsage) (int, error) {
	if len(usage) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for i := range usage {
		u := &usage[i]
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO service_usage (id, integration_id, user_id, service_name, period_start, period_end, cost, usage_quantity, currency)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (integration_id, service_name, period_start) DO UPDATE SET
				period_end = EXCLUDED.period_end,
				cost = EXCLUDED.cost,
				usage_quantity = EXCLUDED.usage_quantity,
				currency = EXCLUDED.currency
		`, u.ID, u.IntegrationID, u.UserID, u.ServiceName, u.PeriodStart, u.PeriodEnd, u.Cost, u.UsageQuantity, u.Currency); err != nil {
			return 0, fmt.Errorf("upsert usage %s: %w", u.ServiceName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(usage), nil
}

func (r *PostgresUsageRepository) ListByIntegration(ctx context.Context, userID, integrationID uuid.UUID) ([]model.ServiceUsage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, integration_id, user_id, service_name, period_start, period_end, cost, usage_quantity, currency
		FROM service_usage WHERE integration_id = $1 AND user_id = $2
		ORDER BY period_start DESC, cost DESC
	`, integrationID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ServiceUsage
	for rows.Next() {
		var u model.ServiceUsage
		if err := rows.Scan(&u.ID, &u.IntegrationID, &u.UserID, &u.ServiceName, &u.PeriodStart, &u.PeriodEnd,
			&u.Cost, &u.UsageQuantity, &u.Currency); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
