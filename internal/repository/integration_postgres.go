package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/model"
)

// PostgresIntegrationRepository implements IntegrationRepository for PostgreSQL.
type PostgresIntegrationRepository struct {
	db *sql.DB
}

// NewPostgresIntegrationRepository creates a new PostgresIntegrationRepository.
func NewPostgresIntegrationRepository(db *sql.DB) *PostgresIntegrationRepository {
	return &PostgresIntegrationRepository{db: db}
}

const integrationColumns = `id, user_id, account_name, aws_account_id, aws_region, connection_type, role_arn, external_id,
	access_key_id, secret_access_key_encrypted, connection_status, status_message, permissions_marketplace,
	permissions_usage, last_connection_test, last_sync_at, created_at, updated_at`

func scanIntegration(s rowScanner) (*model.AWSIntegration, error) {
	var i model.AWSIntegration
	err := s.Scan(&i.ID, &i.UserID, &i.AccountName, &i.AccountID, &i.Region, &i.ConnectionType, &i.RoleARN, &i.ExternalID,
		&i.AccessKeyID, &i.SecretEncrypted, &i.ConnectionStatus, &i.StatusMessage, &i.PermissionsMarketplace,
		&i.PermissionsUsage, &i.LastConnectionTest, &i.LastSyncAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *PostgresIntegrationRepository) Create(ctx context.Context, i *model.AWSIntegration) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO aws_integrations (`+integrationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, i.ID, i.UserID, i.AccountName, i.AccountID, i.Region, i.ConnectionType, i.RoleARN, i.ExternalID,
		i.AccessKeyID, i.SecretEncrypted, i.ConnectionStatus, i.StatusMessage, i.PermissionsMarketplace,
		i.PermissionsUsage, i.LastConnectionTest, i.LastSyncAt, i.CreatedAt, i.UpdatedAt)
	return err
}

func (r *PostgresIntegrationRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*model.AWSIntegration, error) {
	i, err := scanIntegration(r.db.QueryRowContext(ctx,
		`SELECT `+integrationColumns+` FROM aws_integrations WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return i, nil
}

func (r *PostgresIntegrationRepository) List(ctx context.Context, userID uuid.UUID) ([]*model.AWSIntegration, error) {
	return r.query(ctx, `SELECT `+integrationColumns+` FROM aws_integrations WHERE user_id = $1 ORDER BY created_at`, userID)
}

// ListConnected returns connected integrations of all users, for background sync.
func (r *PostgresIntegrationRepository) ListConnected(ctx context.Context) ([]*model.AWSIntegration, error) {
	return r.query(ctx, `SELECT `+integrationColumns+` FROM aws_integrations
		WHERE connection_status = 'connected' ORDER BY user_id, created_at`)
}

func (r *PostgresIntegrationRepository) query(ctx context.Context, query string, args ...any) ([]*model.AWSIntegration, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AWSIntegration
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r *PostgresIntegrationRepository) Update(ctx context.Context, i *model.AWSIntegration) error {
	i.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE aws_integrations SET account_name = $3, aws_account_id = $4, aws_region = $5, connection_type = $6,
			role_arn = $7, external_id = $8, access_key_id = $9, secret_access_key_encrypted = $10,
			connection_status = $11, status_message = $12, permissions_marketplace = $13, permissions_usage = $14,
			last_connection_test = $15, last_sync_at = $16, updated_at = $17
		WHERE id = $1 AND user_id = $2
	`, i.ID, i.UserID, i.AccountName, i.AccountID, i.Region, i.ConnectionType, i.RoleARN, i.ExternalID,
		i.AccessKeyID, i.SecretEncrypted, i.ConnectionStatus, i.StatusMessage, i.PermissionsMarketplace,
		i.PermissionsUsage, i.LastConnectionTest, i.LastSyncAt, i.UpdatedAt)
	return affectedOne(res, err)
}

func (r *PostgresIntegrationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ConnectionStatus, message string, testedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE aws_integrations SET connection_status = $2, status_message = $3, last_connection_test = $4, updated_at = NOW()
		WHERE id = $1
	`, id, status, message, testedAt)
	return err
}

func (r *PostgresIntegrationRepository) UpdateLastSync(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE aws_integrations SET last_sync_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	return err
}

func (r *PostgresIntegrationRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM aws_integrations WHERE id = $1 AND user_id = $2`, id, userID)
	return affectedOne(res, err)
}
