package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/model"
)

// PostgresAlertRepository implements AlertRepository for PostgreSQL.
type PostgresAlertRepository struct {
	db *sql.DB
}

// NewPostgresAlertRepository creates a new PostgresAlertRepository.
func NewPostgresAlertRepository(db *sql.DB) *PostgresAlertRepository {
	return &PostgresAlertRepository{db: db}
}

const alertConfigColumns = `id, user_id, contract_id, email, days_before, created_at, updated_at`

// ReplaceConfigurations swaps the contract's alert days for the given set in
// one transaction.
func (r *PostgresAlertRepository) ReplaceConfigurations(ctx context.Context, userID, contractID uuid.UUID, email string, days []int) ([]*model.AlertConfiguration, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM alert_configurations WHERE contract_id = $1 AND user_id = $2`, contractID, userID); err != nil {
		return nil, fmt.Errorf("clear alert configurations: %w", err)
	}

	configs := make([]*model.AlertConfiguration, 0, len(days))
	seen := make(map[int]bool, len(days))
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		c := &model.AlertConfiguration{
			BaseEntity: model.NewBaseEntity(),
			UserID:     userID,
			ContractID: contractID,
			Email:      email,
			DaysBefore: d,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO alert_configurations (`+alertConfigColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, c.ID, c.UserID, c.ContractID, c.Email, c.DaysBefore, c.CreatedAt, c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("insert alert configuration: %w", err)
		}
		configs = append(configs, c)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *PostgresAlertRepository) ListConfigurations(ctx context.Context, userID, contractID uuid.UUID) ([]*model.AlertConfiguration, error) {
	return r.queryConfigs(ctx, `SELECT `+alertConfigColumns+` FROM alert_configurations
		WHERE contract_id = $1 AND user_id = $2 ORDER BY days_before DESC`, contractID, userID)
}

func (r *PostgresAlertRepository) ListAllConfigurations(ctx context.Context) ([]*model.AlertConfiguration, error) {
	return r.queryConfigs(ctx, `SELECT `+alertConfigColumns+` FROM alert_configurations ORDER BY contract_id, days_before DESC`)
}

func (r *PostgresAlertRepository) queryConfigs(ctx context.Context, query string, args ...any) ([]*model.AlertConfiguration, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*model.AlertConfiguration
	for rows.Next() {
		var c model.AlertConfiguration
		if err := rows.Scan(&c.ID, &c.UserID, &c.ContractID, &c.Email, &c.DaysBefore, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, &c)
	}
	return configs, rows.Err()
}

func (r *PostgresAlertRepository) AddHistory(ctx context.Context, h *model.AlertHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	if h.SentAt.IsZero() {
		h.SentAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_history (id, user_id, contract_id, email, alert_type, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, h.ID, h.UserID, h.ContractID, h.Email, h.AlertType, h.SentAt)
	return err
}

func (r *PostgresAlertRepository) ListHistory(ctx context.Context, userID, contractID uuid.UUID) ([]*model.AlertHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, contract_id, email, alert_type, sent_at FROM alert_history
		WHERE contract_id = $1 AND user_id = $2 ORDER BY sent_at DESC
	`, contractID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*model.AlertHistory
	for rows.Next() {
		var h model.AlertHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.ContractID, &h.Email, &h.AlertType, &h.SentAt); err != nil {
			return nil, err
		}
		history = append(history, &h)
	}
	return history, rows.Err()
}

func (r *PostgresAlertRepository) HistoryExistsSince(ctx context.Context, contractID uuid.UUID, email, alertType string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM alert_history
			WHERE contract_id = $1 AND email = $2 AND alert_type = $3 AND sent_at >= $4)
	`, contractID, email, alertType, since).Scan(&exists)
	return exists, err
}

// PostgresDocumentRepository implements DocumentRepository for PostgreSQL.
type PostgresDocumentRepository struct {
	db *sql.DB
}

// NewPostgresDocumentRepository creates a new PostgresDocumentRepository.
func NewPostgresDocumentRepository(db *sql.DB) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{db: db}
}

const documentColumns = `id, user_id, contract_id, name, storage_key, size, content_type, uploaded_at`

func scanDocument(s rowScanner) (*model.ContractDocument, error) {
	var d model.ContractDocument
	if err := s.Scan(&d.ID, &d.UserID, &d.ContractID, &d.Name, &d.Key, &d.Size, &d.Type, &d.UploadedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PostgresDocumentRepository) Create(ctx context.Context, d *model.ContractDocument) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contract_documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.ID, d.UserID, d.ContractID, d.Name, d.Key, d.Size, d.Type, d.UploadedAt)
	return err
}

func (r *PostgresDocumentRepository) ListByContract(ctx context.Context, userID, contractID uuid.UUID) ([]*model.ContractDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM contract_documents
		WHERE contract_id = $1 AND user_id = $2 ORDER BY uploaded_at DESC
	`, contractID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*model.ContractDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresDocumentRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*model.ContractDocument, error) {
	d, err := scanDocument(r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM contract_documents WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

func (r *PostgresDocumentRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contract_documents WHERE id = $1 AND user_id = $2`, id, userID)
	return affectedOne(res, err)
}
