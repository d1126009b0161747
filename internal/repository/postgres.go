// Package repository provides PostgreSQL repository implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/model"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PostgresContractRepository implements ContractRepository for PostgreSQL.
type PostgresContractRepository struct {
	db *sql.DB
}

// NewPostgresContractRepository creates a new PostgresContractRepository.
func NewPostgresContractRepository(db *sql.DB) *PostgresContractRepository {
	return &PostgresContractRepository{db: db}
}

const contractColumns = `id, user_id, name, client, value, remaining_amount, start_date, end_date, length, status, provider_type, created_at, updated_at`

func scanContract(s rowScanner) (*model.Contract, error) {
	var c model.Contract
	err := s.Scan(&c.ID, &c.UserID, &c.Name, &c.Client, &c.Value, &c.RemainingAmount, &c.StartDate, &c.EndDate,
		&c.Length, &c.Status, &c.ProviderType, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.StartDate = model.DateOnly(c.StartDate)
	c.EndDate = model.DateOnly(c.EndDate)
	return &c, nil
}

func (r *PostgresContractRepository) Create(ctx context.Context, c *model.Contract) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contracts (`+contractColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, c.ID, c.UserID, c.Name, c.Client, c.Value, c.RemainingAmount, c.StartDate, c.EndDate,
		c.Length, c.Status, c.ProviderType, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *PostgresContractRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*model.Contract, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1 AND user_id = $2`, id, userID)
	c, err := scanContract(row)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (r *PostgresContractRepository) List(ctx context.Context, filter model.ContractFilter) ([]*model.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE user_id = $1`
	args := []any{filter.UserID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.ProviderType != "" {
		args = append(args, filter.ProviderType)
		query += fmt.Sprintf(" AND provider_type = $%d", len(args))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		query += fmt.Sprintf(" AND (name ILIKE $%d OR client ILIKE $%d)", len(args), len(args))
	}
	query += " ORDER BY end_date ASC, created_at ASC"

	return r.query(ctx, query, args...)
}

// ListActiveEndingBy returns every user's active contracts ending on or before by.
func (r *PostgresContractRepository) ListActiveEndingBy(ctx context.Context, by time.Time) ([]*model.Contract, error) {
	return r.query(ctx, `SELECT `+contractColumns+` FROM contracts
		WHERE status = 'Active' AND end_date <= $1 ORDER BY user_id, end_date`, model.DateOnly(by))
}

func (r *PostgresContractRepository) query(ctx context.Context, query string, args ...any) ([]*model.Contract, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []*model.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func (r *PostgresContractRepository) Update(ctx context.Context, c *model.Contract) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE contracts SET name = $3, client = $4, value = $5, remaining_amount = $6, start_date = $7,
			end_date = $8, length = $9, status = $10, provider_type = $11, updated_at = $12
		WHERE id = $1 AND user_id = $2
	`, c.ID, c.UserID, c.Name, c.Client, c.Value, c.RemainingAmount, c.StartDate, c.EndDate,
		c.Length, c.Status, c.ProviderType, c.UpdatedAt)
	return affectedOne(res, err)
}

func (r *PostgresContractRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contracts WHERE id = $1 AND user_id = $2`, id, userID)
	return affectedOne(res, err)
}
