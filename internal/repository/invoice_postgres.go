package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/model"
)

// PostgresInvoiceRepository implements InvoiceRepository for PostgreSQL.
type PostgresInvoiceRepository struct {
	db *sql.DB
}

// NewPostgresInvoiceRepository creates a new PostgresInvoiceRepository.
func NewPostgresInvoiceRepository(db *sql.DB) *PostgresInvoiceRepository {
	return &PostgresInvoiceRepository{db: db}
}

const invoiceColumns = `id, user_id, contract_id, invoice_number, date, amount, status, document_path, created_at, updated_at`

func scanInvoice(s rowScanner) (*model.Invoice, error) {
	var inv model.Invoice
	if err := s.Scan(&inv.ID, &inv.UserID, &inv.ContractID, &inv.InvoiceNumber, &inv.Date, &inv.Amount,
		&inv.Status, &inv.DocumentPath, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	inv.Date = model.DateOnly(inv.Date)
	return &inv, nil
}

func (r *PostgresInvoiceRepository) Create(ctx context.Context, inv *model.Invoice) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, inv.ID, inv.UserID, inv.ContractID, inv.InvoiceNumber, inv.Date, inv.Amount, inv.Status,
		inv.DocumentPath, inv.CreatedAt, inv.UpdatedAt)
	return err
}

func (r *PostgresInvoiceRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*model.Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return inv, nil
}

func (r *PostgresInvoiceRepository) ListByContract(ctx context.Context, userID, contractID uuid.UUID) ([]*model.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE contract_id = $1 AND user_id = $2 ORDER BY date DESC, invoice_number
	`, contractID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// NumberExists reports whether another invoice of the contract already uses
// number. excludeID skips the invoice being updated; pass uuid.Nil on create.
func (r *PostgresInvoiceRepository) NumberExists(ctx context.Context, contractID uuid.UUID, number string, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM invoices WHERE contract_id = $1 AND invoice_number = $2 AND id <> $3)
	`, contractID, number, excludeID).Scan(&exists)
	return exists, err
}

func (r *PostgresInvoiceRepository) Update(ctx context.Context, inv *model.Invoice) error {
	inv.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE invoices SET invoice_number = $3, date = $4, amount = $5, status = $6, document_path = $7, updated_at = $8
		WHERE id = $1 AND user_id = $2
	`, inv.ID, inv.UserID, inv.InvoiceNumber, inv.Date, inv.Amount, inv.Status, inv.DocumentPath, inv.UpdatedAt)
	return affectedOne(res, err)
}

func (r *PostgresInvoiceRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1 AND user_id = $2`, id, userID)
	return affectedOne(res, err)
}
