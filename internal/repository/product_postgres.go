package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contractlens/backend/internal/model"
)

// PostgresProductRepository implements ProductRepository for PostgreSQL.
type PostgresProductRepository struct {
	db *sql.DB
}

// NewPostgresProductRepository creates a new PostgresProductRepository.
func NewPostgresProductRepository(db *sql.DB) *PostgresProductRepository {
	return &PostgresProductRepository{db: db}
}

// Upsert writes products in one transaction. A second sync of the same
// (integration_id, product_id) updates the row in place.
func (r *PostgresProductRepository) Upsert(ctx context.Context, products []model.ExternalProduct) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO external_products (id, integration_id, product_id, product_name, vendor_name, product_type,
			monthly_cost, currency, pricing_unit, availability_status, match_score, marketplace_url, metadata,
			source, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (integration_id, product_id) DO UPDATE SET
			product_name = EXCLUDED.product_name,
			vendor_name = EXCLUDED.vendor_name,
			product_type = EXCLUDED.product_type,
			monthly_cost = EXCLUDED.monthly_cost,
			currency = EXCLUDED.currency,
			pricing_unit = EXCLUDED.pricing_unit,
			availability_status = EXCLUDED.availability_status,
			match_score = EXCLUDED.match_score,
			marketplace_url = EXCLUDED.marketplace_url,
			metadata = EXCLUDED.metadata,
			source = EXCLUDED.source,
			last_synced_at = EXCLUDED.last_synced_at
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i := range products {
		p := &products[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		meta, err := json.Marshal(p.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal metadata for %s: %w", p.ProductID, err)
		}
		if p.Metadata == nil {
			meta = []byte("{}")
		}

		var cost decimal.NullDecimal
		if p.MonthlyCost != nil {
			cost = decimal.NewNullDecimal(*p.MonthlyCost)
		}
		var score sql.NullFloat64
		if p.MatchScoreHint != nil {
			score = sql.NullFloat64{Float64: *p.MatchScoreHint, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx, p.ID, p.IntegrationID, p.ProductID, p.ProductName, p.Vendor, p.ProductType,
			cost, p.Currency, p.PricingUnit, p.Availability, score, p.MarketplaceURL, string(meta),
			p.Source, p.SyncedAt); err != nil {
			return 0, fmt.Errorf("upsert product %s: %w", p.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(products), nil
}

// List returns the user's synced products, optionally narrowed to one
// integration or product type.
func (r *PostgresProductRepository) List(ctx context.Context, filter model.ProductFilter) ([]model.ExternalProduct, error) {
	query := `
		SELECT p.id, p.integration_id, p.product_id, p.product_name, p.vendor_name, p.product_type, p.monthly_cost,
			p.currency, p.pricing_unit, p.availability_status, p.match_score, p.marketplace_url, p.metadata,
			p.source, p.last_synced_at
		FROM external_products p
		JOIN aws_integrations i ON i.id = p.integration_id
		WHERE i.user_id = $1`
	args := []any{filter.UserID}

	if filter.IntegrationID != uuid.Nil {
		args = append(args, filter.IntegrationID)
		query += fmt.Sprintf(" AND p.integration_id = $%d", len(args))
	}
	if filter.ProductType != "" {
		args = append(args, filter.ProductType)
		query += fmt.Sprintf(" AND p.product_type = $%d", len(args))
	}
	query += " ORDER BY p.product_name, p.product_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []model.ExternalProduct
	for rows.Next() {
		var (
			p     model.ExternalProduct
			cost  decimal.NullDecimal
			score sql.NullFloat64
			meta  []byte
		)
		if err := rows.Scan(&p.ID, &p.IntegrationID, &p.ProductID, &p.ProductName, &p.Vendor, &p.ProductType, &cost,
			&p.Currency, &p.PricingUnit, &p.Availability, &score, &p.MarketplaceURL, &meta,
			&p.Source, &p.SyncedAt); err != nil {
			return nil, err
		}
		if cost.Valid {
			c := cost.Decimal
			p.MonthlyCost = &c
		}
		if score.Valid {
			s := score.Float64
			p.MatchScoreHint = &s
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &p.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", p.ProductID, err)
			}
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
