package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Availability describes whether a marketplace product can currently be bought.
type Availability string

const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
	AvailabilityUnknown     Availability = "unknown"
)

// ProductSource identifies the upstream listing a product was normalized from.
type ProductSource string

const (
	SourceCatalog   ProductSource = "catalog"
	SourceAgreement ProductSource = "agreement"
	SourceInstance  ProductSource = "ec2_instance"
)

// ExternalProduct is a marketplace offering normalized from any upstream shape.
// Identity is (IntegrationID, ProductID).
type ExternalProduct struct {
	ID             uuid.UUID        `json:"id,omitempty" db:"id"`
	IntegrationID  uuid.UUID        `json:"integration_id" db:"integration_id"`
	ProductID      string           `json:"product_id" db:"product_id"`
	ProductName    string           `json:"product_name" db:"product_name"`
	Vendor         string           `json:"vendor_name" db:"vendor_name"`
	ProductType    string           `json:"product_type" db:"product_type"`
	MonthlyCost    *decimal.Decimal `json:"monthly_cost" db:"monthly_cost"`
	Currency       Currency         `json:"currency" db:"currency"`
	PricingUnit    string           `json:"pricing_unit,omitempty" db:"pricing_unit"`
	Availability   Availability     `json:"availability_status" db:"availability_status"`
	MatchScoreHint *float64         `json:"match_score,omitempty" db:"match_score"`
	MarketplaceURL string           `json:"marketplace_url,omitempty" db:"marketplace_url"`
	Metadata       map[string]any   `json:"metadata,omitempty" db:"metadata"`
	Source         ProductSource    `json:"source" db:"source"`
	SyncedAt       time.Time        `json:"last_synced_at" db:"last_synced_at"`
}

// HasPricing reports whether real pricing was discovered for the product.
func (p *ExternalProduct) HasPricing() bool {
	return p.MonthlyCost != nil
}

// Key returns the identity of the product within its integration.
func (p *ExternalProduct) Key() ProductKey {
	return ProductKey{IntegrationID: p.IntegrationID, ProductID: p.ProductID}
}

// ProductKey identifies a product record.
type ProductKey struct {
	IntegrationID uuid.UUID
	ProductID     string
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	UserID        uuid.UUID
	IntegrationID uuid.UUID
	ProductType   string
}
