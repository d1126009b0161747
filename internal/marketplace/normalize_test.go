package marketplace

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractlens/backend/internal/model"
)

const samplePriceList = `{
  "product": {"sku": "ABC123", "productFamily": "Software"},
  "terms": {
    "OnDemand": {
      "ABC123.JRTCKXETXF": {
        "priceDimensions": {
          "ABC123.JRTCKXETXF.6YS6EN2CT7": {
            "unit": "Hrs",
            "description": "$0.10 per hour for software",
            "pricePerUnit": {"USD": "0.1000000000"}
          }
        }
      }
    }
  }
}`

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestNormalize_CatalogWithoutPricing(t *testing.T) {
	integrationID := uuid.New()
	p, err := Normalize(SearchResult{
		IntegrationID: integrationID,
		Catalog: &CatalogEntity{
			EntityID:   "prod-abc",
			EntityType: "SaaSProduct",
			Name:       "Acme Cloud Storage",
			Vendor:     "Acme Inc",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, integrationID, p.IntegrationID)
	assert.Equal(t, "prod-abc", p.ProductID)
	assert.Equal(t, "Acme Inc", p.Vendor)
	assert.Equal(t, "SaaSProduct", p.ProductType)
	assert.Equal(t, "https://aws.amazon.com/marketplace/pp/prod-abc", p.MarketplaceURL)
	assert.Equal(t, model.AvailabilityAvailable, p.Availability)
	assert.Nil(t, p.MonthlyCost, "absent pricing must stay absent")
}

func TestNormalize_AgreementAvailability(t *testing.T) {
	tests := []struct {
		status string
		want   model.Availability
	}{
		{"ACTIVE", model.AvailabilityAvailable},
		{"EXPIRED", model.AvailabilityUnavailable},
		{"", model.AvailabilityUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			p, err := Normalize(SearchResult{Agreement: &Agreement{AgreementID: "agmt-1", Status: tt.status}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Availability)
			assert.Equal(t, "Unknown Product", p.ProductName)
			assert.Equal(t, "Subscription", p.ProductType)
			assert.Contains(t, p.MarketplaceURL, "/agreements/agmt-1")
		})
	}
}

func TestNormalize_Instance(t *testing.T) {
	p, err := Normalize(SearchResult{Instance: &MarketplaceInstance{
		InstanceID:   "i-0abc",
		InstanceType: "m5.large",
		State:        "running",
		ImageName:    "Fortinet FortiGate",
		OwnerID:      "679593333241",
		ProductCodes: []string{"code1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "ec2-i-0abc", p.ProductID)
	assert.Equal(t, ProductTypeEC2Instance, p.ProductType)
	assert.Equal(t, "679593333241", p.Vendor)
	assert.Equal(t, model.SourceInstance, p.Source)
	assert.Nil(t, p.MonthlyCost)
}

func TestNormalize_ShapeErrors(t *testing.T) {
	_, err := Normalize(SearchResult{})
	assert.ErrorIs(t, err, ErrUnknownShape)

	_, err = Normalize(SearchResult{Catalog: &CatalogEntity{EntityID: "a"}, Agreement: &Agreement{AgreementID: "b"}})
	assert.ErrorIs(t, err, ErrUnknownShape)

	_, err = Normalize(SearchResult{Catalog: &CatalogEntity{Name: "no id"}})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestNormalize_Pricing(t *testing.T) {
	listing, err := ParsePriceList(samplePriceList)
	require.NoError(t, err)

	p, err := Normalize(SearchResult{
		Catalog: &CatalogEntity{EntityID: "prod-1", Name: "Tool"},
		Pricing: listing,
	})
	require.NoError(t, err)
	require.NotNil(t, p.MonthlyCost)
	assert.True(t, decimal.NewFromInt(73).Equal(*p.MonthlyCost), "got %s", p.MonthlyCost)
	assert.Equal(t, "Hrs", p.PricingUnit)
}

func TestPriceListing_MonthlyCost(t *testing.T) {
	tests := []struct {
		name    string
		listing *PriceListing
		want    *decimal.Decimal
	}{
		{"nil listing", nil, nil},
		{"no amount", &PriceListing{Unit: "Hrs"}, nil},
		{"zero is unknown", &PriceListing{Amount: dec("0"), Unit: "Hrs"}, nil},
		{"negative", &PriceListing{Amount: dec("-1"), Unit: "Month"}, nil},
		{"unknown unit", &PriceListing{Amount: dec("5"), Unit: "Requests"}, nil},
		{"missing unit", &PriceListing{Amount: dec("5")}, nil},
		{"hourly", &PriceListing{Amount: dec("2"), Unit: "Hrs"}, dec("1460")},
		{"monthly", &PriceListing{Amount: dec("99.5"), Unit: "Monthly"}, dec("99.5")},
		{"yearly", &PriceListing{Amount: dec("1200"), Unit: "Year"}, dec("100")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.listing.MonthlyCost()
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "want %s got %s", tt.want, got)
		})
	}
}

func TestParsePriceList_Edges(t *testing.T) {
	_, err := ParsePriceList("{not json")
	assert.Error(t, err)

	l, err := ParsePriceList(`{"product":{"sku":"X"},"terms":{}}`)
	require.NoError(t, err)
	assert.Equal(t, "X", l.SKU)
	assert.Nil(t, l.Amount)

	l, err = ParsePriceList(`{"terms":{"OnDemand":{"t":{"priceDimensions":{"d":{"unit":"Hrs","pricePerUnit":{"EUR":"1"}}}}}}}`)
	require.NoError(t, err)
	assert.Nil(t, l.Amount)
	assert.Nil(t, l.MonthlyCost())
}

func TestDedupe_LatestWins(t *testing.T) {
	integrationID := uuid.New()
	older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	products := []model.ExternalProduct{
		{IntegrationID: integrationID, ProductID: "a", ProductName: "new", SyncedAt: newer},
		{IntegrationID: integrationID, ProductID: "b", ProductName: "b"},
		{IntegrationID: integrationID, ProductID: "a", ProductName: "stale", SyncedAt: older},
		{IntegrationID: uuid.New(), ProductID: "a", ProductName: "other integration"},
		{IntegrationID: integrationID, ProductID: "b", ProductName: "b2"},
	}

	got := Dedupe(products)
	require.Len(t, got, 3)
	assert.Equal(t, "new", got[0].ProductName)
	assert.Equal(t, "b2", got[1].ProductName)
	assert.Equal(t, "other integration", got[2].ProductName)
}
