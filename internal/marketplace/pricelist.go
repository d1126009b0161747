package marketplace

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/contractlens/backend/internal/model"
)

// hoursPerMonth converts hourly rates to monthly estimates.
const hoursPerMonth = 730

// PriceListing is the first on-demand price dimension of a pricing API
// price-list document. Amount is nil when the document carries no price.
type PriceListing struct {
	SKU         string
	Amount      *decimal.Decimal
	Unit        string
	Currency    model.Currency
	Description string
}

type priceListDoc struct {
	Product struct {
		SKU string `json:"sku"`
	} `json:"product"`
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				Unit         string            `json:"unit"`
				Description  string            `json:"description"`
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

// ParsePriceList reads one price-list JSON document. Terms and dimensions are
// taken in key order so the choice of "first" is stable. A document without
// on-demand terms returns a listing with a nil Amount.
func ParsePriceList(doc string) (*PriceListing, error) {
	var d priceListDoc
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return nil, fmt.Errorf("parse price list: %w", err)
	}

	listing := &PriceListing{SKU: d.Product.SKU, Currency: model.CurrencyUSD}

	termKeys := sortedKeys(d.Terms.OnDemand)
	if len(termKeys) == 0 {
		return listing, nil
	}
	dims := d.Terms.OnDemand[termKeys[0]].PriceDimensions
	dimKeys := sortedKeys(dims)
	if len(dimKeys) == 0 {
		return listing, nil
	}

	dim := dims[dimKeys[0]]
	listing.Unit = dim.Unit
	listing.Description = dim.Description

	raw, ok := dim.PricePerUnit["USD"]
	if !ok {
		return listing, nil
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return listing, nil
	}
	listing.Amount = &amount
	return listing, nil
}

// MonthlyCost converts the listing to a monthly price. Missing, zero or
// negative amounts and units that cannot be expressed per month are treated
// as unknown and yield nil.
func (l *PriceListing) MonthlyCost() *decimal.Decimal {
	if l == nil || l.Amount == nil || !l.Amount.IsPositive() {
		return nil
	}

	var monthly decimal.Decimal
	switch strings.ToLower(strings.TrimSpace(l.Unit)) {
	case "hrs", "hr", "hour", "hours", "hourly":
		monthly = l.Amount.Mul(decimal.NewFromInt(hoursPerMonth))
	case "month", "months", "mo", "mos", "monthly":
		monthly = *l.Amount
	case "year", "years", "yr", "yrs", "annual", "yearly":
		monthly = l.Amount.Div(decimal.NewFromInt(12))
	default:
		return nil
	}
	return &monthly
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
