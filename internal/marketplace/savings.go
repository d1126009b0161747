package marketplace

import (
	"github.com/shopspring/decimal"

	"github.com/contractlens/backend/internal/model"
)

// baselineMonths amortizes the whole contract value over a year regardless
// of the contract's actual length.
const baselineMonths = 12

var (
	months  = decimal.NewFromInt(baselineMonths)
	hundred = decimal.NewFromInt(100)
)

// ComputeSavings compares a contract's monthly cost with a matched product's
// price. It returns nil when the product has no pricing, when the contract
// value is not positive, or when the product would not save money. Savings are
// judged before rounding; reported amounts are rounded to cents.
func ComputeSavings(c model.Contract, matched model.ExternalProduct) *model.OptimizationOpportunity {
	if matched.MonthlyCost == nil || matched.MonthlyCost.IsNegative() {
		return nil
	}
	if !c.Value.IsPositive() {
		return nil
	}

	current := c.Value.Div(months)
	awsCost := *matched.MonthlyCost
	monthly := current.Sub(awsCost)
	if !monthly.IsPositive() {
		return nil
	}

	return &model.OptimizationOpportunity{
		Contract:           c,
		MatchedProduct:     matched,
		CurrentMonthlyCost: current.Round(2),
		AWSMonthlyCost:     awsCost.Round(2),
		MonthlySavings:     roundCents(monthly),
		AnnualSavings:      roundCents(monthly.Mul(months)),
		SavingsPercentage:  monthly.Div(current).Mul(hundred).Round(2),
		HasDirectMatch:     true,
	}
}

func roundCents(d decimal.Decimal) decimal.Decimal {
	r := d.Round(2)
	if d.IsPositive() && !r.IsPositive() {
		return d
	}
	return r
}

// TotalAnnualSavings sums the annual savings of a set of opportunities.
func TotalAnnualSavings(opps []model.OptimizationOpportunity) decimal.Decimal {
	total := decimal.Zero
	for _, o := range opps {
		total = total.Add(o.AnnualSavings)
	}
	return total
}
