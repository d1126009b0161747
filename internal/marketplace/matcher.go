package marketplace

import (
	"sort"
	"strings"

	"github.com/contractlens/backend/internal/model"
)

// Candidate is a product that passed the match gate, with its rank score.
type Candidate struct {
	Product model.ExternalProduct `json:"product"`
	Score   float64               `json:"score"`
}

// IsMarketplaceEligible reports whether a contract is classified as bought
// through a marketplace.
func IsMarketplaceEligible(c model.Contract) bool {
	return c.ProviderType == model.ProviderTypeMarketplace
}

// PassesGate reports whether a significant contract-name token appears in
// the product name, or a significant client token appears in the vendor.
func PassesGate(c model.Contract, p model.ExternalProduct) bool {
	productName := strings.ToLower(p.ProductName)
	for _, t := range significantTokens(c.Name) {
		if strings.Contains(productName, t) {
			return true
		}
	}
	vendor := strings.ToLower(p.Vendor)
	for _, t := range significantTokens(c.Client) {
		if strings.Contains(vendor, t) {
			return true
		}
	}
	return false
}

// rankScore prefers the upstream hint and falls back to the computed score.
func rankScore(c model.Contract, p model.ExternalProduct) float64 {
	if p.MatchScoreHint != nil {
		return clamp(*p.MatchScoreHint)
	}
	return Score(c, p)
}

// RankCandidates returns the products passing the gate, best first. Equal
// scores keep input order.
func RankCandidates(c model.Contract, products []model.ExternalProduct) []Candidate {
	out := make([]Candidate, 0)
	for _, p := range products {
		if !PassesGate(c, p) {
			continue
		}
		out = append(out, Candidate{Product: p, Score: rankScore(c, p)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// FindBestMatch picks the highest ranked product passing the gate; the first
// one wins ties. It returns nil when nothing qualifies or when the winner has
// no real pricing.
func FindBestMatch(c model.Contract, products []model.ExternalProduct) *model.ExternalProduct {
	var (
		best      *model.ExternalProduct
		bestScore float64
	)
	for i := range products {
		p := products[i]
		if !PassesGate(c, p) {
			continue
		}
		s := rankScore(c, p)
		if best == nil || s > bestScore {
			best, bestScore = &p, s
		}
	}
	if best == nil || !best.HasPricing() {
		return nil
	}
	return best
}

// HasPricedMatch reports whether any product passes the gate and carries a
// monthly price.
func HasPricedMatch(c model.Contract, products []model.ExternalProduct) bool {
	for _, p := range products {
		if p.HasPricing() && PassesGate(c, p) {
			return true
		}
	}
	return false
}
