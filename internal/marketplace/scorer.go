package marketplace

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/contractlens/backend/internal/model"
)

const (
	exactMatchScore  = 1.0
	containmentBonus = 0.8
	tokenOverlapMax  = 0.6
	metadataBonus    = 0.2

	// minTokenLen is the shortest token that counts toward overlap.
	minTokenLen = 3

	// SearchScoreThreshold is the minimum score a live search result needs
	// to be returned.
	SearchScoreThreshold = 0.3
)

// Query is a live search built from a contract.
type Query struct {
	Name   string
	Client string
}

// QueryFor builds the live search query for a contract.
func QueryFor(c model.Contract) Query {
	return Query{Name: c.Name, Client: c.Client}
}

// String is the raw search string sent upstream.
func (q Query) String() string {
	return strings.TrimSpace(q.Name + " " + q.Client)
}

// Score rates how well a synced product matches a contract, in [0, 1].
func Score(c model.Contract, p model.ExternalProduct) float64 {
	name := normalize(c.Name)
	return score(name, name, tokens(name), p)
}

// ScoreQuery rates a product against a live search query, in [0, 1]. The
// full query string drives containment, overlap and metadata checks.
func ScoreQuery(q Query, p model.ExternalProduct) float64 {
	raw := normalize(q.String())
	return score(raw, normalize(q.Name), tokens(raw), p)
}

// MayPass reports whether a score computed before the product's metadata was
// known can still clear SearchScoreThreshold once metadata is added.
func MayPass(partial float64) bool {
	return partial+metadataBonus > SearchScoreThreshold
}

func score(query, name string, queryTokens []string, p model.ExternalProduct) float64 {
	product := normalize(p.ProductName)
	if product != "" && (product == query || product == name) {
		return exactMatchScore
	}

	var s float64
	if containsEither(query, product) || containsEither(name, product) {
		s += containmentBonus
	}
	s += overlap(queryTokens, tokens(product)) * tokenOverlapMax
	if metadataContains(p.Metadata, query) {
		s += metadataBonus
	}
	return clamp(s)
}

// overlap is the share of significant query tokens found in the product
// tokens, where a match is containment in either direction.
func overlap(query, product []string) float64 {
	total, matched := 0, 0
	for _, q := range query {
		if len(q) < minTokenLen {
			continue
		}
		total++
		for _, t := range product {
			if strings.Contains(t, q) || strings.Contains(q, t) {
				matched++
				break
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func metadataContains(metadata map[string]any, query string) bool {
	if len(metadata) == 0 || query == "" {
		return false
	}
	var blob strings.Builder
	enc := json.NewEncoder(&blob)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(metadata); err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(blob.String()), query)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func tokens(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

func significantTokens(s string) []string {
	var out []string
	for _, t := range tokens(s) {
		if len(t) >= minTokenLen {
			out = append(out, t)
		}
	}
	return out
}

func clamp(s float64) float64 {
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
