// Package marketplace normalizes AWS Marketplace listings and matches them
// against contracts to estimate savings.
package marketplace

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/model"
)

const (
	catalogURLPrefix   = "https://aws.amazon.com/marketplace/pp/"
	agreementURLPrefix = "https://console.aws.amazon.com/marketplace/home#/agreements/"

	// ProductTypeEC2Instance marks products discovered from running marketplace AMIs.
	ProductTypeEC2Instance = "EC2_Marketplace_Instance"
)

// Normalization errors.
var (
	ErrUnknownShape = errors.New("marketplace: search result must carry exactly one upstream shape")
	ErrMissingID    = errors.New("marketplace: upstream record has no identifier")
)

// CatalogEntity is a product found through the catalog entity search, with
// the parsed DescribeEntity details document.
type CatalogEntity struct {
	EntityID         string
	EntityARN        string
	EntityType       string
	Name             string
	Visibility       string
	LastModifiedDate string
	Vendor           string
	Description      string
	Details          map[string]any
}

// Agreement is a signed marketplace agreement.
type Agreement struct {
	AgreementID       string
	AgreementType     string
	OfferID           string
	OfferName         string
	ResourceID        string
	ProposerAccountID string
	Status            string
	AcceptanceTime    *time.Time
	EndTime           *time.Time
}

// MarketplaceInstance is an EC2 instance launched from an AMI that carries
// marketplace product codes.
type MarketplaceInstance struct {
	InstanceID   string
	InstanceType string
	State        string
	ImageID      string
	ImageName    string
	OwnerID      string
	ProductCodes []string
}

// SearchResult is one raw upstream record plus optional enrichment. Exactly
// one of Catalog, Agreement or Instance must be set.
type SearchResult struct {
	IntegrationID uuid.UUID
	Catalog       *CatalogEntity
	Agreement     *Agreement
	Instance      *MarketplaceInstance
	Pricing       *PriceListing
	ScoreHint     *float64
	FetchedAt     time.Time
}

// Normalize maps a raw search result into an ExternalProduct. MonthlyCost is
// left nil unless the attached price listing yields an unambiguous price.
func Normalize(raw SearchResult) (model.ExternalProduct, error) {
	var (
		p   model.ExternalProduct
		err error
	)

	if shapeCount(raw) != 1 {
		return p, ErrUnknownShape
	}

	switch {
	case raw.Catalog != nil:
		p, err = fromCatalog(raw.Catalog)
	case raw.Agreement != nil:
		p, err = fromAgreement(raw.Agreement)
	case raw.Instance != nil:
		p, err = fromInstance(raw.Instance)
	}
	if err != nil {
		return p, err
	}

	p.IntegrationID = raw.IntegrationID
	p.SyncedAt = raw.FetchedAt
	p.Currency = model.CurrencyUSD
	if raw.ScoreHint != nil {
		hint := clamp(*raw.ScoreHint)
		p.MatchScoreHint = &hint
	}
	if raw.Pricing != nil {
		p.MonthlyCost = raw.Pricing.MonthlyCost()
		p.PricingUnit = raw.Pricing.Unit
		if raw.Pricing.Currency != "" {
			p.Currency = raw.Pricing.Currency
		}
	}
	return p, nil
}

func shapeCount(raw SearchResult) int {
	n := 0
	if raw.Catalog != nil {
		n++
	}
	if raw.Agreement != nil {
		n++
	}
	if raw.Instance != nil {
		n++
	}
	return n
}

func fromCatalog(e *CatalogEntity) (model.ExternalProduct, error) {
	if e.EntityID == "" {
		return model.ExternalProduct{}, fmt.Errorf("catalog entity: %w", ErrMissingID)
	}
	metadata := map[string]any{
		"entityArn":        e.EntityARN,
		"visibility":       e.Visibility,
		"lastModifiedDate": e.LastModifiedDate,
	}
	if e.Description != "" {
		metadata["description"] = e.Description
	}
	if len(e.Details) > 0 {
		metadata["details"] = e.Details
	}
	return model.ExternalProduct{
		ProductID:      e.EntityID,
		ProductName:    orDefault(e.Name, "Unknown Product"),
		Vendor:         orDefault(e.Vendor, "Unknown Vendor"),
		ProductType:    orDefault(e.EntityType, "SaaS"),
		Availability:   model.AvailabilityAvailable,
		MarketplaceURL: catalogURLPrefix + e.EntityID,
		Metadata:       metadata,
		Source:         model.SourceCatalog,
	}, nil
}

func fromAgreement(a *Agreement) (model.ExternalProduct, error) {
	if a.AgreementID == "" {
		return model.ExternalProduct{}, fmt.Errorf("agreement: %w", ErrMissingID)
	}
	metadata := map[string]any{
		"agreementId": a.AgreementID,
		"status":      a.Status,
	}
	if a.OfferID != "" {
		metadata["offerId"] = a.OfferID
	}
	if a.ResourceID != "" {
		metadata["productId"] = a.ResourceID
	}
	if a.AcceptanceTime != nil {
		metadata["acceptanceTime"] = a.AcceptanceTime.UTC().Format(time.RFC3339)
	}
	if a.EndTime != nil {
		metadata["endTime"] = a.EndTime.UTC().Format(time.RFC3339)
	}

	availability := model.AvailabilityUnknown
	switch strings.ToUpper(a.Status) {
	case "ACTIVE":
		availability = model.AvailabilityAvailable
	case "":
	default:
		availability = model.AvailabilityUnavailable
	}

	return model.ExternalProduct{
		ProductID:      a.AgreementID,
		ProductName:    orDefault(a.OfferName, "Unknown Product"),
		Vendor:         orDefault(a.ProposerAccountID, "Unknown"),
		ProductType:    orDefault(a.AgreementType, "Subscription"),
		Availability:   availability,
		MarketplaceURL: agreementURLPrefix + a.AgreementID,
		Metadata:       metadata,
		Source:         model.SourceAgreement,
	}, nil
}

func fromInstance(i *MarketplaceInstance) (model.ExternalProduct, error) {
	if i.InstanceID == "" {
		return model.ExternalProduct{}, fmt.Errorf("instance: %w", ErrMissingID)
	}

	availability := model.AvailabilityUnknown
	switch i.State {
	case "running", "pending":
		availability = model.AvailabilityAvailable
	case "stopped", "stopping", "terminated", "shutting-down":
		availability = model.AvailabilityUnavailable
	}

	codes := make([]any, 0, len(i.ProductCodes))
	for _, c := range i.ProductCodes {
		codes = append(codes, c)
	}

	return model.ExternalProduct{
		ProductID:    "ec2-" + i.InstanceID,
		ProductName:  orDefault(i.ImageName, "Marketplace Instance "+i.InstanceID),
		Vendor:       orDefault(i.OwnerID, "Unknown"),
		ProductType:  ProductTypeEC2Instance,
		Availability: availability,
		Metadata: map[string]any{
			"instanceId":   i.InstanceID,
			"instanceType": i.InstanceType,
			"imageId":      i.ImageID,
			"state":        i.State,
			"productCodes": codes,
		},
		Source: model.SourceInstance,
	}, nil
}

// Dedupe keeps one record per (IntegrationID, ProductID). The record with the
// latest SyncedAt wins; on equal timestamps the later one in the input wins.
// Output keeps the position of each key's first appearance.
func Dedupe(products []model.ExternalProduct) []model.ExternalProduct {
	index := make(map[model.ProductKey]int, len(products))
	out := make([]model.ExternalProduct, 0, len(products))

	for _, p := range products {
		key := p.Key()
		if i, ok := index[key]; ok {
			if !p.SyncedAt.Before(out[i].SyncedAt) {
				out[i] = p
			}
			continue
		}
		index[key] = len(out)
		out = append(out, p)
	}
	return out
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
