package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/marketplaceagreement"
	agtypes "github.com/aws/aws-sdk-go-v2/service/marketplaceagreement/types"
	"github.com/aws/aws-sdk-go-v2/service/marketplacecatalog"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"

	"github.com/contractlens/backend/internal/marketplace"
	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/provider"
)

const (
	catalogPageSize   = 50
	agreementPageSize = 50
	maxAgreements     = 500
)

var entityTypes = map[string][]string{
	"saas":      {"SaaSProduct"},
	"ami":       {"AmiProduct"},
	"container": {"ContainerProduct"},
}

var allEntityTypes = []string{"SaaSProduct", "AmiProduct", "ContainerProduct"}

// Agreement statuses visible to a buyer. Sync reads all of them, search only
// ACTIVE ones.
var (
	activeStatuses = []string{"ACTIVE"}
	allStatuses    = []string{"ACTIVE", "ARCHIVED", "CANCELLED", "EXPIRED", "RENEWED", "REPLACED", "ROLLED_BACK", "SUPERSEDED", "TERMINATED"}
)

func entityTypesFor(productType string) []string {
	if types, ok := entityTypes[strings.ToLower(strings.TrimSpace(productType))]; ok {
		return types
	}
	return allEntityTypes
}

type scored struct {
	raw     marketplace.SearchResult
	product model.ExternalProduct
	score   float64
}

// Search queries the catalog and the account's active agreements, keeps
// results scoring above marketplace.SearchScoreThreshold, and prices the top
// results. It fails only when both sources fail.
func (p *Provider) Search(ctx context.Context, req provider.SearchRequest) ([]model.ExternalProduct, error) {
	req = req.Normalized(p.maxResults)
	if strings.TrimSpace(req.Query.String()) == "" {
		return nil, nil
	}
	fetchedAt := p.now().UTC()

	entities, catErr := p.searchCatalog(ctx, req)
	if catErr != nil {
		p.logger.Warn("catalog search failed", "query", req.Query.String(), "error", catErr)
	}
	agreements, agErr := p.listAgreements(ctx, activeStatuses)
	if agErr != nil {
		p.logger.Warn("agreement search failed", "query", req.Query.String(), "error", agErr)
	}
	if catErr != nil && agErr != nil {
		return nil, fmt.Errorf("marketplace search: %w", errors.Join(catErr, agErr))
	}

	raws := make([]marketplace.SearchResult, 0, len(entities)+len(agreements))
	for i := range entities {
		raws = append(raws, marketplace.SearchResult{IntegrationID: p.integrationID, Catalog: &entities[i], FetchedAt: fetchedAt})
	}
	for i := range agreements {
		raws = append(raws, marketplace.SearchResult{IntegrationID: p.integrationID, Agreement: &agreements[i], FetchedAt: fetchedAt})
	}

	var hits []scored
	for _, raw := range raws {
		product, err := marketplace.Normalize(raw)
		if err != nil {
			p.logger.Debug("skipping search result", "error", err)
			continue
		}
		s := marketplace.ScoreQuery(req.Query, product)
		if s <= marketplace.SearchScoreThreshold {
			continue
		}
		hits = append(hits, scored{raw: raw, product: product, score: s})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > req.MaxResults {
		hits = hits[:req.MaxResults]
	}

	out := make([]model.ExternalProduct, 0, len(hits))
	for _, h := range hits {
		raw := h.raw
		s := h.score
		raw.ScoreHint = &s
		raw.Pricing = p.priceFor(ctx, pricingCode(raw))
		product, err := marketplace.Normalize(raw)
		if err != nil {
			continue
		}
		out = append(out, product)
	}
	return out, nil
}

// searchCatalog lists catalog entities of the requested types and describes
// the ones whose name can still clear the score threshold.
func (p *Provider) searchCatalog(ctx context.Context, req provider.SearchRequest) ([]marketplace.CatalogEntity, error) {
	var entities []marketplace.CatalogEntity
	for _, entityType := range entityTypesFor(req.ProductType) {
		if err := p.wait(ctx); err != nil {
			return entities, err
		}
		out, err := p.clients.Catalog.ListEntities(ctx, &marketplacecatalog.ListEntitiesInput{
			Catalog:    aws.String(catalogName),
			EntityType: aws.String(entityType),
			MaxResults: aws.Int32(catalogPageSize),
		})
		if err != nil {
			return entities, fmt.Errorf("list %s entities: %w", entityType, err)
		}

		for _, summary := range out.EntitySummaryList {
			e := marketplace.CatalogEntity{
				EntityID:         aws.ToString(summary.EntityId),
				EntityARN:        aws.ToString(summary.EntityArn),
				EntityType:       aws.ToString(summary.EntityType),
				Name:             aws.ToString(summary.Name),
				Visibility:       aws.ToString(summary.Visibility),
				LastModifiedDate: aws.ToString(summary.LastModifiedDate),
			}
			partial := marketplace.ScoreQuery(req.Query, model.ExternalProduct{ProductName: e.Name})
			if !marketplace.MayPass(partial) {
				continue
			}
			if details, err := p.describe(ctx, e.EntityID); err != nil {
				p.logger.Warn("describe entity failed", "entity_id", e.EntityID, "error", err)
			} else {
				e.Details = details
				e.Vendor = vendorName(details)
				e.Description = description(details)
			}
			entities = append(entities, e)
		}
	}
	return entities, nil
}

// listAgreements pages through the account's purchase agreements with the
// given statuses. A validation error, returned for accounts that never bought
// anything, is treated as no agreements.
func (p *Provider) listAgreements(ctx context.Context, statuses []string) ([]marketplace.Agreement, error) {
	in := &marketplaceagreement.SearchAgreementsInput{
		Catalog: aws.String(catalogName),
		Filters: []agtypes.Filter{
			{Name: aws.String("PartyType"), Values: []string{"Acceptor"}},
			{Name: aws.String("AgreementType"), Values: []string{"PurchaseAgreement"}},
			{Name: aws.String("Status"), Values: statuses},
		},
		MaxResults: aws.Int32(agreementPageSize),
	}

	var agreements []marketplace.Agreement
	names := map[string]string{}
	for len(agreements) < maxAgreements {
		if err := p.wait(ctx); err != nil {
			return agreements, err
		}
		out, err := p.clients.Agreements.SearchAgreements(ctx, in)
		if err != nil {
			var ve *agtypes.ValidationException
			if errors.As(err, &ve) {
				p.logger.Info("agreement search rejected, treating as empty", "error", err)
				return agreements, nil
			}
			return agreements, fmt.Errorf("search agreements: %w", err)
		}

		for _, s := range out.AgreementViewSummaries {
			a := marketplace.Agreement{
				AgreementID:    aws.ToString(s.AgreementId),
				AgreementType:  aws.ToString(s.AgreementType),
				Status:         string(s.Status),
				AcceptanceTime: s.AcceptanceTime,
				EndTime:        s.EndTime,
			}
			if s.Proposer != nil {
				a.ProposerAccountID = aws.ToString(s.Proposer.AccountId)
			}
			if s.ProposalSummary != nil {
				a.OfferID = aws.ToString(s.ProposalSummary.OfferId)
				if len(s.ProposalSummary.Resources) > 0 {
					a.ResourceID = aws.ToString(s.ProposalSummary.Resources[0].Id)
				}
			}
			a.OfferName = p.offerName(ctx, names, a)
			agreements = append(agreements, a)
		}

		if out.NextToken == nil || aws.ToString(out.NextToken) == "" {
			break
		}
		in.NextToken = out.NextToken
	}
	return agreements, nil
}

// offerName resolves a display name for an agreement from its offer entity,
// falling back to the product entity. Results are memoized per call.
func (p *Provider) offerName(ctx context.Context, names map[string]string, a marketplace.Agreement) string {
	for _, id := range []string{a.OfferID, a.ResourceID} {
		if id == "" {
			continue
		}
		if name, ok := names[id]; ok {
			if name != "" {
				return name
			}
			continue
		}
		details, err := p.describe(ctx, id)
		if err != nil {
			p.logger.Debug("describe agreement entity failed", "entity_id", id, "error", err)
			names[id] = ""
			continue
		}
		name := entityName(details)
		names[id] = name
		if name != "" {
			return name
		}
	}
	return ""
}

func (p *Provider) describe(ctx context.Context, entityID string) (map[string]any, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	out, err := p.clients.Catalog.DescribeEntity(ctx, &marketplacecatalog.DescribeEntityInput{
		Catalog:  aws.String(catalogName),
		EntityId: aws.String(entityID),
	})
	if err != nil {
		return nil, err
	}
	details := map[string]any{}
	if raw := aws.ToString(out.Details); raw != "" {
		if err := json.Unmarshal([]byte(raw), &details); err != nil {
			return nil, fmt.Errorf("decode entity details: %w", err)
		}
	}
	return details, nil
}

// priceFor looks up the first price-list document for a product code. Any
// failure leaves the product unpriced.
func (p *Provider) priceFor(ctx context.Context, productCode string) *marketplace.PriceListing {
	if productCode == "" {
		return nil
	}
	if err := p.wait(ctx); err != nil {
		return nil
	}
	out, err := p.clients.Pricing.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode: aws.String("AWSMarketplace"),
		Filters: []pricingtypes.Filter{
			{Type: pricingtypes.FilterTypeTermMatch, Field: aws.String("productCode"), Value: aws.String(productCode)},
		},
		MaxResults: aws.Int32(1),
	})
	if err != nil {
		p.logger.Debug("pricing lookup failed", "product_code", productCode, "error", err)
		return nil
	}
	if len(out.PriceList) == 0 {
		return nil
	}
	listing, err := marketplace.ParsePriceList(out.PriceList[0])
	if err != nil {
		p.logger.Debug("unreadable price list", "product_code", productCode, "error", err)
		return nil
	}
	return listing
}

func pricingCode(raw marketplace.SearchResult) string {
	switch {
	case raw.Catalog != nil:
		return raw.Catalog.EntityID
	case raw.Agreement != nil:
		return raw.Agreement.ResourceID
	}
	return ""
}

func vendorName(details map[string]any) string {
	if v, ok := details["Vendor"].(map[string]any); ok {
		if name, ok := v["Name"].(string); ok {
			return name
		}
	}
	return ""
}

func description(details map[string]any) string {
	switch d := details["Description"].(type) {
	case string:
		return d
	case map[string]any:
		if s, ok := d["ShortDescription"].(string); ok {
			return s
		}
	}
	return ""
}

func entityName(details map[string]any) string {
	if name, ok := details["Name"].(string); ok && name != "" {
		return name
	}
	if d, ok := details["Description"].(map[string]any); ok {
		if title, ok := d["ProductTitle"].(string); ok {
			return title
		}
	}
	return ""
}
