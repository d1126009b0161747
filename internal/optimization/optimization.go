// Package optimization finds marketplace products that could replace
// contracts coming up for renewal and prices the savings.
package optimization

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/contractlens/backend/internal/cache"
	"github.com/contractlens/backend/internal/config"
	"github.com/contractlens/backend/internal/logging"
	"github.com/contractlens/backend/internal/marketplace"
	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/provider"
	"github.com/contractlens/backend/internal/renewal"
)

// Skip reasons reported while evaluating contracts.
const (
	ReasonSearchFailed = "search_failed"
	ReasonNoPricing    = "no_pricing"
	ReasonNoSavings    = "no_savings"
)

// Evaluate runs the renewal pipeline over contracts: classify by horizon,
// keep marketplace eligible contracts, select the best priced match and
// compute savings. It has no side effects.
func Evaluate(contracts []model.Contract, products []model.ExternalProduct, ref time.Time, horizonDays int) model.OptimizationReport {
	return evaluate(contracts, products, ref, horizonDays, nil)
}

func evaluate(contracts []model.Contract, products []model.ExternalProduct, ref time.Time, horizonDays int, skip func(model.Contract, string)) model.OptimizationReport {
	candidates := renewal.Classify(contracts, ref, horizonDays)
	report := model.OptimizationReport{
		Opportunities:      make([]model.OptimizationOpportunity, 0),
		TotalAnnualSavings: decimal.Zero,
		ExpiringContracts:  len(candidates),
	}

	for _, rc := range candidates {
		c := rc.Contract
		if !marketplace.IsMarketplaceEligible(c) {
			continue
		}
		best := marketplace.FindBestMatch(c, products)
		if best == nil {
			if skip != nil && len(marketplace.RankCandidates(c, products)) > 0 {
				skip(c, ReasonNoPricing)
			}
			continue
		}
		opp := marketplace.ComputeSavings(c, *best)
		if opp == nil {
			if skip != nil {
				skip(c, ReasonNoSavings)
			}
			continue
		}
		report.Opportunities = append(report.Opportunities, *opp)
	}
	report.TotalAnnualSavings = marketplace.TotalAnnualSavings(report.Opportunities)
	return report
}

// Renewals classifies contracts inside the horizon and flags the ones with a
// priced marketplace alternative among products. Nothing is flagged unless
// the user has a connected marketplace integration.
func Renewals(contracts []model.Contract, products []model.ExternalProduct, marketplaceConnected bool, ref time.Time, horizonDays int) []model.RenewalCandidate {
	out := renewal.Classify(contracts, ref, horizonDays)
	if !marketplaceConnected {
		return out
	}
	for i := range out {
		c := out[i].Contract
		out[i].HasAWSOptimization = marketplace.IsMarketplaceEligible(c) && marketplace.HasPricedMatch(c, products)
	}
	return out
}

// ContractStore lists a user's contracts.
type ContractStore interface {
	List(ctx context.Context, filter model.ContractFilter) ([]*model.Contract, error)
}

// ProductStore lists synced products.
type ProductStore interface {
	List(ctx context.Context, filter model.ProductFilter) ([]model.ExternalProduct, error)
}

// IntegrationStore lists a user's AWS integrations.
type IntegrationStore interface {
	List(ctx context.Context, userID uuid.UUID) ([]*model.AWSIntegration, error)
}

// ProviderSource resolves the marketplace provider of an integration.
type ProviderSource interface {
	For(integ *model.AWSIntegration) (provider.MarketplaceProvider, error)
}

// SearchCache stores search results. A nil SearchCache disables caching.
type SearchCache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Notifier announces new opportunities.
type Notifier interface {
	SendOptimizationFound(ctx context.Context, contractName, productName string, monthly, annual decimal.Decimal) error
}

// NoticeStore remembers announced opportunities. A nil NoticeStore sends
// every opportunity on every call.
type NoticeStore interface {
	NoticeSent(ctx context.Context, n *model.OptimizationNotice) (bool, error)
	RecordNotice(ctx context.Context, n *model.OptimizationNotice) error
}

// Service builds optimization reports from stored data and live searches.
type Service struct {
	contracts    ContractStore
	products     ProductStore
	integrations IntegrationStore
	providers    ProviderSource
	cache        SearchCache
	notifier     Notifier
	notices      NoticeStore
	cfg          config.MarketplaceConfig
	logger       *slog.Logger
	now          func() time.Time
}

// NewService creates a Service. searchCache, notifier and notices may be nil.
func NewService(
	contracts ContractStore,
	products ProductStore,
	integrations IntegrationStore,
	providers ProviderSource,
	searchCache SearchCache,
	notifier Notifier,
	notices NoticeStore,
	cfg config.MarketplaceConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		contracts:    contracts,
		products:     products,
		integrations: integrations,
		providers:    providers,
		cache:        searchCache,
		notifier:     notifier,
		notices:      notices,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// Horizon is the renewal horizon in days used by the service.
func (s *Service) Horizon() int {
	if s.cfg.RenewalHorizonDays > 0 {
		return s.cfg.RenewalHorizonDays
	}
	return 60
}

// Report evaluates the user's contracts against synced products and, when a
// connected integration exists, live marketplace searches. A failed search
// only empties that contract's candidates.
func (s *Service) Report(ctx context.Context, userID uuid.UUID) (*model.OptimizationReport, error) {
	logger := logging.FromContext(ctx, s.logger)

	contracts, err := s.loadContracts(ctx, userID)
	if err != nil {
		return nil, err
	}
	synced, err := s.products.List(ctx, model.ProductFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("optimization: failed to list products: %w", err)
	}

	ref := s.now()
	horizon := s.Horizon()

	var recommendations []model.ContractRecommendation
	integ, err := s.searchIntegration(ctx, userID)
	if err != nil {
		return nil, err
	}
	if integ != nil {
		eligible := make([]model.Contract, 0)
		for _, rc := range renewal.Classify(contracts, ref, horizon) {
			if marketplace.IsMarketplaceEligible(rc.Contract) {
				eligible = append(eligible, rc.Contract)
			}
		}
		recommendations = s.searchContracts(ctx, integ, eligible)
	}

	live := make([]model.ExternalProduct, 0)
	for _, rec := range recommendations {
		live = append(live, rec.Products...)
	}
	products := Merge(synced, live)

	report := evaluate(contracts, products, ref, horizon, func(c model.Contract, reason string) {
		logger.Info("contract skipped", "contract_id", c.ID, "reason", reason)
	})
	report.Recommendations = recommendations
	return &report, nil
}

// Renewals returns the user's renewal candidates within horizonDays, flagged
// against synced products.
func (s *Service) Renewals(ctx context.Context, userID uuid.UUID, horizonDays int) ([]model.RenewalCandidate, error) {
	contracts, err := s.loadContracts(ctx, userID)
	if err != nil {
		return nil, err
	}
	products, err := s.products.List(ctx, model.ProductFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("optimization: failed to list products: %w", err)
	}
	integ, err := s.searchIntegration(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Renewals(contracts, products, integ != nil, s.now(), horizonDays), nil
}

// Notify announces the report's opportunities and returns how many were
// sent. An opportunity already announced with the same monthly savings is
// skipped. Failures are logged.
func (s *Service) Notify(ctx context.Context, report *model.OptimizationReport) int {
	if s.notifier == nil || report == nil {
		return 0
	}
	sent := 0
	for _, o := range report.Opportunities {
		notice := model.NoticeFor(o)
		if s.notices != nil {
			seen, err := s.notices.NoticeSent(ctx, &notice)
			if err != nil {
				s.logger.Warn("failed to check optimization notice", "contract_id", o.Contract.ID, "error", err)
				continue
			}
			if seen {
				continue
			}
		}
		if err := s.notifier.SendOptimizationFound(ctx, o.Contract.Name, o.MatchedProduct.ProductName, o.MonthlySavings, o.AnnualSavings); err != nil {
			s.logger.Warn("failed to send optimization notification", "contract_id", o.Contract.ID, "error", err)
			continue
		}
		sent++
		if s.notices != nil {
			if err := s.notices.RecordNotice(ctx, &notice); err != nil {
				s.logger.Warn("failed to record optimization notice", "contract_id", o.Contract.ID, "error", err)
			}
		}
	}
	return sent
}

// Search runs a marketplace search through the integration's provider,
// consulting the cache first.
func (s *Service) Search(ctx context.Context, integ *model.AWSIntegration, req provider.SearchRequest) ([]model.ExternalProduct, error) {
	req = req.Normalized(s.cfg.SearchMaxResults)

	var key string
	if s.cache != nil {
		key = cache.SearchKey(integ.ID.String(), req.Query.String(), req.ProductType, req.MaxResults)
		var cached []model.ExternalProduct
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("search cache read failed", "error", err)
		} else if found {
			return cached, nil
		}
	}

	p, err := s.providers.For(integ)
	if err != nil {
		return nil, err
	}
	products, err := p.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = make([]model.ExternalProduct, 0)
	}

	if s.cache != nil && s.cfg.CacheTTL > 0 {
		if err := s.cache.Set(ctx, key, products, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("search cache write failed", "error", err)
		}
	}
	return products, nil
}

// searchContracts searches for every contract with bounded concurrency.
// Results keep input order.
func (s *Service) searchContracts(ctx context.Context, integ *model.AWSIntegration, contracts []model.Contract) []model.ContractRecommendation {
	logger := logging.FromContext(ctx, s.logger)
	out := make([]model.ContractRecommendation, len(contracts))

	limit := s.cfg.SearchConcurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, c := range contracts {
		query := marketplace.QueryFor(c)
		out[i] = model.ContractRecommendation{
			ContractID: c.ID.String(),
			Query:      query.String(),
			Products:   make([]model.ExternalProduct, 0),
		}
		g.Go(func() error {
			searchCtx := gctx
			if s.cfg.SearchTimeout > 0 {
				var cancel context.CancelFunc
				searchCtx, cancel = context.WithTimeout(gctx, s.cfg.SearchTimeout)
				defer cancel()
			}
			products, err := s.Search(searchCtx, integ, provider.SearchRequest{
				Query:      query,
				MaxResults: s.cfg.SearchMaxResults,
			})
			if err != nil {
				logger.Warn("marketplace search failed",
					"contract_id", c.ID, "reason", ReasonSearchFailed, "error", err)
				out[i].Error = err.Error()
				return nil
			}
			out[i].Products = products
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// searchIntegration returns the first connected integration allowed to
// search the marketplace, or nil.
func (s *Service) searchIntegration(ctx context.Context, userID uuid.UUID) (*model.AWSIntegration, error) {
	integrations, err := s.integrations.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("optimization: failed to list integrations: %w", err)
	}
	for _, integ := range integrations {
		if integ.CanSearchMarketplace() {
			return integ, nil
		}
	}
	return nil, nil
}

func (s *Service) loadContracts(ctx context.Context, userID uuid.UUID) ([]model.Contract, error) {
	rows, err := s.contracts.List(ctx, model.ContractFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("optimization: failed to list contracts: %w", err)
	}
	out := make([]model.Contract, 0, len(rows))
	for _, c := range rows {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

// Merge combines synced products with live search results. Records sharing
// an identity collapse to the most recently fetched one; live results win
// ties.
func Merge(synced, live []model.ExternalProduct) []model.ExternalProduct {
	all := make([]model.ExternalProduct, 0, len(synced)+len(live))
	all = append(all, synced...)
	all = append(all, live...)
	return marketplace.Dedupe(all)
}
