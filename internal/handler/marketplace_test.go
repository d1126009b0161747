package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractlens/backend/internal/config"
	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/optimization"
	"github.com/contractlens/backend/internal/provider"
	"github.com/contractlens/backend/internal/repository"
)

type memProducts struct {
	repository.ProductRepository
	rows []model.ExternalProduct
}

func (m *memProducts) List(_ context.Context, f model.ProductFilter) ([]model.ExternalProduct, error) {
	var out []model.ExternalProduct
	for _, p := range m.rows {
		if f.IntegrationID != uuid.Nil && p.IntegrationID != f.IntegrationID {
			continue
		}
		if f.ProductType != "" && p.ProductType != f.ProductType {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type searchProvider struct {
	provider.MarketplaceProvider
	results []model.ExternalProduct
	err     error
	last    provider.SearchRequest
}

func (p *searchProvider) Search(_ context.Context, req provider.SearchRequest) ([]model.ExternalProduct, error) {
	p.last = req
	return p.results, p.err
}

func connectedIntegration(userID uuid.UUID) *model.AWSIntegration {
	return &model.AWSIntegration{
		BaseEntity:             model.NewBaseEntity(),
		UserID:                 userID,
		AccountName:            "Prod",
		ConnectionType:         model.ConnectionTypeManual,
		ConnectionStatus:       model.ConnectionStatusConnected,
		PermissionsMarketplace: true,
	}
}

func newMarketplaceHandler(contracts *memContracts, products *memProducts, integrations *memIntegrations, p provider.MarketplaceProvider) *MarketplaceHandler {
	cfg := config.MarketplaceConfig{RenewalHorizonDays: 60, SearchConcurrency: 2, SearchTimeout: time.Second, SearchMaxResults: 5}
	svc := optimization.NewService(contracts, products, integrations, &stubProviders{p: p}, nil, nil, nil, cfg, testLogger)
	return NewMarketplaceHandler(svc, integrations, products, testLogger)
}

func TestMarketplaceHandler_SearchValidation(t *testing.T) {
	userID := uuid.New()
	disconnected := connectedIntegration(userID)
	disconnected.ConnectionStatus = model.ConnectionStatusError
	h := newMarketplaceHandler(newMemContracts(), &memProducts{}, newMemIntegrations(disconnected), &searchProvider{})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing query", `{"integration_id":"` + disconnected.ID.String() + `"}`, http.StatusBadRequest},
		{"missing integration", `{"search_query":"datadog"}`, http.StatusBadRequest},
		{"too many results", `{"integration_id":"` + disconnected.ID.String() + `","search_query":"datadog","max_results":51}`, http.StatusBadRequest},
		{"unknown integration", `{"integration_id":"` + uuid.NewString() + `","search_query":"datadog"}`, http.StatusNotFound},
		{"not connected", `{"integration_id":"` + disconnected.ID.String() + `","search_query":"datadog"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(http.MethodPost, "/marketplace/search", "/marketplace/search", h.Search, tt.body, userID)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestMarketplaceHandler_Search(t *testing.T) {
	userID := uuid.New()
	integ := connectedIntegration(userID)
	p := &searchProvider{results: []model.ExternalProduct{{IntegrationID: integ.ID, ProductID: "prod-1", ProductName: "Datadog Pro"}}}
	h := newMarketplaceHandler(newMemContracts(), &memProducts{}, newMemIntegrations(integ), p)

	rec := serve(http.MethodPost, "/marketplace/search", "/marketplace/search", h.Search,
		`{"integration_id":"`+integ.ID.String()+`","search_query":" datadog "}`, userID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data  []model.ExternalProduct `json:"data"`
		Total int                     `json:"total"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "datadog", p.last.Query.Name)
	assert.Equal(t, 5, p.last.MaxResults)
}

func TestMarketplaceHandler_SearchErrors(t *testing.T) {
	userID := uuid.New()
	integ := connectedIntegration(userID)

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"permission denied", provider.ErrPermissionDenied, http.StatusForbidden},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"upstream", assert.AnError, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newMarketplaceHandler(newMemContracts(), &memProducts{}, newMemIntegrations(integ), &searchProvider{err: tt.err})
			rec := serve(http.MethodPost, "/marketplace/search", "/marketplace/search", h.Search,
				`{"integration_id":"`+integ.ID.String()+`","search_query":"datadog"}`, userID)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestMarketplaceHandler_Renewals(t *testing.T) {
	userID := uuid.New()
	now := time.Now()
	integID := uuid.New()

	urgent := newContract(userID, "Acme Analytics", now.AddDate(0, 0, 10))
	urgent.Client = "Acme Corp"
	urgent.Value = decimal.NewFromInt(50000)
	later := newContract(userID, "Globex Monitoring", now.AddDate(0, 0, 45))
	later.Value = decimal.NewFromInt(90000)
	cost := decimal.NewFromInt(10)
	products := &memProducts{rows: []model.ExternalProduct{{
		IntegrationID: integID,
		ProductID:     "prod-1",
		ProductName:   "Acme Analytics",
		Vendor:        "Acme Corp",
		MonthlyCost:   &cost,
		Currency:      model.CurrencyUSD,
		Availability:  model.AvailabilityAvailable,
		Source:        model.SourceCatalog,
	}}}
	h := newMarketplaceHandler(newMemContracts(urgent, later), products, newMemIntegrations(connectedIntegration(userID)), nil)

	var resp struct {
		Data []model.RenewalCandidate `json:"data"`
	}
	rec := serve(http.MethodGet, "/renewals", "/renewals?sort=value", h.Renewals, "", userID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &resp)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "Globex Monitoring", resp.Data[0].Contract.Name)
	assert.True(t, resp.Data[1].HasAWSOptimization)

	rec = serve(http.MethodGet, "/renewals", "/renewals?urgency=high", h.Renewals, "", userID)
	decode(t, rec, &resp)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Acme Analytics", resp.Data[0].Contract.Name)
	assert.Equal(t, model.UrgencyHigh, resp.Data[0].Urgency)

	h = newMarketplaceHandler(newMemContracts(urgent, later), products, newMemIntegrations(), nil)
	rec = serve(http.MethodGet, "/renewals", "/renewals?urgency=high", h.Renewals, "", userID)
	decode(t, rec, &resp)
	require.Len(t, resp.Data, 1)
	assert.False(t, resp.Data[0].HasAWSOptimization)

	rec = serve(http.MethodGet, "/renewals", "/renewals?horizon=20", h.Renewals, "", userID)
	decode(t, rec, &resp)
	assert.Len(t, resp.Data, 1)

	for _, q := range []string{"urgency=low", "sort=name", "horizon=-1"} {
		rec = serve(http.MethodGet, "/renewals", "/renewals?"+q, h.Renewals, "", userID)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestMarketplaceHandler_Products(t *testing.T) {
	userID := uuid.New()
	a, b := uuid.New(), uuid.New()
	products := &memProducts{rows: []model.ExternalProduct{
		{IntegrationID: a, ProductID: "p1", ProductType: "SaaS"},
		{IntegrationID: b, ProductID: "p2", ProductType: "AMI"},
	}}
	h := newMarketplaceHandler(newMemContracts(), products, newMemIntegrations(), nil)

	var resp struct {
		Data []model.ExternalProduct `json:"data"`
	}
	rec := serve(http.MethodGet, "/marketplace/products", "/marketplace/products?integration_id="+a.String(), h.Products, "", userID)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "p1", resp.Data[0].ProductID)

	rec = serve(http.MethodGet, "/marketplace/products", "/marketplace/products?integration_id=nope", h.Products, "", userID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarketplaceHandler_Optimizations(t *testing.T) {
	userID := uuid.New()
	h := newMarketplaceHandler(newMemContracts(), &memProducts{}, newMemIntegrations(), nil)

	rec := serve(http.MethodGet, "/optimizations", "/optimizations", h.Optimizations, "", userID)
	require.Equal(t, http.StatusOK, rec.Code)
	var report model.OptimizationReport
	decode(t, rec, &report)
	assert.Equal(t, 0, report.ExpiringContracts)
}
