package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/apierrors"
	"github.com/contractlens/backend/internal/marketplace"
	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/optimization"
	"github.com/contractlens/backend/internal/provider"
	"github.com/contractlens/backend/internal/renewal"
	"github.com/contractlens/backend/internal/repository"
)

const maxSearchResults = 50

// MarketplaceSearchRequest is the body of POST /marketplace/search.
type MarketplaceSearchRequest struct {
	IntegrationID uuid.UUID `json:"integration_id"`
	SearchQuery   string    `json:"search_query"`
	ProductType   string    `json:"product_type,omitempty"`
	MaxResults    int       `json:"max_results,omitempty"`
}

// MarketplaceHandler serves marketplace search, synced products, renewal
// candidates and optimization reports.
type MarketplaceHandler struct {
	optimizer    *optimization.Service
	integrations repository.IntegrationRepository
	products     repository.ProductRepository
	logger       *slog.Logger
}

// NewMarketplaceHandler creates a new MarketplaceHandler.
func NewMarketplaceHandler(optimizer *optimization.Service, integrations repository.IntegrationRepository, products repository.ProductRepository, logger *slog.Logger) *MarketplaceHandler {
	return &MarketplaceHandler{
		optimizer:    optimizer,
		integrations: integrations,
		products:     products,
		logger:       logger,
	}
}

// Search handles POST /marketplace/search.
func (h *MarketplaceHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req MarketplaceSearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SearchQuery = strings.TrimSpace(req.SearchQuery)
	if req.IntegrationID == uuid.Nil || req.SearchQuery == "" {
		badRequest(w, r, "integration_id and search_query are required")
		return
	}
	if req.MaxResults < 0 || req.MaxResults > maxSearchResults {
		badRequest(w, r, "max_results must be between 1 and 50")
		return
	}

	integ, err := h.integrations.GetByID(r.Context(), userID, req.IntegrationID)
	if err != nil {
		respondErr(w, r, h.logger, "integration", err)
		return
	}
	if !integ.CanSearchMarketplace() {
		badRequest(w, r, "integration is not connected with marketplace permission")
		return
	}

	products, err := h.optimizer.Search(r.Context(), integ, provider.SearchRequest{
		Query:       marketplace.Query{Name: req.SearchQuery},
		ProductType: req.ProductType,
		MaxResults:  req.MaxResults,
	})
	if err != nil {
		h.searchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  products,
		"total": len(products),
	})
}

func (h *MarketplaceHandler) searchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, provider.ErrIncompleteIntegration):
		badRequest(w, r, err.Error())
	case errors.Is(err, provider.ErrPermissionDenied):
		writeError(w, r, apierrors.NewForbiddenError("AWS denied access to the marketplace"))
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, apierrors.NewTimeoutError())
	default:
		h.logger.Warn("marketplace search failed", "error", err)
		writeError(w, r, apierrors.NewUpstreamError("aws-marketplace", "marketplace search failed"))
	}
}

// Products handles GET /marketplace/products?integration_id=&product_type=.
func (h *MarketplaceHandler) Products(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	filter := model.ProductFilter{UserID: userID, ProductType: r.URL.Query().Get("product_type")}
	if raw := r.URL.Query().Get("integration_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(w, r, "invalid integration_id")
			return
		}
		filter.IntegrationID = id
	}

	products, err := h.products.List(r.Context(), filter)
	if err != nil {
		respondErr(w, r, h.logger, "product", err)
		return
	}
	if products == nil {
		products = []model.ExternalProduct{}
	}
	writeData(w, products)
}

// Renewals handles GET /renewals?horizon=60&urgency=high|medium&sort=expiration|value|urgency.
func (h *MarketplaceHandler) Renewals(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	horizon, err := queryInt(r, "horizon", h.optimizer.Horizon())
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	urgency := model.Urgency(q.Get("urgency"))
	if urgency != "" && urgency != model.UrgencyHigh && urgency != model.UrgencyMedium {
		badRequest(w, r, "urgency must be high or medium")
		return
	}
	mode := renewal.SortMode(q.Get("sort"))
	switch mode {
	case "":
		mode = renewal.SortExpiration
	case renewal.SortExpiration, renewal.SortValue, renewal.SortUrgency:
	default:
		badRequest(w, r, "sort must be expiration, value or urgency")
		return
	}

	candidates, err := h.optimizer.Renewals(r.Context(), userID, horizon)
	if err != nil {
		respondErr(w, r, h.logger, "renewal", err)
		return
	}
	candidates = renewal.FilterByUrgency(candidates, urgency)
	renewal.Sort(candidates, mode)
	writeData(w, candidates)
}

// Optimizations handles GET /optimizations.
func (h *MarketplaceHandler) Optimizations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	report, err := h.optimizer.Report(r.Context(), userID)
	if err != nil {
		respondErr(w, r, h.logger, "optimization", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
