package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/renewal"
	"github.com/contractlens/backend/internal/repository"
)

// ContractHandler handles contract CRUD for the authenticated user.
type ContractHandler struct {
	repo   repository.ContractRepository
	logger *slog.Logger
}

// NewContractHandler creates a new ContractHandler.
func NewContractHandler(repo repository.ContractRepository, logger *slog.Logger) *ContractHandler {
	return &ContractHandler{repo: repo, logger: logger}
}

// List handles GET /contracts?status=&provider_type=&search=.
func (h *ContractHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	contracts, err := h.repo.List(r.Context(), model.ContractFilter{
		UserID:       userID,
		Status:       model.ContractStatus(q.Get("status")),
		ProviderType: q.Get("provider_type"),
		Search:       strings.TrimSpace(q.Get("search")),
	})
	if err != nil {
		respondErr(w, r, h.logger, "contract", err)
		return
	}
	if contracts == nil {
		contracts = []*model.Contract{}
	}
	writeData(w, contracts)
}

// Create handles POST /contracts.
func (h *ContractHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req model.ContractCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start, err := model.ParseDate(req.StartDate)
	if err != nil {
		badRequest(w, r, "start_date: "+err.Error())
		return
	}
	end, err := model.ParseDate(req.EndDate)
	if err != nil {
		badRequest(w, r, "end_date: "+err.Error())
		return
	}

	c := &model.Contract{
		BaseEntity:      model.NewBaseEntity(),
		UserID:          userID,
		Name:            strings.TrimSpace(req.Name),
		Client:          strings.TrimSpace(req.Client),
		Value:           req.Value,
		RemainingAmount: req.Value,
		StartDate:       start,
		EndDate:         end,
		Length:          model.FormatLength(start, end),
		Status:          req.Status,
		ProviderType:    req.ProviderType,
	}
	if c.Status == "" {
		c.Status = model.ContractStatusActive
	}
	if c.ProviderType == "" {
		c.ProviderType = model.DefaultProviderType
	}
	if err := c.Validate(); err != nil {
		badRequest(w, r, err.Error())
		return
	}

	if err := h.repo.Create(r.Context(), c); err != nil {
		respondErr(w, r, h.logger, "contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Get handles GET /contracts/{id}.
func (h *ContractHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.repo.GetByID(r.Context(), userID, id)
	if err != nil {
		respondErr(w, r, h.logger, "contract", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Update handles PUT /contracts/{id}. Only supplied fields change.
func (h *ContractHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req model.ContractUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.repo.GetByID(r.Context(), userID, id)
	if err != nil {
		respondErr(w, r, h.logger, "contract", err)
		return
	}

	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Client != nil {
		c.Client = strings.TrimSpace(*req.Client)
	}
	if req.Value != nil {
		c.Value = *req.Value
	}
	if req.RemainingAmount != nil {
		c.RemainingAmount = *req.RemainingAmount
	}
	if req.StartDate != nil {
		if c.StartDate, err = model.ParseDate(*req.StartDate); err != nil {
			badRequest(w, r, "start_date: "+err.Error())
			return
		}
	}
	if req.EndDate != nil {
		if c.EndDate, err = model.ParseDate(*req.EndDate); err != nil {
			badRequest(w, r, "end_date: "+err.Error())
			return
		}
	}
	if req.Status != nil {
		c.Status = *req.Status
	}
	if req.ProviderType != nil {
		c.ProviderType = *req.ProviderType
	}
	c.Length = model.FormatLength(c.StartDate, c.EndDate)

	if err := c.Validate(); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if err := h.repo.Update(r.Context(), c); err != nil {
		respondErr(w, r, h.logger, "contract", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete handles DELETE /contracts/{id}. Invoices, documents and alert history
// are kept and stay reachable by id.
func (h *ContractHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), userID, id); err != nil {
		respondErr(w, r, h.logger, "contract", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Expiring handles GET /contracts/expiring?horizon=30, soonest first.
func (h *ContractHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	horizon, err := queryInt(r, "horizon", renewal.HorizonExpiringSoon)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	rows, err := h.repo.List(r.Context(), model.ContractFilter{UserID: userID, Status: model.ContractStatusActive})
	if err != nil {
		respondErr(w, r, h.logger, "contract", err)
		return
	}
	contracts := make([]model.Contract, 0, len(rows))
	for _, c := range rows {
		contracts = append(contracts, *c)
	}

	candidates := renewal.Classify(contracts, nowFunc(), horizon)
	renewal.Sort(candidates, renewal.SortExpiration)
	writeData(w, candidates)
}
