package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/apierrors"
	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/repository"
)

// InvoiceHandler handles invoices issued against a user's contracts.
type InvoiceHandler struct {
	invoices  repository.InvoiceRepository
	contracts repository.ContractRepository
	logger    *slog.Logger
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(invoices repository.InvoiceRepository, contracts repository.ContractRepository, logger *slog.Logger) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, contracts: contracts, logger: logger}
}

// ListByContract handles GET /contracts/{id}/invoices. Invoices of a deleted
// contract are still listed.
func (h *InvoiceHandler) ListByContract(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	contractID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	invoices, err := h.invoices.ListByContract(r.Context(), userID, contractID)
	if err != nil {
		respondErr(w, r, h.logger, "invoice", err)
		return
	}
	// Invoices outlive their contract; an empty list still needs an owned contract.
	if len(invoices) == 0 {
		if _, err := h.contracts.GetByID(r.Context(), userID, contractID); err != nil {
			respondErr(w, r, h.logger, "contract", err)
			return
		}
		invoices = []*model.Invoice{}
	}
	writeData(w, invoices)
}

// Summary handles GET /contracts/{id}/invoice-summary.
func (h *InvoiceHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	contractID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.contracts.GetByID(r.Context(), userID, contractID)
	if err != nil {
		respondErr(w, r, h.logger, "contract", err)
		return
	}
	invoices, err := h.invoices.ListByContract(r.Context(), userID, contractID)
	if err != nil {
		respondErr(w, r, h.logger, "invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, model.SummarizeInvoices(c, invoices))
}

// Create handles POST /invoices.
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req model.InvoiceCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.InvoiceNumber = strings.TrimSpace(req.InvoiceNumber)
	if req.ContractID == uuid.Nil || req.InvoiceNumber == "" {
		badRequest(w, r, "contract_id and invoice_number are required")
		return
	}
	if req.Amount.IsNegative() {
		badRequest(w, r, "amount must not be negative")
		return
	}
	if req.Status == "" {
		req.Status = model.InvoiceStatusPending
	}
	if !req.Status.Valid() {
		badRequest(w, r, "invalid status")
		return
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		badRequest(w, r, "date: "+err.Error())
		return
	}

	if _, err := h.contracts.GetByID(r.Context(), userID, req.ContractID); err != nil {
		respondErr(w, r, h.logger, "contract", err)
		return
	}
	if !h.numberAvailable(w, r, req.ContractID, req.InvoiceNumber, uuid.Nil) {
		return
	}

	inv := &model.Invoice{
		BaseEntity:    model.NewBaseEntity(),
		UserID:        userID,
		ContractID:    req.ContractID,
		InvoiceNumber: req.InvoiceNumber,
		Date:          date,
		Amount:        req.Amount,
		Status:        req.Status,
	}
	if err := h.invoices.Create(r.Context(), inv); err != nil {
		respondErr(w, r, h.logger, "invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// Update handles PUT /invoices/{id}.
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req model.InvoiceUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	inv, err := h.invoices.GetByID(r.Context(), userID, id)
	if err != nil {
		respondErr(w, r, h.logger, "invoice", err)
		return
	}

	if req.InvoiceNumber != nil {
		number := strings.TrimSpace(*req.InvoiceNumber)
		if number == "" {
			badRequest(w, r, "invoice_number must not be empty")
			return
		}
		if number != inv.InvoiceNumber && !h.numberAvailable(w, r, inv.ContractID, number, inv.ID) {
			return
		}
		inv.InvoiceNumber = number
	}
	if req.Date != nil {
		if inv.Date, err = model.ParseDate(*req.Date); err != nil {
			badRequest(w, r, "date: "+err.Error())
			return
		}
	}
	if req.Amount != nil {
		if req.Amount.IsNegative() {
			badRequest(w, r, "amount must not be negative")
			return
		}
		inv.Amount = *req.Amount
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			badRequest(w, r, "invalid status")
			return
		}
		inv.Status = *req.Status
	}

	if err := h.invoices.Update(r.Context(), inv); err != nil {
		respondErr(w, r, h.logger, "invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// Delete handles DELETE /invoices/{id}.
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.invoices.Delete(r.Context(), userID, id); err != nil {
		respondErr(w, r, h.logger, "invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// numberAvailable writes a 409 when the invoice number is taken within the contract.
func (h *InvoiceHandler) numberAvailable(w http.ResponseWriter, r *http.Request, contractID uuid.UUID, number string, excludeID uuid.UUID) bool {
	taken, err := h.invoices.NumberExists(r.Context(), contractID, number, excludeID)
	if err != nil {
		respondErr(w, r, h.logger, "invoice", err)
		return false
	}
	if taken {
		writeError(w, r, apierrors.NewConflictError("invoice number already exists for this contract"))
		return false
	}
	return true
}
