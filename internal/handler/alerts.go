package handler

import (
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/repository"
)

const maxAlertDays = 365

// AlertHandler configures renewal reminders per contract.
type AlertHandler struct {
	alerts    repository.AlertRepository
	contracts repository.ContractRepository
	logger    *slog.Logger
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(alerts repository.AlertRepository, contracts repository.ContractRepository, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, contracts: contracts, logger: logger}
}

// List handles GET /contracts/{id}/alerts.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	c, ok := h.contract(w, r)
	if !ok {
		return
	}
	configs, err := h.alerts.ListConfigurations(r.Context(), c.UserID, c.ID)
	if err != nil {
		respondErr(w, r, h.logger, "alert", err)
		return
	}
	if configs == nil {
		configs = []*model.AlertConfiguration{}
	}
	writeData(w, configs)
}

// Replace handles PUT /contracts/{id}/alerts. An empty alert_days list
// removes every reminder for the contract.
func (h *AlertHandler) Replace(w http.ResponseWriter, r *http.Request) {
	c, ok := h.contract(w, r)
	if !ok {
		return
	}

	var req model.AlertConfigRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(req.Email); err != nil {
		badRequest(w, r, "a valid email is required")
		return
	}
	for _, d := range req.AlertDays {
		if d < 0 || d > maxAlertDays {
			badRequest(w, r, "alert_days must be between 0 and 365")
			return
		}
	}

	configs, err := h.alerts.ReplaceConfigurations(r.Context(), c.UserID, c.ID, req.Email, req.AlertDays)
	if err != nil {
		respondErr(w, r, h.logger, "alert", err)
		return
	}
	if configs == nil {
		configs = []*model.AlertConfiguration{}
	}
	writeData(w, configs)
}

// History handles GET /contracts/{id}/alerts/history.
func (h *AlertHandler) History(w http.ResponseWriter, r *http.Request) {
	c, ok := h.contract(w, r)
	if !ok {
		return
	}
	history, err := h.alerts.ListHistory(r.Context(), c.UserID, c.ID)
	if err != nil {
		respondErr(w, r, h.logger, "alert", err)
		return
	}
	if history == nil {
		history = []*model.AlertHistory{}
	}
	writeData(w, history)
}

func (h *AlertHandler) contract(w http.ResponseWriter, r *http.Request) (*model.Contract, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return nil, false
	}
	c, err := h.contracts.GetByID(r.Context(), userID, id)
	if err != nil {
		respondErr(w, r, h.logger, "contract", err)
		return nil, false
	}
	return c, true
}
