package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractlens/backend/internal/model"
)

func newInvoice(c *model.Contract, number string, amount int64, status model.InvoiceStatus) *model.Invoice {
	return &model.Invoice{
		BaseEntity:    model.NewBaseEntity(),
		UserID:        c.UserID,
		ContractID:    c.ID,
		InvoiceNumber: number,
		Date:          time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.NewFromInt(amount),
		Status:        status,
	}
}

func TestInvoiceHandler_Create(t *testing.T) {
	userID := uuid.New()
	c := newContract(userID, "Acme", time.Now().AddDate(0, 6, 0))
	invoices := newMemInvoices()
	h := NewInvoiceHandler(invoices, newMemContracts(c), testLogger)

	body := `{"contract_id":"` + c.ID.String() + `","invoice_number":"INV-1","date":"2025-02-01","amount":"1000"}`
	rec := serve(http.MethodPost, "/invoices", "/invoices", h.Create, body, userID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var got model.Invoice
	decode(t, rec, &got)
	assert.Equal(t, model.InvoiceStatusPending, got.Status)
	assert.Equal(t, c.ID, got.ContractID)

	rec = serve(http.MethodPost, "/invoices", "/invoices", h.Create, body, userID)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, invoices.rows, 1)
}

func TestInvoiceHandler_CreateRejects(t *testing.T) {
	userID := uuid.New()
	c := newContract(userID, "Acme", time.Now().AddDate(0, 6, 0))
	h := NewInvoiceHandler(newMemInvoices(), newMemContracts(c), testLogger)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing number", `{"contract_id":"` + c.ID.String() + `","date":"2025-02-01","amount":"1"}`, http.StatusBadRequest},
		{"negative amount", `{"contract_id":"` + c.ID.String() + `","invoice_number":"A","date":"2025-02-01","amount":"-1"}`, http.StatusBadRequest},
		{"unknown status", `{"contract_id":"` + c.ID.String() + `","invoice_number":"A","date":"2025-02-01","amount":"1","status":"Lost"}`, http.StatusBadRequest},
		{"foreign contract", `{"contract_id":"` + uuid.NewString() + `","invoice_number":"A","date":"2025-02-01","amount":"1"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(http.MethodPost, "/invoices", "/invoices", h.Create, tt.body, userID)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestInvoiceHandler_UpdateNumberConflict(t *testing.T) {
	userID := uuid.New()
	c := newContract(userID, "Acme", time.Now().AddDate(0, 6, 0))
	first := newInvoice(c, "INV-1", 100, model.InvoiceStatusPaid)
	second := newInvoice(c, "INV-2", 200, model.InvoiceStatusPending)
	h := NewInvoiceHandler(newMemInvoices(first, second), newMemContracts(c), testLogger)

	rec := serve(http.MethodPut, "/invoices/{id}", "/invoices/"+second.ID.String(), h.Update, `{"invoice_number":"INV-1"}`, userID)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(http.MethodPut, "/invoices/{id}", "/invoices/"+second.ID.String(), h.Update, `{"invoice_number":"INV-2","status":"Paid"}`, userID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got model.Invoice
	decode(t, rec, &got)
	assert.Equal(t, model.InvoiceStatusPaid, got.Status)
}

func TestInvoiceHandler_ListAndSummary(t *testing.T) {
	userID := uuid.New()
	c := newContract(userID, "Acme", time.Now().AddDate(0, 6, 0))
	invoices := newMemInvoices(
		newInvoice(c, "INV-1", 1000, model.InvoiceStatusPaid),
		newInvoice(c, "INV-2", 500, model.InvoiceStatusPending),
	)
	h := NewInvoiceHandler(invoices, newMemContracts(c), testLogger)

	var list struct {
		Data []model.Invoice `json:"data"`
	}
	rec := serve(http.MethodGet, "/contracts/{id}/invoices", "/contracts/"+c.ID.String()+"/invoices", h.ListByContract, "", userID)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	assert.Len(t, list.Data, 2)

	rec = serve(http.MethodGet, "/contracts/{id}/invoice-summary", "/contracts/"+c.ID.String()+"/invoice-summary", h.Summary, "", userID)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary model.InvoiceSummary
	decode(t, rec, &summary)
	assert.True(t, decimal.NewFromInt(1500).Equal(summary.TotalInvoiced))

	rec = serve(http.MethodGet, "/contracts/{id}/invoices", "/contracts/"+c.ID.String()+"/invoices", h.ListByContract, "", uuid.New())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvoiceHandler_SurviveContractDelete(t *testing.T) {
	userID := uuid.New()
	c := newContract(userID, "Acme", time.Now().AddDate(0, 6, 0))
	inv := newInvoice(c, "INV-1", 1000, model.InvoiceStatusPaid)
	contracts := newMemContracts(c)
	invoices := newMemInvoices(inv)
	ch := NewContractHandler(contracts, testLogger)
	ih := NewInvoiceHandler(invoices, contracts, testLogger)

	rec := serve(http.MethodDelete, "/contracts/{id}", "/contracts/"+c.ID.String(), ch.Delete, "", userID)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, invoices.rows, inv.ID)

	var list struct {
		Data []model.Invoice `json:"data"`
	}
	rec = serve(http.MethodGet, "/contracts/{id}/invoices", "/contracts/"+c.ID.String()+"/invoices", ih.ListByContract, "", userID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "INV-1", list.Data[0].InvoiceNumber)

	rec = serve(http.MethodGet, "/contracts/{id}/invoices", "/contracts/"+uuid.NewString()+"/invoices", ih.ListByContract, "", userID)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
