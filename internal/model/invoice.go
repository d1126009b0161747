package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the payment status of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPaid    InvoiceStatus = "Paid"
	InvoiceStatusPending InvoiceStatus = "Pending"
	InvoiceStatusOverdue InvoiceStatus = "Overdue"
)

// Valid reports whether s is a known invoice status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPaid, InvoiceStatusPending, InvoiceStatusOverdue:
		return true
	}
	return false
}

// Invoice is a bill issued against a contract.
type Invoice struct {
	BaseEntity
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	ContractID    uuid.UUID       `json:"contract_id" db:"contract_id"`
	InvoiceNumber string          `json:"invoice_number" db:"invoice_number"`
	Date          time.Time       `json:"date" db:"date"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Status        InvoiceStatus   `json:"status" db:"status"`
	DocumentPath  string          `json:"document_path,omitempty" db:"document_path"`
}

// InvoiceCreateRequest is the API request to create an invoice.
type InvoiceCreateRequest struct {
	ContractID    uuid.UUID       `json:"contract_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Date          string          `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Status        InvoiceStatus   `json:"status"`
}

// InvoiceUpdateRequest is the API request to update an invoice.
type InvoiceUpdateRequest struct {
	InvoiceNumber *string          `json:"invoice_number,omitempty"`
	Date          *string          `json:"date,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Status        *InvoiceStatus   `json:"status,omitempty"`
}

// InvoiceSummary aggregates the invoices of a single contract.
type InvoiceSummary struct {
	ContractID     uuid.UUID             `json:"contract_id"`
	TotalInvoiced  decimal.Decimal       `json:"total_invoiced"`
	TotalPaid      decimal.Decimal       `json:"total_paid"`
	RemainingValue decimal.Decimal       `json:"remaining_value"`
	CountByStatus  map[InvoiceStatus]int `json:"count_by_status"`
	Count          int                   `json:"count"`
}

// SummarizeInvoices totals invoices against the contract value.
func SummarizeInvoices(c *Contract, invoices []*Invoice) InvoiceSummary {
	s := InvoiceSummary{
		ContractID:    c.ID,
		TotalInvoiced: decimal.Zero,
		TotalPaid:     decimal.Zero,
		CountByStatus: map[InvoiceStatus]int{},
	}
	for _, inv := range invoices {
		s.TotalInvoiced = s.TotalInvoiced.Add(inv.Amount)
		if inv.Status == InvoiceStatusPaid {
			s.TotalPaid = s.TotalPaid.Add(inv.Amount)
		}
		s.CountByStatus[inv.Status]++
		s.Count++
	}
	s.RemainingValue = c.Value.Sub(s.TotalInvoiced)
	return s
}
