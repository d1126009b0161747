package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContractStatus represents the lifecycle status of a contract.
type ContractStatus string

const (
	ContractStatusActive  ContractStatus = "Active"
	ContractStatusExpired ContractStatus = "Expired"
	ContractStatusPending ContractStatus = "Pending"
)

// Valid reports whether s is a known contract status.
func (s ContractStatus) Valid() bool {
	switch s {
	case ContractStatusActive, ContractStatusExpired, ContractStatusPending:
		return true
	}
	return false
}

// ProviderTypeMarketplace is the provider type that makes a contract
// eligible for marketplace matching.
const ProviderTypeMarketplace = "SaaS/Marketplace"

// DefaultProviderType is applied when a contract is created without one.
const DefaultProviderType = "SaaS/Original Vendor"

// Contract validation errors.
var (
	ErrContractDates  = errors.New("contract end date must be after start date")
	ErrContractValue  = errors.New("contract value must not be negative")
	ErrContractName   = errors.New("contract name is required")
	ErrContractStatus = errors.New("contract status must be Active, Expired or Pending")
)

// Contract represents a vendor agreement owned by a user.
type Contract struct {
	BaseEntity
	UserID          uuid.UUID       `json:"user_id" db:"user_id"`
	Name            string          `json:"name" db:"name"`
	Client          string          `json:"client" db:"client"`
	Value           decimal.Decimal `json:"value" db:"value"`
	RemainingAmount decimal.Decimal `json:"remaining_amount" db:"remaining_amount"`
	StartDate       time.Time       `json:"start_date" db:"start_date"`
	EndDate         time.Time       `json:"end_date" db:"end_date"`
	Length          string          `json:"length" db:"length"`
	Status          ContractStatus  `json:"status" db:"status"`
	ProviderType    string          `json:"provider_type" db:"provider_type"`
}

// Validate checks the invariants a stored contract must hold.
func (c *Contract) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrContractName
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() || !c.EndDate.After(c.StartDate) {
		return ErrContractDates
	}
	if c.Value.IsNegative() {
		return ErrContractValue
	}
	if !c.Status.Valid() {
		return ErrContractStatus
	}
	return nil
}

// IsMarketplace reports whether the contract was bought through a marketplace.
func (c *Contract) IsMarketplace() bool {
	return c.ProviderType == ProviderTypeMarketplace
}

// ContractFilter narrows contract listings.
type ContractFilter struct {
	UserID       uuid.UUID
	Status       ContractStatus
	ProviderType string
	Search       string
}

// ContractCreateRequest is the API request to create a contract.
type ContractCreateRequest struct {
	Name         string          `json:"name"`
	Client       string          `json:"client"`
	Value        decimal.Decimal `json:"value"`
	StartDate    string          `json:"start_date"`
	EndDate      string          `json:"end_date"`
	Status       ContractStatus  `json:"status"`
	ProviderType string          `json:"provider_type"`
}

// ContractUpdateRequest is the API request to update a contract.
type ContractUpdateRequest struct {
	Name            *string          `json:"name,omitempty"`
	Client          *string          `json:"client,omitempty"`
	Value           *decimal.Decimal `json:"value,omitempty"`
	RemainingAmount *decimal.Decimal `json:"remaining_amount,omitempty"`
	StartDate       *string          `json:"start_date,omitempty"`
	EndDate         *string          `json:"end_date,omitempty"`
	Status          *ContractStatus  `json:"status,omitempty"`
	ProviderType    *string          `json:"provider_type,omitempty"`
}

// ParseDate parses a YYYY-MM-DD date, also accepting RFC 3339 timestamps.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return DateOnly(t), nil
}

// FormatLength renders the span between two dates as "1 year 2 months 3 days",
// using 365-day years and 30-day months.
func FormatLength(start, end time.Time) string {
	if end.Before(start) {
		return ""
	}
	days := int(DateOnly(end).Sub(DateOnly(start)).Hours() / 24)
	years := days / 365
	months := (days % 365) / 30
	rem := days % 30

	var parts []string
	if years > 0 {
		parts = append(parts, plural(years, "year"))
	}
	if months > 0 {
		parts = append(parts, plural(months, "month"))
	}
	if rem > 0 || len(parts) == 0 {
		parts = append(parts, plural(rem, "day"))
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
