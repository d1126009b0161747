package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Urgency ranks how soon a contract needs attention.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
)

// RenewalCandidate is an active contract whose end date falls inside a horizon.
type RenewalCandidate struct {
	Contract           Contract `json:"contract"`
	DaysLeft           int      `json:"days_left"`
	Urgency            Urgency  `json:"urgency"`
	HasAWSOptimization bool     `json:"has_aws_optimization"`
}

// OptimizationOpportunity is the savings available by moving a contract to a
// priced marketplace product. Only built when the product carries real pricing.
type OptimizationOpportunity struct {
	Contract           Contract        `json:"contract"`
	MatchedProduct     ExternalProduct `json:"matched_product"`
	CurrentMonthlyCost decimal.Decimal `json:"current_monthly_cost"`
	AWSMonthlyCost     decimal.Decimal `json:"aws_monthly_cost"`
	MonthlySavings     decimal.Decimal `json:"monthly_savings"`
	AnnualSavings      decimal.Decimal `json:"annual_savings"`
	SavingsPercentage  decimal.Decimal `json:"savings_percentage"`
	HasDirectMatch     bool            `json:"has_direct_match"`
}

// OptimizationReport is the result of evaluating a user's contracts.
type OptimizationReport struct {
	Opportunities      []OptimizationOpportunity `json:"opportunities"`
	TotalAnnualSavings decimal.Decimal           `json:"total_annual_savings"`
	ExpiringContracts  int                       `json:"expiring_contracts"`
	Recommendations    []ContractRecommendation  `json:"recommendations,omitempty"`
}

// ContractRecommendation lists the live search candidates found for one contract.
type ContractRecommendation struct {
	ContractID string            `json:"contract_id"`
	Query      string            `json:"query"`
	Products   []ExternalProduct `json:"products"`
	Error      string            `json:"error,omitempty"`
}

// OptimizationNotice records an optimization.found notification so the same
// opportunity is not announced twice.
type OptimizationNotice struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	UserID         uuid.UUID       `json:"user_id" db:"user_id"`
	ContractID     uuid.UUID       `json:"contract_id" db:"contract_id"`
	IntegrationID  uuid.UUID       `json:"integration_id" db:"integration_id"`
	ProductID      string          `json:"product_id" db:"product_id"`
	MonthlySavings decimal.Decimal `json:"monthly_savings" db:"monthly_savings"`
	SentAt         time.Time       `json:"sent_at" db:"sent_at"`
}

// NoticeFor builds the notice describing an opportunity.
func NoticeFor(o OptimizationOpportunity) OptimizationNotice {
	return OptimizationNotice{
		UserID:         o.Contract.UserID,
		ContractID:     o.Contract.ID,
		IntegrationID:  o.MatchedProduct.IntegrationID,
		ProductID:      o.MatchedProduct.ProductID,
		MonthlySavings: o.MonthlySavings,
	}
}
