package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RenewalReminder describes a contract approaching its end date.
type RenewalReminder struct {
	ContractName string
	Client       string
	EndDate      time.Time
	DaysLeft     int
	Value        decimal.Decimal
	Recipients   []string
}

// ReminderMessage builds the renewal.due message.
func ReminderMessage(r RenewalReminder) Message {
	when := fmt.Sprintf("in %d days", r.DaysLeft)
	switch r.DaysLeft {
	case 0:
		when = "today"
	case 1:
		when = "tomorrow"
	}

	severity := "medium"
	if r.DaysLeft <= 30 {
		severity = "high"
	}

	return Message{
		EventType: EventRenewalDue,
		Title:     fmt.Sprintf("Contract renewal due: %s", r.ContractName),
		Body: fmt.Sprintf("Your contract '%s' with %s expires %s (%s). Contract value: $%s.",
			r.ContractName, r.Client, when, r.EndDate.Format("Jan 2, 2006"), r.Value.StringFixed(2)),
		Severity:   severity,
		Recipients: r.Recipients,
		Data: map[string]any{
			"Contract":  r.ContractName,
			"Client":    r.Client,
			"End Date":  r.EndDate.Format(time.DateOnly),
			"Days Left": r.DaysLeft,
		},
	}
}

// SendRenewalReminder sends a renewal.due notification.
func (s *Service) SendRenewalReminder(ctx context.Context, r RenewalReminder) error {
	return s.Send(ctx, ReminderMessage(r))
}

// SendOptimizationFound announces a marketplace product that would save money.
func (s *Service) SendOptimizationFound(ctx context.Context, contractName, productName string, monthly, annual decimal.Decimal) error {
	return s.Send(ctx, Message{
		EventType: EventOptimizationFound,
		Title:     fmt.Sprintf("Marketplace savings for %s", contractName),
		Body: fmt.Sprintf("'%s' is available on AWS Marketplace for less. Estimated savings: $%s/month ($%s/year).",
			productName, monthly.StringFixed(2), annual.StringFixed(2)),
		Severity: "success",
		Data: map[string]any{
			"Contract":        contractName,
			"Product":         productName,
			"Monthly Savings": "$" + monthly.StringFixed(2),
			"Annual Savings":  "$" + annual.StringFixed(2),
		},
	})
}

// SendSyncFailed reports a failed integration sync.
func (s *Service) SendSyncFailed(ctx context.Context, accountName, dataType, reason string) error {
	return s.Send(ctx, Message{
		EventType: EventSyncFailed,
		Title:     fmt.Sprintf("AWS sync failed: %s", accountName),
		Body:      fmt.Sprintf("Syncing %s for '%s' failed: %s", dataType, accountName, reason),
		Severity:  "high",
		Data: map[string]any{
			"Account":   accountName,
			"Data Type": dataType,
		},
	})
}
