package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/model"
	"github.com/contractlens/backend/internal/notification"
	"github.com/contractlens/backend/internal/renewal"
	"github.com/contractlens/backend/internal/repository"
)

// Reminder delivers renewal reminders.
type Reminder interface {
	SendRenewalReminder(ctx context.Context, r notification.RenewalReminder) error
}

// RenewalAlerts sends the reminders users configured for their contracts.
// A reminder fires when a configured days-before threshold equals the
// contract's days left and is sent at most once per calendar day.
type RenewalAlerts struct {
	contracts repository.ContractRepository
	alerts    repository.AlertRepository
	reminder  Reminder
	logger    *slog.Logger
	now       func() time.Time
}

// NewRenewalAlerts creates the renewal-alerts job.
func NewRenewalAlerts(contracts repository.ContractRepository, alerts repository.AlertRepository, reminder Reminder, logger *slog.Logger) *RenewalAlerts {
	return &RenewalAlerts{
		contracts: contracts,
		alerts:    alerts,
		reminder:  reminder,
		logger:    logger,
		now:       time.Now,
	}
}

// AlertType names the history entry for a reminder sent daysBefore a contract ends.
func AlertType(daysBefore int) string {
	return fmt.Sprintf("renewal_%d_days", daysBefore)
}

// Run evaluates every alert configuration once.
func (j *RenewalAlerts) Run(ctx context.Context) error {
	configs, err := j.alerts.ListAllConfigurations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list alert configurations: %w", err)
	}
	if len(configs) == 0 {
		return nil
	}

	horizon := 0
	for _, cfg := range configs {
		horizon = max(horizon, cfg.DaysBefore)
	}

	today := model.DateOnly(j.now().UTC())
	rows, err := j.contracts.ListActiveEndingBy(ctx, today.AddDate(0, 0, horizon))
	if err != nil {
		return fmt.Errorf("failed to list contracts: %w", err)
	}
	contracts := make([]model.Contract, 0, len(rows))
	for _, c := range rows {
		contracts = append(contracts, *c)
	}

	due := make(map[uuid.UUID]model.RenewalCandidate)
	for _, rc := range renewal.Classify(contracts, today, horizon) {
		due[rc.Contract.ID] = rc
	}

	sent := 0
	for _, cfg := range configs {
		rc, ok := due[cfg.ContractID]
		if !ok || rc.Contract.UserID != cfg.UserID || rc.DaysLeft != cfg.DaysBefore {
			continue
		}
		ok, err := j.send(ctx, cfg, rc, today)
		if err != nil {
			j.logger.Error("failed to send renewal reminder",
				"contract_id", cfg.ContractID, "days_before", cfg.DaysBefore, "error", err)
			continue
		}
		if ok {
			sent++
		}
	}

	j.logger.Info("renewal reminders processed", "configurations", len(configs), "sent", sent)
	return nil
}

func (j *RenewalAlerts) send(ctx context.Context, cfg *model.AlertConfiguration, rc model.RenewalCandidate, today time.Time) (bool, error) {
	alertType := AlertType(cfg.DaysBefore)
	exists, err := j.alerts.HistoryExistsSince(ctx, cfg.ContractID, cfg.Email, alertType, today)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	c := rc.Contract
	if err := j.reminder.SendRenewalReminder(ctx, notification.RenewalReminder{
		ContractName: c.Name,
		Client:       c.Client,
		EndDate:      c.EndDate,
		DaysLeft:     rc.DaysLeft,
		Value:        c.Value,
		Recipients:   []string{cfg.Email},
	}); err != nil {
		return false, err
	}

	return true, j.alerts.AddHistory(ctx, &model.AlertHistory{
		ID:         uuid.New(),
		UserID:     cfg.UserID,
		ContractID: cfg.ContractID,
		Email:      cfg.Email,
		AlertType:  alertType,
		SentAt:     j.now().UTC(),
	})
}
