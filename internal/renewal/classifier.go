// Package renewal classifies active contracts by how soon they expire.
package renewal

import (
	"sort"
	"time"

	"github.com/contractlens/backend/internal/model"
)

const (
	// HorizonExpiringSoon drives the dashboard expiration banner.
	HorizonExpiringSoon = 30
	// HorizonRenewal drives the renewal view and marketplace eligibility.
	HorizonRenewal = 60
	// HighUrgencyDays is the inclusive cutoff for high urgency.
	HighUrgencyDays = 30
)

// SortMode orders renewal candidates.
type SortMode string

const (
	SortExpiration SortMode = "expiration"
	SortValue      SortMode = "value"
	SortUrgency    SortMode = "urgency"
)

// Classify returns the active contracts ending within horizonDays calendar
// days of ref, in input order. A contract ending on ref's date has DaysLeft 0
// and is included. Contracts with missing dates are skipped.
func Classify(contracts []model.Contract, ref time.Time, horizonDays int) []model.RenewalCandidate {
	today := model.DateOnly(ref)
	out := make([]model.RenewalCandidate, 0)

	for _, c := range contracts {
		if c.Status != model.ContractStatusActive || c.EndDate.IsZero() {
			continue
		}
		days, ok := DaysLeft(c.EndDate, today)
		if !ok || days > horizonDays {
			continue
		}
		out = append(out, model.RenewalCandidate{
			Contract: c,
			DaysLeft: days,
			Urgency:  UrgencyFor(days),
		})
	}
	return out
}

// DaysLeft returns the calendar days from ref to end. ok is false once the
// end date has passed.
func DaysLeft(end, ref time.Time) (int, bool) {
	days := int(model.DateOnly(end).Sub(model.DateOnly(ref)).Hours() / 24)
	if days < 0 {
		return days, false
	}
	return days, true
}

// UrgencyFor maps remaining days to an urgency level.
func UrgencyFor(daysLeft int) model.Urgency {
	if daysLeft <= HighUrgencyDays {
		return model.UrgencyHigh
	}
	return model.UrgencyMedium
}

// FilterByUrgency keeps candidates of the given urgency. An empty urgency
// keeps everything.
func FilterByUrgency(candidates []model.RenewalCandidate, urgency model.Urgency) []model.RenewalCandidate {
	if urgency == "" {
		return candidates
	}
	out := make([]model.RenewalCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Urgency == urgency {
			out = append(out, c)
		}
	}
	return out
}

// Sort orders candidates in place. Unknown modes fall back to expiration.
func Sort(candidates []model.RenewalCandidate, mode SortMode) {
	switch mode {
	case SortValue:
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Contract.Value.GreaterThan(candidates[j].Contract.Value)
		})
	case SortUrgency:
		sort.SliceStable(candidates, func(i, j int) bool {
			ui, uj := candidates[i].Urgency == model.UrgencyHigh, candidates[j].Urgency == model.UrgencyHigh
			if ui != uj {
				return ui
			}
			return candidates[i].DaysLeft < candidates[j].DaysLeft
		})
	default:
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].DaysLeft < candidates[j].DaysLeft
		})
	}
}
