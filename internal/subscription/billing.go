package subscription

import (
	"fmt"
	"time"

	"github.com/core-coin/payportal/internal/models"
)

// CalculateNextBillingDate adds count intervals to base. Month and year steps
// clamp to the last day of the target month, so Jan 31 plus one month is the
// last day of February.
func CalculateNextBillingDate(base time.Time, interval models.SubscriptionInterval, count int) time.Time {
	if count <= 0 {
		count = 1
	}
	switch interval {
	case models.IntervalDaily:
		return base.AddDate(0, 0, count)
	case models.IntervalWeekly:
		return base.AddDate(0, 0, 7*count)
	case models.IntervalYearly:
		return addMonths(base, 12*count)
	default:
		return addMonths(base, count)
	}
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// IsWithinGracePeriod reports whether now is before due plus grace.
func IsWithinGracePeriod(due time.Time, grace time.Duration, now time.Time) bool {
	return now.Before(due.Add(grace))
}

// PastDueDeadline is when a past_due subscription expires: one full billing
// interval after its grace window closed.
func PastDueDeadline(sub *models.Subscription, cfg *models.SubscriptionConfig, grace time.Duration) time.Time {
	return CalculateNextBillingDate(sub.NextPaymentDue.Add(grace), cfg.Interval, cfg.Count())
}

// IsPaymentDue reports whether the subscription's next payment date has passed.
func IsPaymentDue(sub *models.Subscription, now time.Time) bool {
	return !now.Before(sub.NextPaymentDue)
}

// IsInTrialPeriod reports whether the subscription is still inside its trial.
func IsInTrialPeriod(sub *models.Subscription, now time.Time) bool {
	return sub.TrialEndsAt != nil && now.Before(*sub.TrialEndsAt)
}

// CyclesExhausted reports whether the link's cycle cap has been reached.
func CyclesExhausted(sub *models.Subscription, cfg *models.SubscriptionConfig) bool {
	return cfg != nil && cfg.MaxCycles != nil && sub.CycleCount >= *cfg.MaxCycles
}

// IntervalDisplayName renders an interval for humans, e.g. "every 3 months".
func IntervalDisplayName(interval models.SubscriptionInterval, count int) string {
	unit := map[models.SubscriptionInterval]string{
		models.IntervalDaily:   "day",
		models.IntervalWeekly:  "week",
		models.IntervalMonthly: "month",
		models.IntervalYearly:  "year",
	}[interval]
	if unit == "" {
		unit = string(interval)
	}
	if count <= 1 {
		adverb := map[models.SubscriptionInterval]string{
			models.IntervalDaily:   "Daily",
			models.IntervalWeekly:  "Weekly",
			models.IntervalMonthly: "Monthly",
			models.IntervalYearly:  "Yearly",
		}[interval]
		if adverb != "" {
			return adverb
		}
		return "Every " + unit
	}
	return fmt.Sprintf("Every %d %ss", count, unit)
}

// ValidInterval reports whether interval is a known billing unit.
func ValidInterval(interval models.SubscriptionInterval) bool {
	switch interval {
	case models.IntervalDaily, models.IntervalWeekly, models.IntervalMonthly, models.IntervalYearly:
		return true
	}
	return false
}
