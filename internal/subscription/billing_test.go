package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/core-coin/payportal/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func TestCalculateNextBillingDate(t *testing.T) {
	tests := []struct {
		name     string
		base     time.Time
		interval models.SubscriptionInterval
		count    int
		want     time.Time
	}{
		{"month end into leap february", date(2024, time.January, 31), models.IntervalMonthly, 1, date(2024, time.February, 29)},
		{"month end into february", date(2023, time.January, 31), models.IntervalMonthly, 1, date(2023, time.February, 28)},
		{"plain month", date(2024, time.March, 15), models.IntervalMonthly, 1, date(2024, time.April, 15)},
		{"quarterly from month end", date(2024, time.November, 30), models.IntervalMonthly, 3, date(2025, time.February, 28)},
		{"month end to shorter month", date(2024, time.March, 31), models.IntervalMonthly, 1, date(2024, time.April, 30)},
		{"leap day yearly", date(2024, time.February, 29), models.IntervalYearly, 1, date(2025, time.February, 28)},
		{"daily", date(2024, time.December, 31), models.IntervalDaily, 1, date(2025, time.January, 1)},
		{"biweekly", date(2024, time.January, 1), models.IntervalWeekly, 2, date(2024, time.January, 15)},
		{"zero count means one", date(2024, time.January, 1), models.IntervalDaily, 0, date(2024, time.January, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateNextBillingDate(tt.base, tt.interval, tt.count))
		})
	}
}

func TestIsWithinGracePeriod(t *testing.T) {
	due := date(2024, time.June, 1)
	grace := 24 * time.Hour

	assert.True(t, IsWithinGracePeriod(due, grace, due.Add(23*time.Hour+59*time.Minute)))
	assert.False(t, IsWithinGracePeriod(due, grace, due.Add(24*time.Hour+time.Minute)))
	assert.True(t, IsWithinGracePeriod(due, grace, due.Add(-time.Hour)))
}

func TestIntervalDisplayName(t *testing.T) {
	assert.Equal(t, "Monthly", IntervalDisplayName(models.IntervalMonthly, 1))
	assert.Equal(t, "Every 3 months", IntervalDisplayName(models.IntervalMonthly, 3))
	assert.Equal(t, "Every 2 weeks", IntervalDisplayName(models.IntervalWeekly, 2))
}

func TestPaymentDueAndTrial(t *testing.T) {
	now := date(2024, time.June, 1)
	trialEnd := now.Add(time.Hour)
	sub := &models.Subscription{NextPaymentDue: now, TrialEndsAt: &trialEnd}

	assert.True(t, IsPaymentDue(sub, now))
	assert.False(t, IsPaymentDue(sub, now.Add(-time.Second)))
	assert.True(t, IsInTrialPeriod(sub, now))
	assert.False(t, IsInTrialPeriod(sub, trialEnd))
}

func TestPastDueDeadline(t *testing.T) {
	due := date(2024, time.January, 31)
	sub := &models.Subscription{NextPaymentDue: due}

	monthly := &models.SubscriptionConfig{Interval: models.IntervalMonthly}
	// grace ends Feb 1, one month later is Mar 1
	assert.Equal(t, date(2024, time.March, 1), PastDueDeadline(sub, monthly, 24*time.Hour))

	weekly := &models.SubscriptionConfig{Interval: models.IntervalWeekly, IntervalCount: 2}
	assert.Equal(t, due.Add(2*time.Hour).AddDate(0, 0, 14), PastDueDeadline(sub, weekly, 2*time.Hour))
}
