package subscription

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/internal/repository"
	"github.com/core-coin/payportal/pkg/logger"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T) (*Manager, *clock, *repository.MemoryStorage) {
	t.Helper()
	c := &clock{t: time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryStorage()
	return NewManager(store, logger.NewNop()).WithClock(c.Now), c, store
}

func subscriptionLink(cfg models.SubscriptionConfig) *models.PaymentLink {
	return &models.PaymentLink{
		ID:           "link-1",
		TargetURL:    "https://example.com/premium",
		Price:        models.Price{Amount: "10", TokenSymbol: "USDC", ChainID: 1},
		Status:       models.LinkStatusActive,
		Subscription: &cfg,
	}
}

func intPtr(v int) *int { return &v }

func TestManager_TrialSubscription(t *testing.T) {
	m, c, _ := newTestManager(t)
	link := subscriptionLink(models.SubscriptionConfig{Interval: models.IntervalMonthly, TrialDays: 7})

	sub, created, err := m.CreateSubscription(context.Background(), link, "0xsubscriber")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, c.Now().AddDate(0, 0, 7), sub.NextPaymentDue)
	require.NotNil(t, sub.TrialEndsAt)
	assert.Equal(t, 0, sub.CycleCount)

	access := m.CheckAccess(sub, link)
	assert.True(t, access.HasAccess)

	again, created, err := m.CreateSubscription(context.Background(), link, "0xsubscriber")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sub.ID, again.ID)
}

func TestManager_ProcessPaymentExtendsFromPeriodEnd(t *testing.T) {
	m, c, _ := newTestManager(t)
	link := subscriptionLink(models.SubscriptionConfig{Interval: models.IntervalMonthly})
	ctx := context.Background()

	sub, _, err := m.CreateSubscription(ctx, link, "0xa")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 29, 10, 0, 0, 0, time.UTC), sub.CurrentPeriodEnd)

	// early renewal keeps the remaining time
	c.Advance(24 * time.Hour)
	sub, err = m.ProcessPayment(ctx, sub, &models.Payment{ID: "p1"}, link)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 29, 10, 0, 0, 0, time.UTC), sub.CurrentPeriodStart)
	assert.Equal(t, time.Date(2024, time.March, 29, 10, 0, 0, 0, time.UTC), sub.CurrentPeriodEnd)
	assert.Equal(t, sub.CurrentPeriodEnd, sub.NextPaymentDue)
	assert.Equal(t, 1, sub.CycleCount)
	assert.Equal(t, "p1", sub.LastPaymentID)

	// late payment after past_due restarts from now
	sub, err = m.MarkPastDue(ctx, sub)
	require.NoError(t, err)
	c.t = time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC)
	sub, err = m.ProcessPayment(ctx, sub, &models.Payment{ID: "p2"}, link)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, c.Now(), sub.CurrentPeriodStart)
	assert.Equal(t, 2, sub.CycleCount)
}

func TestManager_MaxCycles(t *testing.T) {
	m, _, _ := newTestManager(t)
	link := subscriptionLink(models.SubscriptionConfig{Interval: models.IntervalDaily, MaxCycles: intPtr(2)})
	ctx := context.Background()

	sub, _, err := m.CreateSubscription(ctx, link, "0xa")
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		sub, err = m.ProcessPayment(ctx, sub, &models.Payment{ID: "p"}, link)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionActive, sub.Status)
		assert.Equal(t, i, sub.CycleCount)
	}
	end := sub.CurrentPeriodEnd

	sub, err = m.ProcessPayment(ctx, sub, &models.Payment{ID: "p3"}, link)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionExpired, sub.Status)
	assert.Equal(t, end, sub.CurrentPeriodEnd)
	assert.Equal(t, 2, sub.CycleCount)

	access := m.CheckAccess(sub, link)
	assert.False(t, access.HasAccess)
	assert.Equal(t, models.ReasonSubscriptionMaxCycles, access.Reason)

	_, err = m.ProcessPayment(ctx, sub, &models.Payment{ID: "p4"}, link)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestManager_CheckAccess(t *testing.T) {
	m, c, _ := newTestManager(t)
	link := subscriptionLink(models.SubscriptionConfig{Interval: models.IntervalMonthly, GracePeriodHours: intPtr(48)})
	ctx := context.Background()

	sub, _, err := m.CreateSubscription(ctx, link, "0xa")
	require.NoError(t, err)

	c.t = sub.NextPaymentDue.Add(47 * time.Hour)
	assert.True(t, m.CheckAccess(sub, link).HasAccess)

	c.t = sub.NextPaymentDue.Add(49 * time.Hour)
	access := m.CheckAccess(sub, link)
	assert.False(t, access.HasAccess)
	assert.True(t, access.RequiresPayment)
	assert.Equal(t, models.SubscriptionActive, sub.Status, "access check must not change state")

	sub, err = m.MarkPastDue(ctx, sub)
	require.NoError(t, err)
	access = m.CheckAccess(sub, link)
	assert.Equal(t, models.ReasonSubscriptionPastDue, access.Reason)
	assert.True(t, access.RequiresPayment)
}

func TestManager_PauseResumeCancel(t *testing.T) {
	m, c, store := newTestManager(t)
	link := subscriptionLink(models.SubscriptionConfig{Interval: models.IntervalMonthly})
	ctx := context.Background()

	sub, _, err := m.CreateSubscription(ctx, link, "0xa")
	require.NoError(t, err)
	periodEnd := sub.CurrentPeriodEnd

	sub, err = m.PauseSubscription(ctx, sub)
	require.NoError(t, err)
	access := m.CheckAccess(sub, link)
	assert.False(t, access.HasAccess)
	assert.False(t, access.RequiresPayment)
	assert.Equal(t, models.ReasonSubscriptionPaused, access.Reason)

	_, err = m.PauseSubscription(ctx, sub)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	c.Advance(72 * time.Hour)
	sub, err = m.ResumeSubscription(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, sub.Status)
	assert.Equal(t, periodEnd.Add(72*time.Hour), sub.CurrentPeriodEnd)
	assert.Nil(t, sub.PausedAt)

	sub, err = m.CancelSubscription(ctx, sub, false)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, sub.Status)
	assert.NotNil(t, sub.CancelledAt)
	assert.True(t, m.CheckAccess(sub, link).HasAccess, "access lasts until period end")

	c.t = sub.CurrentPeriodEnd
	access = m.CheckAccess(sub, link)
	assert.False(t, access.HasAccess)
	assert.Equal(t, models.ReasonSubscriptionCancelled, access.Reason)

	_, err = m.CancelSubscription(ctx, sub, true)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	stored, err := store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, stored.Status)
}

func TestManager_ImmediateCancel(t *testing.T) {
	m, _, _ := newTestManager(t)
	link := subscriptionLink(models.SubscriptionConfig{Interval: models.IntervalMonthly})

	sub, _, err := m.CreateSubscription(context.Background(), link, "0xa")
	require.NoError(t, err)
	sub, err = m.CancelSubscription(context.Background(), sub, true)
	require.NoError(t, err)
	assert.False(t, m.CheckAccess(sub, link).HasAccess)
}

func TestScheduler_RunOnce(t *testing.T) {
	m, c, store := newTestManager(t)
	ctx := context.Background()
	link := subscriptionLink(models.SubscriptionConfig{Interval: models.IntervalDaily})

	due, _, err := m.CreateSubscription(ctx, link, "0xdue")
	require.NoError(t, err)
	paused, _, err := m.CreateSubscription(ctx, link, "0xpaused")
	require.NoError(t, err)
	_, err = m.PauseSubscription(ctx, paused)
	require.NoError(t, err)

	var seen []string
	s := NewScheduler(store, time.Minute, func(_ context.Context, sub *models.Subscription) {
		seen = append(seen, sub.ID)
	}, logger.NewNop()).WithClock(func() time.Time { return c.Now().Add(48 * time.Hour) })

	assert.Equal(t, 1, s.RunOnce(ctx))
	assert.Equal(t, []string{due.ID}, seen)
}

func TestScheduler_SkipsWhenLockedElsewhere(t *testing.T) {
	store := repository.NewMemoryStorage()
	ok, err := store.TryLock(context.Background(), dueCheckLock, "other-instance", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	s := NewScheduler(store, time.Minute, func(context.Context, *models.Subscription) {}, logger.NewNop())
	assert.Equal(t, 0, s.RunOnce(context.Background()))
}

func TestScheduler_StartStopRecoversPanics(t *testing.T) {
	m, c, store := newTestManager(t)
	ctx := context.Background()
	link := subscriptionLink(models.SubscriptionConfig{Interval: models.IntervalDaily})
	_, _, err := m.CreateSubscription(ctx, link, "0xa")
	require.NoError(t, err)

	var calls atomic.Int32
	s := NewScheduler(store, time.Hour, func(context.Context, *models.Subscription) {
		calls.Add(1)
		panic("boom")
	}, logger.NewNop()).WithClock(func() time.Time { return c.Now().Add(48 * time.Hour) })

	s.Start()
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestManager_RecordInitialPayment(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	link := subscriptionLink(models.SubscriptionConfig{Interval: models.IntervalMonthly, MaxCycles: intPtr(1)})

	sub, _, err := m.CreateSubscription(ctx, link, "0xa")
	require.NoError(t, err)
	end := sub.CurrentPeriodEnd

	sub, err = m.RecordInitialPayment(ctx, sub, &models.Payment{ID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, sub.CycleCount)
	assert.Equal(t, "p1", sub.LastPaymentID)
	assert.Equal(t, end, sub.CurrentPeriodEnd)

	_, err = m.RecordInitialPayment(ctx, sub, &models.Payment{ID: "p2"})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	// the cap of one cycle is now used up
	sub, err = m.ProcessPayment(ctx, sub, &models.Payment{ID: "p2"}, link)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionExpired, sub.Status)
}
