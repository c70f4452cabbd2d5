// Package subscription implements the subscription lifecycle: creation,
// renewal on payment, access checks, and the status transitions driven by
// subscribers, operators and the periodic due check.
package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/pkg/logger"
)

type Manager struct {
	logger  *logger.Logger
	storage models.Storage
	now     func() time.Time
}

func NewManager(storage models.Storage, logger *logger.Logger) *Manager {
	return &Manager{logger: logger, storage: storage, now: time.Now}
}

// WithClock replaces the wall clock. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// CreateSubscription starts a subscription for address on a subscription
// link, or returns the existing one for the pair. created is false when an
// existing subscription was returned.
func (m *Manager) CreateSubscription(ctx context.Context, link *models.PaymentLink, address string) (sub *models.Subscription, created bool, err error) {
	cfg := link.Subscription
	if cfg == nil {
		return nil, false, fmt.Errorf("payment link %s has no subscription config", link.ID)
	}

	now := m.now()
	sub = &models.Subscription{
		ID:                 uuid.NewString(),
		PaymentLinkID:      link.ID,
		SubscriberAddress:  address,
		Status:             models.SubscriptionActive,
		CurrentPeriodStart: now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if cfg.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, cfg.TrialDays)
		sub.CurrentPeriodEnd = trialEnd
		sub.NextPaymentDue = trialEnd
		sub.TrialEndsAt = &trialEnd
	} else {
		end := CalculateNextBillingDate(now, cfg.Interval, cfg.Count())
		sub.CurrentPeriodEnd = end
		sub.NextPaymentDue = end
	}

	sub, created, err = m.storage.CreateSubscription(ctx, sub)
	if err != nil {
		return nil, false, err
	}
	if created {
		m.logger.Infow("Subscription created", "id", sub.ID, "link", link.ID, "subscriber", address, "trialEndsAt", sub.TrialEndsAt)
	}
	return sub, created, nil
}

// ProcessPayment credits one billing cycle. The new period starts at the
// later of now and the current period end, so early renewals do not lose
// time. A payment arriving after the cycle cap has been reached expires the
// subscription instead of extending it.
func (m *Manager) ProcessPayment(ctx context.Context, sub *models.Subscription, payment *models.Payment, link *models.PaymentLink) (*models.Subscription, error) {
	if sub.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot renew %s subscription", models.ErrInvalidTransition, sub.Status)
	}
	cfg := link.Subscription
	if cfg == nil {
		return nil, fmt.Errorf("payment link %s has no subscription config", link.ID)
	}

	now := m.now()
	sub.LastPaymentID = payment.ID
	sub.UpdatedAt = now

	if CyclesExhausted(sub, cfg) {
		sub.Status = models.SubscriptionExpired
	} else {
		start := now
		if sub.CurrentPeriodEnd.After(start) {
			start = sub.CurrentPeriodEnd
		}
		end := CalculateNextBillingDate(start, cfg.Interval, cfg.Count())
		sub.CurrentPeriodStart = start
		sub.CurrentPeriodEnd = end
		sub.NextPaymentDue = end
		sub.CycleCount++
		sub.Status = models.SubscriptionActive
		sub.PausedAt = nil
	}

	if err := m.storage.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	m.logger.Infow("Subscription payment processed", "id", sub.ID, "status", sub.Status, "cycle", sub.CycleCount, "periodEnd", sub.CurrentPeriodEnd)
	return sub, nil
}

// RecordInitialPayment credits the first cycle of a subscription created
// together with its first payment. The period opened at creation is the paid
// one, so it is not extended.
func (m *Manager) RecordInitialPayment(ctx context.Context, sub *models.Subscription, payment *models.Payment) (*models.Subscription, error) {
	if sub.CycleCount != 0 || sub.TrialEndsAt != nil {
		return nil, fmt.Errorf("%w: subscription %s already started billing", models.ErrInvalidTransition, sub.ID)
	}
	sub.CycleCount = 1
	sub.LastPaymentID = payment.ID
	sub.UpdatedAt = m.now()
	if err := m.storage.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	m.logger.Infow("Subscription initial payment recorded", "id", sub.ID, "periodEnd", sub.CurrentPeriodEnd)
	return sub, nil
}

// CheckAccess decides whether the subscriber may access the resource now.
// It never changes state: an active subscription past its grace window is
// denied here and moved to past_due by the due check.
func (m *Manager) CheckAccess(sub *models.Subscription, link *models.PaymentLink) models.AccessResult {
	now := m.now()

	switch sub.Status {
	case models.SubscriptionExpired:
		reason := models.ReasonSubscriptionExpired
		if CyclesExhausted(sub, link.Subscription) {
			reason = models.ReasonSubscriptionMaxCycles
		}
		return models.AccessResult{Reason: reason}
	case models.SubscriptionCancelled:
		if now.Before(sub.CurrentPeriodEnd) {
			return models.AccessResult{HasAccess: true}
		}
		return models.AccessResult{Reason: models.ReasonSubscriptionCancelled}
	case models.SubscriptionPaused:
		return models.AccessResult{Reason: models.ReasonSubscriptionPaused}
	case models.SubscriptionPastDue:
		return models.AccessResult{Reason: models.ReasonSubscriptionPastDue, RequiresPayment: true}
	}

	if now.Before(sub.CurrentPeriodEnd) {
		return models.AccessResult{HasAccess: true}
	}
	grace := time.Duration(models.DefaultGracePeriodHours) * time.Hour
	if link.Subscription != nil {
		grace = time.Duration(link.Subscription.GraceHours()) * time.Hour
	}
	if IsWithinGracePeriod(sub.NextPaymentDue, grace, now) {
		return models.AccessResult{HasAccess: true}
	}
	return models.AccessResult{Reason: models.ReasonSubscriptionPastDue, RequiresPayment: true}
}

// MarkPastDue moves an active subscription to past_due.
func (m *Manager) MarkPastDue(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if sub.Status != models.SubscriptionActive {
		return nil, fmt.Errorf("%w: %s -> past_due", models.ErrInvalidTransition, sub.Status)
	}
	return m.transition(ctx, sub, models.SubscriptionPastDue, nil)
}

// Expire ends a subscription whose grace window or cycle cap has run out.
func (m *Manager) Expire(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if sub.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s -> expired", models.ErrInvalidTransition, sub.Status)
	}
	return m.transition(ctx, sub, models.SubscriptionExpired, nil)
}

// CancelSubscription cancels renewal. With immediate the current period is
// cut short; otherwise access continues until the period ends.
func (m *Manager) CancelSubscription(ctx context.Context, sub *models.Subscription, immediate bool) (*models.Subscription, error) {
	if sub.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s -> cancelled", models.ErrInvalidTransition, sub.Status)
	}
	return m.transition(ctx, sub, models.SubscriptionCancelled, func(now time.Time) {
		sub.CancelledAt = &now
		if immediate {
			sub.CurrentPeriodEnd = now
		}
	})
}

// PauseSubscription suspends an active or past_due subscription.
func (m *Manager) PauseSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if sub.Status != models.SubscriptionActive && sub.Status != models.SubscriptionPastDue {
		return nil, fmt.Errorf("%w: %s -> paused", models.ErrInvalidTransition, sub.Status)
	}
	return m.transition(ctx, sub, models.SubscriptionPaused, func(now time.Time) {
		sub.PausedAt = &now
	})
}

// ResumeSubscription reactivates a paused subscription. The time spent paused
// is added to the current period.
func (m *Manager) ResumeSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if sub.Status != models.SubscriptionPaused {
		return nil, fmt.Errorf("%w: %s -> active", models.ErrInvalidTransition, sub.Status)
	}
	return m.transition(ctx, sub, models.SubscriptionActive, func(now time.Time) {
		if sub.PausedAt != nil && now.After(*sub.PausedAt) {
			paused := now.Sub(*sub.PausedAt)
			sub.CurrentPeriodEnd = sub.CurrentPeriodEnd.Add(paused)
			sub.NextPaymentDue = sub.NextPaymentDue.Add(paused)
		}
		sub.PausedAt = nil
	})
}

func (m *Manager) transition(ctx context.Context, sub *models.Subscription, to models.SubscriptionStatus, mutate func(now time.Time)) (*models.Subscription, error) {
	now := m.now()
	from := sub.Status
	sub.Status = to
	sub.UpdatedAt = now
	if mutate != nil {
		mutate(now)
	}
	if err := m.storage.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	m.logger.Infow("Subscription status changed", "id", sub.ID, "from", from, "to", to)
	return sub, nil
}
