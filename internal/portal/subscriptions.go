package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/internal/subscription"
	"github.com/core-coin/payportal/internal/webhook"
)

var errSubscriptionNotFound = &models.ProtocolError{Kind: models.KindNotFound, Message: "subscription not found"}

// CreateSubscription subscribes address to a subscription link. Subscribing
// twice returns the existing subscription.
func (p *Portal) CreateSubscription(ctx context.Context, linkID, subscriberAddress string) (*models.Subscription, error) {
	link, err := p.loadLink(ctx, linkID)
	if err != nil {
		return nil, err
	}
	if perr := p.checkLink(ctx, link); perr != nil {
		return nil, perr
	}
	if !link.IsSubscription() {
		return nil, models.Invalid("payment link %s is not a subscription link", link.ID)
	}
	address := canonicalAddress(subscriberAddress)
	if address == "" {
		return nil, models.Invalid("subscriberAddress is required")
	}
	if err := p.validateAddress(link.Price.ChainID, address); err != nil {
		return nil, err
	}

	sub, created, err := p.subscriptions.CreateSubscription(ctx, link, address)
	if err != nil {
		return nil, err
	}
	if created {
		p.notify(ctx, webhook.SubscriptionEvent(models.EventSubscriptionCreated, sub, link))
	}
	return sub, nil
}

func (p *Portal) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	sub, err := p.storage.GetSubscription(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, errSubscriptionNotFound
	}
	return sub, err
}

func (p *Portal) GetSubscriptionByAddress(ctx context.Context, linkID, subscriberAddress string) (*models.Subscription, error) {
	sub, err := p.storage.GetSubscriptionByAddress(ctx, linkID, canonicalAddress(subscriberAddress))
	if errors.Is(err, models.ErrNotFound) {
		return nil, errSubscriptionNotFound
	}
	return sub, err
}

// ListSubscriptions lists the subscriptions of one link, or all when linkID is empty.
func (p *Portal) ListSubscriptions(ctx context.Context, linkID string) ([]*models.Subscription, error) {
	return p.storage.ListSubscriptions(ctx, linkID)
}

func (p *Portal) CancelSubscription(ctx context.Context, id string, immediate bool) (*models.Subscription, error) {
	return p.changeSubscription(ctx, id, models.EventSubscriptionCancelled, func(sub *models.Subscription) (*models.Subscription, error) {
		return p.subscriptions.CancelSubscription(ctx, sub, immediate)
	})
}

func (p *Portal) PauseSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	return p.changeSubscription(ctx, id, models.EventSubscriptionPaused, func(sub *models.Subscription) (*models.Subscription, error) {
		return p.subscriptions.PauseSubscription(ctx, sub)
	})
}

func (p *Portal) ResumeSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	return p.changeSubscription(ctx, id, models.EventSubscriptionResumed, func(sub *models.Subscription) (*models.Subscription, error) {
		return p.subscriptions.ResumeSubscription(ctx, sub)
	})
}

func (p *Portal) changeSubscription(ctx context.Context, id string, event models.WebhookEvent, change func(*models.Subscription) (*models.Subscription, error)) (*models.Subscription, error) {
	sub, err := p.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	sub, err = change(sub)
	if errors.Is(err, models.ErrInvalidTransition) {
		return nil, models.Invalid("%v", err)
	}
	if err != nil {
		return nil, err
	}

	link, err := p.storage.GetPaymentLink(ctx, sub.PaymentLinkID)
	if err != nil {
		p.logger.Warnw("Subscription link not found", "subscription", sub.ID, "link", sub.PaymentLinkID, "error", err)
		link = nil
	}
	p.notify(ctx, webhook.SubscriptionEvent(event, sub, link))
	return sub, nil
}

// handleDueSubscription is the due check callback. It expires subscriptions
// whose cycle cap is used up or that stayed past_due for a whole interval,
// moves those past their grace window to past_due, and otherwise reminds the
// subscriber once per due date.
func (p *Portal) handleDueSubscription(ctx context.Context, sub *models.Subscription) {
	link, err := p.storage.GetPaymentLink(ctx, sub.PaymentLinkID)
	if err != nil {
		p.logger.Errorw("Failed to load link of due subscription", "subscription", sub.ID, "link", sub.PaymentLinkID, "error", err)
		return
	}
	cfg := link.Subscription
	if cfg == nil {
		p.logger.Warnw("Due subscription on a non-subscription link", "subscription", sub.ID, "link", link.ID)
		return
	}

	now := p.now()
	grace := time.Duration(cfg.GraceHours()) * time.Hour
	event, err := p.dueTransition(ctx, sub, link, now, grace)
	if err != nil {
		p.logger.Errorw("Failed to handle due subscription", "subscription", sub.ID, "error", err)
		return
	}
	if event != "" {
		p.notify(ctx, webhook.SubscriptionEvent(event, sub, link))
	}
}

func (p *Portal) dueTransition(ctx context.Context, sub *models.Subscription, link *models.PaymentLink, now time.Time, grace time.Duration) (models.WebhookEvent, error) {
	switch {
	case subscription.CyclesExhausted(sub, link.Subscription):
		if _, err := p.subscriptions.Expire(ctx, sub); err != nil {
			return "", fmt.Errorf("failed to expire subscription: %w", err)
		}
		return models.EventSubscriptionExpired, nil

	case sub.Status == models.SubscriptionPastDue:
		if now.Before(subscription.PastDueDeadline(sub, link.Subscription, grace)) {
			return "", nil
		}
		if _, err := p.subscriptions.Expire(ctx, sub); err != nil {
			return "", fmt.Errorf("failed to expire past due subscription: %w", err)
		}
		return models.EventSubscriptionExpired, nil

	case !subscription.IsWithinGracePeriod(sub.NextPaymentDue, grace, now):
		if _, err := p.subscriptions.MarkPastDue(ctx, sub); err != nil {
			return "", fmt.Errorf("failed to mark subscription past due: %w", err)
		}
		return models.EventSubscriptionPastDue, nil

	case now.Sub(sub.NextPaymentDue) < p.scheduler.Interval():
		if sub.CycleCount == 0 && sub.TrialEndsAt != nil {
			return models.EventSubscriptionTrialEnding, nil
		}
		return models.EventSubscriptionPaymentDue, nil
	}
	return "", nil
}
