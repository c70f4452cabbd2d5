package portal

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/internal/subscription"
	"github.com/core-coin/payportal/internal/webhook"
	"github.com/core-coin/payportal/pkg/amount"
)

// CreatePaymentLink validates input and stores a new active link.
func (p *Portal) CreatePaymentLink(ctx context.Context, input models.CreatePaymentLinkInput) (*models.PaymentLink, error) {
	if err := p.validateLinkInput(&input); err != nil {
		return nil, err
	}

	now := p.now()
	link := &models.PaymentLink{
		ID:               uuid.NewString(),
		TargetURL:        input.TargetURL,
		Price:            input.Price,
		PaymentOptions:   input.PaymentOptions,
		RecipientAddress: strings.TrimSpace(input.RecipientAddress),
		Status:           models.LinkStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
		Description:      input.Description,
		MaxUses:          input.MaxUses,
		ExpiresAt:        input.ExpiresAt,
		Subscription:     input.Subscription,
	}
	if err := p.storage.CreatePaymentLink(ctx, link); err != nil {
		return nil, err
	}
	p.logger.Infow("Payment link created", "link", link.ID, "chainId", link.Price.ChainID, "amount", link.Price.Amount, "token", link.Price.TokenSymbol, "subscription", link.IsSubscription())
	p.notify(ctx, webhook.LinkEvent(models.EventLinkCreated, link))
	return link, nil
}

func (p *Portal) validateLinkInput(input *models.CreatePaymentLinkInput) error {
	if input.TargetURL == "" {
		return models.Invalid("targetUrl is required")
	}
	if input.RecipientAddress == "" {
		return models.Invalid("recipientAddress is required")
	}
	if input.Price.TokenSymbol == "" {
		return models.Invalid("price.tokenSymbol is required")
	}
	if !amount.IsPositive(input.Price.Amount) {
		return models.Invalid("price.amount must be a positive decimal, got %q", input.Price.Amount)
	}
	if err := p.validateAddress(input.Price.ChainID, input.RecipientAddress); err != nil {
		return err
	}

	for i, opt := range input.PaymentOptions {
		if opt.TokenSymbol == "" {
			return models.Invalid("paymentOptions[%d].tokenSymbol is required", i)
		}
		if !amount.IsPositive(opt.Amount) {
			return models.Invalid("paymentOptions[%d].amount must be a positive decimal, got %q", i, opt.Amount)
		}
		recipient := opt.RecipientAddress
		if recipient == "" {
			recipient = input.RecipientAddress
		}
		if err := p.validateAddress(opt.ChainID, recipient); err != nil {
			return err
		}
	}

	if input.MaxUses != nil && *input.MaxUses < 1 {
		return models.Invalid("maxUses must be at least 1")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(p.now()) {
		return models.Invalid("expiresAt must be in the future")
	}

	if cfg := input.Subscription; cfg != nil {
		switch {
		case !subscription.ValidInterval(cfg.Interval):
			return models.Invalid("unknown subscription interval %q", cfg.Interval)
		case cfg.IntervalCount < 0:
			return models.Invalid("subscription.intervalCount must not be negative")
		case cfg.TrialDays < 0:
			return models.Invalid("subscription.trialDays must not be negative")
		case cfg.GracePeriodHours != nil && *cfg.GracePeriodHours < 0:
			return models.Invalid("subscription.gracePeriodHours must not be negative")
		case cfg.MaxCycles != nil && *cfg.MaxCycles < 1:
			return models.Invalid("subscription.maxCycles must be at least 1")
		}
	}
	return nil
}

func (p *Portal) GetPaymentLink(ctx context.Context, id string) (*models.PaymentLink, error) {
	return p.loadLink(ctx, id)
}

func (p *Portal) ListPaymentLinks(ctx context.Context) ([]*models.PaymentLink, error) {
	return p.storage.ListPaymentLinks(ctx)
}

// DisablePaymentLink blocks further access to a link. Disabling a disabled
// link is a no-op.
func (p *Portal) DisablePaymentLink(ctx context.Context, id string) (*models.PaymentLink, error) {
	link, err := p.loadLink(ctx, id)
	if err != nil {
		return nil, err
	}
	if link.Status == models.LinkStatusDisabled {
		return link, nil
	}
	link.Status = models.LinkStatusDisabled
	link.UpdatedAt = p.now()
	if err := p.storage.UpdatePaymentLink(ctx, link); err != nil {
		return nil, err
	}
	p.logger.Infow("Payment link disabled", "link", link.ID)
	p.notify(ctx, webhook.LinkEvent(models.EventLinkDisabled, link))
	return link, nil
}

func (p *Portal) DeletePaymentLink(ctx context.Context, id string) error {
	err := p.storage.DeletePaymentLink(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return models.NewProtocolError(models.KindNotFound, models.ReasonLinkNotFound)
	}
	if err == nil {
		p.logger.Infow("Payment link deleted", "link", id)
	}
	return err
}

// ListPayments lists the payments of one link, or all payments when linkID is empty.
func (p *Portal) ListPayments(ctx context.Context, linkID string) ([]*models.Payment, error) {
	return p.storage.ListPayments(ctx, linkID)
}
