package portal

import (
	"context"
	"errors"

	"github.com/core-coin/payportal/internal/metrics"
	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/internal/webhook"
)

// checkLink applies the link level policy. A stored active link found past
// its expiry is flipped to expired and link.expired is fired.
func (p *Portal) checkLink(ctx context.Context, link *models.PaymentLink) *models.ProtocolError {
	if link.Status == models.LinkStatusDisabled {
		return models.NewProtocolError(models.KindForbidden, models.ReasonLinkDisabled)
	}
	if link.Status == models.LinkStatusExpired || IsExpired(link, p.now()) {
		if link.Status == models.LinkStatusActive {
			p.expireLink(ctx, link)
		}
		return models.NewProtocolError(models.KindForbidden, models.ReasonLinkExpired)
	}
	if IsLimitReached(link) {
		return models.NewProtocolError(models.KindForbidden, models.ReasonLinkUsageLimitReached)
	}
	return nil
}

func (p *Portal) expireLink(ctx context.Context, link *models.PaymentLink) {
	link.Status = models.LinkStatusExpired
	link.UpdatedAt = p.now()
	if err := p.storage.UpdatePaymentLink(ctx, link); err != nil {
		p.logger.Errorw("Failed to mark payment link expired", "link", link.ID, "error", err)
		return
	}
	p.logger.Infow("Payment link expired", "link", link.ID)
	p.notify(ctx, webhook.LinkEvent(models.EventLinkExpired, link))
}

// ResolveAccess decides whether the caller is redirected to the protected
// resource, asked to pay, or refused. subscriberAddress identifies the
// caller on subscription links and is ignored otherwise.
func (p *Portal) ResolveAccess(ctx context.Context, linkID, subscriberAddress string) (*models.AccessDecision, error) {
	decision, err := p.resolveAccess(ctx, linkID, subscriberAddress)
	if err != nil {
		return nil, err
	}
	p.recorder.IncCounter(metrics.AccessDecision, map[string]string{"status": string(decision.Kind)})
	return decision, nil
}

func (p *Portal) resolveAccess(ctx context.Context, linkID, subscriberAddress string) (*models.AccessDecision, error) {
	link, err := p.storage.GetPaymentLink(ctx, linkID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.AccessDecision{Kind: models.DecisionNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	if perr := p.checkLink(ctx, link); perr != nil {
		return forbidden(link.ID, perr.Reason, nil), nil
	}

	if !link.IsSubscription() {
		_, err := p.storage.GetConfirmedPayment(ctx, link.ID)
		switch {
		case err == nil:
			return redirect(link), nil
		case errors.Is(err, models.ErrNotFound):
			return p.paymentRequired(link, nil)
		default:
			return nil, err
		}
	}

	if subscriberAddress == "" {
		return p.paymentRequired(link, nil)
	}
	sub, err := p.storage.GetSubscriptionByAddress(ctx, link.ID, canonicalAddress(subscriberAddress))
	if errors.Is(err, models.ErrNotFound) {
		return p.paymentRequired(link, nil)
	}
	if err != nil {
		return nil, err
	}

	access := p.subscriptions.CheckAccess(sub, link)
	switch {
	case access.HasAccess:
		return redirect(link), nil
	case access.RequiresPayment:
		return p.paymentRequired(link, sub)
	default:
		return forbidden(link.ID, access.Reason, map[string]interface{}{
			"existingSubscriptionId": sub.ID,
			"subscriptionStatus":     sub.Status,
		}), nil
	}
}

func (p *Portal) paymentRequired(link *models.PaymentLink, sub *models.Subscription) (*models.AccessDecision, error) {
	body, err := p.build402(link, sub)
	if err != nil {
		return nil, err
	}
	return &models.AccessDecision{Kind: models.DecisionPaymentRequired, PaymentRequired: body}, nil
}

func redirect(link *models.PaymentLink) *models.AccessDecision {
	return &models.AccessDecision{Kind: models.DecisionRedirect, TargetURL: link.TargetURL}
}

func forbidden(linkID string, reason models.ReasonCode, details map[string]interface{}) *models.AccessDecision {
	return &models.AccessDecision{
		Kind:      models.DecisionForbidden,
		Forbidden: models.NewProtocol403Body(linkID, reason, details),
	}
}

// GetStatus reports whether a link has been paid. A paid link stays paid
// after its usage cap or expiry is reached.
func (p *Portal) GetStatus(ctx context.Context, linkID string) (models.LinkStatusView, error) {
	link, err := p.storage.GetPaymentLink(ctx, linkID)
	if errors.Is(err, models.ErrNotFound) {
		return models.StatusNotFound, nil
	}
	if err != nil {
		return "", err
	}
	if link.Status == models.LinkStatusDisabled {
		return models.StatusForbidden, nil
	}
	_, err = p.storage.GetConfirmedPayment(ctx, link.ID)
	if err == nil {
		return models.StatusPaid, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return "", err
	}
	if perr := p.checkLink(ctx, link); perr != nil {
		return models.StatusForbidden, nil
	}
	return models.StatusUnpaid, nil
}
