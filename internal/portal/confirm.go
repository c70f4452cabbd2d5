package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/internal/subscription"
	"github.com/core-coin/payportal/internal/webhook"
)

// paymentTerms is the price a submitted transaction is checked against.
type paymentTerms struct {
	chainID   int64
	token     string
	amount    string
	recipient string
}

// matchTerms selects the primary price when it is on chainID, otherwise the
// first payment option on chainID.
func matchTerms(link *models.PaymentLink, chainID int64) (paymentTerms, bool) {
	if link.Price.ChainID == chainID {
		return paymentTerms{
			chainID:   chainID,
			token:     link.Price.TokenSymbol,
			amount:    link.Price.Amount,
			recipient: link.RecipientAddress,
		}, true
	}
	for _, opt := range link.PaymentOptions {
		if opt.ChainID != chainID {
			continue
		}
		recipient := opt.RecipientAddress
		if recipient == "" {
			recipient = link.RecipientAddress
		}
		return paymentTerms{chainID: chainID, token: opt.TokenSymbol, amount: opt.Amount, recipient: recipient}, true
	}
	return paymentTerms{}, false
}

func failedResult(chainID int64, reason models.ReasonCode, message string) *models.ConfirmPaymentResult {
	if message == "" {
		message = reason.Message()
	}
	return &models.ConfirmPaymentResult{
		Status:  models.ConfirmFailed,
		Reason:  reason,
		Message: message,
		ChainID: chainID,
	}
}

// ConfirmPayment verifies txHash against the link's price on the requested
// chain and applies the outcome. Confirming an already confirmed
// transaction returns confirmed again without side effects.
func (p *Portal) ConfirmPayment(ctx context.Context, linkID string, input models.ConfirmPaymentInput) (*models.ConfirmPaymentResult, error) {
	txHash := strings.TrimSpace(input.TxHash)
	if txHash == "" {
		return nil, models.Invalid("txHash is required")
	}
	link, err := p.loadLink(ctx, linkID)
	if err != nil {
		return nil, err
	}

	chainID := input.ChainID
	if chainID == 0 {
		chainID = link.Price.ChainID
	}
	terms, ok := matchTerms(link, chainID)
	if !ok {
		return failedResult(chainID, models.ReasonChainNotSupported, ""), nil
	}
	if _, ok := p.verifiers.Get(chainID); !ok {
		return failedResult(chainID, models.ReasonChainNotSupported, fmt.Sprintf("chain %d is not configured", chainID)), nil
	}

	existing, err := p.storage.GetPaymentByTxHash(ctx, chainID, txHash)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.PaymentLinkID != link.ID {
			p.logger.Warnw("Transaction replayed on another payment link", "link", link.ID, "paidLink", existing.PaymentLinkID, "txHash", txHash)
			return failedResult(chainID, models.ReasonAccessDenied, "transaction was already used for another payment link"), nil
		}
		if existing.Confirmed {
			return p.alreadyConfirmed(ctx, link, existing, input.SubscriberAddress), nil
		}
	}

	if perr := p.checkLink(ctx, link); perr != nil {
		return nil, perr
	}

	subscriber := canonicalAddress(input.SubscriberAddress)
	if link.IsSubscription() && subscriber != "" {
		if err := p.validateAddress(chainID, subscriber); err != nil {
			return nil, err
		}
		if err := p.checkSubscriber(ctx, link, subscriber); err != nil {
			return nil, err
		}
	}

	res := p.verifiers.Verify(ctx, chainID, models.VerifyRequest{
		TxHash:      txHash,
		Recipient:   terms.recipient,
		Amount:      terms.amount,
		TokenSymbol: terms.token,
	})
	p.logger.Debugw("Payment verified", "link", link.ID, "chainId", chainID, "txHash", txHash, "status", res.Status)

	switch res.Status {
	case models.VerificationConfirmed:
		if link.IsSubscription() {
			if subscriber == "" {
				subscriber = canonicalAddress(res.FromAddress)
			}
			// The state may have changed during verification, or the
			// subscriber is only known now from the payer.
			if subscriber != "" {
				if err := p.checkSubscriber(ctx, link, subscriber); err != nil {
					p.logger.Warnw("Payment refused for subscriber", "link", link.ID, "subscriber", subscriber, "txHash", txHash, "error", err)
					return nil, err
				}
			}
		}
		return p.settle(ctx, link, terms, txHash, res, subscriber)
	case models.VerificationPending:
		return p.recordPending(ctx, link, terms, txHash, res)
	case models.VerificationUnderpaid:
		return p.rejectUnderpaid(ctx, link, terms, txHash, res), nil
	default:
		return p.rejectFailed(ctx, link, terms, txHash, res), nil
	}
}

// checkSubscriber refuses payments for subscriptions that cannot be renewed,
// including active ones whose cycle cap is already paid.
func (p *Portal) checkSubscriber(ctx context.Context, link *models.PaymentLink, subscriber string) error {
	sub, err := p.storage.GetSubscriptionByAddress(ctx, link.ID, subscriber)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	switch sub.Status {
	case models.SubscriptionCancelled:
		return models.NewProtocolError(models.KindForbidden, models.ReasonSubscriptionCancelled)
	case models.SubscriptionPaused:
		return models.NewProtocolError(models.KindForbidden, models.ReasonSubscriptionPaused)
	case models.SubscriptionExpired:
		return models.NewProtocolError(models.KindForbidden, p.subscriptions.CheckAccess(sub, link).Reason)
	}
	if subscription.CyclesExhausted(sub, link.Subscription) {
		return models.NewProtocolError(models.KindForbidden, models.ReasonSubscriptionMaxCycles)
	}
	return nil
}

func (p *Portal) newPayment(link *models.PaymentLink, terms paymentTerms, txHash string, res *models.VerifyResult) *models.Payment {
	amount := res.ActualAmount
	if amount == "" {
		amount = terms.amount
	}
	return &models.Payment{
		ID:            uuid.NewString(),
		PaymentLinkID: link.ID,
		ChainID:       terms.chainID,
		TxHash:        txHash,
		FromAddress:   res.FromAddress,
		Amount:        amount,
		TokenSymbol:   terms.token,
		CreatedAt:     p.now(),
	}
}

// settle records a verified payment. Only the caller that flips the payment
// to confirmed applies the side effects.
func (p *Portal) settle(ctx context.Context, link *models.PaymentLink, terms paymentTerms, txHash string, res *models.VerifyResult, subscriber string) (*models.ConfirmPaymentResult, error) {
	payment, _, err := p.storage.GetOrCreatePayment(ctx, p.newPayment(link, terms, txHash, res))
	if err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}
	if payment.PaymentLinkID != link.ID {
		return failedResult(terms.chainID, models.ReasonAccessDenied, "transaction was already used for another payment link"), nil
	}

	now := p.now()
	amount := payment.Amount
	if res.ActualAmount != "" {
		amount = res.ActualAmount
	}
	flipped, err := p.storage.MarkPaymentConfirmed(ctx, payment.ID, res.FromAddress, amount, now)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm payment: %w", err)
	}
	payment.Confirmed = true
	payment.ConfirmedAt = &now
	payment.FromAddress = res.FromAddress
	payment.Amount = amount

	result := &models.ConfirmPaymentResult{
		Status:      models.ConfirmConfirmed,
		Message:     "payment confirmed",
		ChainID:     terms.chainID,
		TokenSymbol: terms.token,
		PaymentID:   payment.ID,
	}
	if !flipped {
		result.Message = "payment already confirmed"
		return result, nil
	}

	used, err := p.storage.IncrementLinkUsage(ctx, link.ID)
	if err != nil {
		p.logger.Errorw("Failed to increment link usage", "link", link.ID, "error", err)
	} else {
		link.UsedCount = used
	}
	p.logger.Infow("Payment confirmed", "link", link.ID, "payment", payment.ID, "chainId", terms.chainID, "txHash", txHash, "amount", amount, "token", terms.token)
	p.notify(ctx, webhook.PaymentEvent(models.EventPaymentConfirmed, payment, link))

	if link.IsSubscription() {
		sub, err := p.creditSubscription(ctx, link, payment, subscriber)
		if err != nil {
			p.logger.Errorw("Failed to credit subscription", "link", link.ID, "subscriber", subscriber, "payment", payment.ID, "error", err)
			result.Message = "payment confirmed, subscription update failed"
		} else {
			result.SubscriptionID = sub.ID
		}
	}
	return result, nil
}

// creditSubscription applies a confirmed payment to the subscriber's
// subscription, creating it on first payment.
func (p *Portal) creditSubscription(ctx context.Context, link *models.PaymentLink, payment *models.Payment, subscriber string) (*models.Subscription, error) {
	sub, created, err := p.subscriptions.CreateSubscription(ctx, link, subscriber)
	if err != nil {
		return nil, err
	}
	if created {
		p.notify(ctx, webhook.SubscriptionEvent(models.EventSubscriptionCreated, sub, link))
		if sub.TrialEndsAt == nil {
			return p.subscriptions.RecordInitialPayment(ctx, sub, payment)
		}
	}

	sub, err = p.subscriptions.ProcessPayment(ctx, sub, payment, link)
	if err != nil {
		return nil, err
	}
	event := models.EventSubscriptionRenewed
	if sub.Status == models.SubscriptionExpired {
		event = models.EventSubscriptionExpired
	}
	p.notify(ctx, webhook.SubscriptionEvent(event, sub, link))
	return sub, nil
}

func (p *Portal) alreadyConfirmed(ctx context.Context, link *models.PaymentLink, payment *models.Payment, subscriber string) *models.ConfirmPaymentResult {
	result := &models.ConfirmPaymentResult{
		Status:      models.ConfirmConfirmed,
		Message:     "payment already confirmed",
		ChainID:     payment.ChainID,
		TokenSymbol: payment.TokenSymbol,
		PaymentID:   payment.ID,
	}
	if link.IsSubscription() {
		if subscriber == "" {
			subscriber = payment.FromAddress
		}
		if sub, err := p.storage.GetSubscriptionByAddress(ctx, link.ID, canonicalAddress(subscriber)); err == nil {
			result.SubscriptionID = sub.ID
		}
	}
	return result
}

func (p *Portal) recordPending(ctx context.Context, link *models.PaymentLink, terms paymentTerms, txHash string, res *models.VerifyResult) (*models.ConfirmPaymentResult, error) {
	payment, created, err := p.storage.GetOrCreatePayment(ctx, p.newPayment(link, terms, txHash, res))
	if err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}
	if payment.PaymentLinkID != link.ID {
		return failedResult(terms.chainID, models.ReasonAccessDenied, "transaction was already used for another payment link"), nil
	}
	if created {
		p.notify(ctx, webhook.PaymentEvent(models.EventPaymentPending, payment, link))
	}

	message := res.Message
	if message == "" {
		message = "transaction is awaiting confirmations"
	}
	return &models.ConfirmPaymentResult{
		Status:      models.ConfirmPending,
		Message:     message,
		ChainID:     terms.chainID,
		TokenSymbol: terms.token,
		PaymentID:   payment.ID,
	}, nil
}

func (p *Portal) rejectUnderpaid(ctx context.Context, link *models.PaymentLink, terms paymentTerms, txHash string, res *models.VerifyResult) *models.ConfirmPaymentResult {
	message := fmt.Sprintf("paid %s %s, required %s %s", res.ActualAmount, terms.token, terms.amount, terms.token)
	p.logger.Warnw("Payment underpaid", "link", link.ID, "chainId", terms.chainID, "txHash", txHash, "expected", terms.amount, "actual", res.ActualAmount)
	linkCopy := *link
	p.notify(ctx, webhook.NewPayload(models.EventPaymentUnderpaid, models.WebhookData{
		Type:           "payment",
		Payment:        p.newPayment(link, terms, txHash, res),
		PaymentLink:    &linkCopy,
		Message:        message,
		Reason:         models.ReasonPaymentUnderpaid,
		ExpectedAmount: terms.amount,
		ActualAmount:   res.ActualAmount,
		TxHash:         txHash,
		ChainID:        terms.chainID,
	}))

	result := failedResult(terms.chainID, models.ReasonPaymentUnderpaid, message)
	result.TokenSymbol = terms.token
	return result
}

func (p *Portal) rejectFailed(ctx context.Context, link *models.PaymentLink, terms paymentTerms, txHash string, res *models.VerifyResult) *models.ConfirmPaymentResult {
	message := res.Message
	if message == "" {
		message = "transaction not found"
	}
	p.logger.Infow("Payment verification failed", "link", link.ID, "chainId", terms.chainID, "txHash", txHash, "status", res.Status, "message", message)
	linkCopy := *link
	p.notify(ctx, webhook.NewPayload(models.EventPaymentFailed, models.WebhookData{
		Type:        "payment",
		Payment:     p.newPayment(link, terms, txHash, res),
		PaymentLink: &linkCopy,
		Message:     message,
		TxHash:      txHash,
		ChainID:     terms.chainID,
	}))

	return &models.ConfirmPaymentResult{
		Status:      models.ConfirmFailed,
		Message:     message,
		ChainID:     terms.chainID,
		TokenSymbol: terms.token,
	}
}
