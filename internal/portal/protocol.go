package portal

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/core-coin/payportal/internal/models"
	"github.com/core-coin/payportal/internal/webhook"
)

// GenerateNonce returns a random 128 bit hex token.
func GenerateNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// SignBody computes the HMAC-SHA256 of the body serialised without its
// signature field.
func SignBody(body *models.Protocol402Body, secret string) (string, error) {
	unsigned := *body
	unsigned.Signature = ""
	raw, err := json.Marshal(&unsigned)
	if err != nil {
		return "", fmt.Errorf("failed to marshal 402 body: %w", err)
	}
	return webhook.Sign(raw, secret), nil
}

// VerifyBody checks a signature produced by SignBody.
func VerifyBody(body *models.Protocol402Body, secret string) bool {
	unsigned := *body
	unsigned.Signature = ""
	raw, err := json.Marshal(&unsigned)
	if err != nil {
		return false
	}
	return webhook.VerifySignature(raw, body.Signature, secret)
}

// IsExpired reports whether the link is past its expiry at now.
func IsExpired(link *models.PaymentLink, now time.Time) bool {
	return link.ExpiresAt != nil && now.After(*link.ExpiresAt)
}

// IsLimitReached reports whether the link's usage cap is used up.
func IsLimitReached(link *models.PaymentLink) bool {
	return link.MaxUses != nil && link.UsedCount >= *link.MaxUses
}

func (p *Portal) callbackURL(linkID, action string) string {
	return fmt.Sprintf("%s%s/%s/%s", p.config.BaseURL, p.config.BasePath, linkID, action)
}

// build402 assembles the payment offer for link. sub is the caller's
// existing subscription, if any.
func (p *Portal) build402(link *models.PaymentLink, sub *models.Subscription) (*models.Protocol402Body, error) {
	body := &models.Protocol402Body{
		Protocol:      models.Protocol402,
		PaymentLinkID: link.ID,
		Resource:      models.ResourceInfo{Description: link.Description},
		Payment: models.PaymentTerms{
			ChainID:        link.Price.ChainID,
			TokenSymbol:    link.Price.TokenSymbol,
			Amount:         link.Price.Amount,
			Recipient:      link.RecipientAddress,
			TimeoutSeconds: int(p.config.PaymentTimeout / time.Second),
		},
		PaymentOptions: link.PaymentOptions,
		Callbacks: models.Callbacks{
			Status:  p.callbackURL(link.ID, "status"),
			Confirm: p.callbackURL(link.ID, "confirm"),
		},
		Nonce: GenerateNonce(),
	}

	if cfg := link.Subscription; cfg != nil {
		terms := &models.SubscriptionTerms{
			Interval:      cfg.Interval,
			IntervalCount: cfg.Count(),
			TrialDays:     cfg.TrialDays,
		}
		if sub != nil {
			due := sub.NextPaymentDue
			terms.ExistingSubscriptionID = sub.ID
			terms.SubscriptionStatus = sub.Status
			terms.NextPaymentDue = &due
		}
		body.Subscription = terms
	}

	if p.config.SignatureSecret != "" {
		sig, err := SignBody(body, p.config.SignatureSecret)
		if err != nil {
			return nil, err
		}
		body.Signature = sig
	}
	return body, nil
}
