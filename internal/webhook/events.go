package webhook

import (
	"time"

	"github.com/google/uuid"

	"github.com/core-coin/payportal/internal/models"
)

// NewPayload wraps data into a payload with a fresh event id.
func NewPayload(event models.WebhookEvent, data models.WebhookData) *models.WebhookPayload {
	return &models.WebhookPayload{
		Event:     event,
		Timestamp: time.Now().UTC(),
		EventID:   uuid.NewString(),
		Data:      data,
	}
}

// The event builders snapshot the entities they are given: payloads are
// serialised later by the delivery worker while callers keep mutating.

func PaymentEvent(event models.WebhookEvent, payment *models.Payment, link *models.PaymentLink) *models.WebhookPayload {
	pay := *payment
	return NewPayload(event, models.WebhookData{
		Type:        "payment",
		Payment:     &pay,
		PaymentLink: snapshotLink(link),
		TxHash:      payment.TxHash,
		ChainID:     payment.ChainID,
	})
}

func LinkEvent(event models.WebhookEvent, link *models.PaymentLink) *models.WebhookPayload {
	return NewPayload(event, models.WebhookData{Type: "link", Link: snapshotLink(link)})
}

func SubscriptionEvent(event models.WebhookEvent, sub *models.Subscription, link *models.PaymentLink) *models.WebhookPayload {
	s := *sub
	return NewPayload(event, models.WebhookData{Type: "subscription", Subscription: &s, PaymentLink: snapshotLink(link)})
}

func snapshotLink(link *models.PaymentLink) *models.PaymentLink {
	if link == nil {
		return nil
	}
	l := *link
	return &l
}
