package models

import "time"

// WebhookEvent names an event delivered to the configured webhook endpoint.
type WebhookEvent string

const (
	EventPaymentConfirmed WebhookEvent = "payment.confirmed"
	EventPaymentPending   WebhookEvent = "payment.pending"
	EventPaymentFailed    WebhookEvent = "payment.failed"
	EventPaymentUnderpaid WebhookEvent = "payment.underpaid"

	EventLinkCreated  WebhookEvent = "link.created"
	EventLinkDisabled WebhookEvent = "link.disabled"
	EventLinkExpired  WebhookEvent = "link.expired"

	EventSubscriptionCreated     WebhookEvent = "subscription.created"
	EventSubscriptionRenewed     WebhookEvent = "subscription.renewed"
	EventSubscriptionCancelled   WebhookEvent = "subscription.cancelled"
	EventSubscriptionPaused      WebhookEvent = "subscription.paused"
	EventSubscriptionResumed     WebhookEvent = "subscription.resumed"
	EventSubscriptionPastDue     WebhookEvent = "subscription.past_due"
	EventSubscriptionExpired     WebhookEvent = "subscription.expired"
	EventSubscriptionTrialEnding WebhookEvent = "subscription.trial_ending"
	EventSubscriptionPaymentDue  WebhookEvent = "subscription.payment_due"
)

// AllWebhookEvents lists every event the gateway can emit.
var AllWebhookEvents = []WebhookEvent{
	EventPaymentConfirmed, EventPaymentPending, EventPaymentFailed, EventPaymentUnderpaid,
	EventLinkCreated, EventLinkDisabled, EventLinkExpired,
	EventSubscriptionCreated, EventSubscriptionRenewed, EventSubscriptionCancelled,
	EventSubscriptionPaused, EventSubscriptionResumed, EventSubscriptionPastDue,
	EventSubscriptionExpired, EventSubscriptionTrialEnding, EventSubscriptionPaymentDue,
}

// WebhookPayload is the JSON body POSTed to the webhook endpoint.
type WebhookPayload struct {
	Event     WebhookEvent `json:"event"`
	Timestamp time.Time    `json:"timestamp"`
	EventID   string       `json:"eventId"`
	Data      WebhookData  `json:"data"`
}

// WebhookData carries the entity the event is about. Type is one of
// "payment", "link" or "subscription". Link events carry the link under
// "link"; payment and subscription events reference it as "paymentLink".
type WebhookData struct {
	Type         string        `json:"type"`
	Payment      *Payment      `json:"payment,omitempty"`
	Link         *PaymentLink  `json:"link,omitempty"`
	PaymentLink  *PaymentLink  `json:"paymentLink,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
	// Message is a human readable note, e.g. a failure reason.
	Message string     `json:"message,omitempty"`
	Reason  ReasonCode `json:"reason,omitempty"`
	// Expected and Actual amounts are set for underpaid payments.
	ExpectedAmount string `json:"expectedAmount,omitempty"`
	ActualAmount   string `json:"actualAmount,omitempty"`
	TxHash         string `json:"txHash,omitempty"`
	ChainID        int64  `json:"chainId,omitempty"`
}

// LinkRef returns the link the event is about, whichever key carries it.
func (d WebhookData) LinkRef() *PaymentLink {
	if d.Link != nil {
		return d.Link
	}
	return d.PaymentLink
}

// DeliveryResult reports the outcome of one webhook delivery.
type DeliveryResult struct {
	Success    bool          `json:"success"`
	StatusCode int           `json:"statusCode,omitempty"`
	Error      string        `json:"error,omitempty"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"duration"`
	// Skipped is set when the event is filtered out by the allow list.
	Skipped bool `json:"skipped,omitempty"`
}
