package models

import "time"

const (
	Protocol402 = "402-payportal-v1"
	Protocol403 = "403-payportal-v1"
)

// ReasonCode is the machine readable reason carried by 403 bodies and confirm failures.
type ReasonCode string

const (
	ReasonLinkNotFound          ReasonCode = "LINK_NOT_FOUND"
	ReasonLinkDisabled          ReasonCode = "LINK_DISABLED"
	ReasonLinkExpired           ReasonCode = "LINK_EXPIRED"
	ReasonLinkUsageLimitReached ReasonCode = "LINK_USAGE_LIMIT_REACHED"
	ReasonPaymentUnderpaid      ReasonCode = "PAYMENT_UNDERPAID"
	ReasonChainNotSupported     ReasonCode = "PAYMENT_CHAIN_NOT_SUPPORTED"
	ReasonSubscriptionCancelled ReasonCode = "SUBSCRIPTION_CANCELLED"
	ReasonSubscriptionPastDue   ReasonCode = "SUBSCRIPTION_PAST_DUE"
	ReasonSubscriptionPaused    ReasonCode = "SUBSCRIPTION_PAUSED"
	ReasonSubscriptionExpired   ReasonCode = "SUBSCRIPTION_EXPIRED"
	ReasonSubscriptionMaxCycles ReasonCode = "SUBSCRIPTION_MAX_CYCLES_REACHED"
	ReasonAccessDenied          ReasonCode = "ACCESS_DENIED"
	ReasonInternalError         ReasonCode = "INTERNAL_ERROR"
)

// ReasonMessages maps each reason code to its human readable message.
var ReasonMessages = map[ReasonCode]string{
	ReasonLinkNotFound:          "This payment link does not exist.",
	ReasonLinkDisabled:          "This payment link has been disabled by the owner.",
	ReasonLinkExpired:           "This payment link has expired.",
	ReasonLinkUsageLimitReached: "This payment link has reached its maximum number of uses.",
	ReasonPaymentUnderpaid:      "The payment amount was less than required.",
	ReasonChainNotSupported:     "The selected blockchain is not supported for this payment link.",
	ReasonSubscriptionCancelled: "This subscription has been cancelled.",
	ReasonSubscriptionPastDue:   "This subscription has an outstanding payment.",
	ReasonSubscriptionPaused:    "This subscription is paused.",
	ReasonSubscriptionExpired:   "This subscription has expired.",
	ReasonSubscriptionMaxCycles: "This subscription has reached its maximum number of billing cycles.",
	ReasonAccessDenied:          "Access to this resource is denied.",
	ReasonInternalError:         "An internal error occurred. Please try again later.",
}

// Message returns the human readable message for r.
func (r ReasonCode) Message() string {
	if msg, ok := ReasonMessages[r]; ok {
		return msg
	}
	return string(r)
}

// Protocol402Body is returned with HTTP 402 Payment Required.
type Protocol402Body struct {
	Protocol       string             `json:"protocol"`
	PaymentLinkID  string             `json:"paymentLinkId"`
	Resource       ResourceInfo       `json:"resource"`
	Payment        PaymentTerms       `json:"payment"`
	PaymentOptions []PaymentOption    `json:"paymentOptions,omitempty"`
	Callbacks      Callbacks          `json:"callbacks"`
	Nonce          string             `json:"nonce"`
	Signature      string             `json:"signature,omitempty"`
	Subscription   *SubscriptionTerms `json:"subscription,omitempty"`
}

type ResourceInfo struct {
	Description string `json:"description,omitempty"`
	Preview     string `json:"preview,omitempty"`
}

type PaymentTerms struct {
	ChainID        int64  `json:"chainId"`
	TokenSymbol    string `json:"tokenSymbol"`
	Amount         string `json:"amount"`
	Recipient      string `json:"recipient"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type Callbacks struct {
	Status  string `json:"status"`
	Confirm string `json:"confirm"`
}

// SubscriptionTerms is the subscription block of a 402 body.
type SubscriptionTerms struct {
	Interval               SubscriptionInterval `json:"interval"`
	IntervalCount          int                  `json:"intervalCount"`
	TrialDays              int                  `json:"trialDays,omitempty"`
	ExistingSubscriptionID string               `json:"existingSubscriptionId,omitempty"`
	SubscriptionStatus     SubscriptionStatus   `json:"subscriptionStatus,omitempty"`
	NextPaymentDue         *time.Time           `json:"nextPaymentDue,omitempty"`
}

// Protocol403Body is returned with HTTP 403 Forbidden.
type Protocol403Body struct {
	Protocol      string                 `json:"protocol"`
	PaymentLinkID string                 `json:"paymentLinkId,omitempty"`
	ReasonCode    ReasonCode             `json:"reasonCode"`
	ReasonMessage string                 `json:"reasonMessage"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// NewProtocol403Body builds a 403 body with the default message for reason.
func NewProtocol403Body(linkID string, reason ReasonCode, details map[string]interface{}) *Protocol403Body {
	return &Protocol403Body{
		Protocol:      Protocol403,
		PaymentLinkID: linkID,
		ReasonCode:    reason,
		ReasonMessage: reason.Message(),
		Details:       details,
	}
}

// DecisionKind enumerates the outcomes of an access decision.
type DecisionKind string

const (
	DecisionRedirect        DecisionKind = "redirect"
	DecisionPaymentRequired DecisionKind = "payment-required"
	DecisionForbidden       DecisionKind = "forbidden"
	DecisionNotFound        DecisionKind = "not-found"
)

// AccessDecision is the result of resolving access to a payment link.
// Exactly one of TargetURL, PaymentRequired or Forbidden is set, matching Kind.
type AccessDecision struct {
	Kind            DecisionKind
	TargetURL       string
	PaymentRequired *Protocol402Body
	Forbidden       *Protocol403Body
}

// LinkStatusView is the coarse state reported by the status callback.
type LinkStatusView string

const (
	StatusUnpaid    LinkStatusView = "unpaid"
	StatusPaid      LinkStatusView = "paid"
	StatusForbidden LinkStatusView = "forbidden"
	StatusNotFound  LinkStatusView = "not_found"
)

// ConfirmStatus is the client facing outcome of a confirm attempt.
type ConfirmStatus string

const (
	ConfirmConfirmed ConfirmStatus = "confirmed"
	ConfirmPending   ConfirmStatus = "pending"
	ConfirmFailed    ConfirmStatus = "failed"
)

// ConfirmPaymentInput is the body of the confirm callback.
type ConfirmPaymentInput struct {
	TxHash            string `json:"txHash" binding:"required"`
	ChainID           int64  `json:"chainId,omitempty"`
	SubscriberAddress string `json:"subscriberAddress,omitempty"`
}

// ConfirmPaymentResult is the response of the confirm callback.
type ConfirmPaymentResult struct {
	Status         ConfirmStatus `json:"status"`
	Message        string        `json:"message,omitempty"`
	Reason         ReasonCode    `json:"reason,omitempty"`
	ChainID        int64         `json:"chainId,omitempty"`
	TokenSymbol    string        `json:"tokenSymbol,omitempty"`
	PaymentID      string        `json:"paymentId,omitempty"`
	SubscriptionID string        `json:"subscriptionId,omitempty"`
}
