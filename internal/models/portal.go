package models

import "context"

// PortalService is the protocol engine as seen by the HTTP layer.
type PortalService interface {
	ResolveAccess(ctx context.Context, linkID, subscriberAddress string) (*AccessDecision, error)
	ConfirmPayment(ctx context.Context, linkID string, input ConfirmPaymentInput) (*ConfirmPaymentResult, error)
	GetStatus(ctx context.Context, linkID string) (LinkStatusView, error)

	CreatePaymentLink(ctx context.Context, input CreatePaymentLinkInput) (*PaymentLink, error)
	GetPaymentLink(ctx context.Context, id string) (*PaymentLink, error)
	ListPaymentLinks(ctx context.Context) ([]*PaymentLink, error)
	DisablePaymentLink(ctx context.Context, id string) (*PaymentLink, error)
	DeletePaymentLink(ctx context.Context, id string) error
	ListPayments(ctx context.Context, linkID string) ([]*Payment, error)

	CreateSubscription(ctx context.Context, linkID, subscriberAddress string) (*Subscription, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	GetSubscriptionByAddress(ctx context.Context, linkID, subscriberAddress string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, linkID string) ([]*Subscription, error)
	CancelSubscription(ctx context.Context, id string, immediate bool) (*Subscription, error)
	PauseSubscription(ctx context.Context, id string) (*Subscription, error)
	ResumeSubscription(ctx context.Context, id string) (*Subscription, error)

	Chains() []ChainConfig
}

// APIServer is the public HTTP surface.
type APIServer interface {
	Start()
	Shutdown() error
}
