package models

import (
	"context"
	"time"
)

// Storage persists payment links, payments and subscriptions.
// Lookups of absent entities return ErrNotFound.
type Storage interface {
	CreatePaymentLink(ctx context.Context, link *PaymentLink) error
	GetPaymentLink(ctx context.Context, id string) (*PaymentLink, error)
	UpdatePaymentLink(ctx context.Context, link *PaymentLink) error
	DeletePaymentLink(ctx context.Context, id string) error
	ListPaymentLinks(ctx context.Context) ([]*PaymentLink, error)
	// IncrementLinkUsage atomically adds one to usedCount and returns the new value.
	IncrementLinkUsage(ctx context.Context, id string) (int, error)

	// GetOrCreatePayment atomically stores payment unless (ChainID, TxHash)
	// already exists. It returns the surviving record and whether it was created.
	GetOrCreatePayment(ctx context.Context, payment *Payment) (*Payment, bool, error)
	GetPaymentByTxHash(ctx context.Context, chainID int64, txHash string) (*Payment, error)
	GetConfirmedPayment(ctx context.Context, linkID string) (*Payment, error)
	// MarkPaymentConfirmed flips an unconfirmed payment to confirmed. It
	// returns false if the payment was already confirmed.
	MarkPaymentConfirmed(ctx context.Context, id string, fromAddress, amount string, at time.Time) (bool, error)
	ListPayments(ctx context.Context, linkID string) ([]*Payment, error)

	// CreateSubscription stores sub unless one exists for its
	// (PaymentLinkID, SubscriberAddress). It returns the surviving record and
	// whether it was created.
	CreateSubscription(ctx context.Context, sub *Subscription) (*Subscription, bool, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	GetSubscriptionByAddress(ctx context.Context, linkID, address string) (*Subscription, error)
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	ListSubscriptions(ctx context.Context, linkID string) ([]*Subscription, error)
	// GetSubscriptionsDue returns active and past_due subscriptions whose
	// next payment is due before the given time.
	GetSubscriptionsDue(ctx context.Context, before time.Time) ([]*Subscription, error)
}
