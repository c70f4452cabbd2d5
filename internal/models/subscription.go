package models

import "time"

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// IsTerminal reports whether no further transitions are possible.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionCancelled || s == SubscriptionExpired
}

// Subscription binds a subscriber address to a subscription payment link.
// There is exactly one per (PaymentLinkID, SubscriberAddress).
type Subscription struct {
	ID                 string             `json:"id" gorm:"column:id;primaryKey"`
	PaymentLinkID      string             `json:"paymentLinkId" gorm:"column:payment_link_id;uniqueIndex:idx_subscriptions_link_subscriber;not null"`
	SubscriberAddress  string             `json:"subscriberAddress" gorm:"column:subscriber_address;uniqueIndex:idx_subscriptions_link_subscriber;not null"`
	Status             SubscriptionStatus `json:"status" gorm:"column:status;index;not null"`
	CurrentPeriodStart time.Time          `json:"currentPeriodStart" gorm:"column:current_period_start"`
	CurrentPeriodEnd   time.Time          `json:"currentPeriodEnd" gorm:"column:current_period_end"`
	NextPaymentDue     time.Time          `json:"nextPaymentDue" gorm:"column:next_payment_due;index"`
	CycleCount         int                `json:"cycleCount" gorm:"column:cycle_count;not null;default:0"`
	LastPaymentID      string             `json:"lastPaymentId,omitempty" gorm:"column:last_payment_id"`
	CreatedAt          time.Time          `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt          time.Time          `json:"updatedAt" gorm:"column:updated_at"`
	CancelledAt        *time.Time         `json:"cancelledAt,omitempty" gorm:"column:cancelled_at"`
	PausedAt           *time.Time         `json:"pausedAt,omitempty" gorm:"column:paused_at"`
	TrialEndsAt        *time.Time         `json:"trialEndsAt,omitempty" gorm:"column:trial_ends_at"`
}

// TableName specifies the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}

// AccessResult is the outcome of a subscription access check.
type AccessResult struct {
	HasAccess       bool       `json:"hasAccess"`
	Reason          ReasonCode `json:"reason,omitempty"`
	RequiresPayment bool       `json:"requiresPayment"`
}
