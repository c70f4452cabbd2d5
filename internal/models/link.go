package models

import "time"

// LinkStatus is the stored status flag of a payment link.
type LinkStatus string

const (
	LinkStatusActive   LinkStatus = "active"
	LinkStatusDisabled LinkStatus = "disabled"
	LinkStatusExpired  LinkStatus = "expired"
)

// Price is the primary price of a payment link.
type Price struct {
	// Amount is a decimal string, e.g. "0.01".
	Amount      string `json:"amount" gorm:"column:amount;not null"`
	TokenSymbol string `json:"tokenSymbol" gorm:"column:token_symbol;not null"`
	ChainID     int64  `json:"chainId" gorm:"column:chain_id;not null"`
}

// PaymentOption is an alternative way to pay for a link.
type PaymentOption struct {
	TokenSymbol string `json:"tokenSymbol"`
	ChainID     int64  `json:"chainId"`
	Amount      string `json:"amount"`
	// RecipientAddress overrides the link's default recipient when set.
	RecipientAddress string `json:"recipientAddress,omitempty"`
}

// SubscriptionInterval is the billing unit of a subscription link.
type SubscriptionInterval string

const (
	IntervalDaily   SubscriptionInterval = "daily"
	IntervalWeekly  SubscriptionInterval = "weekly"
	IntervalMonthly SubscriptionInterval = "monthly"
	IntervalYearly  SubscriptionInterval = "yearly"
)

// DefaultGracePeriodHours applies when a subscription config leaves it unset.
const DefaultGracePeriodHours = 24

// SubscriptionConfig turns a payment link into a subscription link.
type SubscriptionConfig struct {
	Interval SubscriptionInterval `json:"interval"`
	// IntervalCount bills every N intervals; zero means 1.
	IntervalCount int `json:"intervalCount,omitempty"`
	// GracePeriodHours after the due date during which access is kept; nil means 24.
	GracePeriodHours *int `json:"gracePeriodHours,omitempty"`
	// MaxCycles caps the number of billing cycles; nil means unlimited.
	MaxCycles *int `json:"maxCycles,omitempty"`
	TrialDays int  `json:"trialDays,omitempty"`
}

// Count returns the effective interval count.
func (c *SubscriptionConfig) Count() int {
	if c.IntervalCount <= 0 {
		return 1
	}
	return c.IntervalCount
}

// GraceHours returns the effective grace period in hours.
func (c *SubscriptionConfig) GraceHours() int {
	if c.GracePeriodHours == nil {
		return DefaultGracePeriodHours
	}
	return *c.GracePeriodHours
}

// PaymentLink is a shareable reference to a protected resource plus its price terms.
type PaymentLink struct {
	ID        string `json:"id" gorm:"column:id;primaryKey"`
	TargetURL string `json:"targetUrl" gorm:"column:target_url;not null"`
	// Price is the primary price.
	Price          Price           `json:"price" gorm:"embedded;embeddedPrefix:price_"`
	PaymentOptions []PaymentOption `json:"paymentOptions,omitempty" gorm:"column:payment_options;serializer:json"`
	// RecipientAddress is the default recipient.
	RecipientAddress string              `json:"recipientAddress" gorm:"column:recipient_address;not null"`
	Status           LinkStatus          `json:"status" gorm:"column:status;index;not null"`
	CreatedAt        time.Time           `json:"createdAt" gorm:"column:created_at"`
	UpdatedAt        time.Time           `json:"updatedAt" gorm:"column:updated_at"`
	Description      string              `json:"description,omitempty" gorm:"column:description"`
	MaxUses          *int                `json:"maxUses,omitempty" gorm:"column:max_uses"`
	UsedCount        int                 `json:"usedCount" gorm:"column:used_count;not null;default:0"`
	ExpiresAt        *time.Time          `json:"expiresAt,omitempty" gorm:"column:expires_at"`
	Subscription     *SubscriptionConfig `json:"subscription,omitempty" gorm:"column:subscription;serializer:json"`
}

// TableName specifies the table name for GORM
func (PaymentLink) TableName() string {
	return "payment_links"
}

// IsSubscription reports whether the link bills on a recurring schedule.
func (l *PaymentLink) IsSubscription() bool {
	return l.Subscription != nil
}

// CreatePaymentLinkInput is the admin input for a new payment link.
type CreatePaymentLinkInput struct {
	TargetURL        string              `json:"targetUrl" binding:"required,url"`
	Price            Price               `json:"price" binding:"required"`
	PaymentOptions   []PaymentOption     `json:"paymentOptions"`
	RecipientAddress string              `json:"recipientAddress" binding:"required"`
	Description      string              `json:"description"`
	MaxUses          *int                `json:"maxUses" binding:"omitempty,min=1"`
	ExpiresAt        *time.Time          `json:"expiresAt"`
	Subscription     *SubscriptionConfig `json:"subscription"`
}
