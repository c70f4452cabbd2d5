package models

import "time"

// Payment is an on-chain payment submitted against a payment link.
// (ChainID, TxHash) is unique.
type Payment struct {
	ID            string     `json:"id" gorm:"column:id;primaryKey"`
	PaymentLinkID string     `json:"paymentLinkId" gorm:"column:payment_link_id;index;not null"`
	ChainID       int64      `json:"chainId" gorm:"column:chain_id;uniqueIndex:idx_payments_chain_tx;not null"`
	TxHash        string     `json:"txHash" gorm:"column:tx_hash;uniqueIndex:idx_payments_chain_tx;not null"`
	FromAddress   string     `json:"fromAddress" gorm:"column:from_address"`
	Amount        string     `json:"amount" gorm:"column:amount"`
	TokenSymbol   string     `json:"tokenSymbol,omitempty" gorm:"column:token_symbol"`
	Confirmed     bool       `json:"confirmed" gorm:"column:confirmed;index"`
	CreatedAt     time.Time  `json:"createdAt" gorm:"column:created_at"`
	ConfirmedAt   *time.Time `json:"confirmedAt,omitempty" gorm:"column:confirmed_at"`
}

// TableName specifies the table name for GORM
func (Payment) TableName() string {
	return "payments"
}
