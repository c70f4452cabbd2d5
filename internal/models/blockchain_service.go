package models

import "context"

// ChainType selects the verifier implementation for a chain.
type ChainType string

const (
	ChainTypeEVM    ChainType = "evm"
	ChainTypeSolana ChainType = "solana"
	ChainTypeCore   ChainType = "core"
)

// MockRPCURL is the RPC endpoint sentinel that routes a chain to a mock verifier.
const MockRPCURL = "mock"

// ChainConfig describes one chain the gateway accepts payments on.
type ChainConfig struct {
	ChainID       int64     `json:"chainId"`
	Name          string    `json:"name"`
	RPCURL        string    `json:"rpcUrl"`
	Symbol        string    `json:"symbol"`
	Confirmations int       `json:"confirmations,omitempty"`
	Type          ChainType `json:"type,omitempty"`
}

// IsMock reports whether the chain has no real RPC endpoint.
func (c ChainConfig) IsMock() bool {
	return c.RPCURL == MockRPCURL
}

// VerificationStatus is the verdict of a verifier on one transaction.
type VerificationStatus string

const (
	VerificationNotFound  VerificationStatus = "not_found"
	VerificationPending   VerificationStatus = "pending"
	VerificationConfirmed VerificationStatus = "confirmed"
	VerificationFailed    VerificationStatus = "failed"
	VerificationUnderpaid VerificationStatus = "underpaid"
)

// VerifyRequest is the expected payment a transaction is checked against.
type VerifyRequest struct {
	TxHash    string
	Recipient string
	// Amount is a decimal string in whole token units.
	Amount string
	// TokenSymbol selects a token transfer when it differs from the chain's native symbol.
	TokenSymbol string
}

// VerifyResult is the outcome of verifying one transaction.
type VerifyResult struct {
	Status       VerificationStatus `json:"status"`
	ActualAmount string             `json:"actualAmount,omitempty"`
	FromAddress  string             `json:"fromAddress,omitempty"`
	Message      string             `json:"message,omitempty"`
}

// Verifier proves that a transaction paid the expected recipient and amount.
// RPC failures are returned as errors; callers convert them into a failed result.
type Verifier interface {
	VerifyPayment(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
	Chain() ChainConfig
}

// Normalized fills in defaults: one confirmation, and chain type evm
// except for the Solana cluster ids 101, 102 and 103.
func (c ChainConfig) Normalized() ChainConfig {
	if c.Confirmations <= 0 {
		c.Confirmations = 1
	}
	if c.Type == "" {
		switch c.ChainID {
		case 101, 102, 103:
			c.Type = ChainTypeSolana
		default:
			c.Type = ChainTypeEVM
		}
	}
	return c
}
