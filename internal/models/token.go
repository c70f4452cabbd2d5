package models

// Token is a fungible token accepted for payment on one chain.
type Token struct {
	// ChainID is the chain the token lives on.
	ChainID int64 `json:"chainId"`
	// Address is the contract address (EVM, Core) or mint (Solana).
	Address string `json:"address"`
	// Name is the full name of the token
	Name string `json:"name,omitempty"`
	// Symbol is the short symbol of the token (e.g., USDC, CTN)
	Symbol string `json:"symbol"`
	// Decimals is the number of decimals the token uses
	Decimals int `json:"decimals"`
	// UpdatedAt is the timestamp when the token info was last updated
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

// TokenResolver looks up token metadata by chain and symbol.
type TokenResolver interface {
	Resolve(chainID int64, symbol string) (*Token, bool)
}
