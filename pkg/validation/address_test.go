package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name      string
		chainType string
		addr      string
		wantErr   bool
	}{
		{"evm ok", ChainTypeEVM, "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0", false},
		{"evm default type", "", "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0", false},
		{"evm too short", ChainTypeEVM, "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb", true},
		{"solana ok", ChainTypeSolana, "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", false},
		{"solana bad", ChainTypeSolana, "0xnotbase58", true},
		{"core ok", ChainTypeCore, "cb57bbbb54cdf60fa666fd741be78f794d4608d67109", false},
		{"core bad length", ChainTypeCore, "cb57bbbb", true},
		{"empty", ChainTypeEVM, "", true},
		{"unknown type", "cosmos", "cosmos1abc", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.chainType, tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress("0xABCDEF0123", "0xabcdef0123"))
	assert.True(t, SameAddress("abcdef0123", "0XABCDEF0123"))
	assert.False(t, SameAddress("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", "9wzdxwbbmkg8ztbnmquxvqrayrzzdsgydlvl9zytawwm"))
}
