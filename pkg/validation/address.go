package validation

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

// Chain types understood by ValidateAddress.
const (
	ChainTypeEVM    = "evm"
	ChainTypeSolana = "solana"
	ChainTypeCore   = "core"
)

// ValidateAddress validates a recipient or subscriber address for the given chain type.
func ValidateAddress(chainType, addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch chainType {
	case ChainTypeEVM, "":
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid EVM address: %s", addr)
		}
		return nil
	case ChainTypeSolana:
		if _, err := solana.PublicKeyFromBase58(addr); err != nil {
			return fmt.Errorf("invalid Solana address: %w", err)
		}
		return nil
	case ChainTypeCore:
		return validateCoreAddress(addr)
	default:
		return fmt.Errorf("unknown chain type %q", chainType)
	}
}

// validateCoreAddress checks a Core Blockchain address: 22 bytes, hex encoded.
func validateCoreAddress(addr string) error {
	normalized := strings.TrimPrefix(addr, "0x")
	normalized = strings.TrimPrefix(normalized, "0X")

	if len(normalized) != 44 {
		return fmt.Errorf("invalid address length: expected 44 characters (without 0x), got %d", len(normalized))
	}
	if _, err := hex.DecodeString(normalized); err != nil {
		return fmt.Errorf("invalid hex address: %w", err)
	}
	return nil
}

// NormalizeAddress converts a hex address to lowercase without 0x prefix.
// Base58 (Solana) addresses are case sensitive and returned unchanged.
func NormalizeAddress(addr string) string {
	trimmed := strings.TrimPrefix(addr, "0x")
	trimmed = strings.TrimPrefix(trimmed, "0X")
	if _, err := hex.DecodeString(trimmed); err != nil || len(trimmed)%2 != 0 {
		return addr
	}
	return strings.ToLower(trimmed)
}

// SameAddress compares two addresses; hex addresses compare case-insensitively.
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}
